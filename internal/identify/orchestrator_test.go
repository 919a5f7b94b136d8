package identify

import (
	"context"
	"testing"
	"time"

	"github.com/hoshi42/phonox/internal/identify/config"
)

type fakeOrchVision struct {
	responses map[byte]MetadataProposal
}

func (f *fakeOrchVision) Extract(ctx context.Context, imageBytes []byte, contentType string, variant PromptVariant, priors []MetadataProposal) (MetadataProposal, error) {
	return f.responses[imageBytes[0]], nil
}

func TestIdentify_HighConfidencePathAutoCommits(t *testing.T) {
	images := []ImageBlob{{Bytes: []byte{0}, ContentType: "image/jpeg"}}
	vision := &fakeOrchVision{responses: map[byte]MetadataProposal{
		0: {Artist: str("Danzig"), Title: str("Danzig"), Barcode: str("6024550124011"), Confidence: 0.9},
	}}
	discogs := &fakeDiscogsClient{barcodeOK: true, barcodeHit: DiscogsHit{Artist: "Danzig", Title: "Danzig", Barcode: "6024550124011"}}
	mb := &fakeMusicBrainzClient{hits: []MusicBrainzHit{{Artist: "Danzig", Title: "Danzig", ExactMatch: true}}}

	deps := Dependencies{Vision: vision, Discogs: discogs, MusicBrainz: mb, Clock: RealClock{}, Config: config.Default()}
	result := Identify(context.Background(), images, deps)

	if result.State.Error != "" {
		t.Fatalf("want no error, got %v", result.State.Error)
	}
	if !result.State.AutoCommit {
		t.Fatalf("want auto_commit for strong discogs+musicbrainz agreement, got confidence %v", result.State.Confidence)
	}
	if result.Status != StatusComplete {
		t.Fatalf("want status complete, got %v", result.Status)
	}
}

func TestIdentify_ValidationFailureYieldsFailedStatus(t *testing.T) {
	deps := Dependencies{Config: config.Default()}
	result := Identify(context.Background(), nil, deps)
	if result.Status != StatusFailed {
		t.Fatalf("want failed status for zero images, got %v", result.Status)
	}
	if result.State.Error == "" {
		t.Fatal("want a validation error message")
	}
}

func TestIdentify_EmptyVisionYieldsFailedStatus(t *testing.T) {
	images := []ImageBlob{{Bytes: []byte{0}, ContentType: "image/jpeg"}}
	vision := &fakeOrchVision{responses: map[byte]MetadataProposal{0: {}}}
	deps := Dependencies{Vision: vision, Config: config.Default()}

	result := Identify(context.Background(), images, deps)
	if result.Status != StatusFailed {
		t.Fatalf("want failed status for empty vision extraction, got %v", result.Status)
	}
}

func TestIdentify_LowConfidenceTriggersWebSearchFallback(t *testing.T) {
	images := []ImageBlob{{Bytes: []byte{0}, ContentType: "image/jpeg"}}
	vision := &fakeOrchVision{responses: map[byte]MetadataProposal{
		0: {Artist: str("Obscure Band"), Title: str("Demo Tape"), Confidence: 0.4},
	}}
	search := &fakeSearchClient{tavilyResponses: [][]SearchHit{
		{{URL: "https://discogs.com/x", Title: "Obscure Band - Demo Tape"}},
	}}
	deps := Dependencies{Vision: vision, Search: search, Config: config.Default()}

	result := Identify(context.Background(), images, deps)
	if result.State.WebSearchResults == nil {
		t.Fatal("want web search to have run for low-confidence vision-only chain")
	}
}

func TestIdentify_DeadlineExceededIsReportedAsTerminalError(t *testing.T) {
	images := []ImageBlob{{Bytes: []byte{0}, ContentType: "image/jpeg"}}
	vision := &fakeOrchVision{responses: map[byte]MetadataProposal{0: {Artist: str("X"), Confidence: 0.9}}}
	cfg := config.Default()
	cfg.Run.IdentifyDeadline = 1 * time.Nanosecond
	deps := Dependencies{Vision: vision, Config: cfg}

	result := Identify(context.Background(), images, deps)
	if result.State.Error == "" {
		t.Fatal("want a deadline error for a run whose deadline has already passed")
	}
}

func TestReanalyze_PreservesSpotifyURLFromExistingRecord(t *testing.T) {
	url := "https://open.spotify.com/album/xyz"
	existing := StoredRecord{SpotifyURL: &url, Metadata: AggregatedMetadata{Artist: str("Danzig")}}
	images := []ImageBlob{{Bytes: []byte{0}, ContentType: "image/jpeg"}}
	vision := &fakeOrchVision{responses: map[byte]MetadataProposal{
		0: {Artist: str("Danzig"), Title: str("Danzig II: Lucifuge"), Confidence: 0.9},
	}}
	deps := Dependencies{Vision: vision, Config: config.Default()}

	result := Reanalyze(context.Background(), existing, images, deps)
	if result.Metadata == nil {
		t.Fatal("want metadata from reanalyze")
	}
}
