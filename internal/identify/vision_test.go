package identify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/hoshi42/phonox/internal/identify/config"
)

// TestMain verifies the whole package's test run leaves no goroutines
// behind, with emphasis on the concurrent fan-out stages (C3 here, C5 in
// lookup_test.go) where an errgroup misuse would leak a worker on an
// early return.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeVisionClient struct {
	mu        sync.Mutex
	responses map[int]MetadataProposal
	errs      map[int]error
	calls     []int
}

func (f *fakeVisionClient) Extract(ctx context.Context, imageBytes []byte, contentType string, variant PromptVariant, priors []MetadataProposal) (MetadataProposal, error) {
	idx := int(imageBytes[0])
	f.mu.Lock()
	f.calls = append(f.calls, idx)
	f.mu.Unlock()
	if err, ok := f.errs[idx]; ok {
		return MetadataProposal{}, err
	}
	return f.responses[idx], nil
}

func str(s string) *string { return &s }
func yr(y int) *int         { return &y }

func TestExtractVision_ReassemblesInOrder(t *testing.T) {
	images := []ImageBlob{
		{Bytes: []byte{0}, ContentType: "image/jpeg"},
		{Bytes: []byte{1}, ContentType: "image/jpeg"},
		{Bytes: []byte{2}, ContentType: "image/jpeg"},
	}
	client := &fakeVisionClient{responses: map[int]MetadataProposal{
		0: {Artist: str("Danzig"), Confidence: 0.95},
		1: {Barcode: str("6024550124011"), Confidence: 0.80},
		2: {CatalogNumber: str("DEF 24208"), Confidence: 0.70},
	}}

	proposals, evidence := ExtractVision(context.Background(), images, client, nil, config.Default().Vision, RealClock{})

	if len(proposals) != 3 {
		t.Fatalf("want 3 proposals, got %d", len(proposals))
	}
	if proposals[0].Artist == nil || *proposals[0].Artist != "Danzig" {
		t.Fatalf("proposal 0 mismatch: %+v", proposals[0])
	}
	if proposals[1].Barcode == nil || *proposals[1].Barcode != "6024550124011" {
		t.Fatalf("proposal 1 mismatch: %+v", proposals[1])
	}
	if len(evidence) != 3 {
		t.Fatalf("want 3 evidence entries, got %d", len(evidence))
	}
	for i, ev := range evidence {
		if ev.Source != SourceVision {
			t.Fatalf("evidence %d has wrong source %v", i, ev.Source)
		}
	}
}

func TestExtractVision_ConfidenceClampedBelowOne(t *testing.T) {
	images := []ImageBlob{{Bytes: []byte{0}, ContentType: "image/jpeg"}}
	client := &fakeVisionClient{responses: map[int]MetadataProposal{
		0: {Artist: str("X"), Confidence: 1.5},
	}}
	proposals, _ := ExtractVision(context.Background(), images, client, nil, config.Default().Vision, RealClock{})
	if proposals[0].Confidence != maxVisionConfidence {
		t.Fatalf("want clamped confidence %v, got %v", maxVisionConfidence, proposals[0].Confidence)
	}
}

func TestExtractVision_FailedImageYieldsNoEvidence(t *testing.T) {
	images := []ImageBlob{
		{Bytes: []byte{0}, ContentType: "image/jpeg"},
		{Bytes: []byte{1}, ContentType: "image/jpeg"},
	}
	cfg := config.Default().Vision
	cfg.Retries = 1
	client := &fakeVisionClient{
		responses: map[int]MetadataProposal{0: {Artist: str("X"), Confidence: 0.9}},
		errs:      map[int]error{1: errors.New("malformed json: parse_error")},
	}
	proposals, evidence := ExtractVision(context.Background(), images, client, nil, cfg, RealClock{})
	if len(evidence) != 1 {
		t.Fatalf("want 1 evidence entry (image 1 failed soft), got %d", len(evidence))
	}
	if proposals[1].Confidence != 0 {
		t.Fatalf("failed image should yield zero-value proposal, got %+v", proposals[1])
	}
}

func TestSanitizeProposal_SentinelAndYearCoercion(t *testing.T) {
	cases := []struct {
		name string
		in   MetadataProposal
		want MetadataProposal
	}{
		{
			name: "sentinel_string_coerced_null",
			in:   MetadataProposal{Artist: str("Unknown")},
			want: MetadataProposal{Artist: nil},
		},
		{
			name: "year_out_of_range_coerced_null",
			in:   MetadataProposal{Year: yr(1850)},
			want: MetadataProposal{Year: nil},
		},
		{
			name: "malformed_barcode_coerced_null",
			in:   MetadataProposal{Barcode: str("123")},
			want: MetadataProposal{Barcode: nil},
		},
		{
			name: "valid_13_digit_barcode_kept",
			in:   MetadataProposal{Barcode: str("6024550124011")},
			want: MetadataProposal{Barcode: str("6024550124011")},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := sanitizeProposal(tc.in, time.Now().Year())
			if (got.Artist == nil) != (tc.want.Artist == nil) {
				t.Fatalf("Artist mismatch: got %v want %v", got.Artist, tc.want.Artist)
			}
			if (got.Year == nil) != (tc.want.Year == nil) {
				t.Fatalf("Year mismatch: got %v want %v", got.Year, tc.want.Year)
			}
			if (got.Barcode == nil) != (tc.want.Barcode == nil) {
				t.Fatalf("Barcode mismatch: got %v want %v", got.Barcode, tc.want.Barcode)
			}
			if got.Barcode != nil && tc.want.Barcode != nil && *got.Barcode != *tc.want.Barcode {
				t.Fatalf("Barcode value mismatch: got %v want %v", *got.Barcode, *tc.want.Barcode)
			}
		})
	}
}
