package identify

import (
	"context"
	"strings"

	"github.com/hoshi42/phonox/internal/identify/config"
	"github.com/hoshi42/phonox/internal/identify/logging"
)

// conflictConfidenceFloor is the minimum confidence a new non-null value
// must carry to overwrite an existing non-null field on conflict (§4.9).
const conflictConfidenceFloor = 0.80

// confidenceBoostCap bounds the confidence bump applied when a new proposal
// agrees with the stored value case-insensitively (§4.9).
const confidenceBoostCap = 0.98

// EnhanceResult is C9's output: the merged record plus the field-level
// change log (§4.9, §6).
type EnhanceResult struct {
	Record  StoredRecord
	Changes []ChangeLogEntry
}

// Enhance implements C9 (§4.9): merges fresh aggregated metadata into an
// existing stored record field by field, never failing the run — any
// unexpected internal error degrades to leaving the existing record
// untouched with a single enhancement_skipped log entry, per §4.9's
// never-fails-the-run contract.
func Enhance(ctx context.Context, existing StoredRecord, fresh AggregatedMetadata, cfg config.ConfidenceConfig) (result EnhanceResult) {
	timer := logging.StartTimer(logging.CategoryEnhancer, "Enhance")
	defer timer.Stop()

	defer func() {
		if r := recover(); r != nil {
			logging.Get(logging.CategoryEnhancer).Error("enhancement panicked, preserving existing record")
			result = EnhanceResult{
				Record:  existing,
				Changes: []ChangeLogEntry{{Field: "*", Action: "enhancement_skipped", Reason: "internal error"}},
			}
		}
	}()

	merged := existing
	var changes []ChangeLogEntry

	merged.Metadata.Artist, changes = mergeStringField("artist", existing.Metadata.Artist, fresh.Artist, existing.Confidence, fresh.Confidence, changes)
	merged.Metadata.Title, changes = mergeStringField("title", existing.Metadata.Title, fresh.Title, existing.Confidence, fresh.Confidence, changes)
	merged.Metadata.Label, changes = mergeStringField("label", existing.Metadata.Label, fresh.Label, existing.Confidence, fresh.Confidence, changes)
	merged.Metadata.CatalogNumber, changes = mergeStringField("catalog_number", existing.Metadata.CatalogNumber, fresh.CatalogNumber, existing.Confidence, fresh.Confidence, changes)
	merged.Metadata.Year, changes = mergeIntField("year", existing.Metadata.Year, fresh.Year, existing.Confidence, fresh.Confidence, changes)

	// Barcode prefers whichever value matches the canonical 12-13 digit
	// pattern; a fresh well-formed barcode wins over a stale malformed one
	// even without a confidence edge (§4.9).
	merged.Metadata.Barcode, changes = mergeBarcodeField(existing.Metadata.Barcode, fresh.Barcode, existing.Confidence, fresh.Confidence, changes)

	merged.Metadata.Genres, changes = mergeGenreField(existing.Metadata.Genres, fresh.Genres, cfg.MaxGenres, changes)
	merged.Condition, changes = mergeConditionField(existing.Condition, fresh.Condition, changes)

	// spotify_url is sourced from metadata lookup, never vision; it is
	// preserved verbatim across enhancement regardless of what fresh
	// aggregated vision metadata carries (§4.9, §6).
	merged.SpotifyURL = existing.SpotifyURL

	return EnhanceResult{Record: merged, Changes: changes}
}

func mergeStringField(field string, old, new *string, oldConf, newConf float64, changes []ChangeLogEntry) (*string, []ChangeLogEntry) {
	if new == nil || *new == "" {
		return old, changes
	}
	if old == nil || *old == "" {
		return new, append(changes, ChangeLogEntry{Field: field, Action: "added", New: *new, Confidence: newConf})
	}
	if equalFold(*old, *new) {
		boosted := minFloat(oldConf+0.05, confidenceBoostCap)
		return old, append(changes, ChangeLogEntry{Field: field, Action: "boosted", Old: *old, New: *old, Confidence: boosted})
	}
	if newConf >= conflictConfidenceFloor {
		return new, append(changes, ChangeLogEntry{Field: field, Action: "updated", Old: *old, New: *new, Confidence: newConf, Reason: "conflicting value at or above confidence floor"})
	}
	return old, append(changes, ChangeLogEntry{Field: field, Action: "conflict", Old: *old, New: *new, Confidence: newConf, Reason: "new value below confidence floor, keeping existing"})
}

func mergeIntField(field string, old, new *int, oldConf, newConf float64, changes []ChangeLogEntry) (*int, []ChangeLogEntry) {
	if new == nil {
		return old, changes
	}
	if old == nil {
		return new, append(changes, ChangeLogEntry{Field: field, Action: "added", Confidence: newConf})
	}
	if *old == *new {
		return old, append(changes, ChangeLogEntry{Field: field, Action: "kept", Confidence: oldConf})
	}
	if newConf >= conflictConfidenceFloor {
		return new, append(changes, ChangeLogEntry{Field: field, Action: "updated", Confidence: newConf, Reason: "conflicting value at or above confidence floor"})
	}
	return old, append(changes, ChangeLogEntry{Field: field, Action: "conflict", Confidence: newConf, Reason: "new value below confidence floor, keeping existing"})
}

func mergeBarcodeField(old, new *string, oldConf, newConf float64, changes []ChangeLogEntry) (*string, []ChangeLogEntry) {
	if new == nil || *new == "" {
		return old, changes
	}
	if !barcodeRE.MatchString(*new) {
		return old, changes
	}
	if old == nil || *old == "" || !barcodeRE.MatchString(*old) {
		return new, append(changes, ChangeLogEntry{Field: "barcode", Action: "added", New: *new, Confidence: newConf, Reason: "well-formed barcode preferred over malformed/absent existing value"})
	}
	if *old == *new {
		return old, changes
	}
	if newConf >= conflictConfidenceFloor && newConf > oldConf {
		return new, append(changes, ChangeLogEntry{Field: "barcode", Action: "updated", Old: *old, New: *new, Confidence: newConf})
	}
	return old, append(changes, ChangeLogEntry{Field: "barcode", Action: "conflict", Old: *old, New: *new, Confidence: newConf})
}

func mergeGenreField(old, new []string, maxGenres int, changes []ChangeLogEntry) ([]string, []ChangeLogEntry) {
	if len(new) == 0 {
		return old, changes
	}
	merged := unionStringSlice(old, new)
	if maxGenres > 0 && len(merged) > maxGenres {
		merged = merged[:maxGenres]
	}
	if len(merged) != len(old) {
		changes = append(changes, ChangeLogEntry{Field: "genres", Action: "updated", Reason: "union of existing and fresh genres"})
	}
	return merged, changes
}

// unionStringSlice is the case-insensitive deduplicated union of two plain
// string slices, preserving first-seen order (old before new).
func unionStringSlice(a, b []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, s := range append(append([]string{}, a...), b...) {
		key := lower(strings.TrimSpace(s))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, s)
	}
	return out
}

func mergeConditionField(old, new *Condition, changes []ChangeLogEntry) (*Condition, []ChangeLogEntry) {
	if new == nil {
		return old, changes
	}
	if old == nil {
		return new, append(changes, ChangeLogEntry{Field: "condition", Action: "added", New: new.String()})
	}
	worst, _ := WorstOf([]Condition{*old, *new})
	if worst == *old {
		return old, append(changes, ChangeLogEntry{Field: "condition", Action: "kept", Reason: "existing condition already worst-or-equal"})
	}
	return &worst, append(changes, ChangeLogEntry{Field: "condition", Action: "updated", Old: old.String(), New: worst.String(), Reason: "pessimistic worst-wins merge"})
}

func equalFold(a, b string) bool {
	return lower(a) == lower(b)
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
