// Package regions converts user cut selections over a recording timeline
// into the ordered set of keep regions handed to the transcoder.
package regions

import (
	"errors"
	"sort"
)

// DefaultMinPlayable is the minimum total keep duration, in seconds, for a
// trim to be accepted. A safety floor, not a domain constant; callers may
// override it via config.
const DefaultMinPlayable = 1.0

// ErrInvalidTrim is returned when applying the cuts would leave less audio
// than the minimum playable duration.
var ErrInvalidTrim = errors.New("trim would leave too little audio")

// CutMarker is a user-selected span to delete, in seconds. Markers are
// edited freely in the UI session; only the derived keep regions are acted
// on, never the markers themselves.
type CutMarker struct {
	Start float64
	End   float64
}

// Duration returns the marker's length in seconds.
func (c CutMarker) Duration() float64 {
	return c.End - c.Start
}

// KeepRegion is a span to retain, in seconds. A computed slice of
// KeepRegions is strictly increasing and non-overlapping.
type KeepRegion struct {
	Start float64
	End   float64
}

// Duration returns the region's length in seconds.
func (k KeepRegion) Duration() float64 {
	return k.End - k.Start
}

// ComputeKeepRegions returns the complement of cuts over [0, duration].
// Cuts may overlap or arrive out of order; they are sorted and merged while
// walking the cursor. Cuts outside [0, duration] are clamped.
//
// With no cuts the whole timeline is kept (empty for a zero duration). With
// cuts, the result is rejected with ErrInvalidTrim when the total kept
// duration falls below minPlayable.
func ComputeKeepRegions(duration float64, cuts []CutMarker, minPlayable float64) ([]KeepRegion, error) {
	if len(cuts) == 0 {
		if duration <= 0 {
			return nil, nil
		}
		return []KeepRegion{{Start: 0, End: duration}}, nil
	}

	sorted := make([]CutMarker, len(cuts))
	copy(sorted, cuts)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Start < sorted[j].Start
	})

	var keeps []KeepRegion
	pos := 0.0
	for _, cut := range sorted {
		if cut.Start >= duration {
			break
		}
		if cut.Start > pos {
			keeps = append(keeps, KeepRegion{Start: pos, End: cut.Start})
		}
		// Overlapping and out-of-order cuts merge here: the cursor only
		// ever moves forward.
		if cut.End > pos {
			pos = cut.End
		}
	}
	if pos < duration {
		keeps = append(keeps, KeepRegion{Start: pos, End: duration})
	}

	if TrimmedDuration(keeps) < minPlayable {
		return nil, ErrInvalidTrim
	}
	return keeps, nil
}

// TrimmedDuration returns the total duration in seconds covered by keeps.
func TrimmedDuration(keeps []KeepRegion) float64 {
	var total float64
	for _, k := range keeps {
		total += k.End - k.Start
	}
	return total
}
