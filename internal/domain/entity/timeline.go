package entity

import "math"

// Timeline captures the editor-side playback state a thumbnail batch is
// scheduled against: the full media duration plus an optional trim window.
type Timeline struct {
	DurationMs     int64
	TrimActive     bool
	TrimStartMs    int64
	TrimDurationMs int64
}

// EffectiveDurationMs is the trimmed-region duration when a trim is active,
// otherwise the full media duration.
func (t Timeline) EffectiveDurationMs() int64 {
	if t.TrimActive {
		return t.TrimDurationMs
	}
	return t.DurationMs
}

// TrimThumbnailTimestamps returns n evenly spaced timestamps strictly after
// the start of the media, ending at the full duration: round(D/n*i) for
// i in [1, n]. Used for the trim-bar thumbnail strip.
func (t Timeline) TrimThumbnailTimestamps(n int) []int64 {
	if n <= 0 {
		return nil
	}
	step := float64(t.DurationMs) / float64(n)
	out := make([]int64, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, int64(math.Round(step*float64(i))))
	}
	return out
}

// CoverTimestamps returns n evenly spaced timestamps starting at the window
// start: round(eff/n*i) for i in [0, n-1], shifted by the trim start when a
// trim is active. Used for cover-frame selection.
func (t Timeline) CoverTimestamps(n int) []int64 {
	if n <= 0 {
		return nil
	}
	step := float64(t.EffectiveDurationMs()) / float64(n)
	var offset int64
	if t.TrimActive {
		offset = t.TrimStartMs
	}
	out := make([]int64, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, int64(math.Round(step*float64(i)))+offset)
	}
	return out
}
