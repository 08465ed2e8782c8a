package entity

// ExtractionRequest describes a single frame to pull out of a video.
// One value is constructed per extraction attempt.
type ExtractionRequest struct {
	SourcePath  string
	TimestampMs int64
	// Quality is a 0-100 hint; backends map it to their native scale.
	Quality int
}

// CoverEntry pairs extracted image bytes with the timestamp they came from.
// Data is nil when the extraction failed; the timestamp is kept either way.
type CoverEntry struct {
	Data        []byte
	TimestampMs int64
}

// Absent reports whether the entry carries no image data.
func (c CoverEntry) Absent() bool {
	return len(c.Data) == 0
}
