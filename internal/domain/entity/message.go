package entity

import "github.com/google/uuid"

// ThumbnailRequestMessage is the inbound message from the thumbnail.request
// queue. It carries the editor state the batch is scheduled against: video
// key, duration, trim window, and per-kind quality hints. A zero DurationMs
// means the worker probes the duration itself.
type ThumbnailRequestMessage struct {
	JobID          uuid.UUID     `json:"job_id"`
	UserID         string        `json:"user_id"`
	VideoKey       string        `json:"video_key"`
	Kind           ThumbnailKind `json:"kind"`
	Quantity       int           `json:"quantity"`
	DurationMs     int64         `json:"duration_ms"`
	TrimActive     bool          `json:"trim_active"`
	TrimStartMs    int64         `json:"trim_start_ms"`
	TrimDurationMs int64         `json:"trim_duration_ms"`
	TrimQuality    int           `json:"trim_quality"`
	CoverQuality   int           `json:"cover_quality"`
	UserEmail      string        `json:"user_email"`
}

// CoverRef points at one uploaded thumbnail. An empty Key means the frame at
// TimestampMs could not be extracted.
type CoverRef struct {
	Key         string `json:"key,omitempty"`
	TimestampMs int64  `json:"timestamp_ms"`
}

// ThumbnailProgressMessage is published to the thumbnail.progress queue after
// every extraction attempt and once terminally. Covers grows monotonically
// across the messages of one job.
type ThumbnailProgressMessage struct {
	JobID        uuid.UUID     `json:"job_id"`
	UserID       string        `json:"user_id"`
	Status       JobStatus     `json:"status"`
	VideoKey     string        `json:"video_key"`
	Kind         ThumbnailKind `json:"kind"`
	Covers       []CoverRef    `json:"covers"`
	Requested    int           `json:"requested"`
	Attempted    int           `json:"attempted"`
	Extracted    int           `json:"extracted"`
	ErrorMessage string        `json:"error_message,omitempty"`
	Attempt      int           `json:"attempt"`
	MaxAttempts  int           `json:"max_attempts"`
}
