package entity

import (
	"time"

	"github.com/google/uuid"
)

type JobStatus string

const (
	JobStatusPending    JobStatus = "PENDING"
	JobStatusProcessing JobStatus = "PROCESSING"
	JobStatusCompleted  JobStatus = "COMPLETED"
	JobStatusFailed     JobStatus = "FAILED"
)

// ThumbnailKind selects which scheduling variant a job uses.
type ThumbnailKind string

const (
	// KindTrim produces the trim-bar thumbnail strip (1-indexed spacing).
	KindTrim ThumbnailKind = "trim"
	// KindCover produces cover-selection candidates (0-indexed spacing,
	// shifted into the trim window when one is active).
	KindCover ThumbnailKind = "cover"
	// KindSingleCover produces exactly one cover frame.
	KindSingleCover ThumbnailKind = "single_cover"
)

// ThumbnailJob is the persisted record of one thumbnail extraction batch.
type ThumbnailJob struct {
	ID           uuid.UUID
	UserID       string
	VideoKey     string
	Kind         ThumbnailKind
	Requested    int
	Extracted    int
	Status       JobStatus
	Attempt      int
	MaxAttempts  int
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	CompletedAt  *time.Time
}

func NewThumbnailJob(userID, videoKey string, kind ThumbnailKind, requested, maxAttempts int) *ThumbnailJob {
	now := time.Now().UTC()
	return &ThumbnailJob{
		ID:          uuid.New(),
		UserID:      userID,
		VideoKey:    videoKey,
		Kind:        kind,
		Requested:   requested,
		Status:      JobStatusPending,
		Attempt:     0,
		MaxAttempts: maxAttempts,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func (j *ThumbnailJob) MarkProcessing() {
	j.Status = JobStatusProcessing
	j.Attempt++
	j.UpdatedAt = time.Now().UTC()
}

func (j *ThumbnailJob) MarkCompleted(extracted int) {
	now := time.Now().UTC()
	j.Status = JobStatusCompleted
	j.Extracted = extracted
	j.UpdatedAt = now
	j.CompletedAt = &now
}

func (j *ThumbnailJob) MarkFailed(errMsg string) {
	j.Status = JobStatusFailed
	j.ErrorMessage = errMsg
	j.UpdatedAt = time.Now().UTC()
}

func (j *ThumbnailJob) CanRetry() bool {
	return j.Attempt < j.MaxAttempts
}
