package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lunigy/thumbnail-service/internal/domain/entity"
)

type JobRepository struct {
	pool *pgxpool.Pool
}

func NewJobRepository(pool *pgxpool.Pool) *JobRepository {
	return &JobRepository{pool: pool}
}

func (r *JobRepository) Create(ctx context.Context, job *entity.ThumbnailJob) error {
	query := `
		INSERT INTO thumbnail_jobs (
			id, user_id, video_key, kind, requested, extracted, status,
			attempt, max_attempts, error_message,
			created_at, updated_at, completed_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`

	_, err := r.pool.Exec(ctx, query,
		job.ID, job.UserID, job.VideoKey, string(job.Kind),
		job.Requested, job.Extracted, string(job.Status),
		job.Attempt, job.MaxAttempts, job.ErrorMessage,
		job.CreatedAt, job.UpdatedAt, job.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

func (r *JobRepository) Update(ctx context.Context, job *entity.ThumbnailJob) error {
	query := `
		UPDATE thumbnail_jobs SET
			status=$2, extracted=$3, attempt=$4, error_message=$5,
			updated_at=$6, completed_at=$7
		WHERE id=$1`

	_, err := r.pool.Exec(ctx, query,
		job.ID, string(job.Status), job.Extracted, job.Attempt,
		job.ErrorMessage, job.UpdatedAt, job.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	return nil
}

func (r *JobRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.ThumbnailJob, error) {
	query := `
		SELECT id, user_id, video_key, kind, requested, extracted, status,
			attempt, max_attempts, error_message,
			created_at, updated_at, completed_at
		FROM thumbnail_jobs WHERE id=$1`

	job := &entity.ThumbnailJob{}
	var kind, status string
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&job.ID, &job.UserID, &job.VideoKey, &kind,
		&job.Requested, &job.Extracted, &status,
		&job.Attempt, &job.MaxAttempts, &job.ErrorMessage,
		&job.CreatedAt, &job.UpdatedAt, &job.CompletedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("find job by id: %w", err)
	}
	job.Kind = entity.ThumbnailKind(kind)
	job.Status = entity.JobStatus(status)
	return job, nil
}
