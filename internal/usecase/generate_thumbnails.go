package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/lunigy/thumbnail-service/internal/domain/entity"
	"github.com/lunigy/thumbnail-service/internal/domain/port"
	"github.com/lunigy/thumbnail-service/internal/infra/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ThumbnailUseCase drives one thumbnail job end to end: download the video,
// schedule timestamps, extract frames one at a time, upload each success, and
// publish a cumulative progress message after every attempt.
type ThumbnailUseCase struct {
	repo         port.JobRepository
	storage      port.VideoStorage
	extractor    port.FrameExtractor
	prober       port.DurationProber
	progress     port.ProgressPublisher
	dlq          port.DLQPublisher
	notifier     port.FailureNotifier
	logger       *zap.Logger
	tempDir      string
	maxRetry     int
	trimQuality  int
	coverQuality int
}

type ThumbnailConfig struct {
	TempDir             string
	MaxRetries          int
	DefaultTrimQuality  int
	DefaultCoverQuality int
}

func NewThumbnailUseCase(
	repo port.JobRepository,
	storage port.VideoStorage,
	extractor port.FrameExtractor,
	prober port.DurationProber,
	progress port.ProgressPublisher,
	dlq port.DLQPublisher,
	notifier port.FailureNotifier,
	logger *zap.Logger,
	cfg ThumbnailConfig,
) *ThumbnailUseCase {
	if cfg.DefaultCoverQuality <= 0 {
		cfg.DefaultCoverQuality = DefaultCoverQuality
	}
	return &ThumbnailUseCase{
		repo:         repo,
		storage:      storage,
		extractor:    extractor,
		prober:       prober,
		progress:     progress,
		dlq:          dlq,
		notifier:     notifier,
		logger:       logger,
		tempDir:      cfg.TempDir,
		maxRetry:     cfg.MaxRetries,
		trimQuality:  cfg.DefaultTrimQuality,
		coverQuality: cfg.DefaultCoverQuality,
	}
}

func (uc *ThumbnailUseCase) Execute(ctx context.Context, rawMsg []byte) error {
	tracer := otel.Tracer("usecase")
	ctx, span := tracer.Start(ctx, "ThumbnailUseCase.Execute")
	defer span.End()

	totalTimer := time.Now()

	var msg entity.ThumbnailRequestMessage
	if err := json.Unmarshal(rawMsg, &msg); err != nil {
		uc.logger.Error("failed to unmarshal message", zap.Error(err), zap.ByteString("body", rawMsg))
		_ = uc.dlq.PublishToDLQ(ctx, rawMsg, "unmarshal_error: "+err.Error())
		return nil
	}

	if reason, ok := validateRequest(&msg); !ok {
		uc.logger.Error("invalid thumbnail request", zap.String("reason", reason), zap.ByteString("body", rawMsg))
		_ = uc.dlq.PublishToDLQ(ctx, rawMsg, "invalid_request: "+reason)
		return nil
	}

	span.SetAttributes(
		attribute.String("job.id", msg.JobID.String()),
		attribute.String("job.video_key", msg.VideoKey),
		attribute.String("job.kind", string(msg.Kind)),
	)

	log := uc.logger.With(
		zap.String("job_id", msg.JobID.String()),
		zap.String("video_key", msg.VideoKey),
		zap.String("kind", string(msg.Kind)),
	)

	job, err := uc.repo.FindByID(ctx, msg.JobID)
	if err != nil {
		job = entity.NewThumbnailJob(msg.UserID, msg.VideoKey, msg.Kind, requestedQuantity(&msg), uc.maxRetry)
		job.ID = msg.JobID
		if err := uc.repo.Create(ctx, job); err != nil {
			log.Error("failed to create job record", zap.Error(err))
			return fmt.Errorf("create job: %w", err)
		}
	}

	if !job.CanRetry() {
		log.Warn("job exhausted retries, sending to DLQ")
		_ = uc.handlePermanentFailure(ctx, job, msg, rawMsg, "max retries exceeded")
		return nil
	}

	job.MarkProcessing()
	if err := uc.repo.Update(ctx, job); err != nil {
		log.Error("failed to update job to PROCESSING", zap.Error(err))
		return fmt.Errorf("update job: %w", err)
	}

	metrics.ActiveWorkers.Inc()
	defer metrics.ActiveWorkers.Dec()

	if err := uc.runPipeline(ctx, job, msg, rawMsg, log); err != nil {
		return err
	}

	metrics.JobsProcessedTotal.WithLabelValues("completed").Inc()
	metrics.JobStageDuration.WithLabelValues("total").Observe(time.Since(totalTimer).Seconds())

	return nil
}

func validateRequest(msg *entity.ThumbnailRequestMessage) (string, bool) {
	switch msg.Kind {
	case entity.KindTrim, entity.KindCover:
		if msg.Quantity <= 0 {
			return "quantity must be positive", false
		}
	case entity.KindSingleCover:
		// Quantity is implicit.
	default:
		return fmt.Sprintf("unknown kind %q", msg.Kind), false
	}
	if msg.VideoKey == "" {
		return "video key missing", false
	}
	return "", true
}

func requestedQuantity(msg *entity.ThumbnailRequestMessage) int {
	if msg.Kind == entity.KindSingleCover {
		return 1
	}
	return msg.Quantity
}

func (uc *ThumbnailUseCase) runPipeline(
	ctx context.Context,
	job *entity.ThumbnailJob,
	msg entity.ThumbnailRequestMessage,
	rawMsg []byte,
	log *zap.Logger,
) error {
	tracer := otel.Tracer("usecase")

	workDir := filepath.Join(uc.tempDir, job.ID.String())
	if err := os.MkdirAll(workDir, 0755); err != nil {
		return fmt.Errorf("create workdir: %w", err)
	}
	defer os.RemoveAll(workDir)

	// Download video from object storage
	dlStart := time.Now()
	ctx2, spanDl := tracer.Start(ctx, "download_video")
	videoPath := filepath.Join(workDir, "input.mp4")
	if err := uc.storage.DownloadVideo(ctx2, msg.VideoKey, videoPath); err != nil {
		spanDl.End()
		log.Error("failed to download video", zap.Error(err))
		return uc.handleRetryableFailure(ctx, job, msg, rawMsg, "download_video: "+err.Error(), log)
	}
	spanDl.End()
	metrics.JobStageDuration.WithLabelValues("download").Observe(time.Since(dlStart).Seconds())

	// Resolve the timeline; probe the duration when the editor didn't send one
	durationMs := msg.DurationMs
	if durationMs <= 0 && msg.Kind != entity.KindSingleCover {
		probed, err := uc.prober.ProbeDurationMs(ctx, videoPath)
		if err != nil {
			log.Error("failed to probe video duration", zap.Error(err))
			return uc.handleRetryableFailure(ctx, job, msg, rawMsg, "probe_duration: "+err.Error(), log)
		}
		durationMs = probed
	}

	timeline := entity.Timeline{
		DurationMs:     durationMs,
		TrimActive:     msg.TrimActive,
		TrimStartMs:    msg.TrimStartMs,
		TrimDurationMs: msg.TrimDurationMs,
	}
	timestamps, quality := uc.schedule(msg, timeline)

	// One scratch dir per batch, shared by every extraction in it
	scratchDir := filepath.Join(workDir, "scratch")
	if err := os.MkdirAll(scratchDir, 0755); err != nil {
		return fmt.Errorf("create scratch dir: %w", err)
	}

	exStart := time.Now()
	ctx3, spanEx := tracer.Start(ctx, "extract_thumbnails")

	var covers []entity.CoverRef
	if msg.Kind == entity.KindSingleCover {
		// Single-shot: one paired result, no progressive snapshots. The
		// timestamp survives even when no image came out.
		entry := FetchCover(ctx3, uc.extractor, videoPath, timestamps[0], quality, log)
		ref := entity.CoverRef{TimestampMs: entry.TimestampMs}
		if !entry.Absent() {
			ref.Key = uc.uploadThumbnail(ctx3, msg.UserID, job.ID.String(), 0, entry, log)
		}
		covers = append(covers, ref)
	} else {
		covers = make([]entity.CoverRef, 0, len(timestamps))
		extractBatch(ctx3, uc.extractor, videoPath, timestamps, quality, scratchDir, log,
			func(attempted int, snapshot []entity.CoverEntry) {
				if len(snapshot) > len(covers) {
					latest := snapshot[len(snapshot)-1]
					if key := uc.uploadThumbnail(ctx3, msg.UserID, job.ID.String(), len(snapshot)-1, latest, log); key != "" {
						covers = append(covers, entity.CoverRef{Key: key, TimestampMs: latest.TimestampMs})
					}
				}
				uc.publishProgress(ctx, job, msg, entity.JobStatusProcessing, attempted, covers, "", log)
			})
	}

	spanEx.End()
	metrics.JobStageDuration.WithLabelValues("extract").Observe(time.Since(exStart).Seconds())

	// Only frames that made it to storage count as extracted, so the job
	// record and the terminal progress message always agree.
	uploaded := 0
	for _, c := range covers {
		if c.Key != "" {
			uploaded++
		}
	}

	job.MarkCompleted(uploaded)
	if err := uc.repo.Update(ctx, job); err != nil {
		log.Error("failed to update job to COMPLETED", zap.Error(err))
		return fmt.Errorf("update job completed: %w", err)
	}

	uc.publishProgress(ctx, job, msg, entity.JobStatusCompleted, len(timestamps), covers, "", log)

	log.Info("job completed",
		zap.Int("requested", len(timestamps)),
		zap.Int("uploaded", uploaded),
	)

	return nil
}

// uploadThumbnail pushes one cover frame to storage and returns its key, or
// "" when the upload failed (logged, never escalated).
func (uc *ThumbnailUseCase) uploadThumbnail(
	ctx context.Context,
	userID, jobID string,
	index int,
	entry entity.CoverEntry,
	log *zap.Logger,
) string {
	key := thumbnailKey(userID, jobID, index, entry.TimestampMs)
	if err := uc.storage.UploadThumbnail(ctx, key, bytes.NewReader(entry.Data), int64(len(entry.Data))); err != nil {
		log.Warn("thumbnail upload failed",
			zap.String("key", key),
			zap.Int64("timestamp_ms", entry.TimestampMs),
			zap.Error(err),
		)
		return ""
	}
	return key
}

// schedule turns the request into concrete timestamps plus the quality hint
// for this kind of batch.
func (uc *ThumbnailUseCase) schedule(msg entity.ThumbnailRequestMessage, timeline entity.Timeline) ([]int64, int) {
	switch msg.Kind {
	case entity.KindTrim:
		return timeline.TrimThumbnailTimestamps(msg.Quantity), qualityOr(msg.TrimQuality, uc.trimQuality)
	case entity.KindCover:
		return timeline.CoverTimestamps(msg.Quantity), qualityOr(msg.CoverQuality, uc.coverQuality)
	default: // entity.KindSingleCover
		return []int64{DefaultCoverTimestampMs}, qualityOr(msg.CoverQuality, uc.coverQuality)
	}
}

func qualityOr(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

func thumbnailKey(userID, jobID string, index int, timestampMs int64) string {
	return fmt.Sprintf("%s/%s/thumb_%d_%d.jpg", userID, jobID, index, timestampMs)
}

func (uc *ThumbnailUseCase) handleRetryableFailure(
	ctx context.Context,
	job *entity.ThumbnailJob,
	msg entity.ThumbnailRequestMessage,
	rawMsg []byte,
	errMsg string,
	log *zap.Logger,
) error {
	job.MarkFailed(errMsg)
	_ = uc.repo.Update(ctx, job)

	if !job.CanRetry() {
		return uc.handlePermanentFailure(ctx, job, msg, rawMsg, errMsg)
	}

	metrics.RetryTotal.WithLabelValues(strconv.Itoa(job.Attempt)).Inc()
	uc.publishProgress(ctx, job, msg, entity.JobStatusFailed, 0, nil, errMsg, log)

	return fmt.Errorf("retryable failure (attempt %d/%d): %s", job.Attempt, job.MaxAttempts, errMsg)
}

func (uc *ThumbnailUseCase) handlePermanentFailure(
	ctx context.Context,
	job *entity.ThumbnailJob,
	msg entity.ThumbnailRequestMessage,
	rawMsg []byte,
	errMsg string,
) error {
	job.MarkFailed(errMsg)
	_ = uc.repo.Update(ctx, job)

	_ = uc.dlq.PublishToDLQ(ctx, rawMsg, errMsg)

	uc.publishProgress(ctx, job, msg, entity.JobStatusFailed, 0, nil, errMsg, uc.logger)

	metrics.JobsProcessedTotal.WithLabelValues("dlq").Inc()

	if msg.UserEmail != "" {
		_ = uc.notifier.NotifyFailure(ctx, msg.UserEmail, job.ID.String(), msg.VideoKey, errMsg)
	}

	return nil
}

func (uc *ThumbnailUseCase) publishProgress(
	ctx context.Context,
	job *entity.ThumbnailJob,
	msg entity.ThumbnailRequestMessage,
	status entity.JobStatus,
	attempted int,
	covers []entity.CoverRef,
	errMsg string,
	log *zap.Logger,
) {
	extracted := 0
	for _, c := range covers {
		if c.Key != "" {
			extracted++
		}
	}
	progressMsg := entity.ThumbnailProgressMessage{
		JobID:        job.ID,
		UserID:       job.UserID,
		Status:       status,
		VideoKey:     job.VideoKey,
		Kind:         job.Kind,
		Covers:       covers,
		Requested:    job.Requested,
		Attempted:    attempted,
		Extracted:    extracted,
		ErrorMessage: errMsg,
		Attempt:      job.Attempt,
		MaxAttempts:  job.MaxAttempts,
	}
	data, _ := json.Marshal(progressMsg)
	if err := uc.progress.PublishProgress(ctx, data); err != nil {
		log.Error("failed to publish progress", zap.Error(err))
	}
}
