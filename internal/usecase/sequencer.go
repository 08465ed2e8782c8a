package usecase

import (
	"context"
	"os"

	"github.com/lunigy/thumbnail-service/internal/domain/entity"
	"github.com/lunigy/thumbnail-service/internal/domain/port"
	"github.com/lunigy/thumbnail-service/internal/infra/metrics"
	"go.uber.org/zap"
)

// extractBatch runs one extraction per timestamp, strictly in order, never
// concurrently. Successes accumulate into an ordered collection; after every
// attempt emit receives the attempt count and a snapshot of the collection,
// so a batch of N timestamps produces exactly N snapshots, each at most one
// entry longer than the last. A failed attempt contributes no entry and
// never aborts the batch. The scratch dir is shared across the batch and is
// not deleted here; per-file cleanup is owned by the extractor.
func extractBatch(
	ctx context.Context,
	extractor port.FrameExtractor,
	sourcePath string,
	timestamps []int64,
	quality int,
	scratchDir string,
	log *zap.Logger,
	emit func(attempted int, entries []entity.CoverEntry),
) []entity.CoverEntry {
	entries := make([]entity.CoverEntry, 0, len(timestamps))

	for i, ts := range timestamps {
		data, err := extractor.ExtractFrame(ctx, entity.ExtractionRequest{
			SourcePath:  sourcePath,
			TimestampMs: ts,
			Quality:     quality,
		}, scratchDir)

		switch {
		case err != nil:
			log.Warn("frame extraction yielded no image",
				zap.Int64("timestamp_ms", ts),
				zap.Error(err),
			)
			metrics.ThumbnailsFailedTotal.Inc()
		case len(data) == 0:
			log.Warn("frame extraction returned empty image",
				zap.Int64("timestamp_ms", ts),
			)
			metrics.ThumbnailsFailedTotal.Inc()
		default:
			entries = append(entries, entity.CoverEntry{Data: data, TimestampMs: ts})
			metrics.ThumbnailsExtractedTotal.Inc()
		}

		if emit != nil {
			snapshot := make([]entity.CoverEntry, len(entries))
			copy(snapshot, entries)
			emit(i+1, snapshot)
		}
	}

	return entries
}

const (
	// DefaultCoverTimestampMs is where a cover frame is taken from when the
	// caller does not care.
	DefaultCoverTimestampMs int64 = 0
	// DefaultCoverQuality is the 0-100 hint used for single cover fetches.
	DefaultCoverQuality = 10
)

// FetchCover extracts exactly one cover frame from a local video file. It
// never fails the caller: on any error the returned entry has no image data
// but keeps the requested timestamp. Scratch space comes from the platform
// temp dir.
func FetchCover(
	ctx context.Context,
	extractor port.FrameExtractor,
	sourcePath string,
	timestampMs int64,
	quality int,
	log *zap.Logger,
) entity.CoverEntry {
	data, err := extractor.ExtractFrame(ctx, entity.ExtractionRequest{
		SourcePath:  sourcePath,
		TimestampMs: timestampMs,
		Quality:     quality,
	}, os.TempDir())
	if err != nil {
		log.Warn("cover fetch yielded no image",
			zap.String("source", sourcePath),
			zap.Int64("timestamp_ms", timestampMs),
			zap.Error(err),
		)
		return entity.CoverEntry{TimestampMs: timestampMs}
	}
	return entity.CoverEntry{Data: data, TimestampMs: timestampMs}
}
