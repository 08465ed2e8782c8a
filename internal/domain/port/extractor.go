package port

import (
	"context"

	"github.com/lunigy/thumbnail-service/internal/domain/entity"
)

// FrameExtractor pulls a single frame out of a video as compressed image
// bytes. Implementations own their temp files: nothing they create inside
// scratchDir survives the call, on any path. An error simply means the frame
// is absent; callers never abort a batch on it.
type FrameExtractor interface {
	ExtractFrame(ctx context.Context, req entity.ExtractionRequest, scratchDir string) ([]byte, error)
}

// DurationProber reads the playable duration of a video file.
type DurationProber interface {
	ProbeDurationMs(ctx context.Context, videoPath string) (int64, error)
}
