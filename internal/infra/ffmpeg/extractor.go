package ffmpeg

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/lunigy/thumbnail-service/internal/domain/entity"
	"go.uber.org/zap"
)

type Extractor struct {
	ffmpegBin  string
	ffprobeBin string
	logger     *zap.Logger
}

func NewExtractor(ffmpegBin, ffprobeBin string, logger *zap.Logger) *Extractor {
	return &Extractor{ffmpegBin: ffmpegBin, ffprobeBin: ffprobeBin, logger: logger}
}

// ExtractFrame seeks to the requested timestamp and extracts one frame as a
// JPEG, returning its bytes. The output file lives in scratchDir only for the
// duration of the call; it is removed on every path, including failures.
func (e *Extractor) ExtractFrame(ctx context.Context, req entity.ExtractionRequest, scratchDir string) ([]byte, error) {
	outPath := filepath.Join(scratchDir, outputName(req.TimestampMs))

	// -ss before -i so ffmpeg seeks on the demuxer instead of decoding
	// everything up to the timestamp.
	cmd := exec.CommandContext(ctx, e.ffmpegBin,
		"-ss", seekSeconds(req.TimestampMs),
		"-i", req.SourcePath,
		"-vframes", "1",
		"-q:v", strconv.Itoa(nativeQuality(req.Quality)),
		"-an",
		"-y",
		outPath,
	)

	output, err := cmd.CombinedOutput()
	if err != nil {
		e.logger.Warn("ffmpeg frame extraction failed",
			zap.String("source", req.SourcePath),
			zap.Int64("timestamp_ms", req.TimestampMs),
			zap.Error(err),
			zap.ByteString("ffmpeg_output", output),
		)
		e.removeQuiet(outPath)
		return nil, fmt.Errorf("ffmpeg: %w", err)
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		if os.IsNotExist(err) {
			e.logger.Warn("ffmpeg reported success but produced no output file",
				zap.String("source", req.SourcePath),
				zap.Int64("timestamp_ms", req.TimestampMs),
				zap.String("out_path", outPath),
			)
		} else {
			e.removeQuiet(outPath)
		}
		return nil, fmt.Errorf("read frame: %w", err)
	}
	e.removeQuiet(outPath)

	return data, nil
}

// ProbeDurationMs reads the container duration via ffprobe.
func (e *Extractor) ProbeDurationMs(ctx context.Context, videoPath string) (int64, error) {
	cmd := exec.CommandContext(ctx, e.ffprobeBin,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		videoPath,
	)
	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe: %w", err)
	}

	secs, err := strconv.ParseFloat(strings.TrimSpace(string(output)), 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration: %w", err)
	}
	return int64(secs * 1000), nil
}

func (e *Extractor) removeQuiet(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		e.logger.Warn("could not delete scratch file",
			zap.String("path", path),
			zap.Error(err),
		)
	}
}

// outputName yields a per-call unique filename so concurrent and repeated
// extractions in one scratch dir never collide.
func outputName(timestampMs int64) string {
	return fmt.Sprintf("thumbnail_%d_%d.jpg", time.Now().UnixMilli(), timestampMs)
}

// seekSeconds renders a millisecond timestamp as a fractional-second -ss
// argument, e.g. 2500 -> "2.500".
func seekSeconds(timestampMs int64) string {
	return strconv.FormatFloat(float64(timestampMs)/1000.0, 'f', 3, 64)
}

// nativeQuality maps the 0-100 quality hint onto ffmpeg's -q:v scale:
// floor(hint/10)+1 capped at 10, so 0-9 -> 1, 10-19 -> 2, ..., 95-100 -> 10.
// Changing this mapping changes output size and quality for every caller.
func nativeQuality(hint int) int {
	if hint < 0 {
		hint = 0
	}
	q := hint/10 + 1
	if q > 10 {
		q = 10
	}
	return q
}
