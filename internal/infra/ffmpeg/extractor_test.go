package ffmpeg

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/lunigy/thumbnail-service/internal/domain/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNativeQuality(t *testing.T) {
	cases := []struct {
		hint, want int
	}{
		{0, 1}, {5, 1}, {9, 1},
		{10, 2}, {19, 2},
		{50, 6},
		{90, 10}, {95, 10}, {100, 10},
		{-1, 1}, {500, 10},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, nativeQuality(c.hint), "hint=%d", c.hint)
	}
}

func TestSeekSeconds(t *testing.T) {
	assert.Equal(t, "0.000", seekSeconds(0))
	assert.Equal(t, "2.500", seekSeconds(2500))
	assert.Equal(t, "10.000", seekSeconds(10000))
	assert.Equal(t, "0.001", seekSeconds(1))
}

func TestOutputName(t *testing.T) {
	before := time.Now().UnixMilli()
	name := outputName(4200)

	assert.True(t, strings.HasPrefix(name, "thumbnail_"))
	assert.True(t, strings.HasSuffix(name, "_4200.jpg"))

	var epoch, ts int64
	n, err := fmt.Sscanf(name, "thumbnail_%d_%d.jpg", &epoch, &ts)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	assert.GreaterOrEqual(t, epoch, before)
	assert.Equal(t, int64(4200), ts)
}

// stubDecoder writes a fake decoder script so extraction runs end to end
// without a real ffmpeg. The script body decides what the "tool" does.
func stubDecoder(t *testing.T, script string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ffmpeg-stub")
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func TestExtractFrameSuccessCleansScratch(t *testing.T) {
	// The last argument is the output path; write image bytes there.
	stub := stubDecoder(t, "#!/bin/sh\nfor out in \"$@\"; do :; done\nprintf 'jpegbytes' > \"$out\"\n")
	scratch := t.TempDir()
	e := NewExtractor(stub, "ffprobe", zap.NewNop())

	data, err := e.ExtractFrame(context.Background(), entity.ExtractionRequest{
		SourcePath:  "clip.mp4",
		TimestampMs: 2500,
		Quality:     50,
	}, scratch)

	require.NoError(t, err)
	assert.Equal(t, []byte("jpegbytes"), data)

	entries, err := os.ReadDir(scratch)
	require.NoError(t, err)
	assert.Empty(t, entries, "no scratch files may survive a successful extraction")
}

func TestExtractFrameMissingOutputTreatedAsAbsent(t *testing.T) {
	// Tool reports success but writes nothing.
	stub := stubDecoder(t, "#!/bin/sh\nexit 0\n")
	scratch := t.TempDir()
	e := NewExtractor(stub, "ffprobe", zap.NewNop())

	data, err := e.ExtractFrame(context.Background(), entity.ExtractionRequest{
		SourcePath:  "clip.mp4",
		TimestampMs: 1000,
		Quality:     10,
	}, scratch)

	assert.Error(t, err)
	assert.Nil(t, data)

	entries, err := os.ReadDir(scratch)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestExtractFrameToolFailureLeavesNoFiles(t *testing.T) {
	scratch := t.TempDir()
	e := NewExtractor("ffmpeg-binary-that-does-not-exist", "ffprobe", zap.NewNop())

	data, err := e.ExtractFrame(context.Background(), entity.ExtractionRequest{
		SourcePath:  "/nonexistent/input.mp4",
		TimestampMs: 1500,
		Quality:     50,
	}, scratch)

	assert.Error(t, err)
	assert.Nil(t, data)

	entries, err := os.ReadDir(scratch)
	require.NoError(t, err)
	assert.Empty(t, entries, "no scratch files may survive a failed extraction")
}

func TestProbeDurationMsToolFailure(t *testing.T) {
	e := NewExtractor("ffmpeg", "ffprobe-binary-that-does-not-exist", zap.NewNop())

	_, err := e.ProbeDurationMs(context.Background(), "/nonexistent/input.mp4")
	assert.Error(t, err)
}
