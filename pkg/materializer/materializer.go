// Package materializer turns a resolved selection into a local media file:
// it downloads the chosen stream URLs and, for separate video and audio
// streams, remuxes them into a single container with FFmpeg.
package materializer

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"media-acquire-go/pkg/httpclient"
	"media-acquire-go/pkg/interfaces"
	"media-acquire-go/pkg/logging"
	"media-acquire-go/pkg/types"
)

// FFmpegMaterializer downloads streams and merges them with FFmpeg.
type FFmpegMaterializer struct {
	client     *httpclient.Client
	log        *logging.Logger
	ffmpegPath string
	userAgent  string
}

// New creates a materializer. ffmpegPath defaults to "ffmpeg" on PATH.
func New(client *httpclient.Client, ffmpegPath string, log *logging.Logger) *FFmpegMaterializer {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &FFmpegMaterializer{
		client:     client,
		log:        log.WithComponent("materializer"),
		ffmpegPath: ffmpegPath,
		userAgent:  "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	}
}

// Materialize writes the selected media to a file under outputDir and
// returns its path. Separate streams are fetched to temp files and remuxed;
// a single stream is fetched directly.
func (m *FFmpegMaterializer) Materialize(ctx context.Context, media *types.ResolvedMedia, outputDir string) (string, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}

	start := time.Now()
	base := safeFilename(media.Info.Title, media.Info.ID)

	if media.NeedsMerge {
		if media.Video == nil || media.Audio == nil {
			return "", fmt.Errorf("merge requested but a stream is missing")
		}
		out := filepath.Join(outputDir, base+".mp4")
		if err := m.downloadAndMerge(ctx, media.Video, media.Audio, out); err != nil {
			return "", err
		}
		m.log.Info("materialized merged media",
			"path", out,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return out, nil
	}

	single := media.Video
	if single == nil {
		single = media.Audio
	}
	if single == nil {
		return "", fmt.Errorf("resolved media has no streams")
	}

	ext := single.Container
	if ext == "" {
		ext = "mp4"
	}
	out := filepath.Join(outputDir, base+"."+ext)
	if err := m.download(ctx, single.URL, out); err != nil {
		return "", err
	}
	m.log.Info("materialized media",
		"path", out,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return out, nil
}

// downloadAndMerge fetches both streams then remuxes without re-encoding.
func (m *FFmpegMaterializer) downloadAndMerge(ctx context.Context, video, audio *types.Rendition, outputPath string) error {
	tmpDir, err := os.MkdirTemp(filepath.Dir(outputPath), ".merge-*")
	if err != nil {
		return fmt.Errorf("create temp directory: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	videoPath := filepath.Join(tmpDir, "video."+containerOr(video.Container, "mp4"))
	audioPath := filepath.Join(tmpDir, "audio."+containerOr(audio.Container, "m4a"))

	if err := m.download(ctx, video.URL, videoPath); err != nil {
		return fmt.Errorf("download video stream: %w", err)
	}
	if err := m.download(ctx, audio.URL, audioPath); err != nil {
		return fmt.Errorf("download audio stream: %w", err)
	}
	return m.merge(ctx, videoPath, audioPath, outputPath)
}

// download streams url to path. Partial files are removed on failure.
func (m *FFmpegMaterializer) download(ctx context.Context, url, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create download request: %w", err)
	}
	req.Header.Set("User-Agent", m.userAgent)

	resp, err := m.client.For("").Do(req)
	if err != nil {
		return fmt.Errorf("download request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		return fmt.Errorf("download failed: HTTP %d", resp.StatusCode)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}

	written, err := io.Copy(f, resp.Body)
	closeErr := f.Close()
	if err != nil {
		os.Remove(path)
		return fmt.Errorf("write stream: %w", err)
	}
	if closeErr != nil {
		os.Remove(path)
		return fmt.Errorf("close output file: %w", closeErr)
	}

	m.log.Debug("stream downloaded", "path", path, "bytes", written)
	return nil
}

// merge remuxes video and audio into one container, copying both streams.
func (m *FFmpegMaterializer) merge(ctx context.Context, videoPath, audioPath, outputPath string) error {
	args := []string{
		"-hide_banner",
		"-loglevel", "warning",
		"-y",
		"-i", videoPath,
		"-i", audioPath,
		"-c", "copy",
		"-movflags", "+faststart",
		outputPath,
	}

	m.log.Info("merging streams", "output", outputPath)

	cmd := exec.CommandContext(ctx, m.ffmpegPath, args...)
	cmd.Stderr = &ffmpegLogger{log: m.log}

	if err := cmd.Run(); err != nil {
		os.Remove(outputPath)
		return fmt.Errorf("ffmpeg merge failed: %w", err)
	}
	return nil
}

func containerOr(container, fallback string) string {
	if container == "" {
		return fallback
	}
	return container
}

// safeFilename builds a filesystem-safe base name from the title, falling
// back to the video ID.
func safeFilename(title, id string) string {
	var b strings.Builder
	for _, r := range title {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ', r == '-', r == '_', r == '.':
			b.WriteRune('_')
		}
	}
	name := strings.Trim(b.String(), "_")
	if len(name) > 80 {
		name = name[:80]
	}
	if name == "" {
		return id
	}
	return name + "_" + id
}

// ffmpegLogger captures FFmpeg stderr output for logging.
type ffmpegLogger struct {
	log *logging.Logger
}

func (l *ffmpegLogger) Write(p []byte) (n int, err error) {
	msg := strings.TrimSpace(string(p))
	if msg != "" {
		l.log.Debug("ffmpeg output", "output", msg)
	}
	return len(p), nil
}

var _ interfaces.Materializer = (*FFmpegMaterializer)(nil)
