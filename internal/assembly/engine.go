package assembly

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"clipforge/internal/config"
	"clipforge/internal/logging"
	"clipforge/internal/services"
)

// Clip is one ordered input to assembly: raw bytes plus a label used for
// filenames and diagnostics.
type Clip struct {
	Label string
	Data  []byte
}

// Engine turns N ordered raw clips into one validated final artifact by
// shelling out to ffmpeg. Every invocation works inside its own scoped
// directory under the staging root, removed on every exit path.
type Engine struct {
	ffmpeg     string
	ffprobe    string
	stagingDir string

	blackMinDuration float64
	blackPixelRatio  float64

	logger *slog.Logger
}

// NewEngine builds an assembly engine from configuration.
func NewEngine(cfg *config.Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = logging.NewNop()
	}
	minDuration := cfg.Assembly.BlackMinDuration
	if minDuration <= 0 {
		minDuration = 0.1
	}
	pixelRatio := cfg.Assembly.BlackPixelRatio
	if pixelRatio <= 0 {
		pixelRatio = 0.98
	}
	return &Engine{
		ffmpeg:           cfg.FFmpegBinary(),
		ffprobe:          cfg.FFprobeBinary(),
		stagingDir:       cfg.Paths.StagingDir,
		blackMinDuration: minDuration,
		blackPixelRatio:  pixelRatio,
		logger:           logger.With(logging.String(logging.FieldComponent, "assembly")),
	}
}

// Concatenate joins the clips in input order into a single re-encoded
// artifact with one video and one audio stream, returning its bytes.
func (e *Engine) Concatenate(ctx context.Context, clips []Clip) ([]byte, error) {
	if len(clips) == 0 {
		return nil, services.Wrap(services.ErrValidation, "assembly", "concatenate", "no clips provided", nil)
	}
	for i, clip := range clips {
		if len(clip.Data) == 0 {
			return nil, services.Wrap(services.ErrValidation, "assembly", "concatenate",
				fmt.Sprintf("clip %d (%s) is empty", i, clip.Label), nil)
		}
	}

	workDir, cleanup, err := e.scopedDir("concat")
	if err != nil {
		return nil, err
	}
	defer cleanup()

	listPath := filepath.Join(workDir, "clips.txt")
	var list strings.Builder
	for i, clip := range clips {
		name := fmt.Sprintf("clip_%03d.mp4", i)
		if err := os.WriteFile(filepath.Join(workDir, name), clip.Data, 0o644); err != nil {
			return nil, services.Wrap(services.ErrTransient, "assembly", "concatenate", "write clip", err)
		}
		fmt.Fprintf(&list, "file '%s'\n", name)
	}
	if err := os.WriteFile(listPath, []byte(list.String()), 0o644); err != nil {
		return nil, services.Wrap(services.ErrTransient, "assembly", "concatenate", "write concat list", err)
	}

	outputPath := filepath.Join(workDir, "assembled.mp4")
	args := []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-crf", "20",
		"-pix_fmt", "yuv420p",
		"-c:a", "aac",
		"-movflags", "+faststart",
		outputPath,
	}
	if _, err := e.run(ctx, e.ffmpeg, args...); err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "assembly", "concatenate", "ffmpeg concat", err)
	}

	output, err := os.ReadFile(outputPath)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "assembly", "concatenate", "read assembled output", err)
	}
	e.logger.Debug("clips assembled",
		logging.Int("clips", len(clips)),
		logging.Int("bytes", len(output)))
	return output, nil
}

// Duration measures a buffer's playback length in seconds via ffprobe.
func (e *Engine) Duration(ctx context.Context, buffer []byte) (float64, error) {
	workDir, cleanup, err := e.scopedDir("probe")
	if err != nil {
		return 0, err
	}
	defer cleanup()

	inputPath := filepath.Join(workDir, "input.mp4")
	if err := os.WriteFile(inputPath, buffer, 0o644); err != nil {
		return 0, services.Wrap(services.ErrTransient, "assembly", "probe", "write input", err)
	}
	output, err := e.run(ctx, e.ffprobe,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		inputPath,
	)
	if err != nil {
		return 0, services.Wrap(services.ErrExternalTool, "assembly", "probe", "ffprobe duration", err)
	}
	return parseDuration(output)
}

// scopedDir creates a per-call working directory under the staging root.
// The returned cleanup removes it and is safe to call on every exit path.
func (e *Engine) scopedDir(purpose string) (string, func(), error) {
	root := e.stagingDir
	if root != "" {
		if err := os.MkdirAll(root, 0o755); err != nil {
			return "", nil, services.Wrap(services.ErrConfiguration, "assembly", purpose, "create staging root", err)
		}
	}
	workDir, err := os.MkdirTemp(root, "assembly-"+purpose+"-")
	if err != nil {
		return "", nil, services.Wrap(services.ErrTransient, "assembly", purpose, "create work dir", err)
	}
	return workDir, func() { _ = os.RemoveAll(workDir) }, nil
}

// run executes an external binary and returns its combined output. The
// output is returned even on success because ffmpeg reports filter results
// on stderr.
func (e *Engine) run(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	output, err := cmd.CombinedOutput()
	if err != nil {
		return string(output), fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(output)))
	}
	return string(output), nil
}
