package assembly

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"clipforge/internal/logging"
	"clipforge/internal/services"
)

// Region is one detected defect span in an assembled artifact.
type Region struct {
	Start    float64
	End      float64
	Duration float64
}

// Leading reports whether the region sits at the very beginning of the
// timeline, which is the only kind of defect the pipeline auto-corrects.
func (r Region) Leading() bool {
	return r.Start < 0.05
}

var blackDetectPattern = regexp.MustCompile(`black_start:([0-9.]+)\s+black_end:([0-9.]+)\s+black_duration:([0-9.]+)`)

// DetectArtifacts runs black-frame analysis over the buffer and returns the
// detected regions in timeline order. An empty result means a clean artifact.
func (e *Engine) DetectArtifacts(ctx context.Context, buffer []byte) ([]Region, error) {
	if len(buffer) == 0 {
		return nil, services.Wrap(services.ErrValidation, "assembly", "detect", "empty buffer", nil)
	}

	workDir, cleanup, err := e.scopedDir("detect")
	if err != nil {
		return nil, err
	}
	defer cleanup()

	inputPath := filepath.Join(workDir, "input.mp4")
	if err := os.WriteFile(inputPath, buffer, 0o644); err != nil {
		return nil, services.Wrap(services.ErrTransient, "assembly", "detect", "write input", err)
	}

	filter := fmt.Sprintf("blackdetect=d=%.3f:pic_th=%.3f", e.blackMinDuration, e.blackPixelRatio)
	output, err := e.run(ctx, e.ffmpeg,
		"-hide_banner",
		"-i", inputPath,
		"-vf", filter,
		"-an",
		"-f", "null",
		"-",
	)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "assembly", "detect", "ffmpeg blackdetect", err)
	}

	regions := parseBlackDetect(output)
	if len(regions) > 0 {
		e.logger.Debug("artifact regions detected", logging.Int("regions", len(regions)))
	}
	return regions, nil
}

// TrimLeading removes the first seconds of the buffer with a stream copy,
// avoiding a second re-encode of the whole artifact.
func (e *Engine) TrimLeading(ctx context.Context, buffer []byte, seconds float64) ([]byte, error) {
	if len(buffer) == 0 {
		return nil, services.Wrap(services.ErrValidation, "assembly", "trim", "empty buffer", nil)
	}
	if seconds <= 0 {
		return nil, services.Wrap(services.ErrValidation, "assembly", "trim",
			fmt.Sprintf("invalid trim duration %.3f", seconds), nil)
	}

	workDir, cleanup, err := e.scopedDir("trim")
	if err != nil {
		return nil, err
	}
	defer cleanup()

	inputPath := filepath.Join(workDir, "input.mp4")
	outputPath := filepath.Join(workDir, "trimmed.mp4")
	if err := os.WriteFile(inputPath, buffer, 0o644); err != nil {
		return nil, services.Wrap(services.ErrTransient, "assembly", "trim", "write input", err)
	}

	if _, err := e.run(ctx, e.ffmpeg,
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-ss", strconv.FormatFloat(seconds, 'f', 3, 64),
		"-i", inputPath,
		"-c", "copy",
		outputPath,
	); err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "assembly", "trim", "ffmpeg trim", err)
	}

	output, err := os.ReadFile(outputPath)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "assembly", "trim", "read trimmed output", err)
	}
	return output, nil
}

// parseBlackDetect extracts structured regions from ffmpeg's blackdetect
// filter output, which reports on stderr in the form
// "black_start:0 black_end:0.52 black_duration:0.52".
func parseBlackDetect(output string) []Region {
	matches := blackDetectPattern.FindAllStringSubmatch(output, -1)
	if len(matches) == 0 {
		return nil
	}
	regions := make([]Region, 0, len(matches))
	for _, match := range matches {
		start, err1 := strconv.ParseFloat(match[1], 64)
		end, err2 := strconv.ParseFloat(match[2], 64)
		duration, err3 := strconv.ParseFloat(match[3], 64)
		if err1 != nil || err2 != nil || err3 != nil {
			continue
		}
		regions = append(regions, Region{Start: start, End: end, Duration: duration})
	}
	return regions
}

func parseDuration(output string) (float64, error) {
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if value, err := strconv.ParseFloat(line, 64); err == nil {
			return value, nil
		}
	}
	return 0, fmt.Errorf("no duration in ffprobe output %q", strings.TrimSpace(output))
}
