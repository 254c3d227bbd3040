package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"

	"shufflegen/types"
)

// commandRunner executes an external tool and returns its stdout. Production
// code uses execRunner; tests substitute a stub so no real ffmpeg/ffprobe or
// speech binary is needed.
type commandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%s failed: %w: %s", name, err, stderr.String())
	}
	return stdout.Bytes(), nil
}

// probeDurationMS asks ffprobe for a file's duration in milliseconds.
func probeDurationMS(ctx context.Context, run commandRunner, ffprobePath, path string) (uint32, error) {
	out, err := run(ctx, ffprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "json",
		path,
	)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", types.ErrFormat, err)
	}

	var probeData struct {
		Format struct {
			Duration string `json:"duration"`
		} `json:"format"`
	}
	if err := json.Unmarshal(out, &probeData); err != nil {
		return 0, fmt.Errorf("%w: unreadable ffprobe output for %s: %v", types.ErrFormat, path, err)
	}
	if probeData.Format.Duration == "" {
		return 0, fmt.Errorf("%w: no duration in ffprobe output for %s", types.ErrFormat, path)
	}
	seconds, err := strconv.ParseFloat(probeData.Format.Duration, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: bad duration %q for %s: %v", types.ErrFormat, probeData.Format.Duration, path, err)
	}
	return uint32(seconds * 1000), nil
}
