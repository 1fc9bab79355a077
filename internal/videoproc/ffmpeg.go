package videoproc

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os/exec"
	"time"

	"github.com/rs/zerolog/log"
)

// ErrUnavailable marks an ffmpeg binary that could not be started. It is an
// infrastructure problem, not a property of the input.
var ErrUnavailable = errors.New("ffmpeg unavailable")

// unavailable reports whether err means the binary never ran: not on PATH,
// missing at the configured path, or not executable.
func unavailable(err error) bool {
	if errors.Is(err, ErrUnavailable) || errors.Is(err, exec.ErrNotFound) {
		return true
	}
	var exit *exec.ExitError
	if errors.As(err, &exit) {
		return false
	}
	return errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission)
}

// Runner executes ffmpeg with the given arguments and returns its combined
// output. Tests substitute a fake.
type Runner interface {
	Run(ctx context.Context, args []string) ([]byte, error)
}

// ExecRunner runs the ffmpeg binary at Path (or "ffmpeg" from PATH).
type ExecRunner struct {
	Path string
}

func (r ExecRunner) binary() (string, error) {
	if r.Path != "" {
		return r.Path, nil
	}
	path, err := exec.LookPath("ffmpeg")
	if err != nil {
		return "", fmt.Errorf("%w: not found in PATH: %w", ErrUnavailable, err)
	}
	return path, nil
}

func (r ExecRunner) Run(ctx context.Context, args []string) ([]byte, error) {
	bin, err := r.binary()
	if err != nil {
		return nil, err
	}
	log.Debug().Strs("args", args).Msg("Running FFmpeg")
	start := time.Now()
	cmd := exec.CommandContext(ctx, bin, args...)
	output, err := cmd.CombinedOutput()
	if err != nil && unavailable(err) {
		return output, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if err != nil {
		return output, fmt.Errorf("ffmpeg failed: %w", err)
	}
	log.Debug().Dur("elapsed", time.Since(start)).Msg("FFmpeg finished")
	return output, nil
}

// CheckFFmpeg reports whether an ffmpeg binary can be resolved.
func CheckFFmpeg(path string) error {
	bin, err := ExecRunner{Path: path}.binary()
	if err != nil {
		return err
	}
	if _, err := exec.LookPath(bin); err != nil {
		return fmt.Errorf("ffmpeg at %s is not executable: %w", bin, err)
	}
	log.Debug().Str("path", bin).Msg("ffmpeg found")
	return nil
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, args []string) ([]byte, error)

func (f RunnerFunc) Run(ctx context.Context, args []string) ([]byte, error) {
	return f(ctx, args)
}
