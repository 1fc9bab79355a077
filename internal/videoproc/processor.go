// Package videoproc is the video engine. Every transform shells out to
// ffmpeg over files in a private staging directory that is removed on every
// exit path, including panics in the runner.
package videoproc

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/image/font/gofont/gobold"

	"github.com/fpang/media-pipeline/internal/engine"
	"github.com/fpang/media-pipeline/internal/request"
	"github.com/fpang/media-pipeline/internal/router"
)

// Processor implements engine.Engine for video processing types.
type Processor struct {
	Runner Runner
	// TempDir is the parent of staging directories; "" means os.TempDir().
	TempDir string
}

var _ engine.Engine = (*Processor)(nil)

// New returns a Processor that runs the ffmpeg binary at ffmpegPath, or the
// one on PATH when empty.
func New(ffmpegPath, tempDir string) *Processor {
	return &Processor{Runner: ExecRunner{Path: ffmpegPath}, TempDir: tempDir}
}

// staging is the scoped set of files one transform works in.
type staging struct {
	dir    string
	input  string
	output string
}

func (s *staging) path(name string) string {
	return filepath.Join(s.dir, name)
}

// stage writes data to a fresh staging directory, runs fn, reads the output
// file, and removes the directory whatever fn does.
func (p *Processor) stage(data []byte, outExt string, fn func(s *staging) error) (out []byte, err error) {
	dir, err := os.MkdirTemp(p.TempDir, "media-pipeline-*")
	if err != nil {
		return nil, fmt.Errorf("create staging dir: %w", err)
	}
	defer release(dir)

	s := &staging{
		dir:    dir,
		input:  filepath.Join(dir, "input"),
		output: filepath.Join(dir, "output"+outExt),
	}
	if err := os.WriteFile(s.input, data, 0o600); err != nil {
		return nil, fmt.Errorf("write staging input: %w", err)
	}
	if err := fn(s); err != nil {
		return nil, err
	}
	out, err = os.ReadFile(s.output)
	if err != nil {
		return nil, fmt.Errorf("read staging output: %w", err)
	}
	return out, nil
}

func release(dir string) {
	if err := os.RemoveAll(dir); err != nil {
		log.Warn().Err(err).Str("dir", dir).Msg("Failed to remove staging dir")
		return
	}
	log.Debug().Str("dir", dir).Msg("Staging dir removed")
}

// Apply runs the ffmpeg transform for plan over data.
func (p *Processor) Apply(ctx context.Context, data []byte, plan router.Plan) ([]byte, error) {
	start := time.Now()
	var run func(ctx context.Context, s *staging) error

	switch plan.Type {
	case request.VideoThumbnail:
		run = p.frame
	case request.VideoWatermark:
		text := plan.Params.Get(router.ParamText)
		run = func(ctx context.Context, s *staging) error {
			fontFile, textFile := s.path("font.ttf"), s.path("text.txt")
			if err := os.WriteFile(fontFile, gobold.TTF, 0o600); err != nil {
				return fmt.Errorf("write font: %w", err)
			}
			if err := os.WriteFile(textFile, []byte(text), 0o600); err != nil {
				return fmt.Errorf("write text: %w", err)
			}
			return p.ffmpeg(ctx, plan.Type, watermarkArgs(s.input, s.output, fontFile, textFile))
		}
	case request.VideoCompress:
		bitrate := Bitrate(plan.Params.Get(router.ParamQuality))
		run = func(ctx context.Context, s *staging) error {
			return p.ffmpeg(ctx, plan.Type, compressArgs(s.input, s.output, bitrate))
		}
	case request.AudioExtract:
		run = func(ctx context.Context, s *staging) error {
			return p.ffmpeg(ctx, plan.Type, audioArgs(s.input, s.output))
		}
	case request.VideoPreview:
		seconds := plan.Params.Int(router.ParamDuration)
		run = func(ctx context.Context, s *staging) error {
			return p.ffmpeg(ctx, plan.Type, previewArgs(s.input, s.output, seconds))
		}
	default:
		return nil, engine.Failed(plan.Type, "dispatch", fmt.Errorf("not a video processing type"))
	}

	out, err := p.stage(data, outputExt(plan.ContentType), func(s *staging) error {
		return run(ctx, s)
	})
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, engine.Failed(plan.Type, "encode", errors.New("ffmpeg produced no output"))
	}

	log.Info().
		Str("processingType", plan.Type.String()).
		Int("input_bytes", len(data)).
		Int("output_bytes", len(out)).
		Dur("elapsed", time.Since(start)).
		Msg("Video transform complete")
	return out, nil
}

// frame grabs one frame at 1s, retrying at 0s for clips shorter than that.
func (p *Processor) frame(ctx context.Context, s *staging) error {
	err := p.ffmpeg(ctx, request.VideoThumbnail, frameArgs(s.input, s.output, thumbnailSeek))
	if err == nil {
		if info, statErr := os.Stat(s.output); statErr == nil && info.Size() > 0 {
			return nil
		}
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil && unavailable(err) {
		return err
	}
	log.Debug().Err(err).Msg("Frame at 1s unavailable, retrying at 0s")
	return p.ffmpeg(ctx, request.VideoThumbnail, frameArgs(s.input, s.output, "0"))
}

// ffmpeg runs the runner and classifies failures. Cancellation stays a
// context error so the message is redelivered; a missing binary stays an
// infrastructure error; everything else is a transform failure.
func (p *Processor) ffmpeg(ctx context.Context, t request.ProcessingType, args []string) error {
	output, err := p.Runner.Run(ctx, args)
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("ffmpeg interrupted: %w", ctxErr)
	}
	if unavailable(err) {
		log.Error().Err(err).Str("processingType", t.String()).Msg("FFmpeg could not be started")
		return err
	}
	log.Warn().Err(err).Str("output", truncate(string(output), 2000)).Str("processingType", t.String()).Msg("FFmpeg transform failed")
	return engine.Failed(t, "ffmpeg", err)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
