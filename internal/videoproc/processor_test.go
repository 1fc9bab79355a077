package videoproc

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"testing"

	"github.com/fpang/media-pipeline/internal/request"
	"github.com/fpang/media-pipeline/internal/router"
)

// fakeRunner records calls and writes output to the last argument.
type fakeRunner struct {
	calls  [][]string
	output []byte
	err    error
	// failFirst makes only the first call fail.
	failFirst bool
	panicMsg  string
	inputs    [][]byte
}

func (f *fakeRunner) Run(ctx context.Context, args []string) ([]byte, error) {
	f.calls = append(f.calls, args)
	if in := argValue(args, "-i"); in != "" {
		data, _ := os.ReadFile(in)
		f.inputs = append(f.inputs, data)
	}
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	if f.err != nil && (!f.failFirst || len(f.calls) == 1) {
		return []byte("Invalid data found when processing input"), f.err
	}
	if err := os.WriteFile(args[len(args)-1], f.output, 0o600); err != nil {
		return nil, err
	}
	return nil, nil
}

func argValue(args []string, key string) string {
	i := slices.Index(args, key)
	if i < 0 || i+1 >= len(args) {
		return ""
	}
	return args[i+1]
}

func assertContains(t *testing.T, args []string, key, value string) {
	t.Helper()
	if got := argValue(args, key); got != value {
		t.Errorf("expected %s %s in args, got %q (args: %v)", key, value, got, args)
	}
}

func resolve(t *testing.T, pt request.ProcessingType, params map[string]string) router.Plan {
	t.Helper()
	p, err := router.Resolve(pt, params)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	return p
}

func assertNoStaging(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read temp dir: %v", err)
	}
	if len(entries) != 0 {
		var names []string
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("staging files leaked: %v", names)
	}
}

func TestBitrate(t *testing.T) {
	tests := []struct {
		quality string
		want    int
	}{
		{"low", 500000},
		{"medium", 1000000},
		{"high", 2000000},
		{"", 1000000},
		{"ultra", 1000000},
	}
	for _, tt := range tests {
		if got := Bitrate(tt.quality); got != tt.want {
			t.Errorf("Bitrate(%q) = %d, want %d", tt.quality, got, tt.want)
		}
	}
}

func TestApply_CompressLow(t *testing.T) {
	tmp := t.TempDir()
	runner := &fakeRunner{output: []byte("mp4-bytes")}
	p := &Processor{Runner: runner, TempDir: tmp}

	out, err := p.Apply(context.Background(), []byte("source"), resolve(t, request.VideoCompress, map[string]string{"quality": "low"}))
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if string(out) != "mp4-bytes" {
		t.Errorf("output %q", out)
	}
	args := runner.calls[0]
	assertContains(t, args, "-b:v", "500000")
	assertContains(t, args, "-c:v", "libx264")
	assertContains(t, args, "-f", "mp4")
	if string(runner.inputs[0]) != "source" {
		t.Errorf("runner saw input %q", runner.inputs[0])
	}
	assertNoStaging(t, tmp)
}

func TestApply_ArgsPerType(t *testing.T) {
	tests := []struct {
		pt     request.ProcessingType
		params map[string]string
		key    string
		value  string
	}{
		{request.AudioExtract, nil, "-c:a", "libmp3lame"},
		{request.AudioExtract, nil, "-f", "mp3"},
		{request.VideoPreview, nil, "-t", "10"},
		{request.VideoPreview, map[string]string{"duration": "4"}, "-t", "4"},
		{request.VideoThumbnail, nil, "-ss", "1"},
		{request.VideoThumbnail, nil, "-frames:v", "1"},
		{request.VideoCompress, map[string]string{"quality": "high"}, "-b:v", "2000000"},
	}
	for _, tt := range tests {
		t.Run(string(tt.pt)+tt.key, func(t *testing.T) {
			runner := &fakeRunner{output: []byte("x")}
			p := &Processor{Runner: runner, TempDir: t.TempDir()}
			if _, err := p.Apply(context.Background(), []byte("v"), resolve(t, tt.pt, tt.params)); err != nil {
				t.Fatalf("apply: %v", err)
			}
			assertContains(t, runner.calls[0], tt.key, tt.value)
		})
	}
}

func TestApply_WatermarkUsesTextFile(t *testing.T) {
	tmp := t.TempDir()
	var seenText string
	runner := &fakeRunner{output: []byte("x")}
	p := &Processor{Runner: RunnerFunc(func(ctx context.Context, args []string) ([]byte, error) {
		vf := argValue(args, "-vf")
		for _, part := range splitFilter(vf) {
			if len(part) > 9 && part[:9] == "textfile=" {
				data, _ := os.ReadFile(part[9:])
				seenText = string(data)
			}
		}
		return runner.Run(ctx, args)
	}), TempDir: tmp}

	_, err := p.Apply(context.Background(), []byte("v"), resolve(t, request.VideoWatermark, map[string]string{"text": "it's: 100%"}))
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if seenText != "it's: 100%" {
		t.Errorf("watermark text %q", seenText)
	}
	assertNoStaging(t, tmp)
}

func TestApply_FailureLeavesNoTempFiles(t *testing.T) {
	tmp := t.TempDir()
	p := &Processor{Runner: &fakeRunner{err: errors.New("exit status 1")}, TempDir: tmp}

	for _, pt := range []request.ProcessingType{request.VideoCompress, request.VideoWatermark, request.AudioExtract, request.VideoPreview, request.VideoThumbnail} {
		_, err := p.Apply(context.Background(), []byte("corrupt"), resolve(t, pt, nil))
		if !errors.Is(err, request.ErrTransformFailure) {
			t.Errorf("%s: expected ErrTransformFailure, got %v", pt, err)
		}
	}
	assertNoStaging(t, tmp)
}

func TestApply_PanicLeavesNoTempFiles(t *testing.T) {
	tmp := t.TempDir()
	p := &Processor{Runner: &fakeRunner{panicMsg: "codec crashed"}, TempDir: tmp}

	func() {
		defer func() {
			if recover() == nil {
				t.Error("expected panic to propagate")
			}
		}()
		p.Apply(context.Background(), []byte("v"), resolve(t, request.VideoCompress, nil))
	}()
	assertNoStaging(t, tmp)
}

func TestApply_EmptyOutputIsTransformFailure(t *testing.T) {
	tmp := t.TempDir()
	p := &Processor{Runner: &fakeRunner{output: nil}, TempDir: tmp}
	_, err := p.Apply(context.Background(), []byte("v"), resolve(t, request.AudioExtract, nil))
	if !errors.Is(err, request.ErrTransformFailure) {
		t.Errorf("expected ErrTransformFailure, got %v", err)
	}
	assertNoStaging(t, tmp)
}

func TestApply_ThumbnailRetriesAtZero(t *testing.T) {
	runner := &fakeRunner{err: errors.New("seek past end"), failFirst: true, output: []byte("jpg")}
	p := &Processor{Runner: runner, TempDir: t.TempDir()}
	out, err := p.Apply(context.Background(), []byte("v"), resolve(t, request.VideoThumbnail, nil))
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if string(out) != "jpg" || len(runner.calls) != 2 {
		t.Fatalf("expected retry, calls=%d out=%q", len(runner.calls), out)
	}
	assertContains(t, runner.calls[1], "-ss", "0")
}

func TestApply_CancelledIsNotTransformFailure(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := &Processor{Runner: &fakeRunner{err: errors.New("signal: killed")}, TempDir: t.TempDir()}
	_, err := p.Apply(ctx, []byte("v"), resolve(t, request.VideoCompress, nil))
	if errors.Is(err, request.ErrTransformFailure) {
		t.Error("cancellation must not be classified as a transform failure")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestApply_MissingBinaryIsNotTransformFailure(t *testing.T) {
	tests := []struct {
		name   string
		runner Runner
	}{
		{"not on PATH", &fakeRunner{err: &exec.Error{Name: "ffmpeg", Err: exec.ErrNotFound}}},
		{"missing at configured path", &fakeRunner{err: &fs.PathError{Op: "fork/exec", Path: "/opt/ffmpeg", Err: fs.ErrNotExist}}},
		{"not executable", &fakeRunner{err: &fs.PathError{Op: "fork/exec", Path: "/opt/ffmpeg", Err: fs.ErrPermission}}},
		{"exec runner with configured path", ExecRunner{Path: filepath.Join(t.TempDir(), "bin", "ffmpeg")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &Processor{Runner: tt.runner, TempDir: t.TempDir()}
			_, err := p.Apply(context.Background(), []byte("v"), resolve(t, request.AudioExtract, nil))
			if err == nil {
				t.Fatal("expected an error")
			}
			if errors.Is(err, request.ErrTransformFailure) {
				t.Errorf("missing binary must not be a transform failure: %v", err)
			}
			if !unavailable(err) {
				t.Errorf("error not recognised as unavailable ffmpeg: %v", err)
			}
		})
	}
}

func TestApply_FFmpegExitIsTransformFailure(t *testing.T) {
	p := &Processor{Runner: &fakeRunner{err: &exec.ExitError{}}, TempDir: t.TempDir()}
	_, err := p.Apply(context.Background(), []byte("v"), resolve(t, request.AudioExtract, nil))
	if !errors.Is(err, request.ErrTransformFailure) {
		t.Errorf("expected ErrTransformFailure, got %v", err)
	}
}

func TestApply_RejectsImageTypes(t *testing.T) {
	p := &Processor{Runner: &fakeRunner{}, TempDir: t.TempDir()}
	_, err := p.Apply(context.Background(), nil, resolve(t, request.Thumbnail, nil))
	if !errors.Is(err, request.ErrTransformFailure) {
		t.Errorf("expected ErrTransformFailure, got %v", err)
	}
}

func splitFilter(vf string) []string {
	var parts []string
	start := 0
	for i := 0; i < len(vf); i++ {
		if vf[i] == ':' {
			parts = append(parts, vf[start:i])
			start = i + 1
		}
	}
	return append(parts, vf[start:])
}
