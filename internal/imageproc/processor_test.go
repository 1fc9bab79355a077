package imageproc

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/fpang/media-pipeline/internal/request"
	"github.com/fpang/media-pipeline/internal/router"
)

func testPNG(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode fixture: %v", err)
	}
	return buf.Bytes()
}

func plan(t *testing.T, pt request.ProcessingType, params map[string]string) router.Plan {
	t.Helper()
	p, err := router.Resolve(pt, params)
	if err != nil {
		t.Fatalf("resolve %s: %v", pt, err)
	}
	return p
}

func decode(t *testing.T, data []byte) (image.Image, string) {
	t.Helper()
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode output: %v", err)
	}
	return img, format
}

func TestApply_ThumbnailAndResize(t *testing.T) {
	src := testPNG(t, 400, 300, color.RGBA{200, 10, 10, 255})
	tests := []struct {
		name   string
		pt     request.ProcessingType
		params map[string]string
		wantW  int
		wantH  int
	}{
		{"thumbnail defaults", request.Thumbnail, nil, 200, 150},
		{"thumbnail custom", request.Thumbnail, map[string]string{"width": "100", "height": "100"}, 100, 75},
		{"resize defaults", request.Resize, nil, 800, 600},
		{"resize narrow box", request.Resize, map[string]string{"width": "40", "height": "600"}, 40, 30},
	}
	p := New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := p.Apply(context.Background(), src, plan(t, tt.pt, tt.params))
			if err != nil {
				t.Fatalf("apply: %v", err)
			}
			img, format := decode(t, out)
			if format != "jpeg" {
				t.Errorf("format %s, want jpeg", format)
			}
			b := img.Bounds()
			if b.Dx() != tt.wantW || b.Dy() != tt.wantH {
				t.Errorf("size %dx%d, want %dx%d", b.Dx(), b.Dy(), tt.wantW, tt.wantH)
			}
		})
	}
}

func TestApply_EnlargesSmallSources(t *testing.T) {
	src := testPNG(t, 100, 75, color.RGBA{10, 200, 10, 255})
	tests := []struct {
		name   string
		pt     request.ProcessingType
		params map[string]string
		wantW  int
		wantH  int
	}{
		{"resize defaults", request.Resize, nil, 800, 600},
		{"resize tall box", request.Resize, map[string]string{"width": "300", "height": "1000"}, 300, 225},
		{"thumbnail defaults", request.Thumbnail, nil, 200, 150},
	}
	p := New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := p.Apply(context.Background(), src, plan(t, tt.pt, tt.params))
			if err != nil {
				t.Fatalf("apply: %v", err)
			}
			img, _ := decode(t, out)
			if b := img.Bounds(); b.Dx() != tt.wantW || b.Dy() != tt.wantH {
				t.Errorf("size %dx%d, want %dx%d", b.Dx(), b.Dy(), tt.wantW, tt.wantH)
			}
		})
	}
}

func TestFitBox(t *testing.T) {
	tests := []struct {
		srcW, srcH, boxW, boxH int
		wantW, wantH           int
	}{
		{400, 300, 200, 200, 200, 150},
		{300, 400, 200, 200, 150, 200},
		{100, 75, 800, 600, 800, 600},
		{1000, 1, 10, 10, 10, 1},
		{0, 0, 50, 40, 50, 40},
	}
	for _, tt := range tests {
		w, h := fitBox(tt.srcW, tt.srcH, tt.boxW, tt.boxH)
		if w != tt.wantW || h != tt.wantH {
			t.Errorf("fitBox(%d,%d,%d,%d) = %dx%d, want %dx%d", tt.srcW, tt.srcH, tt.boxW, tt.boxH, w, h, tt.wantW, tt.wantH)
		}
	}
}

func TestApply_FormatConversion(t *testing.T) {
	src := testPNG(t, 20, 20, color.White)
	tests := []struct {
		format string
		want   string
	}{
		{"png", "png"},
		{"gif", "gif"},
		{"jpg", "jpeg"},
		{"bmp", "bmp"},
		{"tiff", "tiff"},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			out, err := New().Apply(context.Background(), src, plan(t, request.FormatConversion, map[string]string{"format": tt.format}))
			if err != nil {
				t.Fatalf("apply: %v", err)
			}
			_, format := decode(t, out)
			if format != tt.want {
				t.Errorf("format %s, want %s", format, tt.want)
			}
		})
	}
}

func TestApply_Filters(t *testing.T) {
	src := testPNG(t, 8, 8, color.RGBA{100, 150, 200, 255})
	for _, f := range router.Filters {
		t.Run(f, func(t *testing.T) {
			out, err := New().Apply(context.Background(), src, plan(t, request.Filter, map[string]string{"type": f}))
			if err != nil {
				t.Fatalf("apply: %v", err)
			}
			decode(t, out)
		})
	}
}

func TestSepia(t *testing.T) {
	got := sepia(color.NRGBA{R: 10, G: 20, B: 30, A: 200})
	// R = 3.93 + 15.38 + 5.67, G = 3.49 + 13.72 + 5.04, B = 2.72 + 10.68 + 3.93
	want := color.NRGBA{R: 25, G: 22, B: 17, A: 200}
	if got != want {
		t.Errorf("sepia = %+v, want %+v", got, want)
	}
	if white := sepia(color.NRGBA{255, 255, 255, 255}); white.R != 255 || white.G != 255 {
		t.Errorf("sepia must clamp, got %+v", white)
	}
}

func TestApply_WatermarkChangesCenter(t *testing.T) {
	src := testPNG(t, 300, 100, color.Black)
	out, err := New().Apply(context.Background(), src, plan(t, request.Watermark, map[string]string{"text": "WWWW"}))
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	img, _ := decode(t, out)
	b := img.Bounds()
	bright := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, _, _, _ := img.At(x, y).RGBA()
			if r > 0x4000 {
				bright++
			}
		}
	}
	if bright == 0 {
		t.Error("expected watermark pixels on a black image")
	}
	if b.Dx() != 300 || b.Dy() != 100 {
		t.Errorf("watermark must keep dimensions, got %dx%d", b.Dx(), b.Dy())
	}
}

func TestApply_CorruptInputIsTransformFailure(t *testing.T) {
	_, err := New().Apply(context.Background(), []byte("not an image"), plan(t, request.Thumbnail, nil))
	if !errors.Is(err, request.ErrTransformFailure) {
		t.Errorf("expected ErrTransformFailure, got %v", err)
	}
}

func TestApply_RejectsVideoTypes(t *testing.T) {
	src := testPNG(t, 4, 4, color.White)
	_, err := New().Apply(context.Background(), src, plan(t, request.VideoCompress, nil))
	if !errors.Is(err, request.ErrTransformFailure) {
		t.Errorf("expected ErrTransformFailure, got %v", err)
	}
}

func TestApply_Deterministic(t *testing.T) {
	src := testPNG(t, 64, 48, color.RGBA{1, 2, 3, 255})
	p := plan(t, request.Thumbnail, nil)
	a, err := New().Apply(context.Background(), src, p)
	if err != nil {
		t.Fatal(err)
	}
	b, _ := New().Apply(context.Background(), src, p)
	if !bytes.Equal(a, b) {
		t.Error("same input and plan must produce identical bytes")
	}
}

func TestInspect(t *testing.T) {
	info, err := Inspect(testPNG(t, 33, 21, color.White))
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	if info.Width != 33 || info.Height != 21 || info.Format != "png" {
		t.Errorf("unexpected info %+v", info)
	}
	fields := info.Fields()
	if fields["width"] != "33" || fields["height"] != "21" {
		t.Errorf("unexpected fields %v", fields)
	}
	if _, err := Inspect([]byte("junk")); err == nil {
		t.Error("expected error for junk input")
	}
}
