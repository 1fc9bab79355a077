// Package export bundles a store namespace into a Zstandard-compressed ZIP.
package export

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog/log"

	"github.com/fpang/media-pipeline/internal/store"
)

// MethodZstd is the ZIP compression method ID for Zstandard (APPNOTE 6.3.7).
const MethodZstd uint16 = 93

func init() {
	zip.RegisterCompressor(MethodZstd, func(w io.Writer) (io.WriteCloser, error) {
		return zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	})
	zip.RegisterDecompressor(MethodZstd, func(r io.Reader) io.ReadCloser {
		d, err := zstd.NewReader(r)
		if err != nil {
			return io.NopCloser(errReader{err})
		}
		return d.IOReadCloser()
	})
}

type errReader struct{ err error }

func (e errReader) Read([]byte) (int, error) { return 0, e.err }

// Report summarises one bundle.
type Report struct {
	Files   int
	Skipped int
	Bytes   int64
}

// Bundle writes every object under namespace/prefix into a ZIP on w. Entries
// are named by key. Objects that vanish between List and Get are skipped.
func Bundle(ctx context.Context, s store.Manager, namespace, prefix string, w io.Writer) (Report, error) {
	var r Report
	objects, err := s.List(ctx, namespace, prefix)
	if err != nil {
		return r, fmt.Errorf("list %s: %w", namespace, err)
	}

	zw := zip.NewWriter(w)
	for _, obj := range objects {
		if err := ctx.Err(); err != nil {
			return r, err
		}
		data, err := s.Get(ctx, namespace, obj.Key)
		if errors.Is(err, store.ErrNotFound) {
			log.Warn().Str("key", obj.Key).Msg("Object vanished before export, skipping")
			r.Skipped++
			continue
		}
		if err != nil {
			return r, fmt.Errorf("read %s/%s: %w", namespace, obj.Key, err)
		}

		header := &zip.FileHeader{
			Name:   entryName(obj.Key),
			Method: MethodZstd,
		}
		modified := obj.LastModified
		if modified.IsZero() {
			modified = time.Now()
		}
		header.Modified = modified.UTC()

		entry, err := zw.CreateHeader(header)
		if err != nil {
			return r, fmt.Errorf("create ZIP entry for %s: %w", obj.Key, err)
		}
		if _, err := entry.Write(data); err != nil {
			return r, fmt.Errorf("write ZIP entry for %s: %w", obj.Key, err)
		}
		r.Files++
		r.Bytes += int64(len(data))
	}
	if err := zw.Close(); err != nil {
		return r, fmt.Errorf("close ZIP writer: %w", err)
	}
	log.Info().
		Str("namespace", namespace).
		Str("prefix", prefix).
		Int("files", r.Files).
		Int("skipped", r.Skipped).
		Int64("bytes", r.Bytes).
		Msg("Export bundle written")
	return r, nil
}

// entryName keeps archive paths relative so extraction stays inside the
// target directory.
func entryName(key string) string {
	name := path.Clean("/" + strings.ReplaceAll(key, "\\", "/"))
	return strings.TrimPrefix(name, "/")
}

// BundleKey names a bundle stored back into the temp namespace, where the
// cleanup sweep eventually removes it.
func BundleKey(namespace string, now time.Time) string {
	return fmt.Sprintf("export-%s-%s.zip", namespace, now.UTC().Format("20060102T150405Z"))
}
