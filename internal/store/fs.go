package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// metaDir holds metadata sidecars, outside every namespace directory.
const metaDir = ".meta"

// FSStore stores objects as files under root/<namespace>/<key> and their
// metadata as JSON sidecars under root/.meta/<namespace>/<key>.json.
type FSStore struct {
	root string
}

var _ Manager = (*FSStore)(nil)

type sidecar struct {
	ContentType string            `json:"contentType"`
	Metadata    map[string]string `json:"metadata"`
}

// NewFSStore creates the root directory if needed.
func NewFSStore(root string) (*FSStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store root: %w", err)
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve store root: %w", err)
	}
	return &FSStore{root: abs}, nil
}

// Root returns the absolute store directory.
func (s *FSStore) Root() string { return s.root }

// resolve joins parts under base and rejects keys that escape it.
func (s *FSStore) resolve(base string, parts ...string) (string, error) {
	p := filepath.Join(append([]string{base}, parts...)...)
	if !strings.HasPrefix(filepath.Clean(p), filepath.Clean(base)+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid key %q: path traversal detected", filepath.Join(parts...))
	}
	return p, nil
}

func (s *FSStore) dataPath(namespace, key string) (string, error) {
	if namespace == "" || namespace == metaDir || strings.ContainsAny(namespace, `/\`) {
		return "", fmt.Errorf("invalid namespace %q", namespace)
	}
	return s.resolve(filepath.Join(s.root, namespace), key)
}

func (s *FSStore) metaPath(namespace, key string) (string, error) {
	return s.resolve(filepath.Join(s.root, metaDir, namespace), key+".json")
}

func (s *FSStore) Get(ctx context.Context, namespace, key string) ([]byte, error) {
	p, err := s.dataPath(namespace, key)
	if err != nil {
		return nil, notFound(namespace, key)
	}
	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, notFound(namespace, key)
		}
		return nil, unavailable("get", namespace, key, err)
	}
	return data, nil
}

func (s *FSStore) Put(ctx context.Context, namespace, key string, data []byte, contentType string) error {
	p, err := s.dataPath(namespace, key)
	if err != nil {
		return err
	}
	if err := writeAtomic(p, data); err != nil {
		return unavailable("put", namespace, key, err)
	}
	sc := sidecar{ContentType: contentType, Metadata: map[string]string{}}
	if err := s.writeSidecar(namespace, key, sc); err != nil {
		return unavailable("put", namespace, key, err)
	}
	return nil
}

func (s *FSStore) GetMetadata(ctx context.Context, namespace, key string) (map[string]string, error) {
	if err := s.exists(namespace, key); err != nil {
		return nil, err
	}
	sc, err := s.readSidecar(namespace, key)
	if err != nil {
		return nil, unavailable("get metadata", namespace, key, err)
	}
	return sc.Metadata, nil
}

func (s *FSStore) SetMetadata(ctx context.Context, namespace, key string, md map[string]string) error {
	if err := s.exists(namespace, key); err != nil {
		return err
	}
	sc, err := s.readSidecar(namespace, key)
	if err != nil {
		return unavailable("set metadata", namespace, key, err)
	}
	sc.Metadata = make(map[string]string, len(md))
	for k, v := range md {
		sc.Metadata[k] = v
	}
	if err := s.writeSidecar(namespace, key, sc); err != nil {
		return unavailable("set metadata", namespace, key, err)
	}
	return nil
}

// ContentType returns the content type recorded at Put time.
func (s *FSStore) ContentType(namespace, key string) (string, error) {
	sc, err := s.readSidecar(namespace, key)
	if err != nil {
		return "", err
	}
	return sc.ContentType, nil
}

func (s *FSStore) List(ctx context.Context, namespace, prefix string) ([]Object, error) {
	base := filepath.Join(s.root, namespace)
	var out []Object
	err := filepath.WalkDir(base, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".tmp-") {
			return nil
		}
		rel, err := filepath.Rel(base, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		out = append(out, Object{Namespace: namespace, Key: key, Size: info.Size(), LastModified: info.ModTime()})
		return nil
	})
	if err != nil {
		return nil, unavailable("list", namespace, prefix, err)
	}
	return out, nil
}

func (s *FSStore) Delete(ctx context.Context, namespace, key string) error {
	p, err := s.dataPath(namespace, key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return unavailable("delete", namespace, key, err)
	}
	if mp, err := s.metaPath(namespace, key); err == nil {
		_ = os.Remove(mp)
	}
	return nil
}

// Touch sets an object's modification time. Used to age temp objects.
func (s *FSStore) Touch(namespace, key string, t time.Time) error {
	p, err := s.dataPath(namespace, key)
	if err != nil {
		return err
	}
	return os.Chtimes(p, t, t)
}

func (s *FSStore) exists(namespace, key string) error {
	p, err := s.dataPath(namespace, key)
	if err != nil {
		return notFound(namespace, key)
	}
	if _, err := os.Stat(p); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return notFound(namespace, key)
		}
		return unavailable("stat", namespace, key, err)
	}
	return nil
}

func (s *FSStore) readSidecar(namespace, key string) (sidecar, error) {
	sc := sidecar{Metadata: map[string]string{}}
	p, err := s.metaPath(namespace, key)
	if err != nil {
		return sc, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return sc, nil
	}
	if err != nil {
		return sc, err
	}
	if err := json.Unmarshal(data, &sc); err != nil {
		return sc, fmt.Errorf("corrupt metadata %s: %w", p, err)
	}
	if sc.Metadata == nil {
		sc.Metadata = map[string]string{}
	}
	return sc, nil
}

func (s *FSStore) writeSidecar(namespace, key string, sc sidecar) error {
	p, err := s.metaPath(namespace, key)
	if err != nil {
		return err
	}
	data, err := json.Marshal(sc)
	if err != nil {
		return err
	}
	return writeAtomic(p, data)
}

// writeAtomic writes to a temp file in the target directory and renames it
// into place, so readers see either the old or the new content.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
