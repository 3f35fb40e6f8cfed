package blobstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const metaSuffix = ".meta.json"

// FSBlobStore keeps each blob as a file under root with a JSON sidecar
// holding its metadata.
type FSBlobStore struct {
	root string
	mu   sync.Mutex
}

// NewFSBlobStore creates root if needed.
func NewFSBlobStore(root string) (*FSBlobStore, error) {
	if root == "" {
		return nil, fmt.Errorf("blobstore: fs root is required")
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create export dir %s: %w", root, err)
	}
	return &FSBlobStore{root: root}, nil
}

func (s *FSBlobStore) paths(key string) (string, string) {
	p := filepath.Join(s.root, key)
	return p, p + metaSuffix
}

func (s *FSBlobStore) Upload(_ context.Context, meta Metadata, content io.Reader) (*Metadata, error) {
	meta, data, err := prepare(meta, content)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	blobPath, metaPath := s.paths(meta.Key)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := writeFileAtomic(blobPath, data); err != nil {
		return nil, err
	}
	// The sidecar goes last: a blob without one is invisible to readers.
	if err := writeFileAtomic(metaPath, raw); err != nil {
		_ = os.Remove(blobPath)
		return nil, err
	}
	out := meta
	return &out, nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return os.Rename(tmp.Name(), path)
}

func (s *FSBlobStore) readMeta(key string) (*Metadata, error) {
	if err := ValidKey(key); err != nil {
		return nil, err
	}
	_, metaPath := s.paths(key)
	raw, err := os.ReadFile(metaPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrBlobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read metadata %s: %w", key, err)
	}
	var meta Metadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("decode metadata %s: %w", key, err)
	}
	return &meta, nil
}

func (s *FSBlobStore) Download(_ context.Context, key string) (io.ReadCloser, *Metadata, error) {
	meta, err := s.readMeta(key)
	if err != nil {
		return nil, nil, err
	}
	blobPath, _ := s.paths(key)
	f, err := os.Open(blobPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil, ErrBlobNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", key, err)
	}
	return f, meta, nil
}

func (s *FSBlobStore) Delete(_ context.Context, key string) error {
	if _, err := s.readMeta(key); err != nil {
		return err
	}
	blobPath, metaPath := s.paths(key)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(metaPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	if err := os.Remove(blobPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

func (s *FSBlobStore) GetMetadata(_ context.Context, key string) (*Metadata, error) {
	return s.readMeta(key)
}

func (s *FSBlobStore) List(_ context.Context, params SearchParams) ([]*Metadata, int, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, 0, fmt.Errorf("list %s: %w", s.root, err)
	}
	var matched []*Metadata
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, metaSuffix) {
			continue
		}
		meta, err := s.readMeta(strings.TrimSuffix(name, metaSuffix))
		if err != nil {
			// skip sidecars removed between ReadDir and here
			if errors.Is(err, ErrBlobNotFound) {
				continue
			}
			return nil, 0, err
		}
		if matches(meta, params) {
			matched = append(matched, meta)
		}
	}
	items, total := page(matched, params)
	return items, total, nil
}
