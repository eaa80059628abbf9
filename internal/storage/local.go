package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// LocalStore writes uploads into a directory served under /files.
type LocalStore struct {
	dir     string
	baseURL string
}

// NewLocalStore creates dir if needed. baseURL is the public origin, e.g. http://localhost:8000.
func NewLocalStore(dir, baseURL string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &LocalStore{dir: dir, baseURL: baseURL}, nil
}

func (s *LocalStore) Name() string { return "local" }

// Dir is the directory the server mounts at /files.
func (s *LocalStore) Dir() string { return s.dir }

func (s *LocalStore) URL(key string) string {
	return joinURL(s.baseURL, "files/"+key)
}

// Put streams body to disk in ChunkSize pieces. Partial files are removed on error.
func (s *LocalStore) Put(ctx context.Context, key string, body io.Reader, _ int64, _ string) (int64, error) {
	if key == "" || strings.ContainsAny(key, `/\`) || key == "." || key == ".." {
		return 0, fmt.Errorf("invalid storage key %q", key)
	}
	path := filepath.Join(s.dir, key)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return 0, ErrExists
		}
		return 0, err
	}

	// Hide *os.File's ReadFrom so the copy goes through the chunk buffer.
	n, err := io.CopyBuffer(struct{ io.Writer }{f}, ctxReader{ctx: ctx, r: body}, make([]byte, ChunkSize))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
		return 0, err
	}
	return n, nil
}
