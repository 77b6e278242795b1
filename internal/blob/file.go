// Package blob provides BlobStore backends for history overflow payloads.
//
// Handles are random UUIDs generated by the writer. Payloads are stored
// as-is; callers compress before Put. Deleting an unknown handle is not an
// error, so releases stay idempotent after a sweep.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/InvoiceDesk/internal/core"
)

const fileExt = ".zst"

// FileStore keeps blobs as files in a single directory.
type FileStore struct {
	dir string
}

// NewFileStore creates dir if needed and returns a store rooted there.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New("blob directory is required")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create blob directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Dir returns the store's root directory.
func (s *FileStore) Dir() string { return s.dir }

// Put writes data to a new blob. The file appears atomically.
func (s *FileStore) Put(ctx context.Context, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	handle := uuid.NewString()
	tmp, err := os.CreateTemp(s.dir, ".put-*")
	if err != nil {
		return "", fmt.Errorf("create temp blob: %w", err)
	}
	defer os.Remove(tmp.Name()) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close blob: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path(handle)); err != nil {
		return "", fmt.Errorf("commit blob: %w", err)
	}
	return handle, nil
}

// Get reads a blob, returning core.ErrNotFound for unknown handles.
func (s *FileStore) Get(ctx context.Context, handle string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !validHandle(handle) {
		return nil, core.ErrNotFound
	}

	data, err := os.ReadFile(s.path(handle))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read blob: %w", err)
	}
	return data, nil
}

// Delete removes a blob.
func (s *FileStore) Delete(ctx context.Context, handle string) error {
	if !validHandle(handle) {
		return nil
	}
	err := os.Remove(s.path(handle))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete blob: %w", err)
	}
	return nil
}

// Sweep deletes blobs last modified before olderThan, except handles in keep.
func (s *FileStore) Sweep(ctx context.Context, olderThan time.Time, keep map[string]bool) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("list blobs: %w", err)
	}

	removed := 0
	for _, entry := range entries {
		if ctx.Err() != nil {
			return removed, ctx.Err()
		}
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, fileExt) || keep[strings.TrimSuffix(name, fileExt)] {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue // removed concurrently
		}
		if !info.ModTime().Before(olderThan) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return removed, fmt.Errorf("sweep blob %s: %w", name, err)
		}
		removed++
	}
	return removed, nil
}

func (s *FileStore) path(handle string) string {
	return filepath.Join(s.dir, handle+fileExt)
}

// validHandle keeps handles from escaping the store directory.
func validHandle(handle string) bool {
	_, err := uuid.Parse(handle)
	return err == nil && !strings.ContainsAny(handle, `/\.`)
}
