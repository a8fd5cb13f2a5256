package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Store persists finished files under the name carried in their Header.
type Store interface {
	Put(ctx context.Context, name string, data []byte) error
	// Location describes where artifacts end up, for logs and progress.
	Location() string
}

// ErrEmptyName indicates a file name that would resolve to the store root.
var ErrEmptyName = errors.New("empty file name")

// Options configures Open.
type Options struct {
	S3Region    string
	S3Endpoint  string
	S3PathStyle bool
}

// Open returns a store for target: "s3://bucket/prefix" selects S3, anything
// else is a local directory.
func Open(ctx context.Context, target string, opts Options) (Store, error) {
	if rest, ok := strings.CutPrefix(target, "s3://"); ok {
		bucket, prefix := ParseS3Path(rest)
		return NewS3Store(ctx, S3Config{
			Bucket:       bucket,
			Prefix:       prefix,
			Region:       opts.S3Region,
			Endpoint:     opts.S3Endpoint,
			UsePathStyle: opts.S3PathStyle,
		})
	}
	return NewDirStore(target)
}

// DirStore writes files below a local directory.
// File names are joined to the directory as given; they are not sanitized.
type DirStore struct {
	dir string
}

// NewDirStore returns a store rooted at dir ("." when empty).
func NewDirStore(dir string) (*DirStore, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	return &DirStore{dir: dir}, nil
}

// Put writes data to a temporary file next to the target and renames it into
// place, so a failed write never leaves a truncated artifact under name.
func (s *DirStore) Put(ctx context.Context, name string, data []byte) error {
	if name == "" {
		return ErrEmptyName
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	path := filepath.Join(s.dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	temp := path + ".tmp"
	if err := os.WriteFile(temp, data, 0644); err != nil {
		return err
	}
	if err := os.Rename(temp, path); err != nil {
		_ = os.Remove(temp)
		return err
	}
	return nil
}

// Location returns the output directory.
func (s *DirStore) Location() string {
	return s.dir
}
