package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"syscall"
)

// LocalStore keeps clips in a flat directory on the local filesystem.
type LocalStore struct {
	dir string
}

func NewLocalStore(dir string) *LocalStore {
	return &LocalStore{dir: dir}
}

func (s *LocalStore) Promote(ctx context.Context, renderedPath, filename string) (string, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", s.dir, err)
	}
	dest := filepath.Join(s.dir, filename)
	if err := moveFile(renderedPath, dest); err != nil {
		return "", fmt.Errorf("promote %s: %w", filename, err)
	}
	return dest, nil
}

func (s *LocalStore) Archive(ctx context.Context, filename string) (string, error) {
	return "", nil
}

func (s *LocalStore) ShareURL(ctx context.Context, filename string) (string, error) {
	return "", nil
}

func (s *LocalStore) LocalPath(filename string) string {
	full := filepath.Join(s.dir, filename)
	if _, err := os.Stat(full); err == nil {
		return full
	}
	return ""
}

func (s *LocalStore) Type() string { return "local" }

// Dir returns the clip directory path.
func (s *LocalStore) Dir() string { return s.dir }

// moveFile renames when possible and falls back to copy + atomic rename when
// source and destination sit on different filesystems.
func moveFile(src, dest string) error {
	err := os.Rename(src, dest)
	if err == nil {
		return nil
	}
	var linkErr *os.LinkError
	if !errors.As(err, &linkErr) || !errors.Is(linkErr.Err, syscall.EXDEV) {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".clip-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return os.Remove(src)
}
