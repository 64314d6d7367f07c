package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// LocalFileSystem stores each key as a file under a base directory.
// Absolute keys are used as-is.
type LocalFileSystem struct {
	basePath string
}

// NewLocalFileSystem creates a filesystem storage rooted at basePath.
// A leading "~" is expanded to the user's home directory.
func NewLocalFileSystem(basePath string) (*LocalFileSystem, error) {
	expanded, err := expandHome(basePath)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(expanded)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve base path %q: %w", basePath, err)
	}
	return &LocalFileSystem{basePath: abs}, nil
}

// BasePath returns the absolute base directory.
func (s *LocalFileSystem) BasePath() string { return s.basePath }

// ResolvePath returns the absolute file path for key.
func (s *LocalFileSystem) ResolvePath(key string) (string, error) {
	if key == "" {
		return "", errors.New("storage: empty key")
	}
	expanded, err := expandHome(key)
	if err != nil {
		return "", err
	}
	if filepath.IsAbs(expanded) {
		return filepath.Clean(expanded), nil
	}
	return filepath.Join(s.basePath, expanded), nil
}

func (s *LocalFileSystem) ReadPath(ctx context.Context, key string) ([]byte, error) {
	path, err := s.ResolvePath(key)
	if err != nil {
		return nil, err
	}
	content, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return content, nil
}

func (s *LocalFileSystem) WritePath(ctx context.Context, key string, content []byte) error {
	path, err := s.ResolvePath(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	// Write to a sibling temp file first so readers never see a partial blob
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-"+filepath.Base(path)+"-*")
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func (s *LocalFileSystem) Delete(ctx context.Context, key string) error {
	path, err := s.ResolvePath(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to expand %q: %w", path, err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
