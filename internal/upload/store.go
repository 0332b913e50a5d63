// Package upload persists incoming image uploads just long enough to run a
// prediction on them.
package upload

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Store writes uploads into a temp directory under randomized names so
// concurrent uploads of the same filename never collide.
type Store struct {
	tempDir string
	logger  *zap.Logger
}

func NewStore(tempDir string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(tempDir, os.ModePerm); err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}

	return &Store{tempDir: tempDir, logger: logger}, nil
}

// SaveTemp writes content to a fresh file named <uuid><ext> and returns its
// path. ext should include the leading dot.
func (s *Store) SaveTemp(ext string, content []byte) (string, error) {
	path := filepath.Join(s.tempDir, uuid.NewString()+ext)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return "", fmt.Errorf("failed to write temp file: %w", err)
	}

	return path, nil
}

// Remove deletes a temp file. Best effort: a failure is logged and otherwise
// ignored, since stale temp files are harmless.
func (s *Store) Remove(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		s.logger.Warn("failed to remove temp file", zap.String("path", path), zap.Error(err))
	}
}

// TempDir returns the directory uploads are written to.
func (s *Store) TempDir() string {
	return s.tempDir
}
