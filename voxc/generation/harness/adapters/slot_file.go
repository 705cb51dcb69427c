package adapters

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	ports "github.com/ZanzyTHEbar/vox-canvas/voxc/generation/harness/ports"
)

// FileSlot writes the current artifact to a fixed file. Writes go to a temp
// file in the same directory and are renamed into place, so readers see
// either the old or the new page, never a torn one.
type FileSlot struct {
	path string
}

func NewFileSlot(path string) *FileSlot {
	return &FileSlot{path: path}
}

func (s *FileSlot) Location() string { return s.path }

func (s *FileSlot) Write(ctx context.Context, content []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create slot directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp slot file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write slot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync slot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close slot: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("failed to chmod slot: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("failed to publish slot %s: %w", s.path, err)
	}
	return nil
}

func (s *FileSlot) Remove(ctx context.Context) error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove slot %s: %w", s.path, err)
	}
	return nil
}

// Ensure FileSlot implements the SlotWriter interface.
var _ ports.SlotWriter = (*FileSlot)(nil)
