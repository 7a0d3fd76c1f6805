package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// Destination is the interface for an export target (S3, local file).
type Destination interface {
	// Write stores the JSONL payload.
	Write(ctx context.Context, data []byte) error
}

// FileDestination writes the export to a local path. The file is replaced
// atomically so readers never see a partial export.
type FileDestination struct {
	Path string
}

// Write writes data to a temporary file beside Path and renames it into
// place.
func (d *FileDestination) Write(_ context.Context, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(d.Path), filepath.Base(d.Path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), d.Path); err != nil {
		return fmt.Errorf("rename into %s: %w", d.Path, err)
	}
	return nil
}
