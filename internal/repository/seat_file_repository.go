package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/iliyamo/seat-tracker/internal/model"
)

// FileSeatRepo persists the seat mapping as an indented JSON document.
// Writes go to a temporary file in the same directory which is then
// renamed over the target, so a reader sees either the old or the new
// mapping and never a partial one.
type FileSeatRepo struct {
	path string
}

// NewFileSeatRepo returns a repo backed by the JSON file at path.
func NewFileSeatRepo(path string) *FileSeatRepo { return &FileSeatRepo{path: path} }

// Path returns the data file location.
func (r *FileSeatRepo) Path() string { return r.path }

// Load reads the mapping.  A missing file yields ErrNoSeatState.
func (r *FileSeatRepo) Load(ctx context.Context) (model.Mapping, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNoSeatState
		}
		return nil, err
	}
	var m model.Mapping
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("decode %s: %w", r.path, err)
	}
	if len(m) == 0 {
		return nil, ErrNoSeatState
	}
	return m, nil
}

// Save writes m with write-then-rename semantics.
func (r *FileSeatRepo) Save(ctx context.Context, m model.Mapping) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encode seats: %w", err)
	}
	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(r.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("sync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp: %w", err)
	}
	if err := os.Rename(tmpName, r.path); err != nil {
		cleanup()
		return fmt.Errorf("replace %s: %w", r.path, err)
	}
	return nil
}
