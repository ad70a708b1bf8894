package runstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// FileStore keeps each run in <dir>/runs/<id>/run.json.
type FileStore struct {
	root string
}

// NewFileStore opens a file store below dir.
func NewFileStore(dir string) (*FileStore, error) {
	root := filepath.Join(dir, "runs")
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create run store: %w", err)
	}
	return &FileStore{root: root}, nil
}

// Save implements Store.
func (s *FileStore) Save(ctx context.Context, run *Run) (string, error) {
	prepare(run)
	if !validID(run.ID) {
		return "", fmt.Errorf("invalid run id %q", run.ID)
	}
	dir := filepath.Join(s.root, run.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return "", err
	}
	tmp := filepath.Join(dir, "run.json.tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", err
	}
	if err := os.Rename(tmp, filepath.Join(dir, "run.json")); err != nil {
		return "", err
	}
	return run.ID, nil
}

// Load implements Store.
func (s *FileStore) Load(ctx context.Context, id string) (*Run, error) {
	if !validID(id) {
		return nil, ErrNotFound
	}
	data, err := os.ReadFile(filepath.Join(s.root, id, "run.json"))
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var run Run
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("decode run %s: %w", id, err)
	}
	return &run, nil
}

// List implements Store. Unreadable run directories are skipped.
func (s *FileStore) List(ctx context.Context) ([]Summary, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, err
	}
	var out []Summary
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		run, err := s.Load(ctx, e.Name())
		if err != nil {
			continue
		}
		out = append(out, run.Summary())
	}
	slices.SortFunc(out, func(a, b Summary) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out, nil
}

// Delete implements Store.
func (s *FileStore) Delete(ctx context.Context, id string) error {
	if !validID(id) {
		return ErrNotFound
	}
	dir := filepath.Join(s.root, id)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return ErrNotFound
	}
	return os.RemoveAll(dir)
}

// Close implements Store.
func (s *FileStore) Close() error { return nil }

var _ Store = (*FileStore)(nil)
