package gallery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/renameio"
)

const fileFormatVersion = 1

// fileFormat is the on-disk layout of a FileStore.
type fileFormat struct {
	Version    int     `json:"version"`
	Dim        int     `json:"dim"`
	Identities []Entry `json:"identities"`
}

// FileStore persists the gallery as a single JSON file.
type FileStore struct {
	path string
}

// NewFileStore returns a store backed by path. The file is created on first save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file path.
func (f *FileStore) Path() string { return f.path }

// Load reads the gallery file. A missing file yields an empty gallery.
func (f *FileStore) Load(ctx context.Context) (Gallery, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading gallery %s: %w", f.path, err)
	}

	var doc fileFormat
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptStore, f.path, err)
	}
	if doc.Version != fileFormatVersion {
		return nil, fmt.Errorf("%w: %s: unsupported version %d", ErrCorruptStore, f.path, doc.Version)
	}

	g := make(Gallery, len(doc.Identities))
	for _, e := range doc.Identities {
		if _, dup := g[e.Label]; dup {
			return nil, fmt.Errorf("%w: %s: duplicate label %q", ErrCorruptStore, f.path, e.Label)
		}
		g[e.Label] = e.Embedding
	}
	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptStore, f.path, err)
	}
	if len(g) > 0 && g.Dim() != doc.Dim {
		return nil, fmt.Errorf("%w: %s: header dim %d, entries have %d", ErrCorruptStore, f.path, doc.Dim, g.Dim())
	}
	return g, nil
}

// Save atomically replaces the gallery file: the data goes to a temporary file
// in the same directory which is then renamed over the old one.
func (f *FileStore) Save(ctx context.Context, g Gallery) error {
	if err := g.Validate(); err != nil {
		return fmt.Errorf("refusing to save invalid gallery: %w", err)
	}

	doc := fileFormat{
		Version:    fileFormatVersion,
		Dim:        g.Dim(),
		Identities: g.Entries(),
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encoding: %v", ErrStoreWrite, err)
	}

	if dir := filepath.Dir(f.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("%w: %v", ErrStoreWrite, err)
		}
	}
	if err := renameio.WriteFile(f.path, data, 0o600); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreWrite, err)
	}
	return nil
}
