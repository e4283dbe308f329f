package model

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/vietddude/demandcast/internal/core/domain"
	"github.com/vietddude/demandcast/internal/core/errs"
)

const (
	filePrefix = "prophet_model_"
	fileSuffix = ".json"
)

// ErrModelNotFound is wrapped when no artifact exists for a product.
var ErrModelNotFound = errors.New("model not found")

// Store reads model artifacts from a directory.
type Store struct {
	dir string
}

// NewStore creates a Store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the artifact directory.
func (s *Store) Dir() string { return s.dir }

// Load reads the artifact for product.
func (s *Store) Load(ctx context.Context, product string) (*Model, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := filepath.Join(s.dir, domain.ModelFileName(product))
	fields := map[string]any{"product": product, "path": path}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, errs.ModelLoad("no trained model for product",
			errs.WithCause(fmt.Errorf("%w: %s", ErrModelNotFound, product)), errs.WithContext(fields))
	}
	if err != nil {
		return nil, errs.ModelLoad("failed to read model", errs.WithCause(err), errs.WithContext(fields))
	}

	var m Model
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, errs.ModelLoad("corrupt model artifact", errs.WithCause(err), errs.WithContext(fields))
	}
	if m.Product == "" {
		m.Product = product
	}
	return &m, nil
}

// Save writes an artifact for m.Product.
func (s *Store) Save(m *Model) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create model dir: %w", err)
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encode model: %w", err)
	}
	return os.WriteFile(filepath.Join(s.dir, domain.ModelFileName(m.Product)), data, 0o644)
}

// List returns the normalized product names that have an artifact.
func (s *Store) List() ([]string, error) {
	files, err := s.files()
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(files))
	for _, f := range files {
		name := strings.TrimSuffix(strings.TrimPrefix(f.Name(), filePrefix), fileSuffix)
		out = append(out, name)
	}
	slices.Sort(out)
	return out, nil
}

// Stats summarizes the artifacts on disk.
type Stats struct {
	Count      int
	TotalBytes int64
	Sample     string
}

// Stats reports artifact count and size. A missing directory is an error.
func (s *Store) Stats() (Stats, error) {
	files, err := s.files()
	if err != nil {
		return Stats{}, err
	}
	var st Stats
	for _, f := range files {
		info, err := f.Info()
		if err != nil {
			continue
		}
		st.Count++
		st.TotalBytes += info.Size()
		if st.Sample == "" {
			st.Sample = strings.TrimSuffix(strings.TrimPrefix(f.Name(), filePrefix), fileSuffix)
		}
	}
	return st, nil
}

func (s *Store) files() ([]fs.DirEntry, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, errs.ModelLoad("model directory unavailable", errs.WithCause(err),
			errs.WithContext(map[string]any{"dir": s.dir}))
	}
	var out []fs.DirEntry
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), filePrefix) || !strings.HasSuffix(e.Name(), fileSuffix) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}
