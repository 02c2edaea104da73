package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/memoryweaver/memory-weaver/internal/config"
	registrymedia "github.com/memoryweaver/memory-weaver/internal/registry/media"
	registrystore "github.com/memoryweaver/memory-weaver/internal/registry/store"
	"github.com/memoryweaver/memory-weaver/internal/tempfiles"
)

func init() {
	registrymedia.Register(registrymedia.Plugin{
		Name: "local",
		Loader: func(ctx context.Context) (registrymedia.MediaStore, error) {
			cfg := config.FromContext(ctx)
			if cfg == nil {
				return nil, fmt.Errorf("local media: missing config in context")
			}
			return New(cfg.MediaDir)
		},
	})
}

// Store keeps media as flat files in one directory.
type Store struct {
	dir string
}

// New creates dir if needed.
func New(dir string) (*Store, error) {
	if dir == "" {
		dir = "audio"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("local media: create %q: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) Put(_ context.Context, name string, data io.Reader, _ string) (*registrymedia.PutResult, error) {
	if !registrymedia.ValidName(name) {
		return nil, &registrystore.ValidationError{Field: "filename", Message: "invalid media name"}
	}
	n, err := tempfiles.WriteAtomic(s.dir, name, data)
	if err != nil {
		return nil, fmt.Errorf("local media: %w", err)
	}
	return &registrymedia.PutResult{Name: name, Size: n}, nil
}

func (s *Store) Open(_ context.Context, name string) (io.ReadCloser, error) {
	if !registrymedia.ValidName(name) {
		return nil, &registrystore.NotFoundError{Resource: "audio", ID: name}
	}
	f, err := os.Open(filepath.Join(s.dir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, &registrystore.NotFoundError{Resource: "audio", ID: name}
	}
	if err != nil {
		return nil, fmt.Errorf("local media: open %s: %w", name, err)
	}
	return f, nil
}
