package media

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
)

// PutResult describes a stored media object.
type PutResult struct {
	Name string
	Size int64
}

// MediaStore persists generated audio under flat file names.
type MediaStore interface {
	// Put writes data under name, replacing any existing object.
	Put(ctx context.Context, name string, data io.Reader, contentType string) (*PutResult, error)
	// Open returns a reader for the named object, or a *store.NotFoundError.
	Open(ctx context.Context, name string) (io.ReadCloser, error)
}

// ValidName reports whether name is a plain file name without path components.
func ValidName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	if strings.ContainsAny(name, `/\`) {
		return false
	}
	return path.Base(name) == name
}

// Loader creates a MediaStore from config.
type Loader func(ctx context.Context) (MediaStore, error)

// Plugin represents a media store plugin.
type Plugin struct {
	Name   string
	Loader Loader
}

var plugins []Plugin

// Register adds a media store plugin.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// Names returns all registered media store plugin names.
func Names() []string {
	names := make([]string, len(plugins))
	for i, p := range plugins {
		names[i] = p.Name
	}
	return names
}

// Select returns the loader for the named media store plugin.
func Select(name string) (Loader, error) {
	for _, p := range plugins {
		if p.Name == name {
			return p.Loader, nil
		}
	}
	return nil, fmt.Errorf("unknown media store %q; valid: %v", name, Names())
}
