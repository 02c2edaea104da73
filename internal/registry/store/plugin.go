package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/memoryweaver/memory-weaver/internal/model"
)

// MemoryStore persists per-user memory documents.
type MemoryStore interface {
	// EnsureUser creates an empty document for the user if none exists.
	EnsureUser(ctx context.Context, userID string) error
	// AppendMemory appends to the user's sequence, creating the document when
	// absent, as a single atomic operation. CreatedAt is stamped by the store.
	AppendMemory(ctx context.Context, memory model.Memory) (*model.Memory, error)
	// ListMemories returns up to limit memories in insertion order. A limit
	// <= 0 returns all. A missing user yields an empty slice.
	ListMemories(ctx context.Context, userID string, limit int) ([]model.Memory, error)
	// ListMemoriesByTag returns the user's whole sequence when any memory in
	// it carries one of the tags, and an empty slice otherwise.
	ListMemoriesByTag(ctx context.Context, userID string, tags []string) ([]model.Memory, error)
	// ListAll returns every user document.
	ListAll(ctx context.Context) ([]model.UserMemories, error)
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// ValidateMemory normalizes the memory in place and checks required fields.
func ValidateMemory(m *model.Memory) error {
	m.Normalize()
	if m.UserID == "" {
		return &ValidationError{Field: "user_id", Message: "is required"}
	}
	if m.Date == "" {
		return &ValidationError{Field: "date", Message: "is required"}
	}
	if strings.TrimSpace(m.Description) == "" {
		return &ValidationError{Field: "description", Message: "is required"}
	}
	return nil
}

// ValidateUserID rejects blank user identifiers.
func ValidateUserID(userID string) error {
	if strings.TrimSpace(userID) == "" {
		return &ValidationError{Field: "user_id", Message: "is required"}
	}
	return nil
}

// Loader creates a MemoryStore from config.
type Loader func(ctx context.Context) (MemoryStore, error)

// Plugin represents a store plugin.
type Plugin struct {
	Name   string
	Loader Loader
}

var plugins []Plugin

// Register adds a store plugin.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// Names returns all registered store plugin names.
func Names() []string {
	names := make([]string, len(plugins))
	for i, p := range plugins {
		names[i] = p.Name
	}
	return names
}

// Select returns the loader for the named store plugin.
func Select(name string) (Loader, error) {
	for _, p := range plugins {
		if p.Name == name {
			return p.Loader, nil
		}
	}
	return nil, fmt.Errorf("unknown store %q; valid: %v", name, Names())
}
