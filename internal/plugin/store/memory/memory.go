package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/memoryweaver/memory-weaver/internal/model"
	registrystore "github.com/memoryweaver/memory-weaver/internal/registry/store"
)

func init() {
	registrystore.Register(registrystore.Plugin{
		Name: "memory",
		Loader: func(ctx context.Context) (registrystore.MemoryStore, error) {
			return New(), nil
		},
	})
}

// Store is an in-process MemoryStore for local development and tests.
type Store struct {
	mu    sync.RWMutex
	docs  map[string]*model.UserMemories
	order []string
	now   func() time.Time
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		docs: make(map[string]*model.UserMemories),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) ensure(userID string) *model.UserMemories {
	doc, ok := s.docs[userID]
	if !ok {
		now := s.now()
		doc = &model.UserMemories{
			UserID:      userID,
			Memories:    []model.Memory{},
			CreatedAt:   now,
			LastUpdated: now,
		}
		s.docs[userID] = doc
		s.order = append(s.order, userID)
	}
	return doc
}

func (s *Store) EnsureUser(_ context.Context, userID string) error {
	if err := registrystore.ValidateUserID(userID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensure(userID)
	return nil
}

func (s *Store) AppendMemory(_ context.Context, memory model.Memory) (*model.Memory, error) {
	if err := registrystore.ValidateMemory(&memory); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	doc := s.ensure(memory.UserID)
	memory.CreatedAt = s.now()
	memory.Tags = slices.Clone(memory.Tags)
	doc.Memories = append(doc.Memories, memory)
	doc.LastUpdated = memory.CreatedAt
	return &memory, nil
}

func (s *Store) ListMemories(_ context.Context, userID string, limit int) ([]model.Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[userID]
	if !ok {
		return []model.Memory{}, nil
	}
	n := len(doc.Memories)
	if limit > 0 && limit < n {
		n = limit
	}
	return cloneMemories(doc.Memories[:n]), nil
}

func (s *Store) ListMemoriesByTag(_ context.Context, userID string, tags []string) ([]model.Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[userID]
	if !ok || len(tags) == 0 {
		return []model.Memory{}, nil
	}
	for _, m := range doc.Memories {
		if m.HasAnyTag(tags) {
			return cloneMemories(doc.Memories), nil
		}
	}
	return []model.Memory{}, nil
}

func (s *Store) ListAll(_ context.Context) ([]model.UserMemories, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.UserMemories, 0, len(s.order))
	for _, id := range s.order {
		doc := *s.docs[id]
		doc.Memories = cloneMemories(doc.Memories)
		out = append(out, doc)
	}
	return out, nil
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close(context.Context) error { return nil }

func cloneMemories(in []model.Memory) []model.Memory {
	out := make([]model.Memory, len(in))
	for i, m := range in {
		m.Tags = slices.Clone(m.Tags)
		if m.Tags == nil {
			m.Tags = []string{}
		}
		out[i] = m
	}
	return out
}
