package metrics

import (
	"context"
	"time"

	"github.com/memoryweaver/memory-weaver/internal/model"
	"github.com/memoryweaver/memory-weaver/internal/registry/store"
	"github.com/memoryweaver/memory-weaver/internal/telemetry"
)

// Wrap returns a MemoryStore that records StoreLatency for every operation.
func Wrap(inner store.MemoryStore) store.MemoryStore {
	return &metricsStore{inner: inner}
}

type metricsStore struct {
	inner store.MemoryStore
}

func observe(op string, start time.Time) {
	telemetry.ObserveStore(op, start)
}

func (m *metricsStore) EnsureUser(ctx context.Context, userID string) error {
	defer observe("ensure_user", time.Now())
	return m.inner.EnsureUser(ctx, userID)
}

func (m *metricsStore) AppendMemory(ctx context.Context, memory model.Memory) (*model.Memory, error) {
	defer observe("append_memory", time.Now())
	return m.inner.AppendMemory(ctx, memory)
}

func (m *metricsStore) ListMemories(ctx context.Context, userID string, limit int) ([]model.Memory, error) {
	defer observe("list_memories", time.Now())
	return m.inner.ListMemories(ctx, userID, limit)
}

func (m *metricsStore) ListMemoriesByTag(ctx context.Context, userID string, tags []string) ([]model.Memory, error) {
	defer observe("list_memories_by_tag", time.Now())
	return m.inner.ListMemoriesByTag(ctx, userID, tags)
}

func (m *metricsStore) ListAll(ctx context.Context) ([]model.UserMemories, error) {
	defer observe("list_all", time.Now())
	return m.inner.ListAll(ctx)
}

func (m *metricsStore) Ping(ctx context.Context) error {
	defer observe("ping", time.Now())
	return m.inner.Ping(ctx)
}

func (m *metricsStore) Close(ctx context.Context) error {
	return m.inner.Close(ctx)
}
