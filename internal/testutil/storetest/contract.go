// Package storetest holds the behavioural contract every MemoryStore
// implementation must satisfy.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/memoryweaver/memory-weaver/internal/model"
	registrystore "github.com/memoryweaver/memory-weaver/internal/registry/store"
	"github.com/stretchr/testify/require"
)

// Factory returns an empty store. Each call must yield an isolated namespace.
type Factory func(t *testing.T) registrystore.MemoryStore

func strPtr(s string) *string { return &s }

func mem(user, date, desc string, tags ...string) model.Memory {
	return model.Memory{UserID: user, Date: date, Description: desc, Tags: tags}
}

// Run executes the contract against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	ctx := context.Background()

	t.Run("AppendCreatesDocument", func(t *testing.T) {
		s := newStore(t)
		m := mem("alice", "2024-06-01", "Beach day", "beach", "family")
		m.Mood = strPtr("joyful")
		m.Location = strPtr("Nazaré")

		saved, err := s.AppendMemory(ctx, m)
		require.NoError(t, err)
		require.False(t, saved.CreatedAt.IsZero())

		got, err := s.ListMemories(ctx, "alice", 0)
		require.NoError(t, err)
		require.Len(t, got, 1)
		require.Equal(t, "Beach day", got[0].Description)
		require.Equal(t, []string{"beach", "family"}, got[0].Tags)
		require.Equal(t, "joyful", *got[0].Mood)
		require.Equal(t, "Nazaré", *got[0].Location)
	})

	t.Run("AppendPreservesOrder", func(t *testing.T) {
		s := newStore(t)
		for i := range 5 {
			_, err := s.AppendMemory(ctx, mem("bob", fmt.Sprintf("2024-01-0%d", i+1), fmt.Sprintf("m%d", i)))
			require.NoError(t, err)
		}
		got, err := s.ListMemories(ctx, "bob", 0)
		require.NoError(t, err)
		require.Len(t, got, 5)
		for i, m := range got {
			require.Equal(t, fmt.Sprintf("m%d", i), m.Description)
		}

		limited, err := s.ListMemories(ctx, "bob", 2)
		require.NoError(t, err)
		require.Len(t, limited, 2)
		require.Equal(t, "m0", limited[0].Description)
		require.Equal(t, "m1", limited[1].Description)
	})

	t.Run("OptionalFieldsOmitted", func(t *testing.T) {
		s := newStore(t)
		_, err := s.AppendMemory(ctx, mem("carol", "2024-02-02", "Quiet morning"))
		require.NoError(t, err)
		got, err := s.ListMemories(ctx, "carol", 0)
		require.NoError(t, err)
		require.Len(t, got, 1)
		require.Nil(t, got[0].Mood)
		require.Nil(t, got[0].Location)
		require.NotNil(t, got[0].Tags)
		require.Empty(t, got[0].Tags)
	})

	t.Run("MissingUserIsEmpty", func(t *testing.T) {
		s := newStore(t)
		got, err := s.ListMemories(ctx, "nobody", 0)
		require.NoError(t, err)
		require.Empty(t, got)

		got, err = s.ListMemoriesByTag(ctx, "nobody", []string{"x"})
		require.NoError(t, err)
		require.Empty(t, got)
	})

	t.Run("EnsureUserIsIdempotent", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.EnsureUser(ctx, "dave"))
		require.NoError(t, s.EnsureUser(ctx, "dave"))
		got, err := s.ListMemories(ctx, "dave", 0)
		require.NoError(t, err)
		require.Empty(t, got)

		all, err := s.ListAll(ctx)
		require.NoError(t, err)
		require.Len(t, all, 1)
		require.Equal(t, "dave", all[0].UserID)
	})

	t.Run("TagMatchIsDocumentLevel", func(t *testing.T) {
		s := newStore(t)
		_, err := s.AppendMemory(ctx, mem("erin", "2024-03-01", "hike", "outdoors"))
		require.NoError(t, err)
		_, err = s.AppendMemory(ctx, mem("erin", "2024-03-02", "office", "work"))
		require.NoError(t, err)

		got, err := s.ListMemoriesByTag(ctx, "erin", []string{"outdoors"})
		require.NoError(t, err)
		require.Len(t, got, 2, "whole sequence is returned when any memory matches")
		require.Len(t, model.FilterByTags(got, []string{"outdoors"}), 1)

		got, err = s.ListMemoriesByTag(ctx, "erin", []string{"none"})
		require.NoError(t, err)
		require.Empty(t, got)
	})

	t.Run("ValidationErrors", func(t *testing.T) {
		s := newStore(t)
		_, err := s.AppendMemory(ctx, mem("", "2024-01-01", "x"))
		var verr *registrystore.ValidationError
		require.True(t, errors.As(err, &verr))

		_, err = s.AppendMemory(ctx, mem("frank", "", "x"))
		require.True(t, errors.As(err, &verr))
	})

	t.Run("ListAllReturnsEveryUser", func(t *testing.T) {
		s := newStore(t)
		_, err := s.AppendMemory(ctx, mem("u1", "2024-01-01", "a"))
		require.NoError(t, err)
		_, err = s.AppendMemory(ctx, mem("u2", "2024-01-01", "b"))
		require.NoError(t, err)
		_, err = s.AppendMemory(ctx, mem("u2", "2024-01-02", "c"))
		require.NoError(t, err)

		all, err := s.ListAll(ctx)
		require.NoError(t, err)
		require.Len(t, all, 2)
		counts := map[string]int{}
		for _, doc := range all {
			counts[doc.UserID] = len(doc.Memories)
			require.False(t, doc.CreatedAt.IsZero())
			require.False(t, doc.LastUpdated.Before(doc.CreatedAt))
		}
		require.Equal(t, map[string]int{"u1": 1, "u2": 2}, counts)
	})

	t.Run("ConcurrentAppendsAreNotLost", func(t *testing.T) {
		s := newStore(t)
		const n = 20
		var wg sync.WaitGroup
		errs := make(chan error, n)
		for i := range n {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := s.AppendMemory(ctx, mem("grace", "2024-04-01", fmt.Sprintf("c%d", i)))
				errs <- err
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}
		got, err := s.ListMemories(ctx, "grace", 0)
		require.NoError(t, err)
		require.Len(t, got, n)

		all, err := s.ListAll(ctx)
		require.NoError(t, err)
		require.Len(t, all, 1, "concurrent first appends create one document")
	})

	t.Run("Ping", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Ping(ctx))
	})
}
