package local

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	registrystore "github.com/memoryweaver/memory-weaver/internal/registry/store"
	"github.com/stretchr/testify/require"
)

func TestPutOpen(t *testing.T) {
	ctx := context.Background()
	s, err := New(t.TempDir())
	require.NoError(t, err)

	res, err := s.Put(ctx, "story_abc.mp3", strings.NewReader("mp3-bytes"), "audio/mpeg")
	require.NoError(t, err)
	require.Equal(t, "story_abc.mp3", res.Name)
	require.Equal(t, int64(9), res.Size)

	rc, err := s.Open(ctx, "story_abc.mp3")
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.Equal(t, "mp3-bytes", string(data))
}

func TestOpenMissing(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)

	for _, name := range []string{"nope.mp3", "../secret", ""} {
		_, err := s.Open(context.Background(), name)
		var nf *registrystore.NotFoundError
		require.True(t, errors.As(err, &nf), "name %q: %v", name, err)
	}
}

func TestPutRejectsPaths(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)

	_, err = s.Put(context.Background(), "../escape.mp3", strings.NewReader("x"), "audio/mpeg")
	var verr *registrystore.ValidationError
	require.True(t, errors.As(err, &verr))
}
