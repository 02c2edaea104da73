package gridfs

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/memoryweaver/memory-weaver/internal/config"
	registrystore "github.com/memoryweaver/memory-weaver/internal/registry/store"
	"github.com/memoryweaver/memory-weaver/internal/testutil/testmongo"
	"github.com/stretchr/testify/require"
)

func TestGridFSPutOpen(t *testing.T) {
	uri := testmongo.StartMongo(t)
	ctx := context.Background()

	cfg := config.DefaultConfig()
	cfg.DBURL = uri
	cfg.TempDir = t.TempDir()

	s, err := load(config.WithContext(ctx, &cfg))
	require.NoError(t, err)

	_, err = s.Put(ctx, "story_g.mp3", strings.NewReader("first"), "audio/mpeg")
	require.NoError(t, err)
	res, err := s.Put(ctx, "story_g.mp3", strings.NewReader("second"), "audio/mpeg")
	require.NoError(t, err)
	require.Equal(t, int64(6), res.Size)

	rc, err := s.Open(ctx, "story_g.mp3")
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.Equal(t, "second", string(data), "newest revision wins")

	_, err = s.Open(ctx, "missing.mp3")
	var nf *registrystore.NotFoundError
	require.True(t, errors.As(err, &nf), "got %v", err)
}
