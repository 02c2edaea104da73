package mongo

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/memoryweaver/memory-weaver/internal/config"
	registrystore "github.com/memoryweaver/memory-weaver/internal/registry/store"
	"github.com/memoryweaver/memory-weaver/internal/testutil/storetest"
	"github.com/memoryweaver/memory-weaver/internal/testutil/testmongo"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
)

func TestMongoStoreContract(t *testing.T) {
	uri := testmongo.StartMongo(t)
	ctx := context.Background()

	n := 0
	storetest.Run(t, func(t *testing.T) registrystore.MemoryStore {
		n++
		cfg := config.DefaultConfig()
		cfg.DBURL = uri
		cfg.DBName = fmt.Sprintf("memory_weaver_contract_%d", n)
		cfg.DatastoreType = "mongo"

		require.NoError(t, (&mongoMigrator{}).Migrate(config.WithContext(ctx, &cfg)))

		client, err := Connect(ctx, &cfg)
		require.NoError(t, err)
		t.Cleanup(func() {
			_ = client.Database(cfg.DBName).Drop(context.Background())
			_ = client.Disconnect(context.Background())
		})
		return New(client, cfg.DBName)
	})
}

func TestMongoIndexes(t *testing.T) {
	uri := testmongo.StartMongo(t)
	ctx := context.Background()

	cfg := config.DefaultConfig()
	cfg.DBURL = uri
	require.NoError(t, (&mongoMigrator{}).Migrate(config.WithContext(ctx, &cfg)))

	client, err := Connect(ctx, &cfg)
	require.NoError(t, err)
	defer client.Disconnect(ctx)

	cur, err := client.Database(cfg.DBName).Collection(CollectionName).Indexes().List(ctx)
	require.NoError(t, err)
	var specs []bson.M
	require.NoError(t, cur.All(ctx, &specs))

	names := map[string]bool{}
	for _, spec := range specs {
		names[spec["name"].(string)] = true
	}
	for _, want := range []string{"user_id_1", "created_at_-1", "memories.tags_1", "memories.mood_1"} {
		require.True(t, names[want], "missing index %s", want)
	}
}

func TestConnectUnreachableIsUnavailable(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.DBURL = "mongodb://127.0.0.1:1/"
	cfg.DBConnectTimeout = 200 * time.Millisecond
	cfg.DBServerSelectionTimeout = 200 * time.Millisecond

	_, err := Connect(context.Background(), &cfg)
	var unavailable *registrystore.UpstreamUnavailableError
	require.True(t, errors.As(err, &unavailable), "got %v", err)
}

func TestMigratorSkipsOtherBackends(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.DatastoreType = "memory"
	cfg.DBURL = "mongodb://127.0.0.1:1/"
	require.NoError(t, (&mongoMigrator{}).Migrate(config.WithContext(context.Background(), &cfg)))
}
