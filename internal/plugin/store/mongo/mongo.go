package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/memoryweaver/memory-weaver/internal/config"
	"github.com/memoryweaver/memory-weaver/internal/model"
	registrymigrate "github.com/memoryweaver/memory-weaver/internal/registry/migrate"
	registrystore "github.com/memoryweaver/memory-weaver/internal/registry/store"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// CollectionName holds one document per user.
const CollectionName = "memories"

func init() {
	registrystore.Register(registrystore.Plugin{
		Name: "mongo",
		Loader: func(ctx context.Context) (registrystore.MemoryStore, error) {
			cfg := config.FromContext(ctx)
			client, err := Connect(ctx, cfg)
			if err != nil {
				return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
			}
			log.Info("Connected to MongoDB", "db", cfg.DBName)
			return New(client, cfg.DBName), nil
		},
	})

	registrymigrate.Register(registrymigrate.Plugin{Order: 100, Migrator: &mongoMigrator{}})
}

// Indexes returns the index set for the memories collection.
func Indexes() []mongo.IndexModel {
	return []mongo.IndexModel{
		{Keys: bson.D{{Key: "user_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "memories.tags", Value: 1}}},
		{Keys: bson.D{{Key: "memories.mood", Value: 1}}},
	}
}

type mongoMigrator struct{}

func (m *mongoMigrator) Name() string { return "mongo-indexes" }

func (m *mongoMigrator) Migrate(ctx context.Context) error {
	cfg := config.FromContext(ctx)
	if cfg == nil || !cfg.DatastoreMigrateAtStart || cfg.DatastoreType != "mongo" {
		return nil
	}

	log.Info("Running migration", "name", m.Name())
	client, err := Connect(ctx, cfg)
	if err != nil {
		return fmt.Errorf("mongo migration: %w", err)
	}
	defer client.Disconnect(context.Background())

	coll := client.Database(cfg.DBName).Collection(CollectionName)
	if _, err := coll.Indexes().CreateMany(ctx, Indexes()); err != nil {
		return fmt.Errorf("mongo migration: create indexes: %w", ClassifyError(err))
	}
	log.Info("MongoDB indexes ready", "db", cfg.DBName, "collection", CollectionName)
	return nil
}

// MongoStore implements MemoryStore with one document per user.
type MongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
	now    func() time.Time
}

// New wraps a connected client.
func New(client *mongo.Client, dbName string) *MongoStore {
	return &MongoStore{
		client: client,
		coll:   client.Database(dbName).Collection(CollectionName),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *MongoStore) EnsureUser(ctx context.Context, userID string) error {
	if err := registrystore.ValidateUserID(userID); err != nil {
		return err
	}
	now := s.now()
	_, err := s.coll.UpdateOne(ctx,
		bson.M{"user_id": userID},
		bson.M{"$setOnInsert": bson.M{
			"memories":     bson.A{},
			"created_at":   now,
			"last_updated": now,
		}},
		options.UpdateOne().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("ensure user: %w", ClassifyError(err))
	}
	return nil
}

func (s *MongoStore) AppendMemory(ctx context.Context, memory model.Memory) (*model.Memory, error) {
	if err := registrystore.ValidateMemory(&memory); err != nil {
		return nil, err
	}
	now := s.now()
	memory.CreatedAt = now

	res, err := s.coll.UpdateOne(ctx,
		bson.M{"user_id": memory.UserID},
		bson.M{
			"$push":        bson.M{"memories": memory},
			"$setOnInsert": bson.M{"created_at": now},
			"$set":         bson.M{"last_updated": now},
		},
		options.UpdateOne().SetUpsert(true),
	)
	if err != nil {
		return nil, fmt.Errorf("append memory: %w", ClassifyError(err))
	}
	if res.ModifiedCount == 0 && res.UpsertedCount == 0 {
		return nil, fmt.Errorf("append memory: no document modified for user %s", memory.UserID)
	}
	return &memory, nil
}

func (s *MongoStore) findOne(ctx context.Context, filter bson.M, opts ...options.Lister[options.FindOneOptions]) (*model.UserMemories, error) {
	var doc model.UserMemories
	err := s.coll.FindOne(ctx, filter, opts...).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, ClassifyError(err)
	}
	return &doc, nil
}

func (s *MongoStore) ListMemories(ctx context.Context, userID string, limit int) ([]model.Memory, error) {
	opts := options.FindOne()
	if limit > 0 {
		opts.SetProjection(bson.M{"memories": bson.M{"$slice": limit}})
	}
	doc, err := s.findOne(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("list memories: %w", err)
	}
	return memoriesOf(doc), nil
}

func (s *MongoStore) ListMemoriesByTag(ctx context.Context, userID string, tags []string) ([]model.Memory, error) {
	if len(tags) == 0 {
		return []model.Memory{}, nil
	}
	doc, err := s.findOne(ctx, bson.M{
		"user_id":       userID,
		"memories.tags": bson.M{"$in": tags},
	})
	if err != nil {
		return nil, fmt.Errorf("list memories by tag: %w", err)
	}
	return memoriesOf(doc), nil
}

func (s *MongoStore) ListAll(ctx context.Context) ([]model.UserMemories, error) {
	cur, err := s.coll.Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("list all: %w", ClassifyError(err))
	}
	defer cur.Close(ctx)

	docs := []model.UserMemories{}
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("list all: %w", ClassifyError(err))
	}
	for i := range docs {
		docs[i].Memories = normalizeDecoded(docs[i].Memories)
	}
	return docs, nil
}

func (s *MongoStore) Ping(ctx context.Context) error {
	return ClassifyError(s.client.Ping(ctx, nil))
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func memoriesOf(doc *model.UserMemories) []model.Memory {
	if doc == nil {
		return []model.Memory{}
	}
	return normalizeDecoded(doc.Memories)
}

// normalizeDecoded replaces nil slices left by BSON null or missing fields.
func normalizeDecoded(in []model.Memory) []model.Memory {
	if in == nil {
		return []model.Memory{}
	}
	for i := range in {
		if in[i].Tags == nil {
			in[i].Tags = []string{}
		}
	}
	return in
}
