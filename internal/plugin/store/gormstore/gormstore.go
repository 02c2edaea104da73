package gormstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/memoryweaver/memory-weaver/internal/config"
	"github.com/memoryweaver/memory-weaver/internal/model"
	registrymigrate "github.com/memoryweaver/memory-weaver/internal/registry/migrate"
	registrystore "github.com/memoryweaver/memory-weaver/internal/registry/store"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

func init() {
	registrystore.Register(registrystore.Plugin{
		Name: "postgres",
		Loader: func(ctx context.Context) (registrystore.MemoryStore, error) {
			cfg := config.FromContext(ctx)
			db, err := Open(ctx, cfg, "postgres")
			if err != nil {
				return nil, fmt.Errorf("failed to connect to postgres: %w", err)
			}
			return New(db), nil
		},
	})
	registrystore.Register(registrystore.Plugin{
		Name: "sqlite",
		Loader: func(ctx context.Context) (registrystore.MemoryStore, error) {
			cfg := config.FromContext(ctx)
			db, err := Open(ctx, cfg, "sqlite")
			if err != nil {
				return nil, fmt.Errorf("failed to open sqlite: %w", err)
			}
			// Embedded databases have no separate migration step.
			if err := AutoMigrate(ctx, db); err != nil {
				return nil, err
			}
			return New(db), nil
		},
	})

	registrymigrate.Register(registrymigrate.Plugin{Order: 100, Migrator: &postgresMigrator{}})
}

// Open connects with the named dialect and applies pool settings.
func Open(ctx context.Context, cfg *config.Config, dialect string) (*gorm.DB, error) {
	if cfg == nil {
		return nil, fmt.Errorf("gormstore: missing config in context")
	}
	var dialector gorm.Dialector
	switch dialect {
	case "postgres":
		dialector = postgres.Open(cfg.DBURL)
	case "sqlite":
		dialector = sqlite.Open(cfg.DBURL)
	default:
		return nil, fmt.Errorf("gormstore: unsupported dialect %q", dialect)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, ClassifyError(err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying db: %w", err)
	}
	if dialect == "sqlite" {
		// SQLite allows one writer; a single connection serializes appends.
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(cfg.DBMaxOpenConns)
		sqlDB.SetMaxIdleConns(cfg.DBMaxIdleConns)
	}

	pingCtx := ctx
	if cfg.DBConnectTimeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, cfg.DBConnectTimeout)
		defer cancel()
	}
	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()
		return nil, ClassifyError(err)
	}
	return db, nil
}

// AutoMigrate creates or updates the memory tables.
func AutoMigrate(ctx context.Context, db *gorm.DB) error {
	if err := db.WithContext(ctx).AutoMigrate(models()...); err != nil {
		return fmt.Errorf("gormstore: auto migrate: %w", ClassifyError(err))
	}
	return nil
}

type postgresMigrator struct{}

func (m *postgresMigrator) Name() string { return "postgres-schema" }

func (m *postgresMigrator) Migrate(ctx context.Context) error {
	cfg := config.FromContext(ctx)
	if cfg == nil || !cfg.DatastoreMigrateAtStart || cfg.DatastoreType != "postgres" {
		return nil
	}
	log.Info("Running migration", "name", m.Name())
	db, err := Open(ctx, cfg, "postgres")
	if err != nil {
		return fmt.Errorf("migration: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	if err := AutoMigrate(ctx, db); err != nil {
		return err
	}
	log.Info("Postgres schema migration complete")
	return nil
}

// Store implements MemoryStore on relational tables.
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

// New wraps an open database. Tables must already exist.
func New(db *gorm.DB) *Store {
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (s *Store) EnsureUser(ctx context.Context, userID string) error {
	if err := registrystore.ValidateUserID(userID); err != nil {
		return err
	}
	now := s.now()
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&userRow{UserID: userID, CreatedAt: now, LastUpdated: now}).Error
	if err != nil {
		return fmt.Errorf("ensure user: %w", ClassifyError(err))
	}
	return nil
}

func (s *Store) AppendMemory(ctx context.Context, memory model.Memory) (*model.Memory, error) {
	if err := registrystore.ValidateMemory(&memory); err != nil {
		return nil, err
	}
	now := s.now()
	memory.CreatedAt = now

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Upsert bumps the sequence and locks the user row until commit.
		err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.Assignments(map[string]any{
				"next_seq":     gorm.Expr("user_memories.next_seq + 1"),
				"last_updated": now,
			}),
		}).Create(&userRow{UserID: memory.UserID, NextSeq: 1, CreatedAt: now, LastUpdated: now}).Error
		if err != nil {
			return err
		}

		var user userRow
		if err := tx.Where("user_id = ?", memory.UserID).Take(&user).Error; err != nil {
			return err
		}
		return tx.Create(&memoryRow{
			UserID:      memory.UserID,
			Seq:         user.NextSeq,
			Date:        memory.Date,
			Description: memory.Description,
			Tags:        nonNilTags(memory.Tags),
			Mood:        memory.Mood,
			Location:    memory.Location,
			CreatedAt:   now,
		}).Error
	})
	if err != nil {
		return nil, fmt.Errorf("append memory: %w", ClassifyError(err))
	}
	return &memory, nil
}

func (s *Store) ListMemories(ctx context.Context, userID string, limit int) ([]model.Memory, error) {
	q := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("seq ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []memoryRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list memories: %w", ClassifyError(err))
	}
	return toMemories(rows), nil
}

func (s *Store) ListMemoriesByTag(ctx context.Context, userID string, tags []string) ([]model.Memory, error) {
	if len(tags) == 0 {
		return []model.Memory{}, nil
	}
	all, err := s.ListMemories(ctx, userID, 0)
	if err != nil {
		return nil, err
	}
	for _, m := range all {
		if m.HasAnyTag(tags) {
			return all, nil
		}
	}
	return []model.Memory{}, nil
}

func (s *Store) ListAll(ctx context.Context) ([]model.UserMemories, error) {
	var users []userRow
	if err := s.db.WithContext(ctx).Order("created_at ASC, user_id ASC").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("list all: %w", ClassifyError(err))
	}
	var rows []memoryRow
	if err := s.db.WithContext(ctx).Order("user_id ASC, seq ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list all: %w", ClassifyError(err))
	}
	byUser := make(map[string][]memoryRow, len(users))
	for _, r := range rows {
		byUser[r.UserID] = append(byUser[r.UserID], r)
	}

	out := make([]model.UserMemories, 0, len(users))
	for _, u := range users {
		out = append(out, model.UserMemories{
			UserID:      u.UserID,
			Memories:    toMemories(byUser[u.UserID]),
			CreatedAt:   u.CreatedAt.UTC(),
			LastUpdated: u.LastUpdated.UTC(),
		})
	}
	return out, nil
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return ClassifyError(sqlDB.PingContext(ctx))
}

func (s *Store) Close(context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func nonNilTags(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}

func toMemories(rows []memoryRow) []model.Memory {
	out := make([]model.Memory, 0, len(rows))
	for _, r := range rows {
		tags := []string(r.Tags)
		if tags == nil {
			tags = []string{}
		}
		out = append(out, model.Memory{
			UserID:      r.UserID,
			Date:        r.Date,
			Description: r.Description,
			Tags:        tags,
			Mood:        r.Mood,
			Location:    r.Location,
			CreatedAt:   r.CreatedAt.UTC(),
		})
	}
	return out
}

// Postgres SQLSTATE codes for rejected credentials.
const (
	sqlStateInvalidPassword      = "28P01"
	sqlStateInvalidAuthorization = "28000"
)

// ClassifyError maps driver errors onto the store error taxonomy.
func ClassifyError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) &&
		(pgErr.Code == sqlStateInvalidPassword || pgErr.Code == sqlStateInvalidAuthorization) {
		return &registrystore.UpstreamAuthError{Service: "postgres", Err: err}
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) || pgconn.Timeout(err) || errors.Is(err, context.DeadlineExceeded) {
		return &registrystore.UpstreamUnavailableError{Service: "postgres", Err: err}
	}
	return err
}
