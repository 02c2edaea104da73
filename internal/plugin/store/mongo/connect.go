package mongo

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/memoryweaver/memory-weaver/internal/config"
	registrystore "github.com/memoryweaver/memory-weaver/internal/registry/store"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// Server error codes that indicate rejected credentials.
const (
	codeUnauthorized         = 13
	codeAuthenticationFailed = 18
)

// Connect opens a client for cfg.DBURL and verifies it with a ping. Failures
// are classified as auth or unavailable errors.
func Connect(ctx context.Context, cfg *config.Config) (*mongo.Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("mongo: missing config in context")
	}
	opts := options.Client().ApplyURI(cfg.DBURL)
	if cfg.DBConnectTimeout > 0 {
		opts.SetConnectTimeout(cfg.DBConnectTimeout)
	}
	if cfg.DBServerSelectionTimeout > 0 {
		opts.SetServerSelectionTimeout(cfg.DBServerSelectionTimeout)
	}
	if cfg.DBMaxOpenConns > 0 {
		opts.SetMaxPoolSize(uint64(cfg.DBMaxOpenConns))
	}
	if cfg.DBMaxIdleConns > 0 {
		opts.SetMinPoolSize(uint64(cfg.DBMaxIdleConns))
	}
	client, err := mongo.Connect(opts)
	if err != nil {
		return nil, ClassifyError(fmt.Errorf("connect: %w", err))
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, ClassifyError(fmt.Errorf("ping: %w", err))
	}
	return client, nil
}

// ClassifyError maps driver errors onto the store error taxonomy. Errors it
// does not recognise are returned unchanged.
func ClassifyError(err error) error {
	if err == nil {
		return nil
	}
	var serverErr mongo.ServerError
	if errors.As(err, &serverErr) &&
		(serverErr.HasErrorCode(codeAuthenticationFailed) || serverErr.HasErrorCode(codeUnauthorized)) {
		return &registrystore.UpstreamAuthError{Service: "mongodb", Err: err}
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "authentication failed") || strings.Contains(msg, "auth error") {
		return &registrystore.UpstreamAuthError{Service: "mongodb", Err: err}
	}
	if mongo.IsNetworkError(err) || mongo.IsTimeout(err) ||
		errors.Is(err, context.DeadlineExceeded) ||
		strings.Contains(msg, "server selection") {
		return &registrystore.UpstreamUnavailableError{Service: "mongodb", Err: err}
	}
	return err
}
