package config

import (
	"context"
	"os"
	"strings"
	"time"
)

// ListenerConfig holds the network settings for the HTTP listener.
type ListenerConfig struct {
	Port              int
	ReadHeaderTimeout time.Duration
}

type contextKey struct{}

// WithContext returns a new context carrying the given Config.
func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, contextKey{}, cfg)
}

// FromContext retrieves the Config from the context.
func FromContext(ctx context.Context) *Config {
	cfg, _ := ctx.Value(contextKey{}).(*Config)
	return cfg
}

// Config holds all configuration for the memory weaver service.
type Config struct {
	// Database
	DBURL string
	// Datastore backend type: "mongo", "postgres", "sqlite" or "memory".
	DatastoreType string
	// Database (mongo) or schema name used by the document store.
	DBName string
	// Create indexes / tables on startup.
	DatastoreMigrateAtStart bool
	// Connection and server-selection timeouts. Generative calls carry no timeout.
	DBConnectTimeout         time.Duration
	DBServerSelectionTimeout time.Duration
	DBMaxOpenConns           int
	DBMaxIdleConns           int

	// Generative provider: "openai" or "disabled".
	GenerateType string

	// OpenAI
	OpenAIAPIKey      string
	OpenAIBaseURL     string
	OpenAIChatModel   string
	OpenAIImageModel  string
	OpenAIImageSize   string
	OpenAISpeechModel string
	OpenAISpeechVoice string

	// Story defaults.
	StoryDefaultTone      string
	StoryDefaultMaxLength int
	// Number of leading memories fetched from the store before random selection.
	StoryMemoryWindow int

	// Media (generated audio) store: "local", "s3" or "gridfs".
	MediaType string
	MediaDir  string
	// Route prefix under which generated audio is served.
	AudioRoutePrefix string

	// S3
	S3Bucket       string
	S3Prefix       string
	S3UsePathStyle bool

	// Server
	Listener    ListenerConfig
	CORSEnabled bool
	CORSOrigins string
	// AccessLogProbes enables access logging for /health, /ready and /metrics.
	AccessLogProbes bool
	MaxBodySize     int64
	// Graceful shutdown drain timeout (seconds)
	DrainTimeout int

	// MetricsLabels is a comma-separated list of key=value pairs added as
	// constant labels to all Prometheus metrics. Values support ${VAR} expansion.
	MetricsLabels string

	// Temporary file directory. Empty uses the media directory.
	TempDir string

	LogLevel string
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		DBURL:                    "mongodb://localhost:27017/",
		DatastoreType:            "mongo",
		DBName:                   "memory_weaver",
		DatastoreMigrateAtStart:  true,
		DBConnectTimeout:         5 * time.Second,
		DBServerSelectionTimeout: 5 * time.Second,
		DBMaxOpenConns:           25,
		DBMaxIdleConns:           5,
		GenerateType:             "openai",
		OpenAIBaseURL:            "https://api.openai.com/v1",
		OpenAIChatModel:          "gpt-3.5-turbo",
		OpenAIImageModel:         "dall-e-2",
		OpenAIImageSize:          "1024x1024",
		OpenAISpeechModel:        "tts-1",
		OpenAISpeechVoice:        "alloy",
		StoryDefaultTone:         "heartwarming",
		StoryDefaultMaxLength:    500,
		StoryMemoryWindow:        100,
		MediaType:                "local",
		MediaDir:                 "audio",
		AudioRoutePrefix:         "/audio",
		Listener: ListenerConfig{
			Port:              8000,
			ReadHeaderTimeout: 5 * time.Second,
		},
		CORSEnabled:   true,
		CORSOrigins:   "*",
		MaxBodySize:   1024 * 1024,
		DrainTimeout:  30,
		MetricsLabels: "service=memory-weaver",
		LogLevel:      "info",
	}
}

// ResolvedTempDir returns the configured temp directory, falling back to the
// media directory so a rename into place never crosses filesystems.
func (c *Config) ResolvedTempDir() string {
	if c == nil {
		return os.TempDir()
	}
	if dir := strings.TrimSpace(c.TempDir); dir != "" {
		return dir
	}
	if dir := strings.TrimSpace(c.MediaDir); dir != "" {
		return dir
	}
	return os.TempDir()
}

// AudioURL returns the public retrieval path for a stored audio file.
func (c *Config) AudioURL(name string) string {
	prefix := "/audio"
	if c != nil && strings.TrimSpace(c.AudioRoutePrefix) != "" {
		prefix = "/" + strings.Trim(strings.TrimSpace(c.AudioRoutePrefix), "/")
	}
	return prefix + "/" + name
}
