package serve

import (
	"context"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"github.com/memoryweaver/memory-weaver/internal/config"
	"github.com/memoryweaver/memory-weaver/internal/plugin/route/apierror"
	"github.com/memoryweaver/memory-weaver/internal/telemetry"
	"github.com/urfave/cli/v3"

	// Import all plugins to trigger init() registration
	_ "github.com/memoryweaver/memory-weaver/internal/plugin/generate/disabled"
	_ "github.com/memoryweaver/memory-weaver/internal/plugin/generate/openai"
	_ "github.com/memoryweaver/memory-weaver/internal/plugin/media/gridfs"
	_ "github.com/memoryweaver/memory-weaver/internal/plugin/media/local"
	_ "github.com/memoryweaver/memory-weaver/internal/plugin/media/s3store"
	_ "github.com/memoryweaver/memory-weaver/internal/plugin/route/memories"
	_ "github.com/memoryweaver/memory-weaver/internal/plugin/route/stories"
	_ "github.com/memoryweaver/memory-weaver/internal/plugin/route/system"
	_ "github.com/memoryweaver/memory-weaver/internal/plugin/store/gormstore"
	_ "github.com/memoryweaver/memory-weaver/internal/plugin/store/memory"
	_ "github.com/memoryweaver/memory-weaver/internal/plugin/store/mongo"
)

// Command returns the serve sub-command.
func Command() *cli.Command {
	cfg := config.DefaultConfig()
	var readHeaderTimeoutSecs int = 5
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the memory weaver HTTP server",
		Flags: flags(&cfg, &readHeaderTimeoutSecs),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if err := cfg.ApplyEnvOverrides(); err != nil {
				return err
			}
			if err := telemetry.SetLogLevel(cfg.LogLevel); err != nil {
				return err
			}
			cfg.Listener.ReadHeaderTimeout = time.Duration(readHeaderTimeoutSecs) * time.Second
			return run(config.WithContext(ctx, &cfg), cfg)
		},
	}
}

func flags(cfg *config.Config, readHeaderTimeoutSecs *int) []cli.Flag {
	return []cli.Flag{

		// ── Server ────────────────────────────────────────────────
		&cli.IntFlag{
			Name:        "port",
			Category:    "Server:",
			Sources:     cli.EnvVars("MEMORY_WEAVER_PORT", "PORT"),
			Destination: &cfg.Listener.Port,
			Value:       cfg.Listener.Port,
			Usage:       "HTTP server port",
		},
		&cli.IntFlag{
			Name:        "read-header-timeout-seconds",
			Category:    "Server:",
			Sources:     cli.EnvVars("MEMORY_WEAVER_READ_HEADER_TIMEOUT_SECONDS"),
			Destination: readHeaderTimeoutSecs,
			Value:       *readHeaderTimeoutSecs,
			Usage:       "HTTP read header timeout in seconds",
		},
		&cli.StringFlag{
			Name:        "temp-dir",
			Category:    "Server:",
			Sources:     cli.EnvVars("MEMORY_WEAVER_TEMP_DIR"),
			Destination: &cfg.TempDir,
			Usage:       "Directory for temporary files; defaults to the media directory",
		},
		&cli.BoolFlag{
			Name:        "access-log-probes",
			Category:    "Server:",
			Sources:     cli.EnvVars("MEMORY_WEAVER_ACCESS_LOG_PROBES"),
			Destination: &cfg.AccessLogProbes,
			Usage:       "Enable HTTP access logging for /health, /ready and /metrics",
		},
		&cli.StringFlag{
			Name:        "log-level",
			Category:    "Server:",
			Sources:     cli.EnvVars("MEMORY_WEAVER_LOG_LEVEL", "LOG_LEVEL"),
			Destination: &cfg.LogLevel,
			Value:       cfg.LogLevel,
			Usage:       "Log level (debug, info, warn, error)",
		},

		// ── Database ──────────────────────────────────────────────
		&cli.StringFlag{
			Name:        "db-kind",
			Category:    "Database:",
			Sources:     cli.EnvVars("MEMORY_WEAVER_DB_KIND"),
			Destination: &cfg.DatastoreType,
			Value:       cfg.DatastoreType,
			Usage:       "Memory store (mongo|postgres|sqlite|memory)",
		},
		&cli.StringFlag{
			Name:        "db-url",
			Category:    "Database:",
			Sources:     cli.EnvVars("MEMORY_WEAVER_DB_URL", "MONGO_URI"),
			Destination: &cfg.DBURL,
			Value:       cfg.DBURL,
			Usage:       "Database connection URL (mongodb://, postgres://, or a sqlite file path)",
		},
		&cli.IntFlag{
			Name:        "db-max-open-conns",
			Category:    "Database:",
			Sources:     cli.EnvVars("MEMORY_WEAVER_DB_MAX_OPEN_CONNS"),
			Destination: &cfg.DBMaxOpenConns,
			Value:       cfg.DBMaxOpenConns,
			Usage:       "Maximum open database connections",
		},
		&cli.IntFlag{
			Name:        "db-max-idle-conns",
			Category:    "Database:",
			Sources:     cli.EnvVars("MEMORY_WEAVER_DB_MAX_IDLE_CONNS"),
			Destination: &cfg.DBMaxIdleConns,
			Value:       cfg.DBMaxIdleConns,
			Usage:       "Maximum idle database connections",
		},

		// ── Story Generation ──────────────────────────────────────
		&cli.StringFlag{
			Name:        "generate-kind",
			Category:    "Story Generation:",
			Sources:     cli.EnvVars("MEMORY_WEAVER_GENERATE_KIND"),
			Destination: &cfg.GenerateType,
			Value:       cfg.GenerateType,
			Usage:       "Generative provider (openai|disabled)",
		},
		&cli.StringFlag{
			Name:        "openai-api-key",
			Category:    "Story Generation:",
			Sources:     cli.EnvVars("MEMORY_WEAVER_OPENAI_API_KEY", "OPENAI_API_KEY"),
			Destination: &cfg.OpenAIAPIKey,
			Usage:       "OpenAI API key; story generation answers 503 when unset",
		},
		&cli.StringFlag{
			Name:        "openai-chat-model",
			Category:    "Story Generation:",
			Sources:     cli.EnvVars("MEMORY_WEAVER_OPENAI_CHAT_MODEL"),
			Destination: &cfg.OpenAIChatModel,
			Value:       cfg.OpenAIChatModel,
			Usage:       "Model used for story and title text",
		},
		&cli.StringFlag{
			Name:        "openai-image-model",
			Category:    "Story Generation:",
			Sources:     cli.EnvVars("MEMORY_WEAVER_OPENAI_IMAGE_MODEL"),
			Destination: &cfg.OpenAIImageModel,
			Value:       cfg.OpenAIImageModel,
			Usage:       "Model used for the story illustration",
		},
		&cli.StringFlag{
			Name:        "openai-speech-model",
			Category:    "Story Generation:",
			Sources:     cli.EnvVars("MEMORY_WEAVER_OPENAI_SPEECH_MODEL"),
			Destination: &cfg.OpenAISpeechModel,
			Value:       cfg.OpenAISpeechModel,
			Usage:       "Model used for narration",
		},
		&cli.StringFlag{
			Name:        "openai-speech-voice",
			Category:    "Story Generation:",
			Sources:     cli.EnvVars("MEMORY_WEAVER_OPENAI_SPEECH_VOICE"),
			Destination: &cfg.OpenAISpeechVoice,
			Value:       cfg.OpenAISpeechVoice,
			Usage:       "Narration voice",
		},
		&cli.StringFlag{
			Name:        "story-default-tone",
			Category:    "Story Generation:",
			Sources:     cli.EnvVars("MEMORY_WEAVER_STORY_DEFAULT_TONE"),
			Destination: &cfg.StoryDefaultTone,
			Value:       cfg.StoryDefaultTone,
			Usage:       "Tone used when a request does not set one",
		},
		&cli.IntFlag{
			Name:        "story-default-max-length",
			Category:    "Story Generation:",
			Sources:     cli.EnvVars("MEMORY_WEAVER_STORY_DEFAULT_MAX_LENGTH"),
			Destination: &cfg.StoryDefaultMaxLength,
			Value:       cfg.StoryDefaultMaxLength,
			Usage:       "Word limit used when a request does not set one",
		},

		// ── Media Storage ─────────────────────────────────────────
		&cli.StringFlag{
			Name:        "media-kind",
			Category:    "Media Storage:",
			Sources:     cli.EnvVars("MEMORY_WEAVER_MEDIA_KIND"),
			Destination: &cfg.MediaType,
			Value:       cfg.MediaType,
			Usage:       "Narration audio store (local|s3|gridfs)",
		},
		&cli.StringFlag{
			Name:        "media-dir",
			Category:    "Media Storage:",
			Sources:     cli.EnvVars("MEMORY_WEAVER_MEDIA_DIR"),
			Destination: &cfg.MediaDir,
			Value:       cfg.MediaDir,
			Usage:       "Directory for the local media store",
		},
		&cli.StringFlag{
			Name:        "media-s3-bucket",
			Category:    "Media Storage:",
			Sources:     cli.EnvVars("MEMORY_WEAVER_MEDIA_S3_BUCKET"),
			Destination: &cfg.S3Bucket,
			Usage:       "S3 bucket for narration audio",
		},
		&cli.StringFlag{
			Name:        "audio-route-prefix",
			Category:    "Media Storage:",
			Sources:     cli.EnvVars("MEMORY_WEAVER_AUDIO_ROUTE_PREFIX"),
			Destination: &cfg.AudioRoutePrefix,
			Value:       cfg.AudioRoutePrefix,
			Usage:       "Path prefix used in returned audio URLs",
		},

		// ── Monitoring ────────────────────────────────────────────
		&cli.StringFlag{
			Name:        "metrics-labels",
			Category:    "Monitoring:",
			Sources:     cli.EnvVars("MEMORY_WEAVER_METRICS_LABELS"),
			Destination: &cfg.MetricsLabels,
			Value:       cfg.MetricsLabels,
			Usage:       "Comma-separated key=value pairs added as constant labels to all Prometheus metrics. Supports ${VAR} expansion.",
		},
	}
}

func run(ctx context.Context, cfg config.Config) error {
	srv, err := StartServer(ctx, &cfg)
	if err != nil {
		return err
	}

	<-ctx.Done()
	log.Info("Shutting down...")

	drainCtx, drainCancel := context.WithTimeout(context.Background(), time.Duration(cfg.DrainTimeout)*time.Second)
	defer drainCancel()
	if err := srv.Shutdown(drainCtx); err != nil {
		log.Error("Shutdown error", "err", err)
	}
	log.Info("Server stopped")
	return nil
}

// maxBodySizeMiddleware rejects requests whose declared length exceeds the
// limit and caps the readable body of the rest.
func maxBodySizeMiddleware(maxBodySize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if maxBodySize <= 0 || c.Request.Body == nil {
			c.Next()
			return
		}
		if c.Request.ContentLength > maxBodySize {
			apierror.Detail(c, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodySize)
		c.Next()
	}
}

