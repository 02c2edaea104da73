package serve

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"github.com/memoryweaver/memory-weaver/internal/config"
	"github.com/memoryweaver/memory-weaver/internal/plugin/generate/disabled"
	routesystem "github.com/memoryweaver/memory-weaver/internal/plugin/route/system"
	storemetrics "github.com/memoryweaver/memory-weaver/internal/plugin/store/metrics"
	registrygenerate "github.com/memoryweaver/memory-weaver/internal/registry/generate"
	registrymedia "github.com/memoryweaver/memory-weaver/internal/registry/media"
	registrymigrate "github.com/memoryweaver/memory-weaver/internal/registry/migrate"
	registryroute "github.com/memoryweaver/memory-weaver/internal/registry/route"
	registrystore "github.com/memoryweaver/memory-weaver/internal/registry/store"
	"github.com/memoryweaver/memory-weaver/internal/story"
	"github.com/memoryweaver/memory-weaver/internal/telemetry"
)

// Server holds the running server and its subsystems.
type Server struct {
	Config   *config.Config
	Services *registryroute.Services
	Router   *gin.Engine
	Running  *Running
}

// Shutdown stops accepting requests, drains in-flight ones and closes the store.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.Running.Close(ctx)
	if cerr := s.Services.Store.Close(ctx); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// StartServer initializes all subsystems and starts the HTTP listener.
// Use cfg.Listener.Port=0 for a random port. Actual port: Server.Running.Port.
func StartServer(ctx context.Context, cfg *config.Config) (*Server, error) {
	log.Info("Starting memory weaver",
		"port", cfg.Listener.Port,
		"db", cfg.DatastoreType,
		"generate", cfg.GenerateType,
		"media", cfg.MediaType,
	)

	// Initialize Prometheus metrics with configured constant labels.
	metricsLabels, err := telemetry.ParseMetricsLabels(cfg.MetricsLabels)
	if err != nil {
		return nil, fmt.Errorf("invalid --metrics-labels: %w", err)
	}
	telemetry.InitMetrics(metricsLabels)

	svc, err := LoadServices(ctx, cfg)
	if err != nil {
		return nil, err
	}

	router, err := NewRouter(cfg, svc)
	if err != nil {
		_ = svc.Store.Close(ctx)
		return nil, err
	}

	running, err := listen(cfg.Listener, router)
	if err != nil {
		_ = svc.Store.Close(ctx)
		return nil, err
	}
	log.Info("Server listening", "port", running.Port, "routes", registryroute.Names())

	routesystem.MarkReady()
	return &Server{
		Config:   cfg,
		Services: svc,
		Router:   router,
		Running:  running,
	}, nil
}

// LoadServices runs migrations and builds the store, generative provider,
// media store and story pipeline selected by cfg. ctx must carry cfg.
func LoadServices(ctx context.Context, cfg *config.Config) (*registryroute.Services, error) {
	if config.FromContext(ctx) == nil {
		ctx = config.WithContext(ctx, cfg)
	}

	if err := registrymigrate.RunAll(ctx); err != nil {
		return nil, fmt.Errorf("migrations failed: %w", err)
	}

	storeLoader, err := registrystore.Select(cfg.DatastoreType)
	if err != nil {
		return nil, err
	}
	store, err := storeLoader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}
	store = storemetrics.Wrap(store)

	provider, err := loadProvider(ctx, cfg)
	if err != nil {
		_ = store.Close(ctx)
		return nil, err
	}

	mediaLoader, err := registrymedia.Select(cfg.MediaType)
	if err != nil {
		_ = store.Close(ctx)
		return nil, err
	}
	media, err := mediaLoader(ctx)
	if err != nil {
		_ = store.Close(ctx)
		return nil, fmt.Errorf("failed to initialize media store: %w", err)
	}

	return &registryroute.Services{
		Config:  cfg,
		Store:   store,
		Media:   media,
		Stories: story.New(cfg, store, provider, media),
	}, nil
}

// loadProvider selects the generative provider. A missing API key is not fatal:
// the service starts and story requests answer 503.
func loadProvider(ctx context.Context, cfg *config.Config) (registrygenerate.Provider, error) {
	loader, err := registrygenerate.Select(cfg.GenerateType)
	if err != nil {
		return nil, err
	}
	provider, err := loader(ctx)
	if errors.Is(err, registrygenerate.ErrNotConfigured) {
		log.Warn("Story generation disabled", "reason", err)
		return disabled.Provider{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s provider: %w", cfg.GenerateType, err)
	}
	return provider, nil
}

// NewRouter builds the gin engine with middleware and every registered route plugin.
func NewRouter(cfg *config.Config, svc *registryroute.Services) (*gin.Engine, error) {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(telemetry.RequestIDMiddleware())
	if cfg.AccessLogProbes {
		router.Use(telemetry.AccessLogMiddleware())
	} else {
		router.Use(telemetry.AccessLogMiddleware("/health", "/ready", "/metrics"))
	}
	router.Use(telemetry.MetricsMiddleware())
	if cfg.CORSEnabled {
		router.Use(corsMiddleware(cfg.CORSOrigins))
	}
	router.Use(maxBodySizeMiddleware(cfg.MaxBodySize))

	if err := registryroute.MountAll(router, svc); err != nil {
		return nil, fmt.Errorf("failed to load routes: %w", err)
	}
	return router, nil
}
