package system

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	registryroute "github.com/memoryweaver/memory-weaver/internal/registry/route"
	registrystore "github.com/memoryweaver/memory-weaver/internal/registry/store"
)

var ready atomic.Bool

// MarkReady signals that the service has finished initializing and is ready to
// serve traffic.
func MarkReady() {
	ready.Store(true)
}

// healthTimeout bounds the database ping behind /health.
const healthTimeout = 2 * time.Second

func init() {
	registryroute.Register(registryroute.Plugin{
		Name:  "system",
		Order: 0,
		Loader: func(r *gin.Engine, svc *registryroute.Services) error {
			MountRoutes(r, svc.Store)
			return nil
		},
	})
}

// MountRoutes mounts health, readiness and metrics endpoints.
func MountRoutes(r *gin.Engine, store registrystore.MemoryStore) {
	// Health: always 200, body reports database reachability.
	r.GET("/health", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
		defer cancel()
		if store == nil {
			c.JSON(http.StatusOK, gin.H{"status": "unhealthy", "database": "disconnected"})
			return
		}
		if err := store.Ping(ctx); err != nil {
			log.Warn("Health check failed", "err", err)
			c.JSON(http.StatusOK, gin.H{"status": "unhealthy", "database": "disconnected"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "database": "connected"})
	})

	// Readiness: service has finished initializing
	r.GET("/ready", func(c *gin.Context) {
		if ready.Load() {
			c.JSON(http.StatusOK, gin.H{"status": "ready"})
		} else {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "starting"})
		}
	})

	// Prometheus metrics
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
}
