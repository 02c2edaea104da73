// Package apierror maps typed store and generation errors to HTTP responses.
package apierror

import (
	"errors"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	registrygenerate "github.com/memoryweaver/memory-weaver/internal/registry/generate"
	registrystore "github.com/memoryweaver/memory-weaver/internal/registry/store"
)

// Status returns the HTTP status and client-facing detail for err.
func Status(err error) (int, string) {
	var (
		notFound    *registrystore.NotFoundError
		validation  *registrystore.ValidationError
		auth        *registrystore.UpstreamAuthError
		unavailable *registrystore.UpstreamUnavailableError
		generation  *registrygenerate.GenerationError
		tooLarge    *http.MaxBytesError
	)
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge, "request body too large"
	case errors.As(err, &notFound):
		return http.StatusNotFound, err.Error()
	case errors.As(err, &validation):
		return http.StatusBadRequest, err.Error()
	case errors.As(err, &auth):
		return http.StatusUnauthorized, err.Error()
	case errors.Is(err, registrygenerate.ErrNotConfigured):
		return http.StatusServiceUnavailable, registrygenerate.ErrNotConfigured.Error()
	case errors.As(err, &unavailable):
		return http.StatusServiceUnavailable, err.Error()
	case errors.As(err, &generation):
		return http.StatusInternalServerError, "Failed to generate story: " + err.Error()
	default:
		return http.StatusInternalServerError, err.Error()
	}
}

// Write aborts the request with the mapped status and a {"detail": ...} body.
func Write(c *gin.Context, err error) {
	status, detail := Status(err)
	if status >= http.StatusInternalServerError {
		log.Error("Request failed", "path", c.FullPath(), "status", status, "err", err)
	}
	c.AbortWithStatusJSON(status, gin.H{"detail": detail})
}

// Detail aborts the request with the given status and message.
func Detail(c *gin.Context, status int, detail string) {
	c.AbortWithStatusJSON(status, gin.H{"detail": detail})
}

// Bind reports a request body that failed to decode: 413 past the body
// limit, 400 otherwise.
func Bind(c *gin.Context, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		Detail(c, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}
	Detail(c, http.StatusBadRequest, err.Error())
}
