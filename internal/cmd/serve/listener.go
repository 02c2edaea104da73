package serve

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/memoryweaver/memory-weaver/internal/config"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

// Running is a bound HTTP listener.
type Running struct {
	Addr   net.Addr
	Port   int
	Server *http.Server
	Close  func(ctx context.Context) error
}

// listen binds cfg.Port (0 picks a free port) and serves handler over
// HTTP/1.1 and cleartext HTTP/2 until Close is called.
func listen(cfg config.ListenerConfig, handler http.Handler) (*Running, error) {
	if cfg.ReadHeaderTimeout == 0 {
		cfg.ReadHeaderTimeout = 5 * time.Second
	}

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		return nil, fmt.Errorf("listen failed: %w", err)
	}

	srv := &http.Server{
		Handler:           h2c.NewHandler(handler, &http2.Server{}),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
	go func() {
		if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
		}
	}()

	var closeOnce sync.Once
	closeFn := func(ctx context.Context) error {
		var shutdownErr error
		closeOnce.Do(func() {
			if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
				shutdownErr = err
			}
		})
		return shutdownErr
	}

	port := 0
	if tcp, ok := lis.Addr().(*net.TCPAddr); ok {
		port = tcp.Port
	}
	return &Running{
		Addr:   lis.Addr(),
		Port:   port,
		Server: srv,
		Close:  closeFn,
	}, nil
}
