// Package dashboard exposes the HTTP surface consumed by the web dashboard
// UI: window operations, the tab-strip read model, and the SSE push channel.
package dashboard

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/hbeckert/concierge/internal/bridge"
	"github.com/hbeckert/concierge/internal/registry"
	"github.com/hbeckert/concierge/internal/store"
	"github.com/hbeckert/concierge/internal/supervisor"
	"github.com/hbeckert/concierge/internal/tabs"
	"github.com/rs/zerolog"
)

// Opts holds configuration for the dashboard server.
type Opts struct {
	Registry   *registry.Registry
	Supervisor *supervisor.Supervisor
	Tabs       *tabs.Coordinator
	Bus        *bridge.Bus
	Store      *store.Store
	Port       int
	Out        io.Writer
	Log        zerolog.Logger
}

// Start launches the dashboard HTTP server. It blocks until ctx is cancelled,
// then shuts down gracefully.
func Start(ctx context.Context, opts Opts) error {
	if opts.Registry == nil || opts.Supervisor == nil || opts.Tabs == nil || opts.Bus == nil {
		return fmt.Errorf("dashboard: registry, supervisor, tabs and bus are required")
	}
	if opts.Port <= 0 {
		opts.Port = 8321
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	registerRoutes(router, &opts)

	addr := fmt.Sprintf(":%d", opts.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	// Graceful shutdown on context cancellation.
	go func() {
		<-ctx.Done()
		srv.Shutdown(context.Background())
	}()

	if opts.Out != nil {
		fmt.Fprintf(opts.Out, "Concierge API listening on http://localhost:%d\n", opts.Port)
	}

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("dashboard: %w", err)
	}
	return nil
}
