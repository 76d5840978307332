package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/yanqian/transcript-summarizer/internal/domain/summarizer"
	"github.com/yanqian/transcript-summarizer/internal/infra/config"
)

// App encapsulates the HTTP server lifecycle.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	server  *http.Server
	runtime summarizer.Runtime
}

// NewApp is used by Wire to build the runnable app.
func NewApp(cfg *config.Config, logger *slog.Logger, server *http.Server, runtime summarizer.Runtime) *App {
	return &App{cfg: cfg, logger: logger.With("component", "bootstrap"), server: server, runtime: runtime}
}

// Run starts the HTTP server and blocks until shutdown. Cached model handles are
// released after the server stops accepting requests.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		a.logger.Info("http server starting", "address", a.cfg.HTTP.Address, "backend", a.cfg.Runtime.Backend, "model", a.cfg.Runtime.Model)
		if err := a.server.ListenAndServe(); err != nil {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		a.logger.Info("shutdown signal received")
		runErr = a.server.Shutdown(shutdownCtx)
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			runErr = err
		}
	}

	closeCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Runtime.CleanupTimeout)
	defer cancel()
	if err := a.runtime.Close(closeCtx); err != nil {
		a.logger.Error("release model handles failed", "error", err)
		runErr = errors.Join(runErr, err)
	}
	return runErr
}
