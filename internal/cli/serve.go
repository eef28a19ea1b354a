package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/shehryarbajwa/scrollreel/internal/api"
	"github.com/shehryarbajwa/scrollreel/internal/proxy"
	"github.com/shehryarbajwa/scrollreel/internal/ratelimit"
)

func newServeCmd(configFile *string) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long: `Starts the HTTP API.

Endpoints:
  POST /api/generate-background     Record a page and return the video URL
  GET  /api/captures                List captures (?state=SCROLLING)
  GET  /api/captures/{id}           Capture status
  GET  /api/captures/{id}/ws        DevTools proxy (container mode)
  GET  /api/captures/{id}/state     Archived storage state (when STATE_DIR is set)
  GET  /videos/{file}               Recorded videos (local storage)`,
		Example: `  scrollreel serve
  scrollreel serve --port 8080 --config scrollreel.yml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			startCtx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			defer cancel()

			a, err := newApp(startCtx, *configFile)
			if err != nil {
				return err
			}
			defer a.Close()

			cfg, logger := a.cfg, a.logger
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}

			limiter := ratelimit.NewLimiter(cfg.RateLimit.PerHour, cfg.RateLimit.Burst)
			handler := api.NewHandler(a.manager, logger, cfg.IsDevelopment())

			var stateHandler *api.StateHandler
			if a.states != nil {
				stateHandler = api.NewStateHandler(a.states)
			}
			publicDir := ""
			if cfg.Storage.Driver == "local" {
				publicDir = cfg.Paths.Public
			}
			router := handler.SetupRoutes(stateHandler, proxy.NewServer(a.manager, logger), limiter, publicDir)

			// a capture holds the request open for minutes, so writes are not bounded
			srv := &http.Server{
				Addr:        fmt.Sprintf(":%d", cfg.Server.Port),
				Handler:     router,
				ReadTimeout: 15 * time.Second,
				IdleTimeout: 60 * time.Second,
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			go pruneLimiter(ctx, limiter)

			errCh := make(chan error, 1)
			go func() {
				logger.Info("server starting",
					zap.String("addr", srv.Addr),
					zap.String("env", cfg.Server.Env),
					zap.Int("rate_limit_per_hour", cfg.RateLimit.PerHour),
					zap.Int64("max_concurrent_captures", cfg.Capture.MaxConcurrent))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				if err != nil {
					return fmt.Errorf("server error: %w", err)
				}
				return nil
			case <-ctx.Done():
			}

			logger.Info("shutting down server gracefully")
			shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancelShutdown()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("server forced to shutdown: %w", err)
			}
			logger.Info("server stopped cleanly")
			return nil
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "listen port (overrides PORT)")
	return cmd
}

func pruneLimiter(ctx context.Context, limiter *ratelimit.Limiter) {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			limiter.Prune()
		}
	}
}
