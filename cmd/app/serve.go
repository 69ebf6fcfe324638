package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/local/partkit/internal/api"
	"github.com/local/partkit/internal/export"
	"github.com/local/partkit/internal/imagerender"
	"github.com/local/partkit/internal/limiter"
	"github.com/local/partkit/internal/metrics"
)

var servePort string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Start the partkit HTTP API.

Sessions live in memory and expire after SESSION_IDLE_TTL of inactivity.
Files exported to EXPORT_DIR are pruned after EXPORT_RETENTION.

Endpoints:
  - /health   liveness
  - /ready    readiness (redis, s3, export dir, mupdf)
  - /metrics  prometheus
  - /api/...  sessions, combine, assemble`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		metrics.Init()

		c, err := newComponents(ctx, cfg)
		if err != nil {
			return err
		}
		defer c.Close()

		mgr := c.manager()
		go mgr.RunSweeper(ctx, time.Minute)
		go pruneExports(ctx, cfg.Export.Dir, cfg.Export.Retention)

		srv := api.NewServer(api.Dependencies{
			Sessions: mgr,
			Engine:   c.engine,
			Detector: c.detector,
			Fetcher:  c.fetcher(cfg.Server.AllowLocalRefs),
			Thumbs: imagerender.NewRenderer(imagerender.Options{
				DPI:     cfg.Render.ThumbDPI,
				Quality: cfg.Render.ThumbQuality,
			}),
			Status:         c.status(),
			Sinks:          c.sinks(),
			Limiter:        limiter.New(cfg.Server.MaxInflight),
			APIKey:         cfg.Server.APIKey,
			MaxUploadBytes: cfg.Server.MaxUploadBytes,
		})

		port := servePort
		if port == "" {
			port = cfg.Server.Port
		}
		httpSrv := &http.Server{
			Addr:              ":" + port,
			Handler:           srv,
			ReadHeaderTimeout: 10 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			log.Info().Msgf("HTTP server listening on :%s", port)
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()

		select {
		case err := <-errCh:
			if err != nil {
				return err
			}
		case <-ctx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("http shutdown")
		}
		log.Info().Msg("shutdown complete")
		return nil
	},
}

func init() {
	serveCmd.Flags().StringVar(&servePort, "port", "", "port to listen on (default: $PORT or 8080)")
}

func pruneExports(ctx context.Context, dir string, retention time.Duration) {
	if retention <= 0 {
		return
	}
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		export.PruneDir(dir, retention)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
