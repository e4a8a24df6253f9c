package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"agentmux/internal/adapter/httpapi"
	"agentmux/internal/infra/middleware"
)

const pruneInterval = time.Hour

func newServeCmd(root *rootOptions) *cobra.Command {
	var (
		addr      string
		retention time.Duration
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Long: `Serve the JSON API (POST /api/v1/query, /api/v1/route, sessions, agents,
events and a Prometheus /metrics endpoint) until interrupted.

The knowledge directory is watched and the retriever refreshed on change.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}

			ctx := cmd.Context()
			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			opts := []httpapi.Option{
				httpapi.WithEvents(a.bus),
				httpapi.WithLogger(a.logger),
				httpapi.WithVersion(version),
			}
			if cfg.Server.RateLimit.Enabled {
				opts = append(opts, httpapi.WithLimiter(middleware.NewClientLimiter(ctx, cfg.Server.RateLimit)))
			}
			srv := httpapi.NewServer(a.orch, cfg.Server, opts...)

			a.knowledge.watch(ctx)
			if retention > 0 && a.store != nil {
				go pruneLoop(ctx, a, retention)
			}
			return srv.Start(ctx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	cmd.Flags().DurationVar(&retention, "retention", 0, "delete stored sessions older than this, checked hourly (0 keeps everything)")
	return cmd
}

// pruneLoop deletes sessions past retention until ctx is done.
func pruneLoop(ctx context.Context, a *app, retention time.Duration) {
	prune := func() {
		n, err := a.store.Prune(ctx, time.Now().Add(-retention))
		if err != nil {
			a.logger.Warn("session prune failed", "error", err)
			return
		}
		if n > 0 {
			a.logger.Info("pruned sessions", "count", n, "retention", retention)
		}
	}
	prune()

	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			prune()
		}
	}
}
