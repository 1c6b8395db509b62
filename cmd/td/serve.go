package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"teamdesk/internal/app"
	"teamdesk/internal/feed"
	"teamdesk/internal/scheduler"
	"teamdesk/internal/server"
)

const tokenPruneInterval = time.Hour

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				cfg := rt.Config
				if addr == "" {
					addr = cfg.Server.Addr
				}
				if basePath == "" {
					basePath = cfg.Server.BasePath
				}

				hub := feed.NewHub(rt.Engine.Repo, rt.Log)
				hooks := feed.NewDispatcher(rt.Engine.Repo, cfg.Webhooks, rt.Log)
				defer hooks.Close()
				jobs, err := scheduler.NewManager(rt.Log)
				if err != nil {
					return err
				}
				if err := jobs.Register(
					scheduler.FeedPollJob(hub, cfg.Feed.PollInterval),
					scheduler.WebhookJob(hooks, cfg.Feed.PollInterval),
					scheduler.OrphanSweepJob(rt.Engine, cfg.Feed.OrphanSweepInterval, rt.Log),
					scheduler.TokenPruneJob(rt.Identity, tokenPruneInterval),
				); err != nil {
					return err
				}
				jobs.Start()
				defer jobs.Stop()

				handler, err := server.New(server.Config{
					Engine:         rt.Engine,
					Tokens:         rt.Identity,
					Hub:            hub,
					BasePath:       basePath,
					AllowedOrigins: cfg.Server.AllowedOrigins,
					Log:            rt.Log,
				})
				if err != nil {
					return err
				}
				srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				rt.Log.Info("serving", zap.String("addr", addr), zap.String("base_path", basePath), zap.Strings("jobs", jobs.Jobs()))
				fmt.Printf("Serving teamdesk API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at %s/docs)\n", addr, basePath, basePath, basePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default server.addr)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (default server.base_path)")
	return cmd
}
