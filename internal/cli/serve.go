package cli

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/orderdesk/sheetsync/internal/config"
	"github.com/orderdesk/sheetsync/internal/httpapi"
	"github.com/orderdesk/sheetsync/internal/syncer"
)

// reloadableRunner lets a config reload swap the orchestrator under the
// trigger API without restarting the listener.
type reloadableRunner struct {
	mu   sync.RWMutex
	orch *syncer.Orchestrator
}

func (r *reloadableRunner) Run(ctx context.Context, req syncer.RunRequest) (syncer.RunReport, error) {
	r.mu.RLock()
	orch := r.orch
	r.mu.RUnlock()
	return orch.Run(ctx, req)
}

func (r *reloadableRunner) swap(orch *syncer.Orchestrator) {
	r.mu.Lock()
	r.orch = orch
	r.mu.Unlock()
}

// NewServeCommand creates the trigger API server command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	var addr string
	var watch bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the trigger API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd, rootOpts, addr, watch)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", defaultAddr(), "listen address")
	cmd.Flags().BoolVar(&watch, "watch", true, "hot-reload the config file on change")
	return cmd
}

func serve(cmd *cobra.Command, rootOpts *RootOptions, addr string, watch bool) error {
	app, err := buildApp(rootOpts.ConfigPath)
	if err != nil {
		return err
	}
	defer app.close()
	if app.cfg.APIKey == "" {
		return errors.New("serve requires apiKey in the config")
	}

	logger := slog.Default()
	hub := httpapi.NewHub(logger)
	orch, err := app.orchestrator(hub)
	if err != nil {
		return err
	}
	runner := &reloadableRunner{orch: orch}

	server := httpapi.NewServer(httpapi.ServerConfig{
		APIKey:  app.cfg.APIKey,
		Runner:  runner,
		History: app.history,
		Hub:     hub,
		Logger:  logger,
	})

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if watch {
		go func() {
			err := config.Watch(ctx, rootOpts.ConfigPath, logger, func(cfg *config.Config) {
				next, buildErr := newOrchestrator(cfg, app.history, hub)
				if buildErr != nil {
					logger.Error("reloaded config not applied", "error", buildErr)
					return
				}
				if cfg.APIKey != app.cfg.APIKey {
					logger.Warn("apiKey changed in config; restart required for it to take effect")
				}
				runner.swap(next)
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("config watch stopped", "error", err)
			}
		}()
	}

	httpServer := &http.Server{Addr: addr, Handler: server}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("trigger api listening", "addr", addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func defaultAddr() string {
	if addr := os.Getenv("SHEETSYNC_ADDR"); addr != "" {
		return addr
	}
	return ":8080"
}
