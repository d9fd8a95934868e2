package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/allenai/olmoe-modeld/internal/acquire"
	"github.com/allenai/olmoe-modeld/internal/api"
	"github.com/allenai/olmoe-modeld/internal/app"
	"github.com/allenai/olmoe-modeld/internal/infra/config"
	"github.com/allenai/olmoe-modeld/internal/infra/logger"
	"github.com/allenai/olmoe-modeld/internal/reachability"
	"github.com/allenai/olmoe-modeld/internal/store"
	"github.com/labstack/echo/v5"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the daemon: acquisition pipeline, reachability monitor, and HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func runServe() error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.Log.Path, logger.ParseLevel(cfg.Log.Level), cfg.Log.IncludeStdout)
	if err != nil {
		return err
	}

	st, err := store.NewPersistentStore(cfg.Store.SQLitePath)
	if err != nil {
		return err
	}
	defer st.Close()

	fetch := acquire.NewHTTPFetcher(cfg.Model.URL, nil)
	mgr := acquire.NewManager(cfg, log, st, fetch)

	// The artifact file on disk, not memory, decides readiness after a restart
	if mgr.Reconcile() {
		log.Info("model already present at %s", cfg.Model.Path)
	}

	mon := reachability.NewMonitor(cfg.Net.ProbeAddr, cfg.Net.ProbeInterval, cfg.Net.ProbeTimeout, log)
	mon.OnChange(func(satisfied bool) {
		if !satisfied {
			mgr.AbortForConnectivity()
		}
	})
	mgr.BindReachability(mon.Satisfied)

	appCtx := app.NewContext(cfg, log)
	appCtx.Pipeline = mgr
	appCtx.Store = st

	e := echo.New()
	api.RegisterRoutes(e, appCtx)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go mon.Run(ctx)

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: e}

	errCh := make(chan error, 1)
	go func() {
		log.Info("modeld listening on :%s", cfg.Port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
	}

	log.Info("shutting down")

	// Wait for the consumer to persist the terminal attempt record before the
	// deferred store close runs
	done := mgr.Done()
	mgr.Cancel()
	<-done

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
