package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"socialsim/server/internal/api"
	"socialsim/server/internal/audio"
	"socialsim/server/internal/catalog"
	"socialsim/server/internal/gateway"
	"socialsim/server/internal/llm"
	"socialsim/server/internal/metrics"
	"socialsim/server/internal/orchestrator"
	"socialsim/server/internal/session"
	"socialsim/server/internal/timeline"
)

func newServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and websocket server",
		RunE:  runServe,
	}
	cmd.Flags().String("addr", "", "listen address, overrides server.host/port")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, logCloser, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logCloser.Close()

	addr, _ := cmd.Flags().GetString("addr")
	if addr == "" {
		addr = cfg.Server.Addr()
	}

	store, err := openStorage(cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	scenarios, err := catalog.Load(cfg.Paths.Scenarios)
	if err != nil {
		return fmt.Errorf("load scenarios: %w", err)
	}
	ai, err := llm.New(cfg.LLM, logger)
	if err != nil {
		return err
	}

	metrics.Init()

	hub := gateway.NewHub(gateway.Config{PingInterval: cfg.Server.PingInterval}, logger)
	var factory audio.EngineFactory
	if cfg.Audio.Engine == "stream" {
		engine := gateway.NewStreamEngine(hub)
		factory = func() (audio.Engine, error) { return engine, nil }
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	orch := orchestrator.New(ctx, orchestrator.Options{
		Catalog:         scenarios,
		AI:              ai,
		Progress:        store,
		Library:         session.NewLibrary(store, logger),
		Timeline:        timeline.NewInMemoryStore(cfg.Game.TimelineRetention),
		Player:          audio.NewPlayer(factory, logger),
		Publisher:       hub,
		RequireTutorial: cfg.Game.RequireTutorial,
		Credential:      cfg.Credential(),
		Logger:          logger,
		Debug:           cfg.Logging.Debug(),
	})

	server := api.NewServer(orch, hub, logger)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           server.Routes(),
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		// 发送消息会同步等待回复，写超时要覆盖协作方超时
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Printf("🚀 socialsim listening on %s (provider=%s storage=%s audio=%s)",
			addr, cfg.LLM.Provider, cfg.Storage.Backend, cfg.Audio.Engine)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Printf("shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		hub.Close()
		err := httpServer.Shutdown(shutdownCtx)
		orch.Close()
		return err
	})

	if err := g.Wait(); err != nil {
		logger.Printf("❌ %v", err)
		return err
	}
	logger.Printf("bye")
	return nil
}
