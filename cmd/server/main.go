package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Zakhele-TechWannabe/AmongEqualsRLServer/internal/agent"
	"github.com/Zakhele-TechWannabe/AmongEqualsRLServer/internal/config"
	"github.com/Zakhele-TechWannabe/AmongEqualsRLServer/internal/events"
	"github.com/Zakhele-TechWannabe/AmongEqualsRLServer/internal/game"
	"github.com/Zakhele-TechWannabe/AmongEqualsRLServer/internal/health"
	httpServer "github.com/Zakhele-TechWannabe/AmongEqualsRLServer/internal/http"
	"github.com/Zakhele-TechWannabe/AmongEqualsRLServer/internal/metrics"
	"github.com/Zakhele-TechWannabe/AmongEqualsRLServer/internal/registry"
	"github.com/Zakhele-TechWannabe/AmongEqualsRLServer/internal/service"
)

var logLevel string

var rootCmd = &cobra.Command{
	Use:   "rlserver",
	Short: "AmongEquals RL Decision Server",
	Long: `Decision server for NPC behavior driven by reinforcement learning.

The server translates game observations into states, serves actions from
the active model version, learns online from reported outcomes, and
manages versioned model snapshots with hot-swap and rollback.`,
	RunE: runServer,
}

func init() {
	rootCmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	viper.BindPFlags(rootCmd.Flags())
	viper.SetEnvPrefix("RLSERVER")
	viper.AutomaticEnv()
}

func runServer(cmd *cobra.Command, args []string) error {
	level, err := zerolog.ParseLevel(logLevel)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", logLevel, err)
	}
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger().Level(level)

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var publisher events.Publisher = events.NoopPublisher{}
	if cfg.NATS.Enabled {
		natsPublisher, err := events.NewNATSPublisher(cfg.NATS.URL, cfg.NATS.Subject, logger)
		if err != nil {
			return fmt.Errorf("connect to NATS at %s: %w", cfg.NATS.URL, err)
		}
		defer natsPublisher.Close()
		publisher = natsPublisher
		logger.Info().Str("url", cfg.NATS.URL).Str("subject", cfg.NATS.Subject).Msg("NATS event publisher enabled")
	}

	var store registry.Store = registry.NewMemoryStore()
	if cfg.Database.Enabled {
		db, err := sql.Open("postgres", cfg.Database.ConnectionString())
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		pgStore := registry.NewPostgresStore(db)
		if err := pgStore.Migrate(ctx); err != nil {
			return err
		}
		store = pgStore
		logger.Info().Str("host", cfg.Database.Host).Str("db", cfg.Database.DBName).Msg("PostgreSQL snapshot store enabled")
	}
	defer store.Close()

	reg := registry.New(store, publisher, logger)
	if err := reg.Load(ctx); err != nil {
		return fmt.Errorf("load persisted model versions: %w", err)
	}

	collector := metrics.NewCollector(logger)
	svc, err := service.New(reg, service.Config{
		ExplorationRate:   cfg.Service.ExplorationRate,
		PublishEvery:      cfg.Service.PublishEvery,
		ActivateOnPublish: cfg.Service.ActivateOnPublish,
	}, collector, logger)
	if err != nil {
		return fmt.Errorf("create decision service: %w", err)
	}

	bundle := service.Bundle{
		Translator: game.NewTranslator(),
		Space:      game.NewActionSpace(),
		Rewarder:   game.NewRewardCalculator(),
	}
	agentCfg := agent.DefaultConfig()
	agentCfg.Alpha = cfg.Agent.Alpha
	agentCfg.Gamma = cfg.Agent.Gamma
	agentCfg.HiddenSize = cfg.Agent.HiddenSize
	agentCfg.LearningRate = cfg.Agent.LearningRate
	agentCfg.BufferCapacity = cfg.Agent.BufferCapacity
	agentCfg.BatchSize = cfg.Agent.BatchSize
	agentCfg.TargetSyncEvery = cfg.Agent.TargetSyncEvery
	agentCfg.Seed = cfg.Agent.Seed
	for _, agentID := range cfg.Service.AgentIDs {
		if err := svc.RegisterAgent(ctx, agentID, bundle, agent.Variant(cfg.Agent.Variant), agentCfg); err != nil {
			return fmt.Errorf("register agent %s: %w", agentID, err)
		}
	}

	monitor := health.NewMonitor(svc, publisher, health.Config{
		CheckInterval:  cfg.Health.CheckInterval,
		StaleAfter:     cfg.Health.StaleAfter,
		LaggingAfter:   cfg.Health.LaggingAfter,
		MaxUnpublished: cfg.Health.MaxUnpublished,
	}, logger)
	go monitor.Start(ctx)

	h := httpServer.NewServer(svc, logger)
	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           h.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}

	done := make(chan struct{})
	go func() {
		logger.Info().Str("addr", srv.Addr).Str("variant", cfg.Agent.Variant).Msg("Decision server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("HTTP server failed")
		}
		close(done)
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	logger.Info().Msg("Shutdown signal received")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Graceful shutdown failed")
	}
	<-done
	logger.Info().Msg("Decision server stopped")
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
