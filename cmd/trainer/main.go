package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Zakhele-TechWannabe/AmongEqualsRLServer/internal/agent"
	"github.com/Zakhele-TechWannabe/AmongEqualsRLServer/internal/config"
	"github.com/Zakhele-TechWannabe/AmongEqualsRLServer/internal/events"
	"github.com/Zakhele-TechWannabe/AmongEqualsRLServer/internal/game"
	"github.com/Zakhele-TechWannabe/AmongEqualsRLServer/internal/metrics"
	"github.com/Zakhele-TechWannabe/AmongEqualsRLServer/internal/registry"
	"github.com/Zakhele-TechWannabe/AmongEqualsRLServer/internal/service"
	"github.com/Zakhele-TechWannabe/AmongEqualsRLServer/internal/trainer"
)

var (
	trainCfg *trainer.Config
	variant  string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "trainer",
	Short: "AmongEquals offline NPC trainer",
	Long: `Offline trainer that runs NPC life episodes against a built-in
simulation and publishes the learned model snapshots.

With the database enabled, published versions land in the same store the
decision server loads at startup, so offline-trained models can be
activated for live serving.`,
	RunE: runTrainer,
}

func init() {
	trainCfg = trainer.Default()

	rootCmd.Flags().StringVar(&trainCfg.AgentID, "agent-id", trainCfg.AgentID, "Agent identity to train")
	rootCmd.Flags().IntVar(&trainCfg.Episodes, "episodes", trainCfg.Episodes, "Number of episodes to run")
	rootCmd.Flags().IntVar(&trainCfg.MaxDays, "max-days", trainCfg.MaxDays, "Episode horizon in simulated days")
	rootCmd.Flags().Float64Var(&trainCfg.Exploration, "exploration", trainCfg.Exploration, "Initial exploration rate")
	rootCmd.Flags().Float64Var(&trainCfg.ExplorationDecay, "exploration-decay", trainCfg.ExplorationDecay, "Per-episode exploration decay factor")
	rootCmd.Flags().Float64Var(&trainCfg.MinExploration, "min-exploration", trainCfg.MinExploration, "Exploration rate floor")
	rootCmd.Flags().IntVar(&trainCfg.PublishEvery, "publish-every", trainCfg.PublishEvery, "Publish a checkpoint every N episodes (0 to disable)")
	rootCmd.Flags().Int64Var(&trainCfg.Seed, "seed", trainCfg.Seed, "Simulation random seed")
	rootCmd.Flags().StringVar(&variant, "variant", "tabular", "Learner variant (tabular, deepq)")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	viper.BindPFlags(rootCmd.Flags())
	viper.SetEnvPrefix("TRAINER")
	viper.AutomaticEnv()
}

func runTrainer(cmd *cobra.Command, args []string) error {
	if err := trainCfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
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

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info().Msg("Shutdown signal received, stopping trainer")
		cancel()
	}()

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
	}
	defer store.Close()

	reg := registry.New(store, events.NoopPublisher{}, logger)
	if err := reg.Load(ctx); err != nil {
		return fmt.Errorf("load persisted model versions: %w", err)
	}

	// Exploration is driven by the trainer's own schedule, and publishing by
	// its episode cadence, so the service-level knobs stay off.
	svc, err := service.New(reg, service.Config{
		ExplorationRate:   0,
		PublishEvery:      0,
		ActivateOnPublish: true,
	}, metrics.NewCollector(logger.Level(zerolog.WarnLevel)), logger)
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
	agentCfg.Seed = trainCfg.Seed
	if err := svc.RegisterAgent(ctx, trainCfg.AgentID, bundle, agent.Variant(variant), agentCfg); err != nil {
		return fmt.Errorf("register agent %s: %w", trainCfg.AgentID, err)
	}

	logger.Info().
		Str("agent_id", trainCfg.AgentID).
		Str("variant", variant).
		Int("episodes", trainCfg.Episodes).
		Msg("Trainer starting")

	t := trainer.New(svc, trainCfg, logger)
	if err := t.Run(ctx); err != nil {
		return fmt.Errorf("training failed: %w", err)
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
