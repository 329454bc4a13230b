// Package trainer runs offline training episodes against the decision
// service using a built-in NPC life simulation, and publishes the resulting
// snapshots with offline provenance.
package trainer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Zakhele-TechWannabe/AmongEqualsRLServer/internal/game"
	"github.com/Zakhele-TechWannabe/AmongEqualsRLServer/internal/registry"
	"github.com/Zakhele-TechWannabe/AmongEqualsRLServer/internal/rl"
	"github.com/Zakhele-TechWannabe/AmongEqualsRLServer/internal/service"
)

// Config holds trainer settings.
type Config struct {
	AgentID string `mapstructure:"agent_id"`

	Episodes int `mapstructure:"episodes"`
	MaxDays  int `mapstructure:"max_days"`

	// Exploration decays multiplicatively per episode down to the floor.
	Exploration      float64 `mapstructure:"exploration"`
	ExplorationDecay float64 `mapstructure:"exploration_decay"`
	MinExploration   float64 `mapstructure:"min_exploration"`

	// PublishEvery publishes a checkpoint after this many episodes.
	PublishEvery int   `mapstructure:"publish_every"`
	Seed         int64 `mapstructure:"seed"`
}

// Default returns a config with sensible defaults.
func Default() *Config {
	return &Config{
		AgentID:          "npc-default",
		Episodes:         500,
		MaxDays:          365,
		Exploration:      0.5,
		ExplorationDecay: 0.995,
		MinExploration:   0.05,
		PublishEvery:     50,
		Seed:             1,
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.AgentID == "" {
		return fmt.Errorf("agent_id is required")
	}
	if c.Episodes <= 0 {
		return fmt.Errorf("episodes must be positive")
	}
	if c.MaxDays <= 0 {
		return fmt.Errorf("max_days must be positive")
	}
	if c.Exploration < 0 || c.Exploration > 1 {
		return fmt.Errorf("exploration must be in [0, 1]")
	}
	if c.ExplorationDecay <= 0 || c.ExplorationDecay > 1 {
		return fmt.Errorf("exploration_decay must be in (0, 1]")
	}
	return nil
}

// Trainer drives training episodes through the decision service so that
// offline learning exercises the exact serving and learning paths used live.
type Trainer struct {
	svc        *service.Service
	translator rl.Translator
	env        *Env
	cfg        *Config
	logger     zerolog.Logger

	exploration float64
}

// New creates a trainer for one agent identity.
func New(svc *service.Service, cfg *Config, logger zerolog.Logger) *Trainer {
	return &Trainer{
		svc:         svc,
		translator:  game.NewTranslator(),
		env:         NewEnv(cfg.AgentID, cfg.MaxDays, cfg.Seed),
		cfg:         cfg,
		logger:      logger,
		exploration: cfg.Exploration,
	}
}

// Run executes the configured number of episodes and publishes a final
// snapshot. It stops early when the context is cancelled.
func (t *Trainer) Run(ctx context.Context) error {
	start := time.Now()
	for episode := 1; episode <= t.cfg.Episodes; episode++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		days, total, err := t.runEpisode(ctx)
		if err != nil {
			return fmt.Errorf("episode %d: %w", episode, err)
		}

		if episode%10 == 0 {
			t.logger.Info().
				Int("episode", episode).
				Int("days_survived", days).
				Float64("total_reward", total).
				Float64("exploration", t.exploration).
				Msg("Training progress")
		}
		t.exploration = t.exploration * t.cfg.ExplorationDecay
		if t.exploration < t.cfg.MinExploration {
			t.exploration = t.cfg.MinExploration
		}

		if t.cfg.PublishEvery > 0 && episode%t.cfg.PublishEvery == 0 {
			version, err := t.svc.PublishWorking(ctx, t.cfg.AgentID, registry.SourceOffline)
			if err != nil {
				return fmt.Errorf("publish checkpoint after episode %d: %w", episode, err)
			}
			t.logger.Info().Int64("version_id", version.ID).Int("episode", episode).Msg("Checkpoint published")
		}
	}

	version, err := t.svc.PublishWorking(ctx, t.cfg.AgentID, registry.SourceOffline)
	if err != nil {
		return fmt.Errorf("publish final snapshot: %w", err)
	}
	t.logger.Info().
		Int64("version_id", version.ID).
		Int("episodes", t.cfg.Episodes).
		Dur("elapsed", time.Since(start)).
		Msg("Training complete")
	return nil
}

// runEpisode plays one NPC life and feeds every transition back through the
// service's learning path. Returns days survived and accumulated reward.
func (t *Trainer) runEpisode(ctx context.Context) (int, float64, error) {
	episodeID := uuid.New().String()
	obs := t.env.Reset()
	rewarder := game.NewRewardCalculator()

	var total float64
	for {
		if err := ctx.Err(); err != nil {
			return obs.DaysAlive, total, err
		}

		raw, err := json.Marshal(obs)
		if err != nil {
			return obs.DaysAlive, total, err
		}
		decision, err := t.svc.DecideWithExploration(ctx, t.cfg.AgentID, raw, t.exploration)
		if err != nil {
			return obs.DaysAlive, total, err
		}

		nextObs, terminal := t.env.Step(game.ActionName(decision.DomainAction))
		nextRaw, err := json.Marshal(nextObs)
		if err != nil {
			return nextObs.DaysAlive, total, err
		}
		nextState, err := t.translator.Translate(nextRaw)
		if err != nil {
			return nextObs.DaysAlive, total, err
		}

		if reward, err := rewarder.Reward(decision.State, decision.Action, nextState, terminal); err == nil {
			total += reward
		}
		if err := t.svc.Learn(ctx, t.cfg.AgentID, decision.State, decision.Action, nextState, terminal); err != nil {
			return nextObs.DaysAlive, total, err
		}

		if terminal {
			t.logger.Debug().
				Str("episode_id", episodeID).
				Int("days_survived", nextObs.DaysAlive).
				Bool("died", !nextObs.Alive).
				Float64("total_reward", total).
				Msg("Episode finished")
			return nextObs.DaysAlive, total, nil
		}
		obs = nextObs
	}
}
