// Package metrics emits structured operational metrics through zerolog.
package metrics

import (
	"time"

	"github.com/rs/zerolog"
)

// Collector records decision service operations.
type Collector struct {
	logger zerolog.Logger
}

// NewCollector creates a metrics collector.
func NewCollector(logger zerolog.Logger) *Collector {
	return &Collector{logger: logger}
}

// DecisionServed tracks one served decision.
func (c *Collector) DecisionServed(agentID string, versionID int64, action int, duration time.Duration) {
	c.logger.Info().
		Str("metric", "decision_served").
		Str("agent_id", agentID).
		Int64("version_id", versionID).
		Int("action", action).
		Dur("duration", duration).
		Msg("Decision metric")
}

// UpdateApplied tracks one learning update.
func (c *Collector) UpdateApplied(agentID string, reward float64, trainSteps uint64, duration time.Duration) {
	c.logger.Info().
		Str("metric", "update_applied").
		Str("agent_id", agentID).
		Float64("reward", reward).
		Uint64("train_steps", trainSteps).
		Dur("duration", duration).
		Msg("Learning metric")
}

// ModelPublished tracks a working snapshot becoming a registry version.
func (c *Collector) ModelPublished(agentID string, versionID int64, trainSteps uint64, source string) {
	c.logger.Info().
		Str("metric", "model_published").
		Str("agent_id", agentID).
		Int64("version_id", versionID).
		Uint64("train_steps", trainSteps).
		Str("source", source).
		Msg("Model lifecycle metric")
}

// ModelActivated tracks the active pointer moving.
func (c *Collector) ModelActivated(agentID string, versionID int64) {
	c.logger.Info().
		Str("metric", "model_activated").
		Str("agent_id", agentID).
		Int64("version_id", versionID).
		Msg("Model lifecycle metric")
}

// LearnRejected tracks dropped learn calls (bad reward, cancelled context).
func (c *Collector) LearnRejected(agentID string, reason string) {
	c.logger.Warn().
		Str("metric", "learn_rejected").
		Str("agent_id", agentID).
		Str("reason", reason).
		Msg("Learning metric")
}
