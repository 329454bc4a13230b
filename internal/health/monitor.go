// Package health watches the gap between online learning and publishing.
// An agent absorbing updates without publishing serves increasingly stale
// decisions; the monitor surfaces that before operators notice it in play.
package health

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/Zakhele-TechWannabe/AmongEqualsRLServer/internal/events"
	"github.com/Zakhele-TechWannabe/AmongEqualsRLServer/internal/service"
)

// Config holds monitor thresholds.
type Config struct {
	CheckInterval  time.Duration
	StaleAfter     time.Duration
	LaggingAfter   time.Duration
	MaxUnpublished int
}

// Monitor runs background publish-lag checks.
type Monitor struct {
	svc       *service.Service
	publisher events.Publisher
	config    Config
	logger    zerolog.Logger
}

// NewMonitor creates a publish-lag monitor.
func NewMonitor(svc *service.Service, publisher events.Publisher, config Config, logger zerolog.Logger) *Monitor {
	return &Monitor{
		svc:       svc,
		publisher: publisher,
		config:    config,
		logger:    logger,
	}
}

// Start begins the monitoring loop and blocks until the context is done.
func (m *Monitor) Start(ctx context.Context) {
	ticker := time.NewTicker(m.config.CheckInterval)
	defer ticker.Stop()

	m.logger.Info().
		Dur("check_interval", m.config.CheckInterval).
		Dur("stale_after", m.config.StaleAfter).
		Dur("lagging_after", m.config.LaggingAfter).
		Msg("Starting publish-lag monitor")

	for {
		select {
		case <-ctx.Done():
			m.logger.Info().Msg("Publish-lag monitor stopped")
			return
		case <-ticker.C:
			m.checkPublishLag(ctx)
		}
	}
}

func (m *Monitor) checkPublishLag(ctx context.Context) {
	now := time.Now()
	for _, lag := range m.svc.PublishLags() {
		// Agents with nothing learned since the last publish are fine no
		// matter how long ago that was.
		if lag.Updates == 0 {
			continue
		}
		age := now.Sub(lag.LastPublish)
		switch {
		case age >= m.config.LaggingAfter || (m.config.MaxUnpublished > 0 && lag.Updates >= m.config.MaxUnpublished):
			m.report(ctx, lag, age, "lagging", zerolog.ErrorLevel)
		case age >= m.config.StaleAfter:
			m.report(ctx, lag, age, "stale", zerolog.WarnLevel)
		}
	}
}

func (m *Monitor) report(ctx context.Context, lag service.PublishLag, age time.Duration, severity string, level zerolog.Level) {
	m.logger.WithLevel(level).
		Str("agent_id", lag.AgentID).
		Int("unpublished_updates", lag.Updates).
		Dur("since_last_publish", age).
		Str("severity", severity).
		Msg("Working model publish lag")

	event := events.ModelEvent{
		AgentID: lag.AgentID,
		Event:   "publish_" + severity,
		Detail:  age.String(),
	}
	if err := m.publisher.PublishModelEvent(ctx, event); err != nil {
		m.logger.Error().Err(err).Str("agent_id", lag.AgentID).Msg("Failed to publish lag event")
	}
}
