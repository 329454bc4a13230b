package health

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zakhele-TechWannabe/AmongEqualsRLServer/internal/agent"
	"github.com/Zakhele-TechWannabe/AmongEqualsRLServer/internal/events"
	"github.com/Zakhele-TechWannabe/AmongEqualsRLServer/internal/game"
	"github.com/Zakhele-TechWannabe/AmongEqualsRLServer/internal/metrics"
	"github.com/Zakhele-TechWannabe/AmongEqualsRLServer/internal/registry"
	"github.com/Zakhele-TechWannabe/AmongEqualsRLServer/internal/service"
)

// capturingPublisher records model events for assertions.
type capturingPublisher struct {
	mu     sync.Mutex
	events []events.ModelEvent
}

func (c *capturingPublisher) PublishModelEvent(_ context.Context, event events.ModelEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return nil
}

func (c *capturingPublisher) captured() []events.ModelEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]events.ModelEvent, len(c.events))
	copy(out, c.events)
	return out
}

func newServiceWithLag(t *testing.T) *service.Service {
	t.Helper()
	logger := zerolog.New(io.Discard)
	reg := registry.New(registry.NewMemoryStore(), events.NoopPublisher{}, logger)
	svc, err := service.New(reg, service.Config{}, metrics.NewCollector(logger), logger)
	require.NoError(t, err)

	bundle := service.Bundle{
		Translator: game.NewTranslator(),
		Space:      game.NewActionSpace(),
		Rewarder:   game.NewRewardCalculator(),
	}
	agentCfg := agent.DefaultConfig()
	agentCfg.Seed = 1
	require.NoError(t, svc.RegisterAgent(context.Background(), "npc-1", bundle, agent.VariantTabular, agentCfg))

	obs := game.Observation{
		NPCID: "npc-1", Health: 0.8, Hunger: 0.3, Energy: 1.0,
		Personality: game.Personality{
			Greed: 0.5, Sociability: 0.5, Laziness: 0.5, Ambition: 0.5,
			Forgiveness: 0.5, Courage: 0.5, Analytical: 0.5, Impulsiveness: 0.5,
		},
		Alive: true,
	}
	raw, err := json.Marshal(obs)
	require.NoError(t, err)
	state, err := bundle.Translator.Translate(raw)
	require.NoError(t, err)
	require.NoError(t, svc.Learn(context.Background(), "npc-1", state, 0, state, false))
	return svc
}

func TestMonitor_ReportsUnpublishedUpdates(t *testing.T) {
	svc := newServiceWithLag(t)
	publisher := &capturingPublisher{}
	monitor := NewMonitor(svc, publisher, Config{
		CheckInterval:  time.Minute,
		StaleAfter:     time.Hour,
		LaggingAfter:   time.Hour,
		MaxUnpublished: 1,
	}, zerolog.New(io.Discard))

	monitor.checkPublishLag(context.Background())

	captured := publisher.captured()
	require.Len(t, captured, 1)
	assert.Equal(t, "npc-1", captured[0].AgentID)
	assert.Equal(t, "publish_lagging", captured[0].Event)
}

func TestMonitor_QuietAgentsAreHealthy(t *testing.T) {
	logger := zerolog.New(io.Discard)
	reg := registry.New(registry.NewMemoryStore(), events.NoopPublisher{}, logger)
	svc, err := service.New(reg, service.Config{}, metrics.NewCollector(logger), logger)
	require.NoError(t, err)

	bundle := service.Bundle{
		Translator: game.NewTranslator(),
		Space:      game.NewActionSpace(),
		Rewarder:   game.NewRewardCalculator(),
	}
	require.NoError(t, svc.RegisterAgent(context.Background(), "npc-1", bundle, agent.VariantTabular, agent.DefaultConfig()))

	publisher := &capturingPublisher{}
	monitor := NewMonitor(svc, publisher, Config{
		CheckInterval:  time.Minute,
		StaleAfter:     0,
		LaggingAfter:   0,
		MaxUnpublished: 1,
	}, zerolog.New(io.Discard))

	// No updates since the last publish: nothing to report however old it is.
	monitor.checkPublishLag(context.Background())
	assert.Empty(t, publisher.captured())
}
