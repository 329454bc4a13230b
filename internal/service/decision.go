// Package service orchestrates decisions and learning on top of the agent,
// registry, and game-binding layers. Serving reads published snapshots;
// learning mutates a per-agent working instance. The two paths share nothing
// but the registry's atomic active pointer, so decisions never block on and
// are never corrupted by concurrent learning.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/Zakhele-TechWannabe/AmongEqualsRLServer/internal/agent"
	"github.com/Zakhele-TechWannabe/AmongEqualsRLServer/internal/metrics"
	"github.com/Zakhele-TechWannabe/AmongEqualsRLServer/internal/registry"
	"github.com/Zakhele-TechWannabe/AmongEqualsRLServer/internal/rl"
)

// ErrUnknownAgent indicates a request for an agent identity that was never
// registered.
var ErrUnknownAgent = errors.New("unknown agent")

// Bundle is the game binding for one agent identity: how observations become
// states, which actions exist, and how transitions are scored.
type Bundle struct {
	Translator rl.Translator
	Space      rl.ActionSpace
	Rewarder   rl.RewardCalculator
}

// Config tunes the serving and publish behavior.
type Config struct {
	// ExplorationRate applies to live decisions. Offline training passes its
	// own schedule through LearnAndSelect paths instead.
	ExplorationRate float64 `mapstructure:"exploration_rate"`
	// PublishEvery snapshots the working agent into the registry after this
	// many successful updates. Zero disables automatic publishing.
	PublishEvery int `mapstructure:"publish_every"`
	// ActivateOnPublish repoints the active version at every publish.
	ActivateOnPublish bool `mapstructure:"activate_on_publish"`
}

// Decision is the outcome of one decide call.
type Decision struct {
	AgentID      string    `json:"agent_id"`
	State        rl.State  `json:"state"`
	Action       rl.Action `json:"action"`
	DomainAction string    `json:"domain_action"`
	VersionID    int64     `json:"version_id"`
}

// serving caches the policy built from the currently active snapshot so the
// hot path does not re-decode parameters on every request.
type serving struct {
	versionID int64
	policy    agent.Policy
}

type agentRuntime struct {
	bundle  Bundle
	working agent.Agent

	// learnMu serializes the learning stream; parameter updates are not
	// commutative.
	learnMu             sync.Mutex
	updatesSincePublish int
	lastPublish         time.Time

	serving atomic.Pointer[serving]
}

// Service is the decision service.
type Service struct {
	mu     sync.RWMutex
	agents map[string]*agentRuntime

	registry *registry.Registry
	cfg      Config
	metrics  *metrics.Collector
	logger   zerolog.Logger
	now      func() time.Time
}

// New constructs a Service.
func New(reg *registry.Registry, cfg Config, collector *metrics.Collector, logger zerolog.Logger) (*Service, error) {
	if err := rl.ValidateExplorationRate(cfg.ExplorationRate); err != nil {
		return nil, err
	}
	if cfg.PublishEvery < 0 {
		return nil, fmt.Errorf("%w: publish_every must be non-negative", rl.ErrInvalidConfiguration)
	}
	return &Service{
		agents:   make(map[string]*agentRuntime),
		registry: reg,
		cfg:      cfg,
		metrics:  collector,
		logger:   logger,
		now:      time.Now,
	}, nil
}

// RegisterAgent creates the working agent for an identity and publishes and
// activates its initial snapshot, so decisions can be served immediately.
func (s *Service) RegisterAgent(ctx context.Context, agentID string, bundle Bundle, variant agent.Variant, agentCfg agent.Config) error {
	working, err := agent.New(variant, bundle.Space, agentCfg)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if _, exists := s.agents[agentID]; exists {
		s.mu.Unlock()
		return fmt.Errorf("%w: agent %s already registered", rl.ErrInvalidConfiguration, agentID)
	}
	rt := &agentRuntime{bundle: bundle, working: working, lastPublish: s.now()}
	s.agents[agentID] = rt
	s.mu.Unlock()

	snap, err := working.Snapshot()
	if err != nil {
		s.deregister(agentID)
		return err
	}
	version, err := s.registry.Publish(ctx, agentID, snap, registry.Metadata{Source: registry.SourceOnline})
	if err != nil {
		s.deregister(agentID)
		return err
	}
	if err := s.registry.Activate(ctx, agentID, version.ID); err != nil {
		s.deregister(agentID)
		return err
	}
	s.logger.Info().
		Str("agent_id", agentID).
		Str("variant", string(variant)).
		Int64("version_id", version.ID).
		Msg("Agent registered")
	return nil
}

// deregister backs out a registration whose initial publish never completed,
// so the identity can be registered again.
func (s *Service) deregister(agentID string) {
	s.mu.Lock()
	delete(s.agents, agentID)
	s.mu.Unlock()
}

func (s *Service) runtime(agentID string) (*agentRuntime, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rt, ok := s.agents[agentID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAgent, agentID)
	}
	return rt, nil
}

// Decide serves one decision. It resolves the active snapshot once at call
// start and completes against it even if a newer version is activated
// mid-flight. The path is a pure read: no registry or agent state changes.
func (s *Service) Decide(ctx context.Context, agentID string, obs rl.Observation) (Decision, error) {
	return s.decide(ctx, agentID, obs, s.cfg.ExplorationRate)
}

// DecideWithExploration serves one decision with an explicit exploration
// rate, used by training-time callers.
func (s *Service) DecideWithExploration(ctx context.Context, agentID string, obs rl.Observation, explorationRate float64) (Decision, error) {
	return s.decide(ctx, agentID, obs, explorationRate)
}

func (s *Service) decide(ctx context.Context, agentID string, obs rl.Observation, explorationRate float64) (Decision, error) {
	start := s.now()
	rt, err := s.runtime(agentID)
	if err != nil {
		return Decision{}, err
	}

	version, snapshot, err := s.registry.GetActive(agentID)
	if err != nil {
		return Decision{}, err
	}
	policy, err := s.servingPolicy(rt, version.ID, snapshot)
	if err != nil {
		return Decision{}, err
	}

	state, err := rt.bundle.Translator.Translate(obs)
	if err != nil {
		return Decision{}, err
	}
	action, err := policy.SelectAction(state, explorationRate)
	if err != nil {
		return Decision{}, err
	}
	domainAction, err := rt.bundle.Space.Decode(state, action)
	if err != nil {
		return Decision{}, err
	}

	s.metrics.DecisionServed(agentID, version.ID, int(action), s.now().Sub(start))
	return Decision{
		AgentID:      agentID,
		State:        state,
		Action:       action,
		DomainAction: domainAction,
		VersionID:    version.ID,
	}, nil
}

// servingPolicy returns the cached policy for the active version, rebuilding
// it only when the active version changed. A decision in progress keeps its
// own policy reference, so a concurrent activate never affects it.
func (s *Service) servingPolicy(rt *agentRuntime, versionID int64, snapshot *agent.Snapshot) (agent.Policy, error) {
	if cached := rt.serving.Load(); cached != nil && cached.versionID == versionID {
		return cached.policy, nil
	}
	policy, err := agent.PolicyFrom(snapshot, rt.bundle.Space)
	if err != nil {
		return nil, err
	}
	rt.serving.Store(&serving{versionID: versionID, policy: policy})
	return policy, nil
}

// Learn ingests one outcome: it computes the reward, applies a single update
// to the working agent, and publishes a new version when the configured
// cadence is reached. A failed or cancelled update leaves the working agent
// exactly as it was (snapshot-then-apply with restore on failure).
func (s *Service) Learn(ctx context.Context, agentID string, prev rl.State, action rl.Action, next rl.State, terminal bool) error {
	start := s.now()
	rt, err := s.runtime(agentID)
	if err != nil {
		return err
	}

	rt.learnMu.Lock()
	defer rt.learnMu.Unlock()

	if err := ctx.Err(); err != nil {
		s.metrics.LearnRejected(agentID, "context")
		return err
	}

	reward, err := rt.bundle.Rewarder.Reward(prev, action, next, terminal)
	if err != nil {
		s.metrics.LearnRejected(agentID, "reward")
		return err
	}
	if _, err := rl.CheckFinite(reward); err != nil {
		s.metrics.LearnRejected(agentID, "reward")
		return err
	}

	pre, err := rt.working.Snapshot()
	if err != nil {
		return err
	}
	transition := rl.Transition{
		State:     prev,
		Action:    action,
		Reward:    reward,
		NextState: next,
		Terminal:  terminal,
	}
	if err := rt.working.Update(transition); err != nil {
		s.metrics.LearnRejected(agentID, "update")
		return err
	}
	if err := ctx.Err(); err != nil {
		// Cancelled mid-update: roll the parameters back wholesale.
		if restoreErr := rt.working.Restore(pre); restoreErr != nil {
			s.logger.Error().Err(restoreErr).Str("agent_id", agentID).Msg("Failed to restore working agent after cancellation")
		}
		s.metrics.LearnRejected(agentID, "context")
		return err
	}

	rt.updatesSincePublish++
	s.metrics.UpdateApplied(agentID, reward, rt.working.TrainSteps(), s.now().Sub(start))

	if s.cfg.PublishEvery > 0 && rt.updatesSincePublish >= s.cfg.PublishEvery {
		if _, err := s.publishLocked(ctx, agentID, rt, registry.SourceOnline); err != nil {
			s.logger.Error().Err(err).Str("agent_id", agentID).Msg("Scheduled publish failed")
		}
	}
	return nil
}

// PublishWorking snapshots the working agent into the registry on demand.
func (s *Service) PublishWorking(ctx context.Context, agentID string, source string) (registry.ModelVersion, error) {
	rt, err := s.runtime(agentID)
	if err != nil {
		return registry.ModelVersion{}, err
	}
	rt.learnMu.Lock()
	defer rt.learnMu.Unlock()
	return s.publishLocked(ctx, agentID, rt, source)
}

func (s *Service) publishLocked(ctx context.Context, agentID string, rt *agentRuntime, source string) (registry.ModelVersion, error) {
	snap, err := rt.working.Snapshot()
	if err != nil {
		return registry.ModelVersion{}, err
	}
	version, err := s.registry.Publish(ctx, agentID, snap, registry.Metadata{
		TrainSteps: snap.TrainSteps,
		Source:     source,
	})
	if err != nil {
		return registry.ModelVersion{}, err
	}
	rt.updatesSincePublish = 0
	rt.lastPublish = s.now()
	s.metrics.ModelPublished(agentID, version.ID, snap.TrainSteps, source)

	if s.cfg.ActivateOnPublish {
		if err := s.registry.Activate(ctx, agentID, version.ID); err != nil {
			return version, err
		}
		s.metrics.ModelActivated(agentID, version.ID)
	}
	return version, nil
}

// Activate repoints the active version for an agent.
func (s *Service) Activate(ctx context.Context, agentID string, versionID int64) error {
	if _, err := s.runtime(agentID); err != nil {
		return err
	}
	if err := s.registry.Activate(ctx, agentID, versionID); err != nil {
		return err
	}
	s.metrics.ModelActivated(agentID, versionID)
	return nil
}

// Rollback reactivates the previously active version.
func (s *Service) Rollback(ctx context.Context, agentID string) (registry.ModelVersion, error) {
	if _, err := s.runtime(agentID); err != nil {
		return registry.ModelVersion{}, err
	}
	return s.registry.Rollback(ctx, agentID)
}

// Prune trims old versions, always retaining the active one.
func (s *Service) Prune(ctx context.Context, agentID string, keep int) error {
	if _, err := s.runtime(agentID); err != nil {
		return err
	}
	return s.registry.Prune(ctx, agentID, keep)
}

// Versions lists the published versions for an agent, oldest first.
func (s *Service) Versions(agentID string) ([]registry.ModelVersion, error) {
	if _, err := s.runtime(agentID); err != nil {
		return nil, err
	}
	return s.registry.Versions(agentID), nil
}

// ActiveVersion reports the active version for an agent.
func (s *Service) ActiveVersion(agentID string) (registry.ModelVersion, error) {
	if _, err := s.runtime(agentID); err != nil {
		return registry.ModelVersion{}, err
	}
	version, _, err := s.registry.GetActive(agentID)
	return version, err
}

// PublishLag reports, per agent, how many updates have accumulated since the
// last publish and when that publish happened. Consumed by the health
// monitor.
type PublishLag struct {
	AgentID     string
	Updates     int
	LastPublish time.Time
}

// PublishLags snapshots the publish lag of every registered agent.
func (s *Service) PublishLags() []PublishLag {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]PublishLag, 0, len(s.agents))
	for agentID, rt := range s.agents {
		rt.learnMu.Lock()
		out = append(out, PublishLag{
			AgentID:     agentID,
			Updates:     rt.updatesSincePublish,
			LastPublish: rt.lastPublish,
		})
		rt.learnMu.Unlock()
	}
	return out
}

// WithNow lets tests override the time source.
func (s *Service) WithNow(now func() time.Time) {
	s.now = now
}
