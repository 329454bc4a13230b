// Package registry persists, versions, and atomically publishes agent
// parameter snapshots. Exactly one version per agent is active at any
// instant; the active pointer is swapped atomically so decision readers
// never block on an activation.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/Zakhele-TechWannabe/AmongEqualsRLServer/internal/agent"
	"github.com/Zakhele-TechWannabe/AmongEqualsRLServer/internal/events"
)

var (
	// ErrUnknownVersion indicates an activate against a version that was
	// never published.
	ErrUnknownVersion = errors.New("unknown model version")
	// ErrNoHistory indicates a rollback with no previously active version.
	ErrNoHistory = errors.New("no activation history")
	// ErrNoActiveModel indicates no version has been activated for an agent.
	ErrNoActiveModel = errors.New("no active model")
)

// Snapshot provenance.
const (
	SourceOnline  = "online"
	SourceOffline = "offline"
)

// Metadata describes how a version came to be.
type Metadata struct {
	TrainSteps uint64 `json:"train_steps"`
	Source     string `json:"source"`
}

// ModelVersion is the immutable identity of one published snapshot.
type ModelVersion struct {
	AgentID   string    `json:"agent_id"`
	ID        int64     `json:"version_id"`
	CreatedAt time.Time `json:"created_at"`
	Metadata  Metadata  `json:"metadata"`
}

// entry binds a version to its snapshot. Entries are immutable after
// publish; in-flight decisions hold entry references, so pruning an entry
// from the registry never invalidates a decision already using it.
type entry struct {
	version  ModelVersion
	snapshot *agent.Snapshot
}

type agentModels struct {
	mu       sync.Mutex
	versions map[int64]*entry
	order    []int64
	nextID   int64
	active   atomic.Pointer[entry]
	history  []int64
}

// Registry is the in-memory authority over model versions, with
// write-through persistence via a Store.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]*agentModels

	store  Store
	events events.Publisher
	logger zerolog.Logger
	now    func() time.Time
}

// New constructs a Registry on top of a snapshot store.
func New(store Store, publisher events.Publisher, logger zerolog.Logger) *Registry {
	return &Registry{
		agents: make(map[string]*agentModels),
		store:  store,
		events: publisher,
		logger: logger,
		now:    time.Now,
	}
}

// WithNow lets tests override the time source.
func (r *Registry) WithNow(now func() time.Time) {
	r.now = now
}

func (r *Registry) models(agentID string, create bool) *agentModels {
	r.mu.RLock()
	am := r.agents[agentID]
	r.mu.RUnlock()
	if am != nil || !create {
		return am
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if am = r.agents[agentID]; am == nil {
		am = &agentModels{versions: make(map[int64]*entry)}
		r.agents[agentID] = am
	}
	return am
}

// Publish stores a snapshot under a newly minted version identifier. It does
// not change which version is active.
func (r *Registry) Publish(ctx context.Context, agentID string, snap *agent.Snapshot, meta Metadata) (ModelVersion, error) {
	if snap == nil {
		return ModelVersion{}, fmt.Errorf("%w: nil snapshot", agent.ErrIncompatibleModel)
	}
	am := r.models(agentID, true)

	am.mu.Lock()
	defer am.mu.Unlock()

	version := ModelVersion{
		AgentID:   agentID,
		ID:        am.nextID + 1,
		CreatedAt: r.now().UTC(),
		Metadata:  meta,
	}
	stored := snap.Clone()
	env := &Envelope{
		FormatVersion: FormatVersion,
		AgentID:       agentID,
		VersionID:     version.ID,
		CreatedAt:     version.CreatedAt,
		Metadata:      meta,
		Snapshot:      stored,
	}
	if err := r.store.SaveVersion(ctx, env); err != nil {
		return ModelVersion{}, fmt.Errorf("persist version %d for %s: %w", version.ID, agentID, err)
	}

	am.nextID = version.ID
	am.versions[version.ID] = &entry{version: version, snapshot: stored}
	am.order = append(am.order, version.ID)

	r.logger.Info().
		Str("agent_id", agentID).
		Int64("version_id", version.ID).
		Uint64("train_steps", meta.TrainSteps).
		Str("source", meta.Source).
		Msg("Model version published")
	r.publishEvent(ctx, events.ModelEvent{
		AgentID:    agentID,
		VersionID:  version.ID,
		Event:      events.EventModelPublished,
		Variant:    string(stored.Variant),
		TrainSteps: meta.TrainSteps,
		Source:     meta.Source,
	})
	return version, nil
}

// Activate atomically repoints the active pointer to a published version.
// In-flight decisions holding the prior version are unaffected.
func (r *Registry) Activate(ctx context.Context, agentID string, versionID int64) error {
	am := r.models(agentID, false)
	if am == nil {
		return fmt.Errorf("%w: agent %s has no published versions", ErrUnknownVersion, agentID)
	}

	am.mu.Lock()
	defer am.mu.Unlock()

	e, ok := am.versions[versionID]
	if !ok {
		return fmt.Errorf("%w: version %d for agent %s", ErrUnknownVersion, versionID, agentID)
	}
	if err := r.store.SetActive(ctx, agentID, versionID); err != nil {
		return fmt.Errorf("persist active version for %s: %w", agentID, err)
	}
	prev := am.active.Swap(e)
	if prev != nil && prev.version.ID != versionID {
		am.history = append(am.history, prev.version.ID)
	}

	r.logger.Info().Str("agent_id", agentID).Int64("version_id", versionID).Msg("Model version activated")
	r.publishEvent(ctx, events.ModelEvent{
		AgentID:   agentID,
		VersionID: versionID,
		Event:     events.EventModelActivated,
		Variant:   string(e.snapshot.Variant),
	})
	return nil
}

// GetActive returns the currently active version and snapshot. The snapshot
// is immutable; callers must not modify it.
func (r *Registry) GetActive(agentID string) (ModelVersion, *agent.Snapshot, error) {
	am := r.models(agentID, false)
	if am == nil {
		return ModelVersion{}, nil, fmt.Errorf("%w: agent %s", ErrNoActiveModel, agentID)
	}
	e := am.active.Load()
	if e == nil {
		return ModelVersion{}, nil, fmt.Errorf("%w: agent %s", ErrNoActiveModel, agentID)
	}
	return e.version, e.snapshot, nil
}

// Rollback reactivates the version that was active before the current one.
func (r *Registry) Rollback(ctx context.Context, agentID string) (ModelVersion, error) {
	am := r.models(agentID, false)
	if am == nil {
		return ModelVersion{}, fmt.Errorf("%w: agent %s", ErrNoHistory, agentID)
	}

	am.mu.Lock()
	defer am.mu.Unlock()

	// Walk back past versions that have since been pruned.
	for len(am.history) > 0 {
		versionID := am.history[len(am.history)-1]
		am.history = am.history[:len(am.history)-1]
		e, ok := am.versions[versionID]
		if !ok {
			continue
		}
		if err := r.store.SetActive(ctx, agentID, versionID); err != nil {
			return ModelVersion{}, fmt.Errorf("persist active version for %s: %w", agentID, err)
		}
		am.active.Store(e)
		r.logger.Info().Str("agent_id", agentID).Int64("version_id", versionID).Msg("Model rolled back")
		r.publishEvent(ctx, events.ModelEvent{
			AgentID:   agentID,
			VersionID: versionID,
			Event:     events.EventModelRolledBack,
		})
		return e.version, nil
	}
	return ModelVersion{}, fmt.Errorf("%w: agent %s", ErrNoHistory, agentID)
}

// Prune retains the keep most recent versions plus the active one. It is a
// no-op when fewer versions exist.
func (r *Registry) Prune(ctx context.Context, agentID string, keep int) error {
	am := r.models(agentID, false)
	if am == nil || keep < 0 {
		return nil
	}

	am.mu.Lock()
	defer am.mu.Unlock()

	if len(am.order) <= keep {
		return nil
	}
	var activeID int64 = -1
	if e := am.active.Load(); e != nil {
		activeID = e.version.ID
	}

	cutoff := len(am.order) - keep
	retained := am.order[:0:0]
	pruned := 0
	for i, id := range am.order {
		if i >= cutoff || id == activeID {
			retained = append(retained, id)
			continue
		}
		if err := r.store.DeleteVersion(ctx, agentID, id); err != nil {
			r.logger.Error().Err(err).Str("agent_id", agentID).Int64("version_id", id).Msg("Failed to delete pruned version")
			retained = append(retained, id)
			continue
		}
		delete(am.versions, id)
		pruned++
		r.publishEvent(ctx, events.ModelEvent{
			AgentID:   agentID,
			VersionID: id,
			Event:     events.EventModelPruned,
		})
	}
	am.order = retained
	if pruned > 0 {
		r.logger.Info().Str("agent_id", agentID).Int("pruned", pruned).Int("kept", len(retained)).Msg("Model versions pruned")
	}
	return nil
}

// Versions lists an agent's published versions in publish order.
func (r *Registry) Versions(agentID string) []ModelVersion {
	am := r.models(agentID, false)
	if am == nil {
		return nil
	}
	am.mu.Lock()
	defer am.mu.Unlock()
	out := make([]ModelVersion, 0, len(am.order))
	for _, id := range am.order {
		if e, ok := am.versions[id]; ok {
			out = append(out, e.version)
		}
	}
	return out
}

// AgentIDs lists all agents with at least one published version.
func (r *Registry) AgentIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.agents))
	for id := range r.agents {
		out = append(out, id)
	}
	return out
}

// Load rebuilds the in-memory registry from the store. Intended for process
// startup, before any traffic.
func (r *Registry) Load(ctx context.Context) error {
	envelopes, active, err := r.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load registry: %w", err)
	}
	for _, env := range envelopes {
		am := r.models(env.AgentID, true)
		am.mu.Lock()
		am.versions[env.VersionID] = &entry{
			version: ModelVersion{
				AgentID:   env.AgentID,
				ID:        env.VersionID,
				CreatedAt: env.CreatedAt,
				Metadata:  env.Metadata,
			},
			snapshot: env.Snapshot,
		}
		am.order = append(am.order, env.VersionID)
		if env.VersionID > am.nextID {
			am.nextID = env.VersionID
		}
		am.mu.Unlock()
	}
	for agentID, versionID := range active {
		am := r.models(agentID, false)
		if am == nil {
			continue
		}
		am.mu.Lock()
		if e, ok := am.versions[versionID]; ok {
			am.active.Store(e)
		}
		am.mu.Unlock()
	}
	return nil
}

func (r *Registry) publishEvent(ctx context.Context, event events.ModelEvent) {
	if err := r.events.PublishModelEvent(ctx, event); err != nil {
		r.logger.Error().Err(err).
			Str("agent_id", event.AgentID).
			Str("event", event.Event).
			Msg("Failed to publish model event")
	}
}
