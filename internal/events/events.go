// Package events fans model lifecycle notifications out to downstream
// consumers (dashboards, trainers, alerting).
package events

import "context"

// Publisher is implemented by downstream fan-out mechanisms.
type Publisher interface {
	PublishModelEvent(ctx context.Context, payload ModelEvent) error
}

// Model lifecycle event names.
const (
	EventModelPublished  = "published"
	EventModelActivated  = "activated"
	EventModelRolledBack = "rolled_back"
	EventModelPruned     = "pruned"
)

// ModelEvent is emitted whenever a model version is published, activated,
// rolled back, or pruned.
type ModelEvent struct {
	AgentID    string `json:"agent_id"`
	VersionID  int64  `json:"version_id"`
	Event      string `json:"event"`
	Variant    string `json:"variant,omitempty"`
	TrainSteps uint64 `json:"train_steps,omitempty"`
	Source     string `json:"source,omitempty"`
	Detail     string `json:"detail,omitempty"`
}

// NoopPublisher drops everything; useful for tests and single-node setups.
type NoopPublisher struct{}

// PublishModelEvent satisfies Publisher.
func (NoopPublisher) PublishModelEvent(context.Context, ModelEvent) error { return nil }
