// Package agent implements the learning agents behind the decision service:
// a tabular Q-learning agent and a function-approximation deep-Q agent, both
// behind a shared capability set of action selection, learning updates, and
// snapshot/restore.
package agent

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/Zakhele-TechWannabe/AmongEqualsRLServer/internal/rl"
)

// ErrIncompatibleModel indicates a snapshot whose shape does not match the
// agent it is being restored into. Restore is all-or-nothing: the agent's
// prior parameters are retained.
var ErrIncompatibleModel = errors.New("incompatible model snapshot")

// Variant tags the concrete agent implementation a snapshot belongs to.
type Variant string

const (
	VariantTabular Variant = "tabular"
	VariantDeepQ   Variant = "deepq"
)

// Snapshot is an immutable copy of an agent's learned parameters. Params is
// variant-specific. Snapshots round-trip exactly through JSON: restoring a
// persisted snapshot reproduces identical action selection for identical
// inputs.
type Snapshot struct {
	Variant    Variant         `json:"variant"`
	ActionSize int             `json:"action_size"`
	TrainSteps uint64          `json:"train_steps"`
	Params     json.RawMessage `json:"params"`
}

// Clone returns a deep copy of the snapshot.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	params := make(json.RawMessage, len(s.Params))
	copy(params, s.Params)
	return &Snapshot{
		Variant:    s.Variant,
		ActionSize: s.ActionSize,
		TrainSteps: s.TrainSteps,
		Params:     params,
	}
}

// Agent is the polymorphic capability set shared by all variants.
type Agent interface {
	// Variant identifies the concrete implementation.
	Variant() Variant
	// SelectAction explores with probability explorationRate, otherwise
	// exploits the current value estimates. Greedy ties break to the lowest
	// action index. Rates outside [0,1] fail with ErrInvalidConfiguration.
	SelectAction(s rl.State, explorationRate float64) (rl.Action, error)
	// Update applies one learning step from a transition.
	Update(t rl.Transition) error
	// Snapshot returns an immutable copy of the current parameters.
	Snapshot() (*Snapshot, error)
	// Restore atomically replaces the current parameters. A concurrent
	// SelectAction sees either the old or the new parameters, never a mix.
	Restore(snap *Snapshot) error
	// TrainSteps reports how many updates the agent has absorbed.
	TrainSteps() uint64
}

// Policy is a read-only action-selection view built from a snapshot. It is
// what the serving path evaluates; it never mutates and never blocks on
// learning.
type Policy interface {
	SelectAction(s rl.State, explorationRate float64) (rl.Action, error)
}

// Config holds agent hyperparameters. Tabular agents use Alpha/Gamma; deep-Q
// agents additionally use the network and buffer settings.
type Config struct {
	Alpha float64 `mapstructure:"alpha" json:"alpha"`
	Gamma float64 `mapstructure:"gamma" json:"gamma"`

	InputSize       int     `mapstructure:"input_size" json:"input_size"`
	HiddenSize      int     `mapstructure:"hidden_size" json:"hidden_size"`
	LearningRate    float64 `mapstructure:"learning_rate" json:"learning_rate"`
	BufferCapacity  int     `mapstructure:"buffer_capacity" json:"buffer_capacity"`
	BatchSize       int     `mapstructure:"batch_size" json:"batch_size"`
	TargetSyncEvery int     `mapstructure:"target_sync_every" json:"target_sync_every"`

	// Seed fixes all randomness when non-zero; used by tests and the trainer.
	Seed int64 `mapstructure:"seed" json:"seed"`
}

// DefaultConfig returns the hyperparameters the service starts with.
func DefaultConfig() Config {
	return Config{
		Alpha:           0.1,
		Gamma:           0.95,
		InputSize:       15,
		HiddenSize:      32,
		LearningRate:    0.001,
		BufferCapacity:  10000,
		BatchSize:       32,
		TargetSyncEvery: 100,
	}
}

// Validate checks the hyperparameters for a variant.
func (c Config) Validate(variant Variant) error {
	if c.Alpha <= 0 || c.Alpha > 1 {
		return fmt.Errorf("%w: alpha %v outside (0,1]", rl.ErrInvalidConfiguration, c.Alpha)
	}
	if c.Gamma < 0 || c.Gamma >= 1 {
		return fmt.Errorf("%w: gamma %v outside [0,1)", rl.ErrInvalidConfiguration, c.Gamma)
	}
	if variant == VariantDeepQ {
		if c.InputSize <= 0 {
			return fmt.Errorf("%w: input_size must be positive", rl.ErrInvalidConfiguration)
		}
		if c.HiddenSize <= 0 {
			return fmt.Errorf("%w: hidden_size must be positive", rl.ErrInvalidConfiguration)
		}
		if c.LearningRate <= 0 {
			return fmt.Errorf("%w: learning_rate must be positive", rl.ErrInvalidConfiguration)
		}
		if c.BufferCapacity <= 0 || c.BatchSize <= 0 || c.BatchSize > c.BufferCapacity {
			return fmt.Errorf("%w: invalid buffer/batch sizing", rl.ErrInvalidConfiguration)
		}
		if c.TargetSyncEvery <= 0 {
			return fmt.Errorf("%w: target_sync_every must be positive", rl.ErrInvalidConfiguration)
		}
	}
	return nil
}

// New constructs a working agent of the given variant.
func New(variant Variant, space rl.ActionSpace, cfg Config) (Agent, error) {
	if err := cfg.Validate(variant); err != nil {
		return nil, err
	}
	switch variant {
	case VariantTabular:
		return NewTabularQ(space, cfg), nil
	case VariantDeepQ:
		return NewDeepQ(space, cfg), nil
	default:
		return nil, fmt.Errorf("%w: unknown agent variant %q", rl.ErrInvalidConfiguration, variant)
	}
}

// PolicyFrom builds an immutable serving policy from a snapshot.
func PolicyFrom(snap *Snapshot, space rl.ActionSpace) (Policy, error) {
	if snap == nil {
		return nil, fmt.Errorf("%w: nil snapshot", ErrIncompatibleModel)
	}
	if snap.ActionSize != space.Size() {
		return nil, fmt.Errorf("%w: snapshot action size %d, space size %d",
			ErrIncompatibleModel, snap.ActionSize, space.Size())
	}
	switch snap.Variant {
	case VariantTabular:
		return newTabularPolicy(snap, space)
	case VariantDeepQ:
		return newDeepQPolicy(snap, space)
	default:
		return nil, fmt.Errorf("%w: unknown variant %q", ErrIncompatibleModel, snap.Variant)
	}
}

// sampler wraps the exploration randomness behind a mutex so agents stay
// safe under concurrent SelectAction calls.
type sampler struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func newSampler(seed int64) *sampler {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &sampler{rng: rand.New(rand.NewSource(seed))}
}

// explore reports whether this selection should be a random one. A zero rate
// never consumes randomness, keeping greedy selection fully deterministic.
func (s *sampler) explore(rate float64) bool {
	if rate <= 0 {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Float64() < rate
}

func (s *sampler) pick(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Intn(n)
}

// greedyAction returns the legal action with the highest value. The legal
// slice is in ascending index order, so strict comparison keeps the lowest
// index on ties.
func greedyAction(legal []rl.Action, value func(rl.Action) float64) rl.Action {
	best := legal[0]
	bestValue := value(best)
	for _, a := range legal[1:] {
		if v := value(a); v > bestValue {
			best, bestValue = a, v
		}
	}
	return best
}

// selectWith centralizes the explore/exploit split shared by agents and
// policies.
func selectWith(s *sampler, space rl.ActionSpace, state rl.State, rate float64, value func(rl.Action) float64) (rl.Action, error) {
	if err := rl.ValidateExplorationRate(rate); err != nil {
		return 0, err
	}
	legal := space.LegalActions(state)
	if len(legal) == 0 {
		return 0, fmt.Errorf("%w: no legal actions for state %s", rl.ErrInvalidConfiguration, state.Key)
	}
	if s.explore(rate) {
		return legal[s.pick(len(legal))], nil
	}
	return greedyAction(legal, value), nil
}
