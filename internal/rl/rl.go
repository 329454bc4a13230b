// Package rl defines the core reinforcement-learning contracts the decision
// engine is built around: observations, canonical states, action spaces,
// reward computation, and transitions.
package rl

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrTranslation indicates a malformed observation that cannot be
	// converted into a canonical state.
	ErrTranslation = errors.New("observation translation failed")
	// ErrInvalidAction indicates an action identifier outside the legal set
	// for a state.
	ErrInvalidAction = errors.New("invalid action")
	// ErrInvalidConfiguration indicates a caller contract violation such as
	// an exploration rate outside [0,1].
	ErrInvalidConfiguration = errors.New("invalid configuration")
	// ErrRewardComputation indicates an undefined or non-finite reward.
	ErrRewardComputation = errors.New("reward computation failed")
)

// Observation is the raw, domain-specific input to a decision. The core
// treats it as opaque; only the configured Translator reads it.
type Observation []byte

// State is the canonical representation of a game situation. Key is a stable
// discretization used by tabular agents; Features is a fixed-length numeric
// vector used by function-approximation agents. States are immutable once
// produced by a Translator.
type State struct {
	Key      string    `json:"key"`
	Features []float64 `json:"features"`
}

// Clone returns a deep copy of the state.
func (s State) Clone() State {
	features := make([]float64, len(s.Features))
	copy(features, s.Features)
	return State{Key: s.Key, Features: features}
}

// Action identifies one of finitely many behaviors available in a state.
// It is the index into the ActionSpace's stable ordering; that ordering is
// part of the model format contract and must not change within a model
// version's lifetime.
type Action int

// Transition captures one step of experience. It is ephemeral and drives a
// single learning update; the core does not persist it.
type Transition struct {
	State     State   `json:"state"`
	Action    Action  `json:"action"`
	Reward    float64 `json:"reward"`
	NextState State   `json:"next_state"`
	Terminal  bool    `json:"terminal"`
}

// Translator converts raw observations into canonical states. Translate must
// be pure and deterministic: identical observations always yield identical
// states.
type Translator interface {
	Translate(obs Observation) (State, error)
}

// ActionSpace enumerates legal actions and maps chosen action identifiers
// back to domain actions.
type ActionSpace interface {
	// LegalActions returns the legal actions for a state in a stable order.
	LegalActions(s State) []Action
	// Size returns the total number of actions in the space. Value tables
	// and network output layers are sized by it.
	Size() int
	// Decode maps an action identifier to its domain action name. It fails
	// with ErrInvalidAction if the identifier is not legal in the state.
	Decode(s State, a Action) (string, error)
}

// RewardCalculator computes a scalar reward for a transition. Implementations
// must be pure, deterministic, and finite-valued.
type RewardCalculator interface {
	Reward(prev State, a Action, next State, terminal bool) (float64, error)
}

// CheckFinite guards learning updates against non-finite rewards leaking in.
func CheckFinite(reward float64) (float64, error) {
	if math.IsNaN(reward) || math.IsInf(reward, 0) {
		return 0, fmt.Errorf("%w: non-finite value %v", ErrRewardComputation, reward)
	}
	return reward, nil
}

// ValidateExplorationRate enforces the [0,1] contract on exploration rates.
func ValidateExplorationRate(rate float64) error {
	if math.IsNaN(rate) || rate < 0 || rate > 1 {
		return fmt.Errorf("%w: exploration rate %v outside [0,1]", ErrInvalidConfiguration, rate)
	}
	return nil
}
