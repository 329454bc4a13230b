package game

import (
	"fmt"

	"github.com/Zakhele-TechWannabe/AmongEqualsRLServer/internal/rl"
)

// Feature vector layout produced by the Translator.
const (
	FeatHealth = iota
	FeatHunger
	FeatEnergy
	FeatGreed
	FeatSociability
	FeatLaziness
	FeatAmbition
	FeatForgiveness
	FeatCourage
	FeatAnalytical
	FeatImpulsiveness
	FeatSocialStanding
	FeatThreatLevel
	FeatFoodStock
	FeatMaterialStock
)

// ActionSpace exposes the NPC action catalog through the rl.ActionSpace
// contract. Ordering follows the canonical action declaration order.
type ActionSpace struct {
	actions []ActionName
}

// NewActionSpace returns the full NPC action space.
func NewActionSpace() *ActionSpace {
	return &ActionSpace{actions: Actions()}
}

// Size implements rl.ActionSpace.
func (s *ActionSpace) Size() int {
	return len(s.actions)
}

// LegalActions implements rl.ActionSpace. An action is legal when the NPC
// has the energy to attempt it; rest and other restorative or free actions
// are always legal, so the legal set is never empty.
func (s *ActionSpace) LegalActions(state rl.State) []rl.Action {
	legal := make([]rl.Action, 0, len(s.actions))
	for i, name := range s.actions {
		if s.isLegal(state, name) {
			legal = append(legal, rl.Action(i))
		}
	}
	return legal
}

// Decode implements rl.ActionSpace.
func (s *ActionSpace) Decode(state rl.State, a rl.Action) (string, error) {
	if a < 0 || int(a) >= len(s.actions) {
		return "", fmt.Errorf("%w: action %d outside space of %d", rl.ErrInvalidAction, a, len(s.actions))
	}
	name := s.actions[a]
	if !s.isLegal(state, name) {
		return "", fmt.Errorf("%w: action %q not legal in state %s", rl.ErrInvalidAction, name, state.Key)
	}
	return string(name), nil
}

func (s *ActionSpace) isLegal(state rl.State, name ActionName) bool {
	meta := MetadataFor(name)
	if meta.EnergyCost <= 0 {
		return true
	}
	// States without a feature vector (tabular-only callers) get the full set.
	if len(state.Features) <= FeatEnergy {
		return true
	}
	return state.Features[FeatEnergy] >= meta.EnergyCost
}
