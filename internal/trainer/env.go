package trainer

import (
	"math/rand"

	"github.com/Zakhele-TechWannabe/AmongEqualsRLServer/internal/game"
)

// Env is a self-contained NPC life simulation used for offline training.
// One step is one day: the NPC spends energy on its chosen action, eats from
// its food stock, and takes damage from starvation and ambient threat.
type Env struct {
	rng     *rand.Rand
	npcID   string
	maxDays int
	obs     game.Observation
}

// NewEnv creates a training environment for one NPC identity.
func NewEnv(npcID string, maxDays int, seed int64) *Env {
	return &Env{
		rng:     rand.New(rand.NewSource(seed)),
		npcID:   npcID,
		maxDays: maxDays,
	}
}

// Reset starts a new life with a fresh random personality and full stats.
func (e *Env) Reset() game.Observation {
	e.obs = game.Observation{
		NPCID:  e.npcID,
		Health: 1.0,
		Hunger: 0.2,
		Energy: 1.0,
		Personality: game.Personality{
			Greed:         e.rng.Float64(),
			Sociability:   e.rng.Float64(),
			Laziness:      e.rng.Float64(),
			Ambition:      e.rng.Float64(),
			Forgiveness:   e.rng.Float64(),
			Courage:       e.rng.Float64(),
			Analytical:    e.rng.Float64(),
			Impulsiveness: e.rng.Float64(),
		},
		SocialStanding: 0.5,
		ThreatLevel:    0.2 + 0.3*e.rng.Float64(),
		FoodStock:      0.3,
		MaterialStock:  0.1,
		Alive:          true,
	}
	return e.obs
}

// Observation returns the current snapshot.
func (e *Env) Observation() game.Observation {
	return e.obs
}

// Step advances one day with the given action. It returns the new
// observation and whether the episode ended (death or horizon).
func (e *Env) Step(action game.ActionName) (game.Observation, bool) {
	meta := game.MetadataFor(action)
	obs := e.obs

	obs.Energy = clamp(obs.Energy - meta.EnergyCost)
	if e.rng.Float64() < meta.BaseSuccessRate {
		e.applyEffect(&obs, action)
	} else if action == game.ActionChallengeLeadership {
		// A failed coup is the one outcome worse than doing nothing.
		obs.SocialStanding = clamp(obs.SocialStanding - 0.15)
	}

	// Daily upkeep.
	obs.Hunger = clamp(obs.Hunger + 0.15)
	if obs.FoodStock > 0 && obs.Hunger > 0.3 {
		obs.FoodStock = clamp(obs.FoodStock - 0.1)
		obs.Hunger = clamp(obs.Hunger - 0.4)
	}
	if obs.Hunger >= 1.0 {
		obs.Health = clamp(obs.Health - 0.15)
	} else if obs.Hunger < 0.3 {
		obs.Health = clamp(obs.Health + 0.02)
	}
	obs.Health = clamp(obs.Health - 0.05*obs.ThreatLevel)

	obs.DaysAlive++
	obs.Alive = obs.Health > 0
	e.obs = obs
	return obs, !obs.Alive || obs.DaysAlive >= e.maxDays
}

func (e *Env) applyEffect(obs *game.Observation, action game.ActionName) {
	switch action {
	case game.ActionGatherFood:
		obs.FoodStock = clamp(obs.FoodStock + 0.25)
	case game.ActionGatherMaterials:
		obs.MaterialStock = clamp(obs.MaterialStock + 0.25)
	case game.ActionCraftTools:
		if obs.MaterialStock >= 0.1 {
			obs.MaterialStock = clamp(obs.MaterialStock - 0.1)
			obs.FoodStock = clamp(obs.FoodStock + 0.15)
		}
	case game.ActionBuildShelter:
		if obs.MaterialStock >= 0.2 {
			obs.MaterialStock = clamp(obs.MaterialStock - 0.2)
			obs.ThreatLevel = clamp(obs.ThreatLevel - 0.2)
		}
	case game.ActionHelpRandomNPC, game.ActionShareResources:
		obs.SocialStanding = clamp(obs.SocialStanding + 0.1)
	case game.ActionStartConversation, game.ActionSupportLeader, game.ActionVoteOnProposal:
		obs.SocialStanding = clamp(obs.SocialStanding + 0.05)
	case game.ActionFormAlliance:
		obs.SocialStanding = clamp(obs.SocialStanding + 0.1)
		obs.ThreatLevel = clamp(obs.ThreatLevel - 0.1)
	case game.ActionProposeNewRule, game.ActionChallengeLeadership:
		obs.SocialStanding = clamp(obs.SocialStanding + 0.15)
	case game.ActionRest:
		obs.Health = clamp(obs.Health + 0.05)
	case game.ActionPracticeSkills, game.ActionObserveOthers, game.ActionDoNothing:
		// No world effect.
	}
}

func clamp(value float64) float64 {
	if value < 0 {
		return 0
	}
	if value > 1 {
		return 1
	}
	return value
}
