package game

import (
	"fmt"

	"github.com/Zakhele-TechWannabe/AmongEqualsRLServer/internal/rl"
)

// Reward shaping weights. Survival pays a small bonus every step; dying is
// heavily penalized so agents learn to manage hunger and energy.
const (
	survivalBonus   = 0.1
	deathPenalty    = -10.0
	healthWeight    = 2.0
	hungerWeight    = 1.5
	energyWeight    = 0.5
	restingWellFed  = -0.2
)

// RewardCalculator scores NPC transitions from need satisfaction.
type RewardCalculator struct{}

// NewRewardCalculator returns the NPC reward function.
func NewRewardCalculator() *RewardCalculator {
	return &RewardCalculator{}
}

// Reward implements rl.RewardCalculator. Terminal transitions are deaths.
func (c *RewardCalculator) Reward(prev rl.State, a rl.Action, next rl.State, terminal bool) (float64, error) {
	if terminal {
		return deathPenalty, nil
	}
	if len(prev.Features) != FeatureSize || len(next.Features) != FeatureSize {
		return 0, fmt.Errorf("%w: state feature vector length %d/%d, want %d",
			rl.ErrRewardComputation, len(prev.Features), len(next.Features), FeatureSize)
	}

	reward := survivalBonus
	reward += healthWeight * (next.Features[FeatHealth] - prev.Features[FeatHealth])
	// Hunger rising is bad, falling is good.
	reward += hungerWeight * (prev.Features[FeatHunger] - next.Features[FeatHunger])
	reward += energyWeight * (next.Features[FeatEnergy] - prev.Features[FeatEnergy])

	// Discourage resting when already rested and fed.
	if int(a) < len(Actions()) && Actions()[a] == ActionRest &&
		prev.Features[FeatEnergy] > 0.8 && prev.Features[FeatHunger] < 0.2 {
		reward += restingWellFed
	}

	return rl.CheckFinite(reward)
}
