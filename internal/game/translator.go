package game

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/Zakhele-TechWannabe/AmongEqualsRLServer/internal/rl"
)

// FeatureSize is the length of the state feature vector: three physical
// stats, eight personality traits, four context values.
const FeatureSize = 15

// Translator converts NPC observations into canonical RL states. The state
// key discretizes the physical stats and threat level for tabular agents;
// the feature vector carries the full normalized observation for
// function-approximation agents.
type Translator struct{}

// NewTranslator returns the NPC state translator.
func NewTranslator() *Translator {
	return &Translator{}
}

// Translate implements rl.Translator.
func (t *Translator) Translate(obs rl.Observation) (rl.State, error) {
	if len(obs) == 0 {
		return rl.State{}, fmt.Errorf("%w: empty observation", rl.ErrTranslation)
	}

	var raw Observation
	if err := json.Unmarshal(obs, &raw); err != nil {
		return rl.State{}, fmt.Errorf("%w: %v", rl.ErrTranslation, err)
	}
	if err := validate(raw); err != nil {
		return rl.State{}, err
	}

	features := make([]float64, 0, FeatureSize)
	features = append(features, raw.Health, raw.Hunger, raw.Energy)
	features = append(features, raw.Personality.Vector()...)
	features = append(features,
		clamp(raw.SocialStanding, 0, 1),
		clamp(raw.ThreatLevel, 0, 1),
		clamp(raw.FoodStock, 0, 1),
		clamp(raw.MaterialStock, 0, 1),
	)

	key := fmt.Sprintf("h%d-g%d-e%d-t%d",
		bucket(raw.Health), bucket(raw.Hunger), bucket(raw.Energy), bucket(raw.ThreatLevel))

	return rl.State{Key: key, Features: features}, nil
}

func validate(obs Observation) error {
	if obs.NPCID == "" {
		return fmt.Errorf("%w: npc_id is required", rl.ErrTranslation)
	}
	stats := map[string]float64{
		"health": obs.Health,
		"hunger": obs.Hunger,
		"energy": obs.Energy,
	}
	for name, value := range stats {
		if math.IsNaN(value) || value < 0 || value > 1 {
			return fmt.Errorf("%w: %s %v outside [0,1]", rl.ErrTranslation, name, value)
		}
	}
	for i, trait := range obs.Personality.Vector() {
		if math.IsNaN(trait) || trait < 0 || trait > 1 {
			return fmt.Errorf("%w: personality trait %d value %v outside [0,1]", rl.ErrTranslation, i, trait)
		}
	}
	return nil
}

// bucket discretizes a [0,1] stat into low/mid/high thirds.
func bucket(value float64) int {
	switch {
	case value < 1.0/3.0:
		return 0
	case value < 2.0/3.0:
		return 1
	default:
		return 2
	}
}

func clamp(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
