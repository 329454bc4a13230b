package game

// Personality holds the eight behavior-shaping traits, each in [0,1].
type Personality struct {
	Greed         float64 `json:"greed"`
	Sociability   float64 `json:"sociability"`
	Laziness      float64 `json:"laziness"`
	Ambition      float64 `json:"ambition"`
	Forgiveness   float64 `json:"forgiveness"`
	Courage       float64 `json:"courage"`
	Analytical    float64 `json:"analytical"`
	Impulsiveness float64 `json:"impulsiveness"`
}

// Vector returns the traits in a fixed order for feature encoding.
func (p Personality) Vector() []float64 {
	return []float64{
		p.Greed,
		p.Sociability,
		p.Laziness,
		p.Ambition,
		p.Forgiveness,
		p.Courage,
		p.Analytical,
		p.Impulsiveness,
	}
}

// Observation is the raw game snapshot the world simulation reports for one
// NPC at decision time. Physical stats are in [0,1]: hunger 1.0 means
// starving, energy 0.0 means exhausted.
type Observation struct {
	NPCID string `json:"npc_id"`

	Health float64 `json:"health"`
	Hunger float64 `json:"hunger"`
	Energy float64 `json:"energy"`

	Personality Personality `json:"personality"`

	// Social context
	SocialStanding float64 `json:"social_standing"`
	ThreatLevel    float64 `json:"threat_level"`
	FoodStock      float64 `json:"food_stock"`
	MaterialStock  float64 `json:"material_stock"`

	DaysAlive int  `json:"days_alive"`
	Alive     bool `json:"alive"`
}
