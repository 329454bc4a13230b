package game

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/Zakhele-TechWannabe/AmongEqualsRLServer/internal/rl"
)

func sampleObservation() Observation {
	return Observation{
		NPCID:  "npc-1",
		Health: 0.9,
		Hunger: 0.4,
		Energy: 0.7,
		Personality: Personality{
			Greed:         0.1,
			Sociability:   0.2,
			Laziness:      0.3,
			Ambition:      0.4,
			Forgiveness:   0.5,
			Courage:       0.6,
			Analytical:    0.7,
			Impulsiveness: 0.8,
		},
		SocialStanding: 0.5,
		ThreatLevel:    0.2,
		FoodStock:      0.3,
		MaterialStock:  0.1,
		DaysAlive:      12,
		Alive:          true,
	}
}

func marshalObservation(t *testing.T, obs Observation) rl.Observation {
	t.Helper()
	data, err := json.Marshal(obs)
	if err != nil {
		t.Fatalf("marshal observation: %v", err)
	}
	return data
}

func TestTranslator_ProducesStableStates(t *testing.T) {
	translator := NewTranslator()
	raw := marshalObservation(t, sampleObservation())

	state, err := translator.Translate(raw)
	if err != nil {
		t.Fatalf("translate failed: %v", err)
	}

	if len(state.Features) != FeatureSize {
		t.Fatalf("expected %d features, got %d", FeatureSize, len(state.Features))
	}
	// health=0.9 (high), hunger=0.4 (mid), energy=0.7 (high), threat=0.2 (low)
	if state.Key != "h2-g1-e2-t0" {
		t.Errorf("unexpected state key %q", state.Key)
	}
	if state.Features[FeatHealth] != 0.9 || state.Features[FeatEnergy] != 0.7 {
		t.Errorf("physical stats misplaced in feature vector: %v", state.Features[:3])
	}
	if state.Features[FeatGreed] != 0.1 || state.Features[FeatImpulsiveness] != 0.8 {
		t.Errorf("personality traits misplaced in feature vector")
	}
	if state.Features[FeatMaterialStock] != 0.1 {
		t.Errorf("context values misplaced in feature vector")
	}

	// Identical observations yield identical states.
	again, err := translator.Translate(raw)
	if err != nil {
		t.Fatalf("second translate failed: %v", err)
	}
	if again.Key != state.Key {
		t.Errorf("translation is not deterministic: %q vs %q", again.Key, state.Key)
	}
	for i := range state.Features {
		if again.Features[i] != state.Features[i] {
			t.Errorf("feature %d differs between identical translations", i)
		}
	}
}

func TestTranslator_ToleratesUnknownFields(t *testing.T) {
	translator := NewTranslator()
	raw := []byte(`{"npc_id":"npc-1","health":1,"hunger":0,"energy":1,"future_field":42}`)

	if _, err := translator.Translate(raw); err != nil {
		t.Fatalf("observation with extra fields rejected: %v", err)
	}
}

func TestTranslator_RejectsMalformedObservations(t *testing.T) {
	translator := NewTranslator()

	cases := []struct {
		name string
		obs  Observation
	}{
		{"health above range", func() Observation { o := sampleObservation(); o.Health = 1.5; return o }()},
		{"hunger below range", func() Observation { o := sampleObservation(); o.Hunger = -0.1; return o }()},
		{"trait out of range", func() Observation { o := sampleObservation(); o.Personality.Courage = 2.0; return o }()},
		{"missing npc id", func() Observation { o := sampleObservation(); o.NPCID = ""; return o }()},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := translator.Translate(marshalObservation(t, tc.obs))
			if !errors.Is(err, rl.ErrTranslation) {
				t.Errorf("expected ErrTranslation, got %v", err)
			}
		})
	}

	if _, err := translator.Translate(nil); !errors.Is(err, rl.ErrTranslation) {
		t.Errorf("expected ErrTranslation for empty observation, got %v", err)
	}
	if _, err := translator.Translate([]byte("{broken")); !errors.Is(err, rl.ErrTranslation) {
		t.Errorf("expected ErrTranslation for invalid JSON, got %v", err)
	}
}

func TestBucket_Thirds(t *testing.T) {
	cases := []struct {
		value float64
		want  int
	}{
		{0.0, 0},
		{0.32, 0},
		{0.34, 1},
		{0.65, 1},
		{0.67, 2},
		{1.0, 2},
	}
	for _, tc := range cases {
		if got := bucket(tc.value); got != tc.want {
			t.Errorf("bucket(%v) = %d, want %d", tc.value, got, tc.want)
		}
	}
}
