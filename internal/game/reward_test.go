package game

import (
	"errors"
	"math"
	"testing"

	"github.com/Zakhele-TechWannabe/AmongEqualsRLServer/internal/rl"
)

func rewardState(t *testing.T, health, hunger, energy float64) rl.State {
	t.Helper()
	obs := sampleObservation()
	obs.Health = health
	obs.Hunger = hunger
	obs.Energy = energy
	translator := NewTranslator()
	state, err := translator.Translate(marshalObservation(t, obs))
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	return state
}

func TestReward_DeathPenalty(t *testing.T) {
	calc := NewRewardCalculator()
	prev := rewardState(t, 0.2, 0.9, 0.1)

	reward, err := calc.Reward(prev, 0, rl.State{}, true)
	if err != nil {
		t.Fatalf("reward failed: %v", err)
	}
	if reward != -10.0 {
		t.Errorf("expected death penalty -10, got %v", reward)
	}
}

func TestReward_SteadyStateEarnsSurvivalBonus(t *testing.T) {
	calc := NewRewardCalculator()
	state := rewardState(t, 0.8, 0.4, 0.6)

	reward, err := calc.Reward(state, 0, state, false)
	if err != nil {
		t.Fatalf("reward failed: %v", err)
	}
	if math.Abs(reward-0.1) > 1e-12 {
		t.Errorf("unchanged state should earn the survival bonus, got %v", reward)
	}
}

func TestReward_ImprovingNeedsPaysMore(t *testing.T) {
	calc := NewRewardCalculator()
	prev := rewardState(t, 0.5, 0.8, 0.3)
	better := rewardState(t, 0.7, 0.4, 0.5)
	worse := rewardState(t, 0.3, 1.0, 0.1)

	gain, err := calc.Reward(prev, 0, better, false)
	if err != nil {
		t.Fatalf("reward failed: %v", err)
	}
	loss, err := calc.Reward(prev, 0, worse, false)
	if err != nil {
		t.Fatalf("reward failed: %v", err)
	}
	if gain <= 0 {
		t.Errorf("improving health, hunger, and energy should be positive, got %v", gain)
	}
	if loss >= 0 {
		t.Errorf("deteriorating needs should be negative, got %v", loss)
	}
	if gain <= loss {
		t.Errorf("gain %v should exceed loss %v", gain, loss)
	}
}

func TestReward_PenalizesIdleRest(t *testing.T) {
	calc := NewRewardCalculator()
	rested := rewardState(t, 0.9, 0.1, 0.9)

	restIndex := rl.Action(-1)
	for i, name := range Actions() {
		if name == ActionRest {
			restIndex = rl.Action(i)
			break
		}
	}

	resting, err := calc.Reward(rested, restIndex, rested, false)
	if err != nil {
		t.Fatalf("reward failed: %v", err)
	}
	idle, err := calc.Reward(rested, 0, rested, false)
	if err != nil {
		t.Fatalf("reward failed: %v", err)
	}
	if resting >= idle {
		t.Errorf("resting while rested and fed (%v) should score below other actions (%v)", resting, idle)
	}
}

func TestReward_RejectsWrongLengthFeatureVectors(t *testing.T) {
	calc := NewRewardCalculator()
	good := rewardState(t, 0.8, 0.3, 0.7)
	long := rl.State{Key: "k", Features: make([]float64, FeatureSize+1)}

	cases := map[string][2]rl.State{
		"missing features": {{Key: "k"}, {Key: "k"}},
		"oversized prev":   {long, good},
		"oversized next":   {good, long},
	}
	for name, states := range cases {
		if _, err := calc.Reward(states[0], 0, states[1], false); !errors.Is(err, rl.ErrRewardComputation) {
			t.Errorf("%s: expected ErrRewardComputation, got %v", name, err)
		}
	}
}
