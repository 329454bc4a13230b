package agent

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zakhele-TechWannabe/AmongEqualsRLServer/internal/rl"
)

// stubSpace is a fixed-size action space where every action is legal.
type stubSpace struct {
	size int
}

func (s stubSpace) Size() int { return s.size }

func (s stubSpace) LegalActions(rl.State) []rl.Action {
	out := make([]rl.Action, s.size)
	for i := range out {
		out[i] = rl.Action(i)
	}
	return out
}

func (s stubSpace) Decode(_ rl.State, a rl.Action) (string, error) {
	if a < 0 || int(a) >= s.size {
		return "", fmt.Errorf("%w: %d", rl.ErrInvalidAction, a)
	}
	return fmt.Sprintf("action-%d", a), nil
}

// gatedSpace restricts legality to an explicit subset.
type gatedSpace struct {
	size  int
	legal []rl.Action
}

func (s gatedSpace) Size() int { return s.size }

func (s gatedSpace) LegalActions(rl.State) []rl.Action { return s.legal }

func (s gatedSpace) Decode(_ rl.State, a rl.Action) (string, error) {
	for _, l := range s.legal {
		if l == a {
			return fmt.Sprintf("action-%d", a), nil
		}
	}
	return "", fmt.Errorf("%w: %d", rl.ErrInvalidAction, a)
}

func tabularConfig() Config {
	cfg := DefaultConfig()
	cfg.Alpha = 0.5
	cfg.Gamma = 0.9
	cfg.Seed = 1
	return cfg
}

func TestTabularQ_UpdateRuleTerminal(t *testing.T) {
	agent := NewTabularQ(stubSpace{size: 2}, tabularConfig())

	tr := rl.Transition{
		State:    rl.State{Key: "s1"},
		Action:   0,
		Reward:   1.0,
		Terminal: true,
	}
	require.NoError(t, agent.Update(tr))
	// Q = 0 + 0.5 * (1 - 0) = 0.5
	assert.InDelta(t, 0.5, agent.value("s1", 0), 1e-12)

	require.NoError(t, agent.Update(tr))
	// Q = 0.5 + 0.5 * (1 - 0.5) = 0.75
	assert.InDelta(t, 0.75, agent.value("s1", 0), 1e-12)
	assert.Equal(t, uint64(2), agent.TrainSteps())
}

func TestTabularQ_UpdateRuleBootstrapsNextState(t *testing.T) {
	agent := NewTabularQ(stubSpace{size: 2}, tabularConfig())

	// Seed the next state's value: Q[s2,0] = 0.75 after two terminal updates.
	seed := rl.Transition{State: rl.State{Key: "s2"}, Action: 0, Reward: 1.0, Terminal: true}
	require.NoError(t, agent.Update(seed))
	require.NoError(t, agent.Update(seed))

	tr := rl.Transition{
		State:     rl.State{Key: "s1"},
		Action:    1,
		Reward:    0,
		NextState: rl.State{Key: "s2"},
	}
	require.NoError(t, agent.Update(tr))
	// target = 0 + 0.9 * 0.75 = 0.675, Q = 0.5 * 0.675
	assert.InDelta(t, 0.3375, agent.value("s1", 1), 1e-12)
}

func TestTabularQ_GreedyTieBreaksToLowestIndex(t *testing.T) {
	agent := NewTabularQ(stubSpace{size: 4}, tabularConfig())

	state := rl.State{Key: "fresh"}
	for i := 0; i < 5; i++ {
		action, err := agent.SelectAction(state, 0)
		require.NoError(t, err)
		assert.Equal(t, rl.Action(0), action)
	}

	// Make action 2 strictly best and the tie is gone.
	require.NoError(t, agent.Update(rl.Transition{State: state, Action: 2, Reward: 1.0, Terminal: true}))
	action, err := agent.SelectAction(state, 0)
	require.NoError(t, err)
	assert.Equal(t, rl.Action(2), action)
}

func TestTabularQ_ExplorationRateValidation(t *testing.T) {
	agent := NewTabularQ(stubSpace{size: 2}, tabularConfig())
	state := rl.State{Key: "s"}

	for _, rate := range []float64{-0.1, 1.1, math.NaN()} {
		_, err := agent.SelectAction(state, rate)
		assert.ErrorIs(t, err, rl.ErrInvalidConfiguration, "rate %v", rate)
	}
}

func TestTabularQ_ExplorationStaysLegal(t *testing.T) {
	space := gatedSpace{size: 4, legal: []rl.Action{1, 3}}
	agent := NewTabularQ(space, tabularConfig())
	state := rl.State{Key: "s"}

	seen := map[rl.Action]bool{}
	for i := 0; i < 200; i++ {
		action, err := agent.SelectAction(state, 1.0)
		require.NoError(t, err)
		assert.Contains(t, []rl.Action{1, 3}, action)
		seen[action] = true
	}
	assert.Len(t, seen, 2, "full exploration should reach every legal action")
}

func TestTabularQ_UpdateRejectsBadInput(t *testing.T) {
	agent := NewTabularQ(stubSpace{size: 2}, tabularConfig())

	err := agent.Update(rl.Transition{State: rl.State{Key: "s"}, Action: 5, Reward: 1.0})
	assert.ErrorIs(t, err, rl.ErrInvalidAction)

	err = agent.Update(rl.Transition{State: rl.State{Key: "s"}, Action: 0, Reward: math.NaN()})
	assert.ErrorIs(t, err, rl.ErrRewardComputation)

	err = agent.Update(rl.Transition{State: rl.State{Key: "s"}, Action: 0, Reward: math.Inf(1)})
	assert.ErrorIs(t, err, rl.ErrRewardComputation)
	assert.Equal(t, uint64(0), agent.TrainSteps())
}

func TestTabularQ_SnapshotRoundTrip(t *testing.T) {
	space := stubSpace{size: 3}
	agent := NewTabularQ(space, tabularConfig())
	state := rl.State{Key: "s1"}

	require.NoError(t, agent.Update(rl.Transition{State: state, Action: 2, Reward: 1.0, Terminal: true}))
	snap, err := agent.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, VariantTabular, snap.Variant)
	assert.Equal(t, 3, snap.ActionSize)
	assert.Equal(t, uint64(1), snap.TrainSteps)

	restored := NewTabularQ(space, tabularConfig())
	require.NoError(t, restored.Restore(snap))
	assert.Equal(t, uint64(1), restored.TrainSteps())

	want, err := agent.SelectAction(state, 0)
	require.NoError(t, err)
	got, err := restored.SelectAction(state, 0)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestTabularQ_SnapshotIsIsolatedFromLaterUpdates(t *testing.T) {
	space := stubSpace{size: 2}
	agent := NewTabularQ(space, tabularConfig())
	state := rl.State{Key: "s1"}

	require.NoError(t, agent.Update(rl.Transition{State: state, Action: 0, Reward: 1.0, Terminal: true}))
	snap, err := agent.Snapshot()
	require.NoError(t, err)

	// Mutate the live agent after the snapshot was taken.
	for i := 0; i < 10; i++ {
		require.NoError(t, agent.Update(rl.Transition{State: state, Action: 1, Reward: 5.0, Terminal: true}))
	}

	restored := NewTabularQ(space, tabularConfig())
	require.NoError(t, restored.Restore(snap))
	action, err := restored.SelectAction(state, 0)
	require.NoError(t, err)
	assert.Equal(t, rl.Action(0), action, "snapshot must reflect state at capture time")
}

func TestTabularQ_RestoreRejectsIncompatibleSnapshots(t *testing.T) {
	space := stubSpace{size: 2}
	agent := NewTabularQ(space, tabularConfig())
	state := rl.State{Key: "s1"}
	require.NoError(t, agent.Update(rl.Transition{State: state, Action: 1, Reward: 1.0, Terminal: true}))

	cases := []struct {
		name string
		snap *Snapshot
	}{
		{"nil", nil},
		{"wrong variant", &Snapshot{Variant: VariantDeepQ, ActionSize: 2, Params: []byte(`{}`)}},
		{"wrong action size", &Snapshot{Variant: VariantTabular, ActionSize: 5, Params: []byte(`{"q":{}}`)}},
		{"bad row length", &Snapshot{Variant: VariantTabular, ActionSize: 2, Params: []byte(`{"q":{"s":[1.0]}}`)}},
		{"malformed params", &Snapshot{Variant: VariantTabular, ActionSize: 2, Params: []byte(`not json`)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := agent.Restore(tc.snap)
			assert.ErrorIs(t, err, ErrIncompatibleModel)
			// Failed restore leaves the prior parameters intact.
			action, selErr := agent.SelectAction(state, 0)
			require.NoError(t, selErr)
			assert.Equal(t, rl.Action(1), action)
		})
	}
}

func TestPolicyFrom_TabularMatchesAgent(t *testing.T) {
	space := stubSpace{size: 3}
	agent := NewTabularQ(space, tabularConfig())
	state := rl.State{Key: "s1"}
	require.NoError(t, agent.Update(rl.Transition{State: state, Action: 1, Reward: 2.0, Terminal: true}))

	snap, err := agent.Snapshot()
	require.NoError(t, err)
	policy, err := PolicyFrom(snap, space)
	require.NoError(t, err)

	action, err := policy.SelectAction(state, 0)
	require.NoError(t, err)
	assert.Equal(t, rl.Action(1), action)
}

func TestPolicyFrom_RejectsMismatchedSpace(t *testing.T) {
	agent := NewTabularQ(stubSpace{size: 3}, tabularConfig())
	snap, err := agent.Snapshot()
	require.NoError(t, err)

	_, err = PolicyFrom(snap, stubSpace{size: 4})
	assert.ErrorIs(t, err, ErrIncompatibleModel)

	_, err = PolicyFrom(nil, stubSpace{size: 3})
	assert.ErrorIs(t, err, ErrIncompatibleModel)
}

func TestConfig_Validate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate(VariantTabular))
	require.NoError(t, cfg.Validate(VariantDeepQ))

	bad := cfg
	bad.Alpha = 0
	assert.ErrorIs(t, bad.Validate(VariantTabular), rl.ErrInvalidConfiguration)

	bad = cfg
	bad.Gamma = 1.0
	assert.ErrorIs(t, bad.Validate(VariantTabular), rl.ErrInvalidConfiguration)

	bad = cfg
	bad.BatchSize = bad.BufferCapacity + 1
	assert.ErrorIs(t, bad.Validate(VariantDeepQ), rl.ErrInvalidConfiguration)

	_, err := New("boltzmann", stubSpace{size: 2}, cfg)
	assert.ErrorIs(t, err, rl.ErrInvalidConfiguration)
}
