package agent

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/Zakhele-TechWannabe/AmongEqualsRLServer/internal/rl"
)

// tabularParams is the serialized form of a Q-table.
type tabularParams struct {
	Q map[string][]float64 `json:"q"`
}

// TabularQ is the tabular Q-learning agent. Q-values live in a map from
// state key to a value row indexed by action. Missing rows read as zero.
type TabularQ struct {
	space rl.ActionSpace
	alpha float64
	gamma float64

	mu    sync.RWMutex
	q     map[string][]float64
	steps uint64

	sampler *sampler
}

// NewTabularQ creates a tabular agent with an empty value table.
func NewTabularQ(space rl.ActionSpace, cfg Config) *TabularQ {
	return &TabularQ{
		space:   space,
		alpha:   cfg.Alpha,
		gamma:   cfg.Gamma,
		q:       make(map[string][]float64),
		sampler: newSampler(cfg.Seed),
	}
}

// Variant implements Agent.
func (t *TabularQ) Variant() Variant { return VariantTabular }

// TrainSteps implements Agent.
func (t *TabularQ) TrainSteps() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.steps
}

// SelectAction implements Agent.
func (t *TabularQ) SelectAction(s rl.State, explorationRate float64) (rl.Action, error) {
	return selectWith(t.sampler, t.space, s, explorationRate, func(a rl.Action) float64 {
		return t.value(s.Key, a)
	})
}

func (t *TabularQ) value(key string, a rl.Action) float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	row, ok := t.q[key]
	if !ok || int(a) >= len(row) {
		return 0
	}
	return row[a]
}

// Update implements Agent using the Q-learning rule:
//
//	Q[s,a] += alpha * (r + gamma * max_a' Q[s',a'] - Q[s,a])
//
// with the max taken over the legal actions of the next state, or zero for
// terminal transitions.
func (t *TabularQ) Update(tr rl.Transition) error {
	if tr.Action < 0 || int(tr.Action) >= t.space.Size() {
		return fmt.Errorf("%w: action %d outside space of %d", rl.ErrInvalidAction, tr.Action, t.space.Size())
	}
	reward, err := rl.CheckFinite(tr.Reward)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	target := reward
	if !tr.Terminal {
		target += t.gamma * t.maxNextLocked(tr.NextState)
	}
	row := t.rowLocked(tr.State.Key)
	row[tr.Action] += t.alpha * (target - row[tr.Action])
	t.steps++
	return nil
}

// maxNextLocked computes max_a' Q[s',a'] over the legal actions of s'.
func (t *TabularQ) maxNextLocked(next rl.State) float64 {
	legal := t.space.LegalActions(next)
	if len(legal) == 0 {
		return 0
	}
	row := t.q[next.Key]
	best := 0.0
	for i, a := range legal {
		v := 0.0
		if int(a) < len(row) {
			v = row[a]
		}
		if i == 0 || v > best {
			best = v
		}
	}
	return best
}

func (t *TabularQ) rowLocked(key string) []float64 {
	row, ok := t.q[key]
	if !ok {
		row = make([]float64, t.space.Size())
		t.q[key] = row
	}
	return row
}

// Snapshot implements Agent. The returned snapshot shares no memory with
// the live table.
func (t *TabularQ) Snapshot() (*Snapshot, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	params := tabularParams{Q: make(map[string][]float64, len(t.q))}
	for key, row := range t.q {
		cp := make([]float64, len(row))
		copy(cp, row)
		params.Q[key] = cp
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal tabular params: %w", err)
	}
	return &Snapshot{
		Variant:    VariantTabular,
		ActionSize: t.space.Size(),
		TrainSteps: t.steps,
		Params:     raw,
	}, nil
}

// Restore implements Agent. The replacement table is fully decoded and
// validated before the swap, so a failure leaves the agent unchanged.
func (t *TabularQ) Restore(snap *Snapshot) error {
	table, steps, err := decodeTabular(snap, t.space.Size())
	if err != nil {
		return err
	}
	t.mu.Lock()
	t.q = table
	t.steps = steps
	t.mu.Unlock()
	return nil
}

func decodeTabular(snap *Snapshot, actionSize int) (map[string][]float64, uint64, error) {
	if snap == nil {
		return nil, 0, fmt.Errorf("%w: nil snapshot", ErrIncompatibleModel)
	}
	if snap.Variant != VariantTabular {
		return nil, 0, fmt.Errorf("%w: variant %q, want %q", ErrIncompatibleModel, snap.Variant, VariantTabular)
	}
	if snap.ActionSize != actionSize {
		return nil, 0, fmt.Errorf("%w: action size %d, want %d", ErrIncompatibleModel, snap.ActionSize, actionSize)
	}
	var params tabularParams
	if err := json.Unmarshal(snap.Params, &params); err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrIncompatibleModel, err)
	}
	table := make(map[string][]float64, len(params.Q))
	for key, row := range params.Q {
		if len(row) != actionSize {
			return nil, 0, fmt.Errorf("%w: row for %q has %d entries, want %d",
				ErrIncompatibleModel, key, len(row), actionSize)
		}
		cp := make([]float64, len(row))
		copy(cp, row)
		table[key] = cp
	}
	return table, snap.TrainSteps, nil
}

// tabularPolicy is the immutable serving view of a tabular snapshot.
type tabularPolicy struct {
	space   rl.ActionSpace
	q       map[string][]float64
	sampler *sampler
}

func newTabularPolicy(snap *Snapshot, space rl.ActionSpace) (Policy, error) {
	table, _, err := decodeTabular(snap, space.Size())
	if err != nil {
		return nil, err
	}
	return &tabularPolicy{space: space, q: table, sampler: newSampler(0)}, nil
}

// SelectAction implements Policy.
func (p *tabularPolicy) SelectAction(s rl.State, explorationRate float64) (rl.Action, error) {
	return selectWith(p.sampler, p.space, s, explorationRate, func(a rl.Action) float64 {
		row, ok := p.q[s.Key]
		if !ok || int(a) >= len(row) {
			return 0
		}
		return row[a]
	})
}
