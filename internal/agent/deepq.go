package agent

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/Zakhele-TechWannabe/AmongEqualsRLServer/internal/replay"
	"github.com/Zakhele-TechWannabe/AmongEqualsRLServer/internal/rl"
)

// DeepQ is the function-approximation agent: an online MLP, a periodically
// hard-synced target network, and a bounded experience buffer. Updates append
// to the buffer and, once the batch threshold is reached, take one gradient
// step toward r + gamma * max_a' Q_target(s',a').
type DeepQ struct {
	space rl.ActionSpace
	cfg   Config

	mu     sync.RWMutex
	online *network
	target *network
	steps  uint64

	buffer  *replay.Buffer
	sampler *sampler
}

// NewDeepQ creates a deep-Q agent with freshly initialized networks.
func NewDeepQ(space rl.ActionSpace, cfg Config) *DeepQ {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))
	online := newNetwork(cfg.InputSize, cfg.HiddenSize, space.Size(), rng)
	buffer := replay.New(cfg.BufferCapacity)
	if cfg.Seed != 0 {
		buffer.Seed(cfg.Seed)
	}
	return &DeepQ{
		space:   space,
		cfg:     cfg,
		online:  online,
		target:  online.clone(),
		buffer:  buffer,
		sampler: newSampler(cfg.Seed),
	}
}

// Variant implements Agent.
func (d *DeepQ) Variant() Variant { return VariantDeepQ }

// TrainSteps implements Agent.
func (d *DeepQ) TrainSteps() uint64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.steps
}

// BufferStats exposes experience buffer occupancy for monitoring.
func (d *DeepQ) BufferStats() replay.Stats {
	return d.buffer.GetStats()
}

// SelectAction implements Agent.
func (d *DeepQ) SelectAction(s rl.State, explorationRate float64) (rl.Action, error) {
	d.mu.RLock()
	values, err := d.online.qValues(s.Features)
	d.mu.RUnlock()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", rl.ErrInvalidConfiguration, err)
	}
	return selectWith(d.sampler, d.space, s, explorationRate, func(a rl.Action) float64 {
		return values[a]
	})
}

// Update implements Agent. Every call appends the transition; a gradient
// step only happens once the buffer has reached the batch threshold. The
// target network is hard-synced every TargetSyncEvery update calls.
func (d *DeepQ) Update(tr rl.Transition) error {
	if tr.Action < 0 || int(tr.Action) >= d.space.Size() {
		return fmt.Errorf("%w: action %d outside space of %d", rl.ErrInvalidAction, tr.Action, d.space.Size())
	}
	if _, err := rl.CheckFinite(tr.Reward); err != nil {
		return err
	}
	if len(tr.State.Features) != d.cfg.InputSize {
		return fmt.Errorf("%w: state features %d, network input %d",
			rl.ErrInvalidConfiguration, len(tr.State.Features), d.cfg.InputSize)
	}
	// Non-terminal transitions bootstrap from the next state, so its features
	// must fit the network too; a bad one would fail every batch it lands in.
	if !tr.Terminal && len(tr.NextState.Features) != d.cfg.InputSize {
		return fmt.Errorf("%w: next state features %d, network input %d",
			rl.ErrInvalidConfiguration, len(tr.NextState.Features), d.cfg.InputSize)
	}

	d.buffer.Append(tr)

	d.mu.Lock()
	defer d.mu.Unlock()
	d.steps++

	if d.buffer.Len() >= d.cfg.BatchSize {
		batch, err := d.buffer.Sample(d.cfg.BatchSize)
		if err != nil {
			return err
		}
		samples := make([]gradSample, 0, len(batch))
		for _, b := range batch {
			target := b.Reward
			if !b.Terminal {
				max, err := d.maxTargetLocked(b.NextState)
				if err != nil {
					return err
				}
				target += d.cfg.Gamma * max
			}
			samples = append(samples, gradSample{
				features: b.State.Features,
				action:   int(b.Action),
				target:   target,
			})
		}
		d.online.step(samples, d.cfg.LearningRate)
	}

	if d.steps%uint64(d.cfg.TargetSyncEvery) == 0 {
		d.target = d.online.clone()
	}
	return nil
}

// maxTargetLocked evaluates max_a' Q_target(s',a') over legal actions.
func (d *DeepQ) maxTargetLocked(next rl.State) (float64, error) {
	legal := d.space.LegalActions(next)
	if len(legal) == 0 {
		return 0, nil
	}
	values, err := d.target.qValues(next.Features)
	if err != nil {
		return 0, err
	}
	best := values[legal[0]]
	for _, a := range legal[1:] {
		if values[a] > best {
			best = values[a]
		}
	}
	return best, nil
}

// Snapshot implements Agent. Only the online network is captured; the target
// network is re-derived on restore and the experience buffer is ephemeral.
func (d *DeepQ) Snapshot() (*Snapshot, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	raw, err := json.Marshal(d.online.params())
	if err != nil {
		return nil, fmt.Errorf("marshal deepq params: %w", err)
	}
	return &Snapshot{
		Variant:    VariantDeepQ,
		ActionSize: d.space.Size(),
		TrainSteps: d.steps,
		Params:     raw,
	}, nil
}

// Restore implements Agent. The replacement networks are fully built and
// validated before the swap; the target network becomes a copy of the
// restored online network.
func (d *DeepQ) Restore(snap *Snapshot) error {
	net, steps, err := decodeDeepQ(snap, d.space.Size())
	if err != nil {
		return err
	}
	if net.in != d.cfg.InputSize {
		return fmt.Errorf("%w: snapshot input size %d, agent expects %d",
			ErrIncompatibleModel, net.in, d.cfg.InputSize)
	}
	d.mu.Lock()
	d.online = net
	d.target = net.clone()
	d.steps = steps
	d.mu.Unlock()
	return nil
}

func decodeDeepQ(snap *Snapshot, actionSize int) (*network, uint64, error) {
	if snap == nil {
		return nil, 0, fmt.Errorf("%w: nil snapshot", ErrIncompatibleModel)
	}
	if snap.Variant != VariantDeepQ {
		return nil, 0, fmt.Errorf("%w: variant %q, want %q", ErrIncompatibleModel, snap.Variant, VariantDeepQ)
	}
	if snap.ActionSize != actionSize {
		return nil, 0, fmt.Errorf("%w: action size %d, want %d", ErrIncompatibleModel, snap.ActionSize, actionSize)
	}
	var params deepqParams
	if err := json.Unmarshal(snap.Params, &params); err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrIncompatibleModel, err)
	}
	if params.Out != actionSize {
		return nil, 0, fmt.Errorf("%w: network output %d, want %d", ErrIncompatibleModel, params.Out, actionSize)
	}
	net, err := networkFromParams(params)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrIncompatibleModel, err)
	}
	return net, snap.TrainSteps, nil
}

// deepqPolicy is the immutable serving view of a deep-Q snapshot.
type deepqPolicy struct {
	space   rl.ActionSpace
	net     *network
	sampler *sampler
}

func newDeepQPolicy(snap *Snapshot, space rl.ActionSpace) (Policy, error) {
	net, _, err := decodeDeepQ(snap, space.Size())
	if err != nil {
		return nil, err
	}
	return &deepqPolicy{space: space, net: net, sampler: newSampler(0)}, nil
}

// SelectAction implements Policy.
func (p *deepqPolicy) SelectAction(s rl.State, explorationRate float64) (rl.Action, error) {
	values, err := p.net.qValues(s.Features)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", rl.ErrInvalidConfiguration, err)
	}
	return selectWith(p.sampler, p.space, s, explorationRate, func(a rl.Action) float64 {
		return values[a]
	})
}
