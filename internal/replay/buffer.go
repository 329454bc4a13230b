// Package replay provides the bounded experience buffer backing
// function-approximation agents and the offline trainer.
package replay

import (
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/Zakhele-TechWannabe/AmongEqualsRLServer/internal/rl"
)

// ErrEmpty indicates there are no transitions available for sampling.
var ErrEmpty = errors.New("replay buffer empty")

// Stats summarizes buffer contents.
type Stats struct {
	Size     int
	Capacity int
	Appended uint64
	Evicted  uint64
}

// Buffer is a fixed-capacity ring of transitions. When full, appending
// evicts the oldest entry.
type Buffer struct {
	mu       sync.RWMutex
	entries  []rl.Transition
	head     int
	size     int
	appended uint64
	rng      *rand.Rand
}

// New creates a buffer with the given capacity. Capacity must be positive.
func New(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = 1
	}
	return &Buffer{
		entries: make([]rl.Transition, capacity),
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Seed fixes the sampling source for reproducible tests.
func (b *Buffer) Seed(seed int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rng = rand.New(rand.NewSource(seed))
}

// Append stores a transition, evicting the oldest when at capacity.
func (b *Buffer) Append(t rl.Transition) {
	b.mu.Lock()
	defer b.mu.Unlock()

	idx := (b.head + b.size) % len(b.entries)
	if b.size == len(b.entries) {
		// Overwrite the oldest entry.
		idx = b.head
		b.head = (b.head + 1) % len(b.entries)
	} else {
		b.size++
	}
	b.entries[idx] = t
	b.appended++
}

// Len returns the number of stored transitions.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}

// Sample draws n transitions uniformly at random with replacement. It fails
// with ErrEmpty when the buffer holds nothing.
func (b *Buffer) Sample(n int) ([]rl.Transition, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.size == 0 {
		return nil, ErrEmpty
	}
	if n > b.size {
		n = b.size
	}
	out := make([]rl.Transition, n)
	for i := 0; i < n; i++ {
		out[i] = b.entries[(b.head+b.rng.Intn(b.size))%len(b.entries)]
	}
	return out, nil
}

// GetStats reports buffer occupancy and churn.
func (b *Buffer) GetStats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()
	evicted := b.appended - uint64(b.size)
	return Stats{
		Size:     b.size,
		Capacity: len(b.entries),
		Appended: b.appended,
		Evicted:  evicted,
	}
}
