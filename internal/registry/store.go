package registry

import (
	"context"
	"sort"
	"sync"
)

// Store is the persistence boundary behind the registry. The registry is the
// in-memory authority; stores only need durability, not concurrency
// guarantees beyond their own locking.
type Store interface {
	SaveVersion(ctx context.Context, env *Envelope) error
	SetActive(ctx context.Context, agentID string, versionID int64) error
	DeleteVersion(ctx context.Context, agentID string, versionID int64) error
	// Load returns every stored envelope plus the active version per agent.
	Load(ctx context.Context) ([]*Envelope, map[string]int64, error)
	Close() error
}

// MemoryStore is an in-memory Store for development and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	versions map[string]map[int64][]byte // agentID -> versionID -> encoded envelope
	active   map[string]int64
}

// NewMemoryStore constructs a MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		versions: make(map[string]map[int64][]byte),
		active:   make(map[string]int64),
	}
}

// SaveVersion implements Store. Envelopes are stored encoded so the memory
// store exercises the same exchange format as durable backends.
func (m *MemoryStore) SaveVersion(_ context.Context, env *Envelope) error {
	data, err := Encode(env)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	agentVersions, ok := m.versions[env.AgentID]
	if !ok {
		agentVersions = make(map[int64][]byte)
		m.versions[env.AgentID] = agentVersions
	}
	agentVersions[env.VersionID] = data
	return nil
}

// SetActive implements Store.
func (m *MemoryStore) SetActive(_ context.Context, agentID string, versionID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active[agentID] = versionID
	return nil
}

// DeleteVersion implements Store.
func (m *MemoryStore) DeleteVersion(_ context.Context, agentID string, versionID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if agentVersions, ok := m.versions[agentID]; ok {
		delete(agentVersions, versionID)
	}
	return nil
}

// Load implements Store, returning envelopes ordered by agent then version.
func (m *MemoryStore) Load(_ context.Context) ([]*Envelope, map[string]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Envelope
	for _, agentVersions := range m.versions {
		for _, data := range agentVersions {
			env, err := Decode(data)
			if err != nil {
				return nil, nil, err
			}
			out = append(out, env)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AgentID != out[j].AgentID {
			return out[i].AgentID < out[j].AgentID
		}
		return out[i].VersionID < out[j].VersionID
	})

	active := make(map[string]int64, len(m.active))
	for agentID, versionID := range m.active {
		active[agentID] = versionID
	}
	return out, active, nil
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.versions = nil
	m.active = nil
	return nil
}
