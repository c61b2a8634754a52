// Package store provides in-memory ledger storage.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/leave-engine/generic"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu          sync.RWMutex
	entries     map[key][]generic.Entry
	byReference map[string][]generic.Entry
	idempotency map[string]bool
	seq         int64
}

type key struct {
	EntityID generic.EntityID
	PoolID   generic.PoolID
}

func NewMemory() *Memory {
	return &Memory{
		entries:     make(map[key][]generic.Entry),
		byReference: make(map[string][]generic.Entry),
		idempotency: make(map[string]bool),
	}
}

// Append adds a single entry. Append-only.
func (m *Memory) Append(_ context.Context, e generic.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e.IdempotencyKey != "" && m.idempotency[e.IdempotencyKey] {
		return generic.ErrDuplicateIdempotencyKey
	}
	m.appendLocked(e)
	return nil
}

// AppendBatch adds multiple entries atomically.
func (m *Memory) AppendBatch(_ context.Context, entries []generic.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	seen := make(map[string]bool, len(entries))
	for _, e := range entries {
		if e.IdempotencyKey == "" {
			continue
		}
		if m.idempotency[e.IdempotencyKey] || seen[e.IdempotencyKey] {
			return generic.ErrDuplicateIdempotencyKey
		}
		seen[e.IdempotencyKey] = true
	}

	for _, e := range entries {
		m.appendLocked(e)
	}
	return nil
}

func (m *Memory) appendLocked(e generic.Entry) {
	m.seq++
	e.Seq = m.seq

	k := key{EntityID: e.EntityID, PoolID: e.PoolID}
	entries := m.entries[k]

	// Seq only grows, so the slot is after every entry on or before this day.
	i := sort.Search(len(entries), func(i int) bool {
		return entries[i].EffectiveAt.After(e.EffectiveAt)
	})

	entries = append(entries, generic.Entry{})
	copy(entries[i+1:], entries[i:])
	entries[i] = e
	m.entries[k] = entries

	if e.ReferenceID != "" {
		m.byReference[e.ReferenceID] = append(m.byReference[e.ReferenceID], e)
	}
	if e.IdempotencyKey != "" {
		m.idempotency[e.IdempotencyKey] = true
	}
}

func (m *Memory) Load(_ context.Context, entityID generic.EntityID, poolID generic.PoolID) ([]generic.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	k := key{EntityID: entityID, PoolID: poolID}
	result := make([]generic.Entry, len(m.entries[k]))
	copy(result, m.entries[k])
	return result, nil
}

func (m *Memory) LoadRange(_ context.Context, entityID generic.EntityID, poolID generic.PoolID, from, to generic.TimePoint) ([]generic.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	k := key{EntityID: entityID, PoolID: poolID}
	var result []generic.Entry
	for _, e := range m.entries[k] {
		if from.BeforeOrEqual(e.EffectiveAt) && e.EffectiveAt.BeforeOrEqual(to) {
			result = append(result, e)
		}
	}
	return result, nil
}

func (m *Memory) LoadByReference(_ context.Context, referenceID string) ([]generic.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]generic.Entry, len(m.byReference[referenceID]))
	copy(result, m.byReference[referenceID])
	return result, nil
}

func (m *Memory) Exists(_ context.Context, idempotencyKey string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.idempotency[idempotencyKey], nil
}

// =============================================================================
// SNAPSHOTS - Rollback support for transactional wrappers
// =============================================================================

// Snapshot is a deep copy of the store state.
type Snapshot struct {
	entries     map[key][]generic.Entry
	byReference map[string][]generic.Entry
	idempotency map[string]bool
	seq         int64
}

// Snapshot captures the current state so a failed unit of work can be undone.
func (m *Memory) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := Snapshot{
		entries:     make(map[key][]generic.Entry, len(m.entries)),
		byReference: make(map[string][]generic.Entry, len(m.byReference)),
		idempotency: make(map[string]bool, len(m.idempotency)),
		seq:         m.seq,
	}
	for k, v := range m.entries {
		s.entries[k] = append([]generic.Entry{}, v...)
	}
	for k, v := range m.byReference {
		s.byReference[k] = append([]generic.Entry{}, v...)
	}
	for k, v := range m.idempotency {
		s.idempotency[k] = v
	}
	return s
}

// Restore puts back a state captured by Snapshot.
func (m *Memory) Restore(s Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = s.entries
	m.byReference = s.byReference
	m.idempotency = s.idempotency
	m.seq = s.seq
}
