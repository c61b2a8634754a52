// Package memory is an in-process leave.TxRepository for tests and demos.
package memory

import (
	"context"
	"maps"
	"slices"
	"sort"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/generic"
	genericstore "github.com/warp/leave-engine/generic/store"
	"github.com/warp/leave-engine/leave"
)

type userPoolKey struct {
	User leave.UserID
	Pool generic.PoolID
}

type state struct {
	users     map[leave.UserID]leave.User
	types     map[string]leave.VacationType
	pools     map[generic.PoolID]leave.Pool
	userPools map[userPoolKey]decimal.Decimal
	requests  map[leave.RequestID]leave.Request
	history   map[leave.RequestID][]leave.RequestHistory
}

func newState() state {
	return state{
		users:     make(map[leave.UserID]leave.User),
		types:     make(map[string]leave.VacationType),
		pools:     make(map[generic.PoolID]leave.Pool),
		userPools: make(map[userPoolKey]decimal.Decimal),
		requests:  make(map[leave.RequestID]leave.Request),
		history:   make(map[leave.RequestID][]leave.RequestHistory),
	}
}

func (s state) clone() state {
	c := state{
		users:     maps.Clone(s.users),
		types:     maps.Clone(s.types),
		pools:     maps.Clone(s.pools),
		userPools: maps.Clone(s.userPools),
		requests:  maps.Clone(s.requests),
		history:   make(map[leave.RequestID][]leave.RequestHistory, len(s.history)),
	}
	for k, v := range s.history {
		c.history[k] = slices.Clone(v)
	}
	return c
}

// Repository keeps everything in maps. Transactions are serialized by a
// single mutex, which also stands in for pool row locks.
type Repository struct {
	*genericstore.Memory

	mu   sync.RWMutex
	data state

	txMu sync.Mutex
}

func New() *Repository {
	return &Repository{Memory: genericstore.NewMemory(), data: newState()}
}

var _ leave.TxRepository = (*Repository)(nil)

// WithTx runs fn under the transaction lock and restores both the entry
// log and the domain maps if fn fails.
func (r *Repository) WithTx(ctx context.Context, fn func(leave.Repository) error) error {
	r.txMu.Lock()
	defer r.txMu.Unlock()

	entries := r.Memory.Snapshot()
	r.mu.RLock()
	data := r.data.clone()
	r.mu.RUnlock()

	if err := fn(r); err != nil {
		r.Memory.Restore(entries)
		r.mu.Lock()
		r.data = data
		r.mu.Unlock()
		return err
	}
	return nil
}

// =============================================================================
// LEDGER ENTRIES
// =============================================================================

func (r *Repository) Append(ctx context.Context, e generic.Entry) error {
	return r.AppendBatch(ctx, []generic.Entry{e})
}

// AppendBatch writes the entries and moves the cached pool amounts.
func (r *Repository) AppendBatch(ctx context.Context, entries []generic.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range entries {
		k := userPoolKey{leave.UserID(e.EntityID), e.PoolID}
		if _, ok := r.data.userPools[k]; !ok {
			return generic.Integrityf("pool %s is not assigned to %s", e.PoolID, e.EntityID)
		}
	}
	if err := r.Memory.AppendBatch(ctx, entries); err != nil {
		return err
	}
	for _, e := range entries {
		k := userPoolKey{leave.UserID(e.EntityID), e.PoolID}
		r.data.userPools[k] = r.data.userPools[k].Add(e.Delta.Value)
	}
	return nil
}

// =============================================================================
// USERS AND TYPES
// =============================================================================

func (r *Repository) GetUser(_ context.Context, id leave.UserID) (leave.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.data.users[id]
	if !ok {
		return leave.User{}, leave.ErrUserNotFound
	}
	return u, nil
}

func (r *Repository) ListUsers(_ context.Context) ([]leave.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := slices.Collect(maps.Values(r.data.users))
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *Repository) SaveUser(_ context.Context, u leave.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data.users[u.ID] = u
	return nil
}

func (r *Repository) GetVacationType(_ context.Context, name string) (leave.VacationType, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	vt, ok := r.data.types[name]
	if !ok {
		return leave.VacationType{}, leave.ErrVacationTypeNotFound
	}
	return vt, nil
}

func (r *Repository) ListVacationTypes(_ context.Context) ([]leave.VacationType, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := slices.Collect(maps.Values(r.data.types))
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *Repository) SaveVacationType(_ context.Context, vt leave.VacationType) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data.types[vt.Name] = vt
	return nil
}

// =============================================================================
// POOLS
// =============================================================================

func (r *Repository) SavePool(_ context.Context, p leave.Pool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data.pools[p.ID] = p
	return nil
}

func (r *Repository) AssignPool(_ context.Context, user leave.UserID, pool generic.PoolID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.data.pools[pool]; !ok {
		return leave.ErrPoolNotFound
	}
	k := userPoolKey{user, pool}
	if _, ok := r.data.userPools[k]; !ok {
		r.data.userPools[k] = decimal.Zero
	}
	return nil
}

func (r *Repository) UserPools(_ context.Context, user leave.UserID) ([]leave.UserPool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []leave.UserPool
	for k, amount := range r.data.userPools {
		if k.User != user {
			continue
		}
		out = append(out, leave.UserPool{UserID: user, Pool: r.data.pools[k.Pool], Amount: amount})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Pool, out[j].Pool
		if !a.Window.Start.Equal(b.Window.Start) {
			return a.Window.Start.Before(b.Window.Start)
		}
		return a.ID < b.ID
	})
	return out, nil
}

// LockUserPools relies on WithTx holding the transaction lock.
func (r *Repository) LockUserPools(ctx context.Context, user leave.UserID) ([]leave.UserPool, error) {
	return r.UserPools(ctx, user)
}

// =============================================================================
// REQUESTS
// =============================================================================

func (r *Repository) GetRequest(_ context.Context, id leave.RequestID) (leave.Request, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	req, ok := r.data.requests[id]
	if !ok {
		return leave.Request{}, leave.ErrRequestNotFound
	}
	return req, nil
}

func (r *Repository) SaveRequest(_ context.Context, req leave.Request) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	req.PoolStatus = maps.Clone(req.PoolStatus)
	r.data.requests[req.ID] = req
	return nil
}

func (r *Repository) ListRequests(_ context.Context, f leave.RequestFilter) ([]leave.Request, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []leave.Request
	for _, req := range r.data.requests {
		if f.Matches(req) {
			out = append(out, req)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].DateFrom.Equal(out[j].DateFrom) {
			return out[i].DateFrom.Before(out[j].DateFrom)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *Repository) AppendHistory(_ context.Context, h leave.RequestHistory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data.history[h.RequestID] = append(r.data.history[h.RequestID], h)
	return nil
}

func (r *Repository) ListHistory(_ context.Context, id leave.RequestID) ([]leave.RequestHistory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.data.history[id]), nil
}
