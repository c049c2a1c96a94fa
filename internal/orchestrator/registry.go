package orchestrator

import (
	"errors"
	"sort"
	"sync"
	"time"
)

// ErrUnknownInstance is returned for an index outside the configured set.
var ErrUnknownInstance = errors.New("unknown instance")

// Registry is a concurrency-safe record of every instance's runtime status.
// Supervisors and controllers write to it; the HTTP front-end reads it.
type Registry struct {
	mu    sync.RWMutex
	store Store
	now   func() time.Time
}

// NewRegistry seeds a registry with one pending, disconnected status per
// instance, backed by an in-memory store.
func NewRegistry(instances []Instance) *Registry {
	return NewRegistryWithStore(NewInMemoryStore(), instances)
}

// NewRegistryWithStore is NewRegistry with an explicit Store.
func NewRegistryWithStore(store Store, instances []Instance) *Registry {
	r := &Registry{store: store, now: time.Now}
	for _, in := range instances {
		store.Put(InstanceStatus{
			Index:     in.Index,
			Addr:      in.Addr(),
			Master:    in.IsMaster(),
			Process:   ProcessPending,
			Conn:      ConnDisconnected,
			UpdatedAt: r.now().UTC(),
		})
	}
	return r
}

// SetProcess records a process state change. pid is kept when zero.
func (r *Registry) SetProcess(index int, state ProcessState, pid int, err error) error {
	return r.update(index, func(st *InstanceStatus) {
		st.Process = state
		if pid != 0 {
			st.PID = pid
		}
		if err != nil {
			st.LastError = err.Error()
		}
	})
}

// SetConn records an RC connection state change.
func (r *Registry) SetConn(index int, state ConnState, err error) error {
	return r.update(index, func(st *InstanceStatus) {
		st.Conn = state
		if err != nil {
			st.LastError = err.Error()
		}
	})
}

// RecordSent counts a command delivered to the player.
func (r *Registry) RecordSent(index int) error {
	return r.update(index, func(st *InstanceStatus) {
		st.CommandsSent++
	})
}

// RecordSync stores the latest master timestamp published by index.
func (r *Registry) RecordSync(index int, ts int) error {
	return r.update(index, func(st *InstanceStatus) {
		st.LastSync = &ts
	})
}

// Get returns one instance status.
func (r *Registry) Get(index int) (InstanceStatus, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, ok := r.store.Get(index)
	if ok {
		st = copyStatus(st)
	}
	return st, ok
}

// Snapshot returns every status ordered by index.
func (r *Registry) Snapshot() []InstanceStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := r.store.Indexes()
	sort.Ints(ids)

	out := make([]InstanceStatus, 0, len(ids))
	for _, id := range ids {
		if st, ok := r.store.Get(id); ok {
			out = append(out, copyStatus(st))
		}
	}
	return out
}

// Len returns the number of registered instances.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.store.Indexes())
}

func (r *Registry) update(index int, fn func(*InstanceStatus)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.store.Get(index)
	if !ok {
		return ErrUnknownInstance
	}
	fn(&st)
	st.UpdatedAt = r.now().UTC()
	r.store.Put(st)
	return nil
}

// copyStatus detaches the LastSync pointer from the stored value.
func copyStatus(st InstanceStatus) InstanceStatus {
	if st.LastSync != nil {
		ts := *st.LastSync
		st.LastSync = &ts
	}
	return st
}
