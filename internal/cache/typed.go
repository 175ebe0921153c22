package cache

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// State is the typed view of a Snapshot.
type State[T any] struct {
	Status        Status
	Data          T
	HasData       bool
	Err           error
	LastFetchedAt time.Time
}

func stateOf[T any](snap Snapshot) State[T] {
	st := State[T]{
		Status:        snap.Status,
		Err:           snap.Err,
		LastFetchedAt: snap.LastFetchedAt,
	}
	if v, ok := snap.Data.(T); ok {
		st.Data = v
		st.HasData = true
	}
	return st
}

// Handle is a typed query subscription.
type Handle[T any] struct {
	sub *Subscription
}

// Watch queries key with a typed fetcher.
func Watch[T any](s *Store, key Key, tags []Tag, fetch func(ctx context.Context) (T, error)) *Handle[T] {
	return &Handle[T]{sub: s.Query(key, tags, func(ctx context.Context) (any, error) {
		v, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		return v, nil
	})}
}

// Subscription returns the untyped subscription behind h.
func (h *Handle[T]) Subscription() *Subscription {
	return h.sub
}

// State returns the typed state of the entry.
func (h *Handle[T]) State() State[T] {
	return stateOf[T](h.sub.Snapshot())
}

// Status returns the entry status.
func (h *Handle[T]) Status() Status {
	return h.sub.Snapshot().Status
}

// Data returns the last successfully fetched value. Data survives a later
// failed fetch.
func (h *Handle[T]) Data() (T, bool) {
	st := h.State()
	return st.Data, st.HasData
}

// Err returns the error of the last fetch, if it failed.
func (h *Handle[T]) Err() error {
	return h.sub.Snapshot().Err
}

// Wait blocks until the entry settles and returns its data or error.
func (h *Handle[T]) Wait(ctx context.Context) (T, error) {
	var zero T

	snap, err := h.sub.Wait(ctx)
	if err != nil {
		return zero, err
	}

	switch snap.Status {
	case StatusError:
		return zero, snap.Err
	case StatusIdle:
		return zero, ErrEvicted
	}

	v, ok := snap.Data.(T)
	if !ok {
		return zero, fmt.Errorf("entry %s holds %T, not %T", snap.Key, snap.Data, zero)
	}
	return v, nil
}

// Subscribe registers fn to be called with the typed state on every settle.
func (h *Handle[T]) Subscribe(fn func(State[T])) {
	h.sub.Subscribe(func(snap Snapshot) {
		fn(stateOf[T](snap))
	})
}

// Refetch forces a new fetch unless one is in flight.
func (h *Handle[T]) Refetch() {
	h.sub.Refetch()
}

// Release detaches the handle.
func (h *Handle[T]) Release() {
	h.sub.Release()
}

// Mutation is a reusable write operation whose success invalidates tags
// computed from its argument and result.
type Mutation[A, R any] struct {
	store *Store
	fn    func(ctx context.Context, arg A) (R, error)
	tags  func(arg A, result R) []Tag

	mu     sync.Mutex
	status Status
	err    error
}

// NewMutation creates a mutation bound to s.
func NewMutation[A, R any](s *Store, fn func(ctx context.Context, arg A) (R, error), tags func(arg A, result R) []Tag) *Mutation[A, R] {
	return &Mutation[A, R]{store: s, fn: fn, tags: tags, status: StatusIdle}
}

// Tags returns a tag function that always yields tags.
func Tags[A, R any](tags ...Tag) func(A, R) []Tag {
	return func(A, R) []Tag { return tags }
}

// Execute runs the mutation. On failure no tags are invalidated and the error
// is returned unchanged.
func (m *Mutation[A, R]) Execute(ctx context.Context, arg A) (R, error) {
	m.set(StatusLoading, nil)

	var result R
	_, err := m.store.mutate(ctx, func(ctx context.Context) (any, error) {
		r, err := m.fn(ctx, arg)
		if err != nil {
			return nil, err
		}
		result = r
		return r, nil
	}, func(any) []Tag {
		if m.tags == nil {
			return nil
		}
		return m.tags(arg, result)
	})
	if err != nil {
		m.set(StatusError, err)
		var zero R
		return zero, err
	}

	m.set(StatusSuccess, nil)
	return result, nil
}

// Status returns the state of the most recent execution.
func (m *Mutation[A, R]) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Err returns the error of the most recent execution.
func (m *Mutation[A, R]) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

func (m *Mutation[A, R]) set(status Status, err error) {
	m.mu.Lock()
	m.status = status
	m.err = err
	m.mu.Unlock()
}
