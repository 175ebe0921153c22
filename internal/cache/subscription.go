package cache

import "context"

// Subscription is one subscriber's attachment to a cache entry.
type Subscription struct {
	store    *Store
	entry    *entry
	listener func(Snapshot)
	released bool
}

// Key returns the key the subscription is attached to.
func (sub *Subscription) Key() Key {
	sub.store.mu.Lock()
	defer sub.store.mu.Unlock()
	return sub.entry.key
}

// Snapshot returns the current state of the entry.
func (sub *Subscription) Snapshot() Snapshot {
	sub.store.mu.Lock()
	defer sub.store.mu.Unlock()
	return sub.entry.snapshot()
}

// Wait blocks until the entry is no longer loading and returns its state.
func (sub *Subscription) Wait(ctx context.Context) (Snapshot, error) {
	for {
		sub.store.mu.Lock()
		if sub.released {
			sub.store.mu.Unlock()
			return Snapshot{}, ErrReleased
		}
		e := sub.entry
		if e.status != StatusLoading {
			snap := e.snapshot()
			sub.store.mu.Unlock()
			return snap, nil
		}
		done := e.done
		sub.store.mu.Unlock()

		select {
		case <-done:
		case <-ctx.Done():
			return Snapshot{}, ctx.Err()
		}
	}
}

// Subscribe registers fn to be called with the entry's state every time a
// fetch settles. It replaces any previous callback.
func (sub *Subscription) Subscribe(fn func(Snapshot)) {
	sub.store.mu.Lock()
	defer sub.store.mu.Unlock()
	if sub.released {
		return
	}
	sub.listener = fn
}

// Refetch starts a new fetch with the entry's stored fetcher unless one is
// already in flight. A subscription whose entry was evicted is moved to a
// fresh entry for the same key.
func (sub *Subscription) Refetch() {
	s := sub.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if sub.released {
		return
	}

	e := sub.entry
	if e.evicted {
		e = s.reattach(sub)
	}
	if e.status != StatusLoading {
		s.startFetch(e)
	}
}

// Release detaches the subscriber. The entry and any in-flight fetch are
// unaffected; the callback is no longer invoked. Release is idempotent.
func (sub *Subscription) Release() {
	sub.store.mu.Lock()
	defer sub.store.mu.Unlock()
	if sub.released {
		return
	}
	sub.released = true
	sub.listener = nil
	delete(sub.entry.subs, sub)
}

// reattach moves sub from its evicted entry to the live entry for the same
// key, carrying over the fetcher and tags. Must hold s.mu.
func (s *Store) reattach(sub *Subscription) *entry {
	old := sub.entry
	delete(old.subs, sub)

	e := s.lookup(old.key)
	if e.fetcher == nil {
		e.fetcher = old.fetcher
	}
	if len(e.tags) == 0 {
		tags := make([]Tag, 0, len(old.tags))
		for t := range old.tags {
			tags = append(tags, t)
		}
		s.retag(e, tags)
	}

	e.subs[sub] = struct{}{}
	sub.entry = e
	return e
}
