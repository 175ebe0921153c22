package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeFetcher counts calls and optionally blocks until gate is closed.
type fakeFetcher struct {
	calls atomic.Int32
	gate  chan struct{}
	value any
	err   error
}

func (f *fakeFetcher) fetch(ctx context.Context) (any, error) {
	f.calls.Add(1)
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.value, f.err
}

func newStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	s := New(opts...)
	t.Cleanup(s.Close)
	return s
}

func waitSettled(t *testing.T, subs ...*Subscription) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, sub := range subs {
		_, err := sub.Wait(ctx)
		require.NoError(t, err)
	}
}

func TestNewKey(t *testing.T) {
	t.Run("uses strings verbatim", func(t *testing.T) {
		assert.Equal(t, Key{Operation: "getDataset", Arg: "noaa-1"}, NewKey("getDataset", "noaa-1"))
	})

	t.Run("serializes structured arguments", func(t *testing.T) {
		arg := struct {
			ServerID string `json:"serverId"`
			Path     string `json:"path"`
		}{ServerID: "s1", Path: "ocean"}

		assert.Equal(t, `{"serverId":"s1","path":"ocean"}`, NewKey("getCatalog", arg).Arg)
		assert.Equal(t, NewKey("getCatalog", arg), NewKey("getCatalog", arg))
	})

	t.Run("nil argument has empty arg", func(t *testing.T) {
		k := NewKey("getDatasets", nil)
		assert.Empty(t, k.Arg)
		assert.Equal(t, "getDatasets", k.String())
	})

	t.Run("string form includes argument", func(t *testing.T) {
		assert.Equal(t, "getJob(42)", NewKey("getJob", "42").String())
	})
}

func TestScoped(t *testing.T) {
	assert.Equal(t, Tag("Catalog:s1"), Scoped("Catalog", "s1"))
}

func TestStore_Query(t *testing.T) {
	ctx := context.Background()

	t.Run("deduplicates concurrent queries for the same key", func(t *testing.T) {
		store := newStore(t)
		f := &fakeFetcher{gate: make(chan struct{}), value: "ok"}
		key := NewKey("getDatasets", nil)

		subs := make([]*Subscription, 25)
		var wg sync.WaitGroup
		for i := range subs {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				subs[i] = store.Query(key, []Tag{"Datasets"}, f.fetch)
			}(i)
		}
		wg.Wait()
		close(f.gate)

		for _, sub := range subs {
			snap, err := sub.Wait(ctx)
			require.NoError(t, err)
			assert.Equal(t, StatusSuccess, snap.Status)
			assert.Equal(t, "ok", snap.Data)
		}
		assert.Equal(t, int32(1), f.calls.Load())

		snap, ok := store.Peek(key)
		require.True(t, ok)
		assert.Equal(t, 25, snap.Subscribers)
	})

	t.Run("returns immediately in loading state", func(t *testing.T) {
		store := newStore(t)
		f := &fakeFetcher{gate: make(chan struct{}), value: "ok"}

		sub := store.Query(NewKey("slow", nil), nil, f.fetch)
		assert.Equal(t, StatusLoading, sub.Snapshot().Status)

		close(f.gate)
		waitSettled(t, sub)
		assert.Equal(t, StatusSuccess, sub.Snapshot().Status)
	})

	t.Run("serves fresh data without fetching again", func(t *testing.T) {
		store := newStore(t)
		f := &fakeFetcher{value: []string{"a", "b"}}
		key := NewKey("list", nil)

		first := store.Query(key, nil, f.fetch)
		waitSettled(t, first)
		first.Release()

		second := store.Query(key, nil, f.fetch)
		defer second.Release()

		assert.Equal(t, StatusSuccess, second.Snapshot().Status)
		assert.Equal(t, []string{"a", "b"}, second.Snapshot().Data)
		assert.Equal(t, int32(1), f.calls.Load())
	})

	t.Run("records fetch errors without affecting other entries", func(t *testing.T) {
		store := newStore(t)
		good := &fakeFetcher{value: "fine"}
		bad := &fakeFetcher{err: errors.New("boom")}

		a := store.Query(NewKey("good", nil), nil, good.fetch)
		b := store.Query(NewKey("bad", nil), nil, bad.fetch)
		waitSettled(t, a, b)

		snap := b.Snapshot()
		assert.Equal(t, StatusError, snap.Status)
		assert.EqualError(t, snap.Err, "boom")
		assert.Nil(t, snap.Data)

		snap = a.Snapshot()
		assert.Equal(t, StatusSuccess, snap.Status)
		assert.Equal(t, "fine", snap.Data)
		assert.NoError(t, snap.Err)
	})

	t.Run("keeps previous data when a refetch fails", func(t *testing.T) {
		store := newStore(t)
		var n atomic.Int32
		fetch := func(context.Context) (any, error) {
			if n.Add(1) == 1 {
				return "v1", nil
			}
			return nil, errors.New("unavailable")
		}

		sub := store.Query(NewKey("flaky", nil), nil, fetch)
		waitSettled(t, sub)
		sub.Refetch()
		waitSettled(t, sub)

		snap := sub.Snapshot()
		assert.Equal(t, StatusError, snap.Status)
		assert.Equal(t, "v1", snap.Data)
		assert.EqualError(t, snap.Err, "unavailable")
	})

	t.Run("recovers panicking fetchers", func(t *testing.T) {
		store := newStore(t)
		sub := store.Query(NewKey("panics", nil), nil, func(context.Context) (any, error) {
			panic("bad fetcher")
		})
		waitSettled(t, sub)

		snap := sub.Snapshot()
		assert.Equal(t, StatusError, snap.Status)
		assert.ErrorIs(t, snap.Err, ErrFetchPanic)
		assert.Contains(t, snap.Err.Error(), "bad fetcher")
	})

	t.Run("records missing data as an error", func(t *testing.T) {
		store := newStore(t)
		sub := store.Query(NewKey("empty", nil), nil, func(context.Context) (any, error) {
			return nil, nil
		})
		waitSettled(t, sub)

		assert.ErrorIs(t, sub.Snapshot().Err, ErrNoData)
	})

	t.Run("records missing fetcher as an error", func(t *testing.T) {
		store := newStore(t)
		sub := store.Query(NewKey("orphan", nil), nil, nil)
		waitSettled(t, sub)

		assert.ErrorIs(t, sub.Snapshot().Err, ErrNoFetcher)
	})

	t.Run("refetch joins an in-flight fetch", func(t *testing.T) {
		store := newStore(t)
		f := &fakeFetcher{gate: make(chan struct{}), value: "ok"}

		sub := store.Query(NewKey("busy", nil), nil, f.fetch)
		sub.Refetch()
		sub.Refetch()
		close(f.gate)
		waitSettled(t, sub)

		assert.Equal(t, int32(1), f.calls.Load())
	})

	t.Run("uses the configured clock", func(t *testing.T) {
		fixed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
		store := newStore(t, WithClock(func() time.Time { return fixed }))

		sub := store.Query(NewKey("timed", nil), nil, (&fakeFetcher{value: 1}).fetch)
		waitSettled(t, sub)

		assert.Equal(t, fixed, sub.Snapshot().LastFetchedAt)
	})
}

func TestSubscription_Release(t *testing.T) {
	ctx := context.Background()

	t.Run("stops delivery but lets the fetch populate the cache", func(t *testing.T) {
		store := newStore(t)
		f := &fakeFetcher{gate: make(chan struct{}), value: "data"}
		key := NewKey("detached", nil)

		var delivered atomic.Int32
		sub := store.Query(key, nil, f.fetch)
		sub.Subscribe(func(Snapshot) { delivered.Add(1) })
		sub.Release()

		// A second subscriber is used only to observe the settle.
		observer := store.Query(key, nil, nil)
		close(f.gate)
		waitSettled(t, observer)
		observer.Release()

		assert.Zero(t, delivered.Load())
		snap, ok := store.Peek(key)
		require.True(t, ok)
		assert.Equal(t, StatusSuccess, snap.Status)
		assert.Equal(t, "data", snap.Data)
		assert.Zero(t, snap.Subscribers)
	})

	t.Run("wait after release fails", func(t *testing.T) {
		store := newStore(t)
		sub := store.Query(NewKey("k", nil), nil, (&fakeFetcher{value: 1}).fetch)
		sub.Release()
		sub.Release()

		_, err := sub.Wait(ctx)
		assert.ErrorIs(t, err, ErrReleased)
	})

	t.Run("subscribers are notified on settle", func(t *testing.T) {
		store := newStore(t)
		f := &fakeFetcher{gate: make(chan struct{}), value: "v"}

		got := make(chan Snapshot, 1)
		sub := store.Query(NewKey("notify", nil), nil, f.fetch)
		defer sub.Release()
		sub.Subscribe(func(s Snapshot) { got <- s })
		close(f.gate)

		select {
		case snap := <-got:
			assert.Equal(t, StatusSuccess, snap.Status)
			assert.Equal(t, "v", snap.Data)
		case <-time.After(5 * time.Second):
			t.Fatal("listener was not called")
		}
	})

	t.Run("wait honors context cancellation", func(t *testing.T) {
		store := newStore(t)
		f := &fakeFetcher{gate: make(chan struct{}), value: "v"}
		sub := store.Query(NewKey("stuck", nil), nil, f.fetch)
		defer close(f.gate)

		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := sub.Wait(cctx)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestStore_Mutate(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T) (*Store, map[string]*fakeFetcher, map[string]*Subscription) {
		store := newStore(t)
		fetchers := map[string]*fakeFetcher{
			"a": {value: "a"},
			"b": {value: "b"},
			"c": {value: "c"},
		}
		subs := map[string]*Subscription{
			"a": store.Query(NewKey("a", nil), []Tag{"T"}, fetchers["a"].fetch),
			"b": store.Query(NewKey("b", nil), []Tag{"T"}, fetchers["b"].fetch),
			"c": store.Query(NewKey("c", nil), []Tag{"U"}, fetchers["c"].fetch),
		}
		waitSettled(t, subs["a"], subs["b"], subs["c"])
		return store, fetchers, subs
	}

	t.Run("refetches subscribed entries and marks the rest stale", func(t *testing.T) {
		store, fetchers, subs := setup(t)
		subs["b"].Release()

		res, err := store.Mutate(ctx, func(context.Context) (any, error) { return "created", nil }, "T")
		require.NoError(t, err)
		assert.Equal(t, "created", res)

		waitSettled(t, subs["a"], subs["c"])
		assert.Equal(t, int32(2), fetchers["a"].calls.Load())
		assert.Equal(t, int32(1), fetchers["b"].calls.Load())
		assert.Equal(t, int32(1), fetchers["c"].calls.Load())

		snap, ok := store.Peek(NewKey("b", nil))
		require.True(t, ok)
		assert.True(t, snap.Stale)
		assert.Equal(t, "b", snap.Data)

		again := store.Query(NewKey("b", nil), []Tag{"T"}, fetchers["b"].fetch)
		waitSettled(t, again)
		assert.Equal(t, int32(2), fetchers["b"].calls.Load())
		assert.False(t, again.Snapshot().Stale)
	})

	t.Run("failed mutation invalidates nothing", func(t *testing.T) {
		store, fetchers, subs := setup(t)

		_, err := store.Mutate(ctx, func(context.Context) (any, error) {
			return nil, errors.New("rejected")
		}, "T", "U")
		require.EqualError(t, err, "rejected")

		for name, sub := range subs {
			assert.Equal(t, StatusSuccess, sub.Snapshot().Status, name)
			assert.Equal(t, int32(1), fetchers[name].calls.Load(), name)
		}
	})

	t.Run("invalidating a loading entry queues one more fetch", func(t *testing.T) {
		store := newStore(t)
		f := &fakeFetcher{gate: make(chan struct{}), value: "x"}
		sub := store.Query(NewKey("x", nil), []Tag{"T"}, f.fetch)

		assert.Equal(t, 1, store.Invalidate("T"))
		assert.Equal(t, 1, store.Invalidate("T"))
		close(f.gate)
		waitSettled(t, sub)

		assert.Equal(t, int32(2), f.calls.Load())
		assert.Equal(t, StatusSuccess, sub.Snapshot().Status)
	})

	t.Run("queued fetch survives its subscriber leaving", func(t *testing.T) {
		store := newStore(t)
		key := NewKey("x", nil)
		f := &fakeFetcher{gate: make(chan struct{}), value: "x"}
		sub := store.Query(key, []Tag{"T"}, f.fetch)

		_, err := store.Mutate(context.Background(), func(context.Context) (any, error) { return "ok", nil }, "T")
		require.NoError(t, err)
		sub.Release()
		close(f.gate)

		assert.Eventually(t, func() bool {
			snap, ok := store.Peek(key)
			return ok && f.calls.Load() == 2 && snap.Status == StatusSuccess
		}, 5*time.Second, 5*time.Millisecond)
		snap, _ := store.Peek(key)
		assert.False(t, snap.Stale)
	})

	t.Run("loading entry without subscribers lands stale", func(t *testing.T) {
		store := newStore(t)
		key := NewKey("x", nil)
		f := &fakeFetcher{gate: make(chan struct{}), value: "x"}
		sub := store.Query(key, []Tag{"T"}, f.fetch)
		sub.Release()

		assert.Zero(t, store.Invalidate("T"))
		close(f.gate)

		assert.Eventually(t, func() bool {
			snap, ok := store.Peek(key)
			return ok && snap.Status == StatusSuccess
		}, 5*time.Second, 5*time.Millisecond)
		snap, _ := store.Peek(key)
		assert.True(t, snap.Stale)
		assert.Equal(t, int32(1), f.calls.Load())
	})

	t.Run("scoped tags match exactly", func(t *testing.T) {
		store := newStore(t)
		f := &fakeFetcher{value: "job"}
		sub := store.Query(NewKey("getJob", "42"), []Tag{Scoped("DiagnosticJobs", "42")}, f.fetch)
		waitSettled(t, sub)

		assert.Zero(t, store.Invalidate("DiagnosticJobs"))
		assert.Equal(t, 1, store.Invalidate(Scoped("DiagnosticJobs", "42")))
		waitSettled(t, sub)
		assert.Equal(t, int32(2), f.calls.Load())
	})

	t.Run("entry carrying several invalidated tags is fetched once", func(t *testing.T) {
		store := newStore(t)
		f := &fakeFetcher{value: "multi"}
		sub := store.Query(NewKey("multi", nil), []Tag{"Catalog", "Catalog:s1"}, f.fetch)
		waitSettled(t, sub)

		assert.Equal(t, 1, store.Invalidate("Catalog", "Catalog:s1"))
		waitSettled(t, sub)
		assert.Equal(t, int32(2), f.calls.Load())
	})
}

func TestStore_Evict(t *testing.T) {
	ctx := context.Background()

	t.Run("drops results of in-flight fetches", func(t *testing.T) {
		store := New()
		f := &fakeFetcher{gate: make(chan struct{}), value: "late"}
		key := NewKey("evicted", nil)
		sub := store.Query(key, nil, f.fetch)

		n := store.Evict(func(s Snapshot) bool { return s.Key == key })
		assert.Equal(t, 1, n)

		snap, err := sub.Wait(ctx)
		require.NoError(t, err)
		assert.Equal(t, StatusIdle, snap.Status)

		close(f.gate)
		store.Close()

		_, ok := store.Peek(key)
		assert.False(t, ok)
	})

	t.Run("refetch reattaches to a new entry", func(t *testing.T) {
		store := newStore(t)
		f := &fakeFetcher{value: "v"}
		key := NewKey("k", nil)
		sub := store.Query(key, []Tag{"T"}, f.fetch)
		waitSettled(t, sub)

		store.Reset()
		assert.Empty(t, store.Snapshots())

		sub.Refetch()
		waitSettled(t, sub)

		snap, ok := store.Peek(key)
		require.True(t, ok)
		assert.Equal(t, StatusSuccess, snap.Status)
		assert.Equal(t, 1, snap.Subscribers)
		assert.True(t, snap.HasTag("T"))
	})

	t.Run("matches by predicate", func(t *testing.T) {
		store := newStore(t)
		for _, id := range []string{"1", "2", "3"} {
			sub := store.Query(NewKey("getJob", id), []Tag{Scoped("DiagnosticJobs", id)}, (&fakeFetcher{value: id}).fetch)
			waitSettled(t, sub)
			sub.Release()
		}

		n := store.Evict(func(s Snapshot) bool { return s.HasTag(Scoped("DiagnosticJobs", "2")) })
		assert.Equal(t, 1, n)

		var args []string
		for _, s := range store.Snapshots() {
			args = append(args, s.Key.Arg)
		}
		assert.Equal(t, []string{"1", "3"}, args)
	})
}

func TestStore_Close(t *testing.T) {
	store := New()
	sub := store.Query(NewKey("forever", nil), nil, func(ctx context.Context) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	store.Close()

	snap := sub.Snapshot()
	assert.Equal(t, StatusError, snap.Status)
	assert.ErrorIs(t, snap.Err, context.Canceled)
}

type fakeRecorder struct {
	mu          sync.Mutex
	hits        int
	fetches     int
	failures    int
	invalidated map[Tag]int
}

func (r *fakeRecorder) Hit(string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hits++
}

func (r *fakeRecorder) Fetched(_ string, _ time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fetches++
	if err != nil {
		r.failures++
	}
}

func (r *fakeRecorder) Invalidated(tag Tag, n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.invalidated == nil {
		r.invalidated = make(map[Tag]int)
	}
	r.invalidated[tag] += n
}

func TestStore_Recorder(t *testing.T) {
	rec := &fakeRecorder{}
	store := newStore(t, WithRecorder(rec))
	key := NewKey("recorded", nil)

	first := store.Query(key, []Tag{"T"}, (&fakeFetcher{value: 1}).fetch)
	waitSettled(t, first)
	second := store.Query(key, []Tag{"T"}, nil)
	store.Invalidate("T")
	waitSettled(t, first, second)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, 1, rec.hits)
	assert.Equal(t, 2, rec.fetches)
	assert.Zero(t, rec.failures)
	assert.Equal(t, map[Tag]int{"T": 1}, rec.invalidated)
}
