package cache

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Fetcher produces the data for a key. It runs in its own goroutine against
// the store's base context.
type Fetcher func(ctx context.Context) (any, error)

// Recorder receives cache events for instrumentation.
type Recorder interface {
	// Hit records a query served by an existing entry without a new fetch.
	Hit(operation string)
	// Fetched records a settled fetch.
	Fetched(operation string, elapsed time.Duration, err error)
	// Invalidated records a tag invalidation and how many re-fetches it started.
	Invalidated(tag Tag, refetched int)
}

type nopRecorder struct{}

func (nopRecorder) Hit(string)                           {}
func (nopRecorder) Fetched(string, time.Duration, error) {}
func (nopRecorder) Invalidated(Tag, int)                 {}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for debug output.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithRecorder sets the instrumentation sink.
func WithRecorder(r Recorder) Option {
	return func(s *Store) {
		if r != nil {
			s.recorder = r
		}
	}
}

// WithClock overrides the time source used for LastFetchedAt and durations.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithContext sets the parent of the context fetchers run against.
func WithContext(ctx context.Context) Option {
	return func(s *Store) {
		if ctx != nil {
			s.ctx = ctx
		}
	}
}

// Store is an in-memory, tag-indexed request cache. It is safe for concurrent
// use.
type Store struct {
	mu      sync.Mutex
	entries map[Key]*entry
	byTag   map[Tag]map[Key]struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger   *slog.Logger
	recorder Recorder
	now      func() time.Time
}

// New creates an empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		entries:  make(map[Key]*entry),
		byTag:    make(map[Tag]map[Key]struct{}),
		ctx:      context.Background(),
		logger:   slog.New(slog.DiscardHandler),
		recorder: nopRecorder{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.ctx, s.cancel = context.WithCancel(s.ctx)
	return s
}

// Query attaches a new subscriber to the entry for key and returns its
// subscription. A fetch is started only when the entry is neither loading nor
// holding fresh data. The caller must Release the subscription when done.
//
// A non-nil fetch replaces the entry's stored fetcher, and tags replace its
// tag set.
func (s *Store) Query(key Key, tags []Tag, fetch Fetcher) *Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.lookup(key)
	s.retag(e, tags)
	if fetch != nil {
		e.fetcher = fetch
	}

	sub := &Subscription{store: s, entry: e}
	e.subs[sub] = struct{}{}

	switch {
	case e.status == StatusLoading:
		s.logger.Debug("joined in-flight fetch", "key", key.String())
		s.recorder.Hit(key.Operation)
	case e.status == StatusSuccess && !e.stale:
		s.recorder.Hit(key.Operation)
	default:
		s.startFetch(e)
	}
	return sub
}

// Mutate runs fn and, when it succeeds, invalidates tags. When fn fails
// nothing is invalidated and its error is returned.
func (s *Store) Mutate(ctx context.Context, fn func(ctx context.Context) (any, error), tags ...Tag) (any, error) {
	return s.mutate(ctx, fn, func(any) []Tag { return tags })
}

func (s *Store) mutate(ctx context.Context, fn func(ctx context.Context) (any, error), tagsFor func(result any) []Tag) (any, error) {
	result, err := call(ctx, fn)
	if err != nil {
		s.logger.Debug("mutation failed", "error", err)
		return nil, err
	}

	s.Invalidate(tagsFor(result)...)
	return result, nil
}

// Invalidate marks every entry carrying one of tags as stale. Entries that
// have subscribers now are re-fetched; an entry that is mid-fetch is queued
// for one more fetch once the current one settles, even if its subscribers
// leave in the meantime. It returns the number of entries re-fetched or
// queued.
func (s *Store) Invalidate(tags ...Tag) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[Key]struct{})
	total := 0
	for _, tag := range tags {
		n := 0
		for key := range s.byTag[tag] {
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}

			if s.invalidate(s.entries[key]) {
				n++
			}
		}

		s.logger.Debug("invalidated tag", "tag", string(tag), "refetched", n)
		s.recorder.Invalidated(tag, n)
		total += n
	}
	return total
}

func (s *Store) invalidate(e *entry) bool {
	switch {
	case e.status == StatusLoading && len(e.subs) > 0:
		e.requeue = true
		return true
	case e.status == StatusLoading:
		// The result of the current fetch lands stale.
		e.stale = true
		return false
	case len(e.subs) > 0:
		s.startFetch(e)
		return true
	default:
		e.stale = true
		return false
	}
}

// Evict removes every entry for which match returns true. Results of fetches
// still in flight for removed entries are dropped.
func (s *Store) Evict(match func(Snapshot) bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, e := range s.entries {
		if match(e.snapshot()) {
			s.remove(e)
			n++
		}
	}
	if n > 0 {
		s.logger.Debug("evicted entries", "count", n)
	}
	return n
}

// Reset removes every entry.
func (s *Store) Reset() {
	n := s.Evict(func(Snapshot) bool { return true })
	s.logger.Debug("cache reset", "count", n)
}

// Peek returns the current state of key without subscribing.
func (s *Store) Peek(key Key) (Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return Snapshot{}, false
	}
	return e.snapshot(), true
}

// Snapshots returns the state of every entry ordered by key.
func (s *Store) Snapshots() []Snapshot {
	s.mu.Lock()
	out := make([]Snapshot, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e.snapshot())
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Key.Operation != out[j].Key.Operation {
			return out[i].Key.Operation < out[j].Key.Operation
		}
		return out[i].Key.Arg < out[j].Key.Arg
	})
	return out
}

// Close cancels the context fetchers run against and waits for in-flight
// fetches to return.
func (s *Store) Close() {
	s.cancel()
	s.wg.Wait()
}

// lookup returns the entry for key, creating it if needed. Must hold s.mu.
func (s *Store) lookup(key Key) *entry {
	e, ok := s.entries[key]
	if !ok {
		e = newEntry(key)
		s.entries[key] = e
	}
	return e
}

// retag replaces the tag set of e. Must hold s.mu.
func (s *Store) retag(e *entry, tags []Tag) {
	for t := range e.tags {
		s.untag(t, e.key)
	}
	e.tags = make(map[Tag]struct{}, len(tags))
	for _, t := range tags {
		e.tags[t] = struct{}{}
		keys, ok := s.byTag[t]
		if !ok {
			keys = make(map[Key]struct{})
			s.byTag[t] = keys
		}
		keys[e.key] = struct{}{}
	}
}

func (s *Store) untag(t Tag, key Key) {
	keys := s.byTag[t]
	delete(keys, key)
	if len(keys) == 0 {
		delete(s.byTag, t)
	}
}

// remove detaches e from the store. Subscribers keep their handle but see an
// idle entry. Must hold s.mu.
func (s *Store) remove(e *entry) {
	for t := range e.tags {
		s.untag(t, e.key)
	}
	delete(s.entries, e.key)

	e.evicted = true
	e.status = StatusIdle
	e.data = nil
	e.err = nil
	e.requeue = false
}

// startFetch moves e to loading and launches its fetcher. Must hold s.mu.
func (s *Store) startFetch(e *entry) {
	e.status = StatusLoading
	e.stale = false
	e.requeue = false
	e.gen++
	e.done = make(chan struct{})

	s.logger.Debug("fetch started", "key", e.key.String())

	s.wg.Add(1)
	go s.run(e, e.gen, e.fetcher, e.done)
}

func (s *Store) run(e *entry, gen uint64, fetch Fetcher, done chan struct{}) {
	defer s.wg.Done()
	defer close(done)

	start := s.now()
	data, err := call(s.ctx, fetch)
	if err == nil && data == nil {
		err = ErrNoData
	}
	elapsed := s.now().Sub(start)

	s.mu.Lock()
	if e.evicted || e.gen != gen {
		s.mu.Unlock()
		s.logger.Debug("dropped fetch result", "key", e.key.String())
		return
	}

	if err != nil {
		e.status = StatusError
		e.err = err
		s.logger.Debug("fetch failed", "key", e.key.String(), "error", err)
	} else {
		e.status = StatusSuccess
		e.data = data
		e.err = nil
		s.logger.Debug("fetch succeeded", "key", e.key.String(), "elapsed", elapsed)
	}
	e.fetchedAt = s.now()
	s.recorder.Fetched(e.key.Operation, elapsed, err)

	if e.requeue {
		s.startFetch(e)
	}

	snap := e.snapshot()
	listeners := e.listeners()
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(snap)
	}
}

// call runs fn, converting a panic into an error.
func call(ctx context.Context, fn func(ctx context.Context) (any, error)) (data any, err error) {
	if fn == nil {
		return nil, ErrNoFetcher
	}
	defer func() {
		if r := recover(); r != nil {
			data = nil
			err = fmt.Errorf("%w: %v", ErrFetchPanic, r)
		}
	}()
	return fn(ctx)
}
