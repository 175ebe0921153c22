// Package cache provides the tag-indexed request cache that holds every piece
// of remote-derived data in memory.
//
// A query attaches to the entry for its key, starting a fetch only when the
// entry has no usable data and no fetch in flight. A mutation names the tags
// it invalidates; entries carrying those tags are re-fetched when something is
// still subscribed to them and marked stale otherwise. Fetch failures never
// escape the query boundary: they are recorded on the entry and read back as
// data.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"
)

// Sentinel errors for cache operations.
var (
	// ErrReleased is returned by Wait on a subscription that was released.
	ErrReleased = errors.New("subscription released")

	// ErrEvicted is returned when an entry was evicted while a caller waited on it.
	ErrEvicted = errors.New("cache entry evicted")

	// ErrNoData is recorded when a fetcher succeeds without producing data.
	ErrNoData = errors.New("fetcher returned no data")

	// ErrNoFetcher is recorded when an entry must be fetched but has no fetcher.
	ErrNoFetcher = errors.New("no fetcher registered")

	// ErrFetchPanic wraps a panic recovered from a fetcher or mutation.
	ErrFetchPanic = errors.New("fetcher panicked")
)

// Status is the lifecycle state of a cache entry.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Tag labels entries for invalidation fan-out.
type Tag string

// Scoped returns the per-resource variant of tag, e.g. "DiagnosticJobs:42".
func Scoped(tag Tag, id string) Tag {
	return Tag(string(tag) + ":" + id)
}

// Key identifies a cache entry by operation name and serialized argument.
type Key struct {
	Operation string
	Arg       string
}

// NewKey builds a key. Strings are used verbatim; other arguments are
// serialized as JSON so that equal arguments produce equal keys.
func NewKey(operation string, arg any) Key {
	switch v := arg.(type) {
	case nil:
		return Key{Operation: operation}
	case string:
		return Key{Operation: operation, Arg: v}
	}

	b, err := json.Marshal(arg)
	if err != nil {
		return Key{Operation: operation, Arg: fmt.Sprintf("%v", arg)}
	}
	return Key{Operation: operation, Arg: string(b)}
}

func (k Key) String() string {
	if k.Arg == "" {
		return k.Operation
	}
	return k.Operation + "(" + k.Arg + ")"
}

// Snapshot is a point-in-time copy of a cache entry.
type Snapshot struct {
	Key           Key
	Status        Status
	Data          any
	Err           error
	Tags          []Tag
	LastFetchedAt time.Time
	Subscribers   int
	Stale         bool
}

// HasTag reports whether the entry carries tag.
func (s Snapshot) HasTag(tag Tag) bool {
	for _, t := range s.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// entry is the mutable record behind a key. All fields are guarded by the
// owning Store's mutex.
type entry struct {
	key       Key
	status    Status
	data      any
	err       error
	tags      map[Tag]struct{}
	fetchedAt time.Time
	fetcher   Fetcher
	subs      map[*Subscription]struct{}

	// stale marks data invalidated while nobody was subscribed.
	stale bool
	// requeue asks for one more fetch once the in-flight one settles.
	requeue bool
	evicted bool

	// done is closed when the current fetch settles.
	done chan struct{}
	gen  uint64
}

func newEntry(key Key) *entry {
	return &entry{
		key:    key,
		status: StatusIdle,
		tags:   make(map[Tag]struct{}),
		subs:   make(map[*Subscription]struct{}),
	}
}

func (e *entry) snapshot() Snapshot {
	tags := make([]Tag, 0, len(e.tags))
	for t := range e.tags {
		tags = append(tags, t)
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i] < tags[j] })

	return Snapshot{
		Key:           e.key,
		Status:        e.status,
		Data:          e.data,
		Err:           e.err,
		Tags:          tags,
		LastFetchedAt: e.fetchedAt,
		Subscribers:   len(e.subs),
		Stale:         e.stale,
	}
}

// listeners returns the callbacks of every subscriber that asked for one.
func (e *entry) listeners() []func(Snapshot) {
	var fns []func(Snapshot)
	for sub := range e.subs {
		if sub.listener != nil {
			fns = append(fns, sub.listener)
		}
	}
	return fns
}
