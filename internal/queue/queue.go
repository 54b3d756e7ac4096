// Package queue holds the pending suggestions of one review session.
//
// The queue is recency ordered: the most recently arrived suggestion is
// always first, whatever its confidence. Paths are unique; a second arrival
// for the same path replaces the first and moves it to the front.
package queue

import (
	"sync"

	"github.com/emirpasic/gods/maps/linkedhashmap"
	"go.uber.org/zap"

	"github.com/sortdesk/client/internal/suggestion"
	"github.com/sortdesk/client/pkg/logger"
)

type EventKind int

const (
	EventInserted EventKind = iota
	EventReplaced
	EventRemoved
	EventSeeded
)

func (k EventKind) String() string {
	switch k {
	case EventInserted:
		return "inserted"
	case EventReplaced:
		return "replaced"
	case EventRemoved:
		return "removed"
	case EventSeeded:
		return "seeded"
	default:
		return "unknown"
	}
}

// Event describes one mutation. For EventSeeded, Seeded lists the entries
// appended behind the existing ones, newest first; Suggestion is unset.
type Event struct {
	Kind       EventKind
	Suggestion suggestion.Suggestion
	Seeded     []suggestion.Suggestion
	Len        int
}

type Queue struct {
	mu sync.Mutex
	// entries maps path to Suggestion, oldest arrival first.
	entries *linkedhashmap.Map
	seeded  bool

	// emitMu is taken before mu is released so observers see events in
	// mutation order.
	emitMu sync.Mutex

	subsMu sync.RWMutex
	subs   map[int]func(Event)
	nextID int
}

func New() *Queue {
	return &Queue{
		entries: linkedhashmap.New(),
		subs:    make(map[int]func(Event)),
	}
}

// Subscribe registers fn for every subsequent mutation. fn runs
// synchronously and must not mutate the queue.
func (q *Queue) Subscribe(fn func(Event)) (unsubscribe func()) {
	q.subsMu.Lock()
	id := q.nextID
	q.nextID++
	q.subs[id] = fn
	q.subsMu.Unlock()

	return func() {
		q.subsMu.Lock()
		delete(q.subs, id)
		q.subsMu.Unlock()
	}
}

// Seed merges the bulk-loaded suggestions into the queue. Entries whose path
// is already present (pushed before the bulk response was processed) are kept
// as they are; the rest are added behind them in the given order. Returns the
// number of entries added.
func (q *Queue) Seed(initial []suggestion.Suggestion) int {
	q.mu.Lock()

	added := make([]suggestion.Suggestion, 0, len(initial))
	taken := make(map[string]struct{}, len(initial))
	for _, s := range initial {
		if _, ok := q.entries.Get(s.Path); ok {
			continue
		}
		if _, ok := taken[s.Path]; ok {
			continue
		}
		taken[s.Path] = struct{}{}
		added = append(added, s)
	}

	merged := linkedhashmap.New()
	for i := len(added) - 1; i >= 0; i-- {
		merged.Put(added[i].Path, added[i])
	}
	it := q.entries.Iterator()
	for it.Next() {
		merged.Put(it.Key(), it.Value())
	}
	q.entries = merged
	q.seeded = true

	ev := Event{Kind: EventSeeded, Seeded: added, Len: q.entries.Size()}
	q.emitMu.Lock()
	q.mu.Unlock()
	defer q.emitMu.Unlock()

	logger.Debug("Queue seeded",
		zap.Int("initial", len(initial)),
		zap.Int("added", len(added)),
		zap.Int("size", ev.Len),
	)
	q.publish(ev)

	return len(added)
}

// Upsert puts s at the front. Returns true when it replaced an entry with
// the same path.
func (q *Queue) Upsert(s suggestion.Suggestion) bool {
	q.mu.Lock()

	_, replaced := q.entries.Get(s.Path)
	if replaced {
		q.entries.Remove(s.Path)
	}
	q.entries.Put(s.Path, s)

	kind := EventInserted
	if replaced {
		kind = EventReplaced
	}
	ev := Event{Kind: kind, Suggestion: s, Len: q.entries.Size()}
	q.emitMu.Lock()
	q.mu.Unlock()
	defer q.emitMu.Unlock()

	q.publish(ev)
	return replaced
}

// Remove drops the entry for path. Removing an absent path is a no-op.
func (q *Queue) Remove(path string) bool {
	q.mu.Lock()

	v, ok := q.entries.Get(path)
	if !ok {
		q.mu.Unlock()
		return false
	}
	q.entries.Remove(path)

	ev := Event{Kind: EventRemoved, Suggestion: v.(suggestion.Suggestion), Len: q.entries.Size()}
	q.emitMu.Lock()
	q.mu.Unlock()
	defer q.emitMu.Unlock()

	q.publish(ev)
	return true
}

// Enumerate returns a snapshot, newest first.
func (q *Queue) Enumerate() []suggestion.Suggestion {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]suggestion.Suggestion, 0, q.entries.Size())
	it := q.entries.Iterator()
	for it.End(); it.Prev(); {
		out = append(out, it.Value().(suggestion.Suggestion))
	}
	return out
}

func (q *Queue) Get(path string) (suggestion.Suggestion, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	v, ok := q.entries.Get(path)
	if !ok {
		return suggestion.Suggestion{}, false
	}
	return v.(suggestion.Suggestion), true
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.entries.Size()
}

// Seeded reports whether the bulk load has been merged.
func (q *Queue) Seeded() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.seeded
}

func (q *Queue) publish(ev Event) {
	q.subsMu.RLock()
	subs := make([]func(Event), 0, len(q.subs))
	for _, fn := range q.subs {
		subs = append(subs, fn)
	}
	q.subsMu.RUnlock()

	for _, fn := range subs {
		fn(ev)
	}
}
