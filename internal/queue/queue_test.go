package queue

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sortdesk/client/internal/suggestion"
)

func sug(path, category string, confidence float64) suggestion.Suggestion {
	return suggestion.Suggestion{Path: path, SuggestedCategory: category, Confidence: confidence}
}

func paths(list []suggestion.Suggestion) []string {
	out := make([]string, len(list))
	for i, s := range list {
		out[i] = s.Path
	}
	return out
}

func TestUpsert_DistinctPathsNewestFirst(t *testing.T) {
	q := New()
	for i := 0; i < 5; i++ {
		replaced := q.Upsert(sug(fmt.Sprintf("/watched/%d.txt", i), "Others", 0.4))
		assert.False(t, replaced)
	}

	assert.Equal(t, []string{
		"/watched/4.txt",
		"/watched/3.txt",
		"/watched/2.txt",
		"/watched/1.txt",
		"/watched/0.txt",
	}, paths(q.Enumerate()))
}

func TestUpsert_ExistingPathMovesToFront(t *testing.T) {
	q := New()
	q.Upsert(sug("/a.txt", "docs", 0.9))
	q.Upsert(sug("/b.txt", "docs", 0.5))
	q.Upsert(sug("/c.txt", "docs", 0.5))

	replaced := q.Upsert(sug("/a.txt", "Invoices", 0.6))
	require.True(t, replaced)

	got := q.Enumerate()
	require.Len(t, got, 3)
	assert.Equal(t, []string{"/a.txt", "/c.txt", "/b.txt"}, paths(got))
	assert.Equal(t, "Invoices", got[0].SuggestedCategory)
	assert.Equal(t, 0.6, got[0].Confidence)
}

func TestUpsert_ConfidenceDoesNotAffectOrder(t *testing.T) {
	q := New()
	q.Upsert(sug("/high.txt", "Reports", 0.99))
	q.Upsert(sug("/low.txt", "Others", 0.01))

	assert.Equal(t, []string{"/low.txt", "/high.txt"}, paths(q.Enumerate()))
}

func TestRemove(t *testing.T) {
	q := New()
	q.Upsert(sug("/a.txt", "docs", 0.9))
	q.Upsert(sug("/b.txt", "docs", 0.9))

	t.Run("absent path is a no-op", func(t *testing.T) {
		before := q.Enumerate()
		assert.False(t, q.Remove("/missing.txt"))
		assert.Equal(t, before, q.Enumerate())
	})

	t.Run("present path is removed once", func(t *testing.T) {
		assert.True(t, q.Remove("/a.txt"))
		assert.False(t, q.Remove("/a.txt"))
		assert.Equal(t, []string{"/b.txt"}, paths(q.Enumerate()))
	})
}

func TestSeed(t *testing.T) {
	tests := []struct {
		name      string
		pushed    []suggestion.Suggestion
		initial   []suggestion.Suggestion
		wantPaths []string
		wantAdded int
	}{
		{
			name:      "empty queue takes bulk order",
			initial:   []suggestion.Suggestion{sug("/x", "a", 0.1), sug("/y", "a", 0.1), sug("/z", "a", 0.1)},
			wantPaths: []string{"/x", "/y", "/z"},
			wantAdded: 3,
		},
		{
			name:      "early pushes stay in front",
			pushed:    []suggestion.Suggestion{sug("/p1", "a", 0.1), sug("/p2", "a", 0.1)},
			initial:   []suggestion.Suggestion{sug("/x", "a", 0.1), sug("/y", "a", 0.1)},
			wantPaths: []string{"/p2", "/p1", "/x", "/y"},
			wantAdded: 2,
		},
		{
			name:      "pushed path present in bulk is not duplicated",
			pushed:    []suggestion.Suggestion{sug("/x", "pushed", 0.8)},
			initial:   []suggestion.Suggestion{sug("/w", "a", 0.1), sug("/x", "bulk", 0.2), sug("/y", "a", 0.1)},
			wantPaths: []string{"/x", "/w", "/y"},
			wantAdded: 2,
		},
		{
			name:      "duplicate paths inside bulk keep the first",
			initial:   []suggestion.Suggestion{sug("/x", "first", 0.1), sug("/x", "second", 0.1)},
			wantPaths: []string{"/x"},
			wantAdded: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := New()
			for _, s := range tt.pushed {
				q.Upsert(s)
			}

			added := q.Seed(tt.initial)

			assert.Equal(t, tt.wantAdded, added)
			assert.Equal(t, tt.wantPaths, paths(q.Enumerate()))
			assert.True(t, q.Seeded())
		})
	}
}

func TestSeed_KeepsPushedValue(t *testing.T) {
	q := New()
	q.Upsert(sug("/x", "pushed", 0.8))
	q.Seed([]suggestion.Suggestion{sug("/x", "bulk", 0.2)})

	got, ok := q.Get("/x")
	require.True(t, ok)
	assert.Equal(t, "pushed", got.SuggestedCategory)
}

func TestSubscribe_ReceivesEventsInOrder(t *testing.T) {
	q := New()
	var events []Event
	unsubscribe := q.Subscribe(func(ev Event) {
		events = append(events, ev)
		// observers may read the queue
		assert.Equal(t, ev.Len, q.Len())
	})

	q.Upsert(sug("/a.txt", "docs", 0.9))
	q.Upsert(sug("/a.txt", "docs", 0.7))
	q.Seed([]suggestion.Suggestion{sug("/b.txt", "docs", 0.5)})
	q.Remove("/a.txt")
	q.Remove("/a.txt")

	require.Len(t, events, 4)
	assert.Equal(t, EventInserted, events[0].Kind)
	assert.Equal(t, EventReplaced, events[1].Kind)
	assert.Equal(t, 0.7, events[1].Suggestion.Confidence)
	assert.Equal(t, EventSeeded, events[2].Kind)
	assert.Equal(t, []string{"/b.txt"}, paths(events[2].Seeded))
	assert.Equal(t, EventRemoved, events[3].Kind)
	assert.Equal(t, "/a.txt", events[3].Suggestion.Path)
	assert.Equal(t, 1, events[3].Len)

	unsubscribe()
	q.Upsert(sug("/c.txt", "docs", 0.5))
	assert.Len(t, events, 4)
}

func TestQueue_ConcurrentMutations(t *testing.T) {
	q := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			path := fmt.Sprintf("/watched/%d.txt", i%10)
			q.Upsert(sug(path, "Others", 0.4))
			if i%3 == 0 {
				q.Remove(path)
			}
		}(i)
	}
	wg.Wait()

	got := q.Enumerate()
	seen := map[string]bool{}
	for _, s := range got {
		assert.False(t, seen[s.Path], "duplicate path %s", s.Path)
		seen[s.Path] = true
	}
	assert.Equal(t, len(got), q.Len())
}
