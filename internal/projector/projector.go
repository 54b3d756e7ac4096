// Package projector maps queue state to the list the review UI renders.
package projector

import (
	"html/template"
	"io"
	"sync"

	"github.com/sortdesk/client/internal/queue"
	"github.com/sortdesk/client/internal/suggestion"
	"github.com/sortdesk/client/pkg/utils"
)

// Item is a read-only rendering of one suggestion. ID is derived from the
// path and is only meaningful to the presentation layer.
type Item struct {
	ID              string  `json:"id"`
	Path            string  `json:"path"`
	Category        string  `json:"suggested_category"`
	Confidence      float64 `json:"confidence"`
	ConfidenceLabel string  `json:"confidence_label"`
}

func ItemID(path string) string {
	return "suggestion-" + utils.PathKey(path)
}

func itemFor(s suggestion.Suggestion) Item {
	return Item{
		ID:              ItemID(s.Path),
		Path:            s.Path,
		Category:        s.SuggestedCategory,
		Confidence:      s.Confidence,
		ConfidenceLabel: s.ConfidenceLabel(),
	}
}

type ChangeKind string

const (
	ChangePrepend ChangeKind = "prepend"
	ChangeAppend  ChangeKind = "append"
	ChangeRemove  ChangeKind = "remove"
)

// Change is one edit to the rendered list. Replacing a suggestion is a
// remove of the old ID followed by a prepend.
type Change struct {
	Kind ChangeKind `json:"type"`
	ID   string     `json:"id"`
	Item *Item      `json:"item,omitempty"`
}

type Source interface {
	Enumerate() []suggestion.Suggestion
	Subscribe(fn func(queue.Event)) (unsubscribe func())
}

type Projector struct {
	mu    sync.RWMutex
	items []Item
	// events that arrived before the snapshot was installed
	ready   bool
	backlog []queue.Event

	listenersMu sync.RWMutex
	listeners   map[int]func(Change)
	nextID      int

	detach func()
}

// New builds the list from a snapshot of src and follows its events. The
// snapshot is read without holding p.mu; events delivered meanwhile are
// replayed on top of it. A replayed event may already be reflected in the
// snapshot, so applying an event is idempotent.
func New(src Source) *Projector {
	p := &Projector{listeners: make(map[int]func(Change))}

	p.detach = src.Subscribe(p.apply)
	snapshot := src.Enumerate()

	p.mu.Lock()
	for _, s := range snapshot {
		p.items = append(p.items, itemFor(s))
	}
	for _, ev := range p.backlog {
		p.applyLocked(ev)
	}
	p.backlog = nil
	p.ready = true
	p.mu.Unlock()

	return p
}

func (p *Projector) Close() {
	if p.detach != nil {
		p.detach()
	}
}

// Items returns the rendered list, newest first.
func (p *Projector) Items() []Item {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]Item(nil), p.items...)
}

// OnChange registers fn for every subsequent list edit.
func (p *Projector) OnChange(fn func(Change)) (remove func()) {
	p.listenersMu.Lock()
	id := p.nextID
	p.nextID++
	p.listeners[id] = fn
	p.listenersMu.Unlock()

	return func() {
		p.listenersMu.Lock()
		delete(p.listeners, id)
		p.listenersMu.Unlock()
	}
}

func (p *Projector) apply(ev queue.Event) {
	p.mu.Lock()
	if !p.ready {
		p.backlog = append(p.backlog, ev)
		p.mu.Unlock()
		return
	}
	changes := p.applyLocked(ev)
	p.mu.Unlock()

	p.listenersMu.RLock()
	listeners := make([]func(Change), 0, len(p.listeners))
	for _, fn := range p.listeners {
		listeners = append(listeners, fn)
	}
	p.listenersMu.RUnlock()

	for _, c := range changes {
		for _, fn := range listeners {
			fn(c)
		}
	}
}

func (p *Projector) applyLocked(ev queue.Event) []Change {
	var changes []Change

	switch ev.Kind {
	case queue.EventInserted, queue.EventReplaced:
		item := itemFor(ev.Suggestion)
		if p.removeLocked(item.ID) {
			changes = append(changes, Change{Kind: ChangeRemove, ID: item.ID})
		}
		p.items = append([]Item{item}, p.items...)
		changes = append(changes, Change{Kind: ChangePrepend, ID: item.ID, Item: &item})
	case queue.EventRemoved:
		id := ItemID(ev.Suggestion.Path)
		if p.removeLocked(id) {
			changes = append(changes, Change{Kind: ChangeRemove, ID: id})
		}
	case queue.EventSeeded:
		for _, s := range ev.Seeded {
			item := itemFor(s)
			if p.indexLocked(item.ID) >= 0 {
				continue
			}
			p.items = append(p.items, item)
			changes = append(changes, Change{Kind: ChangeAppend, ID: item.ID, Item: &item})
		}
	}
	return changes
}

func (p *Projector) indexLocked(id string) int {
	for i, it := range p.items {
		if it.ID == id {
			return i
		}
	}
	return -1
}

func (p *Projector) removeLocked(id string) bool {
	i := p.indexLocked(id)
	if i < 0 {
		return false
	}
	p.items = append(p.items[:i], p.items[i+1:]...)
	return true
}

var listTemplate = template.Must(template.New("suggestions").Parse(`<div id="suggestion-list">
{{- range . }}
<div class="suggestion" id="{{ .ID }}" data-path="{{ .Path }}">
<b>{{ .Category }}</b> (conf: {{ .ConfidenceLabel }})
<code>{{ .Path }}</code>
<button class="btn-accept" data-accept="true">Accept</button>
<button class="btn-reject" data-accept="false">Reject</button>
</div>
{{- end }}
</div>
`))

// RenderHTML writes the suggestion list fragment.
func (p *Projector) RenderHTML(w io.Writer) error {
	return listTemplate.Execute(w, p.Items())
}
