package session

import (
	"sync"
	"time"

	"github.com/sortdesk/client/internal/dispatcher"
)

const maxNotices = 50

type Notice struct {
	Level   string    `json:"level"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// NoticeBoard keeps the most recent notices and relays new ones.
type NoticeBoard struct {
	mu        sync.Mutex
	notices   []Notice
	listeners map[int]func(Notice)
	nextID    int
}

func NewNoticeBoard() *NoticeBoard {
	return &NoticeBoard{listeners: make(map[int]func(Notice))}
}

func (b *NoticeBoard) Notify(n dispatcher.Notice) {
	level := "info"
	if n.Level == dispatcher.LevelError {
		level = "error"
	}
	notice := Notice{Level: level, Message: n.Message, At: time.Now()}

	b.mu.Lock()
	b.notices = append(b.notices, notice)
	if len(b.notices) > maxNotices {
		b.notices = b.notices[len(b.notices)-maxNotices:]
	}
	listeners := make([]func(Notice), 0, len(b.listeners))
	for _, fn := range b.listeners {
		listeners = append(listeners, fn)
	}
	b.mu.Unlock()

	for _, fn := range listeners {
		fn(notice)
	}
}

// Recent returns retained notices, oldest first.
func (b *NoticeBoard) Recent() []Notice {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Notice(nil), b.notices...)
}

func (b *NoticeBoard) OnNotice(fn func(Notice)) (remove func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.listeners[id] = fn
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.listeners, id)
		b.mu.Unlock()
	}
}
