package handlers

import (
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/sortdesk/client/internal/projector"
	"github.com/sortdesk/client/internal/session"
	"github.com/sortdesk/client/pkg/logger"
)

const streamBuffer = 64

// StreamHandler relays list changes and notices to connected review UIs.
type StreamHandler struct {
	session *session.Session
}

func NewStreamHandler(s *session.Session) *StreamHandler {
	return &StreamHandler{
		session: s,
	}
}

// Upgrade rejects plain HTTP requests on the stream route.
func (h *StreamHandler) Upgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// HandleConnection sends a snapshot, then every change after it. Listeners
// are attached before the snapshot is taken, so a change racing it may be
// delivered twice; prepend and remove are safe to repeat by id.
func (h *StreamHandler) HandleConnection(c *websocket.Conn) {
	logger.Info("Stream client connected", zap.String("remote", c.RemoteAddr().String()))

	out := make(chan interface{}, streamBuffer)
	overflow := make(chan struct{})
	var overflowOnce sync.Once

	send := func(msg interface{}) {
		select {
		case out <- msg:
		default:
			overflowOnce.Do(func() { close(overflow) })
		}
	}

	removeChange := h.session.Projector.OnChange(func(ch projector.Change) {
		send(ch)
	})
	removeNotice := h.session.Notices.OnNotice(func(n session.Notice) {
		send(fiber.Map{
			"type":    "notice",
			"level":   n.Level,
			"message": n.Message,
		})
	})

	defer func() {
		removeChange()
		removeNotice()
		c.Close()
		logger.Info("Stream client disconnected")
	}()

	err := c.WriteJSON(fiber.Map{
		"type":  "snapshot",
		"items": h.session.Projector.Items(),
	})
	if err != nil {
		logger.Error("Failed to send snapshot", zap.Error(err))
		return
	}

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case msg := <-out:
			if err := c.WriteJSON(msg); err != nil {
				logger.Error("Failed to write stream message", zap.Error(err))
				return
			}
		case <-overflow:
			logger.Warn("Stream client too slow, dropping connection")
			return
		case <-closed:
			return
		}
	}
}
