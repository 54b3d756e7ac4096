package handlers

import (
	"bytes"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/sortdesk/client/internal/dispatcher"
	"github.com/sortdesk/client/internal/session"
	"github.com/sortdesk/client/pkg/logger"
)

type SuggestionsHandler struct {
	session *session.Session
}

func NewSuggestionsHandler(s *session.Session) *SuggestionsHandler {
	return &SuggestionsHandler{
		session: s,
	}
}

func (h *SuggestionsHandler) List(c *fiber.Ctx) error {
	items := h.session.Projector.Items()
	return c.JSON(fiber.Map{
		"items":  items,
		"count":  len(items),
		"seeded": h.session.Ready(),
	})
}

func (h *SuggestionsHandler) HTML(c *fiber.Ctx) error {
	var buf bytes.Buffer
	if err := h.session.Projector.RenderHTML(&buf); err != nil {
		logger.Error("Failed to render suggestion list", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to render suggestions",
		})
	}

	c.Type("html", "utf-8")
	return c.Send(buf.Bytes())
}

type ApplyRequest struct {
	Path   string `json:"path"`
	Accept *bool  `json:"accept"`
}

// Apply forwards one decision. Applied and stale outcomes are both 200: the
// entry is gone either way. Failures keep the entry and map to 502 or 503.
func (h *SuggestionsHandler) Apply(c *fiber.Ctx) error {
	var req ApplyRequest
	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.Path == "" || req.Accept == nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "path and accept are required",
		})
	}

	out := h.session.Dispatcher.Apply(c.Context(), req.Path, *req.Accept)

	status := fiber.StatusOK
	switch out.Result {
	case dispatcher.Failed:
		status = fiber.StatusBadGateway
	case dispatcher.NetworkError:
		status = fiber.StatusServiceUnavailable
	}
	return c.Status(status).JSON(out)
}

func (h *SuggestionsHandler) Config(c *fiber.Ctx) error {
	cfg, stale := h.session.Config()
	if cfg == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Configuration not loaded",
		})
	}

	return c.JSON(fiber.Map{
		"watched_directories": cfg.WatchedDirectories,
		"category_folders":    cfg.CategoryFolders,
		"text_extensions":     cfg.TextExtensions,
		"image_extensions":    cfg.ImageExtensions,
		"categories":          cfg.Categories(),
		"stale":               stale,
	})
}

func (h *SuggestionsHandler) Notices(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"notices": h.session.Notices.Recent(),
	})
}
