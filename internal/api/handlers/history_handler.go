package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/sortdesk/client/internal/storage/models"
	"github.com/sortdesk/client/pkg/logger"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

type DecisionLog interface {
	RecentDecisions(ctx context.Context, limit int) ([]models.DecisionRecord, error)
	OutcomeCounts(ctx context.Context) ([]models.OutcomeCount, error)
}

type HistoryHandler struct {
	log DecisionLog
}

func NewHistoryHandler(log DecisionLog) *HistoryHandler {
	return &HistoryHandler{
		log: log,
	}
}

func (h *HistoryHandler) Decisions(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", defaultHistoryLimit)
	if limit <= 0 || limit > maxHistoryLimit {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "limit must be between 1 and 500",
		})
	}

	records, err := h.log.RecentDecisions(c.Context(), limit)
	if err != nil {
		logger.Error("Failed to load decision history", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load decision history",
		})
	}

	counts, err := h.log.OutcomeCounts(c.Context())
	if err != nil {
		logger.Error("Failed to count decision outcomes", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load decision history",
		})
	}

	return c.JSON(fiber.Map{
		"decisions": records,
		"outcomes":  counts,
	})
}
