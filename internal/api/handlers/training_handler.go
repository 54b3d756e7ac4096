package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/sortdesk/client/internal/backend"
	"github.com/sortdesk/client/internal/training"
	"github.com/sortdesk/client/pkg/logger"
)

type TrainingHandler struct {
	collector *training.Collector
}

func NewTrainingHandler(collector *training.Collector) *TrainingHandler {
	return &TrainingHandler{
		collector: collector,
	}
}

func (h *TrainingHandler) List(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"samples": h.collector.Display(),
		"count":   h.collector.Count(),
		"pending": h.collector.PendingCount(),
		"status":  h.collector.Status(),
	})
}

func (h *TrainingHandler) AddSample(c *fiber.Ctx) error {
	var req backend.Sample
	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if err := h.collector.AddSample(req.Text, req.Label); err != nil {
		var verr *training.ValidationError
		if errors.As(err, &verr) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": verr.Message,
				"field": verr.Field,
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to add sample",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"pending": h.collector.PendingCount(),
		"count":   h.collector.Count(),
	})
}

func (h *TrainingHandler) Submit(c *fiber.Ctx) error {
	trained, err := h.collector.Submit(c.Context())
	if err != nil {
		status := fiber.StatusServiceUnavailable
		if _, ok := backend.Detail(err); ok {
			status = fiber.StatusBadGateway
		}
		return c.Status(status).JSON(fiber.Map{
			"error":   h.collector.Status(),
			"pending": h.collector.PendingCount(),
		})
	}

	return c.JSON(fiber.Map{
		"samples_trained": trained,
		"status":          h.collector.Status(),
	})
}
