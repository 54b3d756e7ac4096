package validation

import (
	"encoding/json"
	"strings"
	"unicode/utf8"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const (
	applyRoute  = "/api/v1/suggestions/apply"
	sampleRoute = "/api/v1/training/samples"
)

type Config struct {
	MaxPathLength       int
	MaxSampleLength     int
	MaxLabelLength      int
	AllowedContentTypes []string
	Logger              *zap.Logger
}

// Middleware rejects malformed decision and sample bodies before they reach
// the handlers.
func Middleware(cfg Config) fiber.Handler {
	if cfg.MaxPathLength == 0 {
		cfg.MaxPathLength = 4096
	}
	if cfg.MaxSampleLength == 0 {
		cfg.MaxSampleLength = 20000
	}
	if cfg.MaxLabelLength == 0 {
		cfg.MaxLabelLength = 128
	}
	if len(cfg.AllowedContentTypes) == 0 {
		cfg.AllowedContentTypes = []string{fiber.MIMEApplicationJSON}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return func(c *fiber.Ctx) error {
		if c.Method() != fiber.MethodPost {
			return c.Next()
		}

		contentType := c.Get(fiber.HeaderContentType)
		if contentType != "" && !allowedType(contentType, cfg.AllowedContentTypes) {
			return c.Status(fiber.StatusUnsupportedMediaType).JSON(fiber.Map{
				"error": "Unsupported content type",
			})
		}

		switch c.Path() {
		case applyRoute:
			var req struct {
				Path   *string `json:"path"`
				Accept *bool   `json:"accept"`
			}
			if err := json.Unmarshal(c.Body(), &req); err != nil {
				return badRequest(c, "Invalid JSON format")
			}
			if req.Path == nil || *req.Path == "" {
				return badRequest(c, "path is required and must be a string")
			}
			if req.Accept == nil {
				return badRequest(c, "accept is required and must be a boolean")
			}
			if msg := checkText(*req.Path, cfg.MaxPathLength); msg != "" {
				cfg.Logger.Warn("Rejected decision path", zap.String("ip", c.IP()), zap.String("reason", msg))
				return badRequest(c, "path "+msg)
			}

		case sampleRoute:
			var req struct {
				Text  string `json:"text"`
				Label string `json:"label"`
			}
			if err := json.Unmarshal(c.Body(), &req); err != nil {
				return badRequest(c, "Invalid JSON format")
			}
			if msg := checkText(req.Text, cfg.MaxSampleLength); msg != "" {
				return badRequest(c, "text "+msg)
			}
			if msg := checkText(req.Label, cfg.MaxLabelLength); msg != "" {
				return badRequest(c, "label "+msg)
			}
		}

		return c.Next()
	}
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error": msg,
	})
}

func allowedType(contentType string, allowed []string) bool {
	for _, t := range allowed {
		if strings.Contains(contentType, t) {
			return true
		}
	}
	return false
}

// checkText returns a reason the value is unacceptable, or "".
func checkText(s string, maxLen int) string {
	switch {
	case !utf8.ValidString(s):
		return "is not valid UTF-8"
	case strings.ContainsRune(s, 0):
		return "contains a NUL byte"
	case len(s) > maxLen:
		return "exceeds maximum length"
	}
	return ""
}
