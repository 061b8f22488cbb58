package handlers

import (
	"github.com/amaumene/sequelarr/internal/models"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
)

// StatusHandler reports aggregate pipeline statistics
type StatusHandler struct {
	db     *models.Database
	logger zerolog.Logger
}

// NewStatusHandler creates a new status handler
func NewStatusHandler(db *models.Database, logger zerolog.Logger) *StatusHandler {
	return &StatusHandler{db: db, logger: logger}
}

// Handle responds with store row counts
func (h *StatusHandler) Handle(c *fiber.Ctx) error {
	counts, err := h.db.GetCounts()
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to load status counts")
		return fiber.NewError(fiber.StatusInternalServerError, "failed to load status")
	}
	return c.JSON(counts)
}
