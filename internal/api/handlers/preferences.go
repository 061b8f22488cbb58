package handlers

import (
	"github.com/amaumene/sequelarr/internal/models"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
)

// PreferencesHandler manages per-user notification preferences
type PreferencesHandler struct {
	db     *models.Database
	logger zerolog.Logger
}

// NewPreferencesHandler creates a new preferences handler
func NewPreferencesHandler(db *models.Database, logger zerolog.Logger) *PreferencesHandler {
	return &PreferencesHandler{db: db, logger: logger}
}

// Get returns the user's preferences, creating the default row on first touch
func (h *PreferencesHandler) Get(c *fiber.Ctx) error {
	userID := c.Params("userID")

	prefs, err := h.db.GetOrCreatePreferences(userID)
	if err != nil {
		h.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to load preferences")
		return fiber.NewError(fiber.StatusInternalServerError, "failed to load preferences")
	}

	return c.JSON(prefs)
}

type preferencesRequest struct {
	EmailEnabled *bool            `json:"email_enabled"`
	InAppEnabled *bool            `json:"in_app_enabled"`
	Categories   map[string]*bool `json:"categories"`
}

// Update applies a partial preference update; absent fields keep their value
func (h *PreferencesHandler) Update(c *fiber.Ctx) error {
	userID := c.Params("userID")

	var req preferencesRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	for name := range req.Categories {
		if !models.ValidCategory(models.Category(name)) {
			return fiber.NewError(fiber.StatusBadRequest, "unknown category: "+name)
		}
	}

	prefs, err := h.db.GetOrCreatePreferences(userID)
	if err != nil {
		h.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to load preferences")
		return fiber.NewError(fiber.StatusInternalServerError, "failed to load preferences")
	}

	if req.EmailEnabled != nil {
		prefs.EmailEnabled = *req.EmailEnabled
	}
	if req.InAppEnabled != nil {
		prefs.InAppEnabled = *req.InAppEnabled
	}
	for name, enabled := range req.Categories {
		if enabled != nil {
			prefs.SetCategory(models.Category(name), *enabled)
		}
	}

	if err := h.db.UpdatePreferences(prefs); err != nil {
		h.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to update preferences")
		return fiber.NewError(fiber.StatusInternalServerError, "failed to update preferences")
	}

	h.logger.Info().Str("user_id", userID).Msg("Updated notification preferences")
	return c.JSON(prefs)
}
