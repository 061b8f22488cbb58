package handlers

import (
	"errors"

	"github.com/amaumene/sequelarr/internal/models"
	"github.com/amaumene/sequelarr/internal/notify"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
)

// UnsubscribeHandler disables a notification category via a stateless
// token. Idempotent: re-submitting the same token is a no-op.
type UnsubscribeHandler struct {
	db     *models.Database
	tokens *notify.TokenIssuer
	logger zerolog.Logger
}

// NewUnsubscribeHandler creates a new unsubscribe handler
func NewUnsubscribeHandler(db *models.Database, tokens *notify.TokenIssuer, logger zerolog.Logger) *UnsubscribeHandler {
	return &UnsubscribeHandler{db: db, tokens: tokens, logger: logger}
}

// Handle verifies the token and disables exactly the claimed category
func (h *UnsubscribeHandler) Handle(c *fiber.Ctx) error {
	token := c.Query("token")
	if token == "" {
		var body struct {
			Token string `json:"token"`
		}
		if err := c.BodyParser(&body); err == nil {
			token = body.Token
		}
	}
	if token == "" {
		return fiber.NewError(fiber.StatusBadRequest, "token is required")
	}

	userID, category, err := h.tokens.Verify(token)
	if err != nil {
		if errors.Is(err, notify.ErrInvalidToken) {
			h.logger.Warn().Err(err).Msg("Rejected unsubscribe token")
			return fiber.NewError(fiber.StatusBadRequest, "invalid or expired token")
		}
		return fiber.NewError(fiber.StatusInternalServerError, "failed to verify token")
	}

	if err := h.db.DisableCategory(userID, category); err != nil {
		h.logger.Error().Err(err).
			Str("user_id", userID).
			Str("category", string(category)).
			Msg("Failed to disable notification category")
		return fiber.NewError(fiber.StatusInternalServerError, "failed to update preferences")
	}

	h.logger.Info().
		Str("user_id", userID).
		Str("category", string(category)).
		Msg("User unsubscribed from category")

	return c.JSON(fiber.Map{
		"unsubscribed": true,
		"category":     category,
	})
}
