package handlers

import (
	"errors"
	"strings"

	"github.com/amaumene/sequelarr/internal/models"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
)

// ContactHandler manages the email contact projection kept for delivery.
// Account identity lives elsewhere; this is only the address we mail.
type ContactHandler struct {
	db     *models.Database
	logger zerolog.Logger
}

// NewContactHandler creates a new contact handler
func NewContactHandler(db *models.Database, logger zerolog.Logger) *ContactHandler {
	return &ContactHandler{db: db, logger: logger}
}

// Get returns the stored contact for a user
func (h *ContactHandler) Get(c *fiber.Ctx) error {
	userID := c.Params("userID")

	contact, err := h.db.GetUserContact(userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "no contact on file")
		}
		h.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to load contact")
		return fiber.NewError(fiber.StatusInternalServerError, "failed to load contact")
	}

	return c.JSON(contact)
}

type contactRequest struct {
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
}

// Put stores or replaces the contact for a user
func (h *ContactHandler) Put(c *fiber.Ctx) error {
	userID := c.Params("userID")

	var req contactRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || !strings.Contains(req.Email, "@") {
		return fiber.NewError(fiber.StatusBadRequest, "a valid email is required")
	}

	contact := &models.UserContact{
		UserID:      userID,
		Email:       req.Email,
		DisplayName: req.DisplayName,
	}
	if err := h.db.UpsertUserContact(contact); err != nil {
		h.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to store contact")
		return fiber.NewError(fiber.StatusInternalServerError, "failed to store contact")
	}

	return c.JSON(contact)
}
