package handlers

import (
	"errors"
	"strconv"

	"github.com/amaumene/sequelarr/internal/models"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
)

// NotificationsHandler serves a user's notification feed
type NotificationsHandler struct {
	db     *models.Database
	logger zerolog.Logger
}

// NewNotificationsHandler creates a new notifications handler
func NewNotificationsHandler(db *models.Database, logger zerolog.Logger) *NotificationsHandler {
	return &NotificationsHandler{db: db, logger: logger}
}

// List returns a user's notifications, newest first
func (h *NotificationsHandler) List(c *fiber.Ctx) error {
	userID := c.Params("userID")
	unreadOnly := c.QueryBool("unread", false)
	limit := c.QueryInt("limit", 50)
	if limit < 1 || limit > 200 {
		limit = 50
	}
	offset := c.QueryInt("offset", 0)
	if offset < 0 {
		offset = 0
	}

	notifications, err := h.db.ListNotifications(userID, unreadOnly, limit, offset)
	if err != nil {
		h.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to list notifications")
		return fiber.NewError(fiber.StatusInternalServerError, "failed to list notifications")
	}

	return c.JSON(fiber.Map{
		"notifications": notifications,
		"count":         len(notifications),
	})
}

// UnreadCount returns the number of unread notifications
func (h *NotificationsHandler) UnreadCount(c *fiber.Ctx) error {
	userID := c.Params("userID")

	count, err := h.db.UnreadCount(userID)
	if err != nil {
		h.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to count unread notifications")
		return fiber.NewError(fiber.StatusInternalServerError, "failed to count notifications")
	}

	return c.JSON(fiber.Map{"unread": count})
}

// MarkRead marks a single notification read
func (h *NotificationsHandler) MarkRead(c *fiber.Ctx) error {
	userID := c.Params("userID")
	id, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid notification id")
	}

	if err := h.db.MarkRead(id, userID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "notification not found")
		}
		h.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to mark notification read")
		return fiber.NewError(fiber.StatusInternalServerError, "failed to mark notification read")
	}

	return c.JSON(fiber.Map{"read": true})
}

// MarkAllRead marks every unread notification read
func (h *NotificationsHandler) MarkAllRead(c *fiber.Ctx) error {
	userID := c.Params("userID")

	updated, err := h.db.MarkAllRead(userID)
	if err != nil {
		h.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to mark notifications read")
		return fiber.NewError(fiber.StatusInternalServerError, "failed to mark notifications read")
	}

	return c.JSON(fiber.Map{"updated": updated})
}
