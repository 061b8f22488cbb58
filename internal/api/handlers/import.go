package handlers

import (
	"time"

	"github.com/amaumene/sequelarr/internal/controllers"
	"github.com/amaumene/sequelarr/internal/models"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
)

const maxBatchSize = 1000

// ImportHandler accepts consumption batches and runs the detection pipeline
type ImportHandler struct {
	ingest   *controllers.IngestController
	dispatch *controllers.DispatchController
	logger   zerolog.Logger
}

// NewImportHandler creates a new import handler
func NewImportHandler(ingest *controllers.IngestController, dispatch *controllers.DispatchController, logger zerolog.Logger) *ImportHandler {
	return &ImportHandler{ingest: ingest, dispatch: dispatch, logger: logger}
}

type importItem struct {
	Title      string `json:"title"`
	Platform   string `json:"platform"`
	Status     string `json:"status"`
	ConsumedAt string `json:"consumed_at"`
}

type importRequest struct {
	UserID string       `json:"user_id"`
	Items  []importItem `json:"items"`
}

// Import processes a batch of consumption records for one user
func (h *ImportHandler) Import(c *fiber.Ctx) error {
	var req importRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if req.UserID == "" {
		return fiber.NewError(fiber.StatusBadRequest, "user_id is required")
	}
	if len(req.Items) == 0 {
		return fiber.NewError(fiber.StatusBadRequest, "items is required")
	}
	if len(req.Items) > maxBatchSize {
		return fiber.NewError(fiber.StatusRequestEntityTooLarge, "batch exceeds 1000 items")
	}

	records := make([]controllers.ImportRecord, 0, len(req.Items))
	for _, item := range req.Items {
		record := controllers.ImportRecord{
			UserID:   req.UserID,
			Title:    item.Title,
			Platform: item.Platform,
			Status:   models.ConsumptionStatus(item.Status),
		}
		if item.ConsumedAt != "" {
			if t, err := time.Parse(time.RFC3339, item.ConsumedAt); err == nil {
				record.ConsumedAt = &t
			}
		}
		records = append(records, record)
	}

	result, err := h.ingest.ProcessBatch(c.Context(), records)
	if err != nil {
		h.logger.Error().Err(err).Str("user_id", req.UserID).Msg("Import batch aborted")
		return fiber.NewError(fiber.StatusServiceUnavailable, "import batch aborted, retry later")
	}

	return c.JSON(result)
}

// Sweep triggers a dispatch sweep outside the schedule
func (h *ImportHandler) Sweep(c *fiber.Ctx) error {
	result, err := h.dispatch.Sweep(c.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Manual dispatch sweep failed")
		return fiber.NewError(fiber.StatusInternalServerError, "sweep failed")
	}
	return c.JSON(result)
}
