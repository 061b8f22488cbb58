package controllers

import (
	"context"
	"errors"
	"fmt"

	"github.com/amaumene/sequelarr/internal/metrics"
	"github.com/amaumene/sequelarr/internal/models"
	"github.com/amaumene/sequelarr/internal/notify"
	"github.com/amaumene/sequelarr/internal/services/mailer"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
)

// SweepResult summarizes one dispatch sweep
type SweepResult struct {
	Dispatched int `json:"dispatched"`
	Suppressed int `json:"suppressed"`
	Skipped    int `json:"skipped"`
	Failed     int `json:"failed"`
}

// DispatchController converts pending monitoring entries into notifications.
// Safe to run from concurrent sweeps: the per-entry transaction guards the
// pending->notified transition.
type DispatchController struct {
	db       *models.Database
	tokens   *notify.TokenIssuer
	sender   mailer.Sender // nil disables email delivery
	unsubURL string
	logger   zerolog.Logger
}

// NewDispatchController creates a new dispatch controller. sender may be
// nil, in which case notifications are in-app only.
func NewDispatchController(db *models.Database, tokens *notify.TokenIssuer, sender mailer.Sender, publicURL string, logger zerolog.Logger) *DispatchController {
	return &DispatchController{
		db:       db,
		tokens:   tokens,
		sender:   sender,
		unsubURL: publicURL + "/unsubscribe",
		logger:   logger,
	}
}

// Sweep processes all pending monitoring entries. Per-entry failures are
// counted and logged without aborting the sweep; a storage failure listing
// the entries aborts with an error.
func (c *DispatchController) Sweep(ctx context.Context) (*SweepResult, error) {
	ctx, span := otel.Tracer("sequelarr/pipeline").Start(ctx, "dispatch.sweep")
	defer span.End()

	entries, err := c.db.GetPendingEntries(0)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending entries: %w", err)
	}

	result := &SweepResult{}
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		switch err := c.processEntry(ctx, entry); {
		case err == nil:
			result.Dispatched++
		case errors.Is(err, errSuppressed):
			result.Suppressed++
		case errors.Is(err, errGated):
			result.Skipped++
		case errors.Is(err, models.ErrAlreadyDispatched):
			// A concurrent sweep finalized this entry first.
			result.Skipped++
		default:
			result.Failed++
			c.logger.Error().Err(err).
				Uint64("entry_id", entry.ID).
				Str("user_id", entry.UserID).
				Msg("Failed to dispatch monitoring entry")
		}
	}

	c.logger.Info().
		Int("dispatched", result.Dispatched).
		Int("suppressed", result.Suppressed).
		Int("skipped", result.Skipped).
		Int("failed", result.Failed).
		Msg("Dispatch sweep completed")

	return result, nil
}

// Sentinel outcomes inside a sweep, never returned to callers.
var (
	errGated      = errors.New("notification gated by preferences")
	errSuppressed = errors.New("successor already consumed")
)

func (c *DispatchController) processEntry(ctx context.Context, entry *models.MonitoringEntry) error {
	prefs, err := c.db.GetOrCreatePreferences(entry.UserID)
	if err != nil {
		return err
	}

	// Gated entries stay pending and retry on a future sweep once the
	// preference is re-enabled.
	if !prefs.InAppEnabled || !prefs.CategoryEnabled(models.CategorySequelDetected) {
		c.logger.Debug().
			Str("user_id", entry.UserID).
			Uint64("entry_id", entry.ID).
			Msg("Notification disabled by preference, leaving entry pending")
		return errGated
	}

	consumed, err := c.db.HasConsumed(entry.UserID, entry.SuccessorMediaID)
	if err != nil {
		return err
	}
	if consumed {
		// The user found the successor on their own: close the entry
		// without notifying.
		if err := c.db.FinalizeEntry(entry.ID, nil); err != nil {
			return err
		}
		metrics.NotificationsSuppressed.Inc()
		c.logger.Info().
			Str("user_id", entry.UserID).
			Uint64("entry_id", entry.ID).
			Msg("Suppressed notification for already-consumed successor")
		return errSuppressed
	}

	source, err := c.db.GetMediaByID(entry.SourceMediaID)
	if err != nil {
		return err
	}
	successor, err := c.db.GetMediaByID(entry.SuccessorMediaID)
	if err != nil {
		return err
	}

	token, err := c.tokens.Issue(entry.UserID, models.CategorySequelDetected)
	if err != nil {
		return err
	}

	notification := &models.Notification{
		UserID:           entry.UserID,
		Category:         models.CategorySequelDetected,
		Title:            fmt.Sprintf("New release: %s", successor.Title),
		Message:          fmt.Sprintf("We found a follow-up to %q that you watched.", source.Title),
		SourceMediaID:    &entry.SourceMediaID,
		SuccessorMediaID: &entry.SuccessorMediaID,
		Payload: map[string]any{
			"confidence":      entry.Confidence,
			"match_type":      string(entry.MatchType),
			"source_title":    source.Title,
			"successor_title": successor.Title,
			"platform":        successor.Platform,
		},
		UnsubscribeToken: token,
	}

	// Notification creation and the notified flip share one transaction;
	// a concurrent sweep loses with ErrAlreadyDispatched.
	if err := c.db.FinalizeEntry(entry.ID, notification); err != nil {
		return err
	}
	metrics.NotificationsCreated.Inc()

	c.logger.Info().
		Str("user_id", entry.UserID).
		Uint64("entry_id", entry.ID).
		Str("successor", successor.Title).
		Msg("Notification created")

	c.sendEmail(ctx, prefs, notification, source, successor, token)
	return nil
}

// sendEmail requests delivery from the email collaborator. Fire-and-forget:
// failures are logged and never roll back the notification or the notified
// flag. A missed email beats a re-triggered duplicate notification.
func (c *DispatchController) sendEmail(ctx context.Context, prefs *models.NotificationPreference, notification *models.Notification, source, successor *models.Media, token string) {
	if c.sender == nil || !prefs.EmailEnabled {
		return
	}

	contact, err := c.db.GetUserContact(prefs.UserID)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			c.logger.Warn().Err(err).Str("user_id", prefs.UserID).Msg("Failed to resolve user contact")
		}
		return
	}

	var releaseDate string
	if successor.ReleaseDate != nil {
		releaseDate = successor.ReleaseDate.Format("2006-01-02")
	}
	var posterURL string
	if v, ok := successor.Metadata["poster_url"].(string); ok {
		posterURL = v
	}

	msg := mailer.Message{
		To:             contact.Email,
		ToName:         contact.DisplayName,
		SuccessorTitle: successor.Title,
		OriginalTitle:  source.Title,
		Platform:       successor.Platform,
		ReleaseDate:    releaseDate,
		PosterURL:      posterURL,
		UnsubscribeURL: c.unsubURL + "?token=" + token,
	}

	if err := c.sender.Send(ctx, msg); err != nil {
		metrics.EmailFailures.Inc()
		c.logger.Warn().Err(err).
			Str("user_id", prefs.UserID).
			Uint64("notification_id", notification.ID).
			Msg("Failed to send notification email")
		return
	}

	if err := c.db.MarkEmailed(notification.ID); err != nil {
		c.logger.Warn().Err(err).
			Uint64("notification_id", notification.ID).
			Msg("Failed to record email delivery")
	}
}
