package controllers

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/amaumene/sequelarr/internal/models"
	"github.com/amaumene/sequelarr/internal/notify"
	"github.com/amaumene/sequelarr/internal/services/mailer"
	"github.com/amaumene/sequelarr/internal/titles"
	"github.com/rs/zerolog"
)

func newTestDB(t *testing.T) *models.Database {
	t.Helper()
	db, err := models.NewDatabase(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestIssuer(t *testing.T) *notify.TokenIssuer {
	t.Helper()
	issuer, err := notify.NewTokenIssuer("test-secret", time.Hour)
	if err != nil {
		t.Fatalf("Failed to create token issuer: %v", err)
	}
	return issuer
}

func intPtr(n int) *int { return &n }

func timePtr(t time.Time) *time.Time { return &t }

func seedMedia(t *testing.T, db *models.Database, media *models.Media) *models.Media {
	t.Helper()
	if err := db.CreateMedia(media); err != nil {
		t.Fatalf("Failed to seed media: %v", err)
	}
	return media
}

// fakeSender captures outgoing email messages
type fakeSender struct {
	mu       sync.Mutex
	messages []mailer.Message
	err      error
}

func (f *fakeSender) Send(ctx context.Context, msg mailer.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, msg)
	return nil
}

func TestFindSuccessorNextSeason(t *testing.T) {
	db := newTestDB(t)
	detect := NewDetectionController(db, titles.NewParser(), zerolog.Nop())

	source := seedMedia(t, db, &models.Media{
		Title: "Breaking Bad: Season 2", MediaType: models.MediaTypeTV,
		BaseTitle: "breaking bad", SeasonNumber: intPtr(2),
	})
	seedMedia(t, db, &models.Media{
		Title: "Breaking Bad: Season 4", MediaType: models.MediaTypeTV,
		BaseTitle: "breaking bad", SeasonNumber: intPtr(4),
	})
	s3 := seedMedia(t, db, &models.Media{
		Title: "Breaking Bad: Season 3", MediaType: models.MediaTypeTV,
		BaseTitle: "breaking bad", SeasonNumber: intPtr(3),
	})

	candidate, err := detect.FindSuccessor("user-1", source)
	if err != nil {
		t.Fatalf("FindSuccessor failed: %v", err)
	}
	if candidate == nil {
		t.Fatal("Expected a candidate, got nil")
	}
	if candidate.Media.ID != s3.ID {
		t.Errorf("Expected season 3 (id %d), got id %d", s3.ID, candidate.Media.ID)
	}
	if candidate.Confidence != 1.0 {
		t.Errorf("Expected confidence 1.0, got %f", candidate.Confidence)
	}
	if candidate.MatchType != models.MatchSeasonIncrement {
		t.Errorf("Expected match type %q, got %q", models.MatchSeasonIncrement, candidate.MatchType)
	}
}

func TestFindSuccessorExactTitleOnly(t *testing.T) {
	db := newTestDB(t)
	detect := NewDetectionController(db, titles.NewParser(), zerolog.Nop())

	source := seedMedia(t, db, &models.Media{
		Title: "Breaking Bad: Season 2", MediaType: models.MediaTypeTV,
		BaseTitle: "breaking bad", SeasonNumber: intPtr(2),
	})
	// Similar but distinct base title: must not match.
	seedMedia(t, db, &models.Media{
		Title: "Breaking Badly: Season 3", MediaType: models.MediaTypeTV,
		BaseTitle: "breaking badly", SeasonNumber: intPtr(3),
	})

	candidate, err := detect.FindSuccessor("user-1", source)
	if err != nil {
		t.Fatalf("FindSuccessor failed: %v", err)
	}
	if candidate != nil {
		t.Errorf("Expected no candidate for distinct base title, got %q", candidate.Media.Title)
	}
}

func TestFindSuccessorNextRelease(t *testing.T) {
	db := newTestDB(t)
	detect := NewDetectionController(db, titles.NewParser(), zerolog.Nop())

	source := seedMedia(t, db, &models.Media{
		Title: "The Grand Tour (2016)", MediaType: models.MediaTypeMovie,
		BaseTitle:   "grand tour",
		ReleaseDate: timePtr(time.Date(2016, 11, 18, 0, 0, 0, 0, time.UTC)),
	})
	later := seedMedia(t, db, &models.Media{
		Title: "The Grand Tour (2019)", MediaType: models.MediaTypeMovie,
		BaseTitle:   "grand tour",
		ReleaseDate: timePtr(time.Date(2019, 1, 18, 0, 0, 0, 0, time.UTC)),
	})
	// Earlier release must not be proposed.
	seedMedia(t, db, &models.Media{
		Title: "The Grand Tour (2014)", MediaType: models.MediaTypeMovie,
		BaseTitle:   "grand tour",
		ReleaseDate: timePtr(time.Date(2014, 5, 1, 0, 0, 0, 0, time.UTC)),
	})

	candidate, err := detect.FindSuccessor("user-1", source)
	if err != nil {
		t.Fatalf("FindSuccessor failed: %v", err)
	}
	if candidate == nil {
		t.Fatal("Expected a candidate, got nil")
	}
	if candidate.Media.ID != later.ID {
		t.Errorf("Expected next release id %d, got %d", later.ID, candidate.Media.ID)
	}
	if candidate.MatchType != models.MatchNextRelease {
		t.Errorf("Expected match type %q, got %q", models.MatchNextRelease, candidate.MatchType)
	}
}

func TestFindSuccessorNoReleaseDate(t *testing.T) {
	db := newTestDB(t)
	detect := NewDetectionController(db, titles.NewParser(), zerolog.Nop())

	source := seedMedia(t, db, &models.Media{
		Title: "Some Documentary", MediaType: models.MediaTypeMovie,
		BaseTitle: "some documentary",
	})

	candidate, err := detect.FindSuccessor("user-1", source)
	if err != nil {
		t.Fatalf("FindSuccessor failed: %v", err)
	}
	if candidate != nil {
		t.Error("Expected no candidate without a release date ordering")
	}
}

func TestRecordCandidateDeduplication(t *testing.T) {
	db := newTestDB(t)
	monitor := NewMonitorController(db, zerolog.Nop())

	source := seedMedia(t, db, &models.Media{Title: "Dark: Season 1", BaseTitle: "dark", SeasonNumber: intPtr(1)})
	successor := seedMedia(t, db, &models.Media{Title: "Dark: Season 2", BaseTitle: "dark", SeasonNumber: intPtr(2)})

	candidate := &Candidate{Media: successor, Confidence: 1.0, MatchType: models.MatchSeasonIncrement}

	first, err := monitor.RecordCandidate("user-1", source.ID, candidate)
	if err != nil {
		t.Fatalf("First RecordCandidate failed: %v", err)
	}
	second, err := monitor.RecordCandidate("user-1", source.ID, candidate)
	if err != nil {
		t.Fatalf("Second RecordCandidate failed: %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("Expected same entry, got ids %d and %d", first.ID, second.ID)
	}

	entries, err := db.GetPendingEntries(0)
	if err != nil {
		t.Fatalf("GetPendingEntries failed: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("Expected 1 pending entry, got %d", len(entries))
	}

	// A different user gets their own entry.
	if _, err := monitor.RecordCandidate("user-2", source.ID, candidate); err != nil {
		t.Fatalf("RecordCandidate for second user failed: %v", err)
	}
	entries, _ = db.GetPendingEntries(0)
	if len(entries) != 2 {
		t.Errorf("Expected 2 pending entries across users, got %d", len(entries))
	}
}

func TestRecordCandidateConcurrent(t *testing.T) {
	db := newTestDB(t)
	monitor := NewMonitorController(db, zerolog.Nop())

	source := seedMedia(t, db, &models.Media{Title: "Dark: Season 1", BaseTitle: "dark", SeasonNumber: intPtr(1)})
	successor := seedMedia(t, db, &models.Media{Title: "Dark: Season 2", BaseTitle: "dark", SeasonNumber: intPtr(2)})
	candidate := &Candidate{Media: successor, Confidence: 1.0, MatchType: models.MatchSeasonIncrement}

	var wg sync.WaitGroup
	errs := make(chan error, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := monitor.RecordCandidate("user-1", source.ID, candidate); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("Concurrent RecordCandidate failed: %v", err)
	}

	entries, err := db.GetPendingEntries(0)
	if err != nil {
		t.Fatalf("GetPendingEntries failed: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("Expected concurrent inserts to collapse to 1 entry, got %d", len(entries))
	}
}

func TestSweepCreatesNotification(t *testing.T) {
	db := newTestDB(t)
	issuer := newTestIssuer(t)
	monitor := NewMonitorController(db, zerolog.Nop())
	dispatch := NewDispatchController(db, issuer, nil, "http://localhost:8080", zerolog.Nop())

	source := seedMedia(t, db, &models.Media{Title: "Dark: Season 1", BaseTitle: "dark", SeasonNumber: intPtr(1)})
	successor := seedMedia(t, db, &models.Media{Title: "Dark: Season 2", BaseTitle: "dark", SeasonNumber: intPtr(2), Platform: "netflix"})
	if _, err := monitor.RecordCandidate("user-1", source.ID, &Candidate{
		Media: successor, Confidence: 1.0, MatchType: models.MatchSeasonIncrement,
	}); err != nil {
		t.Fatalf("RecordCandidate failed: %v", err)
	}

	result, err := dispatch.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if result.Dispatched != 1 {
		t.Fatalf("Expected 1 dispatched, got %+v", result)
	}

	notifications, err := db.ListNotifications("user-1", false, 10, 0)
	if err != nil {
		t.Fatalf("ListNotifications failed: %v", err)
	}
	if len(notifications) != 1 {
		t.Fatalf("Expected 1 notification, got %d", len(notifications))
	}
	n := notifications[0]
	if n.Category != models.CategorySequelDetected {
		t.Errorf("Expected category %q, got %q", models.CategorySequelDetected, n.Category)
	}
	if n.UnsubscribeToken == "" {
		t.Fatal("Expected an unsubscribe token")
	}
	userID, category, err := issuer.Verify(n.UnsubscribeToken)
	if err != nil {
		t.Fatalf("Token from notification failed verification: %v", err)
	}
	if userID != "user-1" || category != models.CategorySequelDetected {
		t.Errorf("Token claims mismatch: user %q category %q", userID, category)
	}

	// A second sweep finds nothing pending.
	result, err = dispatch.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Second sweep failed: %v", err)
	}
	if result.Dispatched != 0 {
		t.Errorf("Expected nothing to dispatch on second sweep, got %+v", result)
	}
	notifications, _ = db.ListNotifications("user-1", false, 10, 0)
	if len(notifications) != 1 {
		t.Errorf("Expected notification count to stay at 1, got %d", len(notifications))
	}
}

func TestSweepPreferenceGating(t *testing.T) {
	db := newTestDB(t)
	issuer := newTestIssuer(t)
	monitor := NewMonitorController(db, zerolog.Nop())
	dispatch := NewDispatchController(db, issuer, nil, "http://localhost:8080", zerolog.Nop())

	source := seedMedia(t, db, &models.Media{Title: "Dark: Season 1", BaseTitle: "dark", SeasonNumber: intPtr(1)})
	successor := seedMedia(t, db, &models.Media{Title: "Dark: Season 2", BaseTitle: "dark", SeasonNumber: intPtr(2)})
	if _, err := monitor.RecordCandidate("user-1", source.ID, &Candidate{
		Media: successor, Confidence: 1.0, MatchType: models.MatchSeasonIncrement,
	}); err != nil {
		t.Fatalf("RecordCandidate failed: %v", err)
	}

	if err := db.DisableCategory("user-1", models.CategorySequelDetected); err != nil {
		t.Fatalf("DisableCategory failed: %v", err)
	}

	result, err := dispatch.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if result.Skipped != 1 || result.Dispatched != 0 {
		t.Fatalf("Expected gated entry to be skipped, got %+v", result)
	}
	if notifications, _ := db.ListNotifications("user-1", false, 10, 0); len(notifications) != 0 {
		t.Fatalf("Expected no notifications while gated, got %d", len(notifications))
	}

	// Gated entries stay pending and dispatch after re-enabling.
	prefs, err := db.GetOrCreatePreferences("user-1")
	if err != nil {
		t.Fatalf("GetOrCreatePreferences failed: %v", err)
	}
	prefs.SetCategory(models.CategorySequelDetected, true)
	if err := db.UpdatePreferences(prefs); err != nil {
		t.Fatalf("UpdatePreferences failed: %v", err)
	}

	result, err = dispatch.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep after re-enable failed: %v", err)
	}
	if result.Dispatched != 1 {
		t.Fatalf("Expected 1 dispatched after re-enable, got %+v", result)
	}
}

func TestSweepSuppressesConsumedSuccessor(t *testing.T) {
	db := newTestDB(t)
	issuer := newTestIssuer(t)
	monitor := NewMonitorController(db, zerolog.Nop())
	dispatch := NewDispatchController(db, issuer, nil, "http://localhost:8080", zerolog.Nop())

	source := seedMedia(t, db, &models.Media{Title: "Dark: Season 1", BaseTitle: "dark", SeasonNumber: intPtr(1)})
	successor := seedMedia(t, db, &models.Media{Title: "Dark: Season 2", BaseTitle: "dark", SeasonNumber: intPtr(2)})
	if _, err := monitor.RecordCandidate("user-1", source.ID, &Candidate{
		Media: successor, Confidence: 1.0, MatchType: models.MatchSeasonIncrement,
	}); err != nil {
		t.Fatalf("RecordCandidate failed: %v", err)
	}

	// The user watched the successor before the sweep ran.
	if _, err := db.UpsertConsumption(&models.UserMedia{
		UserID: "user-1", MediaID: successor.ID, Status: models.ConsumptionWatched,
	}); err != nil {
		t.Fatalf("UpsertConsumption failed: %v", err)
	}

	result, err := dispatch.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if result.Suppressed != 1 || result.Dispatched != 0 {
		t.Fatalf("Expected suppression, got %+v", result)
	}
	if notifications, _ := db.ListNotifications("user-1", false, 10, 0); len(notifications) != 0 {
		t.Errorf("Expected no notifications, got %d", len(notifications))
	}
	// The entry is closed, not retried.
	if entries, _ := db.GetPendingEntries(0); len(entries) != 0 {
		t.Errorf("Expected no pending entries after suppression, got %d", len(entries))
	}
}

func TestSweepSendsEmail(t *testing.T) {
	db := newTestDB(t)
	issuer := newTestIssuer(t)
	sender := &fakeSender{}
	monitor := NewMonitorController(db, zerolog.Nop())
	dispatch := NewDispatchController(db, issuer, sender, "https://sequelarr.example.com", zerolog.Nop())

	source := seedMedia(t, db, &models.Media{Title: "Dark: Season 1", BaseTitle: "dark", SeasonNumber: intPtr(1)})
	successor := seedMedia(t, db, &models.Media{Title: "Dark: Season 2", BaseTitle: "dark", SeasonNumber: intPtr(2), Platform: "netflix"})
	if _, err := monitor.RecordCandidate("user-1", source.ID, &Candidate{
		Media: successor, Confidence: 1.0, MatchType: models.MatchSeasonIncrement,
	}); err != nil {
		t.Fatalf("RecordCandidate failed: %v", err)
	}
	if err := db.UpsertUserContact(&models.UserContact{
		UserID: "user-1", Email: "user@example.com", DisplayName: "User One",
	}); err != nil {
		t.Fatalf("UpsertUserContact failed: %v", err)
	}

	if _, err := dispatch.Sweep(context.Background()); err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}

	if len(sender.messages) != 1 {
		t.Fatalf("Expected 1 email, got %d", len(sender.messages))
	}
	msg := sender.messages[0]
	if msg.To != "user@example.com" {
		t.Errorf("Expected recipient user@example.com, got %q", msg.To)
	}
	if msg.SuccessorTitle != "Dark: Season 2" {
		t.Errorf("Expected successor title in email, got %q", msg.SuccessorTitle)
	}
	if msg.UnsubscribeURL == "" {
		t.Fatal("Expected an unsubscribe URL in the email")
	}

	notifications, _ := db.ListNotifications("user-1", false, 10, 0)
	if len(notifications) != 1 || !notifications[0].Emailed {
		t.Error("Expected notification marked emailed")
	}
}

func TestSweepEmailFailureDoesNotBlockNotification(t *testing.T) {
	db := newTestDB(t)
	issuer := newTestIssuer(t)
	sender := &fakeSender{err: errors.New("smtp down")}
	monitor := NewMonitorController(db, zerolog.Nop())
	dispatch := NewDispatchController(db, issuer, sender, "http://localhost:8080", zerolog.Nop())

	source := seedMedia(t, db, &models.Media{Title: "Dark: Season 1", BaseTitle: "dark", SeasonNumber: intPtr(1)})
	successor := seedMedia(t, db, &models.Media{Title: "Dark: Season 2", BaseTitle: "dark", SeasonNumber: intPtr(2)})
	if _, err := monitor.RecordCandidate("user-1", source.ID, &Candidate{
		Media: successor, Confidence: 1.0, MatchType: models.MatchSeasonIncrement,
	}); err != nil {
		t.Fatalf("RecordCandidate failed: %v", err)
	}
	if err := db.UpsertUserContact(&models.UserContact{UserID: "user-1", Email: "user@example.com"}); err != nil {
		t.Fatalf("UpsertUserContact failed: %v", err)
	}

	result, err := dispatch.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if result.Dispatched != 1 {
		t.Fatalf("Expected dispatch despite email failure, got %+v", result)
	}

	notifications, _ := db.ListNotifications("user-1", false, 10, 0)
	if len(notifications) != 1 {
		t.Fatalf("Expected 1 notification, got %d", len(notifications))
	}
	if notifications[0].Emailed {
		t.Error("Expected notification not marked emailed after send failure")
	}
}

func TestFinalizeEntryOnlyOnce(t *testing.T) {
	db := newTestDB(t)
	monitor := NewMonitorController(db, zerolog.Nop())

	source := seedMedia(t, db, &models.Media{Title: "Dark: Season 1", BaseTitle: "dark", SeasonNumber: intPtr(1)})
	successor := seedMedia(t, db, &models.Media{Title: "Dark: Season 2", BaseTitle: "dark", SeasonNumber: intPtr(2)})
	entry, err := monitor.RecordCandidate("user-1", source.ID, &Candidate{
		Media: successor, Confidence: 1.0, MatchType: models.MatchSeasonIncrement,
	})
	if err != nil {
		t.Fatalf("RecordCandidate failed: %v", err)
	}

	if err := db.FinalizeEntry(entry.ID, nil); err != nil {
		t.Fatalf("First FinalizeEntry failed: %v", err)
	}
	if err := db.FinalizeEntry(entry.ID, nil); !errors.Is(err, models.ErrAlreadyDispatched) {
		t.Errorf("Expected ErrAlreadyDispatched, got %v", err)
	}
}

func TestProcessBatchEndToEnd(t *testing.T) {
	db := newTestDB(t)
	issuer := newTestIssuer(t)
	parser := titles.NewParser()
	detect := NewDetectionController(db, parser, zerolog.Nop())
	monitor := NewMonitorController(db, zerolog.Nop())
	ingest := NewIngestController(db, parser, nil, detect, monitor, zerolog.Nop())
	dispatch := NewDispatchController(db, issuer, nil, "http://localhost:8080", zerolog.Nop())

	// Catalog already knows season 3.
	seedMedia(t, db, &models.Media{
		Title: "Breaking Bad: Season 3", MediaType: models.MediaTypeTV,
		BaseTitle: "breaking bad", SeasonNumber: intPtr(3),
	})

	result, err := ingest.ProcessBatch(context.Background(), []ImportRecord{
		{UserID: "user-1", Title: "Breaking Bad: Season 2", Platform: "netflix"},
		{UserID: "user-1", Title: "   "}, // unparseable, skipped
		{UserID: "user-1", Title: "Standalone Film (2020)"},
	})
	if err != nil {
		t.Fatalf("ProcessBatch failed: %v", err)
	}
	if result.Matched != 1 {
		t.Errorf("Expected 1 matched record, got %+v", result)
	}
	if result.Failed != 1 {
		t.Errorf("Expected 1 failed record, got %+v", result)
	}
	if result.Processed != 2 {
		t.Errorf("Expected 2 processed records, got %+v", result)
	}

	// Re-importing the same history creates nothing new.
	if _, err := ingest.ProcessBatch(context.Background(), []ImportRecord{
		{UserID: "user-1", Title: "Breaking Bad: Season 2", Platform: "netflix"},
	}); err != nil {
		t.Fatalf("Second ProcessBatch failed: %v", err)
	}
	entries, err := db.GetPendingEntries(0)
	if err != nil {
		t.Fatalf("GetPendingEntries failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("Expected 1 pending entry after re-import, got %d", len(entries))
	}

	sweep, err := dispatch.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if sweep.Dispatched != 1 {
		t.Fatalf("Expected 1 dispatched, got %+v", sweep)
	}

	notifications, err := db.ListNotifications("user-1", true, 10, 0)
	if err != nil {
		t.Fatalf("ListNotifications failed: %v", err)
	}
	if len(notifications) != 1 {
		t.Fatalf("Expected 1 unread notification, got %d", len(notifications))
	}
	if got := notifications[0].Payload["successor_title"]; got != "Breaking Bad: Season 3" {
		t.Errorf("Expected successor title in payload, got %v", got)
	}
}
