package models

import (
	"errors"
	"path/filepath"
	"testing"
)

func newTestDB(t *testing.T) *Database {
	t.Helper()
	db, err := NewDatabase(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestUpsertConsumptionKeepsOneRow(t *testing.T) {
	db := newTestDB(t)

	media := &Media{Title: "Dark: Season 1", BaseTitle: "dark"}
	if err := db.CreateMedia(media); err != nil {
		t.Fatalf("CreateMedia failed: %v", err)
	}

	created, err := db.UpsertConsumption(&UserMedia{UserID: "user-1", MediaID: media.ID, Status: ConsumptionWatched})
	if err != nil {
		t.Fatalf("First UpsertConsumption failed: %v", err)
	}
	if !created {
		t.Error("Expected first upsert to create a row")
	}

	created, err = db.UpsertConsumption(&UserMedia{UserID: "user-1", MediaID: media.ID, Status: ConsumptionWatched})
	if err != nil {
		t.Fatalf("Second UpsertConsumption failed: %v", err)
	}
	if created {
		t.Error("Expected second upsert to be a no-op")
	}

	records, err := db.ListUserMedia("user-1")
	if err != nil {
		t.Fatalf("ListUserMedia failed: %v", err)
	}
	if len(records) != 1 {
		t.Errorf("Expected 1 consumption row, got %d", len(records))
	}

	consumed, err := db.HasConsumed("user-1", media.ID)
	if err != nil {
		t.Fatalf("HasConsumed failed: %v", err)
	}
	if !consumed {
		t.Error("Expected HasConsumed to report true")
	}
}

func TestGetOrCreatePreferencesDefaults(t *testing.T) {
	db := newTestDB(t)

	prefs, err := db.GetOrCreatePreferences("user-1")
	if err != nil {
		t.Fatalf("GetOrCreatePreferences failed: %v", err)
	}
	if !prefs.InAppEnabled || !prefs.EmailEnabled {
		t.Errorf("Expected all-enabled defaults, got %+v", prefs)
	}
	for _, c := range []Category{CategorySequelDetected, CategorySeasonReleased, CategoryNewContent} {
		if !prefs.CategoryEnabled(c) {
			t.Errorf("Expected category %q enabled by default", c)
		}
	}
}

func TestDisableCategoryIdempotent(t *testing.T) {
	db := newTestDB(t)

	for i := 0; i < 3; i++ {
		if err := db.DisableCategory("user-1", CategorySequelDetected); err != nil {
			t.Fatalf("DisableCategory attempt %d failed: %v", i+1, err)
		}
	}

	prefs, err := db.GetOrCreatePreferences("user-1")
	if err != nil {
		t.Fatalf("GetOrCreatePreferences failed: %v", err)
	}
	if prefs.CategoryEnabled(CategorySequelDetected) {
		t.Error("Expected sequel_detected disabled")
	}
	// Other categories are untouched.
	if !prefs.CategoryEnabled(CategorySeasonReleased) || !prefs.CategoryEnabled(CategoryNewContent) {
		t.Errorf("Expected other categories to stay enabled, got %+v", prefs)
	}
}

func TestMarkReadOwnership(t *testing.T) {
	db := newTestDB(t)

	if err := db.FinalizeEntry(0, nil); !errors.Is(err, ErrAlreadyDispatched) {
		t.Errorf("Expected ErrAlreadyDispatched for unknown entry, got %v", err)
	}

	entry, created, err := db.InsertMonitoringEntry(&MonitoringEntry{
		UserID: "user-1", SourceMediaID: 1, SuccessorMediaID: 2,
	})
	if err != nil || !created {
		t.Fatalf("InsertMonitoringEntry failed: created=%v err=%v", created, err)
	}
	if err := db.FinalizeEntry(entry.ID, &Notification{
		UserID: "user-1", Category: CategorySequelDetected, Title: "t", Message: "m",
	}); err != nil {
		t.Fatalf("FinalizeEntry failed: %v", err)
	}

	notifications, err := db.ListNotifications("user-1", true, 10, 0)
	if err != nil || len(notifications) != 1 {
		t.Fatalf("Expected 1 unread notification, got %d (err %v)", len(notifications), err)
	}
	id := notifications[0].ID

	// Another user cannot mark it read.
	if err := db.MarkRead(id, "user-2"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for foreign user, got %v", err)
	}
	if err := db.MarkRead(id, "user-1"); err != nil {
		t.Fatalf("MarkRead failed: %v", err)
	}
	// Already read.
	if err := db.MarkRead(id, "user-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for already-read notification, got %v", err)
	}

	count, err := db.UnreadCount("user-1")
	if err != nil {
		t.Fatalf("UnreadCount failed: %v", err)
	}
	if count != 0 {
		t.Errorf("Expected 0 unread, got %d", count)
	}
}

func TestGetMediaByKeySeparatesSeasons(t *testing.T) {
	db := newTestDB(t)

	s1 := 1
	if err := db.CreateMedia(&Media{Title: "Dark: Season 1", BaseTitle: "dark", SeasonNumber: &s1}); err != nil {
		t.Fatalf("CreateMedia failed: %v", err)
	}
	if err := db.CreateMedia(&Media{Title: "Dark", BaseTitle: "dark"}); err != nil {
		t.Fatalf("CreateMedia failed: %v", err)
	}

	seasoned, err := db.GetMediaByKey("dark", &s1)
	if err != nil {
		t.Fatalf("GetMediaByKey with season failed: %v", err)
	}
	if seasoned.SeasonNumber == nil || *seasoned.SeasonNumber != 1 {
		t.Errorf("Expected season 1 entry, got %+v", seasoned)
	}

	unseasoned, err := db.GetMediaByKey("dark", nil)
	if err != nil {
		t.Fatalf("GetMediaByKey without season failed: %v", err)
	}
	if unseasoned.SeasonNumber != nil {
		t.Errorf("Expected un-seasoned entry, got season %d", *unseasoned.SeasonNumber)
	}

	if _, err := db.GetMediaByKey("missing", nil); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}
