package models

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// Database wraps the gorm store
type Database struct {
	db *gorm.DB
}

// NewDatabase opens the sqlite database and migrates the schema
func NewDatabase(path string) (*Database, error) {
	dsn := path + "?_busy_timeout=5000&_journal_mode=WAL"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.AutoMigrate(
		&Media{},
		&UserMedia{},
		&MonitoringEntry{},
		&Notification{},
		&NotificationPreference{},
		&UserContact{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	return &Database{db: db}, nil
}

// Close closes the underlying connection
func (d *Database) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%s: %w", op, ErrDuplicateEntry)
	}
	return fmt.Errorf("%s: %w", op, errors.Join(ErrPersistence, err))
}

// Media operations

// CreateMedia creates a new catalog entry
func (d *Database) CreateMedia(media *Media) error {
	return storeErr("create media", d.db.Create(media).Error)
}

// UpdateMedia saves changes to an existing catalog entry
func (d *Database) UpdateMedia(media *Media) error {
	return storeErr("update media", d.db.Save(media).Error)
}

// GetMediaByID retrieves a catalog entry by ID
func (d *Database) GetMediaByID(id uint64) (*Media, error) {
	var media Media
	if err := d.db.First(&media, id).Error; err != nil {
		return nil, storeErr("get media", err)
	}
	return &media, nil
}

// FindSeasonSuccessors returns catalog entries sharing baseTitle with a
// season number strictly greater than afterSeason, lowest season first,
// ties broken by earliest release date then ID.
func (d *Database) FindSeasonSuccessors(baseTitle string, afterSeason int) ([]*Media, error) {
	var medias []*Media
	err := d.db.
		Where("base_title = ? AND season_number IS NOT NULL AND season_number > ?", baseTitle, afterSeason).
		Order("season_number ASC").
		Order("release_date ASC").
		Order("id ASC").
		Find(&medias).Error
	if err != nil {
		return nil, storeErr("find season successors", err)
	}
	return medias, nil
}

// FindNextReleases returns un-seasoned catalog entries sharing baseTitle
// released after the given date, earliest first.
func (d *Database) FindNextReleases(baseTitle string, after time.Time) ([]*Media, error) {
	var medias []*Media
	err := d.db.
		Where("base_title = ? AND season_number IS NULL AND release_date IS NOT NULL AND release_date > ?", baseTitle, after).
		Order("release_date ASC").
		Order("id ASC").
		Find(&medias).Error
	if err != nil {
		return nil, storeErr("find next releases", err)
	}
	return medias, nil
}

// GetMediaByKey retrieves a catalog entry by its (base_title, season)
// comparison key.
func (d *Database) GetMediaByKey(baseTitle string, season *int) (*Media, error) {
	q := d.db.Where("base_title = ?", baseTitle)
	if season != nil {
		q = q.Where("season_number = ?", *season)
	} else {
		q = q.Where("season_number IS NULL")
	}

	var media Media
	if err := q.First(&media).Error; err != nil {
		return nil, storeErr("get media by key", err)
	}
	return &media, nil
}

// ListMediaMissingMetadata returns catalog entries without provider data,
// used by the backfill job.
func (d *Database) ListMediaMissingMetadata(limit int) ([]*Media, error) {
	var medias []*Media
	err := d.db.
		Where("tmdb_id IS NULL").
		Order("id ASC").
		Limit(limit).
		Find(&medias).Error
	if err != nil {
		return nil, storeErr("list media missing metadata", err)
	}
	return medias, nil
}

// Consumption operations

// UpsertConsumption records a consumption pair, keeping at most one row per
// (user, media). Returns false when the pair already existed.
func (d *Database) UpsertConsumption(um *UserMedia) (bool, error) {
	res := d.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "media_id"}},
		DoNothing: true,
	}).Create(um)
	if res.Error != nil {
		return false, storeErr("upsert consumption", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// HasConsumed reports whether the user has a consumption record for the
// given catalog entry.
func (d *Database) HasConsumed(userID string, mediaID uint64) (bool, error) {
	var count int64
	err := d.db.Model(&UserMedia{}).
		Where("user_id = ? AND media_id = ?", userID, mediaID).
		Count(&count).Error
	if err != nil {
		return false, storeErr("check consumption", err)
	}
	return count > 0, nil
}

// ListUserMedia returns all consumption records for a user
func (d *Database) ListUserMedia(userID string) ([]*UserMedia, error) {
	var records []*UserMedia
	err := d.db.Where("user_id = ?", userID).Order("id ASC").Find(&records).Error
	if err != nil {
		return nil, storeErr("list user media", err)
	}
	return records, nil
}

// Monitoring operations

// InsertMonitoringEntry performs an atomic insert-if-absent on the
// (user, source, successor) triple. A read-then-write existence check would
// race under concurrent import batches; the unique index is the guarantee.
// Returns the stored entry and whether this call created it.
func (d *Database) InsertMonitoringEntry(entry *MonitoringEntry) (*MonitoringEntry, bool, error) {
	res := d.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "user_id"},
			{Name: "source_media_id"},
			{Name: "successor_media_id"},
		},
		DoNothing: true,
	}).Create(entry)
	if res.Error != nil {
		return nil, false, storeErr("insert monitoring entry", res.Error)
	}
	if res.RowsAffected > 0 {
		return entry, true, nil
	}

	// Lost the race or entry predates this batch: fetch the winner.
	var existing MonitoringEntry
	err := d.db.
		Where("user_id = ? AND source_media_id = ? AND successor_media_id = ?",
			entry.UserID, entry.SourceMediaID, entry.SuccessorMediaID).
		First(&existing).Error
	if err != nil {
		return nil, false, storeErr("fetch existing monitoring entry", err)
	}
	return &existing, false, nil
}

// GetPendingEntries returns monitoring entries not yet dispatched
func (d *Database) GetPendingEntries(limit int) ([]*MonitoringEntry, error) {
	var entries []*MonitoringEntry
	q := d.db.Where("notified = ?", false).Order("id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&entries).Error; err != nil {
		return nil, storeErr("get pending entries", err)
	}
	return entries, nil
}

// FinalizeEntry marks a monitoring entry notified and, when notification is
// non-nil, creates it in the same transaction. The guarded update keeps the
// pending->notified transition one-way under concurrent sweeps: whichever
// sweep wins the update owns the notification insert, the loser gets
// ErrAlreadyDispatched.
func (d *Database) FinalizeEntry(entryID uint64, notification *Notification) error {
	err := d.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&MonitoringEntry{}).
			Where("id = ? AND notified = ?", entryID, false).
			Update("notified", true)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrAlreadyDispatched
		}
		if notification != nil {
			if err := tx.Create(notification).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if errors.Is(err, ErrAlreadyDispatched) {
		return err
	}
	return storeErr("finalize entry", err)
}

// Preference operations

// GetOrCreatePreferences returns the user's preference row, creating the
// all-enabled default on first touch. Concurrent first touches collapse on
// the primary key.
func (d *Database) GetOrCreatePreferences(userID string) (*NotificationPreference, error) {
	defaults := DefaultPreferences(userID)
	res := d.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoNothing: true,
	}).Create(defaults)
	if res.Error != nil {
		return nil, storeErr("create preferences", res.Error)
	}
	if res.RowsAffected > 0 {
		return defaults, nil
	}

	var prefs NotificationPreference
	if err := d.db.First(&prefs, "user_id = ?", userID).Error; err != nil {
		return nil, storeErr("get preferences", err)
	}
	return &prefs, nil
}

// UpdatePreferences saves a full preference row
func (d *Database) UpdatePreferences(prefs *NotificationPreference) error {
	return storeErr("update preferences", d.db.Save(prefs).Error)
}

// DisableCategory disables a single category for a user. Idempotent: safe
// to invoke repeatedly with the same token.
func (d *Database) DisableCategory(userID string, category Category) error {
	prefs, err := d.GetOrCreatePreferences(userID)
	if err != nil {
		return err
	}
	prefs.SetCategory(category, false)
	return d.UpdatePreferences(prefs)
}

// Notification operations

// ListNotifications returns a user's notifications, newest first
func (d *Database) ListNotifications(userID string, unreadOnly bool, limit, offset int) ([]*Notification, error) {
	q := d.db.Where("user_id = ?", userID)
	if unreadOnly {
		q = q.Where("is_read = ?", false)
	}
	var notifications []*Notification
	err := q.Order("created_at DESC").Order("id DESC").Limit(limit).Offset(offset).Find(&notifications).Error
	if err != nil {
		return nil, storeErr("list notifications", err)
	}
	return notifications, nil
}

// UnreadCount returns the number of unread notifications for a user
func (d *Database) UnreadCount(userID string) (int64, error) {
	var count int64
	err := d.db.Model(&Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Count(&count).Error
	if err != nil {
		return 0, storeErr("count unread notifications", err)
	}
	return count, nil
}

// MarkRead marks one notification read, verifying ownership
func (d *Database) MarkRead(notificationID uint64, userID string) error {
	now := time.Now()
	res := d.db.Model(&Notification{}).
		Where("id = ? AND user_id = ? AND is_read = ?", notificationID, userID, false).
		Updates(map[string]any{"is_read": true, "read_at": now})
	if res.Error != nil {
		return storeErr("mark notification read", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("mark notification read: %w", ErrNotFound)
	}
	return nil
}

// MarkAllRead marks all of a user's notifications read, returning the count
func (d *Database) MarkAllRead(userID string) (int64, error) {
	now := time.Now()
	res := d.db.Model(&Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Updates(map[string]any{"is_read": true, "read_at": now})
	if res.Error != nil {
		return 0, storeErr("mark all notifications read", res.Error)
	}
	return res.RowsAffected, nil
}

// MarkEmailed records that the notification email went out. Best-effort
// bookkeeping, never part of the dispatch transaction.
func (d *Database) MarkEmailed(notificationID uint64) error {
	now := time.Now()
	res := d.db.Model(&Notification{}).
		Where("id = ?", notificationID).
		Updates(map[string]any{"emailed": true, "emailed_at": now})
	return storeErr("mark notification emailed", res.Error)
}

// Contact operations

// GetUserContact returns the delivery address for a user, ErrNotFound when
// the external account system has not synced one.
func (d *Database) GetUserContact(userID string) (*UserContact, error) {
	var contact UserContact
	if err := d.db.First(&contact, "user_id = ?", userID).Error; err != nil {
		return nil, storeErr("get user contact", err)
	}
	return &contact, nil
}

// UpsertUserContact creates or replaces a user's delivery address
func (d *Database) UpsertUserContact(contact *UserContact) error {
	res := d.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		UpdateAll: true,
	}).Create(contact)
	return storeErr("upsert user contact", res.Error)
}

// Counts holds aggregate store statistics for the status endpoint
type Counts struct {
	Media             int64 `json:"media"`
	Consumption       int64 `json:"consumption"`
	MonitoringPending int64 `json:"monitoring_pending"`
	MonitoringTotal   int64 `json:"monitoring_total"`
	Notifications     int64 `json:"notifications"`
}

// GetCounts returns aggregate row counts
func (d *Database) GetCounts() (*Counts, error) {
	var c Counts
	if err := d.db.Model(&Media{}).Count(&c.Media).Error; err != nil {
		return nil, storeErr("count media", err)
	}
	if err := d.db.Model(&UserMedia{}).Count(&c.Consumption).Error; err != nil {
		return nil, storeErr("count consumption", err)
	}
	if err := d.db.Model(&MonitoringEntry{}).Count(&c.MonitoringTotal).Error; err != nil {
		return nil, storeErr("count monitoring entries", err)
	}
	if err := d.db.Model(&MonitoringEntry{}).Where("notified = ?", false).Count(&c.MonitoringPending).Error; err != nil {
		return nil, storeErr("count pending entries", err)
	}
	if err := d.db.Model(&Notification{}).Count(&c.Notifications).Error; err != nil {
		return nil, storeErr("count notifications", err)
	}
	return &c, nil
}
