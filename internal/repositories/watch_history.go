package repositories

import (
	"context"
	"time"

	"example.com/vidstream/services/engagement/internal/models"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// WatchHistoryRepository provides access to watch-history data
type WatchHistoryRepository struct {
	db         *gorm.DB // Write database
	readOnlyDB *gorm.DB // Read-only database
}

// NewWatchHistoryRepository creates a new watch-history repository
func NewWatchHistoryRepository(db *gorm.DB, readOnlyDB *gorm.DB) *WatchHistoryRepository {
	return &WatchHistoryRepository{
		db:         db,
		readOnlyDB: readOnlyDB,
	}
}

// Record upserts the (owner, video) entry. Rewatching refreshes WatchedAt and
// resets Progress instead of duplicating. A fresh insert that pushes the owner
// past maxEntries evicts the entries with the smallest WatchedAt (ties broken
// by entry id) until the cap holds again.
func (r *WatchHistoryRepository) Record(ctx context.Context, ownerID, videoID uuid.UUID, maxEntries int) (*models.WatchHistoryEntry, error) {
	var entry models.WatchHistoryEntry

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()

		err := tx.
			Where("owner_id = ? AND video_id = ?", ownerID, videoID).
			First(&entry).Error
		if err == nil {
			// Rewatch: refresh recency, restart progress
			entry.WatchedAt = now
			entry.Progress = 0
			if err := tx.Model(&entry).
				Updates(map[string]interface{}{"watched_at": now, "progress": 0}).Error; err != nil {
				return errors.Wrap(err, "failed to refresh watch-history entry")
			}
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return errors.Wrap(err, "failed to look up watch-history entry")
		}

		entry = models.WatchHistoryEntry{
			ID:        uuid.New(),
			OwnerID:   ownerID,
			VideoID:   videoID,
			WatchedAt: now,
			Progress:  0,
		}
		if err := tx.Create(&entry).Error; err != nil {
			return errors.Wrap(err, "failed to create watch-history entry")
		}

		return evictPastCap(tx, ownerID, maxEntries)
	})
	if err != nil {
		return nil, err
	}

	return &entry, nil
}

// evictPastCap deletes the oldest entries of an owner until at most maxEntries
// remain. Oldest means minimum watched_at; equal timestamps fall back to the
// entry id so the choice stays deterministic.
func evictPastCap(tx *gorm.DB, ownerID uuid.UUID, maxEntries int) error {
	if maxEntries <= 0 {
		return nil
	}

	var count int64
	if err := tx.Model(&models.WatchHistoryEntry{}).
		Where("owner_id = ?", ownerID).
		Count(&count).Error; err != nil {
		return errors.Wrap(err, "failed to count watch-history entries")
	}

	overflow := count - int64(maxEntries)
	if overflow <= 0 {
		return nil
	}

	var victims []uuid.UUID
	err := tx.Model(&models.WatchHistoryEntry{}).
		Where("owner_id = ?", ownerID).
		Order("watched_at ASC, id ASC").
		Limit(int(overflow)).
		Pluck("id", &victims).Error
	if err != nil {
		return errors.Wrap(err, "failed to select eviction victims")
	}

	if err := tx.Where("id IN ?", victims).
		Delete(&models.WatchHistoryEntry{}).Error; err != nil {
		return errors.Wrap(err, "failed to evict watch-history entries")
	}
	return nil
}

// ListByOwner returns a page of an owner's history sorted by watched_at
// descending.
func (r *WatchHistoryRepository) ListByOwner(ctx context.Context, ownerID uuid.UUID, offset, limit int) ([]models.WatchHistoryEntry, error) {
	var entries []models.WatchHistoryEntry

	// Use read-only DB for reads
	err := r.readOnlyDB.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("watched_at DESC, id DESC").
		Offset(offset).
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list watch history")
	}
	return entries, nil
}

// CountForOwner returns the number of history entries an owner holds.
func (r *WatchHistoryRepository) CountForOwner(ctx context.Context, ownerID uuid.UUID) (int64, error) {
	var count int64
	err := r.readOnlyDB.WithContext(ctx).
		Model(&models.WatchHistoryEntry{}).
		Where("owner_id = ?", ownerID).
		Count(&count).Error
	if err != nil {
		return 0, errors.Wrap(err, "failed to count watch history")
	}
	return count, nil
}

// DeleteOne removes a single entry. Deleting a non-existent entry is not an
// error.
func (r *WatchHistoryRepository) DeleteOne(ctx context.Context, ownerID, videoID uuid.UUID) error {
	err := r.db.WithContext(ctx).
		Where("owner_id = ? AND video_id = ?", ownerID, videoID).
		Delete(&models.WatchHistoryEntry{}).Error
	if err != nil {
		return errors.Wrap(err, "failed to delete watch-history entry")
	}
	return nil
}

// DeleteAll clears an owner's entire history. Idempotent.
func (r *WatchHistoryRepository) DeleteAll(ctx context.Context, ownerID uuid.UUID) error {
	err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Delete(&models.WatchHistoryEntry{}).Error
	if err != nil {
		return errors.Wrap(err, "failed to clear watch history")
	}
	return nil
}

// TrimAllToCap walks every owner holding more than maxEntries entries and
// evicts their oldest rows. Run by the worker as a safety net after the cap is
// lowered; the insert path keeps the cap on its own.
func (r *WatchHistoryRepository) TrimAllToCap(ctx context.Context, maxEntries int) (int64, error) {
	var owners []uuid.UUID
	err := r.readOnlyDB.WithContext(ctx).
		Model(&models.WatchHistoryEntry{}).
		Select("owner_id").
		Group("owner_id").
		Having("COUNT(*) > ?", maxEntries).
		Pluck("owner_id", &owners).Error
	if err != nil {
		return 0, errors.Wrap(err, "failed to find owners over cap")
	}

	var trimmed int64
	for _, ownerID := range owners {
		err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return evictPastCap(tx, ownerID, maxEntries)
		})
		if err != nil {
			return trimmed, err
		}
		trimmed++
	}
	return trimmed, nil
}
