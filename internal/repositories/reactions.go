package repositories

import (
	"context"

	"example.com/vidstream/services/engagement/internal/models"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// Outcome reports what a toggle did.
type Outcome string

const (
	OutcomeCreated Outcome = "created"
	OutcomeRemoved Outcome = "removed"
)

// ReactionRepository provides access to reaction data
type ReactionRepository struct {
	db         *gorm.DB // Write database
	readOnlyDB *gorm.DB // Read-only database
}

// NewReactionRepository creates a new reaction repository
func NewReactionRepository(db *gorm.DB, readOnlyDB *gorm.DB) *ReactionRepository {
	return &ReactionRepository{
		db:         db,
		readOnlyDB: readOnlyDB,
	}
}

// Toggle flips the reaction slot for (actor, target, kind) and returns whether
// the call created or removed the record.
//
// Two-step algorithm, each step idempotent so the whole operation is safe to
// retry from the top on a transient failure:
//  1. delete the opposite kind if one was given (clears the mutual-exclusion
//     slot; deleting an absent row is a no-op)
//  2. delete the requested kind; if a row existed the call was a toggle-off,
//     otherwise insert a new row
//
// The transaction keeps readers from observing the opposite-kind row and the
// new row at the same time.
func (r *ReactionRepository) Toggle(ctx context.Context, actorID uuid.UUID, targetKind models.TargetKind, targetID uuid.UUID, kind models.ReactionKind) (Outcome, error) {
	var outcome Outcome

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 1. Clear the mutual-exclusion slot (video like vs disLike). Best
		// effort: zero rows affected is the common case.
		if opposite := models.OppositeKind(kind); opposite != "" && targetKind == models.TargetVideo {
			err := tx.
				Where("actor_id = ? AND target_kind = ? AND target_id = ? AND kind = ?",
					actorID, targetKind, targetID, opposite).
				Delete(&models.Reaction{}).Error
			if err != nil {
				return errors.Wrap(err, "failed to clear opposite reaction")
			}
		}

		// 2. Toggle the requested kind.
		res := tx.
			Where("actor_id = ? AND target_kind = ? AND target_id = ? AND kind = ?",
				actorID, targetKind, targetID, kind).
			Delete(&models.Reaction{})
		if res.Error != nil {
			return errors.Wrap(res.Error, "failed to delete reaction")
		}
		if res.RowsAffected > 0 {
			outcome = OutcomeRemoved
			return nil
		}

		reaction := &models.Reaction{
			ID:         uuid.New(),
			ActorID:    actorID,
			TargetKind: targetKind,
			TargetID:   targetID,
			Kind:       kind,
		}
		if err := tx.Create(reaction).Error; err != nil {
			// A concurrent toggle from the same actor can win the insert
			// race; the unique index makes that "already created".
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				outcome = OutcomeCreated
				return nil
			}
			return errors.Wrap(err, "failed to create reaction")
		}
		outcome = OutcomeCreated
		return nil
	})
	if err != nil {
		return "", err
	}

	return outcome, nil
}

// CountByKind returns the number of reactions per kind for a target.
// Always a fresh count query; counts are never maintained as cached counters.
func (r *ReactionRepository) CountByKind(ctx context.Context, targetKind models.TargetKind, targetID uuid.UUID) (map[models.ReactionKind]int64, error) {
	var rows []struct {
		Kind  models.ReactionKind
		Count int64
	}

	// Use read-only DB for reads
	err := r.readOnlyDB.WithContext(ctx).
		Model(&models.Reaction{}).
		Select("kind, COUNT(*) as count").
		Where("target_kind = ? AND target_id = ?", targetKind, targetID).
		Group("kind").
		Scan(&rows).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to count reactions")
	}

	counts := make(map[models.ReactionKind]int64, len(rows))
	for _, row := range rows {
		counts[row.Kind] = row.Count
	}
	return counts, nil
}

// ViewerKinds returns the reaction kinds the viewer currently holds on a target.
func (r *ReactionRepository) ViewerKinds(ctx context.Context, targetKind models.TargetKind, targetID, viewerID uuid.UUID) ([]models.ReactionKind, error) {
	var kinds []models.ReactionKind

	// Use read-only DB for reads
	err := r.readOnlyDB.WithContext(ctx).
		Model(&models.Reaction{}).
		Where("target_kind = ? AND target_id = ? AND actor_id = ?", targetKind, targetID, viewerID).
		Pluck("kind", &kinds).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to get viewer reactions")
	}
	return kinds, nil
}

// DeleteOrphaned removes reactions whose target row no longer exists at all.
// Soft-deleted targets are kept; only hard deletes orphan a reaction.
func (r *ReactionRepository) DeleteOrphaned(ctx context.Context) (int64, error) {
	var total int64

	tables := map[models.TargetKind]string{
		models.TargetVideo:   "videos",
		models.TargetComment: "comments",
		models.TargetChannel: "channels",
	}

	for kind, table := range tables {
		res := r.db.WithContext(ctx).
			Where("target_kind = ? AND target_id NOT IN (SELECT id FROM "+table+")", kind).
			Delete(&models.Reaction{})
		if res.Error != nil {
			return total, errors.Wrap(res.Error, "failed to delete orphaned reactions")
		}
		total += res.RowsAffected
	}

	return total, nil
}
