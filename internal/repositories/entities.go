package repositories

import (
	"context"

	"example.com/vidstream/services/engagement/internal/models"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// EntityRepository answers existence questions about collaborator-owned
// entities (videos, comments, channels) and loads denormalized video fields
// for history listings. This service never writes those tables.
type EntityRepository struct {
	readOnlyDB *gorm.DB
}

// NewEntityRepository creates a new entity repository
func NewEntityRepository(readOnlyDB *gorm.DB) *EntityRepository {
	return &EntityRepository{readOnlyDB: readOnlyDB}
}

// Exists reports whether the target entity is present and not soft-deleted.
func (r *EntityRepository) Exists(ctx context.Context, kind models.TargetKind, id uuid.UUID) (bool, error) {
	var count int64
	var err error

	db := r.readOnlyDB.WithContext(ctx)
	switch kind {
	case models.TargetVideo:
		err = db.Model(&models.Video{}).Where("id = ?", id).Count(&count).Error
	case models.TargetComment:
		err = db.Model(&models.Comment{}).Where("id = ?", id).Count(&count).Error
	case models.TargetChannel:
		err = db.Model(&models.Channel{}).Where("id = ?", id).Count(&count).Error
	default:
		return false, errors.Errorf("unknown target kind %q", kind)
	}
	if err != nil {
		return false, errors.Wrap(err, "failed to check entity existence")
	}

	return count > 0, nil
}

// VideosByIDs loads videos by id, keyed by id. Soft-deleted videos are simply
// absent from the result; history callers treat missing videos as tolerated
// dangling references.
func (r *EntityRepository) VideosByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Video, error) {
	if len(ids) == 0 {
		return map[uuid.UUID]models.Video{}, nil
	}

	var videos []models.Video
	err := r.readOnlyDB.WithContext(ctx).
		Where("id IN ?", ids).
		Find(&videos).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to load videos")
	}

	result := make(map[uuid.UUID]models.Video, len(videos))
	for _, v := range videos {
		result[v.ID] = v
	}
	return result, nil
}
