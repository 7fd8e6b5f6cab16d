package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// TargetKind identifies the kind of entity a reaction points at.
type TargetKind string

// ReactionKind identifies the stance recorded by a reaction.
type ReactionKind string

const (
	TargetVideo   TargetKind = "video"
	TargetComment TargetKind = "comment"
	TargetChannel TargetKind = "channel"
)

const (
	ReactionLike      ReactionKind = "like"
	ReactionDislike   ReactionKind = "disLike"
	ReactionSubscribe ReactionKind = "subscribe"
)

// ValidKindsFor returns the reaction kinds accepted for a target kind.
func ValidKindsFor(target TargetKind) []ReactionKind {
	switch target {
	case TargetVideo:
		return []ReactionKind{ReactionLike, ReactionDislike}
	case TargetComment:
		return []ReactionKind{ReactionLike}
	case TargetChannel:
		return []ReactionKind{ReactionSubscribe}
	}
	return nil
}

// OppositeKind returns the mutually exclusive counterpart of a video reaction,
// or empty when the kind has no competing kind.
func OppositeKind(kind ReactionKind) ReactionKind {
	switch kind {
	case ReactionLike:
		return ReactionDislike
	case ReactionDislike:
		return ReactionLike
	}
	return ""
}

// Reaction records one actor's stance toward one target.
// At most one of {like, disLike} may exist per (actor, video target); the
// unique index guards duplicates of the same kind.
type Reaction struct {
	ID         uuid.UUID    `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt  time.Time    `gorm:"autoCreateTime" json:"created_at"`
	ActorID    uuid.UUID    `gorm:"type:uuid;not null;uniqueIndex:idx_reactions_slot" json:"actor_id"`
	TargetKind TargetKind   `gorm:"not null;uniqueIndex:idx_reactions_slot" json:"target_kind"`
	TargetID   uuid.UUID    `gorm:"type:uuid;not null;uniqueIndex:idx_reactions_slot;index:idx_reactions_target" json:"target_id"`
	Kind       ReactionKind `gorm:"not null;uniqueIndex:idx_reactions_slot" json:"kind"`
}

// WatchHistoryEntry records one viewer having watched one video.
// Unique per (owner, video); rewatching refreshes WatchedAt and resets Progress.
type WatchHistoryEntry struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
	OwnerID   uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_history_owner_video;index:idx_history_owner" json:"owner_id"`
	VideoID   uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_history_owner_video" json:"video_id"`
	WatchedAt time.Time `gorm:"not null;index" json:"watched_at"`
	Progress  int       `gorm:"not null;default:0" json:"progress"`
}

// Video is owned by the video collaborator; this service only reads it for
// existence checks and history denormalization.
type Video struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
	ChannelID uuid.UUID      `gorm:"type:uuid;not null" json:"channel_id"`
	Title     string         `gorm:"not null" json:"title"`
	Thumbnail string         `json:"thumbnail"`
	Duration  int            `gorm:"not null;default:0" json:"duration"`
}

// Comment is owned by the comment collaborator; read-only here.
type Comment struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
	VideoID   uuid.UUID      `gorm:"type:uuid;not null" json:"video_id"`
	AuthorID  uuid.UUID      `gorm:"type:uuid;not null" json:"author_id"`
}

// Channel is owned by the channel collaborator; read-only here.
type Channel struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
	OwnerID   uuid.UUID      `gorm:"type:uuid;not null" json:"owner_id"`
	Name      string         `gorm:"not null" json:"name"`
}

// SetupModels configures GORM models and runs migrations
func SetupModels(db *gorm.DB) error {
	// Apply all migrations
	err := db.AutoMigrate(
		&Reaction{},
		&WatchHistoryEntry{},
		&Video{},
		&Comment{},
		&Channel{},
	)

	if err != nil {
		return errors.Wrap(err, "failed to run auto migrations")
	}

	return nil
}
