package repositories

import (
	"context"
	"path/filepath"
	"testing"

	"example.com/vidstream/services/engagement/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, models.SetupModels(db))
	return db
}

func createVideo(t *testing.T, db *gorm.DB) uuid.UUID {
	t.Helper()

	video := models.Video{
		ID:        uuid.New(),
		ChannelID: uuid.New(),
		Title:     "test video",
	}
	require.NoError(t, db.Create(&video).Error)
	return video.ID
}

func TestToggleCreatesAndRemoves(t *testing.T) {
	db := setupTestDB(t)
	repo := NewReactionRepository(db, db)
	ctx := context.Background()

	actorID := uuid.New()
	videoID := createVideo(t, db)

	outcome, err := repo.Toggle(ctx, actorID, models.TargetVideo, videoID, models.ReactionLike)
	require.NoError(t, err)
	require.Equal(t, OutcomeCreated, outcome)

	counts, err := repo.CountByKind(ctx, models.TargetVideo, videoID)
	require.NoError(t, err)
	require.Equal(t, int64(1), counts[models.ReactionLike])

	// Second toggle of the same kind removes it
	outcome, err = repo.Toggle(ctx, actorID, models.TargetVideo, videoID, models.ReactionLike)
	require.NoError(t, err)
	require.Equal(t, OutcomeRemoved, outcome)

	counts, err = repo.CountByKind(ctx, models.TargetVideo, videoID)
	require.NoError(t, err)
	require.Zero(t, counts[models.ReactionLike])
}

func TestToggleMutualExclusion(t *testing.T) {
	db := setupTestDB(t)
	repo := NewReactionRepository(db, db)
	ctx := context.Background()

	actorID := uuid.New()
	videoID := createVideo(t, db)

	outcome, err := repo.Toggle(ctx, actorID, models.TargetVideo, videoID, models.ReactionLike)
	require.NoError(t, err)
	require.Equal(t, OutcomeCreated, outcome)

	// Disliking while a like is held replaces it atomically
	outcome, err = repo.Toggle(ctx, actorID, models.TargetVideo, videoID, models.ReactionDislike)
	require.NoError(t, err)
	require.Equal(t, OutcomeCreated, outcome)

	counts, err := repo.CountByKind(ctx, models.TargetVideo, videoID)
	require.NoError(t, err)
	require.Zero(t, counts[models.ReactionLike])
	require.Equal(t, int64(1), counts[models.ReactionDislike])

	kinds, err := repo.ViewerKinds(ctx, models.TargetVideo, videoID, actorID)
	require.NoError(t, err)
	require.Equal(t, []models.ReactionKind{models.ReactionDislike}, kinds)
}

func TestToggleIndependentActors(t *testing.T) {
	db := setupTestDB(t)
	repo := NewReactionRepository(db, db)
	ctx := context.Background()

	videoID := createVideo(t, db)

	first := uuid.New()
	second := uuid.New()

	_, err := repo.Toggle(ctx, first, models.TargetVideo, videoID, models.ReactionLike)
	require.NoError(t, err)
	_, err = repo.Toggle(ctx, second, models.TargetVideo, videoID, models.ReactionLike)
	require.NoError(t, err)

	counts, err := repo.CountByKind(ctx, models.TargetVideo, videoID)
	require.NoError(t, err)
	require.Equal(t, int64(2), counts[models.ReactionLike])

	// One actor toggling off leaves the other's like intact
	outcome, err := repo.Toggle(ctx, first, models.TargetVideo, videoID, models.ReactionLike)
	require.NoError(t, err)
	require.Equal(t, OutcomeRemoved, outcome)

	counts, err = repo.CountByKind(ctx, models.TargetVideo, videoID)
	require.NoError(t, err)
	require.Equal(t, int64(1), counts[models.ReactionLike])
}

func TestToggleSubscription(t *testing.T) {
	db := setupTestDB(t)
	repo := NewReactionRepository(db, db)
	ctx := context.Background()

	actorID := uuid.New()
	channel := models.Channel{ID: uuid.New(), OwnerID: uuid.New(), Name: "test channel"}
	require.NoError(t, db.Create(&channel).Error)

	outcome, err := repo.Toggle(ctx, actorID, models.TargetChannel, channel.ID, models.ReactionSubscribe)
	require.NoError(t, err)
	require.Equal(t, OutcomeCreated, outcome)

	outcome, err = repo.Toggle(ctx, actorID, models.TargetChannel, channel.ID, models.ReactionSubscribe)
	require.NoError(t, err)
	require.Equal(t, OutcomeRemoved, outcome)
}

func TestDeleteOrphaned(t *testing.T) {
	db := setupTestDB(t)
	repo := NewReactionRepository(db, db)
	ctx := context.Background()

	actorID := uuid.New()
	videoID := createVideo(t, db)
	orphanTarget := uuid.New() // no video row at all

	_, err := repo.Toggle(ctx, actorID, models.TargetVideo, videoID, models.ReactionLike)
	require.NoError(t, err)
	_, err = repo.Toggle(ctx, actorID, models.TargetVideo, orphanTarget, models.ReactionLike)
	require.NoError(t, err)

	removed, err := repo.DeleteOrphaned(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), removed)

	counts, err := repo.CountByKind(ctx, models.TargetVideo, videoID)
	require.NoError(t, err)
	require.Equal(t, int64(1), counts[models.ReactionLike])
}
