package services

import (
	"context"
	"testing"
	"time"

	"example.com/vidstream/services/engagement/internal/eventbus"
	"example.com/vidstream/services/engagement/internal/metrics"
	"example.com/vidstream/services/engagement/internal/models"
	"example.com/vidstream/services/engagement/internal/tracing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockHistoryStore struct {
	mock.Mock
}

func (m *mockHistoryStore) Record(ctx context.Context, ownerID, videoID uuid.UUID, maxEntries int) (*models.WatchHistoryEntry, error) {
	args := m.Called(ctx, ownerID, videoID, maxEntries)
	if entry := args.Get(0); entry != nil {
		return entry.(*models.WatchHistoryEntry), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockHistoryStore) ListByOwner(ctx context.Context, ownerID uuid.UUID, offset, limit int) ([]models.WatchHistoryEntry, error) {
	args := m.Called(ctx, ownerID, offset, limit)
	return args.Get(0).([]models.WatchHistoryEntry), args.Error(1)
}

func (m *mockHistoryStore) CountForOwner(ctx context.Context, ownerID uuid.UUID) (int64, error) {
	args := m.Called(ctx, ownerID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockHistoryStore) DeleteOne(ctx context.Context, ownerID, videoID uuid.UUID) error {
	return m.Called(ctx, ownerID, videoID).Error(0)
}

func (m *mockHistoryStore) DeleteAll(ctx context.Context, ownerID uuid.UUID) error {
	return m.Called(ctx, ownerID).Error(0)
}

type mockVideoLoader struct {
	mock.Mock
}

func (m *mockVideoLoader) Exists(ctx context.Context, kind models.TargetKind, id uuid.UUID) (bool, error) {
	args := m.Called(ctx, kind, id)
	return args.Bool(0), args.Error(1)
}

func (m *mockVideoLoader) VideosByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Video, error) {
	args := m.Called(ctx, ids)
	return args.Get(0).(map[uuid.UUID]models.Video), args.Error(1)
}

func newTestHistoryService(store *mockHistoryStore, loader *mockVideoLoader, pub *recordingPublisher) *WatchHistoryService {
	return &WatchHistoryService{
		historyRepo: store,
		entityRepo:  loader,
		bus:         pub,
		metrics:     metrics.NewMetrics(),
		tracer:      &tracing.NewRelicTracer{},
		maxEntries:  50,
	}
}

func TestRecordWatchRejectsMissingVideo(t *testing.T) {
	store := new(mockHistoryStore)
	loader := new(mockVideoLoader)
	pub := new(recordingPublisher)
	svc := newTestHistoryService(store, loader, pub)

	videoID := uuid.New()
	loader.On("Exists", mock.Anything, models.TargetVideo, videoID).Return(false, nil)

	_, err := svc.RecordWatch(context.Background(), uuid.New(), videoID)
	require.ErrorIs(t, err, ErrNotFound)

	store.AssertNotCalled(t, "Record", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	require.Empty(t, pub.published())
}

func TestRecordWatchPublishesViewCountChange(t *testing.T) {
	store := new(mockHistoryStore)
	loader := new(mockVideoLoader)
	pub := new(recordingPublisher)
	svc := newTestHistoryService(store, loader, pub)

	ownerID := uuid.New()
	videoID := uuid.New()
	entry := &models.WatchHistoryEntry{
		ID:        uuid.New(),
		OwnerID:   ownerID,
		VideoID:   videoID,
		WatchedAt: time.Now().UTC(),
	}

	loader.On("Exists", mock.Anything, models.TargetVideo, videoID).Return(true, nil)
	store.On("Record", mock.Anything, ownerID, videoID, 50).Return(entry, nil)

	got, err := svc.RecordWatch(context.Background(), ownerID, videoID)
	require.NoError(t, err)
	require.Equal(t, entry, got)

	events := pub.published()
	require.Len(t, events, 1)
	require.Equal(t, eventbus.KindViewCountChanged, events[0].Kind)
	require.Equal(t, videoID, events[0].TargetID)
}

func TestListDenormalizesVideos(t *testing.T) {
	store := new(mockHistoryStore)
	loader := new(mockVideoLoader)
	pub := new(recordingPublisher)
	svc := newTestHistoryService(store, loader, pub)

	ownerID := uuid.New()
	liveVideo := uuid.New()
	deletedVideo := uuid.New()

	entries := []models.WatchHistoryEntry{
		{ID: uuid.New(), OwnerID: ownerID, VideoID: liveVideo},
		{ID: uuid.New(), OwnerID: ownerID, VideoID: deletedVideo},
	}
	store.On("ListByOwner", mock.Anything, ownerID, 0, 20).Return(entries, nil)
	store.On("CountForOwner", mock.Anything, ownerID).Return(int64(2), nil)
	loader.On("VideosByIDs", mock.Anything, mock.Anything).Return(map[uuid.UUID]models.Video{
		liveVideo: {ID: liveVideo, Title: "still here"},
	}, nil)

	page, err := svc.List(context.Background(), ownerID, 1, 20)
	require.NoError(t, err)
	require.Equal(t, int64(2), page.TotalCount)
	require.Len(t, page.Items, 2)

	require.NotNil(t, page.Items[0].Video)
	require.Equal(t, "still here", page.Items[0].Video.Title)

	// Deleted video stays listed as a dangling reference
	require.Nil(t, page.Items[1].Video)
	require.Equal(t, deletedVideo, page.Items[1].Entry.VideoID)
}

func TestListClampsPagination(t *testing.T) {
	store := new(mockHistoryStore)
	loader := new(mockVideoLoader)
	pub := new(recordingPublisher)
	svc := newTestHistoryService(store, loader, pub)

	ownerID := uuid.New()
	store.On("ListByOwner", mock.Anything, ownerID, 0, maxHistoryPageSize).
		Return([]models.WatchHistoryEntry{}, nil)
	store.On("CountForOwner", mock.Anything, ownerID).Return(int64(0), nil)

	page, err := svc.List(context.Background(), ownerID, -3, 9999)
	require.NoError(t, err)
	require.Equal(t, 1, page.Page)
	require.Equal(t, maxHistoryPageSize, page.PageSize)
	require.Empty(t, page.Items)
}

func TestDeleteOperationsDelegate(t *testing.T) {
	store := new(mockHistoryStore)
	loader := new(mockVideoLoader)
	pub := new(recordingPublisher)
	svc := newTestHistoryService(store, loader, pub)

	ownerID := uuid.New()
	videoID := uuid.New()
	store.On("DeleteOne", mock.Anything, ownerID, videoID).Return(nil)
	store.On("DeleteAll", mock.Anything, ownerID).Return(nil)

	require.NoError(t, svc.DeleteOne(context.Background(), ownerID, videoID))
	require.NoError(t, svc.DeleteAll(context.Background(), ownerID))
	store.AssertExpectations(t)
}
