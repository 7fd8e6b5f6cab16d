package services

import (
	"context"
	"time"

	"example.com/vidstream/services/engagement/internal/cache"
	"example.com/vidstream/services/engagement/internal/eventbus"
	"example.com/vidstream/services/engagement/internal/metrics"
	"example.com/vidstream/services/engagement/internal/models"
	"example.com/vidstream/services/engagement/internal/repositories"
	"example.com/vidstream/services/engagement/internal/tracing"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	defaultHistoryPageSize = 20
	maxHistoryPageSize     = 50

	videoCacheTTL = 5 * time.Minute
)

// historyStore is the slice of the watch-history repository this service needs.
type historyStore interface {
	Record(ctx context.Context, ownerID, videoID uuid.UUID, maxEntries int) (*models.WatchHistoryEntry, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID, offset, limit int) ([]models.WatchHistoryEntry, error)
	CountForOwner(ctx context.Context, ownerID uuid.UUID) (int64, error)
	DeleteOne(ctx context.Context, ownerID, videoID uuid.UUID) error
	DeleteAll(ctx context.Context, ownerID uuid.UUID) error
}

// videoLoader loads denormalized video fields for history listings.
type videoLoader interface {
	entityChecker
	VideosByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Video, error)
}

// HistoryItem pairs a history entry with the video's denormalized fields.
// Video is nil when the video has since been deleted; the entry stays listed
// as a dangling reference.
type HistoryItem struct {
	Entry models.WatchHistoryEntry `json:"entry"`
	Video *models.Video            `json:"video,omitempty"`
}

// HistoryPage is one page of an owner's watch history, newest first.
type HistoryPage struct {
	Items      []HistoryItem `json:"items"`
	TotalCount int64         `json:"total_count"`
	Page       int           `json:"page"`
	PageSize   int           `json:"page_size"`
}

// WatchHistoryService handles watch-history business logic: the bounded
// per-owner log and its reads.
type WatchHistoryService struct {
	historyRepo historyStore
	entityRepo  videoLoader
	cache       *cache.RedisCache
	bus         eventPublisher
	metrics     *metrics.Metrics
	tracer      tracing.Tracer
	maxEntries  int
}

// NewWatchHistoryService creates a new watch-history service
func NewWatchHistoryService(
	historyRepo *repositories.WatchHistoryRepository,
	entityRepo *repositories.EntityRepository,
	redisCache *cache.RedisCache,
	bus *eventbus.Bus,
	metricsCollector *metrics.Metrics,
	tracer tracing.Tracer,
	maxEntries int,
) *WatchHistoryService {
	return &WatchHistoryService{
		historyRepo: historyRepo,
		entityRepo:  entityRepo,
		cache:       redisCache,
		bus:         bus,
		metrics:     metricsCollector,
		tracer:      tracer,
		maxEntries:  maxEntries,
	}
}

// RecordWatch upserts the owner's entry for the video and announces the view.
// Rewatching the same video refreshes its recency instead of duplicating.
func (s *WatchHistoryService) RecordWatch(ctx context.Context, ownerID, videoID uuid.UUID) (*models.WatchHistoryEntry, error) {
	txn := s.tracer.StartTransaction("record-watch")
	defer s.tracer.EndTransaction(txn)

	exists, err := s.entityRepo.Exists(ctx, models.TargetVideo, videoID)
	if err != nil {
		s.tracer.RecordError(txn, err)
		return nil, errors.Wrap(err, "failed to check video existence")
	}
	if !exists {
		return nil, errors.Wrapf(ErrNotFound, "video %s", videoID)
	}

	span := s.tracer.StartSpan("store-record", txn)
	entry, err := s.historyRepo.Record(ctx, ownerID, videoID, s.maxEntries)
	span.End()
	if err != nil {
		s.tracer.RecordError(txn, err)
		return nil, errors.Wrap(err, "failed to record watch")
	}

	if s.metrics != nil {
		s.metrics.IncrementCounter("watches_recorded")
	}
	log.Info().
		Str("owner_id", ownerID.String()).
		Str("video_id", videoID.String()).
		Msg("Watch recorded")

	s.bus.Publish(eventbus.NewEvent(eventbus.KindViewCountChanged, videoID))

	return entry, nil
}

// List returns one page of the owner's history, newest first, with video
// fields denormalized onto each item.
func (s *WatchHistoryService) List(ctx context.Context, ownerID uuid.UUID, page, pageSize int) (*HistoryPage, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultHistoryPageSize
	}
	if pageSize > maxHistoryPageSize {
		pageSize = maxHistoryPageSize
	}

	entries, err := s.historyRepo.ListByOwner(ctx, ownerID, (page-1)*pageSize, pageSize)
	if err != nil {
		return nil, err
	}

	total, err := s.historyRepo.CountForOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	videos, err := s.loadVideos(ctx, entries)
	if err != nil {
		return nil, err
	}

	items := make([]HistoryItem, 0, len(entries))
	for _, entry := range entries {
		item := HistoryItem{Entry: entry}
		if v, ok := videos[entry.VideoID]; ok {
			video := v
			item.Video = &video
		}
		items = append(items, item)
	}

	return &HistoryPage{
		Items:      items,
		TotalCount: total,
		Page:       page,
		PageSize:   pageSize,
	}, nil
}

// loadVideos resolves video metadata for a page of entries, cache first.
func (s *WatchHistoryService) loadVideos(ctx context.Context, entries []models.WatchHistoryEntry) (map[uuid.UUID]models.Video, error) {
	videos := make(map[uuid.UUID]models.Video, len(entries))
	var missing []uuid.UUID

	for _, entry := range entries {
		if _, ok := videos[entry.VideoID]; ok {
			continue
		}
		var v models.Video
		if err := s.cache.Get(ctx, cache.VideoKey(entry.VideoID), &v); err == nil {
			videos[entry.VideoID] = v
			continue
		}
		missing = append(missing, entry.VideoID)
	}

	if len(missing) == 0 {
		return videos, nil
	}

	loaded, err := s.entityRepo.VideosByIDs(ctx, missing)
	if err != nil {
		return nil, err
	}
	for id, v := range loaded {
		videos[id] = v
		if err := s.cache.Set(ctx, cache.VideoKey(id), v, videoCacheTTL); err != nil {
			log.Warn().Err(err).Msg("Failed to cache video metadata")
		}
	}
	return videos, nil
}

// DeleteOne removes the owner's entry for one video. Idempotent.
func (s *WatchHistoryService) DeleteOne(ctx context.Context, ownerID, videoID uuid.UUID) error {
	if err := s.historyRepo.DeleteOne(ctx, ownerID, videoID); err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.IncrementCounter("history_entries_deleted")
	}
	return nil
}

// DeleteAll clears the owner's entire history. Idempotent.
func (s *WatchHistoryService) DeleteAll(ctx context.Context, ownerID uuid.UUID) error {
	if err := s.historyRepo.DeleteAll(ctx, ownerID); err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.IncrementCounter("histories_cleared")
	}
	log.Info().Str("owner_id", ownerID.String()).Msg("Watch history cleared")
	return nil
}
