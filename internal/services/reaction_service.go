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

// existsCacheTTL bounds how stale an entity existence check may be. Short,
// because a toggle against a just-deleted target should 404 soon after.
const existsCacheTTL = 30 * time.Second

// reactionStore is the slice of the reaction repository this service needs.
type reactionStore interface {
	Toggle(ctx context.Context, actorID uuid.UUID, targetKind models.TargetKind, targetID uuid.UUID, kind models.ReactionKind) (repositories.Outcome, error)
	CountByKind(ctx context.Context, targetKind models.TargetKind, targetID uuid.UUID) (map[models.ReactionKind]int64, error)
	ViewerKinds(ctx context.Context, targetKind models.TargetKind, targetID, viewerID uuid.UUID) ([]models.ReactionKind, error)
}

// entityChecker answers existence questions about collaborator entities.
type entityChecker interface {
	Exists(ctx context.Context, kind models.TargetKind, id uuid.UUID) (bool, error)
}

// eventPublisher pushes domain events onto the bus.
type eventPublisher interface {
	Publish(evt eventbus.Event)
}

// Aggregate is the authoritative read for one reaction kind on one target.
type Aggregate struct {
	Count         int64 `json:"count"`
	ViewerReacted bool  `json:"viewer_reacted"`
}

// ReactionService handles reaction business logic: validation, the toggle,
// and the change broadcast.
type ReactionService struct {
	reactionRepo reactionStore
	entityRepo   entityChecker
	cache        *cache.RedisCache
	bus          eventPublisher
	metrics      *metrics.Metrics
	tracer       tracing.Tracer
}

// NewReactionService creates a new reaction service
func NewReactionService(
	reactionRepo *repositories.ReactionRepository,
	entityRepo *repositories.EntityRepository,
	redisCache *cache.RedisCache,
	bus *eventbus.Bus,
	metricsCollector *metrics.Metrics,
	tracer tracing.Tracer,
) *ReactionService {
	return &ReactionService{
		reactionRepo: reactionRepo,
		entityRepo:   entityRepo,
		cache:        redisCache,
		bus:          bus,
		metrics:      metricsCollector,
		tracer:       tracer,
	}
}

// Toggle flips actor's reaction on the target and broadcasts the change.
// Returns OutcomeCreated or OutcomeRemoved.
func (s *ReactionService) Toggle(ctx context.Context, actorID uuid.UUID, targetKind models.TargetKind, targetID uuid.UUID, kind models.ReactionKind) (repositories.Outcome, error) {
	txn := s.tracer.StartTransaction("toggle-reaction")
	defer s.tracer.EndTransaction(txn)
	s.tracer.AddAttribute(txn, "target_kind", string(targetKind))
	s.tracer.AddAttribute(txn, "reaction_kind", string(kind))

	if !kindValidFor(targetKind, kind) {
		return "", errors.Wrapf(ErrInvalidArgument, "reaction kind %q is not valid for %s targets", kind, targetKind)
	}

	exists, err := s.targetExists(ctx, targetKind, targetID)
	if err != nil {
		s.tracer.RecordError(txn, err)
		return "", err
	}
	if !exists {
		return "", errors.Wrapf(ErrNotFound, "%s %s", targetKind, targetID)
	}

	span := s.tracer.StartSpan("store-toggle", txn)
	outcome, err := s.reactionRepo.Toggle(ctx, actorID, targetKind, targetID, kind)
	span.End()
	if err != nil {
		s.tracer.RecordError(txn, err)
		return "", errors.Wrap(err, "failed to toggle reaction")
	}

	if s.metrics != nil {
		s.metrics.IncrementCounter("reactions_toggled")
	}
	log.Info().
		Str("actor_id", actorID.String()).
		Str("target_kind", string(targetKind)).
		Str("target_id", targetID.String()).
		Str("kind", string(kind)).
		Str("outcome", string(outcome)).
		Msg("Reaction toggled")

	// Broadcast is a best-effort side channel: the write already succeeded,
	// and the next read sees correct state even if nobody hears about it.
	s.bus.Publish(eventbus.NewEvent(eventKindFor(targetKind), targetID))

	return outcome, nil
}

// AggregateFor returns a fresh count and the viewer's own stance for every
// reaction kind valid on the target. viewerID may be uuid.Nil for anonymous
// readers. Always a live query; safe to call concurrently with toggles.
//
// Unlike Toggle, no existence check is made: reads are total, and an unknown
// target simply reports zero counts. Keeping the read path to pure count
// queries means it can never fail on a target that was deleted mid-page.
func (s *ReactionService) AggregateFor(ctx context.Context, targetKind models.TargetKind, targetID, viewerID uuid.UUID) (map[models.ReactionKind]Aggregate, error) {
	counts, err := s.reactionRepo.CountByKind(ctx, targetKind, targetID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to aggregate reactions")
	}

	viewerKinds := map[models.ReactionKind]bool{}
	if viewerID != uuid.Nil {
		kinds, err := s.reactionRepo.ViewerKinds(ctx, targetKind, targetID, viewerID)
		if err != nil {
			return nil, errors.Wrap(err, "failed to load viewer reactions")
		}
		for _, k := range kinds {
			viewerKinds[k] = true
		}
	}

	result := make(map[models.ReactionKind]Aggregate)
	for _, kind := range models.ValidKindsFor(targetKind) {
		result[kind] = Aggregate{
			Count:         counts[kind],
			ViewerReacted: viewerKinds[kind],
		}
	}
	return result, nil
}

// targetExists checks the entity through the short-TTL cache first.
func (s *ReactionService) targetExists(ctx context.Context, kind models.TargetKind, id uuid.UUID) (bool, error) {
	key := cache.EntityExistsKey(string(kind), id)

	var cached bool
	if err := s.cache.Get(ctx, key, &cached); err == nil {
		return cached, nil
	}

	exists, err := s.entityRepo.Exists(ctx, kind, id)
	if err != nil {
		return false, errors.Wrap(err, "failed to check target existence")
	}

	// Only positive results are cached: absence is usually a typo or a
	// race with creation, not worth pinning for the TTL.
	if exists {
		if err := s.cache.Set(ctx, key, true, existsCacheTTL); err != nil {
			log.Warn().Err(err).Msg("Failed to cache existence check")
		}
	}
	return exists, nil
}

func kindValidFor(target models.TargetKind, kind models.ReactionKind) bool {
	for _, k := range models.ValidKindsFor(target) {
		if k == kind {
			return true
		}
	}
	return false
}

func eventKindFor(target models.TargetKind) eventbus.Kind {
	switch target {
	case models.TargetComment:
		return eventbus.KindCommentReactionChanged
	case models.TargetChannel:
		return eventbus.KindSubscriptionChanged
	default:
		return eventbus.KindVideoReactionChanged
	}
}
