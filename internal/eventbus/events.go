package eventbus

import (
	"time"

	"github.com/google/uuid"
)

// Kind identifies what changed. Consumers treat events as cues to re-fetch
// authoritative state; the payload carries identity only, never state.
type Kind string

const (
	KindVideoReactionChanged   Kind = "video-reaction-changed"
	KindCommentReactionChanged Kind = "comment-reaction-changed"
	KindSubscriptionChanged    Kind = "subscription-changed"
	KindViewCountChanged       Kind = "view-count-changed"
)

// AllKinds lists every event kind the bus carries.
func AllKinds() []Kind {
	return []Kind{
		KindVideoReactionChanged,
		KindCommentReactionChanged,
		KindSubscriptionChanged,
		KindViewCountChanged,
	}
}

// Event is a transient fact that state changed somewhere. Never persisted.
type Event struct {
	Kind       Kind      `json:"kind"`
	TargetID   uuid.UUID `json:"target_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

// NewEvent builds an event stamped with the current time.
func NewEvent(kind Kind, targetID uuid.UUID) Event {
	return Event{
		Kind:       kind,
		TargetID:   targetID,
		OccurredAt: time.Now().UTC(),
	}
}
