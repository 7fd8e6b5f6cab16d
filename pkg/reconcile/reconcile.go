// Package reconcile implements the client side of the engagement consistency
// contract: optimistic local application of a toggle, rollback on failure, and
// full replacement from an authoritative re-fetch whenever the server says a
// target changed. Notifications never carry state, so merging is never needed;
// the freshest fetch always wins.
package reconcile

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Aggregate mirrors the server's per-kind read: a count and the viewer's own
// stance.
type Aggregate struct {
	Count         int64 `json:"count"`
	ViewerReacted bool  `json:"viewer_reacted"`
}

// Snapshot is the full aggregate set for one target, keyed by reaction kind.
type Snapshot map[string]Aggregate

// Fetcher loads the authoritative snapshot for a target, typically by calling
// the engagement service's aggregate endpoint.
type Fetcher interface {
	Fetch(ctx context.Context, targetID uuid.UUID) (Snapshot, error)
}

// Reconciler keeps locally displayed aggregates consistent with the server.
// Safe for concurrent use.
type Reconciler struct {
	mu      sync.Mutex
	fetcher Fetcher
	targets map[uuid.UUID]Snapshot
}

// New creates a reconciler backed by the given fetcher.
func New(fetcher Fetcher) *Reconciler {
	return &Reconciler{
		fetcher: fetcher,
		targets: make(map[uuid.UUID]Snapshot),
	}
}

// Seed installs an initial snapshot for a target, usually from the first page
// load.
func (r *Reconciler) Seed(targetID uuid.UUID, snap Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.targets[targetID] = snap.clone()
}

// Get returns a copy of the current snapshot for a target.
func (r *Reconciler) Get(targetID uuid.UUID) (Snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap, ok := r.targets[targetID]
	if !ok {
		return nil, false
	}
	return snap.clone(), true
}

// ApplyOptimistic adjusts the local snapshot as if the toggle already
// succeeded and returns an undo function for when the request fails.
//
// Toggling a held kind releases it (count-1); toggling an unheld kind takes it
// (count+1) and, when exclusiveWith names a kind the viewer currently holds,
// releases that one too. Calling undo restores the exact prior snapshot.
func (r *Reconciler) ApplyOptimistic(targetID uuid.UUID, kind, exclusiveWith string) func() {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap, ok := r.targets[targetID]
	if !ok {
		snap = Snapshot{}
		r.targets[targetID] = snap
	}
	prior := snap.clone()

	agg := snap[kind]
	if agg.ViewerReacted {
		agg.Count--
		agg.ViewerReacted = false
	} else {
		agg.Count++
		agg.ViewerReacted = true

		if exclusiveWith != "" {
			if other := snap[exclusiveWith]; other.ViewerReacted {
				other.Count--
				other.ViewerReacted = false
				snap[exclusiveWith] = other
			}
		}
	}
	snap[kind] = agg

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.targets[targetID] = prior
	}
}

// OnNotify handles a change notification for a target: re-fetch the
// authoritative snapshot and replace the local one wholesale. Targets the
// reconciler is not tracking are ignored.
func (r *Reconciler) OnNotify(ctx context.Context, targetID uuid.UUID) error {
	r.mu.Lock()
	_, tracked := r.targets[targetID]
	r.mu.Unlock()
	if !tracked {
		return nil
	}

	snap, err := r.fetcher.Fetch(ctx, targetID)
	if err != nil {
		// Keep the stale snapshot; the next notification or page load
		// will replace it.
		return errors.Wrap(err, "failed to re-fetch aggregate")
	}

	r.mu.Lock()
	r.targets[targetID] = snap.clone()
	r.mu.Unlock()
	return nil
}

// Forget drops a target from tracking, e.g. when it scrolls out of view.
func (r *Reconciler) Forget(targetID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.targets, targetID)
}

func (s Snapshot) clone() Snapshot {
	out := make(Snapshot, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}
