package reconcile

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

type stubFetcher struct {
	snapshots map[uuid.UUID]Snapshot
	err       error
	calls     int
}

func (f *stubFetcher) Fetch(_ context.Context, targetID uuid.UUID) (Snapshot, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.snapshots[targetID], nil
}

func TestApplyOptimisticTogglesOn(t *testing.T) {
	r := New(&stubFetcher{})
	targetID := uuid.New()
	r.Seed(targetID, Snapshot{"like": {Count: 10}})

	r.ApplyOptimistic(targetID, "like", "disLike")

	snap, ok := r.Get(targetID)
	require.True(t, ok)
	require.Equal(t, Aggregate{Count: 11, ViewerReacted: true}, snap["like"])
}

func TestApplyOptimisticTogglesOff(t *testing.T) {
	r := New(&stubFetcher{})
	targetID := uuid.New()
	r.Seed(targetID, Snapshot{"like": {Count: 11, ViewerReacted: true}})

	r.ApplyOptimistic(targetID, "like", "disLike")

	snap, _ := r.Get(targetID)
	require.Equal(t, Aggregate{Count: 10, ViewerReacted: false}, snap["like"])
}

func TestApplyOptimisticReleasesExclusiveKind(t *testing.T) {
	r := New(&stubFetcher{})
	targetID := uuid.New()
	r.Seed(targetID, Snapshot{
		"like":    {Count: 10},
		"disLike": {Count: 4, ViewerReacted: true},
	})

	r.ApplyOptimistic(targetID, "like", "disLike")

	snap, _ := r.Get(targetID)
	require.Equal(t, Aggregate{Count: 11, ViewerReacted: true}, snap["like"])
	require.Equal(t, Aggregate{Count: 3, ViewerReacted: false}, snap["disLike"])
}

func TestUndoRestoresPriorSnapshot(t *testing.T) {
	r := New(&stubFetcher{})
	targetID := uuid.New()
	seed := Snapshot{
		"like":    {Count: 10},
		"disLike": {Count: 4, ViewerReacted: true},
	}
	r.Seed(targetID, seed)

	undo := r.ApplyOptimistic(targetID, "like", "disLike")
	undo()

	snap, _ := r.Get(targetID)
	require.Equal(t, seed, snap)
}

func TestOnNotifyReplacesSnapshotWholesale(t *testing.T) {
	targetID := uuid.New()
	fetcher := &stubFetcher{snapshots: map[uuid.UUID]Snapshot{
		targetID: {"like": {Count: 42, ViewerReacted: true}},
	}}
	r := New(fetcher)

	// Local state drifted; the fetch wins entirely
	r.Seed(targetID, Snapshot{"like": {Count: 7}, "disLike": {Count: 3}})

	require.NoError(t, r.OnNotify(context.Background(), targetID))

	snap, _ := r.Get(targetID)
	require.Equal(t, Snapshot{"like": {Count: 42, ViewerReacted: true}}, snap)
}

func TestOnNotifyIgnoresUntrackedTargets(t *testing.T) {
	fetcher := &stubFetcher{}
	r := New(fetcher)

	require.NoError(t, r.OnNotify(context.Background(), uuid.New()))
	require.Zero(t, fetcher.calls)
}

func TestOnNotifyKeepsStaleSnapshotOnFetchFailure(t *testing.T) {
	targetID := uuid.New()
	fetcher := &stubFetcher{err: errors.New("gateway timeout")}
	r := New(fetcher)

	seed := Snapshot{"like": {Count: 5}}
	r.Seed(targetID, seed)

	require.Error(t, r.OnNotify(context.Background(), targetID))

	snap, _ := r.Get(targetID)
	require.Equal(t, seed, snap)
}

func TestGetReturnsCopy(t *testing.T) {
	r := New(&stubFetcher{})
	targetID := uuid.New()
	r.Seed(targetID, Snapshot{"like": {Count: 1}})

	snap, _ := r.Get(targetID)
	snap["like"] = Aggregate{Count: 99}

	fresh, _ := r.Get(targetID)
	require.Equal(t, int64(1), fresh["like"].Count)
}
