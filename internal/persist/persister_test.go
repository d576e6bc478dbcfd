package persist

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scanloom/scanloom/internal/storage"
	"github.com/scanloom/scanloom/internal/storage/sqlite"
	"github.com/scanloom/scanloom/pkg/math3"
	"github.com/scanloom/scanloom/pkg/types"
)

func newSQLiteStore(t *testing.T) storage.SceneStore {
	t.Helper()
	store, err := sqlite.NewSceneStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func measurementEvent(op types.ChangeOp, m *types.Measurement) types.ChangeEvent {
	return types.ChangeEvent{
		ScanID: m.ScanID,
		Kind:   types.KindMeasurement,
		Op:     op,
		ID:     m.ID,
		Entity: m,
	}
}

func TestApplyMeasurementLifecycle(t *testing.T) {
	store := newSQLiteStore(t)
	p := New(store, Config{})
	ctx := context.Background()

	m := &types.Measurement{
		ID: "m1", ScanID: "scan-1", Type: types.MeasurementDistance,
		Points: []math3.Vector3{math3.Vec3(0, 0, 0), math3.Vec3(3, 0, 0)},
		Value:  3,
	}
	require.NoError(t, p.Apply(ctx, measurementEvent(types.OpInsert, m)))

	m.Value = 4
	m.Points[1] = math3.Vec3(4, 0, 0)
	require.NoError(t, p.Apply(ctx, measurementEvent(types.OpUpdate, m)))

	got, err := store.GetMeasurement(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, float32(4), got.Value)

	require.NoError(t, p.Apply(ctx, measurementEvent(types.OpDelete, m)))
	_, err = store.GetMeasurement(ctx, "m1")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestApplyDeleteMissingIsNotAnError(t *testing.T) {
	p := New(newSQLiteStore(t), Config{})
	ev := types.ChangeEvent{
		ScanID: "scan-1", Kind: types.KindAnnotation,
		Op: types.OpDelete, ID: "never-existed",
	}
	assert.NoError(t, p.Apply(context.Background(), ev))
}

func TestApplyReplyEventsUpdateAnnotation(t *testing.T) {
	store := newSQLiteStore(t)
	p := New(store, Config{})
	ctx := context.Background()

	a := &types.Annotation{
		ID: "a1", ScanID: "scan-1", Type: types.AnnotationComment,
		Position: math3.Vec3(1, 2, 3), Status: types.StatusOpen,
	}
	require.NoError(t, p.Apply(ctx, types.ChangeEvent{
		ScanID: "scan-1", Kind: types.KindAnnotation, Op: types.OpInsert, ID: "a1", Entity: a,
	}))

	a.Replies = []types.Reply{{ID: "r1", Content: "noted"}}
	require.NoError(t, p.Apply(ctx, types.ChangeEvent{
		ScanID: "scan-1", Kind: types.KindReply, Op: types.OpUpdate, ID: "a1", Entity: a,
	}))

	got, err := store.GetAnnotation(ctx, "a1")
	require.NoError(t, err)
	require.Len(t, got.Replies, 1)
}

func TestApplyUnknownKind(t *testing.T) {
	p := New(newSQLiteStore(t), Config{})
	err := p.Apply(context.Background(), types.ChangeEvent{Kind: "mystery", Op: types.OpInsert})
	assert.Error(t, err)
}

func TestRunDrainsQueue(t *testing.T) {
	store := newSQLiteStore(t)
	p := New(store, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	go p.Run(ctx)

	m := &types.Measurement{
		ID: "m1", ScanID: "scan-1", Type: types.MeasurementDistance,
		Points: []math3.Vector3{math3.Vec3(0, 0, 0), math3.Vec3(1, 0, 0)},
		Value:  1,
	}
	p.Enqueue(measurementEvent(types.OpInsert, m))

	require.Eventually(t, func() bool {
		_, err := store.GetMeasurement(context.Background(), "m1")
		return err == nil
	}, 2*time.Second, 10*time.Millisecond, "queued event should reach the store")

	cancel()
	select {
	case <-p.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not exit after cancel")
	}
}

// failingStore always errors, for breaker tests.
type failingStore struct {
	storage.SceneStore
	calls int
}

var errBackendDown = errors.New("backend down")

func (f *failingStore) CreateMeasurement(ctx context.Context, m *types.Measurement) error {
	f.calls++
	return errBackendDown
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	fs := &failingStore{}
	p := New(fs, Config{MaxFailures: 3, Timeout: time.Minute})
	ctx := context.Background()

	m := &types.Measurement{ID: "m1", ScanID: "scan-1", Type: types.MeasurementDistance}
	ev := measurementEvent(types.OpInsert, m)

	// apply logs instead of returning errors; drive it past the threshold.
	for i := 0; i < 5; i++ {
		p.apply(ctx, ev)
	}

	// Once open, the breaker stops calling through to the store.
	assert.Equal(t, 3, fs.calls)
}

func TestWriteReturnsErrCircuitOpen(t *testing.T) {
	fs := &failingStore{}
	p := New(fs, Config{MaxFailures: 2, Timeout: time.Minute})
	ctx := context.Background()

	ev := measurementEvent(types.OpInsert, &types.Measurement{
		ID: "m1", ScanID: "scan-1", Type: types.MeasurementDistance,
	})

	// Failures pass through verbatim until the breaker trips.
	require.ErrorIs(t, p.Write(ctx, ev), errBackendDown)
	require.ErrorIs(t, p.Write(ctx, ev), errBackendDown)
	assert.ErrorIs(t, p.Write(ctx, ev), ErrCircuitOpen)
	assert.Equal(t, 2, fs.calls)
}
