package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scanloom/scanloom/internal/geometry"
	"github.com/scanloom/scanloom/pkg/math3"
	"github.com/scanloom/scanloom/pkg/types"
)

const testScan = "scan-1"

func newTestEngine() *SceneEngine {
	return New(testScan)
}

// finalizeDistance builds a distance measurement through the public pending
// flow and returns it.
func finalizeDistance(t *testing.T, e *SceneEngine, points ...math3.Vector3) *types.Measurement {
	t.Helper()
	e.StartMeasurement(types.MeasurementDistance)
	for _, p := range points {
		e.AddMeasurementPoint(p)
	}
	m := e.FinalizeMeasurement("m", "user-1")
	require.NotNil(t, m)
	return m
}

func TestPendingLifecycle(t *testing.T) {
	e := newTestEngine()

	e.StartMeasurement(types.MeasurementDistance)
	require.NotNil(t, e.Pending())

	// Starting again while one is pending is a no-op preserving the original.
	e.AddMeasurementPoint(math3.Vec3(1, 0, 0))
	e.StartMeasurement(types.MeasurementArea)
	p := e.Pending()
	require.NotNil(t, p)
	assert.Equal(t, types.MeasurementDistance, p.Type)
	assert.Len(t, p.Points, 1)

	// Undo of the only point discards the pending state entirely.
	e.UndoLastPoint()
	assert.Nil(t, e.Pending())
}

func TestUndoLastPointKeepsEarlierPoints(t *testing.T) {
	e := newTestEngine()
	e.StartMeasurement(types.MeasurementDistance)
	e.AddMeasurementPoint(math3.Vec3(0, 0, 0))
	e.AddMeasurementPoint(math3.Vec3(1, 0, 0))
	e.UndoLastPoint()

	p := e.Pending()
	require.NotNil(t, p)
	assert.Len(t, p.Points, 1)
}

func TestCancelMeasurement(t *testing.T) {
	e := newTestEngine()
	e.StartMeasurement(types.MeasurementArea)
	e.AddMeasurementPoint(math3.Vec3(0, 0, 0))
	e.CancelMeasurement()
	assert.Nil(t, e.Pending())
}

func TestFinalizeValidatesPointMinimums(t *testing.T) {
	e := newTestEngine()

	// Distance with one point declines.
	e.StartMeasurement(types.MeasurementDistance)
	e.AddMeasurementPoint(math3.Vec3(0, 0, 0))
	assert.Nil(t, e.FinalizeMeasurement("m", "user-1"))
	require.NotNil(t, e.Pending(), "failed finalize must leave state unchanged")
	e.CancelMeasurement()

	// Area with two points declines.
	e.StartMeasurement(types.MeasurementArea)
	e.AddMeasurementPoint(math3.Vec3(0, 0, 0))
	e.AddMeasurementPoint(math3.Vec3(1, 0, 0))
	assert.Nil(t, e.FinalizeMeasurement("m", "user-1"))
	require.NotNil(t, e.Pending())
}

func TestFinalizeComputesValue(t *testing.T) {
	e := newTestEngine()
	m := finalizeDistance(t, e,
		math3.Vec3(0, 0, 0), math3.Vec3(1, 0, 0), math3.Vec3(1, 2, 0))

	assert.InDelta(t, 3.0, m.Value, 1e-5)
	assert.Equal(t, testScan, m.ScanID)
	assert.Nil(t, e.Pending())

	stored, ok := e.Measurement(m.ID)
	require.True(t, ok)
	assert.Equal(t, m.Points, stored.Points)
}

func TestFinalizeAreaValue(t *testing.T) {
	e := newTestEngine()
	e.StartMeasurement(types.MeasurementArea)
	for _, p := range []math3.Vector3{
		math3.Vec3(0, 0, 0), math3.Vec3(1, 0, 0), math3.Vec3(1, 0, 1), math3.Vec3(0, 0, 1),
	} {
		e.AddMeasurementPoint(p)
	}
	m := e.FinalizeMeasurement("m²", "user-1")
	require.NotNil(t, m)
	assert.InDelta(t, 1.0, m.Value, 1e-5)
}

func TestUpdateMeasurementPointsIdempotent(t *testing.T) {
	e := newTestEngine()
	m := finalizeDistance(t, e, math3.Vec3(0, 0, 0), math3.Vec3(3, 4, 0))

	points := []math3.Vector3{math3.Vec3(0, 0, 0), math3.Vec3(6, 8, 0)}
	e.UpdateMeasurementPoints(m.ID, points)
	first, _ := e.Measurement(m.ID)
	e.UpdateMeasurementPoints(m.ID, points)
	second, _ := e.Measurement(m.ID)

	assert.Equal(t, first.Value, second.Value)
	assert.InDelta(t, 10.0, second.Value, 1e-5)
}

func TestUpdateMeasurementPointsCountMismatchDeclines(t *testing.T) {
	e := newTestEngine()
	m := finalizeDistance(t, e, math3.Vec3(0, 0, 0), math3.Vec3(1, 0, 0))

	e.UpdateMeasurementPoints(m.ID, []math3.Vector3{math3.Vec3(0, 0, 0)})
	got, _ := e.Measurement(m.ID)
	assert.Len(t, got.Points, 2)
}

func TestUpdateSinglePointRecomputes(t *testing.T) {
	e := newTestEngine()
	m := finalizeDistance(t, e, math3.Vec3(0, 0, 0), math3.Vec3(1, 0, 0))

	e.UpdateMeasurementPoint(m.ID, 1, math3.Vec3(5, 0, 0))
	got, _ := e.Measurement(m.ID)
	assert.InDelta(t, 5.0, got.Value, 1e-5)

	// Out-of-range index declines.
	e.UpdateMeasurementPoint(m.ID, 7, math3.Vec3(9, 9, 9))
	got, _ = e.Measurement(m.ID)
	assert.InDelta(t, 5.0, got.Value, 1e-5)
}

func TestMutualExclusivity(t *testing.T) {
	e := newTestEngine()
	m := finalizeDistance(t, e, math3.Vec3(0, 0, 0), math3.Vec3(1, 0, 0))
	a := e.CreateAnnotation(types.AnnotationPin, math3.Vec3(0, 1, 0), "check this", "user-1")

	steps := []struct {
		name string
		do   func()
		want ModeKind
	}{
		{"select annotation", func() { e.SelectAnnotation(a.ID) }, ModeAnnotationSelected},
		{"select point", func() { e.SelectMeasurementPoint(m.ID, 0) }, ModePointSelected},
		{"drag annotation", func() { e.StartDraggingAnnotation(a.ID) }, ModeDraggingAnnotation},
		{"drag point", func() { e.StartDraggingMeasurementPoint(m.ID, 1) }, ModeDraggingPoint},
		{"arm tool", func() { e.SetActiveTool(ToolDistance) }, ModeToolActive},
		{"select annotation again", func() { e.SelectAnnotation(a.ID) }, ModeAnnotationSelected},
	}
	for _, s := range steps {
		s.do()
		assert.Equal(t, s.want, e.Mode().Kind, s.name)
	}
}

func TestArmingToolClearsSelection(t *testing.T) {
	e := newTestEngine()
	a := e.CreateAnnotation(types.AnnotationComment, math3.Vec3(0, 0, 0), "c", "u")
	e.SelectAnnotation(a.ID)
	e.SetActiveTool(ToolArea)

	mode := e.Mode()
	assert.Equal(t, ModeToolActive, mode.Kind)
	assert.Empty(t, mode.EntityID)
}

func TestDragSavesAndRestoresTool(t *testing.T) {
	e := newTestEngine()
	m := finalizeDistance(t, e, math3.Vec3(0, 0, 0), math3.Vec3(1, 0, 0))

	e.SetActiveTool(ToolDistance)
	e.StartDraggingMeasurementPoint(m.ID, 0)
	assert.Equal(t, ModeDraggingPoint, e.Mode().Kind)
	assert.Equal(t, ToolNone, e.ActiveTool(), "tool is cleared during the drag")

	prev, ok := e.StopDragging()
	require.True(t, ok)
	assert.Equal(t, ModeDraggingPoint, prev.Kind)
	assert.Equal(t, ToolDistance, e.ActiveTool(), "tool is restored after the drag")
}

func TestStopDraggingWithoutToolSelectsPoint(t *testing.T) {
	e := newTestEngine()
	m := finalizeDistance(t, e, math3.Vec3(0, 0, 0), math3.Vec3(1, 0, 0))

	e.StartDraggingMeasurementPoint(m.ID, 1)
	_, ok := e.StopDragging()
	require.True(t, ok)

	mode := e.Mode()
	assert.Equal(t, ModePointSelected, mode.Kind)
	assert.Equal(t, m.ID, mode.EntityID)
	assert.Equal(t, 1, mode.PointIndex)
}

func TestSelectUnknownEntityDeclines(t *testing.T) {
	e := newTestEngine()
	e.SelectAnnotation("nope")
	assert.Equal(t, ModeNone, e.Mode().Kind)
	e.SelectMeasurementPoint("nope", 0)
	assert.Equal(t, ModeNone, e.Mode().Kind)
}

func TestRemoveSegmentDeletesTwoPointMeasurement(t *testing.T) {
	e := newTestEngine()
	m := finalizeDistance(t, e, math3.Vec3(0, 0, 0), math3.Vec3(1, 0, 0))
	e.SelectMeasurementPoint(m.ID, 0)

	res := e.RemoveSegmentFromMeasurement(m.ID, 0)
	assert.Equal(t, geometry.SegmentDeleted, res.Kind)
	require.NotNil(t, res.Deleted)
	assert.Equal(t, m.ID, res.Deleted.ID)

	_, ok := e.Measurement(m.ID)
	assert.False(t, ok)
	assert.Equal(t, ModeNone, e.Mode().Kind, "selection referencing the measurement is cleared")
}

func TestRemoveSegmentTruncates(t *testing.T) {
	e := newTestEngine()
	m := finalizeDistance(t, e,
		math3.Vec3(0, 0, 0), math3.Vec3(1, 0, 0), math3.Vec3(2, 0, 0), math3.Vec3(3, 0, 0))

	res := e.RemoveSegmentFromMeasurement(m.ID, 0)
	assert.Equal(t, geometry.SegmentTruncated, res.Kind)
	require.NotNil(t, res.Updated)
	assert.Len(t, res.Updated.Points, 3)
	assert.Equal(t, math3.Vec3(1, 0, 0), res.Updated.Points[0])
	assert.InDelta(t, 2.0, res.Updated.Value, 1e-5)
}

func TestRemoveSegmentSplits(t *testing.T) {
	e := newTestEngine()
	m := finalizeDistance(t, e,
		math3.Vec3(0, 0, 0), math3.Vec3(1, 0, 0), math3.Vec3(2, 0, 0), math3.Vec3(3, 0, 0))

	res := e.RemoveSegmentFromMeasurement(m.ID, 1)
	assert.Equal(t, geometry.SegmentSplit, res.Kind)
	require.NotNil(t, res.Updated)
	require.NotNil(t, res.Created)

	assert.Equal(t, m.ID, res.Updated.ID)
	assert.Len(t, res.Updated.Points, 2)
	assert.InDelta(t, 1.0, res.Updated.Value, 1e-5)

	assert.NotEqual(t, m.ID, res.Created.ID)
	assert.Len(t, res.Created.Points, 2)
	assert.InDelta(t, 1.0, res.Created.Value, 1e-5)
	assert.Equal(t, m.Type, res.Created.Type, "split inherits type")
	assert.Equal(t, m.Unit, res.Created.Unit, "split inherits unit")
	assert.Equal(t, m.CreatedBy, res.Created.CreatedBy, "split inherits creator")

	assert.Len(t, e.Measurements(), 2)
}

func TestRemoveSegmentOutOfRangeNoOp(t *testing.T) {
	e := newTestEngine()
	m := finalizeDistance(t, e, math3.Vec3(0, 0, 0), math3.Vec3(1, 0, 0), math3.Vec3(2, 0, 0))

	res := e.RemoveSegmentFromMeasurement(m.ID, 5)
	assert.Equal(t, geometry.SegmentNoOp, res.Kind)

	got, ok := e.Measurement(m.ID)
	require.True(t, ok)
	assert.Len(t, got.Points, 3)
}

func TestAnnotationStatusFlatSet(t *testing.T) {
	e := newTestEngine()
	a := e.CreateAnnotation(types.AnnotationComment, math3.Vec3(0, 0, 0), "hmm", "u")
	assert.Equal(t, types.StatusOpen, a.Status)

	// Any status is reachable from any other, including archived → open.
	for _, s := range []types.AnnotationStatus{
		types.StatusResolved, types.StatusReopened, types.StatusArchived, types.StatusOpen, types.StatusInProgress,
	} {
		e.SetAnnotationStatus(a.ID, s)
		got, _ := e.Annotation(a.ID)
		assert.Equal(t, s, got.Status)
	}

	// Unknown statuses decline.
	e.SetAnnotationStatus(a.ID, "bogus")
	got, _ := e.Annotation(a.ID)
	assert.Equal(t, types.StatusInProgress, got.Status)
}

func TestReplyThread(t *testing.T) {
	e := newTestEngine()
	a := e.CreateAnnotation(types.AnnotationComment, math3.Vec3(0, 0, 0), "root", "u1")

	r1 := e.AddReply(a.ID, "first", "u2")
	r2 := e.AddReply(a.ID, "second", "u1")
	require.NotNil(t, r1)
	require.NotNil(t, r2)

	got, _ := e.Annotation(a.ID)
	require.Len(t, got.Replies, 2)
	assert.Equal(t, "first", got.Replies[0].Content)

	e.UpdateReply(a.ID, r1.ID, "first (edited)")
	got, _ = e.Annotation(a.ID)
	assert.Equal(t, "first (edited)", got.Replies[0].Content)

	e.DeleteReply(a.ID, r1.ID)
	got, _ = e.Annotation(a.ID)
	require.Len(t, got.Replies, 1)
	assert.Equal(t, r2.ID, got.Replies[0].ID)

	assert.Nil(t, e.AddReply("nope", "x", "u"))
}

func TestSavedViewOrdering(t *testing.T) {
	e := newTestEngine()
	cam := types.Camera{Position: math3.Vec3(0, 0, 5), FOV: 60}

	v1 := e.AddSavedView("entrance", cam, "u")
	v2 := e.AddSavedView("kitchen", cam, "u")
	v3 := e.AddSavedView("roof", cam, "u")

	order := func() []string {
		var ids []string
		for _, v := range e.SavedViews() {
			ids = append(ids, v.ID)
		}
		return ids
	}
	assert.Equal(t, []string{v1.ID, v2.ID, v3.ID}, order())

	// Move the last view to the front; orders stay dense and zero-based.
	e.ReorderSavedView(v3.ID, 0)
	assert.Equal(t, []string{v3.ID, v1.ID, v2.ID}, order())
	for i, v := range e.SavedViews() {
		assert.Equal(t, i, v.SortOrder)
	}

	// Deleting renumbers the remainder.
	e.DeleteSavedView(v3.ID)
	assert.Equal(t, []string{v1.ID, v2.ID}, order())
	for i, v := range e.SavedViews() {
		assert.Equal(t, i, v.SortOrder)
	}
}

func TestReorderClampsIndex(t *testing.T) {
	e := newTestEngine()
	cam := types.Camera{FOV: 45}
	v1 := e.AddSavedView("a", cam, "u")
	v2 := e.AddSavedView("b", cam, "u")

	e.ReorderSavedView(v1.ID, 99)
	views := e.SavedViews()
	assert.Equal(t, v2.ID, views[0].ID)
	assert.Equal(t, v1.ID, views[1].ID)
}

func TestChangeCallbackFiresForLocalMutations(t *testing.T) {
	e := newTestEngine()
	var events []types.ChangeEvent
	e.SetOnChange(func(ev types.ChangeEvent) { events = append(events, ev) })

	m := finalizeDistance(t, e, math3.Vec3(0, 0, 0), math3.Vec3(1, 0, 0))
	require.Len(t, events, 1)
	assert.Equal(t, types.OpInsert, events[0].Op)
	assert.Equal(t, types.KindMeasurement, events[0].Kind)
	assert.Equal(t, testScan, events[0].ScanID)

	e.DeleteMeasurement(m.ID)
	require.Len(t, events, 2)
	assert.Equal(t, types.OpDelete, events[1].Op)
}

func TestRemoteFoldDoesNotEcho(t *testing.T) {
	e := newTestEngine()
	var events []types.ChangeEvent
	e.SetOnChange(func(ev types.ChangeEvent) { events = append(events, ev) })

	remote := &types.Measurement{
		ID:     "remote-1",
		ScanID: testScan,
		Type:   types.MeasurementDistance,
		Points: []math3.Vector3{math3.Vec3(0, 0, 0), math3.Vec3(1, 0, 0)},
		Value:  1,
	}
	e.ApplyRemoteChange(types.ChangeEvent{
		ScanID: testScan, Kind: types.KindMeasurement, Op: types.OpInsert,
		ID: remote.ID, Entity: remote,
	})

	_, ok := e.Measurement("remote-1")
	assert.True(t, ok)
	assert.Empty(t, events, "remote folds must not fire the change callback")
}

func TestRemoteInsertSkipsExistingEntity(t *testing.T) {
	e := newTestEngine()
	m := finalizeDistance(t, e, math3.Vec3(0, 0, 0), math3.Vec3(1, 0, 0))

	// An echo of our own insert arrives with different (stale) points.
	stale := m.Clone()
	stale.Points[1] = math3.Vec3(99, 0, 0)
	e.ApplyRemoteChange(types.ChangeEvent{
		ScanID: testScan, Kind: types.KindMeasurement, Op: types.OpInsert,
		ID: m.ID, Entity: stale,
	})

	got, _ := e.Measurement(m.ID)
	assert.Equal(t, math3.Vec3(1, 0, 0), got.Points[1], "local entity wins over echoed insert")
}

func TestRemoteChangeForOtherScanIgnored(t *testing.T) {
	e := newTestEngine()
	e.ApplyRemoteChange(types.ChangeEvent{
		ScanID: "other-scan", Kind: types.KindMeasurement, Op: types.OpInsert,
		ID: "x", Entity: &types.Measurement{ID: "x"},
	})
	assert.Empty(t, e.Measurements())
}

func TestRemoteDeleteClearsSelection(t *testing.T) {
	e := newTestEngine()
	a := e.CreateAnnotation(types.AnnotationPin, math3.Vec3(0, 0, 0), "c", "u")
	e.SelectAnnotation(a.ID)

	e.ApplyRemoteChange(types.ChangeEvent{
		ScanID: testScan, Kind: types.KindAnnotation, Op: types.OpDelete, ID: a.ID,
	})
	assert.Equal(t, ModeNone, e.Mode().Kind)
}
