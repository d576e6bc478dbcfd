package geometry

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/scanloom/scanloom/pkg/math3"
)

func TestPolylineLengthTwoPoints(t *testing.T) {
	a := math3.Vec3(0, 0, 0)
	b := math3.Vec3(3, 4, 0)
	got := PolylineLength([]math3.Vector3{a, b})
	assert.InDelta(t, 5.0, got, 1e-5)
}

func TestPolylineLengthIsAdditive(t *testing.T) {
	a := math3.Vec3(0, 0, 0)
	b := math3.Vec3(1, 2, 2)
	c := math3.Vec3(4, 2, 2)

	ab := PolylineLength([]math3.Vector3{a, b})
	bc := PolylineLength([]math3.Vector3{b, c})
	abc := PolylineLength([]math3.Vector3{a, b, c})

	assert.InDelta(t, float64(ab+bc), float64(abc), 1e-5)
	assert.InDelta(t, 6.0, abc, 1e-5)
}

func TestPolylineLengthDegenerate(t *testing.T) {
	assert.Zero(t, PolylineLength(nil))
	assert.Zero(t, PolylineLength([]math3.Vector3{math3.Vec3(1, 1, 1)}))
}

func TestPolygonAreaUnitSquare(t *testing.T) {
	square := []math3.Vector3{
		math3.Vec3(0, 0, 0),
		math3.Vec3(1, 0, 0),
		math3.Vec3(1, 0, 1),
		math3.Vec3(0, 0, 1),
	}
	assert.InDelta(t, 1.0, PolygonArea(square), 1e-5)
}

func TestPolygonAreaTriangle(t *testing.T) {
	tri := []math3.Vector3{
		math3.Vec3(0, 0, 0),
		math3.Vec3(2, 0, 0),
		math3.Vec3(0, 2, 0),
	}
	assert.InDelta(t, 2.0, PolygonArea(tri), 1e-5)
}

func TestPolygonAreaNonPlanarTolerated(t *testing.T) {
	// Lift one corner of the unit square slightly off the plane; the fan sum
	// should stay close to 1 rather than collapsing or erroring.
	quad := []math3.Vector3{
		math3.Vec3(0, 0, 0),
		math3.Vec3(1, 0, 0),
		math3.Vec3(1, 0.05, 1),
		math3.Vec3(0, 0, 1),
	}
	assert.InDelta(t, 1.0, PolygonArea(quad), 0.05)
}

func TestPolygonAreaRequiresThreePoints(t *testing.T) {
	assert.Zero(t, PolygonArea([]math3.Vector3{math3.Vec3(0, 0, 0), math3.Vec3(1, 0, 0)}))
}

func TestValueDispatchesOnType(t *testing.T) {
	square := []math3.Vector3{
		math3.Vec3(0, 0, 0),
		math3.Vec3(1, 0, 0),
		math3.Vec3(1, 0, 1),
		math3.Vec3(0, 0, 1),
	}
	assert.InDelta(t, 1.0, Value("area", square), 1e-5)
	assert.InDelta(t, 3.0, Value("distance", square), 1e-5)
}

func TestRemoveSegmentSingleSegmentDeletes(t *testing.T) {
	points := []math3.Vector3{math3.Vec3(0, 0, 0), math3.Vec3(1, 0, 0)}
	out := RemoveSegment(points, 0)
	assert.Equal(t, SegmentDeleted, out.Kind)
	assert.Nil(t, out.Head)
	assert.Nil(t, out.Tail)
}

func TestRemoveSegmentFirstTruncates(t *testing.T) {
	points := []math3.Vector3{
		math3.Vec3(0, 0, 0), math3.Vec3(1, 0, 0), math3.Vec3(2, 0, 0), math3.Vec3(3, 0, 0),
	}
	out := RemoveSegment(points, 0)
	assert.Equal(t, SegmentTruncated, out.Kind)
	assert.Equal(t, points[1:], out.Head)
}

func TestRemoveSegmentLastTruncates(t *testing.T) {
	points := []math3.Vector3{
		math3.Vec3(0, 0, 0), math3.Vec3(1, 0, 0), math3.Vec3(2, 0, 0), math3.Vec3(3, 0, 0),
	}
	out := RemoveSegment(points, 2)
	assert.Equal(t, SegmentTruncated, out.Kind)
	assert.Equal(t, points[:3], out.Head)
}

func TestRemoveSegmentMiddleSplits(t *testing.T) {
	points := []math3.Vector3{
		math3.Vec3(0, 0, 0), math3.Vec3(1, 0, 0), math3.Vec3(2, 0, 0), math3.Vec3(3, 0, 0),
	}
	out := RemoveSegment(points, 1)
	assert.Equal(t, SegmentSplit, out.Kind)
	assert.Equal(t, points[:2], out.Head)
	assert.Equal(t, points[2:], out.Tail)

	assert.InDelta(t, 1.0, PolylineLength(out.Head), 1e-5)
	assert.InDelta(t, 1.0, PolylineLength(out.Tail), 1e-5)
}

func TestRemoveSegmentOutOfRangeIsNoOp(t *testing.T) {
	points := []math3.Vector3{
		math3.Vec3(0, 0, 0), math3.Vec3(1, 0, 0), math3.Vec3(2, 0, 0),
	}
	for _, idx := range []int{-1, 2, 99} {
		out := RemoveSegment(points, idx)
		assert.Equal(t, SegmentNoOp, out.Kind, "index %d", idx)
	}
}

func TestRemoveSegmentDoesNotAliasInput(t *testing.T) {
	points := []math3.Vector3{
		math3.Vec3(0, 0, 0), math3.Vec3(1, 0, 0), math3.Vec3(2, 0, 0), math3.Vec3(3, 0, 0),
	}
	out := RemoveSegment(points, 1)
	out.Head[0] = math3.Vec3(9, 9, 9)
	assert.Equal(t, math3.Vec3(0, 0, 0), points[0])
}
