// Package geometry implements the pure measurement math: polyline length,
// fan-triangulated polygon area, and the three-way outcome of removing one
// segment from a polyline. It holds no state and depends only on the vector
// math in pkg/math3.
package geometry

import (
	"github.com/scanloom/scanloom/pkg/math3"
)

// PolylineLength returns the sum of Euclidean distances between consecutive
// points. With exactly 2 points this is a straight-line distance. Fewer than
// 2 points yields 0.
func PolylineLength(points []math3.Vector3) float32 {
	var total float32
	for i := 1; i < len(points); i++ {
		total += points[i].DistanceTo(points[i-1])
	}
	return total
}

// PolygonArea returns the area enclosed by the given points using fan
// triangulation from the first vertex: half the magnitude of the summed
// cross products of vectors from points[0] to each subsequent pair. Summing
// the cross vectors before taking the magnitude generalizes planar polygon
// area to a best-fit value for the not-quite-coplanar point sets real scan
// data produces. Fewer than 3 points yields 0.
func PolygonArea(points []math3.Vector3) float32 {
	if len(points) < 3 {
		return 0
	}
	origin := points[0]
	var sum math3.Vector3
	for i := 1; i < len(points)-1; i++ {
		a := points[i].Sub(origin)
		b := points[i+1].Sub(origin)
		sum = sum.Add(a.Cross(b))
	}
	return sum.Length() / 2
}

// Value returns the derived value for a measurement of the given type:
// polyline length for distance, fan-triangulated area for area.
func Value(mtype string, points []math3.Vector3) float32 {
	if mtype == "area" {
		return PolygonArea(points)
	}
	return PolylineLength(points)
}

// SegmentOutcomeKind tags what removing a segment did to the polyline.
type SegmentOutcomeKind int

const (
	// SegmentNoOp means the segment index was out of range; nothing applies.
	SegmentNoOp SegmentOutcomeKind = iota

	// SegmentDeleted means the polyline had a single segment and the whole
	// measurement should be deleted.
	SegmentDeleted

	// SegmentTruncated means an end segment was removed and the polyline
	// shrank in place by one point.
	SegmentTruncated

	// SegmentSplit means a middle segment was removed and the polyline
	// divided into two independent point runs.
	SegmentSplit
)

// String returns the outcome tag as a short lowercase word.
func (k SegmentOutcomeKind) String() string {
	switch k {
	case SegmentDeleted:
		return "deleted"
	case SegmentTruncated:
		return "truncated"
	case SegmentSplit:
		return "split"
	}
	return "noop"
}

// SegmentOutcome describes the result of removing one segment. For
// SegmentTruncated, Head holds the surviving points. For SegmentSplit, Head
// holds points [0..segment] and Tail holds points [segment+1..end]. Both are
// freshly allocated; the input slice is never aliased.
type SegmentOutcome struct {
	Kind SegmentOutcomeKind
	Head []math3.Vector3
	Tail []math3.Vector3
}

// RemoveSegment computes the outcome of removing segment segIndex from the
// given polyline, where segment i connects points[i] and points[i+1]:
//
//   - a 2-point polyline loses its only segment and is deleted;
//   - removing the first or last segment drops the adjacent endpoint and
//     truncates the polyline in place;
//   - removing a middle segment splits the polyline into two runs.
//
// An index outside [0, len(points)-2] returns SegmentNoOp: invalid input is
// declined, not treated as an error.
func RemoveSegment(points []math3.Vector3, segIndex int) SegmentOutcome {
	segCount := len(points) - 1
	if segIndex < 0 || segIndex >= segCount {
		return SegmentOutcome{Kind: SegmentNoOp}
	}

	if len(points) == 2 {
		return SegmentOutcome{Kind: SegmentDeleted}
	}

	switch segIndex {
	case 0:
		head := make([]math3.Vector3, len(points)-1)
		copy(head, points[1:])
		return SegmentOutcome{Kind: SegmentTruncated, Head: head}
	case segCount - 1:
		head := make([]math3.Vector3, len(points)-1)
		copy(head, points[:len(points)-1])
		return SegmentOutcome{Kind: SegmentTruncated, Head: head}
	}

	head := make([]math3.Vector3, segIndex+1)
	copy(head, points[:segIndex+1])
	tail := make([]math3.Vector3, len(points)-segIndex-1)
	copy(tail, points[segIndex+1:])
	return SegmentOutcome{Kind: SegmentSplit, Head: head, Tail: tail}
}
