// Package types defines the shared entity model for the Scanloom spatial
// annotation system: measurements, annotations with threaded replies, and
// saved camera views, all anchored in the world space of a captured scan.
package types

// MeasurementType identifies what a measurement's points describe.
type MeasurementType string

const (
	// MeasurementDistance is a polyline whose value is total length.
	MeasurementDistance MeasurementType = "distance"

	// MeasurementArea is a polygon whose value is enclosed area.
	MeasurementArea MeasurementType = "area"
)

// Valid reports whether t is a known measurement type.
func (t MeasurementType) Valid() bool {
	return t == MeasurementDistance || t == MeasurementArea
}

// MinPoints returns the minimum number of points a finalized measurement of
// this type requires: 2 for distance, 3 for area.
func (t MeasurementType) MinPoints() int {
	if t == MeasurementArea {
		return 3
	}
	return 2
}

// AnnotationType identifies the flavor of an annotation marker.
type AnnotationType string

const (
	AnnotationPin     AnnotationType = "pin"
	AnnotationComment AnnotationType = "comment"
	AnnotationMarkup  AnnotationType = "markup"
)

// AnnotationStatus is the review status of an annotation thread.
// The statuses form a flat set: any status may transition to any other.
type AnnotationStatus string

const (
	StatusOpen       AnnotationStatus = "open"
	StatusInProgress AnnotationStatus = "in_progress"
	StatusResolved   AnnotationStatus = "resolved"
	StatusReopened   AnnotationStatus = "reopened"
	StatusArchived   AnnotationStatus = "archived"
)

// Valid reports whether s is a known annotation status.
func (s AnnotationStatus) Valid() bool {
	switch s {
	case StatusOpen, StatusInProgress, StatusResolved, StatusReopened, StatusArchived:
		return true
	}
	return false
}

// EntityKind identifies which entity table a change or persistence call
// refers to.
type EntityKind string

const (
	KindMeasurement EntityKind = "measurement"
	KindAnnotation  EntityKind = "annotation"
	KindReply       EntityKind = "reply"
	KindSavedView   EntityKind = "saved_view"
)

// ChangeOp is the operation carried by a change notification.
type ChangeOp string

const (
	OpInsert ChangeOp = "insert"
	OpUpdate ChangeOp = "update"
	OpDelete ChangeOp = "delete"
)

// ChangeEvent is a persistence-layer change notification, keyed by scan so
// subscribers only receive events for the scan they have loaded.
type ChangeEvent struct {
	ScanID string      `json:"scan_id"`
	Kind   EntityKind  `json:"kind"`
	Op     ChangeOp    `json:"op"`
	ID     string      `json:"id"`
	Entity interface{} `json:"entity,omitempty"` // full entity for insert/update, omitted for delete
}
