package types

import (
	"time"

	"github.com/scanloom/scanloom/pkg/math3"
)

// Measurement is a distance polyline or an area polygon placed on a scan.
// Points are stored in world space so they survive changes to the scan's own
// transform. Value is always derived from Points by the geometry engine; it
// is never set independently.
type Measurement struct {
	ID     string          `json:"id"`      // Unique identifier (UUID)
	ScanID string          `json:"scan_id"` // Scan this measurement belongs to
	Type   MeasurementType `json:"type"`    // distance or area

	// Points is the ordered world-space polyline/polygon. A distance
	// measurement needs at least 2 points; an area at least 3.
	Points []math3.Vector3 `json:"points"`

	// Value is the derived length (distance) or area. Recomputed from Points
	// on every mutation.
	Value float32 `json:"value"`

	Unit  string `json:"unit"`            // Display unit, e.g. "m", "ft"
	Label string `json:"label,omitempty"` // Optional user-assigned label

	CreatedBy string    `json:"created_by"` // User that placed the measurement
	CreatedAt time.Time `json:"created_at"`
}

// SegmentCount returns the number of line segments in the measurement's
// polyline (one fewer than the number of points).
func (m *Measurement) SegmentCount() int {
	if len(m.Points) < 2 {
		return 0
	}
	return len(m.Points) - 1
}

// Clone returns a deep copy of the measurement, including its points slice.
func (m *Measurement) Clone() *Measurement {
	c := *m
	c.Points = make([]math3.Vector3, len(m.Points))
	copy(c.Points, m.Points)
	return &c
}

// PendingMeasurement is the transient point collection for a measurement
// being placed. At most one exists at a time; it lives only between start
// and finalize/cancel.
type PendingMeasurement struct {
	Type   MeasurementType `json:"type"`
	Points []math3.Vector3 `json:"points"`
}
