package engine

import (
	"github.com/scanloom/scanloom/internal/geometry"
	"github.com/scanloom/scanloom/pkg/math3"
	"github.com/scanloom/scanloom/pkg/types"
)

// ToolMeasurementType maps a placement tool to the measurement type it
// collects points for, or false for non-measurement tools.
func ToolMeasurementType(tool Tool) (types.MeasurementType, bool) {
	switch tool {
	case ToolDistance:
		return types.MeasurementDistance, true
	case ToolArea:
		return types.MeasurementArea, true
	}
	return "", false
}

// StartMeasurement begins collecting points for a new measurement of the
// given type. A no-op if a pending measurement already exists or the type is
// unknown.
func (e *SceneEngine) StartMeasurement(mtype types.MeasurementType) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pending != nil || !mtype.Valid() {
		return
	}
	e.pending = &types.PendingMeasurement{Type: mtype}
}

// Pending returns a snapshot of the in-progress measurement, or nil.
func (e *SceneEngine) Pending() *types.PendingMeasurement {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pending == nil {
		return nil
	}
	snap := &types.PendingMeasurement{Type: e.pending.Type}
	snap.Points = append(snap.Points, e.pending.Points...)
	return snap
}

// AddMeasurementPoint appends a world-space point to the pending
// measurement. A no-op when no measurement is pending.
func (e *SceneEngine) AddMeasurementPoint(p math3.Vector3) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pending == nil {
		return
	}
	e.pending.Points = append(e.pending.Points, p)
}

// UndoLastPoint removes the most recently placed pending point. If that
// leaves the pending measurement empty it is discarded entirely rather than
// kept as an empty shell.
func (e *SceneEngine) UndoLastPoint() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pending == nil {
		return
	}
	if len(e.pending.Points) <= 1 {
		e.pending = nil
		return
	}
	e.pending.Points = e.pending.Points[:len(e.pending.Points)-1]
}

// CancelMeasurement discards the pending measurement unconditionally.
func (e *SceneEngine) CancelMeasurement() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pending = nil
}

// FinalizeMeasurement validates and commits the pending measurement. On
// success it computes the derived value, stores the measurement, clears the
// pending state, and returns the created entity for persistence. If the
// point-count minimum for the type is not met (2 for distance, 3 for area),
// nothing changes and nil is returned.
func (e *SceneEngine) FinalizeMeasurement(unit, createdBy string) *types.Measurement {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pending == nil || len(e.pending.Points) < e.pending.Type.MinPoints() {
		return nil
	}

	m := &types.Measurement{
		ID:        newID(),
		ScanID:    e.scanID,
		Type:      e.pending.Type,
		Points:    e.pending.Points,
		Value:     geometry.Value(string(e.pending.Type), e.pending.Points),
		Unit:      unit,
		CreatedBy: createdBy,
		CreatedAt: now(),
	}
	e.measurements[m.ID] = m
	e.pending = nil

	e.emit(types.KindMeasurement, types.OpInsert, m.ID, m.Clone())
	return m.Clone()
}

// Measurement returns a snapshot of the measurement with the given ID.
func (e *SceneEngine) Measurement(id string) (*types.Measurement, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	m, ok := e.measurements[id]
	if !ok {
		return nil, false
	}
	return m.Clone(), true
}

// Measurements returns snapshots of all measurements, ordered by creation
// time then ID for a stable listing.
func (e *SceneEngine) Measurements() []*types.Measurement {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*types.Measurement, 0, len(e.measurements))
	for _, m := range e.measurements {
		out = append(out, m.Clone())
	}
	sortByCreation(out)
	return out
}

// UpdateMeasurementPoint replaces a single point and recomputes the derived
// value. Unknown IDs and out-of-range indices are ignored.
func (e *SceneEngine) UpdateMeasurementPoint(id string, index int, p math3.Vector3) {
	e.mu.Lock()
	defer e.mu.Unlock()
	m, ok := e.measurements[id]
	if !ok || index < 0 || index >= len(m.Points) {
		return
	}
	m.Points[index] = p
	m.Value = geometry.Value(string(m.Type), m.Points)
	e.emit(types.KindMeasurement, types.OpUpdate, m.ID, m.Clone())
}

// UpdateMeasurementPoints replaces the whole point set at once and
// recomputes the value a single time. This is the resync path after a scene
// transform change; replacing points one at a time would recompute against
// stale intermediate geometry. The new point count must match the old one.
func (e *SceneEngine) UpdateMeasurementPoints(id string, points []math3.Vector3) {
	e.mu.Lock()
	defer e.mu.Unlock()
	m, ok := e.measurements[id]
	if !ok || len(points) != len(m.Points) {
		return
	}
	m.Points = make([]math3.Vector3, len(points))
	copy(m.Points, points)
	m.Value = geometry.Value(string(m.Type), m.Points)
	e.emit(types.KindMeasurement, types.OpUpdate, m.ID, m.Clone())
}

// UpdateMeasurementLabel sets the user-assigned label. Unknown IDs are
// ignored.
func (e *SceneEngine) UpdateMeasurementLabel(id, label string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	m, ok := e.measurements[id]
	if !ok {
		return
	}
	m.Label = label
	e.emit(types.KindMeasurement, types.OpUpdate, m.ID, m.Clone())
}

// DeleteMeasurement removes a measurement, clearing any selection or drag
// that referenced it. Unknown IDs are ignored.
func (e *SceneEngine) DeleteMeasurement(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.measurements[id]; !ok {
		return
	}
	delete(e.measurements, id)
	if e.mode.RefersToMeasurement(id) {
		e.mode = modeNone()
	}
	e.emit(types.KindMeasurement, types.OpDelete, id, nil)
}

// SegmentRemoval reports what RemoveSegmentFromMeasurement did, with
// snapshots of the affected entities so the caller can persist the matching
// create, update, and delete externally.
type SegmentRemoval struct {
	Kind geometry.SegmentOutcomeKind

	// Deleted is the removed measurement (Kind == SegmentDeleted).
	Deleted *types.Measurement

	// Updated is the truncated original, or the head half of a split.
	Updated *types.Measurement

	// Created is the new measurement holding the tail half of a split.
	Created *types.Measurement
}

// RemoveSegmentFromMeasurement removes segment segIndex from a measurement,
// applying the geometry engine's three-way outcome atomically:
//
//   - one segment: the measurement is deleted;
//   - first or last segment: the measurement is truncated in place;
//   - middle segment: the measurement splits, the original keeping the head
//     points and a new measurement inheriting type, unit and creator taking
//     the tail.
//
// Any selection or drag referencing the measurement is cleared in the same
// transition. An unknown ID or out-of-range index is a no-op.
func (e *SceneEngine) RemoveSegmentFromMeasurement(id string, segIndex int) SegmentRemoval {
	e.mu.Lock()
	defer e.mu.Unlock()

	m, ok := e.measurements[id]
	if !ok {
		return SegmentRemoval{Kind: geometry.SegmentNoOp}
	}

	out := geometry.RemoveSegment(m.Points, segIndex)
	switch out.Kind {
	case geometry.SegmentNoOp:
		return SegmentRemoval{Kind: geometry.SegmentNoOp}

	case geometry.SegmentDeleted:
		snap := m.Clone()
		delete(e.measurements, id)
		if e.mode.RefersToMeasurement(id) {
			e.mode = modeNone()
		}
		e.emit(types.KindMeasurement, types.OpDelete, id, nil)
		return SegmentRemoval{Kind: out.Kind, Deleted: snap}

	case geometry.SegmentTruncated:
		m.Points = out.Head
		m.Value = geometry.Value(string(m.Type), m.Points)
		if e.mode.RefersToMeasurement(id) {
			e.mode = modeNone()
		}
		e.emit(types.KindMeasurement, types.OpUpdate, m.ID, m.Clone())
		return SegmentRemoval{Kind: out.Kind, Updated: m.Clone()}
	}

	// Split: original keeps the head, the tail becomes a new measurement
	// inheriting type, unit and creator.
	m.Points = out.Head
	m.Value = geometry.Value(string(m.Type), m.Points)

	tail := &types.Measurement{
		ID:        newID(),
		ScanID:    m.ScanID,
		Type:      m.Type,
		Points:    out.Tail,
		Value:     geometry.Value(string(m.Type), out.Tail),
		Unit:      m.Unit,
		CreatedBy: m.CreatedBy,
		CreatedAt: now(),
	}
	e.measurements[tail.ID] = tail

	if e.mode.RefersToMeasurement(id) {
		e.mode = modeNone()
	}
	e.emit(types.KindMeasurement, types.OpUpdate, m.ID, m.Clone())
	e.emit(types.KindMeasurement, types.OpInsert, tail.ID, tail.Clone())
	return SegmentRemoval{Kind: out.Kind, Updated: m.Clone(), Created: tail.Clone()}
}
