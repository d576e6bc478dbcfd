// Package engine owns the authoritative in-memory state for one loaded scan:
// every measurement, annotation and saved view, the in-progress pending
// measurement, and the single interaction mode. All mutations go through its
// operations, which is how the mode-exclusivity invariant is enforced; the
// rendering layer holds only derived visual copies it refreshes from here.
package engine

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/scanloom/scanloom/pkg/types"
)

// SceneEngine is the entity store and interaction state machine for one scan.
//
// Writes are optimistic: the local state always updates first and the change
// callback hands the mutation to the embedding layer for persistence. A
// failed persist is never rolled back here.
type SceneEngine struct {
	scanID string

	mu           sync.Mutex
	measurements map[string]*types.Measurement
	annotations  map[string]*types.Annotation
	views        map[string]*types.SavedView

	pending *types.PendingMeasurement
	mode    Mode

	onChange func(types.ChangeEvent)
}

// New creates an empty engine for the given scan.
func New(scanID string) *SceneEngine {
	return &SceneEngine{
		scanID:       scanID,
		measurements: make(map[string]*types.Measurement),
		annotations:  make(map[string]*types.Annotation),
		views:        make(map[string]*types.SavedView),
		mode:         modeNone(),
	}
}

// ScanID returns the scan this engine holds state for.
func (e *SceneEngine) ScanID() string {
	return e.scanID
}

// SetOnChange sets a callback fired after every local mutation, carrying the
// change the embedding layer should persist and broadcast. Changes folded in
// from remote notifications do not fire it, so the local actor's own writes
// are never echoed back.
func (e *SceneEngine) SetOnChange(callback func(types.ChangeEvent)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onChange = callback
}

// emit fires the change callback. Callers hold e.mu; the callback must not
// call back into the engine.
func (e *SceneEngine) emit(kind types.EntityKind, op types.ChangeOp, id string, entity interface{}) {
	if e.onChange == nil {
		return
	}
	e.onChange(types.ChangeEvent{
		ScanID: e.scanID,
		Kind:   kind,
		Op:     op,
		ID:     id,
		Entity: entity,
	})
}

// Mode returns the current interaction mode.
func (e *SceneEngine) Mode() Mode {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mode
}

// SetActiveTool arms a placement tool, clearing any selection or drag.
// Passing ToolNone is equivalent to ClearActiveTool.
func (e *SceneEngine) SetActiveTool(tool Tool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if tool == ToolNone {
		e.mode = modeNone()
		return
	}
	e.mode = Mode{Kind: ModeToolActive, Tool: tool, PointIndex: -1}
}

// ActiveTool returns the armed placement tool, or ToolNone.
func (e *SceneEngine) ActiveTool() Tool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.mode.Kind != ModeToolActive {
		return ToolNone
	}
	return e.mode.Tool
}

// ClearActiveTool disarms the placement tool if one is armed.
func (e *SceneEngine) ClearActiveTool() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.mode.Kind == ModeToolActive {
		e.mode = modeNone()
	}
}

// ClearSelection returns the interaction mode to rest, whatever it was.
func (e *SceneEngine) ClearSelection() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.mode = modeNone()
}

// SelectAnnotation selects the given annotation, clearing the active tool
// and any measurement selection or drag. Unknown IDs are ignored.
func (e *SceneEngine) SelectAnnotation(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.annotations[id]; !ok {
		return
	}
	e.mode = Mode{Kind: ModeAnnotationSelected, EntityID: id, PointIndex: -1}
}

// SelectMeasurementPoint selects one point of a measurement, clearing the
// active tool and any annotation selection. Unknown IDs or out-of-range
// indices are ignored.
func (e *SceneEngine) SelectMeasurementPoint(id string, index int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	m, ok := e.measurements[id]
	if !ok || index < 0 || index >= len(m.Points) {
		return
	}
	e.mode = Mode{Kind: ModePointSelected, EntityID: id, PointIndex: index}
}

// StartDraggingAnnotation begins a drag of the given annotation marker,
// clearing every other interaction mode. Unknown IDs are ignored.
func (e *SceneEngine) StartDraggingAnnotation(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.annotations[id]; !ok {
		return
	}
	e.mode = Mode{Kind: ModeDraggingAnnotation, EntityID: id, PointIndex: -1}
}

// StartDraggingMeasurementPoint begins a drag of one measurement point. The
// currently armed tool, if any, is saved in the mode and restored by
// StopDragging. Unknown IDs or out-of-range indices are ignored.
func (e *SceneEngine) StartDraggingMeasurementPoint(id string, index int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	m, ok := e.measurements[id]
	if !ok || index < 0 || index >= len(m.Points) {
		return
	}
	saved := ToolNone
	if e.mode.Kind == ModeToolActive {
		saved = e.mode.Tool
	}
	e.mode = Mode{Kind: ModeDraggingPoint, Tool: saved, EntityID: id, PointIndex: index}
}

// StopDragging ends an in-progress drag and returns the mode that was
// active, so the caller can finalize the dragged entity's position. After a
// point drag the saved tool, if any, is re-armed.
func (e *SceneEngine) StopDragging() (Mode, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	prev := e.mode
	switch prev.Kind {
	case ModeDraggingAnnotation:
		e.mode = Mode{Kind: ModeAnnotationSelected, EntityID: prev.EntityID, PointIndex: -1}
		return prev, true
	case ModeDraggingPoint:
		if prev.Tool != ToolNone {
			e.mode = Mode{Kind: ModeToolActive, Tool: prev.Tool, PointIndex: -1}
		} else {
			e.mode = Mode{Kind: ModePointSelected, EntityID: prev.EntityID, PointIndex: prev.PointIndex}
		}
		return prev, true
	}
	return prev, false
}

// ApplyRemoteChange folds a persistence-layer change notification into the
// store. Inserts are ignored when the entity is already present locally, so
// the local actor's own optimistic writes are not applied twice. Events for
// other scans are ignored. No change callback fires for remote folds.
func (e *SceneEngine) ApplyRemoteChange(ev types.ChangeEvent) {
	if ev.ScanID != e.scanID {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	switch ev.Kind {
	case types.KindMeasurement:
		switch ev.Op {
		case types.OpInsert:
			if _, ok := e.measurements[ev.ID]; ok {
				return
			}
			if m, ok := ev.Entity.(*types.Measurement); ok {
				e.measurements[ev.ID] = m.Clone()
			}
		case types.OpUpdate:
			if m, ok := ev.Entity.(*types.Measurement); ok {
				e.measurements[ev.ID] = m.Clone()
			}
		case types.OpDelete:
			delete(e.measurements, ev.ID)
			if e.mode.RefersToMeasurement(ev.ID) {
				e.mode = modeNone()
			}
		}
	case types.KindAnnotation, types.KindReply:
		switch ev.Op {
		case types.OpInsert:
			if _, ok := e.annotations[ev.ID]; ok {
				return
			}
			if a, ok := ev.Entity.(*types.Annotation); ok {
				e.annotations[ev.ID] = a.Clone()
			}
		case types.OpUpdate:
			if a, ok := ev.Entity.(*types.Annotation); ok {
				e.annotations[ev.ID] = a.Clone()
			}
		case types.OpDelete:
			delete(e.annotations, ev.ID)
			if e.mode.RefersToAnnotation(ev.ID) {
				e.mode = modeNone()
			}
		}
	case types.KindSavedView:
		switch ev.Op {
		case types.OpInsert:
			if _, ok := e.views[ev.ID]; ok {
				return
			}
			if v, ok := ev.Entity.(*types.SavedView); ok {
				e.views[ev.ID] = v.Clone()
			}
		case types.OpUpdate:
			if v, ok := ev.Entity.(*types.SavedView); ok {
				e.views[ev.ID] = v.Clone()
			}
		case types.OpDelete:
			delete(e.views, ev.ID)
		}
	}
}

// newID returns a fresh entity ID. IDs are generated locally so optimistic
// writes and their later persistence share the same key.
func newID() string {
	return uuid.New().String()
}

func now() time.Time {
	return time.Now().UTC()
}

// sortByCreation orders measurement snapshots by creation time, breaking
// ties by ID so listings are stable.
func sortByCreation(ms []*types.Measurement) {
	sort.Slice(ms, func(i, j int) bool {
		if !ms[i].CreatedAt.Equal(ms[j].CreatedAt) {
			return ms[i].CreatedAt.Before(ms[j].CreatedAt)
		}
		return ms[i].ID < ms[j].ID
	})
}

// sortedViews returns the saved views ordered by SortOrder. Callers must
// hold e.mu.
func (e *SceneEngine) sortedViews() []*types.SavedView {
	out := make([]*types.SavedView, 0, len(e.views))
	for _, v := range e.views {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SortOrder < out[j].SortOrder })
	return out
}
