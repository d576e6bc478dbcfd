package engine

import (
	"sort"

	"github.com/scanloom/scanloom/pkg/math3"
	"github.com/scanloom/scanloom/pkg/types"
)

// CreateAnnotation anchors a new annotation thread at a world-space point
// and returns a snapshot of the created entity. New annotations start open.
func (e *SceneEngine) CreateAnnotation(atype types.AnnotationType, pos math3.Vector3, content, createdBy string) *types.Annotation {
	e.mu.Lock()
	defer e.mu.Unlock()

	a := &types.Annotation{
		ID:        newID(),
		ScanID:    e.scanID,
		Type:      atype,
		Position:  pos,
		Content:   content,
		Status:    types.StatusOpen,
		CreatedBy: createdBy,
		CreatedAt: now(),
	}
	e.annotations[a.ID] = a
	e.emit(types.KindAnnotation, types.OpInsert, a.ID, a.Clone())
	return a.Clone()
}

// Annotation returns a snapshot of the annotation with the given ID.
func (e *SceneEngine) Annotation(id string) (*types.Annotation, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	a, ok := e.annotations[id]
	if !ok {
		return nil, false
	}
	return a.Clone(), true
}

// Annotations returns snapshots of all annotations, ordered by creation
// time then ID.
func (e *SceneEngine) Annotations() []*types.Annotation {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*types.Annotation, 0, len(e.annotations))
	for _, a := range e.annotations {
		out = append(out, a.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// MoveAnnotation relocates an annotation's world-space anchor. Unknown IDs
// are ignored.
func (e *SceneEngine) MoveAnnotation(id string, pos math3.Vector3) {
	e.mu.Lock()
	defer e.mu.Unlock()
	a, ok := e.annotations[id]
	if !ok {
		return
	}
	a.Position = pos
	e.emit(types.KindAnnotation, types.OpUpdate, a.ID, a.Clone())
}

// UpdateAnnotationContent replaces the annotation's body text. Unknown IDs
// are ignored.
func (e *SceneEngine) UpdateAnnotationContent(id, content string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	a, ok := e.annotations[id]
	if !ok {
		return
	}
	a.Content = content
	e.emit(types.KindAnnotation, types.OpUpdate, a.ID, a.Clone())
}

// SetAnnotationStatus moves the annotation to the given status. The statuses
// are a flat set: any status may follow any other. Unknown IDs and unknown
// statuses are ignored.
func (e *SceneEngine) SetAnnotationStatus(id string, status types.AnnotationStatus) {
	e.mu.Lock()
	defer e.mu.Unlock()
	a, ok := e.annotations[id]
	if !ok || !status.Valid() {
		return
	}
	a.Status = status
	e.emit(types.KindAnnotation, types.OpUpdate, a.ID, a.Clone())
}

// DeleteAnnotation removes an annotation and its thread, clearing any
// selection or drag that referenced it. Unknown IDs are ignored.
func (e *SceneEngine) DeleteAnnotation(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.annotations[id]; !ok {
		return
	}
	delete(e.annotations, id)
	if e.mode.RefersToAnnotation(id) {
		e.mode = modeNone()
	}
	e.emit(types.KindAnnotation, types.OpDelete, id, nil)
}

// AddReply appends a reply to an annotation's thread and returns a snapshot
// of it. Unknown annotation IDs return nil.
func (e *SceneEngine) AddReply(annotationID, content, createdBy string) *types.Reply {
	e.mu.Lock()
	defer e.mu.Unlock()
	a, ok := e.annotations[annotationID]
	if !ok {
		return nil
	}
	r := types.Reply{
		ID:        newID(),
		Content:   content,
		CreatedBy: createdBy,
		CreatedAt: now(),
	}
	a.Replies = append(a.Replies, r)
	e.emit(types.KindAnnotation, types.OpUpdate, a.ID, a.Clone())
	return &r
}

// UpdateReply edits the content of one reply in an annotation's thread.
// Unknown IDs are ignored.
func (e *SceneEngine) UpdateReply(annotationID, replyID, content string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	a, ok := e.annotations[annotationID]
	if !ok {
		return
	}
	for i := range a.Replies {
		if a.Replies[i].ID == replyID {
			a.Replies[i].Content = content
			e.emit(types.KindAnnotation, types.OpUpdate, a.ID, a.Clone())
			return
		}
	}
}

// DeleteReply removes one reply from an annotation's thread. Unknown IDs are
// ignored.
func (e *SceneEngine) DeleteReply(annotationID, replyID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	a, ok := e.annotations[annotationID]
	if !ok {
		return
	}
	for i := range a.Replies {
		if a.Replies[i].ID == replyID {
			a.Replies = append(a.Replies[:i], a.Replies[i+1:]...)
			e.emit(types.KindAnnotation, types.OpUpdate, a.ID, a.Clone())
			return
		}
	}
}
