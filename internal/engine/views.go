package engine

import (
	"github.com/scanloom/scanloom/pkg/types"
)

// AddSavedView bookmarks a camera pose at the end of the list and returns a
// snapshot of the created view. Sort orders are renumbered densely from
// zero.
func (e *SceneEngine) AddSavedView(name string, cam types.Camera, createdBy string) *types.SavedView {
	e.mu.Lock()
	defer e.mu.Unlock()

	v := &types.SavedView{
		ID:        newID(),
		ScanID:    e.scanID,
		Name:      name,
		Camera:    cam,
		SortOrder: len(e.views),
		CreatedBy: createdBy,
		CreatedAt: now(),
	}
	e.views[v.ID] = v
	e.renumberViews()
	e.emit(types.KindSavedView, types.OpInsert, v.ID, v.Clone())
	return v.Clone()
}

// SavedView returns a snapshot of the view with the given ID.
func (e *SceneEngine) SavedView(id string) (*types.SavedView, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, ok := e.views[id]
	if !ok {
		return nil, false
	}
	return v.Clone(), true
}

// SavedViews returns snapshots of all saved views in list order.
func (e *SceneEngine) SavedViews() []*types.SavedView {
	e.mu.Lock()
	defer e.mu.Unlock()
	sorted := e.sortedViews()
	out := make([]*types.SavedView, len(sorted))
	for i, v := range sorted {
		out[i] = v.Clone()
	}
	return out
}

// RenameSavedView sets the view's display name. Unknown IDs are ignored.
func (e *SceneEngine) RenameSavedView(id, name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, ok := e.views[id]
	if !ok {
		return
	}
	v.Name = name
	e.emit(types.KindSavedView, types.OpUpdate, v.ID, v.Clone())
}

// ReorderSavedView moves a view to the given list position and renumbers the
// whole set densely. The target index is clamped to the list bounds. Unknown
// IDs are ignored.
func (e *SceneEngine) ReorderSavedView(id string, index int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, ok := e.views[id]
	if !ok {
		return
	}

	sorted := e.sortedViews()
	if index < 0 {
		index = 0
	}
	if index > len(sorted)-1 {
		index = len(sorted) - 1
	}

	// Rebuild the list with the view removed then reinserted at the target.
	rest := make([]*types.SavedView, 0, len(sorted)-1)
	for _, sv := range sorted {
		if sv.ID != id {
			rest = append(rest, sv)
		}
	}
	ordered := make([]*types.SavedView, 0, len(sorted))
	ordered = append(ordered, rest[:index]...)
	ordered = append(ordered, v)
	ordered = append(ordered, rest[index:]...)

	for i, sv := range ordered {
		if sv.SortOrder != i {
			sv.SortOrder = i
			e.emit(types.KindSavedView, types.OpUpdate, sv.ID, sv.Clone())
		}
	}
}

// DeleteSavedView removes a view and renumbers the remainder densely.
// Unknown IDs are ignored.
func (e *SceneEngine) DeleteSavedView(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.views[id]; !ok {
		return
	}
	delete(e.views, id)
	e.emit(types.KindSavedView, types.OpDelete, id, nil)
	for i, sv := range e.sortedViews() {
		if sv.SortOrder != i {
			sv.SortOrder = i
			e.emit(types.KindSavedView, types.OpUpdate, sv.ID, sv.Clone())
		}
	}
}

// renumberViews reassigns dense zero-based sort orders in current list
// order. Callers must hold e.mu.
func (e *SceneEngine) renumberViews() {
	for i, sv := range e.sortedViews() {
		sv.SortOrder = i
	}
}
