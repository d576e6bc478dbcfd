package types

import (
	"time"

	"github.com/scanloom/scanloom/pkg/math3"
)

// Camera is a bookmarkable camera pose: where the camera sits, what it looks
// at, and its vertical field of view in degrees.
type Camera struct {
	Position math3.Vector3 `json:"position"`
	Target   math3.Vector3 `json:"target"`
	FOV      float32       `json:"fov"`
}

// TargetDistance returns the distance from the camera position to its target.
func (c Camera) TargetDistance() float32 {
	return c.Position.DistanceTo(c.Target)
}

// SavedView is a named, bookmarked camera pose for one-click recall.
// SortOrder is dense and zero-based within a scan; the engine renumbers the
// whole set whenever a view is inserted, reordered, or deleted.
type SavedView struct {
	ID        string    `json:"id"`
	ScanID    string    `json:"scan_id"`
	Name      string    `json:"name"`
	Camera    Camera    `json:"camera"`
	SortOrder int       `json:"sort_order"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

// Clone returns a copy of the saved view.
func (v *SavedView) Clone() *SavedView {
	c := *v
	return &c
}
