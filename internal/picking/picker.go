// Package picking resolves normalized screen coordinates to points on the
// loaded scan's surface by delegating ray casts to the external rendering
// engine.
package picking

import (
	"github.com/scanloom/scanloom/pkg/math3"
	"github.com/scanloom/scanloom/pkg/types"
)

// ScreenPoint is a cursor position normalized to [-1, 1] on both axes, the
// coordinate convention the rendering engine's ray caster expects.
type ScreenPoint struct {
	X float32 `json:"x"`
	Y float32 `json:"y"`
}

// Hit is a surface intersection returned by the rendering engine.
type Hit struct {
	Point  math3.Vector3
	Normal math3.Vector3
}

// Raycaster is the single primitive the core needs from the rendering
// engine: cast a ray from the camera through a screen point and return the
// nearest surface hit on the named object, or false for a miss.
type Raycaster interface {
	CastRay(cam types.Camera, screen ScreenPoint, objectID string) (Hit, bool)
}

// Picker wraps the rendering engine's ray intersection primitive with
// knowledge of which scan, if any, is currently loaded.
type Picker struct {
	caster Raycaster
	scanID string
}

// NewPicker returns a picker casting rays through the given engine primitive.
func NewPicker(caster Raycaster) *Picker {
	return &Picker{caster: caster}
}

// SetScan records the object ID of the loaded scan. An empty ID means no
// scan is loaded and Pick will always miss.
func (p *Picker) SetScan(scanID string) {
	p.scanID = scanID
}

// ScanLoaded reports whether a scan is currently loaded.
func (p *Picker) ScanLoaded() bool {
	return p.scanID != ""
}

// Pick returns the nearest point on the loaded scan's surface under the
// given screen point, or false if nothing is hit or no scan is loaded.
// A miss is an expected outcome, not an error.
func (p *Picker) Pick(cam types.Camera, screen ScreenPoint) (math3.Vector3, bool) {
	if p.scanID == "" {
		return math3.Vector3{}, false
	}
	hit, ok := p.caster.CastRay(cam, screen, p.scanID)
	if !ok {
		return math3.Vector3{}, false
	}
	return hit.Point, true
}

// PickAny casts against the whole scene rather than the loaded scan. It is
// the placement fallback used when no scan is loaded, so tools still resolve
// a point against whatever geometry the scene offers.
func (p *Picker) PickAny(cam types.Camera, screen ScreenPoint) (math3.Vector3, bool) {
	hit, ok := p.caster.CastRay(cam, screen, "")
	if !ok {
		return math3.Vector3{}, false
	}
	return hit.Point, true
}
