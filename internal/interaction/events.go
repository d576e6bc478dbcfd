// Package interaction translates raw input events from the embedding UI into
// entity-store transitions: point placement, marker dragging with live
// surface re-snapping, gizmo manipulation, and view-snap camera flights.
// The UI feeds everything through a single Dispatch call; the controller
// holds no callbacks back into the UI beyond the narrow collaborator
// interfaces below.
package interaction

import (
	"github.com/scanloom/scanloom/internal/picking"
	"github.com/scanloom/scanloom/internal/space"
	"github.com/scanloom/scanloom/pkg/math3"
	"github.com/scanloom/scanloom/pkg/types"
)

// EventKind discriminates input events.
type EventKind int

const (
	PointerDown EventKind = iota
	PointerMove
	PointerUp
	KeyDown
	KeyUp
	FrameTick

	// GizmoDragStart, GizmoDrag and GizmoDragEnd wrap the external gizmo
	// widget's callbacks; GizmoDrag carries the transform the handle is
	// currently proposing.
	GizmoDragStart
	GizmoDrag
	GizmoDragEnd
)

// MarkerKind identifies what kind of marker a pointer event landed on.
type MarkerKind int

const (
	MarkerAnnotation MarkerKind = iota
	MarkerMeasurementPoint
)

// MarkerRef names the marker under the cursor. The UI layer resolves it with
// its own 2D hit test before dispatching, since markers are UI overlays the
// core never renders.
type MarkerRef struct {
	Kind  MarkerKind
	ID    string
	Index int // point index for MarkerMeasurementPoint
}

// Pixel is a cursor position in physical pixels, used only for the
// click-versus-drag threshold.
type Pixel struct {
	X float32
	Y float32
}

// DistanceTo returns the Euclidean pixel distance to other.
func (p Pixel) DistanceTo(other Pixel) float32 {
	d := math3.Vec3(p.X-other.X, p.Y-other.Y, 0)
	return d.Length()
}

// Event is one input event from the embedding UI.
type Event struct {
	Kind EventKind

	// Screen is the cursor position normalized to [-1, 1], the picker's
	// coordinate convention. Valid for pointer events.
	Screen picking.ScreenPoint

	// Pixel is the raw cursor position in pixels. Valid for pointer events.
	Pixel Pixel

	// Marker is the marker under the cursor at PointerDown, if any.
	Marker *MarkerRef

	// Key is the key name for KeyDown/KeyUp (e.g. "Escape", "Shift").
	Key string

	// Transform is the pose proposed by the gizmo widget for GizmoDrag.
	Transform space.Transform
}

// CameraRig is the external camera controller: the current pose, orbit
// enable/disable during drags, and smooth flights for view snapping.
type CameraRig interface {
	Camera() types.Camera
	SetOrbitEnabled(enabled bool)

	// FlyTo requests a smooth flight to the given pose rather than an
	// instant cut.
	FlyTo(cam types.Camera)
}

// MarkerSink receives live positions during a drag so the rendering layer
// can move the visual marker every frame. Live updates never touch the
// entity store; the authoritative position is committed once, at drag end.
type MarkerSink interface {
	SetMarkerPosition(ref MarkerRef, world math3.Vector3)
}
