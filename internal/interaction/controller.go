package interaction

import (
	"log"

	"github.com/scanloom/scanloom/internal/engine"
	"github.com/scanloom/scanloom/internal/picking"
	"github.com/scanloom/scanloom/internal/space"
	"github.com/scanloom/scanloom/pkg/math3"
	"github.com/scanloom/scanloom/pkg/types"
)

// DefaultClickThreshold is the cursor travel, in pixels, beyond which a
// pointer down/up pair is treated as a camera orbit rather than a click.
const DefaultClickThreshold = 5.0

// Config tunes the controller and names the local actor stamped onto
// entities it creates.
type Config struct {
	// ClickThreshold is the click-versus-drag pixel threshold.
	// Zero means DefaultClickThreshold.
	ClickThreshold float32

	// Unit is the display unit stamped onto finalized measurements.
	Unit string

	// User is the createdBy value for entities placed through this
	// controller.
	User string
}

// Controller drives the scene engine from dispatched input events.
type Controller struct {
	cfg    Config
	eng    *engine.SceneEngine
	picker *picking.Picker
	bridge *space.Bridge
	rig    CameraRig
	sink   MarkerSink
	gizmo  Gizmo

	// pointer gesture state
	pointerDown bool
	downPixel   Pixel
	lastScreen  picking.ScreenPoint
	downMarker  *MarkerRef
	dragging    bool
}

// NewController wires the controller to its collaborators. sink may be nil
// when the embedding has no live marker visuals (e.g. headless tests).
func NewController(cfg Config, eng *engine.SceneEngine, picker *picking.Picker, bridge *space.Bridge, rig CameraRig, sink MarkerSink) *Controller {
	if cfg.ClickThreshold <= 0 {
		cfg.ClickThreshold = DefaultClickThreshold
	}
	c := &Controller{cfg: cfg, eng: eng, picker: picker, bridge: bridge, rig: rig, sink: sink}
	c.gizmo = NewGizmo()
	return c
}

// GizmoState returns the current gizmo attachment and mode.
func (c *Controller) GizmoState() Gizmo {
	return c.gizmo
}

// Dispatch feeds one input event through the interaction state machine. All
// entity mutations it triggers happen synchronously before it returns.
func (c *Controller) Dispatch(ev Event) {
	switch ev.Kind {
	case PointerDown:
		c.onPointerDown(ev)
	case PointerMove:
		c.onPointerMove(ev)
	case PointerUp:
		c.onPointerUp(ev)
	case KeyDown:
		c.onKeyDown(ev)
	case KeyUp:
		c.onKeyUp(ev)
	case FrameTick:
		c.onFrameTick()
	case GizmoDragStart:
		c.onGizmoDragStart()
	case GizmoDrag:
		c.onGizmoDrag(ev)
	case GizmoDragEnd:
		c.onGizmoDragEnd()
	}
}

func (c *Controller) onPointerDown(ev Event) {
	c.pointerDown = true
	c.downPixel = ev.Pixel
	c.lastScreen = ev.Screen
	c.downMarker = ev.Marker
	c.dragging = false
}

func (c *Controller) onPointerMove(ev Event) {
	if !c.pointerDown {
		return
	}
	c.lastScreen = ev.Screen

	if !c.dragging && c.downMarker != nil &&
		ev.Pixel.DistanceTo(c.downPixel) > c.cfg.ClickThreshold {
		c.beginMarkerDrag(*c.downMarker)
	}
	if c.dragging {
		c.updateLiveDrag(ev.Screen)
	}
}

func (c *Controller) onPointerUp(ev Event) {
	if !c.pointerDown {
		return
	}
	c.pointerDown = false
	c.lastScreen = ev.Screen

	if c.dragging {
		c.endMarkerDrag(ev.Screen)
		return
	}

	// A pointer that travelled beyond the threshold was a camera orbit, not
	// a click; placement and selection ignore it.
	if ev.Pixel.DistanceTo(c.downPixel) > c.cfg.ClickThreshold {
		c.downMarker = nil
		return
	}

	if c.downMarker != nil {
		c.selectMarker(*c.downMarker)
		c.downMarker = nil
		return
	}
	c.downMarker = nil
	c.placeAt(ev.Screen)
}

// beginMarkerDrag starts dragging the marker under the original pointer-down
// position. Orbit is disabled for the duration so camera rotation does not
// fight the drag.
func (c *Controller) beginMarkerDrag(ref MarkerRef) {
	switch ref.Kind {
	case MarkerAnnotation:
		c.eng.StartDraggingAnnotation(ref.ID)
	case MarkerMeasurementPoint:
		c.eng.StartDraggingMeasurementPoint(ref.ID, ref.Index)
	}
	mode := c.eng.Mode()
	if mode.Kind != engine.ModeDraggingAnnotation && mode.Kind != engine.ModeDraggingPoint {
		// The engine declined (stale marker); don't enter a drag.
		return
	}
	c.dragging = true
	c.rig.SetOrbitEnabled(false)
}

// updateLiveDrag re-picks the surface under the cursor and forwards the hit
// to the marker sink for visual feedback. The entity store is untouched: the
// stored position must not depend on intermediate frame timing.
func (c *Controller) updateLiveDrag(screen picking.ScreenPoint) {
	if c.sink == nil || c.downMarker == nil {
		return
	}
	p, ok := c.picker.Pick(c.rig.Camera(), screen)
	if !ok {
		return
	}
	c.sink.SetMarkerPosition(*c.downMarker, p)
}

// endMarkerDrag finalizes the drag: one authoritative re-pick from the final
// cursor position is committed to the store, and orbit control returns.
func (c *Controller) endMarkerDrag(screen picking.ScreenPoint) {
	defer func() {
		c.dragging = false
		c.downMarker = nil
		c.rig.SetOrbitEnabled(true)
	}()

	mode, ok := c.eng.StopDragging()
	if !ok {
		return
	}
	p, hit := c.picker.Pick(c.rig.Camera(), screen)
	if !hit {
		// Released off the scan: the drag ends without moving the stored
		// position, and the visual marker snaps back on the next refresh.
		return
	}
	switch mode.Kind {
	case engine.ModeDraggingAnnotation:
		c.eng.MoveAnnotation(mode.EntityID, p)
	case engine.ModeDraggingPoint:
		c.eng.UpdateMeasurementPoint(mode.EntityID, mode.PointIndex, p)
	}
}

// selectMarker handles a clean click on a marker.
func (c *Controller) selectMarker(ref MarkerRef) {
	switch ref.Kind {
	case MarkerAnnotation:
		c.eng.SelectAnnotation(ref.ID)
	case MarkerMeasurementPoint:
		c.eng.SelectMeasurementPoint(ref.ID, ref.Index)
	}
}

// placeAt resolves a click against the scan surface and feeds the point to
// the active tool. Clicks with no armed tool clear the selection.
func (c *Controller) placeAt(screen picking.ScreenPoint) {
	tool := c.eng.ActiveTool()
	if tool == engine.ToolNone {
		c.eng.ClearSelection()
		return
	}

	p, ok := c.picker.Pick(c.rig.Camera(), screen)
	if !ok && !c.picker.ScanLoaded() {
		// No scan loaded yet: fall back to a generic scene cast so
		// placement still lands on whatever geometry exists. A miss on a
		// loaded scan resolves nothing.
		p, ok = c.picker.PickAny(c.rig.Camera(), screen)
	}
	if !ok {
		return
	}

	if mtype, isMeasurement := engine.ToolMeasurementType(tool); isMeasurement {
		if c.eng.Pending() == nil {
			c.eng.StartMeasurement(mtype)
		}
		c.eng.AddMeasurementPoint(p)
		return
	}
	c.eng.CreateAnnotation(types.AnnotationPin, p, "", c.cfg.User)
}

func (c *Controller) onKeyDown(ev Event) {
	switch ev.Key {
	case "Shift":
		c.gizmo.SnapEnabled = true
	case "Escape":
		if c.eng.Pending() != nil {
			c.eng.CancelMeasurement()
			return
		}
		c.eng.ClearSelection()
	case "Backspace":
		c.eng.UndoLastPoint()
	case "Enter":
		if c.eng.FinalizeMeasurement(c.cfg.Unit, c.cfg.User) == nil && c.eng.Pending() != nil {
			log.Printf("WARNING: measurement needs more points to finalize")
		}
	}
}

func (c *Controller) onKeyUp(ev Event) {
	if ev.Key == "Shift" {
		c.gizmo.SnapEnabled = false
	}
}

// onFrameTick refreshes the live drag feedback once per rendered frame, so
// the marker tracks the surface even while the cursor rests.
func (c *Controller) onFrameTick() {
	if c.dragging {
		c.updateLiveDrag(c.lastScreen)
	}
}

// SnapToView flies the camera to one of the six axis-aligned directions,
// keeping the current target and target distance. The flight itself is
// performed by the camera rig; degenerate distances fall back to a default
// framing instead of a zero-length pose.
func (c *Controller) SnapToView(dir ViewDirection) {
	cam := c.rig.Camera()
	dist := cam.TargetDistance()
	if dist <= 0 {
		dist = DefaultFramingDistance
	}
	next := types.Camera{
		Position: cam.Target.Add(dir.Vector().MulScalar(dist)),
		Target:   cam.Target,
		FOV:      cam.FOV,
	}
	c.rig.FlyTo(next)
}

// DefaultFramingDistance is the camera distance used when the current pose
// is degenerate (camera sitting on its own target).
const DefaultFramingDistance = 5.0

// ViewDirection is one of the six axis-aligned snap directions.
type ViewDirection int

const (
	ViewFront ViewDirection = iota // +Z
	ViewBack                       // -Z
	ViewLeft                       // -X
	ViewRight                      // +X
	ViewTop                        // +Y
	ViewBottom                     // -Y
)

// Vector returns the unit direction from the target toward the snapped
// camera position.
func (d ViewDirection) Vector() math3.Vector3 {
	switch d {
	case ViewBack:
		return math3.Vec3(0, 0, -1)
	case ViewLeft:
		return math3.Vec3(-1, 0, 0)
	case ViewRight:
		return math3.Vec3(1, 0, 0)
	case ViewTop:
		return math3.Vec3(0, 1, 0)
	case ViewBottom:
		return math3.Vec3(0, -1, 0)
	}
	return math3.Vec3(0, 0, 1)
}
