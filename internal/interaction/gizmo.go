package interaction

import (
	"github.com/chewxy/math32"

	"github.com/scanloom/scanloom/internal/engine"
	"github.com/scanloom/scanloom/internal/space"
	"github.com/scanloom/scanloom/pkg/math3"
)

// GizmoMode selects which transform channel the manipulation handle edits.
type GizmoMode int

const (
	GizmoTranslate GizmoMode = iota
	GizmoRotate
	GizmoScale
)

// GizmoTargetKind identifies what the handle is attached to.
type GizmoTargetKind int

const (
	// GizmoTargetScan manipulates the whole scan's transform.
	GizmoTargetScan GizmoTargetKind = iota

	// GizmoTargetAnnotation translates a single annotation anchor.
	GizmoTargetAnnotation

	// GizmoTargetPoint translates a single measurement point.
	GizmoTargetPoint
)

// SnapIncrements are the coarse discrete steps applied while snapping is
// held: world units for translation, degrees for rotation, and a unitless
// step for scale.
type SnapIncrements struct {
	Translate float32
	RotateDeg float32
	Scale     float32
}

// DefaultSnapIncrements returns the standard coarse steps.
func DefaultSnapIncrements() SnapIncrements {
	return SnapIncrements{Translate: 0.5, RotateDeg: 15, Scale: 0.1}
}

// Gizmo is the manipulation-handle state: what it is attached to, which
// channel it edits, and whether the modifier-key snap is held.
type Gizmo struct {
	Attached    bool
	TargetKind  GizmoTargetKind
	TargetID    string
	TargetIndex int
	Mode        GizmoMode
	SnapEnabled bool
	Snap        SnapIncrements

	// dragStart captures the scan transform when a scan drag begins, so
	// entity world positions can be re-derived from their rigid local
	// anchors when the drag commits.
	dragStart space.Transform

	// lastDrag is the most recent (snapped) pose the handle proposed.
	// Only meaningful while dragMoved is set.
	lastDrag space.Transform

	inDrag    bool
	dragMoved bool
}

// NewGizmo returns a detached gizmo in translate mode with default snap
// increments.
func NewGizmo() Gizmo {
	return Gizmo{Mode: GizmoTranslate, Snap: DefaultSnapIncrements()}
}

// AttachGizmo attaches the manipulation handle following the selection
// priority: an explicitly selected measurement point or annotation overrides
// whole-scan manipulation.
func (c *Controller) AttachGizmo() {
	mode := c.eng.Mode()
	switch mode.Kind {
	case engine.ModePointSelected:
		c.gizmo.Attached = true
		c.gizmo.TargetKind = GizmoTargetPoint
		c.gizmo.TargetID = mode.EntityID
		c.gizmo.TargetIndex = mode.PointIndex
	case engine.ModeAnnotationSelected:
		c.gizmo.Attached = true
		c.gizmo.TargetKind = GizmoTargetAnnotation
		c.gizmo.TargetID = mode.EntityID
		c.gizmo.TargetIndex = -1
	default:
		c.gizmo.Attached = true
		c.gizmo.TargetKind = GizmoTargetScan
		c.gizmo.TargetID = ""
		c.gizmo.TargetIndex = -1
	}
}

// DetachGizmo removes the manipulation handle.
func (c *Controller) DetachGizmo() {
	c.gizmo.Attached = false
	c.gizmo.inDrag = false
}

// SetGizmoMode switches between translate, rotate and scale.
func (c *Controller) SetGizmoMode(mode GizmoMode) {
	c.gizmo.Mode = mode
}

// onGizmoDragStart disables orbit for the duration of the handle drag and,
// for scan manipulation, captures the transform the drag started from.
func (c *Controller) onGizmoDragStart() {
	if !c.gizmo.Attached {
		return
	}
	c.gizmo.inDrag = true
	c.gizmo.dragMoved = false
	c.gizmo.dragStart = c.bridge.Transform()
	c.rig.SetOrbitEnabled(false)
}

// onGizmoDrag applies the pose the handle proposes. Scan drags update the
// bridge transform immediately (markers are parented under the scan, so they
// follow rigidly on screen); entity drags only feed the marker sink. Stored
// entity positions are committed once, at drag end.
func (c *Controller) onGizmoDrag(ev Event) {
	if !c.gizmo.Attached || !c.gizmo.inDrag {
		return
	}
	t := ev.Transform
	if c.gizmo.SnapEnabled {
		t = SnapTransform(t, c.gizmo.Snap)
	}

	switch c.gizmo.TargetKind {
	case GizmoTargetScan:
		c.bridge.SetTransform(t)
	case GizmoTargetAnnotation:
		if c.sink != nil {
			c.sink.SetMarkerPosition(MarkerRef{Kind: MarkerAnnotation, ID: c.gizmo.TargetID}, t.Position)
		}
	case GizmoTargetPoint:
		if c.sink != nil {
			c.sink.SetMarkerPosition(MarkerRef{
				Kind: MarkerMeasurementPoint, ID: c.gizmo.TargetID, Index: c.gizmo.TargetIndex,
			}, t.Position)
		}
	}
	c.gizmo.lastDrag = t
	c.gizmo.dragMoved = true
}

// onGizmoDragEnd commits the drag and restores orbit control. A scan drag
// re-derives every entity's world position from its rigid local anchor under
// the old transform; entity drags commit the final handle position.
func (c *Controller) onGizmoDragEnd() {
	if !c.gizmo.inDrag {
		return
	}
	c.gizmo.inDrag = false
	c.rig.SetOrbitEnabled(true)

	// A drag that never proposed a pose has nothing to commit; without this
	// guard the stale (or zero) lastDrag would move the target.
	if !c.gizmo.dragMoved {
		return
	}

	switch c.gizmo.TargetKind {
	case GizmoTargetScan:
		c.resyncAfterTransform(c.gizmo.dragStart, c.bridge.Transform())
	case GizmoTargetAnnotation:
		c.eng.MoveAnnotation(c.gizmo.TargetID, c.gizmo.lastDrag.Position)
	case GizmoTargetPoint:
		c.eng.UpdateMeasurementPoint(c.gizmo.TargetID, c.gizmo.TargetIndex, c.gizmo.lastDrag.Position)
	}
}

// resyncAfterTransform rewrites every stored world position so entities stay
// rigidly attached to the scan across the transform edit: each point's local
// anchor under the old transform is re-expressed under the new one. Bulk
// point updates keep each measurement's value recomputation to a single
// pass.
func (c *Controller) resyncAfterTransform(oldT, newT space.Transform) {
	for _, m := range c.eng.Measurements() {
		points := make([]math3.Vector3, len(m.Points))
		for i, p := range m.Points {
			points[i] = space.LocalToWorld(space.WorldToLocal(p, oldT), newT)
		}
		c.eng.UpdateMeasurementPoints(m.ID, points)
	}
	for _, a := range c.eng.Annotations() {
		c.eng.MoveAnnotation(a.ID, space.LocalToWorld(space.WorldToLocal(a.Position, oldT), newT))
	}
}

// SnapTransform quantizes a pose to the given coarse increments: position to
// translate steps, scale to scale steps, and the rotation angle about its
// axis to whole rotation steps.
func SnapTransform(t space.Transform, snap SnapIncrements) space.Transform {
	out := t
	if snap.Translate > 0 {
		out.Position = math3.Vec3(
			snapValue(t.Position.X, snap.Translate),
			snapValue(t.Position.Y, snap.Translate),
			snapValue(t.Position.Z, snap.Translate),
		)
	}
	if snap.Scale > 0 {
		out.Scale = math3.Vec3(
			snapValue(t.Scale.X, snap.Scale),
			snapValue(t.Scale.Y, snap.Scale),
			snapValue(t.Scale.Z, snap.Scale),
		)
	}
	if snap.RotateDeg > 0 {
		out.Rotation = snapRotation(t.Rotation, snap.RotateDeg)
	}
	return out
}

func snapValue(v, step float32) float32 {
	return math32.Round(v/step) * step
}

// snapRotation quantizes the quaternion's angle about its own axis to whole
// steps of stepDeg.
func snapRotation(q math3.Quat, stepDeg float32) math3.Quat {
	q = q.Normal()
	if q.IsIdentity() {
		return q
	}
	angle := 2 * math32.Acos(math32.Min(math32.Abs(q.W), 1))
	axis := math3.Vec3(q.X, q.Y, q.Z)
	if axis.Length() == 0 {
		return q
	}
	step := stepDeg * math32.Pi / 180
	snapped := math32.Round(angle/step) * step
	return math3.NewQuatAxisAngle(axis, snapped)
}
