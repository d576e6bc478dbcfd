package engine

// Tool is an activatable placement tool.
type Tool string

const (
	ToolNone       Tool = ""
	ToolDistance   Tool = "distance"
	ToolArea       Tool = "area"
	ToolAnnotation Tool = "annotation"
)

// ModeKind tags the active interaction mode.
type ModeKind int

const (
	// ModeNone means no tool, selection, or drag is active.
	ModeNone ModeKind = iota

	// ModeToolActive means a placement tool is armed and clicks place points
	// or annotations.
	ModeToolActive

	// ModeAnnotationSelected means one annotation is selected.
	ModeAnnotationSelected

	// ModePointSelected means one measurement point is selected.
	ModePointSelected

	// ModeDraggingAnnotation means an annotation marker is being dragged.
	ModeDraggingAnnotation

	// ModeDraggingPoint means a measurement point is being dragged. The tool
	// that was active when the drag started is saved for restoration.
	ModeDraggingPoint
)

// Mode is the single interaction mode value. Exactly one mode is active at
// any time; replacing the whole value on every transition is what makes the
// mutual-exclusivity invariant structural rather than convention-enforced.
type Mode struct {
	Kind       ModeKind
	Tool       Tool   // active tool (ModeToolActive) or saved tool (ModeDraggingPoint)
	EntityID   string // selected/dragged entity
	PointIndex int    // selected/dragged point index within a measurement
}

// modeNone is the rest state.
func modeNone() Mode {
	return Mode{Kind: ModeNone, PointIndex: -1}
}

// RefersToMeasurement reports whether the mode references the given
// measurement, either by selection or by drag.
func (m Mode) RefersToMeasurement(id string) bool {
	return (m.Kind == ModePointSelected || m.Kind == ModeDraggingPoint) && m.EntityID == id
}

// RefersToAnnotation reports whether the mode references the given
// annotation.
func (m Mode) RefersToAnnotation(id string) bool {
	return (m.Kind == ModeAnnotationSelected || m.Kind == ModeDraggingAnnotation) && m.EntityID == id
}
