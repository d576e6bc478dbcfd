// Package space bridges the scene's fixed world coordinate frame and the
// local frame of the loaded scan, the one object whose transform the user can
// change. Persisted entity positions live in world space; rendering markers
// are parented under the scan, so every position crossing that boundary goes
// through this bridge.
package space

import (
	"fmt"

	"github.com/scanloom/scanloom/pkg/math3"
)

// Transform is the scan's pose: position, rotation, and (possibly
// non-uniform) scale.
type Transform struct {
	Position math3.Vector3 `json:"position"`
	Rotation math3.Quat    `json:"rotation"`
	Scale    math3.Vector3 `json:"scale"`
}

// IdentityTransform returns a transform that maps local space onto world
// space unchanged.
func IdentityTransform() Transform {
	return Transform{
		Rotation: math3.QuatIdentity(),
		Scale:    math3.Vector3Scalar(1),
	}
}

// Matrix returns the local-to-world matrix for this transform.
func (t Transform) Matrix() *math3.Matrix4 {
	m := &math3.Matrix4{}
	m.SetTransform(t.Position, t.Rotation, t.Scale)
	return m
}

// LocalToWorld maps a point in the scan's local frame to world space.
func LocalToWorld(p math3.Vector3, t Transform) math3.Vector3 {
	return p.MulMatrix4(t.Matrix())
}

// WorldToLocal maps a world-space point into the scan's local frame. It is
// the exact inverse of [LocalToWorld] for the same transform.
func WorldToLocal(p math3.Vector3, t Transform) math3.Vector3 {
	return p.MulMatrix4(t.Matrix().Inverse())
}

// NodeSource exposes the rendering side's view of entity markers: the local
// position each marker currently has under the scan node. During live
// manipulation these drift from the last persisted world position, and the
// bridge is how the authoritative world position is recovered.
type NodeSource interface {
	// LocalPosition returns the marker's current position in the scan's
	// local frame, or false if no marker exists for the entity.
	LocalPosition(entityID string) (math3.Vector3, bool)
}

// Bridge resolves entity world positions against the scan's current
// transform.
type Bridge struct {
	nodes     NodeSource
	transform Transform
}

// NewBridge returns a bridge reading marker positions from nodes, starting
// with the identity transform.
func NewBridge(nodes NodeSource) *Bridge {
	return &Bridge{nodes: nodes, transform: IdentityTransform()}
}

// SetTransform records the scan's current transform. Entities keep their
// cached local positions, so a transform change moves them rigidly with the
// scan.
func (b *Bridge) SetTransform(t Transform) {
	b.transform = t
}

// Transform returns the scan's current transform.
func (b *Bridge) Transform() Transform {
	return b.transform
}

// WorldPosition reads the entity's rendering-side local position and maps it
// back to world space for persistence.
func (b *Bridge) WorldPosition(entityID string) (math3.Vector3, error) {
	local, ok := b.nodes.LocalPosition(entityID)
	if !ok {
		return math3.Vector3{}, fmt.Errorf("no marker for entity %s", entityID)
	}
	return LocalToWorld(local, b.transform), nil
}

// ToLocal maps a world-space point into the scan's current local frame.
func (b *Bridge) ToLocal(p math3.Vector3) math3.Vector3 {
	return WorldToLocal(p, b.transform)
}

// ToWorld maps a point in the scan's current local frame to world space.
func (b *Bridge) ToWorld(p math3.Vector3) math3.Vector3 {
	return LocalToWorld(p, b.transform)
}
