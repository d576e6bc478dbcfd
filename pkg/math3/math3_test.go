package math3

import (
	"testing"

	"github.com/chewxy/math32"
	"github.com/stretchr/testify/assert"
)

func TestVectorArithmetic(t *testing.T) {
	v := Vec3(3, 4, 0)
	assert.InDelta(t, 5.0, v.Length(), 1e-6)
	assert.InDelta(t, 25.0, v.LengthSquared(), 1e-6)

	n := v.Normal()
	assert.InDelta(t, 1.0, n.Length(), 1e-6)

	assert.Equal(t, Vec3(4, 6, 0), v.Add(Vec3(1, 2, 0)))
	assert.Equal(t, Vec3(6, 8, 0), v.MulScalar(2))
	assert.InDelta(t, 0.0, Vec3(1, 0, 0).Dot(Vec3(0, 1, 0)), 1e-6)
	assert.Equal(t, Vec3(0, 0, 1), Vec3(1, 0, 0).Cross(Vec3(0, 1, 0)))
}

func TestQuatRotatesVector(t *testing.T) {
	// 90 degrees about Y sends +X to -Z.
	q := NewQuatAxisAngle(Vec3(0, 1, 0), math32.Pi/2)
	got := q.MulVector3(Vec3(1, 0, 0))
	assert.True(t, got.IsNearlyEqual(Vec3(0, 0, -1), 1e-5), "got %+v", got)
}

func TestQuatConjugateUndoesRotation(t *testing.T) {
	q := NewQuatAxisAngle(Vec3(1, 1, 0).Normal(), 0.7)
	v := Vec3(2, -3, 5)
	back := q.Conjugate().MulVector3(q.MulVector3(v))
	assert.True(t, back.IsNearlyEqual(v, 1e-4), "got %+v", back)
}

func TestMatrixTransformRoundTrip(t *testing.T) {
	var m Matrix4
	m.SetTransform(Vec3(10, -2, 3), NewQuatAxisAngle(Vec3(0, 0, 1), 0.5), Vec3(2, 2, 2))
	inv := m.Inverse()

	v := Vec3(1, 2, 3)
	back := v.MulMatrix4(&m).MulMatrix4(inv)
	assert.True(t, back.IsNearlyEqual(v, 1e-4), "got %+v", back)
}

func TestIdentityTransformIsNoOp(t *testing.T) {
	m := Identity()
	v := Vec3(4, 5, 6)
	assert.True(t, v.MulMatrix4(m).IsNearlyEqual(v, 1e-6))
}

func TestSingularMatrixInverseFallsBackToIdentity(t *testing.T) {
	var m Matrix4 // all zeros, no inverse
	inv := m.Inverse()
	assert.Equal(t, Identity(), inv)
}
