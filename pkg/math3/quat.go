package math3

import "github.com/chewxy/math32"

// Quat is a quaternion with X, Y, Z and W components, used for scene and
// entity rotations.
type Quat struct {
	X float32 `json:"x"`
	Y float32 `json:"y"`
	Z float32 `json:"z"`
	W float32 `json:"w"`
}

// NewQuat returns a new quaternion from the specified components.
func NewQuat(x, y, z, w float32) Quat {
	return Quat{X: x, Y: y, Z: z, W: w}
}

// QuatIdentity returns the identity quaternion (no rotation).
func QuatIdentity() Quat {
	return Quat{W: 1}
}

// NewQuatAxisAngle returns a new quaternion from the given rotation axis and
// angle in radians. The axis need not be normalized.
func NewQuatAxisAngle(axis Vector3, angle float32) Quat {
	n := axis.Normal()
	half := angle / 2
	s := math32.Sin(half)
	return Quat{X: n.X * s, Y: n.Y * s, Z: n.Z * s, W: math32.Cos(half)}
}

// IsIdentity reports whether this is the identity quaternion.
func (q Quat) IsIdentity() bool {
	return q.X == 0 && q.Y == 0 && q.Z == 0 && q.W == 1
}

// Length returns the length of this quaternion.
func (q Quat) Length() float32 {
	return math32.Sqrt(q.X*q.X + q.Y*q.Y + q.Z*q.Z + q.W*q.W)
}

// Normal returns this quaternion normalized to unit length.
// Returns the identity quaternion if the length is zero.
func (q Quat) Normal() Quat {
	l := q.Length()
	if l == 0 {
		return QuatIdentity()
	}
	l = 1 / l
	return Quat{X: q.X * l, Y: q.Y * l, Z: q.Z * l, W: q.W * l}
}

// Conjugate returns the conjugate of this quaternion, which for a unit
// quaternion is its inverse rotation.
func (q Quat) Conjugate() Quat {
	return Quat{X: -q.X, Y: -q.Y, Z: -q.Z, W: q.W}
}

// Mul returns this quaternion multiplied by other (composition of rotations:
// other applied first, then this).
func (q Quat) Mul(other Quat) Quat {
	return Quat{
		X: q.X*other.W + q.W*other.X + q.Y*other.Z - q.Z*other.Y,
		Y: q.Y*other.W + q.W*other.Y + q.Z*other.X - q.X*other.Z,
		Z: q.Z*other.W + q.W*other.Z + q.X*other.Y - q.Y*other.X,
		W: q.W*other.W - q.X*other.X - q.Y*other.Y - q.Z*other.Z,
	}
}

// MulVector3 returns the given vector rotated by this quaternion.
func (q Quat) MulVector3(v Vector3) Vector3 {
	// v' = v + 2*cross(q.xyz, cross(q.xyz, v) + q.w*v)
	u := Vec3(q.X, q.Y, q.Z)
	t := u.Cross(v).Add(v.MulScalar(q.W))
	return v.Add(u.Cross(t).MulScalar(2))
}
