package rigid

import (
	"math"

	"gonum.org/v1/gonum/num/quat"
)

// Angle magnitude below which axis-angle conversions fall back to the
// small-angle approximation to avoid division by a vanishing angle.
const smallAngle = 1e-8

// QuatFromRotVec converts an axis-angle rotation vector to a unit quaternion.
func QuatFromRotVec(rx, ry, rz float64) quat.Number {
	angle := math.Sqrt(rx*rx + ry*ry + rz*rz)
	if angle < smallAngle {
		// First-order approximation: q ≈ (1, r/2).
		return quat.Number{Real: 1, Imag: rx / 2, Jmag: ry / 2, Kmag: rz / 2}
	}
	s := math.Sin(angle/2) / angle
	return quat.Number{
		Real: math.Cos(angle / 2),
		Imag: rx * s,
		Jmag: ry * s,
		Kmag: rz * s,
	}
}

// RotVecFromQuat converts a unit quaternion back to an axis-angle rotation
// vector with angle in [0, π].
func RotVecFromQuat(q quat.Number) (rx, ry, rz float64) {
	// Normalise sign so the scalar part is non-negative (shortest rotation).
	if q.Real < 0 {
		q = quat.Scale(-1, q)
	}
	norm := math.Sqrt(q.Imag*q.Imag + q.Jmag*q.Jmag + q.Kmag*q.Kmag)
	if norm < smallAngle {
		return 2 * q.Imag, 2 * q.Jmag, 2 * q.Kmag
	}
	w := q.Real
	if w > 1 {
		w = 1
	}
	angle := 2 * math.Atan2(norm, w)
	s := angle / norm
	return q.Imag * s, q.Jmag * s, q.Kmag * s
}

// ComposeRotVec applies the perturbation rotation vector d on top of the
// rotation vector r (world-frame composition: result = d ∘ r) and returns
// the composed rotation vector. Composing through quaternions keeps the
// result on SO(3); adding rotation vectors directly does not.
func ComposeRotVec(r, d [3]float64) [3]float64 {
	qr := QuatFromRotVec(r[0], r[1], r[2])
	qd := QuatFromRotVec(d[0], d[1], d[2])
	rx, ry, rz := RotVecFromQuat(quat.Mul(qd, qr))
	return [3]float64{rx, ry, rz}
}

// RotatePoint rotates point p by the rotation vector r.
func RotatePoint(r [3]float64, p [3]float64) [3]float64 {
	q := QuatFromRotVec(r[0], r[1], r[2])
	v := quat.Number{Imag: p[0], Jmag: p[1], Kmag: p[2]}
	out := quat.Mul(quat.Mul(q, v), quat.Conj(q))
	return [3]float64{out.Imag, out.Jmag, out.Kmag}
}

// TransformPoint applies the rigid transform of pose to the body-frame
// point p, returning the world-frame point.
func (p3 Pose) TransformPoint(p [3]float64) [3]float64 {
	r := RotatePoint([3]float64{p3.RX, p3.RY, p3.RZ}, p)
	return [3]float64{r[0] + p3.X, r[1] + p3.Y, r[2] + p3.Z}
}

// MeanPose computes the weighted mean of poses: arithmetic mean of
// positions and a chordal quaternion mean of orientations. Weights must be
// non-negative; a zero total weight yields the zero pose.
//
// The chordal mean accumulates quaternions sign-aligned with the first
// pose's quaternion and renormalises. It is exact for tight orientation
// clusters, which is the regime a converged particle population is in.
func MeanPose(poses []Pose, weights []float64) Pose {
	var total float64
	var mean Pose
	var qSum quat.Number
	var qRef quat.Number
	haveRef := false

	for i, p := range poses {
		w := weights[i]
		if w <= 0 {
			continue
		}
		total += w
		mean.X += w * p.X
		mean.Y += w * p.Y
		mean.Z += w * p.Z

		q := QuatFromRotVec(p.RX, p.RY, p.RZ)
		if !haveRef {
			qRef = q
			haveRef = true
		}
		// Antipodal quaternions encode the same rotation; align signs
		// before averaging.
		if dot(q, qRef) < 0 {
			q = quat.Scale(-1, q)
		}
		qSum = quat.Add(qSum, quat.Scale(w, q))
	}
	if total == 0 {
		return Pose{}
	}
	mean.X /= total
	mean.Y /= total
	mean.Z /= total

	if n := quat.Abs(qSum); n > smallAngle {
		qSum = quat.Scale(1/n, qSum)
		mean.RX, mean.RY, mean.RZ = RotVecFromQuat(qSum)
	}
	return mean
}

func dot(a, b quat.Number) float64 {
	return a.Real*b.Real + a.Imag*b.Imag + a.Jmag*b.Jmag + a.Kmag*b.Kmag
}
