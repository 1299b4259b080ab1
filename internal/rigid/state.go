// Package rigid provides the flat joint-state representation used by the
// pose tracker: N rigid bodies, each with a 6-DoF pose stored contiguously
// in a single []float64 buffer. Keeping the joint state flat (rather than
// nested per-body structs) lets the coordinate filter iterate sampling
// blocks as index ranges without per-step allocation.
package rigid

import "fmt"

// BodyDoF is the state dimension of a single rigid body:
// [x, y, z, rx, ry, rz] where (rx, ry, rz) is an axis-angle rotation
// vector (axis scaled by angle in radians).
const BodyDoF = 6

// Pose is the 6-DoF pose of one rigid body in the world frame.
type Pose struct {
	X, Y, Z    float64 // position (metres)
	RX, RY, RZ float64 // orientation as axis-angle rotation vector (radians)
}

// State is the flat joint state over all tracked bodies.
// Body i occupies indices [i*BodyDoF, (i+1)*BodyDoF).
type State []float64

// NewState returns a zeroed joint state for the given number of bodies.
func NewState(bodies int) State {
	return make(State, bodies*BodyDoF)
}

// Bodies returns the number of rigid bodies in the state.
func (s State) Bodies() int { return len(s) / BodyDoF }

// Body returns the 6-element sub-slice for body i. The slice aliases the
// underlying buffer; writes are visible in the joint state.
func (s State) Body(i int) []float64 {
	return s[i*BodyDoF : (i+1)*BodyDoF]
}

// Clone returns a deep copy of the state.
func (s State) Clone() State {
	out := make(State, len(s))
	copy(out, s)
	return out
}

// PoseAt extracts the pose of body i.
func (s State) PoseAt(i int) Pose {
	b := s.Body(i)
	return Pose{X: b[0], Y: b[1], Z: b[2], RX: b[3], RY: b[4], RZ: b[5]}
}

// SetPoseAt writes the pose of body i into the joint state.
func (s State) SetPoseAt(i int, p Pose) {
	b := s.Body(i)
	b[0], b[1], b[2] = p.X, p.Y, p.Z
	b[3], b[4], b[5] = p.RX, p.RY, p.RZ
}

// Poses extracts all body poses in body order.
func (s State) Poses() []Pose {
	poses := make([]Pose, s.Bodies())
	for i := range poses {
		poses[i] = s.PoseAt(i)
	}
	return poses
}

// FromPoses assembles a joint state from per-body poses.
func FromPoses(poses []Pose) State {
	s := NewState(len(poses))
	for i, p := range poses {
		s.SetPoseAt(i, p)
	}
	return s
}

// CheckDim verifies that the state length is a whole number of bodies and
// matches the expected body count. Used by callers that accept externally
// supplied state buffers.
func CheckDim(s State, bodies int) error {
	if len(s) != bodies*BodyDoF {
		return fmt.Errorf("joint state has %d elements, want %d (%d bodies x %d DoF)",
			len(s), bodies*BodyDoF, bodies, BodyDoF)
	}
	return nil
}
