package rigid

import (
	"math"
	"testing"
)

const rotTol = 1e-9

func vecClose(t *testing.T, got, want [3]float64, tol float64, msg string) {
	t.Helper()
	for i := range got {
		if math.Abs(got[i]-want[i]) > tol {
			t.Fatalf("%s: got %v want %v", msg, got, want)
		}
	}
}

func TestRotVecQuatRoundtrip(t *testing.T) {
	cases := [][3]float64{
		{0, 0, 0},
		{0.3, 0, 0},
		{0, -0.7, 0},
		{0.1, 0.2, -0.3},
		{1e-10, 0, 2e-10}, // small-angle branch
		{2.0, -1.0, 0.5},
	}
	for _, r := range cases {
		q := QuatFromRotVec(r[0], r[1], r[2])
		rx, ry, rz := RotVecFromQuat(q)
		vecClose(t, [3]float64{rx, ry, rz}, r, 1e-8, "roundtrip")
	}
}

func TestRotatePointKnownRotations(t *testing.T) {
	// 90 degrees about Z maps x̂ to ŷ.
	got := RotatePoint([3]float64{0, 0, math.Pi / 2}, [3]float64{1, 0, 0})
	vecClose(t, got, [3]float64{0, 1, 0}, rotTol, "90deg about Z")

	// 180 degrees about X maps ŷ to -ŷ.
	got = RotatePoint([3]float64{math.Pi, 0, 0}, [3]float64{0, 1, 0})
	vecClose(t, got, [3]float64{0, -1, 0}, rotTol, "180deg about X")

	// Identity leaves the point alone.
	got = RotatePoint([3]float64{0, 0, 0}, [3]float64{0.3, -0.2, 0.9})
	vecClose(t, got, [3]float64{0.3, -0.2, 0.9}, rotTol, "identity")
}

func TestRotatePointPreservesNorm(t *testing.T) {
	p := [3]float64{0.3, -1.2, 2.1}
	got := RotatePoint([3]float64{0.4, -0.9, 1.3}, p)
	want := math.Sqrt(p[0]*p[0] + p[1]*p[1] + p[2]*p[2])
	norm := math.Sqrt(got[0]*got[0] + got[1]*got[1] + got[2]*got[2])
	if math.Abs(norm-want) > 1e-9 {
		t.Fatalf("rotation changed norm: %v -> %v", want, norm)
	}
}

func TestComposeRotVecMatchesSequentialRotation(t *testing.T) {
	r := [3]float64{0.2, -0.1, 0.4}
	d := [3]float64{-0.3, 0.2, 0.1}
	composed := ComposeRotVec(r, d)

	p := [3]float64{0.7, 0.1, -0.5}
	sequential := RotatePoint(d, RotatePoint(r, p))
	direct := RotatePoint(composed, p)
	vecClose(t, direct, sequential, 1e-9, "composed rotation")
}

func TestTransformPoint(t *testing.T) {
	pose := Pose{X: 1, Y: 2, Z: 3, RZ: math.Pi / 2}
	got := pose.TransformPoint([3]float64{1, 0, 0})
	vecClose(t, got, [3]float64{1, 3, 3}, rotTol, "rotate then translate")
}

func TestMeanPoseUniformCluster(t *testing.T) {
	// Identical poses must average to themselves.
	p := Pose{X: 1, Y: -2, Z: 0.5, RX: 0.1, RY: 0.2, RZ: 0.3}
	poses := []Pose{p, p, p}
	weights := []float64{0.2, 0.3, 0.5}
	got := MeanPose(poses, weights)
	vecClose(t, [3]float64{got.X, got.Y, got.Z}, [3]float64{p.X, p.Y, p.Z}, 1e-12, "position")
	vecClose(t, [3]float64{got.RX, got.RY, got.RZ}, [3]float64{p.RX, p.RY, p.RZ}, 1e-8, "rotation")
}

func TestMeanPoseWeightedPosition(t *testing.T) {
	poses := []Pose{{X: 0}, {X: 10}}
	got := MeanPose(poses, []float64{0.75, 0.25})
	if math.Abs(got.X-2.5) > 1e-12 {
		t.Fatalf("weighted mean position: got %v want 2.5", got.X)
	}
}

func TestMeanPoseSymmetricOrientations(t *testing.T) {
	// Equal-weight rotations of ±θ about Z average to the identity.
	poses := []Pose{{RZ: 0.4}, {RZ: -0.4}}
	got := MeanPose(poses, []float64{0.5, 0.5})
	vecClose(t, [3]float64{got.RX, got.RY, got.RZ}, [3]float64{}, 1e-9, "symmetric mean")
}

func TestMeanPoseIgnoresZeroWeights(t *testing.T) {
	poses := []Pose{{X: 1, RZ: 0.2}, {X: 100, RZ: 3.0}}
	got := MeanPose(poses, []float64{1, 0})
	if math.Abs(got.X-1) > 1e-12 || math.Abs(got.RZ-0.2) > 1e-9 {
		t.Fatalf("zero-weight pose leaked into mean: %+v", got)
	}
}

func TestMeanPoseZeroTotalWeight(t *testing.T) {
	got := MeanPose([]Pose{{X: 5}}, []float64{0})
	if got != (Pose{}) {
		t.Fatalf("expected zero pose for zero total weight, got %+v", got)
	}
}
