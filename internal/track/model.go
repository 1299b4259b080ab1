package track

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// ResourceIdentifier names the geometry resources for the tracked bodies:
// a directory plus one decoded point-set file per body. Mesh parsing is a
// collaborator concern — files referenced here hold already-decoded sample
// points, not raw mesh formats.
type ResourceIdentifier struct {
	Directory string   `json:"directory"`
	Bodies    []string `json:"bodies"`
}

// Path returns the full path of the i-th body resource.
func (r ResourceIdentifier) Path(i int) string {
	return filepath.Join(r.Directory, r.Bodies[i])
}

// ObjectModel is the renderable/geometric representation of the tracked
// bodies: per body, a set of surface sample points in the body frame. The
// depth likelihood projects these points through a hypothesised pose.
type ObjectModel struct {
	// BodyPoints[i] holds the body-frame sample points of body i.
	BodyPoints [][][3]float64
}

// Bodies returns the number of rigid bodies in the model.
func (m *ObjectModel) Bodies() int { return len(m.BodyPoints) }

// ModelLoader resolves a ResourceIdentifier into an ObjectModel.
// Implementations own their failure modes; the builder propagates loader
// errors unchanged.
type ModelLoader interface {
	Load(ori ResourceIdentifier) (*ObjectModel, error)
}

// PointFileLoader loads body point sets from JSON files, each containing an
// array of [x, y, z] triples in the body frame.
type PointFileLoader struct{}

// Load reads every body file named by the resource identifier.
func (PointFileLoader) Load(ori ResourceIdentifier) (*ObjectModel, error) {
	if len(ori.Bodies) == 0 {
		return nil, fmt.Errorf("object model: resource identifier names no bodies")
	}
	model := &ObjectModel{BodyPoints: make([][][3]float64, len(ori.Bodies))}
	for i := range ori.Bodies {
		path := ori.Path(i)
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("object model: read %s: %w", path, err)
		}
		var points [][3]float64
		if err := json.Unmarshal(data, &points); err != nil {
			return nil, fmt.Errorf("object model: parse %s: %w", path, err)
		}
		if len(points) == 0 {
			return nil, fmt.Errorf("object model: %s contains no points", path)
		}
		model.BodyPoints[i] = points
	}
	return model, nil
}

// StaticLoader serves a pre-built ObjectModel regardless of the resource
// identifier. Used by tests and by callers that decode geometry upstream.
type StaticLoader struct {
	Model *ObjectModel
	Err   error
}

// Load returns the static model or error.
func (l StaticLoader) Load(ResourceIdentifier) (*ObjectModel, error) {
	if l.Err != nil {
		return nil, l.Err
	}
	if l.Model == nil || l.Model.Bodies() == 0 {
		return nil, fmt.Errorf("object model: static loader holds no bodies")
	}
	return l.Model, nil
}

// BoxModel synthesises an axis-aligned box point model, sampling each face
// on a regular grid. Convenient for tests and for tracking simple rigid
// targets without external geometry files.
func BoxModel(lx, ly, lz float64, samplesPerEdge int) [][3]float64 {
	if samplesPerEdge < 2 {
		samplesPerEdge = 2
	}
	n := samplesPerEdge
	step := func(lo, hi float64, i int) float64 {
		return lo + (hi-lo)*float64(i)/float64(n-1)
	}
	hx, hy, hz := lx/2, ly/2, lz/2
	var points [][3]float64
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			a := step(-hx, hx, i)
			b := step(-hy, hy, j)
			c := step(-hz, hz, j)
			d := step(-hz, hz, i)
			points = append(points,
				[3]float64{a, b, -hz}, [3]float64{a, b, hz}, // z faces
				[3]float64{a, -hy, c}, [3]float64{a, hy, c}, // y faces
				[3]float64{-hx, b, d}, [3]float64{hx, b, d}, // x faces
			)
		}
	}
	return points
}
