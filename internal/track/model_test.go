package track

import (
	"os"
	"path/filepath"
	"testing"
)

func writePointFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestPointFileLoader(t *testing.T) {
	dir := t.TempDir()
	writePointFile(t, dir, "a.json", `[[0,0,0],[0.1,0,0],[0,0.1,0]]`)
	writePointFile(t, dir, "b.json", `[[1,2,3]]`)

	model, err := PointFileLoader{}.Load(ResourceIdentifier{
		Directory: dir,
		Bodies:    []string{"a.json", "b.json"},
	})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if model.Bodies() != 2 {
		t.Fatalf("bodies: got %d want 2", model.Bodies())
	}
	if len(model.BodyPoints[0]) != 3 || len(model.BodyPoints[1]) != 1 {
		t.Fatalf("point counts: got %d and %d", len(model.BodyPoints[0]), len(model.BodyPoints[1]))
	}
	if model.BodyPoints[1][0] != [3]float64{1, 2, 3} {
		t.Fatalf("point value: got %v", model.BodyPoints[1][0])
	}
}

func TestPointFileLoaderErrors(t *testing.T) {
	dir := t.TempDir()
	writePointFile(t, dir, "empty.json", `[]`)
	writePointFile(t, dir, "garbage.json", `{not json`)

	if _, err := (PointFileLoader{}).Load(ResourceIdentifier{Directory: dir}); err == nil {
		t.Fatal("expected error for identifier without bodies")
	}
	if _, err := (PointFileLoader{}).Load(ResourceIdentifier{Directory: dir, Bodies: []string{"missing.json"}}); err == nil {
		t.Fatal("expected error for missing file")
	}
	if _, err := (PointFileLoader{}).Load(ResourceIdentifier{Directory: dir, Bodies: []string{"empty.json"}}); err == nil {
		t.Fatal("expected error for empty point set")
	}
	if _, err := (PointFileLoader{}).Load(ResourceIdentifier{Directory: dir, Bodies: []string{"garbage.json"}}); err == nil {
		t.Fatal("expected error for malformed file")
	}
}

func TestStaticLoader(t *testing.T) {
	model := testObjectModel(1)
	got, err := StaticLoader{Model: model}.Load(ResourceIdentifier{})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got != model {
		t.Fatal("static loader must return its model")
	}

	if _, err := (StaticLoader{}).Load(ResourceIdentifier{}); err == nil {
		t.Fatal("expected error for empty static loader")
	}
}

func TestBoxModelSamplesFullFaceGrids(t *testing.T) {
	const n = 4
	points := BoxModel(0.2, 0.2, 0.2, n)

	// Every face must carry a full n×n grid of distinct sample
	// coordinates, not a diagonal line repeated n times.
	faces := map[string]map[[2]float64]bool{
		"x": {}, "y": {}, "z": {},
	}
	for _, p := range points {
		if p[0] == 0.1 {
			faces["x"][[2]float64{p[1], p[2]}] = true
		}
		if p[1] == 0.1 {
			faces["y"][[2]float64{p[0], p[2]}] = true
		}
		if p[2] == 0.1 {
			faces["z"][[2]float64{p[0], p[1]}] = true
		}
	}
	for name, grid := range faces {
		if len(grid) != n*n {
			t.Fatalf("%s face: got %d distinct samples, want %d", name, len(grid), n*n)
		}
	}
}

func TestBoxModelContainsFacePoints(t *testing.T) {
	points := BoxModel(0.2, 0.4, 0.6, 3)
	if len(points) == 0 {
		t.Fatal("box model produced no points")
	}
	for _, p := range points {
		// Every sample lies on the surface of the half-extent box.
		onFace := p[0] == -0.1 || p[0] == 0.1 ||
			p[1] == -0.2 || p[1] == 0.2 ||
			p[2] == -0.3 || p[2] == 0.3
		if !onFace {
			t.Fatalf("point %v not on any box face", p)
		}
	}
}
