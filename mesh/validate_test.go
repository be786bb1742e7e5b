package mesh_test

import (
	"math"
	"testing"

	"github.com/printpart/interlock/geom"
	"github.com/printpart/interlock/mesh"
	"gonum.org/v1/gonum/spatial/r3"
)

func hasDefect(defects []mesh.Defect, kind mesh.DefectKind) bool {
	for _, d := range defects {
		if d.Kind == kind {
			return true
		}
	}
	return false
}

func TestValidateCleanCube(t *testing.T) {
	s := mustCube(t, 10)
	if defects := mesh.Validate(s); len(defects) != 0 {
		t.Errorf("clean cube reported defects: %v", defects)
	}
}

func TestValidateOpenEdge(t *testing.T) {
	tris := boxTris(r3.Vec{}, r3.Vec{X: 1, Y: 1, Z: 1})
	s, err := mesh.FromTriangles(tris[:len(tris)-1], 0)
	if err != nil {
		t.Fatal(err)
	}
	defects := mesh.ValidateTopology(s)
	if !hasDefect(defects, mesh.DefectOpenEdge) {
		t.Fatalf("missing face not reported, got %v", defects)
	}
	open := 0
	for _, d := range defects {
		if d.Kind == mesh.DefectOpenEdge {
			open++
		}
	}
	if open != 3 {
		t.Errorf("got %d open edges, want 3", open)
	}
}

func TestValidateNonManifoldEdge(t *testing.T) {
	tris := boxTris(r3.Vec{}, r3.Vec{X: 1, Y: 1, Z: 1})
	// A fin hanging off an existing edge makes that edge 3-valent.
	tris = append(tris, r3.Triangle{
		{X: 0, Y: 0, Z: 0}, {X: 1, Y: 0, Z: 0}, {X: 0.5, Y: -1, Z: -1},
	})
	s, err := mesh.FromTriangles(tris, 0)
	if err != nil {
		t.Fatal(err)
	}
	if defects := mesh.ValidateTopology(s); !hasDefect(defects, mesh.DefectNonManifoldEdge) {
		t.Errorf("3-valent edge not reported, got %v", defects)
	}
}

func TestValidateInconsistentWinding(t *testing.T) {
	tris := boxTris(r3.Vec{}, r3.Vec{X: 1, Y: 1, Z: 1})
	tris[0][1], tris[0][2] = tris[0][2], tris[0][1]
	s, err := mesh.FromTriangles(tris, 0)
	if err != nil {
		t.Fatal(err)
	}
	if defects := mesh.ValidateTopology(s); !hasDefect(defects, mesh.DefectInconsistentWinding) {
		t.Errorf("flipped face not reported, got %v", defects)
	}
}

func TestValidateSelfIntersection(t *testing.T) {
	tris := boxTris(r3.Vec{}, r3.Vec{X: 10, Y: 10, Z: 10})
	// A fin poking through the interior and out the top face.
	tris = append(tris, r3.Triangle{
		{X: 5, Y: 2, Z: 5}, {X: 5, Y: 8, Z: 5}, {X: 5, Y: 5, Z: 15},
	})
	s, err := mesh.FromTriangles(tris, 0)
	if err != nil {
		t.Fatal(err)
	}
	if defects := mesh.Validate(s); !hasDefect(defects, mesh.DefectSelfIntersection) {
		t.Errorf("piercing fin not reported, got %v", defects)
	}
}

// tJunctionCube returns a unit cube whose top face is fanned around the
// midpoint of one top edge while the adjoining wall still spans the full
// edge, leaving a T-junction seam.
func tJunctionCube() []r3.Triangle {
	v := []r3.Vec{
		{}, {X: 1}, {X: 1, Y: 1}, {Y: 1},
		{Z: 1}, {X: 1, Z: 1}, {X: 1, Y: 1, Z: 1}, {Y: 1, Z: 1},
	}
	m := r3.Vec{X: 0.5, Z: 1} // midpoint of edge v4-v5
	tris := []r3.Triangle{
		{v[0], v[2], v[1]}, {v[0], v[3], v[2]}, // bottom
		{v[4], m, v[7]}, {m, v[6], v[7]}, {m, v[5], v[6]}, // fanned top
		{v[0], v[1], v[5]}, {v[0], v[5], v[4]}, // front, full edge v5-v4
		{v[1], v[2], v[6]}, {v[1], v[6], v[5]},
		{v[2], v[3], v[7]}, {v[2], v[7], v[6]},
		{v[3], v[0], v[4]}, {v[3], v[4], v[7]},
	}
	return tris
}

func TestRepairStitchesTJunction(t *testing.T) {
	s, err := mesh.FromTriangles(tJunctionCube(), 0)
	if err != nil {
		t.Fatal(err)
	}
	if defects := mesh.ValidateTopology(s); !hasDefect(defects, mesh.DefectOpenEdge) {
		t.Fatalf("fixture has no T-junction, got %v", defects)
	}
	fixed := mesh.Repair(s, geom.WeldTol)
	if defects := mesh.ValidateTopology(fixed); len(defects) != 0 {
		t.Fatalf("repair left defects: %v", defects)
	}
	if got := fixed.Volume(); math.Abs(got-1) > 1e-9 {
		t.Errorf("repaired volume %g, want 1", got)
	}
}

func TestConformEdgesSubdividesSeam(t *testing.T) {
	// The small triangle's apex sits on the interior of the big one's base
	// edge. Conforming must split the base there and leave the small
	// triangle alone.
	big := r3.Triangle{{}, {X: 4}, {Y: 4}}
	side := r3.Triangle{{X: 2}, {X: 4}, {X: 3, Y: -2}}
	out := mesh.ConformEdges([]r3.Triangle{big, side}, 0)
	if len(out) != 3 {
		t.Fatalf("got %d triangles, want 3", len(out))
	}
	var area, maxBase float64
	for _, tr := range out {
		area += geom.Area(tr)
		for j := 0; j < 3; j++ {
			a, b := tr[j], tr[(j+1)%3]
			if a.Y == 0 && b.Y == 0 && a.X >= 0 && b.X >= 0 {
				maxBase = math.Max(maxBase, r3.Norm(r3.Sub(b, a)))
			}
		}
	}
	if math.Abs(area-10) > 1e-9 {
		t.Errorf("conformed area %g, want 10", area)
	}
	if maxBase > 2+1e-9 {
		t.Errorf("base edge of length %g survived conforming", maxBase)
	}
}

func TestConformEdgesKeepsCleanSoup(t *testing.T) {
	tris := boxTris(r3.Vec{}, r3.Vec{X: 2, Y: 2, Z: 2})
	out := mesh.ConformEdges(tris, 0)
	if len(out) != len(tris) {
		t.Errorf("conforming a clean box changed %d faces to %d", len(tris), len(out))
	}
}

func TestRepairKeepsCleanSolid(t *testing.T) {
	s := mustCube(t, 4)
	fixed := mesh.Repair(s, geom.WeldTol)
	if fixed.NumFaces() != s.NumFaces() || math.Abs(fixed.Volume()-s.Volume()) > 1e-9 {
		t.Errorf("repair changed a clean solid: %d faces, volume %g",
			fixed.NumFaces(), fixed.Volume())
	}
}
