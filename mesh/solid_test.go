package mesh_test

import (
	"math"
	"testing"

	"github.com/printpart/interlock/geom"
	"github.com/printpart/interlock/mesh"
	"gonum.org/v1/gonum/spatial/r3"
)

// boxTris returns the 12 outward-wound triangles of an axis-aligned box.
func boxTris(min, max r3.Vec) []r3.Triangle {
	v := []r3.Vec{
		{X: min.X, Y: min.Y, Z: min.Z},
		{X: max.X, Y: min.Y, Z: min.Z},
		{X: max.X, Y: max.Y, Z: min.Z},
		{X: min.X, Y: max.Y, Z: min.Z},
		{X: min.X, Y: min.Y, Z: max.Z},
		{X: max.X, Y: min.Y, Z: max.Z},
		{X: max.X, Y: max.Y, Z: max.Z},
		{X: min.X, Y: max.Y, Z: max.Z},
	}
	faces := [][3]int{
		{0, 2, 1}, {0, 3, 2},
		{4, 5, 6}, {4, 6, 7},
		{0, 1, 5}, {0, 5, 4},
		{1, 2, 6}, {1, 6, 5},
		{2, 3, 7}, {2, 7, 6},
		{3, 0, 4}, {3, 4, 7},
	}
	tris := make([]r3.Triangle, len(faces))
	for i, f := range faces {
		tris[i] = r3.Triangle{v[f[0]], v[f[1]], v[f[2]]}
	}
	return tris
}

func mustCube(t *testing.T, side float64) *mesh.Solid {
	t.Helper()
	s, err := mesh.FromTriangles(boxTris(r3.Vec{}, r3.Vec{X: side, Y: side, Z: side}), 0)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestFromTrianglesCube(t *testing.T) {
	s := mustCube(t, 2)
	if s.NumVertices() != 8 {
		t.Errorf("got %d vertices, want 8", s.NumVertices())
	}
	if s.NumFaces() != 12 {
		t.Errorf("got %d faces, want 12", s.NumFaces())
	}
	if got := s.Volume(); math.Abs(got-8) > 1e-9 {
		t.Errorf("volume %g, want 8", got)
	}
	want := r3.Vec{X: 1, Y: 1, Z: 1}
	if got := s.Centroid(); r3.Norm(r3.Sub(got, want)) > 1e-9 {
		t.Errorf("centroid %v, want %v", got, want)
	}
	b := s.Bounds()
	if r3.Norm(b.Min) > 1e-9 || r3.Norm(r3.Sub(b.Max, r3.Vec{X: 2, Y: 2, Z: 2})) > 1e-9 {
		t.Errorf("bounds %v", b)
	}
}

func TestFromTrianglesWeldsJitter(t *testing.T) {
	tris := boxTris(r3.Vec{}, r3.Vec{X: 1, Y: 1, Z: 1})
	for i := range tris {
		for j := range tris[i] {
			tris[i][j].X += 1e-9 * float64((i+j)%3-1)
		}
	}
	s, err := mesh.FromTriangles(tris, 1e-6)
	if err != nil {
		t.Fatal(err)
	}
	if s.NumVertices() != 8 {
		t.Errorf("jittered cube welded to %d vertices, want 8", s.NumVertices())
	}
}

func TestFromTrianglesDropsDegenerate(t *testing.T) {
	tris := boxTris(r3.Vec{}, r3.Vec{X: 1, Y: 1, Z: 1})
	tris = append(tris, r3.Triangle{{X: 5}, {X: 6}, {X: 7}})
	s, err := mesh.FromTriangles(tris, 0)
	if err != nil {
		t.Fatal(err)
	}
	if s.NumFaces() != 12 {
		t.Errorf("degenerate face kept: %d faces", s.NumFaces())
	}
}

func TestFromTrianglesErrors(t *testing.T) {
	if _, err := mesh.FromTriangles(nil, 0); err == nil {
		t.Error("empty soup accepted")
	}
	only := []r3.Triangle{{{}, {X: 1e-9}, {Y: 1e-9}}}
	if _, err := mesh.FromTriangles(only, 0); err == nil {
		t.Error("all-degenerate soup accepted")
	}
	cube := boxTris(r3.Vec{}, r3.Vec{X: 1, Y: 1, Z: 1})
	if _, err := mesh.FromTriangles(cube, 10); err == nil {
		t.Error("weld tolerance larger than the model accepted")
	}
}

func TestTranslateVolumeInvariant(t *testing.T) {
	s := mustCube(t, 3)
	moved := s.Translate(r3.Vec{X: -17, Y: 4, Z: 100})
	if got := moved.Volume(); math.Abs(got-27) > 1e-9 {
		t.Errorf("translated volume %g, want 27", got)
	}
	if got := s.Vertex(0); !boxContains(s.Bounds(), got) {
		t.Errorf("original mutated: vertex %v outside %v", got, s.Bounds())
	}
}

func TestShells(t *testing.T) {
	tris := boxTris(r3.Vec{}, r3.Vec{X: 1, Y: 1, Z: 1})
	tris = append(tris, boxTris(r3.Vec{X: 5}, r3.Vec{X: 6, Y: 1, Z: 1})...)
	s, err := mesh.FromTriangles(tris, 0)
	if err != nil {
		t.Fatal(err)
	}
	shells := s.Shells()
	if len(shells) != 2 {
		t.Fatalf("got %d shells, want 2", len(shells))
	}
	if len(shells[0])+len(shells[1]) != s.NumFaces() {
		t.Errorf("shells cover %d faces of %d", len(shells[0])+len(shells[1]), s.NumFaces())
	}
}

func TestTrianglesRoundTrip(t *testing.T) {
	s := mustCube(t, 1)
	back, err := mesh.FromTriangles(s.Triangles(), geom.WeldTol)
	if err != nil {
		t.Fatal(err)
	}
	if back.NumFaces() != s.NumFaces() || back.NumVertices() != s.NumVertices() {
		t.Errorf("round trip changed topology: %d/%d faces, %d/%d vertices",
			back.NumFaces(), s.NumFaces(), back.NumVertices(), s.NumVertices())
	}
}

func boxContains(b r3.Box, v r3.Vec) bool {
	return b.Min.X <= v.X && v.X <= b.Max.X &&
		b.Min.Y <= v.Y && v.Y <= b.Max.Y &&
		b.Min.Z <= v.Z && v.Z <= b.Max.Z
}
