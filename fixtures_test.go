package interlock_test

import (
	"testing"

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

func mustBox(t *testing.T, min, max r3.Vec) *mesh.Solid {
	t.Helper()
	s, err := mesh.FromTriangles(boxTris(min, max), 0)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func mustCube(t *testing.T, side float64) *mesh.Solid {
	t.Helper()
	return mustBox(t, r3.Vec{}, r3.Vec{X: side, Y: side, Z: side})
}
