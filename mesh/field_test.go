package mesh_test

import (
	"math"
	"testing"

	"github.com/printpart/interlock/mesh"
	"gonum.org/v1/gonum/spatial/r3"
)

func TestFieldEvaluateCube(t *testing.T) {
	s := mustCube(t, 2) // spans [0,2]^3
	f := mesh.NewField(s)
	for _, tc := range []struct {
		q    r3.Vec
		want float64
	}{
		{r3.Vec{X: 1, Y: 1, Z: 1}, -1},           // center
		{r3.Vec{X: 1, Y: 1, Z: 1.5}, -0.5},       // off center, still inside
		{r3.Vec{X: 1, Y: 1, Z: 3}, 1},            // above the top face
		{r3.Vec{X: -2, Y: 1, Z: 1}, 2},           // beside a face
		{r3.Vec{X: 3, Y: 3, Z: 3}, math.Sqrt(3)}, // past a corner
	} {
		got := f.Evaluate(tc.q)
		if math.Abs(got-tc.want) > 1e-9 {
			t.Errorf("Evaluate(%v) = %g, want %g", tc.q, got, tc.want)
		}
	}
}

func TestFieldEvaluateNearSurface(t *testing.T) {
	s := mustCube(t, 2)
	f := mesh.NewField(s)
	const eps = 1e-3
	if got := f.Evaluate(r3.Vec{X: 1, Y: 1, Z: 2 - eps}); got >= 0 {
		t.Errorf("point just inside classified outside, d = %g", got)
	}
	if got := f.Evaluate(r3.Vec{X: 1, Y: 1, Z: 2 + eps}); got <= 0 {
		t.Errorf("point just outside classified inside, d = %g", got)
	}
	// Just outside an edge, where face normals alone are ambiguous.
	if got := f.Evaluate(r3.Vec{X: 2 + eps, Y: 1, Z: 2 + eps}); got <= 0 {
		t.Errorf("point outside an edge classified inside, d = %g", got)
	}
	// Just outside a corner.
	if got := f.Evaluate(r3.Vec{X: 2 + eps, Y: 2 + eps, Z: 2 + eps}); got <= 0 {
		t.Errorf("point outside a corner classified inside, d = %g", got)
	}
	// Just inside a corner.
	if got := f.Evaluate(r3.Vec{X: 2 - eps, Y: 2 - eps, Z: 2 - eps}); got >= 0 {
		t.Errorf("point inside a corner classified outside, d = %g", got)
	}
}

func TestFieldNearby(t *testing.T) {
	s := mustCube(t, 2)
	f := mesh.NewField(s)
	// All faces touch the cube surface; a generous radius near the center
	// of the top face must at least return the two top triangles.
	got := f.Nearby(r3.Vec{X: 1, Y: 1, Z: 2}, f.MaxFaceDiameter())
	if len(got) == 0 {
		t.Fatal("no faces near the top face center")
	}
	foundTop := false
	for _, fi := range got {
		tri := s.FaceTriangle(fi)
		if tri[0].Z == 2 && tri[1].Z == 2 && tri[2].Z == 2 {
			foundTop = true
		}
	}
	if !foundTop {
		t.Errorf("top face not in nearby set %v", got)
	}
}

func TestFieldMaxFaceDiameter(t *testing.T) {
	s := mustCube(t, 2)
	f := mesh.NewField(s)
	want := 2 * math.Sqrt2 // face diagonal
	if math.Abs(f.MaxFaceDiameter()-want) > 1e-9 {
		t.Errorf("MaxFaceDiameter = %g, want %g", f.MaxFaceDiameter(), want)
	}
}
