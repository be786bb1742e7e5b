package interlock_test

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/printpart/interlock"
	"github.com/printpart/interlock/geom"
	"github.com/printpart/interlock/mesh"
	"gonum.org/v1/gonum/spatial/r3"
)

func zPlane(t *testing.T, z float64) geom.Plane {
	t.Helper()
	pl, err := geom.NewPlane(r3.Vec{Z: z}, r3.Vec{Z: 1})
	if err != nil {
		t.Fatal(err)
	}
	return pl
}

func TestSplitCubeMidplane(t *testing.T) {
	cube := mustCube(t, 100)
	res, err := interlock.SplitByPlane(context.Background(), cube, zPlane(t, 50), 0)
	if err != nil {
		t.Fatal(err)
	}
	if got := res.Below.Volume(); math.Abs(got-500000) > 1e-6 {
		t.Errorf("below volume %g, want 500000", got)
	}
	if got := res.Above.Volume(); math.Abs(got-500000) > 1e-6 {
		t.Errorf("above volume %g, want 500000", got)
	}
	for name, half := range map[string]*mesh.Solid{"below": res.Below, "above": res.Above} {
		if defects := mesh.Validate(half); len(defects) != 0 {
			t.Errorf("%s half not watertight: %v", name, defects)
		}
	}
	if len(res.Boundary.Loops) != 1 {
		t.Fatalf("got %d boundary loops, want 1", len(res.Boundary.Loops))
	}
	lo, hi := res.Boundary.Footprint()
	if math.Abs(hi.X-lo.X-100) > 1e-6 || math.Abs(hi.Y-lo.Y-100) > 1e-6 {
		t.Errorf("footprint %v to %v, want a 100x100 square", lo, hi)
	}
	if len(res.Warnings) != 0 {
		t.Errorf("unexpected warnings: %v", res.Warnings)
	}
}

func TestSplitObliqueVolumeConservation(t *testing.T) {
	cube := mustCube(t, 10)
	pl, err := geom.NewPlane(r3.Vec{X: 5, Y: 5, Z: 5}, r3.Vec{X: 1, Y: 1, Z: 1})
	if err != nil {
		t.Fatal(err)
	}
	res, err := interlock.SplitByPlane(context.Background(), cube, pl, 0)
	if err != nil {
		t.Fatal(err)
	}
	total := res.Below.Volume() + res.Above.Volume()
	if math.Abs(total-1000) > 1e-6 {
		t.Errorf("half volumes sum to %g, want 1000", total)
	}
	for name, half := range map[string]*mesh.Solid{"below": res.Below, "above": res.Above} {
		if defects := mesh.Validate(half); len(defects) != 0 {
			t.Errorf("%s half not watertight: %v", name, defects)
		}
	}
}

func TestSplitPlaneMissesSolid(t *testing.T) {
	cube := mustCube(t, 10)
	_, err := interlock.SplitByPlane(context.Background(), cube, zPlane(t, 50), 0)
	var diag *interlock.Diagnostic
	if !errors.As(err, &diag) || diag.Kind != interlock.KindInvalidCut {
		t.Fatalf("got %v, want an invalid-cut diagnostic", err)
	}
}

func TestSplitTangentPlane(t *testing.T) {
	cube := mustCube(t, 10)
	if _, err := interlock.SplitByPlane(context.Background(), cube, zPlane(t, 0), 0); err == nil {
		t.Fatal("tangent plane produced a split")
	}
}

func TestSplitThroughTunnel(t *testing.T) {
	// A bar subtracted through the cube leaves a square tunnel crossing
	// the cut plane. The cut section is an annulus: the inner loop must
	// stay open in both caps and raises no multi-region warning.
	cube := mustCube(t, 10)
	bar := mustBox(t, r3.Vec{X: -1, Y: 4, Z: 4}, r3.Vec{X: 11, Y: 6, Z: 6})
	solid, err := interlock.Compose(context.Background(), cube, bar, interlock.OpDifference, 0)
	if err != nil {
		t.Fatal(err)
	}
	pl, err := geom.NewPlane(r3.Vec{X: 5}, r3.Vec{X: 1})
	if err != nil {
		t.Fatal(err)
	}
	res, err := interlock.SplitByPlane(context.Background(), solid, pl, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Boundary.Loops) != 2 {
		t.Errorf("got %d boundary loops, want 2", len(res.Boundary.Loops))
	}
	for name, half := range map[string]*mesh.Solid{"below": res.Below, "above": res.Above} {
		if defects := mesh.Validate(half); len(defects) != 0 {
			t.Errorf("%s half not watertight: %v", name, defects)
		}
	}
	if got := res.Below.Volume(); math.Abs(got-480) > 1e-6 {
		t.Errorf("below volume %g, want 480", got)
	}
	if got := res.Above.Volume(); math.Abs(got-480) > 1e-6 {
		t.Errorf("above volume %g, want 480", got)
	}
	if len(res.Warnings) != 0 {
		t.Errorf("unexpected warnings: %v", res.Warnings)
	}
}

func TestSplitUShape(t *testing.T) {
	// Two towers on a common base. A cut through the towers yields two
	// disjoint boundary loops and a two-shell upper half. The towers sink
	// one unit into the base so no skins coincide.
	base := mustBox(t, r3.Vec{}, r3.Vec{X: 30, Y: 10, Z: 10})
	left := mustBox(t, r3.Vec{Z: 9}, r3.Vec{X: 10, Y: 10, Z: 30})
	right := mustBox(t, r3.Vec{X: 20, Z: 9}, r3.Vec{X: 30, Y: 10, Z: 30})
	u, err := interlock.Compose(context.Background(), base, left, interlock.OpUnion, 0)
	if err != nil {
		t.Fatal(err)
	}
	u, err = interlock.Compose(context.Background(), u, right, interlock.OpUnion, 0)
	if err != nil {
		t.Fatal(err)
	}
	res, err := interlock.SplitByPlane(context.Background(), u, zPlane(t, 20), 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Boundary.Loops) != 2 {
		t.Errorf("got %d boundary loops, want 2", len(res.Boundary.Loops))
	}
	if len(res.Above.Shells()) != 2 {
		t.Errorf("upper half has %d shells, want 2", len(res.Above.Shells()))
	}
	warned := false
	for _, w := range res.Warnings {
		if w.Kind == interlock.KindMultipleSplitRegions && w.Warning() {
			warned = true
		}
	}
	if !warned {
		t.Errorf("no multiple-split-regions warning in %v", res.Warnings)
	}
}
