package interlock

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/printpart/interlock/geom"
	"github.com/printpart/interlock/internal/d3"
	"github.com/printpart/interlock/mesh"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/spatial/r3"
)

// Op selects the boolean operation performed by Compose.
type Op uint8

const (
	OpUnion Op = iota
	OpDifference
)

func (o Op) String() string {
	switch o {
	case OpUnion:
		return "union"
	case OpDifference:
		return "difference"
	}
	return "unknown"
}

// Compose performs a boolean between two closed solids by fragmenting
// each surface along its intersections with the other, classifying the
// fragments against the other solid's signed field, and re-welding the
// kept fragments. A failed composition is retried once at a relaxed
// tolerance. The result is repaired and checked; an output that fails
// the manifold check raises a boolean-failure diagnostic instead of
// being returned.
func Compose(ctx context.Context, a, b *mesh.Solid, op Op, workers int) (*mesh.Solid, error) {
	if op != OpUnion && op != OpDifference {
		return nil, fmt.Errorf("compose: unknown op %d", op)
	}
	out, err := composeOnce(ctx, a, b, op, workers, geom.Tol)
	if err == nil {
		return out, nil
	}
	var diag *Diagnostic
	if ctx.Err() == nil && errors.As(err, &diag) && diag.Kind == KindBooleanFailure {
		if out, retryErr := composeOnce(ctx, a, b, op, workers, geom.Tol*geom.RelaxFactor); retryErr == nil {
			return out, nil
		}
	}
	return nil, err
}

func composeOnce(ctx context.Context, a, b *mesh.Solid, op Op, workers int, tol float64) (*mesh.Solid, error) {
	if !d3.Box(a.Bounds()).Intersects(d3.Box(b.Bounds())) {
		if op == OpDifference {
			return a, nil
		}
		return mesh.FromTriangles(append(a.Triangles(), b.Triangles()...), geom.WeldTol)
	}

	fa := mesh.NewField(a)
	fb := mesh.NewField(b)
	fragsA, err := fragmentAll(ctx, a, b, fb, workers, tol)
	if err != nil {
		return nil, fmt.Errorf("compose: first operand: %w", err)
	}
	fragsB, err := fragmentAll(ctx, b, a, fa, workers, tol)
	if err != nil {
		return nil, fmt.Errorf("compose: second operand: %w", err)
	}
	// Fragments riding exactly on the other surface are nudged along
	// their own normal before classification, outward for the first
	// operand and inward for the second, so exactly one copy of a
	// coincident same-facing skin survives a union.
	inB, err := classifyAll(ctx, fragsA, fb, 2*geom.WeldTol, workers)
	if err != nil {
		return nil, err
	}
	inA, err := classifyAll(ctx, fragsB, fa, -2*geom.WeldTol, workers)
	if err != nil {
		return nil, err
	}

	keep := make([]r3.Triangle, 0, len(fragsA)+len(fragsB))
	for i, t := range fragsA {
		if !inB[i] {
			keep = append(keep, t)
		}
	}
	for i, t := range fragsB {
		switch {
		case op == OpUnion && !inA[i]:
			keep = append(keep, t)
		case op == OpDifference && inA[i]:
			keep = append(keep, r3.Triangle{t[0], t[2], t[1]})
		}
	}
	if len(keep) == 0 {
		return nil, &Diagnostic{
			Kind:   KindBooleanFailure,
			Region: a.Bounds(),
			Detail: fmt.Sprintf("%v left no surface", op),
		}
	}

	// The operands subdivide the shared intersection curve at different
	// points. Conforming every fragment edge to the full vertex soup makes
	// both sides of the seam reference identical vertices before welding.
	keep = mesh.ConformEdges(keep, geom.WeldTol)
	out, err := mesh.FromTriangles(keep, geom.WeldTol)
	if err != nil {
		return nil, &Diagnostic{Kind: KindBooleanFailure, Region: a.Bounds(), Detail: err.Error()}
	}
	out = mesh.Repair(out, geom.WeldTol)
	if defects := mesh.ValidateTopology(out); len(defects) > 0 {
		region := d3.Box(defects[0].Region)
		for _, d := range defects[1:] {
			region = region.Extend(d3.Box(d.Region))
		}
		return nil, &Diagnostic{
			Kind:   KindBooleanFailure,
			Region: r3.Box(region),
			Detail: fmt.Sprintf("%d defects after %v, first: %v", len(defects), op, defects[0]),
		}
	}
	return out, nil
}

// fragmentAll cuts every face of s along the faces of other that cross
// it, leaving a soup of fragments each fully inside or outside other.
func fragmentAll(ctx context.Context, s, other *mesh.Solid, of *mesh.Field, workers int, tol float64) ([]r3.Triangle, error) {
	n := s.NumFaces()
	per := make([][]r3.Triangle, n)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(clampWorkers(workers))
	const batch = 256
	for lo := 0; lo < n; lo += batch {
		lo, hi := lo, min(lo+batch, n)
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			for i := lo; i < hi; i++ {
				t := s.FaceTriangle(i)
				// Either face's surface reaches up to two thirds of its
				// diameter from its centroid, the longest median bound.
				rad := 2*(triDiameter(t)+of.MaxFaceDiameter())/3 + tol
				frags, err := splitByFaces(t, other, of.Nearby(geom.Centroid(t), rad), tol)
				if err != nil {
					return fmt.Errorf("face %d: %w", i, err)
				}
				per[i] = frags
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	var out []r3.Triangle
	for _, frags := range per {
		out = append(out, frags...)
	}
	return out, nil
}

// splitByFaces recursively cuts t by the planes of the candidate faces
// that properly cross it. A child fragment resumes at its parent's
// candidate cursor: a fragment cannot cross a candidate its parent
// already cleared, so the recursion terminates.
func splitByFaces(t r3.Triangle, other *mesh.Solid, cand []int, tol float64) ([]r3.Triangle, error) {
	type item struct {
		t    r3.Triangle
		next int
	}
	const maxFrags = 4096
	stack := []item{{t: t}}
	var out []r3.Triangle
	for len(stack) > 0 {
		it := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		cut := false
		for k := it.next; k < len(cand); k++ {
			ct := other.FaceTriangle(cand[k])
			if _, hit := geom.TriTriIntersect(it.t, ct, tol); !hit {
				continue
			}
			pl, err := geom.NewPlane(ct[0], geom.Normal(ct))
			if err != nil {
				continue
			}
			sp, err := geom.SplitTriangle(it.t, pl, tol)
			if err != nil || sp.Coplanar || len(sp.Below) == 0 || len(sp.Above) == 0 {
				// Touching without straddling.
				continue
			}
			for _, f := range sp.Below {
				if !geom.Degenerate(f, tol) {
					stack = append(stack, item{t: f, next: k + 1})
				}
			}
			for _, f := range sp.Above {
				if !geom.Degenerate(f, tol) {
					stack = append(stack, item{t: f, next: k + 1})
				}
			}
			cut = true
			break
		}
		if !cut {
			out = append(out, it.t)
		}
		if len(out)+len(stack) > maxFrags {
			return nil, errors.New("fragment count runaway")
		}
	}
	return out, nil
}

// classifyAll reports for each fragment whether its centroid lies inside
// the field. probe is the tie-break offset applied along the fragment
// normal when the centroid sits on the surface.
func classifyAll(ctx context.Context, frags []r3.Triangle, f *mesh.Field, probe float64, workers int) ([]bool, error) {
	inside := make([]bool, len(frags))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(clampWorkers(workers))
	const batch = 512
	for lo := 0; lo < len(frags); lo += batch {
		lo, hi := lo, min(lo+batch, len(frags))
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			for i := lo; i < hi; i++ {
				c := geom.Centroid(frags[i])
				d := f.Evaluate(c)
				if math.Abs(d) <= geom.WeldTol {
					d = f.Evaluate(r3.Add(c, r3.Scale(probe, geom.Normal(frags[i]))))
				}
				inside[i] = d < 0
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return inside, nil
}

func triDiameter(t r3.Triangle) float64 {
	d := r3.Norm(r3.Sub(t[1], t[0]))
	d = math.Max(d, r3.Norm(r3.Sub(t[2], t[1])))
	return math.Max(d, r3.Norm(r3.Sub(t[0], t[2])))
}
