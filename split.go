package interlock

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"github.com/printpart/interlock/geom"
	"github.com/printpart/interlock/internal/d3"
	"github.com/printpart/interlock/mesh"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"
)

// CutBoundary is the closed trace of a planar cut: one or more loops of
// seam vertices, counterclockwise when viewed down the plane normal.
type CutBoundary struct {
	Plane geom.Plane
	Loops [][]r3.Vec
}

// Footprint returns the bounding rectangle of the boundary loops in the
// plane's Basis coordinates.
func (b CutBoundary) Footprint() (lo, hi r2.Vec) {
	first := true
	for _, loop := range b.Loops {
		for _, v := range loop {
			q := b.Plane.Project(v)
			if first {
				lo, hi = q, q
				first = false
				continue
			}
			lo.X = min(lo.X, q.X)
			lo.Y = min(lo.Y, q.Y)
			hi.X = max(hi.X, q.X)
			hi.Y = max(hi.Y, q.Y)
		}
	}
	return lo, hi
}

func (b CutBoundary) region() r3.Box {
	var pts []r3.Vec
	for _, loop := range b.Loops {
		pts = append(pts, loop...)
	}
	if len(pts) == 0 {
		return r3.Box{}
	}
	return r3.Box(d3.BoxFromPoints(pts))
}

// SplitResult holds the two closed halves of a cut. Below is the half on
// the negative side of the plane normal.
type SplitResult struct {
	Below, Above *mesh.Solid
	Boundary     CutBoundary
	Warnings     []Diagnostic
}

// SplitByPlane cuts s by pl into two closed solids, capping both along
// the cut. A degenerate cut is retried once at a relaxed tolerance before
// an invalid-cut diagnostic is returned. workers bounds the classification
// parallelism; zero or less uses GOMAXPROCS.
func SplitByPlane(ctx context.Context, s *mesh.Solid, pl geom.Plane, workers int) (*SplitResult, error) {
	res, err := splitOnce(ctx, s, pl, geom.Tol, workers)
	if err == nil {
		return res, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	res, err = splitOnce(ctx, s, pl, geom.Tol*geom.RelaxFactor, workers)
	if err == nil {
		return res, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return nil, &Diagnostic{Kind: KindInvalidCut, Region: s.Bounds(), Detail: err.Error()}
}

func splitOnce(ctx context.Context, s *mesh.Solid, pl geom.Plane, tol float64, workers int) (*SplitResult, error) {
	n := s.NumFaces()
	splits := make([]geom.TriSplit, n)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(clampWorkers(workers))
	const batch = 512
	for lo := 0; lo < n; lo += batch {
		lo, hi := lo, min(lo+batch, n)
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			for i := lo; i < hi; i++ {
				sp, err := geom.SplitTriangle(s.FaceTriangle(i), pl, tol)
				if err != nil {
					return fmt.Errorf("face %d: %w", i, err)
				}
				splits[i] = sp
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var below, above []r3.Triangle
	var segs []geom.Segment
	for i := range splits {
		sp := &splits[i]
		if sp.Coplanar {
			// A face lying on the plane is the skin of material behind
			// its outward normal.
			t := s.FaceTriangle(i)
			if r3.Dot(geom.Normal(t), pl.Normal) > 0 {
				below = append(below, t)
			} else {
				above = append(above, t)
			}
			continue
		}
		below = append(below, sp.Below...)
		above = append(above, sp.Above...)
		if sp.HasSeg {
			segs = append(segs, sp.Seg)
		}
	}
	if len(below) == 0 || len(above) == 0 {
		return nil, fmt.Errorf("plane through %v does not cut the solid", pl.Point)
	}

	loops, err := geom.AssembleLoops(segs, geom.WeldTol)
	if err != nil {
		return nil, err
	}
	if len(loops) == 0 {
		return nil, fmt.Errorf("cut produced no closed boundary")
	}
	caps, regions, err := capLoops(loops, pl)
	if err != nil {
		return nil, err
	}
	// Caps wind toward +normal; that is outward for the below half.
	below = append(below, caps...)
	for _, c := range caps {
		above = append(above, r3.Triangle{c[0], c[2], c[1]})
	}
	if len(loops) > 1 {
		// Nested cuts leave cap fragments and side walls meeting the same
		// boundary line with different vertices.
		below = mesh.ConformEdges(below, geom.WeldTol)
		above = mesh.ConformEdges(above, geom.WeldTol)
	}

	solBelow, err := mesh.FromTriangles(below, geom.WeldTol)
	if err != nil {
		return nil, fmt.Errorf("below half: %w", err)
	}
	solAbove, err := mesh.FromTriangles(above, geom.WeldTol)
	if err != nil {
		return nil, fmt.Errorf("above half: %w", err)
	}
	for name, half := range map[string]*mesh.Solid{"below": solBelow, "above": solAbove} {
		if defects := mesh.ValidateTopology(half); len(defects) > 0 {
			return nil, fmt.Errorf("%s half: %d defects, first: %v", name, len(defects), defects[0])
		}
	}

	res := &SplitResult{
		Below:    solBelow,
		Above:    solAbove,
		Boundary: CutBoundary{Plane: pl, Loops: loops},
	}
	if n := max(regions, len(solBelow.Shells()), len(solAbove.Shells())); n > 1 {
		res.Warnings = append(res.Warnings, Diagnostic{
			Kind:   KindMultipleSplitRegions,
			Region: res.Boundary.region(),
			Detail: fmt.Sprintf("cut produced %d regions, halves have up to %d shells", regions, n),
		})
	}
	return res, nil
}

// capLoops triangulates the material area of a planar cut. A loop nested
// inside an odd number of other loops bounds a hole and is left open; a
// loop at even nesting depth bounds material and is capped with its
// direct holes cut out, so a tunnel across the plane stays a tunnel.
// Caps wind toward the plane normal. regions counts the material loops.
func capLoops(loops [][]r3.Vec, pl geom.Plane) (caps []r3.Triangle, regions int, err error) {
	proj := make([][]r2.Vec, len(loops))
	for i, loop := range loops {
		proj[i] = make([]r2.Vec, len(loop))
		for j, v := range loop {
			proj[i][j] = pl.Project(v)
		}
	}
	depth := make([]int, len(loops))
	for i := range loops {
		for j := range loops {
			if i != j && geom.PointInLoop(proj[i][0], proj[j]) {
				depth[i]++
			}
		}
	}
	for i, loop := range loops {
		if depth[i]%2 == 1 {
			continue
		}
		regions++
		disc, err := geom.TriangulateLoop(loop, pl)
		if err != nil {
			return nil, 0, err
		}
		var holes [][]r3.Vec
		var holesProj [][]r2.Vec
		for j := range loops {
			if depth[j] == depth[i]+1 && geom.PointInLoop(proj[j][0], proj[i]) {
				holes = append(holes, loops[j])
				holesProj = append(holesProj, proj[j])
			}
		}
		if len(holes) == 0 {
			caps = append(caps, disc...)
			continue
		}
		kept, err := cutCapByHoles(disc, holes, holesProj, pl)
		if err != nil {
			return nil, 0, err
		}
		caps = append(caps, kept...)
	}
	return caps, regions, nil
}

// cutCapByHoles dices disc triangles along the hole boundary edges and
// drops the pieces landing inside a hole. A piece resumes at its parent's
// edge cursor: it cannot cross an edge segment its parent already
// cleared, so the recursion terminates.
func cutCapByHoles(disc []r3.Triangle, holes [][]r3.Vec, proj [][]r2.Vec, pl geom.Plane) ([]r3.Triangle, error) {
	type holeEdge struct {
		cut  geom.Plane
		p, q r2.Vec
	}
	var edges []holeEdge
	for hi, hole := range holes {
		for k := range hole {
			a, b := hole[k], hole[(k+1)%len(hole)]
			cut, err := geom.NewPlane(a, r3.Cross(pl.Normal, r3.Sub(b, a)))
			if err != nil {
				continue // zero-length loop edge
			}
			edges = append(edges, holeEdge{cut: cut, p: proj[hi][k], q: proj[hi][(k+1)%len(hole)]})
		}
	}
	type item struct {
		t    r3.Triangle
		next int
	}
	const maxFrags = 4096
	stack := make([]item, 0, len(disc))
	for _, t := range disc {
		stack = append(stack, item{t: t})
	}
	var out []r3.Triangle
	for len(stack) > 0 {
		it := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		a2, b2, c2 := pl.Project(it.t[0]), pl.Project(it.t[1]), pl.Project(it.t[2])
		cut := false
		for k := it.next; k < len(edges); k++ {
			e := edges[k]
			if !geom.SegmentCrossesTriangle(e.p, e.q, a2, b2, c2, geom.Tol) {
				continue
			}
			sp, err := geom.SplitTriangle(it.t, e.cut, geom.Tol)
			if err != nil || sp.Coplanar || len(sp.Below) == 0 || len(sp.Above) == 0 {
				continue
			}
			for _, f := range append(sp.Below, sp.Above...) {
				if !geom.Degenerate(f, geom.Tol) {
					stack = append(stack, item{t: f, next: k + 1})
				}
			}
			cut = true
			break
		}
		if cut {
			if len(out)+len(stack) > maxFrags {
				return nil, errors.New("cap fragment count runaway")
			}
			continue
		}
		c := pl.Project(geom.Centroid(it.t))
		inHole := false
		for _, h := range proj {
			if geom.PointInLoop(c, h) {
				inHole = true
				break
			}
		}
		if !inHole {
			out = append(out, it.t)
		}
	}
	return out, nil
}

func clampWorkers(n int) int {
	if n <= 0 {
		return runtime.GOMAXPROCS(0)
	}
	return n
}
