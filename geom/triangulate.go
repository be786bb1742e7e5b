package geom

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"
)

// Planar cap triangulation by ear clipping. The cut loops produced by the
// splitter may carry collinear vertices (a straight model edge crossed by
// several triangles); those vertices must survive into the cap so the cap
// boundary matches the side-wall triangles edge for edge. Ears are clipped
// only at strictly convex corners, which leaves collinear vertices in
// place until they become ear base endpoints.

// TriangulateLoop triangulates a closed planar loop into triangles whose
// winding faces the plane normal. The loop must be simple (non
// self-intersecting) and lie on the plane.
func TriangulateLoop(loop []r3.Vec, p Plane) ([]r3.Triangle, error) {
	if len(loop) < 3 {
		return nil, fmt.Errorf("%w: loop with %d vertices", ErrDegenerate, len(loop))
	}
	loop = append([]r3.Vec(nil), loop...)
	pts := make([]r2.Vec, len(loop))
	for i, v := range loop {
		pts[i] = p.Project(v)
	}
	if signedArea(pts) < 0 {
		reverse(pts)
		reverseR3(loop)
	}
	idx := make([]int, len(loop))
	for i := range idx {
		idx[i] = i
	}
	const areaTol = Tol
	var tris []r3.Triangle
	for len(idx) > 3 {
		clipped := false
		for k := 0; k < len(idx); k++ {
			ip, ic, in := idx[(k+len(idx)-1)%len(idx)], idx[k], idx[(k+1)%len(idx)]
			if cross2(pts[ip], pts[ic], pts[in]) <= areaTol {
				continue // reflex or collinear corner
			}
			if earBlocked(pts, idx, ip, ic, in) {
				continue
			}
			tris = append(tris, r3.Triangle{loop[ip], loop[ic], loop[in]})
			idx = append(idx[:k], idx[k+1:]...)
			clipped = true
			break
		}
		if !clipped {
			return nil, fmt.Errorf("%w: no clippable ear in %d-vertex loop (self-intersecting cut?)",
				ErrDegenerate, len(idx))
		}
	}
	last := r3.Triangle{loop[idx[0]], loop[idx[1]], loop[idx[2]]}
	if !Degenerate(last, Tol) {
		tris = append(tris, last)
	}
	return tris, nil
}

// cross2 is twice the signed area of triangle abc, positive when
// counterclockwise.
func cross2(a, b, c r2.Vec) float64 {
	return (b.X-a.X)*(c.Y-a.Y) - (b.Y-a.Y)*(c.X-a.X)
}

// earBlocked reports whether any remaining vertex lies inside or on the
// candidate ear. Boundary points count as blocking so an ear never eats a
// collinear vertex another wall triangle references.
func earBlocked(pts []r2.Vec, idx []int, ip, ic, in int) bool {
	a, b, c := pts[ip], pts[ic], pts[in]
	for _, j := range idx {
		if j == ip || j == ic || j == in {
			continue
		}
		q := pts[j]
		if cross2(a, b, q) >= -Tol && cross2(b, c, q) >= -Tol && cross2(c, a, q) >= -Tol {
			return true
		}
	}
	return false
}

// PointInLoop reports whether q lies inside the closed loop by even-odd
// ray crossing. Works on concave loops; a point on the boundary lands on
// either side depending on rounding.
func PointInLoop(q r2.Vec, loop []r2.Vec) bool {
	in := false
	for i, a := range loop {
		b := loop[(i+1)%len(loop)]
		if (a.Y > q.Y) == (b.Y > q.Y) {
			continue
		}
		if q.X < a.X+(q.Y-a.Y)/(b.Y-a.Y)*(b.X-a.X) {
			in = !in
		}
	}
	return in
}

// SegmentCrossesTriangle reports whether segment pq passes through the
// interior of triangle abc. Touching a vertex or running along an edge
// does not count. tol is in squared-length (area) units, as for cross2.
func SegmentCrossesTriangle(p, q, a, b, c r2.Vec, tol float64) bool {
	if cross2(a, b, c) < 0 {
		b, c = c, b
	}
	// Clip the segment parameter interval against each edge half-plane.
	t0, t1 := 0.0, 1.0
	for _, e := range [3][2]r2.Vec{{a, b}, {b, c}, {c, a}} {
		f0 := cross2(e[0], e[1], p)
		f1 := cross2(e[0], e[1], q)
		d := f1 - f0
		if math.Abs(d) <= tol {
			if f0 < -tol {
				return false // runs outside this edge
			}
			continue
		}
		if tc := -f0 / d; d > 0 {
			t0 = math.Max(t0, tc)
		} else {
			t1 = math.Min(t1, tc)
		}
	}
	if t1-t0 <= tol {
		return false
	}
	tm := (t0 + t1) / 2
	m := r2.Vec{X: p.X + tm*(q.X-p.X), Y: p.Y + tm*(q.Y-p.Y)}
	return cross2(a, b, m) > tol && cross2(b, c, m) > tol && cross2(c, a, m) > tol
}

func signedArea(pts []r2.Vec) float64 {
	area := 0.0
	for i, p := range pts {
		q := pts[(i+1)%len(pts)]
		area += p.X*q.Y - q.X*p.Y
	}
	return 0.5 * area
}

func reverse(s []r2.Vec) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}

func reverseR3(s []r3.Vec) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}
