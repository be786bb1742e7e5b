// Package geom implements the primitive geometric operations the splitting
// and boolean stages are built on: point-plane classification, triangle
// splitting, triangle-triangle intersection and planar cap triangulation.
//
// All numeric tolerances used by the pipeline live here so that every stage
// classifies geometry consistently. Stages never hardcode their own epsilon.
package geom

import (
	"errors"
	"math"

	"github.com/printpart/interlock/internal/d3"
	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"
)

const (
	// Tol is the absolute tolerance for point-plane classification and
	// coincidence tests, in model units (millimetres for STL work).
	Tol = 1e-6
	// RelaxFactor scales Tol for the single retry a calling stage is
	// allowed after a degeneracy is reported.
	RelaxFactor = 100
	// WeldTol is the endpoint quantization used when chaining cut
	// segments into loops and welding seam vertices.
	WeldTol = 1e-5
)

// ErrDegenerate reports input geometry below tolerance: zero-length edges,
// zero-area triangles, or a plane with a vanishing normal.
var ErrDegenerate = errors.New("degenerate geometry below tolerance")

// ErrOpenLoop reports a cut boundary that cannot be chained into closed
// loops, usually due to a numerically inconsistent input surface.
var ErrOpenLoop = errors.New("cut loop cannot be closed")

// Side is the result of classifying a point against a plane.
type Side int8

const (
	SideBelow Side = -1
	SideOn    Side = 0
	SideAbove Side = 1
)

// Plane is an oriented plane given by a point on it and a unit normal.
// Above is the half-space the normal points into.
type Plane struct {
	Point  r3.Vec
	Normal r3.Vec
}

// NewPlane builds a plane through point with the given normal direction.
// The normal need not be unit length. Returns ErrDegenerate for a zero
// normal.
func NewPlane(point, normal r3.Vec) (Plane, error) {
	n := r3.Norm(normal)
	if n <= Tol {
		return Plane{}, ErrDegenerate
	}
	return Plane{Point: point, Normal: r3.Scale(1/n, normal)}, nil
}

// SignedDist returns the signed distance from v to the plane,
// positive above (along the normal).
func (p Plane) SignedDist(v r3.Vec) float64 {
	return r3.Dot(r3.Sub(v, p.Point), p.Normal)
}

// Classify places v above, below or on the plane using tolerance tol.
func (p Plane) Classify(v r3.Vec, tol float64) Side {
	d := p.SignedDist(v)
	switch {
	case d > tol:
		return SideAbove
	case d < -tol:
		return SideBelow
	}
	return SideOn
}

// Basis returns a right-handed orthonormal in-plane basis (u, v) such
// that u × v equals the plane normal. The basis is deterministic for a
// given normal so the splitter and the pattern generator agree on plane
// coordinates.
func (p Plane) Basis() (u, v r3.Vec) {
	// Seed with the coordinate axis least aligned with the normal.
	abs := d3.AbsElem(p.Normal)
	seed := r3.Vec{X: 1}
	if abs.Y <= abs.X && abs.Y <= abs.Z {
		seed = r3.Vec{Y: 1}
	} else if abs.Z <= abs.X && abs.Z <= abs.Y {
		seed = r3.Vec{Z: 1}
	}
	u = r3.Unit(r3.Cross(seed, p.Normal))
	v = r3.Cross(p.Normal, u)
	return u, v
}

// Project returns the in-plane coordinates of v relative to the plane
// point, in the Basis frame.
func (p Plane) Project(v r3.Vec) r2.Vec {
	u, w := p.Basis()
	d := r3.Sub(v, p.Point)
	return r2.Vec{X: r3.Dot(d, u), Y: r3.Dot(d, w)}
}

// Unproject maps in-plane coordinates back to a 3D point on the plane.
func (p Plane) Unproject(q r2.Vec) r3.Vec {
	u, w := p.Basis()
	return r3.Add(p.Point, r3.Add(r3.Scale(q.X, u), r3.Scale(q.Y, w)))
}

// Segment is a directed 3D line segment.
type Segment struct {
	A, B r3.Vec
}

// Normal returns the unit normal of t following its winding, or the zero
// vector for a degenerate triangle.
func Normal(t r3.Triangle) r3.Vec {
	c := r3.Cross(r3.Sub(t[1], t[0]), r3.Sub(t[2], t[0]))
	n := r3.Norm(c)
	if n == 0 {
		return r3.Vec{}
	}
	return r3.Scale(1/n, c)
}

// Area returns the area of t.
func Area(t r3.Triangle) float64 {
	return 0.5 * r3.Norm(r3.Cross(r3.Sub(t[1], t[0]), r3.Sub(t[2], t[0])))
}

// Centroid returns the centroid of t.
func Centroid(t r3.Triangle) r3.Vec {
	return r3.Scale(1./3., r3.Add(r3.Add(t[0], t[1]), t[2]))
}

// Degenerate reports whether t has an area below tol².
func Degenerate(t r3.Triangle, tol float64) bool {
	return Area(t) <= tol*tol
}

// TriSplit is the result of cutting a triangle with a plane. Below and
// Above together cover the input triangle with original winding. Seg is
// the intersection segment on the plane when HasSeg is set, directed
// along triangleNormal × planeNormal.
type TriSplit struct {
	Below    []r3.Triangle
	Above    []r3.Triangle
	Seg      Segment
	HasSeg   bool
	Coplanar bool
}

// SplitTriangle cuts t by the plane. A triangle entirely on one side
// (including vertices on the plane) is passed through whole. Coplanar
// triangles are flagged and assigned to neither side.
func SplitTriangle(t r3.Triangle, p Plane, tol float64) (TriSplit, error) {
	if Degenerate(t, tol) {
		return TriSplit{}, ErrDegenerate
	}
	var s [3]Side
	var nAbove, nBelow int
	for i := range t {
		s[i] = p.Classify(t[i], tol)
		switch s[i] {
		case SideAbove:
			nAbove++
		case SideBelow:
			nBelow++
		}
	}
	var out TriSplit
	switch {
	case nAbove == 0 && nBelow == 0:
		out.Coplanar = true
		return out, nil
	case nBelow == 0:
		out.Above = []r3.Triangle{t}
		out.Seg, out.HasSeg = onEdge(t, s)
	case nAbove == 0:
		out.Below = []r3.Triangle{t}
		out.Seg, out.HasSeg = onEdge(t, s)
	default:
		if err := splitStraddler(&out, t, s, p); err != nil {
			return TriSplit{}, err
		}
	}
	if out.HasSeg {
		out.Seg = orientSeg(out.Seg, Normal(t), p.Normal)
	}
	return out, nil
}

// onEdge detects a full triangle edge lying on the plane.
func onEdge(t r3.Triangle, s [3]Side) (Segment, bool) {
	for i := 0; i < 3; i++ {
		j := (i + 1) % 3
		if s[i] == SideOn && s[j] == SideOn {
			return Segment{A: t[i], B: t[j]}, true
		}
	}
	return Segment{}, false
}

func splitStraddler(out *TriSplit, t r3.Triangle, s [3]Side, p Plane) error {
	// One vertex on the plane, other two on strictly opposite sides.
	for k := 0; k < 3; k++ {
		i, j := (k+1)%3, (k+2)%3
		if s[k] == SideOn && s[i] != SideOn && s[j] != SideOn {
			x, err := edgeCross(t[i], t[j], p)
			if err != nil {
				return err
			}
			put(out, r3.Triangle{t[k], t[i], x}, s[i])
			put(out, r3.Triangle{t[k], x, t[j]}, s[j])
			out.Seg = Segment{A: t[k], B: x}
			out.HasSeg = true
			return nil
		}
	}
	// One vertex alone on its side of the plane.
	for a := 0; a < 3; a++ {
		b, c := (a+1)%3, (a+2)%3
		if s[a] != SideOn && s[b] == -s[a] && s[c] == -s[a] {
			xab, err := edgeCross(t[a], t[b], p)
			if err != nil {
				return err
			}
			xac, err := edgeCross(t[a], t[c], p)
			if err != nil {
				return err
			}
			put(out, r3.Triangle{t[a], xab, xac}, s[a])
			put(out, r3.Triangle{xab, t[b], t[c]}, s[b])
			put(out, r3.Triangle{xab, t[c], xac}, s[b])
			out.Seg = Segment{A: xab, B: xac}
			out.HasSeg = true
			return nil
		}
	}
	return ErrDegenerate
}

func put(out *TriSplit, t r3.Triangle, side Side) {
	if side == SideAbove {
		out.Above = append(out.Above, t)
	} else {
		out.Below = append(out.Below, t)
	}
}

// edgeCross returns the point where segment u-v crosses the plane.
// u and v must classify to strictly opposite sides.
func edgeCross(u, v r3.Vec, p Plane) (r3.Vec, error) {
	du := p.SignedDist(u)
	dv := p.SignedDist(v)
	denom := du - dv
	if math.Abs(denom) <= Tol*Tol {
		return r3.Vec{}, ErrDegenerate
	}
	f := du / denom
	return r3.Add(u, r3.Scale(f, r3.Sub(v, u))), nil
}

func orientSeg(seg Segment, triN, planeN r3.Vec) Segment {
	dir := r3.Cross(triN, planeN)
	if r3.Dot(dir, r3.Sub(seg.B, seg.A)) < 0 {
		seg.A, seg.B = seg.B, seg.A
	}
	return seg
}

// TriTriIntersect reports whether triangles a and b properly cross and
// returns their intersection segment. Coplanar or merely touching pairs
// report no intersection; near-coincident faces are resolved by the
// caller's classification rules instead.
func TriTriIntersect(a, b r3.Triangle, tol float64) (Segment, bool) {
	pa, err := NewPlane(a[0], r3.Cross(r3.Sub(a[1], a[0]), r3.Sub(a[2], a[0])))
	if err != nil {
		return Segment{}, false
	}
	pb, err := NewPlane(b[0], r3.Cross(r3.Sub(b[1], b[0]), r3.Sub(b[2], b[0])))
	if err != nil {
		return Segment{}, false
	}
	if sameStrictSide(a, pb, tol) || sameStrictSide(b, pa, tol) {
		return Segment{}, false
	}
	dir := r3.Cross(pa.Normal, pb.Normal)
	if r3.Norm(dir) <= tol {
		// Parallel or coplanar planes.
		return Segment{}, false
	}
	dir = r3.Unit(dir)
	a1, a2, ok := planeCut(a, pb, tol)
	if !ok {
		return Segment{}, false
	}
	b1, b2, ok := planeCut(b, pa, tol)
	if !ok {
		return Segment{}, false
	}
	aLo, aHi := interval(a1, a2, dir)
	bLo, bHi := interval(b1, b2, dir)
	lo := math.Max(aLo.t, bLo.t)
	hi := math.Min(aHi.t, bHi.t)
	if hi-lo <= tol {
		return Segment{}, false
	}
	return Segment{A: pointAt(aLo, aHi, lo), B: pointAt(aLo, aHi, hi)}, true
}

func sameStrictSide(t r3.Triangle, p Plane, tol float64) bool {
	d0 := p.SignedDist(t[0])
	d1 := p.SignedDist(t[1])
	d2 := p.SignedDist(t[2])
	return (d0 > tol && d1 > tol && d2 > tol) ||
		(d0 < -tol && d1 < -tol && d2 < -tol)
}

// planeCut returns the two points where triangle t meets the plane.
func planeCut(t r3.Triangle, p Plane, tol float64) (x1, x2 r3.Vec, ok bool) {
	var pts []r3.Vec
	add := func(v r3.Vec) {
		for _, q := range pts {
			if d3.EqualWithin(q, v, tol) {
				return
			}
		}
		pts = append(pts, v)
	}
	for i := 0; i < 3; i++ {
		u, v := t[i], t[(i+1)%3]
		du, dv := p.SignedDist(u), p.SignedDist(v)
		if math.Abs(du) <= tol {
			add(u)
		}
		if (du > tol && dv < -tol) || (du < -tol && dv > tol) {
			x, err := edgeCross(u, v, p)
			if err == nil {
				add(x)
			}
		}
	}
	if len(pts) != 2 {
		return r3.Vec{}, r3.Vec{}, false
	}
	return pts[0], pts[1], true
}

type linePoint struct {
	t float64
	v r3.Vec
}

func interval(x1, x2, dir r3.Vec) (lo, hi linePoint) {
	t1 := r3.Dot(x1, dir)
	t2 := r3.Dot(x2, dir)
	if t1 <= t2 {
		return linePoint{t1, x1}, linePoint{t2, x2}
	}
	return linePoint{t2, x2}, linePoint{t1, x1}
}

func pointAt(lo, hi linePoint, t float64) r3.Vec {
	span := hi.t - lo.t
	if span == 0 {
		return lo.v
	}
	f := (t - lo.t) / span
	return r3.Add(lo.v, r3.Scale(f, r3.Sub(hi.v, lo.v)))
}
