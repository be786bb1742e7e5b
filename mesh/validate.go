package mesh

import (
	"fmt"
	"math"

	"github.com/printpart/interlock/geom"
	"github.com/printpart/interlock/internal/d3"
	"gonum.org/v1/gonum/spatial/r3"
)

// DefectKind enumerates the ways a Solid can fail the closed-2-manifold
// invariant.
type DefectKind uint8

const (
	// DefectOpenEdge is an edge referenced by exactly one face.
	DefectOpenEdge DefectKind = iota
	// DefectNonManifoldEdge is an edge referenced by more than two faces.
	DefectNonManifoldEdge
	// DefectInconsistentWinding is an edge traversed in the same
	// direction by both of its faces.
	DefectInconsistentWinding
	// DefectDegenerateFace is a face with area below tolerance.
	DefectDegenerateFace
	// DefectSelfIntersection is a pair of non-adjacent faces that cross.
	DefectSelfIntersection
)

func (k DefectKind) String() string {
	switch k {
	case DefectOpenEdge:
		return "open edge"
	case DefectNonManifoldEdge:
		return "non-manifold edge"
	case DefectInconsistentWinding:
		return "inconsistent winding"
	case DefectDegenerateFace:
		return "degenerate face"
	case DefectSelfIntersection:
		return "self-intersection"
	}
	return "unknown defect"
}

// Defect locates a single validation failure on a Solid.
type Defect struct {
	Kind DefectKind
	// Faces are the indices of the offending faces.
	Faces []int
	// Edge holds the vertex indices of the offending edge for the edge
	// defect kinds.
	Edge [2]int
	// Region bounds the offending geometry for caller-side inspection.
	Region r3.Box
}

func (d Defect) String() string {
	switch d.Kind {
	case DefectOpenEdge, DefectNonManifoldEdge, DefectInconsistentWinding:
		return fmt.Sprintf("%v between vertices %d and %d (faces %v)", d.Kind, d.Edge[0], d.Edge[1], d.Faces)
	}
	return fmt.Sprintf("%v at faces %v", d.Kind, d.Faces)
}

type edgeUse struct {
	faces   []int
	forward int // times traversed low->high vertex index
	reverse int
}

func edgeMap(s *Solid) map[[2]int]*edgeUse {
	edges := make(map[[2]int]*edgeUse, 3*len(s.tri)/2)
	for fi, f := range s.tri {
		for j := 0; j < 3; j++ {
			a, b := f[j], f[(j+1)%3]
			key := [2]int{a, b}
			fwd := true
			if a > b {
				key = [2]int{b, a}
				fwd = false
			}
			use := edges[key]
			if use == nil {
				use = &edgeUse{}
				edges[key] = use
			}
			use.faces = append(use.faces, fi)
			if fwd {
				use.forward++
			} else {
				use.reverse++
			}
		}
	}
	return edges
}

func (s *Solid) faceRegion(faces ...int) r3.Box {
	var pts []r3.Vec
	for _, fi := range faces {
		for _, vi := range s.tri[fi] {
			pts = append(pts, s.vtx[vi])
		}
	}
	return r3.Box(d3.BoxFromPoints(pts))
}

// ValidateTopology checks the closed-2-manifold invariant: every edge
// shared by exactly two faces with opposite traversal direction, and no
// degenerate faces. It does not test for self-intersections; use Validate
// for the full check.
func ValidateTopology(s *Solid) []Defect {
	var defects []Defect
	for fi := range s.tri {
		if geom.Degenerate(s.FaceTriangle(fi), geom.Tol) {
			defects = append(defects, Defect{
				Kind:   DefectDegenerateFace,
				Faces:  []int{fi},
				Region: s.faceRegion(fi),
			})
		}
	}
	for key, use := range edgeMap(s) {
		d := Defect{Edge: key, Faces: use.faces, Region: s.faceRegion(use.faces...)}
		switch {
		case len(use.faces) == 1:
			d.Kind = DefectOpenEdge
		case len(use.faces) > 2:
			d.Kind = DefectNonManifoldEdge
		case use.forward != 1 || use.reverse != 1:
			d.Kind = DefectInconsistentWinding
		default:
			continue
		}
		defects = append(defects, d)
	}
	return defects
}

// Validate runs the topology checks plus a self-intersection sweep over
// non-adjacent face pairs. Candidate pairs come from the same kd-tree the
// signed field uses.
func Validate(s *Solid) []Defect {
	defects := ValidateTopology(s)
	f := NewField(s)
	maxDiam := f.MaxFaceDiameter()
	for i := 0; i < s.NumFaces(); i++ {
		ti := s.FaceTriangle(i)
		// A face's surface reaches up to two thirds of its diameter from
		// its centroid (the longest median bound), on both sides.
		r := 2*(faceDiameter(ti)+maxDiam)/3 + geom.Tol
		for _, j := range f.Nearby(geom.Centroid(ti), r) {
			if j <= i || facesShareVertex(s.tri[i], s.tri[j]) {
				continue
			}
			if _, hit := geom.TriTriIntersect(ti, s.FaceTriangle(j), geom.Tol); hit {
				defects = append(defects, Defect{
					Kind:   DefectSelfIntersection,
					Faces:  []int{i, j},
					Region: s.faceRegion(i, j),
				})
			}
		}
	}
	return defects
}

func facesShareVertex(a, b [3]int) bool {
	for _, va := range a {
		for _, vb := range b {
			if va == vb {
				return true
			}
		}
	}
	return false
}

func faceDiameter(t r3.Triangle) float64 {
	d := r3.Norm(r3.Sub(t[1], t[0]))
	d = math.Max(d, r3.Norm(r3.Sub(t[2], t[1])))
	return math.Max(d, r3.Norm(r3.Sub(t[0], t[2])))
}

// Repair rebuilds a Solid dropping degenerate faces, re-welding vertices
// and stitching T-junction seams (an open edge whose interior contains
// vertices of neighboring open edges is subdivided to match them). Repair
// never invents geometry; defects it cannot fix remain for Validate to
// report. weldTol of zero infers a tolerance as in FromTriangles.
func Repair(s *Solid, weldTol float64) *Solid {
	sol, err := FromTriangles(s.Triangles(), weldTol)
	if err != nil {
		return s
	}
	for iter := 0; iter < 3; iter++ {
		stitched, changed := stitchOpenEdges(sol)
		if !changed {
			break
		}
		next, err := FromTriangles(stitched, weldTol)
		if err != nil {
			break
		}
		sol = next
	}
	return sol
}

// stitchOpenEdges subdivides open edges at vertices of other open edges
// lying on their interior. Faces with no open edge pass through.
func stitchOpenEdges(s *Solid) ([]r3.Triangle, bool) {
	open := make(map[[2]int]bool)
	candidateIdx := make(map[int]bool)
	for key, use := range edgeMap(s) {
		if len(use.faces) == 1 {
			open[key] = true
			candidateIdx[key[0]] = true
			candidateIdx[key[1]] = true
		}
	}
	if len(open) == 0 {
		return nil, false
	}
	candidates := make([]r3.Vec, 0, len(candidateIdx))
	for vi := range candidateIdx {
		candidates = append(candidates, s.vtx[vi])
	}
	out := make([]r3.Triangle, 0, len(s.tri))
	changed := false
	for _, f := range s.tri {
		tri := s.faceTri(f)
		loop := make([]r3.Vec, 0, 8)
		grown := false
		for j := 0; j < 3; j++ {
			a, b := f[j], f[(j+1)%3]
			loop = append(loop, s.vtx[a])
			key := [2]int{a, b}
			if a > b {
				key = [2]int{b, a}
			}
			if !open[key] {
				continue
			}
			ins := pointsOnSegment(s.vtx[a], s.vtx[b], candidates, geom.WeldTol)
			if len(ins) > 0 {
				loop = append(loop, ins...)
				grown = true
			}
		}
		if !grown {
			out = append(out, tri)
			continue
		}
		plane, err := geom.NewPlane(tri[0], geom.Normal(tri))
		if err != nil {
			out = append(out, tri)
			continue
		}
		capTris, err := geom.TriangulateLoop(loop, plane)
		if err != nil {
			out = append(out, tri)
			continue
		}
		out = append(out, capTris...)
		changed = true
	}
	return out, changed
}

// ConformEdges subdivides triangle edges at soup vertices lying on their
// interior. Stages that merge two independently cut surfaces run this
// before welding: both sides of a shared seam end up referencing the same
// vertices, so the weld closes the seam instead of leaving T-junctions.
// No new vertex positions are invented.
func ConformEdges(tris []r3.Triangle, tol float64) []r3.Triangle {
	if tol <= 0 {
		tol = geom.WeldTol
	}
	verts := dedupVertices(tris, tol)
	out := make([]r3.Triangle, 0, len(tris))
	var near []r3.Vec
	for _, t := range tris {
		reach := d3.BoxFromPoints(t[:]).Enlarge(d3.Elem(2 * tol))
		near = near[:0]
		for _, v := range verts {
			if reach.Contains(v) {
				near = append(near, v)
			}
		}
		loop := make([]r3.Vec, 0, 8)
		grown := false
		for j := 0; j < 3; j++ {
			loop = append(loop, t[j])
			if ins := pointsOnSegment(t[j], t[(j+1)%3], near, tol); len(ins) > 0 {
				loop = append(loop, ins...)
				grown = true
			}
		}
		if !grown {
			out = append(out, t)
			continue
		}
		plane, err := geom.NewPlane(t[0], geom.Normal(t))
		if err != nil {
			out = append(out, t)
			continue
		}
		sub, err := geom.TriangulateLoop(loop, plane)
		if err != nil {
			// Leave the T-junction for Repair to stitch.
			out = append(out, t)
			continue
		}
		out = append(out, sub...)
	}
	return out
}

func dedupVertices(tris []r3.Triangle, tol float64) []r3.Vec {
	ri := 1 / tol
	seen := make(map[[3]int64]struct{}, 3*len(tris)/2)
	verts := make([]r3.Vec, 0, len(tris))
	for _, t := range tris {
		for _, v := range t {
			k := [3]int64{
				int64(math.Round(v.X * ri)),
				int64(math.Round(v.Y * ri)),
				int64(math.Round(v.Z * ri)),
			}
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			verts = append(verts, v)
		}
	}
	return verts
}

// pointsOnSegment returns candidates strictly inside segment a-b, sorted
// along it. tol bounds both the distance to the segment line and the
// exclusion zone around the endpoints.
func pointsOnSegment(a, b r3.Vec, candidates []r3.Vec, tol float64) []r3.Vec {
	ab := r3.Sub(b, a)
	len2 := r3.Norm2(ab)
	if len2 == 0 {
		return nil
	}
	type hit struct {
		t float64
		v r3.Vec
	}
	var hits []hit
	for _, c := range candidates {
		t := r3.Dot(r3.Sub(c, a), ab) / len2
		if t <= 0 || t >= 1 {
			continue
		}
		onLine := r3.Add(a, r3.Scale(t, ab))
		if r3.Norm(r3.Sub(c, onLine)) > tol {
			continue
		}
		if r3.Norm(r3.Sub(c, a)) <= tol || r3.Norm(r3.Sub(c, b)) <= tol {
			continue
		}
		hits = append(hits, hit{t: t, v: c})
	}
	if len(hits) == 0 {
		return nil
	}
	for i := 1; i < len(hits); i++ {
		for j := i; j > 0 && hits[j].t < hits[j-1].t; j-- {
			hits[j], hits[j-1] = hits[j-1], hits[j]
		}
	}
	out := make([]r3.Vec, len(hits))
	for i, h := range hits {
		out[i] = h.v
	}
	return out
}
