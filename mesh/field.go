package mesh

import (
	"math"

	"github.com/printpart/interlock/geom"
	"gonum.org/v1/gonum/spatial/kdtree"
	"gonum.org/v1/gonum/spatial/r3"
)

// Field is a signed distance evaluator over a Solid. The sign of the
// distance comes from angle-weighted pseudo-normals at the closest
// surface feature (vertex, edge or face), which stays well defined on
// watertight meshes even near sharp creases. Negative is inside.
//
// A Field is read-only after construction and safe for concurrent use.
type Field struct {
	s *Solid
	// faces owns the kd-tree comparables; the tree indexes by centroid.
	faces []fieldFace
	tree  *kdtree.Tree
	// pseudo-normals, outward, unnormalized.
	faceN   []r3.Vec
	vertexN []r3.Vec
	edgeN   map[[2]int]r3.Vec
	maxDiam float64
}

// NewField builds the signed field for s. Faces of zero area contribute
// no pseudo-normal weight and should be repaired away beforehand.
func NewField(s *Solid) *Field {
	f := &Field{
		s:       s,
		faces:   make([]fieldFace, s.NumFaces()),
		faceN:   make([]r3.Vec, s.NumFaces()),
		vertexN: make([]r3.Vec, s.NumVertices()),
		edgeN:   make(map[[2]int]r3.Vec, 3*s.NumFaces()/2),
	}
	for i := range f.faces {
		t := s.FaceTriangle(i)
		n := geom.Normal(t)
		f.faceN[i] = n
		f.maxDiam = math.Max(f.maxDiam, faceDiameter(t))
		f.faces[i] = fieldFace{c: geom.Centroid(t), face: i, f: f}
		face := s.Face(i)
		for j := 0; j < 3; j++ {
			// Vertex pseudo-normal weighted by the opening angle at
			// the vertex.
			s1 := r3.Sub(t[j], t[(j+1)%3])
			s2 := r3.Sub(t[j], t[(j+2)%3])
			alpha := math.Acos(clampUnit(r3.Cos(s1, s2)))
			f.vertexN[face[j]] = r3.Add(f.vertexN[face[j]], r3.Scale(alpha, n))
			edge := sortEdge(face[j], face[(j+1)%3])
			f.edgeN[edge] = r3.Add(f.edgeN[edge], n)
		}
	}
	f.tree = kdtree.New(fieldFaces(f.faces), true)
	return f
}

// MaxFaceDiameter returns the longest face edge in the Solid, useful for
// sizing proximity queries.
func (f *Field) MaxFaceDiameter() float64 { return f.maxDiam }

// Evaluate returns the signed distance from q to the surface of the
// Solid, negative inside.
func (f *Field) Evaluate(q r3.Vec) float64 {
	got, _ := f.tree.Nearest(fieldFace{c: q, face: -1})
	nearest := got.(fieldFace)
	closest, feat := closestOnTriangle(q, f.s.FaceTriangle(nearest.face))
	face := f.s.Face(nearest.face)
	var n r3.Vec
	switch {
	case feat <= featV2:
		n = f.vertexN[face[feat]]
	case feat <= featE2:
		e := int(feat - featE0)
		n = f.edgeN[sortEdge(face[e], face[(e+1)%3])]
	default:
		n = f.faceN[nearest.face]
	}
	d := r3.Norm(r3.Sub(q, closest))
	return math.Copysign(d, r3.Dot(n, r3.Sub(q, closest)))
}

// Nearby returns indices of faces whose surface lies within radius r of
// point c. The query is conservative: callers should inflate r by two
// thirds of the maximum face diameter when converting a centroid distance
// bound, since a face extends up to its longest median from its centroid.
func (f *Field) Nearby(c r3.Vec, r float64) []int {
	keep := kdtree.NewDistKeeper(r * r)
	f.tree.NearestSet(keep, fieldFace{c: c, face: -1})
	var out []int
	for _, cd := range keep.Heap {
		if cd.Comparable == nil {
			continue
		}
		out = append(out, cd.Comparable.(fieldFace).face)
	}
	return out
}

func sortEdge(a, b int) [2]int {
	if a > b {
		return [2]int{b, a}
	}
	return [2]int{a, b}
}

func clampUnit(x float64) float64 {
	return math.Max(-1, math.Min(1, x))
}

// fieldFace is the kd-tree comparable: a face located at its centroid.
// face == -1 marks a bare query point.
type fieldFace struct {
	c    r3.Vec
	face int
	f    *Field
}

func (a fieldFace) Compare(b kdtree.Comparable, d kdtree.Dim) float64 {
	q := b.(fieldFace)
	switch d {
	case 0:
		return a.c.X - q.c.X
	case 1:
		return a.c.Y - q.c.Y
	case 2:
		return a.c.Z - q.c.Z
	}
	panic("unreachable")
}

func (a fieldFace) Dims() int { return 3 }

// Distance returns the squared distance between a query point and a
// face's surface, or between centroids when both comparables are faces
// (tree construction) or both are points.
func (a fieldFace) Distance(b kdtree.Comparable) float64 {
	q := b.(fieldFace)
	point, tri := a, q
	if point.face >= 0 {
		if q.face >= 0 {
			return r3.Norm2(r3.Sub(a.c, q.c))
		}
		point, tri = q, a
	} else if q.face < 0 {
		return r3.Norm2(r3.Sub(a.c, q.c))
	}
	closest, _ := closestOnTriangle(point.c, tri.f.s.FaceTriangle(tri.face))
	return r3.Norm2(r3.Sub(point.c, closest))
}

// fieldFaces implements kdtree.Interface.
type fieldFaces []fieldFace

func (t fieldFaces) Index(i int) kdtree.Comparable { return t[i] }
func (t fieldFaces) Len() int                      { return len(t) }
func (t fieldFaces) Pivot(d kdtree.Dim) int {
	p := facePlane{dim: int(d), faces: t}
	return kdtree.Partition(p, kdtree.MedianOfMedians(p))
}
func (t fieldFaces) Slice(start, end int) kdtree.Interface {
	return t[start:end]
}

type facePlane struct {
	dim   int
	faces fieldFaces
}

func (p facePlane) Less(i, j int) bool {
	return p.faces[i].Compare(p.faces[j], kdtree.Dim(p.dim)) < 0
}
func (p facePlane) Swap(i, j int) {
	p.faces[i], p.faces[j] = p.faces[j], p.faces[i]
}
func (p facePlane) Len() int { return len(p.faces) }
func (p facePlane) Slice(start, end int) kdtree.SortSlicer {
	p.faces = p.faces[start:end]
	return p
}

type triFeature uint8

const (
	featV0 triFeature = iota
	featV1
	featV2
	featE0 // edge v0-v1
	featE1 // edge v1-v2
	featE2 // edge v2-v0
	featFace
)

// closestOnTriangle returns the closest point on triangle t to p and the
// feature it lies on. Ericson, Real-Time Collision Detection, §5.1.5.
func closestOnTriangle(p r3.Vec, t r3.Triangle) (r3.Vec, triFeature) {
	a, b, c := t[0], t[1], t[2]
	ab := r3.Sub(b, a)
	ac := r3.Sub(c, a)
	ap := r3.Sub(p, a)
	d1 := r3.Dot(ab, ap)
	d2 := r3.Dot(ac, ap)
	if d1 <= 0 && d2 <= 0 {
		return a, featV0
	}
	bp := r3.Sub(p, b)
	d3 := r3.Dot(ab, bp)
	d4 := r3.Dot(ac, bp)
	if d3 >= 0 && d4 <= d3 {
		return b, featV1
	}
	vc := d1*d4 - d3*d2
	if vc <= 0 && d1 >= 0 && d3 <= 0 {
		w := d1 / (d1 - d3)
		return r3.Add(a, r3.Scale(w, ab)), featE0
	}
	cp := r3.Sub(p, c)
	d5 := r3.Dot(ab, cp)
	d6 := r3.Dot(ac, cp)
	if d6 >= 0 && d5 <= d6 {
		return c, featV2
	}
	vb := d5*d2 - d1*d6
	if vb <= 0 && d2 >= 0 && d6 <= 0 {
		w := d2 / (d2 - d6)
		return r3.Add(a, r3.Scale(w, ac)), featE2
	}
	va := d3*d6 - d5*d4
	if va <= 0 && d4-d3 >= 0 && d5-d6 >= 0 {
		w := (d4 - d3) / ((d4 - d3) + (d5 - d6))
		return r3.Add(b, r3.Scale(w, r3.Sub(c, b))), featE1
	}
	denom := 1 / (va + vb + vc)
	v := vb * denom
	w := vc * denom
	return r3.Add(a, r3.Add(r3.Scale(v, ab), r3.Scale(w, ac))), featFace
}
