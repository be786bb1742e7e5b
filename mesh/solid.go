// Package mesh holds the indexed triangle-mesh data model of the pipeline:
// the Solid type, its manifold validator and repair pass, and a signed
// distance field used for inside/outside classification during booleans.
//
// Solids are immutable value snapshots. Every pipeline stage builds new
// Solids from triangle soup instead of mutating geometry in place.
package mesh

import (
	"errors"
	"fmt"
	"math"

	"github.com/printpart/interlock/geom"
	"github.com/printpart/interlock/internal/d3"
	"gonum.org/v1/gonum/spatial/r3"
)

// Solid is a triangulated surface intended to be a closed orientable
// 2-manifold. Vertices are shared between faces; faces reference vertices
// by index with counterclockwise outward winding.
type Solid struct {
	vtx []r3.Vec
	tri [][3]int
}

// New wraps vertex and face slices into a Solid. It panics on a face
// index out of range; callers building meshes by hand own that invariant.
// The slices are retained, not copied.
func New(vertices []r3.Vec, faces [][3]int) *Solid {
	for fi, f := range faces {
		for _, vi := range f {
			if vi < 0 || vi >= len(vertices) {
				panic(fmt.Sprintf("mesh: face %d references vertex %d of %d", fi, vi, len(vertices)))
			}
		}
	}
	return &Solid{vtx: vertices, tri: faces}
}

// FromTriangles welds a triangle soup into an indexed Solid, sharing
// vertices that land on the same cell of an integer lattice with pitch
// weldTol. Degenerate triangles (welded-away edges or area below the
// kernel tolerance) are dropped.
//
// weldTol should be well below the smallest feature of the model; if zero
// it is inferred as 1/256th of the shortest triangle side, and clamped
// into a sane range for very fine or very coarse soups.
func FromTriangles(triangles []r3.Triangle, weldTol float64) (*Solid, error) {
	if len(triangles) == 0 {
		return nil, errors.New("mesh: empty triangle slice")
	}
	minSide2 := math.MaxFloat64
	maxSide2 := -math.MaxFloat64
	for i := range triangles {
		for j, vert := range triangles[i] {
			side2 := r3.Norm2(r3.Sub(triangles[i][(j+1)%3], vert))
			minSide2 = math.Min(minSide2, side2)
			maxSide2 = math.Max(maxSide2, side2)
		}
	}
	suggested := math.Sqrt(minSide2) / 256
	if weldTol == 0 {
		weldTol = math.Max(suggested, geom.WeldTol/10)
	}
	if weldTol > math.Sqrt(maxSide2)/2 {
		return nil, fmt.Errorf("mesh: weld tolerance %g too large, suggested %g", weldTol, suggested)
	}
	ri := 1 / weldTol
	cache := make(map[[3]int64]int, 3*len(triangles)/2)
	var s Solid
	s.tri = make([][3]int, 0, len(triangles))
	dropped := 0
	for _, t := range triangles {
		var face [3]int
		for j, vert := range t {
			vi := [3]int64{
				int64(math.Round(vert.X * ri)),
				int64(math.Round(vert.Y * ri)),
				int64(math.Round(vert.Z * ri)),
			}
			idx, ok := cache[vi]
			if !ok {
				idx = len(s.vtx)
				cache[vi] = idx
				s.vtx = append(s.vtx, vert)
			}
			face[j] = idx
		}
		if face[0] == face[1] || face[1] == face[2] || face[2] == face[0] ||
			geom.Degenerate(s.faceTri(face), geom.Tol) {
			dropped++
			continue
		}
		s.tri = append(s.tri, face)
	}
	if len(s.tri) == 0 {
		return nil, errors.New("mesh: all triangles degenerate after welding")
	}
	return &s, nil
}

func (s *Solid) faceTri(f [3]int) r3.Triangle {
	return r3.Triangle{s.vtx[f[0]], s.vtx[f[1]], s.vtx[f[2]]}
}

// NumVertices returns the number of welded vertices.
func (s *Solid) NumVertices() int { return len(s.vtx) }

// NumFaces returns the number of triangular faces.
func (s *Solid) NumFaces() int { return len(s.tri) }

// Vertex returns the i-th vertex position.
func (s *Solid) Vertex(i int) r3.Vec { return s.vtx[i] }

// Face returns the vertex indices of face i.
func (s *Solid) Face(i int) [3]int { return s.tri[i] }

// FaceTriangle returns face i as a positioned triangle.
func (s *Solid) FaceTriangle(i int) r3.Triangle { return s.faceTri(s.tri[i]) }

// Triangles expands the Solid back into a triangle soup.
func (s *Solid) Triangles() []r3.Triangle {
	out := make([]r3.Triangle, len(s.tri))
	for i, f := range s.tri {
		out[i] = s.faceTri(f)
	}
	return out
}

// Bounds returns the axis-aligned bounding box of the Solid.
func (s *Solid) Bounds() r3.Box {
	return r3.Box(d3.BoxFromPoints(s.vtx))
}

// Volume returns the enclosed volume computed by the divergence theorem.
// Requires a closed consistently wound surface; open or flipped regions
// bias the result.
func (s *Solid) Volume() float64 {
	var vol float64
	for _, f := range s.tri {
		a, b, c := s.vtx[f[0]], s.vtx[f[1]], s.vtx[f[2]]
		vol += r3.Dot(a, r3.Cross(b, c))
	}
	return vol / 6
}

// Centroid returns the volumetric centroid of the Solid.
func (s *Solid) Centroid() r3.Vec {
	var c r3.Vec
	var vol float64
	for _, f := range s.tri {
		a, b, ct := s.vtx[f[0]], s.vtx[f[1]], s.vtx[f[2]]
		dv := r3.Dot(a, r3.Cross(b, ct)) / 6
		vol += dv
		c = r3.Add(c, r3.Scale(dv/4, r3.Add(r3.Add(a, b), ct)))
	}
	if vol == 0 {
		return r3.Box(d3.BoxFromPoints(s.vtx)).Min // arbitrary; degenerate solid
	}
	return r3.Scale(1/vol, c)
}

// MapVertices returns a new Solid with every vertex mapped through fn.
// fn must preserve orientation (no mirroring) or the winding invariant
// breaks.
func (s *Solid) MapVertices(fn func(r3.Vec) r3.Vec) *Solid {
	vtx := make([]r3.Vec, len(s.vtx))
	for i, v := range s.vtx {
		vtx[i] = fn(v)
	}
	tri := make([][3]int, len(s.tri))
	copy(tri, s.tri)
	return &Solid{vtx: vtx, tri: tri}
}

// Translate returns a copy of the Solid displaced by v.
func (s *Solid) Translate(v r3.Vec) *Solid {
	return s.MapVertices(func(p r3.Vec) r3.Vec { return r3.Add(p, v) })
}

// Shells partitions faces into connected components over shared vertices.
// A valid printable Solid usually has exactly one shell; the splitter can
// legitimately produce more on non-convex cuts.
func (s *Solid) Shells() [][]int {
	parent := make([]int, len(s.vtx))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(x int) int {
		for parent[x] != x {
			parent[x] = parent[parent[x]]
			x = parent[x]
		}
		return x
	}
	union := func(a, b int) {
		ra, rb := find(a), find(b)
		if ra != rb {
			parent[ra] = rb
		}
	}
	for _, f := range s.tri {
		union(f[0], f[1])
		union(f[1], f[2])
	}
	groups := make(map[int][]int)
	for i, f := range s.tri {
		root := find(f[0])
		groups[root] = append(groups[root], i)
	}
	shells := make([][]int, 0, len(groups))
	for _, faces := range groups {
		shells = append(shells, faces)
	}
	return shells
}
