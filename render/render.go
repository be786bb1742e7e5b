// Package render streams triangles between the pipeline's solids and
// STL files. Writers consume a Renderer so large models never need a
// second in-memory copy on the way to disk.
package render

import (
	"io"

	"github.com/printpart/interlock/mesh"
	"gonum.org/v1/gonum/spatial/r3"
)

type Renderer interface {
	ReadTriangles(t []r3.Triangle) (int, error)
}

// NewSolidRenderer streams the faces of s in index order.
func NewSolidRenderer(s *mesh.Solid) Renderer {
	return &solidRenderer{s: s}
}

type solidRenderer struct {
	s    *mesh.Solid
	next int
}

func (r *solidRenderer) ReadTriangles(dst []r3.Triangle) (int, error) {
	if r.next >= r.s.NumFaces() {
		return 0, io.EOF
	}
	n := 0
	for n < len(dst) && r.next < r.s.NumFaces() {
		dst[n] = r.s.FaceTriangle(r.next)
		n++
		r.next++
	}
	return n, nil
}
