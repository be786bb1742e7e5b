package render

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/chewxy/math32"
	hstl "github.com/hschendel/stl"
	"github.com/printpart/interlock/geom"
	"gonum.org/v1/gonum/spatial/r3"
)

// CreateSTL streams a Renderer to a binary STL file.
func CreateSTL(path string, r Renderer) error {
	return createSTL(path, r)
}

// WriteSTL writes model triangles to a writer in binary STL format.
func WriteSTL(w io.Writer, model []r3.Triangle) error {
	if len(model) == 0 {
		return errors.New("empty triangle slice")
	}
	header := stlHeader{
		Count: uint32(len(model)),
	}
	if err := binary.Write(w, binary.LittleEndian, &header); err != nil {
		return err
	}
	var d stlTriangle
	for _, triangle := range model {
		var b [50]byte
		d.from(triangle)
		d.put(b[:])
		if _, err := io.Copy(w, bytes.NewReader(b[:])); err != nil {
			return err
		}
	}
	return nil
}

// LoadSTL reads an STL file into a triangle soup. Binary files are
// parsed directly; anything whose size does not match its binary header
// is retried as ASCII.
func LoadSTL(path string) ([]r3.Triangle, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	info, err := file.Stat()
	if err != nil {
		return nil, err
	}
	var header stlHeader
	if err := binary.Read(file, binary.LittleEndian, &header); err == nil &&
		info.Size() == 84+50*int64(header.Count) {
		if _, err := file.Seek(0, io.SeekStart); err != nil {
			return nil, err
		}
		return readBinarySTL(file)
	}
	solid, err := hstl.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("not binary STL and ASCII read failed: %w", err)
	}
	out := make([]r3.Triangle, len(solid.Triangles))
	for i, t := range solid.Triangles {
		for j, v := range t.Vertices {
			out[i][j] = r3.Vec{X: float64(v[0]), Y: float64(v[1]), Z: float64(v[2])}
		}
	}
	return out, nil
}

// stlHeader defines the STL file header.
type stlHeader struct {
	_     [80]uint8 // Header
	Count uint32    // Number of triangles
}

const trianglesInBuffer = 1 << 10

type stlReader struct {
	r   Renderer
	buf [trianglesInBuffer]r3.Triangle
}

func (w *stlReader) Read(b []byte) (int, error) {
	const stlTriangleSize = 50
	ntMax := min(len(b)/stlTriangleSize, len(w.buf))
	if ntMax == 0 {
		return 0, errors.New("stlReader requires at least 50 bytes to write a single triangle")
	}

	var (
		err error
		it  int // Number of triangles written to byte buffer
		nt  int // number of triangles read during ReadTriangles
		d   stlTriangle
	)
	for it < ntMax && err == nil {
		// remaining space in byte buffer for triangles.
		remaining := len(b)/stlTriangleSize - it
		nt, err = w.r.ReadTriangles(w.buf[:min(ntMax, remaining)])
		if nt > ntMax {
			panic("bug: ReadTriangles read more triangles than available in buffer")
		}
		for _, triangle := range w.buf[:nt] {
			d.from(triangle)
			d.put(b[it*stlTriangleSize:])
			it++
		}
	}
	return it * stlTriangleSize, err
}

func createSTL(path string, r Renderer) error {
	const sizeOfSTLHeader = 84
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	// Header is written last, once the triangle count is known.
	_, err = file.Seek(sizeOfSTLHeader, 0)
	if err != nil {
		return err
	}
	rd := &stlReader{r: r}
	n, err := io.CopyBuffer(file, rd, make([]byte, 50*trianglesInBuffer))
	if err != nil {
		return err
	}
	_, err = file.Seek(0, 0)
	if err != nil {
		return err
	}
	header := stlHeader{
		Count: uint32(n / 50), // size of stl triangles is 50
	}
	return binary.Write(file, binary.LittleEndian, &header)
}

func readBinarySTL(r io.Reader) (output []r3.Triangle, readErr error) {
	var header stlHeader
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, errors.New("encountered EOF while reading STL header")
		}
		return nil, errors.New("STL header read failed: " + err.Error())
	}
	if header.Count == 0 {
		return nil, errors.New("STL header indicates 0 triangles present")
	}
	var (
		buf [50]byte
		d   stlTriangle
		i   int
	)
	defer func() {
		if readErr != nil {
			readErr = fmt.Errorf("%d/%d STL triangles read: %w", i+1, header.Count, readErr)
		}
	}()
	for i = 0; i < int(header.Count); i++ {
		var n int
		for n < 50 {
			nr, err := r.Read(buf[n:])
			if err != nil {
				return nil, err
			}
			n += nr
		}
		d.get(buf[:])
		if err := d.validate(); err != nil {
			return nil, err
		}
		output = append(output, d.toTriangle())
	}
	return output, nil
}

// stlTriangle defines the triangle data within an STL file.
type stlTriangle struct {
	Normal  [3]float32
	Vertex1 [3]float32
	Vertex2 [3]float32
	Vertex3 [3]float32
	_       uint16 // Attribute byte count
}

func (t *stlTriangle) from(tri r3.Triangle) {
	n := geom.Normal(tri)
	t.Normal = [3]float32{float32(n.X), float32(n.Y), float32(n.Z)}
	t.Vertex1 = [3]float32{float32(tri[0].X), float32(tri[0].Y), float32(tri[0].Z)}
	t.Vertex2 = [3]float32{float32(tri[1].X), float32(tri[1].Y), float32(tri[1].Z)}
	t.Vertex3 = [3]float32{float32(tri[2].X), float32(tri[2].Y), float32(tri[2].Z)}
}

func (t stlTriangle) put(b []byte) {
	if len(b) < 50 {
		panic("need length 50 to marshal stlTriangle")
	}
	put3F32(b, t.Normal)
	put3F32(b[12:], t.Vertex1)
	put3F32(b[24:], t.Vertex2)
	put3F32(b[36:], t.Vertex3)
	binary.LittleEndian.PutUint16(b[48:], 0)
}

func (t *stlTriangle) get(b []byte) {
	if len(b) < 50 {
		panic("need length 50 to unmarshal stlTriangle")
	}
	get3F32(b, &t.Normal)
	get3F32(b[12:], &t.Vertex1)
	get3F32(b[24:], &t.Vertex2)
	get3F32(b[36:], &t.Vertex3)
	// no attributes supported yet.
}

func put3F32(b []byte, f [3]float32) {
	_ = b[11] // early bounds check
	binary.LittleEndian.PutUint32(b, math.Float32bits(f[0]))
	binary.LittleEndian.PutUint32(b[4:], math.Float32bits(f[1]))
	binary.LittleEndian.PutUint32(b[8:], math.Float32bits(f[2]))
}

func get3F32(b []byte, f *[3]float32) {
	_ = b[11] // early bounds check
	f[0] = math.Float32frombits(binary.LittleEndian.Uint32(b))
	f[1] = math.Float32frombits(binary.LittleEndian.Uint32(b[4:]))
	f[2] = math.Float32frombits(binary.LittleEndian.Uint32(b[8:]))
}

func bad3F32(f [3]float32) bool {
	return math32.IsNaN(f[0]) || math32.IsInf(f[0], 0) ||
		math32.IsNaN(f[1]) || math32.IsInf(f[1], 0) ||
		math32.IsNaN(f[2]) || math32.IsInf(f[2], 0)
}

func (t stlTriangle) validate() error {
	if bad3F32(t.Normal) {
		return errors.New("inf/NaN STL triangle normal")
	}
	if bad3F32(t.Vertex1) || bad3F32(t.Vertex2) || bad3F32(t.Vertex3) {
		return errors.New("inf/NaN STL triangle vertex")
	}
	return nil
}

func (t stlTriangle) toTriangle() r3.Triangle {
	return r3.Triangle{
		{X: float64(t.Vertex1[0]), Y: float64(t.Vertex1[1]), Z: float64(t.Vertex1[2])},
		{X: float64(t.Vertex2[0]), Y: float64(t.Vertex2[1]), Z: float64(t.Vertex2[2])},
		{X: float64(t.Vertex3[0]), Y: float64(t.Vertex3[1]), Z: float64(t.Vertex3[2])},
	}
}
