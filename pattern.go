package interlock

import (
	"errors"
	"fmt"
	"math"

	"github.com/printpart/interlock/internal/d3"
	"github.com/printpart/interlock/mesh"
	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"
)

// UnitShape selects the interlock unit geometry.
type UnitShape uint8

const (
	// ShapeDovetail is a trapezoidal frustum that widens away from its
	// host, resisting pull-apart along the plane normal.
	ShapeDovetail UnitShape = iota
	// ShapeBlock is a straight-sided registration block with no taper.
	ShapeBlock
)

func (u UnitShape) String() string {
	switch u {
	case ShapeDovetail:
		return "dovetail"
	case ShapeBlock:
		return "block"
	}
	return "unknown"
}

// Print defaults assume a common FDM setup.
const (
	defaultNozzle = 0.4
	defaultLayer  = 0.15
)

// PatternSpec parameterizes the interlock layout on the cut plane.
// Dimensions are model units (millimetres for STL work); tapers are in
// degrees. Zero Rows or Cols means fit as many units as the footprint
// allows.
type PatternSpec struct {
	Shape  UnitShape
	Width  float64 // unit extent along the plane U axis
	Height float64 // unit extent along the plane V axis
	Depth  float64 // unit extent across the plane, half on each side

	// TaperU and TaperV widen the far face of a dovetail per side wall.
	TaperU, TaperV float64

	Spacing   float64 // gap between neighboring units
	Clearance float64 // growth of the female cavity over the male tab
	Margin    float64 // inset of the layout from the footprint edge

	// Layer snaps Depth to a whole number of print layers so the tab tip
	// lands on a layer boundary. Zero disables the snap.
	Layer float64

	Rows, Cols int

	// Inverted puts the tabs on the upper half instead of the lower.
	Inverted bool
	// Alternate checkerboards tab ownership between the halves.
	Alternate bool
}

// DefaultPattern returns a dovetail layout sized for a 0.4mm nozzle and
// 0.15mm layers.
func DefaultPattern() PatternSpec {
	return PatternSpec{
		Shape:     ShapeDovetail,
		Width:     20 * defaultNozzle,
		Height:    20 * defaultNozzle,
		Depth:     20 * defaultLayer,
		TaperU:    15,
		Spacing:   10 * defaultNozzle,
		Clearance: defaultNozzle / 2,
		Margin:    2 * defaultNozzle,
		Layer:     defaultLayer,
	}
}

func (p *PatternSpec) validate() error {
	switch {
	case p.Width <= 0 || p.Height <= 0 || p.Depth <= 0:
		return errors.New("pattern: unit dimensions must be positive")
	case p.Clearance < 0 || p.Spacing < 0 || p.Margin < 0 || p.Layer < 0:
		return errors.New("pattern: clearance, spacing, margin and layer must be non-negative")
	case p.TaperU < 0 || p.TaperU >= 45 || p.TaperV < 0 || p.TaperV >= 45:
		return errors.New("pattern: taper must be in [0, 45) degrees")
	case p.Rows < 0 || p.Cols < 0:
		return errors.New("pattern: rows and cols must be non-negative")
	}
	switch p.Shape {
	case ShapeDovetail:
		if p.TaperU == 0 && p.TaperV == 0 {
			return errors.New("pattern: dovetail needs a taper on at least one axis")
		}
	case ShapeBlock:
		if p.TaperU != 0 || p.TaperV != 0 {
			return errors.New("pattern: block units take no taper")
		}
	default:
		return fmt.Errorf("pattern: unknown unit shape %d", p.Shape)
	}
	return nil
}

// unitDepth returns Depth snapped to whole print layers, never below one
// layer. A zero Layer passes Depth through.
func (p *PatternSpec) unitDepth() float64 {
	if p.Layer <= 0 {
		return p.Depth
	}
	d := math.Round(p.Depth/p.Layer) * p.Layer
	if d < p.Layer {
		d = p.Layer
	}
	return d
}

// cellSize returns the in-plane footprint one unit occupies, measured at
// the widest point of its female cavity.
func (p *PatternSpec) cellSize() (w, h float64) {
	d := p.unitDepth() + 2*p.Clearance
	w = p.Width + 2*p.Clearance + 2*d*math.Tan(p.TaperU*math.Pi/180)
	h = p.Height + 2*p.Clearance + 2*d*math.Tan(p.TaperV*math.Pi/180)
	return w, h
}

// Unit is one placed interlock element: the male tab grown onto one host
// half and the female cavity carved from the other. SwapHost flips which
// half receives the tab.
type Unit struct {
	Male, Female *mesh.Solid
	SwapHost     bool
}

// Piece is a full interlock layout over one cut boundary.
type Piece struct {
	Units []Unit
}

// GeneratePattern lays out interlock units over the footprint of b. The
// grid is centered on the footprint; a layout that does not fit inside
// the margin returns a pattern-overflow diagnostic.
func GeneratePattern(b CutBoundary, spec PatternSpec) (*Piece, error) {
	if err := spec.validate(); err != nil {
		return nil, err
	}
	if len(b.Loops) == 0 {
		return nil, errors.New("pattern: empty cut boundary")
	}
	lo, hi := b.Footprint()
	spanW := hi.X - lo.X - 2*spec.Margin
	spanH := hi.Y - lo.Y - 2*spec.Margin
	cellW, cellH := spec.cellSize()
	cols, okC := fitCount(spec.Cols, spanW, cellW, spec.Spacing)
	rows, okR := fitCount(spec.Rows, spanH, cellH, spec.Spacing)
	if !okC || !okR {
		return nil, &Diagnostic{
			Kind:   KindPatternOverflow,
			Region: b.region(),
			Detail: fmt.Sprintf("%dx%d units of %.3gx%.3g do not fit footprint %.3gx%.3g inside margin %.3g",
				rows, cols, cellW, cellH, hi.X-lo.X, hi.Y-lo.Y, spec.Margin),
		}
	}

	u, v := b.Plane.Basis()
	orient := d3.NewFrame(r3.Vec{}, u, v, b.Plane.Normal)
	// A swapped tab flares away from its host so the joint still locks.
	// Rotated about U to stay right-handed.
	swapped := orient.Mul(d3.NewFrame(r3.Vec{}, r3.Vec{X: 1}, r3.Vec{Y: -1}, r3.Vec{Z: -1}))
	depth := spec.unitDepth()
	cx := (lo.X + hi.X) / 2
	cy := (lo.Y + hi.Y) / 2
	startX := cx - (float64(cols)*cellW+float64(cols-1)*spec.Spacing)/2 + cellW/2
	startY := cy - (float64(rows)*cellH+float64(rows-1)*spec.Spacing)/2 + cellH/2

	piece := &Piece{Units: make([]Unit, 0, rows*cols)}
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			x := startX + float64(c)*(cellW+spec.Spacing)
			y := startY + float64(r)*(cellH+spec.Spacing)
			swap := spec.Inverted
			if spec.Alternate && (r+c)%2 == 1 {
				swap = !swap
			}
			frame := orient
			if swap {
				frame = swapped
			}
			frame = frame.Translate(b.Plane.Unproject(r2.Vec{X: x, Y: y}))
			piece.Units = append(piece.Units, Unit{
				Male: frustum(spec.Width, spec.Height, depth,
					spec.TaperU, spec.TaperV, frame),
				Female: frustum(spec.Width+2*spec.Clearance, spec.Height+2*spec.Clearance,
					depth+2*spec.Clearance, spec.TaperU, spec.TaperV, frame),
				SwapHost: swap,
			})
		}
	}
	return piece, nil
}

// fitCount resolves a requested unit count against the available span.
// want of zero fits as many as possible.
func fitCount(want int, span, cell, spacing float64) (int, bool) {
	if span < cell {
		return want, false
	}
	most := int(math.Floor((span + spacing) / (cell + spacing)))
	if want == 0 {
		return most, most >= 1
	}
	return want, want <= most
}

// frustum builds a trapezoidal frustum in the frame's local coordinates:
// a w by h near face at z = -d/2 and a far face at z = +d/2 widened by
// the taper angles, welded into a closed solid. Zero taper yields a box.
func frustum(w, h, d, taperU, taperV float64, frame d3.Transform) *mesh.Solid {
	gu := d * math.Tan(taperU*math.Pi/180)
	gv := d * math.Tan(taperV*math.Pi/180)
	hw, hh, hd := w/2, h/2, d/2
	local := []r3.Vec{
		{X: -hw, Y: -hh, Z: -hd},
		{X: hw, Y: -hh, Z: -hd},
		{X: hw, Y: hh, Z: -hd},
		{X: -hw, Y: hh, Z: -hd},
		{X: -hw - gu, Y: -hh - gv, Z: hd},
		{X: hw + gu, Y: -hh - gv, Z: hd},
		{X: hw + gu, Y: hh + gv, Z: hd},
		{X: -hw - gu, Y: hh + gv, Z: hd},
	}
	verts := make([]r3.Vec, len(local))
	for i, p := range local {
		verts[i] = frame.Transform(p)
	}
	faces := [][3]int{
		{0, 2, 1}, {0, 3, 2}, // near
		{4, 5, 6}, {4, 6, 7}, // far
		{0, 1, 5}, {0, 5, 4},
		{1, 2, 6}, {1, 6, 5},
		{2, 3, 7}, {2, 7, 6},
		{3, 0, 4}, {3, 4, 7},
	}
	return mesh.New(verts, faces)
}
