// Command interlock splits an STL model into two halves joined by
// interlocking geometry and writes each half to its own STL file.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/fogleman/fauxgl"
	"github.com/nfnt/resize"
	"github.com/printpart/interlock"
	"github.com/printpart/interlock/geom"
	"github.com/printpart/interlock/mesh"
	"github.com/printpart/interlock/render"
	"gonum.org/v1/gonum/spatial/r3"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "interlock:", err)
		os.Exit(1)
	}
}

func run() error {
	def := interlock.DefaultPattern()
	var (
		in        = flag.String("in", "", "input STL model (required)")
		outA      = flag.String("out-a", "", "output STL for the lower half (default <in>_a.stl)")
		outB      = flag.String("out-b", "", "output STL for the upper half (default <in>_b.stl)")
		planeSpec = flag.String("plane", "auto", "cutting plane as px,py,pz:nx,ny,nz, or auto")
		shape     = flag.String("shape", "dovetail", "interlock unit shape: dovetail or block")
		width     = flag.Float64("unit-width", def.Width, "unit width on the cut plane")
		height    = flag.Float64("unit-height", def.Height, "unit height on the cut plane")
		depth     = flag.Float64("unit-depth", def.Depth, "unit depth across the cut plane")
		taperU    = flag.Float64("taper-u", def.TaperU, "dovetail taper along unit width, degrees")
		taperV    = flag.Float64("taper-v", def.TaperV, "dovetail taper along unit height, degrees")
		spacing   = flag.Float64("spacing", def.Spacing, "gap between units")
		clearance = flag.Float64("clearance", def.Clearance, "female cavity growth over the male tab")
		margin    = flag.Float64("margin", def.Margin, "layout inset from the cut footprint edge")
		layer     = flag.Float64("layer", def.Layer, "print layer height, snaps unit depth to whole layers; 0 disables")
		rows      = flag.Int("rows", 0, "unit rows, 0 fits as many as possible")
		cols      = flag.Int("cols", 0, "unit columns, 0 fits as many as possible")
		inverted  = flag.Bool("inverted", false, "put tabs on the upper half")
		alternate = flag.Bool("alternate", false, "checkerboard tab ownership between halves")
		preview   = flag.String("preview", "", "write PNG previews with this path prefix")
		workers   = flag.Int("workers", 0, "parallel workers, 0 uses all CPUs")
		verbose   = flag.Bool("v", false, "log pipeline progress")
	)
	flag.Parse()
	if *in == "" {
		flag.Usage()
		return errors.New("missing -in")
	}

	spec := interlock.PatternSpec{
		Width: *width, Height: *height, Depth: *depth,
		TaperU: *taperU, TaperV: *taperV,
		Spacing: *spacing, Clearance: *clearance, Margin: *margin,
		Layer: *layer,
		Rows:  *rows, Cols: *cols,
		Inverted: *inverted, Alternate: *alternate,
	}
	switch *shape {
	case "dovetail":
		spec.Shape = interlock.ShapeDovetail
	case "block":
		spec.Shape = interlock.ShapeBlock
	default:
		return fmt.Errorf("unknown shape %q", *shape)
	}

	cfg := interlock.Config{Pattern: spec, Workers: *workers}
	if *verbose {
		cfg.Logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	if *planeSpec != "auto" {
		pl, err := parsePlane(*planeSpec)
		if err != nil {
			return err
		}
		cfg.Plane = &pl
	}

	tris, err := render.LoadSTL(*in)
	if err != nil {
		return err
	}
	solid, err := mesh.FromTriangles(tris, 0)
	if err != nil {
		return err
	}

	res, err := interlock.Run(context.Background(), solid, cfg)
	if err != nil {
		return err
	}
	for _, w := range res.Warnings {
		fmt.Fprintln(os.Stderr, "interlock: warning:", w.Error())
	}

	base := strings.TrimSuffix(*in, ".stl")
	pathA, pathB := base+"_a.stl", base+"_b.stl"
	if *outA != "" {
		pathA = *outA
	}
	if *outB != "" {
		pathB = *outB
	}
	if err := render.CreateSTL(pathA, render.NewSolidRenderer(res.A)); err != nil {
		return err
	}
	if err := render.CreateSTL(pathB, render.NewSolidRenderer(res.B)); err != nil {
		return err
	}
	fmt.Printf("wrote %s (%d faces) and %s (%d faces)\n",
		pathA, res.A.NumFaces(), pathB, res.B.NumFaces())

	if *preview != "" {
		if err := stlToPNG(pathA, *preview+"_a.png"); err != nil {
			return err
		}
		if err := stlToPNG(pathB, *preview+"_b.png"); err != nil {
			return err
		}
	}
	return nil
}

// parsePlane parses "px,py,pz:nx,ny,nz".
func parsePlane(s string) (geom.Plane, error) {
	halves := strings.Split(s, ":")
	if len(halves) != 2 {
		return geom.Plane{}, fmt.Errorf("plane %q: want px,py,pz:nx,ny,nz", s)
	}
	var p, n r3.Vec
	if _, err := fmt.Sscanf(halves[0], "%g,%g,%g", &p.X, &p.Y, &p.Z); err != nil {
		return geom.Plane{}, fmt.Errorf("plane point %q: %w", halves[0], err)
	}
	if _, err := fmt.Sscanf(halves[1], "%g,%g,%g", &n.X, &n.Y, &n.Z); err != nil {
		return geom.Plane{}, fmt.Errorf("plane normal %q: %w", halves[1], err)
	}
	return geom.NewPlane(p, n)
}

func stlToPNG(stlName, outputname string) error {
	m, err := fauxgl.LoadSTL(stlName)
	if err != nil {
		return err
	}
	const (
		width, height = 1920, 1080 // output width and height in pixels
		scale         = 1          // optional supersampling
		fovy          = 30         // vertical field of view in degrees
		near, far     = 1, 10
	)
	var (
		eye    = fauxgl.V(3, 3, 3)
		center = fauxgl.V(0, 0, 0)
		up     = fauxgl.V(0, 0, 1)
		light  = fauxgl.V(-0.75, 1, 0.25).Normalize()
		color  = fauxgl.HexColor("#468966")
	)
	// fit mesh in a bi-unit cube centered at the origin
	m.BiUnitCube()
	context := fauxgl.NewContext(width*scale, height*scale)
	context.ClearColorBufferWith(fauxgl.HexColor("#FFF8E3"))
	aspect := float64(width) / float64(height)
	matrix := fauxgl.LookAt(eye, center, up).Perspective(fovy, aspect, near, far)
	shader := fauxgl.NewPhongShader(matrix, light, eye)
	shader.ObjectColor = color
	context.Shader = shader
	context.DrawMesh(m)
	// downsample image for antialiasing
	image := context.Image()
	image = resize.Resize(width, height, image, resize.Bilinear)
	return fauxgl.SavePNG(outputname, image)
}
