// Package interlock splits a printable triangulated solid into two
// halves joined by procedurally generated interlocking geometry. The
// pipeline cuts the model with a plane, lays a grid of dovetail or block
// units over the cut footprint, grows each male tab onto one half and
// carves the matching female cavity from the other, and validates that
// both outputs remain closed printable manifolds.
package interlock

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/printpart/interlock/geom"
	"github.com/printpart/interlock/internal/d3"
	"github.com/printpart/interlock/mesh"
)

// Config drives a pipeline run. The zero Pattern is invalid; start from
// DefaultPattern.
type Config struct {
	// Plane is the cutting plane. Nil picks one through the volumetric
	// centroid across the longest bounding-box axis.
	Plane   *geom.Plane
	Pattern PatternSpec
	// Workers bounds parallelism in the splitting and boolean stages.
	// Zero or less uses GOMAXPROCS.
	Workers int
	// Logger receives per-stage progress. Nil discards.
	Logger *slog.Logger
}

// Result holds the two printable halves. A is below the cutting plane,
// B above.
type Result struct {
	A, B     *mesh.Solid
	Boundary CutBoundary
	Warnings []Diagnostic
}

// Run executes the full pipeline on solid. The input must validate as a
// closed 2-manifold; defective inputs are rejected with a DefectsError
// before any stage runs. Both returned halves are validated; Run never
// returns broken geometry alongside a nil error.
func Run(ctx context.Context, solid *mesh.Solid, cfg Config) (*Result, error) {
	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if defects := mesh.Validate(solid); len(defects) > 0 {
		return nil, &DefectsError{Defects: defects}
	}

	pl := AutoPlane(solid)
	if cfg.Plane != nil {
		pl = *cfg.Plane
	}
	log.Info("splitting", "faces", solid.NumFaces(), "point", pl.Point, "normal", pl.Normal)
	split, err := SplitByPlane(ctx, solid, pl, cfg.Workers)
	if err != nil {
		return nil, err
	}
	log.Info("split done",
		"below", split.Below.NumFaces(), "above", split.Above.NumFaces(),
		"loops", len(split.Boundary.Loops))

	piece, err := GeneratePattern(split.Boundary, cfg.Pattern)
	if err != nil {
		return nil, err
	}
	log.Info("pattern laid out", "units", len(piece.Units), "shape", cfg.Pattern.Shape)

	a, b := split.Below, split.Above
	for i, unit := range piece.Units {
		tabHost, cavHost := &a, &b
		if unit.SwapHost {
			tabHost, cavHost = &b, &a
		}
		joined, err := Compose(ctx, *tabHost, unit.Male, OpUnion, cfg.Workers)
		if err != nil {
			return nil, fmt.Errorf("unit %d tab: %w", i, err)
		}
		carved, err := Compose(ctx, *cavHost, unit.Female, OpDifference, cfg.Workers)
		if err != nil {
			return nil, fmt.Errorf("unit %d cavity: %w", i, err)
		}
		*tabHost, *cavHost = joined, carved
	}

	a = mesh.Repair(a, geom.WeldTol)
	b = mesh.Repair(b, geom.WeldTol)
	for name, half := range map[string]*mesh.Solid{"lower": a, "upper": b} {
		if defects := mesh.Validate(half); len(defects) > 0 {
			return nil, &Diagnostic{
				Kind:   KindBooleanFailure,
				Region: half.Bounds(),
				Detail: fmt.Sprintf("%s half has %d defects, first: %v", name, len(defects), defects[0]),
			}
		}
	}
	log.Info("pipeline done",
		"lowerFaces", a.NumFaces(), "upperFaces", b.NumFaces(),
		"warnings", len(split.Warnings))
	return &Result{A: a, B: b, Boundary: split.Boundary, Warnings: split.Warnings}, nil
}

// AutoPlane returns a cutting plane through the volumetric centroid of s
// across its longest bounding-box axis.
func AutoPlane(s *mesh.Solid) geom.Plane {
	_, axis := d3.LongestAxis(d3.Box(s.Bounds()).Size())
	pl, err := geom.NewPlane(s.Centroid(), axis)
	if err != nil {
		// LongestAxis always yields a unit axis.
		panic(err)
	}
	return pl
}
