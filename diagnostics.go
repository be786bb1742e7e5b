package interlock

import (
	"fmt"
	"strings"

	"github.com/printpart/interlock/mesh"
	"gonum.org/v1/gonum/spatial/r3"
)

// Kind classifies pipeline diagnostics.
type Kind uint8

const (
	// KindDegenerateGeometry is input or intermediate geometry below the
	// kernel tolerance.
	KindDegenerateGeometry Kind = iota
	// KindInvalidCut is a cutting plane that misses the solid or yields a
	// boundary that cannot be closed.
	KindInvalidCut
	// KindPatternOverflow is an interlock layout that does not fit the cut
	// footprint inside the requested margin.
	KindPatternOverflow
	// KindBooleanFailure is a union or difference whose output failed the
	// manifold check.
	KindBooleanFailure
	// KindMultipleSplitRegions notes that one half of a cut came out as
	// more than one closed shell. Advisory.
	KindMultipleSplitRegions
)

func (k Kind) String() string {
	switch k {
	case KindDegenerateGeometry:
		return "degenerate geometry"
	case KindInvalidCut:
		return "invalid cut"
	case KindPatternOverflow:
		return "pattern overflow"
	case KindBooleanFailure:
		return "boolean failure"
	case KindMultipleSplitRegions:
		return "multiple split regions"
	}
	return "unknown"
}

// Diagnostic ties a pipeline failure or warning to the region of the
// model it came from.
type Diagnostic struct {
	Kind   Kind
	Region r3.Box
	Detail string
}

func (d *Diagnostic) Error() string {
	if d.Detail == "" {
		return d.Kind.String()
	}
	return fmt.Sprintf("%v: %s", d.Kind, d.Detail)
}

// Warning reports whether the diagnostic is advisory. Warnings accompany
// a usable result; everything else aborts the stage that raised it.
func (d *Diagnostic) Warning() bool {
	return d.Kind == KindMultipleSplitRegions
}

// DefectsError rejects an input mesh that failed validation before any
// stage ran on it.
type DefectsError struct {
	Defects []mesh.Defect
}

func (e *DefectsError) Error() string {
	counts := make(map[mesh.DefectKind]int)
	for _, d := range e.Defects {
		counts[d.Kind]++
	}
	parts := make([]string, 0, len(counts))
	for k := mesh.DefectOpenEdge; k <= mesh.DefectSelfIntersection; k++ {
		if n := counts[k]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %v", n, k))
		}
	}
	return fmt.Sprintf("input mesh rejected: %s", strings.Join(parts, ", "))
}
