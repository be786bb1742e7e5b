package geom

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Cut segments are chained into closed polygonal loops by quantizing
// endpoints onto an integer lattice of WeldTol pitch, the same scheme
// used for vertex welding. Duplicate segments (produced once per side
// when a triangle edge lies exactly on the cutting plane) collapse first.

type latticeKey [3]int64

func keyOf(v r3.Vec, tol float64) latticeKey {
	return latticeKey{
		int64(math.Round(v.X / tol)),
		int64(math.Round(v.Y / tol)),
		int64(math.Round(v.Z / tol)),
	}
}

// AssembleLoops chains segments into closed loops. Segments shorter than
// tol are discarded. Returns ErrOpenLoop when a chain cannot be closed.
func AssembleLoops(segs []Segment, tol float64) ([][]r3.Vec, error) {
	keys := make([][2]latticeKey, len(segs))
	seen := make(map[[2]latticeKey]bool, len(segs))
	incident := make(map[latticeKey][]end, 2*len(segs))
	used := make([]bool, len(segs))
	n := 0
	for i, s := range segs {
		ka, kb := keyOf(s.A, tol), keyOf(s.B, tol)
		if ka == kb {
			used[i] = true // zero length at weld resolution
			continue
		}
		uk := [2]latticeKey{ka, kb}
		if kb[0] < ka[0] || (kb[0] == ka[0] && (kb[1] < ka[1] || (kb[1] == ka[1] && kb[2] < ka[2]))) {
			uk = [2]latticeKey{kb, ka}
		}
		if seen[uk] {
			used[i] = true // duplicate from the opposite side
			continue
		}
		seen[uk] = true
		keys[i] = [2]latticeKey{ka, kb}
		incident[ka] = append(incident[ka], end{seg: i, pt: 0})
		incident[kb] = append(incident[kb], end{seg: i, pt: 1})
		n++
	}
	if n == 0 {
		return nil, nil
	}
	var loops [][]r3.Vec
	for i := range segs {
		if used[i] {
			continue
		}
		used[i] = true
		start := keys[i][0]
		cur := keys[i][1]
		loop := []r3.Vec{segs[i].A, segs[i].B}
		for cur != start {
			next, ok := takeNext(incident[cur], used)
			if !ok {
				return nil, fmt.Errorf("%w: %d segments stranded at chain of length %d",
					ErrOpenLoop, remaining(used), len(loop))
			}
			used[next.seg] = true
			if next.pt == 0 {
				loop = append(loop, segs[next.seg].B)
				cur = keys[next.seg][1]
			} else {
				loop = append(loop, segs[next.seg].A)
				cur = keys[next.seg][0]
			}
		}
		// Last appended point closed back onto the start; drop it.
		loop = loop[:len(loop)-1]
		if len(loop) >= 3 {
			loops = append(loops, loop)
		}
	}
	return loops, nil
}

func takeNext(ends []end, used []bool) (end, bool) {
	for _, e := range ends {
		if !used[e.seg] {
			return e, true
		}
	}
	return end{}, false
}

// end identifies one endpoint of a segment: pt is 0 for A, 1 for B.
type end struct {
	seg int
	pt  int
}

func remaining(used []bool) int {
	n := 0
	for _, u := range used {
		if !u {
			n++
		}
	}
	return n
}
