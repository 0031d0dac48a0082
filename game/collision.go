package game

import (
	"math"

	"cavedrone/cave"
)

type Verdict uint8

const (
	Clear Verdict = iota
	Colliding
)

func (v Verdict) String() string {
	if v == Colliding {
		return "colliding"
	}
	return "clear"
}

// SegmentLookup is the read side of a geometry window.
type SegmentLookup interface {
	At(index int) (cave.Segment, bool)
}

// DepthIndex is the segment index under a drone at depth y.
func DepthIndex(y float64, t Tuning) int {
	return int(math.Floor(y / t.SegmentHeight))
}

// Evaluate reports whether the drone at p is outside the cave gap at its
// current depth. Missing geometry is always Clear.
func Evaluate(p Position, w SegmentLookup, t Tuning) Verdict {
	return evaluateRow(p.X, DepthIndex(p.Y, t), w, t)
}

// EvaluatePath checks one step from "from" to "to" against every row the
// drone enters on the way, so a step taller than a segment cannot skip one.
// Rows are checked at the destination x.
func EvaluatePath(from, to Position, w SegmentLookup, t Tuning) Verdict {
	first, last := DepthIndex(from.Y, t), DepthIndex(to.Y, t)
	for idx := first; idx <= last; idx++ {
		if evaluateRow(to.X, idx, w, t) == Colliding {
			return Colliding
		}
	}
	return Clear
}

func evaluateRow(x float64, index int, w SegmentLookup, t Tuning) Verdict {
	seg, ok := w.At(index)
	if !ok {
		return Clear
	}
	left := float64(seg.Left) + t.OriginX
	right := float64(seg.Right) + t.OriginX
	if x < left || x+t.DroneWidth > right {
		return Colliding
	}
	return Clear
}
