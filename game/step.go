package game

// climbFloor is the share of the base descent kept while up is held.
const climbFloor = 0.25

// Step advances p by one tick of the held intents.
func Step(p Position, held Held, t Tuning) Position {
	switch held.Horizontal {
	case Left:
		p.X -= t.Step
	case Right:
		p.X += t.Step
	}
	p.X = clamp(p.X, 0, t.MaxX())

	dy := t.Descent
	switch held.Vertical {
	case Down:
		dy += t.Step
	case Up:
		dy = max(dy-t.Step, t.Descent*climbFloor)
	}
	p.Y += dy
	return p
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
