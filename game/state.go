package game

// Position is the drone's location. Y grows with depth.
type Position struct {
	X, Y float64
}

type Axis uint8

const (
	AxisHorizontal Axis = iota
	AxisVertical
	AxisBoth
)

// Direction is a logical steering intent.
type Direction uint8

const (
	None Direction = iota
	Left
	Right
	Up
	Down
)

func (d Direction) Axis() Axis {
	switch d {
	case Up, Down:
		return AxisVertical
	default:
		return AxisHorizontal
	}
}

func (d Direction) String() string {
	switch d {
	case Left:
		return "left"
	case Right:
		return "right"
	case Up:
		return "up"
	case Down:
		return "down"
	}
	return "none"
}

// ParseDirection maps "left", "right", "up" and "down" to a Direction.
func ParseDirection(s string) (Direction, bool) {
	for _, d := range []Direction{Left, Right, Up, Down} {
		if d.String() == s {
			return d, true
		}
	}
	return None, false
}

// Held is the set of intents currently held, at most one per axis.
type Held struct {
	Horizontal Direction
	Vertical   Direction
}
