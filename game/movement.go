package game

import "time"

// Movement integrates held intents into the drone position at a fixed
// cadence. It is not safe for concurrent use; the session loop owns it.
type Movement struct {
	tuning  Tuning
	pos     Position
	held    Held
	pending time.Duration
}

func NewMovement(t Tuning) *Movement {
	return &Movement{tuning: t, pos: t.Start()}
}

// ApplyIntent holds d, replacing whatever was held on the same axis.
func (m *Movement) ApplyIntent(d Direction) {
	switch d.Axis() {
	case AxisVertical:
		m.held.Vertical = d
	default:
		m.held.Horizontal = d
	}
}

func (m *Movement) StopMoving(a Axis) {
	switch a {
	case AxisHorizontal:
		m.held.Horizontal = None
	case AxisVertical:
		m.held.Vertical = None
	default:
		m.held = Held{}
	}
}

// Tick advances by as many whole tick intervals as fit in elapsed plus any
// remainder carried from earlier calls, one step at a time. When each is
// non-nil it sees every step; returning false stops stepping and drops the
// intervals still due. Tick returns the number of steps applied.
func (m *Movement) Tick(elapsed time.Duration, each func(from, to Position) bool) int {
	if elapsed <= 0 {
		return 0
	}
	m.pending += elapsed
	n := int(m.pending / m.tuning.TickInterval)
	m.pending -= time.Duration(n) * m.tuning.TickInterval
	for i := 0; i < n; i++ {
		from := m.pos
		m.pos = Step(from, m.held, m.tuning)
		if each != nil && !each(from, m.pos) {
			m.pending = 0
			return i + 1
		}
	}
	return n
}

// Reset returns the drone to the start position with nothing held.
func (m *Movement) Reset() {
	m.pos = m.tuning.Start()
	m.held = Held{}
	m.pending = 0
}

func (m *Movement) Position() Position { return m.pos }

func (m *Movement) Held() Held { return m.held }
