package game

import (
	"fmt"
	"time"
)

// Defaults mirror the play field of the mobile client.
const (
	DefaultFieldWidth    = 500.0
	DefaultDroneWidth    = 20.0
	DefaultSegmentHeight = 10.0
	DefaultStep          = 10.0 // per tick along a held axis
	DefaultDescent       = 1.0  // per tick, always applied while playing
	DefaultTickInterval  = 16 * time.Millisecond
)

// Tuning holds the movement and collision constants for one session.
type Tuning struct {
	FieldWidth    float64
	DroneWidth    float64
	SegmentHeight float64
	Step          float64
	Descent       float64
	TickInterval  time.Duration

	// OriginX is added to segment bounds before comparing with the drone,
	// for caves whose coordinates are relative to the field centre.
	OriginX float64
}

func DefaultTuning() Tuning {
	return Tuning{
		FieldWidth:    DefaultFieldWidth,
		DroneWidth:    DefaultDroneWidth,
		SegmentHeight: DefaultSegmentHeight,
		Step:          DefaultStep,
		Descent:       DefaultDescent,
		TickInterval:  DefaultTickInterval,
	}
}

func (t Tuning) Validate() error {
	switch {
	case t.FieldWidth <= 0:
		return fmt.Errorf("field width must be > 0, got %v", t.FieldWidth)
	case t.DroneWidth <= 0 || t.DroneWidth > t.FieldWidth:
		return fmt.Errorf("drone width must be in (0, %v], got %v", t.FieldWidth, t.DroneWidth)
	case t.SegmentHeight <= 0:
		return fmt.Errorf("segment height must be > 0, got %v", t.SegmentHeight)
	case t.Step < 0 || t.Descent < 0:
		return fmt.Errorf("step and descent must be >= 0")
	case t.TickInterval <= 0:
		return fmt.Errorf("tick interval must be > 0, got %v", t.TickInterval)
	}
	return nil
}

// MaxX is the right-most x the drone may occupy.
func (t Tuning) MaxX() float64 {
	return t.FieldWidth - t.DroneWidth
}

// Start is the drone position at the top of the field, horizontally centred.
func (t Tuning) Start() Position {
	return Position{X: t.MaxX() / 2, Y: 0}
}
