package room

import (
	"cavedrone/cave"
	"cavedrone/game"
	"cavedrone/handshake"
)

type State uint8

const (
	Idle State = iota
	Playing
	Won
	Lost
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Playing:
		return "playing"
	case Won:
		return "won"
	case Lost:
		return "lost"
	}
	return "unknown"
}

// Snapshot is everything a renderer needs, taken at one instant.
type Snapshot struct {
	State     State
	Score     int
	Identity  handshake.Identity
	Position  game.Position
	Window    cave.Snapshot
	Verdict   game.Verdict
	Starting  bool  // a handshake is in flight
	Err       error // last stream error of this session
	Discarded int64 // malformed frames dropped by the current stream
}

type NotificationKind uint8

const (
	StateChanged NotificationKind = iota
	StreamFailed
	Reconnected
)

type Notification struct {
	Kind  NotificationKind
	State State
	Score int
	Err   error
}
