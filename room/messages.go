package room

import (
	"context"

	"cavedrone/game"
	"cavedrone/handshake"
	"cavedrone/network"
)

// Commands sent to the session loop by collaborators.

type start struct {
	Ctx      context.Context
	Identity handshake.Identity
	Reply    chan<- error
}

type intent struct {
	Direction game.Direction
}

type stopMoving struct {
	Axis game.Axis
}

type reset struct {
	Reply chan<- error
}

type snapshot struct {
	Reply chan<- Snapshot
}

// Results posted back to the loop by its own background work.

type started struct {
	Gen    int
	Result handshake.Result
	Err    error
	Reply  chan<- error
}

type reconnected struct {
	Gen     int
	Channel network.Channel
	Err     error
}
