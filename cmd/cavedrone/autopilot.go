package main

import (
	"cavedrone/game"
	"cavedrone/room"
)

// lookahead is how many rows below the drone the autopilot aims for.
const lookahead = 2

// steer picks the horizontal intent that moves the drone toward the centre of
// the gap a few rows ahead. None means hold position.
func steer(s room.Snapshot, t game.Tuning) game.Direction {
	idx := game.DepthIndex(s.Position.Y, t)
	seg, ok := s.Window.At(idx + lookahead)
	if !ok {
		if seg, ok = s.Window.At(idx); !ok {
			return game.None
		}
	}
	target := float64(seg.Left+seg.Right)/2 + t.OriginX
	centre := s.Position.X + t.DroneWidth/2
	switch {
	case centre < target-t.Step/2:
		return game.Right
	case centre > target+t.Step/2:
		return game.Left
	}
	return game.None
}
