package room

import (
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel/metric"

	"cavedrone/game"
	"cavedrone/scoreboard"
)

// ScorePolicy returns the points earned by moving from prev to next.
// Negative results are ignored so the score never decreases.
type ScorePolicy func(prev, next game.Position) int

// DepthScore awards one point per newly reached depth step.
func DepthScore(t game.Tuning) ScorePolicy {
	return func(prev, next game.Position) int {
		return game.DepthIndex(next.Y, t) - game.DepthIndex(prev.Y, t)
	}
}

// Recorder receives the record of each won session.
type Recorder interface {
	Record(e scoreboard.Entry)
}

// Ticker is the movement clock.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct{ t *time.Ticker }

func (t timeTicker) C() <-chan time.Time { return t.t.C }
func (t timeTicker) Stop()               { t.t.Stop() }

func NewTimeTicker(d time.Duration) Ticker {
	return timeTicker{time.NewTicker(d)}
}

// ReconnectPolicy controls what happens when the stream fails mid-session.
// A zero MaxTries reports the failure and leaves the session as it is.
type ReconnectPolicy struct {
	MaxTries   uint
	NewBackOff func() backoff.BackOff
}

func (p ReconnectPolicy) enabled() bool { return p.MaxTries > 0 }

func (p ReconnectPolicy) backOff() backoff.BackOff {
	if p.NewBackOff != nil {
		return p.NewBackOff()
	}
	return backoff.NewExponentialBackOff()
}

type Options struct {
	Tuning         game.Tuning
	WindowCapacity int
	Score          ScorePolicy
	Recorder       Recorder
	Reconnect      ReconnectPolicy
	NewTicker      func(time.Duration) Ticker
	Now            func() time.Time
	Logger         *slog.Logger
	Meter          metric.Meter
}
