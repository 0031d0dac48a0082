// Package room runs one player's game session. A single goroutine owns all
// session state; collaborators talk to it through methods that post
// commands to its inbox.
package room

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"

	"cavedrone/cave"
	"cavedrone/errs"
	"cavedrone/game"
	"cavedrone/handshake"
	"cavedrone/network"
	"cavedrone/protocol"
	"cavedrone/scoreboard"
)

var (
	ErrBusy    = errors.New("session is not idle")
	ErrPlaying = errors.New("session is still playing")
	ErrStopped = errors.New("session stopped")

	// ErrAbandoned is returned by Start when a reset cancels the handshake.
	ErrAbandoned = errors.New("handshake abandoned")
)

// Handshaker authenticates sessions and re-authenticates dropped streams.
type Handshaker interface {
	Begin(ctx context.Context, id handshake.Identity) (handshake.Result, error)
	Reconnect(ctx context.Context, cred handshake.Credential, b backoff.BackOff, maxTries uint) (network.Channel, error)
}

type Session struct {
	inbox   chan any
	results chan any // unbuffered, so nothing is handed over once Run is gone
	notify  chan Notification
	quit    chan struct{}
	done    chan struct{}

	stopOnce sync.Once

	hs        Handshaker
	tuning    game.Tuning
	capacity  int
	score     ScorePolicy
	recorder  Recorder
	reconnect ReconnectPolicy
	newTicker func(time.Duration) Ticker
	now       func() time.Time
	baseLog   *slog.Logger
	streamOpt cave.Options

	// owned by the Run goroutine
	gen         int
	state       State
	points      int
	identity    handshake.Identity
	cred        handshake.Credential
	movement    *game.Movement
	window      *cave.Window
	stream      *cave.Stream
	events      <-chan cave.Event
	cancelRun   context.CancelFunc
	ticker      Ticker
	tickC       <-chan time.Time
	lastTick    time.Time
	verdict     game.Verdict
	lastErr     error
	starting    context.CancelFunc
	reconnectCx context.CancelFunc
	logger      *slog.Logger
}

func New(hs Handshaker, opts Options) (*Session, error) {
	t := opts.Tuning
	if t == (game.Tuning{}) {
		t = game.DefaultTuning()
	}
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("tuning: %w", err)
	}
	s := &Session{
		inbox:     make(chan any, 64),
		results:   make(chan any),
		notify:    make(chan Notification, 32),
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
		hs:        hs,
		tuning:    t,
		capacity:  opts.WindowCapacity,
		score:     opts.Score,
		recorder:  opts.Recorder,
		reconnect: opts.Reconnect,
		newTicker: opts.NewTicker,
		now:       opts.Now,
		baseLog:   opts.Logger,
		movement:  game.NewMovement(t),
	}
	if s.capacity <= 0 {
		s.capacity = protocol.WindowCapacity
	}
	if s.score == nil {
		s.score = DepthScore(t)
	}
	if s.newTicker == nil {
		s.newTicker = NewTimeTicker
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.baseLog == nil {
		s.baseLog = slog.Default()
	}
	s.logger = s.baseLog
	s.streamOpt = cave.Options{Logger: s.baseLog, Meter: opts.Meter}
	return s, nil
}

// Notifications reports state changes and stream failures. Notifications
// are dropped when the reader falls behind.
func (s *Session) Notifications() <-chan Notification { return s.notify }

// Done is closed once Run has returned.
func (s *Session) Done() <-chan struct{} { return s.done }

// Stop ends the session loop, closing any open stream and stopping the
// movement clock.
func (s *Session) Stop() {
	s.stopOnce.Do(func() { close(s.quit) })
}

// Start validates id and runs the handshake. It returns once the session is
// playing or the handshake has failed; on failure the session stays idle.
func (s *Session) Start(ctx context.Context, id handshake.Identity) error {
	id, err := id.Validate()
	if err != nil {
		return err
	}
	reply := make(chan error, 1)
	if err := s.send(start{Ctx: ctx, Identity: id, Reply: reply}); err != nil {
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-s.done:
		return ErrStopped
	}
}

// ApplyIntent holds a steering direction until it is replaced or released.
func (s *Session) ApplyIntent(d game.Direction) error {
	return s.send(intent{Direction: d})
}

func (s *Session) StopMoving(a game.Axis) error {
	return s.send(stopMoving{Axis: a})
}

// Reset returns a finished session to idle. It also abandons a handshake
// that is still in flight.
func (s *Session) Reset() error {
	reply := make(chan error, 1)
	if err := s.send(reset{Reply: reply}); err != nil {
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-s.done:
		return ErrStopped
	}
}

func (s *Session) Snapshot() Snapshot {
	reply := make(chan Snapshot, 1)
	if err := s.send(snapshot{Reply: reply}); err != nil {
		return Snapshot{}
	}
	select {
	case snap := <-reply:
		return snap
	case <-s.done:
		return Snapshot{}
	}
}

func (s *Session) send(cmd any) error {
	select {
	case <-s.quit:
		return ErrStopped
	default:
	}
	select {
	case s.inbox <- cmd:
		return nil
	case <-s.quit:
		return ErrStopped
	}
}

func (s *Session) Run() {
	defer close(s.done)
	defer s.teardown()

	for {
		select {
		case <-s.quit:
			return
		case cmd := <-s.inbox:
			s.handleCommand(cmd)
		case r := <-s.results:
			s.handleCommand(r)
		case t := <-s.tickC:
			s.tick(t)
		case ev, ok := <-s.events:
			if !ok {
				s.events = nil
				continue
			}
			s.handleStream(ev)
		}
	}
}

func (s *Session) handleCommand(cmd any) {
	switch c := cmd.(type) {
	case start:
		s.handleStart(c)
	case started:
		s.handleStarted(c)
	case intent:
		if s.state == Playing {
			s.movement.ApplyIntent(c.Direction)
		}
	case stopMoving:
		s.movement.StopMoving(c.Axis)
	case reset:
		c.Reply <- s.handleReset()
	case snapshot:
		c.Reply <- s.buildSnapshot()
	case reconnected:
		s.handleReconnected(c)
	}
}

func (s *Session) handleStart(c start) {
	if s.state != Idle || s.starting != nil {
		c.Reply <- ErrBusy
		return
	}
	s.gen++
	gen := s.gen
	ctx, cancel := context.WithCancel(c.Ctx)
	s.starting = cancel
	go func() {
		res, err := s.hs.Begin(ctx, c.Identity)
		msg := started{Gen: gen, Result: res, Err: err, Reply: c.Reply}
		select {
		case s.results <- msg:
		case <-s.quit:
			if err == nil {
				_ = res.Channel.Close()
			}
			c.Reply <- ErrStopped
		}
	}()
}

func (s *Session) handleStarted(c started) {
	if c.Gen != s.gen || s.state != Idle {
		// Abandoned by reset; the result is discarded.
		if c.Err == nil {
			_ = c.Result.Channel.Close()
		}
		c.Reply <- fmt.Errorf("%w: %w", ErrAbandoned, context.Canceled)
		return
	}
	s.starting()
	s.starting = nil
	if c.Err != nil {
		s.baseLog.Error("handshake failed", "error", c.Err)
		c.Reply <- c.Err
		return
	}
	s.enterPlaying(c.Result)
	c.Reply <- nil
}

func (s *Session) enterPlaying(res handshake.Result) {
	s.identity = res.Identity
	s.cred = res.Credential
	s.points = 0
	s.verdict = game.Clear
	s.lastErr = nil
	s.movement.Reset()
	s.window = cave.NewWindow(s.capacity)
	s.logger = s.baseLog.With("session", uuid.NewString(), "player", res.Credential.PlayerID)
	s.attach(res.Channel)

	s.ticker = s.newTicker(s.tuning.TickInterval)
	s.tickC = s.ticker.C()
	s.lastTick = s.now()

	s.setState(Playing)
	s.logger.Info("session playing", "name", s.identity.Name, "difficulty", s.identity.Difficulty)
}

// attach starts a stream over ch feeding the session window.
func (s *Session) attach(ch network.Channel) {
	opts := s.streamOpt
	opts.Logger = s.logger
	s.stream = cave.NewStream(ch, s.window, opts)
	ctx, cancel := context.WithCancel(context.Background())
	s.cancelRun = cancel
	s.events = s.stream.Events()
	go s.stream.Run(ctx)
}

func (s *Session) tick(t time.Time) {
	if s.state != Playing {
		return
	}
	elapsed := t.Sub(s.lastTick)
	s.lastTick = t
	s.movement.Tick(elapsed, func(from, to game.Position) bool {
		if delta := s.score(from, to); delta > 0 {
			s.points += delta
		}
		s.verdict = game.EvaluatePath(from, to, s.window, s.tuning)
		if s.verdict == game.Colliding {
			s.end(Lost)
			return false
		}
		return true
	})
}

func (s *Session) handleStream(ev cave.Event) {
	if s.state != Playing {
		return
	}
	switch ev.Kind {
	case cave.SegmentAdded:
		s.evaluate()
	case cave.Finished:
		if s.evaluate() == game.Clear {
			s.end(Won)
		}
	case cave.Failed:
		s.streamFailed(ev.Err)
	case cave.Closed:
		s.streamFailed(errs.Stream(errs.OpClose, errors.New("stream closed before finish")))
	}
}

// evaluate checks the drone against the window and ends the session on
// collision.
func (s *Session) evaluate() game.Verdict {
	s.verdict = game.Evaluate(s.movement.Position(), s.window, s.tuning)
	if s.verdict == game.Colliding {
		s.end(Lost)
	}
	return s.verdict
}

func (s *Session) streamFailed(err error) {
	s.lastErr = err
	s.logger.Warn("stream failed", "error", err)
	s.publish(Notification{Kind: StreamFailed, State: s.state, Score: s.points, Err: err})
	s.stopStream()
	if !s.reconnect.enabled() {
		return
	}
	gen := s.gen
	cred := s.cred
	ctx, cancel := context.WithCancel(context.Background())
	s.reconnectCx = cancel
	b := s.reconnect.backOff()
	go func() {
		ch, err := s.hs.Reconnect(ctx, cred, b, s.reconnect.MaxTries)
		select {
		case s.results <- reconnected{Gen: gen, Channel: ch, Err: err}:
		case <-s.quit:
			if err == nil {
				_ = ch.Close()
			}
		}
	}()
}

func (s *Session) handleReconnected(c reconnected) {
	if c.Gen != s.gen || s.state != Playing {
		if c.Err == nil {
			_ = c.Channel.Close()
		}
		return
	}
	s.reconnectCx = nil
	if c.Err != nil {
		s.lastErr = errs.Stream(errs.OpDial, c.Err)
		s.logger.Warn("reconnect gave up", "error", c.Err)
		s.publish(Notification{Kind: StreamFailed, State: s.state, Score: s.points, Err: s.lastErr})
		return
	}
	s.logger.Info("stream reconnected")
	s.attach(c.Channel)
	s.publish(Notification{Kind: Reconnected, State: s.state, Score: s.points})
}

func (s *Session) end(final State) {
	s.stopPlaying()
	s.setState(final)
	s.logger.Info("session ended", "state", final, "score", s.points)
	if final == Won && s.recorder != nil {
		s.recorder.Record(scoreboard.Entry{Name: s.identity.Name, Difficulty: s.identity.Difficulty, Score: s.points})
	}
}

func (s *Session) handleReset() error {
	if s.state == Playing {
		return ErrPlaying
	}
	s.gen++
	if s.starting != nil {
		s.starting()
		s.starting = nil
	}
	s.stopPlaying()
	s.movement.Reset()
	s.window = nil
	s.points = 0
	s.identity = handshake.Identity{}
	s.cred = handshake.Credential{}
	s.verdict = game.Clear
	s.lastErr = nil
	s.logger = s.baseLog
	if s.state != Idle {
		s.setState(Idle)
	}
	return nil
}

// stopPlaying halts the clock and the stream. No tick or frame is handled
// after it returns.
func (s *Session) stopPlaying() {
	if s.ticker != nil {
		s.ticker.Stop()
		s.ticker = nil
		s.tickC = nil
	}
	s.movement.StopMoving(game.AxisBoth)
	if s.reconnectCx != nil {
		s.reconnectCx()
		s.reconnectCx = nil
	}
	s.stopStream()
}

func (s *Session) stopStream() {
	if s.stream != nil {
		s.stream.Stop()
		s.cancelRun()
		s.stream = nil
		s.cancelRun = nil
	}
	s.events = nil
}

func (s *Session) teardown() {
	if s.starting != nil {
		s.starting()
		s.starting = nil
	}
	s.stopPlaying()
}

func (s *Session) setState(st State) {
	s.state = st
	s.publish(Notification{Kind: StateChanged, State: st, Score: s.points})
}

func (s *Session) publish(n Notification) {
	select {
	case s.notify <- n:
	default:
	}
}

func (s *Session) buildSnapshot() Snapshot {
	snap := Snapshot{
		State:    s.state,
		Score:    s.points,
		Identity: s.identity,
		Position: s.movement.Position(),
		Verdict:  s.verdict,
		Starting: s.starting != nil,
		Err:      s.lastErr,
	}
	if s.window != nil {
		snap.Window = s.window.Snapshot()
	}
	if s.stream != nil {
		snap.Discarded = s.stream.Discarded()
	}
	return snap
}
