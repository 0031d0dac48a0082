package cave

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"cavedrone/errs"
	"cavedrone/network"
	"cavedrone/protocol"
)

const meterName = "cavedrone/cave"

type EventKind uint8

const (
	SegmentAdded EventKind = iota
	Finished
	Failed
	Closed
)

func (k EventKind) String() string {
	switch k {
	case SegmentAdded:
		return "segment"
	case Finished:
		return "finished"
	case Failed:
		return "failed"
	case Closed:
		return "closed"
	}
	return "unknown"
}

type Event struct {
	Kind    EventKind
	Segment Segment
	Err     error
}

type Options struct {
	Logger *slog.Logger
	Meter  metric.Meter // defaults to the global otel meter provider
}

// Stream reads an authenticated channel and feeds validated segments into a
// window. It is inert once it has stopped, finished or failed.
type Stream struct {
	ch     network.Channel
	window *Window
	out    chan Event
	done   chan struct{}
	closed chan struct{}

	mu        sync.Mutex
	stopOnce  sync.Once
	stopped   atomic.Bool
	discarded atomic.Int64

	logger    *slog.Logger
	malformed metric.Int64Counter
	accepted  metric.Int64Counter
}

func NewStream(ch network.Channel, w *Window, opts Options) *Stream {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	meter := opts.Meter
	if meter == nil {
		meter = otel.Meter(meterName)
	}
	s := &Stream{
		ch:     ch,
		window: w,
		out:    make(chan Event, 16),
		done:   make(chan struct{}),
		closed: make(chan struct{}),
		logger: logger,
	}
	s.malformed = counter(meter, "cavedrone.frames.malformed", "Inbound frames discarded as malformed.", logger)
	s.accepted = counter(meter, "cavedrone.segments.accepted", "Cave segments appended to the window.", logger)
	return s
}

func counter(m metric.Meter, name, desc string, logger *slog.Logger) metric.Int64Counter {
	c, err := m.Int64Counter(name, metric.WithDescription(desc))
	if err != nil {
		logger.Warn("create counter", "name", name, "error", err)
		c, _ = noop.NewMeterProvider().Meter(meterName).Int64Counter(name)
	}
	return c
}

// Events delivers stream outcomes in arrival order. It is closed when Run
// returns.
func (s *Stream) Events() <-chan Event { return s.out }

func (s *Stream) Window() *Window { return s.window }

// Discarded is the number of malformed frames dropped so far.
func (s *Stream) Discarded() int64 { return s.discarded.Load() }

// Run processes channel events until the channel ends, the server sends the
// finished sentinel, Stop is called or ctx is done.
func (s *Stream) Run(ctx context.Context) {
	defer close(s.out)
	events := s.ch.Events()
	for {
		var ev network.Event
		var ok bool
		select {
		case <-ctx.Done():
			s.Stop()
			return
		case <-s.done:
			return
		case ev, ok = <-events:
		}
		if !ok {
			ev = network.Event{Kind: network.EventClosed}
		}
		done, finished := s.process(ctx, ev)
		if finished {
			if err := s.ch.Close(); err != nil {
				s.logger.Debug("close after finished", "error", err)
			}
		}
		if done {
			return
		}
	}
}

// process handles one channel event under the stream lock, so that Stop
// cannot return while a frame is half applied.
func (s *Stream) process(ctx context.Context, ev network.Event) (done, finished bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped.Load() {
		return true, false
	}
	switch ev.Kind {
	case network.EventMessage:
		return s.handle(ctx, ev.Text)
	case network.EventFailed:
		s.stopped.Store(true)
		err := ev.Err
		if err == nil {
			err = errs.Stream(errs.OpRead, nil)
		}
		s.emit(Event{Kind: Failed, Err: err})
		return true, false
	case network.EventClosed:
		s.stopped.Store(true)
		s.emit(Event{Kind: Closed})
		return true, false
	}
	return false, false
}

func (s *Stream) handle(ctx context.Context, text string) (done, finished bool) {
	frame := protocol.ParseFrame(text)
	switch frame.Kind {
	case protocol.FrameFinished:
		s.stopped.Store(true)
		s.emit(Event{Kind: Finished})
		return true, true
	case protocol.FrameSegment:
		seg, err := s.window.Append(frame.Left, frame.Right)
		if err != nil {
			s.discard(ctx, text)
			return false, false
		}
		s.accepted.Add(ctx, 1)
		s.emit(Event{Kind: SegmentAdded, Segment: seg})
	default:
		s.discard(ctx, text)
	}
	return false, false
}

func (s *Stream) discard(ctx context.Context, text string) {
	s.discarded.Add(1)
	s.malformed.Add(ctx, 1)
	s.logger.Debug("discarded frame", "error", errs.MalformedFrame(text))
}

// Stop detaches the stream: no frame is applied to the window after it
// returns. The channel is closed with a normal closure in the background;
// Closed reports when that is done.
func (s *Stream) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
		s.mu.Lock()
		s.stopped.Store(true)
		s.mu.Unlock()
		go func() {
			defer close(s.closed)
			if err := s.ch.Close(); err != nil {
				s.logger.Debug("close channel", "error", err)
			}
		}()
	})
}

// Closed is closed once the channel close started by Stop has returned.
func (s *Stream) Closed() <-chan struct{} { return s.closed }

func (s *Stream) emit(ev Event) {
	select {
	case s.out <- ev:
	case <-s.done:
	}
}
