// Command cavedrone plays one headless cave-drone session against the game
// server and prints the result.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel"

	"cavedrone/config"
	"cavedrone/errs"
	"cavedrone/game"
	"cavedrone/handshake"
	"cavedrone/network"
	"cavedrone/room"
	"cavedrone/scoreboard"
)

func main() {
	name := flag.String("name", "drone", "player name")
	difficulty := flag.Int("difficulty", 1, "cave difficulty (0-10)")
	envFile := flag.String("env", ".env", "optional dotenv file")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		config.Exitf("config: %v", err)
	}
	logger := cfg.Logger(os.Stderr)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	board := scoreboard.New()
	if err := run(ctx, cfg, handshake.Identity{Name: *name, Difficulty: *difficulty}, board, logger); err != nil {
		config.Exitf("cavedrone: %v", err)
	}
	for i, e := range board.Top(10) {
		fmt.Printf("%2d. %-16s difficulty=%d score=%d\n", i+1, e.Name, e.Difficulty, e.Score)
	}
}

func run(ctx context.Context, cfg config.Config, id handshake.Identity, rec room.Recorder, logger *slog.Logger) error {
	tuning := cfg.Tuning()
	hs := handshake.New(handshake.Config{
		APIURL:    cfg.APIURL,
		StreamURL: cfg.StreamURL,
		Timeout:   cfg.HandshakeTimeout,
		Dialer:    &network.Dialer{HandshakeTimeout: cfg.HandshakeTimeout, Logger: logger},
		Logger:    logger,
	})
	s, err := room.New(hs, room.Options{
		Tuning:         tuning,
		WindowCapacity: cfg.WindowCapacity,
		Recorder:       rec,
		Reconnect: room.ReconnectPolicy{
			MaxTries:   cfg.ReconnectTries,
			NewBackOff: func() backoff.BackOff { return cfg.ReconnectBackOff() },
		},
		Logger: logger,
		Meter:  otel.Meter("cavedrone"),
	})
	if err != nil {
		return err
	}
	go s.Run()
	defer s.Stop()

	if err := s.Start(ctx, id); err != nil {
		return err
	}

	pilot := time.NewTicker(tuning.TickInterval)
	defer pilot.Stop()
	held := game.None
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.Done():
			return room.ErrStopped
		case n := <-s.Notifications():
			switch n.Kind {
			case room.StateChanged:
				if n.State == room.Won || n.State == room.Lost {
					fmt.Printf("%s: %s with score %d\n", id.Name, n.State, n.Score)
					return nil
				}
			case room.StreamFailed:
				if cfg.ReconnectTries == 0 || errs.OpOf(n.Err) == errs.OpDial {
					return fmt.Errorf("stream lost at score %d: %w", n.Score, n.Err)
				}
			}
		case <-pilot.C:
			d := steer(s.Snapshot(), tuning)
			if d == held {
				continue
			}
			held = d
			if d == game.None {
				err = s.StopMoving(game.AxisHorizontal)
			} else {
				err = s.ApplyIntent(d)
			}
			if errors.Is(err, room.ErrStopped) {
				return err
			}
		}
	}
}
