package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/cenkalti/backoff/v5"
	"github.com/joho/godotenv"

	"cavedrone/game"
)

const Prefix = "CAVEDRONE_"

// Config is the client configuration, read from the environment.
type Config struct {
	APIURL           string        `env:"API_URL" envDefault:"https://cave-drone-server.shtoa.xyz"`
	StreamURL        string        `env:"STREAM_URL" envDefault:"wss://cave-drone-server.shtoa.xyz/cave"`
	HandshakeTimeout time.Duration `env:"HANDSHAKE_TIMEOUT" envDefault:"10s"`
	WindowCapacity   int           `env:"WINDOW_CAPACITY" envDefault:"50"`

	TickInterval  time.Duration `env:"TICK_INTERVAL" envDefault:"16ms"`
	FieldWidth    float64       `env:"FIELD_WIDTH" envDefault:"500"`
	DroneWidth    float64       `env:"DRONE_WIDTH" envDefault:"20"`
	SegmentHeight float64       `env:"SEGMENT_HEIGHT" envDefault:"10"`
	Step          float64       `env:"STEP" envDefault:"10"`
	Descent       float64       `env:"DESCENT" envDefault:"1"`
	OriginX       float64       `env:"ORIGIN_X" envDefault:"0"`

	ReconnectTries   uint          `env:"RECONNECT_TRIES" envDefault:"0"`
	ReconnectInitial time.Duration `env:"RECONNECT_INITIAL" envDefault:"250ms"`
	ReconnectMax     time.Duration `env:"RECONNECT_MAX" envDefault:"5s"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// Load reads the given .env files (".env" when none are named) into the
// process environment and parses Config from it. Missing files are skipped;
// variables already set in the environment win.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}
	return Parse()
}

// Parse reads Config from the environment only.
func Parse() (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: Prefix}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Tuning().Validate(); err != nil {
		return Config{}, fmt.Errorf("tuning: %w", err)
	}
	return cfg, nil
}

func (c Config) Tuning() game.Tuning {
	return game.Tuning{
		FieldWidth:    c.FieldWidth,
		DroneWidth:    c.DroneWidth,
		SegmentHeight: c.SegmentHeight,
		Step:          c.Step,
		Descent:       c.Descent,
		TickInterval:  c.TickInterval,
		OriginX:       c.OriginX,
	}
}

// ReconnectBackOff builds a fresh exponential schedule for one reconnect.
func (c Config) ReconnectBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.ReconnectInitial
	b.MaxInterval = c.ReconnectMax
	return b
}

// Logger builds a text logger at the configured level.
func (c Config) Logger(w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(c.LogLevel))); err != nil {
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
