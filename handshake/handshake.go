// Package handshake authenticates a play session: it creates the session over
// REST, assembles the sharded token and opens the authenticated stream.
package handshake

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"cavedrone/errs"
	"cavedrone/network"
	"cavedrone/protocol"
)

const DefaultTimeout = 10 * time.Second

// Dialer opens the streaming channel.
type Dialer interface {
	Dial(ctx context.Context, url string) (network.Channel, error)
}

type Config struct {
	APIURL    string
	StreamURL string
	Timeout   time.Duration // bounds each Begin and each Authenticate call
	Client    Doer          // defaults to http.DefaultClient
	Dialer    Dialer        // defaults to a network.Dialer
	Logger    *slog.Logger
}

type Handshake struct {
	apiURL    string
	streamURL string
	timeout   time.Duration
	client    Doer
	dialer    Dialer
	tokens    *TokenAssembler
	logger    *slog.Logger
}

func New(cfg Config) *Handshake {
	h := &Handshake{
		apiURL:    strings.TrimRight(cfg.APIURL, "/"),
		streamURL: cfg.StreamURL,
		timeout:   cfg.Timeout,
		client:    cfg.Client,
		dialer:    cfg.Dialer,
		logger:    cfg.Logger,
	}
	if h.timeout <= 0 {
		h.timeout = DefaultTimeout
	}
	if h.client == nil {
		h.client = http.DefaultClient
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	if h.dialer == nil {
		h.dialer = &network.Dialer{HandshakeTimeout: h.timeout, Logger: h.logger}
	}
	h.tokens = &TokenAssembler{Client: h.client, BaseURL: h.apiURL, Shards: protocol.ShardCount}
	return h
}

// Result is a credential together with the channel it authenticated.
type Result struct {
	Identity   Identity
	Credential Credential
	Channel    network.Channel
}

// Begin runs the whole handshake. Nothing touches the network when id does
// not validate. On success exactly one auth frame has been sent on the
// returned channel.
func (h *Handshake) Begin(ctx context.Context, id Identity) (Result, error) {
	id, err := id.Validate()
	if err != nil {
		return Result{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	playerID, err := h.initSession(ctx, id)
	if err != nil {
		return Result{}, bounded(ctx, err)
	}
	token, err := h.tokens.Assemble(ctx, playerID)
	if err != nil {
		return Result{}, bounded(ctx, err)
	}
	cred := Credential{PlayerID: playerID, Token: token}
	ch, err := h.open(ctx, cred)
	if err != nil {
		return Result{}, bounded(ctx, err)
	}
	h.logger.Info("handshake complete", "player", playerID)
	return Result{Identity: id, Credential: cred, Channel: ch}, nil
}

func (h *Handshake) initSession(ctx context.Context, id Identity) (string, error) {
	body, err := protocol.Encode(protocol.InitRequest{Name: id.Name, Complexity: id.Difficulty})
	if err != nil {
		return "", errs.Handshake(errs.OpInit, "encode request", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.apiURL+protocol.PathInit, bytes.NewReader(body))
	if err != nil {
		return "", errs.Handshake(errs.OpInit, "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := doJSON[protocol.InitResponse](h.client, req, errs.OpInit)
	if err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", errs.Handshake(errs.OpInit, "response has no id", nil)
	}
	return resp.ID, nil
}

// Authenticate opens a fresh channel for an existing credential.
func (h *Handshake) Authenticate(ctx context.Context, cred Credential) (network.Channel, error) {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()
	ch, err := h.open(ctx, cred)
	if err != nil {
		return nil, bounded(ctx, err)
	}
	return ch, nil
}

// open dials and sends the auth frame as the first frame once the channel
// reports it is open.
func (h *Handshake) open(ctx context.Context, cred Credential) (network.Channel, error) {
	ch, err := h.dialer.Dial(ctx, h.streamURL)
	if err != nil {
		return nil, errs.Handshake(errs.OpDial, "open stream", err)
	}
	select {
	case ev, ok := <-ch.Events():
		if !ok || ev.Kind != network.EventOpened {
			_ = ch.Close()
			return nil, errs.Handshake(errs.OpAuth, "stream did not open", ev.Err)
		}
	case <-ctx.Done():
		_ = ch.Close()
		return nil, errs.Handshake(errs.OpAuth, "waiting for stream", ctx.Err())
	}
	if err := ch.Send(protocol.AuthFrame(cred.PlayerID, cred.Token)); err != nil {
		_ = ch.Close()
		return nil, errs.Handshake(errs.OpAuth, "send auth frame", err)
	}
	return ch, nil
}

// Reconnect retries Authenticate with the given backoff until it succeeds,
// maxTries attempts are used up or ctx is done.
func (h *Handshake) Reconnect(ctx context.Context, cred Credential, b backoff.BackOff, maxTries uint) (network.Channel, error) {
	attempt := 0
	return backoff.Retry(ctx, func() (network.Channel, error) {
		attempt++
		ch, err := h.Authenticate(ctx, cred)
		if err != nil && ctx.Err() != nil {
			return nil, backoff.Permanent(err)
		}
		return ch, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(maxTries),
		backoff.WithNotify(func(err error, wait time.Duration) {
			h.logger.Warn("reconnect failed", "attempt", attempt, "retry_in", wait, "error", err)
		}),
	)
}

// bounded reports a handshake that ran out of time as OpTimeout.
func bounded(ctx context.Context, err error) error {
	if errors.Is(err, errs.ErrValidation) {
		return err
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return errs.Handshake(errs.OpTimeout, "handshake timed out", err)
	}
	return err
}
