package handshake

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cavedrone/errs"
	"cavedrone/network"
)

type fakeChannel struct {
	events chan network.Event

	mu     sync.Mutex
	sent   []string
	closed bool
}

func openChannel() *fakeChannel {
	ch := &fakeChannel{events: make(chan network.Event, 8)}
	ch.events <- network.Event{Kind: network.EventOpened}
	return ch
}

func (f *fakeChannel) Events() <-chan network.Event { return f.events }

func (f *fakeChannel) Send(text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, text)
	return nil
}

func (f *fakeChannel) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeChannel) frames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

type fakeDialer struct {
	mu    sync.Mutex
	dials int
	fail  int // fail this many dials before succeeding
	chans []*fakeChannel
	open  func() *fakeChannel
}

func (d *fakeDialer) Dial(ctx context.Context, url string) (network.Channel, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if d.dials <= d.fail {
		return nil, errors.New("connection refused")
	}
	mk := d.open
	if mk == nil {
		mk = openChannel
	}
	ch := mk()
	d.chans = append(d.chans, ch)
	return ch, nil
}

func (d *fakeDialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

// api is a fake session server: /init returns id "p1", shard n returns
// "c<n>" unless overridden.
type api struct {
	requests  atomic.Int32
	initCode  int
	initBody  string
	shardCode map[int]int
	shardBody map[int]string
	delay     map[int]time.Duration
	gotInit   chan map[string]any
}

func newAPI() *api {
	return &api{
		shardCode: map[int]int{},
		shardBody: map[int]string{},
		delay:     map[int]time.Duration{},
		gotInit:   make(chan map[string]any, 1),
	}
}

func (a *api) server(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /init", func(w http.ResponseWriter, r *http.Request) {
		a.requests.Add(1)
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		select {
		case a.gotInit <- body:
		default:
		}
		if a.initCode != 0 {
			w.WriteHeader(a.initCode)
		}
		if a.initBody != "" {
			_, _ = w.Write([]byte(a.initBody))
			return
		}
		_, _ = w.Write([]byte(`{"id":"p1"}`))
	})
	mux.HandleFunc("GET /token/{n}", func(w http.ResponseWriter, r *http.Request) {
		a.requests.Add(1)
		n, _ := strconv.Atoi(r.PathValue("n"))
		if r.URL.Query().Get("id") != "p1" {
			http.Error(w, "unknown player", http.StatusNotFound)
			return
		}
		if d := a.delay[n]; d > 0 {
			select {
			case <-time.After(d):
			case <-r.Context().Done():
				return
			}
		}
		if code := a.shardCode[n]; code != 0 {
			w.WriteHeader(code)
		}
		if body, ok := a.shardBody[n]; ok {
			_, _ = w.Write([]byte(body))
			return
		}
		_, _ = fmt.Fprintf(w, `{"chunk":"c%d"}`, n)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newHandshake(srv *httptest.Server, d Dialer) *Handshake {
	return New(Config{APIURL: srv.URL, StreamURL: "ws://cave.test/cave", Client: srv.Client(), Dialer: d, Timeout: 2 * time.Second})
}

func TestBeginSendsSingleAuthFrameWithOrderedToken(t *testing.T) {
	a := newAPI()
	// Shard 1 is slowest so completion order differs from shard order.
	a.delay[1] = 50 * time.Millisecond
	a.delay[2] = 20 * time.Millisecond
	d := &fakeDialer{}
	h := newHandshake(a.server(t), d)

	res, err := h.Begin(context.Background(), Identity{Name: "  Ann ", Difficulty: 3})
	require.NoError(t, err)

	assert.Equal(t, Credential{PlayerID: "p1", Token: "c1c2c3c4"}, res.Credential)
	assert.Equal(t, "Ann", res.Identity.Name)
	require.Len(t, d.chans, 1)
	assert.Equal(t, []string{"player:p1-c1c2c3c4"}, d.chans[0].frames())
	assert.Same(t, d.chans[0], res.Channel)

	body := <-a.gotInit
	assert.Equal(t, "Ann", body["name"])
	assert.Equal(t, float64(3), body["complexity"])
}

func TestBeginValidationMakesNoRequests(t *testing.T) {
	a := newAPI()
	d := &fakeDialer{}
	h := newHandshake(a.server(t), d)

	for _, id := range []Identity{
		{Name: "   ", Difficulty: 3},
		{Name: "Ann", Difficulty: -1},
		{Name: "Ann", Difficulty: 11},
	} {
		_, err := h.Begin(context.Background(), id)
		require.Error(t, err)
		assert.ErrorIs(t, err, errs.ErrValidation)
		assert.NotErrorIs(t, err, errs.ErrHandshake)
	}
	assert.Equal(t, int32(0), a.requests.Load())
	assert.Equal(t, 0, d.count())
}

func TestBeginShardFailureSendsNoAuthFrame(t *testing.T) {
	a := newAPI()
	a.shardCode[3] = http.StatusInternalServerError
	a.shardBody[3] = "boom"
	d := &fakeDialer{}
	h := newHandshake(a.server(t), d)

	_, err := h.Begin(context.Background(), Identity{Name: "Ann", Difficulty: 3})
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrHandshake)

	var e *errs.Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, errs.OpToken, e.Op)
	assert.Equal(t, http.StatusInternalServerError, e.Status)
	assert.Equal(t, "boom", e.Body)
	assert.Equal(t, 0, d.count(), "stream must not be opened")
}

func TestBeginShardMissingChunk(t *testing.T) {
	a := newAPI()
	a.shardBody[2] = `{"piece":"x"}`
	d := &fakeDialer{}
	h := newHandshake(a.server(t), d)

	_, err := h.Begin(context.Background(), Identity{Name: "Ann", Difficulty: 3})
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrHandshake)
	assert.Contains(t, err.Error(), "no chunk")
	assert.Equal(t, 0, d.count())
}

func TestBeginInitFailureCarriesStatusAndBody(t *testing.T) {
	a := newAPI()
	a.initCode = http.StatusServiceUnavailable
	a.initBody = "maintenance"
	h := newHandshake(a.server(t), &fakeDialer{})

	_, err := h.Begin(context.Background(), Identity{Name: "Ann", Difficulty: 3})
	var e *errs.Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, errs.CodeHandshake, e.Code)
	assert.Equal(t, errs.OpInit, e.Op)
	assert.Equal(t, http.StatusServiceUnavailable, e.Status)
	assert.Equal(t, "maintenance", e.Body)
}

func TestBeginInitWithoutID(t *testing.T) {
	a := newAPI()
	a.initBody = `{"name":"Ann"}`
	d := &fakeDialer{}
	h := newHandshake(a.server(t), d)

	_, err := h.Begin(context.Background(), Identity{Name: "Ann", Difficulty: 3})
	assert.ErrorIs(t, err, errs.ErrHandshake)
	assert.Equal(t, errs.OpInit, errs.OpOf(err))
	assert.Equal(t, 0, d.count())
}

func TestBeginTimesOut(t *testing.T) {
	a := newAPI()
	a.delay[4] = 5 * time.Second
	srv := a.server(t)
	h := New(Config{APIURL: srv.URL, StreamURL: "ws://cave.test/cave", Client: srv.Client(), Dialer: &fakeDialer{}, Timeout: 50 * time.Millisecond})

	start := time.Now()
	_, err := h.Begin(context.Background(), Identity{Name: "Ann", Difficulty: 3})
	assert.ErrorIs(t, err, errs.ErrHandshake)
	assert.Equal(t, errs.OpTimeout, errs.OpOf(err))
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestBeginStreamNeverOpens(t *testing.T) {
	a := newAPI()
	d := &fakeDialer{open: func() *fakeChannel {
		ch := &fakeChannel{events: make(chan network.Event)}
		close(ch.events)
		return ch
	}}
	h := newHandshake(a.server(t), d)

	_, err := h.Begin(context.Background(), Identity{Name: "Ann", Difficulty: 3})
	assert.ErrorIs(t, err, errs.ErrHandshake)
	assert.Equal(t, errs.OpAuth, errs.OpOf(err))
	require.Len(t, d.chans, 1)
	assert.Empty(t, d.chans[0].frames())
	assert.True(t, d.chans[0].closed)
}

func TestBeginDialFailure(t *testing.T) {
	a := newAPI()
	h := newHandshake(a.server(t), &fakeDialer{fail: 1})

	_, err := h.Begin(context.Background(), Identity{Name: "Ann", Difficulty: 3})
	assert.ErrorIs(t, err, errs.ErrHandshake)
	assert.Equal(t, errs.OpDial, errs.OpOf(err))
}

func TestReconnectRetriesWithBackoff(t *testing.T) {
	d := &fakeDialer{fail: 2}
	h := New(Config{StreamURL: "ws://cave.test/cave", Dialer: d, Timeout: time.Second})

	ch, err := h.Reconnect(context.Background(), Credential{PlayerID: "p1", Token: "tok"}, backoff.NewConstantBackOff(time.Millisecond), 5)
	require.NoError(t, err)
	assert.Equal(t, 3, d.count())
	assert.Equal(t, []string{"player:p1-tok"}, ch.(*fakeChannel).frames())
}

func TestReconnectGivesUp(t *testing.T) {
	d := &fakeDialer{fail: 10}
	h := New(Config{StreamURL: "ws://cave.test/cave", Dialer: d, Timeout: time.Second})

	_, err := h.Reconnect(context.Background(), Credential{PlayerID: "p1", Token: "tok"}, backoff.NewConstantBackOff(time.Millisecond), 3)
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrHandshake)
	assert.Equal(t, 3, d.count())
}

func TestBeginOverWebsocket(t *testing.T) {
	a := newAPI()
	apiSrv := a.server(t)

	frames := make(chan string, 4)
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	wsSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			frames <- string(msg)
		}
	}))
	t.Cleanup(wsSrv.Close)

	h := New(Config{
		APIURL:    apiSrv.URL,
		StreamURL: "ws" + strings.TrimPrefix(wsSrv.URL, "http") + "/cave",
		Client:    apiSrv.Client(),
		Timeout:   2 * time.Second,
	})
	res, err := h.Begin(context.Background(), Identity{Name: "Ann", Difficulty: 3})
	require.NoError(t, err)
	defer res.Channel.Close()

	select {
	case f := <-frames:
		assert.Equal(t, "player:p1-c1c2c3c4", f)
	case <-time.After(2 * time.Second):
		t.Fatalf("auth frame never arrived")
	}
}
