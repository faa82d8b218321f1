package webapi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/tidwall/gjson"

	"github.com/mikey-austin/clautify/internal/ports"
)

const (
	devicesJSON = `{"devices":[
		{"id":"d1","is_active":false,"name":"Kitchen","type":"Speaker","volume_percent":20},
		{"id":"d2","is_active":true,"name":"Living Room","type":"Computer","volume_percent":100}
	]}`
	playerJSON = `{"is_playing":true,"item":{"uri":"spotify:track:now","name":"Karma Police","artists":[{"name":"Radiohead"}]}}`
	queueJSON  = `{"currently_playing":{"uri":"spotify:track:now","name":"Karma Police"},"queue":[
		{"uri":"spotify:track:q1","name":"Airbag","artists":[{"name":"Radiohead"}]}
	]}`
	recentJSON = `{"items":[{"track":{"uri":"spotify:track:h1","name":"Lucky","artists":[{"name":"Radiohead"}]},"played_at":"2024-01-01T00:00:00Z"}]}`
)

type playerServer struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]int
}

func (s *playerServer) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	body, _ := io.ReadAll(req.Body)
	call := req.Method + " " + req.URL.Path
	if req.Method != http.MethodGet && req.URL.RawQuery != "" {
		call += "?" + req.URL.RawQuery
	}
	if len(body) > 0 {
		call += " " + string(body)
	}
	s.mu.Lock()
	s.calls = append(s.calls, call)
	status, failing := s.fail[req.URL.Path]
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if failing {
		w.WriteHeader(status)
		_, _ = io.WriteString(w, `{"error":{"status":`+strconv.Itoa(status)+`,"message":"failed"}}`)
		return
	}
	if req.Method != http.MethodGet {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	switch req.URL.Path {
	case "/me/player/devices":
		_, _ = io.WriteString(w, devicesJSON)
	case "/me/player":
		_, _ = io.WriteString(w, playerJSON)
	case "/me/player/queue":
		_, _ = io.WriteString(w, queueJSON)
	case "/me/player/recently-played":
		_, _ = io.WriteString(w, recentJSON)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (s *playerServer) mutations() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, call := range s.calls {
		if !strings.HasPrefix(call, http.MethodGet) {
			out = append(out, call)
		}
	}
	return out
}

func newTestChannel(t *testing.T, fail map[string]int) (*Channel, *playerServer) {
	t.Helper()
	handler := &playerServer{fail: fail}
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	ch, err := NewChannel(context.Background(), Options{BaseURL: srv.URL + "/", HTTPClient: srv.Client()})
	if err != nil {
		t.Fatalf("new channel: %v", err)
	}
	return ch, handler
}

func TestChannelAdoptsActiveDevice(t *testing.T) {
	ch, _ := newTestChannel(t, nil)
	if ch.DeviceID() != "d2" {
		t.Fatalf("expected active device d2, got %q", ch.DeviceID())
	}
}

func TestChannelState(t *testing.T) {
	ch, _ := newTestChannel(t, nil)

	state, err := ch.State(context.Background())
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	want := ports.PlayerState{
		ActiveDeviceID: "d2",
		Devices: []ports.Device{
			{ID: "d1", Name: "Kitchen", Type: "Speaker", Volume: 13107},
			{ID: "d2", Name: "Living Room", Type: "Computer", Volume: 65535, Active: true},
		},
		NowPlaying: &ports.Track{URI: "spotify:track:now", Name: "Karma Police", Artists: []string{"Radiohead"}},
		Queue:      []ports.Track{{URI: "spotify:track:q1", Name: "Airbag", Artists: []string{"Radiohead"}}},
		History:    []ports.Track{{URI: "spotify:track:h1", Name: "Lucky", Artists: []string{"Radiohead"}}},
		Playing:    true,
	}
	if diff := cmp.Diff(want, state); diff != "" {
		t.Fatalf("state mismatch (-want +got):\n%s", diff)
	}
}

func TestChannelControls(t *testing.T) {
	ch, srv := newTestChannel(t, nil)
	ctx := context.Background()

	steps := []func() error{
		func() error { return ch.Pause(ctx) },
		func() error { return ch.SkipNext(ctx) },
		func() error { return ch.Seek(ctx, 90000) },
		func() error { return ch.SetVolume(ctx, 0.5) },
		func() error { return ch.SetShuffle(ctx, true) },
		func() error { return ch.SetRepeat(ctx, false) },
		func() error { return ch.Enqueue(ctx, "spotify:track:6rqhFgbbKwnb9MLmUQDhG6") },
	}
	for i, step := range steps {
		if err := step(); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}

	want := []string{
		"PUT /me/player/pause",
		"POST /me/player/next",
		"PUT /me/player/seek?position_ms=90000",
		"PUT /me/player/volume?volume_percent=50",
		"PUT /me/player/shuffle?state=true",
		"PUT /me/player/repeat?state=off",
		"POST /me/player/queue?uri=spotify%3Atrack%3A6rqhFgbbKwnb9MLmUQDhG6",
	}
	if diff := cmp.Diff(want, srv.mutations()); diff != "" {
		t.Fatalf("requests mismatch (-want +got):\n%s", diff)
	}
}

func TestChannelPlayTrackInContext(t *testing.T) {
	ch, srv := newTestChannel(t, nil)

	if err := ch.PlayTrack(context.Background(), "spotify:track:t1", "spotify:album:a1"); err != nil {
		t.Fatalf("play: %v", err)
	}
	calls := srv.mutations()
	if len(calls) != 1 || !strings.HasPrefix(calls[0], "PUT /me/player/play?device_id=d2 ") {
		t.Fatalf("unexpected play request: %v", calls)
	}
	body := calls[0][strings.Index(calls[0], "{"):]
	if gjson.Get(body, "context_uri").String() != "spotify:album:a1" || gjson.Get(body, "offset.uri").String() != "spotify:track:t1" {
		t.Fatalf("unexpected play body %s", body)
	}
}

func TestChannelPlayTrackAlone(t *testing.T) {
	ch, srv := newTestChannel(t, nil)

	if err := ch.PlayTrack(context.Background(), "spotify:track:t1", ""); err != nil {
		t.Fatalf("play: %v", err)
	}
	call := srv.mutations()[0]
	body := call[strings.Index(call, "{"):]
	if gjson.Get(body, "uris.0").String() != "spotify:track:t1" || gjson.Get(body, "context_uri").Exists() {
		t.Fatalf("unexpected play body %s", body)
	}
}

func TestChannelTransfer(t *testing.T) {
	ch, srv := newTestChannel(t, nil)

	if err := ch.Transfer(context.Background(), "d2", "d1"); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	call := srv.mutations()[0]
	body := call[strings.Index(call, "{"):]
	if gjson.Get(body, "device_ids.0").String() != "d1" || !gjson.Get(body, "play").Bool() {
		t.Fatalf("unexpected transfer body %s", body)
	}
}

func TestChannelServerErrorIsLost(t *testing.T) {
	ch, _ := newTestChannel(t, map[string]int{"/me/player/pause": http.StatusBadGateway})

	err := ch.Pause(context.Background())
	if !errors.Is(err, ports.ErrChannelLost) {
		t.Fatalf("expected lost channel, got %v", err)
	}
}

func TestChannelClientErrorIsNotLost(t *testing.T) {
	ch, _ := newTestChannel(t, map[string]int{"/me/player/next": http.StatusForbidden})

	err := ch.SkipNext(context.Background())
	if err == nil || errors.Is(err, ports.ErrChannelLost) {
		t.Fatalf("expected a plain error, got %v", err)
	}
}

func TestClassifyPassesCancellation(t *testing.T) {
	if err := classify("pause", context.Canceled); !errors.Is(err, context.Canceled) || errors.Is(err, ports.ErrChannelLost) {
		t.Fatalf("unexpected classification %v", err)
	}
	if classify("pause", nil) != nil {
		t.Fatalf("expected nil")
	}
}

func TestNewChannelRequiresClient(t *testing.T) {
	if _, err := NewChannel(context.Background(), Options{}); err == nil {
		t.Fatalf("expected error without http client")
	}
}
