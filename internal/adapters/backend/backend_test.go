package backend

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/mikey-austin/clautify/internal/adapters/clock"
	"github.com/mikey-austin/clautify/internal/adapters/config"
	"github.com/mikey-austin/clautify/internal/adapters/idgen"
	"github.com/mikey-austin/clautify/internal/adapters/pathfinder"
)

func TestNewValidatesPlayback(t *testing.T) {
	cases := []struct {
		name     string
		playback config.Playback
		ok       bool
	}{
		{name: "webapi", playback: config.Playback{Backend: config.BackendWebAPI}, ok: true},
		{name: "mqtt", playback: config.Playback{Backend: config.BackendMQTT, Broker: "tcp://127.0.0.1:1883", NodeID: "bridge"}, ok: true},
		{name: "mqtt without node", playback: config.Playback{Backend: config.BackendMQTT, Broker: "tcp://127.0.0.1:1883"}},
		{name: "unknown", playback: config.Playback{Backend: "carrier-pigeon"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(Options{Playback: tc.playback, Clock: clock.Clock{}, IDGen: idgen.Generator{}})
			if tc.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tc.ok && err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestCatalogsShareTokenAndClient(t *testing.T) {
	var (
		mu    sync.Mutex
		auths []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		_, _ = io.Copy(io.Discard, req.Body)
		mu.Lock()
		auths = append(auths, req.Header.Get("Authorization"))
		mu.Unlock()
		_, _ = io.WriteString(w, `{"data":{}}`)
	}))
	defer srv.Close()

	b, err := New(Options{
		Catalog: config.Catalog{
			Token:      "secret",
			BaseURL:    srv.URL,
			Operations: map[string]string{pathfinder.OpLibrary: "h", pathfinder.OpGetTrack: "h"},
		},
		Playback:   config.Playback{Backend: config.BackendWebAPI},
		HTTPClient: srv.Client(),
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := b.CheckAuth(context.Background()); err != nil {
		t.Fatalf("check auth: %v", err)
	}
	if _, err := b.NewSongCatalog().TrackInfo(context.Background(), "6rqhFgbbKwnb9MLmUQDhG6"); err != nil {
		t.Fatalf("track info: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(auths) != 2 || auths[0] != "Bearer secret" || auths[1] != "Bearer secret" {
		t.Fatalf("unexpected authorization headers: %v", auths)
	}
}

func TestCheckAuthWithoutToken(t *testing.T) {
	b, err := New(Options{Playback: config.Playback{Backend: config.BackendWebAPI}})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	err = b.CheckAuth(context.Background())
	if err == nil || !strings.Contains(err.Error(), "token") {
		t.Fatalf("expected token error, got %v", err)
	}
}

func TestWebAPIChannelUsesToken(t *testing.T) {
	auth := make(chan string, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		auth <- req.Header.Get("Authorization")
		_, _ = io.WriteString(w, `{"devices":[{"id":"d1","is_active":true,"name":"Desk","type":"Computer","volume_percent":40}]}`)
	}))
	defer srv.Close()

	b, err := New(Options{
		Catalog:    config.Catalog{Token: "secret"},
		Playback:   config.Playback{Backend: config.BackendWebAPI, WebAPIURL: srv.URL + "/"},
		HTTPClient: srv.Client(),
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ch, err := b.NewPlaybackChannel(context.Background())
	if err != nil {
		t.Fatalf("channel: %v", err)
	}
	defer ch.Close()
	if ch.DeviceID() != "d1" {
		t.Fatalf("unexpected channel device %q", ch.DeviceID())
	}
	if got := <-auth; got != "Bearer secret" {
		t.Fatalf("unexpected authorization %q", got)
	}
}
