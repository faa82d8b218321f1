package core

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/mikey-austin/clautify/pkg/dsl"
)

func newTestSession(t *testing.T, backend *stubBackend, opts Options) *Session {
	t.Helper()
	session, err := NewSession(context.Background(), backend, opts)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	return session
}

func TestSessionRunParsesAndExecutes(t *testing.T) {
	ch := &stubChannel{id: "self"}
	backend := &stubBackend{channels: []*stubChannel{ch}, catalog: &stubCatalog{}}
	session := newTestSession(t, backend, Options{})
	session.SetVolumeCeiling(0.5)

	res, err := session.Run(context.Background(), "pause volume 70 mode shuffle")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Action != dsl.ActionPause || res.Status != StatusOK {
		t.Fatalf("unexpected result %+v", res)
	}
	want := "pause volume(0.50) shuffle(true) repeat(false)"
	if strings.Join(ch.calls, " ") != want {
		t.Fatalf("expected %s, got %v", want, ch.calls)
	}
}

func TestSessionRunSyntaxError(t *testing.T) {
	backend := &stubBackend{catalog: &stubCatalog{}}
	session := newTestSession(t, backend, Options{})

	_, err := session.Run(context.Background(), "status volume 5")
	dslErr := expectKind(t, err, ErrSyntax)
	if !strings.HasPrefix(dslErr.Msg, "Invalid command: 'status volume 5'. Valid commands: ") {
		t.Fatalf("unexpected message %q", dslErr.Msg)
	}
	var synErr *dsl.SyntaxError
	if !errors.As(err, &synErr) {
		t.Fatalf("expected wrapped syntax error")
	}
	if backend.built != 0 {
		t.Fatalf("syntax errors must not touch the channel")
	}
}

func TestSessionEagerConstructionFailure(t *testing.T) {
	backend := &stubBackend{buildErr: errors.New("no token"), catalog: &stubCatalog{}}
	_, err := NewSession(context.Background(), backend, Options{Eager: true})
	expectKind(t, err, ErrCollaborator)
}

func TestSessionHealth(t *testing.T) {
	backend := &stubBackend{catalog: &stubCatalog{}}
	session := newTestSession(t, backend, Options{})
	health := session.Health(context.Background())
	if health.Status != StatusOK || !health.Authenticated {
		t.Fatalf("unexpected health %+v", health)
	}

	backend.authErr = errors.New("token expired")
	health = session.Health(context.Background())
	if health.Authenticated || health.Error != "token expired" {
		t.Fatalf("unexpected health %+v", health)
	}
}

func TestSessionCloseWithoutChannel(t *testing.T) {
	session := newTestSession(t, &stubBackend{catalog: &stubCatalog{}}, Options{})
	if err := session.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	session.SetVolumeCeiling(2)
	if session.VolumeCeiling() != 1 {
		t.Fatalf("expected ceiling clamp")
	}
}
