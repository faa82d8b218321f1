package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"go.uber.org/goleak"

	"github.com/mikey-austin/clautify/internal/ports"
	"github.com/mikey-austin/clautify/pkg/mu"
)

type sentCommand struct {
	nodeID string
	typ    string
	body   string
}

type fakeRequester struct {
	sent    []sentCommand
	replies map[string]mu.ReplyEnvelope
	errs    map[string]error
	closed  bool
}

func (f *fakeRequester) Request(_ context.Context, nodeID, cmdType string, body any) (mu.ReplyEnvelope, error) {
	payload, _ := json.Marshal(body)
	f.sent = append(f.sent, sentCommand{nodeID: nodeID, typ: cmdType, body: string(payload)})
	if err := f.errs[cmdType]; err != nil {
		return mu.ReplyEnvelope{}, err
	}
	if reply, ok := f.replies[cmdType]; ok {
		return reply, nil
	}
	return mu.ReplyEnvelope{OK: true}, nil
}

func (f *fakeRequester) Close() error {
	f.closed = true
	return nil
}

func stateReply(t *testing.T, state mu.StateReply) mu.ReplyEnvelope {
	t.Helper()
	body, err := json.Marshal(state)
	if err != nil {
		t.Fatalf("marshal state: %v", err)
	}
	return mu.ReplyEnvelope{OK: true, Body: body}
}

func newFakeChannel(t *testing.T) (*Channel, *fakeRequester) {
	t.Helper()
	req := &fakeRequester{replies: map[string]mu.ReplyEnvelope{
		mu.TypeStateGet: stateReply(t, mu.StateReply{
			DeviceID:       "bridge",
			ActiveDeviceID: "d2",
			Playing:        true,
			Devices: []mu.DeviceState{
				{ID: "bridge", Name: "Bridge"},
				{ID: "d2", Name: "Kitchen", Volume: 32768},
			},
			Current: &mu.TrackState{URI: "spotify:track:now", Name: "Now"},
			Queue:   []mu.TrackState{{URI: "spotify:track:next"}},
		}),
	}, errs: map[string]error{}}
	ch, err := NewChannel(context.Background(), req, "node1")
	if err != nil {
		t.Fatalf("new channel: %v", err)
	}
	return ch, req
}

func TestChannelLearnsDeviceAndState(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	ch, _ := newFakeChannel(t)
	if ch.DeviceID() != "bridge" {
		t.Fatalf("expected bridge device id, got %s", ch.DeviceID())
	}

	state, err := ch.State(context.Background())
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	device, ok := state.ActiveDevice()
	if !ok || device.Name != "Kitchen" || device.Volume != 32768 || !device.Active {
		t.Fatalf("unexpected active device %+v", device)
	}
	if state.NowPlaying == nil || state.NowPlaying.URI != "spotify:track:now" {
		t.Fatalf("unexpected now playing %+v", state.NowPlaying)
	}
	if len(state.Queue) != 1 || len(state.History) != 0 {
		t.Fatalf("unexpected queue %+v", state)
	}
}

func TestChannelCommandBodies(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	ch, req := newFakeChannel(t)
	ctx := context.Background()
	req.sent = nil

	steps := []func() error{
		func() error { return ch.Seek(ctx, 90000) },
		func() error { return ch.SetVolume(ctx, 0.5) },
		func() error { return ch.PlayTrack(ctx, "spotify:track:a", "spotify:playlist:b") },
		func() error { return ch.PlayContext(ctx, "spotify:album:c") },
		func() error { return ch.Transfer(ctx, "bridge", "d2") },
		func() error { return ch.SetShuffle(ctx, true) },
		func() error { return ch.Enqueue(ctx, "spotify:track:q") },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			t.Fatalf("command: %v", err)
		}
	}

	want := []sentCommand{
		{"node1", mu.TypeSeek, `{"positionMs":90000}`},
		{"node1", mu.TypeSetVolume, `{"volume":0.5}`},
		{"node1", mu.TypePlay, `{"uri":"spotify:track:a","contextUri":"spotify:playlist:b"}`},
		{"node1", mu.TypePlay, `{"uri":"spotify:album:c"}`},
		{"node1", mu.TypeTransfer, `{"from":"bridge","to":"d2"}`},
		{"node1", mu.TypeSetShuffle, `{"enabled":true}`},
		{"node1", mu.TypeQueueAdd, `{"uri":"spotify:track:q"}`},
	}
	if len(req.sent) != len(want) {
		t.Fatalf("expected %d commands, got %d", len(want), len(req.sent))
	}
	for i := range want {
		if req.sent[i] != want[i] {
			t.Fatalf("command %d: expected %+v, got %+v", i, want[i], req.sent[i])
		}
	}
}

func TestChannelErrorMapping(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	ch, req := newFakeChannel(t)
	ctx := context.Background()

	req.errs[mu.TypePause] = ErrTimeout
	if err := ch.Pause(ctx); !errors.Is(err, ports.ErrChannelLost) {
		t.Fatalf("expected channel lost on timeout, got %v", err)
	}

	req.errs[mu.TypeResume] = context.Canceled
	if err := ch.Resume(ctx); errors.Is(err, ports.ErrChannelLost) || !errors.Is(err, context.Canceled) {
		t.Fatalf("expected plain cancellation, got %v", err)
	}

	req.replies[mu.TypeNext] = mu.ReplyEnvelope{Err: &mu.ReplyError{Code: mu.CodeUnavailable, Message: "session dropped"}}
	if err := ch.SkipNext(ctx); !errors.Is(err, ports.ErrChannelLost) {
		t.Fatalf("expected channel lost on unavailable, got %v", err)
	}

	req.replies[mu.TypePrev] = mu.ReplyEnvelope{Err: &mu.ReplyError{Code: mu.CodeInvalid, Message: "no previous track"}}
	err := ch.SkipPrev(ctx)
	var replyErr *mu.ReplyError
	if !errors.As(err, &replyErr) || errors.Is(err, ports.ErrChannelLost) {
		t.Fatalf("expected reply error, got %v", err)
	}

	if err := ch.Close(); err != nil || !req.closed {
		t.Fatalf("expected requester closed")
	}
}

func TestRemoteRun(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	body, _ := json.Marshal(mu.DSLRunReply{Result: json.RawMessage(`{"status":"ok","action":"pause"}`)})
	req := &fakeRequester{replies: map[string]mu.ReplyEnvelope{mu.TypeDSLRun: {OK: true, Body: body}}}
	remote := Remote{Requester: req, NodeID: "daemon"}

	result, err := remote.Run(context.Background(), "pause")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if string(result) != `{"status":"ok","action":"pause"}` {
		t.Fatalf("unexpected result %s", result)
	}
	if req.sent[0].body != `{"command":"pause"}` || req.sent[0].nodeID != "daemon" {
		t.Fatalf("unexpected request %+v", req.sent[0])
	}

	req.replies[mu.TypeDSLRun] = mu.ReplyEnvelope{Err: &mu.ReplyError{Code: mu.CodeNotFound, Message: `No results for "x"`}}
	_, err = remote.Run(context.Background(), `play track "x"`)
	var replyErr *mu.ReplyError
	if !errors.As(err, &replyErr) || replyErr.Code != mu.CodeNotFound {
		t.Fatalf("expected not found reply, got %v", err)
	}
}
