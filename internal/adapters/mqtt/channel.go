package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mikey-austin/clautify/internal/ports"
	"github.com/mikey-austin/clautify/pkg/mu"
)

// Requester sends one command to a node and returns its reply.
type Requester interface {
	Request(ctx context.Context, nodeID, cmdType string, body any) (mu.ReplyEnvelope, error)
	Close() error
}

// Channel drives playback through a bridge node that holds the
// account's connect session. It owns its requester.
type Channel struct {
	req      Requester
	nodeID   string
	deviceID string
}

// NewChannel connects a channel to nodeID and learns the node's own
// device id.
func NewChannel(ctx context.Context, req Requester, nodeID string) (*Channel, error) {
	c := &Channel{req: req, nodeID: nodeID}
	state, err := c.state(ctx)
	if err != nil {
		return nil, err
	}
	c.deviceID = state.DeviceID
	return c, nil
}

// DeviceID returns the bridge node's device id.
func (c *Channel) DeviceID() string {
	return c.deviceID
}

// State returns the current playback snapshot.
func (c *Channel) State(ctx context.Context) (ports.PlayerState, error) {
	state, err := c.state(ctx)
	if err != nil {
		return ports.PlayerState{}, err
	}
	out := ports.PlayerState{
		ActiveDeviceID: state.ActiveDeviceID,
		Playing:        state.Playing,
		Devices:        make([]ports.Device, 0, len(state.Devices)),
		Queue:          tracks(state.Queue),
		History:        tracks(state.History),
	}
	for _, d := range state.Devices {
		out.Devices = append(out.Devices, ports.Device{
			ID:     d.ID,
			Name:   d.Name,
			Type:   d.Type,
			Volume: d.Volume,
			Active: d.ID == state.ActiveDeviceID,
		})
	}
	if state.Current != nil {
		current := track(*state.Current)
		out.NowPlaying = &current
	}
	return out, nil
}

func (c *Channel) Pause(ctx context.Context) error {
	return c.send(ctx, mu.TypePause, mu.EmptyBody{})
}

func (c *Channel) Resume(ctx context.Context) error {
	return c.send(ctx, mu.TypeResume, mu.EmptyBody{})
}

func (c *Channel) SkipNext(ctx context.Context) error {
	return c.send(ctx, mu.TypeNext, mu.EmptyBody{})
}

func (c *Channel) SkipPrev(ctx context.Context) error {
	return c.send(ctx, mu.TypePrev, mu.EmptyBody{})
}

func (c *Channel) Seek(ctx context.Context, positionMS int64) error {
	return c.send(ctx, mu.TypeSeek, mu.PlaybackSeekBody{PositionMS: positionMS})
}

func (c *Channel) Enqueue(ctx context.Context, uri string) error {
	return c.send(ctx, mu.TypeQueueAdd, mu.QueueAddBody{URI: uri})
}

func (c *Channel) PlayTrack(ctx context.Context, uri, contextURI string) error {
	return c.send(ctx, mu.TypePlay, mu.PlaybackPlayBody{URI: uri, ContextURI: contextURI})
}

func (c *Channel) PlayContext(ctx context.Context, uri string) error {
	return c.send(ctx, mu.TypePlay, mu.PlaybackPlayBody{URI: uri})
}

func (c *Channel) SetVolume(ctx context.Context, fraction float64) error {
	return c.send(ctx, mu.TypeSetVolume, mu.PlaybackSetVolumeBody{Volume: fraction})
}

func (c *Channel) SetShuffle(ctx context.Context, on bool) error {
	return c.send(ctx, mu.TypeSetShuffle, mu.PlaybackToggleBody{Enabled: on})
}

func (c *Channel) SetRepeat(ctx context.Context, on bool) error {
	return c.send(ctx, mu.TypeSetRepeat, mu.PlaybackToggleBody{Enabled: on})
}

func (c *Channel) Transfer(ctx context.Context, from, to string) error {
	return c.send(ctx, mu.TypeTransfer, mu.PlaybackTransferBody{From: from, To: to})
}

// Close releases the underlying connection.
func (c *Channel) Close() error {
	return c.req.Close()
}

func (c *Channel) state(ctx context.Context) (mu.StateReply, error) {
	reply, err := c.request(ctx, mu.TypeStateGet, mu.EmptyBody{})
	if err != nil {
		return mu.StateReply{}, err
	}
	var state mu.StateReply
	if err := json.Unmarshal(reply.Body, &state); err != nil {
		return mu.StateReply{}, fmt.Errorf("decode state: %w", err)
	}
	return state, nil
}

func (c *Channel) send(ctx context.Context, cmdType string, body any) error {
	_, err := c.request(ctx, cmdType, body)
	return err
}

// request maps transport failures and UNAVAILABLE replies onto
// ports.ErrChannelLost. Context cancellation is returned unchanged.
func (c *Channel) request(ctx context.Context, cmdType string, body any) (mu.ReplyEnvelope, error) {
	reply, err := c.req.Request(ctx, c.nodeID, cmdType, body)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return mu.ReplyEnvelope{}, err
		}
		return mu.ReplyEnvelope{}, fmt.Errorf("%s: %w: %w", cmdType, ports.ErrChannelLost, err)
	}
	if !reply.OK {
		if reply.Err == nil {
			return mu.ReplyEnvelope{}, fmt.Errorf("%s: node returned an error without detail", cmdType)
		}
		if reply.Err.Code == mu.CodeUnavailable {
			return mu.ReplyEnvelope{}, fmt.Errorf("%s: %w: %w", cmdType, ports.ErrChannelLost, reply.Err)
		}
		return mu.ReplyEnvelope{}, reply.Err
	}
	return reply, nil
}

func tracks(in []mu.TrackState) []ports.Track {
	out := make([]ports.Track, 0, len(in))
	for _, t := range in {
		out = append(out, track(t))
	}
	return out
}

func track(t mu.TrackState) ports.Track {
	return ports.Track{URI: t.URI, Name: t.Name, Artists: t.Artists}
}
