// Package webapi drives playback through the public Web API player
// endpoints.
package webapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	spotify "github.com/zmb3/spotify/v2"
	"go.uber.org/zap"

	"github.com/mikey-austin/clautify/internal/ports"
	"github.com/mikey-austin/clautify/pkg/dsl"
)

const (
	repeatContext = "context"
	repeatOff     = "off"
	rawVolumeMax  = 65535
)

// Options configures a Web API playback channel.
type Options struct {
	// BaseURL overrides the API root; it must end with a slash.
	BaseURL string
	// HTTPClient must attach credentials, typically an oauth2 client.
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Channel implements ports.PlaybackChannel over the Web API.
type Channel struct {
	client   *spotify.Client
	log      *zap.Logger
	deviceID string
}

// NewChannel creates a channel and adopts the active device, or the
// first listed device, as its own identity.
func NewChannel(ctx context.Context, opts Options) (*Channel, error) {
	if opts.HTTPClient == nil {
		return nil, errors.New("webapi channel requires an authenticated http client")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	var clientOpts []spotify.ClientOption
	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, spotify.WithBaseURL(opts.BaseURL))
	}
	c := &Channel{
		client: spotify.New(opts.HTTPClient, clientOpts...),
		log:    opts.Logger,
	}

	devices, err := c.client.PlayerDevices(ctx)
	if err != nil {
		return nil, classify("devices", err)
	}
	for _, d := range devices {
		if d.Active {
			c.deviceID = d.ID.String()
			break
		}
	}
	if c.deviceID == "" && len(devices) > 0 {
		c.deviceID = devices[0].ID.String()
	}
	c.log.Debug("webapi channel ready", zap.String("device", c.deviceID), zap.Int("devices", len(devices)))
	return c, nil
}

func (c *Channel) DeviceID() string {
	return c.deviceID
}

// State combines the device list, player state, queue and recently
// played tracks.
func (c *Channel) State(ctx context.Context) (ports.PlayerState, error) {
	devices, err := c.client.PlayerDevices(ctx)
	if err != nil {
		return ports.PlayerState{}, classify("devices", err)
	}
	out := ports.PlayerState{Devices: make([]ports.Device, 0, len(devices))}
	for _, d := range devices {
		out.Devices = append(out.Devices, ports.Device{
			ID:     d.ID.String(),
			Name:   d.Name,
			Type:   d.Type,
			Volume: int(d.Volume) * rawVolumeMax / 100,
			Active: d.Active,
		})
		if d.Active {
			out.ActiveDeviceID = d.ID.String()
		}
	}

	player, err := c.client.PlayerState(ctx)
	if err != nil {
		return ports.PlayerState{}, classify("state", err)
	}
	if player != nil {
		out.Playing = player.Playing
		if player.Item != nil {
			track := fullTrack(*player.Item)
			out.NowPlaying = &track
		}
	}

	queue, err := c.client.GetQueue(ctx)
	if err != nil {
		return ports.PlayerState{}, classify("queue", err)
	}
	out.Queue = []ports.Track{}
	if queue != nil {
		for _, item := range queue.Items {
			out.Queue = append(out.Queue, fullTrack(item))
		}
	}

	recent, err := c.client.PlayerRecentlyPlayed(ctx)
	if err != nil {
		return ports.PlayerState{}, classify("history", err)
	}
	out.History = []ports.Track{}
	for _, item := range recent {
		out.History = append(out.History, simpleTrack(item.Track))
	}
	return out, nil
}

func (c *Channel) Pause(ctx context.Context) error {
	return classify("pause", c.client.Pause(ctx))
}

func (c *Channel) Resume(ctx context.Context) error {
	return classify("resume", c.client.Play(ctx))
}

func (c *Channel) SkipNext(ctx context.Context) error {
	return classify("next", c.client.Next(ctx))
}

func (c *Channel) SkipPrev(ctx context.Context) error {
	return classify("previous", c.client.Previous(ctx))
}

func (c *Channel) Seek(ctx context.Context, positionMS int64) error {
	return classify("seek", c.client.Seek(ctx, int(positionMS)))
}

func (c *Channel) Enqueue(ctx context.Context, uri string) error {
	return classify("queue", c.client.QueueSong(ctx, spotify.ID(dsl.ExtractID(uri, dsl.KindTrack))))
}

// PlayTrack starts uri, inside contextURI when one is given.
func (c *Channel) PlayTrack(ctx context.Context, uri, contextURI string) error {
	opts := c.playOptions()
	if contextURI != "" {
		playContext := spotify.URI(contextURI)
		opts.PlaybackContext = &playContext
		opts.PlaybackOffset = &spotify.PlaybackOffset{URI: spotify.URI(uri)}
	} else {
		opts.URIs = []spotify.URI{spotify.URI(uri)}
	}
	return classify("play", c.client.PlayOpt(ctx, opts))
}

func (c *Channel) PlayContext(ctx context.Context, uri string) error {
	opts := c.playOptions()
	playContext := spotify.URI(uri)
	opts.PlaybackContext = &playContext
	return classify("play", c.client.PlayOpt(ctx, opts))
}

func (c *Channel) SetVolume(ctx context.Context, fraction float64) error {
	return classify("volume", c.client.Volume(ctx, int(fraction*100+0.5)))
}

func (c *Channel) SetShuffle(ctx context.Context, on bool) error {
	return classify("shuffle", c.client.Shuffle(ctx, on))
}

func (c *Channel) SetRepeat(ctx context.Context, on bool) error {
	state := repeatOff
	if on {
		state = repeatContext
	}
	return classify("repeat", c.client.Repeat(ctx, state))
}

// Transfer moves playback to toDeviceID and keeps it playing. The Web
// API always transfers from the active device.
func (c *Channel) Transfer(ctx context.Context, _ string, toDeviceID string) error {
	return classify("transfer", c.client.TransferPlayback(ctx, spotify.ID(toDeviceID), true))
}

// Close is a no-op; the channel holds no connection of its own.
func (c *Channel) Close() error {
	return nil
}

func (c *Channel) playOptions() *spotify.PlayOptions {
	opts := &spotify.PlayOptions{}
	if c.deviceID != "" {
		id := spotify.ID(c.deviceID)
		opts.DeviceID = &id
	}
	return opts
}

func fullTrack(t spotify.FullTrack) ports.Track {
	return simpleTrack(t.SimpleTrack)
}

func simpleTrack(t spotify.SimpleTrack) ports.Track {
	out := ports.Track{URI: string(t.URI), Name: t.Name}
	for _, a := range t.Artists {
		out.Artists = append(out.Artists, a.Name)
	}
	return out
}

// classify marks server-side failures and dropped connections as a lost
// channel. Client errors and cancellation pass through.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if status, ok := apiStatus(err); ok {
		if status >= http.StatusInternalServerError || status == http.StatusTooManyRequests {
			return fmt.Errorf("%s: %w: %w", op, ports.ErrChannelLost, err)
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("%s: %w: %w", op, ports.ErrChannelLost, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func apiStatus(err error) (int, bool) {
	var apiErr spotify.Error
	if errors.As(err, &apiErr) {
		return apiErr.Status, true
	}
	return 0, false
}
