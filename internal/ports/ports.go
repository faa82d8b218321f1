package ports

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrChannelLost marks a playback channel failure that a fresh channel
// may not repeat (dropped socket, connection reset, gateway errors).
// Adapters wrap it so callers can test with errors.Is.
var ErrChannelLost = errors.New("playback channel lost")

// SongCatalog searches the catalog and mutates liked tracks. SearchSongs
// returns the combined search document with track, album and playlist
// sections. Responses are the raw catalog documents.
type SongCatalog interface {
	SearchSongs(ctx context.Context, term string, limit, offset int) (json.RawMessage, error)
	TrackInfo(ctx context.Context, id string) (json.RawMessage, error)
	LikeSong(ctx context.Context, id string) error
	UnlikeSong(ctx context.Context, id string) error
}

// ArtistCatalog searches, describes and follows artists.
type ArtistCatalog interface {
	SearchArtists(ctx context.Context, term string, limit, offset int) (json.RawMessage, error)
	ArtistInfo(ctx context.Context, id string) (json.RawMessage, error)
	Follow(ctx context.Context, id string) error
	Unfollow(ctx context.Context, id string) error
}

// LibraryCatalog covers album and playlist lookups and the user's
// library.
type LibraryCatalog interface {
	AlbumInfo(ctx context.Context, id string, limit, offset int) (json.RawMessage, error)
	PlaylistInfo(ctx context.Context, id string, limit, offset int) (json.RawMessage, error)
	Library(ctx context.Context, filters []string, limit, offset int) (json.RawMessage, error)
	SavePlaylist(ctx context.Context, id string) error
	UnsavePlaylist(ctx context.Context, id string) error
	AddToPlaylist(ctx context.Context, playlistID, trackID string) error
	RemoveFromPlaylist(ctx context.Context, playlistID, trackID string) error
	CreatePlaylist(ctx context.Context, name string) (string, error)
	DeletePlaylist(ctx context.Context, id string) error
	Recommend(ctx context.Context, playlistID string, n int) (json.RawMessage, error)
}

// Device is a playback target reported by the channel. Volume is on
// the raw 0..65535 scale.
type Device struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Type   string `json:"type,omitempty"`
	Volume int    `json:"volume"`
	Active bool   `json:"active,omitempty"`
}

// Track summarises a playable item in state snapshots.
type Track struct {
	URI     string   `json:"uri"`
	Name    string   `json:"name"`
	Artists []string `json:"artists,omitempty"`
}

// PlayerState is a snapshot of the account's playback.
type PlayerState struct {
	ActiveDeviceID string   `json:"active_device_id,omitempty"`
	Devices        []Device `json:"devices"`
	NowPlaying     *Track   `json:"now_playing,omitempty"`
	Queue          []Track  `json:"queue"`
	History        []Track  `json:"history"`
	Playing        bool     `json:"playing"`
}

// ActiveDevice returns the device currently playing, if any.
func (s PlayerState) ActiveDevice() (Device, bool) {
	if s.ActiveDeviceID == "" {
		return Device{}, false
	}
	for _, d := range s.Devices {
		if d.ID == s.ActiveDeviceID {
			return d, true
		}
	}
	return Device{}, false
}

// PlaybackChannel controls playback on the account.
type PlaybackChannel interface {
	// DeviceID is the channel's own device identity.
	DeviceID() string
	State(ctx context.Context) (PlayerState, error)
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	SkipNext(ctx context.Context) error
	SkipPrev(ctx context.Context) error
	Seek(ctx context.Context, positionMS int64) error
	Enqueue(ctx context.Context, uri string) error
	PlayTrack(ctx context.Context, uri, contextURI string) error
	PlayContext(ctx context.Context, uri string) error
	// SetVolume takes a fraction in [0,1].
	SetVolume(ctx context.Context, fraction float64) error
	SetShuffle(ctx context.Context, on bool) error
	SetRepeat(ctx context.Context, on bool) error
	Transfer(ctx context.Context, fromDeviceID, toDeviceID string) error
	Close() error
}

// Backend constructs collaborator handles for one session.
type Backend interface {
	NewPlaybackChannel(ctx context.Context) (PlaybackChannel, error)
	NewSongCatalog() SongCatalog
	NewArtistCatalog() ArtistCatalog
	NewLibraryCatalog() LibraryCatalog
	// CheckAuth verifies the session token without touching playback.
	CheckAuth(ctx context.Context) error
}

// Clock returns the current unix time in seconds.
type Clock interface {
	NowUnix() int64
}

// IDGen returns unique correlation IDs.
type IDGen interface {
	NewID() string
}
