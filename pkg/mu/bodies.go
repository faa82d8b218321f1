package mu

import "encoding/json"

// DSLRunBody carries one command line for a DSL endpoint.
type DSLRunBody struct {
	Command string `json:"command"`
}

// DSLRunReply carries the command result mapping.
type DSLRunReply struct {
	Result json.RawMessage `json:"result"`
}

// DSLHealthReply reports the endpoint session's catalog authentication.
type DSLHealthReply struct {
	Status        string `json:"status"`
	Authenticated bool   `json:"authenticated"`
	Error         string `json:"error,omitempty"`
}

// PlaybackSeekBody moves the playhead.
type PlaybackSeekBody struct {
	PositionMS int64 `json:"positionMs"`
}

// PlaybackPlayBody starts playback of a URI, optionally inside a context.
type PlaybackPlayBody struct {
	URI        string `json:"uri"`
	ContextURI string `json:"contextUri,omitempty"`
}

// PlaybackSetVolumeBody sets the device volume as a fraction in [0,1].
type PlaybackSetVolumeBody struct {
	Volume float64 `json:"volume"`
}

// PlaybackToggleBody switches shuffle or repeat.
type PlaybackToggleBody struct {
	Enabled bool `json:"enabled"`
}

// PlaybackTransferBody moves playback between devices.
type PlaybackTransferBody struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// QueueAddBody appends a track to the play queue.
type QueueAddBody struct {
	URI string `json:"uri"`
}

// EmptyBody is sent for commands without arguments.
type EmptyBody struct{}

// StateReply is the bridge node's playback snapshot.
type StateReply struct {
	DeviceID       string        `json:"deviceId"`
	ActiveDeviceID string        `json:"activeDeviceId,omitempty"`
	Playing        bool          `json:"playing"`
	Devices        []DeviceState `json:"devices"`
	Current        *TrackState   `json:"current,omitempty"`
	Queue          []TrackState  `json:"queue,omitempty"`
	History        []TrackState  `json:"history,omitempty"`
}

// DeviceState describes one device. Volume is on the raw 0..65535 scale.
type DeviceState struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Type   string `json:"type,omitempty"`
	Volume int    `json:"volume"`
}

// TrackState describes a track in a snapshot.
type TrackState struct {
	URI     string   `json:"uri"`
	Name    string   `json:"name"`
	Artists []string `json:"artists,omitempty"`
}
