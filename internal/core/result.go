package core

import (
	"encoding/json"

	"github.com/mikey-austin/clautify/internal/ports"
	"github.com/mikey-austin/clautify/pkg/dsl"
)

// StatusOK is the status of every successful Result.
const StatusOK = "ok"

// Result is the outcome of one command. Fields not relevant to the
// command are left empty and omitted from JSON.
type Result struct {
	Status string `json:"status"`
	Action string `json:"action,omitempty"`
	Query  string `json:"query,omitempty"`

	Kind        dsl.Kind `json:"kind,omitempty"`
	Target      string   `json:"target,omitempty"`
	Targets     []string `json:"targets,omitempty"`
	ContextKind dsl.Kind `json:"context_kind,omitempty"`
	Context     string   `json:"context,omitempty"`
	Terms       []string `json:"terms,omitempty"`
	ResolvedURI string   `json:"resolved_uri,omitempty"`
	PlaylistID  string   `json:"playlist_id,omitempty"`

	N               *int `json:"n,omitempty"`
	PositionSeconds *int `json:"position_s,omitempty"`

	Volume    *float64 `json:"volume,omitempty"`
	VolumeRel *int     `json:"volume_rel,omitempty"`
	Mode      string   `json:"mode,omitempty"`
	Device    string   `json:"device,omitempty"`

	Limit *int `json:"limit,omitempty"`

	Data json.RawMessage `json:"data,omitempty"`

	NowPlaying *ports.Track   `json:"now_playing,omitempty"`
	Queue      []ports.Track  `json:"queue,omitempty"`
	Devices    []ports.Device `json:"devices,omitempty"`
	History    []ports.Track  `json:"history,omitempty"`
}

// Name returns the action or query name.
func (r Result) Name() string {
	if r.Action != "" {
		return r.Action
	}
	return r.Query
}

// HealthResult reports whether the catalog accepts the session token.
type HealthResult struct {
	Status        string `json:"status"`
	Authenticated bool   `json:"authenticated"`
	Error         string `json:"error,omitempty"`
}
