package dsl

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// Kind is the entity kind a command targets.
type Kind string

const (
	KindTrack    Kind = "track"
	KindAlbum    Kind = "album"
	KindArtist   Kind = "artist"
	KindPlaylist Kind = "playlist"
)

// Kinds lists every entity kind in grammar order.
var Kinds = []Kind{KindTrack, KindAlbum, KindArtist, KindPlaylist}

// ParseKind converts a kind keyword, case-insensitively.
func ParseKind(word string) (Kind, bool) {
	switch Kind(strings.ToLower(word)) {
	case KindTrack:
		return KindTrack, true
	case KindAlbum:
		return KindAlbum, true
	case KindArtist:
		return KindArtist, true
	case KindPlaylist:
		return KindPlaylist, true
	default:
		return "", false
	}
}

// Action names.
const (
	ActionPlay          = "play"
	ActionPause         = "pause"
	ActionResume        = "resume"
	ActionSkip          = "skip"
	ActionSeek          = "seek"
	ActionQueue         = "queue"
	ActionLibraryAdd    = "library_add"
	ActionLibraryRemove = "library_remove"
	ActionLibraryCreate = "library_create"
	ActionLibraryDelete = "library_delete"
	ActionSet           = "set"
)

// Query names.
const (
	QuerySearch      = "search"
	QueryInfo        = "info"
	QueryRecommend   = "recommend"
	QueryStatus      = "status"
	QueryLibraryList = "library_list"
)

// Playback modes accepted by the mode modifier.
const (
	ModeShuffle = "shuffle"
	ModeRepeat  = "repeat"
	ModeNormal  = "normal"
)

// Command is the structured form of one command line. Exactly one of
// Action and Query is set.
type Command struct {
	Action string `json:"action,omitempty"`
	Query  string `json:"query,omitempty"`

	Kind        Kind     `json:"kind,omitempty"`
	Target      string   `json:"target,omitempty"`
	Targets     []string `json:"targets,omitempty"`
	ContextKind Kind     `json:"context_kind,omitempty"`
	Context     string   `json:"context,omitempty"`
	Terms       []string `json:"terms,omitempty"`

	N               *int     `json:"n,omitempty"`
	PositionSeconds *float64 `json:"position_s,omitempty"`

	Volume    *int   `json:"volume,omitempty"`
	VolumeRel *int   `json:"volume_rel,omitempty"`
	Mode      string `json:"mode,omitempty"`
	Device    string `json:"device,omitempty"`

	Limit  *int `json:"limit,omitempty"`
	Offset *int `json:"offset,omitempty"`
}

// Validate checks the action/query tag.
func (c Command) Validate() error {
	switch {
	case c.Action != "" && c.Query != "":
		return errors.New("command has both action and query")
	case c.Action == "" && c.Query == "":
		return errors.New("command has neither action nor query")
	}
	return nil
}

// HasStateModifiers reports whether any playback state modifier is present.
func (c Command) HasStateModifiers() bool {
	return c.Volume != nil || c.VolumeRel != nil || c.Mode != "" || c.Device != ""
}

// Int returns a pointer to v, for building commands by hand.
func Int(v int) *int {
	return &v
}

// Float returns a pointer to v.
func Float(v float64) *float64 {
	return &v
}

var bareID = regexp.MustCompile(`^[A-Za-z0-9]{22}$`)

// IsBareID reports whether s is a 22 character base62 catalog id.
func IsBareID(s string) bool {
	return bareID.MatchString(s)
}

// URI builds the canonical catalog URI for an id.
func URI(kind Kind, id string) string {
	return fmt.Sprintf("spotify:%s:%s", kind, id)
}

// ExtractID returns the bare id from a catalog URI, an open.spotify.com
// link or an id that is already bare.
func ExtractID(ref string, kind Kind) string {
	prefix := "spotify:" + string(kind) + ":"
	if strings.HasPrefix(ref, prefix) {
		return strings.TrimPrefix(ref, prefix)
	}
	if u, err := url.Parse(ref); err == nil && u.Host != "" {
		ref = u.Path
	}
	marker := string(kind) + "/"
	if idx := strings.Index(ref, marker); idx >= 0 {
		rest := ref[idx+len(marker):]
		if cut := strings.IndexAny(rest, "/?#"); cut >= 0 {
			rest = rest[:cut]
		}
		return rest
	}
	return ref
}
