package core

import (
	"context"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/mikey-austin/clautify/internal/ports"
	"github.com/mikey-austin/clautify/pkg/dsl"
)

type searchSection struct {
	items string
	uri   string
}

// Result sections of the combined search document. Track items wrap
// their entity one level deeper than albums and playlists.
var searchSections = map[dsl.Kind]searchSection{
	dsl.KindTrack:    {items: "data.searchV2.tracksV2.items", uri: "item.data.uri"},
	dsl.KindAlbum:    {items: "data.searchV2.albumsV2.items", uri: "data.uri"},
	dsl.KindPlaylist: {items: "data.searchV2.playlists.items", uri: "data.uri"},
	dsl.KindArtist:   {items: "data.searchV2.artists.items", uri: "data.uri"},
}

const artistNamePath = "data.profile.name"

// Resolver maps targets to catalog URIs and device names to device ids.
type Resolver struct {
	Songs   func() ports.SongCatalog
	Artists func() ports.ArtistCatalog
}

// ResolveTarget returns the canonical URI for ref. Bare ids are used
// as-is; anything else is searched and the top result wins.
func (r Resolver) ResolveTarget(ctx context.Context, kind dsl.Kind, ref string) (string, error) {
	if dsl.IsBareID(ref) {
		return dsl.URI(kind, ref), nil
	}

	section, ok := searchSections[kind]
	if !ok {
		return "", newError(ErrNoResults, "No results for %q", ref)
	}

	var (
		raw []byte
		err error
	)
	if kind == dsl.KindArtist {
		raw, err = r.Artists().SearchArtists(ctx, ref, 1, 0)
	} else {
		raw, err = r.Songs().SearchSongs(ctx, ref, 1, 0)
	}
	if err != nil {
		return "", err
	}

	items := gjson.GetBytes(raw, section.items)
	if !items.IsArray() {
		return "", newError(ErrNoResults, "No results for %q", ref)
	}
	list := items.Array()
	if len(list) == 0 {
		return "", newError(ErrNoResults, "No results for %q", ref)
	}
	uri := list[0].Get(section.uri).String()
	if uri == "" {
		return "", newError(ErrNoResults, "No results for %q", ref)
	}
	return uri, nil
}

// ResolveDevice matches name against the live device list, ignoring case.
func (r Resolver) ResolveDevice(ctx context.Context, channel ports.PlaybackChannel, name string) (string, error) {
	state, err := channel.State(ctx)
	if err != nil {
		return "", err
	}
	available := make([]string, 0, len(state.Devices))
	for _, device := range state.Devices {
		if strings.EqualFold(device.Name, name) {
			return device.ID, nil
		}
		available = append(available, device.Name)
	}
	return "", newError(ErrDeviceNotFound, "Device %q not found. Available: [%s]", name, strings.Join(available, ", "))
}

// searchItems returns the raw items of kind's section in a search
// document. Missing or malformed sections yield nothing.
func searchItems(raw []byte, kind dsl.Kind) []gjson.Result {
	section, ok := searchSections[kind]
	if !ok {
		return nil
	}
	items := gjson.GetBytes(raw, section.items)
	if !items.IsArray() {
		return nil
	}
	return items.Array()
}
