package pathfinder

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/mikey-austin/clautify/internal/paging"
	"github.com/mikey-austin/clautify/pkg/dsl"
)

// Operation names understood by the partner API.
const (
	OpSearchDesktop      = "searchDesktop"
	OpSearchArtists      = "searchArtists"
	OpGetTrack           = "getTrack"
	OpArtistOverview     = "queryArtistOverview"
	OpGetAlbum           = "getAlbum"
	OpFetchPlaylist      = "fetchPlaylist"
	OpLibrary            = "libraryV3"
	OpAddToLibrary       = "addToLibrary"
	OpRemoveFromLibrary  = "removeFromLibrary"
	OpAddToPlaylist      = "addToPlaylist"
	OpRemoveFromPlaylist = "removeFromPlaylist"
)

// Operations lists every operation that needs a persisted-query hash.
var Operations = []string{
	OpSearchDesktop, OpSearchArtists, OpGetTrack, OpArtistOverview, OpGetAlbum,
	OpFetchPlaylist, OpLibrary, OpAddToLibrary, OpRemoveFromLibrary,
	OpAddToPlaylist, OpRemoveFromPlaylist,
}

const (
	playlistTotalPath = "data.playlistV2.content.totalCount"
	playlistItemsPath = "data.playlistV2.content.items"
	playlistPageSize  = 343

	rootlistAdd    = 2
	rootlistRemove = 3
)

var playlistURIPattern = regexp.MustCompile(`spotify:playlist:[a-zA-Z0-9]+`)

func (c *Client) SearchSongs(ctx context.Context, term string, limit, offset int) (json.RawMessage, error) {
	return c.query(ctx, OpSearchDesktop, map[string]any{
		"searchTerm":                    term,
		"offset":                        offset,
		"limit":                         limit,
		"numberOfTopResults":            5,
		"includeAudiobooks":             true,
		"includeArtistHasConcertsField": false,
		"includePreReleases":            true,
		"includeLocalConcertsField":     false,
	})
}

func (c *Client) TrackInfo(ctx context.Context, id string) (json.RawMessage, error) {
	return c.query(ctx, OpGetTrack, map[string]any{"uri": dsl.URI(dsl.KindTrack, id)})
}

func (c *Client) LikeSong(ctx context.Context, id string) error {
	_, err := c.mutate(ctx, OpAddToLibrary, map[string]any{"libraryItemUris": []string{dsl.URI(dsl.KindTrack, id)}})
	return err
}

func (c *Client) UnlikeSong(ctx context.Context, id string) error {
	_, err := c.mutate(ctx, OpRemoveFromLibrary, map[string]any{"libraryItemUris": []string{dsl.URI(dsl.KindTrack, id)}})
	return err
}

func (c *Client) SearchArtists(ctx context.Context, term string, limit, offset int) (json.RawMessage, error) {
	return c.query(ctx, OpSearchArtists, map[string]any{
		"searchTerm":         term,
		"offset":             offset,
		"limit":              limit,
		"numberOfTopResults": 5,
		"includeAudiobooks":  true,
		"includePreReleases": false,
	})
}

func (c *Client) ArtistInfo(ctx context.Context, id string) (json.RawMessage, error) {
	return c.query(ctx, OpArtistOverview, map[string]any{
		"uri":    dsl.URI(dsl.KindArtist, id),
		"locale": c.language,
	})
}

func (c *Client) Follow(ctx context.Context, id string) error {
	_, err := c.mutate(ctx, OpAddToLibrary, map[string]any{"uris": []string{dsl.URI(dsl.KindArtist, id)}})
	return err
}

func (c *Client) Unfollow(ctx context.Context, id string) error {
	_, err := c.mutate(ctx, OpRemoveFromLibrary, map[string]any{"uris": []string{dsl.URI(dsl.KindArtist, id)}})
	return err
}

func (c *Client) AlbumInfo(ctx context.Context, id string, limit, offset int) (json.RawMessage, error) {
	return c.query(ctx, OpGetAlbum, map[string]any{
		"locale": "",
		"uri":    dsl.URI(dsl.KindAlbum, id),
		"offset": offset,
		"limit":  limit,
	})
}

func (c *Client) PlaylistInfo(ctx context.Context, id string, limit, offset int) (json.RawMessage, error) {
	return c.query(ctx, OpFetchPlaylist, map[string]any{
		"uri":                       dsl.URI(dsl.KindPlaylist, id),
		"offset":                    offset,
		"limit":                     limit,
		"enableWatchFeedEntrypoint": false,
	})
}

func (c *Client) Library(ctx context.Context, filters []string, limit, offset int) (json.RawMessage, error) {
	if filters == nil {
		filters = []string{}
	}
	return c.query(ctx, OpLibrary, map[string]any{
		"filters":                      filters,
		"order":                        nil,
		"textFilter":                   "",
		"features":                     []string{"LIKED_SONGS", "YOUR_EPISODES", "PRERELEASES"},
		"limit":                        limit,
		"offset":                       offset,
		"flatten":                      false,
		"expandedFolders":              []string{},
		"folderUri":                    nil,
		"includeFoldersWhenFlattening": true,
	})
}

func (c *Client) SavePlaylist(ctx context.Context, id string) error {
	return c.rootlist(ctx, "savePlaylist", rootlistAdd, dsl.URI(dsl.KindPlaylist, id))
}

func (c *Client) UnsavePlaylist(ctx context.Context, id string) error {
	return c.rootlist(ctx, "unsavePlaylist", rootlistRemove, dsl.URI(dsl.KindPlaylist, id))
}

// DeletePlaylist removes the playlist from the user's rootlist, which is
// how owned playlists are deleted.
func (c *Client) DeletePlaylist(ctx context.Context, id string) error {
	return c.rootlist(ctx, "deletePlaylist", rootlistRemove, dsl.URI(dsl.KindPlaylist, id))
}

func (c *Client) AddToPlaylist(ctx context.Context, playlistID, trackID string) error {
	_, err := c.mutate(ctx, OpAddToPlaylist, map[string]any{
		"uris":        []string{dsl.URI(dsl.KindTrack, trackID)},
		"playlistUri": dsl.URI(dsl.KindPlaylist, playlistID),
		"newPosition": map[string]any{"moveType": "BOTTOM_OF_PLAYLIST", "fromUid": nil},
	})
	return err
}

// RemoveFromPlaylist removes every entry of trackID. Entries are
// addressed by uid, so the playlist is walked first.
func (c *Client) RemoveFromPlaylist(ctx context.Context, playlistID, trackID string) error {
	pager := paging.Pager{
		Fetch: func(ctx context.Context, limit, offset int) ([]byte, error) {
			return c.PlaylistInfo(ctx, playlistID, limit, offset)
		},
		TotalPath: playlistTotalPath,
		ItemsPath: playlistItemsPath,
		PageSize:  playlistPageSize,
	}
	var uids []string
	for page, err := range pager.Pages(ctx) {
		if err != nil {
			return err
		}
		for _, item := range page {
			if strings.Contains(item.Get("itemV2.data.uri").String(), trackID) {
				uids = append(uids, item.Get("uid").String())
			}
		}
	}
	if len(uids) == 0 {
		return &Error{Op: OpRemoveFromPlaylist, Message: "track not found in playlist", Detail: dsl.URI(dsl.KindTrack, trackID)}
	}
	_, err := c.mutate(ctx, OpRemoveFromPlaylist, map[string]any{
		"playlistUri": dsl.URI(dsl.KindPlaylist, playlistID),
		"uids":        uids,
	})
	return err
}

// CreatePlaylist creates an empty playlist, adds it to the rootlist and
// returns its bare id.
func (c *Client) CreatePlaylist(ctx context.Context, name string) (string, error) {
	payload := map[string]any{
		"ops": []any{map[string]any{
			"kind": 6,
			"updateListAttributes": map[string]any{
				"newAttributes": map[string]any{
					"values":  map[string]any{"name": name, "formatAttributes": []any{}, "pictureSize": []any{}},
					"noValue": []any{},
				},
			},
		}},
	}
	body, err := c.spclientJSON(ctx, "createPlaylist", "/playlist/v2/playlist", payload)
	if err != nil {
		return "", err
	}
	uri := playlistURIPattern.Find(body)
	if uri == nil {
		return "", &Error{Op: "createPlaylist", Message: "response did not contain a playlist uri", Detail: truncate(body)}
	}
	if err := c.rootlist(ctx, "createPlaylist", rootlistAdd, string(uri)); err != nil {
		return "", err
	}
	return dsl.ExtractID(string(uri), dsl.KindPlaylist), nil
}

func (c *Client) Recommend(ctx context.Context, playlistID string, n int) (json.RawMessage, error) {
	body, err := c.spclientJSON(ctx, "recommend", "/playlistextender/extendp/", map[string]any{
		"playlistURI":  dsl.URI(dsl.KindPlaylist, playlistID),
		"trackSkipIDs": []string{},
		"numResults":   n,
	})
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(body) {
		return nil, &Error{Op: "recommend", Message: "invalid JSON response", Detail: truncate(body)}
	}
	return body, nil
}

func (c *Client) rootlist(ctx context.Context, op string, kind int, uri string) error {
	if c.username == "" {
		return &Error{Op: op, Message: "catalog username is required for library playlist changes"}
	}
	var change map[string]any
	if kind == rootlistAdd {
		change = map[string]any{
			"kind": rootlistAdd,
			"add": map[string]any{
				"items": []any{map[string]any{
					"uri": uri,
					"attributes": map[string]any{
						"timestamp":        c.now().Unix(),
						"formatAttributes": []any{},
						"availableSignals": []any{},
					},
				}},
				"addFirst": true,
			},
		}
	} else {
		change = map[string]any{
			"kind": rootlistRemove,
			"rem": map[string]any{
				"items":      []any{map[string]any{"uri": uri}},
				"itemsAsKey": true,
			},
		}
	}
	payload := map[string]any{
		"deltas": []any{map[string]any{
			"ops":  []any{change},
			"info": map[string]any{"source": map[string]any{"client": 5}},
		}},
		"wantResultingRevisions": false,
		"wantSyncResult":         false,
		"nonces":                 []any{},
	}
	_, err := c.spclientJSON(ctx, op, fmt.Sprintf("/playlist/v2/user/%s/rootlist/changes", c.username), payload)
	return err
}
