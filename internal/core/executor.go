package core

import (
	"context"
	"encoding/json"
	"math"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/mikey-austin/clautify/internal/paging"
	"github.com/mikey-austin/clautify/internal/ports"
	"github.com/mikey-austin/clautify/pkg/dsl"
)

const (
	defaultSearchLimit  = 10
	defaultInfoLimit    = 25
	defaultLibraryLimit = 50
	defaultStatusLimit  = 5
	defaultRecommendN   = 20

	// rawVolumeScale is the device volume range reported by the channel.
	rawVolumeScale = 65535

	libraryTotalPath = "data.me.libraryV3.totalCount"
	libraryItemsPath = "data.me.libraryV3.items"
)

var libraryFilters = map[dsl.Kind][]string{
	dsl.KindTrack:    nil,
	dsl.KindPlaylist: {"Playlists"},
	dsl.KindArtist:   {"Artists"},
	dsl.KindAlbum:    {"Albums"},
}

// Observer receives execution telemetry.
type Observer interface {
	CommandDone(name, outcome string, elapsed time.Duration)
	ChannelBuilt()
	ChannelRetried()
}

type nopObserver struct{}

func (nopObserver) CommandDone(string, string, time.Duration) {}
func (nopObserver) ChannelBuilt()                             {}
func (nopObserver) ChannelRetried()                           {}

// Options configures an Executor.
type Options struct {
	Logger   *zap.Logger
	Observer Observer
	// Eager builds the playback channel at construction.
	Eager bool
}

type handler func(ctx context.Context, cmd dsl.Command) (Result, error)

// Executor dispatches commands to the collaborators of one account. It
// owns the playback channel and rebuilds it once when it is lost
// mid-command. An Executor is not safe for concurrent use.
type Executor struct {
	backend  ports.Backend
	log      *zap.Logger
	observer Observer
	resolver Resolver

	volumeCeiling float64

	channel ports.PlaybackChannel
	songs   ports.SongCatalog
	artists ports.ArtistCatalog
	library ports.LibraryCatalog

	actions map[string]handler
	queries map[string]handler
}

// NewExecutor creates an executor over backend.
func NewExecutor(ctx context.Context, backend ports.Backend, opts Options) (*Executor, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}

	e := &Executor{
		backend:       backend,
		log:           opts.Logger,
		observer:      opts.Observer,
		volumeCeiling: 1,
	}
	e.resolver = Resolver{Songs: e.songCatalog, Artists: e.artistCatalog}
	e.actions = map[string]handler{
		dsl.ActionPlay:          e.play,
		dsl.ActionSkip:          e.skip,
		dsl.ActionSeek:          e.seek,
		dsl.ActionQueue:         e.queue,
		dsl.ActionLibraryAdd:    e.libraryAdd,
		dsl.ActionLibraryRemove: e.libraryRemove,
		dsl.ActionLibraryCreate: e.libraryCreate,
		dsl.ActionLibraryDelete: e.libraryDelete,
	}
	e.queries = map[string]handler{
		dsl.QuerySearch:      e.search,
		dsl.QueryInfo:        e.info,
		dsl.QueryRecommend:   e.recommend,
		dsl.QueryStatus:      e.status,
		dsl.QueryLibraryList: e.libraryList,
	}

	if opts.Eager {
		if _, err := e.player(ctx); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// VolumeCeiling returns the maximum volume fraction.
func (e *Executor) VolumeCeiling() float64 {
	return e.volumeCeiling
}

// SetVolumeCeiling sets the maximum volume fraction, clamped to [0,1].
func (e *Executor) SetVolumeCeiling(v float64) {
	e.volumeCeiling = clamp(v, 0, 1)
}

// Close releases the playback channel if one was built.
func (e *Executor) Close() error {
	if e.channel == nil {
		return nil
	}
	err := e.channel.Close()
	e.channel = nil
	return err
}

// Execute runs cmd. A transient playback channel failure discards the
// channel and runs the whole command once more; any other failure, or a
// second failure, is returned. Errors are always *DSLError.
func (e *Executor) Execute(ctx context.Context, cmd dsl.Command) (Result, error) {
	start := time.Now()
	name := commandName(cmd)
	e.log.Debug("executing command", zap.String("command", name))

	res, err := e.executeOnce(ctx, cmd)
	if err != nil && IsTransient(err) {
		e.log.Warn("playback channel lost, retrying", zap.String("command", name), zap.Error(err))
		e.observer.ChannelRetried()
		e.resetChannel()
		res, err = e.executeOnce(ctx, cmd)
	}

	outcome := "ok"
	if err != nil {
		outcome = string(KindOf(err))
		e.log.Debug("command failed", zap.String("command", name), zap.Error(err))
	}
	e.observer.CommandDone(name, outcome, time.Since(start))
	return res, err
}

func (e *Executor) executeOnce(ctx context.Context, cmd dsl.Command) (Result, error) {
	if err := cmd.Validate(); err != nil {
		return Result{}, &DSLError{Kind: ErrMalformedCommand, Msg: "Invalid command: " + err.Error(), Command: &cmd}
	}

	var (
		res Result
		err error
	)
	if cmd.Action != "" {
		res, err = e.dispatchAction(ctx, cmd)
	} else {
		res, err = e.dispatchQuery(ctx, cmd)
	}
	if err != nil {
		return Result{}, wrapError(cmd, err)
	}
	return res, nil
}

func (e *Executor) dispatchAction(ctx context.Context, cmd dsl.Command) (Result, error) {
	var res Result
	switch cmd.Action {
	case dsl.ActionPause, dsl.ActionResume:
		ch, err := e.player(ctx)
		if err != nil {
			return Result{}, err
		}
		if cmd.Action == dsl.ActionPause {
			err = ch.Pause(ctx)
		} else {
			err = ch.Resume(ctx)
		}
		if err != nil {
			return Result{}, err
		}
		res = Result{Status: StatusOK, Action: cmd.Action}
	case dsl.ActionSet:
		res = Result{Status: StatusOK, Action: dsl.ActionSet, VolumeRel: cmd.VolumeRel, Mode: cmd.Mode, Device: cmd.Device}
		if cmd.Volume != nil {
			v := float64(*cmd.Volume)
			res.Volume = &v
		}
	default:
		h, ok := e.actions[cmd.Action]
		if !ok {
			return Result{}, newError(ErrUnknownAction, "Unknown action: %s", cmd.Action)
		}
		var err error
		if res, err = h(ctx, cmd); err != nil {
			return Result{}, err
		}
	}

	if err := e.applyStateModifiers(ctx, cmd); err != nil {
		return Result{}, err
	}
	if cmd.Volume != nil && res.Volume != nil {
		v := math.Min(float64(*cmd.Volume), e.volumeCeiling*100)
		res.Volume = &v
	}
	return res, nil
}

func (e *Executor) dispatchQuery(ctx context.Context, cmd dsl.Command) (Result, error) {
	h, ok := e.queries[cmd.Query]
	if !ok {
		return Result{}, newError(ErrUnknownQuery, "Unknown query: %s", cmd.Query)
	}
	return h(ctx, cmd)
}

func (e *Executor) applyStateModifiers(ctx context.Context, cmd dsl.Command) error {
	if !cmd.HasStateModifiers() {
		return nil
	}
	if cmd.Volume != nil && (*cmd.Volume < 0 || *cmd.Volume > 100) {
		return newError(ErrInvalidVolume, "Volume must be 0-100, got %d", *cmd.Volume)
	}
	ch, err := e.player(ctx)
	if err != nil {
		return err
	}

	if cmd.Volume != nil {
		if err := ch.SetVolume(ctx, math.Min(float64(*cmd.Volume)/100, e.volumeCeiling)); err != nil {
			return err
		}
	}
	if cmd.VolumeRel != nil {
		state, err := ch.State(ctx)
		if err != nil {
			return err
		}
		device, ok := state.ActiveDevice()
		if !ok {
			return newError(ErrVolumeUnavailable, "Cannot determine current volume for relative adjustment")
		}
		current := float64(device.Volume) / rawVolumeScale
		next := clamp(current+float64(*cmd.VolumeRel)/100, 0, e.volumeCeiling)
		if err := ch.SetVolume(ctx, next); err != nil {
			return err
		}
	}
	if cmd.Mode != "" {
		if err := ch.SetShuffle(ctx, cmd.Mode == dsl.ModeShuffle); err != nil {
			return err
		}
		if err := ch.SetRepeat(ctx, cmd.Mode == dsl.ModeRepeat); err != nil {
			return err
		}
	}
	if cmd.Device != "" {
		deviceID, err := e.resolver.ResolveDevice(ctx, ch, cmd.Device)
		if err != nil {
			return err
		}
		if err := ch.Transfer(ctx, ch.DeviceID(), deviceID); err != nil {
			return err
		}
	}
	return nil
}

func (e *Executor) play(ctx context.Context, cmd dsl.Command) (Result, error) {
	uri, err := e.resolver.ResolveTarget(ctx, cmd.Kind, cmd.Target)
	if err != nil {
		return Result{}, err
	}
	ch, err := e.player(ctx)
	if err != nil {
		return Result{}, err
	}

	res := Result{Status: StatusOK, Action: dsl.ActionPlay, Kind: cmd.Kind, Target: cmd.Target}
	if cmd.Context != "" && cmd.ContextKind != "" {
		contextURI, err := e.resolver.ResolveTarget(ctx, cmd.ContextKind, cmd.Context)
		if err != nil {
			return Result{}, err
		}
		if err := ch.PlayTrack(ctx, uri, contextURI); err != nil {
			return Result{}, err
		}
		res.ContextKind = cmd.ContextKind
		res.Context = cmd.Context
	} else if err := ch.PlayContext(ctx, uri); err != nil {
		return Result{}, err
	}

	if uri != cmd.Target {
		res.ResolvedURI = uri
	}
	return res, nil
}

func (e *Executor) skip(ctx context.Context, cmd dsl.Command) (Result, error) {
	n := intOr(cmd.N, 1)
	ch, err := e.player(ctx)
	if err != nil {
		return Result{}, err
	}
	step := ch.SkipNext
	if n < 0 {
		step = ch.SkipPrev
	}
	for i := 0; i < abs(n); i++ {
		if err := step(ctx); err != nil {
			return Result{}, err
		}
	}
	return Result{Status: StatusOK, Action: dsl.ActionSkip, N: &n}, nil
}

func (e *Executor) seek(ctx context.Context, cmd dsl.Command) (Result, error) {
	if cmd.PositionSeconds == nil {
		return Result{}, newError(ErrMalformedCommand, "seek requires a position")
	}
	if p := *cmd.PositionSeconds; p < 0 || p > dsl.MaxSeekSeconds || math.IsNaN(p) {
		return Result{}, newError(ErrMalformedCommand, "seek position out of range: %v", p)
	}
	seconds := int(*cmd.PositionSeconds)
	ch, err := e.player(ctx)
	if err != nil {
		return Result{}, err
	}
	if err := ch.Seek(ctx, int64(seconds)*1000); err != nil {
		return Result{}, err
	}
	return Result{Status: StatusOK, Action: dsl.ActionSeek, PositionSeconds: &seconds}, nil
}

func (e *Executor) queue(ctx context.Context, cmd dsl.Command) (Result, error) {
	if cmd.Kind != dsl.KindTrack {
		return Result{}, newError(ErrUnsupportedQueueKind, "Queue only supports tracks, use play for %ss", cmd.Kind)
	}
	ch, err := e.player(ctx)
	if err != nil {
		return Result{}, err
	}
	queued := make([]string, 0, len(cmd.Targets))
	for _, target := range cmd.Targets {
		uri, err := e.resolver.ResolveTarget(ctx, cmd.Kind, target)
		if err != nil {
			return Result{}, err
		}
		if err := ch.Enqueue(ctx, uri); err != nil {
			return Result{}, err
		}
		queued = append(queued, target)
	}
	return Result{Status: StatusOK, Action: dsl.ActionQueue, Kind: cmd.Kind, Targets: queued}, nil
}

var libraryKinds = map[dsl.Kind]bool{dsl.KindTrack: true, dsl.KindArtist: true, dsl.KindPlaylist: true}

func (e *Executor) libraryAdd(ctx context.Context, cmd dsl.Command) (Result, error) {
	return e.libraryMutation(ctx, cmd, true)
}

func (e *Executor) libraryRemove(ctx context.Context, cmd dsl.Command) (Result, error) {
	return e.libraryMutation(ctx, cmd, false)
}

func (e *Executor) libraryMutation(ctx context.Context, cmd dsl.Command, add bool) (Result, error) {
	if cmd.Context == "" && cmd.Kind == dsl.KindAlbum {
		return Result{}, newError(ErrUnsupported, "Album library management not yet supported")
	}
	if cmd.Context == "" && !libraryKinds[cmd.Kind] {
		return Result{}, newError(ErrUnsupported, "Library management not supported for kind: %q", cmd.Kind)
	}

	playlistID := ""
	for _, target := range cmd.Targets {
		uri, err := e.resolver.ResolveTarget(ctx, cmd.Kind, target)
		if err != nil {
			return Result{}, err
		}
		id := dsl.ExtractID(uri, cmd.Kind)

		if cmd.Context != "" {
			if playlistID == "" {
				contextURI, err := e.resolver.ResolveTarget(ctx, cmd.ContextKind, cmd.Context)
				if err != nil {
					return Result{}, err
				}
				playlistID = dsl.ExtractID(contextURI, dsl.KindPlaylist)
			}
			if add {
				err = e.libraryCatalog().AddToPlaylist(ctx, playlistID, id)
			} else {
				err = e.libraryCatalog().RemoveFromPlaylist(ctx, playlistID, id)
			}
			if err != nil {
				return Result{}, err
			}
			continue
		}

		switch cmd.Kind {
		case dsl.KindTrack:
			if add {
				err = e.songCatalog().LikeSong(ctx, id)
			} else {
				err = e.songCatalog().UnlikeSong(ctx, id)
			}
		case dsl.KindArtist:
			if add {
				err = e.artistCatalog().Follow(ctx, id)
			} else {
				err = e.artistCatalog().Unfollow(ctx, id)
			}
		case dsl.KindPlaylist:
			if add {
				err = e.libraryCatalog().SavePlaylist(ctx, id)
			} else {
				err = e.libraryCatalog().UnsavePlaylist(ctx, id)
			}
		}
		if err != nil {
			return Result{}, err
		}
	}

	res := Result{Status: StatusOK, Action: cmd.Action, Kind: cmd.Kind, Targets: cmd.Targets}
	if cmd.Context != "" {
		res.ContextKind = cmd.ContextKind
		res.Context = cmd.Context
	}
	return res, nil
}

func (e *Executor) libraryCreate(ctx context.Context, cmd dsl.Command) (Result, error) {
	id, err := e.libraryCatalog().CreatePlaylist(ctx, cmd.Target)
	if err != nil {
		return Result{}, err
	}
	return Result{Status: StatusOK, Action: dsl.ActionLibraryCreate, Kind: dsl.KindPlaylist, Target: cmd.Target, PlaylistID: id}, nil
}

func (e *Executor) libraryDelete(ctx context.Context, cmd dsl.Command) (Result, error) {
	uri, err := e.resolver.ResolveTarget(ctx, dsl.KindPlaylist, cmd.Target)
	if err != nil {
		return Result{}, err
	}
	if err := e.libraryCatalog().DeletePlaylist(ctx, dsl.ExtractID(uri, dsl.KindPlaylist)); err != nil {
		return Result{}, err
	}
	return Result{Status: StatusOK, Action: dsl.ActionLibraryDelete, Kind: dsl.KindPlaylist, Target: cmd.Target}, nil
}

func (e *Executor) search(ctx context.Context, cmd dsl.Command) (Result, error) {
	limit := intOr(cmd.Limit, defaultSearchLimit)
	offset := intOr(cmd.Offset, 0)

	var items []gjson.Result
	for _, term := range cmd.Terms {
		var (
			raw json.RawMessage
			err error
		)
		if cmd.Kind == dsl.KindArtist {
			raw, err = e.artistCatalog().SearchArtists(ctx, term, limit, offset)
		} else {
			raw, err = e.songCatalog().SearchSongs(ctx, term, limit, offset)
		}
		if err != nil {
			return Result{}, err
		}
		items = append(items, searchItems(raw, cmd.Kind)...)
	}

	if cmd.Kind == dsl.KindArtist && len(cmd.Terms) == 1 && len(items) > 0 {
		top := items[0]
		name := top.Get(artistNamePath).String()
		uri := top.Get("data.uri").String()
		if strings.EqualFold(name, cmd.Terms[0]) && uri != "" {
			data, err := e.artistCatalog().ArtistInfo(ctx, dsl.ExtractID(uri, dsl.KindArtist))
			if err != nil {
				return Result{}, err
			}
			return Result{Status: StatusOK, Query: dsl.QueryInfo, Kind: dsl.KindArtist, Target: name, Data: data}, nil
		}
	}

	return Result{Status: StatusOK, Query: dsl.QuerySearch, Kind: cmd.Kind, Terms: cmd.Terms, Data: rawList(items)}, nil
}

func (e *Executor) info(ctx context.Context, cmd dsl.Command) (Result, error) {
	uri, err := e.resolver.ResolveTarget(ctx, cmd.Kind, cmd.Target)
	if err != nil {
		return Result{}, err
	}
	id := dsl.ExtractID(uri, cmd.Kind)
	limit := intOr(cmd.Limit, defaultInfoLimit)
	offset := intOr(cmd.Offset, 0)

	var data json.RawMessage
	switch cmd.Kind {
	case dsl.KindTrack:
		data, err = e.songCatalog().TrackInfo(ctx, id)
	case dsl.KindArtist:
		data, err = e.artistCatalog().ArtistInfo(ctx, id)
	case dsl.KindAlbum:
		data, err = e.libraryCatalog().AlbumInfo(ctx, id, limit, offset)
	case dsl.KindPlaylist:
		data, err = e.libraryCatalog().PlaylistInfo(ctx, id, limit, offset)
	default:
		return Result{}, newError(ErrUnsupported, "Cannot get info for kind: %s", cmd.Kind)
	}
	if err != nil {
		return Result{}, err
	}
	return Result{Status: StatusOK, Query: dsl.QueryInfo, Kind: cmd.Kind, Target: cmd.Target, Data: data}, nil
}

func (e *Executor) status(ctx context.Context, cmd dsl.Command) (Result, error) {
	limit := intOr(cmd.Limit, defaultStatusLimit)
	ch, err := e.player(ctx)
	if err != nil {
		return Result{}, err
	}
	state, err := ch.State(ctx)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Status:     StatusOK,
		Query:      dsl.QueryStatus,
		Limit:      &limit,
		NowPlaying: state.NowPlaying,
		Queue:      truncate(state.Queue, limit),
		// Devices are reported in full; limit only bounds the track lists.
		Devices: state.Devices,
		History: truncate(state.History, limit),
	}, nil
}

func (e *Executor) libraryList(ctx context.Context, cmd dsl.Command) (Result, error) {
	limit := intOr(cmd.Limit, defaultLibraryLimit)
	offset := intOr(cmd.Offset, 0)
	filters := libraryFilters[cmd.Kind]

	var items []gjson.Result
	if limit > 0 {
		pager := paging.Pager{
			Fetch: func(ctx context.Context, l, o int) ([]byte, error) {
				return e.libraryCatalog().Library(ctx, filters, l, o)
			},
			TotalPath: libraryTotalPath,
			ItemsPath: libraryItemsPath,
			PageSize:  min(limit, defaultLibraryLimit),
			Offset:    offset,
		}
		var err error
		if items, err = pager.Collect(ctx, limit); err != nil {
			return Result{}, err
		}
	}
	return Result{Status: StatusOK, Query: dsl.QueryLibraryList, Kind: cmd.Kind, Limit: &limit, Data: rawList(items)}, nil
}

func (e *Executor) recommend(ctx context.Context, cmd dsl.Command) (Result, error) {
	if cmd.Context == "" {
		return Result{}, newError(ErrMalformedCommand, "recommend requires a playlist context")
	}
	n := intOr(cmd.N, defaultRecommendN)
	contextKind := cmd.ContextKind
	if contextKind == "" {
		contextKind = dsl.KindPlaylist
	}
	uri, err := e.resolver.ResolveTarget(ctx, contextKind, cmd.Context)
	if err != nil {
		return Result{}, err
	}
	data, err := e.libraryCatalog().Recommend(ctx, dsl.ExtractID(uri, dsl.KindPlaylist), n)
	if err != nil {
		return Result{}, err
	}
	return Result{Status: StatusOK, Query: dsl.QueryRecommend, Kind: cmd.Kind, Context: cmd.Context, N: &n, Data: data}, nil
}

func (e *Executor) player(ctx context.Context) (ports.PlaybackChannel, error) {
	if e.channel != nil {
		return e.channel, nil
	}
	ch, err := e.backend.NewPlaybackChannel(ctx)
	if err != nil {
		return nil, err
	}
	e.channel = ch
	e.observer.ChannelBuilt()
	return ch, nil
}

// resetChannel drops the playback channel. Safe when none exists.
func (e *Executor) resetChannel() {
	if e.channel == nil {
		return
	}
	if err := e.channel.Close(); err != nil {
		e.log.Debug("closing stale playback channel", zap.Error(err))
	}
	e.channel = nil
}

func (e *Executor) songCatalog() ports.SongCatalog {
	if e.songs == nil {
		e.songs = e.backend.NewSongCatalog()
	}
	return e.songs
}

func (e *Executor) artistCatalog() ports.ArtistCatalog {
	if e.artists == nil {
		e.artists = e.backend.NewArtistCatalog()
	}
	return e.artists
}

func (e *Executor) libraryCatalog() ports.LibraryCatalog {
	if e.library == nil {
		e.library = e.backend.NewLibraryCatalog()
	}
	return e.library
}

func commandName(cmd dsl.Command) string {
	switch {
	case cmd.Action != "":
		return cmd.Action
	case cmd.Query != "":
		return cmd.Query
	default:
		return "invalid"
	}
}

func rawList(items []gjson.Result) json.RawMessage {
	out := make([]json.RawMessage, 0, len(items))
	for _, item := range items {
		out = append(out, json.RawMessage(item.Raw))
	}
	data, err := json.Marshal(out)
	if err != nil {
		return json.RawMessage("[]")
	}
	return data
}

func truncate[T any](items []T, limit int) []T {
	if limit < 0 {
		limit = 0
	}
	if len(items) > limit {
		return items[:limit]
	}
	return items
}

func intOr(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
