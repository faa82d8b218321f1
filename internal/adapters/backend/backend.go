// Package backend assembles the catalog and playback adapters selected
// by configuration into a ports.Backend.
package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/mikey-austin/clautify/internal/adapters/config"
	"github.com/mikey-austin/clautify/internal/adapters/mqtt"
	"github.com/mikey-austin/clautify/internal/adapters/pathfinder"
	"github.com/mikey-austin/clautify/internal/adapters/webapi"
	"github.com/mikey-austin/clautify/internal/ports"
)

// Options configures a Backend.
type Options struct {
	Catalog  config.Catalog
	Playback config.Playback
	// HTTPClient is the base transport for catalog and Web API calls.
	HTTPClient *http.Client
	Logger     *zap.Logger
	Clock      ports.Clock
	IDGen      ports.IDGen
}

// Backend shares one catalog client across catalogs and builds a fresh
// playback channel on demand.
type Backend struct {
	catalog  *pathfinder.Client
	tokens   oauth2.TokenSource
	playback config.Playback
	http     *http.Client
	log      *zap.Logger
	clock    ports.Clock
	ids      ports.IDGen
}

// New validates opts and creates a Backend.
func New(opts Options) (*Backend, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	switch opts.Playback.Backend {
	case config.BackendWebAPI:
	case config.BackendMQTT:
		if opts.Playback.Broker == "" || opts.Playback.NodeID == "" {
			return nil, errors.New("mqtt playback requires broker and node_id")
		}
		if opts.Clock == nil || opts.IDGen == nil {
			return nil, errors.New("mqtt playback requires a clock and id generator")
		}
	default:
		return nil, fmt.Errorf("unknown playback backend %q", opts.Playback.Backend)
	}

	tokens := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: opts.Catalog.Token, TokenType: "Bearer"})
	catalog := pathfinder.New(pathfinder.Options{
		BaseURL:     opts.Catalog.BaseURL,
		SpclientURL: opts.Catalog.SpclientURL,
		Username:    opts.Catalog.Username,
		Language:    opts.Catalog.Language,
		Operations:  opts.Catalog.Operations,
		TokenSource: tokens,
		HTTPClient:  opts.HTTPClient,
		Logger:      opts.Logger.Named("catalog"),
	})
	return &Backend{
		catalog:  catalog,
		tokens:   tokens,
		playback: opts.Playback,
		http:     opts.HTTPClient,
		log:      opts.Logger,
		clock:    opts.Clock,
		ids:      opts.IDGen,
	}, nil
}

// NewPlaybackChannel connects a new channel using the configured backend.
func (b *Backend) NewPlaybackChannel(ctx context.Context) (ports.PlaybackChannel, error) {
	switch b.playback.Backend {
	case config.BackendMQTT:
		return b.mqttChannel(ctx)
	default:
		return b.webapiChannel(ctx)
	}
}

func (b *Backend) webapiChannel(ctx context.Context) (ports.PlaybackChannel, error) {
	base := context.Background()
	if b.http != nil {
		base = context.WithValue(base, oauth2.HTTPClient, b.http)
	}
	return webapi.NewChannel(ctx, webapi.Options{
		BaseURL:    b.playback.WebAPIURL,
		HTTPClient: oauth2.NewClient(base, b.tokens),
		Logger:     b.log.Named("webapi"),
	})
}

func (b *Backend) mqttChannel(ctx context.Context) (ports.PlaybackChannel, error) {
	client, err := mqtt.NewClient(mqtt.Options{
		BrokerURL: b.playback.Broker,
		Username:  b.playback.Username,
		Password:  b.playback.Password,
		TLSCA:     b.playback.TLSCA,
		TLSCert:   b.playback.TLSCert,
		TLSKey:    b.playback.TLSKey,
		TopicBase: b.playback.TopicBase,
		Timeout:   b.playback.Timeout(),
		Clock:     b.clock,
		IDGen:     b.ids,
	})
	if err != nil {
		return nil, fmt.Errorf("connect broker: %w", err)
	}
	channel, err := mqtt.NewChannel(ctx, client, b.playback.NodeID)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	b.log.Debug("mqtt channel ready", zap.String("node", b.playback.NodeID), zap.String("device", channel.DeviceID()))
	return channel, nil
}

func (b *Backend) NewSongCatalog() ports.SongCatalog {
	return b.catalog
}

func (b *Backend) NewArtistCatalog() ports.ArtistCatalog {
	return b.catalog
}

func (b *Backend) NewLibraryCatalog() ports.LibraryCatalog {
	return b.catalog
}

func (b *Backend) CheckAuth(ctx context.Context) error {
	return b.catalog.CheckAuth(ctx)
}
