package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/mikey-austin/clautify/internal/adapters/backend"
	"github.com/mikey-austin/clautify/internal/adapters/clock"
	"github.com/mikey-austin/clautify/internal/adapters/idgen"
	"github.com/mikey-austin/clautify/internal/adapters/mqtt"
	"github.com/mikey-austin/clautify/internal/core"
)

// runner executes command lines locally or on a remote endpoint.
type runner interface {
	Run(ctx context.Context, text string) (core.Result, error)
	Health(ctx context.Context) core.HealthResult
	Close() error
}

func (a *app) runner(ctx context.Context) (runner, error) {
	if a.remote != "" {
		return a.remoteRunner()
	}
	return a.localSession(ctx)
}

func (a *app) localSession(ctx context.Context) (*core.Session, error) {
	b, err := backend.New(backend.Options{
		Catalog:    a.cfg.Catalog,
		Playback:   a.cfg.Playback,
		HTTPClient: http.DefaultClient,
		Logger:     a.log,
		Clock:      clock.Clock{},
		IDGen:      idgen.Generator{},
	})
	if err != nil {
		return nil, core.WrapError(core.ExitUsage, "configure backend", err)
	}
	session, err := core.NewSession(ctx, b, core.Options{Logger: a.log, Eager: a.cfg.Eager})
	if err != nil {
		return nil, err
	}
	if a.ceiling != nil {
		session.SetVolumeCeiling(*a.ceiling)
	}
	return session, nil
}

func (a *app) mqttClient() (*mqtt.Client, error) {
	if a.cfg.Playback.Broker == "" {
		return nil, core.WrapError(core.ExitUsage, "playback broker is required (set [playback] broker in config)", nil)
	}
	timeout := a.cfg.Playback.Timeout()
	if timeout == 0 {
		timeout = a.timeout
	}
	client, err := mqtt.NewClient(mqtt.Options{
		BrokerURL: a.cfg.Playback.Broker,
		Username:  a.cfg.Playback.Username,
		Password:  a.cfg.Playback.Password,
		TLSCA:     a.cfg.Playback.TLSCA,
		TLSCert:   a.cfg.Playback.TLSCert,
		TLSKey:    a.cfg.Playback.TLSKey,
		TopicBase: a.cfg.Playback.TopicBase,
		Timeout:   timeout,
		Clock:     clock.Clock{},
		IDGen:     idgen.Generator{},
	})
	if err != nil {
		return nil, core.WrapError(core.ExitRuntime, "connect broker", err)
	}
	return client, nil
}

func (a *app) remoteRunner() (runner, error) {
	client, err := a.mqttClient()
	if err != nil {
		return nil, err
	}
	return remoteRunner{remote: mqtt.Remote{Requester: client, NodeID: a.remote}, client: client}, nil
}

type remoteRunner struct {
	remote mqtt.Remote
	client *mqtt.Client
}

func (r remoteRunner) Run(ctx context.Context, text string) (core.Result, error) {
	raw, err := r.remote.Run(ctx, text)
	if err != nil {
		return core.Result{}, err
	}
	var result core.Result
	if err := json.Unmarshal(raw, &result); err != nil {
		return core.Result{}, fmt.Errorf("decode remote result: %w", err)
	}
	return result, nil
}

func (r remoteRunner) Health(ctx context.Context) core.HealthResult {
	health, err := r.remote.Health(ctx)
	if err != nil {
		return core.HealthResult{Status: "error", Error: err.Error()}
	}
	return core.HealthResult{Status: health.Status, Authenticated: health.Authenticated, Error: health.Error}
}

func (r remoteRunner) Close() error {
	return r.client.Close()
}
