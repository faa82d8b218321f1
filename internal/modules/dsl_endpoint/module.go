package dslendpoint

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/mikey-austin/clautify/internal/core"
	"github.com/mikey-austin/clautify/internal/metrics"
	"github.com/mikey-austin/clautify/internal/ports"
	"github.com/mikey-austin/clautify/pkg/mu"
)

// Config configures the DSL endpoint module.
type Config struct {
	NodeID    string
	TopicBase string
	Name      string
}

// Session runs command lines for the endpoint.
type Session interface {
	Run(ctx context.Context, text string) (core.Result, error)
	Health(ctx context.Context) core.HealthResult
}

// Transport is the MQTT surface the module needs.
type Transport interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
	Subscribe(topic string, qos byte, handler paho.MessageHandler) error
	Unsubscribe(topic string) error
}

// Module serves dsl.run and dsl.health commands against one session.
// Commands are executed one at a time.
type Module struct {
	log      *zap.Logger
	client   Transport
	clock    ports.Clock
	config   Config
	cmdTopic string

	mu      sync.Mutex
	session Session
}

// NewModule initializes the endpoint module.
func NewModule(log *zap.Logger, client Transport, session Session, clock ports.Clock, cfg Config) (*Module, error) {
	if strings.TrimSpace(cfg.NodeID) == "" {
		return nil, errors.New("dsl_endpoint node_id required")
	}
	if session == nil || clock == nil {
		return nil, errors.New("dsl_endpoint requires a session and clock")
	}
	if strings.TrimSpace(cfg.TopicBase) == "" {
		cfg.TopicBase = mu.BaseTopic
	}
	if strings.TrimSpace(cfg.Name) == "" {
		cfg.Name = "Clautify DSL Endpoint"
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Module{
		log:      log,
		client:   client,
		clock:    clock,
		config:   cfg,
		cmdTopic: mu.TopicCommands(cfg.TopicBase, cfg.NodeID),
		session:  session,
	}, nil
}

// Run subscribes to the command topic and serves until ctx is done.
func (m *Module) Run(ctx context.Context) error {
	handler := func(_ paho.Client, msg paho.Message) {
		m.handleMessage(ctx, msg.Payload())
	}

	if err := m.client.Subscribe(m.cmdTopic, 1, handler); err != nil {
		return err
	}
	defer m.client.Unsubscribe(m.cmdTopic)

	if err := m.publishPresence(); err != nil {
		return err
	}
	metrics.SessionsOpen.Inc()
	defer metrics.SessionsOpen.Dec()

	<-ctx.Done()
	return nil
}

func (m *Module) publishPresence() error {
	presence := mu.Presence{
		NodeID: m.config.NodeID,
		Kind:   "dsl",
		Name:   m.config.Name,
		Caps:   map[string]any{"commands": []string{mu.TypeDSLRun, mu.TypeDSLHealth}},
		TS:     m.clock.NowUnix(),
	}

	payload, err := json.Marshal(presence)
	if err != nil {
		return err
	}
	return m.client.Publish(mu.TopicPresence(m.config.TopicBase, m.config.NodeID), 1, true, payload)
}

func (m *Module) handleMessage(ctx context.Context, payload []byte) {
	var cmd mu.CommandEnvelope
	if err := json.Unmarshal(payload, &cmd); err != nil {
		m.log.Warn("invalid command", zap.Error(err))
		return
	}

	reply := m.dispatch(ctx, cmd)
	if cmd.ReplyTo == "" {
		return
	}
	out, err := json.Marshal(reply)
	if err != nil {
		m.log.Error("marshal reply", zap.Error(err))
		return
	}
	if err := m.client.Publish(cmd.ReplyTo, 1, false, out); err != nil {
		m.log.Error("publish reply", zap.Error(err))
	}
}

func (m *Module) dispatch(ctx context.Context, cmd mu.CommandEnvelope) mu.ReplyEnvelope {
	if err := mu.ValidateCommandEnvelope(cmd); err != nil {
		return m.errorReply(cmd, mu.CodeInvalid, err.Error())
	}

	switch cmd.Type {
	case mu.TypeDSLRun:
		return m.run(ctx, cmd)
	case mu.TypeDSLHealth:
		return m.health(ctx, cmd)
	default:
		return m.errorReply(cmd, mu.CodeInvalid, "unsupported command")
	}
}

func (m *Module) run(ctx context.Context, cmd mu.CommandEnvelope) mu.ReplyEnvelope {
	var body mu.DSLRunBody
	if err := json.Unmarshal(cmd.Body, &body); err != nil {
		return m.errorReply(cmd, mu.CodeInvalid, "invalid body")
	}
	if strings.TrimSpace(body.Command) == "" {
		return m.errorReply(cmd, mu.CodeInvalid, "command required")
	}

	m.mu.Lock()
	result, err := m.session.Run(ctx, body.Command)
	m.mu.Unlock()
	if err != nil {
		code := core.ReplyCode(err)
		m.log.Info("command failed", zap.String("id", cmd.ID), zap.String("code", code), zap.Error(err))
		reply := m.errorReply(cmd, code, err.Error())
		var dslErr *core.DSLError
		if errors.As(err, &dslErr) && dslErr.Detail != "" {
			if detail, mErr := json.Marshal(dslErr.Detail); mErr == nil {
				reply.Err.Detail = detail
			}
		}
		return reply
	}

	data, err := json.Marshal(result)
	if err != nil {
		return m.errorReply(cmd, mu.CodeError, err.Error())
	}
	reply, err := mu.NewReply(cmd, m.clock.NowUnix(), mu.DSLRunReply{Result: data})
	if err != nil {
		return m.errorReply(cmd, mu.CodeError, err.Error())
	}
	metrics.EndpointRequestsTotal.WithLabelValues("OK").Inc()
	m.log.Debug("command done", zap.String("id", cmd.ID), zap.String("command", result.Name()))
	return reply
}

func (m *Module) health(ctx context.Context, cmd mu.CommandEnvelope) mu.ReplyEnvelope {
	m.mu.Lock()
	health := m.session.Health(ctx)
	m.mu.Unlock()

	reply, err := mu.NewReply(cmd, m.clock.NowUnix(), mu.DSLHealthReply{
		Status:        health.Status,
		Authenticated: health.Authenticated,
		Error:         health.Error,
	})
	if err != nil {
		return m.errorReply(cmd, mu.CodeError, err.Error())
	}
	metrics.EndpointRequestsTotal.WithLabelValues("OK").Inc()
	return reply
}

func (m *Module) errorReply(cmd mu.CommandEnvelope, code, message string) mu.ReplyEnvelope {
	metrics.EndpointRequestsTotal.WithLabelValues(code).Inc()
	return mu.NewErrorReply(cmd, m.clock.NowUnix(), code, message)
}
