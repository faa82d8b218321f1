package embeddedmqtt

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	mqtt "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
	"go.uber.org/zap"

	"github.com/mikey-austin/clautify/internal/adapters/tlsconfig"
)

// DefaultListen is the broker address when none is configured.
const DefaultListen = "127.0.0.1:1883"

// Config configures the embedded MQTT broker.
type Config struct {
	Listen         string
	AllowAnonymous bool
	Username       string
	Password       string
	TLSCA          string
	TLSCert        string
	TLSKey         string
}

// TLSEnabled reports whether any TLS material is configured.
func (c Config) TLSEnabled() bool {
	return c.TLSCA != "" || c.TLSCert != "" || c.TLSKey != ""
}

// URL returns the broker URL clients should dial.
func (c Config) URL() string {
	listen := c.Listen
	if strings.TrimSpace(listen) == "" {
		listen = DefaultListen
	}
	return BrokerURL(listen, c.TLSEnabled())
}

// Module runs an embedded MQTT broker so a single clautifyd needs no
// external broker.
type Module struct {
	log    *zap.Logger
	server *mqtt.Server
	config Config
	ready  chan struct{}
}

// NewModule creates a new embedded broker module.
func NewModule(log *zap.Logger, cfg Config) (*Module, error) {
	if strings.TrimSpace(cfg.Listen) == "" {
		cfg.Listen = DefaultListen
	}
	if log == nil {
		log = zap.NewNop()
	}

	server, err := newServer(log, cfg)
	if err != nil {
		return nil, err
	}
	return &Module{log: log, server: server, config: cfg, ready: make(chan struct{})}, nil
}

// Ready is closed once the listener accepts connections.
func (m *Module) Ready() <-chan struct{} {
	return m.ready
}

// Run starts the embedded broker and serves until ctx is done.
func (m *Module) Run(ctx context.Context) error {
	tlsConfig, err := tlsconfig.Server(m.config.TLSCA, m.config.TLSCert, m.config.TLSKey)
	if err != nil {
		return err
	}
	listener := listeners.NewTCP(listeners.Config{ID: "tcp-embedded", Address: m.config.Listen, TLSConfig: tlsConfig})
	if err := m.server.AddListener(listener); err != nil {
		return err
	}
	if err := m.server.Serve(); err != nil {
		return err
	}
	defer m.server.Close()

	if err := WaitForListen(ctx, m.config.Listen, 3*time.Second); err != nil {
		return err
	}
	m.log.Info("embedded mqtt listening", zap.String("listen", m.config.Listen), zap.Bool("tls", tlsConfig != nil))
	close(m.ready)

	<-ctx.Done()
	return nil
}

func newServer(log *zap.Logger, cfg Config) (*mqtt.Server, error) {
	server := mqtt.New(&mqtt.Options{InlineClient: true, Logger: newSlogLogger(log)})

	switch {
	case cfg.AllowAnonymous:
		if err := server.AddHook(new(auth.AllowHook), nil); err != nil {
			return nil, err
		}
	case cfg.Username != "":
		ledger := &auth.Ledger{
			Auth: auth.AuthRules{{Username: auth.RString(cfg.Username), Password: auth.RString(cfg.Password), Allow: true}},
			ACL:  auth.ACLRules{{Username: auth.RString(cfg.Username), Filters: auth.Filters{auth.RString("#"): auth.ReadWrite}}},
		}
		if err := server.AddHook(new(auth.Hook), &auth.Options{Ledger: ledger}); err != nil {
			return nil, err
		}
	default:
		return nil, errors.New("embedded mqtt requires allow_anonymous or username")
	}

	return server, nil
}

// BrokerURL returns the broker URL for a listen address.
func BrokerURL(listen string, tlsEnabled bool) string {
	scheme := "mqtt"
	if tlsEnabled {
		scheme = "mqtts"
	}
	return fmt.Sprintf("%s://%s", scheme, listen)
}

// WaitForListen dials listen until it accepts a connection, timeout
// passes or ctx is done. Wildcard hosts are dialled on loopback.
func WaitForListen(ctx context.Context, listen string, timeout time.Duration) error {
	host, port, err := net.SplitHostPort(listen)
	if err != nil {
		return err
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	addr := net.JoinHostPort(host, port)
	deadline := time.Now().Add(timeout)
	dialer := net.Dialer{Timeout: 200 * time.Millisecond}
	for time.Now().Before(deadline) {
		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err == nil {
			_ = conn.Close()
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
	return fmt.Errorf("embedded mqtt not ready at %s", addr)
}
