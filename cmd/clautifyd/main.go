package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/mikey-austin/clautify/internal/adapters/backend"
	"github.com/mikey-austin/clautify/internal/adapters/clock"
	"github.com/mikey-austin/clautify/internal/adapters/idgen"
	"github.com/mikey-austin/clautify/internal/adapters/mqttserver"
	"github.com/mikey-austin/clautify/internal/core"
	"github.com/mikey-austin/clautify/internal/daemon"
	"github.com/mikey-austin/clautify/internal/metrics"
	dslendpoint "github.com/mikey-austin/clautify/internal/modules/dsl_endpoint"
	embeddedmqtt "github.com/mikey-austin/clautify/internal/modules/embedded_mqtt"
	"github.com/mikey-austin/clautify/pkg/mu"
)

func main() {
	var (
		configPath  string
		broker      string
		identity    string
		topicBase   string
		logLevel    string
		logFormat   string
		logOutput   string
		logSource   bool
		logUTC      bool
		metricsAddr string
		printConfig bool
		dryRun      bool
		moduleOnly  string
	)

	flag.StringVar(&configPath, "config", daemon.DefaultConfigPath(), "config file path")
	flag.StringVar(&broker, "broker", "", "MQTT broker URL override")
	flag.StringVar(&identity, "identity", "", "server identity override")
	flag.StringVar(&topicBase, "topic-base", "", "topic base override")
	flag.StringVar(&logLevel, "log-level", "", "log level override")
	flag.StringVar(&logFormat, "log-format", "", "log format override (console|json)")
	flag.StringVar(&logOutput, "log-output", "", "log output override (stdout|stderr)")
	flag.BoolVar(&logSource, "log-source", false, "include caller in logs")
	flag.BoolVar(&logUTC, "log-utc", false, "use UTC timestamps in logs")
	flag.StringVar(&metricsAddr, "metrics-listen", "", "prometheus listen address override")
	flag.StringVar(&moduleOnly, "module", "", "limit to a single module")
	flag.BoolVar(&printConfig, "print-config", false, "print resolved config and exit")
	flag.BoolVar(&dryRun, "dry-run", false, "validate config and exit")
	flag.Parse()

	cfg, err := daemon.LoadConfig(configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	applyOverrides(&cfg, overrides{
		broker:    broker,
		identity:  identity,
		topicBase: topicBase,
		logLevel:  logLevel,
		logFormat: logFormat,
		logOutput: logOutput,
		logSource: logSource,
		logUTC:    logUTC,
		metrics:   metricsAddr,
	})

	if printConfig {
		printResolvedConfig(os.Stdout, cfg)
		return
	}
	if dryRun {
		return
	}

	logger := daemon.NewLogger(daemon.LogConfig{
		Level:  cfg.Server.LogLevel,
		Format: cfg.Server.LogFormat,
		Output: cfg.Server.LogOutput,
		Source: cfg.Server.LogSource,
		UTC:    cfg.Server.LogUTC,
	})
	defer func() { _ = logger.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, logger, moduleOnly); err != nil {
		logger.Error("clautifyd exited", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg daemon.Config, logger *zap.Logger, moduleOnly string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	skipEmbedded := false
	if moduleOnly != "embedded_mqtt" && cfg.Modules.EmbeddedMQTT.Enabled && cfg.Server.Broker == embeddedConfig(cfg).URL() {
		if err := startEmbeddedBroker(ctx, cfg, logger, cancel); err != nil {
			return fmt.Errorf("embedded mqtt: %w", err)
		}
		skipEmbedded = true
	}

	if cfg.Server.Broker == "" {
		return errors.New("broker is required")
	}
	logger.Info("clautifyd starting",
		zap.String("broker", cfg.Server.Broker),
		zap.String("identity", cfg.Server.Identity),
		zap.String("topic_base", cfg.Server.TopicBase),
		zap.String("playback", cfg.Playback.Backend),
		zap.String("metrics", cfg.Metrics.Listen),
		zap.Strings("modules", enabledModules(cfg)),
	)

	var client *mqttserver.Client
	if moduleOnly != "embedded_mqtt" {
		var err error
		client, err = mqttserver.NewClient(mqttserver.Options{
			BrokerURL: cfg.Server.Broker,
			ClientID:  "clautifyd-" + idgen.Generator{}.NewID(),
			Username:  cfg.Server.Auth.User,
			Password:  cfg.Server.Auth.Pass,
			TLSCA:     cfg.Server.TLS.CA,
			TLSCert:   cfg.Server.TLS.Cert,
			TLSKey:    cfg.Server.TLS.Key,
			Timeout:   2 * time.Second,
			Logger:    logger.Named("mqtt"),
			Debug:     cfg.Server.Debug,
		})
		if err != nil {
			return fmt.Errorf("mqtt connection failed: %w", err)
		}
		defer client.Close()
	}

	modules, err := buildModules(ctx, cfg, client, logger, moduleOnly, skipEmbedded)
	if err != nil {
		return fmt.Errorf("build modules: %w", err)
	}
	if cfg.Metrics.Listen != "" {
		modules = append(modules, daemon.ModuleRunner{Name: "metrics", Run: metricsServer(cfg.Metrics, logger)})
	}

	supervisor := daemon.Supervisor{Logger: logger}
	return supervisor.Run(ctx, modules)
}

type overrides struct {
	broker    string
	identity  string
	topicBase string
	logLevel  string
	logFormat string
	logOutput string
	logSource bool
	logUTC    bool
	metrics   string
}

func applyOverrides(cfg *daemon.Config, o overrides) {
	if o.broker != "" {
		cfg.Server.Broker = o.broker
	}
	if o.identity != "" {
		cfg.Server.Identity = o.identity
	}
	if o.topicBase != "" {
		cfg.Server.TopicBase = o.topicBase
	}
	if o.logLevel != "" {
		cfg.Server.LogLevel = o.logLevel
	}
	if o.logFormat != "" {
		cfg.Server.LogFormat = o.logFormat
	}
	if o.logOutput != "" {
		cfg.Server.LogOutput = o.logOutput
	}
	if o.logSource {
		cfg.Server.LogSource = true
	}
	if o.logUTC {
		cfg.Server.LogUTC = true
	}
	if o.metrics != "" {
		cfg.Metrics.Listen = o.metrics
	}
	if cfg.Server.TopicBase == "" {
		cfg.Server.TopicBase = mu.BaseTopic
	}
	if cfg.Server.Broker == "" && cfg.Modules.EmbeddedMQTT.Enabled {
		cfg.Server.Broker = embeddedConfig(*cfg).URL()
	}
}

func buildModules(ctx context.Context, cfg daemon.Config, client *mqttserver.Client, logger *zap.Logger, moduleOnly string, skipEmbedded bool) ([]daemon.ModuleRunner, error) {
	modules := []daemon.ModuleRunner{}
	if cfg.Modules.EmbeddedMQTT.Enabled && !skipEmbedded {
		if moduleOnly == "" || moduleOnly == "embedded_mqtt" {
			mod, err := embeddedmqtt.NewModule(logger.With(zap.String("module", "embedded_mqtt")), embeddedConfig(cfg))
			if err != nil {
				return nil, err
			}
			modules = append(modules, daemon.ModuleRunner{Name: "embedded_mqtt", Run: mod.Run})
		}
	}

	if cfg.Modules.DSLEndpoint.Enabled {
		if moduleOnly == "" || moduleOnly == "dsl_endpoint" {
			mod, err := newEndpoint(ctx, cfg, client, logger.With(zap.String("module", "dsl_endpoint")))
			if err != nil {
				return nil, err
			}
			modules = append(modules, daemon.ModuleRunner{Name: "dsl_endpoint", Run: mod.Run})
		}
	}

	if moduleOnly != "" && len(modules) == 0 {
		return nil, errors.New("no modules enabled")
	}
	return modules, nil
}

// newEndpoint builds the session behind the endpoint. The session is
// closed when ctx ends.
func newEndpoint(ctx context.Context, cfg daemon.Config, client *mqttserver.Client, logger *zap.Logger) (*dslendpoint.Module, error) {
	if client == nil {
		return nil, errors.New("dsl_endpoint requires an mqtt connection")
	}
	b, err := backend.New(backend.Options{
		Catalog:    cfg.Catalog,
		Playback:   cfg.Playback,
		HTTPClient: http.DefaultClient,
		Logger:     logger,
		Clock:      clock.Clock{},
		IDGen:      idgen.Generator{},
	})
	if err != nil {
		return nil, err
	}
	session, err := core.NewSession(ctx, b, core.Options{
		Logger:   logger,
		Observer: metrics.Recorder{},
		Eager:    cfg.Modules.DSLEndpoint.Eager,
	})
	if err != nil {
		return nil, err
	}
	if ceiling := cfg.Modules.DSLEndpoint.VolumeCeiling; ceiling != nil {
		session.SetVolumeCeiling(*ceiling)
	}
	go func() {
		<-ctx.Done()
		_ = session.Close()
	}()

	return dslendpoint.NewModule(logger, client, session, clock.Clock{}, dslendpoint.Config{
		NodeID:    cfg.Modules.DSLEndpoint.NodeID,
		TopicBase: cfg.Server.TopicBase,
		Name:      cfg.Modules.DSLEndpoint.Name,
	})
}

func metricsServer(cfg daemon.MetricsConfig, logger *zap.Logger) func(context.Context) error {
	return func(ctx context.Context) error {
		mux := http.NewServeMux()
		mux.Handle(cfg.Path, promhttp.Handler())
		srv := &http.Server{Addr: cfg.Listen, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

		errCh := make(chan error, 1)
		go func() {
			logger.Info("metrics listening", zap.String("listen", cfg.Listen), zap.String("path", cfg.Path))
			errCh <- srv.ListenAndServe()
		}()

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func enabledModules(cfg daemon.Config) []string {
	out := []string{}
	if cfg.Modules.EmbeddedMQTT.Enabled {
		out = append(out, "embedded_mqtt")
	}
	if cfg.Modules.DSLEndpoint.Enabled {
		out = append(out, "dsl_endpoint")
	}
	return out
}

func printResolvedConfig(w io.Writer, cfg daemon.Config) {
	fmt.Fprintf(w,
		"broker=%s identity=%s topic_base=%s log_level=%s log_format=%s log_output=%s log_source=%t log_utc=%t playback=%s metrics=%s modules=%v\n",
		cfg.Server.Broker,
		cfg.Server.Identity,
		cfg.Server.TopicBase,
		cfg.Server.LogLevel,
		cfg.Server.LogFormat,
		cfg.Server.LogOutput,
		cfg.Server.LogSource,
		cfg.Server.LogUTC,
		cfg.Playback.Backend,
		cfg.Metrics.Listen,
		enabledModules(cfg),
	)
}

func embeddedConfig(cfg daemon.Config) embeddedmqtt.Config {
	return embeddedmqtt.Config{
		Listen:         cfg.Modules.EmbeddedMQTT.Listen,
		AllowAnonymous: cfg.Modules.EmbeddedMQTT.AllowAnonymous,
		Username:       cfg.Modules.EmbeddedMQTT.Username,
		Password:       cfg.Modules.EmbeddedMQTT.Password,
		TLSCA:          cfg.Modules.EmbeddedMQTT.TLSCA,
		TLSCert:        cfg.Modules.EmbeddedMQTT.TLSCert,
		TLSKey:         cfg.Modules.EmbeddedMQTT.TLSKey,
	}
}

// startEmbeddedBroker runs the broker ahead of the supervisor so module
// clients can connect. A broker failure cancels the daemon.
func startEmbeddedBroker(ctx context.Context, cfg daemon.Config, logger *zap.Logger, cancel context.CancelFunc) error {
	mod, err := embeddedmqtt.NewModule(logger.With(zap.String("module", "embedded_mqtt")), embeddedConfig(cfg))
	if err != nil {
		return err
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- mod.Run(ctx)
	}()

	select {
	case <-mod.Ready():
	case err := <-errCh:
		if err == nil {
			err = errors.New("embedded mqtt stopped before it was ready")
		}
		return err
	}
	go func() {
		if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("embedded mqtt exited", zap.Error(err))
			cancel()
		}
	}()
	return nil
}
