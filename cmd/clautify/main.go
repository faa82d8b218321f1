package main

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/mikey-austin/clautify/internal/adapters/config"
	"github.com/mikey-austin/clautify/internal/adapters/output"
	"github.com/mikey-austin/clautify/internal/core"
	"github.com/mikey-austin/clautify/pkg/mu"
)

type app struct {
	cfg     config.Config
	printer output.Printer
	log     *zap.Logger
	json    bool
	timeout time.Duration
	ceiling *float64
	remote  string
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(exitCode(err))
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          "clautify",
		Short:        "Control playback with short commands",
		SilenceUsage: true,
	}

	var (
		configPath string
		timeout    time.Duration
		jsonOut    bool
		verbose    bool
		eager      bool
		maxVolume  float64
		remote     string
	)

	root.PersistentFlags().StringVarP(&configPath, "config", "c", config.Path(), "config file path")
	root.PersistentFlags().DurationVarP(&timeout, "timeout", "t", 10*time.Second, "per-command timeout")
	root.PersistentFlags().BoolVarP(&jsonOut, "json", "j", false, "output json")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging")
	root.PersistentFlags().BoolVar(&eager, "eager", false, "connect the playback channel before the first command")
	root.PersistentFlags().Float64Var(&maxVolume, "max-volume", 1, "volume ceiling as a fraction in [0,1]")
	root.PersistentFlags().StringVarP(&remote, "remote", "r", "", "run commands on a clautifyd endpoint node")

	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadFile(configPath)
		if err != nil {
			return core.WrapError(core.ExitUsage, "load config", err)
		}
		if eager {
			cfg.Eager = true
		}
		if remote != "" {
			cfg.Remote = remote
		}
		ceiling := cfg.VolumeCeiling
		if cmd.Flags().Changed("max-volume") {
			if maxVolume < 0 || maxVolume > 1 {
				return core.WrapError(core.ExitUsage, "--max-volume must be between 0 and 1", nil)
			}
			ceiling = &maxVolume
		}

		cmd.SetContext(context.WithValue(cmd.Context(), appKey{}, &app{
			cfg:     cfg,
			printer: output.New(cmd.OutOrStdout(), jsonOut),
			log:     newLogger(verbose),
			json:    jsonOut,
			timeout: timeout,
			ceiling: ceiling,
			remote:  cfg.Remote,
		}))
		return nil
	}

	root.AddCommand(runCommand())
	root.AddCommand(replCommand())
	root.AddCommand(parseCommand())
	root.AddCommand(healthCommand())
	root.AddCommand(nodesCommand())
	return root
}

type appKey struct{}

func fromContext(cmd *cobra.Command) *app {
	val := cmd.Context().Value(appKey{})
	if val == nil {
		return nil
	}
	return val.(*app)
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, timeout)
}

func newLogger(verbose bool) *zap.Logger {
	level := zapcore.WarnLevel
	if verbose {
		level = zapcore.DebugLevel
	}
	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.TimeKey = ""
	return zap.New(zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.Lock(os.Stderr), level))
}

// exitCode extends core.ExitCode with errors reported by a remote
// endpoint.
func exitCode(err error) int {
	var replyErr *mu.ReplyError
	if errors.As(err, &replyErr) {
		switch replyErr.Code {
		case mu.CodeInvalid:
			return core.ExitUsage
		case mu.CodeNotFound:
			return core.ExitNotFound
		default:
			return core.ExitRuntime
		}
	}
	return core.ExitCode(err)
}
