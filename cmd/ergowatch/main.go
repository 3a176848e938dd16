// Command ergowatch runs a live ergonomics session against the configured
// streaming and analysis providers.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"go.aimuz.me/ergowatch/capture/replay"
	"go.aimuz.me/ergowatch/config"
	"go.aimuz.me/ergowatch/engine"
	"go.aimuz.me/ergowatch/internal/types"
	"go.aimuz.me/ergowatch/report"
	"go.aimuz.me/ergowatch/sink"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		debug      bool
	)

	root := &cobra.Command{
		Use:           "ergowatch",
		Short:         "Live workspace ergonomics monitor",
		Version:       fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			level := slog.LevelInfo
			if debug {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "config file (default user config dir)")
	root.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	root.AddCommand(newRunCmd(&configPath))
	root.AddCommand(newConfigCmd(&configPath))
	return root
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Load()
	}
	return config.LoadFrom(path)
}

func newRunCmd(configPath *string) *cobra.Command {
	var (
		framesDir string
		toneHz    float64
		duration  time.Duration
	)

	run := &cobra.Command{
		Use:   "run",
		Short: "Run a session until interrupted and print the report",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if duration > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, duration)
				defer cancel()
			}

			s := session{
				acquirer: &replay.Acquirer{Dir: framesDir, ToneHz: toneHz},
				renderer: report.YAMLRenderer{W: cmd.OutOrStdout()},
				emit:     logEvent,
			}
			if cfg.MQTT.Broker != "" {
				mirror, err := sink.DialMQTT(ctx, sink.MQTTConfig{
					Broker:      cfg.MQTT.Broker,
					ClientID:    cfg.MQTT.ClientID,
					TopicPrefix: cfg.MQTT.TopicPrefix,
				})
				if err != nil {
					return err
				}
				defer mirror.Close()
				s.emit = sink.Fanout(logEvent, mirror.Emit)
			}
			return runSession(ctx, cfg, s, cmd.ErrOrStderr())
		},
	}
	run.Flags().StringVar(&framesDir, "frames", "", "directory of .jpg/.png frames to replay (default grey frame)")
	run.Flags().Float64Var(&toneHz, "tone", 0, "synthetic microphone tone in Hz (0 is silence)")
	run.Flags().DurationVar(&duration, "duration", 0, "stop after this long (0 runs until interrupted)")
	return run
}

// runSession runs one engine session until ctx is done or the remote side
// closes the stream, then stops it and reports the outcome on errOut.
func runSession(ctx context.Context, cfg *config.Config, s session, errOut io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var remoteClosed atomic.Bool
	emit := s.emit
	s.emit = func(name string, data any) {
		if emit != nil {
			emit(name, data)
		}
		if name == engine.EventSessionState && data == types.StateDisconnected {
			remoteClosed.Store(true)
			cancel()
		}
	}

	eng, err := buildEngine(cfg, s)
	if err != nil {
		return err
	}
	defer eng.Destroy()

	if err := eng.Start(ctx); err != nil && !(errors.Is(err, engine.ErrStopped) && remoteClosed.Load()) {
		return err
	}
	slog.Info("session running, interrupt to stop")
	<-ctx.Done()

	// Read before Stop, which emits disconnected itself.
	if remoteClosed.Load() {
		_, _ = fmt.Fprintln(errOut, "stream closed by remote, session ended without a report")
		return nil
	}

	rep, err := eng.Stop()
	if err != nil {
		return err
	}
	if rep == nil {
		_, _ = fmt.Fprintln(errOut, "no wellness audits recorded, no report")
	}
	return nil
}

func newConfigCmd(configPath *string) *cobra.Command {
	cfgCmd := &cobra.Command{Use: "config", Short: "Configuration commands"}

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Print the config file location",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := *configPath
			if path == "" {
				var err error
				if path, err = config.Path(); err != nil {
					return err
				}
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	})

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with keys masked",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			data, err := json.MarshalIndent(cfg.Redacted(), "", "  ")
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	})
	return cfgCmd
}
