package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/hupe1980/grantmesh"
	"github.com/hupe1980/grantmesh/config"
	"github.com/hupe1980/grantmesh/feed"
	"github.com/hupe1980/grantmesh/ledger"
	"github.com/hupe1980/grantmesh/logging"
	"github.com/hupe1980/grantmesh/metrics"
)

var serveAddr string

// openLedger is replaced in tests.
var openLedger = ledger.Open

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides server.addr)")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the dispatcher over HTTP and WebSocket",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if serveAddr != "" {
			cfg.Server.Addr = serveAddr
		}
		logger, err := newLogger(cfg)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		sinks, closers, err := openSinks(ctx, cfg, logger)
		if err != nil {
			return err
		}

		mesh, err := grantmesh.New(func(o *grantmesh.Options) {
			o.Logger = logger.WithComponent("dispatch")
			o.Metrics = metrics.New()
			o.Sinks = sinks
			o.Closers = closers
			o.RateLimit = rate.Limit(cfg.RateLimit.PerSecond)
			o.Burst = cfg.RateLimit.Burst
			o.EventBuffer = cfg.Server.EventBuffer
		})
		if err != nil {
			return errors.Join(err, closeAll(closers))
		}
		defer mesh.Close()

		if cfg.Registry.ReapInterval > 0 {
			go mesh.RunReaper(ctx, cfg.Registry.ReapInterval, cfg.Registry.IdleThreshold)
			logger.Info("idle reaper enabled",
				"interval", cfg.Registry.ReapInterval.String(),
				"threshold", cfg.Registry.IdleThreshold.String())
		}

		return mesh.Serve(ctx, cfg.Server.Addr)
	},
}

// openSinks opens the configured event sinks. On failure every sink opened so
// far is closed again.
func openSinks(ctx context.Context, cfg config.Config, logger *logging.MeshLogger) ([]feed.Sink, []io.Closer, error) {
	var (
		sinks   []feed.Sink
		closers []io.Closer
	)
	if cfg.Ledger.Path != "" {
		led, err := openLedger(cfg.Ledger.Path)
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, led)
		closers = append(closers, led)
		logger.Info("ledger enabled", "path", cfg.Ledger.Path)
	}
	if cfg.Redis.Addr != "" {
		rs := feed.NewRedisSink(func(o *feed.RedisOptions) {
			o.Addr = cfg.Redis.Addr
			o.Password = cfg.Redis.Password
			o.DB = cfg.Redis.DB
			o.Channel = cfg.Redis.Channel
		})
		closers = append(closers, rs)
		if err := rs.Ping(ctx); err != nil {
			return nil, nil, errors.Join(fmt.Errorf("redis %s: %w", cfg.Redis.Addr, err), closeAll(closers))
		}
		sinks = append(sinks, rs)
		logger.Info("redis feed enabled", "addr", cfg.Redis.Addr, "channel", cfg.Redis.Channel)
	}
	return sinks, closers, nil
}

// closeAll closes closers in reverse order.
func closeAll(closers []io.Closer) error {
	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
