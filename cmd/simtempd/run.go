package main

import (
	"context"
	"time"

	"codeberg.org/mutker/simtempd/internal/config"
	"codeberg.org/mutker/simtempd/internal/device"
	"codeberg.org/mutker/simtempd/internal/errors"
	"codeberg.org/mutker/simtempd/internal/logger"
	"codeberg.org/mutker/simtempd/internal/metrics"
	"codeberg.org/mutker/simtempd/internal/natsctl"
	"codeberg.org/mutker/simtempd/internal/pid"
	"codeberg.org/mutker/simtempd/internal/stream"
	"codeberg.org/mutker/simtempd/internal/telemetry"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newRunCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the daemon until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			if err := a.run(ctx); err != nil {
				logger.Error().Err(err).Msg("Daemon failed")
				return err
			}
			return nil
		},
	}
}

func metricsConfig(cfg *config.Config) metrics.Config {
	mc := metrics.DefaultConfig()
	mc.DBPath = cfg.MetricsDB
	mc.BatchSize = cfg.MetricsBatchSize
	mc.Enabled = cfg.Metrics
	return mc
}

func (a *app) run(ctx context.Context) error {
	errFactory := errors.New()
	cfg := a.cfg

	if err := pid.Write(cfg.PIDDir); err != nil {
		return err
	}
	defer func() {
		if err := pid.Remove(cfg.PIDDir); err != nil {
			logger.Warn().Err(err).Msg("Failed to remove PID file")
		}
	}()

	devCfg, err := cfg.Device()
	if err != nil {
		return errFactory.Wrap(errors.ErrInitApp, err)
	}

	telCfg := telemetry.DefaultConfig()
	telCfg.Addr = cfg.PrometheusAddr
	observer, err := telemetry.NewObserver(telCfg)
	if err != nil {
		return errFactory.Wrap(errors.ErrInitApp, err)
	}

	collector, err := metrics.NewService(metricsConfig(cfg), logger.New("metrics"))
	if err != nil {
		return errFactory.Wrap(errors.ErrInitMetrics, err)
	}
	defer func() {
		if err := collector.Close(); err != nil {
			logger.Warn().Err(err).Msg("Failed to close status history")
		}
	}()

	dev, err := device.New(devCfg, device.WithObserver(observer), device.WithLogger(logger.New("device")))
	if err != nil {
		return errFactory.Wrap(errors.ErrInitApp, err)
	}
	defer dev.Close()
	observer.TrackBuffer(func() int { return dev.Status().Buffered })

	g, gctx := errgroup.WithContext(ctx)

	if telCfg.Enabled() {
		srv := telemetry.NewServer(telCfg, observer, logger.New("telemetry"))
		srv.Handle("/stream", stream.NewHandler(dev, logger.New("stream")))
		g.Go(func() error { return srv.Serve(gctx) })
	}

	if cfg.NATSURL != "" {
		log := logger.New("natsctl")
		nc, err := natsctl.Connect(cfg.NATSURL, "simtempd", log)
		if err != nil {
			return err
		}
		defer nc.Close()

		h := natsctl.NewHandler(dev, log)
		g.Go(func() error { return natsctl.Serve(gctx, nc, cfg.NATSPrefix, h, log) })
	}

	if cfg.Metrics {
		interval := time.Duration(cfg.MetricsInterval) * time.Second
		g.Go(func() error {
			metrics.Run(gctx, collector, dev, interval, logger.New("metrics"))
			return nil
		})
	}

	if cfg.ConfigFile != "" {
		err := a.loader.Watch(gctx, func(c *config.Config) {
			if err := c.Apply(dev); err != nil {
				logger.Warn().Err(err).Msg("Failed to apply configuration change")
			}
		})
		if err != nil {
			logger.Warn().Err(err).Msg("Configuration file will not be watched")
		}
	}

	logger.Info().
		Str("run_id", collector.RunID()).
		Dur("sampling_period", devCfg.SamplingPeriod).
		Int32("threshold_mc", devCfg.Threshold).
		Msg("simtempd running")

	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	if err := g.Wait(); err != nil {
		return errFactory.Wrap(errors.ErrMainLoop, err)
	}

	// Final snapshot so the history ends with the shutdown state.
	if err := collector.Record(context.Background(), metrics.NewSnapshot(time.Now(), dev.Status())); err != nil {
		logger.Warn().Err(err).Msg("Failed to record final status snapshot")
	}
	logger.Info().Msg("Exiting...")

	return nil
}
