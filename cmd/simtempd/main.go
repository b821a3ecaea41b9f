package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"codeberg.org/mutker/simtempd/internal/config"
	"codeberg.org/mutker/simtempd/internal/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// app carries state shared by every subcommand once flags are parsed.
type app struct {
	loader *config.Loader
	cfg    *config.Config
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "simtempd",
		Short: "Simulated temperature sensor daemon",
		Long: `simtempd simulates a temperature sensor: a periodic producer fills a
bounded sample buffer, readers consume samples in order, and an alert is
latched while the latest reading is above the threshold.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load(cmd.Flags())
		},
	}

	config.RegisterFlags(root.PersistentFlags())

	root.AddCommand(
		newRunCmd(a),
		newMonitorCmd(a),
		newSelftestCmd(a),
		newCtlCmd(a),
		newHistoryCmd(a),
	)

	return root
}

func (a *app) load(fs *pflag.FlagSet) error {
	loader, err := config.NewLoader()
	if err != nil {
		return err
	}

	cfg, err := loader.Load(fs)
	if err != nil {
		return err
	}

	logger.Init(cfg.LogLevel, cfg.Debug, cfg.Verbose, logger.IsService())
	logger.Debug().Str("file", cfg.ConfigFile).Msg("Config loaded")

	a.loader, a.cfg = loader, cfg

	return nil
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	go handleSignals(ctx, cancel)
	return ctx, cancel
}

func handleSignals(ctx context.Context, cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)

	select {
	case <-sigs:
		logger.Info().Msg("Received termination signal")
		cancel()
	case <-ctx.Done():
	}
}
