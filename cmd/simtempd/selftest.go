package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"codeberg.org/mutker/simtempd/internal/device"
	"codeberg.org/mutker/simtempd/internal/errors"
	"codeberg.org/mutker/simtempd/internal/logger"
	"github.com/spf13/cobra"
)

const (
	defaultSelftestThreshold int32 = 20000
	defaultSelftestTimeout         = 5 * time.Second
)

// alertDevice is what the self-test needs from a device.
type alertDevice interface {
	SetThreshold(mC int32) error
	WaitReady(ctx context.Context, want device.Readiness) (device.Readiness, error)
}

func newSelftestCmd(a *app) *cobra.Command {
	var (
		threshold int32
		timeout   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "selftest",
		Short: "Lower the threshold and verify an alert is raised in time",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			devCfg, err := a.cfg.Device()
			if err != nil {
				return err
			}

			dev, err := device.New(devCfg, device.WithLogger(logger.New("device")))
			if err != nil {
				return err
			}
			defer dev.Close()

			return selftest(cmd.Context(), dev, threshold, timeout, cmd.OutOrStdout())
		},
	}

	cmd.Flags().Int32Var(&threshold, "alert-below", defaultSelftestThreshold, "Threshold in milli-degrees Celsius to set for the test")
	cmd.Flags().DurationVar(&timeout, "timeout", defaultSelftestTimeout, "How long to wait for the alert")

	return cmd
}

func selftest(ctx context.Context, dev alertDevice, threshold int32, timeout time.Duration, out io.Writer) error {
	errFactory := errors.New()

	if err := dev.SetThreshold(threshold); err != nil {
		return errFactory.Wrap(errors.ErrSelfTest, err)
	}
	fmt.Fprintf(out, "Waiting up to %s for threshold alert (threshold %d mC)\n", timeout, threshold)

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	r, err := dev.WaitReady(ctx, device.Urgent)
	if err == nil && r.Has(device.Urgent) {
		fmt.Fprintln(out, passStyle.Render("PASS: threshold alert received"))
		return nil
	}

	fmt.Fprintln(out, failStyle.Render("FAIL: no threshold alert"))
	if err != nil {
		return errFactory.Wrap(errors.ErrSelfTest, err)
	}
	return errFactory.WithData(errors.ErrSelfTest, r.String())
}
