package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"codeberg.org/mutker/simtempd/internal/clock"
	"codeberg.org/mutker/simtempd/internal/device"
	"codeberg.org/mutker/simtempd/internal/errors"
	"codeberg.org/mutker/simtempd/internal/logger"
	"codeberg.org/mutker/simtempd/internal/sample"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

const lineTimeFormat = "2006-01-02T15:04:05.000Z07:00"

var (
	alertStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	passStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	failStyle  = alertStyle
)

// formatLine renders one sample as "2025-09-22T20:15:04.123Z temp=44.1C alert=0".
func formatLine(at time.Time, s sample.Sample) string {
	alert := 0
	if s.Alert() {
		alert = 1
	}
	return fmt.Sprintf("%s temp=%.1fC alert=%d", at.UTC().Format(lineTimeFormat), s.Celsius(), alert)
}

func newMonitorCmd(a *app) *cobra.Command {
	var count int

	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Print samples and alerts from an in-process device",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			devCfg, err := a.cfg.Device()
			if err != nil {
				return err
			}

			clk := clock.NewMonotonic()
			dev, err := device.New(devCfg, device.WithClock(clk), device.WithLogger(logger.New("device")))
			if err != nil {
				return err
			}
			defer dev.Close()

			return monitor(ctx, dev, clk, cmd.OutOrStdout(), count)
		},
	}

	cmd.Flags().IntVarP(&count, "count", "n", 0, "Stop after n samples (0 runs until interrupted)")

	return cmd
}

// monitor prints every sample it reads and a banner each time the alert
// latches. It waits on the poll channel rather than WaitReady: Urgent is
// level triggered and would return at once for as long as it stays set.
func monitor(ctx context.Context, dev device.Reader, clk *clock.Monotonic, out io.Writer, count int) error {
	alerting := false
	printed := 0

	for {
		r, wake := dev.Poll()

		if r.Has(device.Hangup) {
			fmt.Fprintln(out, "device closed")
			return nil
		}

		urgent := r.Has(device.Urgent)
		if urgent && !alerting {
			fmt.Fprintln(out, alertStyle.Render(">>> THRESHOLD ALERT <<<"))
		}
		alerting = urgent

		if r.Has(device.Readable) {
			s, err := dev.Read(ctx, false)
			switch {
			case err == nil:
				fmt.Fprintln(out, formatLine(clk.Wall(s.Timestamp), s))
				printed++
				if count > 0 && printed >= count {
					return nil
				}
				continue
			case errors.HasCode(err, errors.ErrWouldBlock):
				// another reader took it
			default:
				return err
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-wake:
		}
	}
}
