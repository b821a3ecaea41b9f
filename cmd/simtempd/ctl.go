package main

import (
	"context"
	"fmt"
	"time"

	"codeberg.org/mutker/simtempd/internal/errors"
	"codeberg.org/mutker/simtempd/internal/logger"
	"codeberg.org/mutker/simtempd/internal/natsctl"
	"github.com/spf13/cobra"
)

const defaultCtlTimeout = 5 * time.Second

var ctlAttrs = []string{"sampling_ms", "threshold_mc", "mode"}

func newCtlCmd(a *app) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "ctl",
		Short: "Control a running daemon over NATS",
	}
	cmd.PersistentFlags().DurationVar(&timeout, "timeout", defaultCtlTimeout, "Request timeout")

	// withClient connects, runs fn and disconnects.
	withClient := func(cmd *cobra.Command, fn func(context.Context, *natsctl.Client) error) error {
		if a.cfg.NATSURL == "" {
			return errors.New().WithMessage(errors.ErrInvalidConfig, "nats_url is not set")
		}

		nc, err := natsctl.Connect(a.cfg.NATSURL, "simtempd-ctl", logger.New("natsctl"))
		if err != nil {
			return err
		}
		defer nc.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()

		return fn(ctx, natsctl.NewClient(nc, a.cfg.NATSPrefix))
	}

	get := &cobra.Command{
		Use:       "get <attribute>",
		Short:     "Print an attribute (sampling_ms, threshold_mc, mode)",
		Args:      cobra.ExactArgs(1),
		ValidArgs: ctlAttrs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, func(ctx context.Context, c *natsctl.Client) error {
				v, err := c.Get(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), v)
				return nil
			})
		},
	}

	set := &cobra.Command{
		Use:       "set <attribute> <value>",
		Short:     "Write an attribute",
		Args:      cobra.ExactArgs(2),
		ValidArgs: ctlAttrs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, func(ctx context.Context, c *natsctl.Client) error {
				return c.Set(ctx, args[0], args[1])
			})
		},
	}

	status := &cobra.Command{
		Use:   "status",
		Short: "Print the device status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withClient(cmd, func(ctx context.Context, c *natsctl.Client) error {
				st, err := c.Status(ctx)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "urgent=%t buffered=%d/%d ticks=%d evictions=%d\n",
					st.Urgent, st.Buffered, st.Capacity, st.Ticks, st.Evictions)
				fmt.Fprintf(out, "last=%.1fC average=%.1fC\n", float64(st.LastMC)/1000, float64(st.AverageMC)/1000)
				fmt.Fprintf(out, "sampling_ms=%d threshold_mc=%d mode=%s\n", st.SamplingMS, st.ThresholdMC, st.Mode)
				return nil
			})
		},
	}

	var wait time.Duration
	read := &cobra.Command{
		Use:   "read",
		Short: "Read one sample",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withClient(cmd, func(ctx context.Context, c *natsctl.Client) error {
				rec, err := c.Read(ctx, wait)
				if err != nil {
					return err
				}
				s, err := rec.Sample()
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), s)
				return nil
			})
		},
	}
	read.Flags().DurationVar(&wait, "wait", 0, "Block up to this long for a sample (0 does not block)")

	cmd.AddCommand(get, set, status, read)

	return cmd
}
