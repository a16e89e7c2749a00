package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/flemzord/expiry/internal/core"
	"github.com/flemzord/expiry/internal/expiry"
	"github.com/flemzord/expiry/pkg/app"
)

var errNoPipeline = errors.New("expiry.pipeline is not configured")

// withPipeline loads the configured modules without starting them, hands
// the wired pipeline to fn and releases the stores afterwards.
func withPipeline(cmd *cobra.Command, fn func(ctx context.Context, p *expiry.Pipeline) error) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := app.Load(ctx, runParams(cmd), cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer rt.Close(context.WithoutCancel(ctx))

	p, ok := core.ServiceAs[*expiry.Pipeline](rt.App.Context(), expiry.PipelineService)
	if !ok {
		return errNoPipeline
	}
	return fn(ctx, p)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func scanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "Enqueue every expired temporary mark",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withPipeline(cmd, func(ctx context.Context, p *expiry.Pipeline) error {
				res, err := p.Scanner.RunScan(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), res)
			})
		},
	}
}

func drainCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "drain",
		Short: "Process queued expirations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			all, _ := cmd.Flags().GetBool("all")
			return withPipeline(cmd, func(ctx context.Context, p *expiry.Pipeline) error {
				var total expiry.DrainResult
				for {
					res, err := p.Worker.RunWorkerBatch(ctx)
					if err != nil {
						return err
					}
					total = sumDrain(total, res)
					if !all || res.Claimed == 0 {
						break
					}
				}
				return printJSON(cmd.OutOrStdout(), total)
			})
		},
	}
	cmd.Flags().Bool("all", false, "Keep draining until no item is visible")
	return cmd
}

func sumDrain(a, b expiry.DrainResult) expiry.DrainResult {
	return expiry.DrainResult{
		Claimed:     a.Claimed + b.Claimed,
		Deleted:     a.Deleted + b.Deleted,
		Unpublished: a.Unpublished + b.Unpublished,
		Orphans:     a.Orphans + b.Orphans,
		Missing:     a.Missing + b.Missing,
		Rescheduled: a.Rescheduled + b.Rescheduled,
		Failed:      a.Failed + b.Failed,
	}
}

func queueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect the work queue",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "stats",
			Short: "Show pending, leased and dead-lettered counts",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withPipeline(cmd, func(ctx context.Context, p *expiry.Pipeline) error {
					st, err := p.Queue.Stats(ctx)
					if err != nil {
						return err
					}
					return printJSON(cmd.OutOrStdout(), st)
				})
			},
		},
		&cobra.Command{
			Use:   "dead",
			Short: "List dead-lettered items",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withPipeline(cmd, func(ctx context.Context, p *expiry.Pipeline) error {
					dead, err := p.Queue.DeadLetters(ctx)
					if err != nil {
						return err
					}
					return printJSON(cmd.OutOrStdout(), dead)
				})
			},
		},
		&cobra.Command{
			Use:   "requeue <id>",
			Short: "Move a dead-lettered item back to the queue",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withPipeline(cmd, func(ctx context.Context, p *expiry.Pipeline) error {
					if err := p.Queue.Requeue(ctx, args[0]); err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "requeued %s\n", args[0])
					return nil
				})
			},
		},
	)
	return cmd
}
