package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/flemzord/expiry/internal/expiry"
	"github.com/flemzord/expiry/internal/mark"
)

const dateLayout = "2006-01-02"

func markCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mark",
		Short: "Manage temporary marks",
	}
	cmd.AddCommand(markSetCmd(), markClearCmd(), markShowCmd(), markListCmd())
	return cmd
}

func markSetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set <parent>",
		Short: "Mark content as temporary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, _ := cmd.Flags().GetString("owner")
			bundle, _ := cmd.Flags().GetString("bundle")
			expireAt, _ := cmd.Flags().GetString("expire-at")
			action, _ := cmd.Flags().GetString("action")

			req, err := setRequest(args[0], owner, bundle, expireAt, action)
			if err != nil {
				return err
			}
			return withPipeline(cmd, func(ctx context.Context, p *expiry.Pipeline) error {
				m, err := p.Marks.SetTemporary(ctx, req)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), m)
			})
		},
	}
	cmd.Flags().String("owner", "", "User marking the content")
	cmd.Flags().String("bundle", "", "Content type; enables the bundle's default expiry")
	cmd.Flags().String("expire-at", "", "Expiration day (YYYY-MM-DD); defaults to the bundle setting")
	cmd.Flags().String("action", "", "delete or unpublish (default unpublish)")
	return cmd
}

// setRequest parses CLI input into a mark.SetRequest.
func setRequest(parent, owner, bundle, expireAt, action string) (mark.SetRequest, error) {
	req := mark.SetRequest{Parent: parent, Owner: owner, Bundle: bundle}
	a, err := mark.ParseAction(action)
	if err != nil {
		return req, err
	}
	req.Action = a
	if expireAt != "" {
		t, err := time.ParseInLocation(dateLayout, expireAt, time.UTC)
		if err != nil {
			return req, fmt.Errorf("%w: %q is not YYYY-MM-DD", mark.ErrInvalidExpiry, expireAt)
		}
		req.ExpireAt = t
	}
	return req, nil
}

func markClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear <parent>",
		Short: "Remove the temporary mark of content",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPipeline(cmd, func(ctx context.Context, p *expiry.Pipeline) error {
				if err := p.Marks.ClearTemporary(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "cleared %s\n", args[0])
				return nil
			})
		},
	}
}

func markShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <parent>",
		Short: "Show the temporary mark of content and its status notice",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			viewer, _ := cmd.Flags().GetString("viewer")
			tz, _ := cmd.Flags().GetString("tz")
			loc, err := time.LoadLocation(tz)
			if err != nil {
				return fmt.Errorf("invalid --tz: %w", err)
			}
			return withPipeline(cmd, func(ctx context.Context, p *expiry.Pipeline) error {
				m, err := p.Marks.GetTemporaryMark(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), struct {
					mark.Mark
					Message string `json:"message"`
				}{m, mark.FormatStatus(m, viewer, loc)})
			})
		},
	}
	cmd.Flags().String("viewer", "", "User viewing the content")
	cmd.Flags().String("tz", "UTC", "Time zone used to render the expiration date")
	return cmd
}

func markListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List temporary marks, soonest expiration first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withPipeline(cmd, func(ctx context.Context, p *expiry.Pipeline) error {
				marks, err := p.Marks.List(ctx)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tPARENT\tOWNER\tEXPIRES\tACTION")
				for _, m := range marks {
					fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", m.ID, m.Parent, m.Owner, m.ExpireAt.UTC().Format(dateLayout), m.Action)
				}
				return tw.Flush()
			})
		},
	}
}
