package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func dlqCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dlq",
		Short: "Inspect and replay dead-lettered payments",
	}
	cmd.AddCommand(dlqListCmd())
	cmd.AddCommand(dlqReplayCmd())
	return cmd
}

func dlqListCmd() *cobra.Command {
	var page, size int
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List payments that exhausted their charge attempts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServices(cmd.Context(), func(ctx context.Context, s *services) error {
				letters, err := s.processing.DeadLetters(ctx, page, size)
				if err != nil {
					return err
				}
				if asJSON {
					return printJSON(cmd.OutOrStdout(), letters)
				}
				if len(letters) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "dead-letter queue is empty")
					return nil
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "PAYMENT\tORDER\tPROVIDER\tATTEMPTS\tFAILED AT\tREASON")
				for _, dl := range letters {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
						dl.PaymentID, dl.OrderID, dl.Provider, dl.Attempts, dl.FailedAt.Format(time.RFC3339), dl.Reason)
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().IntVar(&page, "page", 1, "Page number")
	cmd.Flags().IntVarP(&size, "size", "n", 50, "Page size")
	cmd.Flags().BoolVarP(&asJSON, "json", "j", false, "Output as JSON")
	return cmd
}

func dlqReplayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "replay <paymentId>",
		Short: "Reopen a failed payment and schedule a fresh first attempt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServices(cmd.Context(), func(ctx context.Context, s *services) error {
				p, err := s.processing.Replay(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "payment %s replayed (order %s, status %s)\n", p.ID, p.OrderID, p.Status)
				return nil
			})
		},
	}
}
