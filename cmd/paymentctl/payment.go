package main

import (
	"context"

	"github.com/fatflowers/payment-engine/internal/models"

	"github.com/spf13/cobra"
)

type paymentView struct {
	Payment *models.Payment            `json:"payment"`
	Events  []*models.ProviderEventLog `json:"events"`
}

func paymentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "payment",
		Short: "Inspect payments",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "get <paymentId>",
		Short: "Show a payment with its provider event history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServices(cmd.Context(), func(ctx context.Context, s *services) error {
				p, err := s.payments.Get(ctx, args[0])
				if err != nil {
					return err
				}
				evts, err := s.events.List(ctx, p.ID)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), paymentView{Payment: p, Events: evts})
			})
		},
	})
	return cmd
}
