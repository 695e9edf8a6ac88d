package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/fatflowers/payment-engine/internal/app"
	"github.com/fatflowers/payment-engine/internal/app/service/eventlog"
	"github.com/fatflowers/payment-engine/internal/app/service/payment"
	"github.com/fatflowers/payment-engine/internal/app/service/processing"

	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

var Version = "dev"

type services struct {
	processing *processing.Service
	payments   *payment.Service
	events     *eventlog.Service
}

// withServices builds the operator graph, runs fn and tears the graph down.
func withServices(ctx context.Context, fn func(ctx context.Context, s *services) error) error {
	var s services
	a := fx.New(app.CLI, fx.Populate(&s.processing, &s.payments, &s.events))
	if err := a.Err(); err != nil {
		return err
	}
	startCtx, cancel := context.WithTimeout(ctx, app.DefaultStartTimeout)
	defer cancel()
	if err := a.Start(startCtx); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), app.DefaultStopTimeout)
		defer cancel()
		_ = a.Stop(stopCtx)
	}()
	return fn(ctx, &s)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func main() {
	rootCmd := &cobra.Command{
		Use:           "paymentctl",
		Short:         "Operator tool for the payment engine",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(dlqCmd())
	rootCmd.AddCommand(paymentCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
