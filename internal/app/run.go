package app

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Run starts a process graph, blocks until SIGINT/SIGTERM and returns the exit code.
func Run(opts ...fx.Option) int {
	a := fx.New(opts...)
	startCtx, cancel := context.WithTimeout(context.Background(), DefaultStartTimeout)
	defer cancel()
	if err := a.Start(startCtx); err != nil {
		// Logging might not be ready; fallback to zap example
		zap.NewExample().Sugar().Errorf("failed to start app: %v", err)
		return 1
	}

	<-a.Done()

	stopCtx, cancelStop := context.WithTimeout(context.Background(), DefaultStopTimeout)
	defer cancelStop()
	if err := a.Stop(stopCtx); err != nil {
		zap.NewExample().Sugar().Errorf("failed to stop app: %v", err)
		return 1
	}
	return 0
}
