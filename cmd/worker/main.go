package main

import (
	"os"

	"github.com/fatflowers/payment-engine/internal/app"
)

// The worker charges payments from the retry queue and turns order.created
// events into payments. Any number of workers may run side by side.
func main() {
	os.Exit(app.Run(app.Worker))
}
