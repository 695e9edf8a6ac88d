package main

// @title           Payment Engine API
// @version         1.0
// @description     Payment processing and provider reconciliation API.

// @license.name  Apache 2.0
// @license.url   http://www.apache.org/licenses/LICENSE-2.0.html

// @host      localhost:8888
// @BasePath  /

import (
	"os"

	"github.com/fatflowers/payment-engine/internal/app"
)

func main() {
	// graceful stop on SIGINT/SIGTERM is handled by fx
	os.Exit(app.Run(app.API))
}
