package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/fatflowers/payment-engine/pkg/config"
	"github.com/stretchr/testify/require"
)

func TestNew_WritesToRotatingFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "engine.log")
	log, err := New(&config.Config{Log: config.LogConfig{Level: "info", File: file, MaxSizeMB: 1}})
	require.NoError(t, err)

	log.Infow("payment_created", "payment_id", "p-1")
	_ = log.Sync()

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	require.Contains(t, string(data), `"payment_created"`)
	require.Contains(t, string(data), `"payment_id":"p-1"`)
}

func TestNew_RejectsUnknownLevel(t *testing.T) {
	_, err := New(&config.Config{Log: config.LogConfig{Level: "loud"}})
	require.Error(t, err)
}
