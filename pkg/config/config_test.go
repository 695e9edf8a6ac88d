package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fatflowers/payment-engine/pkg/types"
	"github.com/stretchr/testify/require"
)

func TestNew_DefaultsWithoutConfigFile(t *testing.T) {
	t.Setenv("APP_CONFIG_NAME", "does-not-exist")

	cfg, err := New()
	require.NoError(t, err)
	require.Equal(t, types.PaymentProviderRazorpay, cfg.Payment.DefaultProvider)
	require.Equal(t, 5, cfg.Payment.MaxAttempts)
	require.Equal(t, "payment_dlq", cfg.Queue.DLQQueue)
	require.Equal(t, 30*time.Second, cfg.OrderService.BreakerCooldown)
	require.Equal(t, 20, cfg.Database.MaxOpenConns)
	require.Equal(t, 30*time.Minute, cfg.Database.ConnMaxLifetime)
}

func TestNew_EnvOverrides(t *testing.T) {
	t.Setenv("APP_CONFIG_NAME", "does-not-exist")
	t.Setenv("APP_PAYMENT_DEFAULT_PROVIDER", "stripe")
	t.Setenv("APP_SERVER_PORT", "9999")

	cfg, err := New()
	require.NoError(t, err)
	require.Equal(t, types.PaymentProviderStripe, cfg.Payment.DefaultProvider)
	require.Equal(t, 9999, cfg.Server.Port)
}

func TestNew_ReadsYAMLFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "payments.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
razorpay:
  key_id: rzp_test
  key_secret: key-secret
order_service:
  base_url: http://orders:3002
`), 0o600))
	t.Setenv("APP_CONFIG_FILE", file)

	cfg, err := New()
	require.NoError(t, err)
	require.Equal(t, "rzp_test", cfg.Razorpay.KeyID)
	require.Equal(t, "http://orders:3002", cfg.OrderService.BaseURL)
	require.Equal(t, "key-secret", cfg.Razorpay.SigningSecret())
}

func TestNew_RejectsUnknownDefaultProvider(t *testing.T) {
	t.Setenv("APP_CONFIG_NAME", "does-not-exist")
	t.Setenv("APP_PAYMENT_DEFAULT_PROVIDER", "paypal")

	_, err := New()
	require.Error(t, err)
}

func TestRazorpaySigningSecret_PrefersWebhookSecret(t *testing.T) {
	c := RazorpayConfig{KeySecret: "k", WebhookSecret: "w"}
	require.Equal(t, "w", c.SigningSecret())
}
