package config

import (
	"testing"
	"time"

	"github.com/hoddukzoa12/openclaw/pkg/money"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.False(t, cfg.Payment.Enabled)
	assert.Equal(t, money.Micros(10_000), cfg.Payment.Price)
	assert.Equal(t, 3, cfg.Payment.FreeQuota)
	assert.Equal(t, 30*time.Minute, cfg.Payment.RequestTTL)
	assert.Equal(t, 24*time.Hour, cfg.Payment.RetentionWindow)
	assert.Equal(t, 5*time.Minute, cfg.Payment.CleanupInterval)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("PAYMENT_PRICE", "$0.25")
	t.Setenv("PAYMENT_FREE_QUOTA", "10")
	t.Setenv("PAYMENT_REQUEST_TTL", "15m")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, money.Micros(250_000), cfg.Payment.Price)
	assert.Equal(t, 10, cfg.Payment.FreeQuota)
	assert.Equal(t, 15*time.Minute, cfg.Payment.RequestTTL)
}

func TestLoadConfigEnabledRequiresPayTo(t *testing.T) {
	t.Setenv("PAYMENT_ENABLED", "true")
	t.Setenv("PAYMENT_FACILITATOR_URL", "https://facilitator.example.com")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PAYMENT_PAY_TO")
}

func TestLoadConfigEnabledRequiresFacilitator(t *testing.T) {
	t.Setenv("PAYMENT_ENABLED", "true")
	t.Setenv("PAYMENT_PAY_TO", "0xabc123")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PAYMENT_FACILITATOR_URL")
}

func TestLoadConfigInvalidPrice(t *testing.T) {
	t.Setenv("PAYMENT_PRICE", "not-a-price")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PAYMENT_PRICE")
}

func TestPolicyValidateDisabledAlwaysValid(t *testing.T) {
	assert.NoError(t, PaymentPolicy{Enabled: false}.Validate())
}

func TestPolicyValidateEnabled(t *testing.T) {
	p := PaymentPolicy{
		Enabled:        true,
		Network:        "base",
		PayTo:          "0xabc",
		Price:          10_000,
		FacilitatorURL: "https://facilitator.example.com",
	}
	assert.NoError(t, p.Validate())

	broken := p
	broken.Network = ""
	assert.Error(t, broken.Validate())

	broken = p
	broken.Price = 0
	assert.Error(t, broken.Validate())
}
