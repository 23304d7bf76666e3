package coingecko

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfigFromReader(strings.NewReader("{}"))
	require.NoError(t, err)

	require.Equal(t, DefaultBaseURL, cfg.BaseURL)
	require.Equal(t, DefaultCallsPerMinute, cfg.CallsPerMinute)
	require.Equal(t, DefaultMaxAttempts, cfg.MaxAttempts)
	require.Equal(t, DefaultCooldown, cfg.Cooldown)
	require.Equal(t, DefaultBackoffBase, cfg.BackoffBase)
	require.Equal(t, DefaultBackoffCap, cfg.BackoffCap)
	require.Equal(t, DefaultMaxWindowDays, cfg.MaxWindowDays)
	require.Equal(t, DefaultMaxWindowDays, cfg.WindowDays)

	require.Len(t, cfg.Assets, 6)
	require.Equal(t, "tether", cfg.Assets[0].ID)
	require.Equal(t, "USDT", cfg.Assets[0].Symbol)
	require.InDelta(t, 0.90, cfg.Assets[0].MinPrice, 1e-9)
	require.InDelta(t, 1.10, cfg.Assets[0].MaxPrice, 1e-9)
}

func TestLoadConfigOverrides(t *testing.T) {
	const body = `
base_url: https://proxy.example/api/v3
calls_per_minute: 10
max_attempts: 5
rate_limit_cooldown: 30s
backoff_base: 500ms
backoff_cap: 8s
window_days: 90
assets:
  - id: tether
    name: Tether
    symbol: USDT
    min_price: 0.95
    max_price: 1.05
`
	cfg, err := LoadConfigFromReader(strings.NewReader(body))
	require.NoError(t, err)

	require.Equal(t, "https://proxy.example/api/v3", cfg.BaseURL)
	require.Equal(t, 10, cfg.CallsPerMinute)
	require.Equal(t, 5, cfg.MaxAttempts)
	require.Equal(t, 30*time.Second, cfg.Cooldown)
	require.Equal(t, 500*time.Millisecond, cfg.BackoffBase)
	require.Equal(t, 8*time.Second, cfg.BackoffCap)
	require.Equal(t, 90, cfg.WindowDays)
	require.Len(t, cfg.Assets, 1)
	require.InDelta(t, 0.95, cfg.Assets[0].MinPrice, 1e-9)
}

func TestLoadConfigEnvExpansion(t *testing.T) {
	t.Setenv("CG_TEST_API_KEY", "secret-key")
	t.Setenv("CG_TEST_COOLDOWN", "45s")

	const body = `
api_key: ${CG_TEST_API_KEY}
rate_limit_cooldown: ${CG_TEST_COOLDOWN}
`
	cfg, err := LoadConfigFromReader(strings.NewReader(body))
	require.NoError(t, err)
	require.Equal(t, "secret-key", cfg.APIKey)
	require.Equal(t, 45*time.Second, cfg.Cooldown)
}

func TestLoadConfigRejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "bad duration",
			body: "rate_limit_cooldown: not-a-duration",
			want: "invalid rate_limit_cooldown",
		},
		{
			name: "inverted band",
			body: "assets:\n  - id: tether\n    symbol: USDT\n    min_price: 1.10\n    max_price: 0.90\n",
			want: "price band inverted",
		},
		{
			name: "asset missing id",
			body: "assets:\n  - symbol: USDT\n",
			want: "missing id",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfigFromReader(strings.NewReader(tt.body))
			require.ErrorContains(t, err, tt.want)
		})
	}
}

func TestRateInterval(t *testing.T) {
	cfg := DefaultConfig()
	// 30 calls/min with the safety margin comes out at the demo-tier 2.1s.
	require.Equal(t, 2100*time.Millisecond, cfg.RateInterval())

	cfg.CallsPerMinute = 60
	require.Equal(t, 1050*time.Millisecond, cfg.RateInterval())
}
