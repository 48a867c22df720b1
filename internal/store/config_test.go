package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

const minimalConfig = `
mode: DRY_RUN
universe: [AAPL, MSFT]
risk:
  starting_balance: 5000
  max_trades_per_day: 5
  max_risk_per_trade: 0.02
  max_daily_loss_fraction: 0.05
`

func TestLoadConfigAppliesDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Risk.MaxConsecutiveLosses)
	assert.InDelta(t, 1.0, cfg.Risk.MaxPositionFraction, 1e-9)
	assert.InDelta(t, 0.005, cfg.Risk.MaxSpreadPct, 1e-9)
	assert.Equal(t, "09:30", cfg.Session.Open)
	assert.Equal(t, "16:00", cfg.Session.Close)
	assert.Equal(t, 15, cfg.Session.RestrictedMinutes)
	assert.Equal(t, "America/New_York", cfg.Session.Timezone)
	assert.Equal(t, 300, cfg.Intake.DedupWindowSeconds)
	assert.Equal(t, 3, cfg.Orders.MaxRetries)
	assert.Equal(t, 1000, cfg.Orders.InitialBackoffMillis)
	assert.Equal(t, 8000, cfg.Orders.MaxBackoffMillis)
	assert.Equal(t, "NOOP", cfg.Predictor.Provider)
	assert.Equal(t, ":8080", cfg.Webhook.Addr)
}

func TestLoadConfigValidation(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"bad mode", `
mode: PRODUCTION
risk: {starting_balance: 5000, max_trades_per_day: 5, max_risk_per_trade: 0.02, max_daily_loss_fraction: 0.05}
`},
		{"zero balance", `
mode: DRY_RUN
risk: {starting_balance: 0, max_trades_per_day: 5, max_risk_per_trade: 0.02, max_daily_loss_fraction: 0.05}
`},
		{"risk fraction out of range", `
mode: DRY_RUN
risk: {starting_balance: 5000, max_trades_per_day: 5, max_risk_per_trade: 1.5, max_daily_loss_fraction: 0.05}
`},
		{"bad session clock", `
mode: DRY_RUN
risk: {starting_balance: 5000, max_trades_per_day: 5, max_risk_per_trade: 0.02, max_daily_loss_fraction: 0.05}
session: {open: "9am"}
`},
		{"bad timezone", `
mode: DRY_RUN
risk: {starting_balance: 5000, max_trades_per_day: 5, max_risk_per_trade: 0.02, max_daily_loss_fraction: 0.05}
session: {timezone: "Mars/Olympus"}
`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tc.body))
			assert.Error(t, err)
		})
	}
}

func TestSessionMinutes(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, 9*60+30, cfg.SessionOpenMinute())
	assert.Equal(t, 16*60, cfg.SessionCloseMinute())
	assert.Equal(t, "America/New_York", cfg.SessionLocation().String())
}
