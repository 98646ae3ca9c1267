package config

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	return Config{
		DBDriver:       "sqlite",
		SQLitePath:     "./dev.sqlite",
		LedgerURL:      "http://ledger:8090",
		LedgerContract: "vm",
		LedgerTimeout:  30 * time.Second,
		Engine: Engine{
			TickInterval:     time.Minute,
			MinimumBuffer:    3,
			SettlementGrace:  2 * time.Minute,
			MatchDuration:    120 * time.Second,
			RetentionWindow:  24 * time.Hour,
			QuarantineWindow: 72 * time.Hour,
		},
	}
}

func TestValidate(t *testing.T) {
	require.NoError(t, validConfig().Validate())

	cases := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{"missing ledger url", func(c *Config) { c.LedgerURL = "" }, ErrMissing},
		{"missing contract", func(c *Config) { c.LedgerContract = "" }, ErrMissing},
		{"unknown driver", func(c *Config) { c.DBDriver = "mysql" }, ErrInvalid},
		{"in-memory sqlite", func(c *Config) { c.SQLitePath = ":memory:" }, ErrInvalid},
		{"zero tick", func(c *Config) { c.Engine.TickInterval = 0 }, ErrInvalid},
		{"empty buffer", func(c *Config) { c.Engine.MinimumBuffer = 0 }, ErrInvalid},
		{"match longer than grace", func(c *Config) { c.Engine.MatchDuration = 3 * time.Minute }, ErrInvalid},
		{"quarantine inside retention", func(c *Config) { c.Engine.QuarantineWindow = time.Hour }, ErrInvalid},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := validConfig()
			tc.mutate(&c)
			err := c.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, tc.want))
		})
	}
}

func TestLoadReadsEngineEnv(t *testing.T) {
	t.Setenv("TICK_INTERVAL", "15s")
	t.Setenv("SETTLEMENT_GRACE", "180000")
	t.Setenv("MINIMUM_BUFFER", "5")
	t.Setenv("PAUSE_TASKS", "yes")
	t.Setenv("SERVICE_NAME", "ledger-simulator")

	c := Load()
	assert.Equal(t, 15*time.Second, c.Engine.TickInterval)
	assert.Equal(t, 3*time.Minute, c.Engine.SettlementGrace)
	assert.EqualValues(t, 5, c.Engine.MinimumBuffer)
	assert.True(t, c.Engine.PauseTasks)
	assert.Equal(t, "8090", c.HTTPPort)
}
