package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"stablecap/internal/config"
)

func TestLatestRecordKey(t *testing.T) {
	assert.Equal(t, "stablecap:market_caps:latest:tether", LatestRecordKey("tether"))
	assert.Equal(t, "stablecap:market_caps:latest", LatestRecordKey("  "), "blank parts are dropped")
}

func TestRunSummaryKey(t *testing.T) {
	assert.Equal(t, "stablecap:runs:latest", RunSummaryKey())
}

func TestNewTTLSet(t *testing.T) {
	set := NewTTLSet(config.CacheTTL{Short: 15, Medium: 90, Long: 600})
	assert.Equal(t, 15*time.Second, set.Short)
	assert.Equal(t, 90*time.Second, set.Medium)
	assert.Equal(t, 10*time.Minute, set.Long)
}

func TestNewTTLSetDefaults(t *testing.T) {
	set := NewTTLSet(config.CacheTTL{})
	assert.Equal(t, 10*time.Second, set.Short)
	assert.Equal(t, time.Minute, set.Medium)
	assert.Equal(t, 5*time.Minute, set.Long)

	negative := NewTTLSet(config.CacheTTL{Short: -1, Medium: -1, Long: -1})
	assert.Zero(t, negative.Short)
	assert.Zero(t, negative.Long)
}
