package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("STORE_DRIVER", "Memory")
	c, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DriverMemory, c.StoreDriver)
	assert.Equal(t, "5000", c.Port)
	assert.Equal(t, 60*time.Second, c.HoldDuration())
	assert.Equal(t, 3, c.LayoutMin)
	assert.Equal(t, 20, c.LayoutMax)
	assert.Equal(t, 15*time.Second, c.SweepInterval)
	assert.Equal(t, "seat.events", c.SeatEventsExchange)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("STORE_DRIVER", "mongo")
	t.Setenv("HOLD_SECONDS", "5")
	t.Setenv("SWEEP_INTERVAL", "0s")
	c, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DriverMongo, c.StoreDriver)
	assert.Equal(t, 5*time.Second, c.HoldDuration())
	assert.Zero(t, c.SweepInterval)
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("STORE_DRIVER", "postgres")
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("HOLD_SECONDS", "0")
	_, err = Load()
	assert.Error(t, err)

	t.Setenv("HOLD_SECONDS", "abc")
	_, err = Load()
	assert.Error(t, err)
}

func TestRateLimitNormalize(t *testing.T) {
	c := RateLimitConfig{Capacity: 0, RefillTokens: -1, RefillInterval: 0, TTL: time.Second}.normalize()
	assert.Equal(t, 1, c.Capacity)
	assert.Equal(t, 1, c.RefillTokens)
	assert.Equal(t, time.Second, c.RefillInterval)
	assert.Equal(t, 5*time.Second, c.TTL)
}

func TestRedisAddress(t *testing.T) {
	assert.Equal(t, "cache:6380", RedisConfig{Host: "cache", Port: "6380", Addr: "x:1"}.Address())
	assert.Equal(t, "x:1", RedisConfig{Host: "cache", Addr: "x:1"}.Address())
}
