package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_MemoryDefaults(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "memory")
	t.Setenv("JWT_SECRET", "secret")

	cfg, err := New()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 60*time.Second, cfg.Reservation.HoldDuration)
	assert.True(t, cfg.Reservation.RearmOnStart)
	assert.Equal(t, "reservation.create", cfg.AMQP.CreateQueue)
	assert.False(t, cfg.AMQP.Enabled)
	assert.Empty(t, cfg.Redis.Addr)
	assert.Equal(t, 20, cfg.RateLimit.Limit)
	assert.Equal(t, time.Minute, cfg.RateLimit.Window)
}

func TestNew_Overrides(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "postgres")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("POSTGRES_USER", "tix")
	t.Setenv("POSTGRES_PASSWORD", "tix")
	t.Setenv("POSTGRES_DB", "tix")
	t.Setenv("POSTGRES_PORT", "6543")
	t.Setenv("HOLD_DURATION", "90s")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("LOG_FORMAT", "json")

	cfg, err := New()
	require.NoError(t, err)

	assert.Equal(t, 6543, cfg.Postgres.Port)
	assert.Equal(t, 90*time.Second, cfg.Reservation.HoldDuration)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestNew_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{
			name: "missing jwt secret",
			env:  map[string]string{"STORAGE_DRIVER": "memory"},
		},
		{
			name: "postgres without credentials",
			env:  map[string]string{"STORAGE_DRIVER": "postgres", "JWT_SECRET": "s"},
		},
		{
			name: "unknown driver",
			env:  map[string]string{"STORAGE_DRIVER": "sqlite", "JWT_SECRET": "s"},
		},
		{
			name: "bad hold duration",
			env:  map[string]string{"STORAGE_DRIVER": "memory", "JWT_SECRET": "s", "HOLD_DURATION": "0s"},
		},
		{
			name: "bad log format",
			env:  map[string]string{"STORAGE_DRIVER": "memory", "JWT_SECRET": "s", "LOG_FORMAT": "xml"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("JWT_SECRET", "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := New()
			assert.Error(t, err)
		})
	}
}
