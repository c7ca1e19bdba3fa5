package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8081", cfg.HTTPAddr)
	assert.Equal(t, "postgres", cfg.StoreDriver)
	assert.Equal(t, "auto", cfg.ReservationMode)
	assert.False(t, cfg.RestockOnCancel)
	assert.Equal(t, 10*time.Second, cfg.CompensationTimeout)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("RESERVATION_MODE", "saga")
	t.Setenv("RESTOCK_ON_CANCEL", "true")
	t.Setenv("COMPENSATION_TIMEOUT", "3s")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.StoreDriver)
	assert.Equal(t, "saga", cfg.ReservationMode)
	assert.True(t, cfg.RestockOnCancel)
	assert.Equal(t, 3*time.Second, cfg.CompensationTimeout)
}

func TestLoad_BadDuration(t *testing.T) {
	t.Setenv("SIDE_EFFECT_TIMEOUT", "soon")
	_, err := Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Setenv("STORE_DRIVER", "sqlite")
	t.Setenv("RESERVATION_MODE", "yolo")
	t.Setenv("JWT_SECRET", "")

	cfg, err := Load()
	require.NoError(t, err)
	err = cfg.Validate()
	require.Error(t, err)
	assert.ErrorContains(t, err, "STORE_DRIVER")
	assert.ErrorContains(t, err, "RESERVATION_MODE")
	assert.ErrorContains(t, err, "JWT_SECRET")
}
