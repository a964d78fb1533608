package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJWTConfig_DefaultExpiration(t *testing.T) {
	cfg, err := NewJWTConfig("test-secret-key-0123", 0)
	require.NoError(t, err)
	assert.Equal(t, "test-secret-key-0123", cfg.Secret)
	assert.Equal(t, 24*time.Hour, cfg.Expiration, "should use default expiration of 24 hours")
}

func TestNewJWTConfig_Invalid(t *testing.T) {
	tests := []struct {
		name       string
		secret     string
		expiration time.Duration
		errMsg     string
	}{
		{"empty secret", "", time.Hour, "cannot be empty"},
		{"short secret", "short", time.Hour, "at least 16"},
		{"expiration too short", "test-secret-key-0123", time.Second, "at least 1m"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := NewJWTConfig(tt.secret, tt.expiration)
			require.Error(t, err)
			assert.Nil(t, cfg)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestConfig_JWT(t *testing.T) {
	cfg := &Config{}
	jwtCfg, err := cfg.JWT()
	require.NoError(t, err)
	assert.Nil(t, jwtCfg, "no secret means header-based identity")

	cfg.JWTSecret = "test-secret-key-0123"
	cfg.JWTExpiration = 2 * time.Hour
	jwtCfg, err = cfg.JWT()
	require.NoError(t, err)
	assert.Equal(t, 2*time.Hour, jwtCfg.Expiration)
}
