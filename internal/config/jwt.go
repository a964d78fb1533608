package config

import (
	"fmt"
	"time"
)

// JWTConfig holds configuration for bearer token signing and verification.
type JWTConfig struct {
	Secret     string
	Expiration time.Duration
}

// JWT returns the token configuration, or nil when JWT_SECRET is unset.
// Without a secret the API falls back to the X-Owner-ID header.
func (c *Config) JWT() (*JWTConfig, error) {
	if c.JWTSecret == "" {
		return nil, nil
	}
	return NewJWTConfig(c.JWTSecret, c.JWTExpiration)
}

// NewJWTConfig creates a JWT configuration; expiration defaults to 24h.
func NewJWTConfig(secret string, expiration time.Duration) (*JWTConfig, error) {
	if expiration == 0 {
		expiration = 24 * time.Hour
	}
	cfg := &JWTConfig{Secret: secret, Expiration: expiration}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// normalize validates the configuration.
func (c *JWTConfig) normalize() error {
	if c.Secret == "" {
		return fmt.Errorf("JWT_SECRET cannot be empty")
	}
	if len(c.Secret) < 16 {
		return fmt.Errorf("JWT_SECRET must be at least 16 characters")
	}
	if c.Expiration < time.Minute {
		return fmt.Errorf("JWT_EXPIRATION must be at least 1m, got: %s", c.Expiration)
	}
	return nil
}
