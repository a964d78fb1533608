package ratelimit

import (
	"strings"
	"time"
)

// EndpointConfig represents rate limiting configuration for a specific endpoint.
type EndpointConfig struct {
	Path   string        // Endpoint path pattern (supports prefix matching)
	Method string        // HTTP method (GET, POST, etc.)
	Limit  int           // Maximum requests per window
	Window time.Duration // Time window
	Burst  int           // Burst capacity (defaults to Limit if 0)
}

// key identifies the bucket family for this rule
func (e *EndpointConfig) key() string {
	return e.Method + " " + e.Path
}

// Settings are the tunables read from service configuration.
type Settings struct {
	Enabled       bool
	DefaultLimit  int
	DefaultWindow time.Duration
	SubmitLimit   int
	Allowlist     []string
	Denylist      []string
}

// NewConfig builds a limiter configuration from service settings.
func NewConfig(s Settings) *Config {
	if !s.Enabled {
		return &Config{Enabled: false}
	}
	if s.DefaultLimit <= 0 {
		s.DefaultLimit = 600
	}
	if s.DefaultWindow <= 0 {
		s.DefaultWindow = time.Minute
	}
	if s.SubmitLimit <= 0 {
		s.SubmitLimit = 30
	}

	return &Config{
		Enabled:         true,
		DefaultLimit:    s.DefaultLimit,
		DefaultWindow:   s.DefaultWindow,
		CleanupInterval: 5 * time.Minute,
		Allowlist:       parseIDList(s.Allowlist),
		Denylist:        parseIDList(s.Denylist),
		EndpointConfigs: DefaultEndpointConfigs(s.SubmitLimit),
	}
}

// DefaultEndpointConfigs returns the endpoint-specific limits.
func DefaultEndpointConfigs(submitLimit int) []EndpointConfig {
	burst := max(1, submitLimit/10)
	return []EndpointConfig{
		// Submissions start model calls and a compiler run
		{Path: "/jobs", Method: "POST", Limit: submitLimit, Window: time.Hour, Burst: burst},

		// Cancellation
		{Path: "/jobs/", Method: "POST", Limit: 100, Window: time.Minute, Burst: 10},

		// Reads fall through to the default limit; /health and /metrics are unlimited
	}
}

// parseIDList converts a list of client identifiers into a set.
func parseIDList(list []string) map[string]bool {
	result := make(map[string]bool)
	for _, id := range list {
		id = strings.TrimSpace(id)
		if id != "" {
			result[id] = true
		}
	}
	return result
}
