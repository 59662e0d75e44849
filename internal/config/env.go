package config

import (
	"fmt"
	"strconv"
	"time"
)

// Environment variables that override values from the config file.
const (
	EnvBaseDir     = "SERVECTL_BASE_DIR"
	EnvPort        = "SERVECTL_PORT"
	EnvKeepAlive   = "SERVECTL_KEEP_ALIVE"
	EnvReload      = "SERVECTL_RELOAD"
	EnvMatch       = "SERVECTL_MATCH"
	EnvLogFile     = "SERVECTL_LOG_FILE"
	EnvMetricsFile = "SERVECTL_METRICS_FILE"
	EnvLogLevel    = "SERVECTL_LOG_LEVEL"
)

// LookupFunc matches the signature of os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// ApplyEnv overlays SERVECTL_* variables onto the config. Empty values are
// ignored.
func (c *Config) ApplyEnv(lookup LookupFunc) error {
	get := func(key string) (string, bool) {
		value, ok := lookup(key)
		if !ok || value == "" {
			return "", false
		}
		return value, true
	}

	if value, ok := get(EnvPort); ok {
		port, err := ParsePort(value)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvPort, err)
		}
		c.Server.Port = port
	}
	if value, ok := get(EnvKeepAlive); ok {
		keepAlive, err := parseSeconds(value)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvKeepAlive, err)
		}
		c.Server.KeepAlive.Set(keepAlive)
	}
	if value, ok := get(EnvReload); ok {
		reload, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("%s: invalid boolean %q: %w", EnvReload, value, err)
		}
		c.Server.Reload = &reload
	}
	if value, ok := get(EnvMatch); ok {
		c.Match = value
	}
	if value, ok := get(EnvLogFile); ok {
		c.Log.Path = value
	}
	return nil
}

// parseSeconds accepts a Go duration ("90s") or a bare number of seconds ("90").
func parseSeconds(value string) (time.Duration, error) {
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", value, err)
	}
	return d, nil
}

// ParseKeepAlive is the flag-facing form of parseSeconds.
func ParseKeepAlive(value string) (time.Duration, error) {
	return parseSeconds(value)
}
