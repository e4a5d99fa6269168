package datamodels

import (
	"log/slog"
	"os"
	"strconv"
	"sync/atomic"
)

// Config holds the process-wide validation switches.
type Config struct {
	// ValidateOnAssignment validates each field assignment outside paused scopes.
	ValidateOnAssignment bool
	// ValidateOnRead validates nodes constructed by the serialization bridge.
	ValidateOnRead bool
	// StrictValidation wraps enumerated scalars on read. When false, enumerated
	// values are kept as raw scalars so out-of-range legacy values still load.
	StrictValidation bool
}

// DefaultConfig returns the configuration used when nothing else is set.
func DefaultConfig() Config {
	return Config{
		ValidateOnAssignment: true,
		ValidateOnRead:       true,
		StrictValidation:     true,
	}
}

// ConfigFromEnv builds a Config from DATAMODELS_VALIDATE and
// DATAMODELS_STRICT_VALIDATION. Unset or unparsable values keep the defaults.
func ConfigFromEnv() Config {
	cfg := DefaultConfig()
	if v, ok := envBool("DATAMODELS_VALIDATE"); ok {
		cfg.ValidateOnAssignment = v
		cfg.ValidateOnRead = v
	}
	if v, ok := envBool("DATAMODELS_STRICT_VALIDATION"); ok {
		cfg.StrictValidation = v
	}
	return cfg
}

func envBool(key string) (bool, bool) {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return false, false
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		Logger().Warn("ignoring malformed boolean", slog.String("env", key), slog.String("value", raw))
		return false, false
	}
	return b, true
}

var currentConfig atomic.Pointer[Config]

func init() {
	cfg := ConfigFromEnv()
	currentConfig.Store(&cfg)
}

// CurrentConfig returns a copy of the process configuration.
func CurrentConfig() Config { return *currentConfig.Load() }

// SetConfig replaces the process configuration.
func SetConfig(cfg Config) { currentConfig.Store(&cfg) }

// WithConfig installs cfg and returns a func restoring the previous value.
//
//	defer datamodels.WithConfig(cfg)()
func WithConfig(cfg Config) (restore func()) {
	prev := currentConfig.Swap(&cfg)
	return func() { currentConfig.Store(prev) }
}
