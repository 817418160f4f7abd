package flow

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/creasty/defaults"
)

// Config holds the process-wide execution toggles. It is attached to each
// ActionData snapshot at creation time and read by the executor; nothing in
// the package consults global state.
type Config struct {
	// StrictChainChecks makes the executor fail with
	// ErrNotProperlyConfigured when a chained action receives or returns a
	// container that was not produced by this package's constructors.
	StrictChainChecks bool `yaml:"strict_chain_checks" default:"false"`

	// VerboseErrors augments any error crossing an action boundary with the
	// action log, a dump of the registry and the action's parameters.
	VerboseErrors bool `yaml:"verbose_errors" default:"false"`

	// StrictSignatureInference makes typed actions fail when their output
	// signature carries no key instead of silently discarding the result.
	StrictSignatureInference bool `yaml:"strict_signature_inference" default:"false"`

	logger *slog.Logger
}

const envPrefix = "CASCADE_"

// NewConfig builds a Config from struct defaults overridden by CASCADE_*
// environment variables (defaults first, then overrides — same ordering as
// any other config struct in this repository).
func NewConfig() (Config, error) {
	var cfg Config
	if err := defaults.Set(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to apply config defaults: %w", err)
	}

	overrides := []struct {
		name  string
		field *bool
	}{
		{"STRICT_CHAIN_CHECKS", &cfg.StrictChainChecks},
		{"VERBOSE_ERRORS", &cfg.VerboseErrors},
		{"STRICT_SIGNATURE_INFERENCE", &cfg.StrictSignatureInference},
	}
	for _, o := range overrides {
		raw, ok := os.LookupEnv(envPrefix + o.name)
		if !ok {
			continue
		}
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return Config{}, fmt.Errorf("invalid value for %s%s: %w", envPrefix, o.name, err)
		}
		*o.field = v
	}
	return cfg, nil
}

// WithLogger returns a copy of the config carrying the given logger.
func (c Config) WithLogger(l *slog.Logger) Config {
	c.logger = l
	return c
}

// Logger returns the configured logger, falling back to slog.Default.
func (c Config) Logger() *slog.Logger {
	if c.logger != nil {
		return c.logger
	}
	return slog.Default()
}
