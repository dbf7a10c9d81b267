package manager

import (
	"time"

	"github.com/KevinKickass/ngxconfig/internal/eeprom"
)

// Config holds the sequencer settings.
type Config struct {
	// OpTimeout is the wait for one response.
	OpTimeout time.Duration

	// RetryLimit is the total number of attempts per operation.
	RetryLimit int

	// TolerateReadFailures lets read sequences skip addresses that failed
	// after all attempts. Writes always abort.
	TolerateReadFailures bool

	// WritePacing is an optional pause between acknowledged writes.
	WritePacing time.Duration

	Protocol eeprom.Protocol
}

func defaultConfig() Config {
	return Config{
		OpTimeout:            300 * time.Millisecond,
		RetryLimit:           3,
		TolerateReadFailures: true,
		Protocol:             eeprom.DefaultProtocol(),
	}
}

type Option func(*Config)

func WithTimeout(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.OpTimeout = d
		}
	}
}

// WithRetryLimit sets the attempts per operation; values below 1 are ignored.
func WithRetryLimit(n int) Option {
	return func(c *Config) {
		if n >= 1 {
			c.RetryLimit = n
		}
	}
}

func WithTolerateReadFailures(v bool) Option {
	return func(c *Config) {
		c.TolerateReadFailures = v
	}
}

func WithWritePacing(d time.Duration) Option {
	return func(c *Config) {
		if d >= 0 {
			c.WritePacing = d
		}
	}
}

func WithProtocol(p eeprom.Protocol) Option {
	return func(c *Config) {
		c.Protocol = p
	}
}
