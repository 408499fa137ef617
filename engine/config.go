package engine

import (
	"time"

	"github.com/google/uuid"
)

// DefaultRootID is the well-known id of the root member and family unit.
var DefaultRootID = uuid.MustParse("00000000-0000-0000-0000-000000000001")

// Config holds configuration for the Engine.
type Config struct {
	// RootID is the id of the single root family unit.
	// Default: DefaultRootID
	RootID uuid.UUID

	// MaxRetries bounds re-attempts after a concurrent writer invalidated a read.
	// Default: 5
	MaxRetries uint64

	// RetryBase is the first backoff between attempts, doubled each time.
	// Default: 25ms
	RetryBase time.Duration

	// RetryCap caps a single backoff.
	// Default: 1s
	RetryCap time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		RootID:     DefaultRootID,
		MaxRetries: 5,
		RetryBase:  25 * time.Millisecond,
		RetryCap:   time.Second,
	}
}

func (c *Config) validate() {
	d := DefaultConfig()
	if c.RootID == uuid.Nil {
		c.RootID = d.RootID
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = d.MaxRetries
	}
	if c.RetryBase <= 0 {
		c.RetryBase = d.RetryBase
	}
	if c.RetryCap < c.RetryBase {
		c.RetryCap = c.RetryBase
	}
}
