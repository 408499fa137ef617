package identity

import "time"

// Config holds table names for the identity tables.
type Config struct {
	// BindingsTable maps an external subject to a member (hash key "sub").
	// Default: "familydir_identities"
	BindingsTable string

	// MemberIndex is the global secondary index on BindingsTable keyed by "member".
	// Default: "member-index"
	MemberIndex string

	// DeadLetterTable holds unbinds that exhausted their retries (hash key "member").
	// Default: "familydir_unbind_dead_letters"
	DeadLetterTable string
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BindingsTable:   "familydir_identities",
		MemberIndex:     "member-index",
		DeadLetterTable: "familydir_unbind_dead_letters",
	}
}

func (c *Config) validate() {
	d := DefaultConfig()
	if c.BindingsTable == "" {
		c.BindingsTable = d.BindingsTable
	}
	if c.MemberIndex == "" {
		c.MemberIndex = d.MemberIndex
	}
	if c.DeadLetterTable == "" {
		c.DeadLetterTable = d.DeadLetterTable
	}
}

// JanitorConfig tunes post-commit unbind retries.
type JanitorConfig struct {
	// MaxRetries bounds re-attempts before an unbind is dead-lettered.
	// Default: 5
	MaxRetries uint64

	// RetryBase is the first backoff between attempts.
	// Default: 100ms
	RetryBase time.Duration

	// RetryCap bounds a single backoff.
	// Default: 5s
	RetryCap time.Duration
}

// DefaultJanitorConfig returns sensible defaults.
func DefaultJanitorConfig() JanitorConfig {
	return JanitorConfig{
		MaxRetries: 5,
		RetryBase:  100 * time.Millisecond,
		RetryCap:   5 * time.Second,
	}
}

func (c *JanitorConfig) validate() {
	d := DefaultJanitorConfig()
	if c.MaxRetries == 0 {
		c.MaxRetries = d.MaxRetries
	}
	if c.RetryBase <= 0 {
		c.RetryBase = d.RetryBase
	}
	if c.RetryCap < c.RetryBase {
		c.RetryCap = d.RetryCap
	}
	if c.RetryCap < c.RetryBase {
		c.RetryCap = c.RetryBase
	}
}
