package store

// Config holds configuration for the Store.
type Config struct {
	// MembersTable is the name of the member table (hash key "id").
	// Default: "familydir_members"
	MembersTable string

	// FamiliesTable is the name of the family unit table (hash key "id").
	// Default: "familydir_families"
	FamiliesTable string

	// TokensTable is the name of the change token table (hash key "id", TTL attribute "ttl").
	// Default: "familydir_sync_tokens"
	TokensTable string

	// UniqueTable is the name of the unique constraints table (hash key "pk", range key "sk").
	// Default: "familydir_unique_constraints"
	UniqueTable string

	// EmailIndex is the global secondary index on MembersTable keyed by "email".
	// Default: "email-index"
	EmailIndex string

	// MaxTransactItems bounds the number of items per transaction.
	// Default: 25
	// Max: 100 (DynamoDB TransactWriteItems limit)
	MaxTransactItems int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MembersTable:     "familydir_members",
		FamiliesTable:    "familydir_families",
		TokensTable:      "familydir_sync_tokens",
		UniqueTable:      "familydir_unique_constraints",
		EmailIndex:       "email-index",
		MaxTransactItems: 25,
	}
}

// validate ensures config values are within acceptable bounds.
func (c *Config) validate() {
	d := DefaultConfig()
	if c.MembersTable == "" {
		c.MembersTable = d.MembersTable
	}
	if c.FamiliesTable == "" {
		c.FamiliesTable = d.FamiliesTable
	}
	if c.TokensTable == "" {
		c.TokensTable = d.TokensTable
	}
	if c.UniqueTable == "" {
		c.UniqueTable = d.UniqueTable
	}
	if c.EmailIndex == "" {
		c.EmailIndex = d.EmailIndex
	}
	if c.MaxTransactItems < 1 {
		c.MaxTransactItems = d.MaxTransactItems
	}
	if c.MaxTransactItems > 100 {
		c.MaxTransactItems = 100
	}
}

// Validated returns a copy of c with defaults and bounds applied.
func (c Config) Validated() Config {
	c.validate()
	return c
}
