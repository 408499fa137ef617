// Package chain maintains the change token chain read by directory sync
// clients.
//
// Every committed mutation appends a token listing the changed member ids.
// Tokens link forward through next, and the LATEST sentinel points at the
// newest one. A client holding an old token follows next pointers to collect
// every member changed since. Superseded tokens get a TTL and are eventually
// removed by the store's expiry sweep.
//
// Append reads LATEST and then writes in a single transaction conditioned on
// LATEST.next still holding the observed value, so concurrent appends never
// fork the chain or leave a token unlinked.
package chain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"github.com/Kapral67/FamilyDirectory-sub001/store"
)

// Config holds configuration for the Chain.
type Config struct {
	// Retention is how long a superseded token stays readable.
	// Default: 24h
	Retention time.Duration

	// MaxRetries bounds re-attempts when another append won the race.
	// Default: 10
	MaxRetries uint64

	// RetryBase is the first backoff between attempts.
	// Default: 10ms
	RetryBase time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Retention:  24 * time.Hour,
		MaxRetries: 10,
		RetryBase:  10 * time.Millisecond,
	}
}

func (c *Config) validate() {
	d := DefaultConfig()
	if c.Retention <= 0 {
		c.Retention = d.Retention
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = d.MaxRetries
	}
	if c.RetryBase <= 0 {
		c.RetryBase = d.RetryBase
	}
}

// Chain appends to and reads the change token chain.
type Chain struct {
	store  store.ItemStore
	config Config
	logger *slog.Logger
	now    func() time.Time
	newID  func() (uuid.UUID, error)
}

// New creates a Chain over s.
func New(s store.ItemStore, config Config, logger *slog.Logger) *Chain {
	config.validate()
	if logger == nil {
		logger = slog.Default()
	}
	return &Chain{
		store:  s,
		config: config,
		logger: logger,
		now:    time.Now,
		newID:  uuid.NewV7,
	}
}

// Append records members as changed and returns the new token id.
// Duplicate ids are recorded once.
func (c *Chain) Append(ctx context.Context, members []uuid.UUID) (uuid.UUID, error) {
	members = dedupe(members)
	if len(members) == 0 {
		return uuid.Nil, ErrNoMembers
	}

	backoff := retry.WithMaxRetries(c.config.MaxRetries, retry.NewExponential(c.config.RetryBase))
	backoff = retry.WithCappedDuration(time.Second, backoff)
	backoff = retry.WithJitterPercent(20, backoff)

	var id uuid.UUID
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var err error
		if id, err = c.newID(); err != nil {
			return fmt.Errorf("generate token id: %w", err)
		}

		tx := store.NewTx()
		latest, err := c.store.GetToken(ctx, store.LatestID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			tx.PutLatest(id)
		case err != nil:
			return fmt.Errorf("read latest: %w", err)
		case !latest.Superseded():
			return fmt.Errorf("%w: LATEST has no next", ErrBroken)
		default:
			ttl := store.ExpiresAt(c.now(), c.config.Retention)
			tx.LinkToken(latest.Next, id, ttl)
			tx.AdvanceLatest(latest.Next, id)
		}
		tx.CreateToken(store.ChangeToken{ID: id, Members: members})

		err = c.store.Transact(ctx, tx)
		if errors.Is(err, store.ErrConditionFailed) || errors.Is(err, store.ErrTransactionConflict) {
			c.logger.Debug("change token append lost race, retrying", "token", id, "error", err)
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		return uuid.Nil, fmt.Errorf("append change token: %w", err)
	}

	c.logger.Info("change token appended", "token", id, "members", len(members))
	return id, nil
}

// Latest returns a cursor at the newest token.
func (c *Chain) Latest(ctx context.Context) (Cursor, error) {
	latest, err := c.store.GetToken(ctx, store.LatestID)
	if errors.Is(err, store.ErrNotFound) {
		return Cursor{}, ErrEmpty
	}
	if err != nil {
		return Cursor{}, err
	}
	if !latest.Superseded() {
		return Cursor{}, fmt.Errorf("%w: LATEST has no next", ErrBroken)
	}
	return Cursor{ID: latest.Next}, nil
}

// Walk calls fn for the token from and every later token, oldest first.
// It returns store.ErrNotFound if from is missing or expired.
func (c *Chain) Walk(ctx context.Context, from uuid.UUID, fn func(store.ChangeToken) error) error {
	seen := make(map[uuid.UUID]bool)
	for id := from; ; {
		if seen[id] {
			return fmt.Errorf("%w: at token %s", ErrCycle, id)
		}
		seen[id] = true

		tok, err := c.store.GetToken(ctx, id)
		if errors.Is(err, store.ErrNotFound) && id != from {
			return fmt.Errorf("%w: token %s not found", ErrBroken, id)
		}
		if err != nil {
			return err
		}
		if err := fn(*tok); err != nil {
			return err
		}
		if !tok.Superseded() {
			return nil
		}
		id = tok.Next
	}
}

// Delta is the set of changes after a cursor.
type Delta struct {
	// Members lists every changed member id once, in the order first seen.
	Members []uuid.UUID

	// Tokens is the number of tokens applied.
	Tokens int

	// Cursor is the position after applying the delta.
	Cursor Cursor
}

// Since collects the members changed after cursor. It returns ErrCursorExpired
// when the cursor's token is gone and the client must resync from scratch.
func (c *Chain) Since(ctx context.Context, cursor Cursor) (*Delta, error) {
	if cursor.Expired(c.now()) {
		return nil, ErrCursorExpired
	}

	d := &Delta{Cursor: cursor}
	seen := make(map[uuid.UUID]bool)
	err := c.Walk(ctx, cursor.ID, func(t store.ChangeToken) error {
		if t.ID == cursor.ID {
			d.Cursor.TTL = t.TTL
			return nil
		}
		d.Tokens++
		d.Cursor = Cursor{ID: t.ID, TTL: t.TTL}
		for _, m := range t.Members {
			if !seen[m] {
				seen[m] = true
				d.Members = append(d.Members, m)
			}
		}
		return nil
	})
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrCursorExpired
	}
	if err != nil {
		return nil, err
	}
	return d, nil
}

func dedupe(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == uuid.Nil || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
