// Package engine implements the relationship rules of the family directory.
//
// Every create, update and delete decides which items change together and
// which conditions must hold, then submits them as one store transaction.
// Read-only checks from package invariant produce descriptive errors up front.
// The transaction's conditions are what actually guard against concurrent
// writers: when one fails because the observed state moved, the operation
// re-reads and tries again with exponential backoff.
//
// After a commit the engine optionally appends the changed member ids to the
// change token chain and, for deletes, asks an Unbinder to drop the external
// identity binding. Both steps are best effort and only logged on failure.
package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"github.com/Kapral67/FamilyDirectory-sub001/store"
)

// Notifier records which members changed in a committed mutation.
// *chain.Chain satisfies it.
type Notifier interface {
	Append(ctx context.Context, members []uuid.UUID) (uuid.UUID, error)
}

// Unbinder removes the external identity binding of a deleted member.
// *identity.Janitor satisfies it.
type Unbinder interface {
	Unbind(ctx context.Context, memberID uuid.UUID) error
}

// Option configures optional Engine collaborators.
type Option func(*Engine)

// WithNotifier appends a change token after every committed mutation.
func WithNotifier(n Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

// WithUnbinder drops external identity bindings after a member is deleted.
func WithUnbinder(u Unbinder) Option {
	return func(e *Engine) { e.unbinder = u }
}

// Engine is the single entry point for relationship mutations.
type Engine struct {
	store    store.ItemStore
	config   Config
	notifier Notifier
	unbinder Unbinder
	logger   *slog.Logger
	newID    func() uuid.UUID
}

// New creates an Engine over s.
func New(s store.ItemStore, config Config, logger *slog.Logger, opts ...Option) *Engine {
	config.validate()
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		store:  s,
		config: config,
		logger: logger,
		newID:  uuid.New,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RootID returns the id of the root member and family unit.
func (e *Engine) RootID() uuid.UUID {
	return e.config.RootID
}

// attempt runs fn until it succeeds, fails with a non-retryable error, or the
// retry budget runs out. Each try gets a fresh view of the store.
func (e *Engine) attempt(ctx context.Context, op string, fn func(ctx context.Context, v *reads) error) error {
	backoff := retry.NewExponential(e.config.RetryBase)
	backoff = retry.WithCappedDuration(e.config.RetryCap, backoff)
	backoff = retry.WithMaxRetries(e.config.MaxRetries, backoff)

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := fn(ctx, newReads(e.store, e.config.RootID))
		if retryable(err) {
			e.logger.Debug("retrying after concurrent write", "op", op, "error", err)
			return retry.RetryableError(err)
		}
		return err
	})
	if retryable(err) {
		return fmt.Errorf("%w: %s: concurrent writes exhausted retries: %w", ErrInternal, op, err)
	}
	return err
}

// committed runs the post-commit steps. They never fail the operation.
func (e *Engine) committed(ctx context.Context, op string, members ...uuid.UUID) {
	e.logger.Info("mutation committed", "op", op, "members", members)
	if e.notifier == nil {
		return
	}
	token, err := e.notifier.Append(context.WithoutCancel(ctx), members)
	if err != nil {
		e.logger.Warn("change token append failed",
			"op", op,
			"members", members,
			"error", err,
		)
		return
	}
	e.logger.Debug("change token appended", "op", op, "token", token)
}

func (e *Engine) unbind(ctx context.Context, memberID uuid.UUID) {
	if e.unbinder == nil {
		return
	}
	if err := e.unbinder.Unbind(context.WithoutCancel(ctx), memberID); err != nil {
		e.logger.Warn("identity unbind failed",
			"member", memberID,
			"error", err,
		)
	}
}

// claimEmail adds an email claim to tx and returns its index, or -1 when
// the member has no email.
func claimEmail(tx *store.Tx, email string, owner uuid.UUID) int {
	if email == "" {
		return -1
	}
	return tx.ClaimEmail(email, owner)
}

func releaseEmail(tx *store.Tx, email string, owner uuid.UUID) int {
	if email == "" {
		return -1
	}
	return tx.ReleaseEmail(email, owner)
}
