package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
)

// Unbinder removes the bindings of a member.
type Unbinder interface {
	Unbind(ctx context.Context, member uuid.UUID) error
}

// Janitor runs post-commit unbinds with retry and dead-lettering.
// It satisfies the engine's Unbinder.
type Janitor struct {
	bindings Unbinder
	dead     DeadLetters
	config   JanitorConfig
	logger   *slog.Logger
	now      func() time.Time
}

// NewJanitor creates a Janitor over bindings, parking failures in dead.
func NewJanitor(bindings Unbinder, dead DeadLetters, config JanitorConfig, logger *slog.Logger) *Janitor {
	config.validate()
	if logger == nil {
		logger = slog.Default()
	}
	return &Janitor{
		bindings: bindings,
		dead:     dead,
		config:   config,
		logger:   logger,
		now:      time.Now,
	}
}

func (j *Janitor) backoff() retry.Backoff {
	b := retry.NewExponential(j.config.RetryBase)
	b = retry.WithCappedDuration(j.config.RetryCap, b)
	return retry.WithMaxRetries(j.config.MaxRetries, b)
}

// attempt runs unbind with backoff and returns the number of tries made.
func (j *Janitor) attempt(ctx context.Context, member uuid.UUID) (int, error) {
	tries := 0
	err := retry.Do(ctx, j.backoff(), func(ctx context.Context) error {
		tries++
		if err := j.bindings.Unbind(ctx, member); err != nil {
			j.logger.Debug("unbind attempt failed", "member", member, "attempt", tries, "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	return tries, err
}

// Unbind removes member's bindings, retrying with backoff. When retries are
// exhausted the member is dead-lettered and the last error returned.
func (j *Janitor) Unbind(ctx context.Context, member uuid.UUID) error {
	tries, err := j.attempt(ctx, member)
	if err == nil {
		return nil
	}
	return j.park(context.WithoutCancel(ctx), DeadLetter{
		MemberID:  member,
		Attempts:  tries,
		LastError: err.Error(),
		FailedAt:  j.now(),
	}, err)
}

func (j *Janitor) park(ctx context.Context, dl DeadLetter, cause error) error {
	if err := j.dead.Put(ctx, dl); err != nil {
		j.logger.Error("failed to dead-letter unbind",
			"member", dl.MemberID,
			"attempts", dl.Attempts,
			"cause", cause,
			"error", err,
		)
		return errors.Join(cause, fmt.Errorf("dead-letter: %w", err))
	}
	j.logger.Warn("unbind dead-lettered",
		"member", dl.MemberID,
		"attempts", dl.Attempts,
		"error", cause,
	)
	return fmt.Errorf("unbind %s: %w", dl.MemberID, cause)
}

// Redrive re-attempts every dead-lettered unbind and returns how many
// succeeded. Failures stay parked with their attempt count raised.
func (j *Janitor) Redrive(ctx context.Context) (int, error) {
	letters, err := j.dead.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("list dead letters: %w", err)
	}

	redriven := 0
	var errs []error
	for _, dl := range letters {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		tries, err := j.attempt(ctx, dl.MemberID)
		if err != nil {
			dl.Attempts += tries
			dl.LastError = err.Error()
			dl.FailedAt = j.now()
			if perr := j.dead.Put(ctx, dl); perr != nil {
				errs = append(errs, fmt.Errorf("update dead letter %s: %w", dl.MemberID, perr))
			}
			j.logger.Warn("redrive failed", "member", dl.MemberID, "attempts", dl.Attempts, "error", err)
			continue
		}

		if err := j.dead.Delete(ctx, dl.MemberID); err != nil {
			errs = append(errs, fmt.Errorf("delete dead letter %s: %w", dl.MemberID, err))
			continue
		}
		redriven++
		j.logger.Info("redrive succeeded", "member", dl.MemberID)
	}

	j.logger.Info("redrive completed", "redriven", redriven, "remaining", len(letters)-redriven)
	return redriven, errors.Join(errs...)
}
