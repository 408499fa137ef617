package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Kapral67/FamilyDirectory-sub001/invariant"
	"github.com/Kapral67/FamilyDirectory-sub001/store"
)

// Errors returned by Engine operations. Match them with errors.Is.
var (
	ErrNotFound      = invariant.ErrNotFound
	ErrConflict      = invariant.ErrConflict
	ErrValidation    = invariant.ErrValidation
	ErrInternal      = invariant.ErrInternal
	ErrAlreadyExists = invariant.ErrAlreadyExists
	ErrEmailTaken    = invariant.ErrEmailTaken
)

// errStale marks a failed condition caused by a concurrent writer. The
// operation re-reads and tries again.
var errStale = errors.New("familydir: observed state changed")

func stale(err error) error {
	return fmt.Errorf("%w: %w", errStale, err)
}

func retryable(err error) bool {
	return errors.Is(err, errStale) || errors.Is(err, store.ErrTransactionConflict)
}

// storeError classifies an error returned by the store. Contention is left
// for the retry loop; everything else unexpected becomes ErrInternal.
func storeError(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrTransactionConflict),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrInternal, op, err)
}

func emailTaken(email string) error {
	return fmt.Errorf("%w: %s", ErrEmailTaken, email)
}

// blocked describes why a native member cannot be deleted.
func blocked(f *store.Family) error {
	var reasons []string
	if f.HasSpouse() {
		reasons = append(reasons, "spouse "+f.SpouseID.String())
	}
	if f.HasDescendants() {
		ids := make([]string, len(f.DescendantIDs))
		for i, d := range f.DescendantIDs {
			ids[i] = d.String()
		}
		reasons = append(reasons, "descendants "+strings.Join(ids, ", "))
	}
	return fmt.Errorf("%w: member %s cannot be deleted while it has %s", ErrConflict, f.ID, strings.Join(reasons, " and "))
}
