// Package invariant holds the read-only precondition checks run before a
// relationship mutation is built. Checks never write. The store's conditional
// writes remain the final guard, so a passing check only means the mutation is
// expected to succeed.
package invariant

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/Kapral67/FamilyDirectory-sub001/internal/hashkey"
	"github.com/Kapral67/FamilyDirectory-sub001/store"
)

// Checker runs precondition checks against a store.Reader.
type Checker struct {
	reader store.Reader
	rootID uuid.UUID
}

// New creates a Checker. rootID is the well-known id of the root family unit.
func New(reader store.Reader, rootID uuid.UUID) *Checker {
	return &Checker{reader: reader, rootID: rootID}
}

// RootExists reports whether the root family unit is present.
func (c *Checker) RootExists(ctx context.Context) (bool, error) {
	_, err := c.reader.GetFamily(ctx, c.rootID)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: read root: %w", ErrInternal, err)
	}
	return true, nil
}

// HasSpouse reports whether the family unit has a spouse.
func (c *Checker) HasSpouse(ctx context.Context, familyID uuid.UUID) (bool, error) {
	f, err := c.family(ctx, familyID)
	if err != nil {
		return false, err
	}
	return f.HasSpouse(), nil
}

// HasDescendants reports whether the family unit lists any descendants.
func (c *Checker) HasDescendants(ctx context.Context, familyID uuid.UUID) (bool, error) {
	f, err := c.family(ctx, familyID)
	if err != nil {
		return false, err
	}
	return f.HasDescendants(), nil
}

// EmailIsUnique reports whether no member other than excluding holds email.
// An empty email is always unique. The lookup goes through an eventually
// consistent index.
func (c *Checker) EmailIsUnique(ctx context.Context, email string, excluding uuid.UUID) (bool, error) {
	if hashkey.Normalize(email) == "" {
		return true, nil
	}
	members, err := c.reader.FindMembersByEmail(ctx, email)
	if err != nil {
		return false, fmt.Errorf("%w: lookup email: %w", ErrInternal, err)
	}
	for _, m := range members {
		if m.ID != excluding {
			return false, nil
		}
	}
	return true, nil
}

func (c *Checker) family(ctx context.Context, familyID uuid.UUID) (*store.Family, error) {
	f, err := c.reader.GetFamily(ctx, familyID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: family %s", ErrNotFound, familyID)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read family %s: %w", ErrInternal, familyID, err)
	}
	return f, nil
}
