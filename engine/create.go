package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/Kapral67/FamilyDirectory-sub001/store"
)

// CreateRoot creates the root member and its family unit, which is its own
// ancestor. Returns ErrAlreadyExists if the root is present.
func (e *Engine) CreateRoot(ctx context.Context, attrs Attributes) (*store.Member, error) {
	if err := attrs.Validate(); err != nil {
		return nil, err
	}

	rootID := e.config.RootID
	m := attrs.Member(rootID, rootID)

	err := e.attempt(ctx, "createRoot", func(ctx context.Context, v *reads) error {
		exists, err := v.check.RootExists(ctx)
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("%w: root %s", ErrAlreadyExists, rootID)
		}
		if err := v.emailAvailable(ctx, m.Email, m.ID); err != nil {
			return err
		}

		tx := store.NewTx()
		familyIdx := tx.CreateFamily(store.Family{ID: rootID, AncestorID: rootID})
		memberIdx := tx.CreateMember(m)
		emailIdx := claimEmail(tx, m.Email, m.ID)

		err = e.store.Transact(ctx, tx)
		failed := store.FailedOp(err)
		switch {
		case err == nil:
			return nil
		case failed >= 0 && (failed == familyIdx || failed == memberIdx):
			return fmt.Errorf("%w: root %s", ErrAlreadyExists, rootID)
		case failed >= 0 && failed == emailIdx:
			return emailTaken(m.Email)
		}
		return storeError("create root", err)
	})
	if err != nil {
		return nil, err
	}

	m.Version = 1
	e.committed(ctx, "createRoot", m.ID)
	return &m, nil
}

// CreateSpouse marries a new naturalized member into the family unit of
// nativeMemberID. Returns ErrNotFound if the root or the member is missing and
// ErrConflict if the unit already has a spouse.
func (e *Engine) CreateSpouse(ctx context.Context, nativeMemberID uuid.UUID, attrs Attributes) (*store.Member, error) {
	if err := attrs.Validate(); err != nil {
		return nil, err
	}

	id := e.newID()
	var m store.Member
	err := e.attempt(ctx, "createSpouse", func(ctx context.Context, v *reads) error {
		exists, err := v.check.RootExists(ctx)
		if err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("%w: root %s must exist before a spouse is added", ErrNotFound, e.config.RootID)
		}

		native, err := v.member(ctx, nativeMemberID)
		if err != nil {
			return err
		}
		married, err := v.check.HasSpouse(ctx, native.FamilyID)
		if err != nil {
			return err
		}
		if married {
			family, err := v.family(ctx, native.FamilyID)
			if err != nil {
				return err
			}
			return fmt.Errorf("%w: family %s already has spouse %s", ErrConflict, family.ID, family.SpouseID)
		}

		m = attrs.Member(id, native.FamilyID)
		if err := v.emailAvailable(ctx, m.Email, m.ID); err != nil {
			return err
		}

		tx := store.NewTx()
		spouseIdx := tx.SetSpouse(native.FamilyID, id)
		tx.CreateMember(m)
		emailIdx := claimEmail(tx, m.Email, m.ID)

		err = e.store.Transact(ctx, tx)
		failed := store.FailedOp(err)
		switch {
		case err == nil:
			return nil
		case failed >= 0 && failed == spouseIdx:
			// Married or removed concurrently; the re-read reports which.
			return stale(err)
		case failed >= 0 && failed == emailIdx:
			return emailTaken(m.Email)
		}
		return storeError("create spouse", err)
	})
	if err != nil {
		return nil, err
	}

	m.Version = 1
	e.committed(ctx, "createSpouse", m.ID)
	return &m, nil
}

// CreateDescendant creates a new native member and its family unit under the
// family of parentMemberID, which may be either the native member or the spouse.
// The parent's descendant list is appended server side, so concurrent
// descendants of one parent are never lost.
func (e *Engine) CreateDescendant(ctx context.Context, parentMemberID uuid.UUID, attrs Attributes) (*store.Member, error) {
	if err := attrs.Validate(); err != nil {
		return nil, err
	}

	id := e.newID()
	m := attrs.Member(id, id)
	err := e.attempt(ctx, "createDescendant", func(ctx context.Context, v *reads) error {
		parent, err := v.member(ctx, parentMemberID)
		if err != nil {
			return err
		}
		family, err := v.family(ctx, parent.FamilyID)
		if err != nil {
			return err
		}
		if err := v.emailAvailable(ctx, m.Email, m.ID); err != nil {
			return err
		}

		tx := store.NewTx()
		appendIdx := tx.AppendDescendant(family.ID, id)
		tx.CreateFamily(store.Family{ID: id, AncestorID: family.ID})
		tx.CreateMember(m)
		emailIdx := claimEmail(tx, m.Email, m.ID)

		err = e.store.Transact(ctx, tx)
		failed := store.FailedOp(err)
		switch {
		case err == nil:
			return nil
		case failed >= 0 && failed == appendIdx:
			// The parent unit was deleted after it was read.
			return stale(err)
		case failed >= 0 && failed == emailIdx:
			return emailTaken(m.Email)
		}
		return storeError("create descendant", err)
	})
	if err != nil {
		return nil, err
	}

	m.Version = 1
	e.committed(ctx, "createDescendant", m.ID)
	return &m, nil
}
