package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/Kapral67/FamilyDirectory-sub001/store"
)

// DeleteMember removes member id.
//
// A native member is deleted together with its family unit and unlinked from
// its ancestor's descendants; it fails with ErrConflict while the unit has a
// spouse or descendants. A naturalized member is deleted and cleared as its
// unit's spouse. Once committed, the member's external identity binding is
// dropped on a best-effort basis.
func (e *Engine) DeleteMember(ctx context.Context, id uuid.UUID) error {
	err := e.attempt(ctx, "deleteMember", func(ctx context.Context, v *reads) error {
		m, err := v.member(ctx, id)
		if err != nil {
			return err
		}
		if m.IsNative() {
			return e.deleteNative(ctx, v, m)
		}
		return e.deleteNaturalized(ctx, m)
	})
	if err != nil {
		return err
	}

	e.committed(ctx, "deleteMember", id)
	e.unbind(ctx, id)
	return nil
}

func (e *Engine) deleteNative(ctx context.Context, v *reads, m *store.Member) error {
	married, err := v.check.HasSpouse(ctx, m.ID)
	if errors.Is(err, ErrNotFound) {
		return fmt.Errorf("%w: native member %s has no family unit", ErrInternal, m.ID)
	}
	if err != nil {
		return err
	}
	parent, err := v.check.HasDescendants(ctx, m.ID)
	if err != nil {
		return err
	}
	family, err := v.family(ctx, m.ID)
	if err != nil {
		return err
	}
	if married || parent {
		return blocked(family)
	}

	tx := store.NewTx()
	familyIdx := tx.DeleteFamily(family.ID)
	memberIdx := tx.DeleteMember(m.ID)
	unlinkIdx := -1
	if !family.IsRoot() {
		if unlinkIdx, err = e.unlink(ctx, v, tx, family); err != nil {
			return err
		}
	}
	releaseIdx := releaseEmail(tx, m.Email, m.ID)

	err = e.store.Transact(ctx, tx)
	failed := store.FailedOp(err)
	switch {
	case err == nil:
		return nil
	case failed == familyIdx, failed == memberIdx, failed >= 0 && failed == unlinkIdx:
		// A spouse or descendant was added, the member vanished, or the
		// ancestor's list shifted; the re-read decides.
		return stale(err)
	case failed >= 0 && failed == releaseIdx:
		e.logger.Error("email claim held by another member", "member", m.ID, "email", m.Email)
	}
	return storeError("delete native member", err)
}

// unlink adds the removal of family from its ancestor's descendants to tx,
// guarded by the observed position. Returns -1 if the ancestor does not list it.
func (e *Engine) unlink(ctx context.Context, v *reads, tx *store.Tx, family *store.Family) (int, error) {
	ancestor, err := v.GetFamily(ctx, family.AncestorID)
	if errors.Is(err, store.ErrNotFound) {
		e.logger.Warn("ancestor family missing", "family", family.ID, "ancestor", family.AncestorID)
		return -1, nil
	}
	if err != nil {
		return -1, storeError("read ancestor", err)
	}

	idx := ancestor.IndexOf(family.ID)
	if idx < 0 {
		e.logger.Warn("family not listed by its ancestor", "family", family.ID, "ancestor", ancestor.ID)
		return -1, nil
	}
	return tx.RemoveDescendant(ancestor.ID, family.ID, idx, len(ancestor.DescendantIDs)), nil
}

func (e *Engine) deleteNaturalized(ctx context.Context, m *store.Member) error {
	tx := store.NewTx()
	spouseIdx := tx.ClearSpouse(m.FamilyID, m.ID)
	memberIdx := tx.DeleteMember(m.ID)
	releaseIdx := releaseEmail(tx, m.Email, m.ID)

	err := e.store.Transact(ctx, tx)
	failed := store.FailedOp(err)
	switch {
	case err == nil:
		return nil
	case failed == spouseIdx, failed == memberIdx:
		return stale(err)
	case failed >= 0 && failed == releaseIdx:
		e.logger.Error("email claim held by another member", "member", m.ID, "email", m.Email)
	}
	return storeError("delete naturalized member", err)
}
