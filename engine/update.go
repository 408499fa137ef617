package engine

import (
	"context"

	"github.com/google/uuid"

	"github.com/Kapral67/FamilyDirectory-sub001/internal/hashkey"
	"github.com/Kapral67/FamilyDirectory-sub001/store"
)

// UpdateMember replaces every attribute of member id with attrs. Optional
// attributes left empty are cleared. The member's id and family are kept.
// A changed email moves the unique claim in the same transaction.
func (e *Engine) UpdateMember(ctx context.Context, id uuid.UUID, attrs Attributes) (*store.Member, error) {
	if err := attrs.Validate(); err != nil {
		return nil, err
	}

	var next store.Member
	err := e.attempt(ctx, "updateMember", func(ctx context.Context, v *reads) error {
		current, err := v.member(ctx, id)
		if err != nil {
			return err
		}

		next = attrs.Member(id, current.FamilyID)
		previous := hashkey.Normalize(current.Email)
		emailChanged := next.Email != previous
		if emailChanged {
			if err := v.emailAvailable(ctx, next.Email, id); err != nil {
				return err
			}
		}

		tx := store.NewTx()
		replaceIdx := tx.ReplaceMember(next, current.Version)
		claimIdx, releaseIdx := -1, -1
		if emailChanged {
			claimIdx = claimEmail(tx, next.Email, id)
			releaseIdx = releaseEmail(tx, previous, id)
		}

		err = e.store.Transact(ctx, tx)
		failed := store.FailedOp(err)
		switch {
		case err == nil:
			next.Version = current.Version + 1
			return nil
		case failed == replaceIdx:
			// Updated or deleted concurrently.
			return stale(err)
		case failed >= 0 && failed == claimIdx:
			return emailTaken(next.Email)
		case failed >= 0 && failed == releaseIdx:
			e.logger.Error("email claim held by another member",
				"member", id,
				"email", previous,
			)
		}
		return storeError("update member", err)
	})
	if err != nil {
		return nil, err
	}

	e.committed(ctx, "updateMember", id)
	return &next, nil
}
