package api

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/Kapral67/FamilyDirectory-sub001/engine"
	"github.com/Kapral67/FamilyDirectory-sub001/store"
)

var errForbidden = errors.New("familydir: forbidden")

// maxDepth bounds the ancestor walk against a corrupted ancestor loop.
const maxDepth = 256

// authorize allows caller to act on target when the caller belongs to the
// root unit, or when the target's unit is the caller's own unit or one of
// its descendant units.
func authorize(ctx context.Context, r store.Reader, rootID uuid.UUID, caller Caller, target uuid.UUID) error {
	if caller.FamilyID == rootID {
		return nil
	}

	m, err := r.GetMember(ctx, target)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: member %s", engine.ErrNotFound, target)
	}
	if err != nil {
		return err
	}

	familyID := m.FamilyID
	for depth := 0; depth < maxDepth; depth++ {
		if familyID == caller.FamilyID {
			return nil
		}
		f, err := r.GetFamily(ctx, familyID)
		if errors.Is(err, store.ErrNotFound) {
			break
		}
		if err != nil {
			return err
		}
		if f.IsRoot() {
			break
		}
		familyID = f.AncestorID
	}
	return fmt.Errorf("%w: member %s is outside your family", errForbidden, target)
}
