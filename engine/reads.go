package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/Kapral67/FamilyDirectory-sub001/invariant"
	"github.com/Kapral67/FamilyDirectory-sub001/store"
)

// reads is the store as seen by one attempt. Each member and family is read
// at most once, so the precondition checks and the transaction built after
// them agree on what they observed. Every retry starts a new view.
type reads struct {
	store.Reader
	check    *invariant.Checker
	members  map[uuid.UUID]store.Member
	families map[uuid.UUID]store.Family
}

func newReads(r store.Reader, rootID uuid.UUID) *reads {
	v := &reads{
		Reader:   r,
		members:  make(map[uuid.UUID]store.Member),
		families: make(map[uuid.UUID]store.Family),
	}
	v.check = invariant.New(v, rootID)
	return v
}

func (v *reads) GetMember(ctx context.Context, id uuid.UUID) (*store.Member, error) {
	if m, ok := v.members[id]; ok {
		return &m, nil
	}
	m, err := v.Reader.GetMember(ctx, id)
	if err != nil {
		return nil, err
	}
	v.members[id] = *m
	return m, nil
}

func (v *reads) GetFamily(ctx context.Context, id uuid.UUID) (*store.Family, error) {
	if f, ok := v.families[id]; ok {
		return &f, nil
	}
	f, err := v.Reader.GetFamily(ctx, id)
	if err != nil {
		return nil, err
	}
	v.families[id] = *f
	return f, nil
}

func (v *reads) member(ctx context.Context, id uuid.UUID) (*store.Member, error) {
	m, err := v.GetMember(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: member %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, storeError("read member", err)
	}
	return m, nil
}

func (v *reads) family(ctx context.Context, id uuid.UUID) (*store.Family, error) {
	f, err := v.GetFamily(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: family %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, storeError("read family", err)
	}
	return f, nil
}

// emailAvailable is the friendly pre-check. The unique constraint claimed in
// the transaction is the real guard.
func (v *reads) emailAvailable(ctx context.Context, email string, owner uuid.UUID) error {
	if email == "" {
		return nil
	}
	ok, err := v.check.EmailIsUnique(ctx, email, owner)
	if err != nil {
		return err
	}
	if !ok {
		return emailTaken(email)
	}
	return nil
}
