package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/Kapral67/FamilyDirectory-sub001/store"
)

// Request is one relationship mutation. Adapters build a request with the
// matching constructor and hand it to Engine.Execute.
type Request interface {
	// Op names the operation for logs and audit trails.
	Op() string

	// Validate rejects malformed requests without touching the store.
	Validate() error
}

// CreateRootRequest creates the root member.
type CreateRootRequest struct {
	Attributes Attributes
}

// CreateSpouseRequest marries a new member into NativeMemberID's family unit.
type CreateSpouseRequest struct {
	NativeMemberID uuid.UUID
	Attributes     Attributes
}

// CreateDescendantRequest adds a descendant under ParentMemberID's family unit.
type CreateDescendantRequest struct {
	ParentMemberID uuid.UUID
	Attributes     Attributes
}

// UpdateMemberRequest replaces MemberID's attributes.
type UpdateMemberRequest struct {
	MemberID   uuid.UUID
	Attributes Attributes
}

// DeleteMemberRequest removes MemberID.
type DeleteMemberRequest struct {
	MemberID uuid.UUID
}

func (CreateRootRequest) Op() string       { return "createRoot" }
func (CreateSpouseRequest) Op() string     { return "createSpouse" }
func (CreateDescendantRequest) Op() string { return "createDescendant" }
func (UpdateMemberRequest) Op() string     { return "updateMember" }
func (DeleteMemberRequest) Op() string     { return "deleteMember" }

func (r CreateRootRequest) Validate() error {
	return r.Attributes.Validate()
}

func (r CreateSpouseRequest) Validate() error {
	if err := requireID("native member", r.NativeMemberID); err != nil {
		return err
	}
	return r.Attributes.Validate()
}

func (r CreateDescendantRequest) Validate() error {
	if err := requireID("parent member", r.ParentMemberID); err != nil {
		return err
	}
	return r.Attributes.Validate()
}

func (r UpdateMemberRequest) Validate() error {
	if err := requireID("member", r.MemberID); err != nil {
		return err
	}
	return r.Attributes.Validate()
}

func (r DeleteMemberRequest) Validate() error {
	return requireID("member", r.MemberID)
}

func requireID(what string, id uuid.UUID) error {
	if id == uuid.Nil {
		return fmt.Errorf("%w: %s id is required", ErrValidation, what)
	}
	return nil
}

// NewCreateRoot builds a validated CreateRootRequest.
func NewCreateRoot(attrs Attributes) (CreateRootRequest, error) {
	r := CreateRootRequest{Attributes: attrs}
	return r, r.Validate()
}

// NewCreateSpouse builds a validated CreateSpouseRequest.
func NewCreateSpouse(nativeMemberID uuid.UUID, attrs Attributes) (CreateSpouseRequest, error) {
	r := CreateSpouseRequest{NativeMemberID: nativeMemberID, Attributes: attrs}
	return r, r.Validate()
}

// NewCreateDescendant builds a validated CreateDescendantRequest.
func NewCreateDescendant(parentMemberID uuid.UUID, attrs Attributes) (CreateDescendantRequest, error) {
	r := CreateDescendantRequest{ParentMemberID: parentMemberID, Attributes: attrs}
	return r, r.Validate()
}

// NewUpdateMember builds a validated UpdateMemberRequest.
func NewUpdateMember(memberID uuid.UUID, attrs Attributes) (UpdateMemberRequest, error) {
	r := UpdateMemberRequest{MemberID: memberID, Attributes: attrs}
	return r, r.Validate()
}

// NewDeleteMember builds a validated DeleteMemberRequest.
func NewDeleteMember(memberID uuid.UUID) (DeleteMemberRequest, error) {
	r := DeleteMemberRequest{MemberID: memberID}
	return r, r.Validate()
}

// Execute dispatches req to the matching operation. The returned member is
// the created or updated record, nil for deletes.
func (e *Engine) Execute(ctx context.Context, req Request) (*store.Member, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: request is required", ErrValidation)
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	switch r := req.(type) {
	case CreateRootRequest:
		return e.CreateRoot(ctx, r.Attributes)
	case CreateSpouseRequest:
		return e.CreateSpouse(ctx, r.NativeMemberID, r.Attributes)
	case CreateDescendantRequest:
		return e.CreateDescendant(ctx, r.ParentMemberID, r.Attributes)
	case UpdateMemberRequest:
		return e.UpdateMember(ctx, r.MemberID, r.Attributes)
	case DeleteMemberRequest:
		return nil, e.DeleteMember(ctx, r.MemberID)
	}
	return nil, fmt.Errorf("%w: unsupported request %T", ErrValidation, req)
}
