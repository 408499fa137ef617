package store

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/Kapral67/FamilyDirectory-sub001/internal/hashkey"
)

// DateLayout is the layout of Member birthday and deathday values.
const DateLayout = "2006-01-02"

// LatestID is the id of the LATEST sentinel change token.
var LatestID = uuid.Nil

// Member is a person record.
//
// A native member founds a family unit (ID == FamilyID). A naturalized member
// married into an existing unit as its spouse (ID != FamilyID).
type Member struct {
	ID         uuid.UUID
	FamilyID   uuid.UUID
	FirstName  string
	MiddleName string
	LastName   string
	Suffix     string
	Birthday   string
	Deathday   string
	Email      string
	Phones     map[string]string
	Address    []string

	// Version is the optimistic lock version, managed by the store.
	Version int64
}

// IsNative reports whether the member founds its own family unit.
func (m Member) IsNative() bool {
	return m.ID == m.FamilyID
}

// FullName joins the non-empty name parts.
func (m Member) FullName() string {
	parts := []string{m.FirstName, m.MiddleName, m.LastName, m.Suffix}
	var out []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, " ")
}

// Key returns the stable content hash used for external lookup.
func (m Member) Key() string {
	return hashkey.Member(m.FullName(), m.Birthday, m.Deathday)
}

// Family is the relationship node for one native member's nuclear family.
// ID equals the founding member's id.
type Family struct {
	ID         uuid.UUID
	AncestorID uuid.UUID

	// SpouseID is uuid.Nil when the unit has no spouse.
	SpouseID uuid.UUID

	// DescendantIDs preserves insertion order.
	DescendantIDs []uuid.UUID
}

// HasSpouse reports whether a naturalized member is married into the unit.
func (f Family) HasSpouse() bool {
	return f.SpouseID != uuid.Nil
}

// HasDescendants reports whether the unit lists any descendants.
func (f Family) HasDescendants() bool {
	return len(f.DescendantIDs) > 0
}

// IsRoot reports whether the unit is its own ancestor.
func (f Family) IsRoot() bool {
	return f.ID == f.AncestorID
}

// IndexOf returns the position of id in DescendantIDs, or -1.
func (f Family) IndexOf(id uuid.UUID) int {
	for i, d := range f.DescendantIDs {
		if d == id {
			return i
		}
	}
	return -1
}

// ChangeToken is one node of the change token chain.
type ChangeToken struct {
	ID uuid.UUID

	// Next is uuid.Nil until the token is superseded.
	Next uuid.UUID

	// Members lists the member ids changed in this revision.
	Members []uuid.UUID

	// TTL is the unix expiry, zero until the token is superseded.
	TTL int64
}

// Superseded reports whether a newer token has been linked after this one.
func (t ChangeToken) Superseded() bool {
	return t.Next != uuid.Nil
}

// Reader provides the point reads used by invariant checks.
type Reader interface {
	GetMember(ctx context.Context, id uuid.UUID) (*Member, error)
	GetFamily(ctx context.Context, id uuid.UUID) (*Family, error)

	// FindMembersByEmail returns members whose normalized email equals email.
	FindMembersByEmail(ctx context.Context, email string) ([]Member, error)
}

// ItemStore is the backing key-value store with multi-item transactions.
type ItemStore interface {
	Reader

	ListMembers(ctx context.Context) ([]Member, error)
	ListFamilies(ctx context.Context) ([]Family, error)

	// GetToken returns ErrNotFound for missing or expired tokens.
	GetToken(ctx context.Context, id uuid.UUID) (*ChangeToken, error)

	// ListTokens returns all unexpired tokens, including the LATEST sentinel.
	ListTokens(ctx context.Context) ([]ChangeToken, error)

	// Transact applies every item of tx atomically or none of them.
	Transact(ctx context.Context, tx *Tx) error
}
