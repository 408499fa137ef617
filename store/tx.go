package store

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/Kapral67/FamilyDirectory-sub001/internal/hashkey"
)

// OpKind identifies a transaction item and the condition it carries.
type OpKind int

const (
	// OpCreateMember puts a member that must not exist.
	OpCreateMember OpKind = iota + 1
	// OpReplaceMember fully replaces a member whose version equals Op.Version.
	OpReplaceMember
	// OpDeleteMember deletes a member that must exist.
	OpDeleteMember
	// OpCreateFamily puts a family unit that must not exist.
	OpCreateFamily
	// OpDeleteFamily deletes a family unit that has no spouse and no descendants.
	OpDeleteFamily
	// OpSetSpouse sets the spouse of an existing unit that has none.
	OpSetSpouse
	// OpClearSpouse removes the spouse of a unit whose spouse is Op.Ref.
	OpClearSpouse
	// OpAppendDescendant appends Op.Ref to an existing unit's descendants unless already listed.
	OpAppendDescendant
	// OpRemoveDescendant removes Op.Ref at the observed Op.Index.
	OpRemoveDescendant
	// OpClaimEmail records Op.Ref as the owner of Op.Email unless another member owns it.
	OpClaimEmail
	// OpReleaseEmail drops Op.Email's claim if Op.Ref owns it.
	OpReleaseEmail
	// OpCreateToken puts a change token that must not exist.
	OpCreateToken
	// OpLinkToken sets next and ttl on a token that has no next yet.
	OpLinkToken
	// OpPutLatest creates the LATEST sentinel pointing at Op.Ref.
	OpPutLatest
	// OpAdvanceLatest moves LATEST from Op.Prev to Op.Ref.
	OpAdvanceLatest
)

var opNames = map[OpKind]string{
	OpCreateMember:     "CreateMember",
	OpReplaceMember:    "ReplaceMember",
	OpDeleteMember:     "DeleteMember",
	OpCreateFamily:     "CreateFamily",
	OpDeleteFamily:     "DeleteFamily",
	OpSetSpouse:        "SetSpouse",
	OpClearSpouse:      "ClearSpouse",
	OpAppendDescendant: "AppendDescendant",
	OpRemoveDescendant: "RemoveDescendant",
	OpClaimEmail:       "ClaimEmail",
	OpReleaseEmail:     "ReleaseEmail",
	OpCreateToken:      "CreateToken",
	OpLinkToken:        "LinkToken",
	OpPutLatest:        "PutLatest",
	OpAdvanceLatest:    "AdvanceLatest",
}

func (k OpKind) String() string {
	if name, ok := opNames[k]; ok {
		return name
	}
	return fmt.Sprintf("OpKind(%d)", int(k))
}

// Collection names the logical collection an item belongs to.
type Collection string

const (
	Members  Collection = "members"
	Families Collection = "families"
	Tokens   Collection = "tokens"
	Uniques  Collection = "uniques"
)

// Op is one item of a transaction.
type Op struct {
	Kind OpKind

	// Target is the id of the member, family or token the op writes.
	// Unused for email claims.
	Target uuid.UUID

	// Ref is the id referenced by the op: spouse, descendant, email owner or next token.
	Ref uuid.UUID

	// Prev is the observed value compared by OpAdvanceLatest.
	Prev uuid.UUID

	// Index and Observed are the descendant position and list length seen by the caller.
	Index    int
	Observed int

	// Version is the member version expected by OpReplaceMember.
	Version int64

	Email string
	TTL   int64

	Member *Member
	Family *Family
	Token  *ChangeToken
}

// Collection returns the collection the op writes to.
func (o Op) Collection() Collection {
	switch o.Kind {
	case OpCreateMember, OpReplaceMember, OpDeleteMember:
		return Members
	case OpCreateFamily, OpDeleteFamily, OpSetSpouse, OpClearSpouse, OpAppendDescendant, OpRemoveDescendant:
		return Families
	case OpClaimEmail, OpReleaseEmail:
		return Uniques
	default:
		return Tokens
	}
}

// ItemKey identifies the record the op writes, unique across collections.
func (o Op) ItemKey() string {
	if o.Collection() == Uniques {
		return string(Uniques) + "#" + EmailKey(o.Email)
	}
	return string(o.Collection()) + "#" + o.Target.String()
}

// EmailKey returns the unique constraint key for an email address.
func EmailKey(email string) string {
	return hashkey.Unique("member", "email", email)
}

// Tx accumulates transaction items. Each builder method returns the item's
// index so callers can map a cancellation back to the item that caused it.
type Tx struct {
	ops []Op
}

// NewTx creates an empty transaction.
func NewTx() *Tx {
	return &Tx{}
}

func (t *Tx) add(op Op) int {
	t.ops = append(t.ops, op)
	return len(t.ops) - 1
}

// Ops returns the transaction items in order.
func (t *Tx) Ops() []Op {
	return t.ops
}

// Len returns the number of items.
func (t *Tx) Len() int {
	return len(t.ops)
}

// CreateMember adds a put of m that fails if the member exists. The stored version is 1.
func (t *Tx) CreateMember(m Member) int {
	m.Version = 1
	return t.add(Op{Kind: OpCreateMember, Target: m.ID, Member: &m})
}

// ReplaceMember adds a full replace of m conditioned on the observed version.
func (t *Tx) ReplaceMember(m Member, expectedVersion int64) int {
	m.Version = expectedVersion + 1
	return t.add(Op{Kind: OpReplaceMember, Target: m.ID, Version: expectedVersion, Member: &m})
}

// DeleteMember adds a delete of an existing member.
func (t *Tx) DeleteMember(id uuid.UUID) int {
	return t.add(Op{Kind: OpDeleteMember, Target: id})
}

// CreateFamily adds a put of f that fails if the unit exists.
func (t *Tx) CreateFamily(f Family) int {
	f.DescendantIDs = append([]uuid.UUID(nil), f.DescendantIDs...)
	return t.add(Op{Kind: OpCreateFamily, Target: f.ID, Family: &f})
}

// DeleteFamily adds a delete of a unit that must have no spouse and no descendants.
func (t *Tx) DeleteFamily(id uuid.UUID) int {
	return t.add(Op{Kind: OpDeleteFamily, Target: id})
}

// SetSpouse marries spouseID into familyID. Fails if the unit is missing or already has a spouse.
func (t *Tx) SetSpouse(familyID, spouseID uuid.UUID) int {
	return t.add(Op{Kind: OpSetSpouse, Target: familyID, Ref: spouseID})
}

// ClearSpouse removes spouseID from familyID. Fails if spouseID is not the current spouse.
func (t *Tx) ClearSpouse(familyID, spouseID uuid.UUID) int {
	return t.add(Op{Kind: OpClearSpouse, Target: familyID, Ref: spouseID})
}

// AppendDescendant appends descendantID to familyID's descendants without reading them first.
func (t *Tx) AppendDescendant(familyID, descendantID uuid.UUID) int {
	return t.add(Op{Kind: OpAppendDescendant, Target: familyID, Ref: descendantID})
}

// RemoveDescendant removes descendantID found at index of a list of observed length.
// The write fails if the list changed so that index no longer holds descendantID.
func (t *Tx) RemoveDescendant(familyID, descendantID uuid.UUID, index, observed int) int {
	return t.add(Op{Kind: OpRemoveDescendant, Target: familyID, Ref: descendantID, Index: index, Observed: observed})
}

// ClaimEmail reserves email for memberID.
func (t *Tx) ClaimEmail(email string, memberID uuid.UUID) int {
	return t.add(Op{Kind: OpClaimEmail, Ref: memberID, Email: hashkey.Normalize(email)})
}

// ReleaseEmail drops memberID's reservation of email.
func (t *Tx) ReleaseEmail(email string, memberID uuid.UUID) int {
	return t.add(Op{Kind: OpReleaseEmail, Ref: memberID, Email: hashkey.Normalize(email)})
}

// CreateToken adds a put of a new change token.
func (t *Tx) CreateToken(tok ChangeToken) int {
	tok.Members = append([]uuid.UUID(nil), tok.Members...)
	return t.add(Op{Kind: OpCreateToken, Target: tok.ID, Token: &tok})
}

// LinkToken marks id as superseded by next, expiring at ttl.
func (t *Tx) LinkToken(id, next uuid.UUID, ttl int64) int {
	return t.add(Op{Kind: OpLinkToken, Target: id, Ref: next, TTL: ttl})
}

// PutLatest creates the LATEST sentinel. Fails if it already exists.
func (t *Tx) PutLatest(next uuid.UUID) int {
	return t.add(Op{Kind: OpPutLatest, Target: LatestID, Ref: next})
}

// AdvanceLatest moves LATEST.next from prev to next. Fails if LATEST.next != prev.
func (t *Tx) AdvanceLatest(prev, next uuid.UUID) int {
	return t.add(Op{Kind: OpAdvanceLatest, Target: LatestID, Prev: prev, Ref: next})
}

// Validate checks the transaction against the item bound and duplicate targets.
func (t *Tx) Validate(maxItems int) error {
	if len(t.ops) == 0 {
		return ErrEmptyTransaction
	}
	if maxItems > 0 && len(t.ops) > maxItems {
		return fmt.Errorf("%w: %d > %d", ErrTooManyItems, len(t.ops), maxItems)
	}
	seen := make(map[string]int, len(t.ops))
	for i, op := range t.ops {
		key := op.ItemKey()
		if j, ok := seen[key]; ok {
			return fmt.Errorf("%w: items %d and %d (%s)", ErrDuplicateItem, j, i, key)
		}
		seen[key] = i
	}
	return nil
}
