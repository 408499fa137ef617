// Package memstore provides an in-memory store.ItemStore with the same
// conditional transaction semantics as the DynamoDB store. It backs the
// package tests that need a store without DynamoDB.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Kapral67/FamilyDirectory-sub001/internal/hashkey"
	"github.com/Kapral67/FamilyDirectory-sub001/store"
)

// Hook runs inside Transact before conditions are evaluated. A non-nil
// error aborts the transaction and is returned as is.
type Hook func(tx *store.Tx) error

// Store is a mutex-guarded in-memory ItemStore.
type Store struct {
	mu       sync.Mutex
	members  map[uuid.UUID]store.Member
	families map[uuid.UUID]store.Family
	tokens   map[uuid.UUID]store.ChangeToken
	uniques  map[string]uuid.UUID

	maxItems int
	now      func() time.Time
	hook     Hook
	commits  int
}

var _ store.ItemStore = (*Store)(nil)

// New creates an empty Store bounded by cfg.MaxTransactItems.
func New(cfg store.Config) *Store {
	cfg = cfg.Validated()
	return &Store{
		members:  make(map[uuid.UUID]store.Member),
		families: make(map[uuid.UUID]store.Family),
		tokens:   make(map[uuid.UUID]store.ChangeToken),
		uniques:  make(map[string]uuid.UUID),
		maxItems: cfg.MaxTransactItems,
		now:      time.Now,
	}
}

// SetClock replaces the clock used for TTL evaluation.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// SetHook installs a hook run at the start of every transaction.
func (s *Store) SetHook(h Hook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hook = h
}

// Commits returns the number of committed transactions.
func (s *Store) Commits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commits
}

// EmailOwner returns the member holding the email constraint.
func (s *Store) EmailOwner(email string) (uuid.UUID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.uniques[store.EmailKey(email)]
	return id, ok
}

// Sweep physically removes tokens whose TTL elapsed, like the DynamoDB TTL sweeper.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	removed := 0
	for id, t := range s.tokens {
		if store.Expired(t.TTL, now) {
			delete(s.tokens, id)
			removed++
		}
	}
	return removed
}

func (s *Store) GetMember(ctx context.Context, id uuid.UUID) (*store.Member, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.members[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	m = cloneMember(m)
	return &m, nil
}

func (s *Store) GetFamily(ctx context.Context, id uuid.UUID) (*store.Family, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.families[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	f = cloneFamily(f)
	return &f, nil
}

func (s *Store) FindMembersByEmail(ctx context.Context, email string) ([]store.Member, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	want := hashkey.Normalize(email)
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []store.Member
	for _, m := range s.members {
		if m.Email != "" && hashkey.Normalize(m.Email) == want {
			out = append(out, cloneMember(m))
		}
	}
	sortMembers(out)
	return out, nil
}

func (s *Store) ListMembers(ctx context.Context) ([]store.Member, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]store.Member, 0, len(s.members))
	for _, m := range s.members {
		out = append(out, cloneMember(m))
	}
	sortMembers(out)
	return out, nil
}

func (s *Store) ListFamilies(ctx context.Context) ([]store.Family, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]store.Family, 0, len(s.families))
	for _, f := range s.families {
		out = append(out, cloneFamily(f))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out, nil
}

func (s *Store) GetToken(ctx context.Context, id uuid.UUID) (*store.ChangeToken, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[id]
	if !ok || store.Expired(t.TTL, s.now()) {
		return nil, store.ErrNotFound
	}
	t = cloneToken(t)
	return &t, nil
}

func (s *Store) ListTokens(ctx context.Context) ([]store.ChangeToken, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	out := make([]store.ChangeToken, 0, len(s.tokens))
	for _, t := range s.tokens {
		if !store.Expired(t.TTL, now) {
			out = append(out, cloneToken(t))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out, nil
}

// Transact evaluates every condition first and applies the items only if all hold.
func (s *Store) Transact(ctx context.Context, tx *store.Tx) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := tx.Validate(s.maxItems); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.hook != nil {
		if err := s.hook(tx); err != nil {
			return err
		}
	}

	for i, op := range tx.Ops() {
		if !s.holds(op) {
			return &store.TxError{Index: i, Op: op.Kind, Err: store.ErrConditionFailed}
		}
	}
	for _, op := range tx.Ops() {
		s.apply(op)
	}
	s.commits++
	return nil
}

// holds reports whether op's condition is satisfied by the current state.
func (s *Store) holds(op store.Op) bool {
	switch op.Kind {
	case store.OpCreateMember:
		_, exists := s.members[op.Target]
		return !exists && op.Member != nil
	case store.OpReplaceMember:
		m, exists := s.members[op.Target]
		return exists && op.Member != nil && m.Version == op.Version
	case store.OpDeleteMember:
		_, exists := s.members[op.Target]
		return exists
	case store.OpCreateFamily:
		_, exists := s.families[op.Target]
		return !exists && op.Family != nil
	case store.OpDeleteFamily:
		f, exists := s.families[op.Target]
		return exists && !f.HasSpouse() && !f.HasDescendants()
	case store.OpSetSpouse:
		f, exists := s.families[op.Target]
		return exists && !f.HasSpouse()
	case store.OpClearSpouse:
		f, exists := s.families[op.Target]
		return exists && f.HasSpouse() && f.SpouseID == op.Ref
	case store.OpAppendDescendant:
		f, exists := s.families[op.Target]
		return exists && f.IndexOf(op.Ref) < 0
	case store.OpRemoveDescendant:
		f, exists := s.families[op.Target]
		if !exists {
			return false
		}
		if op.Observed <= 1 {
			return len(f.DescendantIDs) == 1 && f.DescendantIDs[0] == op.Ref
		}
		return op.Index >= 0 && op.Index < len(f.DescendantIDs) && f.DescendantIDs[op.Index] == op.Ref
	case store.OpClaimEmail, store.OpReleaseEmail:
		owner, exists := s.uniques[store.EmailKey(op.Email)]
		return !exists || owner == op.Ref
	case store.OpCreateToken, store.OpPutLatest:
		_, exists := s.tokens[op.Target]
		return !exists && (op.Kind == store.OpPutLatest || op.Token != nil)
	case store.OpLinkToken:
		t, exists := s.tokens[op.Target]
		return exists && !t.Superseded()
	case store.OpAdvanceLatest:
		t, exists := s.tokens[store.LatestID]
		return exists && t.Next == op.Prev
	}
	return false
}

func (s *Store) apply(op store.Op) {
	switch op.Kind {
	case store.OpCreateMember, store.OpReplaceMember:
		s.members[op.Target] = cloneMember(*op.Member)
	case store.OpDeleteMember:
		delete(s.members, op.Target)
	case store.OpCreateFamily:
		s.families[op.Target] = cloneFamily(*op.Family)
	case store.OpDeleteFamily:
		delete(s.families, op.Target)
	case store.OpSetSpouse:
		f := s.families[op.Target]
		f.SpouseID = op.Ref
		s.families[op.Target] = f
	case store.OpClearSpouse:
		f := s.families[op.Target]
		f.SpouseID = uuid.Nil
		s.families[op.Target] = f
	case store.OpAppendDescendant:
		f := cloneFamily(s.families[op.Target])
		f.DescendantIDs = append(f.DescendantIDs, op.Ref)
		s.families[op.Target] = f
	case store.OpRemoveDescendant:
		f := cloneFamily(s.families[op.Target])
		if op.Observed <= 1 {
			f.DescendantIDs = nil
		} else {
			f.DescendantIDs = append(f.DescendantIDs[:op.Index], f.DescendantIDs[op.Index+1:]...)
		}
		s.families[op.Target] = f
	case store.OpClaimEmail:
		s.uniques[store.EmailKey(op.Email)] = op.Ref
	case store.OpReleaseEmail:
		delete(s.uniques, store.EmailKey(op.Email))
	case store.OpCreateToken:
		s.tokens[op.Target] = cloneToken(*op.Token)
	case store.OpPutLatest:
		s.tokens[store.LatestID] = store.ChangeToken{ID: store.LatestID, Next: op.Ref}
	case store.OpLinkToken:
		t := s.tokens[op.Target]
		t.Next = op.Ref
		t.TTL = op.TTL
		s.tokens[op.Target] = t
	case store.OpAdvanceLatest:
		t := s.tokens[store.LatestID]
		t.Next = op.Ref
		s.tokens[store.LatestID] = t
	}
}

func cloneMember(m store.Member) store.Member {
	if m.Phones != nil {
		phones := make(map[string]string, len(m.Phones))
		for k, v := range m.Phones {
			phones[k] = v
		}
		m.Phones = phones
	}
	m.Address = append([]string(nil), m.Address...)
	return m
}

func cloneFamily(f store.Family) store.Family {
	f.DescendantIDs = append([]uuid.UUID(nil), f.DescendantIDs...)
	return f
}

func cloneToken(t store.ChangeToken) store.ChangeToken {
	t.Members = append([]uuid.UUID(nil), t.Members...)
	return t
}

func sortMembers(ms []store.Member) {
	sort.Slice(ms, func(i, j int) bool { return ms[i].ID.String() < ms[j].ID.String() })
}
