package invariant_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/Kapral67/FamilyDirectory-sub001/invariant"
	"github.com/Kapral67/FamilyDirectory-sub001/store"
	"github.com/Kapral67/FamilyDirectory-sub001/store/memstore"
)

var rootID = uuid.MustParse("00000000-0000-0000-0000-000000000001")

func member(id, familyID uuid.UUID, email string) store.Member {
	return store.Member{
		ID:        id,
		FamilyID:  familyID,
		FirstName: "Test",
		LastName:  "Member",
		Birthday:  "1970-01-01",
		Email:     email,
	}
}

// seed builds root with a spouse and one descendant.
func seed(t *testing.T) (*memstore.Store, uuid.UUID, uuid.UUID) {
	t.Helper()
	ctx := context.Background()
	s := memstore.New(store.DefaultConfig())

	tx := store.NewTx()
	tx.CreateFamily(store.Family{ID: rootID, AncestorID: rootID})
	tx.CreateMember(member(rootID, rootID, "root@example.com"))
	tx.ClaimEmail("root@example.com", rootID)
	if err := s.Transact(ctx, tx); err != nil {
		t.Fatal(err)
	}

	spouse, child := uuid.New(), uuid.New()
	tx = store.NewTx()
	tx.SetSpouse(rootID, spouse)
	tx.CreateMember(member(spouse, rootID, ""))
	if err := s.Transact(ctx, tx); err != nil {
		t.Fatal(err)
	}

	tx = store.NewTx()
	tx.AppendDescendant(rootID, child)
	tx.CreateFamily(store.Family{ID: child, AncestorID: rootID})
	tx.CreateMember(member(child, child, "child@example.com"))
	tx.ClaimEmail("child@example.com", child)
	if err := s.Transact(ctx, tx); err != nil {
		t.Fatal(err)
	}
	return s, spouse, child
}

func TestRootExists(t *testing.T) {
	ctx := context.Background()

	empty := invariant.New(memstore.New(store.DefaultConfig()), rootID)
	if ok, err := empty.RootExists(ctx); err != nil || ok {
		t.Errorf("expected no root, got %v, %v", ok, err)
	}

	s, _, _ := seed(t)
	c := invariant.New(s, rootID)
	if ok, err := c.RootExists(ctx); err != nil || !ok {
		t.Errorf("expected root, got %v, %v", ok, err)
	}
}

func TestHasSpouseAndDescendants(t *testing.T) {
	ctx := context.Background()
	s, _, child := seed(t)
	c := invariant.New(s, rootID)

	tests := []struct {
		name        string
		familyID    uuid.UUID
		spouse      bool
		descendants bool
	}{
		{"root", rootID, true, true},
		{"leaf", child, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.HasSpouse(ctx, tt.familyID)
			if err != nil || got != tt.spouse {
				t.Errorf("HasSpouse = %v, %v; want %v", got, err, tt.spouse)
			}
			got, err = c.HasDescendants(ctx, tt.familyID)
			if err != nil || got != tt.descendants {
				t.Errorf("HasDescendants = %v, %v; want %v", got, err, tt.descendants)
			}
		})
	}

	if _, err := c.HasSpouse(ctx, uuid.New()); !errors.Is(err, invariant.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := c.HasDescendants(ctx, uuid.New()); !errors.Is(err, invariant.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestEmailIsUnique(t *testing.T) {
	ctx := context.Background()
	s, _, child := seed(t)
	c := invariant.New(s, rootID)

	tests := []struct {
		name      string
		email     string
		excluding uuid.UUID
		want      bool
	}{
		{"unused", "new@example.com", uuid.Nil, true},
		{"held by other", "root@example.com", child, false},
		{"held by self", "child@example.com", child, true},
		{"case insensitive", "ROOT@example.com", uuid.Nil, false},
		{"empty", "", uuid.Nil, true},
		{"blank", "   ", uuid.Nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.EmailIsUnique(ctx, tt.email, tt.excluding)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("EmailIsUnique(%q) = %v, want %v", tt.email, got, tt.want)
			}
		})
	}
}

func TestErrorTaxonomy(t *testing.T) {
	if !errors.Is(invariant.ErrAlreadyExists, invariant.ErrConflict) {
		t.Error("expected ErrAlreadyExists to be a conflict")
	}
	if !errors.Is(invariant.ErrEmailTaken, invariant.ErrConflict) {
		t.Error("expected ErrEmailTaken to be a conflict")
	}
	for _, err := range []error{invariant.ErrNotFound, invariant.ErrConflict, invariant.ErrValidation, invariant.ErrInternal} {
		if !strings.HasPrefix(err.Error(), "familydir:") {
			t.Errorf("error %q should start with 'familydir:'", err)
		}
	}
}

func TestValidateMember(t *testing.T) {
	valid := store.Member{
		FirstName: "Ada",
		LastName:  "Doe",
		Birthday:  "1900-02-03",
		Deathday:  "1980-01-01",
		Email:     "ada@example.com",
		Phones:    map[string]string{"MOBILE": "+1 (555) 555-0100"},
		Address:   []string{"1 Main St", "Springfield, IL 62701"},
	}
	if err := invariant.ValidateMember(valid); err != nil {
		t.Fatalf("expected valid member, got %v", err)
	}

	tests := []struct {
		name   string
		mutate func(m *store.Member)
		want   string
	}{
		{"missing first name", func(m *store.Member) { m.FirstName = " " }, "first name"},
		{"missing last name", func(m *store.Member) { m.LastName = "" }, "last name"},
		{"bad birthday", func(m *store.Member) { m.Birthday = "02/03/1900" }, "birthday"},
		{"missing birthday", func(m *store.Member) { m.Birthday = "" }, "birthday"},
		{"bad deathday", func(m *store.Member) { m.Deathday = "soon" }, "deathday"},
		{"death before birth", func(m *store.Member) { m.Deathday = "1899-12-31" }, "before birthday"},
		{"display name email", func(m *store.Member) { m.Email = "Ada <ada@example.com>" }, "email"},
		{"not an email", func(m *store.Member) { m.Email = "ada" }, "email"},
		{"bad phone", func(m *store.Member) { m.Phones = map[string]string{"HOME": "call me"} }, "phone"},
		{"blank phone type", func(m *store.Member) { m.Phones = map[string]string{"": "5555550100"} }, "phone type"},
		{"blank address line", func(m *store.Member) { m.Address = []string{"1 Main St", ""} }, "address line 2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := valid
			m.Phones = map[string]string{"MOBILE": "+15555550100"}
			tt.mutate(&m)
			err := invariant.ValidateMember(m)
			if !errors.Is(err, invariant.ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected %q in %q", tt.want, err.Error())
			}
		})
	}
}

func TestValidateMember_ReportsAllProblems(t *testing.T) {
	err := invariant.ValidateMember(store.Member{})
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"first name", "last name", "birthday"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected %q in %q", want, err.Error())
		}
	}
}

func TestAudit_Consistent(t *testing.T) {
	ctx := context.Background()
	s, _, _ := seed(t)
	members, _ := s.ListMembers(ctx)
	families, _ := s.ListFamilies(ctx)

	if v := invariant.Audit(rootID, members, families); len(v) != 0 {
		t.Errorf("expected no violations, got %v", v)
	}
	if v := invariant.Audit(rootID, nil, nil); len(v) != 0 {
		t.Errorf("expected empty directory to be consistent, got %v", v)
	}
}

func TestAudit_Violations(t *testing.T) {
	orphan, ghost, stranger := uuid.New(), uuid.New(), uuid.New()

	members := []store.Member{
		member(rootID, rootID, "dup@example.com"),
		member(orphan, orphan, "DUP@example.com"),
		member(stranger, rootID, ""),
	}
	families := []store.Family{
		{ID: rootID, AncestorID: rootID, SpouseID: rootID, DescendantIDs: []uuid.UUID{ghost, orphan, orphan}},
		{ID: orphan, AncestorID: uuid.New()},
	}

	violations := invariant.Audit(rootID, members, families)
	joined := make([]string, len(violations))
	for i, v := range violations {
		joined[i] = v.String()
	}
	all := strings.Join(joined, "\n")

	for _, want := range []string{
		"spouse equals the unit id",
		"descendant " + ghost.String() + " has no family unit",
		"descendant " + orphan.String() + " listed twice",
		"descendant " + orphan.String() + " names ancestor",
		"email dup@example.com also held by",
		"naturalized member is not the spouse",
		"ancestor",
	} {
		if !strings.Contains(all, want) {
			t.Errorf("expected violation %q in:\n%s", want, all)
		}
	}
}
