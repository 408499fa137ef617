package engine_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/Kapral67/FamilyDirectory-sub001/engine"
	"github.com/Kapral67/FamilyDirectory-sub001/store"
)

func TestSnapshot(t *testing.T) {
	e, _ := newEngine(t)
	ctx := context.Background()
	root := mustRoot(t, e)

	spouse, err := e.CreateSpouse(ctx, root.ID, attrs("Zed", ""))
	if err != nil {
		t.Fatal(err)
	}
	b, _ := e.CreateDescendant(ctx, root.ID, attrs("Bea", ""))
	a, _ := e.CreateDescendant(ctx, root.ID, attrs("Abe", ""))

	dir, err := e.Snapshot(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if dir.Len() != 4 {
		t.Errorf("expected 4 members, got %d", dir.Len())
	}
	if dir.RootID != root.ID {
		t.Errorf("expected root id %s, got %s", root.ID, dir.RootID)
	}

	if s, ok := dir.Spouse(root.ID); !ok || s.ID != spouse.ID {
		t.Errorf("expected spouse %s, got %+v", spouse.ID, s)
	}
	if _, ok := dir.Spouse(b.ID); ok {
		t.Error("expected no spouse for leaf unit")
	}

	desc := dir.Descendants(root.ID)
	if len(desc) != 2 || desc[0].ID != b.ID || desc[1].ID != a.ID {
		t.Errorf("expected insertion order [Bea Abe], got %v", desc)
	}
	if dir.Descendants(uuid.New()) != nil {
		t.Error("expected nil for unknown family")
	}

	members := dir.Members()
	if members[0].FirstName != "Abe" || members[len(members)-1].FirstName != "Zed" {
		t.Errorf("expected members ordered by name, got %s..%s", members[0].FirstName, members[len(members)-1].FirstName)
	}

	if _, ok := dir.Member(a.ID); !ok {
		t.Error("expected member lookup")
	}
	if f, ok := dir.Family(a.ID); !ok || f.AncestorID != root.ID {
		t.Errorf("expected family lookup, got %+v", f)
	}
	if v := dir.Audit(); len(v) != 0 {
		t.Errorf("expected no violations, got %v", v)
	}
}

func TestSnapshot_IsNotLive(t *testing.T) {
	e, _ := newEngine(t)
	ctx := context.Background()
	root := mustRoot(t, e)

	before, err := e.Snapshot(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.CreateDescendant(ctx, root.ID, attrs("Child", "")); err != nil {
		t.Fatal(err)
	}
	after, err := e.Snapshot(ctx)
	if err != nil {
		t.Fatal(err)
	}

	if before.Len() != 1 || after.Len() != 2 {
		t.Errorf("expected 1 then 2 members, got %d then %d", before.Len(), after.Len())
	}
}

func TestSnapshot_CanceledContext(t *testing.T) {
	e, _ := newEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Snapshot(ctx)
	if !errors.Is(err, engine.ErrInternal) || !errors.Is(err, context.Canceled) {
		t.Errorf("expected wrapped context.Canceled, got %v", err)
	}
}

func TestNewDirectory_Audit(t *testing.T) {
	id := uuid.New()
	dir := engine.NewDirectory(engine.DefaultRootID,
		[]store.Member{{ID: id, FamilyID: id}},
		[]store.Family{{ID: engine.DefaultRootID, AncestorID: engine.DefaultRootID, DescendantIDs: []uuid.UUID{id}}},
	)
	if len(dir.Audit()) == 0 {
		t.Error("expected violations for a dangling descendant")
	}
}
