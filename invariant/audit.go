package invariant

import (
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/Kapral67/FamilyDirectory-sub001/internal/hashkey"
	"github.com/Kapral67/FamilyDirectory-sub001/store"
)

// Violation describes one broken relationship invariant found by Audit.
type Violation struct {
	ID     uuid.UUID
	Reason string
}

func (v Violation) String() string {
	return v.ID.String() + ": " + v.Reason
}

// Audit checks a full listing of members and family units against the
// relationship invariants and returns every violation found, ordered by id.
func Audit(rootID uuid.UUID, members []store.Member, families []store.Family) []Violation {
	var out []Violation
	report := func(id uuid.UUID, format string, args ...any) {
		out = append(out, Violation{ID: id, Reason: fmt.Sprintf(format, args...)})
	}

	memberByID := make(map[uuid.UUID]store.Member, len(members))
	for _, m := range members {
		memberByID[m.ID] = m
	}
	familyByID := make(map[uuid.UUID]store.Family, len(families))
	for _, f := range families {
		familyByID[f.ID] = f
	}

	roots := 0
	for _, f := range families {
		if f.IsRoot() {
			roots++
			if f.ID != rootID {
				report(f.ID, "unit is its own ancestor but is not the root")
			}
		}
		if f.HasSpouse() && f.SpouseID == f.ID {
			report(f.ID, "spouse equals the unit id")
		}
		if f.HasSpouse() {
			if s, ok := memberByID[f.SpouseID]; !ok {
				report(f.ID, "spouse %s does not exist", f.SpouseID)
			} else if s.FamilyID != f.ID {
				report(f.ID, "spouse %s belongs to family %s", f.SpouseID, s.FamilyID)
			}
		}
		if _, ok := memberByID[f.ID]; !ok {
			report(f.ID, "founding member does not exist")
		}
		if !f.IsRoot() {
			if _, ok := familyByID[f.AncestorID]; !ok {
				report(f.ID, "ancestor %s does not exist", f.AncestorID)
			}
		}

		seen := make(map[uuid.UUID]bool, len(f.DescendantIDs))
		for _, d := range f.DescendantIDs {
			if seen[d] {
				report(f.ID, "descendant %s listed twice", d)
				continue
			}
			seen[d] = true
			child, ok := familyByID[d]
			switch {
			case !ok:
				report(f.ID, "descendant %s has no family unit", d)
			case child.AncestorID != f.ID:
				report(f.ID, "descendant %s names ancestor %s", d, child.AncestorID)
			}
		}
	}
	if len(families) > 0 && roots != 1 {
		report(rootID, "expected exactly one root unit, found %d", roots)
	}

	emails := make(map[string]uuid.UUID)
	for _, m := range members {
		if m.Email != "" {
			key := hashkey.Normalize(m.Email)
			if other, ok := emails[key]; ok {
				report(m.ID, "email %s also held by %s", key, other)
			} else {
				emails[key] = m.ID
			}
		}
		f, ok := familyByID[m.FamilyID]
		switch {
		case !ok:
			report(m.ID, "family %s does not exist", m.FamilyID)
		case !m.IsNative() && f.SpouseID != m.ID:
			report(m.ID, "naturalized member is not the spouse of family %s", m.FamilyID)
		}
	}

	// Every non-root unit must be listed by its ancestor.
	for _, f := range families {
		if f.IsRoot() {
			continue
		}
		if a, ok := familyByID[f.AncestorID]; ok && a.IndexOf(f.ID) < 0 {
			report(f.ID, "not listed by ancestor %s", f.AncestorID)
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out
}
