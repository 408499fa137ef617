package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Kapral67/FamilyDirectory-sub001/invariant"
	"github.com/Kapral67/FamilyDirectory-sub001/store"
)

// Directory is a point-in-time read-only view of every member and family unit.
// Callers take a fresh one after each mutation instead of patching it.
type Directory struct {
	RootID  uuid.UUID
	TakenAt time.Time

	members  map[uuid.UUID]store.Member
	families map[uuid.UUID]store.Family
}

// Snapshot scans members and family units concurrently.
func (e *Engine) Snapshot(ctx context.Context) (*Directory, error) {
	var (
		members  []store.Member
		families []store.Family
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		members, err = e.store.ListMembers(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		families, err = e.store.ListFamilies(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("%w: snapshot: %w", ErrInternal, err)
	}

	return NewDirectory(e.config.RootID, members, families), nil
}

// NewDirectory indexes a listing of members and family units.
func NewDirectory(rootID uuid.UUID, members []store.Member, families []store.Family) *Directory {
	d := &Directory{
		RootID:   rootID,
		TakenAt:  time.Now(),
		members:  make(map[uuid.UUID]store.Member, len(members)),
		families: make(map[uuid.UUID]store.Family, len(families)),
	}
	for _, m := range members {
		d.members[m.ID] = m
	}
	for _, f := range families {
		d.families[f.ID] = f
	}
	return d
}

// Len returns the number of members.
func (d *Directory) Len() int {
	return len(d.members)
}

// Member returns the member with id, if present.
func (d *Directory) Member(id uuid.UUID) (store.Member, bool) {
	m, ok := d.members[id]
	return m, ok
}

// Family returns the family unit with id, if present.
func (d *Directory) Family(id uuid.UUID) (store.Family, bool) {
	f, ok := d.families[id]
	return f, ok
}

// Members returns every member ordered by last name, first name and birthday.
func (d *Directory) Members() []store.Member {
	out := make([]store.Member, 0, len(d.members))
	for _, m := range d.members {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.LastName != b.LastName {
			return a.LastName < b.LastName
		}
		if a.FirstName != b.FirstName {
			return a.FirstName < b.FirstName
		}
		if a.Birthday != b.Birthday {
			return a.Birthday < b.Birthday
		}
		return a.ID.String() < b.ID.String()
	})
	return out
}

// Spouse returns the naturalized member married into familyID.
func (d *Directory) Spouse(familyID uuid.UUID) (store.Member, bool) {
	f, ok := d.families[familyID]
	if !ok || !f.HasSpouse() {
		return store.Member{}, false
	}
	return d.Member(f.SpouseID)
}

// Descendants returns the descendants of familyID in insertion order.
func (d *Directory) Descendants(familyID uuid.UUID) []store.Member {
	f, ok := d.families[familyID]
	if !ok {
		return nil
	}
	var out []store.Member
	for _, id := range f.DescendantIDs {
		if m, ok := d.members[id]; ok {
			out = append(out, m)
		}
	}
	return out
}

// Audit checks the snapshot against the relationship invariants.
func (d *Directory) Audit() []invariant.Violation {
	members := make([]store.Member, 0, len(d.members))
	for _, m := range d.members {
		members = append(members, m)
	}
	families := make([]store.Family, 0, len(d.families))
	for _, f := range d.families {
		families = append(families, f)
	}
	return invariant.Audit(d.RootID, members, families)
}
