package engine

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/Kapral67/FamilyDirectory-sub001/internal/hashkey"
	"github.com/Kapral67/FamilyDirectory-sub001/invariant"
	"github.com/Kapral67/FamilyDirectory-sub001/store"
)

// Attributes are the caller-supplied fields of a member. Updates replace every
// field, so an omitted optional field is cleared.
type Attributes struct {
	FirstName  string            `json:"firstName"`
	MiddleName string            `json:"middleName,omitempty"`
	LastName   string            `json:"lastName"`
	Suffix     string            `json:"suffix,omitempty"`
	Birthday   string            `json:"birthday"`
	Deathday   string            `json:"deathday,omitempty"`
	Email      string            `json:"email,omitempty"`
	Phones     map[string]string `json:"phones,omitempty"`
	Address    []string          `json:"address,omitempty"`
}

// AttributesOf returns the attributes of a stored member.
func AttributesOf(m store.Member) Attributes {
	return Attributes{
		FirstName:  m.FirstName,
		MiddleName: m.MiddleName,
		LastName:   m.LastName,
		Suffix:     m.Suffix,
		Birthday:   m.Birthday,
		Deathday:   m.Deathday,
		Email:      m.Email,
		Phones:     m.Phones,
		Address:    m.Address,
	}
}

// Member builds the normalized member record for id in familyID.
func (a Attributes) Member(id, familyID uuid.UUID) store.Member {
	m := store.Member{
		ID:         id,
		FamilyID:   familyID,
		FirstName:  strings.TrimSpace(a.FirstName),
		MiddleName: strings.TrimSpace(a.MiddleName),
		LastName:   strings.TrimSpace(a.LastName),
		Suffix:     strings.TrimSpace(a.Suffix),
		Birthday:   strings.TrimSpace(a.Birthday),
		Deathday:   strings.TrimSpace(a.Deathday),
		Email:      hashkey.Normalize(a.Email),
	}
	if len(a.Phones) > 0 {
		m.Phones = make(map[string]string, len(a.Phones))
		for kind, number := range a.Phones {
			m.Phones[phoneKind(kind)] = strings.TrimSpace(number)
		}
	}
	for _, line := range a.Address {
		m.Address = append(m.Address, strings.TrimSpace(line))
	}
	return m
}

// Validate checks the attributes without touching the store.
func (a Attributes) Validate() error {
	return errors.Join(
		phoneKindCollisions(a.Phones),
		invariant.ValidateMember(a.Member(uuid.Nil, uuid.Nil)),
	)
}

func phoneKind(kind string) string {
	return strings.ToUpper(strings.TrimSpace(kind))
}

// phoneKindCollisions rejects phone types that differ only in case or
// surrounding space. Member folds them into one key and would drop a number.
func phoneKindCollisions(phones map[string]string) error {
	seen := make(map[string]int, len(phones))
	for kind := range phones {
		seen[phoneKind(kind)]++
	}
	var dups []string
	for kind, n := range seen {
		if n > 1 {
			dups = append(dups, kind)
		}
	}
	if len(dups) == 0 {
		return nil
	}
	sort.Strings(dups)
	return fmt.Errorf("%w: phone type %s given more than once", invariant.ErrValidation, strings.Join(dups, ", "))
}
