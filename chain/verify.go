package chain

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/Kapral67/FamilyDirectory-sub001/store"
)

// Report is the result of a reconciliation pass over the chain.
type Report struct {
	// Head is the token LATEST points at, uuid.Nil if there is no LATEST.
	Head uuid.UUID

	// Oldest is the earliest live token, uuid.Nil for an empty chain.
	Oldest uuid.UUID

	// Tokens counts live tokens, excluding LATEST.
	Tokens int

	// HeadMissing is set when LATEST is absent with tokens present, or names
	// a token that does not exist.
	HeadMissing bool

	// Unlinked lists tokens other than the head that were never superseded.
	Unlinked []uuid.UUID

	// Broken lists tokens whose next names a missing token.
	Broken []uuid.UUID

	// Cycle is set when following next pointers revisits a token.
	Cycle bool
}

// OK reports whether the chain is a single well-formed list ending at LATEST.
func (r *Report) OK() bool {
	return !r.HeadMissing && !r.Cycle && len(r.Unlinked) == 0 && len(r.Broken) == 0
}

func (r *Report) String() string {
	if r.OK() {
		return fmt.Sprintf("chain ok: %d tokens, head %s", r.Tokens, r.Head)
	}
	return fmt.Sprintf("chain damaged: %d tokens, head %s, head missing %t, %d unlinked, %d broken, cycle %t",
		r.Tokens, r.Head, r.HeadMissing, len(r.Unlinked), len(r.Broken), r.Cycle)
}

// Verify scans every live token and checks the chain's shape.
func (c *Chain) Verify(ctx context.Context) (*Report, error) {
	tokens, err := c.store.ListTokens(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tokens: %w", err)
	}

	r := &Report{}
	byID := make(map[uuid.UUID]store.ChangeToken, len(tokens))
	var latest *store.ChangeToken
	for i := range tokens {
		if tokens[i].ID == store.LatestID {
			latest = &tokens[i]
			continue
		}
		byID[tokens[i].ID] = tokens[i]
	}
	r.Tokens = len(byID)

	if latest == nil {
		r.HeadMissing = r.Tokens > 0
	} else {
		r.Head = latest.Next
		if _, ok := byID[r.Head]; !ok {
			r.HeadMissing = true
		}
	}

	referenced := make(map[uuid.UUID]bool, len(byID))
	for id, t := range byID {
		switch {
		case !t.Superseded():
			if id != r.Head {
				r.Unlinked = append(r.Unlinked, id)
			}
		default:
			referenced[t.Next] = true
			if _, ok := byID[t.Next]; !ok {
				r.Broken = append(r.Broken, id)
			}
		}
	}

	for id, t := range byID {
		if referenced[id] {
			continue
		}
		// Ids are time ordered, so the smallest unreferenced id is the oldest.
		if r.Oldest == uuid.Nil || t.ID.String() < r.Oldest.String() {
			r.Oldest = id
		}
	}

	r.Cycle = hasCycle(byID)
	if !r.OK() {
		c.logger.Warn("change token chain damaged",
			"head", r.Head,
			"unlinked", len(r.Unlinked),
			"broken", len(r.Broken),
			"cycle", r.Cycle,
		)
	}
	return r, nil
}

func hasCycle(byID map[uuid.UUID]store.ChangeToken) bool {
	const (
		visiting = 1
		done     = 2
	)
	state := make(map[uuid.UUID]int, len(byID))
	for start := range byID {
		var path []uuid.UUID
		id := start
		for {
			t, ok := byID[id]
			if !ok || state[id] == done {
				break
			}
			if state[id] == visiting {
				return true
			}
			state[id] = visiting
			path = append(path, id)
			if !t.Superseded() {
				break
			}
			id = t.Next
		}
		for _, p := range path {
			state[p] = done
		}
	}
	return false
}
