package identity

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemoryBindings is an in-memory Bindings for tests and local runs.
type MemoryBindings struct {
	mu       sync.Mutex
	subjects map[string]uuid.UUID
}

var _ Bindings = (*MemoryBindings)(nil)

// NewMemoryBindings creates empty in-memory bindings.
func NewMemoryBindings() *MemoryBindings {
	return &MemoryBindings{subjects: make(map[string]uuid.UUID)}
}

func (b *MemoryBindings) Bind(_ context.Context, subject string, member uuid.UUID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if owner, ok := b.subjects[subject]; ok && owner != member {
		return ErrAlreadyBound
	}
	b.subjects[subject] = member
	return nil
}

func (b *MemoryBindings) Lookup(_ context.Context, subject string) (uuid.UUID, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id, ok := b.subjects[subject]
	if !ok {
		return uuid.Nil, ErrNotBound
	}
	return id, nil
}

func (b *MemoryBindings) Unbind(_ context.Context, member uuid.UUID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for sub, id := range b.subjects {
		if id == member {
			delete(b.subjects, sub)
		}
	}
	return nil
}

// MemoryDeadLetters is an in-memory DeadLetters.
type MemoryDeadLetters struct {
	mu      sync.Mutex
	letters map[uuid.UUID]DeadLetter
}

var _ DeadLetters = (*MemoryDeadLetters)(nil)

// NewMemoryDeadLetters creates an empty in-memory dead-letter table.
func NewMemoryDeadLetters() *MemoryDeadLetters {
	return &MemoryDeadLetters{letters: make(map[uuid.UUID]DeadLetter)}
}

func (d *MemoryDeadLetters) Put(_ context.Context, dl DeadLetter) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.letters[dl.MemberID] = dl
	return nil
}

func (d *MemoryDeadLetters) List(_ context.Context) ([]DeadLetter, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]DeadLetter, 0, len(d.letters))
	for _, dl := range d.letters {
		out = append(out, dl)
	}
	sortDeadLetters(out)
	return out, nil
}

func (d *MemoryDeadLetters) Delete(_ context.Context, member uuid.UUID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.letters, member)
	return nil
}
