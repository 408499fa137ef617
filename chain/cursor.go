package chain

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Kapral67/FamilyDirectory-sub001/store"
)

// Cursor is a sync client's position in the chain: the last token it has
// applied and, once that token is superseded, when it expires.
type Cursor struct {
	ID  uuid.UUID `json:"id"`
	TTL int64     `json:"ttl,omitempty"`
}

// Encode returns the opaque wire form, base64(JSON{id, ttl}).
func (c Cursor) Encode() string {
	raw, _ := json.Marshal(c)
	return base64.URLEncoding.EncodeToString(raw)
}

// Expired reports whether the cursor's token is past its TTL at now.
func (c Cursor) Expired(now time.Time) bool {
	return store.Expired(c.TTL, now)
}

// DecodeCursor parses a cursor produced by Encode. Standard base64 is accepted too.
func DecodeCursor(s string) (Cursor, error) {
	raw, err := base64.URLEncoding.DecodeString(s)
	if err != nil {
		if raw, err = base64.StdEncoding.DecodeString(s); err != nil {
			return Cursor{}, fmt.Errorf("%w: not base64", ErrInvalidCursor)
		}
	}

	var c Cursor
	if err := json.Unmarshal(raw, &c); err != nil {
		return Cursor{}, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	if c.ID == uuid.Nil {
		return Cursor{}, fmt.Errorf("%w: missing id", ErrInvalidCursor)
	}
	return c, nil
}
