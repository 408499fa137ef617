// Package hashkey derives stable content hashes used as DynamoDB lookup keys.
package hashkey

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Unique computes a hash-distributed partition key for a unique constraint record.
// Each constraint lands on its own partition, so claims never contend on a hot key.
// The value is compared case-insensitively with surrounding whitespace ignored.
func Unique(entityType, field, value string) string {
	return sum(fmt.Sprintf("%s#%s#%s", entityType, field, Normalize(value)))
}

// Member computes the external lookup key for a member from its full name,
// birthday and optional deathday. The key never exposes the member id.
func Member(fullName, birthday, deathday string) string {
	return sum(fmt.Sprintf("%s#%s#%s", strings.Join(strings.Fields(fullName), " "), birthday, deathday))
}

// Normalize lower-cases and trims a value before hashing.
func Normalize(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

func sum(data string) string {
	h := sha256.Sum256([]byte(data))
	return hex.EncodeToString(h[:16]) // 128-bit hash as hex
}
