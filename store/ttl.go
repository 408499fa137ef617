package store

import (
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Superseded change tokens carry a TTL. DynamoDB removes them lazily, so reads
// treat an elapsed TTL as absent.

// Expired reports whether a unix TTL has elapsed at now. Zero means no TTL.
func Expired(ttl int64, now time.Time) bool {
	return ttl != 0 && ttl <= now.Unix()
}

// ExpiresAt returns the unix TTL for an item retained for d after now.
func ExpiresAt(now time.Time, d time.Duration) int64 {
	return now.Add(d).Unix()
}

// IsExpired reports whether a raw item's TTL has elapsed. Items without a
// numeric ttl attribute never expire.
func IsExpired(item map[string]types.AttributeValue, now time.Time) bool {
	return Expired(ttlOf(item), now)
}

func ttlOf(item map[string]types.AttributeValue) int64 {
	n, ok := item["ttl"].(*types.AttributeValueMemberN)
	if !ok {
		return 0
	}
	ttl, err := strconv.ParseInt(n.Value, 10, 64)
	if err != nil {
		return 0
	}
	return ttl
}

// LiveFilter is the filter expression excluding items whose TTL elapsed
// before now, with its attribute names and values.
func LiveFilter(now time.Time) (string, map[string]string, map[string]types.AttributeValue) {
	return "attribute_not_exists(#ttl) OR #ttl > :now",
		map[string]string{"#ttl": "ttl"},
		map[string]types.AttributeValue{
			":now": &types.AttributeValueMemberN{Value: strconv.FormatInt(now.Unix(), 10)},
		}
}
