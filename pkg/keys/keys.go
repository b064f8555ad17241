// Package keys builds and parses the colon-delimited key namespace used
// by the backing store. Key construction is deterministic: the same
// inputs always produce the same key, so callers can address a record
// without reading anything first.
package keys

import (
	"fmt"
	"strings"
)

// IndexPrefix is the store prefix under which every index list lives.
// The sweeper scans it to find indexes to compact.
const IndexPrefix = "list:"

const (
	recordPrefix = "record:"
	listPrefix   = IndexPrefix
	ratePrefix   = "ratelimit:"
	viewsPrefix  = "views:"
	userPrefix   = "user:email:"
	vaultPrefix  = "vault:"
)

// AllIndex is the name of the global recency index spanning every book.
const AllIndex = "all"

// Record returns the key for a dated story record, e.g.
// record:alps-2024:2024-07-19:crossing-the-col.
func Record(book, date, slug string) string {
	return recordPrefix + book + ":" + date + ":" + slug
}

// Index returns the key of a named index list, e.g. list:alps-2024 or
// list:all.
func Index(name string) string {
	return listPrefix + name
}

// RateCounter returns the key of a rate counter for one subject in one
// time bucket, e.g. ratelimit:login:203.0.113.9:2024-07-19.
func RateCounter(category, subject, bucket string) string {
	return ratePrefix + category + ":" + subject + ":" + bucket
}

// Views returns the view-counter key for a record key.
func Views(recordKey string) string {
	return viewsPrefix + recordKey
}

// UserByEmail returns the uniqueness key for a signed-up email address.
func UserByEmail(email string) string {
	return userPrefix + strings.ToLower(strings.TrimSpace(email))
}

// VaultFile returns the key for an uploaded file record in a user's vault.
func VaultFile(owner, id string) string {
	return vaultPrefix + owner + ":" + id
}

// VaultIndex returns the name of a user's vault index.
func VaultIndex(owner string) string {
	return "vault:" + owner
}

// IsRecord reports whether the key sits in the record namespace.
func IsRecord(key string) bool { return strings.HasPrefix(key, recordPrefix) }

// ParseRecord splits a record key into its book, date and slug parts.
func ParseRecord(key string) (book, date, slug string, err error) {
	if !strings.HasPrefix(key, recordPrefix) {
		return "", "", "", fmt.Errorf("not a record key: %s", key)
	}
	parts := strings.SplitN(strings.TrimPrefix(key, recordPrefix), ":", 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return "", "", "", fmt.Errorf("malformed record key: %s", key)
	}
	return parts[0], parts[1], parts[2], nil
}

// IndexName extracts the index name from a list key.
func IndexName(key string) (string, error) {
	if !strings.HasPrefix(key, listPrefix) {
		return "", fmt.Errorf("not an index key: %s", key)
	}
	return strings.TrimPrefix(key, listPrefix), nil
}
