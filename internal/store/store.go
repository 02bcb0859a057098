package store

import (
	"context"
	"errors"
	"strings"
)

// Key namespaces
const (
	NamespaceUsers    = "users"
	NamespaceInsights = "insights"
)

// ErrNotFound indicates no value exists for the given key
var ErrNotFound = errors.New("key not found")

// Backend is a keyed blob store. Keys are namespace-qualified strings
// such as "users/jane_doe".
type Backend interface {
	Save(ctx context.Context, key string, payload []byte) error
	Load(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	Close() error
}

// NormalizeAccount derives a storage-safe identifier from an account
// email: the local part with dots replaced by underscores.
func NormalizeAccount(email string) string {
	local := email
	if i := strings.IndexByte(email, '@'); i >= 0 {
		local = email[:i]
	}
	return strings.ReplaceAll(local, ".", "_")
}

// UserKey builds the cache key for a user's wrapped report
func UserKey(email string) string {
	return NamespaceUsers + "/" + NormalizeAccount(email)
}

// InsightsKey builds the cache key for a user's generated narrative text
func InsightsKey(email string) string {
	return NamespaceInsights + "/" + NormalizeAccount(email)
}
