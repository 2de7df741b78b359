// Package tokens issues and resolves the short-lived verification and
// password-reset tokens. Tokens live only in a TTL key/value store.
package tokens

import (
	"context"
	"errors"
	"time"
)

// ErrKeyNotFound is returned by Store.Get for absent or expired keys.
var ErrKeyNotFound = errors.New("key not found")

// Store is the token cache contract: set with a TTL, get until it expires.
type Store interface {
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
}
