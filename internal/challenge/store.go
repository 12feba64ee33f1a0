// Package challenge provides the short-lived single-use key-value store behind
// two-factor login challenges and email verification tokens. Take reads and
// deletes in one atomic step, so a value can be consumed at most once.
package challenge

import (
	"context"
	"time"
)

// Key prefixes for the values kept in a Store.
const (
	TwoFactorPrefix         = "2fa_challenge:"
	EmailVerificationPrefix = "email_verification:"
)

// Store holds values that expire after a TTL and can be taken exactly once.
type Store interface {
	// Put stores value under key for ttl, replacing any previous value.
	Put(ctx context.Context, key, value string, ttl time.Duration) error
	// Take returns and removes the value under key. ok is false when the key
	// is unknown or expired.
	Take(ctx context.Context, key string) (value string, ok bool, err error)
}
