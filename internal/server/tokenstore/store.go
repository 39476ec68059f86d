// Package tokenstore tracks which issued tokens are still live.
//
// A signed token proves who issued it; the store decides whether it may
// still be used. Each token moves through ISSUED -> VALID -> one of
// USED, EXPIRED or REVOKED, and only VALID tokens pass Exists.
// A deployment picks exactly one backend: PostgresStore keeps an audit row
// per token, RedisStore lets keys expire natively.
package tokenstore

import (
	"context"
	"strings"
	"time"

	"github.com/dmitrijs2005/kajix/internal/server/models"
)

// Key addresses one token of one user.
type Key struct {
	Kind   models.TokenKind
	UserID string
	Value  string
}

// String renders "{kind}:{userId}:{value}".
func (k Key) String() string {
	return strings.ToLower(string(k.Kind)) + ":" + k.UserID + ":" + k.Value
}

// Record is what Put persists.
type Record struct {
	Key
	Email     string
	ExpiresAt time.Time
}

type Store interface {
	// Put records a newly issued token as VALID until ExpiresAt.
	Put(ctx context.Context, r Record) error

	// Exists reports whether the token is VALID right now.
	Exists(ctx context.Context, k Key) (bool, error)

	// MarkUsed moves a VALID token to USED and reports whether this call
	// made the transition. Of several concurrent callers at most one wins.
	MarkUsed(ctx context.Context, k Key) (bool, error)

	// Delete forgets a token. Used to roll back a half-issued pair.
	Delete(ctx context.Context, k Key) error

	// RevokeUser invalidates every live token of the user.
	RevokeUser(ctx context.Context, userID string) error
}

// AtomicPutter is implemented by stores that can record several tokens as
// one unit: either every record becomes VALID or none does. Callers without
// it fall back to Put and Delete.
type AtomicPutter interface {
	PutAll(ctx context.Context, rs ...Record) error
}
