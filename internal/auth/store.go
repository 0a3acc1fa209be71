package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/lomect/accountd/internal/email"
	"github.com/lomect/accountd/internal/krypto"
)

// UserFilter is used filter users.
// Returned users must match all the provided fields.
// If a field is empty or nil, it's ignored.
type UserFilter struct {
	Emails   []email.Address
	Username string
	IsActive *bool

	// Limit of 0 means no limit.
	Limit  int
	Offset int
}

// Store provides access to persisted users.
// Calls are independent, there is no transaction spanning multiple calls.
type Store interface {
	// CreateUser creates a user. It returns errorz.ErrConstraintViolated
	// if the email address is already taken.
	CreateUser(ctx context.Context, u *User) error
	// UpdateUser updates the fields of the user with the given ID.
	// It returns errorz.ErrNotFound if no such user exists.
	UpdateUser(ctx context.Context, id uuid.UUID, upd UserUpdate) error
	FindUsers(ctx context.Context, filter *UserFilter) ([]User, error)
}

// SessionStore keeps the mapping between session tokens and user identities.
type SessionStore interface {
	Issue(ctx context.Context, identity string) (krypto.Token, error)
	Reissue(ctx context.Context, identity string, old krypto.Token) (krypto.Token, error)
	Lookup(ctx context.Context, identity string) (krypto.Token, error)
	RemainingTTL(ctx context.Context, identity string) (time.Duration, error)
	Invalidate(ctx context.Context, identity string, token krypto.Token) error
	Resolve(ctx context.Context, token krypto.Token) (string, error)
}

// Emailer is used to send templated emails.
type Emailer interface {
	Send(ctx context.Context, template string, to email.Address, data any) error
}
