package auth

import (
	"time"

	"github.com/google/uuid"
	"github.com/lomect/accountd/internal/email"
)

// User contains the data for a user account.
type User struct {
	ID           uuid.UUID
	Username     string
	Email        email.Address
	Phone        string
	PasswordHash PasswordHash
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// UserUpdate lists the fields to change on a user. Nil fields are left as is.
type UserUpdate struct {
	PasswordHash *PasswordHash
	IsActive     *bool
	UpdatedAt    time.Time
}

// Credentials are presented during login.
type Credentials struct {
	Email    email.Address
	Password Password
}

// Registration contains the validated input for a new account.
type Registration struct {
	Username string
	Email    email.Address
	Phone    string
	Password Password
}

// Resend asks for the confirmation email to be sent again. If Forget is
// set, the email is phrased as a password reset instead.
type Resend struct {
	Email  email.Address
	Forget bool
}

// UserQuery is a page of the user listing.
type UserQuery struct {
	Username string
	// IsActive only lists confirmed (true) or unconfirmed (false) accounts when set.
	IsActive *bool
	PageNum  int
	PageSize int
}
