package auth

import (
	"fmt"

	"github.com/lomect/accountd/internal/errorz"
)

var (
	ErrDuplicateUser      = fmt.Errorf("account already registered: %w", errorz.ErrConflict)
	ErrDuplicateSend      = fmt.Errorf("confirmation email already sent: %w", errorz.ErrConflict)
	ErrUnknownAccount     = fmt.Errorf("account does not exist: %w", errorz.ErrNotFound)
	ErrInvalidCredentials = fmt.Errorf("invalid credentials: %w", errorz.ErrUnauthorized)
	ErrInvalidToken       = fmt.Errorf("invalid or expired token: %w", errorz.ErrUnauthorized)
)

// Names of the dependencies used in errorz.DependencyError.
const (
	depDatabase = "database"
	depCache    = "cache"
	depEmail    = "email"
)
