package auth

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/lomect/accountd/internal/krypto"
)

const (
	minPasswordBytes      = 6
	minLoginPasswordBytes = 3
	// We put a generous upper cap on password length, so people can use
	// passphrases but we don't allow MBs of data as a password.
	maxPasswordBytes = 512
)

var (
	ErrInvalidPassword  = errors.New("invalid password")
	ErrPasswordMismatch = errors.New("passwords do not match")
)

// Password is a plaintext password.
//
// It should never be persisted, logged or exposed in any other way. To
// protect ourselves from accidentally doing so, the type implements
// several common interfaces that would allow it to be used inappropriately.
//
// The only thing to do with a Password is hand it to a Hasher.
type Password struct {
	plain []byte
}

// ParsePassword parses a new password, as chosen during registration
// or a password reset. It errors if the password is too short or too long.
func ParsePassword(pwd string) (Password, error) {
	return parsePassword(pwd, minPasswordBytes)
}

// ParseLoginPassword parses a password presented during login. The rules are
// looser than ParsePassword, the hash comparison decides whether it is right.
func ParseLoginPassword(pwd string) (Password, error) {
	return parsePassword(pwd, minLoginPasswordBytes)
}

// ParseNewPassword parses a new password and checks it against its confirmation.
func ParseNewPassword(pwd, confirm string) (Password, error) {
	p, err := ParsePassword(pwd)
	if err != nil {
		return Password{}, err
	}

	if pwd != confirm {
		return Password{}, ErrPasswordMismatch
	}

	return p, nil
}

func parsePassword(pwd string, min int) (Password, error) {
	if len(pwd) < min || len(pwd) > maxPasswordBytes {
		return Password{}, fmt.Errorf("%w: must be between %d and %d bytes", ErrInvalidPassword, min, maxPasswordBytes)
	}

	return Password{
		plain: []byte(pwd),
	}, nil
}

func (p Password) Format(f fmt.State, verb rune) {
	f.Write([]byte(krypto.SecretMarker))
}

func (p Password) MarshalText() ([]byte, error) {
	return []byte(krypto.SecretMarker), nil
}

// LogValue implements the slog.LogValuer interface.
func (p Password) LogValue() slog.Value {
	return slog.StringValue(krypto.SecretMarker)
}
