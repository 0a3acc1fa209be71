package krypto

import (
	"errors"
	"log/slog"
)

var ErrInvalidToken = errors.New("invalid token")

// Token is an opaque random string that identifies a session. The same
// format is used for session and confirmation tokens.
//
// Tokens are confidential: the only places they appear in plaintext are
// API responses, the cache and confirmation emails. They are never logged.
type Token string

// GenerateToken creates a new random token of n alphanumeric characters.
func GenerateToken(n int) (Token, error) {
	s, err := RandomString(n)
	if err != nil {
		return "", err
	}
	return Token(s), nil
}

// ParseToken checks that raw looks like a token. It does not check whether
// the token belongs to any session.
func ParseToken(raw string) (Token, error) {
	if raw == "" || len(raw) > 256 || !IsAlphanumeric(raw) {
		return "", ErrInvalidToken
	}

	return Token(raw), nil
}

// IsZero reports whether the token is empty.
func (t Token) IsZero() bool {
	return t == ""
}

// LogValue implements the slog.LogValuer interface.
func (t Token) LogValue() slog.Value {
	return slog.StringValue(SecretMarker)
}

func (t *Token) UnmarshalText(text []byte) error {
	tok, err := ParseToken(string(text))
	if err != nil {
		return err
	}

	*t = tok

	return nil
}
