package krypto

import (
	"crypto/rand"
	"errors"
	"io"
)

const alphanumeric = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// maxUnbiased is the largest multiple of len(alphanumeric) that fits in a byte.
// Bytes at or above it are rejected so every character is equally likely.
const maxUnbiased = 256 - (256 % len(alphanumeric))

var ErrInvalidLength = errors.New("invalid length")

// RandomString returns a string of n characters drawn uniformly from [A-Za-z0-9].
func RandomString(n int) (string, error) {
	if n <= 0 {
		return "", ErrInvalidLength
	}

	out := make([]byte, 0, n)
	buf := make([]byte, n)
	for len(out) < n {
		if _, err := io.ReadFull(rand.Reader, buf); err != nil {
			return "", err
		}

		for _, b := range buf {
			if int(b) >= maxUnbiased {
				continue
			}

			out = append(out, alphanumeric[int(b)%len(alphanumeric)])
			if len(out) == n {
				break
			}
		}
	}

	return string(out), nil
}

// IsAlphanumeric reports whether s only consists of [A-Za-z0-9].
func IsAlphanumeric(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !((c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')) {
			return false
		}
	}
	return true
}
