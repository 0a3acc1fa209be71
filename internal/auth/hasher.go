package auth

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/lomect/accountd/internal/krypto"
	"golang.org/x/crypto/argon2"
)

// hashSeparator separates the salt and the digest in a PasswordHash.
const hashSeparator = ":"

// PasswordHash is a stored password hash in the form "<salt>:<digest>".
//
// The salt is a random alphanumeric string and the digest is the final
// segment of the argon2id PHC encoding. The cost parameters are not stored,
// they are the same for every hash and supplied by HashParams.
type PasswordHash string

// HashParams are the process wide hashing parameters.
type HashParams struct {
	Argon2  krypto.Argon2Params
	SaltLen int
}

// DefaultHashParams returns the parameters all stored hashes were created with.
// Changing them invalidates every stored hash.
func DefaultHashParams() HashParams {
	return HashParams{
		Argon2: krypto.Argon2Params{
			MemoryKiB:   4096,
			Iterations:  10,
			Parallelism: 4,
			KeyLen:      32,
		},
		SaltLen: 12,
	}
}

// Hasher hashes passwords and verifies passwords against stored hashes.
// It is safe for concurrent use.
type Hasher struct {
	params HashParams
}

// NewHasher creates a Hasher using the provided parameters.
func NewHasher(p HashParams) (*Hasher, error) {
	if p.SaltLen <= 0 {
		return nil, errors.New("salt length must be positive")
	}

	if p.Argon2.KeyLen == 0 || p.Argon2.Iterations == 0 || p.Argon2.Parallelism == 0 {
		return nil, errors.New("argon2 parameters must be positive")
	}

	return &Hasher{params: p}, nil
}

// Hash hashes pwd with a fresh random salt.
func (h *Hasher) Hash(pwd Password) (PasswordHash, error) {
	salt, err := krypto.RandomString(h.params.SaltLen)
	if err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}

	ah, err := krypto.HashArgon2(pwd.plain, []byte(salt), h.params.Argon2)
	if err != nil {
		return "", err
	}

	return PasswordHash(salt + hashSeparator + ah.Digest()), nil
}

// Verify reports whether pwd matches the stored hash. A malformed stored
// hash never matches.
func (h *Hasher) Verify(stored PasswordHash, pwd Password) bool {
	salt, digest, ok := strings.Cut(string(stored), hashSeparator)
	if !ok || len(salt) != h.params.SaltLen || digest == "" {
		return false
	}

	ah, err := krypto.ParseArgon2Hash(h.encode(salt, digest))
	if err != nil || uint32(len(ah.Hash)) != h.params.Argon2.KeyLen {
		return false
	}

	return ah.MatchBytes(pwd.plain)
}

// encode rebuilds the full PHC string from the fixed parameters and the
// stored salt and digest. The salt bytes are used as stored, both here and
// when hashing.
func (h *Hasher) encode(salt, digest string) string {
	p := h.params.Argon2
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		p.MemoryKiB,
		p.Iterations,
		p.Parallelism,
		base64.RawStdEncoding.EncodeToString([]byte(salt)),
		digest,
	)
}
