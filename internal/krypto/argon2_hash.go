package krypto

import (
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const argon2Variant = "argon2id"

var ErrInvalidInput = errors.New("invalid input")

// Argon2Params are the cost parameters of an argon2id hash.
type Argon2Params struct {
	MemoryKiB   uint32
	Iterations  uint32
	Parallelism uint8
	KeyLen      uint32
}

// Argon2Hash is a parsed argon2id hash in the PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<iterations>,p=<parallelism>$<salt>$<hash>
//
// Salt and hash are encoded using unpadded standard base64.
type Argon2Hash struct {
	Variant     string
	Version     int
	MemoryKiB   uint32
	Iterations  uint32
	Parallelism uint8
	Salt        []byte
	Hash        []byte
}

// HashArgon2 hashes data with the provided salt and parameters.
func HashArgon2(data, salt []byte, p Argon2Params) (Argon2Hash, error) {
	if len(salt) == 0 || p.KeyLen == 0 || p.Iterations == 0 || p.Parallelism == 0 {
		return Argon2Hash{}, ErrInvalidInput
	}

	return Argon2Hash{
		Variant:     argon2Variant,
		Version:     argon2.Version,
		MemoryKiB:   p.MemoryKiB,
		Iterations:  p.Iterations,
		Parallelism: p.Parallelism,
		Salt:        salt,
		Hash:        argon2.IDKey(data, salt, p.Iterations, p.MemoryKiB, p.Parallelism, p.KeyLen),
	}, nil
}

// ParseArgon2Hash parses a PHC formatted argon2id string.
func ParseArgon2Hash(s string) (Argon2Hash, error) {
	parts := strings.Split(s, "$")
	if len(parts) != 6 || parts[0] != "" {
		return Argon2Hash{}, fmt.Errorf("%w: expected 6 segments", ErrInvalidInput)
	}

	h := Argon2Hash{
		Variant: parts[1],
	}

	if h.Variant != argon2Variant {
		return Argon2Hash{}, fmt.Errorf("%w: unsupported variant %q", ErrInvalidInput, h.Variant)
	}

	version, ok := strings.CutPrefix(parts[2], "v=")
	if !ok {
		return Argon2Hash{}, fmt.Errorf("%w: missing version", ErrInvalidInput)
	}

	var err error
	h.Version, err = strconv.Atoi(version)
	if err != nil {
		return Argon2Hash{}, fmt.Errorf("%w: version: %w", ErrInvalidInput, err)
	}

	if h.Version != argon2.Version {
		return Argon2Hash{}, fmt.Errorf("%w: unsupported version %d", ErrInvalidInput, h.Version)
	}

	var parallelism uint32
	_, err = fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &h.MemoryKiB, &h.Iterations, &parallelism)
	if err != nil {
		return Argon2Hash{}, fmt.Errorf("%w: parameters: %w", ErrInvalidInput, err)
	}

	if parallelism == 0 || parallelism > 255 || h.Iterations == 0 {
		return Argon2Hash{}, fmt.Errorf("%w: parameters out of range", ErrInvalidInput)
	}
	h.Parallelism = uint8(parallelism)

	h.Salt, err = base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil || len(h.Salt) == 0 {
		return Argon2Hash{}, fmt.Errorf("%w: salt is not valid base64", ErrInvalidInput)
	}

	h.Hash, err = base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(h.Hash) == 0 {
		return Argon2Hash{}, fmt.Errorf("%w: hash is not valid base64", ErrInvalidInput)
	}

	return h, nil
}

// Digest returns the encoded hash, the final segment of the PHC string.
func (h Argon2Hash) Digest() string {
	return base64.RawStdEncoding.EncodeToString(h.Hash)
}

// MatchBytes reports whether data hashes to h under the parameters and salt of h.
// The comparison is done in constant time.
func (h Argon2Hash) MatchBytes(data []byte) bool {
	if len(h.Hash) == 0 {
		return false
	}

	other := argon2.IDKey(data, h.Salt, h.Iterations, h.MemoryKiB, h.Parallelism, uint32(len(h.Hash)))
	return subtle.ConstantTimeCompare(h.Hash, other) == 1
}
