package auth_test

import (
	"encoding/base64"
	"fmt"
	"strings"
	"testing"

	"github.com/lomect/accountd/internal/auth"
	"github.com/lomect/accountd/internal/krypto"
	"golang.org/x/crypto/argon2"
)

func Test_Hasher_HashVerify(t *testing.T) {
	hasher := must(auth.NewHasher(auth.DefaultHashParams()))

	for name, raw := range map[string]string{
		"ok, short password":   "secret1",
		"ok, passphrase":       "correct horse battery staple",
		"ok, unicode":          "pässwörd✓",
		"ok, maximum length":   stringOfLen(512),
		"ok, login min length": "abc",
	} {
		t.Run(name, func(t *testing.T) {
			pwd := must(auth.ParseLoginPassword(raw))

			hash, err := hasher.Hash(pwd)
			if err != nil {
				t.Fatalf("failed to hash password: %v", err)
			}

			if !hasher.Verify(hash, pwd) {
				t.Errorf("password does not match own hash %s", hash)
			}
		})
	}

	t.Run("ok, format is salt and digest", func(t *testing.T) {
		hash := must(hasher.Hash(must(auth.ParsePassword("secret1"))))

		salt, digest, ok := strings.Cut(string(hash), ":")
		if !ok {
			t.Fatalf("hash %q has no separator", hash)
		}

		if len(salt) != 12 || !krypto.IsAlphanumeric(salt) {
			t.Errorf("invalid salt %q", salt)
		}

		if len(digest) != 43 {
			t.Errorf("got digest of length %d, want 43", len(digest))
		}
	})

	t.Run("ok, digest is argon2id of password and salt", func(t *testing.T) {
		hash := must(hasher.Hash(must(auth.ParsePassword("secret1"))))
		salt, digest, _ := strings.Cut(string(hash), ":")

		want := base64.RawStdEncoding.EncodeToString(argon2.IDKey([]byte("secret1"), []byte(salt), 10, 4096, 4, 32))
		if digest != want {
			t.Errorf("got digest %s, want %s", digest, want)
		}
	})

	t.Run("ok, salts differ", func(t *testing.T) {
		pwd := must(auth.ParsePassword("secret1"))

		a := must(hasher.Hash(pwd))
		b := must(hasher.Hash(pwd))

		if a == b {
			t.Errorf("expected different hashes, got %s twice", a)
		}
	})

	t.Run("ok, other password does not match", func(t *testing.T) {
		hash := must(hasher.Hash(must(auth.ParsePassword("secret1"))))

		if hasher.Verify(hash, must(auth.ParsePassword("secret2"))) {
			t.Errorf("other password should not match %s", hash)
		}
	})

	t.Run("ok, hash from other parameters does not match", func(t *testing.T) {
		cheap := must(auth.NewHasher(auth.HashParams{
			Argon2:  krypto.Argon2Params{MemoryKiB: 64, Iterations: 1, Parallelism: 1, KeyLen: 32},
			SaltLen: 12,
		}))

		pwd := must(auth.ParsePassword("secret1"))
		hash := must(cheap.Hash(pwd))

		if hasher.Verify(hash, pwd) {
			t.Errorf("hash from other parameters should not match")
		}
	})
}

func Test_Hasher_VerifyMalformed(t *testing.T) {
	hasher := must(auth.NewHasher(auth.DefaultHashParams()))
	pwd := must(auth.ParsePassword("secret1"))
	valid := string(must(hasher.Hash(pwd)))
	salt, digest, _ := strings.Cut(valid, ":")

	tests := map[string]auth.PasswordHash{
		"empty":               "",
		"no separator":        auth.PasswordHash(salt + digest),
		"empty salt":          auth.PasswordHash(":" + digest),
		"empty digest":        auth.PasswordHash(salt + ":"),
		"short salt":          auth.PasswordHash(salt[1:] + ":" + digest),
		"digest not base64":   auth.PasswordHash(salt + ":" + strings.Repeat("*", 43)),
		"truncated digest":    auth.PasswordHash(salt + ":" + digest[:20]),
		"extra separator":     auth.PasswordHash(salt + ":" + digest + ":" + digest),
		"phc string":          auth.PasswordHash("$argon2id$v=19$m=4096,t=10,p=4$" + salt + "$" + digest),
		"digest with dollars": auth.PasswordHash(salt + ":" + digest + "$x"),
		"one byte digest":     auth.PasswordHash(salt + ":AA"),
		"digest too long":     auth.PasswordHash(salt + ":" + digest + digest),
	}

	for name, hash := range tests {
		t.Run(name, func(t *testing.T) {
			if hasher.Verify(hash, pwd) {
				t.Errorf("malformed hash %q should not match", hash)
			}
		})
	}
}

func Test_Hasher_VerifyShortDigest(t *testing.T) {
	hasher := must(auth.NewHasher(auth.HashParams{
		Argon2:  krypto.Argon2Params{MemoryKiB: 64, Iterations: 1, Parallelism: 1, KeyLen: 32},
		SaltLen: 12,
	}))

	// A single digest byte would match about one in 256 passwords if only
	// the stored bytes were compared.
	stored := auth.PasswordHash("abcdefghijkl:AA")
	for i := 0; i < 1000; i++ {
		pwd := must(auth.ParseLoginPassword(fmt.Sprintf("password-%d", i)))
		if hasher.Verify(stored, pwd) {
			t.Fatalf("one byte digest matched password %d", i)
		}
	}
}

func Test_NewHasher(t *testing.T) {
	valid := auth.DefaultHashParams()

	tests := map[string]func(p *auth.HashParams){
		"zero salt length": func(p *auth.HashParams) { p.SaltLen = 0 },
		"zero key length":  func(p *auth.HashParams) { p.Argon2.KeyLen = 0 },
		"zero iterations":  func(p *auth.HashParams) { p.Argon2.Iterations = 0 },
		"zero parallelism": func(p *auth.HashParams) { p.Argon2.Parallelism = 0 },
	}

	for name, mod := range tests {
		t.Run("fail, "+name, func(t *testing.T) {
			p := valid
			mod(&p)

			_, err := auth.NewHasher(p)
			if err == nil {
				t.Errorf("expected error, got nil")
			}
		})
	}
}
