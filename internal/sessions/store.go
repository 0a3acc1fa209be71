// Package sessions maps session tokens to user identities in Redis.
//
// Every session is stored as two keys with the same expiry: the token
// holding the identity, and the identity holding the token. Keys carry
// no prefix, the keyspace is expected to belong to this service.
package sessions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lomect/accountd/internal/krypto"
	"github.com/redis/go-redis/v9"
)

// ErrConcurrentUpdate is returned when a session was replaced concurrently
// and no current token could be found afterwards.
var ErrConcurrentUpdate = errors.New("session was updated concurrently")

// Config configures the Store.
type Config struct {
	// TTL is the lifetime of a newly issued session.
	TTL time.Duration
	// TokenLen is the number of characters in a token.
	TokenLen int
}

// DefaultConfig returns the default session configuration.
func DefaultConfig() Config {
	return Config{
		TTL:      12 * time.Hour,
		TokenLen: 32,
	}
}

// Store keeps sessions in Redis. It is safe for concurrent use.
type Store struct {
	client redis.UniversalClient
	cfg    Config
}

// New creates a new Store.
func New(client redis.UniversalClient, cfg Config) (*Store, error) {
	if cfg.TTL <= 0 {
		return nil, fmt.Errorf("session ttl must be positive, got %s", cfg.TTL)
	}

	if cfg.TokenLen <= 0 {
		return nil, fmt.Errorf("token length must be positive, got %d", cfg.TokenLen)
	}

	return &Store{
		client: client,
		cfg:    cfg,
	}, nil
}

// Issue creates a new session for identity. A previous token of the identity
// is no longer returned by Lookup, but keeps resolving until it expires.
func (s *Store) Issue(ctx context.Context, identity string) (krypto.Token, error) {
	token, err := krypto.GenerateToken(s.cfg.TokenLen)
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		s.set(ctx, pipe, identity, token)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to issue session: %w", err)
	}

	return token, nil
}

// Reissue replaces the session old of identity by a new one. An empty old
// token is allowed and replaces whatever session the identity has.
//
// The identity key is watched for the duration of the replacement. If
// another request replaced the session first, its token is returned instead
// of creating a second one.
func (s *Store) Reissue(ctx context.Context, identity string, old krypto.Token) (krypto.Token, error) {
	next, err := krypto.GenerateToken(s.cfg.TokenLen)
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}

	var lost bool
	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, identity).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}

		if !old.IsZero() && current != "" && current != string(old) {
			lost = true
			return nil
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if !old.IsZero() {
				pipe.Del(ctx, string(old))
			}
			if current != "" && current != string(old) {
				pipe.Del(ctx, current)
			}
			s.set(ctx, pipe, identity, next)
			return nil
		})
		return err
	}, identity)

	switch {
	case errors.Is(err, redis.TxFailedErr):
		lost = true
	case err != nil:
		return "", fmt.Errorf("failed to reissue session: %w", err)
	}

	if !lost {
		return next, nil
	}

	winner, err := s.Lookup(ctx, identity)
	if err != nil {
		return "", err
	}

	if winner.IsZero() {
		return "", ErrConcurrentUpdate
	}

	// old was replaced by someone else, it must not outlive the replacement.
	if !old.IsZero() && old != winner {
		err = s.client.Del(ctx, string(old)).Err()
		if err != nil {
			return "", fmt.Errorf("failed to invalidate replaced session: %w", err)
		}
	}

	return winner, nil
}

// Lookup returns the current token of identity, or an empty token if it has none.
func (s *Store) Lookup(ctx context.Context, identity string) (krypto.Token, error) {
	v, err := s.client.Get(ctx, identity).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to lookup session: %w", err)
	}

	return krypto.Token(v), nil
}

// RemainingTTL returns how long the session of identity has left to live.
// It returns 0 if the identity has no session.
func (s *Store) RemainingTTL(ctx context.Context, identity string) (time.Duration, error) {
	ttl, err := s.client.TTL(ctx, identity).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get session ttl: %w", err)
	}

	// Redis reports a missing key or missing expiry as a negative value.
	if ttl < 0 {
		return 0, nil
	}

	return ttl, nil
}

// Invalidate removes token. The identity key is removed as well when it
// still points at token, a newer session of the identity is left alone.
// An empty token removes whatever session the identity has.
func (s *Store) Invalidate(ctx context.Context, identity string, token krypto.Token) error {
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, identity).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}

		target := string(token)
		if target == "" {
			target = current
		}

		if target == "" {
			return nil
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, target)
			if current == target {
				pipe.Del(ctx, identity)
			}
			return nil
		})
		return err
	}, identity)

	switch {
	case errors.Is(err, redis.TxFailedErr):
		return ErrConcurrentUpdate
	case err != nil:
		return fmt.Errorf("failed to invalidate session: %w", err)
	}

	return nil
}

// Resolve returns the identity token belongs to, or an empty string if the
// token is unknown or expired.
func (s *Store) Resolve(ctx context.Context, token krypto.Token) (string, error) {
	if token.IsZero() {
		return "", nil
	}

	v, err := s.client.Get(ctx, string(token)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to resolve session: %w", err)
	}

	return v, nil
}

func (s *Store) set(ctx context.Context, pipe redis.Pipeliner, identity string, token krypto.Token) {
	pipe.Set(ctx, string(token), identity, s.cfg.TTL)
	pipe.Set(ctx, identity, string(token), s.cfg.TTL)
}
