package sessions_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/lomect/accountd/internal/krypto"
	"github.com/lomect/accountd/internal/sessions"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

const identity = "0b7e7b4e-3f4c-4d3a-8f55-4f1b1f3c2a10"

func Test_New(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:0"})
	t.Cleanup(func() { _ = client.Close() })

	t.Run("ok, default config", func(t *testing.T) {
		_, err := sessions.New(client, sessions.DefaultConfig())
		require.NoError(t, err)
	})

	t.Run("fail, zero ttl", func(t *testing.T) {
		_, err := sessions.New(client, sessions.Config{TokenLen: 32})
		require.Error(t, err)
	})

	t.Run("fail, zero token length", func(t *testing.T) {
		_, err := sessions.New(client, sessions.Config{TTL: time.Hour})
		require.Error(t, err)
	})
}

func Test_Store_Issue(t *testing.T) {
	t.Run("ok, both keys are written with the ttl", func(t *testing.T) {
		st := newStoreTest(t)

		token, err := st.store.Issue(context.Background(), identity)
		require.NoError(t, err)
		require.Len(t, string(token), 32)
		require.True(t, krypto.IsAlphanumeric(string(token)))

		// Key layout is relied on by other services sharing the cache.
		require.Equal(t, identity, st.get(string(token)))
		require.Equal(t, string(token), st.get(identity))
		require.Equal(t, 12*time.Hour, st.mr.TTL(string(token)))
		require.Equal(t, 12*time.Hour, st.mr.TTL(identity))
	})

	t.Run("ok, tokens are unique", func(t *testing.T) {
		st := newStoreTest(t)

		a, err := st.store.Issue(context.Background(), identity)
		require.NoError(t, err)

		b, err := st.store.Issue(context.Background(), identity)
		require.NoError(t, err)

		require.NotEqual(t, a, b)

		got, err := st.store.Lookup(context.Background(), identity)
		require.NoError(t, err)
		require.Equal(t, b, got)
	})

	t.Run("fail, cache unavailable", func(t *testing.T) {
		st := newStoreTest(t)
		st.mr.Close()

		_, err := st.store.Issue(context.Background(), identity)
		require.Error(t, err)
	})
}

func Test_Store_Lookup(t *testing.T) {
	t.Run("ok, no session", func(t *testing.T) {
		st := newStoreTest(t)

		token, err := st.store.Lookup(context.Background(), identity)
		require.NoError(t, err)
		require.True(t, token.IsZero())
	})

	t.Run("ok, expired session", func(t *testing.T) {
		st := newStoreTest(t)

		_, err := st.store.Issue(context.Background(), identity)
		require.NoError(t, err)

		st.mr.FastForward(12*time.Hour + time.Second)

		token, err := st.store.Lookup(context.Background(), identity)
		require.NoError(t, err)
		require.True(t, token.IsZero())
	})
}

func Test_Store_RemainingTTL(t *testing.T) {
	t.Run("ok, decays over time", func(t *testing.T) {
		st := newStoreTest(t)

		_, err := st.store.Issue(context.Background(), identity)
		require.NoError(t, err)

		st.mr.FastForward(11*time.Hour + 30*time.Minute)

		ttl, err := st.store.RemainingTTL(context.Background(), identity)
		require.NoError(t, err)
		require.Equal(t, 30*time.Minute, ttl)
	})

	t.Run("ok, zero without session", func(t *testing.T) {
		st := newStoreTest(t)

		ttl, err := st.store.RemainingTTL(context.Background(), identity)
		require.NoError(t, err)
		require.Zero(t, ttl)
	})
}

func Test_Store_Resolve(t *testing.T) {
	t.Run("ok, known token", func(t *testing.T) {
		st := newStoreTest(t)

		token, err := st.store.Issue(context.Background(), identity)
		require.NoError(t, err)

		got, err := st.store.Resolve(context.Background(), token)
		require.NoError(t, err)
		require.Equal(t, identity, got)
	})

	t.Run("ok, unknown token", func(t *testing.T) {
		st := newStoreTest(t)

		got, err := st.store.Resolve(context.Background(), "doesNotExist")
		require.NoError(t, err)
		require.Empty(t, got)
	})

	t.Run("ok, empty token", func(t *testing.T) {
		st := newStoreTest(t)

		got, err := st.store.Resolve(context.Background(), "")
		require.NoError(t, err)
		require.Empty(t, got)
	})
}

func Test_Store_Invalidate(t *testing.T) {
	t.Run("ok, removes current session", func(t *testing.T) {
		st := newStoreTest(t)

		token, err := st.store.Issue(context.Background(), identity)
		require.NoError(t, err)

		err = st.store.Invalidate(context.Background(), identity, token)
		require.NoError(t, err)

		require.False(t, st.mr.Exists(identity))
		require.False(t, st.mr.Exists(string(token)))

		// Invalidating again is not an error.
		err = st.store.Invalidate(context.Background(), identity, token)
		require.NoError(t, err)
	})

	t.Run("ok, replaced token leaves newer session alone", func(t *testing.T) {
		st := newStoreTest(t)

		old, err := st.store.Issue(context.Background(), identity)
		require.NoError(t, err)

		current, err := st.store.Issue(context.Background(), identity)
		require.NoError(t, err)

		err = st.store.Invalidate(context.Background(), identity, old)
		require.NoError(t, err)

		require.False(t, st.mr.Exists(string(old)))
		st.assertOnlySession(t, current)
	})

	t.Run("ok, empty token removes current session", func(t *testing.T) {
		st := newStoreTest(t)

		token, err := st.store.Issue(context.Background(), identity)
		require.NoError(t, err)

		err = st.store.Invalidate(context.Background(), identity, "")
		require.NoError(t, err)

		require.Empty(t, st.mr.Keys())

		// Nothing left to remove.
		err = st.store.Invalidate(context.Background(), identity, "")
		require.NoError(t, err)
		require.False(t, st.mr.Exists(string(token)))
	})

	t.Run("fail, cache unavailable", func(t *testing.T) {
		st := newStoreTest(t)
		st.mr.Close()

		err := st.store.Invalidate(context.Background(), identity, "abc")
		require.Error(t, err)
	})
}

func Test_Store_Reissue(t *testing.T) {
	t.Run("ok, replaces current session", func(t *testing.T) {
		st := newStoreTest(t)

		old, err := st.store.Issue(context.Background(), identity)
		require.NoError(t, err)

		st.mr.FastForward(11 * time.Hour)

		next, err := st.store.Reissue(context.Background(), identity, old)
		require.NoError(t, err)
		require.NotEqual(t, old, next)

		st.assertOnlySession(t, next)
		require.Equal(t, 12*time.Hour, st.mr.TTL(identity))
	})

	t.Run("ok, empty old token replaces any session", func(t *testing.T) {
		st := newStoreTest(t)

		old, err := st.store.Issue(context.Background(), identity)
		require.NoError(t, err)

		next, err := st.store.Reissue(context.Background(), identity, "")
		require.NoError(t, err)

		require.False(t, st.mr.Exists(string(old)))
		st.assertOnlySession(t, next)
	})

	t.Run("ok, no session yet", func(t *testing.T) {
		st := newStoreTest(t)

		next, err := st.store.Reissue(context.Background(), identity, "")
		require.NoError(t, err)

		st.assertOnlySession(t, next)
	})

	t.Run("ok, old session already expired", func(t *testing.T) {
		st := newStoreTest(t)

		old, err := st.store.Issue(context.Background(), identity)
		require.NoError(t, err)

		st.mr.FastForward(13 * time.Hour)

		next, err := st.store.Reissue(context.Background(), identity, old)
		require.NoError(t, err)

		st.assertOnlySession(t, next)
	})

	t.Run("ok, stale token returns the current session", func(t *testing.T) {
		st := newStoreTest(t)

		old, err := st.store.Issue(context.Background(), identity)
		require.NoError(t, err)

		current, err := st.store.Reissue(context.Background(), identity, old)
		require.NoError(t, err)

		got, err := st.store.Reissue(context.Background(), identity, old)
		require.NoError(t, err)
		require.Equal(t, current, got)

		st.assertOnlySession(t, current)
	})

	t.Run("ok, concurrent reissues agree on one session", func(t *testing.T) {
		st := newStoreTest(t)

		old, err := st.store.Issue(context.Background(), identity)
		require.NoError(t, err)

		const n = 10
		results := make([]krypto.Token, n)
		errs := make([]error, n)

		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results[i], errs[i] = st.store.Reissue(context.Background(), identity, old)
			}(i)
		}
		wg.Wait()

		for i := 0; i < n; i++ {
			require.NoError(t, errs[i])
			require.Equal(t, results[0], results[i])
		}

		st.assertOnlySession(t, results[0])
	})
}

type storeTest struct {
	mr    *miniredis.Miniredis
	store *sessions.Store
}

func newStoreTest(t *testing.T) *storeTest {
	t.Helper()

	mr := miniredis.RunT(t)

	client := redis.NewClient(&redis.Options{
		Addr:       mr.Addr(),
		MaxRetries: -1,
	})
	t.Cleanup(func() { _ = client.Close() })

	store, err := sessions.New(client, sessions.DefaultConfig())
	require.NoError(t, err)

	return &storeTest{
		mr:    mr,
		store: store,
	}
}

func (st *storeTest) get(key string) string {
	v, err := st.mr.Get(key)
	if err != nil {
		return ""
	}
	return v
}

// assertOnlySession asserts the cache holds exactly the session pair of token.
func (st *storeTest) assertOnlySession(t *testing.T, token krypto.Token) {
	t.Helper()

	require.ElementsMatch(t, []string{identity, string(token)}, st.mr.Keys())
	require.Equal(t, identity, st.get(string(token)))
	require.Equal(t, string(token), st.get(identity))
}
