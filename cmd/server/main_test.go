package main

import (
	"bytes"
	"context"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

const (
	// baseURL is used to identify the scheme, host and port of the test server.
	baseURL = "http://localhost:8888"
	// readyURL is requested to see if the server is available. Any response will do.
	readyURL = baseURL + "/api/v1/users"

	// httpClientTimeout is the timeout for the http client to wait for a response.
	httpClientTimeout = 500 * time.Millisecond

	// tryServingDuration is how long we check try to see if the server is available.
	tryServingDuration = 5 * time.Second
)

func Test_Run(t *testing.T) {
	t.Run("ok, says it started then stopped http server", testEnv(func(t *testing.T) {
		out := newBuffer()

		ctx := cancelOnceServed(t, readyURL)

		got := run(ctx, out)
		want := 0
		if got != want {
			t.Fatalf("got exit code %d, want %d. logs:\n%s", got, want, out.String())
		}

		assertLog(t, out.String(),
			"starting http server",
			"stopping http server",
			"http server stopped successfully",
		)
	}))

	t.Run("ok, says it ran migrations", testEnv(func(t *testing.T) {
		out := newBuffer()

		ctx := cancelOnceServed(t, readyURL)

		got := run(ctx, out)
		want := 0
		if got != want {
			t.Fatalf("got exit code %d, want %d. logs:\n%s", got, want, out.String())
		}

		assertLog(t, out.String(),
			"attempting to migrate database",
			"migration ran",
			"database is up to date",
		)
	}))

	t.Run("ok, did not say it ran migrations when DB_MIGRATE=false", testEnv(func(t *testing.T) {
		envForTest(t, "DB_MIGRATE", "false")

		out := newBuffer()

		ctx := cancelOnceServed(t, readyURL)

		got := run(ctx, out)
		want := 0
		if got != want {
			t.Fatalf("got exit code %d, want %d. logs:\n%s", got, want, out.String())
		}

		if strings.Contains(out.String(), "attempting to migrate database") {
			t.Errorf("expected not to run migrations, but did")
		}
	}))

	t.Run("fail, invalid environment", testEnv(func(t *testing.T) {
		envForTest(t, "HTTP_READ_TIMEOUT", "-1ms")

		out := newBuffer()

		// if the run function somehow ends up starting the http server, stop after a timeout.
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		got := run(ctx, out)
		want := 1
		if got != want {
			t.Fatalf("got exit code %d, want %d. logs:\n%s", got, want, out.String())
		}

		assertLog(t, out.String(), "failed to get config from environment")
	}))

	t.Run("fail, redis unreachable", testEnv(func(t *testing.T) {
		mr := miniredis.RunT(t)
		envForTest(t, "REDIS_URL", "redis://"+mr.Addr())
		mr.Close()

		out := newBuffer()

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		got := run(ctx, out)
		want := 1
		if got != want {
			t.Fatalf("got exit code %d, want %d. logs:\n%s", got, want, out.String())
		}

		assertLog(t, out.String(), "failed to reach redis")
	}))
}

// safeBuffer is a buffer that is safe for concurrent use.
type safeBuffer struct {
	mutex  *sync.Mutex
	buffer *bytes.Buffer
}

func newBuffer() *safeBuffer {
	return &safeBuffer{
		mutex:  &sync.Mutex{},
		buffer: &bytes.Buffer{},
	}
}

func (sb *safeBuffer) Write(p []byte) (n int, err error) {
	sb.mutex.Lock()
	defer sb.mutex.Unlock()
	return sb.buffer.Write(p)
}

func (sb *safeBuffer) String() string {
	sb.mutex.Lock()
	defer sb.mutex.Unlock()
	return sb.buffer.String()
}

// assertLog checks that the log contains the wanted strings in
// order. Non-matching parts in log are ignored.
func assertLog(t *testing.T, log string, want ...string) {
	t.Helper()

	for i, line := range want {
		x := strings.Index(log, line)
		if x == -1 {
			t.Errorf("log does not contain line in pos %d: %q", i, line)
			return
		}

		log = log[x+len(line):]
	}
}

// cancelOnceServed returns a context that is canceled after the given url responded.
func cancelOnceServed(t *testing.T, url string) context.Context {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), tryServingDuration)

	result := make(chan error, 1)

	t.Cleanup(func() {
		err := <-result
		if err != nil {
			t.Fatalf("error waiting for server: %v", err)
		}
	})

	go func() {
		err := waitForServing(ctx, url)
		result <- err
		cancel()
	}()

	return ctx
}

// waitForServing polls url until the server responds, whatever the status.
func waitForServing(ctx context.Context, url string) error {
	httpClient := &http.Client{
		Timeout: httpClientTimeout,
	}

	ticks := time.NewTicker(httpClientTimeout / 5)
	defer ticks.Stop()

	for {
		select {
		case <-ticks.C:
			res, err := httpClient.Get(url)
			if err != nil {
				continue
			}
			_ = res.Body.Close()
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// testEnv returns a test function that ensures the environment is ready to run the app.
// Every test gets its own database file and redis server.
func testEnv(testFunc func(t *testing.T)) func(t *testing.T) {
	return func(t *testing.T) {
		t.Helper()

		for key, val := range requiredEnvValues() {
			envForTest(t, key, val)
		}

		mr := miniredis.RunT(t)
		envForTest(t, "REDIS_URL", "redis://"+mr.Addr())
		envForTest(t, "DB_FILE", filepath.Join(t.TempDir(), "accountd-unit-test.db"))
		envForTest(t, "HTTP_ADDR", "localhost:8888")

		testFunc(t)
	}
}
