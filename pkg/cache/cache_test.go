package cache

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestNullCache(t *testing.T) {
	ctx := context.Background()
	c := NewNullCache()
	defer c.Close()

	if err := c.Set(ctx, "key", []byte("value"), time.Hour); err != nil {
		t.Errorf("Set error: %v", err)
	}
	data, hit, err := c.Get(ctx, "key")
	if err != nil || hit || data != nil {
		t.Errorf("Get = %q, %v, %v, want miss", data, hit, err)
	}
	if err := c.Delete(ctx, "key"); err != nil {
		t.Errorf("Delete error: %v", err)
	}
}

func TestFileCache(t *testing.T) {
	ctx := context.Background()
	c, err := NewFileCache(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	if _, hit, _ := c.Get(ctx, "sweep:a"); hit {
		t.Error("empty cache should miss")
	}
	if err := c.Set(ctx, "sweep:a", []byte("frames"), 0); err != nil {
		t.Fatal(err)
	}
	data, hit, err := c.Get(ctx, "sweep:a")
	if err != nil || !hit || string(data) != "frames" {
		t.Errorf("Get = %q, %v, %v, want frames", data, hit, err)
	}

	if err := c.Delete(ctx, "sweep:a"); err != nil {
		t.Fatal(err)
	}
	if _, hit, _ := c.Get(ctx, "sweep:a"); hit {
		t.Error("deleted key should miss")
	}
	if err := c.Delete(ctx, "sweep:a"); err != nil {
		t.Errorf("deleting a missing key: %v", err)
	}
}

func TestFileCacheExpiry(t *testing.T) {
	ctx := context.Background()
	c, _ := NewFileCache(t.TempDir())
	if err := c.Set(ctx, "k", []byte("v"), time.Nanosecond); err != nil {
		t.Fatal(err)
	}
	time.Sleep(time.Millisecond)
	if _, hit, _ := c.Get(ctx, "k"); hit {
		t.Error("expired entry should miss")
	}
}

func TestFileCacheClear(t *testing.T) {
	ctx := context.Background()
	c, _ := NewFileCache(t.TempDir())
	for _, k := range []string{"a", "b", "c"} {
		c.Set(ctx, k, []byte(k), 0)
	}
	n, err := c.Clear()
	if err != nil || n != 3 {
		t.Errorf("Clear = %d, %v, want 3", n, err)
	}
	if _, hit, _ := c.Get(ctx, "a"); hit {
		t.Error("cleared entry should miss")
	}
}

func TestJSONHelpers(t *testing.T) {
	ctx := context.Background()
	c, _ := NewFileCache(t.TempDir())

	type payload struct{ N int }
	var got payload
	if err := GetJSON(ctx, c, "p", &got); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("GetJSON on empty cache = %v, want ErrCacheMiss", err)
	}
	if err := SetJSON(ctx, c, "p", payload{N: 7}, 0); err != nil {
		t.Fatal(err)
	}
	if err := GetJSON(ctx, c, "p", &got); err != nil || got.N != 7 {
		t.Errorf("GetJSON = %+v, %v, want N=7", got, err)
	}

	c.Set(ctx, "bad", []byte("{"), 0)
	if err := GetJSON(ctx, c, "bad", &got); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("GetJSON on corrupt entry = %v, want ErrCacheMiss", err)
	}
}

func TestHash(t *testing.T) {
	h1 := Hash([]byte("hello"))
	if h1 != Hash([]byte("hello")) {
		t.Error("Hash should be deterministic")
	}
	if h1 == Hash([]byte("world")) {
		t.Error("different inputs should produce different hashes")
	}
	if len(h1) != 64 {
		t.Errorf("len(Hash) = %d, want 64", len(h1))
	}
}

func TestDefaultKeyer(t *testing.T) {
	k := NewDefaultKeyer()

	s1 := k.SweepKey("abc", SweepKeyOpts{End: 90, Step: 10})
	s2 := k.SweepKey("abc", SweepKeyOpts{End: 90, Step: 5})
	if s1 == s2 {
		t.Error("different sweep options should produce different keys")
	}
	if s1 != k.SweepKey("abc", SweepKeyOpts{End: 90, Step: 10}) {
		t.Error("SweepKey should be deterministic")
	}
	if !strings.HasPrefix(s1, "sweep:") {
		t.Errorf("SweepKey = %q, want sweep: prefix", s1)
	}

	if k.SolveKey("abc", SolveKeyOpts{}) == k.SolveKey("abc", SolveKeyOpts{Accurate: true}) {
		t.Error("accurate and projection solves should key differently")
	}
	if k.LoadsKey("abc") == k.LoadsKey("abd") {
		t.Error("different models should key differently")
	}
}

func TestScopedKeyer(t *testing.T) {
	inner := NewDefaultKeyer()
	scoped := NewScopedKeyer(inner, "api:")
	if got, want := scoped.LoadsKey("m"), "api:"+inner.LoadsKey("m"); got != want {
		t.Errorf("LoadsKey = %q, want %q", got, want)
	}
	if got := scoped.SweepKey("m", SweepKeyOpts{}); !strings.HasPrefix(got, "api:sweep:") {
		t.Errorf("SweepKey = %q, want api:sweep: prefix", got)
	}

	nilInner := NewScopedKeyer(nil, "x:")
	if got, want := nilInner.SolveKey("m", SolveKeyOpts{}), "x:"+inner.SolveKey("m", SolveKeyOpts{}); got != want {
		t.Errorf("nil inner SolveKey = %q, want %q", got, want)
	}
}

func TestRetryableError(t *testing.T) {
	if Retryable(nil) != nil {
		t.Error("Retryable(nil) should return nil")
	}
	err := Retryable(ErrNetwork)
	if !IsRetryable(err) {
		t.Error("IsRetryable should return true for wrapped error")
	}
	if !errors.Is(err, ErrNetwork) {
		t.Error("wrapped error should unwrap to ErrNetwork")
	}
	if err.Error() != ErrNetwork.Error() {
		t.Errorf("Error() = %q, want %q", err.Error(), ErrNetwork.Error())
	}
	if IsRetryable(ErrCacheMiss) {
		t.Error("IsRetryable should return false for unwrapped error")
	}
}

func TestRetry(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name      string
		failures  int
		retryable bool
		wantCalls int
		wantErr   bool
	}{
		{"success", 0, true, 1, false},
		{"non-retryable stops", 5, false, 1, true},
		{"recovers", 2, true, 3, false},
		{"gives up", 5, true, 3, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := retry(ctx, 3, time.Millisecond, func() error {
				calls++
				if calls > tt.failures {
					return nil
				}
				if tt.retryable {
					return Retryable(ErrNetwork)
				}
				return ErrCacheMiss
			})
			if calls != tt.wantCalls {
				t.Errorf("calls = %d, want %d", calls, tt.wantCalls)
			}
			if (err != nil) != tt.wantErr {
				t.Errorf("err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRetryWithBackoffContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := RetryWithBackoff(ctx, func() error {
		return Retryable(ErrNetwork)
	})
	if err != context.Canceled {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
