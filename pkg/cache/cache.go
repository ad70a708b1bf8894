// Package cache stores solve and sweep results by content key.
//
// This package defines the [Cache] interface for byte storage with
// per-entry TTLs, with implementations for different deployments:
//   - [FileCache]: one JSON file per entry below a directory, for the CLI
//   - [RedisCache]: Redis with native expiry, for shared deployments of the
//     HTTP API
//   - [NullCache]: stores nothing, for --no-cache and tests
//
// # Keys
//
// Keys are built by a [Keyer] from a hash of the canonical model JSON
// ([Hash]) and the options that influence the result, so identical requests
// hit the same entry regardless of which process computed it. A
// [ScopedKeyer] prefixes every key when several clients share one backend.
//
// # Errors
//
// Backends report transport failures wrapped in [ErrNetwork]. [GetJSON]
// turns absent and undecodable entries into [ErrCacheMiss], so callers
// recompute instead of failing. Transient failures can be marked with
// [Retryable] and retried with [RetryWithBackoff].
//
// # Usage
//
//	c, err := cache.NewFileCache(dir)
//	if err != nil {
//	    return err
//	}
//	defer c.Close()
//
//	key := cache.NewDefaultKeyer().SweepKey(cache.Hash(modelJSON), opts)
//	var res sweep.Result
//	if err := cache.GetJSON(ctx, c, key, &res); err != nil {
//	    // compute res, then
//	    _ = cache.SetJSON(ctx, c, key, res, cache.TTLSweep)
//	}
package cache

import (
	"context"
	"encoding/json"
	"time"
)

// Default entry lifetimes. Results are deterministic in their key, so the
// TTLs only bound disk and memory use.
const (
	TTLSolve = 24 * time.Hour
	TTLLoads = 24 * time.Hour
	TTLSweep = 7 * 24 * time.Hour
)

// Cache is a byte store with optional expiry.
//
// Entries are opaque bytes; [GetJSON] and [SetJSON] handle encoding.
type Cache interface {
	// Get returns the stored data and whether the key was present.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores data under key. A zero ttl never expires.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error

	// Delete removes key. Missing keys are not an error.
	Delete(ctx context.Context, key string) error

	// Close releases the backend.
	Close() error
}

// GetJSON decodes the entry under key into v.
// It returns ErrCacheMiss when the key is absent or the entry does not
// decode, for example after the result type gained a field. Backend errors
// are returned unchanged.
func GetJSON(ctx context.Context, c Cache, key string, v any) error {
	data, hit, err := c.Get(ctx, key)
	if err != nil {
		return err
	}
	if !hit {
		return ErrCacheMiss
	}
	if err := json.Unmarshal(data, v); err != nil {
		return ErrCacheMiss
	}
	return nil
}

// SetJSON encodes v as JSON and stores it under key for ttl.
// A zero ttl never expires.
func SetJSON(ctx context.Context, c Cache, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.Set(ctx, key, data, ttl)
}
