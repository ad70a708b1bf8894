package cache

// ScopedKeyer wraps a Keyer with a prefix for namespace isolation.
// The HTTP API uses it to keep its entries apart from the CLI's when both
// share a Redis instance.
//
// Example usage:
//
//	// Keys of the HTTP API
//	apiKeyer := NewScopedKeyer(NewDefaultKeyer(), "api:")
//
//	// Keys of the CLI
//	cliKeyer := NewDefaultKeyer()
type ScopedKeyer struct {
	inner  Keyer
	prefix string
}

// NewScopedKeyer creates a keyer with a prefix.
// The prefix is prepended to all keys of inner, or of a DefaultKeyer when
// inner is nil.
func NewScopedKeyer(inner Keyer, prefix string) Keyer {
	if inner == nil {
		inner = NewDefaultKeyer()
	}
	return &ScopedKeyer{inner: inner, prefix: prefix}
}

// SolveKey generates a prefixed key for a solved pose.
func (k *ScopedKeyer) SolveKey(modelHash string, opts SolveKeyOpts) string {
	return k.prefix + k.inner.SolveKey(modelHash, opts)
}

// SweepKey generates a prefixed key for a sweep result.
func (k *ScopedKeyer) SweepKey(modelHash string, opts SweepKeyOpts) string {
	return k.prefix + k.inner.SweepKey(modelHash, opts)
}

// LoadsKey generates a prefixed key for a quasi-static report.
func (k *ScopedKeyer) LoadsKey(modelHash string) string {
	return k.prefix + k.inner.LoadsKey(modelHash)
}
