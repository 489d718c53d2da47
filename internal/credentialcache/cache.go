// Package credentialcache implements the process-wide, thread-safe,
// self-pruning cache of token-exchange records. Expiry is driven by the
// credential's own embedded timestamp rather than a TTL set at insertion;
// concurrent misses on the same fingerprint are coalesced into a single
// upstream exchange.
package credentialcache

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/vmware-tanzu/pinniped-proxy/internal/concierge"
)

// DefaultCapacity is the bound used when a Cache is constructed with
// capacity <= 0.
const DefaultCapacity = 5

// Fingerprint is the cache key: the bearer token plus the authenticator
// reference. The namespace, API suffix, and response status are
// deliberately excluded — two requests with an equal Fingerprint are
// considered the same exchange regardless of response state.
type Fingerprint struct {
	Token                 string
	AuthenticatorAPIGroup string
	AuthenticatorKind     string
	AuthenticatorName     string
}

// Record is the cached result of one exchange: the credential from the
// concierge's response status. The request spec it answers is the
// Fingerprint it is stored under.
type Record struct {
	Credential *concierge.ClusterCredential
}

// Fresh reports whether r carries a credential whose expiry is strictly
// after now. A nil Record, or one without a credential or without an
// expiry, is always expired.
func (r *Record) Fresh(now time.Time) bool {
	if r == nil || r.Credential == nil {
		return false
	}
	return r.Credential.ExpirationTimestamp.Time.After(now)
}

// NewFingerprint builds the cache key for a given token and authenticator
// reference triple.
func NewFingerprint(token, authenticatorAPIGroup, authenticatorKind, authenticatorName string) Fingerprint {
	return Fingerprint{
		Token:                 token,
		AuthenticatorAPIGroup: authenticatorAPIGroup,
		AuthenticatorKind:     authenticatorKind,
		AuthenticatorName:     authenticatorName,
	}
}

// ExchangeFunc performs the actual concierge exchange for a cache miss.
type ExchangeFunc func(ctx context.Context) (*concierge.ClusterCredential, error)

// Cache is a bounded, reader-writer-guarded mapping from Fingerprint to
// Record, with server-issued-expiry pruning piggy-backed on every insert
// and singleflight coalescing of concurrent misses.
type Cache struct {
	mu       sync.RWMutex
	capacity int
	entries  map[Fingerprint]*Record

	group singleflight.Group
}

// New creates a Cache bounded at capacity entries (DefaultCapacity if
// capacity <= 0).
func New(capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Cache{
		capacity: capacity,
		entries:  make(map[Fingerprint]*Record, capacity),
	}
}

// Get performs the read-side contract: it returns the cached record only
// if it is still fresh. An expired or absent entry is reported as a miss
// without mutating the cache — deletion of expired entries is a writer's
// responsibility, performed during the next insert's prune.
func (c *Cache) Get(fp Fingerprint) (*concierge.ClusterCredential, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	rec, ok := c.entries[fp]
	if !ok || !rec.Fresh(time.Now()) {
		return nil, false
	}
	return rec.Credential, true
}

// GetOrExchange returns a fresh cached credential for fp if one exists;
// otherwise it calls exchange exactly once across all concurrent callers
// sharing fp, stores the result on success, and prunes the cache of any
// now-expired entries in the same critical section. A failed exchange is
// never cached, so the next caller retries.
//
// A caller whose own ctx is cancelled returns immediately with ctx.Err()
// instead of waiting for the shared exchange to finish. The exchange runs
// with the starting caller's context values but without its cancellation,
// so it keeps running for any other waiter still attached to the same key
// and its result is cached on success.
func (c *Cache) GetOrExchange(ctx context.Context, fp Fingerprint, exchange ExchangeFunc) (*concierge.ClusterCredential, error) {
	if cred, ok := c.Get(fp); ok {
		return cred, nil
	}

	// singleflight.Group keys on a string; Fingerprint is a small,
	// comparable struct so fmt.Sprintf would also work, but the string
	// concatenation here avoids reflection on a per-request hot path.
	key := fp.Token + "|" + fp.AuthenticatorAPIGroup + "|" + fp.AuthenticatorKind + "|" + fp.AuthenticatorName

	resultCh := c.group.DoChan(key, func() (interface{}, error) {
		// Re-check under the singleflight key: another goroutine may
		// have populated the cache between our miss above and winning
		// the Do race.
		if cred, ok := c.Get(fp); ok {
			return cred, nil
		}

		cred, err := exchange(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}

		c.insert(fp, &Record{Credential: cred})
		return cred, nil
	})

	select {
	case res := <-resultCh:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*concierge.ClusterCredential), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// insert writes the new record and, in the same exclusive-lock critical
// section, prunes every entry that is expired as of the moment the lock
// is held — a pure in-memory fold that never suspends.
func (c *Cache) insert(fp Fingerprint, rec *Record) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[fp] = rec

	now := time.Now()
	for k, v := range c.entries {
		if !v.Fresh(now) {
			delete(c.entries, k)
		}
	}

	// The bound is advisory against unbounded growth from distinct
	// fingerprints that haven't expired yet; evict an arbitrary entry
	// (map iteration order is unspecified, which is acceptable since
	// capacity is a soft cap, not a correctness requirement).
	for len(c.entries) > c.capacity {
		for k := range c.entries {
			delete(c.entries, k)
			break
		}
	}
}

// Len reports the number of entries currently held, for tests.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
