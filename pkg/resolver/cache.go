package resolver

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/time/rate"
)

// Cached wraps a Resolver with a LevelDB-backed lookup cache, so that
// repeated runs over the same hostname lists (a common pattern when a
// set definition file is re-processed on a schedule) don't re-resolve
// every name. Entries expire after TTL; a zero TTL means entries never
// expire.
type Cached struct {
	Inner Resolver
	TTL   time.Duration

	db *leveldb.DB
	mu sync.RWMutex
}

// OpenCache opens or creates a hostname-resolution cache at path.
func OpenCache(path string, inner Resolver, ttl time.Duration) (*Cached, error) {
	db, err := leveldb.OpenFile(path, &opt.Options{Compression: opt.SnappyCompression})
	if err != nil {
		return nil, fmt.Errorf("open resolver cache: %w", err)
	}
	return &Cached{Inner: inner, TTL: ttl, db: db}, nil
}

// Close releases the underlying database handle.
func (c *Cached) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.db.Close()
}

type cacheEntry struct {
	Addrs      []uint32
	ResolvedAt int64
}

// Resolve serves a cached answer when present and unexpired, otherwise
// delegates to Inner and stores the result.
func (c *Cached) Resolve(ctx context.Context, hostname string) ([]uint32, error) {
	if addrs, ok := c.lookupCache(hostname); ok {
		return addrs, nil
	}

	addrs, err := c.Inner.Resolve(ctx, hostname)
	if err != nil {
		return nil, err
	}

	c.storeCache(hostname, addrs)
	return addrs, nil
}

func (c *Cached) lookupCache(hostname string) ([]uint32, bool) {
	c.mu.RLock()
	raw, err := c.db.Get([]byte(hostname), nil)
	c.mu.RUnlock()
	if err != nil {
		return nil, false
	}

	var entry cacheEntry
	if err := msgpack.Unmarshal(raw, &entry); err != nil {
		return nil, false
	}

	if c.TTL > 0 && time.Since(time.Unix(entry.ResolvedAt, 0)) > c.TTL {
		return nil, false
	}
	return entry.Addrs, true
}

func (c *Cached) storeCache(hostname string, addrs []uint32) {
	raw, err := msgpack.Marshal(cacheEntry{Addrs: addrs, ResolvedAt: nowUnix()})
	if err != nil {
		return
	}
	c.mu.Lock()
	_ = c.db.Put([]byte(hostname), raw, nil)
	c.mu.Unlock()
}

// nowUnix is split out so tests can stub resolution timestamps without
// reaching into the cache's internals.
var nowUnix = func() int64 { return time.Now().Unix() }

// ResolveAllConfig configures the bounded-concurrency, rate-limited
// batch resolution path used when a source file contains many hostname
// lines.
type ResolveAllConfig struct {
	Workers   int
	RateLimit float64 // lookups per second; 0 disables the limiter
	BurstSize int
}

// HostResult pairs one input hostname with its resolution outcome.
type HostResult struct {
	Hostname string
	Addrs    []uint32
	Err      error
}

// ResolveAll resolves every hostname in hosts concurrently, preserving
// input order in the returned slice. A failed lookup for one hostname
// does not prevent the others from completing.
func ResolveAll(ctx context.Context, r Resolver, hosts []string, cfg ResolveAllConfig) []HostResult {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.BurstSize <= 0 {
		cfg.BurstSize = cfg.Workers
	}

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.BurstSize)
	}

	results := make([]HostResult, len(hosts))
	sem := make(chan struct{}, cfg.Workers)
	var wg sync.WaitGroup

	for i, host := range hosts {
		wg.Add(1)
		go func(i int, host string) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				results[i] = HostResult{Hostname: host, Err: ctx.Err()}
				return
			}

			if limiter != nil {
				if err := limiter.Wait(ctx); err != nil {
					results[i] = HostResult{Hostname: host, Err: err}
					return
				}
			}

			addrs, err := r.Resolve(ctx, host)
			results[i] = HostResult{Hostname: host, Addrs: addrs, Err: err}
		}(i, host)
	}

	wg.Wait()
	return results
}
