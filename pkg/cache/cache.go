// Package cache is the keyed server-state cache: every remote read
// goes through it, concurrent reads of the same key collapse into one
// fetch, fresh data is served without a network call, and stale data
// is served while a background refetch runs. Mutations invalidate key
// prefixes to keep cached reads consistent with server state.
package cache

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultStaleTime is how long fetched data is considered fresh.
	DefaultStaleTime = 5 * time.Minute

	// DefaultGCGrace is how long an unused entry survives before the
	// sweeper evicts it.
	DefaultGCGrace = 10 * time.Minute

	gcSweepInterval = time.Minute
)

// Status describes the lifecycle of a cache entry.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Key identifies a logical query. Keys are path-style
// ("books/list/genre=Fiction") so mutations can invalidate whole
// families by prefix.
type Key string

// HasPrefix reports whether k falls under prefix, respecting path
// segment boundaries.
func (k Key) HasPrefix(prefix Key) bool {
	if k == prefix {
		return true
	}

	return strings.HasPrefix(string(k), string(prefix)+"/")
}

// Fetcher loads the data for a key from the network.
type Fetcher func(ctx context.Context) (any, error)

// Options tune a single query.
type Options struct {
	// StaleTime overrides the cache default. Zero means "use the
	// default"; set AlwaysStale to disable reuse entirely.
	StaleTime time.Duration

	// AlwaysStale disables serving from cache: every read triggers a
	// fetch (still deduplicated against concurrent readers).
	AlwaysStale bool

	// RefetchInterval, when positive, refetches on a fixed period for
	// as long as the key has subscribers. The dashboard uses 30s.
	RefetchInterval time.Duration

	// Disabled short-circuits the query: no network call, status
	// stays idle. Used for detail queries with no usable id.
	Disabled bool
}

// Result is what a query observer sees.
type Result struct {
	Data      any
	Err       error
	Status    Status
	FetchedAt time.Time
	Stale     bool
}

type subscriber struct {
	fn     func(Result)
	closed atomic.Bool
}

type entry struct {
	data      any
	err       error
	status    Status
	fetchedAt time.Time
	stale     bool

	fetcher Fetcher
	opts    Options

	subscribers map[int]*subscriber
	nextSubID   int
	lastUsed    time.Time
}

func (e *entry) result() Result {
	return Result{
		Data:      e.data,
		Err:       e.err,
		Status:    e.status,
		FetchedAt: e.fetchedAt,
		Stale:     e.stale,
	}
}

// Config tunes the cache.
type Config struct {
	StaleTime time.Duration
	GCGrace   time.Duration
}

// Cache is the process-wide server-state cache. All entry mutations
// happen under one mutex, so they are atomic with respect to each
// other; only fetches themselves overlap.
type Cache struct {
	log logrus.FieldLogger

	mu      sync.Mutex
	entries map[Key]*entry

	group singleflight.Group

	staleTime time.Duration
	gcGrace   time.Duration

	done chan struct{}
	wg   sync.WaitGroup
}

// New creates a cache. Zero config fields fall back to defaults.
func New(log logrus.FieldLogger, cfg Config) *Cache {
	if cfg.StaleTime == 0 {
		cfg.StaleTime = DefaultStaleTime
	}

	if cfg.GCGrace == 0 {
		cfg.GCGrace = DefaultGCGrace
	}

	return &Cache{
		log:       log.WithField("component", "cache"),
		entries:   make(map[Key]*entry),
		staleTime: cfg.StaleTime,
		gcGrace:   cfg.GCGrace,
		done:      make(chan struct{}),
	}
}

// Start launches the garbage-collection sweeper.
func (c *Cache) Start(ctx context.Context) {
	c.wg.Add(1)

	go func() {
		defer c.wg.Done()

		ticker := time.NewTicker(gcSweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				c.sweep()
			case <-c.done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop halts the sweeper and any interval refetchers.
func (c *Cache) Stop() {
	close(c.done)
	c.wg.Wait()
}

// Query reads key through the cache. Fresh data comes back without a
// network call; stale data comes back immediately while a background
// refetch runs; missing data blocks on the fetch. Concurrent queries
// for the same key share one fetch.
func (c *Cache) Query(ctx context.Context, key Key, fetcher Fetcher, opts Options) Result {
	if opts.Disabled {
		return Result{Status: StatusIdle}
	}

	now := time.Now()

	c.mu.Lock()

	e := c.ensureEntry(key, fetcher, opts)
	e.lastUsed = now

	if e.status == StatusSuccess || (e.status == StatusError && e.data != nil) {
		fresh := !e.stale && !opts.AlwaysStale && now.Sub(e.fetchedAt) < c.entryStaleTime(e)
		res := e.result()
		c.mu.Unlock()

		if fresh {
			return res
		}

		// Stale-while-revalidate: serve the last value, refetch in
		// the background.
		res.Stale = true
		c.refetchAsync(key)

		return res
	}

	e.status = StatusLoading
	c.mu.Unlock()

	return c.fetch(ctx, key, fetcher)
}

// Invalidate marks every entry under prefix as stale and kicks off a
// refetch for the ones that currently have subscribers.
func (c *Cache) Invalidate(prefix Key) {
	c.mu.Lock()

	var refetch []Key

	for key, e := range c.entries {
		if !key.HasPrefix(prefix) {
			continue
		}

		e.stale = true

		if len(e.subscribers) > 0 {
			refetch = append(refetch, key)
		}
	}

	c.mu.Unlock()

	for _, key := range refetch {
		c.refetchAsync(key)
	}
}

// Clear drops every entry. Used on sign-out.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.entries = make(map[Key]*entry)
	c.mu.Unlock()
}

// Subscribe registers fn to observe key. The cache owns the
// scheduling: fn fires after every fetch for the key, and when the
// options carry a RefetchInterval the cache refetches on that period
// until the subscription is released. The returned function
// unsubscribes; after it returns, fn is never called again.
func (c *Cache) Subscribe(key Key, fetcher Fetcher, opts Options, fn func(Result)) func() {
	sub := &subscriber{fn: fn}

	c.mu.Lock()

	e := c.ensureEntry(key, fetcher, opts)
	e.lastUsed = time.Now()
	id := e.nextSubID
	e.nextSubID++
	e.subscribers[id] = sub

	c.mu.Unlock()

	// Initial load.
	c.refetchAsync(key)

	stop := make(chan struct{})

	if opts.RefetchInterval > 0 {
		c.wg.Add(1)

		go func() {
			defer c.wg.Done()

			ticker := time.NewTicker(opts.RefetchInterval)
			defer ticker.Stop()

			for {
				select {
				case <-ticker.C:
					c.refetchAsync(key)
				case <-stop:
					return
				case <-c.done:
					return
				}
			}
		}()
	}

	var once sync.Once

	return func() {
		once.Do(func() {
			sub.closed.Store(true)
			close(stop)

			c.mu.Lock()
			if e, ok := c.entries[key]; ok {
				delete(e.subscribers, id)
			}
			c.mu.Unlock()
		})
	}
}

// Peek returns the current entry state without triggering any fetch.
func (c *Cache) Peek(key Key) (Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return Result{Status: StatusIdle}, false
	}

	return e.result(), true
}

// ensureEntry returns the entry for key, creating it on first use.
// Caller holds c.mu.
func (c *Cache) ensureEntry(key Key, fetcher Fetcher, opts Options) *entry {
	e, ok := c.entries[key]
	if !ok {
		e = &entry{
			status:      StatusIdle,
			fetcher:     fetcher,
			opts:        opts,
			subscribers: make(map[int]*subscriber),
		}
		c.entries[key] = e
	}

	// The latest fetcher and options win; identical keys denote the
	// same logical request.
	e.fetcher = fetcher
	e.opts = opts

	return e
}

// entryStaleTime resolves the staleness window for an entry.
// Caller holds c.mu.
func (c *Cache) entryStaleTime(e *entry) time.Duration {
	if e.opts.StaleTime > 0 {
		return e.opts.StaleTime
	}

	return c.staleTime
}

// fetch runs the deduplicated fetch for key and folds the outcome
// back into the entry.
func (c *Cache) fetch(ctx context.Context, key Key, fetcher Fetcher) Result {
	data, err, _ := c.group.Do(string(key), func() (any, error) {
		return fetcher(ctx)
	})

	return c.finish(key, data, err)
}

// refetchAsync triggers a fire-and-forget background fetch for key.
// Stale in-flight fetches completing late populate the cache
// harmlessly; the singleflight group keeps them collapsed.
func (c *Cache) refetchAsync(key Key) {
	c.mu.Lock()

	e, ok := c.entries[key]
	if !ok {
		c.mu.Unlock()

		return
	}

	fetcher := e.fetcher
	c.mu.Unlock()

	c.wg.Add(1)

	go func() {
		defer c.wg.Done()

		data, err, _ := c.group.Do(string(key), func() (any, error) {
			return fetcher(context.Background())
		})

		c.finish(key, data, err)
	}()
}

// finish records a fetch outcome and notifies subscribers. A failed
// fetch keeps the previous data for display continuity.
func (c *Cache) finish(key Key, data any, err error) Result {
	c.mu.Lock()

	e, ok := c.entries[key]
	if !ok {
		// Entry was cleared while the fetch was in flight.
		c.mu.Unlock()

		return Result{Data: data, Err: err, Status: statusFor(err)}
	}

	if err != nil {
		e.err = err
		e.status = StatusError
	} else {
		e.data = data
		e.err = nil
		e.status = StatusSuccess
		e.fetchedAt = time.Now()
		e.stale = false
	}

	res := e.result()

	subs := make([]*subscriber, 0, len(e.subscribers))
	for _, sub := range e.subscribers {
		subs = append(subs, sub)
	}

	c.mu.Unlock()

	for _, sub := range subs {
		if !sub.closed.Load() {
			sub.fn(res)
		}
	}

	return res
}

// sweep evicts entries that have no subscribers and have not been
// used within the grace period.
func (c *Cache) sweep() {
	cutoff := time.Now().Add(-c.gcGrace)

	c.mu.Lock()

	for key, e := range c.entries {
		if len(e.subscribers) == 0 && e.lastUsed.Before(cutoff) {
			delete(c.entries, key)
		}
	}

	c.mu.Unlock()
}

func statusFor(err error) Status {
	if err != nil {
		return StatusError
	}

	return StatusSuccess
}
