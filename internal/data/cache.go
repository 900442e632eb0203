package data

import (
	"sync"
	"time"

	"energy-dispatch/internal/analysis"
	"energy-dispatch/internal/results"

	"github.com/google/uuid"
)

// Run is a solved model kept for later retrieval through the API.
type Run struct {
	ID        string
	Name      string
	CreatedAt time.Time
	Results   *results.Results

	Violations []analysis.Violation
	Ledgers    map[string][]results.LedgerRow
	Elapsed    time.Duration
}

type runEntry struct {
	run       *Run
	expiresAt time.Time
}

// RunCache keeps solved runs in memory for a fixed time.
type RunCache struct {
	mu    sync.RWMutex
	store map[string]*runEntry
	ttl   time.Duration
	now   func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

// DefaultRunTTL applies when NewRunCache gets a non-positive ttl.
const DefaultRunTTL = time.Hour

// NewRunCache starts a cache whose entries expire after ttl. Close stops
// its cleanup goroutine.
func NewRunCache(ttl time.Duration) *RunCache {
	if ttl <= 0 {
		ttl = DefaultRunTTL
	}
	c := &RunCache{
		store: make(map[string]*runEntry),
		ttl:   ttl,
		now:   time.Now,
		stop:  make(chan struct{}),
	}
	go c.cleanup(cleanupInterval(ttl))
	return c
}

func cleanupInterval(ttl time.Duration) time.Duration {
	if ttl < 5*time.Minute {
		return ttl
	}
	return 5 * time.Minute
}

// Put stores run under a fresh uuid unless it already has an ID, and
// returns the ID.
func (c *RunCache) Put(run *Run) string {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = c.now()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.store[run.ID] = &runEntry{run: run, expiresAt: c.now().Add(c.ttl)}
	return run.ID
}

// Get retrieves a run if available and not expired.
func (c *RunCache) Get(id string) (*Run, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.store[id]
	if !ok || c.now().After(e.expiresAt) {
		return nil, false
	}
	return e.run, true
}

// Len counts stored runs, including expired ones not yet cleaned up.
func (c *RunCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.store)
}

// Clear removes all entries.
func (c *RunCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store = make(map[string]*runEntry)
}

// Close stops the cleanup goroutine. It is safe to call more than once.
func (c *RunCache) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *RunCache) cleanup(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.evictExpired()
		}
	}
}

func (c *RunCache) evictExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for id, e := range c.store {
		if now.After(e.expiresAt) {
			delete(c.store, id)
		}
	}
}
