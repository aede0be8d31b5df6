// Package locks provides per-entity mutual exclusion for reconciliation writers
package locks

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// ErrNotAcquired is returned when a lock cannot be acquired within the wait timeout
var ErrNotAcquired = errors.New("lock not acquired")

// Locker acquires a set of entity locks. Keys are taken in sorted order so
// two writers locking overlapping sets cannot deadlock.
type Locker interface {
	Lock(ctx context.Context, keys ...string) (unlock func(), err error)
}

// Keys sorts and dedupes lock keys, dropping empty ones
func Keys(keys ...string) []string {
	seen := make(map[string]bool, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Local is an in-process keyed mutex
type Local struct {
	mu      sync.Mutex
	entries map[string]*localEntry
	wait    time.Duration
}

type localEntry struct {
	ch   chan struct{}
	refs int
}

// NewLocal creates a keyed mutex. wait bounds how long Lock blocks per key.
func NewLocal(wait time.Duration) *Local {
	return &Local{
		entries: make(map[string]*localEntry),
		wait:    wait,
	}
}

func (l *Local) entry(key string) *localEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[key]
	if !ok {
		e = &localEntry{ch: make(chan struct{}, 1)}
		l.entries[key] = e
	}
	e.refs++
	return e
}

func (l *Local) done(key string, e *localEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.entries, key)
	}
}

func (l *Local) Lock(ctx context.Context, keys ...string) (func(), error) {
	keys = Keys(keys...)
	held := make([]string, 0, len(keys))
	entries := make([]*localEntry, 0, len(keys))

	unlock := func() {
		for i := len(held) - 1; i >= 0; i-- {
			<-entries[i].ch
			l.done(held[i], entries[i])
		}
	}

	for _, key := range keys {
		e := l.entry(key)
		timer := time.NewTimer(l.wait)
		select {
		case e.ch <- struct{}{}:
			timer.Stop()
			held = append(held, key)
			entries = append(entries, e)
		case <-timer.C:
			l.done(key, e)
			unlock()
			return nil, ErrNotAcquired
		case <-ctx.Done():
			timer.Stop()
			l.done(key, e)
			unlock()
			return nil, ctx.Err()
		}
	}

	var once sync.Once
	return func() { once.Do(unlock) }, nil
}
