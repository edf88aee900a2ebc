// Package lock serializes mutations of one logical entity, in process or
// across processes through Redis.
package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/renandiiias/build-automated-outreach/platform/apperr"
)

// DefaultWait bounds how long Lock blocks when the caller's context has no deadline.
const DefaultWait = 5 * time.Second

// Locker grants exclusive access to a key. The returned unlock func must be called once.
type Locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

// LeadKey is the lock key for a lead.
func LeadKey(id fmt.Stringer) string { return "lead:" + id.String() }

func timeoutErr(key string, err error) error {
	return apperr.Transient(fmt.Sprintf("lock %s not acquired", key), err)
}

type keyedEntry struct {
	ch   chan struct{}
	refs int
}

// KeyedMutex is an in-process Locker with one ref-counted mutex per key.
type KeyedMutex struct {
	mu      sync.Mutex
	entries map[string]*keyedEntry
	wait    time.Duration
}

func NewKeyedMutex(wait time.Duration) *KeyedMutex {
	if wait <= 0 {
		wait = DefaultWait
	}
	return &KeyedMutex{entries: make(map[string]*keyedEntry), wait: wait}
}

func (k *KeyedMutex) Lock(ctx context.Context, key string) (func(), error) {
	k.mu.Lock()
	e, ok := k.entries[key]
	if !ok {
		e = &keyedEntry{ch: make(chan struct{}, 1)}
		k.entries[key] = e
	}
	e.refs++
	k.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, k.wait)
	defer cancel()

	select {
	case e.ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-e.ch
				k.release(key, e)
			})
		}, nil
	case <-ctx.Done():
		k.release(key, e)
		return nil, timeoutErr(key, ctx.Err())
	}
}

func (k *KeyedMutex) release(key string, e *keyedEntry) {
	k.mu.Lock()
	defer k.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(k.entries, key)
	}
}

// Len reports the number of keys currently tracked.
func (k *KeyedMutex) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.entries)
}
