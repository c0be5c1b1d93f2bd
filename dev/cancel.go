// SPDX-License-Identifier: MPL-2.0

package dev

import (
	"context"
	"sync"
)

// Inflight tracks at most one running request per remote path. Acquiring a
// path cancels the request that held it before.
type Inflight struct {
	mu      sync.Mutex
	next    uint64
	entries map[string]inflightEntry
}

type inflightEntry struct {
	gen    uint64
	cancel context.CancelFunc
}

func NewInflight() *Inflight {
	return &Inflight{entries: map[string]inflightEntry{}}
}

// Acquire cancels the previous holder of p and returns a context for the new
// request. release must be called when the request is done; it only clears
// the entry if no newer request took p over in the meantime.
func (f *Inflight) Acquire(parent context.Context, p string) (context.Context, func()) {
	ctx, cancel := context.WithCancel(parent)

	f.mu.Lock()
	f.next++
	gen := f.next
	if prev, ok := f.entries[p]; ok {
		prev.cancel()
	}
	f.entries[p] = inflightEntry{gen: gen, cancel: cancel}
	f.mu.Unlock()

	return ctx, func() {
		f.mu.Lock()
		if cur, ok := f.entries[p]; ok && cur.gen == gen {
			delete(f.entries, p)
		}
		f.mu.Unlock()
		cancel()
	}
}

// CancelAll aborts every running request.
func (f *Inflight) CancelAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for p, e := range f.entries {
		e.cancel()
		delete(f.entries, p)
	}
}

func (f *Inflight) pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries)
}
