// Package asynchook moves hook calls off the Store's lock onto a bounded
// worker queue. Events are dropped when the queue is full.
//
//	raw := sloghook.New(slog.Default(), sloghook.Options{SelfHealEvery: 10})
//	hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
//	defer hooks.Close()
//
//	client, _ := docsync.New(docsync.Options{Hooks: hooks})
package asynchook

import (
	"sync"
	"sync/atomic"

	"github.com/unkn0wn-root/docsync"
)

type Hooks struct {
	inner   docsync.Hooks
	q       chan func()
	wg      sync.WaitGroup
	once    sync.Once
	mu      sync.RWMutex
	closed  bool
	dropped atomic.Uint64
}

var _ docsync.Hooks = (*Hooks)(nil)

func New(inner docsync.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

// Close drains queued events and stops the workers. Events after Close are dropped.
func (h *Hooks) Close() {
	h.once.Do(func() {
		h.mu.Lock()
		h.closed = true
		close(h.q)
		h.mu.Unlock()
		h.wg.Wait()
	})
}

// Dropped reports how many events were discarded.
func (h *Hooks) Dropped() uint64 { return h.dropped.Load() }

func (h *Hooks) try(f func()) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		h.dropped.Add(1)
		return
	}
	select {
	case h.q <- f:
	default:
		h.dropped.Add(1)
	}
}

func (h *Hooks) FetchStarted(k string, id uint64) { h.try(func() { h.inner.FetchStarted(k, id) }) }
func (h *Hooks) FetchJoined(k string, id uint64)  { h.try(func() { h.inner.FetchJoined(k, id) }) }
func (h *Hooks) FetchFailed(k string, err error)  { h.try(func() { h.inner.FetchFailed(k, err) }) }
func (h *Hooks) SelfHeal(k, r string)             { h.try(func() { h.inner.SelfHeal(k, r) }) }
func (h *Hooks) FetchDiscarded(k string, id uint64, r string) {
	h.try(func() { h.inner.FetchDiscarded(k, id, r) })
}
func (h *Hooks) ProviderSetRejected(k string, err error) {
	h.try(func() { h.inner.ProviderSetRejected(k, err) })
}
func (h *Hooks) Invalidated(p string, n int) { h.try(func() { h.inner.Invalidated(p, n) }) }
func (h *Hooks) MutationSettled(kind, status string, restored int) {
	h.try(func() { h.inner.MutationSettled(kind, status, restored) })
}
