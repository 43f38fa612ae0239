package docsync

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// recHooks counts hook events. Safe for concurrent use.
type recHooks struct {
	NopHooks

	started   atomic.Int64
	joined    atomic.Int64
	failed    atomic.Int64
	rejected  atomic.Int64
	mu        sync.Mutex
	discarded map[string]int
	heals     map[string]int
	settled   []string
}

func newRecHooks() *recHooks {
	return &recHooks{discarded: map[string]int{}, heals: map[string]int{}}
}

func (h *recHooks) FetchStarted(string, uint64)       { h.started.Add(1) }
func (h *recHooks) FetchJoined(string, uint64)        { h.joined.Add(1) }
func (h *recHooks) FetchFailed(string, error)         { h.failed.Add(1) }
func (h *recHooks) ProviderSetRejected(string, error) { h.rejected.Add(1) }

func (h *recHooks) FetchDiscarded(_ string, _ uint64, reason string) {
	h.mu.Lock()
	h.discarded[reason]++
	h.mu.Unlock()
}

func (h *recHooks) SelfHeal(_ string, reason string) {
	h.mu.Lock()
	h.heals[reason]++
	h.mu.Unlock()
}

func (h *recHooks) MutationSettled(kind, status string, restored int) {
	h.mu.Lock()
	h.settled = append(h.settled, fmt.Sprintf("%s:%s:%d", kind, status, restored))
	h.mu.Unlock()
}

func (h *recHooks) discards(reason string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.discarded[reason]
}

func (h *recHooks) healed(reason string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.heals[reason]
}

func (h *recHooks) settledEvents() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.settled...)
}

// gate is a loader that blocks until released. Call n returns "<prefix>n".
type gate struct {
	prefix  string
	err     error
	calls   atomic.Int64
	release chan struct{}
}

func newGate(prefix string) *gate {
	return &gate{prefix: prefix, release: make(chan struct{})}
}

func (g *gate) load(ctx context.Context) ([]byte, error) {
	n := g.calls.Add(1)
	<-g.release
	if g.err != nil {
		return nil, g.err
	}
	return []byte(fmt.Sprintf("%s%d", g.prefix, n)), nil
}

func (g *gate) open() { close(g.release) }

func static(data string) Loader {
	return func(context.Context) ([]byte, error) { return []byte(data), nil }
}

func failing(err error) Loader {
	return func(context.Context) ([]byte, error) { return nil, err }
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

type fetchResult struct {
	data []byte
	err  error
}

func goFetch(ctx context.Context, s *Store, key Key, load Loader) <-chan fetchResult {
	ch := make(chan fetchResult, 1)
	go func() {
		b, err := s.Fetch(ctx, key, load)
		ch <- fetchResult{b, err}
	}()
	return ch
}

func recv(t *testing.T, ch <-chan fetchResult) fetchResult {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(2 * time.Second):
		t.Fatalf("fetch did not return")
		return fetchResult{}
	}
}

func ctxT(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}
