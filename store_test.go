package docsync

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/unkn0wn-root/docsync/internal/wire"
	pr "github.com/unkn0wn-root/docsync/provider"
	"github.com/unkn0wn-root/docsync/provider/memory"
)

// rejectProvider refuses every write after the first n.
type rejectProvider struct {
	*memory.Provider
	mu    sync.Mutex
	allow int
}

func (p *rejectProvider) Set(ctx context.Context, key string, v []byte, cost int64, ttl time.Duration) (bool, error) {
	p.mu.Lock()
	if p.allow <= 0 {
		p.mu.Unlock()
		return false, nil
	}
	p.allow--
	p.mu.Unlock()
	return p.Provider.Set(ctx, key, v, cost, ttl)
}

var _ pr.Provider = (*rejectProvider)(nil)

func TestFetchDeduplicates(t *testing.T) {
	ctx := ctxT(t)
	h := newRecHooks()
	s := NewStore(StoreOptions{Hooks: h})
	g := newGate("v")
	key := DocumentsKey("f1")

	var chans []<-chan fetchResult
	for i := 0; i < 5; i++ {
		chans = append(chans, goFetch(ctx, s, key, g.load))
	}
	waitFor(t, "joiners", func() bool { return h.joined.Load() == 4 })
	if e := s.Get(ctx, key); e.Status != StatusLoading || e.InFlight == 0 {
		t.Fatalf("entry=%+v want Loading with request id", e)
	}
	g.open()

	for _, ch := range chans {
		r := recv(t, ch)
		if r.err != nil || string(r.data) != "v1" {
			t.Fatalf("got %q, %v", r.data, r.err)
		}
	}
	if n := g.calls.Load(); n != 1 {
		t.Fatalf("loader calls=%d want 1", n)
	}
	e := s.Get(ctx, key)
	if !e.Fresh() || e.InFlight != 0 {
		t.Fatalf("entry=%+v want fresh success", e)
	}
}

func TestFetchErrorKeepsData(t *testing.T) {
	ctx := ctxT(t)
	s := NewStore(StoreOptions{})
	key := FoldersKey()
	if _, err := s.Fetch(ctx, key, static("old")); err != nil {
		t.Fatal(err)
	}

	boom := errors.New("boom")
	if _, err := s.Fetch(ctx, key, failing(boom)); !errors.Is(err, boom) {
		t.Fatalf("err=%v want boom", err)
	}
	e := s.Get(ctx, key)
	if e.Status != StatusError || !errors.Is(e.Err, boom) {
		t.Fatalf("entry=%+v want Error", e)
	}
	if !e.HasData || string(e.Data) != "old" {
		t.Fatalf("data=%q want old", e.Data)
	}

	if _, err := s.Fetch(ctx, key, static("new")); err != nil {
		t.Fatal(err)
	}
	if e := s.Get(ctx, key); e.Status != StatusSuccess || e.Err != nil || string(e.Data) != "new" {
		t.Fatalf("entry=%+v after recovery", e)
	}
}

func TestFetchDisabledKey(t *testing.T) {
	ctx := ctxT(t)
	s := NewStore(StoreOptions{})
	called := false
	load := func(context.Context) ([]byte, error) { called = true; return nil, nil }

	for _, k := range []Key{DocumentsKey(""), K(CollectionDocument, nil)} {
		if _, err := s.Fetch(ctx, k, load); !errors.Is(err, ErrDisabled) {
			t.Fatalf("%s: err=%v want ErrDisabled", k, err)
		}
		if e := s.Read(ctx, k, load); e.InFlight != 0 || e.Status != StatusIdle {
			t.Fatalf("%s: Read started a fetch: %+v", k, e)
		}
	}
	if called {
		t.Fatalf("loader called for incomplete key")
	}
}

func TestFetchWithoutLoader(t *testing.T) {
	s := NewStore(StoreOptions{})
	if _, err := s.Fetch(ctxT(t), FoldersKey(), nil); !errors.Is(err, ErrNoLoader) {
		t.Fatalf("err=%v want ErrNoLoader", err)
	}
}

func TestWaiterContextDoesNotCancelLoad(t *testing.T) {
	s := NewStore(StoreOptions{})
	g := newGate("v")
	key := DocumentKey("d1")

	ctx, cancel := context.WithCancel(context.Background())
	ch := goFetch(ctx, s, key, g.load)
	waitFor(t, "loader", func() bool { return g.calls.Load() == 1 })
	cancel()
	if r := recv(t, ch); !errors.Is(r.err, context.Canceled) {
		t.Fatalf("err=%v want context.Canceled", r.err)
	}

	g.open()
	waitFor(t, "load to land", func() bool { return s.Get(ctxT(t), key).Status == StatusSuccess })
	if e := s.Get(ctxT(t), key); string(e.Data) != "v1" {
		t.Fatalf("data=%q", e.Data)
	}
}

func TestReadServesStaleAndRefetches(t *testing.T) {
	ctx := ctxT(t)
	h := newRecHooks()
	s := NewStore(StoreOptions{Hooks: h, DisableBackgroundRefetch: true})
	key := DocumentsKey("f1")

	e := s.Read(ctx, key, static("v1"))
	if e.HasData || e.Status != StatusLoading || e.InFlight == 0 {
		t.Fatalf("first read=%+v want Loading", e)
	}
	waitFor(t, "first load", func() bool { return s.Get(ctx, key).Fresh() })

	if n := s.Invalidate(ctx, K(CollectionDocuments)); n != 1 {
		t.Fatalf("matched=%d", n)
	}
	g := newGate("v")
	e = s.Read(ctx, key, g.load)
	if !e.HasData || string(e.Data) != "v1" || !e.Stale || e.InFlight == 0 {
		t.Fatalf("stale read=%+v want cached v1, stale, in flight", e)
	}
	// a second consumer joins instead of starting another fetch
	if e2 := s.Read(ctx, key, g.load); e2.InFlight != e.InFlight {
		t.Fatalf("second read started request %d, first %d", e2.InFlight, e.InFlight)
	}
	g.open()
	waitFor(t, "refetch", func() bool { return s.Get(ctx, key).Fresh() })
	if g.calls.Load() != 1 {
		t.Fatalf("loader calls=%d want 1", g.calls.Load())
	}
	if e := s.Get(ctx, key); string(e.Data) != "v1" || e.Stale {
		t.Fatalf("after refetch=%+v", e)
	}
}

func TestReadLeavesErrorAlone(t *testing.T) {
	ctx := ctxT(t)
	s := NewStore(StoreOptions{})
	key := DocumentKey("missing")
	_, _ = s.Fetch(ctx, key, failing(errors.New("not found")))

	if e := s.Read(ctx, key, static("x")); e.InFlight != 0 || e.Status != StatusError {
		t.Fatalf("read=%+v want Error without fetch", e)
	}
}

func TestInvalidatePrefixRefetchesOnce(t *testing.T) {
	ctx := ctxT(t)
	s := NewStore(StoreOptions{})

	f1, f2, d1 := newGate("f1-"), newGate("f2-"), newGate("d1-")
	for _, g := range []*gate{f1, f2, d1} {
		g.open()
	}
	for k, g := range map[string]*gate{"f1": f1, "f2": f2} {
		if _, err := s.Fetch(ctx, DocumentsKey(k), g.load); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := s.Fetch(ctx, DocumentKey("d1"), d1.load); err != nil {
		t.Fatal(err)
	}

	if n := s.Invalidate(ctx, K(CollectionDocuments)); n != 2 {
		t.Fatalf("matched=%d want 2", n)
	}
	if e := s.Get(ctx, DocumentKey("d1")); e.Stale {
		t.Fatalf(`["document"] entry must not match ["documents"]`)
	}
	waitFor(t, "refetches", func() bool {
		return s.Get(ctx, DocumentsKey("f1")).Fresh() && s.Get(ctx, DocumentsKey("f2")).Fresh()
	})
	if f1.calls.Load() != 2 || f2.calls.Load() != 2 || d1.calls.Load() != 1 {
		t.Fatalf("calls f1=%d f2=%d d1=%d", f1.calls.Load(), f2.calls.Load(), d1.calls.Load())
	}
	if e := s.Get(ctx, DocumentsKey("f1")); string(e.Data) != "f1-2" {
		t.Fatalf("data=%q want f1-2", e.Data)
	}
}

func TestInvalidateSupersedesInFlight(t *testing.T) {
	ctx := ctxT(t)
	h := newRecHooks()
	s := NewStore(StoreOptions{Hooks: h})
	g := newGate("v")
	key := DocumentsKey("f1")

	ch := goFetch(ctx, s, key, g.load)
	waitFor(t, "first load", func() bool { return g.calls.Load() == 1 })

	s.Invalidate(ctx, key)
	waitFor(t, "replacement load", func() bool { return g.calls.Load() == 2 })
	g.open()

	r := recv(t, ch)
	if r.err != nil || string(r.data) != "v2" {
		t.Fatalf("waiter got %q, %v want v2 from the replacement", r.data, r.err)
	}
	waitFor(t, "late result", func() bool { return h.discards("late_result") == 1 })
	if h.discards("superseded") != 1 {
		t.Fatalf("superseded=%d", h.discards("superseded"))
	}
	if e := s.Get(ctx, key); string(e.Data) != "v2" || !e.Fresh() {
		t.Fatalf("entry=%+v", e)
	}
}

func TestInvalidateWithoutRefetch(t *testing.T) {
	ctx := ctxT(t)
	s := NewStore(StoreOptions{DisableBackgroundRefetch: true})
	g := newGate("v")
	g.open()
	if _, err := s.Fetch(ctx, HistoryKey(), g.load); err != nil {
		t.Fatal(err)
	}
	s.Invalidate(ctx, HistoryKey())
	e := s.Get(ctx, HistoryKey())
	if !e.Stale || e.InFlight != 0 || g.calls.Load() != 1 {
		t.Fatalf("entry=%+v calls=%d", e, g.calls.Load())
	}
}

func TestSetDataKeepsStaleness(t *testing.T) {
	ctx := ctxT(t)
	s := NewStore(StoreOptions{DisableBackgroundRefetch: true})
	key := FoldersKey()
	if err := s.SetData(ctx, key, []byte("a")); err != nil {
		t.Fatal(err)
	}
	s.Invalidate(ctx, key)
	if err := s.SetData(ctx, key, []byte("b")); err != nil {
		t.Fatal(err)
	}
	e := s.Get(ctx, key)
	if e.Status != StatusSuccess || !e.Stale || string(e.Data) != "b" {
		t.Fatalf("entry=%+v", e)
	}
}

func TestSnapshotIsIndependent(t *testing.T) {
	ctx := ctxT(t)
	s := NewStore(StoreOptions{})
	key := DocumentKey("d1")
	_ = s.SetData(ctx, key, []byte("Y"))

	snap := s.Snapshot(ctx, key)
	snap.Data[0] = 'Z'
	e := s.Get(ctx, key)
	e.Data[0] = 'Q'

	if got := s.Get(ctx, key); string(got.Data) != "Y" {
		t.Fatalf("store data changed through a copy: %q", got.Data)
	}
}

func TestSelfHeal(t *testing.T) {
	cases := []struct {
		name   string
		reason string
		raw    func(payload []byte) []byte
	}{
		{"corrupt", "corrupt", func([]byte) []byte { return []byte("junk") }},
		{"version", "version_mismatch", func(p []byte) []byte { return wire.Encode(999, p) }},
		{"missing", "missing", nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := ctxT(t)
			p := memory.New()
			h := newRecHooks()
			s := NewStore(StoreOptions{Provider: p, Hooks: h})
			key := FoldersKey()
			_ = s.SetData(ctx, key, []byte("payload"))

			id, _ := key.id()
			if tc.raw == nil {
				_ = p.Del(ctx, id)
			} else {
				_, _ = p.Set(ctx, id, tc.raw([]byte("payload")), 0, 0)
			}

			e := s.Get(ctx, key)
			if e.HasData || !e.Stale || e.Status != StatusIdle {
				t.Fatalf("entry=%+v want healed to idle and stale", e)
			}
			if h.healed(tc.reason) != 1 {
				t.Fatalf("heals=%v", h.heals)
			}
			if tc.raw != nil && p.Len() != 0 {
				t.Fatalf("bad payload left in provider")
			}
		})
	}
}

func TestProviderRejectKeepsPreviousData(t *testing.T) {
	ctx := ctxT(t)
	p := &rejectProvider{Provider: memory.New(), allow: 1}
	h := newRecHooks()
	s := NewStore(StoreOptions{Provider: p, Hooks: h})
	key := DocumentKey("d1")

	if err := s.SetData(ctx, key, []byte("first")); err != nil {
		t.Fatal(err)
	}
	err := s.SetData(ctx, key, []byte("second"))
	var se *StorageError
	if !errors.As(err, &se) {
		t.Fatalf("err=%v want *StorageError", err)
	}
	if h.rejected.Load() != 1 {
		t.Fatalf("rejected=%d", h.rejected.Load())
	}
	if e := s.Get(ctx, key); !bytes.Equal(e.Data, []byte("first")) || e.Status != StatusSuccess {
		t.Fatalf("entry=%+v", e)
	}
}

// hangingProvider never completes a write on its own.
type hangingProvider struct {
	*memory.Provider
}

func (p hangingProvider) Set(ctx context.Context, key string, v []byte, cost int64, ttl time.Duration) (bool, error) {
	<-ctx.Done()
	return false, ctx.Err()
}

func TestProviderCallIsBounded(t *testing.T) {
	ctx := ctxT(t)
	s := NewStore(StoreOptions{Provider: hangingProvider{memory.New()}, ProviderTimeout: 20 * time.Millisecond})
	defer s.Close(context.Background())

	start := time.Now()
	err := s.SetData(ctx, DocumentKey("d1"), []byte("x"))
	var se *StorageError
	if !errors.As(err, &se) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err=%v want *StorageError wrapping DeadlineExceeded", err)
	}
	if d := time.Since(start); d > time.Second {
		t.Fatalf("provider call held the store for %v", d)
	}
	if e := s.Get(ctx, DocumentKey("d1")); e.HasData {
		t.Fatalf("entry has data after failed write: %+v", e)
	}
}

func TestCloseReleasesWaiters(t *testing.T) {
	s := NewStore(StoreOptions{})
	g := newGate("v")
	ch := goFetch(context.Background(), s, FoldersKey(), g.load)
	waitFor(t, "loader", func() bool { return g.calls.Load() == 1 })

	if err := s.Close(context.Background()); err != nil {
		t.Fatal(err)
	}
	if r := recv(t, ch); !errors.Is(r.err, ErrClosed) {
		t.Fatalf("err=%v want ErrClosed", r.err)
	}
	g.open()
	if _, err := s.Fetch(context.Background(), FoldersKey(), static("x")); !errors.Is(err, ErrClosed) {
		t.Fatalf("err=%v want ErrClosed", err)
	}
	if s.Len() != 0 {
		t.Fatalf("entries survive Close")
	}
}

func TestOneEntryPerKey(t *testing.T) {
	ctx := ctxT(t)
	s := NewStore(StoreOptions{})
	s.Get(ctx, K("page", 1))
	s.Get(ctx, K("page", int64(1)))
	s.Get(ctx, K("page", uint8(1)))
	if s.Len() != 1 {
		t.Fatalf("Len=%d want 1", s.Len())
	}
}
