package docsync

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/unkn0wn-root/docsync/internal/wire"
	pr "github.com/unkn0wn-root/docsync/provider"
	"github.com/unkn0wn-root/docsync/provider/memory"
)

// ErrNoLoader is returned by Fetch when no fetch is in flight to join and no
// loader was supplied.
var ErrNoLoader = errors.New("docsync: no loader")

// Loader fetches the current payload for a key from the remote store.
type Loader func(ctx context.Context) ([]byte, error)

// StoreOptions configure a Store. The zero value is usable.
type StoreOptions struct {
	// Provider holds payload bytes. nil => in-process memory provider.
	// Provider calls run under the Store lock, so a slow remote provider
	// (redis) stalls every key for up to ProviderTimeout per call.
	Provider        pr.Provider
	ProviderTimeout time.Duration // 0 => 2s; bounds each provider call

	Logger   Logger      // nil => NopLogger
	Hooks    Hooks       // nil => NopHooks
	Now      func() time.Time

	// DisableBackgroundRefetch stops Invalidate from refetching matched
	// entries. Consumers then refetch through Read or Fetch.
	DisableBackgroundRefetch bool
}

type flight struct {
	id      uint64
	done    chan struct{}
	data    []byte
	err     error
	next    *flight // replacement when superseded; waiters follow it
	settled bool
	cancel  context.CancelFunc
}

type entry struct {
	key       Key
	id        string
	status    Status
	hasData   bool
	version   uint64 // data version framed with the stored payload
	err       error
	stale     bool
	gen       uint64 // latest request id; only its result is applied
	flight    *flight
	loader    Loader // last loader, reused by background refetch
	updatedAt time.Time
}

// resting is the status an entry falls back to when no fetch is running.
func (e *entry) resting() Status {
	switch {
	case e.err != nil:
		return StatusError
	case e.hasData:
		return StatusSuccess
	default:
		return StatusIdle
	}
}

// Store holds one entry per query key. Entry metadata lives here, payload
// bytes live in the Provider. All transitions happen under one mutex; loaders
// and providers never see the lock released mid-transition.
type Store struct {
	provider pr.Provider
	log      Logger
	hooks    Hooks
	now      func() time.Time
	refetch  bool
	ptimeout time.Duration

	base context.Context // parent of every loader context
	stop context.CancelFunc

	mu       sync.Mutex
	entries  map[string]*entry
	holds    map[string]int // keys with optimistic data of a pending mutation
	versions uint64
	closed   bool
}

func NewStore(opts StoreOptions) *Store {
	base, stop := context.WithCancel(context.Background())
	s := &Store{
		provider: opts.Provider,
		log:      coalesce[Logger](opts.Logger, NopLogger{}),
		hooks:    coalesce[Hooks](opts.Hooks, NopHooks{}),
		now:      opts.Now,
		refetch:  !opts.DisableBackgroundRefetch,
		ptimeout: opts.ProviderTimeout,
		base:     base,
		stop:     stop,
		entries:  make(map[string]*entry),
		holds:    make(map[string]int),
	}
	if s.provider == nil {
		s.provider = memory.New()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.ptimeout <= 0 {
		s.ptimeout = 2 * time.Second
	}
	return s
}

// Get returns the current entry for key, creating an Idle one if absent.
// It never fetches.
func (s *Store) Get(ctx context.Context, key Key) Entry {
	id, err := key.id()
	if err != nil {
		return Entry{Key: key.clone(), Status: StatusError, Err: err}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Entry{Key: key.clone(), Err: ErrClosed}
	}
	return s.viewLocked(ctx, s.entryLocked(id, key))
}

// Fetch returns fresh data for key. If a fetch for key is in flight the caller
// joins it and load is not called. The loader runs detached from ctx; ctx only
// bounds how long this caller waits.
//
// On success the entry becomes Success and fresh. On failure it becomes Error
// and keeps any data it had. Keys with an empty or nil component are not
// fetched: ErrDisabled.
//
// While a pending mutation holds key, its optimistic data is returned without
// loading. Waiters of a fetch that a mutation cancelled receive the
// optimistic data too; ErrFetchCancelled only when the mutation left the
// entry without data.
func (s *Store) Fetch(ctx context.Context, key Key, load Loader) ([]byte, error) {
	id, err := key.id()
	if err != nil {
		return nil, err
	}
	if !key.complete() {
		return nil, ErrDisabled
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	e := s.entryLocked(id, key)
	f := e.flight
	if f == nil && s.holds[id] > 0 && e.hasData {
		if b, ok := s.readLocked(ctx, e); ok {
			s.mu.Unlock()
			return b, nil
		}
	}
	switch {
	case f != nil:
		s.hooks.FetchJoined(e.key.String(), f.id)
	case load == nil:
		s.mu.Unlock()
		return nil, ErrNoLoader
	default:
		f = s.startLocked(e, load)
	}
	s.mu.Unlock()

	b, err := s.wait(ctx, f)
	if errors.Is(err, ErrFetchCancelled) {
		if cur, ok := s.current(ctx, id); ok {
			return cur, nil
		}
	}
	return b, err
}

// current returns the entry's payload, if it has one.
func (s *Store) current(ctx context.Context, id string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if s.closed || !ok || !e.hasData {
		return nil, false
	}
	return s.readLocked(ctx, e)
}

// Read serves whatever the cache holds right now (stale-while-revalidate).
// When the entry has no data or is stale and nothing is in flight, a
// background fetch is started; the returned entry then reports it in InFlight.
// Entries in Error without data are left alone until fetched or invalidated.
func (s *Store) Read(ctx context.Context, key Key, load Loader) Entry {
	id, err := key.id()
	if err != nil {
		return Entry{Key: key.clone(), Status: StatusError, Err: err}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Entry{Key: key.clone(), Err: ErrClosed}
	}
	e := s.entryLocked(id, key)
	v := s.viewLocked(ctx, e)

	want := e.stale || (!e.hasData && e.status != StatusError)
	if s.holds[id] > 0 && e.hasData {
		want = false
	}
	if e.flight == nil && want && load != nil && key.complete() {
		f := s.startLocked(e, load)
		v.Status = e.status
		v.InFlight = f.id
	}
	return v
}

// SetData overwrites the entry's data and marks it Success. Staleness and any
// in-flight fetch are left as they are. No network call is made.
func (s *Store) SetData(ctx context.Context, key Key, data []byte) error {
	id, err := key.id()
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return s.setDataLocked(ctx, s.entryLocked(id, key), data)
}

// Invalidate marks every entry whose key equals pattern or starts with it as
// stale and returns how many matched. Unless background refetch is disabled,
// each matched entry that was fetched before is refetched; a fetch already in
// flight is superseded and its waiters receive the new result. Entries held
// by a pending mutation are only marked stale; releasing the hold refetches
// them.
func (s *Store) Invalidate(ctx context.Context, pattern Key) int {
	pid, err := pattern.id()
	if err != nil {
		s.log.Warn("invalidate with invalid pattern", Fields{"pattern": pattern.String(), "err": err})
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0
	}

	n := 0
	for id, e := range s.entries {
		if !strings.HasPrefix(id, pid) {
			continue
		}
		e.stale = true
		n++
		if s.holds[id] == 0 && s.refetch && e.loader != nil && e.key.complete() {
			old := e.flight
			nf := s.startLocked(e, e.loader)
			if old != nil {
				s.abortLocked(e, old, nf, ErrFetchCancelled, "superseded")
			}
		}
	}
	s.hooks.Invalidated(pattern.String(), n)
	s.log.Debug("invalidated entries", Fields{"pattern": pattern.String(), "matched": n})
	return n
}

// Snapshot returns an independent copy of the entry's data and state.
func (s *Store) Snapshot(ctx context.Context, key Key) Snapshot {
	id, err := key.id()
	if err != nil {
		return Snapshot{Key: key.clone(), Status: StatusError, Err: err}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Snapshot{Key: key.clone(), Err: ErrClosed}
	}
	return s.snapshotLocked(ctx, s.entryLocked(id, key))
}

// Len reports the number of entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Close cancels every fetch in flight (waiters get ErrClosed), drops all
// entries and closes the provider.
func (s *Store) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	for _, e := range s.entries {
		if e.flight != nil {
			s.abortLocked(e, e.flight, nil, ErrClosed, "cancelled")
			e.flight = nil
		}
	}
	s.entries = make(map[string]*entry)
	s.holds = make(map[string]int)
	s.mu.Unlock()

	s.stop()
	return s.provider.Close(ctx)
}

// optimistic is what applyOptimistic leaves for settle: the snapshots to
// restore on failure and the keys it holds.
type optimistic struct {
	snaps []Snapshot
	held  []string
}

// applyOptimistic is the synchronous half of Coordinator.Begin. For every
// write, in order, it cancels the key's fetch, snapshots the entry and applies
// the update. Keys that received data stay held until settle: no background
// refetch overwrites them. If any update or write fails, what was applied is
// restored and nothing is held.
func (s *Store) applyOptimistic(ctx context.Context, writes []OptimisticWrite) (*optimistic, error) {
	ids := make([]string, len(writes))
	for i, w := range writes {
		id, err := w.Key.id()
		if err != nil {
			return nil, err
		}
		ids[i] = id
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	o := &optimistic{snaps: make([]Snapshot, 0, len(writes))}
	for i, w := range writes {
		e := s.entryLocked(ids[i], w.Key)
		s.cancelLocked(e)
		snap := s.snapshotLocked(ctx, e)
		o.snaps = append(o.snaps, snap)

		next, write, err := w.Update(append([]byte(nil), snap.Data...), snap.HasData)
		if err == nil && write {
			if err = s.setDataLocked(ctx, e, next); err == nil {
				s.holds[ids[i]]++
				o.held = append(o.held, ids[i])
			}
		}
		if err != nil {
			s.rollbackLocked(ctx, o.snaps)
			s.releaseLocked(o.held)
			return nil, err
		}
	}
	return o, nil
}

// settle restores the snapshots when failed is set, then releases the holds.
// It returns how many entries were restored.
func (s *Store) settle(ctx context.Context, o *optimistic, failed bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0
	}
	n := 0
	if failed {
		n = s.rollbackLocked(ctx, o.snaps)
	}
	s.releaseLocked(o.held)
	return n
}

func (s *Store) releaseLocked(ids []string) {
	for _, id := range ids {
		if s.holds[id] <= 1 {
			delete(s.holds, id)
			continue
		}
		s.holds[id]--
	}
}

func (s *Store) rollbackLocked(ctx context.Context, snaps []Snapshot) int {
	n := 0
	for i := len(snaps) - 1; i >= 0; i-- {
		snap := snaps[i]
		id, err := snap.Key.id()
		if err != nil {
			continue
		}
		e := s.entryLocked(id, snap.Key)
		if err := s.restoreLocked(ctx, e, snap); err != nil {
			s.log.Error("rollback failed", Fields{"key": e.key.String(), "err": err})
			continue
		}
		n++
	}
	return n
}

func (s *Store) entryLocked(id string, key Key) *entry {
	e, ok := s.entries[id]
	if !ok {
		e = &entry{key: key.clone(), id: id}
		s.entries[id] = e
	}
	return e
}

func (s *Store) viewLocked(ctx context.Context, e *entry) Entry {
	var data []byte
	if e.hasData {
		data, _ = s.readLocked(ctx, e)
	}
	v := Entry{
		Key:       e.key.clone(),
		Status:    e.status,
		Err:       e.err,
		Stale:     e.stale,
		UpdatedAt: e.updatedAt,
	}
	if e.hasData {
		v.Data = data
		v.HasData = true
	}
	if e.flight != nil {
		v.InFlight = e.flight.id
	}
	return v
}

func (s *Store) snapshotLocked(ctx context.Context, e *entry) Snapshot {
	snap := Snapshot{Key: e.key.clone()}
	if e.hasData {
		snap.Data, snap.HasData = s.readLocked(ctx, e)
	}
	snap.Status = e.status
	if snap.Status == StatusLoading {
		snap.Status = e.resting()
	}
	snap.Err = e.err
	snap.Stale = e.stale
	return snap
}

func (s *Store) restoreLocked(ctx context.Context, e *entry, snap Snapshot) error {
	if snap.HasData {
		if err := s.writeLocked(ctx, e, snap.Data); err != nil {
			return err
		}
	} else {
		s.deleteLocked(ctx, e)
	}
	e.status = snap.Status
	e.err = snap.Err
	e.stale = snap.Stale
	if e.flight != nil {
		e.status = StatusLoading
	}
	return nil
}

func (s *Store) setDataLocked(ctx context.Context, e *entry, data []byte) error {
	if err := s.writeLocked(ctx, e, data); err != nil {
		return err
	}
	e.status = StatusSuccess
	e.err = nil
	return nil
}

// startLocked issues a new request id and runs load on its own goroutine.
func (s *Store) startLocked(e *entry, load Loader) *flight {
	e.gen++
	ctx, cancel := context.WithCancel(s.base)
	f := &flight{id: e.gen, done: make(chan struct{}), cancel: cancel}
	e.flight = f
	e.loader = load
	e.status = StatusLoading
	s.hooks.FetchStarted(e.key.String(), f.id)
	go s.run(ctx, e, f, load)
	return f
}

func (s *Store) run(ctx context.Context, e *entry, f *flight, load Loader) {
	data, err := load(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	if f.settled || f.id != e.gen {
		if !f.settled {
			s.abortLocked(e, f, nil, ErrFetchCancelled, "cancelled")
		}
		s.hooks.FetchDiscarded(e.key.String(), f.id, "late_result")
		s.log.Debug("discarded late fetch result", Fields{"key": e.key.String(), "request": f.id, "current": e.gen})
		return
	}

	f.settled = true
	f.cancel()
	e.flight = nil
	switch {
	case err != nil:
		e.status = StatusError
		e.err = err
		f.err = err
		s.hooks.FetchFailed(e.key.String(), err)
		s.log.Debug("fetch failed", Fields{"key": e.key.String(), "request": f.id, "err": err})
	default:
		if werr := s.writeLocked(s.base, e, data); werr != nil {
			e.status = StatusError
			e.err = werr
			f.err = werr
			break
		}
		e.status = StatusSuccess
		e.err = nil
		e.stale = false
		f.data = data
	}
	close(f.done)
}

func (s *Store) wait(ctx context.Context, f *flight) ([]byte, error) {
	for {
		select {
		case <-f.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		if f.next == nil {
			if f.err != nil {
				return nil, f.err
			}
			return append([]byte(nil), f.data...), nil
		}
		f = f.next
	}
}

// cancelLocked makes any result of the current fetch inapplicable and
// releases its waiters with ErrFetchCancelled.
func (s *Store) cancelLocked(e *entry) {
	e.gen++
	if f := e.flight; f != nil {
		s.abortLocked(e, f, nil, ErrFetchCancelled, "cancelled")
		e.flight = nil
		e.status = e.resting()
	}
}

func (s *Store) abortLocked(e *entry, f *flight, next *flight, err error, reason string) {
	if f.settled {
		return
	}
	f.settled = true
	f.err = err
	f.next = next
	f.cancel()
	close(f.done)
	s.hooks.FetchDiscarded(e.key.String(), f.id, reason)
}

// readLocked returns a copy of the entry's payload. A payload that is gone,
// corrupt or from another version is dropped and the entry demoted.
func (s *Store) readLocked(ctx context.Context, e *entry) ([]byte, bool) {
	pctx, cancel := s.providerCtx(ctx)
	raw, ok, err := s.provider.Get(pctx, e.id)
	cancel()
	var reason string
	switch {
	case err != nil:
		reason = "provider_error"
		s.log.Warn("payload read failed", Fields{"key": e.key.String(), "err": err})
	case !ok:
		reason = "missing"
	default:
		ver, payload, derr := wire.Decode(raw)
		switch {
		case derr != nil:
			reason = "corrupt"
		case ver != e.version:
			reason = "version_mismatch"
		default:
			return append([]byte(nil), payload...), true
		}
	}

	s.deleteLocked(ctx, e)
	e.stale = true
	if e.status == StatusSuccess {
		e.status = StatusIdle
	}
	s.hooks.SelfHeal(e.key.String(), reason)
	s.log.Debug("self-healed entry payload", Fields{"key": e.key.String(), "reason": reason})
	return nil, false
}

func (s *Store) writeLocked(ctx context.Context, e *entry, payload []byte) error {
	s.versions++
	ver := s.versions
	frame := wire.Encode(ver, payload)
	pctx, cancel := s.providerCtx(ctx)
	ok, err := s.provider.Set(pctx, e.id, frame, int64(len(frame)), 0)
	cancel()
	if err != nil || !ok {
		s.hooks.ProviderSetRejected(e.key.String(), err)
		s.log.Warn("payload write rejected", Fields{"key": e.key.String(), "err": err})
		return &StorageError{Key: e.key.String(), Err: err}
	}
	e.hasData = true
	e.version = ver
	e.updatedAt = s.now()
	return nil
}

func (s *Store) deleteLocked(ctx context.Context, e *entry) {
	pctx, cancel := s.providerCtx(ctx)
	defer cancel()
	if err := s.provider.Del(pctx, e.id); err != nil {
		s.log.Debug("payload delete failed", Fields{"key": e.key.String(), "err": err})
	}
	e.hasData = false
	e.version = 0
}

// providerCtx detaches provider calls from the caller's cancellation and
// bounds them by the provider timeout.
func (s *Store) providerCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), s.ptimeout)
}
