package docsync

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

type MutationKind int

const (
	KindCreateFolder MutationKind = iota + 1
	KindDeleteFolder
	KindCreateDocument
	KindUpdateDocument
	KindDeleteDocument
	KindAddHistory
)

func (k MutationKind) String() string {
	switch k {
	case KindCreateFolder:
		return "create_folder"
	case KindDeleteFolder:
		return "delete_folder"
	case KindCreateDocument:
		return "create_document"
	case KindUpdateDocument:
		return "update_document"
	case KindDeleteDocument:
		return "delete_document"
	case KindAddHistory:
		return "add_history"
	default:
		return fmt.Sprintf("MutationKind(%d)", int(k))
	}
}

type MutationStatus int

const (
	MutationIdle MutationStatus = iota
	MutationPending
	MutationSuccess
	MutationError
)

func (s MutationStatus) String() string {
	switch s {
	case MutationIdle:
		return "idle"
	case MutationPending:
		return "pending"
	case MutationSuccess:
		return "success"
	case MutationError:
		return "error"
	default:
		return fmt.Sprintf("MutationStatus(%d)", int(s))
	}
}

// OptimisticWrite describes one speculative cache update. Update receives a
// copy of the current payload (ok is false when the entry has none) and
// returns the payload to write. write=false leaves the entry as is; it is
// still snapshotted and its fetch still cancelled.
type OptimisticWrite struct {
	Key    Key
	Update func(prev []byte, ok bool) (next []byte, write bool, err error)
}

// Optimistic builds an OptimisticWrite that decodes and re-encodes through q.
func Optimistic[T any](q *Query[T], key Key, fn func(prev T, ok bool) (T, bool)) OptimisticWrite {
	return OptimisticWrite{
		Key: key,
		Update: func(prev []byte, ok bool) ([]byte, bool, error) {
			var cur T
			if ok {
				v, err := q.codec.Decode(prev)
				if err != nil {
					return nil, false, fmt.Errorf("docsync: decode %s: %w", key, err)
				}
				cur = v
			}
			next, write := fn(cur, ok)
			if !write {
				return nil, false, nil
			}
			b, err := q.codec.Encode(next)
			if err != nil {
				return nil, false, fmt.Errorf("docsync: encode %s: %w", key, err)
			}
			return b, true, nil
		},
	}
}

// MutationSpec is one write against the remote store.
type MutationSpec struct {
	Kind       MutationKind
	Optimistic []OptimisticWrite
	Call       func(ctx context.Context) error
}

// Mutation is a write in progress. It is settled once Done is closed.
type Mutation struct {
	ID      uuid.UUID
	Kind    MutationKind
	Targets []Key

	mu     sync.Mutex
	status MutationStatus
	err    error
	opt    *optimistic
	done   chan struct{}
}

func (m *Mutation) Status() MutationStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Done is closed after the mutation settled: rollback (on failure) and
// invalidation have both been applied.
func (m *Mutation) Done() <-chan struct{} { return m.done }

// Err returns the remote error once settled, nil before.
func (m *Mutation) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

// Wait blocks until the mutation settles and returns the remote call's error
// unchanged. A done ctx stops the wait, not the mutation.
func (m *Mutation) Wait(ctx context.Context) error {
	select {
	case <-m.done:
		return m.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

type CoordinatorOptions struct {
	Logger Logger // nil => NopLogger
	Hooks  Hooks  // nil => NopHooks
}

// Coordinator runs mutations: optimistic cache update, remote call, rollback
// on failure and invalidation on settle.
type Coordinator struct {
	store *Store
	log   Logger
	hooks Hooks

	mu      sync.Mutex
	pending map[uuid.UUID]*Mutation
	closed  bool
	active  int           // started and not yet settled, including Begin in progress
	drained chan struct{} // closed when active drops to zero
}

func NewCoordinator(store *Store, opts CoordinatorOptions) *Coordinator {
	return &Coordinator{
		store:   store,
		log:     coalesce[Logger](opts.Logger, NopLogger{}),
		hooks:   coalesce[Hooks](opts.Hooks, NopHooks{}),
		pending: make(map[uuid.UUID]*Mutation),
	}
}

// Begin applies the optimistic writes of ms and starts its remote call. It
// returns once the cache reflects the optimistic state. If an optimistic
// write fails the cache is left untouched, the remote call is not made and
// the error is returned.
//
// The remote call runs with a context that is not cancelled with ctx; a
// started mutation always settles.
func (c *Coordinator) Begin(ctx context.Context, ms MutationSpec) (*Mutation, error) {
	if ms.Call == nil {
		return nil, errors.New("docsync: mutation has no call")
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	c.active++
	if c.active == 1 {
		c.drained = make(chan struct{})
	}
	c.mu.Unlock()

	opt, err := c.store.applyOptimistic(ctx, ms.Optimistic)
	if err != nil {
		c.finish(nil)
		c.log.Warn("optimistic update failed", Fields{"kind": ms.Kind.String(), "err": err})
		return nil, err
	}

	m := &Mutation{
		ID:      uuid.New(),
		Kind:    ms.Kind,
		Targets: make([]Key, len(ms.Optimistic)),
		status:  MutationPending,
		opt:     opt,
		done:    make(chan struct{}),
	}
	for i, w := range ms.Optimistic {
		m.Targets[i] = w.Key.clone()
	}

	c.mu.Lock()
	c.pending[m.ID] = m
	c.mu.Unlock()

	c.log.Debug("mutation started", Fields{"id": m.ID.String(), "kind": m.Kind.String(), "targets": len(m.Targets)})
	go c.execute(context.WithoutCancel(ctx), m, ms.Call)
	return m, nil
}

// Run is Begin followed by Wait.
func (c *Coordinator) Run(ctx context.Context, ms MutationSpec) error {
	m, err := c.Begin(ctx, ms)
	if err != nil {
		return err
	}
	return m.Wait(ctx)
}

func (c *Coordinator) execute(ctx context.Context, m *Mutation, call func(context.Context) error) {
	callErr := call(ctx)

	status := MutationSuccess
	if callErr != nil {
		status = MutationError
	}
	restored := c.store.settle(ctx, m.opt, callErr != nil)
	if callErr != nil {
		c.log.Warn("mutation failed, rolled back", Fields{
			"id": m.ID.String(), "kind": m.Kind.String(), "restored": restored, "err": callErr,
		})
	}

	// after settle: keys this mutation held are refetched now, keys still
	// held by another pending mutation are only marked stale.
	for _, p := range invalidations[m.Kind] {
		c.store.Invalidate(ctx, p)
	}

	m.mu.Lock()
	m.status = status
	m.err = callErr
	m.opt = nil
	m.mu.Unlock()

	c.hooks.MutationSettled(m.Kind.String(), status.String(), restored)
	c.finish(m)
	close(m.done)
}

// finish drops m from the pending set and wakes Wait once nothing is active.
func (c *Coordinator) finish(m *Mutation) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if m != nil {
		delete(c.pending, m.ID)
	}
	c.active--
	if c.active == 0 {
		close(c.drained)
	}
}

// Pending returns the mutations that have not settled yet.
func (c *Coordinator) Pending() []*Mutation {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Mutation, 0, len(c.pending))
	for _, m := range c.pending {
		out = append(out, m)
	}
	return out
}

// Wait blocks until every started mutation has settled or ctx is done.
func (c *Coordinator) Wait(ctx context.Context) error {
	c.mu.Lock()
	if c.active == 0 {
		c.mu.Unlock()
		return nil
	}
	drained := c.drained
	c.mu.Unlock()

	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting mutations and waits for those in progress.
func (c *Coordinator) Close(ctx context.Context) error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return c.Wait(ctx)
}
