package docsync

import (
	"fmt"
	"time"

	"github.com/unkn0wn-root/docsync/codec"
	pr "github.com/unkn0wn-root/docsync/provider"
	"github.com/unkn0wn-root/docsync/remote"
)

// Options configure a Client. Only API or Remote is needed; the rest have
// working defaults.
type Options struct {
	API    remote.API    // nil => remote.New(Remote)
	Remote remote.Config // used when API is nil

	Provider   pr.Provider  // nil => in-process memory provider
	Format     codec.Format // payload encoding; "" => JSON
	MaxPayload int          // > 0 caps decoded payload size in bytes

	Logger Logger           // nil => NopLogger
	Hooks  Hooks            // nil => NopHooks
	Clock  func() time.Time // nil => time.Now

	// DisableBackgroundRefetch leaves invalidated entries stale until the
	// next read instead of refetching them immediately.
	DisableBackgroundRefetch bool
}

func New(opts Options) (*Client, error) {
	api := opts.API
	if api == nil {
		rc, err := remote.New(opts.Remote)
		if err != nil {
			return nil, err
		}
		api = rc
	}
	log := coalesce[Logger](opts.Logger, NopLogger{})
	hooks := coalesce[Hooks](opts.Hooks, NopHooks{})
	now := opts.Clock
	if now == nil {
		now = time.Now
	}

	store := NewStore(StoreOptions{
		Provider:                 opts.Provider,
		Logger:                   log,
		Hooks:                    hooks,
		Now:                      now,
		DisableBackgroundRefetch: opts.DisableBackgroundRefetch,
	})

	c := &Client{
		api:   api,
		store: store,
		coord: NewCoordinator(store, CoordinatorOptions{Logger: log, Hooks: hooks}),
		log:   log,
		now:   now,
	}
	var err error
	if c.folders, err = query[[]remote.Folder](store, opts); err != nil {
		return nil, err
	}
	if c.documents, err = query[[]remote.Document](store, opts); err != nil {
		return nil, err
	}
	if c.document, err = query[remote.Document](store, opts); err != nil {
		return nil, err
	}
	if c.search, err = query[[]remote.SearchResult](store, opts); err != nil {
		return nil, err
	}
	if c.history, err = query[[]HistoryEntry](store, opts); err != nil {
		return nil, err
	}
	return c, nil
}

func query[T any](s *Store, opts Options) (*Query[T], error) {
	cd, err := codec.For[T](opts.Format, opts.MaxPayload)
	if err != nil {
		return nil, fmt.Errorf("docsync: %w", err)
	}
	return NewQuery[T](s, cd), nil
}
