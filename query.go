package docsync

import (
	"context"
	"fmt"

	"github.com/unkn0wn-root/docsync/codec"
)

// Query is a typed handle over the Store for payloads of type T.
type Query[T any] struct {
	store *Store
	codec codec.Codec[T]
}

func NewQuery[T any](s *Store, c codec.Codec[T]) *Query[T] {
	return &Query[T]{store: s, codec: c}
}

// View is an Entry with its payload decoded. Value is the zero T unless HasData.
type View[T any] struct {
	Entry
	Value T
}

func (q *Query[T]) Get(ctx context.Context, key Key) (View[T], error) {
	return q.view(q.store.Get(ctx, key))
}

// Peek returns the cached value, if any, without fetching.
func (q *Query[T]) Peek(ctx context.Context, key Key) (T, bool) {
	v, err := q.Get(ctx, key)
	if err != nil || !v.HasData {
		var zero T
		return zero, false
	}
	return v.Value, true
}

// Fetch loads key through the Store, joining a fetch already in flight.
func (q *Query[T]) Fetch(ctx context.Context, key Key, load func(context.Context) (T, error)) (T, error) {
	var zero T
	b, err := q.store.Fetch(ctx, key, q.loader(load))
	if err != nil {
		return zero, err
	}
	v, err := q.codec.Decode(b)
	if err != nil {
		return zero, fmt.Errorf("docsync: decode %s: %w", key, err)
	}
	return v, nil
}

// Ensure returns the cached value when it is fresh and fetches otherwise.
func (q *Query[T]) Ensure(ctx context.Context, key Key, load func(context.Context) (T, error)) (T, error) {
	if v, err := q.Get(ctx, key); err == nil && v.Fresh() {
		return v.Value, nil
	}
	return q.Fetch(ctx, key, load)
}

// Read is Store.Read with the payload decoded.
func (q *Query[T]) Read(ctx context.Context, key Key, load func(context.Context) (T, error)) (View[T], error) {
	return q.view(q.store.Read(ctx, key, q.loader(load)))
}

func (q *Query[T]) SetData(ctx context.Context, key Key, v T) error {
	b, err := q.codec.Encode(v)
	if err != nil {
		return fmt.Errorf("docsync: encode %s: %w", key, err)
	}
	return q.store.SetData(ctx, key, b)
}

func (q *Query[T]) view(e Entry) (View[T], error) {
	v := View[T]{Entry: e}
	if !e.HasData {
		return v, nil
	}
	val, err := q.codec.Decode(e.Data)
	if err != nil {
		return v, fmt.Errorf("docsync: decode %s: %w", e.Key, err)
	}
	v.Value = val
	return v, nil
}

func (q *Query[T]) loader(load func(context.Context) (T, error)) Loader {
	if load == nil {
		return nil
	}
	return func(ctx context.Context) ([]byte, error) {
		v, err := load(ctx)
		if err != nil {
			return nil, err
		}
		return q.codec.Encode(v)
	}
}
