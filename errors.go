package docsync

import (
	"errors"
	"fmt"
)

var (
	// ErrDisabled is returned by Fetch for keys that are not complete yet
	// (an empty string or nil component). No loader is called.
	ErrDisabled = errors.New("docsync: fetch disabled for incomplete key")

	// ErrFetchCancelled is returned to waiters of a fetch that a mutation
	// cancelled. The cache keeps the value the mutation wrote.
	ErrFetchCancelled = errors.New("docsync: fetch cancelled")

	// ErrClosed is returned by operations on a closed Store or Client.
	ErrClosed = errors.New("docsync: closed")
)

// KeyError reports a key that cannot be encoded.
type KeyError struct {
	Key string
	Err error
}

func (e *KeyError) Error() string { return fmt.Sprintf("docsync: invalid key %s: %v", e.Key, e.Err) }
func (e *KeyError) Unwrap() error { return e.Err }

// StorageError reports a payload the provider failed or refused to store.
// Err is nil when the provider rejected the write under pressure.
type StorageError struct {
	Key string
	Err error
}

func (e *StorageError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("docsync: provider rejected payload for %s", e.Key)
	}
	return fmt.Sprintf("docsync: store payload for %s: %v", e.Key, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
