package docsync

import "time"

// Status is the lifecycle state of a cache entry.
type Status uint8

const (
	StatusIdle Status = iota
	StatusLoading
	StatusSuccess
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusLoading:
		return "loading"
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	default:
		return "idle"
	}
}

// Entry is a point-in-time copy of one cache entry. Mutating it does not
// affect the Store.
type Entry struct {
	Key     Key
	Status  Status
	Data    []byte // nil unless HasData
	HasData bool
	Err     error
	Stale   bool
	// InFlight is the request id of the fetch in progress, 0 when none.
	InFlight  uint64
	UpdatedAt time.Time
}

// Fresh reports whether the entry can be served without refetching.
func (e Entry) Fresh() bool {
	return e.Status == StatusSuccess && e.HasData && !e.Stale
}

// Snapshot is the value copy taken before an optimistic write. Restoring it
// puts the entry back exactly: data bytes, status, error and staleness.
type Snapshot struct {
	Key     Key
	HasData bool
	Data    []byte
	Status  Status
	Err     error
	Stale   bool
}
