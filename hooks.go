package docsync

// Hooks lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking: the Store calls them while
// holding its lock.
type Hooks interface {
	// A fetch was issued to the loader.
	FetchStarted(key string, requestID uint64)
	// A caller joined an in-flight fetch instead of issuing a new one.
	FetchJoined(key string, requestID uint64)
	// A fetch result will not be applied.
	// reason ∈ {"cancelled", "superseded", "late_result"}
	FetchDiscarded(key string, requestID uint64, reason string)
	// The loader failed; the error is recorded on the entry.
	FetchFailed(key string, err error)

	// An entry lost its payload on read.
	// reason ∈ {"missing", "corrupt", "version_mismatch", "provider_error"}
	SelfHeal(key, reason string)
	// The provider refused or failed a payload write.
	ProviderSetRejected(key string, err error)

	// Invalidate marked matched entries stale.
	Invalidated(pattern string, matched int)
	// A mutation settled. status ∈ {"success", "error"}; restored is the
	// number of keys rolled back.
	MutationSettled(kind string, status string, restored int)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) FetchStarted(string, uint64)           {}
func (NopHooks) FetchJoined(string, uint64)            {}
func (NopHooks) FetchDiscarded(string, uint64, string) {}
func (NopHooks) FetchFailed(string, error)             {}
func (NopHooks) SelfHeal(string, string)               {}
func (NopHooks) ProviderSetRejected(string, error)     {}
func (NopHooks) Invalidated(string, int)               {}
func (NopHooks) MutationSettled(string, string, int)   {}
