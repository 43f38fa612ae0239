// Package prom counts docsync events with Prometheus counters.
package prom

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/unkn0wn-root/docsync"
)

// Hooks holds the counters. Keys are never used as labels; only the
// collection (first key component) is.
type Hooks struct {
	FetchesTotal      *prometheus.CounterVec // collection, outcome
	SelfHealsTotal    *prometheus.CounterVec // reason
	ProviderRejected  prometheus.Counter
	InvalidatedTotal  *prometheus.CounterVec // pattern
	MutationsTotal    *prometheus.CounterVec // kind, status
	RolledBackEntries *prometheus.CounterVec // kind
}

var _ docsync.Hooks = (*Hooks)(nil)

// New creates the counters and registers them with reg.
// A nil reg uses prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer, namespace string) *Hooks {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Hooks{
		FetchesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "docsync_fetches_total",
				Help:      "Fetch lifecycle events by collection and outcome",
			},
			[]string{"collection", "outcome"},
		),
		SelfHealsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "docsync_self_heals_total",
				Help:      "Entries that lost their payload on read",
			},
			[]string{"reason"},
		),
		ProviderRejected: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "docsync_provider_set_rejected_total",
				Help:      "Payload writes the provider refused or failed",
			},
		),
		InvalidatedTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "docsync_invalidated_entries_total",
				Help:      "Entries marked stale by invalidation pattern",
			},
			[]string{"pattern"},
		),
		MutationsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "docsync_mutations_total",
				Help:      "Settled mutations by kind and status",
			},
			[]string{"kind", "status"},
		),
		RolledBackEntries: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "docsync_rolled_back_entries_total",
				Help:      "Entries restored from snapshots after failed mutations",
			},
			[]string{"kind"},
		),
	}
}

func (h *Hooks) FetchStarted(key string, _ uint64) {
	h.FetchesTotal.WithLabelValues(collection(key), "started").Inc()
}

func (h *Hooks) FetchJoined(key string, _ uint64) {
	h.FetchesTotal.WithLabelValues(collection(key), "joined").Inc()
}

func (h *Hooks) FetchDiscarded(key string, _ uint64, reason string) {
	h.FetchesTotal.WithLabelValues(collection(key), reason).Inc()
}

func (h *Hooks) FetchFailed(key string, _ error) {
	h.FetchesTotal.WithLabelValues(collection(key), "failed").Inc()
}

func (h *Hooks) SelfHeal(_ string, reason string) {
	h.SelfHealsTotal.WithLabelValues(reason).Inc()
}

func (h *Hooks) ProviderSetRejected(string, error) { h.ProviderRejected.Inc() }

func (h *Hooks) Invalidated(pattern string, matched int) {
	h.InvalidatedTotal.WithLabelValues(pattern).Add(float64(matched))
}

func (h *Hooks) MutationSettled(kind, status string, restored int) {
	h.MutationsTotal.WithLabelValues(kind, status).Inc()
	if restored > 0 {
		h.RolledBackEntries.WithLabelValues(kind).Add(float64(restored))
	}
}

// collection extracts the first component from a rendered key such as
// ["documents","f1"].
func collection(key string) string {
	for _, c := range []string{
		docsync.CollectionFolders,
		docsync.CollectionDocuments,
		docsync.CollectionDocument,
		docsync.CollectionSearch,
		docsync.CollectionHistory,
	} {
		p := `["` + c + `"`
		if len(key) > len(p) && key[:len(p)] == p && (key[len(p)] == ',' || key[len(p)] == ']') {
			return c
		}
	}
	return "other"
}
