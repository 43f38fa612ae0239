package prom

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/unkn0wn-root/docsync"
)

func TestCountersFromHooks(t *testing.T) {
	reg := prometheus.NewRegistry()
	h := New(reg, "app")

	h.FetchStarted(docsync.DocumentsKey("f1").String(), 1)
	h.FetchJoined(docsync.DocumentsKey("f1").String(), 1)
	h.FetchStarted(docsync.DocumentKey("d1").String(), 1)
	h.FetchDiscarded(docsync.HistoryKey().String(), 2, "superseded")
	h.SelfHeal("k", "corrupt")
	h.Invalidated(docsync.K("documents").String(), 3)
	h.MutationSettled("delete_folder", "error", 2)
	h.MutationSettled("delete_folder", "success", 0)

	if v := testutil.ToFloat64(h.FetchesTotal.WithLabelValues("documents", "started")); v != 1 {
		t.Fatalf("documents started=%v", v)
	}
	if v := testutil.ToFloat64(h.FetchesTotal.WithLabelValues("document", "started")); v != 1 {
		t.Fatalf("document started=%v", v)
	}
	if v := testutil.ToFloat64(h.FetchesTotal.WithLabelValues("history", "superseded")); v != 1 {
		t.Fatalf("history superseded=%v", v)
	}
	if v := testutil.ToFloat64(h.InvalidatedTotal.WithLabelValues(`["documents"]`)); v != 3 {
		t.Fatalf("invalidated=%v", v)
	}
	if v := testutil.ToFloat64(h.RolledBackEntries.WithLabelValues("delete_folder")); v != 2 {
		t.Fatalf("rolled back=%v", v)
	}
	if n := testutil.CollectAndCount(h.MutationsTotal); n != 2 {
		t.Fatalf("mutation series=%d want 2", n)
	}
}

func TestCollection(t *testing.T) {
	cases := map[string]string{
		`["documents","f1"]`: "documents",
		`["document","d1"]`:  "document",
		`["folders"]`:        "folders",
		`["documentsx"]`:     "other",
		`garbage`:            "other",
	}
	for in, want := range cases {
		if got := collection(in); got != want {
			t.Fatalf("collection(%s)=%q want %q", in, got, want)
		}
	}
}
