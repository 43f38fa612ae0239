package docsync

import (
	"sort"
	"time"

	"github.com/unkn0wn-root/docsync/remote"
)

// HistoryLimit caps the recency log.
const HistoryLimit = 5

type HistoryEntry = remote.HistoryEntry

// Record returns the recency log after visiting id: any earlier entry for id
// is dropped, a new entry stamped now goes first and the log is cut to
// HistoryLimit. seq is not modified.
//
// The new timestamp never goes below the newest existing one, so a clock
// step backwards cannot move the new entry out of first place.
func Record(seq []HistoryEntry, id, title string, now time.Time) []HistoryEntry {
	ts := now.UnixMilli()
	for _, e := range seq {
		if e.ID != id && e.Timestamp > ts {
			ts = e.Timestamp
		}
	}

	byID := make(map[string]ranked, len(seq)+1)
	for i, e := range seq {
		if e.ID == id {
			continue
		}
		if cur, ok := byID[e.ID]; !ok || e.Timestamp > cur.Timestamp {
			byID[e.ID] = ranked{HistoryEntry: e, pos: i}
		}
	}
	byID[id] = ranked{HistoryEntry: HistoryEntry{ID: id, Title: title, Timestamp: ts}, pos: -1}
	return rank(byID)
}

// Normalize turns a history listing from the remote store into a valid log:
// one entry per id (the most recent), newest first, at most HistoryLimit.
// Ties keep the order of first appearance.
func Normalize(entries []HistoryEntry) []HistoryEntry {
	byID := make(map[string]ranked, len(entries))
	for i, e := range entries {
		cur, ok := byID[e.ID]
		switch {
		case !ok:
			byID[e.ID] = ranked{HistoryEntry: e, pos: i}
		case e.Timestamp > cur.Timestamp:
			byID[e.ID] = ranked{HistoryEntry: e, pos: cur.pos}
		}
	}
	return rank(byID)
}

type ranked struct {
	HistoryEntry
	pos int
}

func rank(byID map[string]ranked) []HistoryEntry {
	all := make([]ranked, 0, len(byID))
	for _, r := range byID {
		all = append(all, r)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].Timestamp != all[j].Timestamp {
			return all[i].Timestamp > all[j].Timestamp
		}
		return all[i].pos < all[j].pos
	})
	if len(all) > HistoryLimit {
		all = all[:HistoryLimit]
	}
	out := make([]HistoryEntry, len(all))
	for i, r := range all {
		out[i] = r.HistoryEntry
	}
	return out
}
