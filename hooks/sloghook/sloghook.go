// Package sloghook reports docsync events through log/slog.
package sloghook

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"

	"github.com/unkn0wn-root/docsync"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	FetchEvery    uint64 // started, joined and discarded fetches
	SelfHealEvery uint64
	// Optional key redactor. Defaults to identity; set RedactKeys for a
	// SHA-256 prefix.
	Redact     func(string) string
	RedactKeys bool
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	fetchCtr    atomic.Uint64
	selfHealCtr atomic.Uint64
}

var _ docsync.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	if !h.opts.RedactKeys {
		return k
	}
	sum := sha256.Sum256([]byte(k))
	return hex.EncodeToString(sum[:8])
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) FetchStarted(key string, id uint64) {
	if h.l == nil || !sample(h.opts.FetchEvery, &h.fetchCtr) {
		return
	}
	h.l.Debug("docsync.fetch_started", "key", h.redact(key), "request", id)
}

func (h *Hooks) FetchJoined(key string, id uint64) {
	if h.l == nil || !sample(h.opts.FetchEvery, &h.fetchCtr) {
		return
	}
	h.l.Debug("docsync.fetch_joined", "key", h.redact(key), "request", id)
}

func (h *Hooks) FetchDiscarded(key string, id uint64, reason string) {
	if h.l == nil || !sample(h.opts.FetchEvery, &h.fetchCtr) {
		return
	}
	h.l.Debug("docsync.fetch_discarded", "key", h.redact(key), "request", id, "reason", reason)
}

func (h *Hooks) FetchFailed(key string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("docsync.fetch_failed", "key", h.redact(key), "err", err)
}

func (h *Hooks) SelfHeal(key, reason string) {
	if h.l == nil || !sample(h.opts.SelfHealEvery, &h.selfHealCtr) {
		return
	}
	h.l.Debug("docsync.self_heal", "key", h.redact(key), "reason", reason)
}

func (h *Hooks) ProviderSetRejected(key string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("docsync.provider_set_rejected", "key", h.redact(key), "err", err)
}

func (h *Hooks) Invalidated(pattern string, matched int) {
	if h.l == nil {
		return
	}
	h.l.Debug("docsync.invalidated", "pattern", pattern, "matched", matched)
}

func (h *Hooks) MutationSettled(kind, status string, restored int) {
	if h.l == nil {
		return
	}
	level := slog.LevelInfo
	if status != "success" {
		level = slog.LevelWarn
	}
	h.l.Log(context.Background(), level, "docsync.mutation_settled", "kind", kind, "status", status, "restored", restored)
}
