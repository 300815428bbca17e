// Package sloghook logs engine and cache hook events to a *slog.Logger.
package sloghook

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/unkn0wn-root/reqrs"
	"github.com/unkn0wn-root/reqrs/cache"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	SelfHealEvery   uint64
	BulkRejectEvery uint64
	StaleWriteEvery uint64
	// Optional key redactor. Defaults to a SHA-256 prefix.
	Redact func(string) string
	// Requests settling faster than this are not logged. Failures always are.
	SlowRequest time.Duration
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	selfHealCtr   atomic.Uint64
	bulkRejectCtr atomic.Uint64
	staleCtr      atomic.Uint64
}

var (
	_ reqrs.Hooks = (*Hooks)(nil)
	_ cache.Hooks = (*Hooks)(nil)
)

// New returns hooks logging to l. A nil l logs nothing.
func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
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

func (h *Hooks) RequestStarted(op string) {
	if h.l == nil {
		return
	}
	h.l.Debug("reqrs.request_started", "op", op)
}

func (h *Hooks) RequestSettled(op string, err error, took time.Duration) {
	switch {
	case h.l == nil:
	case err != nil:
		h.l.Info("reqrs.request_failed", "op", op, "took", took, "err", err)
	case took >= h.opts.SlowRequest:
		h.l.Debug("reqrs.request_settled", "op", op, "took", took)
	}
}

func (h *Hooks) OverlappingEffect(slice, op string, inFlight int) {
	if h.l == nil {
		return
	}
	h.l.Warn("reqrs.overlapping_effect",
		"slice", slice,
		"op", op,
		"in_flight", inFlight)
}

func (h *Hooks) HandlerFailed(action, subscription string, err error) {
	if h.l == nil {
		return
	}
	h.l.Error("reqrs.handler_failed",
		"action", action,
		"subscription", subscription,
		"err", err)
}

func (h *Hooks) SelfHealSingle(storageKey, reason string) {
	if h.l == nil || !sample(h.opts.SelfHealEvery, &h.selfHealCtr) {
		return
	}
	h.l.Debug("reqrs.cache.self_heal_single",
		"key", h.redact(storageKey),
		"reason", reason)
}

func (h *Hooks) BulkRejected(ns string, requested int, reason string) {
	if h.l == nil || !sample(h.opts.BulkRejectEvery, &h.bulkRejectCtr) {
		return
	}
	h.l.Info("reqrs.cache.bulk_rejected",
		"ns", ns,
		"requested", requested,
		"reason", reason)
}

func (h *Hooks) ProviderSetRejected(storageKey string, isBulk bool) {
	if h.l == nil {
		return
	}
	h.l.Warn("reqrs.cache.provider_set_rejected",
		"key", h.redact(storageKey),
		"is_bulk", isBulk)
}

func (h *Hooks) StaleWriteSkipped(storageKey string) {
	if h.l == nil || !sample(h.opts.StaleWriteEvery, &h.staleCtr) {
		return
	}
	h.l.Debug("reqrs.cache.stale_write_skipped", "key", h.redact(storageKey))
}

func (h *Hooks) GenSnapshotError(count int, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("reqrs.cache.gen_snapshot_error",
		"count", count,
		"err", err)
}

func (h *Hooks) GenBumpError(storageKey string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("reqrs.cache.gen_bump_error",
		"key", h.redact(storageKey),
		"err", err)
}

func (h *Hooks) InvalidateOutage(key string, bumpErr, delErr error) {
	if h.l == nil {
		return
	}
	h.l.Error("reqrs.cache.invalidate_outage",
		"key", h.redact(key),
		"bump_err", bumpErr,
		"del_err", delErr)
}

func (h *Hooks) LocalGenWithSharedProvider(ns string) {
	if h.l == nil {
		return
	}
	h.l.Warn("reqrs.cache.local_gen_with_shared_provider",
		"ns", ns,
		"msg", "shared provider with local generations; other replicas may serve invalidated entries")
}
