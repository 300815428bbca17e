// Package metrics exports engine and cache hook events as Prometheus metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/unkn0wn-root/reqrs"
	"github.com/unkn0wn-root/reqrs/cache"
)

// Result label values of reqrs_requests_total.
const (
	resultSuccess = "success"
	resultFailed  = "failed"
)

// Hooks implements reqrs.Hooks and cache.Hooks. Metric calls do not block, so
// it does not need hooks/async.
type Hooks struct {
	requests    *prometheus.CounterVec
	inFlight    *prometheus.GaugeVec
	duration    *prometheus.HistogramVec
	overlaps    *prometheus.CounterVec
	handlerErrs *prometheus.CounterVec

	selfHeals    *prometheus.CounterVec
	bulkRejects  *prometheus.CounterVec
	setRejects   *prometheus.CounterVec
	staleWrites  prometheus.Counter
	genErrors    *prometheus.CounterVec
	outages      prometheus.Counter
	localGenWarn *prometheus.GaugeVec
}

var (
	_ reqrs.Hooks = (*Hooks)(nil)
	_ cache.Hooks = (*Hooks)(nil)
)

// New creates the collectors and registers them on reg. A nil reg uses
// prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer) (*Hooks, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	h := &Hooks{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reqrs_requests_total",
			Help: "Settled effect and command requests by operation and result.",
		}, []string{"op", "result"}),
		inFlight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "reqrs_requests_in_flight",
			Help: "Requests started and not yet settled.",
		}, []string{"op"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "reqrs_request_duration_seconds",
			Help:    "Time from request start to settlement, in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
		overlaps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reqrs_overlapping_effects_total",
			Help: "Effects started while another effect of the same slice was in flight.",
		}, []string{"slice"}),
		handlerErrs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reqrs_subscription_errors_total",
			Help: "Subscription handlers that failed and aborted their dispatch.",
		}, []string{"action"}),

		selfHeals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reqrs_cache_self_heals_total",
			Help: "Cache entries dropped on read.",
		}, []string{"reason"}),
		bulkRejects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reqrs_cache_bulk_rejects_total",
			Help: "Bulk entries not used, by namespace and reason.",
		}, []string{"namespace", "reason"}),
		setRejects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reqrs_cache_provider_set_rejects_total",
			Help: "Writes dropped by the provider.",
		}, []string{"kind"}),
		staleWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reqrs_cache_stale_writes_skipped_total",
			Help: "Responses not cached because the key was invalidated while in flight.",
		}),
		genErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reqrs_cache_generation_errors_total",
			Help: "Generation store failures by operation.",
		}, []string{"op"}),
		outages: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reqrs_cache_invalidate_outages_total",
			Help: "Invalidations where both the generation bump and the delete failed.",
		}),
		localGenWarn: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "reqrs_cache_local_generations_with_shared_provider",
			Help: "1 for namespaces caching in a shared provider with in-process generations.",
		}, []string{"namespace"}),
	}

	for _, c := range []prometheus.Collector{
		h.requests, h.inFlight, h.duration, h.overlaps, h.handlerErrs,
		h.selfHeals, h.bulkRejects, h.setRejects, h.staleWrites, h.genErrors, h.outages, h.localGenWarn,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return h, nil
}

func (h *Hooks) RequestStarted(op string) { h.inFlight.WithLabelValues(op).Inc() }

func (h *Hooks) RequestSettled(op string, err error, took time.Duration) {
	h.inFlight.WithLabelValues(op).Dec()
	h.duration.WithLabelValues(op).Observe(took.Seconds())
	result := resultSuccess
	if err != nil {
		result = resultFailed
	}
	h.requests.WithLabelValues(op, result).Inc()
}

func (h *Hooks) OverlappingEffect(slice, _ string, _ int) { h.overlaps.WithLabelValues(slice).Inc() }

func (h *Hooks) HandlerFailed(action, _ string, _ error) { h.handlerErrs.WithLabelValues(action).Inc() }

// storage keys are unbounded, so cache metrics never carry them as labels

func (h *Hooks) SelfHealSingle(_, reason string) { h.selfHeals.WithLabelValues(reason).Inc() }

func (h *Hooks) BulkRejected(ns string, _ int, reason string) {
	h.bulkRejects.WithLabelValues(ns, reason).Inc()
}

func (h *Hooks) ProviderSetRejected(_ string, isBulk bool) {
	kind := "single"
	if isBulk {
		kind = "bulk"
	}
	h.setRejects.WithLabelValues(kind).Inc()
}

func (h *Hooks) StaleWriteSkipped(string)              { h.staleWrites.Inc() }
func (h *Hooks) GenSnapshotError(int, error)           { h.genErrors.WithLabelValues("snapshot").Inc() }
func (h *Hooks) GenBumpError(string, error)            { h.genErrors.WithLabelValues("bump").Inc() }
func (h *Hooks) InvalidateOutage(string, error, error) { h.outages.Inc() }

func (h *Hooks) LocalGenWithSharedProvider(ns string) { h.localGenWarn.WithLabelValues(ns).Set(1) }
