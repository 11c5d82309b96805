package goIdentity

import (
	"sync/atomic"
	"time"
)

// MetricID identifies one in-process counter or histogram.
type MetricID uint16

const (
	// MetricLoginSuccess counts direct logins that issued a credential.
	MetricLoginSuccess MetricID = iota
	// MetricLoginFailure counts rejected direct logins.
	MetricLoginFailure
	// MetricLoginLocked counts login and step-up attempts against locked accounts.
	MetricLoginLocked
	// MetricCredentialIssued counts every credential minted, whatever the flow.
	MetricCredentialIssued
	// MetricCredentialRejected counts VerifyCredential failures.
	MetricCredentialRejected
	// MetricStepUpIssued counts step-up codes issued.
	MetricStepUpIssued
	// MetricStepUpSuccess counts completed step-up logins.
	MetricStepUpSuccess
	// MetricStepUpFailure counts failed step-up begin or complete calls.
	MetricStepUpFailure
	// MetricCodeInvalid counts redemptions with a wrong or consumed code.
	MetricCodeInvalid
	// MetricCodeExpired counts redemptions with a matching but expired code.
	MetricCodeExpired
	// MetricResetRequest counts RequestReset calls.
	MetricResetRequest
	// MetricResetUnknownSubject counts RequestReset calls for emails with no account.
	MetricResetUnknownSubject
	// MetricResetVerify counts VerifyResetCode calls.
	MetricResetVerify
	// MetricResetSuccess counts completed password resets.
	MetricResetSuccess
	// MetricResetFailure counts failed CompleteReset calls.
	MetricResetFailure
	// MetricPasswordChangeSuccess counts successful ChangePassword calls.
	MetricPasswordChangeSuccess
	// MetricPasswordChangeFailure counts failed ChangePassword calls.
	MetricPasswordChangeFailure
	// MetricExternalAuthenticated counts federated logins that issued a credential.
	MetricExternalAuthenticated
	// MetricExternalNeedsLinking counts federated logins with no linked account.
	MetricExternalNeedsLinking
	// MetricExternalFailure counts failed federated logins.
	MetricExternalFailure
	// MetricRateLimitHit counts throttle denials.
	MetricRateLimitHit
	// MetricDeliverySuccess counts messages the dispatcher accepted.
	MetricDeliverySuccess
	// MetricDeliveryFailure counts messages the dispatcher rejected or timed out on.
	MetricDeliveryFailure
	// MetricCodesSwept counts expired codes removed by the sweeper.
	MetricCodesSwept
	// MetricDeliveryLatency is the dispatch latency histogram.
	MetricDeliveryLatency
	metricIDCount
)

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

type metricHistogram struct {
	buckets [histBucketCount]uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics holds padded atomic counters and the delivery latency histogram.
// A nil or disabled Metrics is a no-op.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy of all metrics.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics builds a Metrics from cfg.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

// Enabled reports whether counters are recorded.
func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// LatencyEnabled reports whether the latency histogram is recorded.
func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

// Inc adds one to the counter id.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Add adds n to the counter id.
func (m *Metrics) Add(id MetricID, n uint64) {
	if m == nil || !m.enabled || id >= metricIDCount || n == 0 {
		return
	}
	atomic.AddUint64(&m.counters[id].value, n)
}

// Observe records d into the histogram for id. Only MetricDeliveryLatency
// carries a histogram.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.enableLatency || id >= metricIDCount {
		return
	}
	if id != MetricDeliveryLatency {
		return
	}

	b := bucketIndex(d)
	atomic.AddUint64(&m.histograms[id].buckets[b], 1)
}

// Value returns the current value of counter id.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies all counters and, when enabled, the latency histogram.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}

	s := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, int(metricIDCount)),
		Histograms: make(map[MetricID][]uint64, 1),
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		if id == MetricDeliveryLatency {
			continue
		}
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := 0; i < histBucketCount; i++ {
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricDeliveryLatency].buckets[i])
		}
		s.Histograms[MetricDeliveryLatency] = buckets
	}

	return s
}

// bucket upper bounds: 5ms 10ms 25ms 50ms 100ms 250ms 500ms +Inf
func bucketIndex(d time.Duration) int {
	ms := d.Milliseconds()

	switch {
	case ms <= 5:
		return 0
	case ms <= 10:
		return 1
	case ms <= 25:
		return 2
	case ms <= 50:
		return 3
	case ms <= 100:
		return 4
	case ms <= 250:
		return 5
	case ms <= 500:
		return 6
	default:
		return 7
	}
}
