package otel

import (
	"context"
	"sync"
	"testing"

	goIdentity "github.com/MrEthical07/goIdentity"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

type fakeSource struct {
	mu       sync.RWMutex
	snapshot goIdentity.MetricsSnapshot
	dropped  map[string]uint64
}

func (f *fakeSource) MetricsSnapshot() goIdentity.MetricsSnapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := goIdentity.MetricsSnapshot{
		Counters:   make(map[goIdentity.MetricID]uint64, len(f.snapshot.Counters)),
		Histograms: make(map[goIdentity.MetricID][]uint64, len(f.snapshot.Histograms)),
	}
	for k, v := range f.snapshot.Counters {
		out.Counters[k] = v
	}
	for k, buckets := range f.snapshot.Histograms {
		next := make([]uint64, len(buckets))
		copy(next, buckets)
		out.Histograms[k] = next
	}
	return out
}

func (f *fakeSource) AuditDroppedByType() map[string]uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make(map[string]uint64, len(f.dropped))
	for k, v := range f.dropped {
		out[k] = v
	}
	return out
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	out := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func TestExporterRegistersAndCollects(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := provider.Meter("goidentity-test")

	src := &fakeSource{
		snapshot: goIdentity.MetricsSnapshot{
			Counters: map[goIdentity.MetricID]uint64{
				goIdentity.MetricLoginSuccess: 3,
			},
			Histograms: map[goIdentity.MetricID][]uint64{
				goIdentity.MetricDeliveryLatency: {1, 1, 1, 1, 1, 1, 1, 1},
			},
		},
		dropped: map[string]uint64{"login_failure": 1},
	}

	exp, err := NewExporterFromSource(meter, src)
	if err != nil {
		t.Fatalf("NewExporterFromSource failed: %v", err)
	}
	defer func() {
		if err := exp.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
	}()

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if len(rm.ScopeMetrics) == 0 {
		t.Fatal("expected collected metrics, got none")
	}
}

func TestExporterRejectsNilSource(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := provider.Meter("goidentity-test")

	if _, err := NewExporterFromSource(meter, nil); err == nil {
		t.Fatal("expected error for nil source")
	}
}

func TestExporterConcurrentCollectNoPanic(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := provider.Meter("goidentity-test")

	src := &fakeSource{
		snapshot: goIdentity.MetricsSnapshot{
			Counters: map[goIdentity.MetricID]uint64{
				goIdentity.MetricLoginSuccess: 1,
			},
			Histograms: map[goIdentity.MetricID][]uint64{
				goIdentity.MetricDeliveryLatency: {1, 0, 0, 0, 0, 0, 0, 0},
			},
		},
	}

	exp, err := NewExporterFromSource(meter, src)
	if err != nil {
		t.Fatalf("NewExporterFromSource failed: %v", err)
	}
	defer func() {
		if err := exp.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(v uint64) {
			defer wg.Done()
			src.mu.Lock()
			src.snapshot.Counters[goIdentity.MetricLoginSuccess] = v
			src.mu.Unlock()

			var rm metricdata.ResourceMetrics
			_ = reader.Collect(context.Background(), &rm)
		}(uint64(i + 1))
	}
	wg.Wait()
}

func TestExporterReportsCounterValue(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := provider.Meter("goidentity-test")

	src := &fakeSource{
		snapshot: goIdentity.MetricsSnapshot{
			Counters: map[goIdentity.MetricID]uint64{
				goIdentity.MetricResetRequest: 5,
			},
			Histograms: map[goIdentity.MetricID][]uint64{},
		},
	}

	exp, err := NewExporterFromSource(meter, src)
	if err != nil {
		t.Fatalf("NewExporterFromSource failed: %v", err)
	}
	defer exp.Close()

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect failed: %v", err)
	}

	var got int64 = -1
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "goidentity_reset_request_total" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok || len(sum.DataPoints) != 1 {
				t.Fatalf("unexpected data for %s: %#v", m.Name, m.Data)
			}
			got = sum.DataPoints[0].Value
		}
	}
	if got != 5 {
		t.Fatalf("expected reset_request=5, got %d", got)
	}
}

func TestNewExporterRejectsNilEngine(t *testing.T) {
	provider := sdkmetric.NewMeterProvider()
	if _, err := NewExporter(provider.Meter("goidentity-test"), nil); err == nil {
		t.Fatal("expected error for nil engine")
	}
}

func TestExporterDeliveryLatencyBucketsByBound(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	src := &fakeSource{
		snapshot: goIdentity.MetricsSnapshot{
			Counters: map[goIdentity.MetricID]uint64{},
			Histograms: map[goIdentity.MetricID][]uint64{
				// two sends under 5ms, one under 100ms, one slower than 500ms
				goIdentity.MetricDeliveryLatency: {2, 0, 0, 0, 1, 0, 0, 1},
			},
		},
	}
	exp, err := NewExporterFromSource(provider.Meter("goidentity-test"), src)
	if err != nil {
		t.Fatalf("NewExporterFromSource failed: %v", err)
	}
	defer exp.Close()

	metrics := collect(t, reader)
	buckets, ok := metrics["goidentity_delivery_latency_seconds_bucket"].Data.(metricdata.Gauge[int64])
	if !ok {
		t.Fatalf("expected bucket gauge, got %#v", metrics["goidentity_delivery_latency_seconds_bucket"].Data)
	}
	byBound := make(map[string]int64, len(buckets.DataPoints))
	for _, dp := range buckets.DataPoints {
		le, _ := dp.Attributes.Value("le")
		byBound[le.AsString()] = dp.Value
	}
	want := map[string]int64{"0.005": 2, "0.05": 2, "0.1": 3, "0.5": 3, "+Inf": 4}
	for le, n := range want {
		if byBound[le] != n {
			t.Fatalf("le=%s: expected %d, got %d (all %v)", le, n, byBound[le], byBound)
		}
	}

	count, ok := metrics["goidentity_delivery_latency_seconds_count"].Data.(metricdata.Sum[int64])
	if !ok || len(count.DataPoints) != 1 || count.DataPoints[0].Value != 4 {
		t.Fatalf("expected 4 delivery samples, got %#v", metrics["goidentity_delivery_latency_seconds_count"].Data)
	}
}

func TestExporterAuditDropsSplitByEventType(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	src := &fakeSource{
		snapshot: goIdentity.MetricsSnapshot{
			Counters:   map[goIdentity.MetricID]uint64{},
			Histograms: map[goIdentity.MetricID][]uint64{},
		},
		dropped: map[string]uint64{"login_failure": 7, "step_up_begin": 2},
	}
	exp, err := NewExporterFromSource(provider.Meter("goidentity-test"), src)
	if err != nil {
		t.Fatalf("NewExporterFromSource failed: %v", err)
	}
	defer exp.Close()

	metrics := collect(t, reader)
	sum, ok := metrics["goidentity_audit_dropped_total"].Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("expected audit dropped sum, got %#v", metrics["goidentity_audit_dropped_total"].Data)
	}
	got := make(map[string]int64)
	for _, dp := range sum.DataPoints {
		eventType, _ := dp.Attributes.Value("event_type")
		got[eventType.AsString()] = dp.Value
	}
	if got["login_failure"] != 7 || got["step_up_begin"] != 2 || len(got) != 2 {
		t.Fatalf("unexpected per-type drops: %v", got)
	}
}
