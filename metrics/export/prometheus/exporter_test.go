package prometheus

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	goIdentity "github.com/MrEthical07/goIdentity"
	"github.com/prometheus/client_golang/prometheus"
)

type fakeSource struct {
	snapshot goIdentity.MetricsSnapshot
	dropped  uint64
}

func (f fakeSource) MetricsSnapshot() goIdentity.MetricsSnapshot { return f.snapshot }
func (f fakeSource) AuditDropped() uint64                        { return f.dropped }

func testSource() fakeSource {
	return fakeSource{
		snapshot: goIdentity.MetricsSnapshot{
			Counters: map[goIdentity.MetricID]uint64{
				goIdentity.MetricLoginSuccess: 7,
				goIdentity.MetricStepUpIssued: 2,
			},
			Histograms: map[goIdentity.MetricID][]uint64{
				goIdentity.MetricDeliveryLatency: {1, 2, 3, 4, 5, 6, 7, 8},
			},
		},
		dropped: 2,
	}
}

func TestCollectorGathersCountersAndHistogram(t *testing.T) {
	registry := prometheus.NewRegistry()
	if err := registry.Register(NewCollectorFromSource(testSource())); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}

	values := map[string]float64{}
	var histCount uint64
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			if c := m.GetCounter(); c != nil {
				values[mf.GetName()] = c.GetValue()
			}
			if h := m.GetHistogram(); h != nil && mf.GetName() == "goidentity_delivery_latency_seconds" {
				histCount = h.GetSampleCount()
			}
		}
	}

	if values["goidentity_login_success_total"] != 7 {
		t.Fatalf("expected login_success 7, got %v", values["goidentity_login_success_total"])
	}
	if values["goidentity_step_up_issued_total"] != 2 {
		t.Fatalf("expected step_up_issued 2, got %v", values["goidentity_step_up_issued_total"])
	}
	if values["goidentity_audit_dropped_total"] != 2 {
		t.Fatalf("expected audit_dropped 2, got %v", values["goidentity_audit_dropped_total"])
	}
	if histCount != 36 {
		t.Fatalf("expected histogram count 36, got %d", histCount)
	}
}

func TestHandlerServesTextFormat(t *testing.T) {
	h, err := Handler(testSource())
	if err != nil {
		t.Fatalf("Handler failed: %v", err)
	}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	body, _ := io.ReadAll(rr.Body)
	out := string(body)
	if !strings.Contains(out, "goidentity_login_success_total 7") {
		t.Fatalf("expected login_success counter in output, got:\n%s", out)
	}
	if !strings.Contains(out, `goidentity_delivery_latency_seconds_bucket{le="0.005"} 1`) {
		t.Fatalf("expected first cumulative bucket, got:\n%s", out)
	}
	if !strings.Contains(out, `goidentity_delivery_latency_seconds_bucket{le="+Inf"} 36`) {
		t.Fatalf("expected +Inf bucket, got:\n%s", out)
	}
}
