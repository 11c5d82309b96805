package otel

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	goIdentity "github.com/MrEthical07/goIdentity"
	"github.com/MrEthical07/goIdentity/metrics/export/internaldefs"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

const (
	latencyBucketSuffix = "_bucket"
	latencyCountSuffix  = "_count"
	auditTypeAttr       = "event_type"
	boundAttr           = "le"
)

type metricsSource interface {
	MetricsSnapshot() goIdentity.MetricsSnapshot
	AuditDroppedByType() map[string]uint64
}

type flowCounter struct {
	id         goIdentity.MetricID
	instrument metric.Int64ObservableCounter
}

// latencyInstrument reports one engine histogram as a cumulative bucket
// gauge keyed by the le attribute, plus a total sample count.
type latencyInstrument struct {
	id      goIdentity.MetricID
	buckets metric.Int64ObservableGauge
	count   metric.Int64ObservableCounter
}

// Exporter publishes engine snapshots through observable instruments. Values
// are read on each collection.
type Exporter struct {
	source       metricsSource
	registration metric.Registration
	counters     []flowCounter
	latencies    []latencyInstrument
	auditDropped metric.Int64ObservableCounter
	bounds       []metric.ObserveOption
}

// NewExporter registers instruments on meter that read from engine.
func NewExporter(meter metric.Meter, engine *goIdentity.Engine) (*Exporter, error) {
	if engine == nil {
		return nil, ErrNilSource
	}
	return NewExporterFromSource(meter, engine)
}

// NewExporterFromSource registers instruments on meter that read from source.
func NewExporterFromSource(meter metric.Meter, source metricsSource) (*Exporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	e := &Exporter{
		source:    source,
		counters:  make([]flowCounter, 0, len(internaldefs.CounterDefs)),
		latencies: make([]latencyInstrument, 0, len(internaldefs.HistogramDefs)),
		bounds:    latencyBounds(),
	}
	observables := make([]metric.Observable, 0, len(internaldefs.CounterDefs)+2*len(internaldefs.HistogramDefs)+1)

	for _, def := range internaldefs.CounterDefs {
		ins, err := meter.Int64ObservableCounter(def.Name, metric.WithDescription(def.Help))
		if err != nil {
			return nil, fmt.Errorf("create counter %s: %w", def.Name, err)
		}
		e.counters = append(e.counters, flowCounter{id: def.ID, instrument: ins})
		observables = append(observables, ins)
	}

	for _, def := range internaldefs.HistogramDefs {
		buckets, err := meter.Int64ObservableGauge(
			def.Name+latencyBucketSuffix,
			metric.WithDescription(def.Help+" Cumulative count per upper bound."),
		)
		if err != nil {
			return nil, fmt.Errorf("create latency buckets %s: %w", def.Name, err)
		}
		count, err := meter.Int64ObservableCounter(
			def.Name+latencyCountSuffix,
			metric.WithDescription(def.Help+" Total samples."),
		)
		if err != nil {
			return nil, fmt.Errorf("create latency count %s: %w", def.Name, err)
		}
		e.latencies = append(e.latencies, latencyInstrument{id: def.ID, buckets: buckets, count: count})
		observables = append(observables, buckets, count)
	}

	auditDropped, err := meter.Int64ObservableCounter(
		internaldefs.AuditDroppedName,
		metric.WithDescription(internaldefs.AuditDroppedHelp),
	)
	if err != nil {
		return nil, fmt.Errorf("create audit dropped counter: %w", err)
	}
	e.auditDropped = auditDropped
	observables = append(observables, auditDropped)

	registration, err := meter.RegisterCallback(e.observe, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	e.registration = registration
	return e, nil
}

func (e *Exporter) observe(_ context.Context, observer metric.Observer) error {
	snapshot := e.source.MetricsSnapshot()
	for _, c := range e.counters {
		observer.ObserveInt64(c.instrument, int64(snapshot.Counters[c.id]))
	}

	for _, l := range e.latencies {
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(snapshot.Histograms[l.id]))
		for i, opt := range e.bounds {
			observer.ObserveInt64(l.buckets, int64(cumulative[i]), opt)
		}
		observer.ObserveInt64(l.count, int64(cumulative[len(cumulative)-1]))
	}

	for eventType, n := range e.source.AuditDroppedByType() {
		observer.ObserveInt64(e.auditDropped, int64(n),
			metric.WithAttributes(attribute.String(auditTypeAttr, eventType)))
	}
	return nil
}

// latencyBounds builds one le attribute set per engine bucket, +Inf last.
func latencyBounds() []metric.ObserveOption {
	out := make([]metric.ObserveOption, 0, len(internaldefs.HistogramUpperBounds)+1)
	for _, bound := range internaldefs.HistogramUpperBounds {
		le := strconv.FormatFloat(bound, 'g', -1, 64)
		out = append(out, metric.WithAttributes(attribute.String(boundAttr, le)))
	}
	return append(out, metric.WithAttributes(attribute.String(boundAttr, "+Inf")))
}

// Close unregisters the collection callback.
func (e *Exporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
