// Package prometheus exposes engine counters and the delivery latency
// histogram as a prometheus.Collector.
//
// Register [NewCollector] on your own registry, or mount [Handler], which uses
// a private registry. Nothing is registered globally.
package prometheus
