// Package metrics aggregates connect latency, per-request latency, session
// outcomes and traffic counters across every session of a run.
//
//	collector := metrics.NewCollector()
//	collector.Start()
//	collector.RecordConnect(dialLatency, nil)
//	collector.RecordRequest(roundTrip, nil)
//	collector.RecordSession(metrics.SessionRecord{OK: true, BytesSent: 22})
//	stats := collector.Stats(elapsed)
//
// Latencies are kept in HDR histograms, so percentiles stay accurate with
// tens of thousands of samples. The Collector is safe for concurrent use.
//
// Failures are grouped by kind. An error that implements
//
//	interface{ ErrorKind() string }
//
// anywhere in its chain is grouped under that kind; any other error is
// grouped under a readable form of its Go type name.
package metrics
