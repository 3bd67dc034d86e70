// Package ksqlflow maps plain Go structs onto streaming-SQL streams and
// tables. It renders CREATE, INSERT, and continuous-query statements from
// struct declarations, executes them against a ksqlDB-compatible engine over
// HTTP, and moves records through Watermill publishers and subscribers
// (Kafka or in-process Go channels) on the record plane.
//
// A record type is declared once per process: DeclareStream and DeclareTable
// bind a struct to a topic and a key column, Create issues the rendered
// CREATE statement exactly once per entity, and Insert, Subscribe, and
// ToList operate on the live entity. DeriveTable materializes windowed
// aggregations over an existing stream as a read-only table.
//
// # Windows
//
// Three window shapes cover the usual aggregation needs:
//   - Tumbling: fixed-size, non-overlapping buckets
//   - Hopping: fixed-size buckets advancing by a smaller step
//   - Session: gap-bounded bursts of activity
//
// Durations render in the largest unit not exceeding the duration,
// truncating any remainder, so time.Hour becomes "1 HOURS" and 90 seconds
// renders as "1 MINUTES".
//
// # Error routing
//
// Records that fail to deserialize on a subscription are routed by the
// handle's ErrorPolicy: Skip drops them, Stop terminates the subscription
// with a DeserializationError, Retry re-attempts the decode a bounded
// number of times, and DeadLetter forwards the raw payload in an envelope
// to a dead-letter topic. Routing outcomes are counted per source topic
// and exported as Prometheus metrics when Config.MetricsEnabled is set.
//
// # Transports
//
// The record plane is modular: the kafka transport speaks to real brokers
// with consumer groups, and the channel transport keeps everything
// in-process for tests. Additional transports register themselves through
// the transport registry.
//
// See examples/orders for a complete walkthrough.
package ksqlflow
