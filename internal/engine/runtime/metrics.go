package runtime

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PolicyMetrics tracks error-routing outcomes per source topic.
type PolicyMetrics struct {
	mu sync.RWMutex

	// Per-topic counts
	topicCounts map[string]*PolicyTopicMetrics

	// Prometheus collectors
	consumedTotal      *prometheus.CounterVec
	skippedTotal       *prometheus.CounterVec
	retriedTotal       *prometheus.CounterVec
	deadLetteredTotal  *prometheus.CounterVec
	deadLetterFailures *prometheus.CounterVec

	registerer prometheus.Registerer
	registered bool
}

// PolicyTopicMetrics holds the routing counts for a single source topic.
type PolicyTopicMetrics struct {
	RecordsConsumed     uint64    `json:"records_consumed"`
	RecordsSkipped      uint64    `json:"records_skipped"`
	RecordsRetried      uint64    `json:"records_retried"`
	RecordsDeadLettered uint64    `json:"records_dead_lettered"`
	DeadLetterFailures  uint64    `json:"dead_letter_failures"`
	LastUpdatedAt       time.Time `json:"last_updated_at"`
}

// PolicyMetricsSnapshot provides a point-in-time view of policy metrics.
type PolicyMetricsSnapshot struct {
	TotalConsumed     uint64                         `json:"total_consumed"`
	TotalSkipped      uint64                         `json:"total_skipped"`
	TotalRetried      uint64                         `json:"total_retried"`
	TotalDeadLettered uint64                         `json:"total_dead_lettered"`
	TopicMetrics      map[string]*PolicyTopicMetrics `json:"topic_metrics"`
	CollectedAt       time.Time                      `json:"collected_at"`
}

// newPolicyCounterVec creates a counter vec with the standard ksqlflow/policy namespace.
func newPolicyCounterVec(name, help string, labels []string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ksqlflow",
			Subsystem: "policy",
			Name:      name,
			Help:      help,
		},
		labels,
	)
}

// NewPolicyMetrics creates a new policy metrics collector.
func NewPolicyMetrics(registerer prometheus.Registerer) *PolicyMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &PolicyMetrics{
		topicCounts:        make(map[string]*PolicyTopicMetrics),
		registerer:         registerer,
		consumedTotal:      newPolicyCounterVec("records_consumed_total", "Total number of records delivered to subscriptions", []string{"topic"}),
		skippedTotal:       newPolicyCounterVec("records_skipped_total", "Total number of undecodable records dropped by the skip action", []string{"topic"}),
		retriedTotal:       newPolicyCounterVec("records_retried_total", "Total number of decode retries attempted", []string{"topic"}),
		deadLetteredTotal:  newPolicyCounterVec("records_dead_lettered_total", "Total number of records published to a dead letter topic", []string{"topic"}),
		deadLetterFailures: newPolicyCounterVec("dead_letter_failures_total", "Total number of dead letter publishes that failed", []string{"topic"}),
	}
}

// Register registers the Prometheus collectors. Safe to call multiple times.
func (m *PolicyMetrics) Register() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.registered {
		return nil
	}

	collectors := []prometheus.Collector{
		m.consumedTotal,
		m.skippedTotal,
		m.retriedTotal,
		m.deadLetteredTotal,
		m.deadLetterFailures,
	}

	for _, c := range collectors {
		if err := m.registerer.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}

	m.registered = true
	return nil
}

// RecordConsumed records a record delivered to a subscription.
func (m *PolicyMetrics) RecordConsumed(topic string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	metrics := m.getOrCreateTopicMetrics(topic)
	metrics.RecordsConsumed++
	metrics.LastUpdatedAt = time.Now()

	m.consumedTotal.WithLabelValues(topic).Inc()
}

// RecordSkipped records an undecodable record dropped by the skip action.
func (m *PolicyMetrics) RecordSkipped(topic string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	metrics := m.getOrCreateTopicMetrics(topic)
	metrics.RecordsSkipped++
	metrics.LastUpdatedAt = time.Now()

	m.skippedTotal.WithLabelValues(topic).Inc()
}

// RecordRetried records one decode retry attempt.
func (m *PolicyMetrics) RecordRetried(topic string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	metrics := m.getOrCreateTopicMetrics(topic)
	metrics.RecordsRetried++
	metrics.LastUpdatedAt = time.Now()

	m.retriedTotal.WithLabelValues(topic).Inc()
}

// RecordDeadLettered records a record published to a dead letter topic.
func (m *PolicyMetrics) RecordDeadLettered(topic string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	metrics := m.getOrCreateTopicMetrics(topic)
	metrics.RecordsDeadLettered++
	metrics.LastUpdatedAt = time.Now()

	m.deadLetteredTotal.WithLabelValues(topic).Inc()
}

// RecordDeadLetterFailure records a dead letter publish that failed.
func (m *PolicyMetrics) RecordDeadLetterFailure(topic string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	metrics := m.getOrCreateTopicMetrics(topic)
	metrics.DeadLetterFailures++
	metrics.LastUpdatedAt = time.Now()

	m.deadLetterFailures.WithLabelValues(topic).Inc()
}

// GetSnapshot returns a point-in-time snapshot of all policy metrics.
func (m *PolicyMetrics) GetSnapshot() PolicyMetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snapshot := PolicyMetricsSnapshot{
		TopicMetrics: make(map[string]*PolicyTopicMetrics),
		CollectedAt:  time.Now(),
	}

	for topic, metrics := range m.topicCounts {
		metricsCopy := *metrics
		snapshot.TopicMetrics[topic] = &metricsCopy
		snapshot.TotalConsumed += metrics.RecordsConsumed
		snapshot.TotalSkipped += metrics.RecordsSkipped
		snapshot.TotalRetried += metrics.RecordsRetried
		snapshot.TotalDeadLettered += metrics.RecordsDeadLettered
	}

	return snapshot
}

// GetTopicMetrics returns metrics for a specific topic, or nil if unseen.
func (m *PolicyMetrics) GetTopicMetrics(topic string) *PolicyTopicMetrics {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if metrics, ok := m.topicCounts[topic]; ok {
		metricsCopy := *metrics
		return &metricsCopy
	}
	return nil
}

func (m *PolicyMetrics) getOrCreateTopicMetrics(topic string) *PolicyTopicMetrics {
	if metrics, ok := m.topicCounts[topic]; ok {
		return metrics
	}
	metrics := &PolicyTopicMetrics{}
	m.topicCounts[topic] = metrics
	return metrics
}

// Reset resets all metrics (useful for testing).
func (m *PolicyMetrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.topicCounts = make(map[string]*PolicyTopicMetrics)
	m.consumedTotal.Reset()
	m.skippedTotal.Reset()
	m.retriedTotal.Reset()
	m.deadLetteredTotal.Reset()
	m.deadLetterFailures.Reset()
}
