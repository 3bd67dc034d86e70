// Package policy decides what happens to a raw record that fails to
// deserialize into its target type: drop it, stop the sequence, retry the
// decode, or forward it to a dead-letter topic.
package policy

import (
	"errors"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/ksqlflow/internal/engine/ids"
	"github.com/drblury/ksqlflow/internal/engine/jsoncodec"
	"github.com/drblury/ksqlflow/internal/engine/logging"
)

// Action selects the per-record failure handling strategy.
type Action int

const (
	// Skip drops the failing record and continues the sequence.
	Skip Action = iota
	// Stop terminates the sequence with a DeserializationError.
	Stop
	// Retry re-attempts the decode a bounded number of times, then falls
	// back to Skip. The bound is never unbounded, so a poison message cannot
	// livelock a subscription.
	Retry
	// DeadLetter forwards the raw payload plus failure metadata to the
	// configured dead-letter topic, then continues as Skip.
	DeadLetter
)

func (a Action) String() string {
	switch a {
	case Skip:
		return "skip"
	case Stop:
		return "stop"
	case Retry:
		return "retry"
	case DeadLetter:
		return "dead_letter"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// defaultMaxRetries bounds Retry when the caller leaves it unset.
const defaultMaxRetries = 3

var (
	ErrDeadLetterTopicRequired = errors.New("ksqlflow: dead-letter topic is required for the dead-letter action")
	ErrUnknownAction           = errors.New("ksqlflow: unknown error-routing action")
)

// Config is the error-routing policy bound to a handle. It is treated as
// read-only once a subscription has captured it; rebinding a handle's policy
// replaces the value instead of mutating it.
type Config struct {
	Action          Action
	DeadLetterTopic string
	MaxRetries      int
}

// Validate checks the config at declaration time.
func (c Config) Validate() error {
	switch c.Action {
	case Skip, Stop, Retry, DeadLetter:
	default:
		return fmt.Errorf("%w: %d", ErrUnknownAction, int(c.Action))
	}
	if c.Action == DeadLetter && c.DeadLetterTopic == "" {
		return ErrDeadLetterTopicRequired
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.MaxRetries <= 0 {
		c.MaxRetries = defaultMaxRetries
	}
	return c
}

// DeserializationError is the terminal error surfaced to a consumer when the
// Stop action fires.
type DeserializationError struct {
	Topic     string
	MessageID string
	cause     error
}

func (e *DeserializationError) Error() string {
	return fmt.Sprintf("ksqlflow: record %s on topic %q failed to deserialize: %v", e.MessageID, e.Topic, e.cause)
}

func (e *DeserializationError) Unwrap() error {
	return e.cause
}

// Envelope is the payload published to the dead-letter topic: the original
// bytes untouched, plus enough metadata to inspect or replay offline.
type Envelope struct {
	SourceTopic       string    `json:"source_topic"`
	OriginalTimestamp time.Time `json:"original_timestamp"`
	FailureReason     string    `json:"failure_reason"`
	Payload           []byte    `json:"payload"`
}

// Decision is the outcome of routing one failed record.
type Decision int

const (
	// Continue drops the record and keeps the sequence alive.
	Continue Decision = iota
	// Recovered means a retry decode succeeded; the caller delivers the
	// record normally.
	Recovered
	// Terminate stops the sequence; Route returns the terminal error.
	Terminate
)

// Counters receives the observability events of a router. Implemented by the
// runtime's Prometheus metrics; a no-op implementation is used when metrics
// are disabled.
type Counters interface {
	RecordSkipped(topic string)
	RecordRetried(topic string)
	RecordDeadLettered(topic string)
	RecordDeadLetterFailure(topic string)
}

// NopCounters discards all events.
type NopCounters struct{}

func (NopCounters) RecordSkipped(string)           {}
func (NopCounters) RecordRetried(string)           {}
func (NopCounters) RecordDeadLettered(string)      {}
func (NopCounters) RecordDeadLetterFailure(string) {}

// Router applies one policy to failed records of one subscription. The
// config is captured at construction and never mutated afterwards.
type Router struct {
	cfg       Config
	publisher message.Publisher
	logger    logging.ServiceLogger
	counters  Counters
}

// NewRouter validates the config and builds a router. The publisher is only
// required for the dead-letter action.
func NewRouter(cfg Config, publisher message.Publisher, logger logging.ServiceLogger, counters Counters) (*Router, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if counters == nil {
		counters = NopCounters{}
	}
	return &Router{
		cfg:       cfg.withDefaults(),
		publisher: publisher,
		logger:    logger,
		counters:  counters,
	}, nil
}

// Route handles one record that failed to deserialize. decode re-attempts
// the deserialization and is only invoked for the Retry action. The returned
// error is non-nil exactly when the decision is Terminate.
func (r *Router) Route(msg *message.Message, sourceTopic string, decodeErr error, decode func() error) (Decision, error) {
	switch r.cfg.Action {
	case Stop:
		return Terminate, &DeserializationError{Topic: sourceTopic, MessageID: msg.UUID, cause: decodeErr}

	case Retry:
		for attempt := 1; attempt <= r.cfg.MaxRetries; attempt++ {
			r.counters.RecordRetried(sourceTopic)
			if decode() == nil {
				return Recovered, nil
			}
		}
		r.skip(msg, sourceTopic, decodeErr)
		return Continue, nil

	case DeadLetter:
		r.deadLetter(msg, sourceTopic, decodeErr)
		return Continue, nil

	default: // Skip
		r.skip(msg, sourceTopic, decodeErr)
		return Continue, nil
	}
}

func (r *Router) skip(msg *message.Message, sourceTopic string, decodeErr error) {
	r.counters.RecordSkipped(sourceTopic)
	r.logger.Debug("Skipping undecodable record", logging.LogFields{
		"topic":      sourceTopic,
		"message_id": msg.UUID,
		"reason":     decodeErr.Error(),
	})
}

// deadLetter publishes the envelope and continues. A dead-letter publish
// failure is observable but never fatal to the main sequence.
func (r *Router) deadLetter(msg *message.Message, sourceTopic string, decodeErr error) {
	envelope := Envelope{
		SourceTopic:       sourceTopic,
		OriginalTimestamp: originalTimestamp(msg),
		FailureReason:     decodeErr.Error(),
		Payload:           msg.Payload,
	}

	payload, err := jsoncodec.Marshal(envelope)
	if err != nil {
		r.counters.RecordDeadLetterFailure(sourceTopic)
		r.logger.Error("Failed to encode dead-letter envelope", err, logging.LogFields{
			"topic":      sourceTopic,
			"message_id": msg.UUID,
		})
		return
	}

	out := message.NewMessage(ids.CreateULID(), payload)
	out.Metadata.Set("source_topic", sourceTopic)
	out.Metadata.Set("source_message_id", msg.UUID)

	if err := r.publisher.Publish(r.cfg.DeadLetterTopic, out); err != nil {
		r.counters.RecordDeadLetterFailure(sourceTopic)
		r.logger.Error("Failed to publish dead-letter record", err, logging.LogFields{
			"topic":             sourceTopic,
			"dead_letter_topic": r.cfg.DeadLetterTopic,
			"message_id":        msg.UUID,
		})
		return
	}

	r.counters.RecordDeadLettered(sourceTopic)
}

func originalTimestamp(msg *message.Message) time.Time {
	if raw := msg.Metadata.Get("timestamp"); raw != "" {
		if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			return ts
		}
	}
	return time.Now().UTC()
}
