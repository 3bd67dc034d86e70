package transport

// Capabilities describes the features supported by a transport backend.
// Use this to introspect what operations are available at runtime instead
// of probing the backend with trial publishes.
type Capabilities struct {
	// SupportsNativeDeadLetter indicates the transport has built-in dead
	// letter support. When false, ksqlflow routes dead letters at the
	// application level through the error policy.
	SupportsNativeDeadLetter bool

	// SupportsOrdering indicates the transport guarantees message ordering.
	// When true, records within a partition are delivered in order.
	SupportsOrdering bool

	// SupportsTracing indicates the transport propagates tracing headers natively.
	SupportsTracing bool

	// SupportsBatching indicates the transport can batch multiple records.
	SupportsBatching bool

	// SupportsAck indicates the transport supports explicit acknowledgment.
	SupportsAck bool

	// SupportsNack indicates the transport supports negative acknowledgment (redelivery).
	SupportsNack bool

	// SupportsPartitioning indicates the transport partitions records by key.
	SupportsPartitioning bool

	// MaxMessageSize is the maximum record size in bytes (0 = unlimited/unknown).
	MaxMessageSize int64

	// Name is the human-readable name of the transport.
	Name string

	// Version is the transport/driver version.
	Version string
}

// RequiresDeadLetterEmulation returns true if the transport needs
// application-level dead letter routing because it has no native support.
func (c Capabilities) RequiresDeadLetterEmulation() bool {
	return !c.SupportsNativeDeadLetter
}

// SupportsReliableDelivery returns true if the transport supports
// at-least-once delivery semantics (ack + nack).
func (c Capabilities) SupportsReliableDelivery() bool {
	return c.SupportsAck && c.SupportsNack
}

// Predefined capability sets for the built-in transports.
var (
	// ChannelCapabilities for the in-memory Go channel transport.
	ChannelCapabilities = Capabilities{
		Name:                     "channel",
		SupportsNativeDeadLetter: false,
		SupportsOrdering:         true,
		SupportsTracing:          false,
		SupportsBatching:         false,
		SupportsAck:              true,
		SupportsNack:             true,
	}

	// KafkaCapabilities for the Apache Kafka transport.
	KafkaCapabilities = Capabilities{
		Name:                     "kafka",
		SupportsNativeDeadLetter: false,
		SupportsOrdering:         true,
		SupportsTracing:          true,
		SupportsBatching:         true,
		SupportsAck:              true,
		SupportsNack:             false,
		SupportsPartitioning:     true,
		MaxMessageSize:           1048576, // Default 1MB
	}
)

// GetCapabilities returns the capabilities for a transport by name.
// Uses the registry to look up capabilities registered by each transport
// package. Returns a zero Capabilities struct if the transport is unknown.
func GetCapabilities(transportName string) Capabilities {
	return DefaultRegistry.GetCapabilities(transportName)
}
