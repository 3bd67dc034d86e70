package ksqlflow

import (
	configpkg "github.com/drblury/ksqlflow/internal/engine/config"
	errspkg "github.com/drblury/ksqlflow/internal/engine/errors"
	executorpkg "github.com/drblury/ksqlflow/internal/engine/executor"
	idspkg "github.com/drblury/ksqlflow/internal/engine/ids"
	jsoncodec "github.com/drblury/ksqlflow/internal/engine/jsoncodec"
	loggingpkg "github.com/drblury/ksqlflow/internal/engine/logging"
	policypkg "github.com/drblury/ksqlflow/internal/engine/policy"
	runtimepkg "github.com/drblury/ksqlflow/internal/engine/runtime"
	schemapkg "github.com/drblury/ksqlflow/internal/engine/schema"
	statementpkg "github.com/drblury/ksqlflow/internal/engine/statement"
	windowspkg "github.com/drblury/ksqlflow/internal/engine/windows"
	transportpkg "github.com/drblury/ksqlflow/transport"
)

type (
	Config                = configpkg.Config
	ConfigValidationError = errspkg.ConfigValidationError

	Context          = runtimepkg.Context
	Dependencies     = runtimepkg.Dependencies
	TransportFactory = runtimepkg.TransportFactory
	State            = runtimepkg.State

	Stream[T any]       = runtimepkg.Stream[T]
	Table[T any]        = runtimepkg.Table[T]
	Subscription[T any] = runtimepkg.Subscription[T]

	// Entity declaration
	EntityConfig       = schemapkg.Config
	Column             = schemapkg.Column
	DecimalSpec        = schemapkg.DecimalSpec
	TimestampSpec      = schemapkg.TimestampSpec
	TimestampSemantics = schemapkg.TimestampSemantics
	Descriptor         = schemapkg.Descriptor
	Property           = schemapkg.Property

	// Derived tables
	Derivation = statementpkg.Derivation
	Aggregate  = statementpkg.Aggregate

	// Windows
	Window         = windowspkg.Window
	TumblingWindow = windowspkg.TumblingWindow
	HoppingWindow  = windowspkg.HoppingWindow
	SessionWindow  = windowspkg.SessionWindow

	// Error routing
	ErrorPolicy          = policypkg.Config
	PolicyAction         = policypkg.Action
	DeadLetterEnvelope   = policypkg.Envelope
	DeserializationError = policypkg.DeserializationError
	SerializationError   = runtimepkg.SerializationError

	// Statement plane
	Executor       = executorpkg.Executor
	Lister         = executorpkg.Lister
	Row            = executorpkg.Row
	QueryResult    = executorpkg.QueryResult
	HTTPExecutor   = executorpkg.HTTPExecutor
	HTTPOption     = executorpkg.HTTPOption
	StatementError = executorpkg.StatementError

	// Policy metrics
	PolicyMetrics         = runtimepkg.PolicyMetrics
	PolicyTopicMetrics    = runtimepkg.PolicyTopicMetrics
	PolicyMetricsSnapshot = runtimepkg.PolicyMetricsSnapshot

	LogFields     = loggingpkg.LogFields
	ServiceLogger = loggingpkg.ServiceLogger

	// Modular transport types
	Transport             = transportpkg.Transport
	TransportBuilder      = transportpkg.Builder
	TransportConfig       = transportpkg.Config
	TransportRegistry     = transportpkg.Registry
	TransportCapabilities = transportpkg.Capabilities
)

var (
	NewContext              = runtimepkg.NewContext
	DefaultTransportFactory = runtimepkg.DefaultTransportFactory
	ValidateConfig          = configpkg.ValidateConfig

	// Windows
	Tumbling = windowspkg.Tumbling
	Hopping  = windowspkg.Hopping
	Session  = windowspkg.Session

	// Statement plane
	NewHTTPExecutor = executorpkg.NewHTTP
	WithHTTPClient  = executorpkg.WithHTTPClient

	// Policy metrics
	NewPolicyMetrics = runtimepkg.NewPolicyMetrics

	// Modular transport registry
	// Import individual transports via: _ "github.com/drblury/ksqlflow/transport/kafka"
	DefaultTransportRegistry = transportpkg.DefaultRegistry
	RegisterTransport        = transportpkg.Register
	BuildTransport           = transportpkg.Build
	GetTransportCapabilities = transportpkg.GetCapabilities

	Marshal       = jsoncodec.Marshal
	MarshalIndent = jsoncodec.MarshalIndent
	Unmarshal     = jsoncodec.Unmarshal
	Encode        = jsoncodec.Encode
	Decode        = jsoncodec.Decode

	NewSlogServiceLogger      = loggingpkg.NewSlogServiceLogger
	NewWatermillServiceLogger = loggingpkg.NewWatermillServiceLogger

	CreateULID = idspkg.CreateULID

	ErrConfigRequired     = errspkg.ErrConfigRequired
	ErrLoggerRequired     = errspkg.ErrLoggerRequired
	ErrExecutorRequired   = errspkg.ErrExecutorRequired
	ErrContextRequired    = errspkg.ErrContextRequired
	ErrStructTypeRequired = errspkg.ErrStructTypeRequired
	ErrHandleFailed       = errspkg.ErrHandleFailed
	ErrHandleNotActive    = errspkg.ErrHandleNotActive
	ErrListingUnsupported = errspkg.ErrListingUnsupported
	ErrTransportRequired  = errspkg.ErrTransportRequired
	ErrDerivedReadOnly    = errspkg.ErrDerivedReadOnly

	ErrMissingTopic       = errspkg.ErrMissingTopic
	ErrNoKeyDefined       = errspkg.ErrNoKeyDefined
	ErrInvalidPrecision   = errspkg.ErrInvalidPrecision
	ErrUnsupportedType    = errspkg.ErrUnsupportedType
	ErrAmbiguousWindow    = errspkg.ErrAmbiguousWindow
	ErrInvalidDuration    = errspkg.ErrInvalidDuration
	ErrDuplicateTimestamp = errspkg.ErrDuplicateTimestamp
	ErrInvalidTimestamp   = errspkg.ErrInvalidTimestamp
	ErrDuplicateColumn    = errspkg.ErrDuplicateColumn
	ErrUnknownField       = errspkg.ErrUnknownField

	ErrDeadLetterTopicRequired = policypkg.ErrDeadLetterTopicRequired
	ErrUnknownAction           = policypkg.ErrUnknownAction
)

// Error routing actions for records that fail to deserialize.
const (
	Skip       = policypkg.Skip
	Stop       = policypkg.Stop
	Retry      = policypkg.Retry
	DeadLetter = policypkg.DeadLetter
)

// Handle lifecycle states.
const (
	StateDeclared = runtimepkg.StateDeclared
	StateCreating = runtimepkg.StateCreating
	StateActive   = runtimepkg.StateActive
	StateFailed   = runtimepkg.StateFailed
)

// Timestamp column semantics.
const (
	EventTime      = schemapkg.EventTime
	ProcessingTime = schemapkg.ProcessingTime
)

// Record-plane metadata keys set on every published message.
const (
	MetadataKeyRecordKey = runtimepkg.MetadataKeyRecordKey
	MetadataKeyTimestamp = runtimepkg.MetadataKeyTimestamp
)

// DeclareStream declares a stream backed by record type T. The stream does
// not exist on the engine until Create is called.
func DeclareStream[T any](rt *Context, cfg EntityConfig) (*Stream[T], error) {
	return runtimepkg.DeclareStream[T](rt, cfg)
}

// DeclareTable declares a table backed by record type T.
func DeclareTable[T any](rt *Context, cfg EntityConfig) (*Table[T], error) {
	return runtimepkg.DeclareTable[T](rt, cfg)
}

// DeriveTable declares a read-only table materialized from a continuous
// query over an existing entity.
func DeriveTable[T any](rt *Context, d Derivation) (*Table[T], error) {
	return runtimepkg.DeriveTable[T](rt, d)
}

// Describe resolves and caches the column descriptor for T without
// declaring a handle. Useful for inspecting the generated schema.
func Describe[T any](cfg EntityConfig) (*Descriptor, error) {
	return schemapkg.Describe[T](cfg)
}
