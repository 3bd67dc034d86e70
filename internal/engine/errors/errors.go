package errors

import sterrors "errors"

// Declaration-time failures. These are raised synchronously when a type's
// metadata is first resolved and are never retried.
var (
	ErrMissingTopic       = sterrors.New("ksqlflow: entity declares no topic")
	ErrNoKeyDefined       = sterrors.New("ksqlflow: entity declares no key column")
	ErrInvalidPrecision   = sterrors.New("ksqlflow: invalid decimal precision")
	ErrUnsupportedType    = sterrors.New("ksqlflow: no column mapping for Go type")
	ErrAmbiguousWindow    = sterrors.New("ksqlflow: aggregation requires exactly one window")
	ErrInvalidDuration    = sterrors.New("ksqlflow: invalid window duration")
	ErrDuplicateTimestamp = sterrors.New("ksqlflow: at most one column may carry a timestamp spec")
	ErrInvalidTimestamp   = sterrors.New("ksqlflow: timestamp format must not be empty")
	ErrDuplicateColumn    = sterrors.New("ksqlflow: duplicate column declaration")
	ErrUnknownField       = sterrors.New("ksqlflow: column references unknown struct field")
)

// ConfigValidationError wraps the reason a configuration was rejected.
type ConfigValidationError struct {
	Err error
}

func (e ConfigValidationError) Error() string {
	return "ksqlflow: invalid configuration: " + e.Err.Error()
}

func (e ConfigValidationError) Unwrap() error {
	return e.Err
}

// NewConfigValidationError wraps err, or returns nil when err is nil.
func NewConfigValidationError(err error) error {
	if err == nil {
		return nil
	}
	return ConfigValidationError{Err: err}
}

var (
	ErrConfigRequired     = sterrors.New("ksqlflow: config is required")
	ErrLoggerRequired     = sterrors.New("ksqlflow: logger is required")
	ErrExecutorRequired   = sterrors.New("ksqlflow: statement executor is required")
	ErrContextRequired    = sterrors.New("ksqlflow: stream context is required")
	ErrStructTypeRequired = sterrors.New("ksqlflow: entity type must be a struct")
	ErrHandleFailed       = sterrors.New("ksqlflow: handle is in a failed state")
	ErrHandleNotActive    = sterrors.New("ksqlflow: entity has not been created")
	ErrListingUnsupported = sterrors.New("ksqlflow: executor does not support listing")
	ErrTransportRequired  = sterrors.New("ksqlflow: record plane transport is required")
	ErrDerivedReadOnly    = sterrors.New("ksqlflow: derived entities are read-only")
)
