// Package executor submits statement text to the engine and reports
// structured failures. The core depends on it only through the Executor
// interface; the HTTP implementation talks to the engine's REST surface.
package executor

import (
	"context"
	"fmt"
	"strings"
)

// PropertyAutoOffsetReset is sent with every statement unless the caller
// overrides it, so fresh subscriptions observe the full topic.
const PropertyAutoOffsetReset = "auto.offset.reset"

// Row is one materialized result row in engine column order.
type Row []any

// QueryResult carries the rows of a bounded pull query together with the
// column names the engine reported in the response header.
type QueryResult struct {
	Columns []string
	Rows    []Row
}

// Executor submits statements to the engine. Execute carries definition
// statements; Query runs a bounded pull query and returns its rows. Both are
// safe for concurrent use by multiple handles.
type Executor interface {
	Execute(ctx context.Context, statement string, properties map[string]string) error
	Query(ctx context.Context, statement string, properties map[string]string) (QueryResult, error)
}

// Lister is implemented by executors that can run SHOW statements and
// return the entity names the engine reported.
type Lister interface {
	List(ctx context.Context, statement string, properties map[string]string) ([]string, error)
}

// StatementError is a failure reported by the engine (or the transport on the
// way to it), carrying enough context to diagnose without re-running.
type StatementError struct {
	Statement     string
	StatusCode    int
	ErrorCode     int
	EngineMessage string
	cause         error
}

func (e *StatementError) Error() string {
	msg := e.EngineMessage
	if msg == "" && e.cause != nil {
		msg = e.cause.Error()
	}
	return fmt.Sprintf("ksqlflow: statement failed (status %d): %s", e.StatusCode, msg)
}

func (e *StatementError) Unwrap() error {
	return e.cause
}

// AlreadyExists reports whether the engine rejected the statement because the
// entity is already defined. Callers treat this as success: issuing the same
// create twice must be a no-op.
func (e *StatementError) AlreadyExists() bool {
	return strings.Contains(strings.ToLower(e.EngineMessage), "already exists")
}

// NotExists reports the mirror condition for drop statements.
func (e *StatementError) NotExists() bool {
	return strings.Contains(strings.ToLower(e.EngineMessage), "does not exist")
}

// withDefaults copies the property map and fills auto.offset.reset when the
// caller did not set it.
func withDefaults(properties map[string]string) map[string]string {
	merged := make(map[string]string, len(properties)+1)
	for k, v := range properties {
		merged[k] = v
	}
	if _, ok := merged[PropertyAutoOffsetReset]; !ok {
		merged[PropertyAutoOffsetReset] = "earliest"
	}
	return merged
}
