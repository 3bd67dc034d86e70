package runtime

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	errspkg "github.com/drblury/ksqlflow/internal/engine/errors"
	executorpkg "github.com/drblury/ksqlflow/internal/engine/executor"
	"github.com/drblury/ksqlflow/internal/engine/ids"
	"github.com/drblury/ksqlflow/internal/engine/jsoncodec"
	loggingpkg "github.com/drblury/ksqlflow/internal/engine/logging"
	"github.com/drblury/ksqlflow/internal/engine/policy"
	"github.com/drblury/ksqlflow/internal/engine/schema"
	"github.com/drblury/ksqlflow/internal/engine/statement"
)

const (
	kindStream = "STREAM"
	kindTable  = "TABLE"
)

// Metadata keys set on published records.
const (
	// MetadataKeyRecordKey carries the rendered partition key.
	MetadataKeyRecordKey = "ksqlflow_record_key"

	// MetadataKeyTimestamp records when the record was published.
	MetadataKeyTimestamp = "timestamp"
)

// State tracks where a handle is in its lifecycle.
type State int

const (
	// StateDeclared means the entity is described but not created on the engine.
	StateDeclared State = iota
	// StateCreating means a create statement is in flight.
	StateCreating
	// StateActive means the entity exists and accepts inserts and subscriptions.
	StateActive
	// StateFailed means the create was rejected. Terminal for the handle.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateDeclared:
		return "declared"
	case StateCreating:
		return "creating"
	case StateActive:
		return "active"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// SerializationError reports a record that could not be encoded or keyed
// for publishing.
type SerializationError struct {
	Topic string
	cause error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("ksqlflow: record for entity %q failed to serialize: %v", e.Topic, e.cause)
}

func (e *SerializationError) Unwrap() error {
	return e.cause
}

// handle is the non-generic core shared by Stream and Table. The mutex
// guards state and policy; the descriptor and rendered statement are
// immutable after declaration.
type handle struct {
	rt         *Context
	kind       string
	desc       *schema.Descriptor
	createStmt string

	createMu sync.Mutex

	mu     sync.Mutex
	state  State
	policy policy.Config
}

// Stream is a typed handle for a declared stream of T.
type Stream[T any] struct {
	*handle
}

// Table is a typed handle for a declared or derived table of T.
type Table[T any] struct {
	*handle
}

// DeclareStream resolves the descriptor for T and renders its create
// statement. Declaration-time failures surface here, before anything
// touches the engine.
func DeclareStream[T any](rt *Context, cfg schema.Config) (*Stream[T], error) {
	h, err := declare[T](rt, kindStream, cfg)
	if err != nil {
		return nil, err
	}
	return &Stream[T]{h}, nil
}

// DeclareTable resolves the descriptor for T and renders its create
// statement.
func DeclareTable[T any](rt *Context, cfg schema.Config) (*Table[T], error) {
	h, err := declare[T](rt, kindTable, cfg)
	if err != nil {
		return nil, err
	}
	return &Table[T]{h}, nil
}

func declare[T any](rt *Context, kind string, cfg schema.Config) (*handle, error) {
	if rt == nil {
		return nil, errspkg.ErrContextRequired
	}
	if cfg.ValueFormat == "" {
		cfg.ValueFormat = rt.Conf.DefaultValueFormat()
	}

	desc, err := schema.Describe[T](cfg)
	if err != nil {
		return nil, err
	}

	var stmt string
	if kind == kindTable {
		stmt, err = statement.CreateTable(desc)
	} else {
		stmt, err = statement.CreateStream(desc)
	}
	if err != nil {
		return nil, err
	}

	return &handle{
		rt:         rt,
		kind:       kind,
		desc:       desc,
		createStmt: stmt,
		state:      StateDeclared,
		policy:     rt.Conf.ErrorPolicy,
	}, nil
}

// DeriveTable declares a table computed by the engine from another entity.
// Aggregation constraints are checked here: an aggregate without exactly
// one window is rejected.
func DeriveTable[T any](rt *Context, d statement.Derivation) (*Table[T], error) {
	if rt == nil {
		return nil, errspkg.ErrContextRequired
	}

	stmt, err := statement.CreateTableAs(d)
	if err != nil {
		return nil, err
	}
	desc, err := schema.DescribeDerived[T](d.Name)
	if err != nil {
		return nil, err
	}

	return &Table[T]{&handle{
		rt:         rt,
		kind:       kindTable,
		desc:       desc,
		createStmt: stmt,
		state:      StateDeclared,
		policy:     rt.Conf.ErrorPolicy,
	}}, nil
}

// Name returns the entity name, which doubles as its backing topic.
func (h *handle) Name() string {
	return h.desc.Topic
}

// Descriptor exposes the resolved metadata, mainly for inspection.
func (h *handle) Descriptor() *schema.Descriptor {
	return h.desc
}

// State reports the handle's lifecycle state.
func (h *handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

func (h *handle) setState(s State) {
	h.mu.Lock()
	h.state = s
	h.mu.Unlock()
}

// Policy returns the error routing policy a new subscription would capture.
func (h *handle) Policy() policy.Config {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.policy
}

// OnError rebinds the handle's error routing policy. Subscriptions already
// open keep the policy they captured at subscribe time.
func (h *handle) OnError(cfg policy.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	h.mu.Lock()
	h.policy = cfg
	h.mu.Unlock()
	return nil
}

// Create issues the entity's create statement. The statement runs at most
// once per entity name per Context; an engine "already exists" rejection
// counts as success so repeated creates stay idempotent.
func (h *handle) Create(ctx context.Context) error {
	h.createMu.Lock()
	defer h.createMu.Unlock()

	switch h.State() {
	case StateActive:
		return nil
	case StateFailed:
		return errspkg.ErrHandleFailed
	}
	h.setState(StateCreating)

	err := h.rt.createEntity(h.desc.Topic, func() error {
		execErr := h.rt.executor.Execute(ctx, h.createStmt, nil)
		if execErr == nil {
			return nil
		}
		var stmtErr *executorpkg.StatementError
		if errors.As(execErr, &stmtErr) && stmtErr.AlreadyExists() {
			h.rt.Logger.Debug("Entity already exists", loggingpkg.LogFields{
				"entity": h.desc.Topic,
				"kind":   h.kind,
			})
			return nil
		}
		return execErr
	})
	if err != nil {
		h.setState(StateFailed)
		return err
	}

	h.setState(StateActive)
	h.rt.Logger.Info("Created entity", loggingpkg.LogFields{
		"entity": h.desc.Topic,
		"kind":   h.kind,
	})
	return nil
}

// Drop removes the entity from the engine. A "does not exist" rejection
// counts as success. On success the handle returns to Declared and the
// entity may be created again.
func (h *handle) Drop(ctx context.Context, deleteTopic bool) error {
	h.createMu.Lock()
	defer h.createMu.Unlock()

	stmt := statement.Drop(h.kind, h.desc.Topic, deleteTopic)
	if err := h.rt.executor.Execute(ctx, stmt, nil); err != nil {
		var stmtErr *executorpkg.StatementError
		if !errors.As(err, &stmtErr) || !stmtErr.NotExists() {
			return err
		}
	}

	h.rt.unmarkIssued(h.desc.Topic)
	h.setState(StateDeclared)
	return nil
}

// Insert publishes one record to the stream's backing topic.
func (s *Stream[T]) Insert(ctx context.Context, record T) error {
	return insert(ctx, s.handle, record)
}

// Insert publishes one record to the table's backing topic. The engine
// upserts by key.
func (t *Table[T]) Insert(ctx context.Context, record T) error {
	return insert(ctx, t.handle, record)
}

func insert[T any](ctx context.Context, h *handle, record T) error {
	if h.desc.Derived() {
		return errspkg.ErrDerivedReadOnly
	}
	if h.State() != StateActive {
		return errspkg.ErrHandleNotActive
	}

	key, err := h.desc.RecordKey(record)
	if err != nil {
		return &SerializationError{Topic: h.desc.Topic, cause: err}
	}

	// Without a record plane the insert goes through the engine instead.
	if h.rt.publisher == nil {
		stmt, err := statement.Insert(h.desc, record)
		if err != nil {
			return &SerializationError{Topic: h.desc.Topic, cause: err}
		}
		return h.rt.executor.Execute(ctx, stmt, nil)
	}

	payload, err := jsoncodec.Marshal(record)
	if err != nil {
		return &SerializationError{Topic: h.desc.Topic, cause: err}
	}

	msg := message.NewMessage(ids.CreateULID(), payload)
	msg.SetContext(ctx)
	msg.Metadata.Set(MetadataKeyRecordKey, key)
	msg.Metadata.Set(MetadataKeyTimestamp, time.Now().UTC().Format(time.RFC3339Nano))

	return h.rt.publisher.Publish(h.desc.Topic, msg)
}

// Subscribe opens a typed subscription on the stream's backing topic.
func (s *Stream[T]) Subscribe(ctx context.Context) (*Subscription[T], error) {
	return subscribe[T](ctx, s.handle)
}

// Subscribe opens a typed subscription on the table's changelog.
func (t *Table[T]) Subscribe(ctx context.Context) (*Subscription[T], error) {
	return subscribe[T](ctx, t.handle)
}

// ToList materializes the table's current contents through a pull query.
func (t *Table[T]) ToList(ctx context.Context) ([]T, error) {
	h := t.handle
	if h.State() != StateActive {
		return nil, errspkg.ErrHandleNotActive
	}

	result, err := h.rt.executor.Query(ctx, statement.SelectAll(h.desc.Topic), nil)
	if err != nil {
		return nil, err
	}

	out := make([]T, 0, len(result.Rows))
	for _, row := range result.Rows {
		record, err := decodeRow[T](h.desc, result.Columns, row)
		if err != nil {
			return nil, err
		}
		out = append(out, record)
	}
	return out, nil
}

// decodeRow maps one engine row onto T. Column names come from the query
// header when present, else from the descriptor in declaration order. The
// engine uppercases unquoted identifiers, so matching is case-insensitive.
func decodeRow[T any](desc *schema.Descriptor, columns []string, row executorpkg.Row) (T, error) {
	var record T

	names := columns
	if len(names) == 0 {
		names = make([]string, 0, len(desc.Columns))
		for _, col := range desc.Columns {
			names = append(names, col.Name)
		}
	}

	fields := make(map[string]any, len(row))
	for i, name := range names {
		if i >= len(row) {
			break
		}
		fields[strings.ToLower(name)] = row[i]
	}

	buf, err := jsoncodec.Marshal(fields)
	if err != nil {
		return record, err
	}
	if err := jsoncodec.Unmarshal(buf, &record); err != nil {
		return record, err
	}
	return record, nil
}
