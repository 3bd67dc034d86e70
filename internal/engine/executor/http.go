package executor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/drblury/ksqlflow/internal/engine/jsoncodec"
	"github.com/drblury/ksqlflow/internal/engine/logging"
)

const (
	statementPath = "/ksql"
	queryPath     = "/query"

	defaultTimeout = 30 * time.Second
)

// HTTPExecutor submits statements to the engine's REST endpoints. One
// instance is shared by all handles of a context; the underlying http.Client
// pools connections and is safe for concurrent use.
type HTTPExecutor struct {
	baseURL string
	client  *http.Client
	logger  logging.ServiceLogger
	tracer  trace.Tracer
}

// HTTPOption customises the HTTPExecutor.
type HTTPOption func(*HTTPExecutor)

// WithHTTPClient overrides the default client, for timeouts or TLS settings.
func WithHTTPClient(client *http.Client) HTTPOption {
	return func(e *HTTPExecutor) {
		e.client = client
	}
}

// NewHTTP builds an executor for the engine reachable at baseURL.
func NewHTTP(baseURL string, logger logging.ServiceLogger, opts ...HTTPOption) *HTTPExecutor {
	e := &HTTPExecutor{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: defaultTimeout},
		logger:  logger,
		tracer:  otel.Tracer("ksqlflow/executor"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type statementRequest struct {
	KSQL              string            `json:"ksql"`
	StreamsProperties map[string]string `json:"streamsProperties,omitempty"`
}

type engineError struct {
	ErrorCode int    `json:"error_code"`
	Message   string `json:"message"`
}

// Execute posts a definition statement to the engine. A non-2xx response is
// decoded into a StatementError carrying the engine's message and codes.
func (e *HTTPExecutor) Execute(ctx context.Context, statement string, properties map[string]string) error {
	ctx, span := e.tracer.Start(ctx, "ksql.execute", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	body, status, err := e.post(ctx, statementPath, statement, properties)
	span.SetAttributes(attribute.Int("http.status_code", status))
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	if status < 200 || status >= 300 {
		stmtErr := decodeEngineError(statement, status, body)
		span.SetStatus(codes.Error, stmtErr.EngineMessage)
		e.logger.Debug("Statement rejected", logging.LogFields{
			"status":  status,
			"message": stmtErr.EngineMessage,
		})
		return stmtErr
	}

	e.logger.Debug("Statement accepted", logging.LogFields{"status": status})
	return nil
}

// queryResponseItem is one element of the engine's pull-query response
// array: a header, a row, or a terminal message.
type queryResponseItem struct {
	Header *struct {
		QueryID string `json:"queryId"`
		Schema  string `json:"schema"`
	} `json:"header,omitempty"`
	Row *struct {
		Columns []any `json:"columns"`
	} `json:"row,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`
	FinalMessage string `json:"finalMessage,omitempty"`
}

// Query runs a bounded pull query and collects its rows. The result is
// bounded by the engine response, so it never blocks past the HTTP timeout.
func (e *HTTPExecutor) Query(ctx context.Context, statement string, properties map[string]string) (QueryResult, error) {
	ctx, span := e.tracer.Start(ctx, "ksql.query", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	body, status, err := e.post(ctx, queryPath, statement, properties)
	span.SetAttributes(attribute.Int("http.status_code", status))
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return QueryResult{}, err
	}
	if status < 200 || status >= 300 {
		stmtErr := decodeEngineError(statement, status, body)
		span.SetStatus(codes.Error, stmtErr.EngineMessage)
		return QueryResult{}, stmtErr
	}

	var items []queryResponseItem
	if err := jsoncodec.Unmarshal(body, &items); err != nil {
		return QueryResult{}, &StatementError{
			Statement:     statement,
			StatusCode:    status,
			EngineMessage: fmt.Sprintf("malformed query response: %v", err),
			cause:         err,
		}
	}

	var result QueryResult
	for _, item := range items {
		if item.ErrorMessage != "" {
			return QueryResult{}, &StatementError{
				Statement:     statement,
				StatusCode:    status,
				EngineMessage: item.ErrorMessage,
			}
		}
		if item.Header != nil {
			result.Columns = parseSchemaColumns(item.Header.Schema)
		}
		if item.Row != nil {
			result.Rows = append(result.Rows, Row(item.Row.Columns))
		}
	}
	span.SetAttributes(attribute.Int("ksql.rows", len(result.Rows)))
	return result, nil
}

// parseSchemaColumns extracts column names from a header schema such as
// "`ORDER_ID` STRING, `AMOUNT` DECIMAL(18, 2)". Commas inside type
// parameters and nested types do not split columns.
func parseSchemaColumns(schema string) []string {
	var (
		columns []string
		depth   int
		start   int
	)
	fields := make([]string, 0, 4)
	for i, r := range schema {
		switch r {
		case '(', '<':
			depth++
		case ')', '>':
			depth--
		case ',':
			if depth == 0 {
				fields = append(fields, schema[start:i])
				start = i + 1
			}
		}
	}
	fields = append(fields, schema[start:])

	for _, field := range fields {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		name := field
		if idx := strings.IndexAny(field, " \t"); idx >= 0 {
			name = field[:idx]
		}
		columns = append(columns, strings.Trim(name, "`"))
	}
	return columns
}

// listResponseItem is one element of the engine's response to a SHOW
// statement. Streams and tables arrive under different keys.
type listResponseItem struct {
	Streams []entityInfo `json:"streams,omitempty"`
	Tables  []entityInfo `json:"tables,omitempty"`
}

type entityInfo struct {
	Name string `json:"name"`
}

// List runs a SHOW statement and returns the reported entity names.
func (e *HTTPExecutor) List(ctx context.Context, statement string, properties map[string]string) ([]string, error) {
	ctx, span := e.tracer.Start(ctx, "ksql.list", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	body, status, err := e.post(ctx, statementPath, statement, properties)
	span.SetAttributes(attribute.Int("http.status_code", status))
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if status < 200 || status >= 300 {
		stmtErr := decodeEngineError(statement, status, body)
		span.SetStatus(codes.Error, stmtErr.EngineMessage)
		return nil, stmtErr
	}

	var items []listResponseItem
	if err := jsoncodec.Unmarshal(body, &items); err != nil {
		return nil, &StatementError{
			Statement:     statement,
			StatusCode:    status,
			EngineMessage: fmt.Sprintf("malformed list response: %v", err),
			cause:         err,
		}
	}

	var names []string
	for _, item := range items {
		for _, s := range item.Streams {
			names = append(names, s.Name)
		}
		for _, tbl := range item.Tables {
			names = append(names, tbl.Name)
		}
	}
	return names, nil
}

func (e *HTTPExecutor) post(ctx context.Context, path, statement string, properties map[string]string) ([]byte, int, error) {
	payload, err := jsoncodec.Marshal(statementRequest{
		KSQL:              statement,
		StreamsProperties: withDefaults(properties),
	})
	if err != nil {
		return nil, 0, &StatementError{Statement: statement, EngineMessage: err.Error(), cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, 0, &StatementError{Statement: statement, EngineMessage: err.Error(), cause: err}
	}
	req.Header.Set("Content-Type", "application/vnd.ksql.v1+json; charset=utf-8")
	req.Header.Set("Accept", "application/vnd.ksql.v1+json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, 0, &StatementError{Statement: statement, EngineMessage: err.Error(), cause: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, &StatementError{
			Statement:     statement,
			StatusCode:    resp.StatusCode,
			EngineMessage: err.Error(),
			cause:         err,
		}
	}
	return body, resp.StatusCode, nil
}

func decodeEngineError(statement string, status int, body []byte) *StatementError {
	stmtErr := &StatementError{Statement: statement, StatusCode: status}

	var decoded engineError
	if err := jsoncodec.Unmarshal(body, &decoded); err == nil && decoded.Message != "" {
		stmtErr.ErrorCode = decoded.ErrorCode
		stmtErr.EngineMessage = decoded.Message
		return stmtErr
	}

	stmtErr.EngineMessage = strings.TrimSpace(string(body))
	return stmtErr
}
