package runtime

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ThreeDotsLabs/watermill/message"

	configpkg "github.com/drblury/ksqlflow/internal/engine/config"
	executorpkg "github.com/drblury/ksqlflow/internal/engine/executor"
	loggingpkg "github.com/drblury/ksqlflow/internal/engine/logging"
	"github.com/drblury/ksqlflow/internal/engine/policy"
	"github.com/drblury/ksqlflow/internal/engine/schema"
)

func newTestLogger() loggingpkg.ServiceLogger {
	return loggingpkg.NewSlogServiceLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

type executedStatement struct {
	Statement  string
	Properties map[string]string
}

// testExecutor records statements and answers from canned results.
type testExecutor struct {
	mu       sync.Mutex
	executed []executedStatement

	executeErr  error
	queryResult executorpkg.QueryResult
	queryErr    error
	listNames   []string
	listErr     error
}

func (e *testExecutor) Execute(ctx context.Context, statement string, properties map[string]string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.executed = append(e.executed, executedStatement{Statement: statement, Properties: properties})
	return e.executeErr
}

func (e *testExecutor) Query(ctx context.Context, statement string, properties map[string]string) (executorpkg.QueryResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.executed = append(e.executed, executedStatement{Statement: statement, Properties: properties})
	return e.queryResult, e.queryErr
}

func (e *testExecutor) List(ctx context.Context, statement string, properties map[string]string) ([]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.executed = append(e.executed, executedStatement{Statement: statement, Properties: properties})
	return e.listNames, e.listErr
}

func (e *testExecutor) Statements() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.executed))
	for i, ex := range e.executed {
		out[i] = ex.Statement
	}
	return out
}

type publishedMessage struct {
	Topic   string
	Message *message.Message
}

type testPublisher struct {
	mu        sync.Mutex
	published []publishedMessage
	err       error
}

func (p *testPublisher) Publish(topic string, messages ...*message.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	for _, msg := range messages {
		p.published = append(p.published, publishedMessage{Topic: topic, Message: msg})
	}
	return nil
}

func (p *testPublisher) Close() error { return nil }

func (p *testPublisher) Published() []publishedMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	clone := make([]publishedMessage, len(p.published))
	copy(clone, p.published)
	return clone
}

// fakeChannel is one handed-out subscription channel. The once guards the
// close shared between ctx cancellation and closeAll.
type fakeChannel struct {
	ch     chan *message.Message
	once   sync.Once
	closed atomic.Bool
}

func (f *fakeChannel) close() {
	f.once.Do(func() {
		f.closed.Store(true)
		close(f.ch)
	})
}

// testSubscriber hands out one buffered channel per Subscribe call and
// closes it when the subscribe context is cancelled.
type testSubscriber struct {
	mu       sync.Mutex
	channels []*fakeChannel
	err      error
}

func (s *testSubscriber) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	f := &fakeChannel{ch: make(chan *message.Message, 16)}
	s.channels = append(s.channels, f)
	go func() {
		<-ctx.Done()
		f.close()
	}()
	return f.ch, nil
}

func (s *testSubscriber) Close() error { return nil }

func (s *testSubscriber) push(msgs ...*message.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range s.channels {
		if f.closed.Load() {
			continue
		}
		for _, msg := range msgs {
			f.ch <- msg
		}
	}
}

func (s *testSubscriber) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range s.channels {
		f.close()
	}
	s.channels = nil
}

func newTestContext(t *testing.T, exec *testExecutor) (*Context, *testPublisher, *testSubscriber) {
	t.Helper()
	return newTestContextWith(t, exec)
}

func newTestContextWith(t *testing.T, exec executorpkg.Executor) (*Context, *testPublisher, *testSubscriber) {
	t.Helper()
	schema.ResetCache()

	pub := &testPublisher{}
	sub := &testSubscriber{}
	c := &Context{
		Conf: &configpkg.Config{
			EngineURL:   "http://localhost:8088",
			ErrorPolicy: policy.Config{Action: policy.Skip},
		},
		Logger:     newTestLogger(),
		executor:   exec,
		publisher:  pub,
		subscriber: sub,
		counters:   policy.NopCounters{},
		issued:     make(map[string]*issuedEntry),
	}
	return c, pub, sub
}

type order struct {
	OrderID    string  `json:"order_id"`
	CustomerID string  `json:"customer_id"`
	Amount     float64 `json:"amount"`
}

func orderConfig() schema.Config {
	return schema.Config{
		Topic: "orders",
		Columns: []schema.Column{
			{Field: "OrderID", Key: true},
		},
	}
}
