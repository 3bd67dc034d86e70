// Package runtime owns the live side of declared entities: it creates them
// on the engine, publishes inserted records, runs subscriptions with
// per-record error routing, and materializes table contents through pull
// queries.
package runtime

import (
	"context"
	"net/http"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/prometheus/client_golang/prometheus"

	configpkg "github.com/drblury/ksqlflow/internal/engine/config"
	errspkg "github.com/drblury/ksqlflow/internal/engine/errors"
	executorpkg "github.com/drblury/ksqlflow/internal/engine/executor"
	loggingpkg "github.com/drblury/ksqlflow/internal/engine/logging"
	"github.com/drblury/ksqlflow/internal/engine/policy"
	"github.com/drblury/ksqlflow/internal/engine/statement"
	transportpkg "github.com/drblury/ksqlflow/transport"

	// Import the built-in transport packages to register them.
	_ "github.com/drblury/ksqlflow/transport/channel"
	_ "github.com/drblury/ksqlflow/transport/kafka"
)

// TransportFactory abstracts how the record plane is initialised.
type TransportFactory interface {
	Build(ctx context.Context, conf *configpkg.Config, logger watermill.LoggerAdapter) (transportpkg.Transport, error)
}

// DefaultTransportFactory returns the built-in factory that uses the
// modular transport registry. An empty PubSubSystem falls back to the
// in-process channel transport.
func DefaultTransportFactory() TransportFactory {
	return defaultTransportFactory{}
}

type defaultTransportFactory struct{}

func (defaultTransportFactory) Build(ctx context.Context, conf *configpkg.Config, logger watermill.LoggerAdapter) (transportpkg.Transport, error) {
	return transportpkg.Build(ctx, defaultedTransportConfig{conf}, logger)
}

// defaultedTransportConfig substitutes the channel transport when no
// pub/sub system is configured, without mutating the caller's config.
type defaultedTransportConfig struct {
	*configpkg.Config
}

func (c defaultedTransportConfig) GetPubSubSystem() string {
	if c.Config.PubSubSystem == "" {
		return "channel"
	}
	return c.Config.PubSubSystem
}

// Dependencies holds the optional collaborators a Context can use.
// Leave fields nil to use the built-in implementations.
type Dependencies struct {
	Executor         executorpkg.Executor
	TransportFactory TransportFactory
	Registerer       prometheus.Registerer
}

// Context wires the statement executor, the record-plane transport, and
// policy metrics. All handles declared against one Context share them.
type Context struct {
	Conf   *configpkg.Config
	Logger loggingpkg.ServiceLogger

	executor   executorpkg.Executor
	publisher  message.Publisher
	subscriber message.Subscriber

	metrics  *PolicyMetrics
	counters policy.Counters

	issuedMu sync.Mutex
	issued   map[string]*issuedEntry
}

// issuedEntry serializes the create statements for one entity name. The
// entry mutex is held across the executor call, so a concurrent creator
// waits for the first one's outcome instead of assuming it succeeded.
type issuedEntry struct {
	mu      sync.Mutex
	created bool
}

// NewContext constructs a Context for the supplied configuration. Declare
// handles on the returned Context, then Create them before inserting or
// subscribing.
func NewContext(ctx context.Context, conf *configpkg.Config, log loggingpkg.ServiceLogger, deps Dependencies) (*Context, error) {
	if log == nil {
		return nil, errspkg.ErrLoggerRequired
	}
	if err := configpkg.ValidateConfig(conf); err != nil {
		return nil, err
	}

	log.Info("Creating stream context",
		loggingpkg.LogFields{
			"pubsub_system": conf.PubSubSystem,
			"config":        conf,
		})

	c := &Context{
		Conf:     conf,
		Logger:   log,
		counters: policy.NopCounters{},
		issued:   make(map[string]*issuedEntry),
	}

	c.executor = deps.Executor
	if c.executor == nil {
		var opts []executorpkg.HTTPOption
		if conf.ExecuteTimeout > 0 {
			opts = append(opts, executorpkg.WithHTTPClient(&http.Client{Timeout: conf.ExecuteTimeout}))
		}
		c.executor = executorpkg.NewHTTP(conf.EngineURL, log, opts...)
	}

	factory := deps.TransportFactory
	if factory == nil {
		factory = DefaultTransportFactory()
	}
	wmLogger := loggingpkg.NewWatermillAdapter(log)
	transport, err := factory.Build(ctx, conf, wmLogger)
	if err != nil {
		return nil, err
	}
	c.publisher = transport.Publisher
	c.subscriber = transport.Subscriber

	if conf.MetricsEnabled {
		c.metrics = NewPolicyMetrics(deps.Registerer)
		if err := c.metrics.Register(); err != nil {
			return nil, err
		}
		c.counters = c.metrics
	}

	return c, nil
}

// Close releases the record-plane transport. Open subscriptions observe
// their message channels closing.
func (c *Context) Close() error {
	var firstErr error
	if c.publisher != nil {
		if err := c.publisher.Close(); err != nil {
			firstErr = err
		}
	}
	if c.subscriber != nil {
		if err := c.subscriber.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// ListStreams returns the names of all streams the engine knows about.
func (c *Context) ListStreams(ctx context.Context) ([]string, error) {
	return c.list(ctx, statement.ShowStreams())
}

// ListTables returns the names of all tables the engine knows about.
func (c *Context) ListTables(ctx context.Context) ([]string, error) {
	return c.list(ctx, statement.ShowTables())
}

func (c *Context) list(ctx context.Context, stmt string) ([]string, error) {
	lister, ok := c.executor.(executorpkg.Lister)
	if !ok {
		return nil, errspkg.ErrListingUnsupported
	}
	return lister.List(ctx, stmt, nil)
}

// PolicyMetricsSnapshot reports the routing counts collected so far. The
// second return is false when metrics are disabled.
func (c *Context) PolicyMetricsSnapshot() (PolicyMetricsSnapshot, bool) {
	if c.metrics == nil {
		return PolicyMetricsSnapshot{}, false
	}
	return c.metrics.GetSnapshot(), true
}

// createEntity runs create at most once per entity name per process. The
// first caller executes; callers arriving while it runs block and observe
// its outcome. After a failure the entity counts as not created, so the
// next caller re-executes its own statement.
func (c *Context) createEntity(name string, create func() error) error {
	c.issuedMu.Lock()
	entry, ok := c.issued[name]
	if !ok {
		entry = &issuedEntry{}
		c.issued[name] = entry
	}
	c.issuedMu.Unlock()

	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.created {
		return nil
	}
	if err := create(); err != nil {
		return err
	}
	entry.created = true
	return nil
}

// unmarkIssued forgets a created entity after a drop, so it may be created
// again.
func (c *Context) unmarkIssued(name string) {
	c.issuedMu.Lock()
	defer c.issuedMu.Unlock()
	delete(c.issued, name)
}

func (c *Context) recordConsumed(topic string) {
	if c.metrics != nil {
		c.metrics.RecordConsumed(topic)
	}
}
