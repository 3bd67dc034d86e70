package runtime

import (
	"context"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"

	errspkg "github.com/drblury/ksqlflow/internal/engine/errors"
	"github.com/drblury/ksqlflow/internal/engine/jsoncodec"
	"github.com/drblury/ksqlflow/internal/engine/policy"
)

// Subscription is one typed consumer of an entity's backing topic. Each
// Subscribe call opens a fresh underlying subscription from the current
// position; the error routing policy is captured at subscribe time and a
// later OnError on the handle does not affect it.
type Subscription[T any] struct {
	events chan T
	cancel context.CancelFunc

	mu  sync.Mutex
	err error
}

func subscribe[T any](ctx context.Context, h *handle) (*Subscription[T], error) {
	if h.State() != StateActive {
		return nil, errspkg.ErrHandleNotActive
	}
	if h.rt.subscriber == nil {
		return nil, errspkg.ErrTransportRequired
	}

	router, err := policy.NewRouter(h.Policy(), h.rt.publisher, h.rt.Logger, h.rt.counters)
	if err != nil {
		return nil, err
	}

	subCtx, cancel := context.WithCancel(ctx)
	messages, err := h.rt.subscriber.Subscribe(subCtx, h.desc.Topic)
	if err != nil {
		cancel()
		return nil, err
	}

	s := &Subscription[T]{
		events: make(chan T),
		cancel: cancel,
	}
	go s.run(subCtx, h, router, messages)
	return s, nil
}

// Events yields decoded records. The channel closes when the subscription
// ends; check Err afterwards to distinguish cancellation from a policy stop.
func (s *Subscription[T]) Events() <-chan T {
	return s.events
}

// Err reports why the subscription terminated. Valid after Events closes;
// nil means cancellation or a closed transport.
func (s *Subscription[T]) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close stops the subscription. Events closes shortly after.
func (s *Subscription[T]) Close() {
	s.cancel()
}

func (s *Subscription[T]) setErr(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// run pumps the underlying message channel into the typed events channel.
// A record that fails to decode never torpedoes the sequence by itself:
// the policy router decides per record.
func (s *Subscription[T]) run(ctx context.Context, h *handle, router *policy.Router, messages <-chan *message.Message) {
	defer close(s.events)
	defer s.cancel()

	topic := h.desc.Topic
	for msg := range messages {
		var record T
		decode := func() error {
			return jsoncodec.Unmarshal(msg.Payload, &record)
		}

		if err := decode(); err != nil {
			decision, routeErr := router.Route(msg, topic, err, decode)
			switch decision {
			case policy.Terminate:
				s.setErr(routeErr)
				msg.Ack()
				return
			case policy.Continue:
				msg.Ack()
				continue
			case policy.Recovered:
				// A retry decode succeeded; deliver below.
			}
		}

		select {
		case s.events <- record:
			h.rt.recordConsumed(topic)
			msg.Ack()
		case <-ctx.Done():
			msg.Nack()
			return
		}
	}
}
