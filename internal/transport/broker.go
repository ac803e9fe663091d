package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"match-call-backend/internal/breaker"
	"match-call-backend/internal/metrics"
	"match-call-backend/internal/models"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	gobreaker "github.com/sony/gobreaker/v2"
)

const (
	// RequestChannel carries serialized MatchRequest payloads
	RequestChannel = "user_matching"
	// ResultChannel carries serialized MatchResult payloads
	ResultChannel = "match_found"
)

// Broker carries match requests and results over the two broadcast channels.
// Every subscriber receives every message published while it is subscribed;
// nothing is replayed.
type Broker struct {
	publisher    message.Publisher
	requestSub   message.Subscriber
	resultSub    message.Subscriber
	breaker      *gobreaker.CircuitBreaker[any]
	extraClosers []func() error
	mu           sync.RWMutex
	closed       bool
}

// NewBroker assembles a broker. requestSub and resultSub may be the same subscriber.
func NewBroker(pub message.Publisher, requestSub, resultSub message.Subscriber) *Broker {
	return &Broker{
		publisher:  pub,
		requestSub: requestSub,
		resultSub:  resultSub,
	}
}

// SetCircuitBreaker guards publish calls with cb
func (b *Broker) SetCircuitBreaker(cb *gobreaker.CircuitBreaker[any]) {
	b.breaker = cb
}

// OnClose registers fn to run after the publisher and subscribers are closed
func (b *Broker) OnClose(fn func() error) {
	b.extraClosers = append(b.extraClosers, fn)
}

// PublishRequest publishes req on the request channel
func (b *Broker) PublishRequest(ctx context.Context, req models.MatchRequest) error {
	payload, err := EncodeRequest(req)
	if err != nil {
		return err
	}
	id := req.RequestID
	if id == "" {
		id = watermill.NewUUID()
	}
	return b.publish(ctx, RequestChannel, id, payload)
}

// PublishResult publishes res on the result channel
func (b *Broker) PublishResult(ctx context.Context, res models.MatchResult) error {
	payload, err := EncodeResult(res)
	if err != nil {
		return err
	}
	return b.publish(ctx, ResultChannel, watermill.NewUUID(), payload)
}

func (b *Broker) publish(ctx context.Context, channel, id string, payload []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return fmt.Errorf("broker is closed")
	}

	msg := message.NewMessage(id, payload)
	msg.SetContext(ctx)

	_, err := breaker.Do(b.breaker, func() (struct{}, error) {
		return struct{}{}, b.publisher.Publish(channel, msg)
	})
	if err != nil {
		metrics.TransportPublishes.WithLabelValues(channel, "error").Inc()
		return fmt.Errorf("failed to publish on %s: %w", channel, err)
	}
	metrics.TransportPublishes.WithLabelValues(channel, "ok").Inc()
	return nil
}

// SubscribeRequests returns the request channel stream. Messages must be acked.
func (b *Broker) SubscribeRequests(ctx context.Context) (<-chan *message.Message, error) {
	msgs, err := b.requestSub.Subscribe(ctx, RequestChannel)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", RequestChannel, err)
	}
	return msgs, nil
}

// SubscribeResults returns the result channel stream. Messages must be acked.
func (b *Broker) SubscribeResults(ctx context.Context) (<-chan *message.Message, error) {
	msgs, err := b.resultSub.Subscribe(ctx, ResultChannel)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", ResultChannel, err)
	}
	return msgs, nil
}

// Close shuts down the publisher and subscribers
func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true

	var errs []error
	if err := b.publisher.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := b.requestSub.Close(); err != nil {
		errs = append(errs, err)
	}
	if b.resultSub != b.requestSub {
		if err := b.resultSub.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	for _, fn := range b.extraClosers {
		if err := fn(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
