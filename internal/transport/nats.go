package transport

import (
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	natsgo "github.com/nats-io/nats.go"
)

// NATSConfig holds NATS connection settings
type NATSConfig struct {
	URL string `yaml:"url"`
	// RequestQueueGroup, when set, turns the request channel into a competing
	// consumers queue. Empty keeps broadcast fan-out to every coordinator.
	RequestQueueGroup string        `yaml:"request_queue_group"`
	MaxReconnects     int           `yaml:"max_reconnects"`
	ReconnectWait     time.Duration `yaml:"reconnect_wait"`
	CloseTimeout      time.Duration `yaml:"close_timeout"`
	AckWaitTimeout    time.Duration `yaml:"ack_wait_timeout"`
	Embedded          bool          `yaml:"embedded"`
	EmbeddedPort      int           `yaml:"embedded_port"`
}

func (c *NATSConfig) applyDefaults() {
	if c.MaxReconnects == 0 {
		c.MaxReconnects = -1
	}
	if c.ReconnectWait == 0 {
		c.ReconnectWait = 2 * time.Second
	}
	if c.CloseTimeout == 0 {
		c.CloseTimeout = 10 * time.Second
	}
	if c.AckWaitTimeout == 0 {
		c.AckWaitTimeout = 30 * time.Second
	}
}

// NewNATSBroker connects to NATS core pub/sub (JetStream off): at-most-once
// fan-out, a subscriber that is down misses messages for good.
func NewNATSBroker(cfg NATSConfig, logger watermill.LoggerAdapter) (*Broker, error) {
	cfg.applyDefaults()
	if logger == nil {
		logger = NewZerologAdapter()
	}

	natsOpts := []natsgo.Option{
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(cfg.MaxReconnects),
		natsgo.ReconnectWait(cfg.ReconnectWait),
		natsgo.DisconnectErrHandler(func(nc *natsgo.Conn, err error) {
			if err != nil {
				logger.Error("NATS disconnected", err, nil)
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logger.Info("NATS reconnected", watermill.LogFields{
				"url": nc.ConnectedUrl(),
			})
		}),
	}

	pub, err := wmNats.NewPublisher(wmNats.PublisherConfig{
		URL:         cfg.URL,
		NatsOptions: natsOpts,
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream:   wmNats.JetStreamConfig{Disabled: true},
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create NATS publisher: %w", err)
	}

	requestSub, err := newNATSSubscriber(cfg, cfg.RequestQueueGroup, natsOpts, logger)
	if err != nil {
		pub.Close()
		return nil, err
	}

	resultSub, err := newNATSSubscriber(cfg, "", natsOpts, logger)
	if err != nil {
		pub.Close()
		requestSub.Close()
		return nil, err
	}

	return NewBroker(pub, requestSub, resultSub), nil
}

func newNATSSubscriber(cfg NATSConfig, queueGroup string, natsOpts []natsgo.Option, logger watermill.LoggerAdapter) (*wmNats.Subscriber, error) {
	sub, err := wmNats.NewSubscriber(wmNats.SubscriberConfig{
		URL:              cfg.URL,
		QueueGroupPrefix: queueGroup,
		SubscribersCount: 1,
		AckWaitTimeout:   cfg.AckWaitTimeout,
		CloseTimeout:     cfg.CloseTimeout,
		NatsOptions:      natsOpts,
		Unmarshaler:      &wmNats.NATSMarshaler{},
		JetStream:        wmNats.JetStreamConfig{Disabled: true},
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create NATS subscriber: %w", err)
	}
	return sub, nil
}
