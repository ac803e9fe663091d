package transport

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// NewLocalBroker returns an in-process broker. It fans out to every
// subscriber in this process only, which makes it suitable for a single node
// and for tests.
func NewLocalBroker(logger watermill.LoggerAdapter) *Broker {
	if logger == nil {
		logger = NewZerologAdapter()
	}
	ps := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: 64,
	}, logger)
	return NewBroker(ps, ps, ps)
}
