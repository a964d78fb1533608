package events

import (
	"context"
	"fmt"

	"github.com/nsqio/go-nsq"
)

// NSQPublisher publishes events to an nsqd topic
type NSQPublisher struct {
	producer *nsq.Producer
	topic    string
}

// NewNSQPublisher connects a producer to nsqd at addr
func NewNSQPublisher(addr, topic string) (*NSQPublisher, error) {
	producer, err := nsq.NewProducer(addr, nsq.NewConfig())
	if err != nil {
		return nil, fmt.Errorf("nsq producer error: %w", err)
	}
	producer.SetLoggerLevel(nsq.LogLevelWarning)
	return &NSQPublisher{producer: producer, topic: topic}, nil
}

// Publish implements Publisher
func (p *NSQPublisher) Publish(ctx context.Context, ev Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	body, err := ev.Marshal()
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := p.producer.Publish(p.topic, body); err != nil {
		return fmt.Errorf("failed to publish to nsq topic %s: %w", p.topic, err)
	}
	return nil
}

// Ping checks the nsqd connection
func (p *NSQPublisher) Ping() error {
	return p.producer.Ping()
}

// Close implements Publisher
func (p *NSQPublisher) Close() error {
	p.producer.Stop()
	return nil
}
