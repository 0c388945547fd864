package queue

import (
	"context"

	"github.com/twmb/franz-go/pkg/kgo"
)

// Producer enqueues delivery notices onto the inbound topic. The mail
// ingress edge uses it after persisting the raw message to the object store.
type Producer struct {
	client *kgo.Client
	topic  string
}

func NewProducer(brokers []string, topic string) (*Producer, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
	)
	if err != nil {
		return nil, err
	}
	return &Producer{client: client, topic: topic}, nil
}

// Enqueue publishes one notice. The raw message must already be in the
// object store under notice.RawKey.
func (p *Producer) Enqueue(ctx context.Context, notice Notice) error {
	record, err := noticeRecord(p.topic, notice, 0)
	if err != nil {
		return err
	}
	return p.client.ProduceSync(ctx, record).FirstErr()
}

func (p *Producer) Close() {
	p.client.Close()
}
