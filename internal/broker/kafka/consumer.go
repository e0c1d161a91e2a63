package kafka

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
)

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type ConsumerConfig struct {
	Brokers []string
	Topic   string
	GroupID string
	// InstanceID splits the group per process: every api instance has its own rooms
	// and must see every event, so instances must not share partitions.
	InstanceID string
	// FromLatest skips the backlog published before the group first joined.
	FromLatest bool
}

// GroupName is the consumer group actually used for cfg.
func (cfg ConsumerConfig) GroupName() string {
	if cfg.InstanceID == "" {
		return cfg.GroupID
	}
	if cfg.GroupID == "" {
		return cfg.InstanceID
	}
	return cfg.GroupID + "." + cfg.InstanceID
}

type Consumer struct {
	r messageReader
}

func NewConsumer(cfg ConsumerConfig) *Consumer {
	rc := kafka.ReaderConfig{
		Brokers:           cfg.Brokers,
		GroupID:           cfg.GroupName(),
		HeartbeatInterval: 3 * time.Second,
		SessionTimeout:    30 * time.Second,
		StartOffset:       kafka.FirstOffset,
	}
	if cfg.FromLatest {
		rc.StartOffset = kafka.LastOffset
	}
	if rc.GroupID != "" {
		rc.GroupTopics = []string{cfg.Topic}
	} else {
		rc.Topic = cfg.Topic
	}
	return &Consumer{
		r: kafka.NewReader(rc),
	}
}

func newConsumerWithReader(r messageReader) *Consumer {
	return &Consumer{r: r}
}

func (c *Consumer) Close() error {
	return c.r.Close()
}

// Consume calls handler for each message in partition order and commits it on success.
// A handler error stops the loop without committing, the message is redelivered after restart.
func (c *Consumer) Consume(ctx context.Context, handler func(key, value []byte) error) error {
	for {
		msg, err := c.r.FetchMessage(ctx)
		if err != nil {
			return errors.Wrap(err, "fetch message")
		}
		if err := handler(msg.Key, msg.Value); err != nil {
			return errors.Wrapf(err, "handle message at offset %d", msg.Offset)
		}
		if err := c.r.CommitMessages(ctx, msg); err != nil {
			return errors.Wrap(err, "commit message")
		}
	}
}
