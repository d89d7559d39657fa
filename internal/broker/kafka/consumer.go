package kafka

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
)

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Handler обрабатывает одно сообщение. Ошибка останавливает Consume без commit.
type Handler func(ctx context.Context, key, value []byte) error

type Consumer struct {
	mu        sync.Mutex
	r         messageReader
	newReader func() messageReader
	closed    bool
}

// NewConsumer читает topic в составе группы groupID. Новая группа начинает с хвоста топика:
// уведомления о смене статуса нужны только "живые".
func NewConsumer(brokers []string, topic, groupID string) *Consumer {
	cfg := kafka.ReaderConfig{
		Brokers:           brokers,
		GroupID:           groupID,
		StartOffset:       kafka.LastOffset,
		HeartbeatInterval: 3 * time.Second,
		SessionTimeout:    30 * time.Second,
	}
	if groupID != "" {
		cfg.GroupTopics = []string{topic}
	} else {
		cfg.Topic = topic
	}
	return newConsumerWithReader(func() messageReader { return kafka.NewReader(cfg) })
}

func newConsumerWithReader(newReader func() messageReader) *Consumer {
	return &Consumer{r: newReader(), newReader: newReader}
}

func (c *Consumer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return c.r.Close()
}

// Consume обрабатывает сообщения по одному и коммитит только после успешного handler.
// При ошибке reader пересоздаётся: reader группы отдаёт уже выбранное сообщение повторно
// только после переподключения, и следующий Consume начнёт с последнего commit.
func (c *Consumer) Consume(ctx context.Context, handler Handler) error {
	r := c.reader()
	for {
		msg, err := r.FetchMessage(ctx)
		if err != nil {
			return errors.Wrap(err, "fetch message")
		}
		if err := handler(ctx, msg.Key, msg.Value); err != nil {
			c.reset(r)
			return err
		}
		if err := r.CommitMessages(ctx, msg); err != nil {
			c.reset(r)
			return errors.Wrap(err, "commit message")
		}
	}
}

func (c *Consumer) reader() messageReader {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.r
}

func (c *Consumer) reset(old messageReader) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.r != old {
		return
	}
	_ = old.Close()
	c.r = c.newReader()
}
