package social

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"tickerclub/internal/ledger"
)

const DefaultTopic = "tickerclub.trade_posts"

// Publisher emits TradePosted events to kafka. It implements
// ledger.FeedPublisher and is only ever called after the trade
// transaction has committed.
type Publisher struct {
	writer *kafka.Writer
}

func NewPublisher(brokers, topic string) *Publisher {
	if topic == "" {
		topic = DefaultTopic
	}
	return &Publisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(strings.Split(brokers, ",")...),
			Topic:                  topic,
			Balancer:               &kafka.LeastBytes{},
			AllowAutoTopicCreation: true,
		},
	}
}

func (p *Publisher) PublishTrade(ctx context.Context, trade ledger.TradeRecord, note string) error {
	ev := eventFromTrade(trade, note)
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.TradeID),
		Value: b,
		Time:  time.Now(),
	})
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

// NewReader builds the group reader used by the feed worker. Offsets
// are committed explicitly by the Consumer after each insert, never on
// an interval.
func NewReader(brokers, topic, groupID string) *kafka.Reader {
	if topic == "" {
		topic = DefaultTopic
	}
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  strings.Split(brokers, ","),
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
}
