package social

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

type messageSource interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

type eventSink interface {
	InsertFromEvent(ctx context.Context, ev TradePosted) error
}

// Consumer materializes TradePosted events into post rows. The offset
// is committed only after the insert succeeds, so a crash or database
// outage redelivers the event and the unique trade_id constraint
// absorbs the duplicate.
type Consumer struct {
	source  messageSource
	sink    eventSink
	log     *slog.Logger
	backoff time.Duration
}

func NewConsumer(source messageSource, sink eventSink, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{
		source:  source,
		sink:    sink,
		log:     logger,
		backoff: 2 * time.Second,
	}
}

// Run consumes until the context is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		msg, err := c.source.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
				return nil
			}
			c.log.Error("fetch message failed", "err", err)
			if err := sleepCtx(ctx, c.backoff); err != nil {
				return nil
			}
			continue
		}

		var ev TradePosted
		if err := json.Unmarshal(msg.Value, &ev); err != nil {
			// A malformed event cannot succeed on redelivery either;
			// commit past it.
			c.log.Error("malformed trade event", "offset", msg.Offset, "err", err)
			c.commit(ctx, msg)
			continue
		}

		for {
			err := c.sink.InsertFromEvent(ctx, ev)
			if err == nil {
				break
			}
			c.log.Error("materialize post failed", "trade_id", ev.TradeID, "err", err)
			if err := sleepCtx(ctx, c.backoff); err != nil {
				return nil
			}
		}
		c.commit(ctx, msg)
		c.log.Info("post materialized", "trade_id", ev.TradeID, "game_id", ev.GameID)
	}
}

func (c *Consumer) commit(ctx context.Context, msg kafka.Message) {
	if err := c.source.CommitMessages(ctx, msg); err != nil {
		// The insert already landed; redelivery after the failed commit
		// hits the trade_id conflict and is a no-op.
		c.log.Error("offset commit failed", "offset", msg.Offset, "err", err)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
