package social

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
)

type fakeSource struct {
	msgs    []kafka.Message
	next    int
	commits []int64
}

func (f *fakeSource) FetchMessage(_ context.Context) (kafka.Message, error) {
	if f.next >= len(f.msgs) {
		return kafka.Message{}, context.Canceled
	}
	m := f.msgs[f.next]
	f.next++
	return m, nil
}

func (f *fakeSource) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	for _, m := range msgs {
		f.commits = append(f.commits, m.Offset)
	}
	return nil
}

type fakeSink struct {
	failures int
	attempts int
	inserted []TradePosted
}

func (s *fakeSink) InsertFromEvent(_ context.Context, ev TradePosted) error {
	s.attempts++
	if s.failures > 0 {
		s.failures--
		return fmt.Errorf("db down")
	}
	s.inserted = append(s.inserted, ev)
	return nil
}

func eventMessage(t *testing.T, tradeID string, offset int64) kafka.Message {
	t.Helper()
	b, err := json.Marshal(TradePosted{TradeID: tradeID, GameID: 1})
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	return kafka.Message{Key: []byte(tradeID), Value: b, Offset: offset}
}

func newTestConsumer(source *fakeSource, sink *fakeSink) *Consumer {
	c := NewConsumer(source, sink, nil)
	c.backoff = time.Millisecond
	return c
}

func TestConsumerCommitsAfterInsert(t *testing.T) {
	source := &fakeSource{msgs: []kafka.Message{
		eventMessage(t, "t-1", 0),
		eventMessage(t, "t-2", 1),
	}}
	sink := &fakeSink{}

	if err := newTestConsumer(source, sink).Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(sink.inserted) != 2 {
		t.Fatalf("inserted %d events want 2", len(sink.inserted))
	}
	if len(source.commits) != 2 || source.commits[0] != 0 || source.commits[1] != 1 {
		t.Fatalf("commits got %v want [0 1]", source.commits)
	}
}

// A failing insert must not advance the offset; the event is retried
// until it lands and only then committed.
func TestConsumerRetriesInsertBeforeCommit(t *testing.T) {
	source := &fakeSource{msgs: []kafka.Message{eventMessage(t, "t-1", 5)}}
	sink := &fakeSink{failures: 2}

	if err := newTestConsumer(source, sink).Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if sink.attempts != 3 {
		t.Fatalf("insert attempts got %d want 3", sink.attempts)
	}
	if len(sink.inserted) != 1 || sink.inserted[0].TradeID != "t-1" {
		t.Fatalf("inserted got %+v want one t-1 event", sink.inserted)
	}
	if len(source.commits) != 1 || source.commits[0] != 5 {
		t.Fatalf("commits got %v want [5]", source.commits)
	}
}

func TestConsumerSkipsMalformedEvent(t *testing.T) {
	source := &fakeSource{msgs: []kafka.Message{
		{Value: []byte("not json"), Offset: 0},
		eventMessage(t, "t-1", 1),
	}}
	sink := &fakeSink{}

	if err := newTestConsumer(source, sink).Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	// The bad message is committed past, the good one lands.
	if len(source.commits) != 2 {
		t.Fatalf("commits got %v want [0 1]", source.commits)
	}
	if len(sink.inserted) != 1 || sink.inserted[0].TradeID != "t-1" {
		t.Fatalf("inserted got %+v want only t-1", sink.inserted)
	}
}
