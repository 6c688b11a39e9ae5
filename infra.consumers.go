package main

import (
	"context"
	"encoding/binary"
	"encoding/json"

	"github.com/boltdb/bolt"
	"go.uber.org/zap"
)

// JournalBucket holds the change events in arrival order.
const JournalBucket = "journal"

type Consumer interface {
	Consume(ctx context.Context, qids ...string) error
}

// JournalReader gives access to the recorded change events.
type JournalReader interface {
	Last(ctx context.Context, n int) ([]ChangeEvent, error)
}

var (
	_ Consumer      = (*journalConsumer)(nil)
	_ JournalReader = (*journalConsumer)(nil)
)

// journalConsumer appends every popped event to a bolt bucket keyed by
// the bucket sequence so entries keep their arrival order.
type journalConsumer struct {
	logger *zap.Logger
	queue  Queuer
	client *bolt.DB
}

func NewJournalConsumer(logger *zap.Logger, q Queuer, client *bolt.DB) *journalConsumer {
	return &journalConsumer{logger, q, client}
}

func (jc *journalConsumer) Consume(ctx context.Context, qids ...string) error {
	var event ChangeEvent
	var err error
	var qid string
	for {
		qid, event, err = jc.queue.Pop(ctx, qids...)
		if err != nil && ctx.Err() != nil {
			jc.logger.Info("consumer: queue pop call: context is done: exit", zap.String("reason", ctx.Err().Error()))
			return nil
		}

		if err != nil {
			jc.logger.Error("consumer: error on queue pop call", zap.Error(err))
			continue
		}

		switch qid {
		case JournalQueue:
			if err = jc.Record(event); err != nil {
				jc.logger.Error("consumer: failed to record change",
					zap.String("change.kind", string(event.Kind)),
					zap.String("change.id", event.ID),
					zap.Error(err),
				)
			}
		default:
			jc.logger.Warn("consumer: received event on unknown queue id", zap.String("qid", qid), zap.Any("event", event))
		}
	}
}

// Record appends the event at the end of the journal.
func (jc *journalConsumer) Record(event ChangeEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return jc.client.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(JournalBucket))
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, seq)
		return b.Put(key, data)
	})
}

// Last returns up to n most recent events, newest first.
func (jc *journalConsumer) Last(_ context.Context, n int) ([]ChangeEvent, error) {
	events := []ChangeEvent{}
	err := jc.client.View(func(tx *bolt.Tx) error {
		c := tx.Bucket([]byte(JournalBucket)).Cursor()
		for k, v := c.Last(); k != nil && len(events) < n; k, v = c.Prev() {
			var event ChangeEvent
			if err := json.Unmarshal(v, &event); err != nil {
				return err
			}
			events = append(events, event)
		}
		return nil
	})
	return events, err
}
