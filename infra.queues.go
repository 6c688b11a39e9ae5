package main

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// JournalQueue is the queue id of committed changes.
const JournalQueue = "journal"

// ChangeKind names a committed mutation.
type ChangeKind string

const (
	BookCreated  ChangeKind = "book.created"
	BookUpdated  ChangeKind = "book.updated"
	BookDeleted  ChangeKind = "book.deleted"
	RatingAdded  ChangeKind = "rating.added"
	LoanCreated  ChangeKind = "loan.created"
	LoanReturned ChangeKind = "loan.returned"
)

var ErrQueueFull = errors.New("queue is full")

// ChangeEvent describes a mutation already persisted by a service.
type ChangeEvent struct {
	Kind    ChangeKind      `json:"kind"`
	ID      string          `json:"id"`
	At      time.Time       `json:"at"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewChangeEvent builds an event carrying the json form of payload.
func NewChangeEvent(kind ChangeKind, id string, at time.Time, payload interface{}) (ChangeEvent, error) {
	event := ChangeEvent{Kind: kind, ID: id, At: at}
	if payload == nil {
		return event, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return event, err
	}
	event.Payload = data
	return event, nil
}

// Ensure queues implement Queuer.
var (
	_ Queuer = (*redisQueue)(nil)
	_ Queuer = (*memoryQueue)(nil)
)

// Queuer describes a queue.
type Queuer interface {
	Push(ctx context.Context, qid string, event ChangeEvent) error
	Pop(ctx context.Context, qids ...string) (string, ChangeEvent, error)
}

// redisQueue represents a queue which implements the Queuer interface.
type redisQueue struct {
	client    *redis.Client
	namespace string
}

func NewRedisQueue(client *redis.Client, namespace string) Queuer {
	return &redisQueue{client: client, namespace: namespace}
}

// Push enqueues an event onto the queue identified by qid.
func (q *redisQueue) Push(ctx context.Context, qid string, event ChangeEvent) error {
	eventBytes, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return q.client.RPush(ctx, RedisKey(q.namespace, qid), eventBytes).Err()
}

// Pop returns the first dequeued event from the list of queue ids.
func (q *redisQueue) Pop(ctx context.Context, qids ...string) (string, ChangeEvent, error) {
	var event ChangeEvent
	var qid string
	keys := make([]string, 0, len(qids))
	for _, id := range qids {
		keys = append(keys, RedisKey(q.namespace, id))
	}
	infos, err := q.client.BLPop(ctx, 0*time.Second, keys...).Result()
	if err != nil {
		return qid, event, err
	}

	if err = json.Unmarshal([]byte(infos[1]), &event); err != nil {
		return qid, event, err
	}
	for i, key := range keys {
		if key == infos[0] {
			qid = qids[i]
		}
	}
	return qid, event, nil
}

type queuedEvent struct {
	qid   string
	event ChangeEvent
}

// memoryQueue is a bounded in-process queue. Pop hands out the next event
// whatever its queue id. Push never blocks the caller.
type memoryQueue struct {
	items chan queuedEvent
}

func NewMemoryQueue(size int) Queuer {
	return &memoryQueue{items: make(chan queuedEvent, size)}
}

func (q *memoryQueue) Push(ctx context.Context, qid string, event ChangeEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case q.items <- queuedEvent{qid, event}:
		return nil
	default:
		return ErrQueueFull
	}
}

func (q *memoryQueue) Pop(ctx context.Context, _ ...string) (string, ChangeEvent, error) {
	select {
	case item := <-q.items:
		return item.qid, item.event, nil
	case <-ctx.Done():
		return "", ChangeEvent{}, ctx.Err()
	}
}
