package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMemoryQueue(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue(2)
	at := NewMockClocker().Now()

	first, err := NewChangeEvent(BookCreated, "1", at, Book{ID: "1", Title: "Dune"})
	require.NoError(t, err)
	second, err := NewChangeEvent(BookDeleted, "1", at, nil)
	require.NoError(t, err)

	require.NoError(t, q.Push(ctx, JournalQueue, first))
	require.NoError(t, q.Push(ctx, JournalQueue, second))
	assert.ErrorIs(t, q.Push(ctx, JournalQueue, second), ErrQueueFull)

	qid, got, err := q.Pop(ctx, JournalQueue)
	require.NoError(t, err)
	assert.Equal(t, JournalQueue, qid)
	assert.Equal(t, first, got)
	assert.JSONEq(t, `{"id":"1","title":"Dune","ISBN":"","genre":"","authors":"","publisher":"","publishedDate":"","language":null,"summary":""}`, string(got.Payload))

	_, got, err = q.Pop(ctx)
	require.NoError(t, err)
	assert.Equal(t, second, got)
	assert.Nil(t, got.Payload)

	cctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, _, err = q.Pop(cctx, JournalQueue)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func newTestJournal(t *testing.T, q Queuer) *journalConsumer {
	t.Helper()
	db, err := GetBoltDBClient(&BoltDBConfig{
		FilePath: filepath.Join(t.TempDir(), "journal.db"),
		Timeout:  time.Second,
	}, []string{JournalBucket}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewJournalConsumer(zap.NewNop(), q, db)
}

func TestJournalConsumer_Consume(t *testing.T) {
	q := NewMemoryQueue(MemoryQueueSize)
	jc := newTestJournal(t, q)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- jc.Consume(ctx, JournalQueue) }()

	at := NewMockClocker().Now()
	kinds := []ChangeKind{BookCreated, RatingAdded, LoanCreated, LoanReturned}
	for i, kind := range kinds {
		event, err := NewChangeEvent(kind, FormatID(i+1), at, nil)
		require.NoError(t, err)
		require.NoError(t, q.Push(ctx, JournalQueue, event))
	}

	require.Eventually(t, func() bool {
		events, err := jc.Last(ctx, 10)
		return err == nil && len(events) == len(kinds)
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not stop on context cancellation")
	}

	events, err := jc.Last(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, LoanReturned, events[0].Kind)
	assert.Equal(t, LoanCreated, events[1].Kind)
	assert.True(t, at.Equal(events[0].At))
}

func TestJournalConsumer_IgnoresUnknownQueue(t *testing.T) {
	popped := 0
	q := &MockQueuer{}
	jc := newTestJournal(t, q)
	ctx, cancel := context.WithCancel(context.Background())
	q.PopFunc = func(ctx context.Context, qids ...string) (string, ChangeEvent, error) {
		popped++
		if popped > 1 {
			cancel()
			return "", ChangeEvent{}, ctx.Err()
		}
		return "other", ChangeEvent{Kind: BookCreated, ID: "1"}, nil
	}
	require.NoError(t, jc.Consume(ctx, JournalQueue))

	events, err := jc.Last(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, events)
}
