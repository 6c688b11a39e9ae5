package main

import (
	"context"
	"net"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/ory/dockertest/v3"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// startRedisDockerContainer runs a disposable redis server. The calling
// test is skipped when no docker daemon is reachable.
func startRedisDockerContainer(t *testing.T) (string, func()) {
	t.Helper()

	pool, err := dockertest.NewPool("")
	if err != nil {
		t.Skipf("Failed to start Dockertest: %+v", err)
	}

	err = pool.Client.Ping()
	if err != nil {
		t.Skipf("Could not connect to Docker: %+v", err)
	}

	resource, err := pool.Run("redis", "7.0.10-alpine", nil)
	if err != nil {
		t.Fatalf("Failed to start redis: %+v", err)
	}

	// build address the container is listening on
	addr := net.JoinHostPort("localhost", resource.GetPort("6379/tcp"))

	// ensure to wait for the container to be ready
	err = pool.Retry(func() error {
		client := redis.NewClient(&redis.Options{Addr: addr})
		defer client.Close()
		return client.Ping(context.Background()).Err()
	})
	if err != nil {
		t.Fatalf("Failed to ping Redis: %+v", err)
	}

	destroyFunc := func() {
		if err := pool.Purge(resource); err != nil {
			t.Logf("Failed to purge resource: %+v", err)
		}
	}

	return addr, destroyFunc
}

func TestRedisStore(t *testing.T) {
	addr, destroyFunc := startRedisDockerContainer(t)
	defer destroyFunc()
	ctx := context.Background()
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	rs, err := NewRedisCatalogStorage(ctx, zap.NewNop(), client, "test", 20)
	require.NoError(t, err)
	ls, err := NewRedisLoanStorage(ctx, client, "test")
	require.NoError(t, err)

	t.Run("Counter Initialized Once", func(t *testing.T) {
		// a second instance sharing the namespace must not reset the counter.
		id, err := rs.Allocate(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, id)
		_, err = NewRedisCatalogStorage(ctx, zap.NewNop(), client, "test", 20)
		require.NoError(t, err)
		id, err = rs.Allocate(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, id)
	})

	t.Run("Concurrent Allocations", func(t *testing.T) {
		const callers = 50
		ids := make([]int, callers)
		var wg sync.WaitGroup
		for i := 0; i < callers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				id, err := ls.Allocate(ctx)
				assert.NoError(t, err)
				ids[i] = id
			}(i)
		}
		wg.Wait()
		sort.Ints(ids)
		for i, id := range ids {
			assert.Equal(t, i+1, id)
		}
	})

	book := Book{ID: "1", Title: "Dune", ISBN: "9780441172719", Genre: GenreScienceFiction, Language: []string{"eng"}}

	t.Run("Add And Get Book", func(t *testing.T) {
		require.NoError(t, rs.AddBook(ctx, book, NewRating(book)))
		got, err := rs.GetBook(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, book, got)
		rating, err := rs.GetRating(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, []int{}, rating.Values)
	})

	t.Run("Get NonExistent Book", func(t *testing.T) {
		got, err := rs.GetBook(ctx, 7)
		assert.Equal(t, ErrBookNotFound, err)
		assert.Equal(t, Book{}, got)
		_, err = rs.GetBook(ctx, CounterDocID)
		assert.Equal(t, ErrBookNotFound, err)
	})

	t.Run("List Skips Counter", func(t *testing.T) {
		books, err := rs.ListBooks(ctx)
		require.NoError(t, err)
		assert.Equal(t, []Book{book}, books)
	})

	t.Run("Concurrent Rating Appends", func(t *testing.T) {
		const callers = 10
		var wg sync.WaitGroup
		for i := 0; i < callers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
				defer cancel()
				_, err := rs.AppendRatingValue(cctx, 1, 4)
				assert.NoError(t, err)
			}()
		}
		wg.Wait()
		rating, err := rs.GetRating(ctx, 1)
		require.NoError(t, err)
		assert.Len(t, rating.Values, callers)
		assert.Equal(t, 4.0, rating.Average)
	})

	t.Run("Update Existent Book", func(t *testing.T) {
		updated := book
		updated.Title = "Children of Dune"
		got, err := rs.UpdateBook(ctx, 1, updated)
		require.NoError(t, err)
		assert.Equal(t, updated, got)
		rating, err := rs.GetRating(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, updated.Title, rating.Title)

		_, err = rs.UpdateBook(ctx, 9, updated)
		assert.Equal(t, ErrBookNotFound, err)
	})

	t.Run("Delete Existent Book", func(t *testing.T) {
		require.NoError(t, rs.DeleteBook(ctx, 1))
		_, err := rs.GetRating(ctx, 1)
		assert.Equal(t, ErrRatingNotFound, err)
		assert.Equal(t, ErrBookNotFound, rs.DeleteBook(ctx, 1))
	})

	t.Run("Loans", func(t *testing.T) {
		loan := Loan{LoanID: "3", MemberName: "ada", ISBN: "9780441172719", LoanDate: "2024-01-31", BookID: "1", Title: "Dune"}
		require.NoError(t, ls.AddLoan(ctx, loan))
		got, err := ls.GetLoan(ctx, 3)
		require.NoError(t, err)
		assert.Equal(t, loan, got)
		loans, err := ls.ListLoans(ctx)
		require.NoError(t, err)
		assert.Equal(t, []Loan{loan}, loans)
		require.NoError(t, ls.DeleteLoan(ctx, 3))
		assert.Equal(t, ErrLoanNotFound, ls.DeleteLoan(ctx, 3))
	})

	t.Run("Queue", func(t *testing.T) {
		q := NewRedisQueue(client, "test")
		event, err := NewChangeEvent(BookDeleted, "1", NewMockClocker().Now(), nil)
		require.NoError(t, err)
		require.NoError(t, q.Push(ctx, JournalQueue, event))
		qid, got, err := q.Pop(ctx, JournalQueue)
		require.NoError(t, err)
		assert.Equal(t, JournalQueue, qid)
		assert.Equal(t, event.Kind, got.Kind)
		assert.Equal(t, event.ID, got.ID)
		assert.True(t, event.At.Equal(got.At))
	})
}
