package main

import (
	"context"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStorage_AllocateConcurrently(t *testing.T) {
	ms := NewMemoryCatalogStorage()
	const callers = 100
	ids := make([]int, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := ms.Allocate(context.Background())
			assert.NoError(t, err)
			ids[i] = id
		}(i)
	}
	wg.Wait()

	sort.Ints(ids)
	for i, id := range ids {
		assert.Equal(t, i+1, id)
	}
}

func TestMemoryStorage_Books(t *testing.T) {
	ctx := context.Background()
	ms := NewMemoryCatalogStorage()

	t.Run("missing book", func(t *testing.T) {
		_, err := ms.GetBook(ctx, 1)
		assert.ErrorIs(t, err, ErrBookNotFound)
		_, err = ms.UpdateBook(ctx, 1, Book{})
		assert.ErrorIs(t, err, ErrBookNotFound)
		assert.ErrorIs(t, ms.DeleteBook(ctx, 1), ErrBookNotFound)
	})

	book := Book{ID: "1", Title: "Dune", ISBN: "9780441172719", Genre: GenreScienceFiction}
	require.NoError(t, ms.AddBook(ctx, book, NewRating(book)))
	other := Book{ID: "2", Title: "Emma", ISBN: "9780141439587", Genre: GenreFiction}
	require.NoError(t, ms.AddBook(ctx, other, NewRating(other)))

	t.Run("get and list", func(t *testing.T) {
		got, err := ms.GetBook(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, book, got)
		books, err := ms.ListBooks(ctx)
		require.NoError(t, err)
		assert.Equal(t, []Book{book, other}, books)
	})

	t.Run("update keeps id and syncs rating title", func(t *testing.T) {
		updated := book
		updated.ID = "99"
		updated.Title = "Dune Messiah"
		got, err := ms.UpdateBook(ctx, 1, updated)
		require.NoError(t, err)
		assert.Equal(t, "1", got.ID)
		rating, err := ms.GetRating(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, "Dune Messiah", rating.Title)
	})

	t.Run("delete removes the rating", func(t *testing.T) {
		require.NoError(t, ms.DeleteBook(ctx, 2))
		_, err := ms.GetBook(ctx, 2)
		assert.ErrorIs(t, err, ErrBookNotFound)
		_, err = ms.GetRating(ctx, 2)
		assert.ErrorIs(t, err, ErrRatingNotFound)
	})

	t.Run("invalid id", func(t *testing.T) {
		assert.ErrorIs(t, ms.AddBook(ctx, Book{ID: "x"}, Rating{}), ErrInvalidID)
	})
}

func TestMemoryStorage_AppendRatingValueConcurrently(t *testing.T) {
	ctx := context.Background()
	ms := NewMemoryCatalogStorage()
	book := Book{ID: "1", Title: "Dune"}
	require.NoError(t, ms.AddBook(ctx, book, NewRating(book)))

	const callers = 50
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := ms.AppendRatingValue(ctx, 1, i%5+1)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	rating, err := ms.GetRating(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, rating.Values, callers)
	assert.Equal(t, 3.0, rating.Average)

	_, err = ms.AppendRatingValue(ctx, 7, 3)
	assert.ErrorIs(t, err, ErrRatingNotFound)
}

func TestMemoryStorage_Loans(t *testing.T) {
	ctx := context.Background()
	ms := NewMemoryLoanStorage()

	id, err := ms.Allocate(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, id)

	loan := Loan{LoanID: "1", MemberName: "ada", ISBN: "9780441172719", LoanDate: "2024-01-31", BookID: "4", Title: "Dune"}
	require.NoError(t, ms.AddLoan(ctx, loan))

	got, err := ms.GetLoan(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, loan, got)

	loans, err := ms.ListLoans(ctx)
	require.NoError(t, err)
	assert.Equal(t, []Loan{loan}, loans)

	require.NoError(t, ms.DeleteLoan(ctx, 1))
	assert.ErrorIs(t, ms.DeleteLoan(ctx, 1), ErrLoanNotFound)
	_, err = ms.GetLoan(ctx, 1)
	assert.ErrorIs(t, err, ErrLoanNotFound)

	// identifiers are never reused.
	id, err = ms.Allocate(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, id)
}
