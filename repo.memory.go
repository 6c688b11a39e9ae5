package main

import (
	"context"
	"sort"
	"sync"
)

var (
	_ CatalogStorage = (*memoryCatalogStorage)(nil)
	_ LoanStorage    = (*memoryLoanStorage)(nil)
)

// memoryCounter is a mutex-guarded identifier allocator.
type memoryCounter struct {
	mu      sync.Mutex
	highest int
}

func (mc *memoryCounter) Allocate(_ context.Context) (int, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.highest++
	return mc.highest, nil
}

// memoryCatalogStorage keeps books and ratings in process memory.
type memoryCatalogStorage struct {
	memoryCounter
	mu      sync.RWMutex
	books   map[int]Book
	ratings map[int]Rating
}

// NewMemoryCatalogStorage provides an in-memory catalog storage.
func NewMemoryCatalogStorage() CatalogStorage {
	return &memoryCatalogStorage{
		books:   make(map[int]Book),
		ratings: make(map[int]Rating),
	}
}

func (ms *memoryCatalogStorage) AddBook(_ context.Context, book Book, rating Rating) error {
	id, err := ParseID(book.ID)
	if err != nil {
		return err
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.books[id] = book
	rating.Values = append([]int{}, rating.Values...)
	ms.ratings[id] = rating
	return nil
}

func (ms *memoryCatalogStorage) GetBook(_ context.Context, id int) (Book, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	book, ok := ms.books[id]
	if !ok {
		return Book{}, ErrBookNotFound
	}
	return book, nil
}

func (ms *memoryCatalogStorage) ListBooks(_ context.Context) ([]Book, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	ids := sortedKeys(ms.books)
	books := make([]Book, 0, len(ids))
	for _, id := range ids {
		books = append(books, ms.books[id])
	}
	return books, nil
}

func (ms *memoryCatalogStorage) UpdateBook(_ context.Context, id int, book Book) (Book, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if _, ok := ms.books[id]; !ok {
		return Book{}, ErrBookNotFound
	}
	book.ID = FormatID(id)
	ms.books[id] = book
	if rating, ok := ms.ratings[id]; ok {
		rating.Title = book.Title
		ms.ratings[id] = rating
	}
	return book, nil
}

func (ms *memoryCatalogStorage) DeleteBook(_ context.Context, id int) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if _, ok := ms.books[id]; !ok {
		return ErrBookNotFound
	}
	delete(ms.books, id)
	delete(ms.ratings, id)
	return nil
}

func (ms *memoryCatalogStorage) GetRating(_ context.Context, id int) (Rating, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	rating, ok := ms.ratings[id]
	if !ok {
		return Rating{}, ErrRatingNotFound
	}
	rating.Values = append([]int{}, rating.Values...)
	return rating, nil
}

func (ms *memoryCatalogStorage) ListRatings(_ context.Context) ([]Rating, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	ids := sortedKeys(ms.ratings)
	ratings := make([]Rating, 0, len(ids))
	for _, id := range ids {
		rating := ms.ratings[id]
		rating.Values = append([]int{}, rating.Values...)
		ratings = append(ratings, rating)
	}
	return ratings, nil
}

func (ms *memoryCatalogStorage) AppendRatingValue(_ context.Context, id int, value int) (Rating, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	rating, ok := ms.ratings[id]
	if !ok {
		return Rating{}, ErrRatingNotFound
	}
	rating.Values = append(append([]int{}, rating.Values...), value)
	rating.Average = average(rating.Values)
	ms.ratings[id] = rating
	return rating, nil
}

// memoryLoanStorage keeps loans in process memory.
type memoryLoanStorage struct {
	memoryCounter
	mu    sync.RWMutex
	loans map[int]Loan
}

// NewMemoryLoanStorage provides an in-memory loan storage.
func NewMemoryLoanStorage() LoanStorage {
	return &memoryLoanStorage{loans: make(map[int]Loan)}
}

func (ms *memoryLoanStorage) AddLoan(_ context.Context, loan Loan) error {
	id, err := ParseID(loan.LoanID)
	if err != nil {
		return err
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.loans[id] = loan
	return nil
}

func (ms *memoryLoanStorage) GetLoan(_ context.Context, id int) (Loan, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	loan, ok := ms.loans[id]
	if !ok {
		return Loan{}, ErrLoanNotFound
	}
	return loan, nil
}

func (ms *memoryLoanStorage) ListLoans(_ context.Context) ([]Loan, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	ids := sortedKeys(ms.loans)
	loans := make([]Loan, 0, len(ids))
	for _, id := range ids {
		loans = append(loans, ms.loans[id])
	}
	return loans, nil
}

func (ms *memoryLoanStorage) DeleteLoan(_ context.Context, id int) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if _, ok := ms.loans[id]; !ok {
		return ErrLoanNotFound
	}
	delete(ms.loans, id)
	return nil
}

func sortedKeys[V any](m map[int]V) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
