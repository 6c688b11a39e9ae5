package main

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// This file contains mocks definitions needed to perform unit tests.

type MockCatalogStorage struct {
	AllocateFunc          func(ctx context.Context) (int, error)
	AddBookFunc           func(ctx context.Context, book Book, rating Rating) error
	GetBookFunc           func(ctx context.Context, id int) (Book, error)
	ListBooksFunc         func(ctx context.Context) ([]Book, error)
	UpdateBookFunc        func(ctx context.Context, id int, book Book) (Book, error)
	DeleteBookFunc        func(ctx context.Context, id int) error
	GetRatingFunc         func(ctx context.Context, id int) (Rating, error)
	ListRatingsFunc       func(ctx context.Context) ([]Rating, error)
	AppendRatingValueFunc func(ctx context.Context, id int, value int) (Rating, error)
}

// Allocate mocks the identifier allocation by the repository.
func (m *MockCatalogStorage) Allocate(ctx context.Context) (int, error) {
	return m.AllocateFunc(ctx)
}

// AddBook mocks the behavior of book creation by the repository.
func (m *MockCatalogStorage) AddBook(ctx context.Context, book Book, rating Rating) error {
	return m.AddBookFunc(ctx, book, rating)
}

// GetBook mocks the behavior of retrieving a book by the repository.
func (m *MockCatalogStorage) GetBook(ctx context.Context, id int) (Book, error) {
	return m.GetBookFunc(ctx, id)
}

// ListBooks mocks the behavior of retrieving all books by the repository.
func (m *MockCatalogStorage) ListBooks(ctx context.Context) ([]Book, error) {
	return m.ListBooksFunc(ctx)
}

// UpdateBook mocks the behavior of updating a book by the repository.
func (m *MockCatalogStorage) UpdateBook(ctx context.Context, id int, book Book) (Book, error) {
	return m.UpdateBookFunc(ctx, id, book)
}

// DeleteBook mocks the behavior of deleting a book by the repository.
func (m *MockCatalogStorage) DeleteBook(ctx context.Context, id int) error {
	return m.DeleteBookFunc(ctx, id)
}

func (m *MockCatalogStorage) GetRating(ctx context.Context, id int) (Rating, error) {
	return m.GetRatingFunc(ctx, id)
}

func (m *MockCatalogStorage) ListRatings(ctx context.Context) ([]Rating, error) {
	return m.ListRatingsFunc(ctx)
}

func (m *MockCatalogStorage) AppendRatingValue(ctx context.Context, id int, value int) (Rating, error) {
	return m.AppendRatingValueFunc(ctx, id, value)
}

type MockLoanStorage struct {
	AllocateFunc   func(ctx context.Context) (int, error)
	AddLoanFunc    func(ctx context.Context, loan Loan) error
	GetLoanFunc    func(ctx context.Context, id int) (Loan, error)
	ListLoansFunc  func(ctx context.Context) ([]Loan, error)
	DeleteLoanFunc func(ctx context.Context, id int) error
}

func (m *MockLoanStorage) Allocate(ctx context.Context) (int, error) {
	return m.AllocateFunc(ctx)
}

func (m *MockLoanStorage) AddLoan(ctx context.Context, loan Loan) error {
	return m.AddLoanFunc(ctx, loan)
}

func (m *MockLoanStorage) GetLoan(ctx context.Context, id int) (Loan, error) {
	return m.GetLoanFunc(ctx, id)
}

func (m *MockLoanStorage) ListLoans(ctx context.Context) ([]Loan, error) {
	return m.ListLoansFunc(ctx)
}

func (m *MockLoanStorage) DeleteLoan(ctx context.Context, id int) error {
	return m.DeleteLoanFunc(ctx, id)
}

// MockEnricher implements a fake Enricher.
type MockEnricher struct {
	DetailsFunc   func(ctx context.Context, isbn string) (BookDetails, error)
	LanguagesFunc func(ctx context.Context, isbn string) []string
	SummaryFunc   func(ctx context.Context, title, authors string) (string, error)
}

func (m *MockEnricher) Details(ctx context.Context, isbn string) (BookDetails, error) {
	return m.DetailsFunc(ctx, isbn)
}

func (m *MockEnricher) Languages(ctx context.Context, isbn string) []string {
	return m.LanguagesFunc(ctx, isbn)
}

func (m *MockEnricher) Summary(ctx context.Context, title, authors string) (string, error) {
	return m.SummaryFunc(ctx, title, authors)
}

// NewStaticEnricher returns an enricher answering the same details for every book.
func NewStaticEnricher() *MockEnricher {
	return &MockEnricher{
		DetailsFunc: func(ctx context.Context, isbn string) (BookDetails, error) {
			return BookDetails{Authors: "Frank Herbert", Publisher: "Chilton Books", PublishedDate: "1965"}, nil
		},
		LanguagesFunc: func(ctx context.Context, isbn string) []string {
			return []string{"eng"}
		},
		SummaryFunc: func(ctx context.Context, title, authors string) (string, error) {
			return "A desert planet.", nil
		},
	}
}

// MockCatalogClient implements a fake CatalogClient.
type MockCatalogClient struct {
	FindByISBNFunc func(ctx context.Context, isbn string) (Book, error)
}

func (m *MockCatalogClient) FindByISBN(ctx context.Context, isbn string) (Book, error) {
	return m.FindByISBNFunc(ctx, isbn)
}

// MockQueuer implements a fake Queuer.
type MockQueuer struct {
	PushFunc func(ctx context.Context, qid string, event ChangeEvent) error
	PopFunc  func(ctx context.Context, qids ...string) (string, ChangeEvent, error)
}

func (m *MockQueuer) Push(ctx context.Context, qid string, event ChangeEvent) error {
	return m.PushFunc(ctx, qid, event)
}

func (m *MockQueuer) Pop(ctx context.Context, qids ...string) (string, ChangeEvent, error) {
	return m.PopFunc(ctx, qids...)
}

// MockJournalReader implements a fake JournalReader.
type MockJournalReader struct {
	LastFunc func(ctx context.Context, n int) ([]ChangeEvent, error)
}

func (m *MockJournalReader) Last(ctx context.Context, n int) ([]ChangeEvent, error) {
	return m.LastFunc(ctx, n)
}

// MockClocker implements a fake Clocker.
type MockClocker struct {
	MockNow time.Time
}

// NewMockClocker returns a mocked instance with fixed time.
func NewMockClocker() *MockClocker {
	return &MockClocker{time.Date(2023, 0o7, 0o2, 0o0, 0o0, 0o0, 0o00000000, time.UTC)}
}

// Now returns an already defined time to be used as mock. This
// equals to `Sun, 02 Jul 2023 00:00:00 UTC` in time.RFC1123 format.
func (mck *MockClocker) Now() time.Time {
	return mck.MockNow
}

// MockUIDHandler implements a fake UIDHandler.
type MockUIDHandler struct {
	MockedUID string
}

// NewMockUIDHandler returns a mocked instance with predictable id.
func NewMockUIDHandler(id string) *MockUIDHandler {
	return &MockUIDHandler{MockedUID: id}
}

// Generate constructs a predictable id to be used as mock.
func (muid *MockUIDHandler) Generate(prefix string) string {
	return prefix + ":" + muid.MockedUID
}

// newTestAPIHandler builds an api handler serving both roles with mocked
// clock and request ids.
func newTestAPIHandler(cs CatalogServiceProvider, ls LoanServiceProvider, journal JournalReader) *APIHandler {
	config := &Config{
		Services:           []string{BooksRole, LoansRole},
		OpsEndpointsEnable: true,
		Server:             ServerConfig{LongRequestWriteTimeout: 5 * time.Second},
	}
	clock := NewMockClocker()
	return NewAPIHandler(zap.NewNop(), config, &Statistics{started: clock.Now()}, clock, NewMockUIDHandler("abc"), cs, ls, journal, nil)
}
