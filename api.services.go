package main

import (
	"context"

	"go.uber.org/zap"
)

// CatalogServiceProvider gathers the books, ratings and ranking operations.
type CatalogServiceProvider interface {
	CreateBook(ctx context.Context, req BookRequest) (Book, error)
	GetBook(ctx context.Context, id int) (Book, error)
	ListBooks(ctx context.Context, filter BookFilter) ([]Book, error)
	UpdateBook(ctx context.Context, id int, book Book) (Book, error)
	DeleteBook(ctx context.Context, id int) error
	GetRating(ctx context.Context, id int) (Rating, error)
	ListRatings(ctx context.Context, id string) ([]Rating, error)
	AddRatingValue(ctx context.Context, id int, value int) (Rating, error)
	TopBooks(ctx context.Context) ([]TopBook, error)
}

// publisher pushes committed changes to the journal queue. A nil queue
// disables publishing. Failures never fail the operation already committed.
type publisher struct {
	logger *zap.Logger
	clock  Clocker
	queue  Queuer
}

func (p *publisher) publish(ctx context.Context, kind ChangeKind, id string, payload interface{}) {
	if p.queue == nil {
		return
	}
	event, err := NewChangeEvent(kind, id, p.clock.Now(), payload)
	if err != nil {
		p.logger.Error("service: failed to build change event", zap.String("change.kind", string(kind)), zap.Error(err))
		return
	}
	if err = p.queue.Push(ctx, JournalQueue, event); err != nil {
		p.logger.Error("service: failed to push to queue",
			zap.String("qid", JournalQueue),
			zap.String("change.kind", string(kind)),
			zap.String("change.id", id),
			zap.Error(err),
		)
	}
}

type CatalogService struct {
	publisher
	storage  CatalogStorage
	enricher Enricher
	metrics  *Metrics
}

func NewCatalogService(logger *zap.Logger, clock Clocker, storage CatalogStorage, enricher Enricher, queue Queuer, metrics *Metrics) *CatalogService {
	return &CatalogService{
		publisher: publisher{logger: logger, clock: clock, queue: queue},
		storage:   storage,
		enricher:  enricher,
		metrics:   metrics,
	}
}

// isbnTaken scans the catalog for another book using the ISBN. The scan and
// the following write are not atomic so two concurrent creations may both pass.
func (cs *CatalogService) isbnTaken(ctx context.Context, isbn, exceptID string) (bool, error) {
	books, err := cs.storage.ListBooks(ctx)
	if err != nil {
		return false, err
	}
	for _, b := range books {
		if b.ISBN == isbn && b.ID != exceptID {
			return true, nil
		}
	}
	return false, nil
}

// CreateBook enriches the requested book then persists it together with its
// empty rating. No identifier is consumed when a check or a lookup fails.
func (cs *CatalogService) CreateBook(ctx context.Context, req BookRequest) (Book, error) {
	taken, err := cs.isbnTaken(ctx, req.ISBN, "")
	if err != nil {
		return Book{}, err
	}
	if taken {
		return Book{}, ErrDuplicateISBN
	}

	details, err := cs.enricher.Details(ctx, req.ISBN)
	if err != nil {
		return Book{}, err
	}
	languages := cs.enricher.Languages(ctx, req.ISBN)
	summary, err := cs.enricher.Summary(ctx, req.Title, details.Authors)
	if err != nil {
		return Book{}, err
	}

	id, err := cs.storage.Allocate(ctx)
	if err != nil {
		return Book{}, err
	}
	cs.metrics.ObserveAllocation(BooksBucket)

	book := Book{
		ID:            FormatID(id),
		Title:         req.Title,
		ISBN:          req.ISBN,
		Genre:         req.Genre,
		Authors:       details.Authors,
		Publisher:     details.Publisher,
		PublishedDate: details.PublishedDate,
		Language:      languages,
		Summary:       summary,
	}
	if err = cs.storage.AddBook(ctx, book, NewRating(book)); err != nil {
		return Book{}, err
	}
	cs.publish(ctx, BookCreated, book.ID, book)
	return book, nil
}

func (cs *CatalogService) GetBook(ctx context.Context, id int) (Book, error) {
	return cs.storage.GetBook(ctx, id)
}

// ListBooks returns the books matching every criterion of the filter.
func (cs *CatalogService) ListBooks(ctx context.Context, filter BookFilter) ([]Book, error) {
	books, err := cs.storage.ListBooks(ctx)
	if err != nil {
		return nil, err
	}
	if len(filter) == 0 {
		return books, nil
	}
	matched := []Book{}
	for _, b := range books {
		if filter.Matches(b) {
			matched = append(matched, b)
		}
	}
	return matched, nil
}

// UpdateBook replaces every field of an existing book.
func (cs *CatalogService) UpdateBook(ctx context.Context, id int, book Book) (Book, error) {
	taken, err := cs.isbnTaken(ctx, book.ISBN, FormatID(id))
	if err != nil {
		return Book{}, err
	}
	if taken {
		return Book{}, ErrDuplicateISBN
	}
	book, err = cs.storage.UpdateBook(ctx, id, book)
	if err != nil {
		return Book{}, err
	}
	cs.publish(ctx, BookUpdated, book.ID, book)
	return book, nil
}

// DeleteBook removes the book and its rating.
func (cs *CatalogService) DeleteBook(ctx context.Context, id int) error {
	if err := cs.storage.DeleteBook(ctx, id); err != nil {
		return err
	}
	cs.publish(ctx, BookDeleted, FormatID(id), nil)
	return nil
}

func (cs *CatalogService) GetRating(ctx context.Context, id int) (Rating, error) {
	return cs.storage.GetRating(ctx, id)
}

// ListRatings returns all ratings, or only the one of the given book id when set.
func (cs *CatalogService) ListRatings(ctx context.Context, id string) ([]Rating, error) {
	ratings, err := cs.storage.ListRatings(ctx)
	if err != nil {
		return nil, err
	}
	if id == "" {
		return ratings, nil
	}
	matched := []Rating{}
	for _, r := range ratings {
		if r.ID == id {
			matched = append(matched, r)
		}
	}
	return matched, nil
}

// AddRatingValue appends a validated value to the book rating and returns
// the updated record.
func (cs *CatalogService) AddRatingValue(ctx context.Context, id int, value int) (Rating, error) {
	if value < MinRatingValue || value > MaxRatingValue {
		return Rating{}, invalidField("value", "must be an integer between 1 and 5")
	}
	rating, err := cs.storage.AppendRatingValue(ctx, id, value)
	if err != nil {
		return Rating{}, err
	}
	cs.publish(ctx, RatingAdded, rating.ID, map[string]int{"value": value})
	return rating, nil
}

// TopBooks ranks the rated books.
func (cs *CatalogService) TopBooks(ctx context.Context) ([]TopBook, error) {
	ratings, err := cs.storage.ListRatings(ctx)
	if err != nil {
		return nil, err
	}
	return RankTopBooks(ratings, TopRanks, MinValuesForRanking), nil
}
