package main

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/boltdb/bolt"
)

// Bolt buckets names.
const (
	BooksBucket   = "books"
	RatingsBucket = "ratings"
	LoansBucket   = "loans"
)

var (
	_ CatalogStorage = (*boltCatalogStorage)(nil)
	_ LoanStorage    = (*boltLoanStorage)(nil)

	counterKey = []byte(strconv.Itoa(CounterDocID))
)

// GetBoltDBClient opens the database file then creates the given buckets. Buckets
// listed in counters also get their counter document inserted if absent.
func GetBoltDBClient(config *BoltDBConfig, buckets []string, counters []string) (*bolt.DB, error) {
	db, err := bolt.Open(config.FilePath, 0o600, &bolt.Options{Timeout: config.Timeout})
	if err != nil {
		return nil, fmt.Errorf("failed to open the database, %v", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range buckets {
			if _, errB := tx.CreateBucketIfNotExists([]byte(name)); errB != nil {
				return fmt.Errorf("failed to create %s bucket: %v", name, errB)
			}
		}
		for _, name := range counters {
			b := tx.Bucket([]byte(name))
			if b == nil {
				return fmt.Errorf("counter bucket %s does not exist", name)
			}
			if b.Get(counterKey) != nil {
				continue
			}
			data, errM := json.Marshal(CounterDoc{})
			if errM != nil {
				return errM
			}
			if errP := b.Put(counterKey, data); errP != nil {
				return fmt.Errorf("failed to initialize %s counter: %v", name, errP)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set up buckets: %v", err)
	}
	return db, nil
}

// boltAllocate increments the counter document of the bucket. Bolt runs a
// single writable transaction at a time so the read and the write cannot
// interleave with another allocation.
func boltAllocate(db *bolt.DB, bucket string) (int, error) {
	var id int
	err := db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		var doc CounterDoc
		if raw := b.Get(counterKey); raw != nil {
			if err := json.Unmarshal(raw, &doc); err != nil {
				return fmt.Errorf("corrupted %s counter: %w", bucket, err)
			}
		}
		doc.HighestObjectID++
		data, err := json.Marshal(doc)
		if err != nil {
			return err
		}
		id = doc.HighestObjectID
		return b.Put(counterKey, data)
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// boltList decodes every record of the bucket except the counter document,
// ordered by numeric identifier.
func boltList[T any](tx *bolt.Tx, bucket string) ([]T, error) {
	type entry struct {
		id    int
		value T
	}
	entries := []entry{}
	c := tx.Bucket([]byte(bucket)).Cursor()
	for k, v := c.First(); k != nil; k, v = c.Next() {
		id, err := strconv.Atoi(string(k))
		if err != nil || id == CounterDocID {
			continue
		}
		var value T
		if err = json.Unmarshal(v, &value); err != nil {
			return nil, err
		}
		entries = append(entries, entry{id, value})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].id < entries[j].id })
	values := make([]T, 0, len(entries))
	for _, e := range entries {
		values = append(values, e.value)
	}
	return values, nil
}

func boltPut(b *bolt.Bucket, id int, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.Put([]byte(FormatID(id)), data)
}

// boltCatalogStorage shares its db with the loans storage. Stores owns and closes it.
type boltCatalogStorage struct {
	client *bolt.DB
}

// NewBoltCatalogStorage provides an instance of bolt-based books and ratings storage.
func NewBoltCatalogStorage(client *bolt.DB) CatalogStorage {
	return &boltCatalogStorage{client: client}
}

// Allocate provides the next book identifier.
func (bs *boltCatalogStorage) Allocate(_ context.Context) (int, error) {
	return boltAllocate(bs.client, BooksBucket)
}

// AddBook inserts the book and its rating into the same transaction.
func (bs *boltCatalogStorage) AddBook(_ context.Context, book Book, rating Rating) error {
	id, err := ParseID(book.ID)
	if err != nil {
		return err
	}
	return bs.client.Update(func(tx *bolt.Tx) error {
		if err := boltPut(tx.Bucket([]byte(BooksBucket)), id, book); err != nil {
			return err
		}
		return boltPut(tx.Bucket([]byte(RatingsBucket)), id, rating)
	})
}

// GetBook retrieves a book record based on its ID from boltdb store.
func (bs *boltCatalogStorage) GetBook(_ context.Context, id int) (Book, error) {
	var book Book
	// initialize a readable transaction.
	tx, err := bs.client.Begin(false)
	if err != nil {
		return book, err
	}
	defer tx.Rollback()

	result := tx.Bucket([]byte(BooksBucket)).Get([]byte(FormatID(id)))
	if result == nil || id == CounterDocID {
		return book, ErrBookNotFound
	}
	err = json.Unmarshal(result, &book)
	return book, err
}

// ListBooks retrieves all books stored in the bolt database.
func (bs *boltCatalogStorage) ListBooks(_ context.Context) ([]Book, error) {
	tx, err := bs.client.Begin(false)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	return boltList[Book](tx, BooksBucket)
}

// UpdateBook replaces an existing book record and keeps its rating title in sync.
func (bs *boltCatalogStorage) UpdateBook(_ context.Context, id int, book Book) (Book, error) {
	book.ID = FormatID(id)
	err := bs.client.Update(func(tx *bolt.Tx) error {
		books := tx.Bucket([]byte(BooksBucket))
		if id == CounterDocID || books.Get([]byte(book.ID)) == nil {
			return ErrBookNotFound
		}
		if err := boltPut(books, id, book); err != nil {
			return err
		}
		ratings := tx.Bucket([]byte(RatingsBucket))
		raw := ratings.Get([]byte(book.ID))
		if raw == nil {
			return nil
		}
		var rating Rating
		if err := json.Unmarshal(raw, &rating); err != nil {
			return err
		}
		rating.Title = book.Title
		return boltPut(ratings, id, rating)
	})
	if err != nil {
		return Book{}, err
	}
	return book, nil
}

// DeleteBook removes the book record and its rating.
func (bs *boltCatalogStorage) DeleteBook(_ context.Context, id int) error {
	key := []byte(FormatID(id))
	return bs.client.Update(func(tx *bolt.Tx) error {
		books := tx.Bucket([]byte(BooksBucket))
		if id == CounterDocID || books.Get(key) == nil {
			return ErrBookNotFound
		}
		if err := books.Delete(key); err != nil {
			return err
		}
		return tx.Bucket([]byte(RatingsBucket)).Delete(key)
	})
}

// GetRating retrieves the rating record of a book.
func (bs *boltCatalogStorage) GetRating(_ context.Context, id int) (Rating, error) {
	var rating Rating
	tx, err := bs.client.Begin(false)
	if err != nil {
		return rating, err
	}
	defer tx.Rollback()

	result := tx.Bucket([]byte(RatingsBucket)).Get([]byte(FormatID(id)))
	if result == nil {
		return rating, ErrRatingNotFound
	}
	err = json.Unmarshal(result, &rating)
	return rating, err
}

// ListRatings retrieves all ratings stored in the bolt database.
func (bs *boltCatalogStorage) ListRatings(_ context.Context) ([]Rating, error) {
	tx, err := bs.client.Begin(false)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	return boltList[Rating](tx, RatingsBucket)
}

// AppendRatingValue appends the value and recomputes the average in one transaction.
func (bs *boltCatalogStorage) AppendRatingValue(_ context.Context, id int, value int) (Rating, error) {
	var rating Rating
	err := bs.client.Update(func(tx *bolt.Tx) error {
		ratings := tx.Bucket([]byte(RatingsBucket))
		raw := ratings.Get([]byte(FormatID(id)))
		if raw == nil {
			return ErrRatingNotFound
		}
		if err := json.Unmarshal(raw, &rating); err != nil {
			return err
		}
		rating.Append(value)
		return boltPut(ratings, id, rating)
	})
	if err != nil {
		return Rating{}, err
	}
	return rating, nil
}

type boltLoanStorage struct {
	client *bolt.DB
}

// NewBoltLoanStorage provides an instance of bolt-based loan storage.
func NewBoltLoanStorage(client *bolt.DB) LoanStorage {
	return &boltLoanStorage{client: client}
}

// Allocate provides the next loan identifier.
func (bs *boltLoanStorage) Allocate(_ context.Context) (int, error) {
	return boltAllocate(bs.client, LoansBucket)
}

// AddLoan inserts a new loan record into boltdb store.
func (bs *boltLoanStorage) AddLoan(_ context.Context, loan Loan) error {
	id, err := ParseID(loan.LoanID)
	if err != nil {
		return err
	}
	return bs.client.Update(func(tx *bolt.Tx) error {
		return boltPut(tx.Bucket([]byte(LoansBucket)), id, loan)
	})
}

// GetLoan retrieves a loan record based on its ID.
func (bs *boltLoanStorage) GetLoan(_ context.Context, id int) (Loan, error) {
	var loan Loan
	tx, err := bs.client.Begin(false)
	if err != nil {
		return loan, err
	}
	defer tx.Rollback()

	result := tx.Bucket([]byte(LoansBucket)).Get([]byte(FormatID(id)))
	if result == nil || id == CounterDocID {
		return loan, ErrLoanNotFound
	}
	err = json.Unmarshal(result, &loan)
	return loan, err
}

// ListLoans retrieves all loans stored in the bolt database.
func (bs *boltLoanStorage) ListLoans(_ context.Context) ([]Loan, error) {
	tx, err := bs.client.Begin(false)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	return boltList[Loan](tx, LoansBucket)
}

// DeleteLoan removes a loan record based on its ID.
func (bs *boltLoanStorage) DeleteLoan(_ context.Context, id int) error {
	key := []byte(FormatID(id))
	return bs.client.Update(func(tx *bolt.Tx) error {
		loans := tx.Bucket([]byte(LoansBucket))
		if id == CounterDocID || loans.Get(key) == nil {
			return ErrLoanNotFound
		}
		return loans.Delete(key)
	})
}
