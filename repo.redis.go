package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var (
	_ CatalogStorage = (*redisCatalogStorage)(nil)
	_ LoanStorage    = (*redisLoanStorage)(nil)

	counterField = strconv.Itoa(CounterDocID)
)

// GetRedisClient provides a ready to use redis client.
func GetRedisClient(config *Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%s", config.Redis.Host, config.Redis.Port),
		DialTimeout:  config.Redis.DialTimeout,
		ReadTimeout:  config.Redis.ReadTimeout,
		WriteTimeout: config.Redis.WriteTimeout,
		PoolSize:     config.Redis.PoolSize,
		PoolTimeout:  config.Redis.PoolTimeout,
		Password:     config.Redis.Password,
		Username:     config.Redis.Username,
		DB:           config.Redis.DatabaseIndex,
	})

	// test connection.
	if pong, err := client.Ping(context.Background()).Result(); pong != "PONG" || err != nil {
		return client, fmt.Errorf("test connection failed: %v", err)
	}
	return client, nil
}

// RedisKey builds the name of a collection hash inside the namespace.
func RedisKey(namespace, collection string) string {
	return namespace + ":" + collection
}

// initRedisCounter inserts the counter field only when absent so that
// concurrent starts of several instances keep the highest value.
func initRedisCounter(ctx context.Context, client *redis.Client, key string) error {
	if err := client.HSetNX(ctx, key, counterField, 0).Err(); err != nil {
		return fmt.Errorf("failed to initialize counter of %s: %w", key, err)
	}
	return nil
}

func redisAllocate(ctx context.Context, client *redis.Client, key string) (int, error) {
	id, err := client.HIncrBy(ctx, key, counterField, 1).Result()
	if err != nil {
		return 0, err
	}
	return int(id), nil
}

// redisList decodes every field of the hash except the counter, ordered by identifier.
func redisList[T any](ctx context.Context, client *redis.Client, key string) ([]T, error) {
	fields, err := client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	ids := make([]int, 0, len(fields))
	for field := range fields {
		id, err := strconv.Atoi(field)
		if err != nil || id == CounterDocID {
			continue
		}
		ids = append(ids, id)
	}
	sort.Ints(ids)
	values := make([]T, 0, len(ids))
	for _, id := range ids {
		var value T
		if err = json.Unmarshal([]byte(fields[FormatID(id)]), &value); err != nil {
			return nil, err
		}
		values = append(values, value)
	}
	return values, nil
}

// newTxBackOff provides the retry schedule of optimistic transactions.
func newTxBackOff(ctx context.Context, maxRetries uint64) backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 5 * time.Millisecond
	bo.MaxInterval = 200 * time.Millisecond
	bo.MaxElapsedTime = 5 * time.Second
	return backoff.WithContext(backoff.WithMaxRetries(bo, maxRetries), ctx)
}

// watchAndRetry runs fn inside a WATCH/MULTI transaction on keys. A transaction
// aborted because another client modified a watched key is run again.
func watchAndRetry(ctx context.Context, logger *zap.Logger, client *redis.Client, maxRetries uint64, fn func(*redis.Tx) error, keys ...string) error {
	return backoff.Retry(func() error {
		err := client.Watch(ctx, fn, keys...)
		if errors.Is(err, redis.TxFailedErr) {
			logger.Debug("redis: transaction conflict: retrying", zap.Strings("keys", keys))
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}, newTxBackOff(ctx, maxRetries))
}

type redisCatalogStorage struct {
	logger     *zap.Logger
	client     *redis.Client
	booksKey   string
	ratingsKey string
	maxRetries uint64
}

// NewRedisCatalogStorage provides an instance of redis-based books and ratings storage.
func NewRedisCatalogStorage(ctx context.Context, logger *zap.Logger, client *redis.Client, namespace string, maxRetries uint64) (CatalogStorage, error) {
	rs := &redisCatalogStorage{
		logger:     logger,
		client:     client,
		booksKey:   RedisKey(namespace, BooksBucket),
		ratingsKey: RedisKey(namespace, RatingsBucket),
		maxRetries: maxRetries,
	}
	if err := initRedisCounter(ctx, client, rs.booksKey); err != nil {
		return nil, err
	}
	return rs, nil
}

// Allocate provides the next book identifier.
func (rs *redisCatalogStorage) Allocate(ctx context.Context) (int, error) {
	return redisAllocate(ctx, rs.client, rs.booksKey)
}

// AddBook inserts the book and its rating in a single MULTI/EXEC block.
func (rs *redisCatalogStorage) AddBook(ctx context.Context, book Book, rating Rating) error {
	if _, err := ParseID(book.ID); err != nil {
		return err
	}
	bookBytes, err := json.Marshal(book)
	if err != nil {
		return err
	}
	ratingBytes, err := json.Marshal(rating)
	if err != nil {
		return err
	}
	_, err = rs.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, rs.booksKey, book.ID, bookBytes)
		pipe.HSet(ctx, rs.ratingsKey, book.ID, ratingBytes)
		return nil
	})
	return err
}

// GetBook retrieves a book record based on its ID.
func (rs *redisCatalogStorage) GetBook(ctx context.Context, id int) (Book, error) {
	var book Book
	if id == CounterDocID {
		return book, ErrBookNotFound
	}
	bookJSONString, err := rs.client.HGet(ctx, rs.booksKey, FormatID(id)).Result()
	if err == redis.Nil {
		return book, ErrBookNotFound
	}
	if err != nil {
		return book, err
	}
	err = json.Unmarshal([]byte(bookJSONString), &book)
	return book, err
}

// ListBooks retrieves all books stored in the redis database.
func (rs *redisCatalogStorage) ListBooks(ctx context.Context) ([]Book, error) {
	return redisList[Book](ctx, rs.client, rs.booksKey)
}

// UpdateBook replaces an existing book record and keeps its rating title in sync.
func (rs *redisCatalogStorage) UpdateBook(ctx context.Context, id int, book Book) (Book, error) {
	if id == CounterDocID {
		return Book{}, ErrBookNotFound
	}
	field := FormatID(id)
	book.ID = field
	bookBytes, err := json.Marshal(book)
	if err != nil {
		return Book{}, err
	}

	txf := func(tx *redis.Tx) error {
		exists, err := tx.HExists(ctx, rs.booksKey, field).Result()
		if err != nil {
			return err
		}
		if !exists {
			return ErrBookNotFound
		}
		var ratingBytes []byte
		raw, err := tx.HGet(ctx, rs.ratingsKey, field).Result()
		switch {
		case err == nil:
			var rating Rating
			if err = json.Unmarshal([]byte(raw), &rating); err != nil {
				return err
			}
			rating.Title = book.Title
			if ratingBytes, err = json.Marshal(rating); err != nil {
				return err
			}
		case err != redis.Nil:
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, rs.booksKey, field, bookBytes)
			if ratingBytes != nil {
				pipe.HSet(ctx, rs.ratingsKey, field, ratingBytes)
			}
			return nil
		})
		return err
	}

	if err = watchAndRetry(ctx, rs.logger, rs.client, rs.maxRetries, txf, rs.booksKey, rs.ratingsKey); err != nil {
		return Book{}, err
	}
	return book, nil
}

// DeleteBook removes the book and its rating in a single MULTI/EXEC block.
func (rs *redisCatalogStorage) DeleteBook(ctx context.Context, id int) error {
	if id == CounterDocID {
		return ErrBookNotFound
	}
	field := FormatID(id)
	var deleted *redis.IntCmd
	_, err := rs.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		deleted = pipe.HDel(ctx, rs.booksKey, field)
		pipe.HDel(ctx, rs.ratingsKey, field)
		return nil
	})
	if err != nil {
		return err
	}
	if deleted.Val() == 0 {
		return ErrBookNotFound
	}
	return nil
}

// GetRating retrieves the rating record of a book.
func (rs *redisCatalogStorage) GetRating(ctx context.Context, id int) (Rating, error) {
	var rating Rating
	raw, err := rs.client.HGet(ctx, rs.ratingsKey, FormatID(id)).Result()
	if err == redis.Nil {
		return rating, ErrRatingNotFound
	}
	if err != nil {
		return rating, err
	}
	err = json.Unmarshal([]byte(raw), &rating)
	return rating, err
}

// ListRatings retrieves all ratings stored in the redis database.
func (rs *redisCatalogStorage) ListRatings(ctx context.Context) ([]Rating, error) {
	return redisList[Rating](ctx, rs.client, rs.ratingsKey)
}

// AppendRatingValue appends the value and recomputes the average under an
// optimistic transaction watching the ratings hash.
func (rs *redisCatalogStorage) AppendRatingValue(ctx context.Context, id int, value int) (Rating, error) {
	field := FormatID(id)
	var rating Rating
	txf := func(tx *redis.Tx) error {
		raw, err := tx.HGet(ctx, rs.ratingsKey, field).Result()
		if err == redis.Nil {
			return ErrRatingNotFound
		}
		if err != nil {
			return err
		}
		rating = Rating{}
		if err = json.Unmarshal([]byte(raw), &rating); err != nil {
			return err
		}
		rating.Append(value)
		data, err := json.Marshal(rating)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, rs.ratingsKey, field, data)
			return nil
		})
		return err
	}

	if err := watchAndRetry(ctx, rs.logger, rs.client, rs.maxRetries, txf, rs.ratingsKey); err != nil {
		return Rating{}, err
	}
	return rating, nil
}

type redisLoanStorage struct {
	client   *redis.Client
	loansKey string
}

// NewRedisLoanStorage provides an instance of redis-based loan storage.
func NewRedisLoanStorage(ctx context.Context, client *redis.Client, namespace string) (LoanStorage, error) {
	rs := &redisLoanStorage{
		client:   client,
		loansKey: RedisKey(namespace, LoansBucket),
	}
	if err := initRedisCounter(ctx, client, rs.loansKey); err != nil {
		return nil, err
	}
	return rs, nil
}

// Allocate provides the next loan identifier.
func (rs *redisLoanStorage) Allocate(ctx context.Context) (int, error) {
	return redisAllocate(ctx, rs.client, rs.loansKey)
}

// AddLoan inserts a new loan record.
func (rs *redisLoanStorage) AddLoan(ctx context.Context, loan Loan) error {
	if _, err := ParseID(loan.LoanID); err != nil {
		return err
	}
	loanBytes, err := json.Marshal(loan)
	if err != nil {
		return err
	}
	return rs.client.HSet(ctx, rs.loansKey, loan.LoanID, loanBytes).Err()
}

// GetLoan retrieves a loan record based on its ID.
func (rs *redisLoanStorage) GetLoan(ctx context.Context, id int) (Loan, error) {
	var loan Loan
	if id == CounterDocID {
		return loan, ErrLoanNotFound
	}
	raw, err := rs.client.HGet(ctx, rs.loansKey, FormatID(id)).Result()
	if err == redis.Nil {
		return loan, ErrLoanNotFound
	}
	if err != nil {
		return loan, err
	}
	err = json.Unmarshal([]byte(raw), &loan)
	return loan, err
}

// ListLoans retrieves all loans stored in the redis database.
func (rs *redisLoanStorage) ListLoans(ctx context.Context) ([]Loan, error) {
	return redisList[Loan](ctx, rs.client, rs.loansKey)
}

// DeleteLoan removes a loan record based on its ID.
func (rs *redisLoanStorage) DeleteLoan(ctx context.Context, id int) error {
	if id == CounterDocID {
		return ErrLoanNotFound
	}
	n, err := rs.client.HDel(ctx, rs.loansKey, FormatID(id)).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrLoanNotFound
	}
	return nil
}
