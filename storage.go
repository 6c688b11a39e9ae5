package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Stores groups the storages needed by the roles served by the process.
// A nil field means the matching role is disabled.
type Stores struct {
	Catalog CatalogStorage
	Loans   LoanStorage
	closers []func() error
}

// NewStores builds the storages of the configured driver. The redis client
// is only used by the redis driver and may be nil otherwise.
func NewStores(ctx context.Context, logger *zap.Logger, config *Config, redisClient *redis.Client) (*Stores, error) {
	var err error
	stores := &Stores{}
	books, loans := config.HasRole(BooksRole), config.HasRole(LoansRole)

	switch config.Storage.Driver {
	case RedisDriver:
		if redisClient == nil {
			return nil, errors.New("redis storage driver requires a redis client")
		}
		if books {
			stores.Catalog, err = NewRedisCatalogStorage(ctx, logger, redisClient, config.Storage.Namespace, config.Redis.TxMaxRetries)
			if err != nil {
				return nil, err
			}
		}
		if loans {
			stores.Loans, err = NewRedisLoanStorage(ctx, redisClient, config.Storage.Namespace)
			if err != nil {
				return nil, err
			}
		}

	case BoltDriver:
		var buckets, counters []string
		if books {
			buckets = append(buckets, BooksBucket, RatingsBucket)
			counters = append(counters, BooksBucket)
		}
		if loans {
			buckets = append(buckets, LoansBucket)
			counters = append(counters, LoansBucket)
		}
		db, err := GetBoltDBClient(&config.BoltDB, buckets, counters)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to boltDB: %w", err)
		}
		stores.closers = append(stores.closers, db.Close)
		if books {
			stores.Catalog = NewBoltCatalogStorage(db)
		}
		if loans {
			stores.Loans = NewBoltLoanStorage(db)
		}

	default:
		if books {
			stores.Catalog = NewMemoryCatalogStorage()
		}
		if loans {
			stores.Loans = NewMemoryLoanStorage()
		}
	}
	return stores, nil
}

// Close releases the underlying databases.
func (s *Stores) Close() error {
	var errs []error
	for _, c := range s.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}
