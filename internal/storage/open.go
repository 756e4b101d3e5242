package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"conference-central/internal/config"
	"conference-central/internal/domain"
)

const cachePrefix = "conference:"

// Queue is a task queue the API enqueues to and the worker drains.
type Queue interface {
	domain.TaskQueue
	Receive(ctx context.Context) (*TaskMessage, error)
	Delete(ctx context.Context, msg *TaskMessage) error
}

// Backend is the set of storage components selected by configuration.
type Backend struct {
	Store domain.Store
	Queue Queue
	Cache domain.Cache
	// Redis is the shared client when REDIS_CONNECTION_STRING is set.
	Redis *redis.Client
	// Local is true when the queue lives in this process, so the caller must
	// run the worker itself.
	Local bool

	closers []func() error
}

// Open builds the backend for cfg. visibility is the queue message lease.
func Open(ctx context.Context, cfg config.Storage, visibility time.Duration) (*Backend, error) {
	b := &Backend{}
	switch cfg.Driver {
	case config.DriverTables:
		st, err := NewTablesStore(cfg.ConnectionString, cfg.Table, TablesOptions{
			CrossGroup: cfg.CrossGroup,
			MaxGroups:  cfg.MaxGroups,
			Attempts:   cfg.TxAttempts,
		})
		if err != nil {
			return nil, err
		}
		if cfg.CrossGroup {
			log.Warn("TABLES_CROSS_GROUP=true: registrations spanning partitions commit row by row and are not atomic")
		}
		q, err := NewAzureQueue(cfg.ConnectionString, cfg.TaskQueue, visibility)
		if err != nil {
			return nil, err
		}
		b.Store, b.Queue = st, q
	case config.DriverSQLite:
		st, err := OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		b.Store, b.Queue, b.Local = st, NewMemoryQueue(), true
		b.closers = append(b.closers, st.Close)
	case config.DriverMemory:
		b.Store, b.Queue, b.Local = NewMemoryStore(WithMaxGroups(cfg.MaxGroups)), NewMemoryQueue(), true
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}

	if cfg.RedisURL != "" {
		b.Redis = NewRedisClient(cfg.RedisURL)
		if err := b.Redis.Ping(ctx).Err(); err != nil {
			log.WithError(err).Warn("redis not reachable at start-up")
		}
		b.Cache = NewRedisCache(b.Redis, cachePrefix)
		b.closers = append(b.closers, b.Redis.Close)
	} else {
		b.Cache = NewMemoryCache()
	}

	log.WithFields(log.Fields{
		"driver":      cfg.Driver,
		"redis":       b.Redis != nil,
		"local_queue": b.Local,
	}).Info("storage backend ready")
	return b, nil
}

func (b *Backend) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
