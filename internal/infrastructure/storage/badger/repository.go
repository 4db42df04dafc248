// Package badger stores index snapshots in an embedded BadgerDB.
package badger

import (
	"context"
	"fmt"
	"os"

	"github.com/dgraph-io/badger/v4"

	"github.com/turtacn/cfpminer/internal/config"
	"github.com/turtacn/cfpminer/internal/domain/fragment"
	"github.com/turtacn/cfpminer/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/cfpminer/pkg/errors"
)

var keyPrefix = []byte("snapshot/")

// badgerLogger adapts logging.Logger to badger.Logger.  Badger is chatty at
// info level, so its info messages are demoted to debug.
type badgerLogger struct {
	logger logging.Logger
}

func (l badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}
func (l badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}
func (l badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}
func (l badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// Repository is a fragment.SnapshotRepository over one BadgerDB.
type Repository struct {
	db     *badger.DB
	logger logging.Logger
}

// Open opens (or creates) the database described by cfg.
func Open(cfg config.BadgerConfig, log logging.Logger) (*Repository, error) {
	if log == nil {
		log = logging.NewNopLogger()
	}
	log = log.Named("snapshot.badger")

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Dir == "" {
			return nil, errors.InvalidParam("badger directory is required for a persistent database")
		}
		if err := os.MkdirAll(cfg.Dir, 0o750); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "cannot create badger directory").WithDetail(cfg.Dir)
		}
		opts = badger.DefaultOptions(cfg.Dir).WithSyncWrites(true)
	}
	opts = opts.WithNumVersionsToKeep(1).WithLogger(badgerLogger{logger: log})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "open badger database")
	}
	return &Repository{db: db, logger: log}, nil
}

func key(id string) []byte {
	return append(append([]byte{}, keyPrefix...), id...)
}

func notFound(id string) error {
	return errors.New(errors.ErrCodeSnapshotNotFound, "snapshot not found").WithDetail(id)
}

func (r *Repository) Save(ctx context.Context, s *fragment.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := fragment.ValidateSnapshotID(s.ID); err != nil {
		return err
	}
	data, err := fragment.MarshalSnapshot(s)
	if err != nil {
		return err
	}
	if err := r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key(s.ID), data)
	}); err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to store snapshot").WithDetail(s.ID)
	}
	return nil
}

func (r *Repository) Load(ctx context.Context, id string) (*fragment.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := fragment.ValidateSnapshotID(id); err != nil {
		return nil, err
	}
	var data []byte
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key(id))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if err == badger.ErrKeyNotFound {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to read snapshot").WithDetail(id)
	}
	return fragment.UnmarshalSnapshot(data)
}

// List iterates keys only; badger returns them in byte order, which is
// ascending string order for the IDs.
func (r *Repository) List(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ids := []string{}
	err := r.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = keyPrefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			ids = append(ids, string(it.Item().Key()[len(keyPrefix):]))
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to list snapshots")
	}
	return ids, nil
}

func (r *Repository) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := fragment.ValidateSnapshotID(id); err != nil {
		return err
	}
	err := r.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(key(id)); err != nil {
			return err
		}
		return txn.Delete(key(id))
	})
	if err == badger.ErrKeyNotFound {
		return notFound(id)
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to delete snapshot").WithDetail(id)
	}
	return nil
}

func (r *Repository) Close() error {
	return r.db.Close()
}
