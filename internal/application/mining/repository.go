package mining

import (
	"context"
	"io"
	"time"

	"github.com/turtacn/cfpminer/internal/config"
	"github.com/turtacn/cfpminer/internal/domain/fragment"
	"github.com/turtacn/cfpminer/internal/infrastructure/database/redis"
	"github.com/turtacn/cfpminer/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/cfpminer/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/cfpminer/internal/infrastructure/storage/badger"
	"github.com/turtacn/cfpminer/internal/infrastructure/storage/file"
	"github.com/turtacn/cfpminer/internal/infrastructure/storage/minio"
	"github.com/turtacn/cfpminer/pkg/errors"
)

// Storage backends.
const (
	BackendFile   = "file"
	BackendMinIO  = "minio"
	BackendRedis  = "redis"
	BackendBadger = "badger"
)

// OpenRepository builds the snapshot repository selected by cfg.Backend.  The
// returned closer releases the backend's connection or handle.
func OpenRepository(ctx context.Context, cfg config.StorageConfig, log logging.Logger) (fragment.SnapshotRepository, io.Closer, error) {
	switch cfg.Backend {
	case BackendFile:
		repo, err := file.NewRepository(cfg.File.Dir, log)
		if err != nil {
			return nil, nil, err
		}
		return repo, nopCloser{}, nil
	case BackendMinIO:
		client, err := minio.NewMinIOClient(ctx, cfg.MinIO, log)
		if err != nil {
			return nil, nil, err
		}
		return minio.NewRepository(client, log), client, nil
	case BackendRedis:
		client, err := redis.NewClient(ctx, cfg.Redis, log)
		if err != nil {
			return nil, nil, err
		}
		return redis.NewRepository(client, log), client, nil
	case BackendBadger:
		repo, err := badger.Open(cfg.Badger, log)
		if err != nil {
			return nil, nil, err
		}
		return repo, repo, nil
	}
	return nil, nil, errors.Configuration("unknown storage backend").WithDetail(cfg.Backend)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// instrumentedRepository times every call and counts failures.
type instrumentedRepository struct {
	next    fragment.SnapshotRepository
	backend string
	metrics *prometheus.MiningMetrics
}

// Instrument wraps repo so that each operation is recorded under backend.  A
// nil metrics set returns repo unchanged.
func Instrument(repo fragment.SnapshotRepository, backend string, metrics *prometheus.MiningMetrics) fragment.SnapshotRepository {
	if metrics == nil {
		return repo
	}
	return &instrumentedRepository{next: repo, backend: backend, metrics: metrics}
}

func (r *instrumentedRepository) observe(op string, start time.Time, err error) {
	prometheus.RecordSnapshotOp(r.metrics, r.backend, op, time.Since(start), err)
}

func (r *instrumentedRepository) Save(ctx context.Context, s *fragment.Snapshot) error {
	start := time.Now()
	err := r.next.Save(ctx, s)
	r.observe("save", start, err)
	return err
}

func (r *instrumentedRepository) Load(ctx context.Context, id string) (*fragment.Snapshot, error) {
	start := time.Now()
	s, err := r.next.Load(ctx, id)
	r.observe("load", start, err)
	return s, err
}

func (r *instrumentedRepository) List(ctx context.Context) ([]string, error) {
	start := time.Now()
	ids, err := r.next.List(ctx)
	r.observe("list", start, err)
	return ids, err
}

func (r *instrumentedRepository) Delete(ctx context.Context, id string) error {
	start := time.Now()
	err := r.next.Delete(ctx, id)
	r.observe("delete", start, err)
	return err
}
