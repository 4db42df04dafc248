package redis

import (
	"context"
	"sort"

	"github.com/redis/go-redis/v9"

	"github.com/turtacn/cfpminer/internal/domain/fragment"
	"github.com/turtacn/cfpminer/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/cfpminer/pkg/errors"
)

// idsKey names the set holding every stored snapshot ID.
const idsKey = "ids"

// Repository is a fragment.SnapshotRepository.  Each snapshot is one string
// key <prefix><id>; the IDs are tracked in the set <prefix>ids.
type Repository struct {
	client *Client
	logger logging.Logger
}

func NewRepository(client *Client, log logging.Logger) *Repository {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &Repository{client: client, logger: log.Named("snapshot.redis")}
}

func (r *Repository) key(id string) string { return r.client.KeyPrefix() + "doc:" + id }
func (r *Repository) ids() string         { return r.client.KeyPrefix() + idsKey }

func notFound(id string) error {
	return errors.New(errors.ErrCodeSnapshotNotFound, "snapshot not found").WithDetail(id)
}

func (r *Repository) Save(ctx context.Context, s *fragment.Snapshot) error {
	if err := fragment.ValidateSnapshotID(s.ID); err != nil {
		return err
	}
	data, err := fragment.MarshalSnapshot(s)
	if err != nil {
		return err
	}
	_, err = r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, r.key(s.ID), data, r.client.TTL())
		p.SAdd(ctx, r.ids(), s.ID)
		return nil
	})
	if err != nil {
		if err == ErrClientClosed {
			return err
		}
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to store snapshot").WithDetail(s.ID)
	}
	r.logger.Debug("snapshot stored", logging.String("id", s.ID), logging.Int("bytes", len(data)))
	return nil
}

func (r *Repository) Load(ctx context.Context, id string) (*fragment.Snapshot, error) {
	if err := fragment.ValidateSnapshotID(id); err != nil {
		return nil, err
	}
	data, err := r.client.Get(ctx, r.key(id)).Bytes()
	if err == redis.Nil {
		return nil, notFound(id)
	}
	if err != nil {
		if err == ErrClientClosed {
			return nil, err
		}
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to read snapshot").WithDetail(id)
	}
	return fragment.UnmarshalSnapshot(data)
}

// List returns the IDs whose document still exists.  IDs whose document has
// expired are removed from the set.
func (r *Repository) List(ctx context.Context) ([]string, error) {
	members, err := r.client.SMembers(ctx, r.ids()).Result()
	if err != nil {
		if err == ErrClientClosed {
			return nil, err
		}
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to list snapshots")
	}
	if len(members) == 0 {
		return []string{}, nil
	}
	sort.Strings(members)

	exists := make([]*redis.IntCmd, len(members))
	if _, err := r.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		for i, id := range members {
			exists[i] = p.Exists(ctx, r.key(id))
		}
		return nil
	}); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to list snapshots")
	}

	ids := make([]string, 0, len(members))
	var stale []interface{}
	for i, id := range members {
		if exists[i].Val() > 0 {
			ids = append(ids, id)
		} else {
			stale = append(stale, id)
		}
	}
	if len(stale) > 0 {
		if err := r.client.SRem(ctx, r.ids(), stale...).Err(); err != nil {
			r.logger.Warn("failed to prune expired snapshot ids", logging.Err(err))
		}
	}
	return ids, nil
}

func (r *Repository) Delete(ctx context.Context, id string) error {
	if err := fragment.ValidateSnapshotID(id); err != nil {
		return err
	}
	var del *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		del = p.Del(ctx, r.key(id))
		p.SRem(ctx, r.ids(), id)
		return nil
	})
	if err != nil {
		if err == ErrClientClosed {
			return err
		}
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to delete snapshot").WithDetail(id)
	}
	if del.Val() == 0 {
		return notFound(id)
	}
	return nil
}
