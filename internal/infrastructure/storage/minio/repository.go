package minio

import (
	"bytes"
	"context"
	"sort"
	"strings"

	"github.com/minio/minio-go/v7"

	"github.com/turtacn/cfpminer/internal/domain/fragment"
	"github.com/turtacn/cfpminer/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/cfpminer/pkg/errors"
)

const (
	objectSuffix = ".json"
	contentType  = "application/json"
)

// Repository is a fragment.SnapshotRepository over one bucket.
type Repository struct {
	client *MinIOClient
	logger logging.Logger
}

func NewRepository(client *MinIOClient, log logging.Logger) *Repository {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &Repository{client: client, logger: log.Named("snapshot.minio")}
}

func (r *Repository) key(id string) string {
	return r.client.Prefix() + id + objectSuffix
}

func isNoSuchKey(err error) bool {
	return minio.ToErrorResponse(err).Code == "NoSuchKey"
}

func notFound(id string) error {
	return errors.New(errors.ErrCodeSnapshotNotFound, "snapshot not found").WithDetail(id)
}

func (r *Repository) Save(ctx context.Context, s *fragment.Snapshot) error {
	if err := fragment.ValidateSnapshotID(s.ID); err != nil {
		return err
	}
	api, err := r.client.API()
	if err != nil {
		return err
	}
	data, err := fragment.MarshalSnapshot(s)
	if err != nil {
		return err
	}

	opts := minio.PutObjectOptions{
		ContentType: contentType,
		UserMetadata: map[string]string{
			"session-id":    s.SessionID,
			"fragment-type": string(s.Type),
			"selection":     string(s.Selection),
		},
	}
	info, err := api.PutObject(ctx, r.client.Bucket(), r.key(s.ID), bytes.NewReader(data), int64(len(data)), opts)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeExternalService, "snapshot upload failed").WithDetail(s.ID)
	}
	r.logger.Debug("snapshot uploaded", logging.String("id", s.ID), logging.String("etag", info.ETag), logging.Int64("size", info.Size))
	return nil
}

func (r *Repository) Load(ctx context.Context, id string) (*fragment.Snapshot, error) {
	if err := fragment.ValidateSnapshotID(id); err != nil {
		return nil, err
	}
	api, err := r.client.API()
	if err != nil {
		return nil, err
	}
	data, err := api.ReadObject(ctx, r.client.Bucket(), r.key(id))
	if err != nil {
		if isNoSuchKey(err) {
			return nil, notFound(id)
		}
		return nil, errors.Wrap(err, errors.ErrCodeExternalService, "snapshot download failed").WithDetail(id)
	}
	return fragment.UnmarshalSnapshot(data)
}

func (r *Repository) List(ctx context.Context) ([]string, error) {
	api, err := r.client.API()
	if err != nil {
		return nil, err
	}
	prefix := r.client.Prefix()
	var ids []string
	for obj := range api.ListObjects(ctx, r.client.Bucket(), minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, errors.Wrap(obj.Err, errors.ErrCodeExternalService, "snapshot listing failed")
		}
		name := strings.TrimPrefix(obj.Key, prefix)
		if !strings.HasSuffix(name, objectSuffix) || strings.Contains(name, "/") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, objectSuffix))
	}
	sort.Strings(ids)
	return ids, nil
}

// Delete stats the object first; RemoveObject succeeds silently on missing keys.
func (r *Repository) Delete(ctx context.Context, id string) error {
	if err := fragment.ValidateSnapshotID(id); err != nil {
		return err
	}
	api, err := r.client.API()
	if err != nil {
		return err
	}
	if _, err := api.StatObject(ctx, r.client.Bucket(), r.key(id), minio.StatObjectOptions{}); err != nil {
		if isNoSuchKey(err) {
			return notFound(id)
		}
		return errors.Wrap(err, errors.ErrCodeExternalService, "snapshot stat failed").WithDetail(id)
	}
	if err := api.RemoveObject(ctx, r.client.Bucket(), r.key(id), minio.RemoveObjectOptions{}); err != nil {
		return errors.Wrap(err, errors.ErrCodeExternalService, "snapshot delete failed").WithDetail(id)
	}
	return nil
}
