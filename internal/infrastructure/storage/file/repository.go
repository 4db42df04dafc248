// Package file stores index snapshots as JSON documents in a local directory.
package file

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"

	"github.com/turtacn/cfpminer/internal/domain/fragment"
	"github.com/turtacn/cfpminer/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/cfpminer/pkg/errors"
)

const suffix = ".json"

// Repository is a fragment.SnapshotRepository over a directory.
type Repository struct {
	fs     afero.Fs
	dir    string
	logger logging.Logger
}

// Option customises a Repository.
type Option func(*Repository)

// WithFs replaces the OS file system, e.g. with afero.NewMemMapFs() in tests.
func WithFs(fs afero.Fs) Option {
	return func(r *Repository) { r.fs = fs }
}

// NewRepository creates dir if needed.
func NewRepository(dir string, logger logging.Logger, opts ...Option) (*Repository, error) {
	if dir == "" {
		return nil, errors.InvalidParam("snapshot directory is required")
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	r := &Repository{fs: afero.NewOsFs(), dir: dir, logger: logger.Named("snapshot.file")}
	for _, opt := range opts {
		opt(r)
	}
	if err := r.fs.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "cannot create snapshot directory").WithDetail(dir)
	}
	return r, nil
}

func (r *Repository) path(id string) string {
	return filepath.Join(r.dir, id+suffix)
}

// Save writes the snapshot to a temporary file and renames it into place so
// that readers never observe a partial document.
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

	tmp, err := afero.TempFile(r.fs, r.dir, "."+s.ID+".*.tmp")
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "cannot create temporary snapshot file")
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = r.fs.Remove(tmpName)
		return errors.Wrap(err, errors.ErrCodeInternal, "cannot write snapshot")
	}
	if err := tmp.Close(); err != nil {
		_ = r.fs.Remove(tmpName)
		return errors.Wrap(err, errors.ErrCodeInternal, "cannot write snapshot")
	}
	if err := r.fs.Rename(tmpName, r.path(s.ID)); err != nil {
		_ = r.fs.Remove(tmpName)
		return errors.Wrap(err, errors.ErrCodeInternal, "cannot move snapshot into place")
	}

	r.logger.Debug("snapshot saved", logging.String("id", s.ID), logging.Int("bytes", len(data)))
	return nil
}

func (r *Repository) Load(ctx context.Context, id string) (*fragment.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := fragment.ValidateSnapshotID(id); err != nil {
		return nil, err
	}
	data, err := afero.ReadFile(r.fs, r.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New(errors.ErrCodeSnapshotNotFound, "snapshot not found").WithDetail(id)
		}
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "cannot read snapshot")
	}
	return fragment.UnmarshalSnapshot(data)
}

func (r *Repository) List(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	infos, err := afero.ReadDir(r.fs, r.dir)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "cannot list snapshots")
	}
	ids := make([]string, 0, len(infos))
	for _, fi := range infos {
		name := fi.Name()
		if fi.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, suffix) {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, suffix))
	}
	sort.Strings(ids)
	return ids, nil
}

func (r *Repository) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := fragment.ValidateSnapshotID(id); err != nil {
		return err
	}
	if err := r.fs.Remove(r.path(id)); err != nil {
		if os.IsNotExist(err) {
			return errors.New(errors.ErrCodeSnapshotNotFound, "snapshot not found").WithDetail(id)
		}
		return errors.Wrap(err, errors.ErrCodeInternal, "cannot delete snapshot")
	}
	return nil
}
