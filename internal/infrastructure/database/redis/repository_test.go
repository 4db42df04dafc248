package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/turtacn/cfpminer/internal/config"
	"github.com/turtacn/cfpminer/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/cfpminer/internal/testutil"
	"github.com/turtacn/cfpminer/pkg/errors"
)

type RepositoryTestSuite struct {
	suite.Suite
	mr     *miniredis.Miniredis
	client *Client
	repo   *Repository
	ctx    context.Context
}

func (s *RepositoryTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.mr = startMiniredis(s.T())
	client, err := NewClient(s.ctx, config.RedisConfig{Addr: s.mr.Addr(), KeyPrefix: "t:"}, logging.NewNopLogger())
	require.NoError(s.T(), err)
	s.client = client
	s.repo = NewRepository(client, logging.NewNopLogger())
}

func (s *RepositoryTestSuite) TearDownTest() {
	_ = s.client.Close()
}

func (s *RepositoryTestSuite) TestSaveLoad() {
	require.NoError(s.T(), s.repo.Save(s.ctx, testutil.SnapshotFixture("s1")))

	assert.True(s.T(), s.mr.Exists("t:doc:s1"))
	ok, err := s.mr.SIsMember("t:ids", "s1")
	require.NoError(s.T(), err)
	assert.True(s.T(), ok)

	got, err := s.repo.Load(s.ctx, "s1")
	require.NoError(s.T(), err)
	assert.Equal(s.T(), "session-s1", got.SessionID)
	assert.Len(s.T(), got.Fragments, 2)
}

func (s *RepositoryTestSuite) TestLoadMissing() {
	_, err := s.repo.Load(s.ctx, "missing")
	assert.True(s.T(), errors.IsCode(err, errors.ErrCodeSnapshotNotFound))
}

func (s *RepositoryTestSuite) TestListSorted() {
	for _, id := range []string{"c", "a", "b"} {
		require.NoError(s.T(), s.repo.Save(s.ctx, testutil.SnapshotFixture(id)))
	}
	ids, err := s.repo.List(s.ctx)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), []string{"a", "b", "c"}, ids)
}

func (s *RepositoryTestSuite) TestListEmpty() {
	ids, err := s.repo.List(s.ctx)
	require.NoError(s.T(), err)
	assert.Empty(s.T(), ids)
}

func (s *RepositoryTestSuite) TestListPrunesExpired() {
	require.NoError(s.T(), s.repo.Save(s.ctx, testutil.SnapshotFixture("keep")))
	require.NoError(s.T(), s.repo.Save(s.ctx, testutil.SnapshotFixture("gone")))
	s.mr.Del("t:doc:gone")

	ids, err := s.repo.List(s.ctx)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), []string{"keep"}, ids)

	ok, err := s.mr.SIsMember("t:ids", "gone")
	require.NoError(s.T(), err)
	assert.False(s.T(), ok)
}

func (s *RepositoryTestSuite) TestDelete() {
	require.NoError(s.T(), s.repo.Save(s.ctx, testutil.SnapshotFixture("s1")))
	require.NoError(s.T(), s.repo.Delete(s.ctx, "s1"))

	assert.False(s.T(), s.mr.Exists("t:doc:s1"))
	assert.True(s.T(), errors.IsCode(s.repo.Delete(s.ctx, "s1"), errors.ErrCodeSnapshotNotFound))
}

func (s *RepositoryTestSuite) TestCorrupt() {
	require.NoError(s.T(), s.mr.Set("t:doc:bad", "{"))
	_, err := s.repo.Load(s.ctx, "bad")
	assert.True(s.T(), errors.IsCode(err, errors.ErrCodeSnapshotCorrupt))
}

func (s *RepositoryTestSuite) TestClosedClient() {
	require.NoError(s.T(), s.client.Close())
	assert.ErrorIs(s.T(), s.repo.Save(s.ctx, testutil.SnapshotFixture("s1")), ErrClientClosed)
	_, err := s.repo.List(s.ctx)
	assert.ErrorIs(s.T(), err, ErrClientClosed)
}

func TestRepositorySuite(t *testing.T) {
	suite.Run(t, new(RepositoryTestSuite))
}

func TestRepository_TTL(t *testing.T) {
	mr := startMiniredis(t)
	client, err := NewClient(context.Background(), config.RedisConfig{Addr: mr.Addr(), KeyPrefix: "t:", TTL: time.Hour}, nil)
	require.NoError(t, err)
	defer client.Close()
	repo := NewRepository(client, nil)

	require.NoError(t, repo.Save(context.Background(), testutil.SnapshotFixture("s1")))
	assert.Equal(t, time.Hour, mr.TTL("t:doc:s1"))

	mr.FastForward(2 * time.Hour)
	ids, err := repo.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestRepository_BackendErrors(t *testing.T) {
	db, mock := redismock.NewClientMock()
	client := newClient(db, config.RedisConfig{KeyPrefix: "t:"}, logging.NewNopLogger())
	repo := NewRepository(client, nil)
	ctx := context.Background()

	mock.ExpectGet("t:doc:s1").SetErr(fmt.Errorf("READONLY"))
	_, err := repo.Load(ctx, "s1")
	assert.True(t, errors.IsCode(err, errors.ErrCodeDatabaseError))

	mock.ExpectSMembers("t:ids").SetErr(fmt.Errorf("LOADING"))
	_, err = repo.List(ctx)
	assert.True(t, errors.IsCode(err, errors.ErrCodeDatabaseError))

	assert.NoError(t, mock.ExpectationsWereMet())
}
