// Package storetest provides a contract test suite for [internal.Store] implementations.
package storetest

import (
	"fmt"
	"time"

	"github.com/gclaussn/go-procengine/engine"
	"github.com/gclaussn/go-procengine/engine/internal"
	"github.com/stretchr/testify/suite"
)

// StoreSuite verifies that both repositories of a store behave like an [internal.SnapshotRepository].
//
// Usage:
//
//	func TestStore(t *testing.T) {
//		suite.Run(t, &storetest.StoreSuite{NewStore: func() (internal.Store, error) { ... }})
//	}
type StoreSuite struct {
	suite.Suite

	// NewStore creates an empty store for each test.
	NewStore func() (internal.Store, error)

	store internal.Store
	now   time.Time
}

func (s *StoreSuite) SetupTest() {
	store, err := s.NewStore()
	s.Require().NoError(err, "failed to create store")

	s.store = store
	s.now = time.Now().UTC().Truncate(time.Millisecond)
}

func (s *StoreSuite) TearDownTest() {
	s.Require().NoError(s.store.Close(), "failed to close store")
}

func (s *StoreSuite) repositories() map[string]internal.SnapshotRepository {
	return map[string]internal.SnapshotRepository{
		"processInstances": s.store.ProcessInstances(),
		"userTasks":        s.store.UserTasks(),
	}
}

func (s *StoreSuite) newSnapshot(id string) *internal.Snapshot {
	return &internal.Snapshot{
		Id:        id,
		ParentId:  "parent",
		ProcessId: "order",
		State:     "ACTIVE",
		CreatedAt: s.now,
		UpdatedAt: s.now,
		Data:      []byte{1, 2, 3},
	}
}

func (s *StoreSuite) requireEqualSnapshot(expected *internal.Snapshot, actual *internal.Snapshot) {
	require := s.Require()

	require.NotNil(actual)
	require.Equal(expected.Id, actual.Id)
	require.Equal(expected.ParentId, actual.ParentId)
	require.Equal(expected.ProcessId, actual.ProcessId)
	require.Equal(expected.State, actual.State)
	require.Equal(expected.Revision, actual.Revision)
	require.True(expected.CreatedAt.Equal(actual.CreatedAt), "created at: expected %s, but got %s", expected.CreatedAt, actual.CreatedAt)
	require.True(expected.UpdatedAt.Equal(actual.UpdatedAt), "updated at: expected %s, but got %s", expected.UpdatedAt, actual.UpdatedAt)
	require.Equal(expected.Data, actual.Data)
}

func (s *StoreSuite) requireConflict(err error) {
	s.Require().IsType(engine.Error{}, err)
	s.Require().Equal(engine.ErrorConflict, err.(engine.Error).Type)
}

func (s *StoreSuite) TestCreate() {
	for name, repository := range s.repositories() {
		s.Run(name, func() {
			require := s.Require()

			// given
			snapshot := s.newSnapshot("create")

			// when
			err := repository.Create(snapshot)

			// then
			require.NoError(err)
			require.Equal(1, snapshot.Revision)

			found, err := repository.FindById("create")
			require.NoError(err)
			s.requireEqualSnapshot(snapshot, found)

			s.requireConflict(repository.Create(s.newSnapshot("create")))
		})
	}
}

func (s *StoreSuite) TestFindById() {
	for name, repository := range s.repositories() {
		s.Run(name, func() {
			snapshot, err := repository.FindById("unknown")
			s.Require().NoError(err)
			s.Require().Nil(snapshot)

			archived, err := repository.FindArchivedById("unknown")
			s.Require().NoError(err)
			s.Require().Nil(archived)
		})
	}
}

func (s *StoreSuite) TestUpdate() {
	for name, repository := range s.repositories() {
		s.Run(name, func() {
			require := s.Require()

			// given
			snapshot := s.newSnapshot("update")
			require.NoError(repository.Create(snapshot))

			stale := *snapshot

			snapshot.State = "SUSPENDED"
			snapshot.UpdatedAt = s.now.Add(time.Second)
			snapshot.Data = []byte{4, 5}

			// when
			err := repository.Update(snapshot)

			// then
			require.NoError(err)
			require.Equal(2, snapshot.Revision)

			found, err := repository.FindById("update")
			require.NoError(err)
			s.requireEqualSnapshot(snapshot, found)

			s.requireConflict(repository.Update(&stale))

			unknown := s.newSnapshot("unknown")
			unknown.Revision = 1
			s.requireConflict(repository.Update(unknown))
		})
	}
}

func (s *StoreSuite) TestRemove() {
	for name, repository := range s.repositories() {
		s.Run(name, func() {
			require := s.Require()

			// given
			snapshot := s.newSnapshot("remove")
			require.NoError(repository.Create(snapshot))

			stale := *snapshot
			stale.Revision = 0

			s.requireConflict(repository.Remove(&stale))

			snapshot.State = "COMPLETED"
			snapshot.Data = []byte{6}

			// when
			err := repository.Remove(snapshot)

			// then
			require.NoError(err)
			require.Equal(2, snapshot.Revision)

			found, err := repository.FindById("remove")
			require.NoError(err)
			require.Nil(found)

			archived, err := repository.FindArchivedById("remove")
			require.NoError(err)
			s.requireEqualSnapshot(snapshot, archived)

			archivedValues, err := repository.ArchivedValues()
			require.NoError(err)
			require.Len(archivedValues, 1)

			s.requireConflict(repository.Remove(snapshot))
		})
	}
}

func (s *StoreSuite) TestValues() {
	for name, repository := range s.repositories() {
		s.Run(name, func() {
			require := s.Require()

			// given
			for i := range 3 {
				require.NoError(repository.Create(s.newSnapshot(fmt.Sprintf("values-%d", i))))
			}

			removed := s.newSnapshot("values-removed")
			require.NoError(repository.Create(removed))
			require.NoError(repository.Remove(removed))

			// when
			values, err := repository.Values()

			// then
			require.NoError(err)
			require.Len(values, 3)

			ids := make(map[string]bool, len(values))
			for _, value := range values {
				ids[value.Id] = true
			}
			require.True(ids["values-0"])
			require.True(ids["values-1"])
			require.True(ids["values-2"])
		})
	}
}
