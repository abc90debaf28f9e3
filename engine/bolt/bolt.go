package bolt

import (
	"errors"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/gclaussn/go-procengine/engine"
	"github.com/gclaussn/go-procengine/engine/internal"
	"go.etcd.io/bbolt"
)

// bucket names
var (
	bucketProcessInstances        = []byte("process_instances")
	bucketProcessInstancesArchive = []byte("process_instances_archive")
	bucketUserTasks               = []byte("user_tasks")
	bucketUserTasksArchive        = []byte("user_tasks_archive")
)

func New(path string, customizers ...func(*Options)) (engine.Engine, error) {
	if path == "" {
		return nil, errors.New("path is empty")
	}

	options := NewOptions()
	for _, customizer := range customizers {
		customizer(&options)
	}

	if err := options.Validate(); err != nil {
		return nil, err
	}

	store, err := openBoltStore(path, options.Timeout)
	if err != nil {
		return nil, err
	}

	e, err := internal.NewRuntime(options.Common, store)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	return e, nil
}

func NewOptions() Options {
	return Options{
		Common:  engine.NewOptions(),
		Timeout: 5 * time.Second,
	}
}

type Options struct {
	Common engine.Options // Common engine options.

	Timeout time.Duration // Time limit for obtaining the file lock of the database.
}

func (o Options) Validate() error {
	if o.Timeout <= 0 {
		return errors.New("timeout must be positive")
	}
	return o.Common.Validate()
}

func openBoltStore(path string, timeout time.Duration) (*boltStore, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %v", path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{
			bucketProcessInstances,
			bucketProcessInstancesArchive,
			bucketUserTasks,
			bucketUserTasksArchive,
		} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("failed to create bucket %s: %v", name, err)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	encMode, err := cbor.EncOptions{Time: cbor.TimeRFC3339Nano}.EncMode()
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create CBOR encoding mode: %v", err)
	}

	return &boltStore{
		db: db,

		processInstances: &snapshotRepository{
			db:            db,
			encMode:       encMode,
			kind:          "process instance",
			bucket:        bucketProcessInstances,
			archiveBucket: bucketProcessInstancesArchive,
		},
		userTasks: &snapshotRepository{
			db:            db,
			encMode:       encMode,
			kind:          "user task",
			bucket:        bucketUserTasks,
			archiveBucket: bucketUserTasksArchive,
		},
	}, nil
}

// boltStore stores snapshots in a single bbolt file. Each repository uses a bucket for active and a bucket for archived snapshots.
type boltStore struct {
	db *bbolt.DB

	processInstances *snapshotRepository
	userTasks        *snapshotRepository
}

func (s *boltStore) ProcessInstances() internal.SnapshotRepository {
	return s.processInstances
}

func (s *boltStore) UserTasks() internal.SnapshotRepository {
	return s.userTasks
}

func (s *boltStore) Close() error {
	return s.db.Close()
}
