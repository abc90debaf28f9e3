package internal

import (
	"fmt"
	"time"

	"github.com/gclaussn/go-procengine/engine"
)

// Snapshot is the durable form of a process instance or an user task.
//
// Data is written and read by the marshaller. All other fields are stored in dedicated columns to allow lookups without unmarshalling.
type Snapshot struct {
	Id        string
	ParentId  string // process instance: parent process instance ID, user task: owning process instance ID
	ProcessId string
	State     string
	Revision  int // incremented by each update, used for an optimistic concurrency control

	CreatedAt time.Time
	UpdatedAt time.Time

	Data []byte
}

func (s Snapshot) String() string {
	return fmt.Sprintf("%s@%d", s.Id, s.Revision)
}

// SnapshotRepository stores snapshots of active instances and archives snapshots of ended instances.
//
// Implementations must guarantee read-your-writes consistency per ID.
type SnapshotRepository interface {
	// Create stores a new snapshot. If a snapshot with the same ID exists, an error of type [engine.ErrorConflict] is returned.
	Create(*Snapshot) error
	// FindById returns nil, if no active snapshot with the given ID exists.
	FindById(id string) (*Snapshot, error)
	// Remove deletes an active snapshot and archives it with its latest data.
	Remove(*Snapshot) error
	// Update replaces an active snapshot. Snapshot.Revision must match the stored revision and is incremented on success.
	Update(*Snapshot) error
	// Values returns all active snapshots.
	Values() ([]*Snapshot, error)

	// FindArchivedById returns nil, if no archived snapshot with the given ID exists.
	FindArchivedById(id string) (*Snapshot, error)
	// ArchivedValues returns all archived snapshots.
	ArchivedValues() ([]*Snapshot, error)
}

// Store provides the repositories of an engine implementation.
type Store interface {
	ProcessInstances() SnapshotRepository
	UserTasks() SnapshotRepository

	// Close releases the resources of the store, when the engine is shut down.
	Close() error
}

// NewConflictError returns an error, indicating a failed revision check or a duplicate ID.
func NewConflictError(title string, snapshot *Snapshot) error {
	return engine.Error{
		Type:   engine.ErrorConflict,
		Title:  title,
		Detail: fmt.Sprintf("snapshot %s has been modified concurrently or already exists", snapshot),
	}
}

func persistenceError(title string, err error) error {
	if _, ok := err.(engine.Error); ok {
		return err
	}
	return engine.Error{
		Type:   engine.ErrorPersistence,
		Title:  title,
		Detail: err.Error(),
	}
}
