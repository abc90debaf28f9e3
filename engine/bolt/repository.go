package bolt

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/gclaussn/go-procengine/engine/internal"
	"go.etcd.io/bbolt"
)

type snapshotRepository struct {
	db      *bbolt.DB
	encMode cbor.EncMode
	kind    string

	bucket        []byte
	archiveBucket []byte
}

func (r *snapshotRepository) Create(snapshot *internal.Snapshot) error {
	return r.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(r.bucket)
		if b.Get([]byte(snapshot.Id)) != nil {
			return internal.NewConflictError("failed to create "+r.kind, snapshot)
		}

		s := *snapshot
		s.Revision = 1
		if err := r.put(b, &s); err != nil {
			return err
		}

		snapshot.Revision = s.Revision
		return nil
	})
}

func (r *snapshotRepository) FindById(id string) (*internal.Snapshot, error) {
	return r.find(r.bucket, id)
}

func (r *snapshotRepository) Remove(snapshot *internal.Snapshot) error {
	return r.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(r.bucket)
		if err := r.checkRevision(b, snapshot, "failed to remove "+r.kind); err != nil {
			return err
		}

		if err := b.Delete([]byte(snapshot.Id)); err != nil {
			return fmt.Errorf("failed to delete %s %s: %v", r.kind, snapshot.Id, err)
		}

		s := *snapshot
		s.Revision++
		if err := r.put(tx.Bucket(r.archiveBucket), &s); err != nil {
			return err
		}

		snapshot.Revision = s.Revision
		return nil
	})
}

func (r *snapshotRepository) Update(snapshot *internal.Snapshot) error {
	return r.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(r.bucket)
		if err := r.checkRevision(b, snapshot, "failed to update "+r.kind); err != nil {
			return err
		}

		s := *snapshot
		s.Revision++
		if err := r.put(b, &s); err != nil {
			return err
		}

		snapshot.Revision = s.Revision
		return nil
	})
}

func (r *snapshotRepository) Values() ([]*internal.Snapshot, error) {
	return r.values(r.bucket)
}

func (r *snapshotRepository) FindArchivedById(id string) (*internal.Snapshot, error) {
	return r.find(r.archiveBucket, id)
}

func (r *snapshotRepository) ArchivedValues() ([]*internal.Snapshot, error) {
	return r.values(r.archiveBucket)
}

func (r *snapshotRepository) checkRevision(b *bbolt.Bucket, snapshot *internal.Snapshot, title string) error {
	v := b.Get([]byte(snapshot.Id))
	if v == nil {
		return internal.NewConflictError(title, snapshot)
	}

	var stored internal.Snapshot
	if err := cbor.Unmarshal(v, &stored); err != nil {
		return fmt.Errorf("failed to decode %s %s: %v", r.kind, snapshot.Id, err)
	}
	if stored.Revision != snapshot.Revision {
		return internal.NewConflictError(title, snapshot)
	}
	return nil
}

func (r *snapshotRepository) find(bucket []byte, id string) (*internal.Snapshot, error) {
	var snapshot *internal.Snapshot
	err := r.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucket).Get([]byte(id))
		if v == nil {
			return nil
		}

		var s internal.Snapshot
		if err := cbor.Unmarshal(v, &s); err != nil {
			return fmt.Errorf("failed to decode %s %s: %v", r.kind, id, err)
		}
		snapshot = &s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snapshot, nil
}

func (r *snapshotRepository) put(b *bbolt.Bucket, snapshot *internal.Snapshot) error {
	v, err := r.encMode.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to encode %s %s: %v", r.kind, snapshot.Id, err)
	}
	if err := b.Put([]byte(snapshot.Id), v); err != nil {
		return fmt.Errorf("failed to put %s %s: %v", r.kind, snapshot.Id, err)
	}
	return nil
}

// values returns all snapshots of a bucket, ordered by ID.
func (r *snapshotRepository) values(bucket []byte) ([]*internal.Snapshot, error) {
	var snapshots []*internal.Snapshot
	err := r.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucket).ForEach(func(k []byte, v []byte) error {
			var s internal.Snapshot
			if err := cbor.Unmarshal(v, &s); err != nil {
				return fmt.Errorf("failed to decode %s %s: %v", r.kind, k, err)
			}
			snapshots = append(snapshots, &s)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return snapshots, nil
}
