package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/gclaussn/go-procengine/engine/internal"
)

const snapshotColumns = "id, parent_id, process_id, state, revision, created_at, updated_at, data"

type snapshotRepository struct {
	db      *sql.DB
	timeout time.Duration
	kind    string

	table        string
	archiveTable string
}

func (r *snapshotRepository) Create(snapshot *internal.Snapshot) error {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, fmt.Sprintf(`
INSERT INTO %s (%s) VALUES (?, ?, ?, ?, 1, ?, ?, ?)
ON CONFLICT (id) DO NOTHING
`, r.table, snapshotColumns),
		snapshot.Id,
		snapshot.ParentId,
		snapshot.ProcessId,
		snapshot.State,
		snapshot.CreatedAt.UnixMilli(),
		snapshot.UpdatedAt.UnixMilli(),
		snapshot.Data,
	)
	if err != nil {
		return fmt.Errorf("failed to insert %s %s: %v", r.kind, snapshot.Id, err)
	}

	if err := requireAffected(res); err != nil {
		if errors.Is(err, errNotAffected) {
			return internal.NewConflictError("failed to create "+r.kind, snapshot)
		}
		return err
	}

	snapshot.Revision = 1
	return nil
}

func (r *snapshotRepository) FindById(id string) (*internal.Snapshot, error) {
	return r.find(r.table, id)
}

func (r *snapshotRepository) Remove(snapshot *internal.Snapshot) error {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %v", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = ? AND revision = ?", r.table), snapshot.Id, snapshot.Revision)
	if err != nil {
		return fmt.Errorf("failed to delete %s %s: %v", r.kind, snapshot.Id, err)
	}
	if err := requireAffected(res); err != nil {
		if errors.Is(err, errNotAffected) {
			return internal.NewConflictError("failed to remove "+r.kind, snapshot)
		}
		return err
	}

	_, err = tx.ExecContext(ctx, fmt.Sprintf("INSERT INTO %s (%s) VALUES (?, ?, ?, ?, ?, ?, ?, ?)", r.archiveTable, snapshotColumns),
		snapshot.Id,
		snapshot.ParentId,
		snapshot.ProcessId,
		snapshot.State,
		snapshot.Revision+1,
		snapshot.CreatedAt.UnixMilli(),
		snapshot.UpdatedAt.UnixMilli(),
		snapshot.Data,
	)
	if err != nil {
		return fmt.Errorf("failed to archive %s %s: %v", r.kind, snapshot.Id, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %v", err)
	}

	snapshot.Revision++
	return nil
}

func (r *snapshotRepository) Update(snapshot *internal.Snapshot) error {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, fmt.Sprintf(`
UPDATE %s SET
	parent_id = ?,
	process_id = ?,
	state = ?,
	revision = revision + 1,
	updated_at = ?,
	data = ?
WHERE
	id = ? AND revision = ?
`, r.table),
		snapshot.ParentId,
		snapshot.ProcessId,
		snapshot.State,
		snapshot.UpdatedAt.UnixMilli(),
		snapshot.Data,
		snapshot.Id,
		snapshot.Revision,
	)
	if err != nil {
		return fmt.Errorf("failed to update %s %s: %v", r.kind, snapshot.Id, err)
	}

	if err := requireAffected(res); err != nil {
		if errors.Is(err, errNotAffected) {
			return internal.NewConflictError("failed to update "+r.kind, snapshot)
		}
		return err
	}

	snapshot.Revision++
	return nil
}

func (r *snapshotRepository) Values() ([]*internal.Snapshot, error) {
	return r.values(r.table)
}

func (r *snapshotRepository) FindArchivedById(id string) (*internal.Snapshot, error) {
	return r.find(r.archiveTable, id)
}

func (r *snapshotRepository) ArchivedValues() ([]*internal.Snapshot, error) {
	return r.values(r.archiveTable)
}

func (r *snapshotRepository) find(table string, id string) (*internal.Snapshot, error) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	row := r.db.QueryRowContext(ctx, fmt.Sprintf("SELECT %s FROM %s WHERE id = ?", snapshotColumns, table), id)

	snapshot, err := scanSnapshot(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select %s %s: %v", r.kind, id, err)
	}
	return snapshot, nil
}

func (r *snapshotRepository) values(table string) ([]*internal.Snapshot, error) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, fmt.Sprintf("SELECT %s FROM %s ORDER BY id", snapshotColumns, table))
	if err != nil {
		return nil, fmt.Errorf("failed to select %s snapshots: %v", r.kind, err)
	}
	defer rows.Close()

	var snapshots []*internal.Snapshot
	for rows.Next() {
		snapshot, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s snapshot: %v", r.kind, err)
		}
		snapshots = append(snapshots, snapshot)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to select %s snapshots: %v", r.kind, err)
	}
	return snapshots, nil
}

var errNotAffected = errors.New("no row affected")

func requireAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %v", err)
	}
	if affected == 0 {
		return errNotAffected
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(row scanner) (*internal.Snapshot, error) {
	var (
		snapshot  internal.Snapshot
		createdAt int64
		updatedAt int64
	)

	err := row.Scan(
		&snapshot.Id,
		&snapshot.ParentId,
		&snapshot.ProcessId,
		&snapshot.State,
		&snapshot.Revision,
		&createdAt,
		&updatedAt,
		&snapshot.Data,
	)
	if err != nil {
		return nil, err
	}

	snapshot.CreatedAt = time.UnixMilli(createdAt).UTC()
	snapshot.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return &snapshot, nil
}
