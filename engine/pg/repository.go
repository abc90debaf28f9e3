package pg

import (
	"context"
	"fmt"
	"time"

	"github.com/gclaussn/go-procengine/engine/internal"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const snapshotColumns = `
	id,

	parent_id,
	process_id,
	state,
	revision,

	created_at,
	updated_at,

	data
`

type snapshotRepository struct {
	pgPool  *pgxpool.Pool
	timeout time.Duration
	kind    string

	table        string
	archiveTable string
}

func (r *snapshotRepository) Create(snapshot *internal.Snapshot) error {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	tag, err := r.pgPool.Exec(ctx, fmt.Sprintf(`
INSERT INTO %s (%s) VALUES (
	$1,

	$2,
	$3,
	$4,
	1,

	$5,
	$6,

	$7
) ON CONFLICT (id) DO NOTHING
`, r.table, snapshotColumns),
		snapshot.Id,

		snapshot.ParentId,
		snapshot.ProcessId,
		snapshot.State,

		snapshot.CreatedAt,
		snapshot.UpdatedAt,

		snapshot.Data,
	)
	if err != nil {
		return fmt.Errorf("failed to insert %s %s: %v", r.kind, snapshot.Id, err)
	}
	if tag.RowsAffected() == 0 {
		return internal.NewConflictError("failed to create "+r.kind, snapshot)
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

	tx, err := r.pgPool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %v", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = $1 AND revision = $2", r.table), snapshot.Id, snapshot.Revision)
	if err != nil {
		return fmt.Errorf("failed to delete %s %s: %v", r.kind, snapshot.Id, err)
	}
	if tag.RowsAffected() == 0 {
		return internal.NewConflictError("failed to remove "+r.kind, snapshot)
	}

	_, err = tx.Exec(ctx, fmt.Sprintf(`
INSERT INTO %s (%s) VALUES (
	$1,

	$2,
	$3,
	$4,
	$5,

	$6,
	$7,

	$8
)
`, r.archiveTable, snapshotColumns),
		snapshot.Id,

		snapshot.ParentId,
		snapshot.ProcessId,
		snapshot.State,
		snapshot.Revision+1,

		snapshot.CreatedAt,
		snapshot.UpdatedAt,

		snapshot.Data,
	)
	if err != nil {
		return fmt.Errorf("failed to archive %s %s: %v", r.kind, snapshot.Id, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %v", err)
	}

	snapshot.Revision++
	return nil
}

func (r *snapshotRepository) Update(snapshot *internal.Snapshot) error {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	tag, err := r.pgPool.Exec(ctx, fmt.Sprintf(`
UPDATE %s SET
	parent_id = $3,
	process_id = $4,
	state = $5,
	revision = revision + 1,
	updated_at = $6,
	data = $7
WHERE
	id = $1 AND revision = $2
`, r.table),
		snapshot.Id,
		snapshot.Revision,

		snapshot.ParentId,
		snapshot.ProcessId,
		snapshot.State,
		snapshot.UpdatedAt,
		snapshot.Data,
	)
	if err != nil {
		return fmt.Errorf("failed to update %s %s: %v", r.kind, snapshot.Id, err)
	}
	if tag.RowsAffected() == 0 {
		return internal.NewConflictError("failed to update "+r.kind, snapshot)
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

	row := r.pgPool.QueryRow(ctx, fmt.Sprintf("SELECT %s FROM %s WHERE id = $1", snapshotColumns, table), id)

	snapshot, err := scanSnapshot(row)
	if err == pgx.ErrNoRows {
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

	rows, err := r.pgPool.Query(ctx, fmt.Sprintf("SELECT %s FROM %s ORDER BY id", snapshotColumns, table))
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

func scanSnapshot(row pgx.Row) (*internal.Snapshot, error) {
	var snapshot internal.Snapshot

	err := row.Scan(
		&snapshot.Id,

		&snapshot.ParentId,
		&snapshot.ProcessId,
		&snapshot.State,
		&snapshot.Revision,

		&snapshot.CreatedAt,
		&snapshot.UpdatedAt,

		&snapshot.Data,
	)
	if err != nil {
		return nil, err
	}

	snapshot.CreatedAt = snapshot.CreatedAt.UTC()
	snapshot.UpdatedAt = snapshot.UpdatedAt.UTC()
	return &snapshot, nil
}
