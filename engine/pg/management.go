package pg

import (
	"bufio"
	"bytes"
	"context"
	"embed"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Tables of a pg engine.
var Tables = []string{
	"process_instance",
	"process_instance_archive",
	"user_task",
	"user_task_archive",
}

//go:embed ddl migration
var resources embed.FS

// migrateDatabase creates the tables and indices, if the schema has no version yet.
// The schema version is stored as comment on table process_instance.
func (s *pgStore) migrateDatabase(databaseSchema string) error {
	b, err := resources.ReadFile("migration/version.txt")
	if err != nil {
		return fmt.Errorf("failed to read resource migration/version.txt: %v", err)
	}

	var versions []string

	scanner := bufio.NewScanner(bytes.NewReader(b))
	for scanner.Scan() {
		versions = append(versions, scanner.Text())
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	tx, err := s.pgPool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %v", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	schemaVersion, err := selectSchemaVersion(ctx, tx, databaseSchema)
	if err != nil {
		return err
	}

	if schemaVersion != "" {
		return nil
	}

	ddl, err := resources.ReadDir("ddl")
	if err != nil {
		return fmt.Errorf("failed to list resources under ddl: %v", err)
	}

	for _, entry := range ddl {
		if entry.IsDir() {
			continue
		}

		name := "ddl/" + entry.Name()
		b, err := resources.ReadFile(name)
		if err != nil {
			return fmt.Errorf("failed to read resource %s: %v", name, err)
		}

		createTable := string(b)
		if _, err := tx.Exec(ctx, createTable); err != nil {
			return fmt.Errorf("failed to execute %s: %v", name, err)
		}
	}

	idx, err := resources.ReadDir("ddl/idx")
	if err != nil {
		return fmt.Errorf("failed to list resources under ddl/idx: %v", err)
	}

	for _, entry := range idx {
		name := "ddl/idx/" + entry.Name()
		b, err := resources.ReadFile(name)
		if err != nil {
			return fmt.Errorf("failed to read resource %s: %v", name, err)
		}

		scanner := bufio.NewScanner(bytes.NewReader(b))
		for scanner.Scan() {
			createIndex := scanner.Text()
			if _, err := tx.Exec(ctx, createIndex); err != nil {
				return fmt.Errorf("failed to execute %s: %v", name, err)
			}
		}
	}

	commentOnTable := fmt.Sprintf("COMMENT ON TABLE process_instance IS '%s'", versions[len(versions)-1])
	if _, err := tx.Exec(ctx, commentOnTable); err != nil {
		return fmt.Errorf("failed to set schema version: %v", err)
	}

	return tx.Commit(ctx)
}

func selectSchemaVersion(ctx context.Context, tx pgx.Tx, databaseSchema string) (string, error) {
	row := tx.QueryRow(ctx, `
SELECT
	description
FROM
	pg_description
INNER JOIN
	pg_class
ON
	pg_description.objoid = pg_class.oid
INNER JOIN
	pg_namespace
ON
	pg_class.relnamespace = pg_namespace.oid
WHERE
	nspname = $1 AND
	relname = $2
`, databaseSchema, "process_instance")

	var schemaVersion string
	if err := row.Scan(&schemaVersion); err != nil {
		if err != pgx.ErrNoRows {
			return "", fmt.Errorf("failed to select schema version: %v", err)
		}
	}

	return schemaVersion, nil
}
