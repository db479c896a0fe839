package store

// generation.go implements replace-on-import semantics. An import never
// mutates the live records table: rows accumulate in a staging table, and
// Commit swaps the staging table into place in one transaction. Searches
// running during an import therefore keep reading the previous generation,
// and an import that dies mid-way leaves the live generation untouched.

import (
	"context"
	"fmt"
)

// Generation is one in-progress import. Exactly one should exist at a time.
type Generation struct {
	store    *Store
	finished bool
}

// BeginImport opens a new, empty generation, discarding any staging leftovers
// from a previously crashed import.
func (s *Store) BeginImport(ctx context.Context) (*Generation, error) {
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", stagingTable)); err != nil {
		return nil, fmt.Errorf("drop stale staging table: %w", err)
	}

	idCol := "id INTEGER PRIMARY KEY AUTOINCREMENT"
	if s.driver == "pgx" {
		idCol = "id BIGSERIAL PRIMARY KEY"
	}
	ddl := fmt.Sprintf("CREATE TABLE %s (%s, row_text TEXT NOT NULL)", stagingTable, idCol)
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return nil, fmt.Errorf("create staging table: %w", err)
	}

	return &Generation{store: s}, nil
}

// Insert appends a batch of records to the generation. Safe to call
// repeatedly with successive chunks; each call is one transaction, so all
// records of a chunk are queryable (post-commit) once it returns.
func (g *Generation) Insert(ctx context.Context, records []string) error {
	if g.finished {
		return fmt.Errorf("insert into finished generation")
	}
	if len(records) == 0 {
		return nil
	}

	tx, err := g.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert batch: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		"INSERT INTO %s (row_text) VALUES (%s)", stagingTable, g.store.placeholder(1)))
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		if _, err := stmt.ExecContext(ctx, rec); err != nil {
			return fmt.Errorf("insert record: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit insert batch: %w", err)
	}
	return nil
}

// Commit atomically replaces the live generation with this one. After it
// returns, every search sees only the new records.
func (g *Generation) Commit(ctx context.Context) error {
	if g.finished {
		return fmt.Errorf("generation already finished")
	}

	tx, err := g.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin swap: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", recordsTable)); err != nil {
		return fmt.Errorf("drop previous generation: %w", err)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(
		"ALTER TABLE %s RENAME TO %s", stagingTable, recordsTable)); err != nil {
		return fmt.Errorf("swap generation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit swap: %w", err)
	}

	g.finished = true
	return nil
}

// Abort discards the staged generation, leaving the live one as it was.
// Calling it after a successful Commit is a no-op.
func (g *Generation) Abort() error {
	if g.finished {
		return nil
	}
	g.finished = true

	if _, err := g.store.db.Exec(fmt.Sprintf("DROP TABLE IF EXISTS %s", stagingTable)); err != nil {
		return fmt.Errorf("drop staging table: %w", err)
	}
	return nil
}
