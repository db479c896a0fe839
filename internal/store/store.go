// Package store persists normalized records in a single relational table and
// answers capped substring searches over them.
//
// Two backends share the same SQL surface through database/sql: an embedded
// SQLite file (the default deployment) and PostgreSQL via the pgx stdlib
// adapter. Each import builds a fresh generation in a staging table and swaps
// it into place on commit, so concurrent readers always see a complete
// generation — fully old or fully new, never a mix.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

const (
	recordsTable = "records"
	stagingTable = "records_staging"
)

// Store is the record persistence layer. It is safe for concurrent use; one
// import writer at a time is the caller's responsibility.
type Store struct {
	db     *sql.DB
	driver string
}

// Open connects to the record store. driver is "sqlite3" (dsn is a file
// path) or "pgx" (dsn is a postgres URL).
func Open(driver, dsn string) (*Store, error) {
	switch driver {
	case "sqlite3":
		// WAL lets searches read the previous generation while an import
		// builds the next one. The DSN may already carry options.
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + "_journal_mode=WAL&_busy_timeout=30000"
	case "pgx":
	default:
		return nil, fmt.Errorf("unsupported store driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping store: %w", err)
	}

	return &Store{db: db, driver: driver}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// placeholder returns the driver's bind-parameter syntax for position n (1-based).
func (s *Store) placeholder(n int) string {
	if s.driver == "pgx" {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// Search returns up to limit stored records containing keyword, plus the
// total number of matching records. Matching is a case-insensitive substring
// scan in storage order; LIKE metacharacters in the keyword are treated
// literally. Before the first import completes there is nothing to search
// and the result is empty.
//
// Rows and total come out of a single statement (window count), so a
// generation swap landing mid-search can never pair one generation's rows
// with another's count.
func (s *Store) Search(ctx context.Context, keyword string, limit int) ([]string, int64, error) {
	if limit <= 0 {
		limit = 10
	}

	pattern := "%" + escapeLike(strings.ToLower(keyword)) + "%"
	query := fmt.Sprintf(
		`SELECT row_text, COUNT(*) OVER () FROM %s WHERE lower(row_text) LIKE %s ESCAPE '\' ORDER BY id LIMIT %s`,
		recordsTable, s.placeholder(1), s.placeholder(2))

	rows, err := s.db.QueryContext(ctx, query, pattern, limit)
	if err != nil {
		if isMissingTable(err) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("search records: %w", err)
	}
	defer rows.Close()

	var (
		matches []string
		total   int64
	)
	for rows.Next() {
		var text string
		if err := rows.Scan(&text, &total); err != nil {
			return nil, 0, fmt.Errorf("scan record: %w", err)
		}
		matches = append(matches, text)
	}
	if err := rows.Err(); err != nil {
		if isMissingTable(err) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("iterate records: %w", err)
	}

	return matches, total, nil
}

// Count returns the number of records in the live generation.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", recordsTable)).Scan(&n)
	if err != nil {
		if isMissingTable(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("count records: %w", err)
	}
	return n, nil
}

// escapeLike escapes LIKE metacharacters so user keywords match literally.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// isMissingTable reports the "table does not exist" errors of both backends,
// which simply mean no import has ever completed.
func isMissingTable(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "no such table") || // sqlite3
		strings.Contains(msg, "does not exist") || // postgres
		strings.Contains(msg, "42P01") // postgres SQLSTATE
}
