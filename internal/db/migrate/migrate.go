// Package migrate applies SQL scripts to a database, each at most once.
package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"
)

// Migration is a script that was applied.
type Migration struct {
	// Sequence is the position of the script. Starts at 0.
	Sequence int
	Filename string
	Metadata Metadata
}

// Equal checks if two migrations are equal.
func (m Migration) Equal(other Migration) bool {
	return m.Sequence == other.Sequence &&
		m.Filename == other.Filename &&
		m.Metadata.AppVersion == other.Metadata.AppVersion &&
		m.Metadata.Timestamp.Equal(other.Metadata.Timestamp)
}

// Metadata is stored alongside every applied migration to help debugging.
type Metadata struct {
	AppVersion string
	Timestamp  time.Time
}

const (
	createTableQuery = `CREATE TABLE IF NOT EXISTS migrations (
	sequence    INTEGER PRIMARY KEY,
	filename    TEXT NOT NULL,
	app_version TEXT NOT NULL,
	timestamp   TIMESTAMP NOT NULL
)`
	selectQuery = `SELECT sequence, filename, app_version, timestamp FROM migrations ORDER BY sequence`
	insertQuery = `INSERT INTO migrations (sequence, filename, app_version, timestamp) VALUES (?, ?, ?, ?)`
)

var (
	// ErrNoTable indicates the migrations table does not exist.
	ErrNoTable = errors.New("migrations table does not exist")
	// ErrMigrationsMismatch indicates the applied migrations no longer match the available scripts.
	ErrMigrationsMismatch = errors.New("migrations mismatch")
)

// MigrationError is returned when a script fails to apply.
type MigrationError struct {
	Sequence int
	Filename string
	Err      error
}

func (m MigrationError) Error() string {
	return fmt.Sprintf("migration [%d] %q failed: %v", m.Sequence, m.Filename, m.Err)
}

func (m MigrationError) Unwrap() error {
	return m.Err
}

// RunFS applies the .sql scripts in the root of fileSys that were not applied before,
// in lexical order of their names. All scripts run in a single transaction, either all
// of them are applied or none are. The applied migrations are returned, an empty slice
// if there was nothing to do.
func RunFS(ctx context.Context, db *sql.DB, fileSys fs.FS, meta Metadata) ([]Migration, error) {
	scripts, err := loadScripts(fileSys)
	if err != nil {
		return nil, err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	_, err = tx.ExecContext(ctx, createTableQuery)
	if err != nil {
		return nil, rollback(tx, fmt.Errorf("failed to create migrations table: %w", err))
	}

	applied, err := queryMigrations(ctx, tx)
	if err != nil {
		return nil, rollback(tx, err)
	}

	pending, err := pendingScripts(applied, scripts)
	if err != nil {
		return nil, rollback(tx, err)
	}

	result := make([]Migration, 0, len(pending))
	for i, s := range pending {
		m := Migration{
			Sequence: len(applied) + i,
			Filename: s.name,
			Metadata: meta,
		}

		_, err := tx.ExecContext(ctx, s.content)
		if err != nil {
			return nil, rollback(tx, MigrationError{
				Sequence: m.Sequence,
				Filename: m.Filename,
				Err:      err,
			})
		}

		_, err = tx.ExecContext(ctx, insertQuery, m.Sequence, m.Filename, m.Metadata.AppVersion, m.Metadata.Timestamp)
		if err != nil {
			return nil, rollback(tx, fmt.Errorf("failed to record migration %q: %w", m.Filename, err))
		}

		result = append(result, m)
	}

	err = tx.Commit()
	if err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return result, nil
}

// pendingScripts verifies that applied is a prefix of scripts and returns the rest.
func pendingScripts(applied []Migration, scripts []script) ([]script, error) {
	if len(applied) > len(scripts) {
		return nil, fmt.Errorf(
			"found %d applied migrations but only %d scripts: %w",
			len(applied), len(scripts), ErrMigrationsMismatch,
		)
	}

	for i, m := range applied {
		if m.Sequence != i {
			return nil, fmt.Errorf("migration sequence mismatch, wanted %d got %d", i, m.Sequence)
		}

		if m.Filename != scripts[i].name {
			return nil, fmt.Errorf(
				"migration %d was applied as %q, but the script is now %q: %w",
				i, m.Filename, scripts[i].name, ErrMigrationsMismatch,
			)
		}
	}

	return scripts[len(applied):], nil
}

// QueryMigrations returns all migrations applied to db.
// If the migrations table does not exist yet, it returns ErrNoTable.
func QueryMigrations(ctx context.Context, db *sql.DB) ([]Migration, error) {
	return queryMigrations(ctx, db)
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func queryMigrations(ctx context.Context, q queryer) ([]Migration, error) {
	rows, err := q.QueryContext(ctx, selectQuery)
	if err != nil {
		if strings.Contains(err.Error(), "no such table") {
			return nil, ErrNoTable
		}
		return nil, fmt.Errorf("failed to query migrations: %w", err)
	}
	defer rows.Close()

	out := make([]Migration, 0)
	for rows.Next() {
		var m Migration
		err := rows.Scan(&m.Sequence, &m.Filename, &m.Metadata.AppVersion, &m.Metadata.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("failed to scan migration: %w", err)
		}

		out = append(out, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate over rows: %w", err)
	}

	return out, nil
}

type script struct {
	name    string
	content string
}

// loadScripts reads the scripts, fs.ReadDir returns them sorted by name.
func loadScripts(fileSys fs.FS) ([]script, error) {
	entries, err := fs.ReadDir(fileSys, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	scripts := make([]script, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		content, err := fs.ReadFile(fileSys, entry.Name())
		if err != nil {
			return nil, fmt.Errorf("failed to read migration %q: %w", entry.Name(), err)
		}

		scripts = append(scripts, script{
			name:    entry.Name(),
			content: string(content),
		})
	}

	return scripts, nil
}

func rollback(tx *sql.Tx, err error) error {
	rErr := tx.Rollback()
	if rErr != nil {
		return errors.Join(err, rErr)
	}

	return err
}
