// Package db implements auth.Store on top of SQLite.
package db

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/lomect/accountd/internal/auth"
)

// Store is responsible for persisting users.
type Store struct {
	readDB  *sql.DB
	writeDB *sql.DB
}

// New creates a new Store. Reads and writes may use the same database handle.
func New(readDB, writeDB *sql.DB) *Store {
	return &Store{
		readDB:  readDB,
		writeDB: writeDB,
	}
}

// CreateUser inserts a new user.
func (s *Store) CreateUser(ctx context.Context, u *auth.User) error {
	return insertUser(&queryBuilder{}, s.exec(ctx), u)
}

// UpdateUser changes the set fields of upd on the user with the given ID.
func (s *Store) UpdateUser(ctx context.Context, id uuid.UUID, upd auth.UserUpdate) error {
	return updateUser(&queryBuilder{}, s.exec(ctx), id, upd)
}

// FindUsers returns the users matching the filter, ordered by creation time.
func (s *Store) FindUsers(ctx context.Context, filter *auth.UserFilter) ([]auth.User, error) {
	if filter == nil {
		filter = &auth.UserFilter{}
	}
	return selectUsers(&queryBuilder{}, s.query(ctx), filter)
}

func (s *Store) exec(ctx context.Context) execFunc {
	return func(query string, params ...any) (sql.Result, error) {
		return s.writeDB.ExecContext(ctx, query, params...)
	}
}

func (s *Store) query(ctx context.Context) queryFunc {
	return func(query string, params ...any) (*sql.Rows, error) {
		return s.readDB.QueryContext(ctx, query, params...)
	}
}
