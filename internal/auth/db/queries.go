package db

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/lomect/accountd/internal/auth"
	"github.com/lomect/accountd/internal/db"
	"github.com/lomect/accountd/internal/email"
	"github.com/lomect/accountd/internal/errorz"
)

type queryBuilder = db.Query

type execFunc func(query string, params ...any) (sql.Result, error)
type queryFunc func(query string, params ...any) (*sql.Rows, error)

func insertUser(q *queryBuilder, ef execFunc, u *auth.User) error {
	if u.ID == uuid.Nil {
		return fmt.Errorf("zero uuid provided: %w", errorz.ErrConstraintViolated)
	}

	q.Unsafe(`INSERT INTO users (id, username, email, phone, password_hash, is_active, created_at, updated_at) VALUES (`)
	q.Params(u.ID, u.Username, string(u.Email), u.Phone, string(u.PasswordHash), u.IsActive, u.CreatedAt, u.UpdatedAt)
	q.Unsafe(`)`)

	s, params := q.Get()
	_, err := ef(s, params...)
	if err != nil {
		return errorz.MapDBErr(err)
	}

	return nil
}

func updateUser(q *queryBuilder, ef execFunc, id uuid.UUID, upd auth.UserUpdate) error {
	q.Unsafe(`UPDATE users SET updated_at = `)
	q.Param(upd.UpdatedAt)

	if upd.PasswordHash != nil {
		q.Unsafe(`, password_hash = `)
		q.Param(string(*upd.PasswordHash))
	}

	if upd.IsActive != nil {
		q.Unsafe(`, is_active = `)
		q.Param(*upd.IsActive)
	}

	q.Unsafe(` WHERE id = `)
	q.Param(id)

	s, params := q.Get()
	result, err := ef(s, params...)
	if err != nil {
		return errorz.MapDBErr(err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errorz.MapDBErr(err)
	}

	if rows == 0 {
		return fmt.Errorf("user not found: %w", errorz.ErrNotFound)
	}

	return nil
}

func selectUsers(q *queryBuilder, qf queryFunc, f *auth.UserFilter) ([]auth.User, error) {
	q.Unsafe(`SELECT id, username, email, phone, password_hash, is_active, created_at, updated_at FROM users WHERE 1=1`)

	if len(f.Emails) > 0 {
		emails := make([]any, 0, len(f.Emails))
		for _, e := range f.Emails {
			emails = append(emails, string(e))
		}

		q.Unsafe(` AND email IN (`)
		q.Params(emails...)
		q.Unsafe(`)`)
	}

	if f.Username != "" {
		q.Unsafe(` AND username LIKE `)
		q.Param("%" + escapeLike(f.Username) + "%")
		q.Unsafe(` ESCAPE '\'`)
	}

	if f.IsActive != nil {
		q.Unsafe(` AND is_active = `)
		q.Param(*f.IsActive)
	}

	q.Unsafe(` ORDER BY created_at ASC, id ASC`)
	q.Page(f.Limit, f.Offset)

	s, params := q.Get()
	rows, err := qf(s, params...)
	if err != nil {
		return nil, errorz.MapDBErr(err)
	}

	defer rows.Close()

	out := make([]auth.User, 0)
	for rows.Next() {
		var (
			u       auth.User
			rawMail string
		)

		err := rows.Scan(&u.ID, &u.Username, &rawMail, &u.Phone, &u.PasswordHash, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
		if err != nil {
			return nil, errorz.MapDBErr(err)
		}

		u.Email, err = email.ParseAddress(rawMail)
		if err != nil {
			return nil, err
		}

		out = append(out, u)
	}

	if err := rows.Err(); err != nil {
		return nil, errorz.MapDBErr(err)
	}

	return out, nil
}

func escapeLike(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r == '%' || r == '_' || r == '\\' {
			out = append(out, '\\')
		}
		out = append(out, r)
	}
	return string(out)
}
