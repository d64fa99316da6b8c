package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// SQLStore reads the users table through database/sql.
type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) FindByID(ctx context.Context, id string) (*User, error) {
	return s.findOne(ctx, `SELECT id, name, phone FROM users WHERE id = $1`, id)
}

func (s *SQLStore) FindByPhone(ctx context.Context, phone string) (*User, error) {
	phone = NormalizePhone(phone)
	if phone == "" {
		return nil, ErrNotFound
	}
	return s.findOne(ctx, `SELECT id, name, phone FROM users WHERE phone = $1 ORDER BY created_at LIMIT 1`, phone)
}

func (s *SQLStore) findOne(ctx context.Context, query string, arg any) (*User, error) {
	var (
		u     User
		phone sql.NullString
	)
	if err := s.db.QueryRowContext(ctx, query, arg).Scan(&u.ID, &u.Name, &phone); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("users: query: %w", err)
	}
	u.Phone = phone.String
	return &u, nil
}

// FindByIDs loads several users at once, skipping ids that do not exist.
func (s *SQLStore) FindByIDs(ctx context.Context, ids []string) (map[string]User, error) {
	out := make(map[string]User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, phone FROM users WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("users: query batch: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			u     User
			phone sql.NullString
		)
		if err := rows.Scan(&u.ID, &u.Name, &phone); err != nil {
			return nil, fmt.Errorf("users: scan: %w", err)
		}
		u.Phone = phone.String
		out[u.ID] = u
	}
	return out, rows.Err()
}

func (s *SQLStore) UpdatePhone(ctx context.Context, id, phone string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET phone = $2, updated_at = now() WHERE id = $1`, id, NormalizePhone(phone))
	if err != nil {
		return fmt.Errorf("users: update phone: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("users: update phone: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
