package store

import (
	"context"
	"database/sql"
	"errors"
)

type AdminStore struct {
	db DB
}

func NewAdminStore(db DB) *AdminStore {
	return &AdminStore{db: db}
}

func (s *AdminStore) IsAdmin(ctx context.Context, userID int64) (bool, error) {
	var one int
	err := s.db.GetContext(ctx, &one, `SELECT 1 FROM admins WHERE user_id = $1`, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *AdminStore) HasAnyAdmin(ctx context.Context) (bool, error) {
	var count int
	err := s.db.GetContext(ctx, &count, `SELECT COUNT(1) FROM admins`)
	return count > 0, err
}

// BootstrapAdmin grants admin to userID only while no admin exists yet.
func (s *AdminStore) BootstrapAdmin(ctx context.Context, tx Execer, userID int64) (bool, error) {
	res, err := tx.ExecContext(ctx, `
		INSERT INTO admins (user_id)
		SELECT $1
		WHERE NOT EXISTS (SELECT 1 FROM admins)
	`, userID)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	return affected > 0, err
}
