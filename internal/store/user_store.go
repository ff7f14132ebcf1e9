package store

import (
	"context"
	"fmt"
	"strings"

	"moneytransfer/internal/db"
	"moneytransfer/internal/models"
)

// UserStore is the directory of registered users.
type UserStore struct {
	db DB
}

type NewUser struct {
	FirstName    string
	LastName     string
	Email        string
	Phone        string
	PasswordHash string
}

const userColumns = `id, first_name, last_name, email, phone, password_hash, created_at`

func NewUserStore(db DB) *UserStore {
	return &UserStore{db: db}
}

func (s *UserStore) Create(ctx context.Context, tx Getter, input NewUser) (models.User, error) {
	var row models.User
	err := tx.GetContext(ctx, &row, `
		INSERT INTO users (first_name, last_name, email, phone, password_hash)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+userColumns,
		input.FirstName, input.LastName, strings.ToLower(input.Email), input.Phone, input.PasswordHash,
	)
	if err != nil {
		if db.IsUniqueViolation(err) {
			switch db.ViolatedConstraint(err) {
			case "users_email_key":
				return models.User{}, fmt.Errorf("user: %w: %w", ErrEmailTaken, err)
			case "users_phone_key":
				return models.User{}, fmt.Errorf("user: %w: %w", ErrPhoneTaken, err)
			}
			return models.User{}, fmt.Errorf("user: %w: %w", ErrDuplicate, err)
		}
		return models.User{}, err
	}
	return row, nil
}

func (s *UserStore) GetByID(ctx context.Context, userID int64) (models.User, error) {
	return s.getBy(ctx, "id", userID)
}

func (s *UserStore) GetByEmail(ctx context.Context, email string) (models.User, error) {
	return s.getBy(ctx, "email", strings.ToLower(email))
}

func (s *UserStore) GetByPhone(ctx context.Context, phone string) (models.User, error) {
	return s.getBy(ctx, "phone", phone)
}

// List returns registered users oldest first.
func (s *UserStore) List(ctx context.Context, limit, offset int) ([]models.User, error) {
	rows := []models.User{}
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+userColumns+`
		FROM users
		ORDER BY id
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// Resolve looks a user up by e-mail address or phone number.
func (s *UserStore) Resolve(ctx context.Context, identifier string) (models.User, error) {
	if strings.Contains(identifier, "@") {
		return s.GetByEmail(ctx, identifier)
	}
	return s.GetByPhone(ctx, identifier)
}

func (s *UserStore) getBy(ctx context.Context, column string, value any) (models.User, error) {
	var row models.User
	err := s.db.GetContext(ctx, &row, `SELECT `+userColumns+` FROM users WHERE `+column+` = $1`, value)
	if err != nil {
		return models.User{}, notFound(err, "user with %s %v", column, value)
	}
	return row, nil
}
