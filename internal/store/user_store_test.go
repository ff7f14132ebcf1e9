package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"

	"moneytransfer/internal/models"

	"github.com/lib/pq"
)

func TestUserStoreCreate(t *testing.T) {
	ctx := context.Background()
	getter := stubGetter{
		getFn: func(_ context.Context, dest any, query string, args ...any) error {
			if !strings.Contains(query, "INSERT INTO users") {
				t.Fatalf("unexpected query: %s", query)
			}
			if len(args) != 5 || args[2] != "jane@example.com" || args[3] != "+254712345678" {
				t.Fatalf("unexpected args: %#v", args)
			}
			*dest.(*models.User) = models.User{ID: 1, Email: "jane@example.com"}
			return nil
		},
	}
	store := NewUserStore(stubDB{})
	user, err := store.Create(ctx, getter, NewUser{
		FirstName:    "Jane",
		LastName:     "Doe",
		Email:        "Jane@Example.com",
		Phone:        "+254712345678",
		PasswordHash: "hash",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user.ID != 1 {
		t.Fatalf("unexpected user: %#v", user)
	}
}

func TestUserStoreCreateDuplicate(t *testing.T) {
	cases := []struct {
		constraint string
		want       error
	}{
		{constraint: "users_email_key", want: ErrEmailTaken},
		{constraint: "users_phone_key", want: ErrPhoneTaken},
		{constraint: "users_pkey", want: ErrDuplicate},
	}
	for _, tc := range cases {
		getter := stubGetter{
			getFn: func(context.Context, any, string, ...any) error {
				return &pq.Error{Code: "23505", Constraint: tc.constraint}
			},
		}
		_, err := NewUserStore(stubDB{}).Create(context.Background(), getter, NewUser{Email: "a@b.co"})
		if !errors.Is(err, tc.want) || !errors.Is(err, ErrDuplicate) {
			t.Fatalf("%s: expected %v, got %v", tc.constraint, tc.want, err)
		}
	}
}

func TestUserStoreList(t *testing.T) {
	store := NewUserStore(stubDB{
		selectFn: func(_ context.Context, dest any, query string, args ...any) error {
			if !strings.Contains(query, "FROM users") || !strings.Contains(query, "LIMIT $1 OFFSET $2") {
				t.Fatalf("unexpected query: %s", query)
			}
			if args[0] != 20 || args[1] != 40 {
				t.Fatalf("unexpected paging: %#v", args)
			}
			*dest.(*[]models.User) = []models.User{{ID: 41}, {ID: 42}}
			return nil
		},
	})
	users, err := store.List(context.Background(), 20, 40)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(users) != 2 || users[0].ID != 41 {
		t.Fatalf("unexpected users: %#v", users)
	}
}

func TestUserStoreResolve(t *testing.T) {
	ctx := context.Background()
	var lastQuery string
	var lastArg any
	store := NewUserStore(stubDB{
		getFn: func(_ context.Context, dest any, query string, args ...any) error {
			lastQuery = query
			lastArg = args[0]
			*dest.(*models.User) = models.User{ID: 2}
			return nil
		},
	})
	if _, err := store.Resolve(ctx, "Bob@Example.com"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(lastQuery, "WHERE email = $1") || lastArg != "bob@example.com" {
		t.Fatalf("unexpected lookup: %s %v", lastQuery, lastArg)
	}
	if _, err := store.Resolve(ctx, "0712345678"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(lastQuery, "WHERE phone = $1") || lastArg != "0712345678" {
		t.Fatalf("unexpected lookup: %s %v", lastQuery, lastArg)
	}
}

func TestUserStoreGetByIDNotFound(t *testing.T) {
	ctx := context.Background()
	store := NewUserStore(stubDB{
		getFn: func(_ context.Context, dest any, query string, args ...any) error {
			if !strings.Contains(query, "WHERE id = $1") || args[0] != int64(9) {
				t.Fatalf("unexpected lookup: %s %#v", query, args)
			}
			return sql.ErrNoRows
		},
	})
	if _, err := store.GetByID(ctx, 9); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
