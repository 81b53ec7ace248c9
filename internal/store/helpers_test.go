package store

import (
	"context"
	"database/sql"
	"testing"

	"github.com/dukerupert/larder/internal/database"
	"github.com/dukerupert/larder/internal/model"
)

func setupTestDB(t *testing.T) (*sql.DB, *Stores) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, New(db)
}

func createUser(t *testing.T, s *Stores, email, name string) *model.User {
	t.Helper()
	u, err := s.Users.Create(context.Background(), email, name, "hash", model.UserRoleUser)
	if err != nil {
		t.Fatalf("create user %s: %v", email, err)
	}
	return u
}
