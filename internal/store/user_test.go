package store

import (
	"context"
	"encoding/json"
	"testing"
)

func TestUserCreate(t *testing.T) {
	_, s := setupTestDB(t)
	ctx := context.Background()

	u, err := s.Users.Create(ctx, "  Alice@Example.com ", "Alice", "hash", "user")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if u.ID == 0 {
		t.Error("expected non-zero ID")
	}
	if u.Email != "alice@example.com" {
		t.Errorf("email = %q, want normalized address", u.Email)
	}
	if u.Points != 0 {
		t.Errorf("points = %d, want 0", u.Points)
	}
	if u.Role != "user" {
		t.Errorf("role = %q, want user", u.Role)
	}
}

func TestUserCreateDuplicateEmail(t *testing.T) {
	_, s := setupTestDB(t)
	createUser(t, s, "alice@example.com", "Alice")

	if _, err := s.Users.Create(context.Background(), "ALICE@example.com", "Other", "hash", "user"); err == nil {
		t.Fatal("expected unique constraint error")
	}
}

func TestUserGetByEmail(t *testing.T) {
	_, s := setupTestDB(t)
	created := createUser(t, s, "bob@example.com", "Bob")

	u, err := s.Users.GetByEmail(context.Background(), "BOB@example.com")
	if err != nil {
		t.Fatalf("get by email: %v", err)
	}
	if u == nil || u.ID != created.ID {
		t.Fatalf("got %+v, want user %d", u, created.ID)
	}

	missing, err := s.Users.GetByEmail(context.Background(), "nobody@example.com")
	if err != nil {
		t.Fatalf("get missing: %v", err)
	}
	if missing != nil {
		t.Error("expected nil for unknown email")
	}
}

func TestUserUpdateProfile(t *testing.T) {
	_, s := setupTestDB(t)
	u := createUser(t, s, "carol@example.com", "Carol")

	updated, err := s.Users.UpdateProfile(context.Background(), u.ID, "Caroline", "https://img/c.png", json.RawMessage(`{"theme":"dark"}`))
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Name != "Caroline" || updated.Avatar != "https://img/c.png" {
		t.Errorf("profile not updated: %+v", updated)
	}
	if string(updated.Preferences) != `{"theme":"dark"}` {
		t.Errorf("preferences = %s", updated.Preferences)
	}
}

func TestUserDebitPoints(t *testing.T) {
	_, s := setupTestDB(t)
	ctx := context.Background()
	u := createUser(t, s, "dave@example.com", "Dave")

	if err := s.Users.AddPoints(ctx, u.ID, 50); err != nil {
		t.Fatalf("add points: %v", err)
	}

	ok, err := s.Users.DebitPoints(ctx, u.ID, 30)
	if err != nil {
		t.Fatalf("debit: %v", err)
	}
	if !ok {
		t.Fatal("expected debit of 30 from 50 to succeed")
	}

	ok, err = s.Users.DebitPoints(ctx, u.ID, 30)
	if err != nil {
		t.Fatalf("second debit: %v", err)
	}
	if ok {
		t.Fatal("expected debit of 30 from 20 to fail")
	}

	got, _ := s.Users.GetByID(ctx, u.ID)
	if got.Points != 20 {
		t.Errorf("points = %d, want 20", got.Points)
	}
}
