package store

import (
	"context"
	"testing"
	"time"

	"github.com/dukerupert/larder/internal/model"
)

func TestBackupLifecycle(t *testing.T) {
	db, _ := setupTestDB(t)
	bs := NewBackupStore(db)
	ctx := context.Background()

	b, err := bs.Create(ctx, "larder-2026.db.gz", "backups/larder-2026.db.gz")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if b.Status != model.BackupStatusPending {
		t.Errorf("status = %q, want pending", b.Status)
	}
	if b.StartedAt == nil {
		t.Error("expected started_at to be set")
	}

	if err := bs.UpdateStatus(ctx, b.ID, model.BackupStatusUploading, ""); err != nil {
		t.Fatalf("update status: %v", err)
	}
	if err := bs.UpdateCompleted(ctx, b.ID, 4096); err != nil {
		t.Fatalf("update completed: %v", err)
	}

	got, err := bs.GetByID(ctx, b.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != model.BackupStatusCompleted || got.SizeBytes != 4096 || got.CompletedAt == nil {
		t.Errorf("backup = %+v", got)
	}

	if err := bs.UpdateStatus(ctx, b.ID, model.BackupStatusFailed, "boom"); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	got, _ = bs.GetByID(ctx, b.ID)
	if got.ErrorMessage != "boom" {
		t.Errorf("error = %q, want boom", got.ErrorMessage)
	}
}

func TestBackupGetByIDNotFound(t *testing.T) {
	db, _ := setupTestDB(t)
	b, err := NewBackupStore(db).GetByID(context.Background(), 42)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if b != nil {
		t.Error("expected nil")
	}
}

func TestBackupDeleteOlderThan(t *testing.T) {
	db, _ := setupTestDB(t)
	bs := NewBackupStore(db)
	ctx := context.Background()

	old, _ := bs.Create(ctx, "old.db.gz", "old-location")
	if _, err := db.Exec(`UPDATE backups SET created_at = ? WHERE id = ?`, time.Now().UTC().AddDate(0, 0, -10), old.ID); err != nil {
		t.Fatalf("age backup: %v", err)
	}
	_, _ = bs.Create(ctx, "new.db.gz", "new-location")

	locs, err := bs.DeleteOlderThan(ctx, time.Now().UTC().AddDate(0, 0, -7))
	if err != nil {
		t.Fatalf("delete older than: %v", err)
	}
	if len(locs) != 1 || locs[0] != "old-location" {
		t.Errorf("locations = %v, want [old-location]", locs)
	}

	remaining, _ := bs.List(ctx, 10)
	if len(remaining) != 1 || remaining[0].Filename != "new.db.gz" {
		t.Errorf("remaining = %+v", remaining)
	}
}

func TestInTxRollsBack(t *testing.T) {
	db, s := setupTestDB(t)
	ctx := context.Background()
	owner := createUser(t, s, "alice@example.com", "Alice")

	err := InTx(ctx, db, func(tx *Stores) error {
		if _, err := tx.Households.Create(ctx, owner.ID, "Doomed", ""); err != nil {
			return err
		}
		return context.Canceled
	})
	if err != context.Canceled {
		t.Fatalf("err = %v, want context.Canceled", err)
	}

	hs, _ := s.Households.ListForUser(ctx, owner.ID)
	if len(hs) != 0 {
		t.Errorf("households = %d, want rollback to leave none", len(hs))
	}
}
