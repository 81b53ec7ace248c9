package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/larder/internal/model"
)

type BackupStore struct {
	db DBTX
}

func NewBackupStore(db DBTX) *BackupStore {
	return &BackupStore{db: db}
}

const backupCols = `id, filename, location, size_bytes, status, error_message, started_at, completed_at, created_at, updated_at`

func scanBackup(s scanner) (*model.Backup, error) {
	var b model.Backup
	var errMsg sql.NullString
	var startedAt, completedAt sql.NullTime
	err := s.Scan(&b.ID, &b.Filename, &b.Location, &b.SizeBytes, &b.Status, &errMsg, &startedAt, &completedAt, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	b.ErrorMessage = errMsg.String
	if startedAt.Valid {
		b.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		b.CompletedAt = &completedAt.Time
	}
	return &b, nil
}

func (s *BackupStore) Create(ctx context.Context, filename, location string) (*model.Backup, error) {
	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO backups (filename, location, status, started_at, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		filename, location, model.BackupStatusPending, now, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("create backup: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *BackupStore) GetByID(ctx context.Context, id int64) (*model.Backup, error) {
	b, err := scanBackup(s.db.QueryRowContext(ctx, `SELECT `+backupCols+` FROM backups WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get backup %d: %w", id, err)
	}
	return b, nil
}

func (s *BackupStore) List(ctx context.Context, limit int) ([]model.Backup, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+backupCols+` FROM backups ORDER BY created_at DESC, id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list backups: %w", err)
	}
	defer rows.Close()

	backups := []model.Backup{}
	for rows.Next() {
		b, err := scanBackup(rows)
		if err != nil {
			return nil, fmt.Errorf("scan backup: %w", err)
		}
		backups = append(backups, *b)
	}
	return backups, rows.Err()
}

func (s *BackupStore) UpdateStatus(ctx context.Context, id int64, status model.BackupStatus, errorMsg string) error {
	var errPtr *string
	if errorMsg != "" {
		errPtr = &errorMsg
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE backups SET status = ?, error_message = ?, updated_at = ? WHERE id = ?`,
		status, errPtr, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("update backup status: %w", err)
	}
	return nil
}

func (s *BackupStore) UpdateCompleted(ctx context.Context, id, sizeBytes int64) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`UPDATE backups SET status = ?, size_bytes = ?, completed_at = ?, updated_at = ? WHERE id = ?`,
		model.BackupStatusCompleted, sizeBytes, now, now, id,
	)
	if err != nil {
		return fmt.Errorf("update backup completed: %w", err)
	}
	return nil
}

func (s *BackupStore) Delete(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM backups WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete backup: %w", err)
	}
	return nil
}

// DeleteOlderThan deletes backup records created before the cutoff and
// returns their locations so the caller can remove the snapshots.
func (s *BackupStore) DeleteOlderThan(ctx context.Context, before time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT location FROM backups WHERE created_at < ?`, before)
	if err != nil {
		return nil, fmt.Errorf("select old backups: %w", err)
	}
	var locations []string
	for rows.Next() {
		var loc string
		if err := rows.Scan(&loc); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan location: %w", err)
		}
		locations = append(locations, loc)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM backups WHERE created_at < ?`, before); err != nil {
		return nil, fmt.Errorf("delete old backups: %w", err)
	}
	return locations, nil
}
