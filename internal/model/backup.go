package model

import "time"

type BackupStatus string

const (
	BackupStatusPending   BackupStatus = "pending"
	BackupStatusUploading BackupStatus = "uploading"
	BackupStatusCompleted BackupStatus = "completed"
	BackupStatusFailed    BackupStatus = "failed"
)

// Backup records one database snapshot. Location is an object key when the
// snapshot went to S3, otherwise a path under the local backup directory.
type Backup struct {
	ID           int64        `json:"id"`
	Filename     string       `json:"filename"`
	Location     string       `json:"location"`
	SizeBytes    int64        `json:"sizeBytes"`
	Status       BackupStatus `json:"status"`
	ErrorMessage string       `json:"error,omitempty"`
	StartedAt    *time.Time   `json:"startedAt,omitempty"`
	CompletedAt  *time.Time   `json:"completedAt,omitempty"`
	CreatedAt    time.Time    `json:"createdAt"`
	UpdatedAt    time.Time    `json:"updatedAt"`
}
