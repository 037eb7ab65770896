package models

import (
	"context"
	"time"

	"github.com/nuzumhq/fleet_backend/config"
	"github.com/nuzumhq/fleet_backend/utils"
	"gorm.io/gorm"
)

// Archive job statuses for ArchiveJob.Status.
// Keep these as strings (DB values) for backwards compatibility.
const (
	ArchiveJobStatusPending    = "PENDING"
	ArchiveJobStatusProcessing = "PROCESSING"
	ArchiveJobStatusSucceeded  = "SUCCEEDED"
	ArchiveJobStatusFailed     = "FAILED"
	ArchiveJobStatusDead       = "DEAD"
)

// ArchiveJobMaxAttempts caps retries before a job goes DEAD. Six attempts
// with the dispatcher backoff schedule spans roughly an hour.
const ArchiveJobMaxAttempts = 6

// ArchiveJob is the durable work queue row for the archive pipeline. One job
// per approved request; request_id is unique so re-enqueues are no-ops.
type ArchiveJob struct {
	ID int `gorm:"primary_key" json:"id"`

	RequestId int `gorm:"not null;uniqueIndex" json:"request_id"`
	VehicleId int `gorm:"not null;index" json:"vehicle_id"`

	Status        string     `gorm:"size:20;not null;default:'PENDING';index:idx_archive_claim" json:"status"`
	Attempts      int        `gorm:"not null;default:0" json:"attempts"`
	NextAttemptAt *time.Time `gorm:"index:idx_archive_claim" json:"next_attempt_at"`
	LastError     *string    `gorm:"type:text" json:"last_error"`

	LockedAt *time.Time `json:"locked_at"`
	LockedBy *string    `gorm:"size:100" json:"locked_by"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// EnqueueArchiveJob inserts a PENDING job for the request on the caller's
// transaction so the job commits together with the approval. A duplicate key
// hit means the job already exists, which is fine.
func EnqueueArchiveJob(tx *gorm.DB, requestId, vehicleId int) error {
	now := time.Now()
	job := ArchiveJob{
		RequestId:     requestId,
		VehicleId:     vehicleId,
		Status:        ArchiveJobStatusPending,
		NextAttemptAt: &now,
	}
	err := tx.Create(&job).Error
	if err != nil && utils.IsDuplicateKeyErr(err) {
		return nil
	}
	return err
}

// ListArchiveIssues returns jobs that need operator attention: DEAD jobs and
// FAILED jobs that have been retrying for a while.
func ListArchiveIssues(ctx context.Context, limit int) ([]ArchiveJob, error) {
	db := config.GetDB()

	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var jobs []ArchiveJob
	err := db.WithContext(ctx).
		Where("status = ? OR (status = ? AND attempts >= ?)",
			ArchiveJobStatusDead, ArchiveJobStatusFailed, 3).
		Order("updated_at DESC").
		Limit(limit).
		Find(&jobs).Error
	if err != nil {
		return nil, err
	}
	return jobs, nil
}
