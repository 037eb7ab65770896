package workflow

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/nuzumhq/fleet_backend/config"
	"github.com/nuzumhq/fleet_backend/models"
	"github.com/nuzumhq/fleet_backend/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ArchiveDispatcher drains the archive job queue: claims due jobs with
// SKIP LOCKED, builds the artifacts and uploads them through the sink.
// Failures back off exponentially with jitter; after MaxAttempts a job goes
// DEAD and lands on the archive issues list.
type ArchiveDispatcher struct {
	DB           *gorm.DB
	Logger       *logrus.Logger
	Sink         ArchiveSink
	DispatcherID string

	BatchSize      int
	PollInterval   time.Duration
	LockTimeout    time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
	AttemptTimeout time.Duration
}

// NewArchiveDispatcher uses the backoff schedule 2m, 4m, 8m, 16m, 30m: six
// attempts spanning roughly an hour before a job goes DEAD.
func NewArchiveDispatcher(db *gorm.DB, logger *logrus.Logger, sink ArchiveSink) *ArchiveDispatcher {
	return &ArchiveDispatcher{
		DB:             db,
		Logger:         logger,
		Sink:           sink,
		DispatcherID:   uuid.NewString(),
		BatchSize:      20,
		PollInterval:   2 * time.Second,
		LockTimeout:    2 * time.Minute,
		MaxAttempts:    models.ArchiveJobMaxAttempts,
		InitialBackoff: 2 * time.Minute,
		AttemptTimeout: 60 * time.Second,
	}
}

func (d *ArchiveDispatcher) Run(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		d.DispatchOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-time.After(d.PollInterval):
		}
	}
}

// DispatchOnce claims one batch of due jobs and processes them.
func (d *ArchiveDispatcher) DispatchOnce(ctx context.Context) {
	now := time.Now().UTC()
	staleBefore := now.Add(-d.LockTimeout)
	db := d.DB
	if db == nil {
		return
	}

	var claimed []models.ArchiveJob
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Eligible:
		// - PENDING / FAILED and due for retry
		// - PROCESSING with a stale lock (worker crashed mid-batch)
		q := tx.
			Where(`
				(
					status IN ? AND (next_attempt_at IS NULL OR next_attempt_at <= ?)
				)
				OR
				(
					status = ? AND locked_at IS NOT NULL AND locked_at <= ?
				)
			`, []string{models.ArchiveJobStatusPending, models.ArchiveJobStatusFailed}, now,
				models.ArchiveJobStatusProcessing, staleBefore).
			Order("id ASC").
			Limit(d.BatchSize).
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		if err := q.Find(&claimed).Error; err != nil {
			return err
		}
		if len(claimed) == 0 {
			return nil
		}
		for i := range claimed {
			// Poison jobs go terminal.
			if d.MaxAttempts > 0 && claimed[i].Attempts >= d.MaxAttempts {
				msg := fmt.Sprintf("max archive attempts exceeded (%d)", d.MaxAttempts)
				claimed[i].Status = models.ArchiveJobStatusDead
				if err := tx.Model(&models.ArchiveJob{}).Where("id = ?", claimed[i].ID).Updates(map[string]interface{}{
					"status":          models.ArchiveJobStatusDead,
					"last_error":      &msg,
					"next_attempt_at": nil,
					"locked_at":       nil,
					"locked_by":       nil,
				}).Error; err != nil {
					return err
				}
				continue
			}

			claimed[i].Status = models.ArchiveJobStatusProcessing
			claimed[i].LockedAt = &now
			claimed[i].LockedBy = &d.DispatcherID
			claimed[i].Attempts = claimed[i].Attempts + 1
			if err := tx.Model(&models.ArchiveJob{}).Where("id = ?", claimed[i].ID).Updates(map[string]interface{}{
				"status":          claimed[i].Status,
				"locked_at":       claimed[i].LockedAt,
				"locked_by":       claimed[i].LockedBy,
				"attempts":        gorm.Expr("attempts + 1"),
				"last_error":      nil,
				"next_attempt_at": nil,
			}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil || len(claimed) == 0 {
		return
	}

	for _, job := range claimed {
		if job.Status == models.ArchiveJobStatusDead {
			notifyArchiveFailed(ctx, job.RequestId, utils.DereferencePtr(job.LastError))
			continue
		}
		attemptCtx, cancel := context.WithTimeout(ctx, d.AttemptTimeout)
		uploadErr := d.processJob(attemptCtx, &job)
		cancel()
		if uploadErr != nil {
			d.markFailed(ctx, &job, uploadErr)
			continue
		}
		d.markSucceeded(ctx, job.ID)
	}
}

// processJob builds the artifacts and uploads the whole set into the job's
// folder. Partial uploads restart from scratch into the same folder.
func (d *ArchiveDispatcher) processJob(ctx context.Context, job *models.ArchiveJob) error {
	db := d.DB.WithContext(ctx)

	var request models.OperationRequest
	if err := db.First(&request, job.RequestId).Error; err != nil {
		return err
	}
	var vehicle models.Vehicle
	if err := db.First(&vehicle, request.VehicleId).Error; err != nil {
		return err
	}

	artifacts, err := BuildOperationArtifacts(ctx, &request)
	if err != nil {
		return err
	}

	approvedAt := request.RequestedAt
	if request.ReviewedAt != nil {
		approvedAt = *request.ReviewedAt
	}
	folder, err := ResolveFolderCollision(ctx, d.Sink,
		ArchiveFolderName(&vehicle, request.OperationType, approvedAt),
		request.ArchiveFolder)
	if err != nil {
		return err
	}

	result, err := d.Sink.Upload(ctx, folder, artifacts)
	if err != nil {
		// keep the folder so the retry reuses it
		if folder != request.ArchiveFolder {
			_ = db.Model(&models.OperationRequest{}).
				Where("id = ?", request.ID).
				Update("archive_folder", folder).Error
		}
		return err
	}

	links, err := marshalLinks(result.Links)
	if err != nil {
		return err
	}
	return db.Model(&models.OperationRequest{}).
		Where("id = ?", request.ID).
		Updates(map[string]interface{}{
			"archive_folder": result.FolderId,
			"archive_links":  links,
		}).Error
}

func (d *ArchiveDispatcher) markSucceeded(ctx context.Context, jobId int) {
	db := d.DB.WithContext(ctx)
	_ = db.Model(&models.ArchiveJob{}).
		Where("id = ?", jobId).
		Updates(map[string]interface{}{
			"status":          models.ArchiveJobStatusSucceeded,
			"last_error":      nil,
			"next_attempt_at": nil,
			"locked_at":       nil,
			"locked_by":       nil,
		}).Error
}

func (d *ArchiveDispatcher) markFailed(ctx context.Context, job *models.ArchiveJob, err error) {
	db := d.DB.WithContext(ctx)
	now := time.Now().UTC()
	msg := err.Error()

	if d.MaxAttempts > 0 && job.Attempts >= d.MaxAttempts {
		_ = db.Model(&models.ArchiveJob{}).
			Where("id = ?", job.ID).
			Updates(map[string]interface{}{
				"status":          models.ArchiveJobStatusDead,
				"last_error":      &msg,
				"next_attempt_at": nil,
				"locked_at":       nil,
				"locked_by":       nil,
			}).Error

		if d.Logger != nil {
			d.Logger.WithFields(logrus.Fields{
				"field":      "ArchiveDispatcher",
				"request_id": job.RequestId,
				"job_id":     job.ID,
				"attempt":    job.Attempts,
			}).Error("archive job moved to DEAD after max attempts: " + fmt.Sprintf("%v", err))
		}
		notifyArchiveFailed(ctx, job.RequestId, msg)
		return
	}

	backoff := d.backoffFor(job.Attempts)
	// jitter up to 20% keeps concurrent workers from retrying in lockstep
	jitter := time.Duration(rand.Int63n(int64(backoff) / 5))
	next := now.Add(backoff + jitter)
	_ = db.Model(&models.ArchiveJob{}).
		Where("id = ?", job.ID).
		Updates(map[string]interface{}{
			"status":          models.ArchiveJobStatusFailed,
			"last_error":      &msg,
			"next_attempt_at": &next,
			"locked_at":       nil,
			"locked_by":       nil,
		}).Error

	if d.Logger != nil {
		d.Logger.WithFields(logrus.Fields{
			"field":           "ArchiveDispatcher",
			"request_id":      job.RequestId,
			"job_id":          job.ID,
			"attempt":         job.Attempts,
			"next_attempt_at": next.Format(time.RFC3339Nano),
		}).Error("archive upload failed: " + fmt.Sprintf("%v", err))
	}
}

// backoffFor doubles the initial backoff per attempt, capped at 30 minutes.
// With six attempts the schedule spans roughly an hour.
func (d *ArchiveDispatcher) backoffFor(attempt int) time.Duration {
	backoff := d.InitialBackoff
	for i := 1; i < attempt; i++ {
		backoff *= 2
		if backoff > 30*time.Minute {
			return 30 * time.Minute
		}
	}
	return backoff
}

// processArchiveJobForRequest gives a freshly approved request one immediate
// upload attempt instead of waiting for the poll loop. Best-effort; the
// dispatcher picks the job up on failure.
func processArchiveJobForRequest(requestId int) {
	db := config.GetDB()
	if db == nil {
		return
	}
	d := NewArchiveDispatcher(db, config.GetLogger(), SinkFromConfig())

	ctx, cancel := context.WithTimeout(context.Background(), d.AttemptTimeout)
	defer cancel()

	var job models.ArchiveJob
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.
			Where("request_id = ? AND status = ?", requestId, models.ArchiveJobStatusPending).
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			First(&job).Error; err != nil {
			return err
		}
		now := time.Now().UTC()
		job.Attempts++
		return tx.Model(&models.ArchiveJob{}).Where("id = ?", job.ID).Updates(map[string]interface{}{
			"status":    models.ArchiveJobStatusProcessing,
			"locked_at": &now,
			"locked_by": &d.DispatcherID,
			"attempts":  gorm.Expr("attempts + 1"),
		}).Error
	})
	if err != nil {
		return
	}

	if uploadErr := d.processJob(ctx, &job); uploadErr != nil {
		d.markFailed(ctx, &job, uploadErr)
		return
	}
	d.markSucceeded(ctx, job.ID)
}

// RequeueDeadArchiveJobs flips DEAD jobs back to PENDING for another round,
// after an operator fixed the underlying issue.
func RequeueDeadArchiveJobs(ctx context.Context, db *gorm.DB, requestIds []int) (int64, error) {
	now := time.Now().UTC()
	q := db.WithContext(ctx).Model(&models.ArchiveJob{}).
		Where("status = ?", models.ArchiveJobStatusDead)
	if len(requestIds) > 0 {
		q = q.Where("request_id IN ?", requestIds)
	}
	res := q.Updates(map[string]interface{}{
		"status":          models.ArchiveJobStatusPending,
		"attempts":        0,
		"last_error":      nil,
		"next_attempt_at": &now,
		"locked_at":       nil,
		"locked_by":       nil,
	})
	return res.RowsAffected, res.Error
}

func marshalLinks(links map[string]string) (string, error) {
	return utils.MarshalToJSON(links)
}
