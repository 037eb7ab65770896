package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nuzumhq/fleet_backend/config"
	"github.com/nuzumhq/fleet_backend/models"
	"github.com/nuzumhq/fleet_backend/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrConcurrentModification marks a vehicle row whose version moved between
// read and write. Retried inside the engine.
var ErrConcurrentModification = errors.New("concurrent modification")

const approveMaxAttempts = 3

// writeDerivedState persists the deriver output on the vehicle row, guarded
// by the optimistic lock version.
func writeDerivedState(tx *gorm.DB, vehicle *models.Vehicle, state DerivedState) error {
	res := tx.Model(&models.Vehicle{}).
		Where("id = ? AND lock_version = ?", vehicle.ID, vehicle.LockVersion).
		Updates(map[string]interface{}{
			"status":              state.Status,
			"current_driver_name": state.CurrentDriver,
			"lock_version":        gorm.Expr("lock_version + 1"),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrConcurrentModification
	}
	return nil
}

// recheckEligibility re-runs the guard for the request under approval. The
// record itself is still pending at this point, so it does not count against
// its own check.
func recheckEligibility(tx *gorm.DB, request *models.OperationRequest, history *VehicleHistory) error {
	switch request.OperationType {
	case models.OperationTypeHandover:
		var record models.HandoverRecord
		if err := tx.First(&record, request.RelatedRecordId).Error; err != nil {
			return utils.ErrorRecordNotFound
		}
		if record.Type == models.HandoverTypeDelivery {
			return CheckProposeDelivery(history)
		}
		forcedDriver, err := CheckProposeReturn(history)
		if err != nil {
			return err
		}
		// the open delivery may have changed since the return was proposed;
		// the return always closes the delivery that is open now
		if record.DriverName != forcedDriver {
			if err := tx.Model(&models.HandoverRecord{}).
				Where("id = ?", record.ID).
				Update("driver_name", forcedDriver).Error; err != nil {
				return err
			}
		}
		return nil
	case models.OperationTypeWorkshopRecord:
		return CheckProposeWorkshopEntry(history)
	case models.OperationTypeRental:
		return CheckRentalActivation(history)
	case models.OperationTypeAccident:
		return CheckProposeAccident(history)
	case models.OperationTypeExternalAuth:
		return CheckProposeAuthorization(history)
	case models.OperationTypeDocumentUpdate:
		return nil
	}
	return fmt.Errorf("unknown operation type %q", request.OperationType)
}

// applyApprovalEffects performs the per-type side effects inside the approval
// transaction. Becoming authoritative is itself the main effect for most
// types; rentals additionally swap the active record.
func applyApprovalEffects(tx *gorm.DB, request *models.OperationRequest) error {
	switch request.OperationType {
	case models.OperationTypeRental:
		// deactivate any previous active rental, then activate this one
		if err := tx.Model(&models.RentalRecord{}).
			Where("vehicle_id = ? AND is_active = ? AND id <> ?", request.VehicleId, true, request.RelatedRecordId).
			Update("is_active", false).Error; err != nil {
			return err
		}
		return tx.Model(&models.RentalRecord{}).
			Where("id = ?", request.RelatedRecordId).
			Update("is_active", true).Error
	}
	return nil
}

// autoReject flips the request to rejected with the guard's reason. Runs in
// its own transaction after the approval transaction rolled back nothing --
// it is called inside the same tx before any state was written.
func autoReject(tx *gorm.DB, request *models.OperationRequest, reviewerId int, reason string, now time.Time) error {
	from := request.Status
	if err := models.ApplyRequestTransition(request, models.RequestStatusRejected, reviewerId, reason, now); err != nil {
		return err
	}
	if err := tx.Model(&models.OperationRequest{}).
		Where("id = ?", request.ID).
		Updates(map[string]interface{}{
			"status":       request.Status,
			"reviewed_by":  request.ReviewedBy,
			"reviewed_at":  request.ReviewedAt,
			"review_notes": request.ReviewNotes,
		}).Error; err != nil {
		return err
	}
	return models.SaveHistoryTransition(tx, request.ID, from, models.RequestStatusRejected, reason)
}

// ApproveRequest locks the vehicle, re-checks eligibility, flips the request
// to approved, re-runs the deriver and writes the derived columns, all in one
// transaction. Approving an already-approved request is a no-op returning the
// current derived state. A failed re-check auto-rejects the request and
// surfaces ErrStaleEligibility.
//
// Post-commit and best-effort: archive job enqueue pickup, notifications, and
// the operation event publish.
func ApproveRequest(ctx context.Context, requestId int, notes string) (*DerivedState, error) {
	logger := config.GetLogger()
	reviewerId, ok := utils.GetUserIdFromContext(ctx)
	if !ok {
		return nil, utils.ErrorForbidden
	}
	if !utils.IsAdminFromContext(ctx) {
		return nil, utils.ErrorForbidden
	}

	ctx, cancel := context.WithTimeout(ctx, config.OperationDeadline())
	defer cancel()

	db := config.GetDB()
	var state *DerivedState
	var staleReason string
	var approvedNow bool
	var request models.OperationRequest

	var err error
	for attempt := 1; attempt <= approveMaxAttempts; attempt++ {
		state = nil
		staleReason = ""
		approvedNow = false

		err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
				First(&request, requestId).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return utils.ErrorRecordNotFound
				}
				return err
			}

			// idempotent re-approve
			if request.Status == models.RequestStatusApproved {
				vehicle, err := lockVehicleRow(tx, request.VehicleId)
				if err != nil {
					return err
				}
				state = &DerivedState{Status: vehicle.Status, CurrentDriver: vehicle.CurrentDriverName}
				return nil
			}
			if request.Status.IsTerminal() {
				return utils.ErrorConflict
			}

			if err := AcquireVehicleLock(tx, request.VehicleId); err != nil {
				return err
			}
			defer ReleaseVehicleLock(tx, request.VehicleId)

			vehicle, err := lockVehicleRow(tx, request.VehicleId)
			if err != nil {
				return err
			}
			history, err := LoadVehicleHistory(tx, vehicle)
			if err != nil {
				return err
			}

			now := time.Now()
			if err := recheckEligibility(tx, &request, history); err != nil {
				var elig *EligibilityError
				if errors.As(err, &elig) {
					staleReason = elig.Reason
					return autoReject(tx, &request, reviewerId, "أهلية غير سارية: "+elig.Reason, now)
				}
				return err
			}

			if err := applyApprovalEffects(tx, &request); err != nil {
				return err
			}

			from := request.Status
			if err := models.ApplyRequestTransition(&request, models.RequestStatusApproved, reviewerId, notes, now); err != nil {
				return err
			}
			if err := tx.Model(&models.OperationRequest{}).
				Where("id = ?", request.ID).
				Updates(map[string]interface{}{
					"status":       request.Status,
					"reviewed_by":  request.ReviewedBy,
					"reviewed_at":  request.ReviewedAt,
					"review_notes": request.ReviewNotes,
				}).Error; err != nil {
				return err
			}
			if err := models.SaveHistoryTransition(tx, request.ID, from, models.RequestStatusApproved, notes); err != nil {
				return err
			}

			// the request is approved inside this tx, so a fresh load sees
			// the record as authoritative
			history, err = LoadVehicleHistory(tx, vehicle)
			if err != nil {
				return err
			}
			derived := Derive(history)
			before := DerivedState{Status: vehicle.Status, CurrentDriver: vehicle.CurrentDriverName}
			if err := writeDerivedState(tx, vehicle, derived); err != nil {
				return err
			}
			if err := models.SaveHistoryDerive(tx, vehicle.ID, before, derived,
				"إعادة احتساب حالة المركبة بعد اعتماد الطلب"); err != nil {
				return err
			}

			// the job row commits or rolls back with the approval, so an
			// approved request always has an archive job to account for it
			if err := models.EnqueueArchiveJob(tx, request.ID, vehicle.ID); err != nil {
				return err
			}

			state = &derived
			approvedNow = true
			return nil
		})

		if err == nil {
			break
		}
		if errors.Is(err, ErrConcurrentModification) || utils.IsRetryableDBErr(err) {
			if attempt < approveMaxAttempts {
				time.Sleep(time.Duration(attempt) * 100 * time.Millisecond)
				continue
			}
			return nil, utils.ErrorStorageUnavailable
		}
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, utils.ErrorTimeout
		}
		return nil, err
	}

	if staleReason != "" {
		notifyTerminal(ctx, request.ID, models.NotificationRequestRejected)
		return nil, fmt.Errorf("%w: %s", ErrStaleEligibility, staleReason)
	}

	if approvedNow {
		notifyTerminal(ctx, request.ID, models.NotificationRequestApproved)
		publishTerminalEvent(ctx, &request, state)
		// the approval is already final; the upload itself is queued work
		logger.WithFields(map[string]interface{}{
			"request_id": request.ID,
			"vehicle_id": request.VehicleId,
		}).Warn("archive deferred: upload queued for background processing")
		if config.ArchiveDirectProcessing() {
			go processArchiveJobForRequest(request.ID)
		}
	}
	return state, nil
}
