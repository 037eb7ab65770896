package workflow

import (
	"context"
	"errors"
	"time"

	"github.com/nuzumhq/fleet_backend/config"
	"github.com/nuzumhq/fleet_backend/models"
	"github.com/nuzumhq/fleet_backend/utils"
	"gorm.io/gorm"
)

// Direct commands mutate an already-approved record or the vehicle's sticky
// override, then re-run the deriver under the same locks the approval path
// uses. No new operation request is created.

// rederiveLocked recomputes and persists the derived columns; the caller must
// hold the vehicle row lock.
func rederiveLocked(tx *gorm.DB, vehicle *models.Vehicle, description string) (*DerivedState, error) {
	history, err := LoadVehicleHistory(tx, vehicle)
	if err != nil {
		return nil, err
	}
	derived := Derive(history)
	before := DerivedState{Status: vehicle.Status, CurrentDriver: vehicle.CurrentDriverName}
	if err := writeDerivedState(tx, vehicle, derived); err != nil {
		return nil, err
	}
	if err := models.SaveHistoryDerive(tx, vehicle.ID, before, derived, description); err != nil {
		return nil, err
	}
	return &derived, nil
}

func runVehicleCommand(ctx context.Context, vehicleId int,
	body func(tx *gorm.DB, vehicle *models.Vehicle) (*DerivedState, error)) (*DerivedState, error) {

	ctx, cancel := context.WithTimeout(ctx, config.OperationDeadline())
	defer cancel()

	db := config.GetDB()
	var state *DerivedState

	var err error
	for attempt := 1; attempt <= approveMaxAttempts; attempt++ {
		err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := AcquireVehicleLock(tx, vehicleId); err != nil {
				return err
			}
			defer ReleaseVehicleLock(tx, vehicleId)

			vehicle, err := lockVehicleRow(tx, vehicleId)
			if err != nil {
				return err
			}
			s, err := body(tx, vehicle)
			if err != nil {
				return err
			}
			state = s
			return nil
		})
		if err == nil {
			return state, nil
		}
		if errors.Is(err, ErrConcurrentModification) || utils.IsRetryableDBErr(err) {
			if attempt < approveMaxAttempts {
				time.Sleep(time.Duration(attempt) * 100 * time.Millisecond)
				continue
			}
			return nil, utils.ErrorStorageUnavailable
		}
		break
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return nil, utils.ErrorTimeout
	}
	return nil, err
}

// UpdateWorkshopExit sets the exit date on an approved, still-open workshop
// record and re-derives the vehicle state. The driver stays unassigned after
// exit until a new approved delivery.
func UpdateWorkshopExit(ctx context.Context, workshopRecordId int, exitDate time.Time) (*DerivedState, error) {
	if _, ok := utils.GetUserIdFromContext(ctx); !ok {
		return nil, utils.ErrorForbidden
	}

	db := config.GetDB()
	var record models.WorkshopRecord
	if err := db.WithContext(ctx).First(&record, workshopRecordId).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}

	return runVehicleCommand(ctx, record.VehicleId, func(tx *gorm.DB, vehicle *models.Vehicle) (*DerivedState, error) {
		// reload under lock
		if err := tx.First(&record, workshopRecordId).Error; err != nil {
			return nil, utils.ErrorRecordNotFound
		}

		var request models.OperationRequest
		requestStatus := models.RequestStatusApproved
		err := tx.Where("operation_type = ? AND related_record_id = ?",
			models.OperationTypeWorkshopRecord, record.ID).
			First(&request).Error
		if err == nil {
			requestStatus = request.Status
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}

		history, err := LoadVehicleHistory(tx, vehicle)
		if err != nil {
			return nil, err
		}
		if err := CheckWorkshopExit(history, &record, requestStatus, exitDate); err != nil {
			return nil, err
		}

		if err := tx.Model(&models.WorkshopRecord{}).
			Where("id = ?", record.ID).
			Updates(map[string]interface{}{
				"exit_date":     exitDate,
				"repair_status": models.RepairStatusCompleted,
			}).Error; err != nil {
			return nil, err
		}
		return rederiveLocked(tx, vehicle, "إعادة احتساب حالة المركبة بعد الخروج من الورشة")
	})
}

// CloseAccident closes an open accident and re-derives the vehicle state.
// Admin only. An earlier approved delivery stands, so the driver comes back
// with the derived status.
func CloseAccident(ctx context.Context, accidentId int) (*DerivedState, error) {
	adminId, ok := utils.GetUserIdFromContext(ctx)
	if !ok || !utils.IsAdminFromContext(ctx) {
		return nil, utils.ErrorForbidden
	}

	db := config.GetDB()
	var accident models.AccidentRecord
	if err := db.WithContext(ctx).First(&accident, accidentId).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}

	return runVehicleCommand(ctx, accident.VehicleId, func(tx *gorm.DB, vehicle *models.Vehicle) (*DerivedState, error) {
		if err := tx.First(&accident, accidentId).Error; err != nil {
			return nil, utils.ErrorRecordNotFound
		}

		history, err := LoadVehicleHistory(tx, vehicle)
		if err != nil {
			return nil, err
		}
		if err := CheckCloseAccident(history, &accident); err != nil {
			return nil, err
		}

		now := time.Now()
		if err := tx.Model(&models.AccidentRecord{}).
			Where("id = ?", accident.ID).
			Updates(map[string]interface{}{
				"accident_status": models.AccidentStatusClosed,
				"closed_by":       adminId,
				"closed_at":       now,
			}).Error; err != nil {
			return nil, err
		}
		return rederiveLocked(tx, vehicle, "إعادة احتساب حالة المركبة بعد إغلاق الحادث")
	})
}

// SetOutOfService sets the sticky administrative override. Admin only. The
// override wins over the entire history without deleting any of it.
func SetOutOfService(ctx context.Context, vehicleId int, note string) (*DerivedState, error) {
	adminId, ok := utils.GetUserIdFromContext(ctx)
	if !ok || !utils.IsAdminFromContext(ctx) {
		return nil, utils.ErrorForbidden
	}

	return runVehicleCommand(ctx, vehicleId, func(tx *gorm.DB, vehicle *models.Vehicle) (*DerivedState, error) {
		now := time.Now()
		if err := tx.Model(&models.Vehicle{}).
			Where("id = ?", vehicle.ID).
			Updates(map[string]interface{}{
				"out_of_service":        true,
				"out_of_service_note":   note,
				"out_of_service_set_by": adminId,
				"out_of_service_set_at": now,
			}).Error; err != nil {
			return nil, err
		}
		vehicle.OutOfService = true
		return rederiveLocked(tx, vehicle, "إخراج المركبة من الخدمة")
	})
}

// ClearOutOfService clears the override and re-runs the deriver, letting the
// history speak again. Admin only.
func ClearOutOfService(ctx context.Context, vehicleId int) (*DerivedState, error) {
	_, ok := utils.GetUserIdFromContext(ctx)
	if !ok || !utils.IsAdminFromContext(ctx) {
		return nil, utils.ErrorForbidden
	}

	return runVehicleCommand(ctx, vehicleId, func(tx *gorm.DB, vehicle *models.Vehicle) (*DerivedState, error) {
		if err := tx.Model(&models.Vehicle{}).
			Where("id = ?", vehicle.ID).
			Updates(map[string]interface{}{
				"out_of_service":        false,
				"out_of_service_note":   "",
				"out_of_service_set_by": nil,
				"out_of_service_set_at": nil,
			}).Error; err != nil {
			return nil, err
		}
		vehicle.OutOfService = false
		return rederiveLocked(tx, vehicle, "إعادة المركبة إلى الخدمة")
	})
}
