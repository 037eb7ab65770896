package workflow

import (
	"fmt"

	"gorm.io/gorm"
)

// AcquireVehicleLock serializes approvals per vehicle across instances using
// MySQL advisory locks.
// NOTE: GET_LOCK is connection-scoped, so this must be called on the same
// *gorm.DB that will do the approval transaction.
func AcquireVehicleLock(tx *gorm.DB, vehicleId int) error {
	lockName := fmt.Sprintf("vehicle:%d", vehicleId)
	var ok int
	if err := tx.Raw("SELECT GET_LOCK(?, 30)", lockName).Scan(&ok).Error; err != nil {
		return err
	}
	if ok != 1 {
		return fmt.Errorf("could not acquire vehicle lock for vehicle_id=%d", vehicleId)
	}
	return nil
}

func ReleaseVehicleLock(tx *gorm.DB, vehicleId int) {
	lockName := fmt.Sprintf("vehicle:%d", vehicleId)
	var _ok int
	_ = tx.Raw("SELECT RELEASE_LOCK(?)", lockName).Scan(&_ok).Error
}
