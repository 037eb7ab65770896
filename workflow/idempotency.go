package workflow

import (
	"errors"
	"time"

	"github.com/nuzumhq/fleet_backend/models"
	"github.com/nuzumhq/fleet_backend/utils"
	"gorm.io/gorm"
)

var ErrIdempotencyInProgress = errors.New("idempotency in progress")

// BeginCommandIdempotency inserts STARTED for (commandName, clientKey).
// If SUCCEEDED exists, returns (replay=true, storedResult) so the caller can
// return the original outcome without re-executing.
func BeginCommandIdempotency(tx *gorm.DB, commandName, clientKey string) (replay bool, result *string, err error) {
	key := models.IdempotencyKey{
		CommandName: commandName,
		ClientKey:   clientKey,
		Status:      models.IdempotencyStatusStarted,
	}
	if err := tx.Create(&key).Error; err == nil {
		return false, nil, nil
	} else if !utils.IsDuplicateKeyErr(err) {
		return false, nil, err
	}

	var existing models.IdempotencyKey
	if err := tx.Where("command_name = ? AND client_key = ?", commandName, clientKey).
		First(&existing).Error; err != nil {
		return false, nil, err
	}

	switch existing.Status {
	case models.IdempotencyStatusSucceeded:
		return true, existing.Result, nil
	case models.IdempotencyStatusStarted:
		// Another worker is currently running this command. If the row is
		// stale the worker died; reclaim it by setting STARTED again.
		if time.Since(existing.UpdatedAt) < 5*time.Minute {
			return false, nil, ErrIdempotencyInProgress
		}
		return false, nil, tx.Model(&models.IdempotencyKey{}).
			Where("id = ?", existing.ID).
			Updates(map[string]interface{}{"status": models.IdempotencyStatusStarted, "last_error": nil}).Error
	default:
		return false, nil, tx.Model(&models.IdempotencyKey{}).
			Where("id = ?", existing.ID).
			Updates(map[string]interface{}{"status": models.IdempotencyStatusStarted, "last_error": nil}).Error
	}
}

// MarkCommandSucceeded stores the serialized outcome for later replays.
func MarkCommandSucceeded(tx *gorm.DB, commandName, clientKey string, result string) error {
	return tx.Model(&models.IdempotencyKey{}).
		Where("command_name = ? AND client_key = ?", commandName, clientKey).
		Updates(map[string]interface{}{
			"status":     models.IdempotencyStatusSucceeded,
			"result":     &result,
			"last_error": nil,
		}).Error
}

func MarkCommandFailed(tx *gorm.DB, commandName, clientKey string, err error) error {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return tx.Model(&models.IdempotencyKey{}).
		Where("command_name = ? AND client_key = ?", commandName, clientKey).
		Updates(map[string]interface{}{
			"status":     models.IdempotencyStatusFailed,
			"last_error": &msg,
		}).Error
}
