package workflow

import (
	"context"
	"errors"
	"time"

	"github.com/nuzumhq/fleet_backend/config"
	"github.com/nuzumhq/fleet_backend/models"
	"github.com/nuzumhq/fleet_backend/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrStaleEligibility marks an approval whose re-check failed; the request
// was auto-rejected inside the same transaction.
var ErrStaleEligibility = errors.New("stale eligibility")

// ProposeMeta carries the request envelope common to every propose command.
type ProposeMeta struct {
	Title          string                 `json:"title"`
	Description    string                 `json:"description"`
	Priority       models.RequestPriority `json:"priority"`
	IdempotencyKey string                 `json:"idempotency_key"`
}

// ProposeResult is what every propose command returns: the tentative record
// and its pending request.
type ProposeResult struct {
	RecordId  int `json:"record_id"`
	RequestId int `json:"request_id"`
}

func (m *ProposeMeta) priorityOrDefault() models.RequestPriority {
	if m.Priority == "" {
		return models.PriorityNormal
	}
	return m.Priority
}

// lockVehicleRow reads the vehicle under FOR UPDATE so the deriver observes a
// consistent history for the rest of the transaction.
func lockVehicleRow(tx *gorm.DB, vehicleId int) (*models.Vehicle, error) {
	var vehicle models.Vehicle
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&vehicle, vehicleId).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &vehicle, nil
}

// createPendingRequest writes the pending OperationRequest for a freshly
// created record. A duplicate on (operation_type, related_record_id) means a
// request already exists for that record.
func createPendingRequest(tx *gorm.DB, opType models.OperationType, recordId, vehicleId int, meta *ProposeMeta, requesterId int, now time.Time) (*models.OperationRequest, error) {
	request := models.OperationRequest{
		OperationType:   opType,
		RelatedRecordId: recordId,
		VehicleId:       vehicleId,
		Title:           meta.Title,
		Description:     meta.Description,
		Priority:        meta.priorityOrDefault(),
		Status:          models.RequestStatusPending,
		RequestedBy:     requesterId,
		RequestedAt:     now,
	}
	if err := tx.Create(&request).Error; err != nil {
		if utils.IsDuplicateKeyErr(err) {
			return nil, utils.ErrorConflict
		}
		return nil, err
	}
	if err := models.SaveHistoryCreate(tx, request.ID, "operation_requests", &request,
		"طلب "+opType.ArabicLabel()); err != nil {
		return nil, err
	}
	return &request, nil
}

// runPropose wraps the shared propose plumbing: deadline, optional command
// idempotency with result replay, one transaction, post-commit notify.
func runPropose(ctx context.Context, commandName, idemKey string,
	body func(tx *gorm.DB) (*ProposeResult, error)) (*ProposeResult, error) {

	ctx, cancel := context.WithTimeout(ctx, config.OperationDeadline())
	defer cancel()

	db := config.GetDB()
	var result *ProposeResult

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if idemKey != "" {
			replay, stored, err := BeginCommandIdempotency(tx, commandName, idemKey)
			if err != nil {
				return err
			}
			if replay && stored != nil {
				var prior ProposeResult
				if err := utils.UnmarshalFromJSON([]byte(*stored), &prior); err != nil {
					return err
				}
				result = &prior
				return nil
			}
		}

		r, err := body(tx)
		if err != nil {
			return err
		}
		result = r

		if idemKey != "" {
			serialized, err := utils.MarshalToJSON(result)
			if err != nil {
				return err
			}
			if err := MarkCommandSucceeded(tx, commandName, idemKey, serialized); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, utils.ErrorTimeout
		}
		return nil, err
	}
	return result, nil
}

// ProposeHandover writes a tentative handover record plus its pending
// request. No vehicle state changes until approval. Return handovers get the
// driver forced to the open delivery's driver.
func ProposeHandover(ctx context.Context, input *models.NewHandover, meta *ProposeMeta) (*ProposeResult, error) {
	logger := config.GetLogger()
	requesterId, ok := utils.GetUserIdFromContext(ctx)
	if !ok {
		return nil, utils.ErrorForbidden
	}
	if err := input.Validate(); err != nil {
		return nil, err
	}

	result, err := runPropose(ctx, "ProposeHandover", meta.IdempotencyKey, func(tx *gorm.DB) (*ProposeResult, error) {
		vehicle, err := lockVehicleRow(tx, input.VehicleId)
		if err != nil {
			return nil, err
		}
		history, err := LoadVehicleHistory(tx, vehicle)
		if err != nil {
			return nil, err
		}

		if input.Type == models.HandoverTypeDelivery {
			if err := CheckProposeDelivery(history); err != nil {
				return nil, err
			}
		} else {
			driver, err := CheckProposeReturn(history)
			if err != nil {
				return nil, err
			}
			input.DriverName = driver
		}

		record := input.Record()
		if err := tx.Create(record).Error; err != nil {
			return nil, err
		}
		request, err := createPendingRequest(tx, models.OperationTypeHandover, record.ID, vehicle.ID, meta, requesterId, time.Now())
		if err != nil {
			return nil, err
		}
		return &ProposeResult{RecordId: record.ID, RequestId: request.ID}, nil
	})
	if err != nil {
		return nil, err
	}

	notifyProposed(ctx, result.RequestId)
	if logger != nil {
		logger.WithField("request_id", result.RequestId).Info("handover proposed")
	}
	return result, nil
}

// ProposeWorkshopEntry writes a tentative workshop record plus its pending
// request.
func ProposeWorkshopEntry(ctx context.Context, input *models.NewWorkshopRecord, meta *ProposeMeta) (*ProposeResult, error) {
	requesterId, ok := utils.GetUserIdFromContext(ctx)
	if !ok {
		return nil, utils.ErrorForbidden
	}
	if err := input.Validate(); err != nil {
		return nil, err
	}

	result, err := runPropose(ctx, "ProposeWorkshopEntry", meta.IdempotencyKey, func(tx *gorm.DB) (*ProposeResult, error) {
		vehicle, err := lockVehicleRow(tx, input.VehicleId)
		if err != nil {
			return nil, err
		}
		history, err := LoadVehicleHistory(tx, vehicle)
		if err != nil {
			return nil, err
		}
		if err := CheckProposeWorkshopEntry(history); err != nil {
			return nil, err
		}

		record := input.Record()
		if err := tx.Create(record).Error; err != nil {
			return nil, err
		}
		request, err := createPendingRequest(tx, models.OperationTypeWorkshopRecord, record.ID, vehicle.ID, meta, requesterId, time.Now())
		if err != nil {
			return nil, err
		}
		return &ProposeResult{RecordId: record.ID, RequestId: request.ID}, nil
	})
	if err != nil {
		return nil, err
	}
	notifyProposed(ctx, result.RequestId)
	return result, nil
}

// ProposeRentalActivation writes an inactive rental plus its pending request;
// approval flips it active and deactivates any previous one.
func ProposeRentalActivation(ctx context.Context, input *models.NewRental, meta *ProposeMeta) (*ProposeResult, error) {
	requesterId, ok := utils.GetUserIdFromContext(ctx)
	if !ok {
		return nil, utils.ErrorForbidden
	}
	if err := input.Validate(); err != nil {
		return nil, err
	}

	result, err := runPropose(ctx, "ProposeRentalActivation", meta.IdempotencyKey, func(tx *gorm.DB) (*ProposeResult, error) {
		vehicle, err := lockVehicleRow(tx, input.VehicleId)
		if err != nil {
			return nil, err
		}
		history, err := LoadVehicleHistory(tx, vehicle)
		if err != nil {
			return nil, err
		}
		if err := CheckRentalActivation(history); err != nil {
			return nil, err
		}

		record := input.Record()
		if err := tx.Create(record).Error; err != nil {
			return nil, err
		}
		request, err := createPendingRequest(tx, models.OperationTypeRental, record.ID, vehicle.ID, meta, requesterId, time.Now())
		if err != nil {
			return nil, err
		}
		return &ProposeResult{RecordId: record.ID, RequestId: request.ID}, nil
	})
	if err != nil {
		return nil, err
	}
	notifyProposed(ctx, result.RequestId)
	return result, nil
}

// RecordAccident writes an open accident record plus its pending request.
// Recording is never blocked by the current state.
func RecordAccident(ctx context.Context, input *models.NewAccident, meta *ProposeMeta) (*ProposeResult, error) {
	requesterId, ok := utils.GetUserIdFromContext(ctx)
	if !ok {
		return nil, utils.ErrorForbidden
	}
	if err := input.Validate(); err != nil {
		return nil, err
	}

	result, err := runPropose(ctx, "RecordAccident", meta.IdempotencyKey, func(tx *gorm.DB) (*ProposeResult, error) {
		vehicle, err := lockVehicleRow(tx, input.VehicleId)
		if err != nil {
			return nil, err
		}
		history, err := LoadVehicleHistory(tx, vehicle)
		if err != nil {
			return nil, err
		}
		if err := CheckProposeAccident(history); err != nil {
			return nil, err
		}

		record := input.Record()
		if err := tx.Create(record).Error; err != nil {
			return nil, err
		}
		request, err := createPendingRequest(tx, models.OperationTypeAccident, record.ID, vehicle.ID, meta, requesterId, time.Now())
		if err != nil {
			return nil, err
		}
		return &ProposeResult{RecordId: record.ID, RequestId: request.ID}, nil
	})
	if err != nil {
		return nil, err
	}
	notifyProposed(ctx, result.RequestId)
	return result, nil
}

// ProposeAuthorization writes an external authorization record plus its
// pending request. No state effect on approval beyond the archive.
func ProposeAuthorization(ctx context.Context, input *models.NewAuthorization, meta *ProposeMeta) (*ProposeResult, error) {
	requesterId, ok := utils.GetUserIdFromContext(ctx)
	if !ok {
		return nil, utils.ErrorForbidden
	}
	if err := input.Validate(); err != nil {
		return nil, err
	}

	result, err := runPropose(ctx, "ProposeAuthorization", meta.IdempotencyKey, func(tx *gorm.DB) (*ProposeResult, error) {
		vehicle, err := lockVehicleRow(tx, input.VehicleId)
		if err != nil {
			return nil, err
		}
		history, err := LoadVehicleHistory(tx, vehicle)
		if err != nil {
			return nil, err
		}
		if err := CheckProposeAuthorization(history); err != nil {
			return nil, err
		}

		record := input.Record()
		if err := tx.Create(record).Error; err != nil {
			return nil, err
		}
		request, err := createPendingRequest(tx, models.OperationTypeExternalAuth, record.ID, vehicle.ID, meta, requesterId, time.Now())
		if err != nil {
			return nil, err
		}
		return &ProposeResult{RecordId: record.ID, RequestId: request.ID}, nil
	})
	if err != nil {
		return nil, err
	}
	notifyProposed(ctx, result.RequestId)
	return result, nil
}
