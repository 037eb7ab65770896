package workflow

import (
	"context"
	"errors"

	"github.com/nuzumhq/fleet_backend/config"
	"github.com/nuzumhq/fleet_backend/models"
	"github.com/nuzumhq/fleet_backend/utils"
	"gorm.io/gorm"
)

// VehicleStateView is the read-side answer for one vehicle: the persisted
// derived columns plus the Arabic label used at the presentation boundary.
type VehicleStateView struct {
	VehicleId     int                  `json:"vehicle_id"`
	PlateNumber   string               `json:"plate_number"`
	Status        models.VehicleStatus `json:"status"`
	StatusLabelAr string               `json:"status_label_ar"`
	CurrentDriver string               `json:"current_driver"`
	OutOfService  bool                 `json:"out_of_service"`
}

// GetVehicleState returns the persisted derived state. The columns are only
// ever written by the engine after a derive, so no recompute happens here.
func GetVehicleState(ctx context.Context, vehicleId int) (*VehicleStateView, error) {
	vehicle, err := models.GetVehicle(ctx, vehicleId)
	if err != nil {
		return nil, err
	}
	return &VehicleStateView{
		VehicleId:     vehicle.ID,
		PlateNumber:   vehicle.PlateNumber,
		Status:        vehicle.Status,
		StatusLabelAr: vehicle.Status.ArabicLabel(),
		CurrentDriver: vehicle.CurrentDriverName,
		OutOfService:  vehicle.OutOfService,
	}, nil
}

// RequestFilter narrows ListOperationRequests. Zero values mean "any".
type RequestFilter struct {
	VehicleId     int
	Status        models.RequestStatus
	OperationType models.OperationType
	RequestedBy   int
	Limit         int
}

// ListOperationRequests returns requests ordered by priority (urgent first)
// then oldest first. Priority affects listing only, never transitions.
func ListOperationRequests(ctx context.Context, filter RequestFilter) ([]models.OperationRequest, error) {
	db := config.GetDB()

	q := db.WithContext(ctx).Model(&models.OperationRequest{})
	if filter.VehicleId > 0 {
		q = q.Where("vehicle_id = ?", filter.VehicleId)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.OperationType != "" {
		q = q.Where("operation_type = ?", filter.OperationType)
	}
	if filter.RequestedBy > 0 {
		q = q.Where("requested_by = ?", filter.RequestedBy)
	}
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	var requests []models.OperationRequest
	err := q.Order("FIELD(priority, 'urgent', 'high', 'normal', 'low'), requested_at ASC, id ASC").
		Limit(limit).
		Find(&requests).Error
	if err != nil {
		return nil, err
	}
	return requests, nil
}

func GetOperationRequest(ctx context.Context, id int) (*models.OperationRequest, error) {
	db := config.GetDB()
	var request models.OperationRequest
	if err := db.WithContext(ctx).First(&request, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &request, nil
}
