package models

import (
	"context"
	"time"

	"github.com/nuzumhq/fleet_backend/config"
	"github.com/nuzumhq/fleet_backend/utils"
)

// Vehicle carries two derived columns, Status and CurrentDriverName. They are
// written exclusively by the workflow engine after it re-runs the deriver;
// nothing else may touch them. OutOfService is the sticky administrative
// override: while set, the deriver reports out_of_service regardless of
// history.
type Vehicle struct {
	ID          int           `gorm:"primary_key" json:"id"`
	PlateNumber string        `gorm:"size:32;not null;uniqueIndex" json:"plate_number"`
	Make        string        `gorm:"size:100" json:"make"`
	Model       string        `gorm:"size:100" json:"model"`
	Year        int           `json:"year"`
	Color       string        `gorm:"size:50" json:"color"`
	Status      VehicleStatus `gorm:"type:varchar(20);not null;default:'available';index" json:"status"`
	// CurrentDriverName is a snapshot of the latest authoritative delivery's
	// driver; empty when nobody holds the vehicle.
	CurrentDriverName string `gorm:"size:200" json:"current_driver_name"`

	OutOfService      bool       `gorm:"not null;default:false" json:"out_of_service"`
	OutOfServiceNote  string     `gorm:"size:500" json:"out_of_service_note"`
	OutOfServiceSetBy *int       `json:"out_of_service_set_by"`
	OutOfServiceSetAt *time.Time `json:"out_of_service_set_at"`

	// LockVersion backs optimistic detection of concurrent modification on
	// the row between read and write.
	LockVersion int `gorm:"not null;default:0" json:"-"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewVehicle struct {
	PlateNumber string `json:"plate_number" binding:"required"`
	Make        string `json:"make"`
	Model       string `json:"model"`
	Year        int    `json:"year"`
	Color       string `json:"color"`
}

func (input *NewVehicle) validate(ctx context.Context, id int) error {
	if err := utils.ValidateStruct(input); err != nil {
		return err
	}
	if err := utils.ValidateUnique[Vehicle](ctx, "plate_number", input.PlateNumber, id); err != nil {
		return err
	}
	return nil
}

func CreateVehicle(ctx context.Context, input *NewVehicle) (*Vehicle, error) {
	if err := input.validate(ctx, 0); err != nil {
		return nil, err
	}

	db := config.GetDB()
	vehicle := Vehicle{
		PlateNumber: input.PlateNumber,
		Make:        input.Make,
		Model:       input.Model,
		Year:        input.Year,
		Color:       input.Color,
		Status:      VehicleStatusAvailable,
	}
	if err := db.WithContext(ctx).Create(&vehicle).Error; err != nil {
		return nil, err
	}
	return &vehicle, nil
}

func UpdateVehicle(ctx context.Context, id int, input *NewVehicle) (*Vehicle, error) {
	vehicle, err := utils.FetchModel[Vehicle](ctx, id)
	if err != nil {
		return nil, err
	}
	if err := input.validate(ctx, id); err != nil {
		return nil, err
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Model(vehicle).Updates(map[string]interface{}{
		"PlateNumber": input.PlateNumber,
		"Make":        input.Make,
		"Model":       input.Model,
		"Year":        input.Year,
		"Color":       input.Color,
	}).Error; err != nil {
		return nil, err
	}
	return vehicle, nil
}

func GetVehicle(ctx context.Context, id int) (*Vehicle, error) {
	return utils.FetchModel[Vehicle](ctx, id)
}

func GetVehicleByPlate(ctx context.Context, plate string) (*Vehicle, error) {
	db := config.GetDB()
	var vehicle Vehicle
	if err := db.WithContext(ctx).Where("plate_number = ?", plate).First(&vehicle).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	return &vehicle, nil
}

func ListVehiclesByStatus(ctx context.Context, status VehicleStatus) ([]*Vehicle, error) {
	db := config.GetDB()
	var vehicles []*Vehicle
	q := db.WithContext(ctx).Order("plate_number ASC")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if err := q.Find(&vehicles).Error; err != nil {
		return nil, err
	}
	return vehicles, nil
}
