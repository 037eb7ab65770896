package models

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// AccidentRecord stays open until its status is closed; any open accident
// forces the vehicle's derived status to accident.
type AccidentRecord struct {
	ID             int            `gorm:"primary_key" json:"id"`
	VehicleId      int            `gorm:"not null;index:idx_accident_vehicle_status" json:"vehicle_id"`
	AccidentDate   time.Time      `gorm:"not null" json:"accident_date"`
	AccidentStatus AccidentStatus `gorm:"type:varchar(20);not null;default:'open';index:idx_accident_vehicle_status" json:"accident_status"`
	Location       string         `gorm:"size:300" json:"location"`
	Description    string         `gorm:"size:1000" json:"description"`
	DriverName     string         `gorm:"size:200" json:"driver_name"`
	// share of fault assigned to our driver, 0..100
	LiabilityPercentage decimal.Decimal `gorm:"type:decimal(5,2);not null;default:0" json:"liability_percentage"`

	ClosedBy  *int       `json:"closed_by"`
	ClosedAt  *time.Time `json:"closed_at"`
	CreatedAt time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewAccident struct {
	VehicleId           int             `json:"vehicle_id" binding:"required"`
	AccidentDate        time.Time       `json:"accident_date" binding:"required"`
	Location            string          `json:"location"`
	Description         string          `json:"description"`
	DriverName          string          `json:"driver_name"`
	LiabilityPercentage decimal.Decimal `json:"liability_percentage"`
}

func (input *NewAccident) Validate() error {
	if input.LiabilityPercentage.IsNegative() || input.LiabilityPercentage.GreaterThan(decimal.NewFromInt(100)) {
		return errors.New("liability percentage must be between 0 and 100")
	}
	return nil
}

func (input *NewAccident) Record() *AccidentRecord {
	return &AccidentRecord{
		VehicleId:           input.VehicleId,
		AccidentDate:        input.AccidentDate,
		AccidentStatus:      AccidentStatusOpen,
		Location:            input.Location,
		Description:         input.Description,
		DriverName:          input.DriverName,
		LiabilityPercentage: input.LiabilityPercentage,
	}
}
