package models

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// RentalRecord: at most one active rental per vehicle. Activation of a new
// rental deactivates the previous one inside the approval transaction.
type RentalRecord struct {
	ID          int             `gorm:"primary_key" json:"id"`
	VehicleId   int             `gorm:"not null;index:idx_rental_vehicle_created" json:"vehicle_id"`
	StartDate   time.Time       `gorm:"not null" json:"start_date"`
	EndDate     *time.Time      `json:"end_date"`
	MonthlyCost decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"monthly_cost"`
	LessorName  string          `gorm:"size:200" json:"lessor_name"`
	IsActive    bool            `gorm:"not null;default:false;index" json:"is_active"`
	CreatedAt   time.Time       `gorm:"autoCreateTime;index:idx_rental_vehicle_created" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewRental struct {
	VehicleId   int             `json:"vehicle_id" binding:"required"`
	StartDate   time.Time       `json:"start_date" binding:"required"`
	EndDate     *time.Time      `json:"end_date"`
	MonthlyCost decimal.Decimal `json:"monthly_cost"`
	LessorName  string          `json:"lessor_name"`
}

func (input *NewRental) Validate() error {
	if input.MonthlyCost.IsNegative() {
		return errors.New("monthly cost must not be negative")
	}
	if input.EndDate != nil && input.EndDate.Before(input.StartDate) {
		return errors.New("end date must not precede start date")
	}
	return nil
}

func (input *NewRental) Record() *RentalRecord {
	return &RentalRecord{
		VehicleId:   input.VehicleId,
		StartDate:   input.StartDate,
		EndDate:     input.EndDate,
		MonthlyCost: input.MonthlyCost,
		LessorName:  input.LessorName,
		// activated only on approval
		IsActive: false,
	}
}
