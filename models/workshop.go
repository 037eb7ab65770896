package models

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// WorkshopRecord with a null ExitDate means the vehicle is still in the
// workshop. ExitDate must never precede EntryDate.
type WorkshopRecord struct {
	ID           int            `gorm:"primary_key" json:"id"`
	VehicleId    int            `gorm:"not null;index:idx_workshop_vehicle_created" json:"vehicle_id"`
	EntryDate    time.Time      `gorm:"not null" json:"entry_date"`
	ExitDate     *time.Time     `json:"exit_date"`
	Reason       WorkshopReason `gorm:"type:varchar(16);not null" json:"reason"`
	RepairStatus RepairStatus   `gorm:"type:varchar(20);not null;default:'in_progress'" json:"repair_status"`

	Cost         decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"cost"`
	WorkshopName string          `gorm:"size:200" json:"workshop_name"`
	Description  string          `gorm:"size:1000" json:"description"`

	CreatedAt time.Time `gorm:"autoCreateTime;index:idx_workshop_vehicle_created" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewWorkshopRecord struct {
	VehicleId    int             `json:"vehicle_id" binding:"required"`
	EntryDate    time.Time       `json:"entry_date" binding:"required"`
	Reason       WorkshopReason  `json:"reason" binding:"required"`
	Cost         decimal.Decimal `json:"cost"`
	WorkshopName string          `json:"workshop_name"`
	Description  string          `json:"description"`
}

func (input *NewWorkshopRecord) Validate() error {
	switch input.Reason {
	case WorkshopReasonMaintenance, WorkshopReasonBreakdown, WorkshopReasonAccident:
	default:
		return errors.New("invalid workshop reason")
	}
	if input.Cost.IsNegative() {
		return errors.New("cost must not be negative")
	}
	return nil
}

func (input *NewWorkshopRecord) Record() *WorkshopRecord {
	return &WorkshopRecord{
		VehicleId:    input.VehicleId,
		EntryDate:    input.EntryDate,
		Reason:       input.Reason,
		RepairStatus: RepairStatusInProgress,
		Cost:         input.Cost,
		WorkshopName: input.WorkshopName,
		Description:  input.Description,
	}
}

// ValidateExit checks the exit date against the record's entry date.
func (w *WorkshopRecord) ValidateExit(exitDate time.Time) error {
	if w.ExitDate != nil {
		return errors.New("workshop record already closed")
	}
	if exitDate.Before(w.EntryDate) {
		return errors.New("exit date must not precede entry date")
	}
	return nil
}
