package models

import (
	"errors"
	"time"
)

// HandoverRecord captures the physical transfer of a vehicle to or from a
// driver. Once its operation request is approved, the record is immutable.
type HandoverRecord struct {
	ID           int          `gorm:"primary_key" json:"id"`
	VehicleId    int          `gorm:"not null;index:idx_handover_vehicle_created" json:"vehicle_id"`
	Type         HandoverType `gorm:"type:varchar(16);not null" json:"type"`
	HandoverDate time.Time    `gorm:"not null" json:"handover_date"`
	HandoverTime string       `gorm:"size:8" json:"handover_time"`
	Mileage      int          `gorm:"not null" json:"mileage"`

	DriverEmployeeId     *int   `json:"driver_employee_id"`
	DriverName           string `gorm:"size:200;not null" json:"driver_name"`
	SupervisorEmployeeId *int   `json:"supervisor_employee_id"`

	FuelLevel string `gorm:"size:16" json:"fuel_level"`

	// equipment / condition checklist
	HasSpareTire        bool `gorm:"not null;default:false" json:"has_spare_tire"`
	HasFireExtinguisher bool `gorm:"not null;default:false" json:"has_fire_extinguisher"`
	HasFirstAidKit      bool `gorm:"not null;default:false" json:"has_first_aid_kit"`
	HasWarningTriangle  bool `gorm:"not null;default:false" json:"has_warning_triangle"`
	HasJack             bool `gorm:"not null;default:false" json:"has_jack"`
	BodyIntact          bool `gorm:"not null;default:true" json:"body_intact"`
	TiresIntact         bool `gorm:"not null;default:true" json:"tires_intact"`

	Notes     string    `gorm:"size:1000" json:"notes"`
	CreatedAt time.Time `gorm:"autoCreateTime;index:idx_handover_vehicle_created" json:"created_at"`
}

type NewHandover struct {
	VehicleId    int          `json:"vehicle_id" binding:"required"`
	Type         HandoverType `json:"type" binding:"required"`
	HandoverDate time.Time    `json:"handover_date" binding:"required"`
	HandoverTime string       `json:"handover_time"`
	Mileage      int          `json:"mileage"`

	DriverEmployeeId     *int   `json:"driver_employee_id"`
	DriverName           string `json:"driver_name"`
	SupervisorEmployeeId *int   `json:"supervisor_employee_id"`

	FuelLevel string `json:"fuel_level"`

	HasSpareTire        bool `json:"has_spare_tire"`
	HasFireExtinguisher bool `json:"has_fire_extinguisher"`
	HasFirstAidKit      bool `json:"has_first_aid_kit"`
	HasWarningTriangle  bool `json:"has_warning_triangle"`
	HasJack             bool `json:"has_jack"`
	BodyIntact          bool `json:"body_intact"`
	TiresIntact         bool `json:"tires_intact"`

	Notes string `json:"notes"`
}

func (input *NewHandover) Validate() error {
	if input.Type != HandoverTypeDelivery && input.Type != HandoverTypeReturn {
		return errors.New("handover type must be delivery or return")
	}
	if input.Mileage < 0 {
		return errors.New("mileage must not be negative")
	}
	if input.Type == HandoverTypeDelivery && input.DriverName == "" && input.DriverEmployeeId == nil {
		return errors.New("delivery requires a driver")
	}
	return nil
}

func (input *NewHandover) Record() *HandoverRecord {
	return &HandoverRecord{
		VehicleId:            input.VehicleId,
		Type:                 input.Type,
		HandoverDate:         input.HandoverDate,
		HandoverTime:         input.HandoverTime,
		Mileage:              input.Mileage,
		DriverEmployeeId:     input.DriverEmployeeId,
		DriverName:           input.DriverName,
		SupervisorEmployeeId: input.SupervisorEmployeeId,
		FuelLevel:            input.FuelLevel,
		HasSpareTire:         input.HasSpareTire,
		HasFireExtinguisher:  input.HasFireExtinguisher,
		HasFirstAidKit:       input.HasFirstAidKit,
		HasWarningTriangle:   input.HasWarningTriangle,
		HasJack:              input.HasJack,
		BodyIntact:           input.BodyIntact,
		TiresIntact:          input.TiresIntact,
		Notes:                input.Notes,
	}
}
