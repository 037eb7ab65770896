package models

import (
	"errors"
	"time"
)

// AuthorizationRecord lets a named driver operate the vehicle outside the
// organization until the expiry date.
type AuthorizationRecord struct {
	ID               int       `gorm:"primary_key" json:"id"`
	VehicleId        int       `gorm:"not null;index" json:"vehicle_id"`
	AuthorizedDriver string    `gorm:"size:200;not null" json:"authorized_driver"`
	AuthorityName    string    `gorm:"size:200" json:"authority_name"`
	IssueDate        time.Time `gorm:"not null" json:"issue_date"`
	ExpiryDate       time.Time `gorm:"not null;index" json:"expiry_date"`
	Notes            string    `gorm:"size:1000" json:"notes"`
	CreatedAt        time.Time `gorm:"autoCreateTime" json:"created_at"`
}

type NewAuthorization struct {
	VehicleId        int       `json:"vehicle_id" binding:"required"`
	AuthorizedDriver string    `json:"authorized_driver" binding:"required"`
	AuthorityName    string    `json:"authority_name"`
	IssueDate        time.Time `json:"issue_date" binding:"required"`
	ExpiryDate       time.Time `json:"expiry_date" binding:"required"`
	Notes            string    `json:"notes"`
}

func (input *NewAuthorization) Validate() error {
	if input.AuthorizedDriver == "" {
		return errors.New("authorized driver is required")
	}
	if input.ExpiryDate.Before(input.IssueDate) {
		return errors.New("expiry date must not precede issue date")
	}
	return nil
}

func (input *NewAuthorization) Record() *AuthorizationRecord {
	return &AuthorizationRecord{
		VehicleId:        input.VehicleId,
		AuthorizedDriver: input.AuthorizedDriver,
		AuthorityName:    input.AuthorityName,
		IssueDate:        input.IssueDate,
		ExpiryDate:       input.ExpiryDate,
		Notes:            input.Notes,
	}
}
