package models

import (
	"context"
	"errors"
	"time"

	"github.com/nuzumhq/fleet_backend/config"
)

type VehicleDocumentKind string

const (
	VehicleDocumentRegistration  VehicleDocumentKind = "registration"
	VehicleDocumentInsurance     VehicleDocumentKind = "insurance"
	VehicleDocumentInspection    VehicleDocumentKind = "inspection"
	VehicleDocumentOperatingCard VehicleDocumentKind = "operating_card"
)

// VehicleDocument tracks an expiry-bearing paper per vehicle. Updating one has
// no effect on derived state; it only feeds expiry notifications.
type VehicleDocument struct {
	ID         int                 `gorm:"primary_key" json:"id"`
	VehicleId  int                 `gorm:"not null;index:idx_vehicle_document,unique" json:"vehicle_id"`
	Kind       VehicleDocumentKind `gorm:"type:varchar(20);not null;index:idx_vehicle_document,unique" json:"kind"`
	Number     string              `gorm:"size:100" json:"number"`
	ExpiryDate time.Time           `gorm:"not null;index" json:"expiry_date"`
	UpdatedBy  *int                `json:"updated_by"`
	CreatedAt  time.Time           `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time           `gorm:"autoUpdateTime" json:"updated_at"`
}

func (k VehicleDocumentKind) ArabicLabel() string {
	switch k {
	case VehicleDocumentRegistration:
		return "رخصة السير"
	case VehicleDocumentInsurance:
		return "وثيقة التأمين"
	case VehicleDocumentInspection:
		return "الفحص الدوري"
	case VehicleDocumentOperatingCard:
		return "كرت التشغيل"
	}
	return string(k)
}

type NewVehicleDocument struct {
	VehicleId  int                 `json:"vehicle_id" binding:"required"`
	Kind       VehicleDocumentKind `json:"kind" binding:"required"`
	Number     string              `json:"number"`
	ExpiryDate time.Time           `json:"expiry_date" binding:"required"`
}

func (input *NewVehicleDocument) Validate() error {
	switch input.Kind {
	case VehicleDocumentRegistration, VehicleDocumentInsurance,
		VehicleDocumentInspection, VehicleDocumentOperatingCard:
	default:
		return errors.New("invalid vehicle document kind")
	}
	return nil
}

// UpsertVehicleDocument creates or refreshes the document of one kind for a
// vehicle. No state effect; expiry notifications pick up the new date.
func UpsertVehicleDocument(ctx context.Context, input *NewVehicleDocument, updatedBy int) (*VehicleDocument, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}

	db := config.GetDB()
	var doc VehicleDocument
	err := db.WithContext(ctx).
		Where("vehicle_id = ? AND kind = ?", input.VehicleId, input.Kind).
		First(&doc).Error
	if err != nil {
		doc = VehicleDocument{
			VehicleId:  input.VehicleId,
			Kind:       input.Kind,
			Number:     input.Number,
			ExpiryDate: input.ExpiryDate,
			UpdatedBy:  &updatedBy,
		}
		if err := db.WithContext(ctx).Create(&doc).Error; err != nil {
			return nil, err
		}
		return &doc, nil
	}

	if err := db.WithContext(ctx).Model(&doc).Updates(map[string]interface{}{
		"number":      input.Number,
		"expiry_date": input.ExpiryDate,
		"updated_by":  updatedBy,
	}).Error; err != nil {
		return nil, err
	}
	return &doc, nil
}

// ListExpiringDocuments returns documents expiring on or before the horizon,
// for the expiry notification sweep.
func ListExpiringDocuments(ctx context.Context, horizon time.Time) ([]*VehicleDocument, error) {
	db := config.GetDB()
	var docs []*VehicleDocument
	err := db.WithContext(ctx).
		Where("expiry_date <= ?", horizon).
		Order("expiry_date ASC").
		Find(&docs).Error
	if err != nil {
		return nil, err
	}
	return docs, nil
}
