package models

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/nuzumhq/fleet_backend/config"
	"github.com/nuzumhq/fleet_backend/utils"
	"gorm.io/gorm"
)

// History is the append-only audit trail. Every workflow decision and every
// derived vehicle-state write lands here.
type History struct {
	ID            int       `gorm:"primary_key" json:"id"`
	ActionType    string    `gorm:"size:20;not null" json:"action_type" binding:"required"`
	Before        string    `gorm:"type:text" json:"before"`
	After         string    `gorm:"type:text" json:"after"`
	Description   string    `gorm:"type:text;not null" json:"description"`
	ReferenceID   int       `gorm:"index" json:"reference_id"`
	ReferenceType string    `gorm:"size:255" json:"reference_type"`
	UserId        int       `gorm:"index;not null" json:"user_id"`
	UserName      string    `gorm:"size:100" json:"user_name"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func createHistory(tx *gorm.DB,
	actionType string,
	referenceId int,
	referenceType string,
	before interface{},
	after interface{},
	description string) (err error) {

	var history History

	b, _ := json.Marshal(before)
	a, _ := json.Marshal(after)

	ctx := tx.Statement.Context
	userId, ok := utils.GetUserIdFromContext(ctx)
	if !ok {
		return errors.New("user id is required")
	}
	userName, _ := utils.GetUserNameFromContext(ctx)

	history.ActionType = actionType
	history.Before = string(b)
	history.After = string(a)
	history.Description = description
	history.ReferenceID = referenceId
	history.ReferenceType = referenceType
	history.UserId = userId
	history.UserName = userName

	err = tx.Create(&history).Error
	return err
}

func SaveHistoryCreate(tx *gorm.DB, id int, referenceType string, obj interface{}, description string) error {
	return createHistory(tx, "CREATE", id, referenceType, nil, obj, description)
}

// SaveHistoryTransition records a request status change with explicit
// before/after values.
func SaveHistoryTransition(tx *gorm.DB, requestId int, from, to RequestStatus, description string) error {
	return createHistory(tx, "TRANSITION", requestId, "operation_requests", string(from), string(to), description)
}

// SaveHistoryDerive records a vehicle-state recompute.
func SaveHistoryDerive(tx *gorm.DB, vehicleId int, before, after interface{}, description string) error {
	return createHistory(tx, "DERIVE", vehicleId, "vehicles", before, after, description)
}

func GetHistory(ctx context.Context, id int) (*History, error) {

	db := config.GetDB()
	var result History

	err := db.WithContext(ctx).First(&result, id).Error
	if err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	return &result, nil
}

func GetHistories(ctx context.Context, referenceId *int, referenceType *string, userId *int) ([]*History, error) {

	db := config.GetDB()
	var results []*History

	dbCtx := db.WithContext(ctx)
	if referenceId != nil && *referenceId > 0 {
		dbCtx = dbCtx.Where("reference_id = ?", referenceId)
	}
	if referenceType != nil && len(*referenceType) > 0 {
		dbCtx = dbCtx.Where("reference_type = ?", referenceType)
	}
	if userId != nil && *userId > 0 {
		dbCtx = dbCtx.Where("user_id = ?", userId)
	}
	err := dbCtx.Order("created_at DESC").Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}
