package models

import (
	"context"
	"time"

	"github.com/nuzumhq/fleet_backend/config"
	"github.com/nuzumhq/fleet_backend/utils"
)

type Employee struct {
	ID         int            `gorm:"primary_key" json:"id"`
	EmployeeId string         `gorm:"size:50;not null;uniqueIndex" json:"employee_id"`
	NationalId string         `gorm:"size:50;index" json:"national_id"`
	Name       string         `gorm:"size:200;not null" json:"name"`
	Mobile     string         `gorm:"size:32" json:"mobile"`
	Email      string         `gorm:"size:255" json:"email"`
	Department string         `gorm:"size:100" json:"department"`
	Status     EmployeeStatus `gorm:"type:varchar(16);not null;default:'active';index" json:"status"`
	CreatedAt  time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewEmployee struct {
	EmployeeId string `json:"employee_id" binding:"required"`
	NationalId string `json:"national_id"`
	Name       string `json:"name" binding:"required"`
	Mobile     string `json:"mobile"`
	Email      string `json:"email"`
	Department string `json:"department"`
}

func (input *NewEmployee) validate(ctx context.Context, id int) error {
	if err := utils.ValidateStruct(input); err != nil {
		return err
	}
	if err := utils.ValidateUnique[Employee](ctx, "employee_id", input.EmployeeId, id); err != nil {
		return err
	}
	return nil
}

func CreateEmployee(ctx context.Context, input *NewEmployee) (*Employee, error) {
	if err := input.validate(ctx, 0); err != nil {
		return nil, err
	}

	mobile := input.Mobile
	if mobile != "" {
		normalized, err := utils.ValidatePhoneNumber(mobile, "")
		if err != nil {
			return nil, err
		}
		mobile = normalized
	}

	db := config.GetDB()
	employee := Employee{
		EmployeeId: input.EmployeeId,
		NationalId: input.NationalId,
		Name:       input.Name,
		Mobile:     mobile,
		Email:      input.Email,
		Department: input.Department,
		Status:     EmployeeStatusActive,
	}
	if err := db.WithContext(ctx).Create(&employee).Error; err != nil {
		return nil, err
	}
	return &employee, nil
}

func UpdateEmployee(ctx context.Context, id int, input *NewEmployee) (*Employee, error) {
	employee, err := utils.FetchModel[Employee](ctx, id)
	if err != nil {
		return nil, err
	}
	if err := input.validate(ctx, id); err != nil {
		return nil, err
	}

	mobile := input.Mobile
	if mobile != "" {
		normalized, err := utils.ValidatePhoneNumber(mobile, "")
		if err != nil {
			return nil, err
		}
		mobile = normalized
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Model(employee).Updates(map[string]interface{}{
		"EmployeeId": input.EmployeeId,
		"NationalId": input.NationalId,
		"Name":       input.Name,
		"Mobile":     mobile,
		"Email":      input.Email,
		"Department": input.Department,
	}).Error; err != nil {
		return nil, err
	}
	return employee, nil
}

func SetEmployeeStatus(ctx context.Context, id int, status EmployeeStatus) (*Employee, error) {
	employee, err := utils.FetchModel[Employee](ctx, id)
	if err != nil {
		return nil, err
	}
	db := config.GetDB()
	if err := db.WithContext(ctx).Model(employee).Update("Status", status).Error; err != nil {
		return nil, err
	}
	return employee, nil
}

func GetEmployee(ctx context.Context, id int) (*Employee, error) {
	return utils.FetchModel[Employee](ctx, id)
}
