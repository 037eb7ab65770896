package models

import (
	"context"
	"errors"
	"time"

	"github.com/nuzumhq/fleet_backend/config"
	"github.com/nuzumhq/fleet_backend/utils"
)

type UserRole string

const (
	UserRoleAdmin UserRole = "admin"
	UserRoleStaff UserRole = "staff"
)

type User struct {
	ID           int       `gorm:"primary_key" json:"id"`
	Username     string    `gorm:"size:100;not null;uniqueIndex" json:"username"`
	Email        string    `gorm:"size:255;not null;uniqueIndex" json:"email"`
	Name         string    `gorm:"size:100" json:"name"`
	PasswordHash string    `gorm:"size:255;not null" json:"-"`
	Role         UserRole  `gorm:"type:varchar(16);not null;default:'staff';index" json:"role"`
	IsFleetAdmin bool      `gorm:"not null;default:false" json:"is_fleet_admin"`
	IsActive     *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewUser struct {
	Username     string   `json:"username" binding:"required"`
	Email        string   `json:"email" binding:"required,email"`
	Name         string   `json:"name"`
	Password     string   `json:"password" binding:"required,min=8"`
	Role         UserRole `json:"role"`
	IsFleetAdmin bool     `json:"is_fleet_admin"`
}

func (u *User) IsAdmin() bool {
	return u.Role == UserRoleAdmin
}

func CreateUser(ctx context.Context, input *NewUser) (*User, error) {
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	if !utils.IsValidEmail(input.Email) {
		return nil, errors.New("invalid email")
	}
	if err := utils.ValidateUnique[User](ctx, "username", input.Username, 0); err != nil {
		return nil, err
	}
	if err := utils.ValidateUnique[User](ctx, "email", input.Email, 0); err != nil {
		return nil, err
	}

	hashed, err := utils.HashPassword(input.Password)
	if err != nil {
		return nil, err
	}
	role := input.Role
	if role == "" {
		role = UserRoleStaff
	}

	db := config.GetDB()
	user := User{
		Username:     input.Username,
		Email:        input.Email,
		Name:         input.Name,
		PasswordHash: string(hashed),
		Role:         role,
		IsFleetAdmin: input.IsFleetAdmin,
		IsActive:     utils.NewTrue(),
	}
	if err := db.WithContext(ctx).Create(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func AuthenticateUser(ctx context.Context, username, password string) (*User, error) {
	db := config.GetDB()
	var user User
	if err := db.WithContext(ctx).Where("username = ?", username).First(&user).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	if user.IsActive == nil || !*user.IsActive {
		return nil, utils.ErrorForbidden
	}
	if err := utils.ComparePassword(user.PasswordHash, password); err != nil {
		return nil, utils.ErrorForbidden
	}
	return &user, nil
}

func GetUser(ctx context.Context, id int) (*User, error) {
	return utils.FetchModel[User](ctx, id)
}

// ListAdmins returns administrators for proposal fan-out.
func ListAdmins(ctx context.Context) ([]*User, error) {
	db := config.GetDB()
	var admins []*User
	err := db.WithContext(ctx).
		Where("role = ? AND is_active = 1", UserRoleAdmin).
		Find(&admins).Error
	if err != nil {
		return nil, err
	}
	return admins, nil
}

// ListFleetAdmins returns fleet administrators; accidents fan out to them.
func ListFleetAdmins(ctx context.Context) ([]*User, error) {
	db := config.GetDB()
	var users []*User
	err := db.WithContext(ctx).
		Where("is_fleet_admin = 1 AND is_active = 1").
		Find(&users).Error
	if err != nil {
		return nil, err
	}
	return users, nil
}
