// seed-admin creates or updates the bootstrap admin user and runs the schema
// migration. Username and password come from env so no credential lives in
// the binary.
//
// Usage:
//
//	DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... \
//	SEED_ADMIN_USERNAME=admin SEED_ADMIN_PASSWORD=... SEED_ADMIN_EMAIL=admin@example.com \
//	go run ./cmd/seed-admin
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/nuzumhq/fleet_backend/config"
	"github.com/nuzumhq/fleet_backend/models"
	"github.com/nuzumhq/fleet_backend/utils"
	"gorm.io/gorm"
)

func main() {
	username := os.Getenv("SEED_ADMIN_USERNAME")
	password := os.Getenv("SEED_ADMIN_PASSWORD")
	email := os.Getenv("SEED_ADMIN_EMAIL")
	if username == "" || password == "" || email == "" {
		fmt.Fprintln(os.Stderr, "SEED_ADMIN_USERNAME, SEED_ADMIN_PASSWORD and SEED_ADMIN_EMAIL are required")
		os.Exit(1)
	}

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}
	models.MigrateTable()

	ctx := context.Background()
	ctx = utils.SetUserIdInContext(ctx, 1)
	ctx = utils.SetUserNameInContext(ctx, "seed")
	ctx = utils.SetIsAdminInContext(ctx, true)

	hashed, err := utils.HashPassword(password)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to hash password: %v\n", err)
		os.Exit(1)
	}

	var existing models.User
	err = db.WithContext(ctx).Where("username = ?", username).First(&existing).Error
	if err != nil {
		if err != gorm.ErrRecordNotFound {
			fmt.Fprintf(os.Stderr, "failed to lookup user: %v\n", err)
			os.Exit(1)
		}
		user := models.User{
			Username:     username,
			Email:        email,
			Name:         "مدير النظام",
			PasswordHash: string(hashed),
			Role:         models.UserRoleAdmin,
			IsFleetAdmin: true,
			IsActive:     utils.NewTrue(),
		}
		if err := db.WithContext(ctx).Create(&user).Error; err != nil {
			fmt.Fprintf(os.Stderr, "failed to create admin user: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("created admin user %q (id=%d)\n", username, user.ID)
		return
	}

	if err := db.WithContext(ctx).Model(&existing).Updates(map[string]interface{}{
		"email":          email,
		"password_hash":  string(hashed),
		"role":           models.UserRoleAdmin,
		"is_fleet_admin": true,
		"is_active":      true,
	}).Error; err != nil {
		fmt.Fprintf(os.Stderr, "failed to update admin user: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("updated admin user %q (id=%d)\n", username, existing.ID)
}
