package models

import (
	"log"

	"github.com/nuzumhq/fleet_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&User{}, &Employee{},
		&Vehicle{}, &VehicleDocument{},
		&HandoverRecord{}, &WorkshopRecord{}, &RentalRecord{}, &AccidentRecord{}, &AuthorizationRecord{},
		&OperationRequest{},
		&Notification{},
		&ArchiveJob{},
		&IdempotencyKey{},
		&History{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
