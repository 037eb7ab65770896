// state-recheck recomputes the derived state for every vehicle and reports
// rows whose persisted columns drifted from the deriver's answer. With -fix
// it rewrites the drifted columns under the same locks the engine uses.
//
// Drift should never happen in normal operation; this tool exists for
// migrations from the legacy system and for post-incident verification.
//
// Usage:
//
//	go run ./cmd/state-recheck          # report only
//	go run ./cmd/state-recheck -fix     # rewrite drifted rows
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/nuzumhq/fleet_backend/config"
	"github.com/nuzumhq/fleet_backend/models"
	"github.com/nuzumhq/fleet_backend/utils"
	"github.com/nuzumhq/fleet_backend/workflow"
	"gorm.io/gorm"
)

func main() {
	fix := flag.Bool("fix", false, "rewrite drifted derived columns")
	flag.Parse()

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized. Set DB_* env vars.")
		os.Exit(1)
	}

	ctx := context.Background()
	ctx = utils.SetUserIdInContext(ctx, 1)
	ctx = utils.SetUserNameInContext(ctx, "state-recheck")
	ctx = utils.SetIsAdminInContext(ctx, true)

	var vehicleIds []int
	if err := db.WithContext(ctx).Model(&models.Vehicle{}).
		Order("id ASC").Pluck("id", &vehicleIds).Error; err != nil {
		fmt.Fprintf(os.Stderr, "failed to list vehicles: %v\n", err)
		os.Exit(1)
	}

	var drifted, fixed int
	for _, vehicleId := range vehicleIds {
		err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var vehicle models.Vehicle
			if err := tx.First(&vehicle, vehicleId).Error; err != nil {
				return err
			}
			history, err := workflow.LoadVehicleHistory(tx, &vehicle)
			if err != nil {
				return err
			}
			derived := workflow.Derive(history)
			if derived.Status == vehicle.Status && derived.CurrentDriver == vehicle.CurrentDriverName {
				return nil
			}

			drifted++
			fmt.Printf("drift vehicle=%d plate=%s stored=%s/%q derived=%s/%q\n",
				vehicle.ID, vehicle.PlateNumber,
				vehicle.Status, vehicle.CurrentDriverName,
				derived.Status, derived.CurrentDriver)
			if !*fix {
				return nil
			}

			if err := tx.Model(&models.Vehicle{}).
				Where("id = ?", vehicle.ID).
				Updates(map[string]interface{}{
					"status":              derived.Status,
					"current_driver_name": derived.CurrentDriver,
					"lock_version":        gorm.Expr("lock_version + 1"),
				}).Error; err != nil {
				return err
			}
			fixed++
			return nil
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "vehicle %d: %v\n", vehicleId, err)
		}
	}

	fmt.Printf("checked %d vehicle(s), %d drifted, %d fixed\n", len(vehicleIds), drifted, fixed)
	if drifted > 0 && !*fix {
		os.Exit(3)
	}
}
