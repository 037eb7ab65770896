package models_test

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/nuzumhq/fleet_backend/config"
	"github.com/nuzumhq/fleet_backend/models"
	"github.com/nuzumhq/fleet_backend/workflow"
)

// Regression: a return approved long after it was proposed must close the
// delivery that is open now, not the one its stored driver snapshot pointed
// at. The approval re-forces the record's driver before the state flips.
func TestApproveReturnReforcesDriverToOpenDelivery(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	startOperationsStack(t)
	ctx := context.Background()

	admin, staff := seedReviewPair(t, ctx)
	adminCtx := reviewerContext(ctx, admin)
	staffCtx := requesterContext(ctx, staff)

	vehicle, err := models.CreateVehicle(staffCtx, &models.NewVehicle{PlateNumber: "RET-300"})
	if err != nil {
		t.Fatalf("CreateVehicle: %v", err)
	}

	delivery, err := workflow.ProposeHandover(staffCtx, &models.NewHandover{
		VehicleId:    vehicle.ID,
		Type:         models.HandoverTypeDelivery,
		HandoverDate: time.Now(),
		Mileage:      20000,
		DriverName:   "أحمد",
	}, &workflow.ProposeMeta{Title: "تسليم للسائق أحمد"})
	if err != nil {
		t.Fatalf("ProposeHandover delivery: %v", err)
	}
	if _, err := workflow.ApproveRequest(adminCtx, delivery.RequestId, ""); err != nil {
		t.Fatalf("ApproveRequest delivery: %v", err)
	}

	ret, err := workflow.ProposeHandover(staffCtx, &models.NewHandover{
		VehicleId:    vehicle.ID,
		Type:         models.HandoverTypeReturn,
		HandoverDate: time.Now(),
		Mileage:      20500,
	}, &workflow.ProposeMeta{Title: "استلام المركبة"})
	if err != nil {
		t.Fatalf("ProposeHandover return: %v", err)
	}

	// the stored snapshot drifts while the request waits for review
	db := config.GetDB()
	if err := db.Model(&models.HandoverRecord{}).
		Where("id = ?", ret.RecordId).
		Update("driver_name", "سائق قديم").Error; err != nil {
		t.Fatalf("drift driver snapshot: %v", err)
	}

	state, err := workflow.ApproveRequest(adminCtx, ret.RequestId, "")
	if err != nil {
		t.Fatalf("ApproveRequest return: %v", err)
	}
	if state.Status != models.VehicleStatusAvailable || state.CurrentDriver != "" {
		t.Fatalf("unexpected derived state after return: %+v", state)
	}

	var record models.HandoverRecord
	if err := db.First(&record, ret.RecordId).Error; err != nil {
		t.Fatalf("reload return record: %v", err)
	}
	if record.DriverName != "أحمد" {
		t.Fatalf("return must carry the open delivery's driver, got %q", record.DriverName)
	}
}
