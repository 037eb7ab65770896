package workflow

import (
	"errors"
	"testing"
	"time"

	"github.com/nuzumhq/fleet_backend/models"
)

func mustEligibilityError(t *testing.T, err error) *EligibilityError {
	t.Helper()
	var elig *EligibilityError
	if !errors.As(err, &elig) {
		t.Fatalf("expected EligibilityError, got %v", err)
	}
	if elig.Reason == "" {
		t.Fatal("eligibility error must carry a reason")
	}
	return elig
}

func TestCheckProposeDelivery(t *testing.T) {
	if err := CheckProposeDelivery(&VehicleHistory{}); err != nil {
		t.Fatalf("delivery on available vehicle: %v", err)
	}

	handedOut := &VehicleHistory{
		Handovers: []HandoverWithRequest{
			handover(1, models.HandoverTypeDelivery, "E1", baseTime, approvedStatus()),
		},
	}
	elig := mustEligibilityError(t, CheckProposeDelivery(handedOut))
	if elig.State.CurrentDriver != "E1" {
		t.Fatalf("error must carry the current driver, got %+v", elig.State)
	}

	inWorkshop := &VehicleHistory{
		Workshops: []models.WorkshopRecord{{ID: 1, EntryDate: baseTime}},
	}
	mustEligibilityError(t, CheckProposeDelivery(inWorkshop))

	outOfService := &VehicleHistory{OutOfService: true}
	mustEligibilityError(t, CheckProposeDelivery(outOfService))
}

func TestCheckProposeReturn_ForcesDriver(t *testing.T) {
	h := &VehicleHistory{
		Handovers: []HandoverWithRequest{
			handover(1, models.HandoverTypeDelivery, "E1", baseTime, approvedStatus()),
		},
	}
	driver, err := CheckProposeReturn(h)
	if err != nil {
		t.Fatalf("return on handed-out vehicle: %v", err)
	}
	if driver != "E1" {
		t.Fatalf("return driver must match the open delivery, got %q", driver)
	}

	if _, err := CheckProposeReturn(&VehicleHistory{}); err == nil {
		t.Fatal("return without a delivery must fail")
	}
}

func TestCheckProposeWorkshopEntry(t *testing.T) {
	if err := CheckProposeWorkshopEntry(&VehicleHistory{}); err != nil {
		t.Fatalf("entry on available vehicle: %v", err)
	}

	// entering while handed out is the implicit "vehicle taken off driver"
	handedOut := &VehicleHistory{
		Handovers: []HandoverWithRequest{
			handover(1, models.HandoverTypeDelivery, "E1", baseTime, approvedStatus()),
		},
	}
	if err := CheckProposeWorkshopEntry(handedOut); err != nil {
		t.Fatalf("entry while handed out must be allowed: %v", err)
	}

	alreadyIn := &VehicleHistory{
		Workshops: []models.WorkshopRecord{{ID: 1, EntryDate: baseTime}},
	}
	mustEligibilityError(t, CheckProposeWorkshopEntry(alreadyIn))

	accident := &VehicleHistory{
		Accidents: []models.AccidentRecord{{ID: 1, AccidentStatus: models.AccidentStatusOpen}},
	}
	mustEligibilityError(t, CheckProposeWorkshopEntry(accident))
}

func TestCheckWorkshopExit(t *testing.T) {
	record := &models.WorkshopRecord{ID: 1, EntryDate: baseTime}
	h := &VehicleHistory{}

	if err := CheckWorkshopExit(h, record, models.RequestStatusApproved, baseTime.Add(time.Hour)); err != nil {
		t.Fatalf("valid exit: %v", err)
	}
	mustEligibilityError(t, CheckWorkshopExit(h, record, models.RequestStatusPending, baseTime.Add(time.Hour)))
	mustEligibilityError(t, CheckWorkshopExit(h, record, models.RequestStatusApproved, baseTime.Add(-time.Hour)))

	exit := baseTime.Add(time.Hour)
	closed := &models.WorkshopRecord{ID: 2, EntryDate: baseTime, ExitDate: &exit}
	mustEligibilityError(t, CheckWorkshopExit(h, closed, models.RequestStatusApproved, exit))
}

func TestCheckRentalActivation(t *testing.T) {
	if err := CheckRentalActivation(&VehicleHistory{}); err != nil {
		t.Fatalf("first rental must be allowed: %v", err)
	}
	active := &VehicleHistory{ActiveRental: &models.RentalRecord{ID: 1, IsActive: true}}
	mustEligibilityError(t, CheckRentalActivation(active))
}

func TestCheckCloseAccident(t *testing.T) {
	open := &models.AccidentRecord{ID: 1, AccidentStatus: models.AccidentStatusOpen}
	if err := CheckCloseAccident(&VehicleHistory{}, open); err != nil {
		t.Fatalf("closing an open accident: %v", err)
	}
	closed := &models.AccidentRecord{ID: 2, AccidentStatus: models.AccidentStatusClosed}
	mustEligibilityError(t, CheckCloseAccident(&VehicleHistory{}, closed))
}

func TestCheckAccidentAndAuthorizationAlwaysAllowed(t *testing.T) {
	busy := &VehicleHistory{
		OutOfService: true,
		Workshops:    []models.WorkshopRecord{{ID: 1, EntryDate: baseTime}},
		Accidents:    []models.AccidentRecord{{ID: 1, AccidentStatus: models.AccidentStatusOpen}},
	}
	if err := CheckProposeAccident(busy); err != nil {
		t.Fatalf("recording an accident is never blocked: %v", err)
	}
	if err := CheckProposeAuthorization(busy); err != nil {
		t.Fatalf("authorization has no state preconditions: %v", err)
	}
}
