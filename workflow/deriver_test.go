package workflow

import (
	"math/rand"
	"testing"
	"time"

	"github.com/nuzumhq/fleet_backend/models"
)

// NOTE: These tests are intentionally DB-free. Derive is pure, so the state
// precedence, driver assignment and tie-break rules are all checkable on
// hand-built histories.
//
// Full DB integration tests should be added in an environment that can run MySQL.

var baseTime = time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

func approvedStatus() *models.RequestStatus {
	s := models.RequestStatusApproved
	return &s
}

func pendingStatus() *models.RequestStatus {
	s := models.RequestStatusPending
	return &s
}

func handover(id int, t models.HandoverType, driver string, createdAt time.Time, status *models.RequestStatus) HandoverWithRequest {
	return HandoverWithRequest{
		HandoverRecord: models.HandoverRecord{
			ID:         id,
			VehicleId:  1,
			Type:       t,
			DriverName: driver,
			CreatedAt:  createdAt,
		},
		RequestStatus: status,
	}
}

func TestDerive_EmptyHistoryIsAvailable(t *testing.T) {
	state := Derive(&VehicleHistory{})
	if state.Status != models.VehicleStatusAvailable {
		t.Fatalf("expected available, got %s", state.Status)
	}
	if state.CurrentDriver != "" {
		t.Fatalf("expected no driver, got %q", state.CurrentDriver)
	}
}

func TestDerive_ApprovedDeliveryHandsOut(t *testing.T) {
	h := &VehicleHistory{
		Handovers: []HandoverWithRequest{
			handover(1, models.HandoverTypeDelivery, "E1", baseTime, approvedStatus()),
		},
	}
	state := Derive(h)
	if state.Status != models.VehicleStatusInProject {
		t.Fatalf("expected in_project, got %s", state.Status)
	}
	if state.CurrentDriver != "E1" {
		t.Fatalf("expected driver E1, got %q", state.CurrentDriver)
	}
}

func TestDerive_PendingDeliveryIsInvisible(t *testing.T) {
	h := &VehicleHistory{
		Handovers: []HandoverWithRequest{
			handover(1, models.HandoverTypeDelivery, "E1", baseTime, pendingStatus()),
		},
	}
	state := Derive(h)
	if state.Status != models.VehicleStatusAvailable || state.CurrentDriver != "" {
		t.Fatalf("pending delivery must not change state, got %s/%q", state.Status, state.CurrentDriver)
	}
}

func TestDerive_LegacyHandoverWithoutRequestIsAuthoritative(t *testing.T) {
	h := &VehicleHistory{
		Handovers: []HandoverWithRequest{
			handover(1, models.HandoverTypeDelivery, "E1", baseTime, nil),
		},
	}
	state := Derive(h)
	if state.Status != models.VehicleStatusInProject || state.CurrentDriver != "E1" {
		t.Fatalf("legacy delivery must count, got %s/%q", state.Status, state.CurrentDriver)
	}
}

func TestDerive_ReturnClearsDriver(t *testing.T) {
	h := &VehicleHistory{
		Handovers: []HandoverWithRequest{
			handover(1, models.HandoverTypeDelivery, "E1", baseTime, approvedStatus()),
			handover(2, models.HandoverTypeReturn, "E1", baseTime.Add(time.Hour), approvedStatus()),
		},
	}
	state := Derive(h)
	if state.Status != models.VehicleStatusAvailable {
		t.Fatalf("expected available after return, got %s", state.Status)
	}
	if state.CurrentDriver != "" {
		t.Fatalf("expected no driver after return, got %q", state.CurrentDriver)
	}
}

func TestDerive_RentalBeatsAvailableAndInProject(t *testing.T) {
	rental := &models.RentalRecord{ID: 1, VehicleId: 1, IsActive: true}

	idle := &VehicleHistory{ActiveRental: rental}
	if state := Derive(idle); state.Status != models.VehicleStatusRented {
		t.Fatalf("idle + active rental should be rented, got %s", state.Status)
	}

	handedOut := &VehicleHistory{
		ActiveRental: rental,
		Handovers: []HandoverWithRequest{
			handover(1, models.HandoverTypeDelivery, "E1", baseTime, approvedStatus()),
		},
	}
	state := Derive(handedOut)
	if state.Status != models.VehicleStatusRented {
		t.Fatalf("handed out + active rental should be rented, got %s", state.Status)
	}
	if state.CurrentDriver != "E1" {
		t.Fatalf("driver must survive rented status, got %q", state.CurrentDriver)
	}
}

func TestDerive_PrecedenceOrder(t *testing.T) {
	delivery := handover(1, models.HandoverTypeDelivery, "E1", baseTime, approvedStatus())
	openWorkshop := models.WorkshopRecord{ID: 1, VehicleId: 1, EntryDate: baseTime}
	openAccident := models.AccidentRecord{ID: 1, VehicleId: 1, AccidentStatus: models.AccidentStatusOpen}

	full := &VehicleHistory{
		OutOfService: true,
		Handovers:    []HandoverWithRequest{delivery},
		Workshops:    []models.WorkshopRecord{openWorkshop},
		Accidents:    []models.AccidentRecord{openAccident},
		ActiveRental: &models.RentalRecord{ID: 1, IsActive: true},
	}
	state := Derive(full)
	if state.Status != models.VehicleStatusOutOfService {
		t.Fatalf("out_of_service must win, got %s", state.Status)
	}
	if state.CurrentDriver != "" {
		t.Fatalf("out_of_service must clear the driver, got %q", state.CurrentDriver)
	}

	full.OutOfService = false
	state = Derive(full)
	if state.Status != models.VehicleStatusAccident {
		t.Fatalf("open accident must beat workshop, got %s", state.Status)
	}
	if state.CurrentDriver != "E1" {
		t.Fatalf("driver must survive accident status, got %q", state.CurrentDriver)
	}

	full.Accidents[0].AccidentStatus = models.AccidentStatusClosed
	state = Derive(full)
	if state.Status != models.VehicleStatusInWorkshop {
		t.Fatalf("open workshop must beat handed-out, got %s", state.Status)
	}

	exit := baseTime.Add(24 * time.Hour)
	full.Workshops[0].ExitDate = &exit
	state = Derive(full)
	if state.Status != models.VehicleStatusRented {
		t.Fatalf("handed out with active rental should be rented, got %s", state.Status)
	}
}

func TestDerive_CreatedAtTieBreakByHigherId(t *testing.T) {
	// delivery and return share created_at; the higher id wins, so the
	// vehicle is handed out again
	h := &VehicleHistory{
		Handovers: []HandoverWithRequest{
			handover(1, models.HandoverTypeReturn, "E1", baseTime, approvedStatus()),
			handover(2, models.HandoverTypeDelivery, "E2", baseTime, approvedStatus()),
		},
	}
	state := Derive(h)
	if state.Status != models.VehicleStatusInProject {
		t.Fatalf("higher id delivery should win the tie, got %s", state.Status)
	}
	if state.CurrentDriver != "E2" {
		t.Fatalf("expected driver E2, got %q", state.CurrentDriver)
	}
}

func TestDerive_AccidentClosureRestoresHandedOutState(t *testing.T) {
	h := &VehicleHistory{
		Handovers: []HandoverWithRequest{
			handover(1, models.HandoverTypeDelivery, "E1", baseTime, approvedStatus()),
		},
		Accidents: []models.AccidentRecord{
			{ID: 1, VehicleId: 1, AccidentStatus: models.AccidentStatusOpen},
		},
	}
	state := Derive(h)
	if state.Status != models.VehicleStatusAccident || state.CurrentDriver != "E1" {
		t.Fatalf("open accident with driver: got %s/%q", state.Status, state.CurrentDriver)
	}

	h.Accidents[0].AccidentStatus = models.AccidentStatusClosed
	state = Derive(h)
	if state.Status != models.VehicleStatusInProject || state.CurrentDriver != "E1" {
		t.Fatalf("after close the delivery stands: got %s/%q", state.Status, state.CurrentDriver)
	}
}

// randomHistory builds an arbitrary but well-formed history: alternating
// authoritative deliveries and returns with random non-authoritative noise,
// random workshop visits and accidents.
func randomHistory(r *rand.Rand) *VehicleHistory {
	h := &VehicleHistory{}
	id := 0
	at := baseTime
	handedOut := false

	n := r.Intn(12)
	for i := 0; i < n; i++ {
		id++
		at = at.Add(time.Duration(1+r.Intn(48)) * time.Hour)
		if r.Intn(4) == 0 {
			// noise: pending or rejected handover, never authoritative
			noise := models.RequestStatusPending
			if r.Intn(2) == 0 {
				noise = models.RequestStatusRejected
			}
			s := noise
			typ := models.HandoverTypeDelivery
			if r.Intn(2) == 0 {
				typ = models.HandoverTypeReturn
			}
			h.Handovers = append(h.Handovers, handover(id, typ, "NOISE", at, &s))
			continue
		}
		if handedOut {
			h.Handovers = append(h.Handovers, handover(id, models.HandoverTypeReturn, "E", at, approvedStatus()))
			handedOut = false
		} else {
			h.Handovers = append(h.Handovers, handover(id, models.HandoverTypeDelivery, "E", at, approvedStatus()))
			handedOut = true
		}
	}

	if r.Intn(3) == 0 {
		w := models.WorkshopRecord{ID: 1, VehicleId: 1, EntryDate: at}
		if r.Intn(2) == 0 {
			exit := at.Add(time.Hour)
			w.ExitDate = &exit
		}
		h.Workshops = append(h.Workshops, w)
	}
	if r.Intn(3) == 0 {
		status := models.AccidentStatusOpen
		if r.Intn(2) == 0 {
			status = models.AccidentStatusClosed
		}
		h.Accidents = append(h.Accidents, models.AccidentRecord{ID: 1, VehicleId: 1, AccidentStatus: status})
	}
	if r.Intn(3) == 0 {
		h.ActiveRental = &models.RentalRecord{ID: 1, VehicleId: 1, IsActive: true}
	}
	if r.Intn(10) == 0 {
		h.OutOfService = true
	}
	return h
}

func TestDerive_PropertyPureAndConsistent(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	for i := 0; i < 2000; i++ {
		h := randomHistory(r)
		first := Derive(h)
		second := Derive(h)
		if first != second {
			t.Fatalf("derive not deterministic: %+v vs %+v", first, second)
		}

		if h.OutOfService && first.Status != models.VehicleStatusOutOfService {
			t.Fatalf("out_of_service override ignored: %+v", first)
		}
		if first.Status == models.VehicleStatusOutOfService && first.CurrentDriver != "" {
			t.Fatalf("out_of_service must have no driver: %+v", first)
		}
		if first.CurrentDriver != "" && !h.CurrentlyHandedOut() {
			t.Fatalf("driver set while not handed out: %+v", first)
		}
		if !h.OutOfService && h.CurrentlyHandedOut() && first.CurrentDriver == "" {
			t.Fatalf("handed out but no driver: %+v", first)
		}
		if first.CurrentDriver == "NOISE" {
			t.Fatalf("non-authoritative handover leaked into state: %+v", first)
		}
		if first.Status == models.VehicleStatusAvailable && h.ActiveRental != nil {
			t.Fatalf("active rental cannot be available: %+v", first)
		}
	}
}

func TestDerive_ProposeCancelRoundTrip(t *testing.T) {
	// a proposed record never becomes authoritative when cancelled, so the
	// derived state before and after must match
	r := rand.New(rand.NewSource(7))
	for i := 0; i < 500; i++ {
		h := randomHistory(r)
		before := Derive(h)

		cancelled := models.RequestStatusCancelled
		h.Handovers = append(h.Handovers, handover(999, models.HandoverTypeDelivery, "X", baseTime.Add(10000*time.Hour), &cancelled))
		after := Derive(h)
		if before != after {
			t.Fatalf("cancelled proposal changed derived state: %+v vs %+v", before, after)
		}
	}
}
