package workflow

import (
	"fmt"
	"time"

	"github.com/nuzumhq/fleet_backend/models"
)

// EligibilityError is the guard's rejection. Reason is user-facing Arabic and
// flows through to notifications unchanged.
type EligibilityError struct {
	State  DerivedState
	Reason string
}

func (e *EligibilityError) Error() string {
	return fmt.Sprintf("ineligible (status=%s): %s", e.State.Status, e.Reason)
}

func ineligible(state DerivedState, reason string) error {
	return &EligibilityError{State: state, Reason: reason}
}

// CheckProposeDelivery allows a delivery only on an idle vehicle: derived
// status available/rented/in_project and not currently handed out.
func CheckProposeDelivery(h *VehicleHistory) error {
	state := Derive(h)
	switch state.Status {
	case models.VehicleStatusAvailable, models.VehicleStatusRented, models.VehicleStatusInProject:
	default:
		return ineligible(state, "لا يمكن تسليم المركبة وهي في حالة "+state.Status.ArabicLabel())
	}
	if h.CurrentlyHandedOut() {
		return ineligible(state, "المركبة مسلمة حالياً للسائق "+state.CurrentDriver)
	}
	return nil
}

// CheckProposeReturn allows a return only while the vehicle is handed out and
// returns the open delivery's driver; the return record is forced to carry
// that name.
func CheckProposeReturn(h *VehicleHistory) (string, error) {
	if !h.CurrentlyHandedOut() {
		state := Derive(h)
		return "", ineligible(state, "المركبة غير مسلمة حالياً لأي سائق")
	}
	return h.latestAuthoritative(models.HandoverTypeDelivery).DriverName, nil
}

// CheckProposeWorkshopEntry allows entering the workshop from any state
// except in_workshop, accident and out_of_service, and only when no workshop
// visit is already open. Entering while handed out is permitted; the vehicle
// is taken off the driver operationally but the delivery stands.
func CheckProposeWorkshopEntry(h *VehicleHistory) error {
	state := Derive(h)
	switch state.Status {
	case models.VehicleStatusInWorkshop, models.VehicleStatusAccident, models.VehicleStatusOutOfService:
		return ineligible(state, "لا يمكن إدخال المركبة إلى الورشة وهي في حالة "+state.Status.ArabicLabel())
	}
	if h.hasOpenWorkshop() {
		return ineligible(state, "يوجد سجل ورشة مفتوح بالفعل لهذه المركبة")
	}
	return nil
}

// CheckWorkshopExit validates setting exit_date on a workshop record. The
// record must be open and its own operation request approved.
func CheckWorkshopExit(h *VehicleHistory, record *models.WorkshopRecord, requestStatus models.RequestStatus, exitDate time.Time) error {
	state := Derive(h)
	if requestStatus != models.RequestStatusApproved {
		return ineligible(state, "سجل الورشة غير معتمد بعد")
	}
	if record.ExitDate != nil {
		return ineligible(state, "سجل الورشة مغلق بالفعل")
	}
	if exitDate.Before(record.EntryDate) {
		return ineligible(state, "تاريخ الخروج لا يمكن أن يسبق تاريخ الدخول")
	}
	return nil
}

// CheckProposeAccident always allows; recording an accident is never blocked.
func CheckProposeAccident(h *VehicleHistory) error {
	return nil
}

// CheckCloseAccident allows closing any open accident.
func CheckCloseAccident(h *VehicleHistory, accident *models.AccidentRecord) error {
	if !accident.AccidentStatus.IsOpen() {
		return ineligible(Derive(h), "الحادث مغلق بالفعل")
	}
	return nil
}

// CheckRentalActivation allows activating a rental only when no other rental
// is active for the vehicle.
func CheckRentalActivation(h *VehicleHistory) error {
	if h.ActiveRental != nil {
		return ineligible(Derive(h), "يوجد عقد إيجار نشط بالفعل لهذه المركبة")
	}
	return nil
}

// CheckProposeAuthorization always allows; an external authorization has no
// state effect.
func CheckProposeAuthorization(h *VehicleHistory) error {
	return nil
}
