package workflow

import (
	"github.com/nuzumhq/fleet_backend/models"
	"gorm.io/gorm"
)

// DerivedState is the deriver's output: the two derived columns on the
// vehicle row.
type DerivedState struct {
	Status        models.VehicleStatus `json:"status"`
	CurrentDriver string               `json:"current_driver"`
}

// HandoverWithRequest pairs a handover with the status of its operation
// request. RequestStatus is nil for legacy records that predate the workflow;
// those count as authoritative.
type HandoverWithRequest struct {
	models.HandoverRecord
	RequestStatus *models.RequestStatus
}

// Authoritative handovers are the only ones the deriver sees: approved, or
// legacy with no request at all.
func (h HandoverWithRequest) Authoritative() bool {
	return h.RequestStatus == nil || *h.RequestStatus == models.RequestStatusApproved
}

// VehicleHistory is everything Derive reads for one vehicle. Loaded under the
// vehicle row lock so approvals observe a consistent view.
type VehicleHistory struct {
	OutOfService bool
	Handovers    []HandoverWithRequest
	Workshops    []models.WorkshopRecord
	Accidents    []models.AccidentRecord
	ActiveRental *models.RentalRecord
}

// laterHandover breaks created_at ties by the higher id.
func laterHandover(a, b *HandoverWithRequest) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}

func (h *VehicleHistory) latestAuthoritative(t models.HandoverType) *HandoverWithRequest {
	var latest *HandoverWithRequest
	for i := range h.Handovers {
		cand := &h.Handovers[i]
		if cand.Type != t || !cand.Authoritative() {
			continue
		}
		if latest == nil || laterHandover(cand, latest) {
			latest = cand
		}
	}
	return latest
}

// CurrentlyHandedOut reports whether the latest authoritative delivery is
// more recent than the latest authoritative return.
func (h *VehicleHistory) CurrentlyHandedOut() bool {
	delivery := h.latestAuthoritative(models.HandoverTypeDelivery)
	if delivery == nil {
		return false
	}
	ret := h.latestAuthoritative(models.HandoverTypeReturn)
	return ret == nil || laterHandover(delivery, ret)
}

func (h *VehicleHistory) hasOpenAccident() bool {
	for i := range h.Accidents {
		if h.Accidents[i].AccidentStatus.IsOpen() {
			return true
		}
	}
	return false
}

func (h *VehicleHistory) hasOpenWorkshop() bool {
	for i := range h.Workshops {
		if h.Workshops[i].ExitDate == nil {
			return true
		}
	}
	return false
}

func (h *VehicleHistory) currentDriverName() string {
	if !h.CurrentlyHandedOut() {
		return ""
	}
	return h.latestAuthoritative(models.HandoverTypeDelivery).DriverName
}

// Derive computes the vehicle's status and current driver from its committed
// history. Pure: same history, same answer. Precedence, first hit wins:
// out_of_service, open accident, open workshop, handed out, idle.
// The driver stays assigned through accident and workshop states while the
// vehicle is handed out; only out_of_service or a return clears it.
func Derive(h *VehicleHistory) DerivedState {
	if h.OutOfService {
		return DerivedState{Status: models.VehicleStatusOutOfService}
	}
	driver := h.currentDriverName()
	if h.hasOpenAccident() {
		return DerivedState{Status: models.VehicleStatusAccident, CurrentDriver: driver}
	}
	if h.hasOpenWorkshop() {
		return DerivedState{Status: models.VehicleStatusInWorkshop, CurrentDriver: driver}
	}
	rented := h.ActiveRental != nil
	if h.CurrentlyHandedOut() {
		status := models.VehicleStatusInProject
		if rented {
			status = models.VehicleStatusRented
		}
		return DerivedState{Status: status, CurrentDriver: driver}
	}
	if rented {
		return DerivedState{Status: models.VehicleStatusRented}
	}
	return DerivedState{Status: models.VehicleStatusAvailable}
}

type requestKey struct {
	opType   models.OperationType
	recordId int
}

// authoritativeRecord mirrors HandoverWithRequest.Authoritative for the other
// record kinds: visible when approved or legacy with no request.
func authoritativeRecord(statusByRecord map[requestKey]models.RequestStatus, opType models.OperationType, recordId int) bool {
	status, ok := statusByRecord[requestKey{opType, recordId}]
	return !ok || status == models.RequestStatusApproved
}

// LoadVehicleHistory reads the full authoritative history for one vehicle on
// the given transaction. Call after locking the vehicle row.
// Tentative records written at propose time stay invisible here until their
// request is approved, so a pending workshop entry or accident never moves
// the derived state.
func LoadVehicleHistory(tx *gorm.DB, vehicle *models.Vehicle) (*VehicleHistory, error) {
	history := VehicleHistory{OutOfService: vehicle.OutOfService}

	var requests []models.OperationRequest
	if err := tx.Where("vehicle_id = ?", vehicle.ID).
		Find(&requests).Error; err != nil {
		return nil, err
	}
	statusByRecord := make(map[requestKey]models.RequestStatus, len(requests))
	for _, r := range requests {
		statusByRecord[requestKey{r.OperationType, r.RelatedRecordId}] = r.Status
	}

	var handovers []models.HandoverRecord
	if err := tx.Where("vehicle_id = ?", vehicle.ID).
		Order("created_at ASC, id ASC").
		Find(&handovers).Error; err != nil {
		return nil, err
	}
	for i := range handovers {
		entry := HandoverWithRequest{HandoverRecord: handovers[i]}
		if status, ok := statusByRecord[requestKey{models.OperationTypeHandover, handovers[i].ID}]; ok {
			s := status
			entry.RequestStatus = &s
		}
		history.Handovers = append(history.Handovers, entry)
	}

	var workshops []models.WorkshopRecord
	if err := tx.Where("vehicle_id = ?", vehicle.ID).
		Order("created_at ASC, id ASC").
		Find(&workshops).Error; err != nil {
		return nil, err
	}
	for i := range workshops {
		if authoritativeRecord(statusByRecord, models.OperationTypeWorkshopRecord, workshops[i].ID) {
			history.Workshops = append(history.Workshops, workshops[i])
		}
	}

	var accidents []models.AccidentRecord
	if err := tx.Where("vehicle_id = ?", vehicle.ID).
		Order("created_at ASC, id ASC").
		Find(&accidents).Error; err != nil {
		return nil, err
	}
	for i := range accidents {
		if authoritativeRecord(statusByRecord, models.OperationTypeAccident, accidents[i].ID) {
			history.Accidents = append(history.Accidents, accidents[i])
		}
	}

	var rentals []models.RentalRecord
	if err := tx.Where("vehicle_id = ? AND is_active = ?", vehicle.ID, true).
		Order("created_at DESC, id DESC").
		Limit(1).
		Find(&rentals).Error; err != nil {
		return nil, err
	}
	if len(rentals) > 0 {
		history.ActiveRental = &rentals[0]
	}

	return &history, nil
}
