package models

import (
	"database/sql/driver"
	"errors"
	"fmt"
)

// Enum columns persist canonical English values. Legacy rows written by the
// old system carry Arabic literals; the Scan implementations map them on read
// so the rest of the code only ever sees canonical values.

type VehicleStatus string

const (
	VehicleStatusAvailable    VehicleStatus = "available"
	VehicleStatusRented       VehicleStatus = "rented"
	VehicleStatusInProject    VehicleStatus = "in_project"
	VehicleStatusInWorkshop   VehicleStatus = "in_workshop"
	VehicleStatusAccident     VehicleStatus = "accident"
	VehicleStatusOutOfService VehicleStatus = "out_of_service"
)

var legacyVehicleStatus = map[string]VehicleStatus{
	"متاحة":       VehicleStatusAvailable,
	"مؤجرة":       VehicleStatusRented,
	"في المشروع":  VehicleStatusInProject,
	"في الورشة":   VehicleStatusInWorkshop,
	"حادث":        VehicleStatusAccident,
	"خارج الخدمة": VehicleStatusOutOfService,
}

func (s *VehicleStatus) Scan(value interface{}) error {
	str, err := scanEnumString("vehicle status", value)
	if err != nil {
		return err
	}
	if mapped, ok := legacyVehicleStatus[str]; ok {
		*s = mapped
		return nil
	}
	switch VehicleStatus(str) {
	case VehicleStatusAvailable, VehicleStatusRented, VehicleStatusInProject,
		VehicleStatusInWorkshop, VehicleStatusAccident, VehicleStatusOutOfService:
		*s = VehicleStatus(str)
		return nil
	}
	return fmt.Errorf("invalid vehicle status %q", str)
}

func (s VehicleStatus) Value() (driver.Value, error) {
	return string(s), nil
}

// ArabicLabel is the user-facing form kept out of storage.
func (s VehicleStatus) ArabicLabel() string {
	switch s {
	case VehicleStatusAvailable:
		return "متاحة"
	case VehicleStatusRented:
		return "مؤجرة"
	case VehicleStatusInProject:
		return "في المشروع"
	case VehicleStatusInWorkshop:
		return "في الورشة"
	case VehicleStatusAccident:
		return "حادث"
	case VehicleStatusOutOfService:
		return "خارج الخدمة"
	}
	return string(s)
}

type EmployeeStatus string

const (
	EmployeeStatusActive     EmployeeStatus = "active"
	EmployeeStatusInactive   EmployeeStatus = "inactive"
	EmployeeStatusTerminated EmployeeStatus = "terminated"
	EmployeeStatusOnLeave    EmployeeStatus = "on_leave"
)

func (s *EmployeeStatus) Scan(value interface{}) error {
	str, err := scanEnumString("employee status", value)
	if err != nil {
		return err
	}
	switch EmployeeStatus(str) {
	case EmployeeStatusActive, EmployeeStatusInactive, EmployeeStatusTerminated, EmployeeStatusOnLeave:
		*s = EmployeeStatus(str)
		return nil
	}
	return fmt.Errorf("invalid employee status %q", str)
}

func (s EmployeeStatus) Value() (driver.Value, error) {
	return string(s), nil
}

type HandoverType string

const (
	HandoverTypeDelivery HandoverType = "delivery"
	HandoverTypeReturn   HandoverType = "return"
)

// The old system wrote Arabic handover types and sometimes "receive".
var legacyHandoverType = map[string]HandoverType{
	"تسليم":   HandoverTypeDelivery,
	"استلام":  HandoverTypeReturn,
	"receive": HandoverTypeReturn,
}

func (t *HandoverType) Scan(value interface{}) error {
	str, err := scanEnumString("handover type", value)
	if err != nil {
		return err
	}
	if mapped, ok := legacyHandoverType[str]; ok {
		*t = mapped
		return nil
	}
	switch HandoverType(str) {
	case HandoverTypeDelivery, HandoverTypeReturn:
		*t = HandoverType(str)
		return nil
	}
	return fmt.Errorf("invalid handover type %q", str)
}

func (t HandoverType) Value() (driver.Value, error) {
	return string(t), nil
}

func (t HandoverType) ArabicLabel() string {
	if t == HandoverTypeDelivery {
		return "تسليم"
	}
	return "استلام"
}

type WorkshopReason string

const (
	WorkshopReasonMaintenance WorkshopReason = "maintenance"
	WorkshopReasonBreakdown   WorkshopReason = "breakdown"
	WorkshopReasonAccident    WorkshopReason = "accident"
)

var legacyWorkshopReason = map[string]WorkshopReason{
	"صيانة دورية": WorkshopReasonMaintenance,
	"عطل":         WorkshopReasonBreakdown,
	"حادث":        WorkshopReasonAccident,
}

func (r *WorkshopReason) Scan(value interface{}) error {
	str, err := scanEnumString("workshop reason", value)
	if err != nil {
		return err
	}
	if mapped, ok := legacyWorkshopReason[str]; ok {
		*r = mapped
		return nil
	}
	switch WorkshopReason(str) {
	case WorkshopReasonMaintenance, WorkshopReasonBreakdown, WorkshopReasonAccident:
		*r = WorkshopReason(str)
		return nil
	}
	return fmt.Errorf("invalid workshop reason %q", str)
}

func (r WorkshopReason) Value() (driver.Value, error) {
	return string(r), nil
}

type RepairStatus string

const (
	RepairStatusInProgress      RepairStatus = "in_progress"
	RepairStatusCompleted       RepairStatus = "completed"
	RepairStatusPendingApproval RepairStatus = "pending_approval"
)

func (r *RepairStatus) Scan(value interface{}) error {
	str, err := scanEnumString("repair status", value)
	if err != nil {
		return err
	}
	switch RepairStatus(str) {
	case RepairStatusInProgress, RepairStatusCompleted, RepairStatusPendingApproval:
		*r = RepairStatus(str)
		return nil
	}
	return fmt.Errorf("invalid repair status %q", str)
}

func (r RepairStatus) Value() (driver.Value, error) {
	return string(r), nil
}

type AccidentStatus string

const (
	AccidentStatusOpen        AccidentStatus = "open"
	AccidentStatusUnderReview AccidentStatus = "under_review"
	AccidentStatusClosed      AccidentStatus = "closed"
)

// Legacy rows store the Arabic close marker; an accident is open until it was
// set to "مغلق" in the old system.
var legacyAccidentStatus = map[string]AccidentStatus{
	"مفتوح":        AccidentStatusOpen,
	"قيد المراجعة": AccidentStatusUnderReview,
	"مغلق":         AccidentStatusClosed,
}

func (s *AccidentStatus) Scan(value interface{}) error {
	str, err := scanEnumString("accident status", value)
	if err != nil {
		return err
	}
	if mapped, ok := legacyAccidentStatus[str]; ok {
		*s = mapped
		return nil
	}
	switch AccidentStatus(str) {
	case AccidentStatusOpen, AccidentStatusUnderReview, AccidentStatusClosed:
		*s = AccidentStatus(str)
		return nil
	}
	return fmt.Errorf("invalid accident status %q", str)
}

func (s AccidentStatus) Value() (driver.Value, error) {
	return string(s), nil
}

func (s AccidentStatus) IsOpen() bool {
	return s != AccidentStatusClosed
}

type OperationType string

const (
	OperationTypeHandover       OperationType = "handover"
	OperationTypeWorkshopRecord OperationType = "workshop_record"
	OperationTypeRental         OperationType = "rental"
	OperationTypeAccident       OperationType = "accident"
	OperationTypeExternalAuth   OperationType = "external_authorization"
	OperationTypeDocumentUpdate OperationType = "document_update"
)

// The old system also wrote "workshop" for workshop records.
var legacyOperationType = map[string]OperationType{
	"workshop": OperationTypeWorkshopRecord,
}

func (t *OperationType) Scan(value interface{}) error {
	str, err := scanEnumString("operation type", value)
	if err != nil {
		return err
	}
	if mapped, ok := legacyOperationType[str]; ok {
		*t = mapped
		return nil
	}
	switch OperationType(str) {
	case OperationTypeHandover, OperationTypeWorkshopRecord, OperationTypeRental,
		OperationTypeAccident, OperationTypeExternalAuth, OperationTypeDocumentUpdate:
		*t = OperationType(str)
		return nil
	}
	return fmt.Errorf("invalid operation type %q", str)
}

func (t OperationType) Value() (driver.Value, error) {
	return string(t), nil
}

// ArabicLabel names the operation type for notifications and archive folders.
func (t OperationType) ArabicLabel() string {
	switch t {
	case OperationTypeHandover:
		return "تسليم واستلام"
	case OperationTypeWorkshopRecord:
		return "سجل ورشة"
	case OperationTypeRental:
		return "إيجار"
	case OperationTypeAccident:
		return "حادث"
	case OperationTypeExternalAuth:
		return "تفويض خارجي"
	case OperationTypeDocumentUpdate:
		return "تحديث وثائق"
	}
	return string(t)
}

type RequestStatus string

const (
	RequestStatusPending     RequestStatus = "pending"
	RequestStatusUnderReview RequestStatus = "under_review"
	RequestStatusApproved    RequestStatus = "approved"
	RequestStatusRejected    RequestStatus = "rejected"
	RequestStatusCancelled   RequestStatus = "cancelled"
)

func (s *RequestStatus) Scan(value interface{}) error {
	str, err := scanEnumString("request status", value)
	if err != nil {
		return err
	}
	switch RequestStatus(str) {
	case RequestStatusPending, RequestStatusUnderReview, RequestStatusApproved,
		RequestStatusRejected, RequestStatusCancelled:
		*s = RequestStatus(str)
		return nil
	}
	return fmt.Errorf("invalid request status %q", str)
}

func (s RequestStatus) Value() (driver.Value, error) {
	return string(s), nil
}

func (s RequestStatus) IsTerminal() bool {
	switch s {
	case RequestStatusApproved, RequestStatusRejected, RequestStatusCancelled:
		return true
	}
	return false
}

type RequestPriority string

const (
	PriorityLow    RequestPriority = "low"
	PriorityNormal RequestPriority = "normal"
	PriorityHigh   RequestPriority = "high"
	PriorityUrgent RequestPriority = "urgent"
)

func (p *RequestPriority) Scan(value interface{}) error {
	str, err := scanEnumString("request priority", value)
	if err != nil {
		return err
	}
	switch RequestPriority(str) {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		*p = RequestPriority(str)
		return nil
	}
	return fmt.Errorf("invalid request priority %q", str)
}

func (p RequestPriority) Value() (driver.Value, error) {
	return string(p), nil
}

// listing order: urgent first; priority never affects transitions.
func (p RequestPriority) SortWeight() int {
	switch p {
	case PriorityUrgent:
		return 0
	case PriorityHigh:
		return 1
	case PriorityNormal:
		return 2
	case PriorityLow:
		return 3
	}
	return 4
}

func scanEnumString(kind string, value interface{}) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	case nil:
		return "", errors.New(kind + " is null")
	}
	return "", fmt.Errorf("%s has unexpected type %T", kind, value)
}
