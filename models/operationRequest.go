package models

import (
	"fmt"
	"time"
)

// OperationRequest gates every sensitive change. Exactly one request exists
// per target record; (operation_type, related_record_id) is unique.
type OperationRequest struct {
	ID int `gorm:"primary_key" json:"id"`

	OperationType   OperationType `gorm:"type:varchar(30);not null;index:uniq_operation_record,unique" json:"operation_type"`
	RelatedRecordId int           `gorm:"not null;index:uniq_operation_record,unique" json:"related_record_id"`
	VehicleId       int           `gorm:"not null;index:idx_request_vehicle_status" json:"vehicle_id"`

	Title       string          `gorm:"size:200;not null" json:"title"`
	Description string          `gorm:"size:1000" json:"description"`
	Priority    RequestPriority `gorm:"type:varchar(16);not null;default:'normal'" json:"priority"`
	Status      RequestStatus   `gorm:"type:varchar(20);not null;default:'pending';index:idx_request_vehicle_status" json:"status"`

	RequestedBy int       `gorm:"not null;index" json:"requested_by"`
	RequestedAt time.Time `gorm:"not null" json:"requested_at"`

	ReviewedBy  *int       `json:"reviewed_by"`
	ReviewedAt  *time.Time `json:"reviewed_at"`
	ReviewNotes string     `gorm:"size:1000" json:"review_notes"`

	// Set by the archive pipeline after a successful upload: the folder key
	// under the sink and a JSON list of per-artifact links.
	ArchiveFolder string `gorm:"size:300" json:"archive_folder"`
	ArchiveLinks  string `gorm:"type:text" json:"archive_links"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// AllowRequestTransition is the request state machine as a directed graph.
// approved / rejected / cancelled are terminal.
var AllowRequestTransition = map[RequestStatus][]RequestStatus{
	RequestStatusPending:     {RequestStatusUnderReview, RequestStatusApproved, RequestStatusRejected, RequestStatusCancelled},
	RequestStatusUnderReview: {RequestStatusApproved, RequestStatusRejected, RequestStatusCancelled},
	RequestStatusApproved:    {},
	RequestStatusRejected:    {},
	RequestStatusCancelled:   {},
}

// CanTransitionRequest reports whether from -> to is an allowed transition.
func CanTransitionRequest(from, to RequestStatus) bool {
	allowed, ok := AllowRequestTransition[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// ApplyRequestTransition moves the request and stamps the reviewer fields on
// any terminal transition. Only call after CanTransitionRequest.
func ApplyRequestTransition(r *OperationRequest, to RequestStatus, reviewerId int, notes string, now time.Time) error {
	if r == nil {
		return fmt.Errorf("operation request is nil")
	}
	from := r.Status
	if !CanTransitionRequest(from, to) {
		return fmt.Errorf("invalid request status transition: %s -> %s", from, to)
	}

	r.Status = to

	if to.IsTerminal() {
		r.ReviewedBy = &reviewerId
		t := now
		r.ReviewedAt = &t
		if notes != "" {
			r.ReviewNotes = notes
		}
	}
	return nil
}
