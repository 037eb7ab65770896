package workflow

import (
	"context"
	"errors"
	"time"

	"github.com/nuzumhq/fleet_backend/config"
	"github.com/nuzumhq/fleet_backend/models"
	"github.com/nuzumhq/fleet_backend/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func fetchRequestForUpdate(tx *gorm.DB, requestId int) (*models.OperationRequest, error) {
	var request models.OperationRequest
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&request, requestId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &request, nil
}

func saveTransition(tx *gorm.DB, request *models.OperationRequest, from models.RequestStatus, notes string) error {
	if err := tx.Model(&models.OperationRequest{}).
		Where("id = ?", request.ID).
		Updates(map[string]interface{}{
			"status":       request.Status,
			"reviewed_by":  request.ReviewedBy,
			"reviewed_at":  request.ReviewedAt,
			"review_notes": request.ReviewNotes,
		}).Error; err != nil {
		return err
	}
	return models.SaveHistoryTransition(tx, request.ID, from, request.Status, notes)
}

// RejectRequest flips a pending or under_review request to rejected. Admin
// only. No vehicle state change, no archive upload.
func RejectRequest(ctx context.Context, requestId int, reason string) error {
	reviewerId, ok := utils.GetUserIdFromContext(ctx)
	if !ok || !utils.IsAdminFromContext(ctx) {
		return utils.ErrorForbidden
	}

	ctx, cancel := context.WithTimeout(ctx, config.OperationDeadline())
	defer cancel()

	db := config.GetDB()
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		request, err := fetchRequestForUpdate(tx, requestId)
		if err != nil {
			return err
		}
		if request.Status.IsTerminal() {
			return utils.ErrorConflict
		}
		from := request.Status
		if err := models.ApplyRequestTransition(request, models.RequestStatusRejected, reviewerId, reason, time.Now()); err != nil {
			return err
		}
		return saveTransition(tx, request, from, reason)
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return utils.ErrorTimeout
		}
		return err
	}

	notifyTerminal(ctx, requestId, models.NotificationRequestRejected)
	return nil
}

// CancelRequest flips a request to cancelled. Allowed for the original
// requester while the request is pending, and for admins at any non-terminal
// point.
func CancelRequest(ctx context.Context, requestId int, reason string) error {
	actorId, ok := utils.GetUserIdFromContext(ctx)
	if !ok {
		return utils.ErrorForbidden
	}
	isAdmin := utils.IsAdminFromContext(ctx)

	ctx, cancel := context.WithTimeout(ctx, config.OperationDeadline())
	defer cancel()

	db := config.GetDB()
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		request, err := fetchRequestForUpdate(tx, requestId)
		if err != nil {
			return err
		}
		if request.Status.IsTerminal() {
			return utils.ErrorConflict
		}
		if !isAdmin {
			if request.RequestedBy != actorId || request.Status != models.RequestStatusPending {
				return utils.ErrorForbidden
			}
		}
		from := request.Status
		if err := models.ApplyRequestTransition(request, models.RequestStatusCancelled, actorId, reason, time.Now()); err != nil {
			return err
		}
		return saveTransition(tx, request, from, reason)
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return utils.ErrorTimeout
		}
		return err
	}

	notifyTerminal(ctx, requestId, models.NotificationRequestCancelled)
	return nil
}

// TakeForReview moves a pending request to under_review so other reviewers
// see it is being handled. Advisory only; it does not block a direct
// approval.
func TakeForReview(ctx context.Context, requestId int) error {
	_, ok := utils.GetUserIdFromContext(ctx)
	if !ok || !utils.IsAdminFromContext(ctx) {
		return utils.ErrorForbidden
	}

	ctx, cancel := context.WithTimeout(ctx, config.OperationDeadline())
	defer cancel()

	db := config.GetDB()
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		request, err := fetchRequestForUpdate(tx, requestId)
		if err != nil {
			return err
		}
		if request.Status != models.RequestStatusPending {
			return utils.ErrorConflict
		}
		from := request.Status
		if err := models.ApplyRequestTransition(request, models.RequestStatusUnderReview, 0, "", time.Now()); err != nil {
			return err
		}
		return saveTransition(tx, request, from, "")
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return utils.ErrorTimeout
		}
		return err
	}

	notifyTaken(ctx, requestId)
	return nil
}
