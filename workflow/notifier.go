package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/nuzumhq/fleet_backend/config"
	"github.com/nuzumhq/fleet_backend/models"
	"github.com/nuzumhq/fleet_backend/utils"
)

// The notifier is fire-and-forget: every function here swallows its own
// errors after logging. A lost notification never fails the command that
// triggered it. Duplicate deliveries are stopped by the unique
// (request_id, kind, channel, recipient) tuple on the notifications table.

var mailer utils.Mailer = utils.NewResendMailerFromEnv()

// SetMailer swaps the outbound mail channel, used by tests and by hosts that
// run without mail configured.
func SetMailer(m utils.Mailer) {
	if m == nil {
		mailer = utils.NoopMailer{}
		return
	}
	mailer = m
}

func insertNotification(ctx context.Context, n *models.Notification) {
	logger := config.GetLogger()
	db := config.GetDB()
	err := db.WithContext(ctx).Create(n).Error
	if err != nil && !utils.IsDuplicateKeyErr(err) {
		config.LogError(logger, "notifier.go", "insertNotification", "Create", n, err)
	}
	if err == nil {
		config.DeleteRedisKey(fmt.Sprintf("nuzum:unread_count:%d", n.RecipientId))
	}
}

func sendMail(ctx context.Context, recipient *models.User, requestId int, kind models.NotificationKind, subject, body string) {
	logger := config.GetLogger()
	if recipient.Email == "" {
		return
	}

	// the mail row doubles as the dedupe marker for the email channel
	db := config.GetDB()
	row := models.Notification{
		RequestId:   requestId,
		Kind:        kind,
		Channel:     models.ChannelEmail,
		RecipientId: recipient.ID,
		TitleAr:     subject,
		BodyAr:      body,
	}
	if err := db.WithContext(ctx).Create(&row).Error; err != nil {
		if !utils.IsDuplicateKeyErr(err) {
			config.LogError(logger, "notifier.go", "sendMail", "Create", row, err)
		}
		return
	}

	mailCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	err := mailer.Send(mailCtx, utils.MailMessage{
		To:      []string{recipient.Email},
		Subject: subject,
		HTML:    "<div dir=\"rtl\">" + body + "</div>",
	})
	if err != nil {
		config.LogError(logger, "notifier.go", "sendMail", "Send", recipient.Email, err)
	}
}

// requestContextForNotify loads the request and its vehicle without holding
// any locks; called after commit.
func requestContextForNotify(ctx context.Context, requestId int) (*models.OperationRequest, *models.Vehicle, error) {
	request, err := GetOperationRequest(ctx, requestId)
	if err != nil {
		return nil, nil, err
	}
	vehicle, err := models.GetVehicle(ctx, request.VehicleId)
	if err != nil {
		return nil, nil, err
	}
	return request, vehicle, nil
}

// notifyProposed fans out a new pending request to the reviewers: all admins,
// plus fleet admins for accident requests.
func notifyProposed(ctx context.Context, requestId int) {
	logger := config.GetLogger()
	request, vehicle, err := requestContextForNotify(ctx, requestId)
	if err != nil {
		config.LogError(logger, "notifier.go", "notifyProposed", "requestContextForNotify", requestId, err)
		return
	}

	title := fmt.Sprintf("طلب جديد: %s - مركبة %s", request.OperationType.ArabicLabel(), vehicle.PlateNumber)
	body := request.Title
	if body == "" {
		body = request.Description
	}

	recipients, err := models.ListAdmins(ctx)
	if err != nil {
		config.LogError(logger, "notifier.go", "notifyProposed", "ListAdmins", requestId, err)
		return
	}
	if request.OperationType == models.OperationTypeAccident {
		fleetAdmins, err := models.ListFleetAdmins(ctx)
		if err == nil {
			recipients = append(recipients, fleetAdmins...)
		}
	}

	seen := make(map[int]bool, len(recipients))
	for _, admin := range recipients {
		if seen[admin.ID] || admin.ID == request.RequestedBy {
			continue
		}
		seen[admin.ID] = true
		insertNotification(ctx, &models.Notification{
			RequestId:   request.ID,
			Kind:        models.NotificationRequestCreated,
			Channel:     models.ChannelInApp,
			RecipientId: admin.ID,
			TitleAr:     title,
			BodyAr:      body,
		})
		if request.Priority == models.PriorityUrgent || request.OperationType == models.OperationTypeAccident {
			sendMail(ctx, admin, request.ID, models.NotificationRequestCreated, title, body)
		}
	}
}

// notifyTaken tells the requester someone picked up the request.
func notifyTaken(ctx context.Context, requestId int) {
	logger := config.GetLogger()
	request, vehicle, err := requestContextForNotify(ctx, requestId)
	if err != nil {
		config.LogError(logger, "notifier.go", "notifyTaken", "requestContextForNotify", requestId, err)
		return
	}
	insertNotification(ctx, &models.Notification{
		RequestId:   request.ID,
		Kind:        models.NotificationRequestTaken,
		Channel:     models.ChannelInApp,
		RecipientId: request.RequestedBy,
		TitleAr:     fmt.Sprintf("طلبك قيد المراجعة - مركبة %s", vehicle.PlateNumber),
		BodyAr:      request.Title,
	})
}

func terminalTitle(kind models.NotificationKind, request *models.OperationRequest, vehicle *models.Vehicle) string {
	label := request.OperationType.ArabicLabel()
	switch kind {
	case models.NotificationRequestApproved:
		return fmt.Sprintf("تم اعتماد طلب %s - مركبة %s", label, vehicle.PlateNumber)
	case models.NotificationRequestRejected:
		return fmt.Sprintf("تم رفض طلب %s - مركبة %s", label, vehicle.PlateNumber)
	case models.NotificationRequestCancelled:
		return fmt.Sprintf("تم إلغاء طلب %s - مركبة %s", label, vehicle.PlateNumber)
	}
	return fmt.Sprintf("تحديث طلب %s - مركبة %s", label, vehicle.PlateNumber)
}

// notifyTerminal fans out a terminal transition: requester always, reviewer
// when distinct, fleet admins for accidents.
func notifyTerminal(ctx context.Context, requestId int, kind models.NotificationKind) {
	logger := config.GetLogger()
	request, vehicle, err := requestContextForNotify(ctx, requestId)
	if err != nil {
		config.LogError(logger, "notifier.go", "notifyTerminal", "requestContextForNotify", requestId, err)
		return
	}

	title := terminalTitle(kind, request, vehicle)
	body := request.ReviewNotes
	if body == "" {
		body = request.Title
	}

	recipientIds := []int{request.RequestedBy}
	if request.ReviewedBy != nil && *request.ReviewedBy != request.RequestedBy && *request.ReviewedBy > 0 {
		recipientIds = append(recipientIds, *request.ReviewedBy)
	}

	for _, id := range recipientIds {
		insertNotification(ctx, &models.Notification{
			RequestId:   request.ID,
			Kind:        kind,
			Channel:     models.ChannelInApp,
			RecipientId: id,
			TitleAr:     title,
			BodyAr:      body,
		})
	}

	if request.OperationType == models.OperationTypeAccident {
		fleetAdmins, err := models.ListFleetAdmins(ctx)
		if err == nil {
			for _, admin := range fleetAdmins {
				insertNotification(ctx, &models.Notification{
					RequestId:   request.ID,
					Kind:        kind,
					Channel:     models.ChannelInApp,
					RecipientId: admin.ID,
					TitleAr:     title,
					BodyAr:      body,
				})
			}
		}
	}

	if requester, err := models.GetUser(ctx, request.RequestedBy); err == nil {
		sendMail(ctx, requester, request.ID, kind, title, body)
	}
}

// notifyArchiveFailed alerts admins that a request's archive upload went
// DEAD and needs operator action.
func notifyArchiveFailed(ctx context.Context, requestId int, lastError string) {
	logger := config.GetLogger()
	request, vehicle, err := requestContextForNotify(ctx, requestId)
	if err != nil {
		config.LogError(logger, "notifier.go", "notifyArchiveFailed", "requestContextForNotify", requestId, err)
		return
	}

	title := fmt.Sprintf("فشل أرشفة طلب %s - مركبة %s", request.OperationType.ArabicLabel(), vehicle.PlateNumber)
	admins, err := models.ListAdmins(ctx)
	if err != nil {
		return
	}
	for _, admin := range admins {
		insertNotification(ctx, &models.Notification{
			RequestId:   request.ID,
			Kind:        models.NotificationArchiveFailed,
			Channel:     models.ChannelInApp,
			RecipientId: admin.ID,
			TitleAr:     title,
			BodyAr:      lastError,
		})
	}
}

// publishTerminalEvent emits the operation event to Pub/Sub, best-effort.
func publishTerminalEvent(ctx context.Context, request *models.OperationRequest, state *DerivedState) {
	logger := config.GetLogger()
	vehicle, err := models.GetVehicle(ctx, request.VehicleId)
	if err != nil {
		return
	}

	event := config.OperationEvent{
		RequestId:     request.ID,
		VehicleId:     vehicle.ID,
		PlateNumber:   vehicle.PlateNumber,
		OperationType: string(request.OperationType),
		Status:        string(request.Status),
	}
	if request.ReviewedAt != nil {
		event.ReviewedAt = *request.ReviewedAt
	}
	if request.ReviewedBy != nil {
		if reviewer, err := models.GetUser(ctx, *request.ReviewedBy); err == nil {
			event.ReviewedBy = reviewer.Username
		}
	}
	if state != nil {
		event.VehicleStatus = string(state.Status)
		event.CurrentDriver = state.CurrentDriver
	}
	if correlationId, ok := utils.GetCorrelationIdFromContext(ctx); ok {
		event.CorrelationId = correlationId
	}

	if _, err := config.PublishOperationEvent(ctx, event); err != nil {
		config.LogError(logger, "notifier.go", "publishTerminalEvent", "PublishOperationEvent", request.ID, err)
	}
}

// NotifyDocumentExpiry creates one in-app notification per expiring document
// for every admin. RequestId carries the document id; the tuple keeps daily
// scans from duplicating rows.
func NotifyDocumentExpiry(ctx context.Context, window time.Duration) (int, error) {
	documents, err := models.ListExpiringDocuments(ctx, time.Now().Add(window))
	if err != nil {
		return 0, err
	}
	admins, err := models.ListAdmins(ctx)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, doc := range documents {
		vehicle, err := models.GetVehicle(ctx, doc.VehicleId)
		if err != nil {
			continue
		}
		title := fmt.Sprintf("وثيقة على وشك الانتهاء - مركبة %s", vehicle.PlateNumber)
		body := fmt.Sprintf("تنتهي %s بتاريخ %s", doc.Kind.ArabicLabel(), utils.FormatDateArabic(doc.ExpiryDate))
		for _, admin := range admins {
			insertNotification(ctx, &models.Notification{
				RequestId:   doc.ID,
				Kind:        models.NotificationDocumentExpiry,
				Channel:     models.ChannelInApp,
				RecipientId: admin.ID,
				TitleAr:     title,
				BodyAr:      body,
			})
			count++
		}
	}
	return count, nil
}
