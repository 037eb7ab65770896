package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nuzumhq/fleet_backend/config"
	"github.com/nuzumhq/fleet_backend/utils"
)

type NotificationKind string

const (
	NotificationRequestCreated   NotificationKind = "request_created"
	NotificationRequestTaken     NotificationKind = "request_taken"
	NotificationRequestApproved  NotificationKind = "request_approved"
	NotificationRequestRejected  NotificationKind = "request_rejected"
	NotificationRequestCancelled NotificationKind = "request_cancelled"
	NotificationArchiveFailed    NotificationKind = "archive_failed"
	NotificationDocumentExpiry   NotificationKind = "document_expiry"
)

type NotificationChannel string

const (
	ChannelInApp NotificationChannel = "in_app"
	ChannelEmail NotificationChannel = "email"
)

// Notification is one delivery to one recipient. The unique tuple keeps
// retried fan-outs from duplicating rows.
type Notification struct {
	ID int `gorm:"primary_key" json:"id"`

	RequestId   int                 `gorm:"not null;index:uniq_notification,unique" json:"request_id"`
	Kind        NotificationKind    `gorm:"type:varchar(30);not null;index:uniq_notification,unique" json:"kind"`
	Channel     NotificationChannel `gorm:"type:varchar(10);not null;index:uniq_notification,unique" json:"channel"`
	RecipientId int                 `gorm:"not null;index:uniq_notification,unique;index:idx_notification_recipient" json:"recipient_id"`

	TitleAr string `gorm:"size:300;not null" json:"title_ar"`
	BodyAr  string `gorm:"size:1000" json:"body_ar"`

	IsRead bool       `gorm:"not null;default:false;index:idx_notification_recipient" json:"is_read"`
	ReadAt *time.Time `json:"read_at"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func unreadCountCacheKey(recipientId int) string {
	return fmt.Sprintf("nuzum:unread_count:%d", recipientId)
}

// MarkNotificationRead flips a single notification for the calling user.
func MarkNotificationRead(ctx context.Context, id int) error {
	db := config.GetDB()
	userId, ok := utils.GetUserIdFromContext(ctx)
	if !ok {
		return errors.New("user id is required")
	}

	var n Notification
	if err := db.WithContext(ctx).First(&n, "id = ? AND recipient_id = ?", id, userId).Error; err != nil {
		return utils.ErrorRecordNotFound
	}
	if n.IsRead {
		return nil
	}
	now := time.Now()
	if err := db.WithContext(ctx).Model(&n).
		Updates(map[string]interface{}{"is_read": true, "read_at": now}).Error; err != nil {
		return err
	}
	config.DeleteRedisKey(unreadCountCacheKey(userId))
	return nil
}

// MarkAllNotificationsRead clears the unread list for the calling user.
func MarkAllNotificationsRead(ctx context.Context) error {
	db := config.GetDB()
	userId, ok := utils.GetUserIdFromContext(ctx)
	if !ok {
		return errors.New("user id is required")
	}

	now := time.Now()
	if err := db.WithContext(ctx).Model(&Notification{}).
		Where("recipient_id = ? AND channel = ? AND is_read = ?", userId, ChannelInApp, false).
		Updates(map[string]interface{}{"is_read": true, "read_at": now}).Error; err != nil {
		return err
	}
	config.DeleteRedisKey(unreadCountCacheKey(userId))
	return nil
}

// UnreadNotificationCount serves the badge counter, cached in redis for a
// minute when redis is up.
func UnreadNotificationCount(ctx context.Context) (int64, error) {
	db := config.GetDB()
	userId, ok := utils.GetUserIdFromContext(ctx)
	if !ok {
		return 0, errors.New("user id is required")
	}
	cacheKey := unreadCountCacheKey(userId)

	var cached int64
	if found, err := config.GetRedisObject(cacheKey, &cached); err == nil && found {
		return cached, nil
	}

	var count int64
	if err := db.WithContext(ctx).Model(&Notification{}).
		Where("recipient_id = ? AND channel = ? AND is_read = ?", userId, ChannelInApp, false).
		Count(&count).Error; err != nil {
		return 0, err
	}
	config.SetRedisObject(cacheKey, count, time.Minute)
	return count, nil
}

// ListNotifications returns the calling user's in-app notifications, newest
// first. Email rows exist only as delivery dedupe markers and never surface.
func ListNotifications(ctx context.Context, onlyUnread bool, limit int) ([]Notification, error) {
	db := config.GetDB()
	userId, ok := utils.GetUserIdFromContext(ctx)
	if !ok {
		return nil, errors.New("user id is required")
	}

	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query := db.WithContext(ctx).Where("recipient_id = ? AND channel = ?", userId, ChannelInApp)
	if onlyUnread {
		query = query.Where("is_read = ?", false)
	}
	var items []Notification
	if err := query.Order("created_at DESC, id DESC").Limit(limit).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}
