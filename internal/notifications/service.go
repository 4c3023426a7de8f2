package notifications

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

// ErrNotificationNotFound indicates the id does not exist for the recipient.
// Cross-recipient reads are indistinguishable from missing rows.
var ErrNotificationNotFound = errors.New("notifications: notification not found")

// ServiceConfig describes the dependencies of the inbox service.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	ReadWindow time.Duration
}

// Service is the recipient-scoped inbox: listing, mark-read, mark-all-read.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	readWindow time.Duration
}

const defaultReadWindow = 30 * 24 * time.Hour

// NewService constructs the inbox service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	readWindow := cfg.ReadWindow
	if readWindow <= 0 {
		readWindow = defaultReadWindow
	}
	return &Service{
		db:         cfg.Database,
		clock:      clock,
		readWindow: readWindow,
	}, nil
}

// List returns the recipient's notifications inside the read window, newest
// first.
func (s *Service) List(ctx context.Context, recipientWallet string) ([]Notification, error) {
	cutoff := s.clock().UTC().Add(-s.readWindow)
	var rows []Notification
	err := s.db.WithContext(ctx).
		Where("recipient_wallet_address = ? AND created_at >= ?", recipientWallet, cutoff).
		Order("created_at DESC").
		Find(&rows).
		Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// MarkRead flips one of the recipient's notifications to read.
func (s *Service) MarkRead(ctx context.Context, recipientWallet, notificationID string) error {
	result := s.db.WithContext(ctx).
		Model(&Notification{}).
		Where("id = ? AND recipient_wallet_address = ?", notificationID, recipientWallet).
		Update("is_read", true)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotificationNotFound
	}
	return nil
}

// MarkAllRead flips every unread notification belonging to the recipient and
// returns how many changed. The recipient scope in the predicate is what
// keeps this from ever touching another recipient's inbox.
func (s *Service) MarkAllRead(ctx context.Context, recipientWallet string) (int64, error) {
	result := s.db.WithContext(ctx).
		Model(&Notification{}).
		Where("recipient_wallet_address = ? AND is_read = ?", recipientWallet, false).
		Update("is_read", true)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
