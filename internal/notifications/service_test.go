package notifications

import (
	"context"
	"errors"
	"testing"
	"time"
)

func seedNotification(t *testing.T, svc *Dispatcher, id, wallet string) {
	t.Helper()
	err := svc.Dispatch(context.Background(), Record{
		DeterministicID:        id,
		RecipientWalletAddress: wallet,
		Type:                   TypeGeneral,
		Title:                  "Heads up",
	})
	if err != nil {
		t.Fatalf("failed to seed notification %s: %v", id, err)
	}
}

func TestListIsRecipientScopedAndNewestFirst(t *testing.T) {
	db := openNotificationDatabase(t, "notifications_list")

	baseTime := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clockNow := baseTime
	dispatcher, err := NewDispatcher(DispatcherConfig{
		Database:   db,
		Clock:      func() time.Time { return clockNow },
		IDProvider: NewUUIDProvider(),
	})
	if err != nil {
		t.Fatalf("failed to build dispatcher: %v", err)
	}

	seedNotification(t, dispatcher, "n-old", "wallet-alice")
	clockNow = clockNow.Add(time.Hour)
	seedNotification(t, dispatcher, "n-new", "wallet-alice")
	seedNotification(t, dispatcher, "n-bob", "wallet-bob")

	service, err := NewService(ServiceConfig{
		Database: db,
		Clock:    func() time.Time { return clockNow },
	})
	if err != nil {
		t.Fatalf("failed to build service: %v", err)
	}

	rows, err := service.List(context.Background(), "wallet-alice")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected two notifications, got %d", len(rows))
	}
	if rows[0].ID != "n-new" || rows[1].ID != "n-old" {
		t.Fatalf("expected newest first, got %s then %s", rows[0].ID, rows[1].ID)
	}
}

func TestListHonorsReadWindow(t *testing.T) {
	db := openNotificationDatabase(t, "notifications_window")

	baseTime := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clockNow := baseTime
	dispatcher, err := NewDispatcher(DispatcherConfig{
		Database:   db,
		Clock:      func() time.Time { return clockNow },
		IDProvider: NewUUIDProvider(),
	})
	if err != nil {
		t.Fatalf("failed to build dispatcher: %v", err)
	}

	seedNotification(t, dispatcher, "n-stale", "wallet-alice")
	clockNow = clockNow.AddDate(0, 0, 20)
	seedNotification(t, dispatcher, "n-fresh", "wallet-alice")

	service, err := NewService(ServiceConfig{
		Database:   db,
		Clock:      func() time.Time { return clockNow },
		ReadWindow: 10 * 24 * time.Hour,
	})
	if err != nil {
		t.Fatalf("failed to build service: %v", err)
	}

	rows, err := service.List(context.Background(), "wallet-alice")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(rows) != 1 || rows[0].ID != "n-fresh" {
		t.Fatalf("expected only the fresh notification, got %v", rows)
	}
}

func TestMarkReadIsRecipientScoped(t *testing.T) {
	db := openNotificationDatabase(t, "notifications_mark_read")
	dispatcher := newTestDispatcher(t, db, nil)
	seedNotification(t, dispatcher, "n-1", "wallet-alice")

	service, err := NewService(ServiceConfig{Database: db})
	if err != nil {
		t.Fatalf("failed to build service: %v", err)
	}

	if err := service.MarkRead(context.Background(), "wallet-bob", "n-1"); !errors.Is(err, ErrNotificationNotFound) {
		t.Fatalf("cross-recipient mark-read must look missing, got %v", err)
	}
	if err := service.MarkRead(context.Background(), "wallet-alice", "n-1"); err != nil {
		t.Fatalf("mark-read failed: %v", err)
	}
	if err := service.MarkRead(context.Background(), "wallet-alice", "n-missing"); !errors.Is(err, ErrNotificationNotFound) {
		t.Fatalf("expected not-found error, got %v", err)
	}

	var reloaded Notification
	if err := db.Where("id = ?", "n-1").Take(&reloaded).Error; err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if !reloaded.IsRead {
		t.Fatal("expected notification to be read")
	}
}

func TestMarkAllReadLeavesOtherRecipientsUntouched(t *testing.T) {
	db := openNotificationDatabase(t, "notifications_mark_all")
	dispatcher := newTestDispatcher(t, db, nil)
	seedNotification(t, dispatcher, "n-a1", "wallet-alice")
	seedNotification(t, dispatcher, "n-a2", "wallet-alice")
	seedNotification(t, dispatcher, "n-b1", "wallet-bob")

	service, err := NewService(ServiceConfig{Database: db})
	if err != nil {
		t.Fatalf("failed to build service: %v", err)
	}

	updated, err := service.MarkAllRead(context.Background(), "wallet-alice")
	if err != nil {
		t.Fatalf("mark-all-read failed: %v", err)
	}
	if updated != 2 {
		t.Fatalf("expected two updates, got %d", updated)
	}

	var bobUnread int64
	err = db.Model(&Notification{}).
		Where("recipient_wallet_address = ? AND is_read = ?", "wallet-bob", false).
		Count(&bobUnread).Error
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if bobUnread != 1 {
		t.Fatal("mark-all-read must not touch other recipients")
	}

	// Repeating the call finds nothing left to update.
	updated, err = service.MarkAllRead(context.Background(), "wallet-alice")
	if err != nil {
		t.Fatalf("repeat mark-all-read failed: %v", err)
	}
	if updated != 0 {
		t.Fatalf("expected zero updates on repeat, got %d", updated)
	}
}
