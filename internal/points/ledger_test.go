package points

import (
	"context"
	"errors"
	"testing"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func TestLedgerReads(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file:points_ledger?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Balance{}); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}

	balances := []Balance{
		{UserID: "alice", WalletAddress: "wallet-alice", SquadID: 7, Points: 1200},
		{UserID: "bob", WalletAddress: "wallet-bob", SquadID: 7, Points: 300},
		{UserID: "carol", WalletAddress: "wallet-carol", SquadID: 9, Points: 5000},
	}
	if err := db.Create(&balances).Error; err != nil {
		t.Fatalf("failed to seed balances: %v", err)
	}

	ledger, err := NewLedger(db)
	if err != nil {
		t.Fatalf("failed to build ledger: %v", err)
	}

	userPoints, err := ledger.UserPoints(context.Background(), "alice")
	if err != nil {
		t.Fatalf("user points failed: %v", err)
	}
	if userPoints != 1200 {
		t.Fatalf("expected 1200 points, got %d", userPoints)
	}

	if _, err := ledger.UserPoints(context.Background(), "nobody"); !errors.Is(err, ErrUnknownUser) {
		t.Fatalf("expected unknown user error, got %v", err)
	}

	squadPoints, err := ledger.SquadPoints(context.Background(), 7)
	if err != nil {
		t.Fatalf("squad points failed: %v", err)
	}
	if squadPoints != 1500 {
		t.Fatalf("expected 1500 points, got %d", squadPoints)
	}

	emptyPoints, err := ledger.SquadPoints(context.Background(), 404)
	if err != nil {
		t.Fatalf("empty squad points failed: %v", err)
	}
	if emptyPoints != 0 {
		t.Fatalf("expected zero points for empty squad, got %d", emptyPoints)
	}
}
