package points

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Balance is the authoritative per-user point total. Accrual is owned by the
// platform's rewards pipeline; the governance core only reads it.
type Balance struct {
	UserID        string    `gorm:"column:user_id;primaryKey;size:190;not null"`
	WalletAddress string    `gorm:"column:wallet_address;size:190;not null;index"`
	SquadID       int64     `gorm:"column:squad_id;not null;index"`
	Points        int64     `gorm:"column:points;not null;default:0"`
	UpdatedAt     time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName exposes the table backing point balances.
func (Balance) TableName() string {
	return "point_balances"
}

// ErrUnknownUser indicates no balance row exists for the requested user.
var ErrUnknownUser = errors.New("points: unknown user")

// Ledger provides read access to point balances.
type Ledger struct {
	db *gorm.DB
}

// NewLedger constructs a ledger reader over the shared database handle.
func NewLedger(db *gorm.DB) (*Ledger, error) {
	if db == nil {
		return nil, fmt.Errorf("points: database connection required")
	}
	return &Ledger{db: db}, nil
}

// UserPoints returns the current point total for the given user.
func (l *Ledger) UserPoints(ctx context.Context, userID string) (int64, error) {
	var balance Balance
	err := l.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Take(&balance).
		Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, ErrUnknownUser
	}
	if err != nil {
		return 0, err
	}
	return balance.Points, nil
}

// SquadPoints returns the summed point weight held by a squad's members. The
// lifecycle scheduler captures this as a proposal's voting snapshot at
// activation time.
func (l *Ledger) SquadPoints(ctx context.Context, squadID int64) (int64, error) {
	var total int64
	err := l.db.WithContext(ctx).
		Model(&Balance{}).
		Where("squad_id = ?", squadID).
		Select("COALESCE(SUM(points), 0)").
		Scan(&total).
		Error
	if err != nil {
		return 0, err
	}
	return total, nil
}
