package notifications

import (
	"time"

	"gorm.io/datatypes"
)

// Notification types. Lifecycle types use deterministic ids and are
// dedupable; general notifications get random ids.
const (
	TypeProposalCreated     = "proposal_created"
	TypeProposalActivated   = "proposal_activated"
	TypeProposalPassed      = "proposal_passed"
	TypeProposalFailed      = "proposal_failed"
	TypeProposalExpired     = "proposal_expired"
	TypeProposalExecuted    = "proposal_executed"
	TypeProposalBroadcasted = "proposal_broadcasted"
	TypeSquadInvite         = "squad_invite"
	TypeSquadTierChanged    = "squad_tier_changed"
	TypeGeneral             = "general"
)

// Notification is a write-once inbox record. The id doubles as the
// idempotency key: dedupable event types supply a deterministic id and rely
// on the store ignoring the second insert.
type Notification struct {
	ID                     string            `gorm:"column:id;primaryKey;size:190;not null"`
	RecipientWalletAddress string            `gorm:"column:recipient_wallet_address;size:190;not null;index:idx_notifications_recipient_created,priority:1"`
	Type                   string            `gorm:"column:type;size:64;not null"`
	Title                  string            `gorm:"column:title;size:320;not null"`
	Message                string            `gorm:"column:message;type:text;not null"`
	Payload                datatypes.JSONMap `gorm:"column:payload"`
	IsRead                 bool              `gorm:"column:is_read;not null;default:false"`
	CreatedAt              time.Time         `gorm:"column:created_at;not null;index:idx_notifications_recipient_created,priority:2"`
}

// TableName provides the explicit table binding for GORM.
func (Notification) TableName() string {
	return "notifications"
}
