package squads

import (
	"time"
)

// UntieredValue marks a squad whose point total has not reached the lowest
// tier yet.
const UntieredValue = 0

// Squad is a member collective. TotalSquadPoints is maintained by the
// rewards pipeline; Tier is owned exclusively by the tier calculator and is
// never hand-edited.
type Squad struct {
	ID               int64     `gorm:"column:id;primaryKey"`
	Name             string    `gorm:"column:name;size:190;not null;uniqueIndex"`
	TotalSquadPoints int64     `gorm:"column:total_squad_points;not null;default:0"`
	Tier             int       `gorm:"column:tier;not null;default:0"`
	MemberCount      int       `gorm:"column:member_count;not null;default:0"`
	CreatedAt        time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName exposes the table backing squads.
func (Squad) TableName() string {
	return "squads"
}

// Member binds a user and wallet to a squad. A user belongs to at most one
// squad at a time.
type Member struct {
	UserID        string    `gorm:"column:user_id;primaryKey;size:190;not null"`
	SquadID       int64     `gorm:"column:squad_id;not null;index"`
	WalletAddress string    `gorm:"column:wallet_address;size:190;not null;index"`
	JoinedAt      time.Time `gorm:"column:joined_at;not null"`
}

// TableName exposes the table backing squad membership.
func (Member) TableName() string {
	return "squad_members"
}

// TierDefinition describes one rung of the tier ladder. MinPoints earns the
// tier; MaxMembers caps admission into squads holding it, checked only at
// join time.
type TierDefinition struct {
	Tier       int
	MinPoints  int64
	MaxMembers int
}
