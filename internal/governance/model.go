package governance

import (
	"time"
)

// Status enumerates the proposal lifecycle states. Transitions are monotonic
// and only follow the edges applied by the scheduler.
type Status string

const (
	StatusDraft       Status = "draft"
	StatusActive      Status = "active"
	StatusPassed      Status = "passed"
	StatusFailed      Status = "failed"
	StatusExecuted    Status = "executed"
	StatusBroadcasted Status = "broadcasted"
	StatusExpired     Status = "expired"
	StatusArchived    Status = "archived"
)

// Choice enumerates the supported vote choices.
type Choice string

const (
	ChoiceUp      Choice = "up"
	ChoiceDown    Choice = "down"
	ChoiceAbstain Choice = "abstain"
)

// ValidChoice reports whether the raw value names a supported choice.
func ValidChoice(raw string) bool {
	switch Choice(raw) {
	case ChoiceUp, ChoiceDown, ChoiceAbstain:
		return true
	}
	return false
}

// Lifecycle event names carried into notifications; each matches the target
// state of the transition that produced it.
const (
	EventProposalCreated     = "proposal_created"
	EventProposalActivated   = "proposal_activated"
	EventProposalPassed      = "proposal_passed"
	EventProposalFailed      = "proposal_failed"
	EventProposalExpired     = "proposal_expired"
	EventProposalExecuted    = "proposal_executed"
	EventProposalBroadcasted = "proposal_broadcasted"
)

// Proposal models a squad governance proposal. Tallies hold summed voter
// weight per choice and are only mutated while the proposal is active;
// SnapshotTotalPoints freezes the eligible squad weight at activation.
type Proposal struct {
	ID                  int64      `gorm:"column:id;primaryKey"`
	Slug                string     `gorm:"column:slug;size:190;not null;uniqueIndex"`
	SquadID             int64      `gorm:"column:squad_id;not null;index"`
	CreatorUserID       string     `gorm:"column:creator_user_id;size:190;not null"`
	CreatorWallet       string     `gorm:"column:creator_wallet;size:190;not null"`
	Title               string     `gorm:"column:title;size:320;not null"`
	Description         string     `gorm:"column:description;type:text;not null"`
	Status              Status     `gorm:"column:status;size:32;not null;index:idx_proposals_status_window,priority:1"`
	EpochStart          time.Time  `gorm:"column:epoch_start;not null;index:idx_proposals_status_window,priority:2"`
	EpochEnd            time.Time  `gorm:"column:epoch_end;not null"`
	SnapshotTotalPoints int64      `gorm:"column:snapshot_total_points;not null;default:0"`
	TallyUp             int64      `gorm:"column:tally_up;not null;default:0"`
	TallyDown           int64      `gorm:"column:tally_down;not null;default:0"`
	TallyAbstain        int64      `gorm:"column:tally_abstain;not null;default:0"`
	CreatedAt           time.Time  `gorm:"column:created_at;not null"`
	ActivatedAt         *time.Time `gorm:"column:activated_at"`
	DecidedAt           *time.Time `gorm:"column:decided_at"`
	ExecutedAt          *time.Time `gorm:"column:executed_at"`
	BroadcastedAt       *time.Time `gorm:"column:broadcasted_at"`
}

// TableName provides the explicit table binding for GORM.
func (Proposal) TableName() string {
	return "proposals"
}

// Vote records a single member's choice on a proposal. The voter's point
// weight is frozen at cast time and the squad id is denormalized from the
// proposal for squad-scoped queries. The unique index on
// (proposal_id, voter_user_id) is the store-level one-vote-per-member guard.
type Vote struct {
	ID                int64     `gorm:"column:id;primaryKey"`
	ProposalID        int64     `gorm:"column:proposal_id;not null;uniqueIndex:idx_votes_proposal_voter,priority:1"`
	VoterUserID       string    `gorm:"column:voter_user_id;size:190;not null;uniqueIndex:idx_votes_proposal_voter,priority:2"`
	VoterWallet       string    `gorm:"column:voter_wallet;size:190;not null"`
	SquadID           int64     `gorm:"column:squad_id;not null;index"`
	Choice            Choice    `gorm:"column:choice;size:16;not null"`
	VoterPointsAtCast int64     `gorm:"column:voter_points_at_cast;not null"`
	CreatedAt         time.Time `gorm:"column:created_at;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Vote) TableName() string {
	return "votes"
}

// TallySnapshot is the read-model returned to callers after a cast or when
// inspecting a proposal's current standing.
type TallySnapshot struct {
	Up                  int64 `json:"up"`
	Down                int64 `json:"down"`
	Abstain             int64 `json:"abstain"`
	SnapshotTotalPoints int64 `json:"snapshot_total_points"`
}

// Participation is the total weight that took part in the vote.
func (t TallySnapshot) Participation() int64 {
	return t.Up + t.Down + t.Abstain
}

func (p Proposal) tallySnapshot() TallySnapshot {
	return TallySnapshot{
		Up:                  p.TallyUp,
		Down:                p.TallyDown,
		Abstain:             p.TallyAbstain,
		SnapshotTotalPoints: p.SnapshotTotalPoints,
	}
}
