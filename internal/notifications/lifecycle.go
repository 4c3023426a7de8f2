package notifications

import (
	"context"
	"fmt"

	"github.com/RallyPointLabs/rallypoint/backend/internal/governance"
	"github.com/RallyPointLabs/rallypoint/backend/internal/squads"
)

// LifecycleNotifier adapts the dispatcher to the governance and squad event
// interfaces. Every event type here is dedupable, so ids are derived from
// the event identity and a replayed transition cannot double-notify.
type LifecycleNotifier struct {
	dispatcher *Dispatcher
}

// NewLifecycleNotifier constructs the adapter.
func NewLifecycleNotifier(dispatcher *Dispatcher) *LifecycleNotifier {
	return &LifecycleNotifier{dispatcher: dispatcher}
}

var lifecycleTitles = map[string]string{
	TypeProposalCreated:     "Proposal created",
	TypeProposalActivated:   "Voting is open",
	TypeProposalPassed:      "Proposal passed",
	TypeProposalFailed:      "Proposal failed",
	TypeProposalExpired:     "Proposal expired",
	TypeProposalExecuted:    "Proposal executed",
	TypeProposalBroadcasted: "Proposal announced",
}

// NotifyProposal stores one notification for a proposal lifecycle event,
// addressed to the proposal's creator.
func (n *LifecycleNotifier) NotifyProposal(ctx context.Context, proposal governance.Proposal, event string) error {
	title, ok := lifecycleTitles[event]
	if !ok {
		title = "Proposal update"
	}
	return n.dispatcher.Dispatch(ctx, Record{
		DeterministicID:        fmt.Sprintf("proposal:%d:%s", proposal.ID, event),
		RecipientWalletAddress: proposal.CreatorWallet,
		Type:                   event,
		Title:                  title,
		Message:                fmt.Sprintf("%s: %s", title, proposal.Title),
		Payload: map[string]any{
			"proposal_id": proposal.ID,
			"slug":        proposal.Slug,
			"squad_id":    proposal.SquadID,
			"status":      string(proposal.Status),
		},
	})
}

// SquadTierChanged fans one tier-change notification out to every squad
// member in a single batched insert.
func (n *LifecycleNotifier) SquadTierChanged(ctx context.Context, squad squads.Squad, members []squads.Member, previousTier, newTier int) error {
	if len(members) == 0 {
		return nil
	}

	records := make([]Record, 0, len(members))
	for _, member := range members {
		records = append(records, Record{
			DeterministicID:        fmt.Sprintf("squad:%d:tier:%d:%s", squad.ID, newTier, member.WalletAddress),
			RecipientWalletAddress: member.WalletAddress,
			Type:                   TypeSquadTierChanged,
			Title:                  "Squad tier changed",
			Message:                fmt.Sprintf("%s moved from tier %d to tier %d", squad.Name, previousTier, newTier),
			Payload: map[string]any{
				"squad_id":      squad.ID,
				"squad_name":    squad.Name,
				"previous_tier": previousTier,
				"new_tier":      newTier,
			},
		})
	}
	return n.dispatcher.DispatchBatch(ctx, records)
}
