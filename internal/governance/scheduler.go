package governance

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// TickRecorder receives tick observations for metrics export.
type TickRecorder interface {
	RecordTransition(target Status)
	RecordTickFailure(stage string)
}

type nopTickRecorder struct{}

func (nopTickRecorder) RecordTransition(Status)  {}
func (nopTickRecorder) RecordTickFailure(string) {}

// TickFailure records one proposal that errored during a tick. The proposal
// stays in its current state and is retried on the next tick.
type TickFailure struct {
	ProposalID int64  `json:"proposal_id"`
	Stage      string `json:"stage"`
	Reason     string `json:"reason"`
}

// TickSummary reports what one tick accomplished.
type TickSummary struct {
	Activated     int           `json:"activated"`
	Decided       int           `json:"decided"`
	Expired       int           `json:"expired"`
	Executed      int           `json:"executed"`
	Broadcasted   int           `json:"broadcasted"`
	Archived      int           `json:"archived"`
	SquadsChecked int           `json:"squads_checked"`
	SquadsUpdated int           `json:"squads_updated"`
	Failures      []TickFailure `json:"failures,omitempty"`
}

const (
	stageActivate  = "activate"
	stageDecide    = "decide"
	stageExecute   = "execute"
	stageBroadcast = "broadcast"
	stageArchive   = "archive"
	stageTiers     = "tier_batch"
	stageInvariant = "invariant"
)

// RunTick drives one lifecycle pass: activate due drafts, decide closed
// windows, retry execution and broadcast side effects, archive retained
// terminal proposals, then sweep squad tiers. Every transition is a
// conditional write keyed on the expected prior status, so overlapping or
// repeated invocations apply each transition at most once and a tick with no
// eligible proposals is a no-op. Per-proposal failures are collected into the
// summary; they never abort the remaining scan.
func (s *Service) RunTick(ctx context.Context) (TickSummary, error) {
	summary := TickSummary{}
	now := s.clock().UTC()

	s.activateDue(ctx, now, &summary)
	s.decideDue(ctx, now, &summary)
	s.executeDue(ctx, &summary)
	s.broadcastDue(ctx, &summary)
	s.archiveDue(ctx, now, &summary)
	s.sweepTiers(ctx, &summary)

	s.logger.Info("lifecycle tick completed",
		zap.Int("activated", summary.Activated),
		zap.Int("decided", summary.Decided),
		zap.Int("expired", summary.Expired),
		zap.Int("executed", summary.Executed),
		zap.Int("broadcasted", summary.Broadcasted),
		zap.Int("archived", summary.Archived),
		zap.Int("squads_checked", summary.SquadsChecked),
		zap.Int("squads_updated", summary.SquadsUpdated),
		zap.Int("failures", len(summary.Failures)))

	return summary, nil
}

func (s *Service) recordFailure(summary *TickSummary, proposalID int64, stage string, err error) {
	summary.Failures = append(summary.Failures, TickFailure{
		ProposalID: proposalID,
		Stage:      stage,
		Reason:     err.Error(),
	})
	s.metrics.RecordTickFailure(stage)
	s.logger.Warn("tick item failed",
		zap.Int64("proposal_id", proposalID),
		zap.String("stage", stage),
		zap.Error(err))
}

// activateDue moves drafts whose window has opened into active, capturing the
// squad's eligible point weight as the voting snapshot at this instant.
func (s *Service) activateDue(ctx context.Context, now time.Time, summary *TickSummary) {
	candidates, err := s.fetchCandidates(ctx, `status = ? AND epoch_start <= ?`, []any{StatusDraft, now})
	if err != nil {
		s.recordFailure(summary, 0, stageActivate, err)
		return
	}

	for _, proposal := range candidates {
		snapshot, err := s.ledger.SquadPoints(ctx, proposal.SquadID)
		if err != nil {
			s.recordFailure(summary, proposal.ID, stageActivate, err)
			continue
		}

		result := s.db.WithContext(ctx).Exec(
			`UPDATE proposals
			 SET status = ?, snapshot_total_points = ?, activated_at = COALESCE(activated_at, ?)
			 WHERE id = ? AND status = ?`,
			StatusActive,
			snapshot,
			now,
			proposal.ID,
			StatusDraft,
		)
		if result.Error != nil {
			s.recordFailure(summary, proposal.ID, stageActivate, result.Error)
			continue
		}
		if result.RowsAffected == 0 {
			// Another invocation won the transition.
			continue
		}

		summary.Activated++
		s.metrics.RecordTransition(StatusActive)
		proposal.Status = StatusActive
		proposal.SnapshotTotalPoints = snapshot
		s.notify(ctx, proposal, EventProposalActivated)
	}
}

// decideDue closes active proposals whose window has ended. Zero votes cast
// expires the proposal; otherwise the tally engine decides, defaulting to
// failed when inconclusive.
func (s *Service) decideDue(ctx context.Context, now time.Time, summary *TickSummary) {
	candidates, err := s.fetchCandidates(ctx, `status = ? AND epoch_end <= ?`, []any{StatusActive, now})
	if err != nil {
		s.recordFailure(summary, 0, stageDecide, err)
		return
	}

	for _, proposal := range candidates {
		votes, err := s.voteCount(ctx, s.db, proposal.ID)
		if err != nil {
			s.recordFailure(summary, proposal.ID, stageDecide, err)
			continue
		}

		tally := proposal.tallySnapshot()
		if votes == 0 && tally.Participation() > 0 {
			// Tallies without votes mean the atomic cast discipline was
			// bypassed. Alert and leave the proposal untouched.
			s.logger.Error("tally present without votes",
				zap.Int64("proposal_id", proposal.ID),
				zap.Int64("tally_total", tally.Participation()))
			s.recordFailure(summary, proposal.ID, stageInvariant, ErrTallyWithoutVotes)
			continue
		}

		target := StatusExpired
		event := EventProposalExpired
		if votes > 0 {
			if ResolveOutcome(proposal.SnapshotTotalPoints, tally, s.policy) == OutcomePassed {
				target = StatusPassed
				event = EventProposalPassed
			} else {
				target = StatusFailed
				event = EventProposalFailed
			}
		}

		applied, err := s.applyDecision(ctx, proposal, target, now)
		if err != nil {
			s.recordFailure(summary, proposal.ID, stageDecide, err)
			continue
		}
		if !applied {
			continue
		}

		if target == StatusExpired {
			summary.Expired++
		} else {
			summary.Decided++
		}
		s.metrics.RecordTransition(target)
		proposal.Status = target
		s.notify(ctx, proposal, event)
	}
}

// applyDecision flips an active proposal to its decided status. The write is
// guarded on the tally columns the decision was computed from: a vote that
// commits between the candidate read and this write voids the flip, and the
// proposal is re-decided on the next tick against the fresh tally.
func (s *Service) applyDecision(ctx context.Context, proposal Proposal, target Status, now time.Time) (bool, error) {
	result := s.db.WithContext(ctx).Exec(
		`UPDATE proposals
		 SET status = ?, decided_at = COALESCE(decided_at, ?)
		 WHERE id = ? AND status = ?
		   AND tally_up = ? AND tally_down = ? AND tally_abstain = ?`,
		target,
		now,
		proposal.ID,
		StatusActive,
		proposal.TallyUp,
		proposal.TallyDown,
		proposal.TallyAbstain,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// executeDue retries the execution side effect for passed proposals. A
// failed execution leaves the proposal passed; the decision is never
// re-evaluated, only the side effect is retried.
func (s *Service) executeDue(ctx context.Context, summary *TickSummary) {
	if s.executor == nil {
		return
	}
	candidates, err := s.fetchCandidates(ctx, `status = ?`, []any{StatusPassed})
	if err != nil {
		s.recordFailure(summary, 0, stageExecute, err)
		return
	}

	for _, proposal := range candidates {
		if err := s.executor.Execute(ctx, proposal); err != nil {
			s.recordFailure(summary, proposal.ID, stageExecute, err)
			continue
		}

		now := s.clock().UTC()
		result := s.db.WithContext(ctx).Exec(
			`UPDATE proposals
			 SET status = ?, executed_at = COALESCE(executed_at, ?)
			 WHERE id = ? AND status = ?`,
			StatusExecuted,
			now,
			proposal.ID,
			StatusPassed,
		)
		if result.Error != nil {
			s.recordFailure(summary, proposal.ID, stageExecute, result.Error)
			continue
		}
		if result.RowsAffected == 0 {
			continue
		}

		summary.Executed++
		s.metrics.RecordTransition(StatusExecuted)
		proposal.Status = StatusExecuted
		s.notify(ctx, proposal, EventProposalExecuted)
	}
}

// broadcastDue retries the public announcement for executed proposals.
func (s *Service) broadcastDue(ctx context.Context, summary *TickSummary) {
	if s.broadcaster == nil {
		return
	}
	candidates, err := s.fetchCandidates(ctx, `status = ?`, []any{StatusExecuted})
	if err != nil {
		s.recordFailure(summary, 0, stageBroadcast, err)
		return
	}

	for _, proposal := range candidates {
		if err := s.broadcaster.Broadcast(ctx, proposal); err != nil {
			s.recordFailure(summary, proposal.ID, stageBroadcast, err)
			continue
		}

		now := s.clock().UTC()
		result := s.db.WithContext(ctx).Exec(
			`UPDATE proposals
			 SET status = ?, broadcasted_at = COALESCE(broadcasted_at, ?)
			 WHERE id = ? AND status = ?`,
			StatusBroadcasted,
			now,
			proposal.ID,
			StatusExecuted,
		)
		if result.Error != nil {
			s.recordFailure(summary, proposal.ID, stageBroadcast, result.Error)
			continue
		}
		if result.RowsAffected == 0 {
			continue
		}

		summary.Broadcasted++
		s.metrics.RecordTransition(StatusBroadcasted)
		proposal.Status = StatusBroadcasted
		s.notify(ctx, proposal, EventProposalBroadcasted)
	}
}

// archiveDue marks terminal proposals past the retention window as archived.
// Housekeeping only: no notification is emitted.
func (s *Service) archiveDue(ctx context.Context, now time.Time, summary *TickSummary) {
	cutoff := now.Add(-s.retention)
	candidates, err := s.fetchCandidates(ctx,
		`status IN (?, ?, ?) AND COALESCE(broadcasted_at, decided_at) <= ?`,
		[]any{StatusFailed, StatusExpired, StatusBroadcasted, cutoff})
	if err != nil {
		s.recordFailure(summary, 0, stageArchive, err)
		return
	}

	for _, proposal := range candidates {
		result := s.db.WithContext(ctx).Exec(
			`UPDATE proposals
			 SET status = ?
			 WHERE id = ? AND status = ?`,
			StatusArchived,
			proposal.ID,
			proposal.Status,
		)
		if result.Error != nil {
			s.recordFailure(summary, proposal.ID, stageArchive, result.Error)
			continue
		}
		if result.RowsAffected == 0 {
			continue
		}
		summary.Archived++
		s.metrics.RecordTransition(StatusArchived)
	}
}

// sweepTiers closes the tick with the squad tier recompute batch. A failing
// sweep is recorded like any other stage failure; the proposal phases that
// already ran keep their results.
func (s *Service) sweepTiers(ctx context.Context, summary *TickSummary) {
	if s.tierBatch == nil {
		return
	}
	checked, updated, err := s.tierBatch(ctx)
	if err != nil {
		s.recordFailure(summary, 0, stageTiers, newServiceError(opTick, stageTiers, err))
		return
	}
	summary.SquadsChecked = checked
	summary.SquadsUpdated = updated
}

// fetchCandidates pages eligible proposals so a tick's cost tracks the
// eligible set, not the full history.
func (s *Service) fetchCandidates(ctx context.Context, where string, args []any) ([]Proposal, error) {
	var proposals []Proposal
	err := s.db.WithContext(ctx).
		Where(where, args...).
		Order("id").
		Limit(s.pageSize).
		Find(&proposals).
		Error
	if err != nil {
		return nil, err
	}
	return proposals, nil
}
