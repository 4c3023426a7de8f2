package governance

import (
	"context"
	"errors"

	"github.com/RallyPointLabs/rallypoint/backend/internal/points"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// CastVoteRequest carries an authenticated member's vote on a proposal.
type CastVoteRequest struct {
	ProposalID  int64
	VoterUserID string
	VoterWallet string
	Choice      Choice
}

// CastVote records a vote and folds the voter's frozen weight into the
// proposal tallies in a single transaction, so the vote set and the tallies
// cannot diverge. The store's unique index rejects a second vote by the same
// voter; a proposal that closes mid-cast rolls the whole cast back.
func (s *Service) CastVote(ctx context.Context, req CastVoteRequest) (TallySnapshot, error) {
	if !ValidChoice(string(req.Choice)) {
		return TallySnapshot{}, newServiceError(opCastVote, "invalid_choice", ErrInvalidChoice)
	}

	var proposal Proposal
	err := s.db.WithContext(ctx).
		Where("id = ?", req.ProposalID).
		Take(&proposal).
		Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return TallySnapshot{}, newServiceError(opCastVote, "not_found", ErrProposalNotFound)
	}
	if err != nil {
		s.logError(opCastVote, "proposal_load_failed", err, zap.Int64("proposal_id", req.ProposalID))
		return TallySnapshot{}, newServiceError(opCastVote, "proposal_load_failed", err)
	}
	if proposal.Status != StatusActive {
		return TallySnapshot{}, newServiceError(opCastVote, "proposal_not_active", ErrProposalNotActive)
	}

	voterSquadID, err := s.membership.SquadOf(ctx, req.VoterUserID)
	if err != nil || voterSquadID != proposal.SquadID {
		return TallySnapshot{}, newServiceError(opCastVote, "wrong_squad", ErrWrongSquad)
	}

	weight, err := s.ledger.UserPoints(ctx, req.VoterUserID)
	if err != nil && !errors.Is(err, points.ErrUnknownUser) {
		s.logError(opCastVote, "ledger_read_failed", err, zap.String("voter_user_id", req.VoterUserID))
		return TallySnapshot{}, newServiceError(opCastVote, "ledger_read_failed", err)
	}

	now := s.clock().UTC()
	vote := Vote{
		ID:                s.ids.Generate().Int64(),
		ProposalID:        proposal.ID,
		VoterUserID:       req.VoterUserID,
		VoterWallet:       req.VoterWallet,
		SquadID:           proposal.SquadID,
		Choice:            req.Choice,
		VoterPointsAtCast: weight,
		CreatedAt:         now,
	}

	var snapshot TallySnapshot
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&vote).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return newServiceError(opCastVote, "duplicate_vote", ErrDuplicateVote)
			}
			return newServiceError(opCastVote, "vote_insert_failed", err)
		}

		result := tx.Exec(
			`UPDATE proposals
			 SET `+tallyColumn(req.Choice)+` = `+tallyColumn(req.Choice)+` + ?
			 WHERE id = ? AND status = ?`,
			weight,
			proposal.ID,
			StatusActive,
		)
		if result.Error != nil {
			return newServiceError(opCastVote, "tally_update_failed", result.Error)
		}
		if result.RowsAffected == 0 {
			// The window closed between the status check and the write.
			return newServiceError(opCastVote, "proposal_not_active", ErrProposalNotActive)
		}

		var updated Proposal
		if err := tx.Where("id = ?", proposal.ID).Take(&updated).Error; err != nil {
			return newServiceError(opCastVote, "tally_reload_failed", err)
		}
		snapshot = updated.tallySnapshot()
		return nil
	})
	if txErr != nil {
		var serviceErr *ServiceError
		if !errors.As(txErr, &serviceErr) {
			txErr = newServiceError(opCastVote, "transaction_failed", txErr)
		}
		return TallySnapshot{}, txErr
	}

	s.logger.Debug("vote cast",
		zap.Int64("proposal_id", proposal.ID),
		zap.String("voter_user_id", req.VoterUserID),
		zap.String("choice", string(req.Choice)),
		zap.Int64("weight", weight),
		zap.Time("cast_at", now))

	return snapshot, nil
}

// tallyColumn maps a choice onto its tally column. Choices are validated
// before this is interpolated into SQL.
func tallyColumn(choice Choice) string {
	switch choice {
	case ChoiceDown:
		return "tally_down"
	case ChoiceAbstain:
		return "tally_abstain"
	default:
		return "tally_up"
	}
}

// voteCount returns the number of votes cast on a proposal, independent of
// weight, used to distinguish an expired (zero-vote) close from a failed one.
func (s *Service) voteCount(ctx context.Context, db *gorm.DB, proposalID int64) (int64, error) {
	var count int64
	err := db.WithContext(ctx).
		Model(&Vote{}).
		Where("proposal_id = ?", proposalID).
		Count(&count).
		Error
	return count, err
}
