package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/RallyPointLabs/rallypoint/backend/internal/governance"
	"github.com/RallyPointLabs/rallypoint/backend/internal/squads"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type createProposalPayload struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	EpochStart  time.Time `json:"epoch_start"`
	EpochEnd    time.Time `json:"epoch_end"`
}

type castVotePayload struct {
	Choice string `json:"choice"`
}

type proposalPayload struct {
	ID                  int64      `json:"id,string"`
	Slug                string     `json:"slug"`
	SquadID             int64      `json:"squad_id"`
	CreatorWallet       string     `json:"creator_wallet"`
	Title               string     `json:"title"`
	Description         string     `json:"description"`
	Status              string     `json:"status"`
	EpochStart          time.Time  `json:"epoch_start"`
	EpochEnd            time.Time  `json:"epoch_end"`
	SnapshotTotalPoints int64      `json:"snapshot_total_points"`
	TallyUp             int64      `json:"tally_up"`
	TallyDown           int64      `json:"tally_down"`
	TallyAbstain        int64      `json:"tally_abstain"`
	CreatedAt           time.Time  `json:"created_at"`
	ActivatedAt         *time.Time `json:"activated_at,omitempty"`
	DecidedAt           *time.Time `json:"decided_at,omitempty"`
	ExecutedAt          *time.Time `json:"executed_at,omitempty"`
	BroadcastedAt       *time.Time `json:"broadcasted_at,omitempty"`
}

func proposalToPayload(proposal governance.Proposal) proposalPayload {
	return proposalPayload{
		ID:                  proposal.ID,
		Slug:                proposal.Slug,
		SquadID:             proposal.SquadID,
		CreatorWallet:       proposal.CreatorWallet,
		Title:               proposal.Title,
		Description:         proposal.Description,
		Status:              string(proposal.Status),
		EpochStart:          proposal.EpochStart,
		EpochEnd:            proposal.EpochEnd,
		SnapshotTotalPoints: proposal.SnapshotTotalPoints,
		TallyUp:             proposal.TallyUp,
		TallyDown:           proposal.TallyDown,
		TallyAbstain:        proposal.TallyAbstain,
		CreatedAt:           proposal.CreatedAt,
		ActivatedAt:         proposal.ActivatedAt,
		DecidedAt:           proposal.DecidedAt,
		ExecutedAt:          proposal.ExecutedAt,
		BroadcastedAt:       proposal.BroadcastedAt,
	}
}

func (h *httpHandler) handleCreateProposal(c *gin.Context) {
	claims, err := sessionClaims(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var request createProposalPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	proposal, err := h.governance.CreateProposal(c.Request.Context(), governance.CreateProposalRequest{
		CreatorUserID: claims.Subject,
		CreatorWallet: claims.WalletAddress,
		Title:         request.Title,
		Description:   request.Description,
		EpochStart:    request.EpochStart,
		EpochEnd:      request.EpochEnd,
	})
	if err != nil {
		h.respondGovernanceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, proposalToPayload(proposal))
}

func (h *httpHandler) handleGetProposal(c *gin.Context) {
	proposal, err := h.governance.GetBySlug(c.Request.Context(), c.Param("slug"))
	if err != nil {
		h.respondGovernanceError(c, err)
		return
	}
	c.JSON(http.StatusOK, proposalToPayload(proposal))
}

func (h *httpHandler) handleGetTally(c *gin.Context) {
	tally, err := h.governance.Tally(c.Request.Context(), c.Param("slug"))
	if err != nil {
		h.respondGovernanceError(c, err)
		return
	}
	c.JSON(http.StatusOK, tally)
}

func (h *httpHandler) handleListSquadProposals(c *gin.Context) {
	squadID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || squadID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_squad_id"})
		return
	}

	proposals, err := h.governance.ListBySquad(c.Request.Context(), squadID)
	if err != nil {
		h.respondGovernanceError(c, err)
		return
	}

	payload := make([]proposalPayload, 0, len(proposals))
	for _, proposal := range proposals {
		payload = append(payload, proposalToPayload(proposal))
	}
	c.JSON(http.StatusOK, gin.H{"proposals": payload})
}

func (h *httpHandler) handleCastVote(c *gin.Context) {
	claims, err := sessionClaims(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var request castVotePayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	proposal, err := h.governance.GetBySlug(c.Request.Context(), c.Param("slug"))
	if err != nil {
		h.respondGovernanceError(c, err)
		return
	}

	tally, err := h.governance.CastVote(c.Request.Context(), governance.CastVoteRequest{
		ProposalID:  proposal.ID,
		VoterUserID: claims.Subject,
		VoterWallet: claims.WalletAddress,
		Choice:      governance.Choice(request.Choice),
	})
	if err != nil {
		h.respondGovernanceError(c, err)
		return
	}

	c.JSON(http.StatusOK, tally)
}

func (h *httpHandler) handleJoinSquad(c *gin.Context) {
	claims, err := sessionClaims(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	squadID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || squadID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_squad_id"})
		return
	}

	member, err := h.membership.Join(c.Request.Context(), squadID, claims.Subject, claims.WalletAddress)
	if err != nil {
		switch {
		case errors.Is(err, squads.ErrSquadNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "squad_not_found"})
		case errors.Is(err, squads.ErrAlreadyMember):
			c.JSON(http.StatusConflict, gin.H{"error": "already_member"})
		case errors.Is(err, squads.ErrSquadFull):
			c.JSON(http.StatusConflict, gin.H{"error": "squad_full"})
		default:
			h.logger.Error("squad join failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "join_failed"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"squad_id":  member.SquadID,
		"user_id":   member.UserID,
		"joined_at": member.JoinedAt,
	})
}

// respondGovernanceError maps service sentinels onto stable HTTP rejections.
// Vote-path conflicts are 409 so clients can distinguish a lost race from a
// malformed request.
func (h *httpHandler) respondGovernanceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, governance.ErrProposalNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "proposal_not_found"})
	case errors.Is(err, governance.ErrProposalNotActive):
		c.JSON(http.StatusConflict, gin.H{"error": "proposal_not_active"})
	case errors.Is(err, governance.ErrDuplicateVote):
		c.JSON(http.StatusConflict, gin.H{"error": "duplicate_vote"})
	case errors.Is(err, governance.ErrWrongSquad):
		c.JSON(http.StatusForbidden, gin.H{"error": "wrong_squad"})
	case errors.Is(err, governance.ErrMissingTitle):
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing_title"})
	case errors.Is(err, governance.ErrInvalidChoice):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_choice"})
	case errors.Is(err, governance.ErrInvalidEpochWindow):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_epoch_window"})
	default:
		var serviceErr *governance.ServiceError
		if errors.As(err, &serviceErr) && serviceErr.Code() != "" {
			h.logger.Error("governance request failed", zap.String("code", serviceErr.Code()), zap.Error(err))
		} else {
			h.logger.Error("governance request failed", zap.Error(err))
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
	}
}
