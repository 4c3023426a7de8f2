package governance

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var noOpLogger = zap.NewNop()

// PointLedger reads frozen-at-source point weights. The ledger itself is
// owned by the rewards pipeline; this core never writes it.
type PointLedger interface {
	UserPoints(ctx context.Context, userID string) (int64, error)
	SquadPoints(ctx context.Context, squadID int64) (int64, error)
}

// MembershipResolver maps a user to their squad.
type MembershipResolver interface {
	SquadOf(ctx context.Context, userID string) (int64, error)
}

// Notifier receives lifecycle events for notification fan-out. The event
// value is one of the EventProposal* constants.
type Notifier interface {
	NotifyProposal(ctx context.Context, proposal Proposal, event string) error
}

// Executor applies a passed proposal's execution side effect. Implementations
// must be idempotent on the proposal id: the scheduler retries failures on
// later ticks without re-deciding the proposal.
type Executor interface {
	Execute(ctx context.Context, proposal Proposal) error
}

// Broadcaster publishes the public announcement for an executed proposal.
// Retried with the proposal id as idempotency key, like Executor.
type Broadcaster interface {
	Broadcast(ctx context.Context, proposal Proposal) error
}

// TierBatchFunc runs one squad tier recompute pass and reports how many
// squads were checked and how many changed tier. The scheduler invokes it at
// the end of every tick.
type TierBatchFunc func(ctx context.Context) (checked, updated int, err error)

// ServiceConfig describes the dependencies of the governance service.
type ServiceConfig struct {
	Database    *gorm.DB
	Clock       func() time.Time
	IDNode      *snowflake.Node
	Ledger      PointLedger
	Membership  MembershipResolver
	Notifier    Notifier
	Executor    Executor
	Broadcaster Broadcaster
	TierBatch   TierBatchFunc
	Policy      TallyPolicy
	Retention   time.Duration
	PageSize    int
	Logger      *zap.Logger
	Metrics     TickRecorder
}

// Service owns proposals and votes: authoring, vote casting, and the
// lifecycle tick.
type Service struct {
	db          *gorm.DB
	clock       func() time.Time
	ids         *snowflake.Node
	ledger      PointLedger
	membership  MembershipResolver
	notifier    Notifier
	executor    Executor
	broadcaster Broadcaster
	tierBatch   TierBatchFunc
	policy      TallyPolicy
	retention   time.Duration
	pageSize    int
	logger      *zap.Logger
	metrics     TickRecorder
}

const (
	defaultPageSize  = 200
	defaultRetention = 7 * 24 * time.Hour
)

// NewService constructs the governance service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.IDNode == nil {
		return nil, newServiceError(opServiceNew, "missing_id_node", errMissingIDNode)
	}
	if cfg.Ledger == nil {
		return nil, newServiceError(opServiceNew, "missing_ledger", errMissingLedger)
	}
	if cfg.Membership == nil {
		return nil, newServiceError(opServiceNew, "missing_membership", errMissingMembership)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	retention := cfg.Retention
	if retention <= 0 {
		retention = defaultRetention
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = nopTickRecorder{}
	}

	return &Service{
		db:          cfg.Database,
		clock:       clock,
		ids:         cfg.IDNode,
		ledger:      cfg.Ledger,
		membership:  cfg.Membership,
		notifier:    cfg.Notifier,
		executor:    cfg.Executor,
		broadcaster: cfg.Broadcaster,
		tierBatch:   cfg.TierBatch,
		policy:      cfg.Policy,
		retention:   retention,
		pageSize:    pageSize,
		logger:      logger,
		metrics:     metrics,
	}, nil
}

// CreateProposalRequest carries the authoring input for a new draft proposal.
type CreateProposalRequest struct {
	CreatorUserID string
	CreatorWallet string
	Title         string
	Description   string
	EpochStart    time.Time
	EpochEnd      time.Time
}

// CreateProposal stores a new draft proposal for the creator's squad. The
// slug is generated once here and is immutable afterwards.
func (s *Service) CreateProposal(ctx context.Context, req CreateProposalRequest) (Proposal, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return Proposal{}, newServiceError(opCreateProposal, "missing_title", ErrMissingTitle)
	}
	if req.EpochEnd.Before(req.EpochStart) {
		return Proposal{}, newServiceError(opCreateProposal, "invalid_epoch_window", ErrInvalidEpochWindow)
	}

	squadID, err := s.membership.SquadOf(ctx, req.CreatorUserID)
	if err != nil {
		return Proposal{}, newServiceError(opCreateProposal, "not_a_member", err)
	}

	proposalSlug, err := newProposalSlug(title)
	if err != nil {
		return Proposal{}, newServiceError(opCreateProposal, "slug_generation_failed", err)
	}

	proposal := Proposal{
		ID:            s.ids.Generate().Int64(),
		Slug:          proposalSlug,
		SquadID:       squadID,
		CreatorUserID: req.CreatorUserID,
		CreatorWallet: req.CreatorWallet,
		Title:         title,
		Description:   strings.TrimSpace(req.Description),
		Status:        StatusDraft,
		EpochStart:    req.EpochStart.UTC(),
		EpochEnd:      req.EpochEnd.UTC(),
		CreatedAt:     s.clock().UTC(),
	}

	if err := s.db.WithContext(ctx).Create(&proposal).Error; err != nil {
		s.logError(opCreateProposal, "insert_failed", err, zap.Int64("proposal_id", proposal.ID))
		return Proposal{}, newServiceError(opCreateProposal, "insert_failed", err)
	}

	s.notify(ctx, proposal, EventProposalCreated)

	return proposal, nil
}

// GetBySlug loads a proposal by its immutable slug.
func (s *Service) GetBySlug(ctx context.Context, slug string) (Proposal, error) {
	var proposal Proposal
	err := s.db.WithContext(ctx).
		Where("slug = ?", strings.TrimSpace(slug)).
		Take(&proposal).
		Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Proposal{}, newServiceError(opGetProposal, "not_found", ErrProposalNotFound)
	}
	if err != nil {
		s.logError(opGetProposal, "query_failed", err, zap.String("slug", slug))
		return Proposal{}, newServiceError(opGetProposal, "query_failed", err)
	}
	return proposal, nil
}

// ListBySquad returns a squad's newest proposals, capped at the service page
// size so the scan stays bounded like every other read path.
func (s *Service) ListBySquad(ctx context.Context, squadID int64) ([]Proposal, error) {
	var proposals []Proposal
	err := s.db.WithContext(ctx).
		Where("squad_id = ?", squadID).
		Order("created_at DESC").
		Limit(s.pageSize).
		Find(&proposals).
		Error
	if err != nil {
		s.logError(opGetProposal, "query_failed", err, zap.Int64("squad_id", squadID))
		return nil, newServiceError(opGetProposal, "query_failed", err)
	}
	return proposals, nil
}

// Tally returns the current tally snapshot for the proposal with the slug.
func (s *Service) Tally(ctx context.Context, slug string) (TallySnapshot, error) {
	proposal, err := s.GetBySlug(ctx, slug)
	if err != nil {
		return TallySnapshot{}, err
	}
	return proposal.tallySnapshot(), nil
}

// notify forwards a lifecycle event; dispatch failures are logged, never
// propagated, since the state transition has already been applied.
func (s *Service) notify(ctx context.Context, proposal Proposal, event string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.NotifyProposal(ctx, proposal, event); err != nil {
		s.logger.Warn("lifecycle notification dispatch failed",
			zap.Int64("proposal_id", proposal.ID),
			zap.String("event", event),
			zap.Error(err))
	}
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("governance service error", attrs...)
}
