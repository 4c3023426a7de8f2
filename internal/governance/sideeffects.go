package governance

import (
	"context"

	"go.uber.org/zap"
)

// LogSideEffects satisfies Executor and Broadcaster by logging the request.
// Deployments wire real execution and announcement integrations; this stands
// in where none is configured so the lifecycle can still complete.
type LogSideEffects struct {
	logger *zap.Logger
}

// NewLogSideEffects constructs the logging stand-in.
func NewLogSideEffects(logger *zap.Logger) *LogSideEffects {
	if logger == nil {
		logger = noOpLogger
	}
	return &LogSideEffects{logger: logger}
}

// Execute logs the execution request keyed on the proposal id.
func (l *LogSideEffects) Execute(_ context.Context, proposal Proposal) error {
	l.logger.Info("proposal execution requested",
		zap.Int64("proposal_id", proposal.ID),
		zap.String("slug", proposal.Slug))
	return nil
}

// Broadcast logs the announcement request keyed on the proposal id.
func (l *LogSideEffects) Broadcast(_ context.Context, proposal Proposal) error {
	l.logger.Info("proposal broadcast requested",
		zap.Int64("proposal_id", proposal.ID),
		zap.String("slug", proposal.Slug))
	return nil
}
