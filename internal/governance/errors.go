package governance

import (
	"errors"
	"fmt"
)

var (
	errMissingDatabase    = errors.New("database handle is required")
	errMissingIDNode      = errors.New("id node is required")
	errMissingLedger      = errors.New("point ledger is required")
	errMissingMembership  = errors.New("membership resolver is required")
	ErrProposalNotFound   = errors.New("governance: proposal not found")
	ErrProposalNotActive  = errors.New("governance: proposal not active")
	ErrWrongSquad         = errors.New("governance: voter squad does not match proposal squad")
	ErrDuplicateVote      = errors.New("governance: voter already voted on this proposal")
	ErrInvalidChoice      = errors.New("governance: invalid vote choice")
	ErrMissingTitle       = errors.New("governance: title is required")
	ErrInvalidEpochWindow = errors.New("governance: epoch end must not precede epoch start")
	ErrTallyWithoutVotes  = errors.New("governance: tallies recorded without any votes")
)

// ServiceError wraps a failure with a stable dotted code so the HTTP boundary
// can surface a structured reason without exposing internals.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew     = "governance.service.new"
	opCreateProposal = "governance.create_proposal"
	opCastVote       = "governance.cast_vote"
	opGetProposal    = "governance.get_proposal"
	opTick           = "governance.tick"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}
