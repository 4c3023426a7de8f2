package governance

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

type failingExecutor struct {
	failures int
	calls    int
}

func (e *failingExecutor) Execute(_ context.Context, _ Proposal) error {
	e.calls++
	if e.calls <= e.failures {
		return errors.New("execution hook unavailable")
	}
	return nil
}

type countingBroadcaster struct {
	calls int
}

func (b *countingBroadcaster) Broadcast(_ context.Context, _ Proposal) error {
	b.calls++
	return nil
}

func (f *serviceFixture) withSideEffects(t *testing.T, executor Executor, broadcaster Broadcaster) {
	t.Helper()
	f.service.executor = executor
	f.service.broadcaster = broadcaster
}

func (f *serviceFixture) withTierBatch(t *testing.T, batch TierBatchFunc) {
	t.Helper()
	f.service.tierBatch = batch
}

func (f *serviceFixture) draftProposal(t *testing.T, creator string, start, end time.Time) Proposal {
	t.Helper()
	proposal, err := f.service.CreateProposal(context.Background(), CreateProposalRequest{
		CreatorUserID: creator,
		CreatorWallet: "wallet-" + creator,
		Title:         "Rotate the treasury keys",
		EpochStart:    start,
		EpochEnd:      end,
	})
	if err != nil {
		t.Fatalf("failed to create proposal: %v", err)
	}
	return proposal
}

func (f *serviceFixture) reload(t *testing.T, id int64) Proposal {
	t.Helper()
	var proposal Proposal
	if err := f.db.Where("id = ?", id).Take(&proposal).Error; err != nil {
		t.Fatalf("failed to reload proposal %d: %v", id, err)
	}
	return proposal
}

func TestTickActivatesDueDraftsWithSnapshot(t *testing.T) {
	fixture := newServiceFixture(t, "scheduler_activate")
	fixture.membership.squadByUser["alice"] = 7
	fixture.ledger.squadPoints[7] = 250

	due := fixture.draftProposal(t, "alice", fixture.now.Add(-time.Hour), fixture.now.Add(time.Hour))
	future := fixture.draftProposal(t, "alice", fixture.now.Add(time.Hour), fixture.now.Add(2*time.Hour))

	summary, err := fixture.service.RunTick(context.Background())
	if err != nil {
		t.Fatalf("tick failed: %v", err)
	}
	if summary.Activated != 1 {
		t.Fatalf("expected one activation, got %d", summary.Activated)
	}

	activated := fixture.reload(t, due.ID)
	if activated.Status != StatusActive {
		t.Fatalf("expected active status, got %s", activated.Status)
	}
	if activated.SnapshotTotalPoints != 250 {
		t.Fatalf("expected snapshot 250, got %d", activated.SnapshotTotalPoints)
	}
	if activated.ActivatedAt == nil {
		t.Fatal("expected activated_at to be set")
	}
	if fixture.reload(t, future.ID).Status != StatusDraft {
		t.Fatal("future-window proposal must stay draft")
	}
	if fixture.notifier.count(EventProposalActivated) != 1 {
		t.Fatalf("expected one activation notification, got %d", fixture.notifier.count(EventProposalActivated))
	}
}

func TestTickDecidesClosedWindows(t *testing.T) {
	fixture := newServiceFixture(t, "scheduler_decide")
	fixture.membership.squadByUser["alice"] = 7
	fixture.membership.squadByUser["bob"] = 7
	fixture.ledger.userPoints["alice"] = 55
	fixture.ledger.userPoints["bob"] = 25

	passing := fixture.activeProposal(t, "alice", 100)
	failing := fixture.activeProposal(t, "alice", 100)

	for _, cast := range []CastVoteRequest{
		{ProposalID: passing.ID, VoterUserID: "alice", Choice: ChoiceUp},
		{ProposalID: passing.ID, VoterUserID: "bob", Choice: ChoiceUp},
		{ProposalID: failing.ID, VoterUserID: "alice", Choice: ChoiceDown},
		{ProposalID: failing.ID, VoterUserID: "bob", Choice: ChoiceUp},
	} {
		if _, err := fixture.service.CastVote(context.Background(), cast); err != nil {
			t.Fatalf("cast failed: %v", err)
		}
	}

	fixture.now = fixture.now.Add(2 * time.Hour)
	summary, err := fixture.service.RunTick(context.Background())
	if err != nil {
		t.Fatalf("tick failed: %v", err)
	}
	if summary.Decided != 2 {
		t.Fatalf("expected two decisions, got %d", summary.Decided)
	}

	if status := fixture.reload(t, passing.ID).Status; status != StatusPassed {
		t.Fatalf("expected passed, got %s", status)
	}
	if status := fixture.reload(t, failing.ID).Status; status != StatusFailed {
		t.Fatalf("expected failed, got %s", status)
	}
	if fixture.notifier.count(EventProposalPassed) != 1 || fixture.notifier.count(EventProposalFailed) != 1 {
		t.Fatalf("unexpected decision notifications: %v", fixture.notifier.events)
	}
}

func TestTickExpiresZeroVoteProposals(t *testing.T) {
	fixture := newServiceFixture(t, "scheduler_expire")
	fixture.membership.squadByUser["alice"] = 7

	proposal := fixture.activeProposal(t, "alice", 100)

	fixture.now = fixture.now.Add(2 * time.Hour)
	summary, err := fixture.service.RunTick(context.Background())
	if err != nil {
		t.Fatalf("tick failed: %v", err)
	}
	if summary.Expired != 1 || summary.Decided != 0 {
		t.Fatalf("expected one expiry, got %+v", summary)
	}
	if status := fixture.reload(t, proposal.ID).Status; status != StatusExpired {
		t.Fatalf("expected expired, got %s", status)
	}
	if fixture.notifier.count(EventProposalExpired) != 1 {
		t.Fatalf("expected one expiry notification, got %d", fixture.notifier.count(EventProposalExpired))
	}
}

func TestTickFlagsTallyWithoutVotes(t *testing.T) {
	fixture := newServiceFixture(t, "scheduler_invariant")
	fixture.membership.squadByUser["alice"] = 7

	proposal := fixture.activeProposal(t, "alice", 100)
	if err := fixture.db.Exec(`UPDATE proposals SET tally_up = 60 WHERE id = ?`, proposal.ID).Error; err != nil {
		t.Fatalf("failed to corrupt tally: %v", err)
	}

	fixture.now = fixture.now.Add(2 * time.Hour)
	summary, err := fixture.service.RunTick(context.Background())
	if err != nil {
		t.Fatalf("tick failed: %v", err)
	}
	if len(summary.Failures) != 1 || summary.Failures[0].Stage != stageInvariant {
		t.Fatalf("expected one invariant failure, got %+v", summary.Failures)
	}
	if status := fixture.reload(t, proposal.ID).Status; status != StatusActive {
		t.Fatalf("flagged proposal must stay active, got %s", status)
	}
}

func TestTickRetriesFailedExecution(t *testing.T) {
	fixture := newServiceFixture(t, "scheduler_execute")
	fixture.membership.squadByUser["alice"] = 7
	fixture.ledger.userPoints["alice"] = 80

	executor := &failingExecutor{failures: 1}
	broadcaster := &countingBroadcaster{}
	fixture.withSideEffects(t, executor, broadcaster)

	proposal := fixture.activeProposal(t, "alice", 100)
	if _, err := fixture.service.CastVote(context.Background(), CastVoteRequest{
		ProposalID:  proposal.ID,
		VoterUserID: "alice",
		Choice:      ChoiceUp,
	}); err != nil {
		t.Fatalf("cast failed: %v", err)
	}

	fixture.now = fixture.now.Add(2 * time.Hour)
	summary, err := fixture.service.RunTick(context.Background())
	if err != nil {
		t.Fatalf("first tick failed: %v", err)
	}
	if summary.Decided != 1 || summary.Executed != 0 {
		t.Fatalf("expected decision without execution, got %+v", summary)
	}
	if len(summary.Failures) != 1 || summary.Failures[0].Stage != stageExecute {
		t.Fatalf("expected one execute failure, got %+v", summary.Failures)
	}
	if status := fixture.reload(t, proposal.ID).Status; status != StatusPassed {
		t.Fatalf("failed execution must leave proposal passed, got %s", status)
	}

	summary, err = fixture.service.RunTick(context.Background())
	if err != nil {
		t.Fatalf("second tick failed: %v", err)
	}
	if summary.Executed != 1 || summary.Broadcasted != 1 {
		t.Fatalf("expected execution and broadcast on retry, got %+v", summary)
	}
	if status := fixture.reload(t, proposal.ID).Status; status != StatusBroadcasted {
		t.Fatalf("expected broadcasted, got %s", status)
	}
	if broadcaster.calls != 1 {
		t.Fatalf("expected one broadcast call, got %d", broadcaster.calls)
	}
}

func TestTickIsIdempotentAcrossRepeatedRuns(t *testing.T) {
	fixture := newServiceFixture(t, "scheduler_idempotent")
	fixture.membership.squadByUser["alice"] = 7
	fixture.ledger.squadPoints[7] = 200
	fixture.ledger.userPoints["alice"] = 120

	proposal := fixture.draftProposal(t, "alice", fixture.now.Add(-time.Hour), fixture.now.Add(time.Hour))

	if _, err := fixture.service.RunTick(context.Background()); err != nil {
		t.Fatalf("activation tick failed: %v", err)
	}
	if _, err := fixture.service.CastVote(context.Background(), CastVoteRequest{
		ProposalID:  proposal.ID,
		VoterUserID: "alice",
		Choice:      ChoiceUp,
	}); err != nil {
		t.Fatalf("cast failed: %v", err)
	}

	fixture.now = fixture.now.Add(2 * time.Hour)
	if _, err := fixture.service.RunTick(context.Background()); err != nil {
		t.Fatalf("decision tick failed: %v", err)
	}
	decidedAt := fixture.reload(t, proposal.ID).DecidedAt
	if decidedAt == nil {
		t.Fatal("expected decided_at to be set")
	}

	fixture.now = fixture.now.Add(time.Hour)
	summary, err := fixture.service.RunTick(context.Background())
	if err != nil {
		t.Fatalf("repeat tick failed: %v", err)
	}
	if summary.Activated != 0 || summary.Decided != 0 || summary.Expired != 0 {
		t.Fatalf("repeat tick must be a no-op, got %+v", summary)
	}

	reloaded := fixture.reload(t, proposal.ID)
	if !reloaded.DecidedAt.Equal(*decidedAt) {
		t.Fatalf("decided_at must not move: %v vs %v", reloaded.DecidedAt, decidedAt)
	}
	if fixture.notifier.count(EventProposalPassed) != 1 {
		t.Fatalf("expected exactly one passed notification, got %d", fixture.notifier.count(EventProposalPassed))
	}
}

func TestTickRunsTierBatch(t *testing.T) {
	fixture := newServiceFixture(t, "scheduler_tiers")

	calls := 0
	fixture.withTierBatch(t, func(_ context.Context) (int, int, error) {
		calls++
		return 5, 2, nil
	})

	summary, err := fixture.service.RunTick(context.Background())
	if err != nil {
		t.Fatalf("tick failed: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected one tier batch invocation, got %d", calls)
	}
	if summary.SquadsChecked != 5 || summary.SquadsUpdated != 2 {
		t.Fatalf("tier batch counts must fold into the summary, got %+v", summary)
	}
}

func TestTickRecordsTierBatchFailure(t *testing.T) {
	fixture := newServiceFixture(t, "scheduler_tiers_failure")
	fixture.membership.squadByUser["alice"] = 7
	fixture.ledger.squadPoints[7] = 250

	proposal := fixture.draftProposal(t, "alice", fixture.now.Add(-time.Hour), fixture.now.Add(time.Hour))

	fixture.withTierBatch(t, func(_ context.Context) (int, int, error) {
		return 0, 0, errors.New("squads table unavailable")
	})

	summary, err := fixture.service.RunTick(context.Background())
	if err != nil {
		t.Fatalf("tick failed: %v", err)
	}
	if summary.Activated != 1 {
		t.Fatalf("proposal phases must keep their results, got %+v", summary)
	}
	if status := fixture.reload(t, proposal.ID).Status; status != StatusActive {
		t.Fatalf("expected active proposal despite tier failure, got %s", status)
	}
	if len(summary.Failures) != 1 || summary.Failures[0].Stage != stageTiers {
		t.Fatalf("expected one tier batch failure, got %+v", summary.Failures)
	}
	if !strings.Contains(summary.Failures[0].Reason, opTick) {
		t.Fatalf("tier failure must carry the tick code, got %q", summary.Failures[0].Reason)
	}
}

func TestDecisionVoidedWhenTallyMovesAfterRead(t *testing.T) {
	fixture := newServiceFixture(t, "scheduler_decide_guard")
	fixture.membership.squadByUser["alice"] = 7
	fixture.membership.squadByUser["bob"] = 7
	fixture.ledger.userPoints["alice"] = 55
	fixture.ledger.userPoints["bob"] = 25

	proposal := fixture.activeProposal(t, "alice", 100)
	if _, err := fixture.service.CastVote(context.Background(), CastVoteRequest{
		ProposalID:  proposal.ID,
		VoterUserID: "alice",
		Choice:      ChoiceUp,
	}); err != nil {
		t.Fatalf("cast failed: %v", err)
	}

	// Read the tally the way the decide phase does, then let a late vote
	// commit behind that read.
	stale := fixture.reload(t, proposal.ID)
	if _, err := fixture.service.CastVote(context.Background(), CastVoteRequest{
		ProposalID:  proposal.ID,
		VoterUserID: "bob",
		Choice:      ChoiceDown,
	}); err != nil {
		t.Fatalf("late cast failed: %v", err)
	}

	decidedAt := fixture.now.Add(2 * time.Hour)
	applied, err := fixture.service.applyDecision(context.Background(), stale, StatusPassed, decidedAt)
	if err != nil {
		t.Fatalf("guarded decision failed: %v", err)
	}
	if applied {
		t.Fatal("decision computed from a stale tally must not apply")
	}
	if status := fixture.reload(t, proposal.ID).Status; status != StatusActive {
		t.Fatalf("voided decision must leave the proposal active, got %s", status)
	}

	fresh := fixture.reload(t, proposal.ID)
	applied, err = fixture.service.applyDecision(context.Background(), fresh, StatusPassed, decidedAt)
	if err != nil {
		t.Fatalf("fresh decision failed: %v", err)
	}
	if !applied {
		t.Fatal("decision from the current tally must apply")
	}
	if status := fixture.reload(t, proposal.ID).Status; status != StatusPassed {
		t.Fatalf("expected passed, got %s", status)
	}
}

func TestTickArchivesAfterRetention(t *testing.T) {
	fixture := newServiceFixture(t, "scheduler_archive")
	fixture.membership.squadByUser["alice"] = 7

	proposal := fixture.activeProposal(t, "alice", 100)

	fixture.now = fixture.now.Add(2 * time.Hour)
	if _, err := fixture.service.RunTick(context.Background()); err != nil {
		t.Fatalf("decision tick failed: %v", err)
	}
	if status := fixture.reload(t, proposal.ID).Status; status != StatusExpired {
		t.Fatalf("expected expired before archival, got %s", status)
	}

	notificationsBefore := len(fixture.notifier.events)

	fixture.now = fixture.now.Add(167 * time.Hour)
	summary, err := fixture.service.RunTick(context.Background())
	if err != nil {
		t.Fatalf("pre-retention tick failed: %v", err)
	}
	if summary.Archived != 0 {
		t.Fatal("proposal inside retention must not be archived")
	}

	fixture.now = fixture.now.Add(2 * time.Hour)
	summary, err = fixture.service.RunTick(context.Background())
	if err != nil {
		t.Fatalf("post-retention tick failed: %v", err)
	}
	if summary.Archived != 1 {
		t.Fatalf("expected one archival, got %+v", summary)
	}
	if status := fixture.reload(t, proposal.ID).Status; status != StatusArchived {
		t.Fatalf("expected archived, got %s", status)
	}
	if len(fixture.notifier.events) != notificationsBefore {
		t.Fatal("archival must not emit notifications")
	}
}
