package governance

// TallyPolicy carries the configured decision thresholds. Quorum is the
// minimum fraction of the snapshot weight that must participate; the pass
// threshold is the minimum fraction of non-abstain weight voting up.
type TallyPolicy struct {
	QuorumThreshold float64
	PassThreshold   float64
}

// Outcome is the decision produced for a proposal whose window has closed.
type Outcome string

const (
	OutcomePassed Outcome = "passed"
	OutcomeFailed Outcome = "failed"
)

// ResolveOutcome decides a proposal from its frozen snapshot and tallies.
// Abstain weight counts toward quorum but is excluded from the pass ratio.
// Boundary equality satisfies a threshold; anything inconclusive fails.
func ResolveOutcome(snapshotTotalPoints int64, tally TallySnapshot, policy TallyPolicy) Outcome {
	if snapshotTotalPoints <= 0 {
		return OutcomeFailed
	}

	participation := tally.Participation()
	if float64(participation) < policy.QuorumThreshold*float64(snapshotTotalPoints) {
		return OutcomeFailed
	}

	decisive := tally.Up + tally.Down
	if decisive <= 0 {
		return OutcomeFailed
	}
	if float64(tally.Up) >= policy.PassThreshold*float64(decisive) {
		return OutcomePassed
	}
	return OutcomeFailed
}
