package governance

import "testing"

func TestResolveOutcome(t *testing.T) {
	policy := TallyPolicy{QuorumThreshold: 0.5, PassThreshold: 0.6}

	cases := []struct {
		name     string
		snapshot int64
		tally    TallySnapshot
		expected Outcome
	}{
		{
			name:     "clear pass",
			snapshot: 100,
			tally:    TallySnapshot{Up: 55, Down: 20, Abstain: 5},
			expected: OutcomePassed,
		},
		{
			name:     "quorum not reached",
			snapshot: 100,
			tally:    TallySnapshot{Up: 10, Down: 5},
			expected: OutcomeFailed,
		},
		{
			name:     "quorum boundary counts",
			snapshot: 100,
			tally:    TallySnapshot{Up: 40, Down: 10},
			expected: OutcomePassed,
		},
		{
			name:     "pass boundary counts",
			snapshot: 100,
			tally:    TallySnapshot{Up: 30, Down: 20},
			expected: OutcomePassed,
		},
		{
			name:     "just under pass threshold",
			snapshot: 100,
			tally:    TallySnapshot{Up: 29, Down: 21},
			expected: OutcomeFailed,
		},
		{
			name:     "abstain reaches quorum but cannot pass",
			snapshot: 100,
			tally:    TallySnapshot{Abstain: 60},
			expected: OutcomeFailed,
		},
		{
			name:     "abstain weight excluded from pass ratio",
			snapshot: 100,
			tally:    TallySnapshot{Up: 30, Down: 10, Abstain: 40},
			expected: OutcomePassed,
		},
		{
			name:     "zero snapshot fails closed",
			snapshot: 0,
			tally:    TallySnapshot{Up: 10},
			expected: OutcomeFailed,
		},
		{
			name:     "negative snapshot fails closed",
			snapshot: -5,
			tally:    TallySnapshot{Up: 10},
			expected: OutcomeFailed,
		},
	}

	for _, testCase := range cases {
		t.Run(testCase.name, func(t *testing.T) {
			outcome := ResolveOutcome(testCase.snapshot, testCase.tally, policy)
			if outcome != testCase.expected {
				t.Fatalf("expected %s, got %s", testCase.expected, outcome)
			}
		})
	}
}
