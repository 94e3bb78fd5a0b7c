package crawl

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEscalationDecisionTable(t *testing.T) {
	t.Parallel()

	policy := NewEscalationPolicy(2)
	cases := []struct {
		name    string
		tier    Tier
		attempt int
		outcome Outcome
		want    Decision
	}{
		{"ok is success", Tier1, 0, OutcomeOK, DecisionSuccess},
		{"robots terminal at tier 1", Tier1, 0, OutcomeBlockedRobots, DecisionFail},
		{"robots terminal at tier 3", Tier3, 1, OutcomeBlockedRobots, DecisionFail},
		{"js_required escalates immediately", Tier1, 0, OutcomeJSRequired, DecisionEscalate},
		{"js_required at max tier fails", Tier3, 0, OutcomeJSRequired, DecisionFail},
		{"parse_error escalates", Tier2, 0, OutcomeParseError, DecisionEscalate},
		{"parse_error at max tier fails", Tier3, 0, OutcomeParseError, DecisionFail},
		{"first timeout retries in tier", Tier1, 0, OutcomeTimeout, DecisionRetry},
		{"second timeout escalates", Tier1, 1, OutcomeTimeout, DecisionEscalate},
		{"first http_error retries", Tier2, 0, OutcomeHTTPError, DecisionRetry},
		{"second http_error at max tier fails", Tier3, 1, OutcomeHTTPError, DecisionFail},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			job := Job{Tier: tc.tier, Attempt: tc.attempt}
			assert.Equal(t, tc.want, policy.Decide(job, tc.outcome))
		})
	}
}

func TestEscalationApplyJSRequiredResetsAttempt(t *testing.T) {
	t.Parallel()

	policy := NewEscalationPolicy(2)
	job := Job{URL: "https://a.example/", Tier: Tier1, Attempt: 1}

	decision := policy.Decide(job, OutcomeJSRequired)
	updated := policy.Apply(job, OutcomeJSRequired, decision)

	assert.Equal(t, Tier2, updated.Tier)
	assert.Equal(t, 0, updated.Attempt)
	assert.Equal(t, StatusEscalateQueued, updated.Status)
}

func TestEscalationApplyRetryIncrementsAttempt(t *testing.T) {
	t.Parallel()

	policy := NewEscalationPolicy(2)
	job := Job{Tier: Tier2, Attempt: 0}

	updated := policy.Apply(job, OutcomeTimeout, DecisionRetry)
	assert.Equal(t, Tier2, updated.Tier)
	assert.Equal(t, 1, updated.Attempt)
	assert.Equal(t, StatusRetryQueued, updated.Status)
}

func TestEscalationApplyFailRecordsReason(t *testing.T) {
	t.Parallel()

	policy := NewEscalationPolicy(2)
	job := Job{Tier: Tier3, Attempt: 1}

	updated := policy.Apply(job, OutcomeTimeout, DecisionFail)
	assert.Equal(t, StatusFailed, updated.Status)
	assert.Equal(t, "tier 3: timeout", updated.FailureReason)
}

// Tiers only ever increase, and never past the maximum, no matter how the
// outcome sequence interleaves.
func TestEscalationTierMonotonic(t *testing.T) {
	t.Parallel()

	policy := NewEscalationPolicy(2)
	job := Job{URL: "https://a.example/", Tier: Tier1}
	outcomes := []Outcome{
		OutcomeTimeout, OutcomeTimeout, OutcomeJSRequired,
		OutcomeHTTPError, OutcomeHTTPError, OutcomeParseError,
	}

	prev := job.Tier
	for _, outcome := range outcomes {
		decision := policy.Decide(job, outcome)
		job = policy.Apply(job, outcome, decision)
		assert.GreaterOrEqual(t, job.Tier, prev)
		assert.LessOrEqual(t, job.Tier, MaxTier)
		prev = job.Tier
		if job.Status.Terminal() {
			break
		}
	}
	assert.Equal(t, MaxTier, job.Tier)
}
