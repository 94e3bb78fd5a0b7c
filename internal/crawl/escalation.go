package crawl

import "fmt"

// Decision is the escalation policy's verdict for a completed fetch attempt.
type Decision string

// Decisions.
const (
	DecisionSuccess  Decision = "success"
	DecisionRetry    Decision = "retry"    // same tier, attempt+1
	DecisionEscalate Decision = "escalate" // next tier, attempt reset
	DecisionFail     Decision = "fail"     // terminal
)

// EscalationPolicy decides the next step for a job after each fetch attempt.
// Escalation never skips a tier and the tier never decreases; the attempt
// counter is scoped to the current tier.
type EscalationPolicy struct {
	maxAttemptsPerTier int
}

// NewEscalationPolicy builds the policy. attempts <= 0 uses the default of 2
// attempts per tier for transient failures.
func NewEscalationPolicy(attempts int) *EscalationPolicy {
	if attempts <= 0 {
		attempts = 2
	}
	return &EscalationPolicy{maxAttemptsPerTier: attempts}
}

// Decide applies the outcome table to the job's current tier and attempt
// count. The attempt count on the job is the number of attempts already made
// at the current tier, including the one that produced outcome.
func (p *EscalationPolicy) Decide(job Job, outcome Outcome) Decision {
	switch outcome {
	case OutcomeOK:
		return DecisionSuccess
	case OutcomeBlockedRobots:
		// Policy violation: terminal at every tier, never retried.
		return DecisionFail
	case OutcomeJSRequired:
		if job.Tier >= MaxTier {
			return DecisionFail
		}
		return DecisionEscalate
	case OutcomeParseError:
		if job.Tier >= MaxTier {
			return DecisionFail
		}
		return DecisionEscalate
	case OutcomeTimeout, OutcomeHTTPError:
		// job.Attempt counts prior attempts at this tier, so attempt+1 is
		// the one that just failed.
		if job.Attempt+1 < p.maxAttemptsPerTier {
			return DecisionRetry
		}
		if job.Tier >= MaxTier {
			return DecisionFail
		}
		return DecisionEscalate
	default:
		return DecisionFail
	}
}

// Apply mutates a copy of the job according to the decision and returns it.
// The failure reason is preserved on terminal jobs for observability.
func (p *EscalationPolicy) Apply(job Job, outcome Outcome, decision Decision) Job {
	switch decision {
	case DecisionSuccess:
		job.Status = StatusSuccess
	case DecisionRetry:
		job.Attempt++
		job.Status = StatusRetryQueued
	case DecisionEscalate:
		job.Tier++
		job.Attempt = 0
		job.Status = StatusEscalateQueued
	case DecisionFail:
		job.Status = StatusFailed
		job.FailureReason = fmt.Sprintf("tier %d: %s", job.Tier, outcome)
	}
	return job
}
