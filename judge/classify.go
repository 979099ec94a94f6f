package judge

import (
	"strings"

	"github.com/isdmx/codejudge/domain"
	"github.com/isdmx/codejudge/sandbox"
)

// passed compares outputs after trimming surrounding whitespace
func passed(result sandbox.ExecutionResult, expected string) bool {
	return result.ExitCode == 0 && strings.TrimSpace(result.Stdout) == strings.TrimSpace(expected)
}

// classify names the failure of a case that did not pass. The stderr
// markers are checked too, so a result relayed from another runner
// without the structured fields still classifies.
func classify(result sandbox.ExecutionResult) domain.Verdict {
	switch {
	case result.TimedOut || strings.Contains(result.Stderr, sandbox.DiagnosticTimeLimitExceeded):
		return domain.VerdictTimeLimitExceeded
	case result.ExitCode != 0 && (result.Diagnostic == sandbox.DiagnosticCompilationFailed ||
		strings.Contains(result.Stderr, sandbox.DiagnosticCompilationFailed)):
		return domain.VerdictCompilationError
	case result.ExitCode != 0:
		return domain.VerdictRuntimeError
	default:
		return domain.VerdictWrongAnswer
	}
}

// score is round(100 * passed / total), and 0 for a problem without cases
func score(passedCount, total int) int {
	if total == 0 {
		return 0
	}
	return (200*passedCount + total) / (2 * total)
}

// aggregator folds per-case verdicts into the submission verdict
type aggregator struct {
	policy  string
	verdict domain.Verdict
}

func newAggregator(policy string) *aggregator {
	return &aggregator{policy: policy, verdict: domain.VerdictAccepted}
}

func (a *aggregator) fail(v domain.Verdict) {
	if a.policy == PolicyMostSevere {
		a.verdict = domain.MoreSevere(a.verdict, v)
		return
	}
	a.verdict = v
}

// final applies the full-score requirement of ACCEPTED
func (a *aggregator) final(score int) domain.Verdict {
	if score < 100 && a.verdict == domain.VerdictAccepted {
		return domain.VerdictWrongAnswer
	}
	return a.verdict
}
