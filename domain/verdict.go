package domain

import "fmt"

// Verdict is the classification of a submission or of a single test case.
type Verdict string

// Verdict values. PENDING is the only non-terminal one.
const (
	VerdictPending           Verdict = "PENDING"
	VerdictAccepted          Verdict = "ACCEPTED"
	VerdictWrongAnswer       Verdict = "WRONG_ANSWER"
	VerdictRuntimeError      Verdict = "RUNTIME_ERROR"
	VerdictCompilationError  Verdict = "COMPILATION_ERROR"
	VerdictTimeLimitExceeded Verdict = "TIME_LIMIT_EXCEEDED"
)

var severity = map[Verdict]int{
	VerdictAccepted:          0,
	VerdictWrongAnswer:       1,
	VerdictRuntimeError:      2,
	VerdictCompilationError:  3,
	VerdictTimeLimitExceeded: 4,
}

// Severity returns the rank of v in the aggregation order
// ACCEPTED < WRONG_ANSWER < RUNTIME_ERROR < COMPILATION_ERROR < TIME_LIMIT_EXCEEDED.
// PENDING and unknown values rank below ACCEPTED.
func (v Verdict) Severity() int {
	if s, ok := severity[v]; ok {
		return s
	}
	return -1
}

// IsTerminal reports whether v ends a submission's lifecycle.
func (v Verdict) IsTerminal() bool {
	_, ok := severity[v]
	return ok
}

// MoreSevere returns whichever of a and b ranks higher.
func MoreSevere(a, b Verdict) Verdict {
	if b.Severity() > a.Severity() {
		return b
	}
	return a
}

// ParseVerdict converts a stored status string back into a Verdict.
func ParseVerdict(s string) (Verdict, error) {
	v := Verdict(s)
	if v == VerdictPending || v.IsTerminal() {
		return v, nil
	}
	return "", fmt.Errorf("unknown verdict: %s", s)
}

// CaseStatus is the pass/fail outcome of one test case.
type CaseStatus string

const (
	CasePassed CaseStatus = "PASSED"
	CaseFailed CaseStatus = "FAILED"
)
