// Package domain holds the data contracts shared by the runner, the judge
// and the stores.
package domain

import (
	"strings"
	"time"
)

// TestCase is one input/expected-output pair of a problem.
type TestCase struct {
	ID             string `json:"id"`
	Input          string `json:"input"`
	ExpectedOutput string `json:"expectedOutput"`
	IsHidden       bool   `json:"isHidden"`
}

// Driver is problem-specific harness code placed around a submission, e.g.
// a postfix that reads stdin and calls the function the user wrote.
type Driver struct {
	Prefix  string `json:"prefix,omitempty"`
	Postfix string `json:"postfix,omitempty"`
}

// Problem is the subset of a problem the judge needs.
type Problem struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Slug  string `json:"slug"`
	// TimeLimitMs and MemoryLimitMB override the configured defaults when non-zero.
	TimeLimitMs   int        `json:"timeLimitMs"`
	MemoryLimitMB int        `json:"memoryLimitMb"`
	TestCases     []TestCase `json:"testCases"`
	// Drivers is keyed by language identifier.
	Drivers map[string]Driver `json:"drivers,omitempty"`
}

// DriverFor returns the driver for language, or the zero Driver.
func (p *Problem) DriverFor(language string) Driver {
	return p.Drivers[strings.ToLower(strings.TrimSpace(language))]
}

// VisibleTestCases returns the cases that are not hidden, in order.
func (p *Problem) VisibleTestCases() []TestCase {
	visible := make([]TestCase, 0, len(p.TestCases))
	for _, tc := range p.TestCases {
		if !tc.IsHidden {
			visible = append(visible, tc)
		}
	}
	return visible
}

// TestResult is the per-case record returned to callers and persisted on a submission.
type TestResult struct {
	TestCaseID      string     `json:"testCaseId,omitempty"`
	Input           string     `json:"input"`
	ExpectedOutput  string     `json:"expectedOutput"`
	ActualOutput    string     `json:"actualOutput"`
	Stderr          string     `json:"stderr,omitempty"`
	Status          CaseStatus `json:"status"`
	Verdict         Verdict    `json:"verdict,omitempty"`
	ExecutionTimeMs int64      `json:"executionTimeMs"`
}

// Submission is the only durable record written by the judge.
type Submission struct {
	ID        string       `json:"id"`
	UserID    string       `json:"userId"`
	ProblemID string       `json:"problemId"`
	Code      string       `json:"code"`
	Language  string       `json:"language"`
	Status    Verdict      `json:"status"`
	Score     int          `json:"score"`
	Results   []TestResult `json:"testResults"`
	CreatedAt time.Time    `json:"createdAt"`
}

// SubmissionUpdate carries the terminal state written onto a submission.
type SubmissionUpdate struct {
	Status  Verdict
	Score   int
	Results []TestResult
}

// UserProgress is the aggregate progress row of a user.
type UserProgress struct {
	UserID         string `json:"userId"`
	ProblemsSolved int    `json:"problemsSolved"`
	TotalScore     int    `json:"totalScore"`
}
