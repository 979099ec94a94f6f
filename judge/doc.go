// Package judge turns sandbox results into test-case outcomes and submission
// verdicts.
//
// RunCode is a dry run against a problem's visible test cases and writes
// nothing. SubmitSolution records a PENDING submission, runs every test case
// in order, aggregates a verdict and a score, persists them and credits the
// user's progress on acceptance.
package judge
