package domain

import "errors"

var (
	// ErrUnsupportedLanguage is a caller error raised before any environment is created.
	ErrUnsupportedLanguage = errors.New("unsupported language")
	ErrProblemNotFound     = errors.New("problem not found")
	ErrSubmissionNotFound  = errors.New("submission not found")
	// ErrStoreUnavailable wraps connectivity failures of a backing store.
	ErrStoreUnavailable = errors.New("store unavailable")
)
