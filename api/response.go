package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/isdmx/codejudge/domain"
)

type errorResponse struct {
	Error string `json:"error"`
}

func respondError(w http.ResponseWriter, code int, message string) {
	respondJSON(w, code, errorResponse{Error: message})
}

func respondJSON(w http.ResponseWriter, code int, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"failed to marshal response"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(body)
}

// statusFor maps judge and store errors onto HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrUnsupportedLanguage):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrProblemNotFound), errors.Is(err, domain.ErrSubmissionNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
