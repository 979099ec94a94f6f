package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/isdmx/codejudge/domain"
)

type handler struct {
	logger   *zap.Logger
	judge    Judge
	progress ProgressReader
	health   Pinger
	timeout  time.Duration
	maxBody  int64
}

// codeRequest is the body of the run and submit endpoints
type codeRequest struct {
	Code     string `json:"code"`
	Language string `json:"language"`
}

type runResponse struct {
	Results []domain.TestResult `json:"results"`
}

func (h *handler) decodeCode(w http.ResponseWriter, r *http.Request) (codeRequest, bool) {
	var req codeRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, h.maxBody))
	if err := dec.Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return req, false
		}
		respondError(w, http.StatusBadRequest, "invalid request payload")
		return req, false
	}
	if strings.TrimSpace(req.Code) == "" {
		respondError(w, http.StatusBadRequest, "code is required")
		return req, false
	}
	if req.Language == "" {
		respondError(w, http.StatusBadRequest, "language is required")
		return req, false
	}
	return req, true
}

func (h *handler) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	code := statusFor(err)
	log := h.logger.With(
		zap.String("request_id", middleware.GetReqID(r.Context())),
		zap.Error(err),
	)
	if code >= http.StatusInternalServerError {
		log.Error(msg)
		respondError(w, code, msg)
		return
	}
	log.Debug(msg)
	respondError(w, code, err.Error())
}

func (h *handler) runCode(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeCode(w, r)
	if !ok {
		return
	}

	results, err := h.judge.RunCode(r.Context(), req.Code, req.Language, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, "failed to run code", err)
		return
	}

	respondJSON(w, http.StatusOK, runResponse{Results: results})
}

func (h *handler) submitSolution(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeCode(w, r)
	if !ok {
		return
	}
	userID, _ := UserIDFromContext(r.Context())

	sub, err := h.judge.SubmitSolution(r.Context(), userID, chi.URLParam(r, "id"), req.Code, req.Language)
	if err != nil {
		h.fail(w, r, "failed to judge submission", err)
		return
	}

	respondJSON(w, http.StatusCreated, sub)
}

func (h *handler) listSubmissions(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())

	subs, err := h.judge.GetUserSubmissions(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, "failed to list submissions", err)
		return
	}

	respondJSON(w, http.StatusOK, subs)
}

func (h *handler) getProgress(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())

	progress, err := h.progress.GetProgress(r.Context(), userID)
	if err != nil {
		h.fail(w, r, "failed to read progress", err)
		return
	}

	respondJSON(w, http.StatusOK, progress)
}

func (h *handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		if err := h.health.Ping(r.Context()); err != nil {
			h.logger.Warn("health check failed", zap.Error(err))
			respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}
