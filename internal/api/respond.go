package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/aiact/compliance/internal/auth"
	"github.com/aiact/compliance/internal/models"
	"github.com/aiact/compliance/internal/reports"
	"github.com/aiact/compliance/internal/scheduler"
	"github.com/aiact/compliance/internal/scoring"
	"github.com/aiact/compliance/internal/store"
)

type apiResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *apiError   `json:"error,omitempty"`
	Meta    *apiMeta    `json:"meta,omitempty"`
}

type apiError struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

type apiMeta struct {
	Total  int `json:"total,omitempty"`
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(apiResponse{
		Success: status >= 200 && status < 300,
		Data:    data,
	})
}

func respondJSONWithMeta(w http.ResponseWriter, status int, data interface{}, meta *apiMeta) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(apiResponse{
		Success: status >= 200 && status < 300,
		Data:    data,
		Meta:    meta,
	})
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondErrorDetails(w, status, code, message, nil, nil)
}

func respondErrorDetails(w http.ResponseWriter, status int, code, message string, details map[string]string, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(apiResponse{
		Success: false,
		Data:    data,
		Error: &apiError{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}

// respondErr maps domain errors onto HTTP responses. Anything unknown is
// logged and reported as a 500 without leaking its text.
func (s *Server) respondErr(w http.ResponseWriter, r *http.Request, err error) {
	var verr *scoring.ValidationError
	var notReady *reports.NotReadyError

	switch {
	case errors.As(err, &verr):
		respondErrorDetails(w, http.StatusBadRequest, "validation_error", "Validation failed", verr.Fields, nil)
	case errors.Is(err, errInvalidJSON):
		respondError(w, http.StatusBadRequest, "invalid_json", err.Error())
	case errors.Is(err, models.ErrEvidenceType), errors.Is(err, models.ErrEvidenceContent):
		respondErrorDetails(w, http.StatusBadRequest, "validation_error", "Validation failed",
			map[string]string{"type": err.Error()}, nil)
	case errors.Is(err, store.ErrNotFound), errors.Is(err, scheduler.ErrJobNotFound), errors.Is(err, auth.ErrUserNotFound):
		respondError(w, http.StatusNotFound, "not_found", "Resource not found")
	case errors.Is(err, store.ErrConflict), errors.Is(err, auth.ErrEmailTaken):
		respondError(w, http.StatusConflict, "conflict", conflictMessage(err))
	case errors.As(err, &notReady):
		respondErrorDetails(w, http.StatusBadRequest, "not_ready", notReady.Error(), nil, notReady.Result)
	case errors.Is(err, reports.ErrUnsupportedFormat):
		respondError(w, http.StatusBadRequest, "unsupported_format", err.Error())
	case errors.Is(err, scoring.ErrMalformedSnapshot):
		s.logger.Error("inconsistent compliance records", "path", r.URL.Path, "error", err)
		respondError(w, http.StatusInternalServerError, "data_integrity", "Stored compliance records are inconsistent")
	default:
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "Internal server error")
	}
}

func conflictMessage(err error) string {
	if errors.Is(err, auth.ErrEmailTaken) {
		return "Email already registered"
	}
	return "Resource already exists"
}

// pathID parses a UUID path parameter. A malformed ID cannot name any
// record, so it is reported as not found.
func pathID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, store.ErrNotFound
	}
	return id, nil
}

// caller returns the claims set by the auth middleware.
func caller(r *http.Request) *auth.Claims {
	claims, ok := auth.GetUserFromContext(r.Context())
	if !ok {
		return &auth.Claims{}
	}
	return claims
}

func callerID(r *http.Request) *uuid.UUID {
	id := caller(r).UserID
	if id == uuid.Nil {
		return nil
	}
	return &id
}
