package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"formate/internal/core"
	"formate/pkg/schema"
)

type errorResponse struct {
	Error      string `json:"error"`
	Field      string `json:"field,omitempty"`
	Kind       string `json:"kind,omitempty"`
	Path       string `json:"path,omitempty"`
	Constraint string `json:"constraint,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors to status codes.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		planErr   *schema.ValidationError
		inputErr  *core.ValidationError
		notFound  *core.NotFoundError
		policyErr *core.PolicyError
		stateErr  *core.StateError
		llmErr    *core.LLMError
	)

	switch {
	case errors.As(err, &planErr):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{
			Error:      planErr.Error(),
			Kind:       string(planErr.Kind),
			Path:       planErr.Path,
			Constraint: planErr.Constraint,
		})
	case errors.As(err, &inputErr):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: inputErr.Message, Field: inputErr.Field})
	case errors.As(err, &notFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: notFound.Error()})
	case errors.As(err, &policyErr):
		writeJSON(w, http.StatusForbidden, errorResponse{Error: policyErr.Error()})
	case errors.As(err, &stateErr):
		writeJSON(w, http.StatusConflict, errorResponse{Error: stateErr.Error()})
	case errors.Is(err, core.ErrNoGenerator):
		writeJSON(w, http.StatusNotImplemented, errorResponse{Error: err.Error()})
	case errors.As(err, &llmErr):
		s.logger.Warn("model request failed", "path", r.URL.Path, "task", llmErr.Task, "error", err.Error())
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: llmErr.Error()})
	default:
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err.Error())
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: msg})
}
