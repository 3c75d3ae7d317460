package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/starford/projects/internal/apperr"
	"github.com/starford/projects/internal/frontmatter"
	"github.com/starford/projects/internal/viewapi"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

type errResponse struct {
	Error string `json:"error" validate:"required"`
}

func errorBody(msg string) errResponse {
	return errResponse{Error: msg}
}

// writeError maps err to a status code. Unexpected errors are logged and
// reported as internal errors.
func writeError(w http.ResponseWriter, op string, err error, attrs ...any) {
	var pe *frontmatter.ParseError
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
	case errors.Is(err, apperr.ErrReadonly):
		writeJSON(w, http.StatusForbidden, errorBody("project is read-only"))
	case errors.Is(err, apperr.ErrAlreadyExists):
		writeJSON(w, http.StatusConflict, errorBody("already exists"))
	case errors.Is(err, viewapi.ErrDerivedField):
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
	case errors.As(err, &pe):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody(pe.Error()))
	default:
		slog.Error(op+" failed", append(attrs, slog.String("error", err.Error()))...)
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}
