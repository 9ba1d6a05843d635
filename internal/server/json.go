package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"GoRowSearch/internal/condition"
	"GoRowSearch/internal/engine"
	"GoRowSearch/internal/geo"
	"GoRowSearch/internal/index"
	"GoRowSearch/internal/search"
	"GoRowSearch/internal/store"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]string{
			"message": message,
		},
	})
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, search.ErrCursorMismatch):
		return http.StatusConflict
	case errors.Is(err, search.ErrInvalidLimit),
		errors.Is(err, search.ErrInvalidCursor),
		errors.Is(err, search.ErrInvalidSort),
		errors.Is(err, store.ErrEmptyKey),
		errors.Is(err, engine.ErrInvalidDocument),
		errors.Is(err, engine.ErrExpansionLimit),
		errors.Is(err, index.ErrInvalidValue),
		errors.Is(err, geo.ErrInvalidGeometry),
		errors.Is(err, geo.ErrInvalidDistance),
		isConditionError(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func isConditionError(err error) bool {
	for _, target := range []error{
		condition.ErrSchemaMismatch,
		condition.ErrEmptyQuery,
		condition.ErrConditionCycle,
		condition.ErrNilCondition,
		condition.ErrMissingField,
		condition.ErrTooManyClauses,
		condition.ErrTooDeep,
		condition.ErrInvalidValue,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
