package controllers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/rzbill/buildlog/internal/eventlog"
	"github.com/rzbill/buildlog/internal/filter"
	"github.com/rzbill/buildlog/internal/namespace"
	"github.com/rzbill/buildlog/internal/runtime"
	buildsvc "github.com/rzbill/buildlog/internal/services/builds"
)

// writeError writes {"error": message} with the given status.
func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// writeJSON writes data as a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, eventlog.ErrNotFound), errors.Is(err, namespace.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, runtime.ErrProjectNotAllowed):
		return http.StatusForbidden
	case errors.Is(err, runtime.ErrProjectLimit), errors.Is(err, buildsvc.ErrStreamTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, namespace.ErrInvalidName), errors.Is(err, filter.ErrInvalidExpression):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// parseUint parses a non-negative integer query value. Empty means zero.
func parseUint(s string) (uint64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseUint(s, 10, 64)
}
