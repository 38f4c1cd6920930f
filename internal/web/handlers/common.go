package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/kozaktomas/facewatch/internal/citation"
	"github.com/kozaktomas/facewatch/internal/database"
	"github.com/kozaktomas/facewatch/internal/facematch"
	"github.com/kozaktomas/facewatch/internal/nfc"
	"github.com/kozaktomas/facewatch/internal/recognition"
	"github.com/kozaktomas/facewatch/internal/registry"
	"github.com/kozaktomas/facewatch/internal/reports"
	"github.com/kozaktomas/facewatch/internal/security"
	"github.com/kozaktomas/facewatch/internal/web/middleware"
)

// errInvalidRequestBody is a shared error message for invalid JSON request bodies.
const errInvalidRequestBody = "invalid request body"

// maxBodyBytes bounds JSON request bodies; embeddings make enrollment the largest.
const maxBodyBytes = 1 << 20

// sanitizeForLog removes newlines and carriage returns to prevent log injection.
func sanitizeForLog(s string) string {
	return strings.NewReplacer("\n", "", "\r", "").Replace(s)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

var badRequestErrors = []error{
	registry.ErrInvalidIdentity,
	registry.ErrInvalidEmbedding,
	facematch.ErrDimensionMismatch,
	recognition.ErrInvalidProbe,
	security.ErrInvalidColor,
	reports.ErrMissingIdentityKey,
	reports.ErrMissingOperator,
	reports.ErrInvalidReportID,
	reports.ErrMissingFineStatus,
	citation.ErrInvalidNumber,
	nfc.ErrInvalidUID,
}

// statusFor maps a domain error to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, database.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, database.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, recognition.ErrServiceUnavailable):
		return http.StatusServiceUnavailable
	}
	for _, target := range badRequestErrors {
		if errors.Is(err, target) {
			return http.StatusBadRequest
		}
	}
	return http.StatusInternalServerError
}

// respondServiceError writes the mapped status for err. Internal errors are
// logged and their detail is not exposed.
func respondServiceError(w http.ResponseWriter, logger *slog.Logger, r *http.Request, err error) {
	status := statusFor(err)
	switch status {
	case http.StatusInternalServerError:
		logger.Error("request failed", "method", r.Method, "path", sanitizeForLog(r.URL.Path), "error", err)
		respondError(w, status, "internal server error")
	case http.StatusServiceUnavailable:
		logger.Warn("service unavailable", "method", r.Method, "path", sanitizeForLog(r.URL.Path), "error", err)
		respondError(w, status, recognition.ErrServiceUnavailable.Error())
	default:
		respondError(w, status, err.Error())
	}
}

// decodeJSON decodes a bounded JSON body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return false
	}
	return true
}

// queryLimit parses the "limit" query parameter. Missing or invalid values yield 0,
// which the services replace with their default.
func queryLimit(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// actorOf returns the audit actor type for the authenticated operator.
func actorOf(r *http.Request) string {
	op := middleware.GetOperatorFromContext(r.Context())
	switch {
	case op == nil:
		return database.ActorSystem
	case op.IsAdmin():
		return database.ActorAdmin
	default:
		return database.ActorOperator
	}
}

// HealthCheck handles the health check endpoint.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}
