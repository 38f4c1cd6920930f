package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/facewatch/internal/database"
	"github.com/kozaktomas/facewatch/internal/logging"
	"github.com/kozaktomas/facewatch/internal/security"
)

// SecurityHandler handles the watchlist endpoints
type SecurityHandler struct {
	security *security.Service
	logger   *slog.Logger
}

// NewSecurityHandler creates a new security handler
func NewSecurityHandler(svc *security.Service, logger *slog.Logger) *SecurityHandler {
	return &SecurityHandler{security: svc, logger: logging.OrDiscard(logger)}
}

// SetStatusRequest replaces the status of one identity. AlertColor overrides
// the derived color when set.
type SetStatusRequest struct {
	Wanted          bool   `json:"wanted"`
	Blocked         bool   `json:"blocked"`
	Reason          string `json:"reason"`
	AlertColor      string `json:"alertColor"`
	DetectionMethod string `json:"detectionMethod"`
}

// FlagRequest toggles one watchlist flag.
type FlagRequest struct {
	Value  *bool  `json:"value"`
	Reason string `json:"reason"`
}

// GetStatus returns the status of one identity
func (h *SecurityHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.security.GetStatus(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, h.logger, r, err)
		return
	}
	respondJSON(w, http.StatusOK, securityStatusReply(&status))
}

// SetStatus replaces the status of one identity
func (h *SecurityHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	var req SetStatusRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	status, err := h.security.SetStatus(r.Context(), chi.URLParam(r, "id"), security.Update{
		Wanted:  req.Wanted,
		Blocked: req.Blocked,
		Reason:  req.Reason,
		Color:   database.AlertColor(req.AlertColor),
		Method:  req.DetectionMethod,
		Actor:   actorOf(r),
	})
	if err != nil {
		respondServiceError(w, h.logger, r, err)
		return
	}
	respondJSON(w, http.StatusOK, securityStatusReply(status))
}

// decodeFlag reads an optional FlagRequest; an empty body or a missing value
// means true.
func decodeFlag(w http.ResponseWriter, r *http.Request) (bool, string, bool) {
	var req FlagRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return false, "", false
	}
	value := true
	if req.Value != nil {
		value = *req.Value
	}
	return value, req.Reason, true
}

// Block sets or clears the blocked flag, keeping wanted
func (h *SecurityHandler) Block(w http.ResponseWriter, r *http.Request) {
	blocked, reason, ok := decodeFlag(w, r)
	if !ok {
		return
	}
	status, err := h.security.SetBlocked(r.Context(), chi.URLParam(r, "id"), blocked, reason, actorOf(r))
	if err != nil {
		respondServiceError(w, h.logger, r, err)
		return
	}
	respondJSON(w, http.StatusOK, securityStatusReply(status))
}

// Wanted sets or clears the wanted flag, keeping blocked
func (h *SecurityHandler) Wanted(w http.ResponseWriter, r *http.Request) {
	wanted, reason, ok := decodeFlag(w, r)
	if !ok {
		return
	}
	status, err := h.security.SetWanted(r.Context(), chi.URLParam(r, "id"), wanted, reason, actorOf(r))
	if err != nil {
		respondServiceError(w, h.logger, r, err)
		return
	}
	respondJSON(w, http.StatusOK, securityStatusReply(status))
}

// ClearAll resets every watchlist entry
func (h *SecurityHandler) ClearAll(w http.ResponseWriter, r *http.Request) {
	n, err := h.security.ClearAll(r.Context(), actorOf(r))
	if err != nil {
		respondServiceError(w, h.logger, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"cleared": n})
}

// Stats returns watchlist totals
func (h *SecurityHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.security.Stats(r.Context())
	if err != nil {
		respondServiceError(w, h.logger, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{
		"totalIdentities": stats.TotalIdentities,
		"wanted":          stats.Wanted,
		"blocked":         stats.Blocked,
		"clear":           stats.Clear,
		"nfcActive":       stats.NFCActive,
		"nfcInactive":     stats.NFCInactive,
	})
}

// Events lists watchlist transitions, optionally for one identity
func (h *SecurityHandler) Events(w http.ResponseWriter, r *http.Request) {
	events, err := h.security.Events(r.Context(), database.SecurityEventFilter{
		IdentityID: r.URL.Query().Get("identityId"),
		Limit:      queryLimit(r),
	})
	if err != nil {
		respondServiceError(w, h.logger, r, err)
		return
	}

	out := make([]SecurityEventResponse, 0, len(events))
	for _, e := range events {
		out = append(out, SecurityEventResponse{
			ID:              e.ID,
			IdentityID:      e.IdentityID,
			EventType:       e.EventType,
			AlertColor:      e.AlertColor,
			DetectionMethod: e.DetectionMethod,
			OccurredAt:      e.OccurredAt,
		})
	}
	respondJSON(w, http.StatusOK, out)
}
