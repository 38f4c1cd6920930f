package handlers

import (
	"log/slog"
	"net/http"

	"github.com/kozaktomas/facewatch/internal/activity"
	"github.com/kozaktomas/facewatch/internal/logging"
)

// HistoryHandler serves the read-only audit projections
type HistoryHandler struct {
	activity *activity.Service
	logger   *slog.Logger
}

// NewHistoryHandler creates a new history handler
func NewHistoryHandler(act *activity.Service, logger *slog.Logger) *HistoryHandler {
	return &HistoryHandler{activity: act, logger: logging.OrDiscard(logger)}
}

// SearchHistory lists recent searches, newest first
func (h *HistoryHandler) SearchHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := h.activity.Searches(r.Context(), queryLimit(r))
	if err != nil {
		respondServiceError(w, h.logger, r, err)
		return
	}

	out := make([]SearchHistoryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, SearchHistoryResponse{
			ID:         e.ID,
			IdentityID: e.IdentityID,
			FirstName:  e.FirstName,
			LastName:   e.LastName,
			SearchType: e.SearchType,
			Found:      e.Found,
			Stage:      e.Stage,
			SearchedAt: e.SearchedAt,
		})
	}
	respondJSON(w, http.StatusOK, out)
}

// ActivityLogs lists recent audit lines, newest first
func (h *HistoryHandler) ActivityLogs(w http.ResponseWriter, r *http.Request) {
	entries, err := h.activity.List(r.Context(), queryLimit(r))
	if err != nil {
		respondServiceError(w, h.logger, r, err)
		return
	}

	out := make([]ActivityResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, ActivityResponse{
			ID:               e.ID,
			ActorType:        e.ActorType,
			ActionType:       e.ActionType,
			TargetIdentityID: e.TargetIdentityID,
			TargetName:       e.TargetName,
			Details:          e.Details,
			CreatedAt:        e.CreatedAt,
		})
	}
	respondJSON(w, http.StatusOK, out)
}

// ActivityStats returns the number of audit lines per action type
func (h *HistoryHandler) ActivityStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.activity.Stats(r.Context())
	if err != nil {
		respondServiceError(w, h.logger, r, err)
		return
	}
	respondJSON(w, http.StatusOK, stats)
}
