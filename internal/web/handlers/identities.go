package handlers

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/facewatch/internal/logging"
	"github.com/kozaktomas/facewatch/internal/registry"
	"github.com/kozaktomas/facewatch/internal/security"
)

// IdentitiesHandler handles enrollment and registry lookups
type IdentitiesHandler struct {
	registry *registry.Service
	security *security.Service
	logger   *slog.Logger
}

// NewIdentitiesHandler creates a new identities handler
func NewIdentitiesHandler(reg *registry.Service, sec *security.Service, logger *slog.Logger) *IdentitiesHandler {
	return &IdentitiesHandler{registry: reg, security: sec, logger: logging.OrDiscard(logger)}
}

// EnrollRequest is the enrollment payload.
type EnrollRequest struct {
	ID          string    `json:"id"`
	FirstName   string    `json:"firstName"`
	LastName    string    `json:"lastName"`
	DateOfBirth string    `json:"dateOfBirth"`
	Gender      string    `json:"gender"`
	Embedding   []float32 `json:"embedding"`
	PhotoRef    string    `json:"photoRef"`
}

// EnrollResponse is the stored identity plus a duplicate warning.
type EnrollResponse struct {
	Identity          IdentityResponse   `json:"identity"`
	PossibleDuplicate *NeighbourResponse `json:"possibleDuplicate,omitempty"`
}

// Enroll stores a new identity
func (h *IdentitiesHandler) Enroll(w http.ResponseWriter, r *http.Request) {
	var req EnrollRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.registry.Enroll(r.Context(), registry.EnrollRequest{
		ID:          req.ID,
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		DateOfBirth: req.DateOfBirth,
		Gender:      req.Gender,
		Embedding:   req.Embedding,
		PhotoRef:    req.PhotoRef,
		Actor:       actorOf(r),
	})
	if err != nil {
		respondServiceError(w, h.logger, r, err)
		return
	}

	resp := EnrollResponse{Identity: identityResponse(result.Identity)}
	if result.PossibleDuplicate != nil {
		dup := neighbourResponse(result.PossibleDuplicate)
		resp.PossibleDuplicate = &dup
	}
	respondJSON(w, http.StatusCreated, resp)
}

// List returns every identity with its alert color and NFC tag state
func (h *IdentitiesHandler) List(w http.ResponseWriter, r *http.Request) {
	items, err := h.security.ListWithStatus(r.Context())
	if err != nil {
		respondServiceError(w, h.logger, r, err)
		return
	}

	out := make([]IdentityResponse, 0, len(items))
	for i := range items {
		resp := identityResponse(&items[i].Identity)
		resp.AlertColor = items[i].Status.AlertColor
		resp.NFC = nfcTagReply(items[i].Identity.ID, items[i].NFC)
		out = append(out, resp)
	}
	respondJSON(w, http.StatusOK, out)
}

// Search finds identities by name
func (h *IdentitiesHandler) Search(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		respondError(w, http.StatusBadRequest, "query parameter q is required")
		return
	}

	identities, err := h.registry.Search(r.Context(), q)
	if err != nil {
		respondServiceError(w, h.logger, r, err)
		return
	}

	out := make([]IdentityResponse, 0, len(identities))
	for i := range identities {
		out = append(out, identityResponse(&identities[i]))
	}
	respondJSON(w, http.StatusOK, out)
}

// Get returns one identity with its security status and records the lookup
func (h *IdentitiesHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	identity, err := h.registry.Lookup(r.Context(), id)
	if err != nil {
		respondServiceError(w, h.logger, r, err)
		return
	}

	resp := identityResponse(identity)
	status, err := h.security.GetStatus(r.Context(), id)
	if err != nil {
		h.logger.Warn("failed to read security status", "id", sanitizeForLog(id), "error", err)
	} else {
		resp.Security = securityStatusReply(&status)
		resp.AlertColor = status.AlertColor
	}
	respondJSON(w, http.StatusOK, resp)
}

// Similar returns the nearest enrolled identities
func (h *IdentitiesHandler) Similar(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	neighbours, err := h.registry.Similar(r.Context(), id, limit)
	if err != nil {
		respondServiceError(w, h.logger, r, err)
		return
	}

	out := make([]NeighbourResponse, 0, len(neighbours))
	for i := range neighbours {
		out = append(out, neighbourResponse(&neighbours[i]))
	}
	respondJSON(w, http.StatusOK, out)
}

// Delete removes an identity
func (h *IdentitiesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.registry.Remove(r.Context(), id, actorOf(r)); err != nil {
		respondServiceError(w, h.logger, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"deleted": true, "id": id})
}
