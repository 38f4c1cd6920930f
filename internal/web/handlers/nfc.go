package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/facewatch/internal/logging"
	"github.com/kozaktomas/facewatch/internal/nfc"
	"github.com/kozaktomas/facewatch/internal/security"
)

// NFCHandler handles the NFC tag endpoints
type NFCHandler struct {
	nfc      *nfc.Service
	security *security.Service
	logger   *slog.Logger
}

// NewNFCHandler creates a new NFC handler
func NewNFCHandler(svc *nfc.Service, sec *security.Service, logger *slog.Logger) *NFCHandler {
	return &NFCHandler{nfc: svc, security: sec, logger: logging.OrDiscard(logger)}
}

// NFCStatusResponse is the tag state of an identity next to its watchlist status.
type NFCStatusResponse struct {
	IdentityID string               `json:"identityId"`
	NFC        *NFCStatusReply      `json:"nfc"`
	Security   *SecurityStatusReply `json:"security"`
}

// NFCToggleRequest sets the active flag. ID is read only by ToggleStatus.
type NFCToggleRequest struct {
	ID     string `json:"id"`
	Active *bool  `json:"active"`
}

// NFCRegisterRequest binds a tag UID to an identity.
type NFCRegisterRequest struct {
	ID  string `json:"id"`
	UID string `json:"uid"`
}

// Status returns the tag and watchlist state of one identity
func (h *NFCHandler) Status(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	st, err := h.nfc.Status(r.Context(), id)
	if err != nil {
		respondServiceError(w, h.logger, r, err)
		return
	}
	status, err := h.security.GetStatus(r.Context(), id)
	if err != nil {
		respondServiceError(w, h.logger, r, err)
		return
	}
	respondJSON(w, http.StatusOK, NFCStatusResponse{
		IdentityID: id,
		NFC:        nfcStatusReply(st),
		Security:   securityStatusReply(&status),
	})
}

// Toggle sets the active flag of the tag named in the path
func (h *NFCHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	var req NFCToggleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	h.setActive(w, r, chi.URLParam(r, "id"), req.Active)
}

// ToggleStatus sets the active flag of the tag named in the body
func (h *NFCHandler) ToggleStatus(w http.ResponseWriter, r *http.Request) {
	var req NFCToggleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	id := strings.TrimSpace(req.ID)
	if id == "" {
		respondError(w, http.StatusBadRequest, "id is required")
		return
	}
	h.setActive(w, r, id, req.Active)
}

func (h *NFCHandler) setActive(w http.ResponseWriter, r *http.Request, id string, active *bool) {
	if active == nil {
		respondError(w, http.StatusBadRequest, "active is required")
		return
	}
	st, err := h.nfc.SetActive(r.Context(), id, *active, actorOf(r))
	if err != nil {
		respondServiceError(w, h.logger, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"identityId": id,
		"nfc":        nfcStatusReply(st),
	})
}

// Register binds a tag UID to an identity
func (h *NFCHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req NFCRegisterRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	id := strings.TrimSpace(req.ID)
	if id == "" {
		respondError(w, http.StatusBadRequest, "id is required")
		return
	}
	st, err := h.nfc.Register(r.Context(), id, req.UID, actorOf(r))
	if err != nil {
		respondServiceError(w, h.logger, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{
		"identityId": id,
		"nfc":        nfcStatusReply(st),
	})
}
