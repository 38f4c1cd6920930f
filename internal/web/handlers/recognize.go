package handlers

import (
	"log/slog"
	"net/http"

	"github.com/kozaktomas/facewatch/internal/database"
	"github.com/kozaktomas/facewatch/internal/logging"
	"github.com/kozaktomas/facewatch/internal/recognition"
)

// RecognizeHandler handles probe recognition
type RecognizeHandler struct {
	recognition *recognition.Service
	logger      *slog.Logger
}

// NewRecognizeHandler creates a new recognize handler
func NewRecognizeHandler(svc *recognition.Service, logger *slog.Logger) *RecognizeHandler {
	return &RecognizeHandler{recognition: svc, logger: logging.OrDiscard(logger)}
}

// RecognizeRequest is a captured probe. PhotoPath is the image reference the
// external recognizer reads; Embedding lets clients that compute it skip
// extraction.
type RecognizeRequest struct {
	PhotoPath  string    `json:"photoPath"`
	Embedding  []float32 `json:"embedding"`
	SearchType string    `json:"searchType"`
}

// RecognizeResponse has the same shape whichever stage decided.
type RecognizeResponse struct {
	Identified bool             `json:"identified"`
	IdentityID string           `json:"identityId,omitempty"`
	Confidence float64          `json:"confidence"`
	Message    string           `json:"message"`
	Stage      string           `json:"stage"`
	Capture    *CaptureResponse `json:"capture,omitempty"`
}

// Recognize resolves a probe to an enrolled identity
func (h *RecognizeHandler) Recognize(w http.ResponseWriter, r *http.Request) {
	var req RecognizeRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	searchType := database.SearchMobile
	switch req.SearchType {
	case "", string(database.SearchMobile):
	case string(database.SearchWeb):
		searchType = database.SearchWeb
	default:
		respondError(w, http.StatusBadRequest, "searchType must be mobile or web")
		return
	}

	result, err := h.recognition.Recognize(r.Context(), recognition.Probe{
		ImageRef:   req.PhotoPath,
		Embedding:  req.Embedding,
		SearchType: searchType,
	})
	if err != nil {
		respondServiceError(w, h.logger, r, err)
		return
	}

	resp := RecognizeResponse{
		Identified: result.Identified,
		Confidence: result.Confidence,
		Message:    result.Message,
		Stage:      string(result.Stage),
		Capture:    captureResponse(result.Capture),
	}
	if result.Identified {
		resp.IdentityID = result.Identity.ID
	}
	respondJSON(w, http.StatusOK, resp)
}
