package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/facewatch/internal/database"
	"github.com/kozaktomas/facewatch/internal/logging"
	"github.com/kozaktomas/facewatch/internal/reports"
	"github.com/kozaktomas/facewatch/internal/web/middleware"
)

// ReportsHandler handles reports and fines
type ReportsHandler struct {
	reports *reports.Service
	logger  *slog.Logger
}

// NewReportsHandler creates a new reports handler
func NewReportsHandler(svc *reports.Service, logger *slog.Logger) *ReportsHandler {
	return &ReportsHandler{reports: svc, logger: logging.OrDiscard(logger)}
}

// ReportRequest is a report draft. OperatorFullName is only honoured when the
// request carries no verified operator.
type ReportRequest struct {
	ID               string   `json:"id"`
	IdentityID       string   `json:"identityId"`
	FirstName        string   `json:"firstName"`
	LastName         string   `json:"lastName"`
	DateOfBirth      string   `json:"dateOfBirth"`
	Gender           string   `json:"gender"`
	Confidence       float64  `json:"confidence"`
	Note             string   `json:"note"`
	ActionsTaken     string   `json:"actionsTaken"`
	HasFine          bool     `json:"hasFine"`
	FineAmount       *float64 `json:"fineAmount"`
	FineNumber       string   `json:"fineNumber"`
	FineType         string   `json:"fineType"`
	FineStatus       string   `json:"fineStatus"`
	OperatorFullName string   `json:"operatorFullName"`
}

func (req *ReportRequest) draft(r *http.Request) reports.Draft {
	operator := req.OperatorFullName
	if op := middleware.GetOperatorFromContext(r.Context()); op != nil {
		operator = op.FullName()
	}
	return reports.Draft{
		ID:               req.ID,
		IdentityID:       req.IdentityID,
		FirstName:        req.FirstName,
		LastName:         req.LastName,
		DateOfBirth:      req.DateOfBirth,
		Gender:           req.Gender,
		Confidence:       req.Confidence,
		Note:             req.Note,
		ActionsTaken:     req.ActionsTaken,
		HasFine:          req.HasFine,
		FineAmount:       req.FineAmount,
		FineNumber:       req.FineNumber,
		FineType:         req.FineType,
		FineStatus:       req.FineStatus,
		OperatorFullName: operator,
	}
}

// FineUpdateRequest replaces the fine fields of a report.
type FineUpdateRequest struct {
	FineAmount *float64 `json:"fineAmount"`
	FineNumber string   `json:"fineNumber"`
	FineType   string   `json:"fineType"`
	FineStatus string   `json:"fineStatus"`
	Note       string   `json:"note"`
}

// FineStatusRequest changes only the fine status.
type FineStatusRequest struct {
	FineStatus string `json:"fineStatus"`
}

// ReportListResponse is a report listing with counts.
type ReportListResponse struct {
	Reports   []ReportResponse `json:"reports"`
	Total     int              `json:"total"`
	Submitted int              `json:"submitted"`
	WithFine  int              `json:"withFine"`
}

// Save stores a report draft as New
func (h *ReportsHandler) Save(w http.ResponseWriter, r *http.Request) {
	var req ReportRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	report, err := h.reports.Create(r.Context(), req.draft(r))
	if err != nil {
		respondServiceError(w, h.logger, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, reportResponse(report))
}

// Submit finalizes a report, creating it when needed
func (h *ReportsHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req ReportRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	report, err := h.reports.Submit(r.Context(), req.draft(r))
	if err != nil {
		respondServiceError(w, h.logger, r, err)
		return
	}
	respondJSON(w, http.StatusOK, reportResponse(report))
}

// List returns every report with counts
func (h *ReportsHandler) List(w http.ResponseWriter, r *http.Request) {
	all, err := h.reports.List(r.Context())
	if err != nil {
		respondServiceError(w, h.logger, r, err)
		return
	}

	resp := ReportListResponse{Reports: reportResponses(all), Total: len(all)}
	for i := range all {
		if all[i].Status == database.ReportSubmitted {
			resp.Submitted++
		}
		if all[i].HasFine {
			resp.WithFine++
		}
	}
	respondJSON(w, http.StatusOK, resp)
}

// ListByIdentity returns the reports about one person
func (h *ReportsHandler) ListByIdentity(w http.ResponseWriter, r *http.Request) {
	list, err := h.reports.ListByIdentity(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, h.logger, r, err)
		return
	}
	respondJSON(w, http.StatusOK, reportResponses(list))
}

// Get returns one report
func (h *ReportsHandler) Get(w http.ResponseWriter, r *http.Request) {
	report, err := h.reports.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, h.logger, r, err)
		return
	}
	respondJSON(w, http.StatusOK, reportResponse(report))
}

// Delete removes a report
func (h *ReportsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.reports.Delete(r.Context(), id, actorOf(r)); err != nil {
		respondServiceError(w, h.logger, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"deleted": true, "id": id})
}

// ListFines returns every fined report
func (h *ReportsHandler) ListFines(w http.ResponseWriter, r *http.Request) {
	fines, err := h.reports.ListFines(r.Context())
	if err != nil {
		respondServiceError(w, h.logger, r, err)
		return
	}
	respondJSON(w, http.StatusOK, reportResponses(fines))
}

// ListFinesByIdentity returns the fines of one person
func (h *ReportsHandler) ListFinesByIdentity(w http.ResponseWriter, r *http.Request) {
	fines, err := h.reports.ListFinesByIdentity(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, h.logger, r, err)
		return
	}
	respondJSON(w, http.StatusOK, reportResponses(fines))
}

// FineStats returns fine counts and sums by status
func (h *ReportsHandler) FineStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.reports.FineStats(r.Context())
	if err != nil {
		respondServiceError(w, h.logger, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"total":        stats.Total,
		"paid":         stats.Paid,
		"unpaid":       stats.Unpaid,
		"pending":      stats.Pending,
		"totalAmount":  stats.TotalAmount,
		"paidAmount":   stats.PaidAmount,
		"unpaidAmount": stats.UnpaidAmount,
	})
}

// UpdateFine replaces the fine fields of a report
func (h *ReportsHandler) UpdateFine(w http.ResponseWriter, r *http.Request) {
	var req FineUpdateRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	report, err := h.reports.UpdateFine(r.Context(), chi.URLParam(r, "id"), reports.FineUpdate{
		Amount: req.FineAmount,
		Number: req.FineNumber,
		Type:   req.FineType,
		Status: req.FineStatus,
		Note:   req.Note,
	}, actorOf(r))
	if err != nil {
		respondServiceError(w, h.logger, r, err)
		return
	}
	respondJSON(w, http.StatusOK, reportResponse(report))
}

// UpdateFineStatus changes the status of a fine
func (h *ReportsHandler) UpdateFineStatus(w http.ResponseWriter, r *http.Request) {
	var req FineStatusRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	report, err := h.reports.UpdateFineStatus(r.Context(), chi.URLParam(r, "id"), req.FineStatus, actorOf(r))
	if err != nil {
		respondServiceError(w, h.logger, r, err)
		return
	}
	respondJSON(w, http.StatusOK, reportResponse(report))
}

// DeleteFine removes a fined report
func (h *ReportsHandler) DeleteFine(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.reports.DeleteFine(r.Context(), id, actorOf(r)); err != nil {
		respondServiceError(w, h.logger, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"deleted": true, "id": id})
}
