package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kozaktomas/facewatch/internal/citation"
	"github.com/kozaktomas/facewatch/internal/database"
	"github.com/kozaktomas/facewatch/internal/facematch"
	"github.com/kozaktomas/facewatch/internal/logging"
	"github.com/kozaktomas/facewatch/internal/recognition"
	"github.com/kozaktomas/facewatch/internal/registry"
	"github.com/kozaktomas/facewatch/internal/reports"
	"github.com/kozaktomas/facewatch/internal/security"
)

func TestRespondJSON(t *testing.T) {
	recorder := httptest.NewRecorder()
	respondJSON(recorder, http.StatusCreated, map[string]string{"status": "ok"})

	assertStatusCode(t, recorder, http.StatusCreated)
	assertContentType(t, recorder, "application/json")
	if recorder.Body.String() != "{\"status\":\"ok\"}\n" {
		t.Errorf("unexpected body %q", recorder.Body.String())
	}

	recorder = httptest.NewRecorder()
	respondJSON(recorder, http.StatusOK, nil)
	if recorder.Body.Len() != 0 {
		t.Errorf("expected empty body for nil data, got '%s'", recorder.Body.String())
	}
}

func TestRespondError(t *testing.T) {
	recorder := httptest.NewRecorder()
	respondError(recorder, http.StatusBadRequest, "something went wrong")

	assertStatusCode(t, recorder, http.StatusBadRequest)
	assertContentType(t, recorder, "application/json")
	assertJSONError(t, recorder, "something went wrong")
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", fmt.Errorf("identity X: %w", database.ErrNotFound), http.StatusNotFound},
		{"conflict", fmt.Errorf("enrolling: %w", database.ErrConflict), http.StatusConflict},
		{"invalid identity", registry.ErrInvalidIdentity, http.StatusBadRequest},
		{"invalid embedding", fmt.Errorf("%w: 2 components", registry.ErrInvalidEmbedding), http.StatusBadRequest},
		{"dimension mismatch", fmt.Errorf("comparing: %w", facematch.ErrDimensionMismatch), http.StatusBadRequest},
		{"invalid probe", recognition.ErrInvalidProbe, http.StatusBadRequest},
		{"invalid color", security.ErrInvalidColor, http.StatusBadRequest},
		{"missing key", reports.ErrMissingIdentityKey, http.StatusBadRequest},
		{"missing operator", reports.ErrMissingOperator, http.StatusBadRequest},
		{"bad report id", reports.ErrInvalidReportID, http.StatusBadRequest},
		{"missing fine status", reports.ErrMissingFineStatus, http.StatusBadRequest},
		{"bad fine number", fmt.Errorf("claiming: %w", citation.ErrInvalidNumber), http.StatusBadRequest},
		{"unavailable", fmt.Errorf("%w: snapshot", recognition.ErrServiceUnavailable), http.StatusServiceUnavailable},
		{"other", errors.New("disk on fire"), http.StatusInternalServerError},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := statusFor(tc.err); got != tc.want {
				t.Errorf("statusFor(%v) = %d, want %d", tc.err, got, tc.want)
			}
		})
	}
}

func TestRespondServiceError_HidesInternals(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/reports", nil)

	recorder := httptest.NewRecorder()
	respondServiceError(recorder, logging.Discard(), req, errors.New("pq: password authentication failed"))
	assertStatusCode(t, recorder, http.StatusInternalServerError)
	assertJSONError(t, recorder, "internal server error")

	recorder = httptest.NewRecorder()
	respondServiceError(recorder, logging.Discard(), req, fmt.Errorf("%w: dial tcp", recognition.ErrServiceUnavailable))
	assertStatusCode(t, recorder, http.StatusServiceUnavailable)
	assertJSONError(t, recorder, "recognition service unavailable")
}

func TestQueryLimit(t *testing.T) {
	tests := map[string]int{
		"/x":            0,
		"/x?limit=25":   25,
		"/x?limit=-3":   0,
		"/x?limit=many": 0,
	}
	for path, want := range tests {
		if got := queryLimit(httptest.NewRequest(http.MethodGet, path, nil)); got != want {
			t.Errorf("queryLimit(%s) = %d, want %d", path, got, want)
		}
	}
}

func TestActorOf(t *testing.T) {
	if got := actorOf(jsonRequest(t, http.MethodGet, "/", nil, nil)); got != database.ActorSystem {
		t.Errorf("anonymous actor = %s", got)
	}
	if got := actorOf(jsonRequest(t, http.MethodGet, "/", nil, adminOperator())); got != database.ActorAdmin {
		t.Errorf("admin actor = %s", got)
	}
	if got := actorOf(jsonRequest(t, http.MethodGet, "/", nil, fieldOperator())); got != database.ActorOperator {
		t.Errorf("operator actor = %s", got)
	}
}

func TestHealthCheck(t *testing.T) {
	recorder := httptest.NewRecorder()
	HealthCheck(recorder, httptest.NewRequest(http.MethodGet, "/health", nil))
	assertStatusCode(t, recorder, http.StatusOK)

	var body map[string]string
	parseJSONResponse(t, recorder, &body)
	if body["status"] != "ok" {
		t.Errorf("expected status ok, got %v", body)
	}
}
