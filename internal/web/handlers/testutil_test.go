package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/facewatch/internal/activity"
	"github.com/kozaktomas/facewatch/internal/citation"
	"github.com/kozaktomas/facewatch/internal/database/mock"
	"github.com/kozaktomas/facewatch/internal/facematch"
	"github.com/kozaktomas/facewatch/internal/nfc"
	"github.com/kozaktomas/facewatch/internal/recognition"
	"github.com/kozaktomas/facewatch/internal/registry"
	"github.com/kozaktomas/facewatch/internal/reports"
	"github.com/kozaktomas/facewatch/internal/security"
	"github.com/kozaktomas/facewatch/internal/web/middleware"
)

const testDim = 3

var errStoreDown = errors.New("connection refused")

// testEnv wires every service over one in-memory store
type testEnv struct {
	store       *mock.Store
	activity    *activity.Service
	registry    *registry.Service
	security    *security.Service
	recognition *recognition.Service
	reports     *reports.Service
	nfc         *nfc.Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := mock.NewStore()
	act := activity.NewService(store, nil)
	snapshot := facematch.NewCachedSnapshot(store, time.Minute)
	sec := security.NewService(store, act, nil, nil)

	return &testEnv{
		store:    store,
		activity: act,
		registry: registry.NewService(store, testDim, 0.6,
			registry.WithSnapshot(snapshot),
			registry.WithActivity(act),
		),
		security: sec,
		recognition: recognition.NewService(recognition.Deps{
			Identities: store,
			Matcher:    facematch.NewEngine(snapshot, 0.6),
			Security:   sec,
			History:    act,
		}),
		reports: reports.NewService(store, citation.NewAllocator(store, 0, nil, nil), act, nil),
		nfc:     nfc.NewService(store, act, nil),
	}
}

// enroll adds an identity directly through the registry
func (e *testEnv) enroll(t *testing.T, id string, emb ...float32) {
	t.Helper()
	_, err := e.registry.Enroll(context.Background(), registry.EnrollRequest{
		ID: id, FirstName: "Jan", LastName: "Kowalski", DateOfBirth: "1990-01-01", Gender: "M",
		Embedding: emb,
	})
	if err != nil {
		t.Fatalf("enrolling %s: %v", id, err)
	}
}

// jsonRequest creates a request with a JSON body and an authenticated operator
func jsonRequest(t *testing.T, method, path string, body any, op *middleware.Operator) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encoding body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if op != nil {
		req = req.WithContext(middleware.SetOperatorInContext(req.Context(), op))
	}
	return req
}

func adminOperator() *middleware.Operator {
	return &middleware.Operator{Username: "admin", FirstName: "Ewa", LastName: "Admin", Role: middleware.RoleAdmin}
}

func fieldOperator() *middleware.Operator {
	return &middleware.Operator{Username: "anowak", FirstName: "Anna", LastName: "Nowak", Role: "operator"}
}

// requestWithChiParams creates a request with chi URL parameters
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// parseJSONResponse parses a JSON response body into the target type
func parseJSONResponse(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nBody: %s", err, recorder.Body.String())
	}
}

// assertStatusCode checks if the response has the expected status code
func assertStatusCode(t *testing.T, recorder *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if recorder.Code != expected {
		t.Errorf("expected status %d, got %d\nBody: %s", expected, recorder.Code, recorder.Body.String())
	}
}

// assertContentType checks if the response has the expected content type
func assertContentType(t *testing.T, recorder *httptest.ResponseRecorder, expected string) {
	t.Helper()
	ct := recorder.Header().Get("Content-Type")
	if ct != expected {
		t.Errorf("expected Content-Type '%s', got '%s'", expected, ct)
	}
}

// assertJSONError checks if the response is a JSON error with the expected message
func assertJSONError(t *testing.T, recorder *httptest.ResponseRecorder, expectedMessage string) {
	t.Helper()
	var result map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse error response: %v\nBody: %s", err, recorder.Body.String())
	}
	if result["error"] != expectedMessage {
		t.Errorf("expected error '%s', got '%s'", expectedMessage, result["error"])
	}
}

// countActions counts activity entries of one action type
func countActions(store *mock.Store, action string) int {
	n := 0
	for _, e := range store.Activity() {
		if e.ActionType == action {
			n++
		}
	}
	return n
}
