package web

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/kozaktomas/facewatch/internal/activity"
	"github.com/kozaktomas/facewatch/internal/citation"
	"github.com/kozaktomas/facewatch/internal/config"
	"github.com/kozaktomas/facewatch/internal/database/mock"
	"github.com/kozaktomas/facewatch/internal/facematch"
	"github.com/kozaktomas/facewatch/internal/logging"
	"github.com/kozaktomas/facewatch/internal/metrics"
	"github.com/kozaktomas/facewatch/internal/nfc"
	"github.com/kozaktomas/facewatch/internal/recognition"
	"github.com/kozaktomas/facewatch/internal/registry"
	"github.com/kozaktomas/facewatch/internal/reports"
	"github.com/kozaktomas/facewatch/internal/security"
	"github.com/kozaktomas/facewatch/internal/web/middleware"
)

const testSecret = "server-test-secret"

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	store := mock.NewStore()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	logger := logging.Discard()

	act := activity.NewService(store, logger)
	snapshot := facematch.NewCachedSnapshot(store, time.Minute)
	sec := security.NewService(store, act, m, logger)

	cfg := &config.Config{
		Auth: config.AuthConfig{JWTSecret: testSecret},
		Web:  config.WebConfig{Host: "127.0.0.1", Port: 0, AllowedOrigins: []string{"https://panel.example"}},
	}
	srv := NewServer(cfg, Services{
		Registry: registry.NewService(store, 3, 0.6,
			registry.WithSnapshot(snapshot),
			registry.WithActivity(act),
			registry.WithMetrics(m),
		),
		Recognition: recognition.NewService(recognition.Deps{
			Identities: store,
			Matcher:    facematch.NewEngine(snapshot, 0.6),
			Security:   sec,
			History:    act,
			Metrics:    m,
		}),
		Security: sec,
		Reports:  reports.NewService(store, citation.NewAllocator(store, 0, logger, m), act, logger),
		Activity: act,
		NFC:      nfc.NewService(store, act, logger),
	}, reg, logger)

	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts
}

func bearer(t *testing.T, role string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, middleware.Operator{
		Username:  "user-" + role,
		FirstName: "Test",
		LastName:  strings.ToUpper(role),
		Role:      role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}
	return "Bearer " + token
}

func do(t *testing.T, ts *httptest.Server, method, path, auth string, body any) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("encoding body: %v", err)
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, ts.URL+path, reader)
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHealthIsPublic(t *testing.T) {
	ts := newTestServer(t)

	for _, path := range []string{"/health", "/api/v1/health"} {
		resp := do(t, ts, http.MethodGet, path, "", nil)
		if resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s: expected 200, got %d", path, resp.StatusCode)
		}
	}
}

func TestAPIRequiresToken(t *testing.T) {
	ts := newTestServer(t)

	resp := do(t, ts, http.MethodGet, "/api/v1/identities", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 without token, got %d", resp.StatusCode)
	}

	resp = do(t, ts, http.MethodGet, "/api/v1/identities", "Bearer garbage", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 with a bad token, got %d", resp.StatusCode)
	}

	resp = do(t, ts, http.MethodGet, "/api/v1/identities", bearer(t, "operator"), nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200 with a valid token, got %d", resp.StatusCode)
	}
}

func TestAdminRoutesRejectOperators(t *testing.T) {
	ts := newTestServer(t)
	enroll := map[string]any{
		"id": "A1", "firstName": "Jan", "lastName": "Kowalski", "dateOfBirth": "1990-01-01", "gender": "M",
		"embedding": []float32{1, 0, 0},
	}

	resp := do(t, ts, http.MethodPost, "/api/v1/enroll", bearer(t, "operator"), enroll)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for operator enroll, got %d", resp.StatusCode)
	}

	resp = do(t, ts, http.MethodPost, "/api/v1/enroll", bearer(t, middleware.RoleAdmin), enroll)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201 for admin enroll, got %d", resp.StatusCode)
	}

	checks := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/api/v1/block/A1"},
		{http.MethodPost, "/api/v1/wanted/A1"},
		{http.MethodPut, "/api/v1/security-status/A1"},
		{http.MethodDelete, "/api/v1/clear-all"},
		{http.MethodDelete, "/api/v1/identities/A1"},
		{http.MethodPost, "/api/v1/nfc/register"},
		{http.MethodPut, "/api/v1/nfc/toggle/A1"},
		{http.MethodPost, "/api/v1/nfc/toggle-status"},
	}
	for _, c := range checks {
		resp := do(t, ts, c.method, c.path, bearer(t, "operator"), nil)
		if resp.StatusCode != http.StatusForbidden {
			t.Errorf("%s %s: expected 403, got %d", c.method, c.path, resp.StatusCode)
		}
	}
}

func TestRecognizeEndToEnd(t *testing.T) {
	ts := newTestServer(t)
	admin := bearer(t, middleware.RoleAdmin)

	resp := do(t, ts, http.MethodPost, "/api/v1/enroll", admin, map[string]any{
		"id": "A1", "firstName": "Jan", "lastName": "Kowalski", "dateOfBirth": "1990-01-01", "gender": "M",
		"embedding": []float32{1, 0, 0},
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("enroll: %d", resp.StatusCode)
	}
	resp = do(t, ts, http.MethodPost, "/api/v1/wanted/A1", admin, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("wanted: %d", resp.StatusCode)
	}

	resp = do(t, ts, http.MethodPost, "/api/v1/recognize", bearer(t, "operator"), map[string]any{
		"embedding": []float32{0.99, 0.01, 0},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("recognize: %d", resp.StatusCode)
	}
	var result struct {
		Identified bool   `json:"identified"`
		IdentityID string `json:"identityId"`
		Capture    struct {
			Security struct {
				AlertColor string `json:"alertColor"`
			} `json:"security"`
		} `json:"capture"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if !result.Identified || result.IdentityID != "A1" || result.Capture.Security.AlertColor != "red" {
		t.Errorf("unexpected recognition result %+v", result)
	}

	resp = do(t, ts, http.MethodGet, "/api/v1/search-history", bearer(t, "operator"), nil)
	var history []map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&history); err != nil {
		t.Fatalf("decoding history: %v", err)
	}
	if len(history) != 1 || history[0]["identityId"] != "A1" {
		t.Errorf("expected one search entry for A1, got %v", history)
	}
}

func TestNFCRoutes(t *testing.T) {
	ts := newTestServer(t)
	admin := bearer(t, middleware.RoleAdmin)

	resp := do(t, ts, http.MethodPost, "/api/v1/enroll", admin, map[string]any{
		"id": "A1", "firstName": "Jan", "lastName": "Kowalski", "dateOfBirth": "1990-01-01", "gender": "M",
		"embedding": []float32{1, 0, 0},
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("enroll: %d", resp.StatusCode)
	}
	resp = do(t, ts, http.MethodPost, "/api/v1/nfc/register", admin, map[string]any{"id": "A1", "uid": "04A23B1C"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register: %d", resp.StatusCode)
	}
	resp = do(t, ts, http.MethodPut, "/api/v1/nfc/toggle/A1", admin, map[string]any{"active": false})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("toggle: %d", resp.StatusCode)
	}

	resp = do(t, ts, http.MethodGet, "/api/v1/nfc/status/A1", bearer(t, "operator"), nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: %d", resp.StatusCode)
	}
	var status struct {
		NFC struct {
			Registered bool `json:"registered"`
			Active     bool `json:"active"`
		} `json:"nfc"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if !status.NFC.Registered || status.NFC.Active {
		t.Errorf("expected registered inactive tag, got %+v", status.NFC)
	}

	resp = do(t, ts, http.MethodDelete, "/api/v1/identities/A1", admin, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete: %d", resp.StatusCode)
	}
	resp = do(t, ts, http.MethodGet, "/api/v1/nfc/status/A1", bearer(t, "operator"), nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 after removal, got %d", resp.StatusCode)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t)

	resp := do(t, ts, http.MethodGet, "/metrics", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("reading body: %v", err)
	}
	if !strings.Contains(string(body), "facewatch_identities") {
		t.Errorf("expected facewatch metrics, got:\n%s", body)
	}
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer(t)

	req, _ := http.NewRequest(http.MethodOptions, ts.URL+"/api/v1/identities", nil)
	req.Header.Set("Origin", "https://panel.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("preflight: %v", err)
	}
	defer resp.Body.Close()

	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "https://panel.example" {
		t.Errorf("expected allowed origin echoed, got %q", got)
	}
}
