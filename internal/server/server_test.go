package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"testing"

	"github.com/dukerupert/pocketkid/internal/database"
	"github.com/dukerupert/pocketkid/internal/push"
)

// testServer runs the full router against an in-memory database so requests
// travel the same path production traffic does.
type testServer struct {
	t      *testing.T
	ts     *httptest.Server
	client *http.Client
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := New(db, push.Config{}, logger)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)

	jar := newCookieJar(t)
	return &testServer{t: t, ts: ts, client: &http.Client{Jar: jar}}
}

func newCookieJar(t *testing.T) http.CookieJar {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookie jar: %v", err)
	}
	return jar
}

func pathID(format string, id int64) string {
	return fmt.Sprintf(format, id)
}

func (s *testServer) do(method, path string, body any) (*http.Response, map[string]any) {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			s.t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, s.ts.URL+path, &buf)
	if err != nil {
		s.t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		s.t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	var decoded map[string]any
	raw, _ := io.ReadAll(resp.Body)
	if len(raw) > 0 {
		json.Unmarshal(raw, &decoded)
	}
	return resp, decoded
}

func (s *testServer) expect(method, path string, body any, wantStatus int) map[string]any {
	s.t.Helper()
	resp, decoded := s.do(method, path, body)
	if resp.StatusCode != wantStatus {
		s.t.Fatalf("%s %s: status %d, want %d (body %v)", method, path, resp.StatusCode, wantStatus, decoded)
	}
	return decoded
}

func TestSetupFlow(t *testing.T) {
	s := newTestServer(t)

	status := s.expect("GET", "/setup", nil, http.StatusOK)
	if status["needs_setup"] != true {
		t.Fatalf("needs_setup = %v, want true", status["needs_setup"])
	}

	s.expect("POST", "/setup", map[string]string{"username": "mom", "password": "hunter22"}, http.StatusCreated)

	status = s.expect("GET", "/setup", nil, http.StatusOK)
	if status["needs_setup"] != false {
		t.Errorf("needs_setup = %v after setup, want false", status["needs_setup"])
	}

	// Second setup attempt is refused even with a fresh client.
	fresh := newTestServerClient(t, s)
	resp, _ := fresh.do("POST", "/setup", map[string]string{"username": "intruder", "password": "pw"})
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("second setup status = %d, want 403", resp.StatusCode)
	}
}

func newTestServerClient(t *testing.T, s *testServer) *testServer {
	t.Helper()
	return &testServer{t: t, ts: s.ts, client: &http.Client{Jar: newCookieJar(t)}}
}

func TestUnauthenticatedRequestsRejected(t *testing.T) {
	s := newTestServer(t)

	resp, _ := s.do("GET", "/api/wallet", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}

	// Health stays open.
	s.expect("GET", "/health", nil, http.StatusOK)
}

func TestRequestLifecycleOverHTTP(t *testing.T) {
	s := newTestServer(t)
	s.expect("POST", "/setup", map[string]string{"username": "mom", "password": "hunter22"}, http.StatusCreated)
	s.expect("POST", "/api/children", map[string]string{"username": "kid", "password": "secret12"}, http.StatusCreated)

	kid := newTestServerClient(t, s)
	kid.expect("POST", "/login", map[string]string{"username": "kid", "password": "secret12"}, http.StatusOK)

	created := kid.expect("POST", "/api/requests", map[string]string{
		"kind":        "deposit",
		"amount":      "3.50",
		"description": "birthday money",
	}, http.StatusCreated)
	reqID := int64(created["id"].(float64))

	// Child cannot decide their own request.
	resp, _ := kid.do("POST", pathID("/api/requests/%d/decision", reqID), map[string]string{"outcome": "approve"})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("child decision status = %d, want 403", resp.StatusCode)
	}

	s.expect("POST", pathID("/api/requests/%d/decision", reqID), map[string]string{"outcome": "approve"}, http.StatusOK)

	wallet := kid.expect("GET", "/api/wallet", nil, http.StatusOK)
	if wallet["balance"] != "3.50" {
		t.Errorf("balance = %v, want 3.50", wallet["balance"])
	}

	// The decision is final.
	resp, _ = s.do("POST", pathID("/api/requests/%d/decision", reqID), map[string]string{"outcome": "reject"})
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("repeat decision status = %d, want 409", resp.StatusCode)
	}
}

func TestParentOnlyRoutes(t *testing.T) {
	s := newTestServer(t)
	s.expect("POST", "/setup", map[string]string{"username": "mom", "password": "hunter22"}, http.StatusCreated)
	s.expect("POST", "/api/children", map[string]string{"username": "kid", "password": "secret12"}, http.StatusCreated)

	kid := newTestServerClient(t, s)
	kid.expect("POST", "/login", map[string]string{"username": "kid", "password": "secret12"}, http.StatusOK)

	for _, path := range []string{"/api/children", "/api/parents", "/api/recurring"} {
		resp, _ := kid.do("GET", path, nil)
		if resp.StatusCode != http.StatusForbidden {
			t.Errorf("GET %s as child: status %d, want 403", path, resp.StatusCode)
		}
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	s := newTestServer(t)
	s.expect("POST", "/setup", map[string]string{"username": "mom", "password": "hunter22"}, http.StatusCreated)

	fresh := newTestServerClient(t, s)
	resp, _ := fresh.do("POST", "/login", map[string]string{"username": "mom", "password": "wrong"})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("bad password status = %d, want 401", resp.StatusCode)
	}
	resp, _ = fresh.do("POST", "/login", map[string]string{"username": "ghost", "password": "x"})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("unknown user status = %d, want 401", resp.StatusCode)
	}
}

func TestPushUnconfigured(t *testing.T) {
	s := newTestServer(t)
	s.expect("POST", "/setup", map[string]string{"username": "mom", "password": "hunter22"}, http.StatusCreated)

	resp, _ := s.do("GET", "/api/push/public-key", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("public key status = %d, want 404 when unconfigured", resp.StatusCode)
	}

	// Subscriptions still register for when keys arrive.
	s.expect("POST", "/api/push/subscribe", map[string]any{
		"endpoint": "https://push.example/ep",
		"keys":     map[string]string{"p256dh": "k", "auth": "a"},
	}, http.StatusCreated)
}
