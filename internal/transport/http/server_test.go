package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirecall/internal/auth"
	"github.com/vovakirdan/wirecall/internal/call"
	"github.com/vovakirdan/wirecall/internal/config"
	"github.com/vovakirdan/wirecall/internal/metrics"
)

type fakeStatus struct {
	status call.Status
	report string
}

func (f *fakeStatus) Status() call.Status     { return f.status }
func (f *fakeStatus) LastStatsReport() string { return f.report }

func newTestServer(t *testing.T) (*http.Server, *auth.JWTConfig, *fakeStatus) {
	t.Helper()

	jwtConfig := &auth.JWTConfig{
		Secret:   []byte("test-secret"),
		Issuer:   "wirecall",
		Audience: "wirecall",
		TTL:      time.Hour,
	}
	status := &fakeStatus{
		status: call.Status{State: "calling", Peer: "bob", CallID: 42, DurationSeconds: 17},
		report: "timestamp: 12:00:00.000",
	}
	logger := zerolog.Nop()
	srv := NewServer(status, metrics.New(), jwtConfig, config.Default(), &logger)
	return srv, jwtConfig, status
}

func TestHealthIsOpen(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("health = %d %q", rec.Code, rec.Body.String())
	}
}

func TestDebugRequiresToken(t *testing.T) {
	srv, jwtConfig, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/call", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing token status = %d, want 401", rec.Code)
	}

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/debug/call", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	srv.Handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad token status = %d, want 401", rec.Code)
	}

	token, err := auth.GenerateToken(jwtConfig, "alice", "cli")
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/debug/call", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	srv.Handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("valid token status = %d, want 200", rec.Code)
	}

	var got call.Status
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if got.State != "calling" || got.Peer != "bob" || got.CallID != 42 {
		t.Fatalf("unexpected status: %+v", got)
	}
}

func TestDebugStatsRendersReport(t *testing.T) {
	srv, jwtConfig, status := newTestServer(t)
	token, err := auth.GenerateToken(jwtConfig, "alice", "cli")
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/debug/stats", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	srv.Handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || rec.Body.String() != "timestamp: 12:00:00.000\n" {
		t.Fatalf("stats = %d %q", rec.Code, rec.Body.String())
	}

	status.report = ""
	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/debug/stats", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	srv.Handler.ServeHTTP(rec, req)
	if rec.Body.String() != "no call statistics recorded\n" {
		t.Fatalf("empty stats body = %q", rec.Body.String())
	}
}

func TestMetricsEndpointIsServed(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status = %d, want 200", rec.Code)
	}
}
