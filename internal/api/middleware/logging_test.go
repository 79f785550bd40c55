package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

// captureLog swaps the default logger for a JSON buffer and restores it.
func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })
	var buf bytes.Buffer
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))
	return &buf
}

func TestStructuredLoggerDefaultStatus(t *testing.T) {
	buf := captureLog(t)

	handler := StructuredLogger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	var logEntry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &logEntry); err != nil {
		t.Fatalf("failed to parse log output: %v", err)
	}

	if logEntry["method"] != "GET" {
		t.Fatalf("expected method GET, got %v", logEntry["method"])
	}
	if logEntry["path"] != "/api/v1/health" {
		t.Fatalf("expected path /api/v1/health, got %v", logEntry["path"])
	}
	// JSON numbers decode as float64.
	if logEntry["status"] != float64(200) {
		t.Fatalf("expected status 200, got %v", logEntry["status"])
	}
	if logEntry["bytes"] != float64(2) {
		t.Fatalf("expected 2 bytes written, got %v", logEntry["bytes"])
	}
	if _, ok := logEntry["duration_ms"]; !ok {
		t.Fatal("expected duration_ms in log output")
	}
	// Unauthenticated route: no agency in the line.
	if _, ok := logEntry["agency_id"]; ok {
		t.Fatalf("unexpected agency_id: %v", logEntry["agency_id"])
	}
}

func TestStructuredLoggerExplicitStatus(t *testing.T) {
	buf := captureLog(t)

	handler := StructuredLogger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/uploads/missing", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	var logEntry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &logEntry); err != nil {
		t.Fatalf("failed to parse log output: %v", err)
	}

	if logEntry["status"] != float64(404) {
		t.Fatalf("expected status 404, got %v", logEntry["status"])
	}
	if logEntry["level"] != "INFO" {
		t.Fatalf("expected INFO level for 404, got %v", logEntry["level"])
	}
}

func TestStructuredLoggerServerErrorLevel(t *testing.T) {
	buf := captureLog(t)

	handler := StructuredLogger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/uploads", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	var logEntry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &logEntry); err != nil {
		t.Fatalf("failed to parse log output: %v", err)
	}
	if logEntry["level"] != "ERROR" {
		t.Fatalf("expected ERROR level for 500, got %v", logEntry["level"])
	}
}

func TestStructuredLoggerNamesAuthenticatedAgency(t *testing.T) {
	buf := captureLog(t)

	secret := bytes.Repeat([]byte{0xcd}, 32)
	token, _, err := GenerateToken(secret, "agency-7")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	handler := StructuredLogger(RequireAgency(secret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/uploads", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	var logEntry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &logEntry); err != nil {
		t.Fatalf("failed to parse log output: %v", err)
	}
	if logEntry["agency_id"] != "agency-7" {
		t.Fatalf("expected agency_id agency-7, got %v", logEntry["agency_id"])
	}
}

func TestResponseRecorderFirstStatusWins(t *testing.T) {
	rr := httptest.NewRecorder()
	w := &responseRecorder{ResponseWriter: rr, status: http.StatusOK}

	w.WriteHeader(http.StatusBadRequest)
	w.WriteHeader(http.StatusOK)

	if w.status != http.StatusBadRequest {
		t.Fatalf("expected captured status 400, got %d", w.status)
	}
}

func TestResponseRecorderCountsBytes(t *testing.T) {
	rr := httptest.NewRecorder()
	w := &responseRecorder{ResponseWriter: rr, status: http.StatusOK}

	w.Write([]byte("hello"))
	w.Write([]byte(" world"))

	if w.bytes != 11 {
		t.Fatalf("expected 11 bytes recorded, got %d", w.bytes)
	}
	if w.status != http.StatusOK {
		t.Fatalf("expected implicit 200, got %d", w.status)
	}
}
