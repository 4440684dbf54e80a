package server

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/citybenefits/casebridge/internal/auth"
	"github.com/citybenefits/casebridge/internal/db"
	"github.com/citybenefits/casebridge/internal/ledger"
	"github.com/citybenefits/casebridge/internal/models"
	"go.uber.org/zap"
)

func setupTestServer(t *testing.T) (*Server, *sql.DB) {
	t.Helper()
	d, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })

	srv := &Server{
		DB:     d,
		Ledger: ledger.New(d),
		Logger: zap.NewNop(),
	}
	return srv, d
}

func seedApplication(t *testing.T, d *sql.DB, uuid string) int64 {
	t.Helper()
	result, err := d.Exec(
		"INSERT INTO applications (uuid, status, handler) VALUES (?, ?, 'handler')",
		uuid, models.AppStatusHandling,
	)
	if err != nil {
		t.Fatalf("insert application: %v", err)
	}
	id, _ := result.LastInsertId()
	return id
}

func seedAttachment(t *testing.T, d *sql.DB, appID int64, uuid, hash string) int64 {
	t.Helper()
	result, err := d.Exec(
		"INSERT INTO attachments (application_id, uuid, filename, content_type, sha256, content) VALUES (?, ?, 'doc.pdf', 'application/pdf', ?, ?)",
		appID, uuid, hash, []byte("pdf-bytes"),
	)
	if err != nil {
		t.Fatalf("insert attachment: %v", err)
	}
	id, _ := result.LastInsertId()
	return id
}

func postCallback(t *testing.T, srv *Server, appUUID, requestType string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	req := httptest.NewRequest("POST",
		fmt.Sprintf("/cases/%s/callback/%s", appUUID, requestType),
		bytes.NewReader(body))
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func eventCount(t *testing.T, d *sql.DB, appID int64) int {
	t.Helper()
	var count int
	if err := d.QueryRow("SELECT COUNT(*) FROM status_events WHERE application_id = ?", appID).Scan(&count); err != nil {
		t.Fatalf("count events: %v", err)
	}
	return count
}

func TestCallbackInvalidMessage(t *testing.T) {
	srv, d := setupTestServer(t)
	appID := seedApplication(t, d, "app-1")

	w := postCallback(t, srv, "app-1", models.RequestOpenCase, map[string]string{
		"message":   "Maybe",
		"requestId": "req-1",
	})

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
	if eventCount(t, d, appID) != 0 {
		t.Error("malformed callback must not change state")
	}
}

func TestCallbackMissingRequestID(t *testing.T) {
	srv, d := setupTestServer(t)
	seedApplication(t, d, "app-1")

	w := postCallback(t, srv, "app-1", models.RequestOpenCase, map[string]string{
		"message": "Success",
	})

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}

	var resp map[string]map[string]string
	_ = json.NewDecoder(w.Body).Decode(&resp)
	if _, ok := resp["errors"]["requestId"]; !ok {
		t.Errorf("expected field error for requestId, got %v", resp)
	}
}

func TestCallbackUnknownRequestType(t *testing.T) {
	srv, d := setupTestServer(t)
	seedApplication(t, d, "app-1")

	w := postCallback(t, srv, "app-1", "frobnicate", map[string]string{
		"message":   "Success",
		"requestId": "req-1",
	})

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestCallbackUnknownApplication(t *testing.T) {
	srv, _ := setupTestServer(t)

	w := postCallback(t, srv, "no-such-app", models.RequestOpenCase, map[string]string{
		"message":   "Success",
		"requestId": "req-1",
	})

	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestCallbackOpenCaseSuccess(t *testing.T) {
	srv, d := setupTestServer(t)
	appID := seedApplication(t, d, "app-1")
	matched := seedAttachment(t, d, appID, "att-1", "hash-match")
	other := seedAttachment(t, d, appID, "att-2", "hash-other")

	w := postCallback(t, srv, "app-1", models.RequestOpenCase, CallbackPayload{
		Message:   "Success",
		RequestID: "req-1",
		CaseID:    "HEL-2026-1",
		CaseGUID:  "abc-123",
		Records: []CallbackRecord{
			{HashValue: "hash-match", VersionSeriesID: "vs-9"},
			{HashValue: "hash-unknown", VersionSeriesID: "vs-10"},
		},
	})

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	app, err := db.GetApplicationByUUID(d, "app-1")
	if err != nil {
		t.Fatalf("GetApplicationByUUID: %v", err)
	}
	if app.CaseID != "HEL-2026-1" || app.CaseGUID != "abc-123" {
		t.Errorf("case identifiers not written: %+v", app)
	}

	status, err := srv.Ledger.Current(appID)
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if status != models.StatusCaseOpened {
		t.Errorf("expected case_opened, got %s", status)
	}

	var version sql.NullString
	if err := d.QueryRow("SELECT version_series_id FROM attachments WHERE id = ?", matched).Scan(&version); err != nil {
		t.Fatalf("query version: %v", err)
	}
	if !version.Valid || version.String != "vs-9" {
		t.Errorf("matched attachment version not set: %v", version)
	}

	if err := d.QueryRow("SELECT version_series_id FROM attachments WHERE id = ?", other).Scan(&version); err != nil {
		t.Fatalf("query version: %v", err)
	}
	if version.Valid {
		t.Errorf("non-matching attachment must stay untouched, got %v", version)
	}

	var audits int
	if err := d.QueryRow("SELECT COUNT(*) FROM audit_log WHERE application_id = ?", appID).Scan(&audits); err != nil {
		t.Fatalf("count audits: %v", err)
	}
	if audits != 1 {
		t.Errorf("expected 1 audit entry, got %d", audits)
	}
}

func TestCallbackDeleteSuccess(t *testing.T) {
	srv, d := setupTestServer(t)
	appID := seedApplication(t, d, "app-1")

	w := postCallback(t, srv, "app-1", models.RequestDeleteApplication, map[string]string{
		"message":   "Success",
		"requestId": "req-1",
	})

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	status, err := srv.Ledger.Current(appID)
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if status != models.StatusDeleteRequestReceived {
		t.Errorf("expected delete_request_received, got %s", status)
	}
}

func TestCallbackFailureStillAcknowledged(t *testing.T) {
	srv, d := setupTestServer(t)
	appID := seedApplication(t, d, "app-1")

	w := postCallback(t, srv, "app-1", models.RequestOpenCase, map[string]string{
		"message":   "Failure",
		"requestId": "req-1",
	})

	if w.Code != http.StatusOK {
		t.Errorf("failure callbacks must still be acknowledged, got %d", w.Code)
	}
	if eventCount(t, d, appID) != 0 {
		t.Error("failure callbacks must append no status event")
	}

	var resp map[string]string
	_ = json.NewDecoder(w.Body).Decode(&resp)
	if resp["message"] != "Callback received" {
		t.Errorf("unexpected ack body: %v", resp)
	}
}

func TestCallbackInvalidJSON(t *testing.T) {
	srv, _ := setupTestServer(t)

	req := httptest.NewRequest("POST", "/cases/app-1/callback/open_case",
		bytes.NewReader([]byte("not json")))
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestAttachmentRequiresAuth(t *testing.T) {
	srv, d := setupTestServer(t)
	appID := seedApplication(t, d, "app-1")
	seedAttachment(t, d, appID, "att-1", "hash")

	req := httptest.NewRequest("GET", "/attachments/att-1", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without key, got %d", w.Code)
	}
}

func TestAttachmentDownload(t *testing.T) {
	srv, d := setupTestServer(t)
	appID := seedApplication(t, d, "app-1")
	seedAttachment(t, d, appID, "att-1", "hash")

	displayKey, prefix, hash, err := auth.GenerateAPIKey()
	if err != nil {
		t.Fatalf("generate API key: %v", err)
	}
	if _, err := db.CreateAPIKey(d, prefix, hash); err != nil {
		t.Fatalf("create API key: %v", err)
	}

	req := httptest.NewRequest("GET", "/attachments/att-1", nil)
	req.Header.Set("Authorization", "Bearer "+displayKey)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if got := w.Header().Get("Content-Type"); got != "application/pdf" {
		t.Errorf("content type = %q", got)
	}
	if w.Body.String() != "pdf-bytes" {
		t.Errorf("unexpected content: %q", w.Body.String())
	}
}

func TestAttachmentNotFound(t *testing.T) {
	srv, d := setupTestServer(t)

	displayKey, prefix, hash, err := auth.GenerateAPIKey()
	if err != nil {
		t.Fatalf("generate API key: %v", err)
	}
	if _, err := db.CreateAPIKey(d, prefix, hash); err != nil {
		t.Fatalf("create API key: %v", err)
	}

	req := httptest.NewRequest("GET", "/attachments/no-such", nil)
	req.Header.Set("Authorization", "Bearer "+displayKey)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}
