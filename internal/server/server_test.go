package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/deptrack/deptrack/internal/alerting"
	"github.com/deptrack/deptrack/internal/config"
	"github.com/deptrack/deptrack/internal/sqlite"
	"github.com/deptrack/deptrack/pkg/models"
)

type stubFacts struct {
	facts []models.CourseFacts
}

func (s *stubFacts) CourseFacts(ctx context.Context) ([]models.CourseFacts, error) {
	return s.facts, nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := config.Default()
	cfg.SQLite.Path = filepath.Join(t.TempDir(), "test.db")

	db, err := sqlite.New(sqlite.Options{Logger: log, Config: cfg.SQLite})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	today := time.Now().UTC().Truncate(24 * time.Hour)
	source := &stubFacts{facts: []models.CourseFacts{{
		Course:       models.CourseRef{ID: 1, Code: "C101", Name: "Field Operations", Responsible: "Jordan"},
		StartDate:    today.AddDate(0, 0, 2),
		EndDate:      today.AddDate(0, 0, 7),
		TraineeCount: 10,
		LinkedCards:  7,
	}}}

	engine := alerting.New(alerting.Options{
		Config: cfg.Alerts,
		DB:     db,
		Facts:  source,
		Logger: log,
	})

	return New(Options{Config: cfg, Logger: log, DB: db, Engine: engine})
}

func doRequest(t *testing.T, s *Server, method, target, body string) (*http.Response, models.APIResponse) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("X-Actor", "jo")
	req.Header.Set("X-Role", "coordinator")
	req.Header.Set("X-Department", "tco")
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.app.Test(req, -1)
	if err != nil {
		t.Fatalf("request %s %s: %v", method, target, err)
	}
	var envelope models.APIResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp, envelope
}

func TestListAlerts(t *testing.T) {
	s := newTestServer(t)

	resp, envelope := doRequest(t, s, "GET", "/api/v1/alerts", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if envelope.Status != "success" {
		t.Fatalf("envelope status = %q: %+v", envelope.Status, envelope)
	}

	data, _ := json.Marshal(envelope.Data)
	var result models.AlertListResult
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if result.Scope != models.ScopeTCO {
		t.Errorf("scope = %q, want tco", result.Scope)
	}
	if len(result.Alerts) != 1 || result.Alerts[0].CourseID != 1 {
		t.Fatalf("alerts = %+v, want the C101 mismatch", result.Alerts)
	}
	if result.Summary.Critical != 1 {
		t.Errorf("summary = %+v, want one critical", result.Summary)
	}
}

func TestListAlertsRejectsBadSeverity(t *testing.T) {
	s := newTestServer(t)

	resp, envelope := doRequest(t, s, "GET", "/api/v1/alerts?severity=bogus", "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
	if envelope.ErrorType != models.ValidationErrorType {
		t.Errorf("error type = %q, want validation", envelope.ErrorType)
	}
}

func TestAcknowledgeFlow(t *testing.T) {
	s := newTestServer(t)

	// Evaluation creates the state row the ack transitions.
	doRequest(t, s, "GET", "/api/v1/alerts", "")

	resp, envelope := doRequest(t, s, "POST", "/api/v1/alerts/1/cards_mismatch/ack", `{"note":"cards ordered"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d: %+v", resp.StatusCode, envelope)
	}

	resp, envelope = doRequest(t, s, "GET", "/api/v1/alerts/1/cards_mismatch", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get state status = %d", resp.StatusCode)
	}
	data, _ := json.Marshal(envelope.Data)
	var state models.AlertState
	if err := json.Unmarshal(data, &state); err != nil {
		t.Fatalf("unmarshal state: %v", err)
	}
	if state.Status != models.AlertStatusAcked || state.Note != "cards ordered" {
		t.Errorf("state = %+v, want acked with note", state)
	}
}

func TestSnoozeRejectsPastDeadline(t *testing.T) {
	s := newTestServer(t)
	doRequest(t, s, "GET", "/api/v1/alerts", "")

	past := time.Now().Add(-time.Hour).UTC().Format(time.RFC3339)
	resp, envelope := doRequest(t, s, "POST", "/api/v1/alerts/1/cards_mismatch/snooze", `{"snooze_until":"`+past+`"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
	if envelope.ErrorType != models.ValidationErrorType {
		t.Errorf("error type = %q, want validation", envelope.ErrorType)
	}
}

func TestActionsForbiddenWithoutScope(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest("POST", "/api/v1/alerts/1/cards_mismatch/ack", nil)
	req.Header.Set("X-Actor", "x")
	req.Header.Set("X-Department", "Accounting")
	resp, err := s.app.Test(req, -1)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("status = %d, want 403", resp.StatusCode)
	}
}

func TestGetStateNotFound(t *testing.T) {
	s := newTestServer(t)

	resp, envelope := doRequest(t, s, "GET", "/api/v1/alerts/99/cards_mismatch", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
	if envelope.ErrorType != models.NotFoundErrorType {
		t.Errorf("error type = %q, want not_found", envelope.ErrorType)
	}
}

func TestInvalidCourseID(t *testing.T) {
	s := newTestServer(t)

	resp, _ := doRequest(t, s, "GET", "/api/v1/alerts/abc/cards_mismatch", "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}
