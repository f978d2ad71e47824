package core

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/deptrack/deptrack/internal/config"
	"github.com/deptrack/deptrack/internal/sqlite"
	"github.com/deptrack/deptrack/pkg/models"
)

var (
	testLog  = slog.New(slog.NewTextHandler(io.Discard, nil))
	tcoActor = models.Actor{Name: "jo", Role: "coordinator", Department: "tco"}
)

func newTestDB(t *testing.T) *sqlite.DB {
	t.Helper()
	db, err := sqlite.New(sqlite.Options{
		Logger: testLog,
		Config: config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "test.db")},
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestAcknowledgeAlert(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	err := AcknowledgeAlert(ctx, db, testLog, tcoActor, 1, "cards_mismatch", models.AlertActionRequest{Note: "cards ordered"})
	if err != nil {
		t.Fatalf("acknowledge: %v", err)
	}

	state, err := GetAlertState(ctx, db, tcoActor, 1, "cards_mismatch")
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	if state.Status != models.AlertStatusAcked {
		t.Errorf("status = %q, want acked", state.Status)
	}
	if state.Note != "cards ordered" {
		t.Errorf("note = %q, want cards ordered", state.Note)
	}
	if state.UpdatedBy != "jo" {
		t.Errorf("updated_by = %q, want jo", state.UpdatedBy)
	}
}

func TestSnoozeAlertValidation(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	past := time.Now().Add(-time.Hour)

	tests := []struct {
		name string
		req  models.AlertActionRequest
	}{
		{name: "missing deadline", req: models.AlertActionRequest{}},
		{name: "past deadline", req: models.AlertActionRequest{SnoozeUntil: &past}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := SnoozeAlert(ctx, db, testLog, tcoActor, 1, "cards_mismatch", tt.req)
			if !errors.Is(err, ErrInvalidSnooze) {
				t.Errorf("err = %v, want ErrInvalidSnooze", err)
			}
		})
	}

	t.Run("future deadline in non-UTC zone", func(t *testing.T) {
		zone := time.FixedZone("UTC+5", 5*3600)
		until := time.Now().In(zone).Add(2 * time.Hour)
		if err := SnoozeAlert(ctx, db, testLog, tcoActor, 1, "cards_mismatch", models.AlertActionRequest{SnoozeUntil: &until}); err != nil {
			t.Fatalf("snooze: %v", err)
		}
		state, err := GetAlertState(ctx, db, tcoActor, 1, "cards_mismatch")
		if err != nil {
			t.Fatalf("get state: %v", err)
		}
		if state.Status != models.AlertStatusSnoozed || state.SnoozeUntil == nil {
			t.Errorf("state = %+v, want snoozed with deadline", state)
		}
	})
}

func TestIgnoreAndReopenAlert(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if err := IgnoreAlert(ctx, db, testLog, tcoActor, 2, "cards_mismatch", models.AlertActionRequest{Note: "decommissioned"}); err != nil {
		t.Fatalf("ignore: %v", err)
	}
	state, err := GetAlertState(ctx, db, tcoActor, 2, "cards_mismatch")
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	if state.Status != models.AlertStatusIgnored {
		t.Errorf("status = %q, want ignored", state.Status)
	}

	if err := ReopenAlert(ctx, db, testLog, tcoActor, 2, "cards_mismatch"); err != nil {
		t.Fatalf("reopen: %v", err)
	}
	state, err = GetAlertState(ctx, db, tcoActor, 2, "cards_mismatch")
	if err != nil {
		t.Fatalf("get state after reopen: %v", err)
	}
	if state.Status != models.AlertStatusOpen {
		t.Errorf("status = %q, want open", state.Status)
	}
	if state.Note != "" {
		t.Errorf("note = %q, want cleared", state.Note)
	}
}

func TestActionsRequireScope(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	outsider := models.Actor{Name: "x", Department: "Accounting"}

	if err := AcknowledgeAlert(ctx, db, testLog, outsider, 1, "cards_mismatch", models.AlertActionRequest{}); !errors.Is(err, ErrScopeForbidden) {
		t.Errorf("acknowledge err = %v, want ErrScopeForbidden", err)
	}
	if err := ReopenAlert(ctx, db, testLog, outsider, 1, "cards_mismatch"); !errors.Is(err, ErrScopeForbidden) {
		t.Errorf("reopen err = %v, want ErrScopeForbidden", err)
	}
	if _, err := GetAlertState(ctx, db, outsider, 1, "cards_mismatch"); !errors.Is(err, ErrScopeForbidden) {
		t.Errorf("get err = %v, want ErrScopeForbidden", err)
	}
}

func TestActionsRequireKey(t *testing.T) {
	db := newTestDB(t)

	err := AcknowledgeAlert(context.Background(), db, testLog, tcoActor, 1, "", models.AlertActionRequest{})
	if !errors.Is(err, ErrAlertKeyRequired) {
		t.Errorf("err = %v, want ErrAlertKeyRequired", err)
	}
}

func TestActionOnLegacyKeyedRow(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	// State persisted before the key rename.
	if err := db.UpsertSeen(ctx, models.ScopeTCO, 3, "cards_mismatch_upcoming", nil); err != nil {
		t.Fatalf("seed legacy row: %v", err)
	}

	if err := AcknowledgeAlert(ctx, db, testLog, tcoActor, 3, "cards_mismatch", models.AlertActionRequest{Note: "ok"}); err != nil {
		t.Fatalf("acknowledge: %v", err)
	}

	states, err := db.ListStatesByScope(ctx, models.ScopeTCO)
	if err != nil {
		t.Fatalf("list states: %v", err)
	}
	if len(states) != 1 {
		t.Fatalf("expected the legacy row to be transitioned in place, got %d rows", len(states))
	}
	if states[0].AlertKey != "cards_mismatch_upcoming" || states[0].Status != models.AlertStatusAcked {
		t.Errorf("state = %+v, want acked legacy row", states[0])
	}
}
