// Package core implements the user-facing alert actions on top of the
// sqlite state store. Unlike the evaluation pass these are not
// best-effort: a failed action surfaces its error so the caller can tell
// the user the acknowledgment did not stick.
package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/deptrack/deptrack/internal/alerting"
	"github.com/deptrack/deptrack/internal/sqlite"
	"github.com/deptrack/deptrack/pkg/models"
)

var (
	// ErrScopeForbidden means the actor resolves to no scope and may not
	// touch alert state.
	ErrScopeForbidden = errors.New("actor has no alert scope")

	// ErrInvalidStatus means the requested transition target is not one a
	// user action may set.
	ErrInvalidStatus = errors.New("invalid alert status")

	// ErrInvalidSnooze means a snooze was requested without a usable
	// deadline.
	ErrInvalidSnooze = errors.New("snooze deadline must be in the future")

	// ErrAlertKeyRequired means the request did not identify an alert key.
	ErrAlertKeyRequired = errors.New("alert key is required")
)

// AcknowledgeAlert marks the (course, key) record as acked, keeping it
// visible. An optional note is stored with it.
func AcknowledgeAlert(ctx context.Context, db *sqlite.DB, log *slog.Logger, actor models.Actor, courseID int, key string, req models.AlertActionRequest) error {
	return setStatus(ctx, db, log, actor, courseID, key, models.AlertStatusAcked, nil, req.Note)
}

// SnoozeAlert hides the (course, key) record until the given deadline.
// The deadline must lie in the future; timezone-aware values are
// compared as absolute instants.
func SnoozeAlert(ctx context.Context, db *sqlite.DB, log *slog.Logger, actor models.Actor, courseID int, key string, req models.AlertActionRequest) error {
	if req.SnoozeUntil == nil || !req.SnoozeUntil.After(time.Now()) {
		return ErrInvalidSnooze
	}
	until := req.SnoozeUntil.UTC()
	return setStatus(ctx, db, log, actor, courseID, key, models.AlertStatusSnoozed, &until, req.Note)
}

// IgnoreAlert hides the (course, key) record indefinitely. Reconciliation
// leaves ignored records alone, so an ignore outlives the condition and
// stays findable through the hidden view until explicitly reopened.
func IgnoreAlert(ctx context.Context, db *sqlite.DB, log *slog.Logger, actor models.Actor, courseID int, key string, req models.AlertActionRequest) error {
	return setStatus(ctx, db, log, actor, courseID, key, models.AlertStatusIgnored, nil, req.Note)
}

// ReopenAlert resets the (course, key) record to open, clearing any
// snooze deadline and note.
func ReopenAlert(ctx context.Context, db *sqlite.DB, log *slog.Logger, actor models.Actor, courseID int, key string) error {
	scope, err := requireScope(actor)
	if err != nil {
		return err
	}
	if key == "" {
		return ErrAlertKeyRequired
	}

	if err := db.ClearState(ctx, scope, courseID, key, alerting.LegacyKeysFor(key), actor.Name); err != nil {
		log.Error("failed to reopen alert", "scope", scope, "course_id", courseID, "key", key, "error", err)
		return fmt.Errorf("failed to reopen alert: %w", err)
	}
	log.Info("alert reopened", "scope", scope, "course_id", courseID, "key", key, "actor", actor.Name)
	return nil
}

// GetAlertState returns the persisted workflow record for the (course,
// key) pair in the actor's scope, trying legacy aliases after the
// primary key. sqlite.ErrNotFound when no sighting was ever recorded.
func GetAlertState(ctx context.Context, db *sqlite.DB, actor models.Actor, courseID int, key string) (*models.AlertState, error) {
	scope, err := requireScope(actor)
	if err != nil {
		return nil, err
	}
	if key == "" {
		return nil, ErrAlertKeyRequired
	}
	keys := append([]string{key}, alerting.LegacyKeysFor(key)...)
	return db.GetState(ctx, scope, courseID, keys)
}

func setStatus(ctx context.Context, db *sqlite.DB, log *slog.Logger, actor models.Actor, courseID int, key string, status models.AlertStatus, snoozeUntil *time.Time, note string) error {
	scope, err := requireScope(actor)
	if err != nil {
		return err
	}
	if key == "" {
		return ErrAlertKeyRequired
	}
	if _, ok := models.SettableStatuses[status]; !ok {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	if err := db.SetState(ctx, scope, courseID, key, alerting.LegacyKeysFor(key), status, snoozeUntil, note, actor.Name); err != nil {
		log.Error("failed to set alert state", "scope", scope, "course_id", courseID, "key", key, "status", status, "error", err)
		return fmt.Errorf("failed to set alert state: %w", err)
	}
	log.Info("alert state changed", "scope", scope, "course_id", courseID, "key", key, "status", status, "actor", actor.Name)
	return nil
}

func requireScope(actor models.Actor) (models.Scope, error) {
	scope := alerting.ResolveScope(actor)
	if scope == models.ScopeNone {
		return scope, ErrScopeForbidden
	}
	return scope, nil
}
