package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/deptrack/deptrack/pkg/models"
)

const (
	upsertSeenQuery = `INSERT INTO alert_states (
    scope,
    course_id,
    alert_key,
    status,
    occurrences,
    first_seen_at,
    last_seen_at,
    updated_at
) VALUES (?, ?, ?, 'open', 1, ?, ?, ?)
ON CONFLICT (scope, course_id, alert_key) DO UPDATE SET
    occurrences = occurrences + 1,
    last_seen_at = excluded.last_seen_at`

	bumpSeenByKeysQuery = `UPDATE alert_states
SET occurrences = occurrences + 1,
    last_seen_at = ?
WHERE scope = ? AND course_id = ? AND alert_key IN (%s)`

	setStateByKeysQuery = `UPDATE alert_states
SET status = ?,
    snooze_until = ?,
    note = ?,
    updated_by = ?,
    updated_at = ?
WHERE scope = ? AND course_id = ? AND alert_key IN (%s)`

	clearStateByKeysQuery = `UPDATE alert_states
SET status = 'open',
    snooze_until = NULL,
    note = NULL,
    updated_by = ?,
    updated_at = ?
WHERE scope = ? AND course_id = ? AND alert_key IN (%s)`

	reconcileQuery = `UPDATE alert_states
SET status = 'resolved',
    updated_at = ?
WHERE scope = ? AND course_id = ?
  AND status IN ('open', 'acked', 'snoozed')`

	selectStateBase = `SELECT
    scope,
    course_id,
    alert_key,
    status,
    snooze_until,
    note,
    first_seen_at,
    last_seen_at,
    occurrences,
    updated_by,
    updated_at
FROM alert_states`
)

// UpsertSeen records one sighting of an alert key: inserts an open row on
// first sight, otherwise bumps occurrences and last_seen_at while leaving
// status, snooze and note untouched. The write is an atomic
// insert-or-increment, safe under concurrent callers for the same key.
//
// When aliases are given, a row persisted under a legacy key is bumped in
// place instead of creating a duplicate under the primary key.
func (db *DB) UpsertSeen(ctx context.Context, scope models.Scope, courseID int, key string, aliases []string) error {
	now := time.Now().UTC()

	if len(aliases) > 0 {
		keys := append([]string{key}, aliases...)
		query := fmt.Sprintf(bumpSeenByKeysQuery, placeholders(len(keys)))
		args := []any{now, string(scope), courseID}
		for _, k := range keys {
			args = append(args, k)
		}
		res, err := db.writeDB.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("%w: bump seen: %v", ErrUnavailable, err)
		}
		if rows, _ := res.RowsAffected(); rows > 0 {
			return nil
		}
	}

	if _, err := db.writeDB.ExecContext(ctx, upsertSeenQuery,
		string(scope), courseID, key, now, now, now,
	); err != nil {
		return fmt.Errorf("%w: upsert seen: %v", ErrUnavailable, err)
	}
	return nil
}

// SetState applies a user-driven transition to the row resolved by key or
// any of its aliases, stamping the actor and time. Row existence is
// guaranteed by an UpsertSeen beforehand; validation of the target status
// and snooze deadline is the caller's responsibility (see internal/core).
func (db *DB) SetState(ctx context.Context, scope models.Scope, courseID int, key string, aliases []string, status models.AlertStatus, snoozeUntil *time.Time, note, actor string) error {
	if err := db.UpsertSeen(ctx, scope, courseID, key, aliases); err != nil {
		return err
	}

	keys := append([]string{key}, aliases...)
	query := fmt.Sprintf(setStateByKeysQuery, placeholders(len(keys)))
	args := []any{string(status), nullableTime(snoozeUntil), nullableString(note), nullableString(actor), time.Now().UTC(), string(scope), courseID}
	for _, k := range keys {
		args = append(args, k)
	}

	res, err := db.writeDB.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%w: set state: %v", ErrUnavailable, err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return ErrNotFound
	}
	return nil
}

// ClearState resets the row resolved by key or aliases back to open,
// dropping the snooze deadline and note. This is the explicit
// un-ack/un-snooze/un-ignore operation.
func (db *DB) ClearState(ctx context.Context, scope models.Scope, courseID int, key string, aliases []string, actor string) error {
	if err := db.UpsertSeen(ctx, scope, courseID, key, aliases); err != nil {
		return err
	}

	keys := append([]string{key}, aliases...)
	query := fmt.Sprintf(clearStateByKeysQuery, placeholders(len(keys)))
	args := []any{nullableString(actor), time.Now().UTC(), string(scope), courseID}
	for _, k := range keys {
		args = append(args, k)
	}

	res, err := db.writeDB.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%w: clear state: %v", ErrUnavailable, err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return ErrNotFound
	}
	return nil
}

// Reconcile resolves every non-terminal row under (scope, course) whose
// key is absent from activeKeys. It must run after the pass's UpsertSeen
// calls with the full alias-expanded key set actually produced, otherwise
// live reasons get incorrectly auto-resolved.
func (db *DB) Reconcile(ctx context.Context, scope models.Scope, courseID int, activeKeys []string) error {
	query := reconcileQuery
	args := []any{time.Now().UTC(), string(scope), courseID}
	if len(activeKeys) > 0 {
		query += fmt.Sprintf(" AND alert_key NOT IN (%s)", placeholders(len(activeKeys)))
		for _, k := range activeKeys {
			args = append(args, k)
		}
	}

	if _, err := db.writeDB.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("%w: reconcile: %v", ErrUnavailable, err)
	}
	return nil
}

// GetState returns the state row for the first of the given keys that has
// one, in key order. ErrNotFound when none exists.
func (db *DB) GetState(ctx context.Context, scope models.Scope, courseID int, keys []string) (*models.AlertState, error) {
	if len(keys) == 0 {
		return nil, ErrNotFound
	}
	query := selectStateBase + fmt.Sprintf(" WHERE scope = ? AND course_id = ? AND alert_key IN (%s)", placeholders(len(keys)))
	args := []any{string(scope), courseID}
	for _, k := range keys {
		args = append(args, k)
	}

	rows, err := db.readDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: get state: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	byKey := make(map[string]*models.AlertState)
	for rows.Next() {
		state, err := scanAlertState(rows)
		if err != nil {
			return nil, err
		}
		byKey[state.AlertKey] = state
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating states: %v", ErrUnavailable, err)
	}

	for _, k := range keys {
		if state, ok := byKey[k]; ok {
			return state, nil
		}
	}
	return nil, ErrNotFound
}

// ListStatesByScope returns every state row in the scope. The caller
// indexes them per course; one read per evaluation pass keeps the filter
// from issuing a query per reason.
func (db *DB) ListStatesByScope(ctx context.Context, scope models.Scope) ([]*models.AlertState, error) {
	query := selectStateBase + " WHERE scope = ? ORDER BY course_id, alert_key"
	rows, err := db.readDB.QueryContext(ctx, query, string(scope))
	if err != nil {
		return nil, fmt.Errorf("%w: list states: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	var states []*models.AlertState
	for rows.Next() {
		state, err := scanAlertState(rows)
		if err != nil {
			return nil, err
		}
		states = append(states, state)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating states: %v", ErrUnavailable, err)
	}
	return states, nil
}

func scanAlertState(scanner interface{ Scan(dest ...any) error }) (*models.AlertState, error) {
	var (
		scope       string
		courseID    int64
		alertKey    string
		status      string
		snoozeUntil sql.NullTime
		note        sql.NullString
		firstSeenAt time.Time
		lastSeenAt  time.Time
		occurrences int
		updatedBy   sql.NullString
		updatedAt   time.Time
	)
	if err := scanner.Scan(&scope, &courseID, &alertKey, &status, &snoozeUntil, &note, &firstSeenAt, &lastSeenAt, &occurrences, &updatedBy, &updatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan alert state: %w", err)
	}

	state := &models.AlertState{
		Scope:       models.Scope(scope),
		CourseID:    int(courseID),
		AlertKey:    alertKey,
		Status:      models.AlertStatus(status),
		Note:        note.String,
		FirstSeenAt: firstSeenAt,
		LastSeenAt:  lastSeenAt,
		Occurrences: occurrences,
		UpdatedBy:   updatedBy.String,
		UpdatedAt:   updatedAt,
	}
	if snoozeUntil.Valid {
		t := snoozeUntil.Time
		state.SnoozeUntil = &t
	}
	return state, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return value.UTC()
}
