package models

import "time"

// Severity classifies how urgently a reason needs attention. The three
// levels form a total order (notice < warning < critical) used when
// combining multiple findings under one key.
type Severity string

const (
	SeverityNotice   Severity = "notice"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

var severityRank = map[Severity]int{
	SeverityNotice:   1,
	SeverityWarning:  2,
	SeverityCritical: 3,
}

// Rank returns the numeric rank of the severity (notice=1, warning=2,
// critical=3). Unknown values rank below notice.
func (s Severity) Rank() int {
	return severityRank[s]
}

// Valid reports whether s is one of the three known severities.
func (s Severity) Valid() bool {
	_, ok := severityRank[s]
	return ok
}

// MaxSeverity returns the higher-ranked of the two severities.
func MaxSeverity(a, b Severity) Severity {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// Scope partitions alert visibility and state storage. It is an
// access-control partition with a fixed value set, not a reference to any
// other entity.
type Scope string

const (
	// ScopeAdmin sees every alert domain.
	ScopeAdmin Scope = "admin"
	// ScopeTCO covers the card/schedule domain (training coordination).
	ScopeTCO Scope = "tco"
	// ScopeITC covers the laptop logistics domain.
	ScopeITC Scope = "itc"
	// ScopeNone yields zero evaluation and zero visible alerts.
	ScopeNone Scope = "none"
)

// AlertStatus is the workflow state of one persisted (scope, course, key)
// record.
type AlertStatus string

const (
	AlertStatusOpen    AlertStatus = "open"
	AlertStatusAcked   AlertStatus = "acked"
	AlertStatusSnoozed AlertStatus = "snoozed"
	AlertStatusIgnored AlertStatus = "ignored"
	// AlertStatusResolved is system-only: set by reconciliation when the
	// underlying condition stops firing, never directly by a user action.
	AlertStatusResolved AlertStatus = "resolved"
)

// SettableStatuses are the statuses a user action may transition a record
// into. Resolved is reserved for reconciliation.
var SettableStatuses = map[AlertStatus]struct{}{
	AlertStatusOpen:    {},
	AlertStatusAcked:   {},
	AlertStatusSnoozed: {},
	AlertStatusIgnored: {},
}

// Reason is one rule-firing instance. It is rebuilt fresh on every
// evaluation pass and never persisted itself; only its workflow state,
// keyed by (scope, course, key), lives in the store.
//
// Status, Note, SnoozeUntil and Ghost are resolved presentation fields:
// evaluators leave them zero and the visibility filter fills them from the
// persisted state.
type Reason struct {
	// Key identifies the rule that fired, stable across passes
	// (e.g. "cards_mismatch"). Unique per rule, not per occurrence.
	Key string `json:"key"`
	// LegacyKeys are aliases kept for state-store compatibility with
	// retired key names. Lookups try Key first, then aliases in order;
	// new rows are always written under Key.
	LegacyKeys []string       `json:"legacy_keys,omitempty"`
	Text       string         `json:"text"`
	Severity   Severity       `json:"severity"`
	Extra      map[string]any `json:"extra,omitempty"`

	Status      AlertStatus `json:"status,omitempty"`
	Note        string      `json:"note,omitempty"`
	SnoozeUntil *time.Time  `json:"snooze_until,omitempty"`
	// Ghost marks a synthesized entry for a persisted non-terminal state
	// whose rule no longer fires; only emitted when hidden reasons are
	// requested.
	Ghost bool `json:"ghost,omitempty"`
}

// StateKeys returns the primary key followed by the legacy aliases, the
// order state lookups must try them in.
func (r Reason) StateKeys() []string {
	keys := make([]string, 0, 1+len(r.LegacyKeys))
	keys = append(keys, r.Key)
	keys = append(keys, r.LegacyKeys...)
	return keys
}

// Alert is one course's aggregated view: its reasons deduplicated by key,
// with the overall severity being the max over the reasons.
type Alert struct {
	CourseID int       `json:"course_id"`
	Course   CourseRef `json:"course"`
	Reasons  []Reason  `json:"reasons"`
	Severity Severity  `json:"severity"`
}

// AlertState is the durable workflow record for one (scope, course, key)
// triple. Rows are created lazily on first sighting and never deleted;
// transitions only.
type AlertState struct {
	Scope       Scope       `json:"scope"`
	CourseID    int         `json:"course_id"`
	AlertKey    string      `json:"alert_key"`
	Status      AlertStatus `json:"status"`
	SnoozeUntil *time.Time  `json:"snooze_until,omitempty"`
	Note        string      `json:"note,omitempty"`
	FirstSeenAt time.Time   `json:"first_seen_at"`
	LastSeenAt  time.Time   `json:"last_seen_at"`
	Occurrences int         `json:"occurrences"`
	UpdatedBy   string      `json:"updated_by,omitempty"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// SnoozeActive reports whether the record is snoozed with an unexpired
// deadline at the given instant. An elapsed deadline means the snooze has
// effectively expired even though the stored status is untouched until the
// next state-changing call.
func (s *AlertState) SnoozeActive(now time.Time) bool {
	return s.Status == AlertStatusSnoozed && s.SnoozeUntil != nil && s.SnoozeUntil.After(now)
}

// SeveritySummary carries visible-reason counts per severity for badge
// display. Only visible, non-expired-snooze live reasons are counted.
type SeveritySummary struct {
	Notice   int `json:"notice"`
	Warning  int `json:"warning"`
	Critical int `json:"critical"`
}

// Add bumps the bucket for the given severity.
func (s *SeveritySummary) Add(sev Severity) {
	switch sev {
	case SeverityNotice:
		s.Notice++
	case SeverityWarning:
		s.Warning++
	case SeverityCritical:
		s.Critical++
	}
}

// Actor describes the caller as supplied by the surrounding CRUD layer.
// Scope resolution is a pure function of these strings.
type Actor struct {
	Name       string `json:"name"`
	Role       string `json:"role"`
	Department string `json:"department"`
}

// AlertFilters are the caller-supplied narrowing filters, applied after
// visibility resolution.
type AlertFilters struct {
	// Severity narrows to reasons of exactly this severity.
	Severity Severity `json:"severity,omitempty"`
	// KeyPrefix narrows to reasons whose key starts with this prefix.
	KeyPrefix string `json:"key_prefix,omitempty"`
	// Course is a substring match over course code and name.
	Course string `json:"course,omitempty"`
	// Responsible is a substring match over the responsible party.
	Responsible string `json:"responsible,omitempty"`
	// Query is a free-text substring match over reason text and course
	// identifiers.
	Query string `json:"q,omitempty"`
}

// AlertListResult is the outbound payload of one evaluation pass.
type AlertListResult struct {
	Scope   Scope           `json:"scope"`
	Alerts  []Alert         `json:"alerts"`
	Summary SeveritySummary `json:"summary"`
}

// AlertActionRequest is the body for acknowledge/snooze/ignore actions.
type AlertActionRequest struct {
	Note        string     `json:"note,omitempty"`
	SnoozeUntil *time.Time `json:"snooze_until,omitempty"`
}
