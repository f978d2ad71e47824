package alerting

import (
	"strconv"
	"strings"
	"time"

	"github.com/deptrack/deptrack/pkg/models"
)

// StateIndex indexes persisted workflow state by course id and alert key
// for one scope.
type StateIndex map[int]map[string]*models.AlertState

// BuildStateIndex indexes the given state rows.
func BuildStateIndex(states []*models.AlertState) StateIndex {
	idx := make(StateIndex)
	for _, s := range states {
		course, ok := idx[s.CourseID]
		if !ok {
			course = make(map[string]*models.AlertState)
			idx[s.CourseID] = course
		}
		course[s.AlertKey] = s
	}
	return idx
}

// resolve returns the state row for the first matching key, trying the
// primary key before each legacy alias in order.
func (idx StateIndex) resolve(courseID int, keys []string) *models.AlertState {
	course, ok := idx[courseID]
	if !ok {
		return nil
	}
	for _, k := range keys {
		if s, ok := course[k]; ok {
			return s
		}
	}
	return nil
}

// ApplyVisibility resolves each reason's persisted state and decides what
// the caller gets to see. Storage is never mutated here: an expired snooze
// is shown as still carrying its stored snoozed status, it just no longer
// hides the reason.
//
// With includeHidden false, ignored and actively-snoozed reasons are
// dropped, and alerts left without reasons are dropped entirely. With
// includeHidden true everything is kept and, additionally, ghost entries
// are synthesized for unresolved state rows with no matching live reason,
// so an operator can still find and close conditions the evaluators
// stopped producing.
func ApplyVisibility(alerts []models.Alert, states StateIndex, now time.Time, includeHidden bool) []models.Alert {
	matched := make(map[int]map[string]bool, len(alerts))

	var out []models.Alert
	for _, alert := range alerts {
		courseMatched, ok := matched[alert.CourseID]
		if !ok {
			courseMatched = make(map[string]bool)
			matched[alert.CourseID] = courseMatched
		}

		var visible []models.Reason
		for _, reason := range alert.Reasons {
			keys := reason.StateKeys()
			state := states.resolve(alert.CourseID, keys)
			if state != nil {
				for _, k := range keys {
					courseMatched[k] = true
				}
				reason.Status = state.Status
				reason.Note = state.Note
				reason.SnoozeUntil = state.SnoozeUntil
			} else {
				reason.Status = models.AlertStatusOpen
			}

			if !includeHidden && state != nil {
				if state.Status == models.AlertStatusIgnored || state.SnoozeActive(now) {
					continue
				}
			}
			visible = append(visible, reason)
		}

		if len(visible) == 0 {
			continue
		}
		alert.Reasons = visible
		alert.Severity = maxReasonSeverity(visible)
		out = append(out, alert)
	}

	if includeHidden {
		out = appendGhosts(out, states, matched)
	}
	return out
}

// appendGhosts synthesizes entries for unresolved state rows whose rule no
// longer fires. Ghosts are tagged distinctly and carry notice severity;
// they exist so lingering acks, snoozes and ignores stay discoverable.
func appendGhosts(alerts []models.Alert, states StateIndex, matched map[int]map[string]bool) []models.Alert {
	index := make(map[int]int, len(alerts))
	for i, a := range alerts {
		index[a.CourseID] = i
	}

	for courseID, course := range states {
		for key, state := range course {
			if state.Status == models.AlertStatusResolved || matched[courseID][key] {
				continue
			}
			ghost := models.Reason{
				Key:         key,
				Text:        "no longer reported by evaluation",
				Severity:    models.SeverityNotice,
				Status:      state.Status,
				Note:        state.Note,
				SnoozeUntil: state.SnoozeUntil,
				Ghost:       true,
			}
			if i, ok := index[courseID]; ok {
				alerts[i].Reasons = append(alerts[i].Reasons, ghost)
			} else {
				index[courseID] = len(alerts)
				alerts = append(alerts, models.Alert{
					CourseID: courseID,
					Course:   models.CourseRef{ID: courseID},
					Reasons:  []models.Reason{ghost},
					Severity: models.SeverityNotice,
				})
			}
		}
	}
	return alerts
}

// ApplyFilters narrows the visible alerts with the caller-supplied
// filters, applied in a fixed order: severity, key prefix, course,
// responsible party, free text. Alerts left without reasons are dropped
// and their severity recomputed.
func ApplyFilters(alerts []models.Alert, f models.AlertFilters) []models.Alert {
	var out []models.Alert
	for _, alert := range alerts {
		if f.Course != "" && !containsFold(alert.Course.Code, f.Course) && !containsFold(alert.Course.Name, f.Course) {
			continue
		}
		if f.Responsible != "" && !containsFold(alert.Course.Responsible, f.Responsible) {
			continue
		}

		var kept []models.Reason
		for _, reason := range alert.Reasons {
			if f.Severity != "" && reason.Severity != f.Severity {
				continue
			}
			if f.KeyPrefix != "" && !strings.HasPrefix(reason.Key, f.KeyPrefix) {
				continue
			}
			if f.Query != "" && !matchesQuery(alert, reason, f.Query) {
				continue
			}
			kept = append(kept, reason)
		}
		if len(kept) == 0 {
			continue
		}
		alert.Reasons = kept
		alert.Severity = maxReasonSeverity(kept)
		out = append(out, alert)
	}
	return out
}

func matchesQuery(alert models.Alert, reason models.Reason, query string) bool {
	return containsFold(reason.Text, query) ||
		containsFold(alert.Course.Code, query) ||
		containsFold(alert.Course.Name, query) ||
		containsFold(strconv.Itoa(alert.CourseID), query)
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

// Summarize counts visible live reasons per severity for badge display.
// Ghosts, ignored reasons and unexpired snoozes are excluded regardless of
// whether the caller asked to see hidden entries, so the badge always
// reflects what needs attention.
func Summarize(alerts []models.Alert, now time.Time) models.SeveritySummary {
	var summary models.SeveritySummary
	for _, alert := range alerts {
		for _, reason := range alert.Reasons {
			if reason.Ghost || reason.Status == models.AlertStatusIgnored {
				continue
			}
			if reason.Status == models.AlertStatusSnoozed && reason.SnoozeUntil != nil && reason.SnoozeUntil.After(now) {
				continue
			}
			summary.Add(reason.Severity)
		}
	}
	return summary
}
