package alerting

import "github.com/deptrack/deptrack/pkg/models"

// Aggregate merges evaluator findings into per-course alerts. It is pure:
// an immutable finding list in, an immutable alert list out, no state
// carried between calls.
//
// Within a course, reasons sharing a key are deduplicated: the first
// occurrence wins on text and metadata (evaluator ordering is stable), but
// the severity is the max across every instance of the key seen before
// dedup. The alert's severity is the max over its deduplicated reasons.
//
// Findings without a resolvable course id (zero) cannot be grouped and
// pass through as singleton alerts. This is a deliberate escape hatch for
// degenerate input, not an error path: such alerts are already final.
func Aggregate(findings []Finding) []models.Alert {
	var (
		order    []int
		byCourse = make(map[int]*models.Alert)
		keyIndex = make(map[int]map[string]int) // courseID -> key -> reason index
		orphans  []models.Alert
	)

	for _, f := range findings {
		if f.CourseID == 0 {
			orphans = append(orphans, models.Alert{
				Course:   f.Course,
				Reasons:  []models.Reason{f.Reason},
				Severity: f.Reason.Severity,
			})
			continue
		}

		alert, ok := byCourse[f.CourseID]
		if !ok {
			alert = &models.Alert{CourseID: f.CourseID, Course: f.Course}
			byCourse[f.CourseID] = alert
			keyIndex[f.CourseID] = make(map[string]int)
			order = append(order, f.CourseID)
		}

		if idx, seen := keyIndex[f.CourseID][f.Reason.Key]; seen {
			existing := &alert.Reasons[idx]
			existing.Severity = models.MaxSeverity(existing.Severity, f.Reason.Severity)
		} else {
			keyIndex[f.CourseID][f.Reason.Key] = len(alert.Reasons)
			alert.Reasons = append(alert.Reasons, f.Reason)
		}
	}

	alerts := make([]models.Alert, 0, len(order)+len(orphans))
	for _, courseID := range order {
		alert := byCourse[courseID]
		alert.Severity = maxReasonSeverity(alert.Reasons)
		alerts = append(alerts, *alert)
	}
	return append(alerts, orphans...)
}

func maxReasonSeverity(reasons []models.Reason) models.Severity {
	severity := models.SeverityNotice
	for _, r := range reasons {
		severity = models.MaxSeverity(severity, r.Severity)
	}
	return severity
}
