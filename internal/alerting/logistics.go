package alerting

import (
	"fmt"
	"time"

	"github.com/deptrack/deptrack/internal/config"
	"github.com/deptrack/deptrack/pkg/models"
)

// EvaluateLogistics runs the laptop logistics rules over the given facts.
// Like the schedule family it is pure with respect to the facts; the one
// externally-visible consequence, flipping a long-overdue device to lost,
// is returned as an explicit SideEffect instruction for the caller to
// apply rather than performed from inside the rule.
//
// Rules:
//   - laptops_mismatch: a course starting within the short lead horizon
//     has fewer or more laptops assigned than its plan requires. Severity
//     scales with proximity and is always critical on the start day.
//   - laptops_status_unexpected: on the start day the laptop batch is not
//     in one of the expected ready statuses.
//   - laptops_overdue_return: a finished course still has laptops checked
//     out; warning at first, critical past the overdue grace period. Past
//     the stricter mark-lost threshold each device still out yields a
//     mark_lost instruction.
func EvaluateLogistics(facts []models.CourseFacts, now time.Time, cfg config.AlertsConfig) ([]Finding, []SideEffect) {
	var (
		findings []Finding
		effects  []SideEffect
	)
	for _, f := range facts {
		if !f.NeedsLaptops() {
			continue
		}

		switch f.Phase(now) {
		case models.CoursePhaseUpcoming, models.CoursePhaseActive:
			days := f.DaysToStart(now)
			if days < 0 || days > cfg.LaptopLeadDays {
				continue
			}
			if finding, ok := laptopsMismatch(f, days); ok {
				findings = append(findings, finding)
			}
			if finding, ok := laptopsStatusUnexpected(f, days, cfg.LaptopReadyStatuses); ok {
				findings = append(findings, finding)
			}
		case models.CoursePhaseFinished:
			finding, courseEffects, ok := laptopsOverdue(f, now, cfg)
			if !ok {
				continue
			}
			findings = append(findings, finding)
			effects = append(effects, courseEffects...)
		}
	}
	return findings, effects
}

func laptopsMismatch(f models.CourseFacts, daysToStart int) (Finding, bool) {
	if f.AssignedLaptops == f.RequiredLaptops {
		return Finding{}, false
	}

	var severity models.Severity
	switch {
	case daysToStart == 0:
		severity = models.SeverityCritical
	case daysToStart == 1:
		severity = models.SeverityWarning
	default:
		severity = models.SeverityNotice
	}

	return Finding{
		CourseID: f.Course.ID,
		Course:   f.Course,
		Reason: models.Reason{
			Key:        KeyLaptopsMismatch,
			LegacyKeys: legacyLaptopsMismatchKeys,
			Text:       fmt.Sprintf("%s: %d laptop(s) assigned, %d required, starts in %d day(s)", f.Course.Code, f.AssignedLaptops, f.RequiredLaptops, daysToStart),
			Severity:   severity,
			Extra: map[string]any{
				"assigned":      f.AssignedLaptops,
				"required":      f.RequiredLaptops,
				"days_to_start": daysToStart,
			},
		},
	}, true
}

func laptopsStatusUnexpected(f models.CourseFacts, daysToStart int, readyStatuses []string) (Finding, bool) {
	if daysToStart != 0 {
		return Finding{}, false
	}
	for _, s := range readyStatuses {
		if f.LaptopStatus == s {
			return Finding{}, false
		}
	}

	return Finding{
		CourseID: f.Course.ID,
		Course:   f.Course,
		Reason: models.Reason{
			Key:      KeyLaptopsStatusUnexpected,
			Text:     fmt.Sprintf("%s starts today but laptops are %q", f.Course.Code, f.LaptopStatus),
			Severity: models.SeverityWarning,
			Extra: map[string]any{
				"status": f.LaptopStatus,
			},
		},
	}, true
}

func laptopsOverdue(f models.CourseFacts, now time.Time, cfg config.AlertsConfig) (Finding, []SideEffect, bool) {
	if len(f.CheckedOut) == 0 {
		return Finding{}, nil, false
	}

	days := f.DaysSinceEnd(now)
	if days < 1 {
		return Finding{}, nil, false
	}

	severity := models.SeverityWarning
	if days > cfg.OverdueCriticalAfterDays {
		severity = models.SeverityCritical
	}

	var effects []SideEffect
	if days > cfg.MarkLostAfterDays {
		for _, d := range f.CheckedOut {
			if d.Status == "lost" {
				continue
			}
			effects = append(effects, SideEffect{
				CourseID: f.Course.ID,
				DeviceID: d.ID,
				Action:   ActionMarkLost,
			})
		}
	}

	finding := Finding{
		CourseID: f.Course.ID,
		Course:   f.Course,
		Reason: models.Reason{
			Key:      KeyLaptopsOverdueReturn,
			Text:     fmt.Sprintf("%s ended %d day(s) ago with %d laptop(s) still checked out", f.Course.Code, days, len(f.CheckedOut)),
			Severity: severity,
			Extra: map[string]any{
				"devices":        len(f.CheckedOut),
				"days_since_end": days,
			},
		},
	}
	return finding, effects, true
}
