package alerting

import (
	"fmt"
	"time"

	"github.com/deptrack/deptrack/internal/config"
	"github.com/deptrack/deptrack/pkg/models"
)

// EvaluateSchedule runs the card/schedule rules over the given facts. It
// is a pure function: same facts, clock and policy produce the same
// findings. Each reason key fires at most once per course per pass.
//
// Rules:
//   - cards_mismatch: linked card count differs from the trainee count for
//     a course overlapping the ±horizon window. Severity combines mismatch
//     magnitude with schedule proximity, taking the max.
//   - course_ended_recent / course_ended_old: a finished course still has
//     linked cards; warning within the grace period after the end,
//     critical beyond it.
func EvaluateSchedule(facts []models.CourseFacts, now time.Time, cfg config.AlertsConfig) []Finding {
	var findings []Finding
	for _, f := range facts {
		if !withinHorizon(f, now, cfg.HorizonDays) {
			continue
		}
		if finding, ok := cardsMismatch(f, now, cfg); ok {
			findings = append(findings, finding)
		}
		if finding, ok := endedWithCards(f, now, cfg); ok {
			findings = append(findings, finding)
		}
	}
	return findings
}

func withinHorizon(f models.CourseFacts, now time.Time, horizonDays int) bool {
	h := time.Duration(horizonDays) * 24 * time.Hour
	return !f.StartDate.After(now.Add(h)) && !f.EndDate.Before(now.Add(-h))
}

func cardsMismatch(f models.CourseFacts, now time.Time, cfg config.AlertsConfig) (Finding, bool) {
	required := f.TraineeCount
	if f.LinkedCards == required || f.Phase(now) == models.CoursePhaseFinished {
		return Finding{}, false
	}

	diff := f.LinkedCards - required
	if diff < 0 {
		diff = -diff
	}

	// Magnitude alone decides between notice and warning; schedule
	// proximity can escalate further.
	severity := models.SeverityNotice
	if diff >= cfg.CardWarnDiff {
		severity = models.SeverityWarning
	}

	var text string
	switch f.Phase(now) {
	case models.CoursePhaseUpcoming:
		days := f.DaysToStart(now)
		if days <= cfg.CardCriticalLeadDays {
			severity = models.SeverityCritical
		}
		text = fmt.Sprintf("%s: %d cards linked, %d required, starts in %d day(s)", f.Course.Code, f.LinkedCards, required, days)
	case models.CoursePhaseActive:
		daysIn := -f.DaysToStart(now)
		severity = models.MaxSeverity(severity, activeWindowSeverity(daysIn, f.DurationDays(), cfg.ActiveWindowFraction))
		text = fmt.Sprintf("%s: %d cards linked, %d required, running for %d day(s)", f.Course.Code, f.LinkedCards, required, daysIn)
	}

	return Finding{
		CourseID: f.Course.ID,
		Course:   f.Course,
		Reason: models.Reason{
			Key:        KeyCardsMismatch,
			LegacyKeys: legacyCardsMismatchKeys,
			Text:       text,
			Severity:   severity,
			Extra: map[string]any{
				"linked":        f.LinkedCards,
				"required":      required,
				"diff":          diff,
				"days_to_start": f.DaysToStart(now),
			},
		},
	}, true
}

// activeWindowSeverity grades a mismatch on a running course. The grace
// window is a fraction of the course duration with a one-day floor; the
// mismatch worsens as the window runs out and is critical once it has.
func activeWindowSeverity(daysIn, durationDays int, fraction float64) models.Severity {
	window := int(float64(durationDays) * fraction)
	if window < 1 {
		window = 1
	}
	switch {
	case daysIn <= 0:
		return models.SeverityCritical // start day
	case daysIn <= window/2:
		return models.SeverityWarning
	default:
		return models.SeverityCritical
	}
}

func endedWithCards(f models.CourseFacts, now time.Time, cfg config.AlertsConfig) (Finding, bool) {
	if f.Phase(now) != models.CoursePhaseFinished || f.LinkedCards == 0 {
		return Finding{}, false
	}

	days := f.DaysSinceEnd(now)
	key := KeyCourseEndedFresh
	severity := models.SeverityWarning
	if days > cfg.EndedCriticalAfterDays {
		key = KeyCourseEndedOld
		severity = models.SeverityCritical
	}

	return Finding{
		CourseID: f.Course.ID,
		Course:   f.Course,
		Reason: models.Reason{
			Key:      key,
			Text:     fmt.Sprintf("%s ended %d day(s) ago with %d card(s) still linked", f.Course.Code, days, f.LinkedCards),
			Severity: severity,
			Extra: map[string]any{
				"linked":         f.LinkedCards,
				"days_since_end": days,
			},
		},
	}, true
}
