package alerting

import (
	"testing"
	"time"

	"github.com/deptrack/deptrack/internal/config"
	"github.com/deptrack/deptrack/pkg/models"
)

// testNow is noon so day-level math exercises the midnight truncation.
var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func day(offset int) time.Time {
	return time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC).AddDate(0, 0, offset)
}

func courseFacts(id int, startOffset, endOffset int) models.CourseFacts {
	return models.CourseFacts{
		Course: models.CourseRef{
			ID:          id,
			Code:        "C101",
			Name:        "Field Operations",
			Responsible: "Jordan",
		},
		StartDate: day(startOffset),
		EndDate:   day(endOffset),
	}
}

func TestEvaluateScheduleCardsMismatch(t *testing.T) {
	cfg := config.Default().Alerts

	tests := []struct {
		name         string
		facts        models.CourseFacts
		trainees     int
		cards        int
		wantKey      string
		wantSeverity models.Severity
		wantNone     bool
	}{
		{
			name:     "counts match",
			facts:    courseFacts(1, 5, 10),
			trainees: 10, cards: 10,
			wantNone: true,
		},
		{
			name:     "small diff far out is a notice",
			facts:    courseFacts(1, 10, 15),
			trainees: 10, cards: 9,
			wantKey: KeyCardsMismatch, wantSeverity: models.SeverityNotice,
		},
		{
			name:     "large diff far out is a warning",
			facts:    courseFacts(1, 10, 15),
			trainees: 10, cards: 7,
			wantKey: KeyCardsMismatch, wantSeverity: models.SeverityWarning,
		},
		{
			name:     "surplus counts as mismatch too",
			facts:    courseFacts(1, 10, 15),
			trainees: 10, cards: 13,
			wantKey: KeyCardsMismatch, wantSeverity: models.SeverityWarning,
		},
		{
			name:     "imminent start escalates to critical",
			facts:    courseFacts(1, 2, 7),
			trainees: 10, cards: 7,
			wantKey: KeyCardsMismatch, wantSeverity: models.SeverityCritical,
		},
		{
			name:     "small diff with imminent start is still critical",
			facts:    courseFacts(1, 1, 7),
			trainees: 10, cards: 9,
			wantKey: KeyCardsMismatch, wantSeverity: models.SeverityCritical,
		},
		{
			name:     "start day of running course is critical",
			facts:    courseFacts(1, 0, 19),
			trainees: 10, cards: 9,
			wantKey: KeyCardsMismatch, wantSeverity: models.SeverityCritical,
		},
		{
			name:     "early in running course is a warning",
			facts:    courseFacts(1, -2, 17),
			trainees: 10, cards: 9,
			wantKey: KeyCardsMismatch, wantSeverity: models.SeverityWarning,
		},
		{
			name:     "deep into running course is critical",
			facts:    courseFacts(1, -4, 15),
			trainees: 10, cards: 9,
			wantKey: KeyCardsMismatch, wantSeverity: models.SeverityCritical,
		},
		{
			name:     "outside horizon",
			facts:    courseFacts(1, 40, 45),
			trainees: 10, cards: 7,
			wantNone: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := tt.facts
			f.TraineeCount = tt.trainees
			f.LinkedCards = tt.cards

			findings := EvaluateSchedule([]models.CourseFacts{f}, testNow, cfg)
			if tt.wantNone {
				if len(findings) != 0 {
					t.Fatalf("expected no findings, got %+v", findings)
				}
				return
			}
			if len(findings) != 1 {
				t.Fatalf("expected 1 finding, got %d", len(findings))
			}
			got := findings[0]
			if got.CourseID != f.Course.ID {
				t.Errorf("course id = %d, want %d", got.CourseID, f.Course.ID)
			}
			if got.Reason.Key != tt.wantKey {
				t.Errorf("key = %q, want %q", got.Reason.Key, tt.wantKey)
			}
			if got.Reason.Severity != tt.wantSeverity {
				t.Errorf("severity = %q, want %q", got.Reason.Severity, tt.wantSeverity)
			}
		})
	}
}

func TestEvaluateScheduleEndedWithCards(t *testing.T) {
	cfg := config.Default().Alerts

	tests := []struct {
		name         string
		endOffset    int
		cards        int
		wantKey      string
		wantSeverity models.Severity
		wantNone     bool
	}{
		{
			name:      "recently ended is a warning",
			endOffset: -3, cards: 4,
			wantKey: KeyCourseEndedFresh, wantSeverity: models.SeverityWarning,
		},
		{
			name:      "grace boundary is still a warning",
			endOffset: -7, cards: 4,
			wantKey: KeyCourseEndedFresh, wantSeverity: models.SeverityWarning,
		},
		{
			name:      "long ended is critical",
			endOffset: -10, cards: 4,
			wantKey: KeyCourseEndedOld, wantSeverity: models.SeverityCritical,
		},
		{
			name:      "no cards left",
			endOffset: -3, cards: 0,
			wantNone: true,
		},
		{
			name:      "outside horizon",
			endOffset: -40, cards: 4,
			wantNone: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := courseFacts(2, tt.endOffset-5, tt.endOffset)
			f.TraineeCount = 8
			f.LinkedCards = tt.cards

			findings := EvaluateSchedule([]models.CourseFacts{f}, testNow, cfg)
			if tt.wantNone {
				if len(findings) != 0 {
					t.Fatalf("expected no findings, got %+v", findings)
				}
				return
			}
			if len(findings) != 1 {
				t.Fatalf("expected 1 finding, got %d", len(findings))
			}
			got := findings[0].Reason
			if got.Key != tt.wantKey {
				t.Errorf("key = %q, want %q", got.Key, tt.wantKey)
			}
			if got.Severity != tt.wantSeverity {
				t.Errorf("severity = %q, want %q", got.Severity, tt.wantSeverity)
			}
		})
	}
}

func TestEvaluateScheduleDeterministic(t *testing.T) {
	cfg := config.Default().Alerts
	f := courseFacts(1, 2, 7)
	f.TraineeCount = 10
	f.LinkedCards = 7

	first := EvaluateSchedule([]models.CourseFacts{f}, testNow, cfg)
	second := EvaluateSchedule([]models.CourseFacts{f}, testNow, cfg)
	if len(first) != 1 || len(second) != 1 {
		t.Fatalf("expected 1 finding each, got %d and %d", len(first), len(second))
	}
	if first[0].Reason.Key != second[0].Reason.Key ||
		first[0].Reason.Severity != second[0].Reason.Severity ||
		first[0].Reason.Text != second[0].Reason.Text {
		t.Errorf("same inputs produced different findings: %+v vs %+v", first[0], second[0])
	}
}
