package models

import "time"

// CoursePhase is the lifecycle phase of a course relative to today.
type CoursePhase string

const (
	CoursePhaseUpcoming CoursePhase = "upcoming"
	CoursePhaseActive   CoursePhase = "active"
	CoursePhaseFinished CoursePhase = "finished"
)

// CourseRef is a read-only reference to a course owned by the surrounding
// tracker. The alert engine borrows it for display and filtering only.
type CourseRef struct {
	ID          int    `json:"id"`
	Code        string `json:"code"`
	Name        string `json:"name"`
	Responsible string `json:"responsible,omitempty"`
}

// DeviceRef identifies a borrowed device (laptop) still linked to a
// course. Status is the operational status as tracked by the host app.
type DeviceRef struct {
	ID     int    `json:"id"`
	Label  string `json:"label"`
	Status string `json:"status"`
}

// CourseFacts are the per-course inputs to rule evaluation. They are
// treated as given facts: the queries that produce the counts live in the
// host application and are outside this engine.
type CourseFacts struct {
	Course    CourseRef  `json:"course"`
	StartDate time.Time  `json:"start_date"`
	EndDate   time.Time  `json:"end_date"`

	TraineeCount int `json:"trainee_count"`
	LinkedCards  int `json:"linked_cards"`

	// RequiredLaptops is the laptop count from the course's asset plan;
	// zero means the course does not use the laptop category and the
	// logistics rules skip it.
	RequiredLaptops int         `json:"required_laptops"`
	AssignedLaptops int         `json:"assigned_laptops"`
	LaptopStatus    string      `json:"laptop_status,omitempty"`
	CheckedOut      []DeviceRef `json:"checked_out,omitempty"`
}

// NeedsLaptops reports whether the laptop asset category applies to this
// course.
func (f CourseFacts) NeedsLaptops() bool {
	return f.RequiredLaptops > 0
}

// Phase derives the lifecycle phase at the given instant. Boundaries are
// inclusive: a course is active from its start date through its end date.
func (f CourseFacts) Phase(now time.Time) CoursePhase {
	day := now.Truncate(24 * time.Hour)
	switch {
	case f.StartDate.After(day):
		return CoursePhaseUpcoming
	case f.EndDate.Before(day):
		return CoursePhaseFinished
	default:
		return CoursePhaseActive
	}
}

// DaysToStart returns whole days from now until the course start; negative
// once the course has started.
func (f CourseFacts) DaysToStart(now time.Time) int {
	return daysBetween(now, f.StartDate)
}

// DaysSinceEnd returns whole days since the course end; negative while the
// course is still running.
func (f CourseFacts) DaysSinceEnd(now time.Time) int {
	return daysBetween(f.EndDate, now)
}

// DurationDays is the course length in days, never below one.
func (f CourseFacts) DurationDays() int {
	d := daysBetween(f.StartDate, f.EndDate) + 1
	if d < 1 {
		d = 1
	}
	return d
}

func daysBetween(a, b time.Time) int {
	ad := a.Truncate(24 * time.Hour)
	bd := b.Truncate(24 * time.Hour)
	return int(bd.Sub(ad) / (24 * time.Hour))
}
