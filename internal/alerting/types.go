package alerting

import (
	"context"

	"github.com/deptrack/deptrack/pkg/models"
)

// Reason keys produced by the evaluators. Keys are stable rule
// identifiers; renamed keys keep their predecessors as legacy aliases so
// persisted workflow state carries over.
const (
	KeyCardsMismatch    = "cards_mismatch"
	KeyCourseEndedOld   = "course_ended_old"
	KeyCourseEndedFresh = "course_ended_recent"

	KeyLaptopsMismatch         = "laptops_mismatch"
	KeyLaptopsStatusUnexpected = "laptops_status_unexpected"
	KeyLaptopsOverdueReturn    = "laptops_overdue_return"
)

// Legacy key names retired when near-duplicate per-phase keys were unified
// under a single key per rule.
var (
	legacyCardsMismatchKeys   = []string{"cards_mismatch_upcoming", "cards_mismatch_started"}
	legacyLaptopsMismatchKeys = []string{"laptops_missing"}
)

// LegacyKeysFor returns the legacy aliases for a reason key, nil when the
// key never had any. User actions expand the key through this before
// hitting the state store so a row persisted under a retired name is
// transitioned instead of shadowed by a fresh one.
func LegacyKeysFor(key string) []string {
	switch key {
	case KeyCardsMismatch:
		return legacyCardsMismatchKeys
	case KeyLaptopsMismatch:
		return legacyLaptopsMismatchKeys
	default:
		return nil
	}
}

// Finding is one evaluator firing: a reason attributed to a course.
type Finding struct {
	CourseID int
	Course   models.CourseRef
	Reason   models.Reason
}

// SideEffectAction names an instruction for the caller to apply against
// external state.
type SideEffectAction string

// ActionMarkLost instructs the caller to flip a borrowed device's
// operational status to lost.
const ActionMarkLost SideEffectAction = "mark_lost"

// SideEffect is an explicit side-effect instruction returned by an
// evaluator instead of mutating collaborator state from inside rule code.
// The engine applies these through the DeviceWriter after the pass.
type SideEffect struct {
	CourseID int
	DeviceID int
	Action   SideEffectAction
}

// FactSource supplies the per-course facts rule evaluation runs over. The
// queries behind the counts belong to the host application; the engine
// treats their outputs as given.
type FactSource interface {
	CourseFacts(ctx context.Context) ([]models.CourseFacts, error)
}

// DeviceWriter is the collaborator that applies device side effects. A nil
// writer makes the engine log instructions without applying them.
type DeviceWriter interface {
	MarkLost(ctx context.Context, deviceID, courseID int) error
}
