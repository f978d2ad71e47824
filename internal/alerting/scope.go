// Package alerting implements the rule evaluation engine: scope
// resolution, the evaluator families, aggregation, the visibility filter,
// and the per-request evaluation pass over the persisted workflow state.
package alerting

import (
	"strings"

	"github.com/deptrack/deptrack/pkg/models"
)

// ResolveScope maps an actor to an access scope. It is a pure function of
// the actor's role and department strings, matched case-insensitively by
// substring. Precedence is admin > tco > itc > none, first match wins: a
// department string containing both "tco" and "itc" resolves to tco, and
// an admin role always wins regardless of department. Unknown or
// department-less actors get ScopeNone, which yields zero rule evaluation
// and zero visible alerts.
func ResolveScope(actor models.Actor) models.Scope {
	role := strings.ToLower(actor.Role)
	dept := strings.ToLower(actor.Department)

	switch {
	case strings.Contains(role, "admin"):
		return models.ScopeAdmin
	case strings.Contains(dept, "tco"):
		return models.ScopeTCO
	case strings.Contains(dept, "itc"):
		return models.ScopeITC
	default:
		return models.ScopeNone
	}
}

// scopeRunsSchedule reports whether the card/schedule evaluator family
// runs for the scope.
func scopeRunsSchedule(scope models.Scope) bool {
	return scope == models.ScopeAdmin || scope == models.ScopeTCO
}

// scopeRunsLogistics reports whether the laptop logistics evaluator family
// runs for the scope.
func scopeRunsLogistics(scope models.Scope) bool {
	return scope == models.ScopeAdmin || scope == models.ScopeITC
}
