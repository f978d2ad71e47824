package server

import (
	"context"
	"errors"
	"log/slog"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/deptrack/deptrack/internal/core"
	"github.com/deptrack/deptrack/internal/sqlite"
	"github.com/deptrack/deptrack/pkg/models"
)

func (s *Server) handleListAlerts(c *fiber.Ctx) error {
	actor := actorFromRequest(c)
	includeHidden := c.QueryBool("include_hidden")
	filters := models.AlertFilters{
		Severity:    models.Severity(c.Query("severity")),
		KeyPrefix:   c.Query("key_prefix"),
		Course:      c.Query("course"),
		Responsible: c.Query("responsible"),
		Query:       c.Query("q"),
	}
	if filters.Severity != "" && !filters.Severity.Valid() {
		return SendErrorWithType(c, fiber.StatusBadRequest, "Invalid severity filter", models.ValidationErrorType)
	}

	result, err := s.engine.Evaluate(c.Context(), actor, filters, includeHidden)
	if err != nil {
		s.log.Error("failed to evaluate alerts", "error", err)
		return SendErrorWithType(c, fiber.StatusInternalServerError, "Failed to evaluate alerts", models.GeneralErrorType)
	}
	return SendSuccess(c, fiber.StatusOK, result)
}

func (s *Server) handleGetAlertState(c *fiber.Ctx) error {
	courseID, key, err := s.parseAlertIdentifiers(c)
	if err != nil {
		return SendErrorWithType(c, fiber.StatusBadRequest, err.Error(), models.ValidationErrorType)
	}

	state, err := core.GetAlertState(c.Context(), s.sqlite, actorFromRequest(c), courseID, key)
	if err != nil {
		if errors.Is(err, core.ErrScopeForbidden) {
			return SendErrorWithType(c, fiber.StatusForbidden, "No alert scope", models.ForbiddenErrorType)
		}
		if errors.Is(err, sqlite.ErrNotFound) {
			return SendErrorWithType(c, fiber.StatusNotFound, "Alert state not found", models.NotFoundErrorType)
		}
		s.log.Error("failed to get alert state", "course_id", courseID, "key", key, "error", err)
		return SendErrorWithType(c, fiber.StatusInternalServerError, "Failed to retrieve alert state", models.GeneralErrorType)
	}
	return SendSuccess(c, fiber.StatusOK, state)
}

func (s *Server) handleAcknowledgeAlert(c *fiber.Ctx) error {
	return s.handleAlertAction(c, core.AcknowledgeAlert)
}

func (s *Server) handleSnoozeAlert(c *fiber.Ctx) error {
	return s.handleAlertAction(c, core.SnoozeAlert)
}

func (s *Server) handleIgnoreAlert(c *fiber.Ctx) error {
	return s.handleAlertAction(c, core.IgnoreAlert)
}

func (s *Server) handleReopenAlert(c *fiber.Ctx) error {
	courseID, key, err := s.parseAlertIdentifiers(c)
	if err != nil {
		return SendErrorWithType(c, fiber.StatusBadRequest, err.Error(), models.ValidationErrorType)
	}

	if err := core.ReopenAlert(c.Context(), s.sqlite, s.log, actorFromRequest(c), courseID, key); err != nil {
		return s.sendActionError(c, courseID, key, err)
	}
	return SendSuccess(c, fiber.StatusOK, fiber.Map{"status": string(models.AlertStatusOpen)})
}

// alertAction is the shared signature of the status-setting core actions.
type alertAction func(ctx context.Context, db *sqlite.DB, log *slog.Logger, actor models.Actor, courseID int, key string, req models.AlertActionRequest) error

func (s *Server) handleAlertAction(c *fiber.Ctx, action alertAction) error {
	courseID, key, err := s.parseAlertIdentifiers(c)
	if err != nil {
		return SendErrorWithType(c, fiber.StatusBadRequest, err.Error(), models.ValidationErrorType)
	}

	var req models.AlertActionRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return SendErrorWithType(c, fiber.StatusBadRequest, "Invalid request body", models.ValidationErrorType)
		}
	}

	if err := action(c.Context(), s.sqlite, s.log, actorFromRequest(c), courseID, key, req); err != nil {
		return s.sendActionError(c, courseID, key, err)
	}

	state, err := core.GetAlertState(c.Context(), s.sqlite, actorFromRequest(c), courseID, key)
	if err != nil {
		s.log.Error("failed to reload alert state after action", "course_id", courseID, "key", key, "error", err)
		return SendSuccess(c, fiber.StatusOK, fiber.Map{"status": "updated"})
	}
	return SendSuccess(c, fiber.StatusOK, state)
}

func (s *Server) sendActionError(c *fiber.Ctx, courseID int, key string, err error) error {
	switch {
	case errors.Is(err, core.ErrScopeForbidden):
		return SendErrorWithType(c, fiber.StatusForbidden, "No alert scope", models.ForbiddenErrorType)
	case errors.Is(err, core.ErrInvalidSnooze), errors.Is(err, core.ErrInvalidStatus), errors.Is(err, core.ErrAlertKeyRequired):
		return SendErrorWithType(c, fiber.StatusBadRequest, err.Error(), models.ValidationErrorType)
	case errors.Is(err, sqlite.ErrNotFound):
		return SendErrorWithType(c, fiber.StatusNotFound, "Alert state not found", models.NotFoundErrorType)
	default:
		s.log.Error("alert action failed", "course_id", courseID, "key", key, "error", err)
		return SendErrorWithType(c, fiber.StatusInternalServerError, "Failed to update alert state", models.GeneralErrorType)
	}
}

var (
	errInvalidCourseID = errors.New("invalid course ID")
	errMissingAlertKey = errors.New("missing alert key")
)

// parseAlertIdentifiers extracts and validates the course id and alert key
// path parameters. The caller maps the error to a response.
func (s *Server) parseAlertIdentifiers(c *fiber.Ctx) (int, string, error) {
	courseID, err := strconv.Atoi(c.Params("courseID"))
	if err != nil || courseID <= 0 {
		return 0, "", errInvalidCourseID
	}
	key := c.Params("key")
	if key == "" {
		return 0, "", errMissingAlertKey
	}
	return courseID, key, nil
}
