package handler

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-grader/internal/checker"
	"github.com/noah-isme/gema-grader/internal/middleware"
	"github.com/noah-isme/gema-grader/internal/models"
	"github.com/noah-isme/gema-grader/internal/repository"
	"github.com/noah-isme/gema-grader/internal/service"
	"github.com/noah-isme/gema-grader/internal/utils"
)

func splitAndTrim(input string) []string {
	parts := strings.Split(input, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

// parseRanking reads a comma separated list of solution orders, e.g. "3,1,2".
func parseRanking(input string) ([]int, error) {
	parts := splitAndTrim(input)
	ranking := make([]int, 0, len(parts))
	for _, part := range parts {
		value, err := strconv.Atoi(part)
		if err != nil || value <= 0 {
			return nil, fmt.Errorf("invalid ranking entry %q", part)
		}
		ranking = append(ranking, value)
	}
	return ranking, nil
}

func parsePositiveParam(c *fiber.Ctx, name string) (int, error) {
	value, err := strconv.Atoi(strings.TrimSpace(c.Params(name)))
	if err != nil || value <= 0 {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return value, nil
}

func parseUintParam(c *fiber.Ctx, name string) (uint, error) {
	value, err := strconv.ParseUint(strings.TrimSpace(c.Params(name)), 10, 64)
	if err != nil || value == 0 {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return uint(value), nil
}

func submissionKeyFromParams(c *fiber.Ctx) (models.SubmissionKey, error) {
	groupID, err := parsePositiveParam(c, "group_id")
	if err != nil {
		return models.SubmissionKey{}, err
	}
	variantID, err := parsePositiveParam(c, "variant_id")
	if err != nil {
		return models.SubmissionKey{}, err
	}
	taskID, err := parsePositiveParam(c, "task_id")
	if err != nil {
		return models.SubmissionKey{}, err
	}
	return models.SubmissionKey{TaskID: taskID, VariantID: variantID, GroupID: groupID}, nil
}

func userIDFromContext(c *fiber.Ctx) uint {
	if v := c.Locals("user_id"); v != nil {
		if id, ok := v.(uint); ok {
			return id
		}
		if id, ok := v.(int); ok {
			if id < 0 {
				return 0
			}
			return uint(id)
		}
	}
	return 0
}

func userRoleFromContext(c *fiber.Ctx) string {
	if v := c.Locals("user_role"); v != nil {
		if role, ok := v.(string); ok {
			return role
		}
	}
	return ""
}

// canAccessGroup keeps students inside the group their token is bound to.
// Teachers and tokens without a group claim are not restricted.
func canAccessGroup(c *fiber.Ctx, groupID int) bool {
	if userRoleFromContext(c) != middleware.AuthRoleStudent {
		return true
	}
	bound, ok := c.Locals("group_id").(int)
	return !ok || bound == groupID
}

func requestLogger(base zerolog.Logger, c *fiber.Ctx) *zerolog.Logger {
	logger := base
	if c != nil {
		if correlation := middleware.GetCorrelationID(c); correlation != "" {
			logger = base.With().Str("correlation_id", correlation).Logger()
		}
	}
	return &logger
}

func isValidationError(err error) bool {
	var validationErrors validator.ValidationErrors
	return errors.As(err, &validationErrors)
}

func validationDetails(err error) map[string]string {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return nil
	}
	details := make(map[string]string, len(validationErrors))
	for _, fieldErr := range validationErrors {
		details[strings.ToLower(fieldErr.Field())] = fieldErr.Tag()
	}
	return details
}

// handleError maps domain errors onto the response envelope.
func handleError(c *fiber.Ctx, logger zerolog.Logger, err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "resource not found")
	case isValidationError(err):
		return utils.Fail(c, fiber.StatusBadRequest, "validation failed", validationDetails(err))
	case errors.Is(err, service.ErrInvalidCode),
		errors.Is(err, models.ErrUnknownStatus):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, models.ErrInvalidTransition),
		errors.Is(err, service.ErrMessageProcessed),
		errors.Is(err, service.ErrGroupMismatch),
		errors.Is(err, service.ErrExamNotConfigured),
		errors.Is(err, repository.ErrConcurrentUpdate):
		return utils.SendError(c, fiber.StatusConflict, err.Error())
	case errors.Is(err, service.ErrSubmissionClosed),
		errors.Is(err, service.ErrReadOnly),
		errors.Is(err, service.ErrReviewDisabled),
		errors.Is(err, service.ErrNotReviewer):
		return utils.SendError(c, fiber.StatusForbidden, err.Error())
	case errors.Is(err, checker.ErrGateway):
		requestLogger(logger, c).Warn().Err(err).Msg("checker unavailable")
		return utils.SendError(c, fiber.StatusServiceUnavailable, "checker unavailable")
	default:
		requestLogger(logger, c).Error().Err(err).Msg("request failed")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}
