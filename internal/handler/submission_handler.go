package handler

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-grader/internal/dto"
	"github.com/noah-isme/gema-grader/internal/middleware"
	"github.com/noah-isme/gema-grader/internal/service"
	"github.com/noah-isme/gema-grader/internal/utils"
)

// SubmissionHandler exposes the student side of the grader: submitting solutions and reading statuses.
type SubmissionHandler struct {
	service   service.SubmissionService
	validator *validator.Validate
	logger    zerolog.Logger
	rateLimit int
}

// NewSubmissionHandler constructs the handler. rateLimit caps submissions per user per minute.
func NewSubmissionHandler(service service.SubmissionService, validator *validator.Validate, rateLimit int, logger zerolog.Logger) *SubmissionHandler {
	return &SubmissionHandler{
		service:   service,
		validator: validator,
		logger:    logger.With().Str("component", "submission_handler").Logger(),
		rateLimit: rateLimit,
	}
}

// Register wires the endpoints under /groups.
func (h *SubmissionHandler) Register(router fiber.Router) {
	slot := "/:group_id/variants/:variant_id/tasks/:task_id"
	router.Post(slot+"/submissions",
		middleware.RateLimit("submissions", h.rateLimit, time.Minute),
		middleware.WithAuth(h.submit, middleware.AuthOptions{Role: middleware.AuthRoleAny, RequireUser: true}),
	)
	router.Get(slot+"/status", h.status)
	router.Get("/:group_id/statuses", h.board)
}

func (h *SubmissionHandler) submit(c *fiber.Ctx) error {
	key, err := submissionKeyFromParams(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	if !canAccessGroup(c, key.GroupID) {
		return utils.SendError(c, fiber.StatusForbidden, "insufficient permissions")
	}

	var payload dto.SubmissionRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}
	if err := h.validator.Struct(payload); err != nil {
		return handleError(c, h.logger, err)
	}

	response, err := h.service.Submit(c.UserContext(), key, payload.Code, c.IP())
	if err != nil {
		return handleError(c, h.logger, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusAccepted, "submission queued", response)
}

func (h *SubmissionHandler) status(c *fiber.Ctx) error {
	key, err := submissionKeyFromParams(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	if !canAccessGroup(c, key.GroupID) {
		return utils.SendError(c, fiber.StatusForbidden, "insufficient permissions")
	}

	var query dto.StatusQuery
	if err := c.QueryParser(&query); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid query")
	}
	if err := h.validator.Struct(query); err != nil {
		return handleError(c, h.logger, err)
	}
	ranking, err := parseRanking(query.Ranking)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	response, err := h.service.Status(c.UserContext(), key, ranking)
	if err != nil {
		return handleError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "status retrieved", response)
}

func (h *SubmissionHandler) board(c *fiber.Ctx) error {
	groupID, err := parsePositiveParam(c, "group_id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	if !canAccessGroup(c, groupID) {
		return utils.SendError(c, fiber.StatusForbidden, "insufficient permissions")
	}

	board, err := h.service.GroupBoard(c.UserContext(), groupID)
	if err != nil {
		return handleError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "statuses retrieved", board)
}
