package handler

import (
	"context"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-grader/internal/dto"
	"github.com/noah-isme/gema-grader/internal/models"
	"github.com/noah-isme/gema-grader/internal/service"
	"github.com/noah-isme/gema-grader/internal/utils"
)

// ReviewHandler exposes the teacher queue and verification endpoints.
type ReviewHandler struct {
	service   service.ReviewService
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewReviewHandler constructs the handler.
func NewReviewHandler(service service.ReviewService, validator *validator.Validate, logger zerolog.Logger) *ReviewHandler {
	return &ReviewHandler{
		service:   service,
		validator: validator,
		logger:    logger.With().Str("component", "review_handler").Logger(),
	}
}

// Register wires the endpoints under /teacher/groups.
func (h *ReviewHandler) Register(router fiber.Router) {
	router.Get("/", h.overview)
	router.Get("/:group_id/pending", h.pending)
	router.Get("/:group_id/queue", h.next)
	router.Get("/:group_id/queue/:message_id/checks", h.checks)
	router.Post("/:group_id/queue/:message_id/accept", h.accept)
	router.Post("/:group_id/queue/:message_id/reject", h.reject)

	slot := "/:group_id/variants/:variant_id/tasks/:task_id"
	router.Post(slot+"/verify", h.verify)
	router.Post(slot+"/unverify", h.unverify)
	router.Put(slot+"/achievements", h.achievements)
}

func (h *ReviewHandler) overview(c *fiber.Ctx) error {
	boards, err := h.service.Overview(c.UserContext())
	if err != nil {
		return handleError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "group boards", boards)
}

func (h *ReviewHandler) pending(c *fiber.Ctx) error {
	groupID, err := parsePositiveParam(c, "group_id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	items, err := h.service.Pending(c.UserContext(), groupID)
	if err != nil {
		return handleError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "pending submissions", items)
}

func (h *ReviewHandler) checks(c *fiber.Ctx) error {
	groupID, messageID, err := queueParams(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	checks, err := h.service.Checks(c.UserContext(), messageID, groupID)
	if err != nil {
		return handleError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "verdict history", checks)
}

func (h *ReviewHandler) achievements(c *fiber.Ctx) error {
	key, err := submissionKeyFromParams(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.AchievementsRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}
	if err := h.validator.Struct(payload); err != nil {
		return handleError(c, h.logger, err)
	}

	status, err := h.service.SetAchievements(c.UserContext(), key, payload.Indices, userIDFromContext(c))
	if err != nil {
		return handleError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "achievements updated", dto.NewBoardEntry(status))
}

func (h *ReviewHandler) next(c *fiber.Ctx) error {
	groupID, err := parsePositiveParam(c, "group_id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	item, err := h.service.NextPending(c.UserContext(), groupID)
	if err != nil {
		return handleError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "next pending submission", item)
}

func (h *ReviewHandler) accept(c *fiber.Ctx) error {
	groupID, messageID, err := queueParams(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	status, err := h.service.Accept(c.UserContext(), messageID, groupID, userIDFromContext(c))
	if err != nil {
		return handleError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "submission accepted", dto.NewBoardEntry(status))
}

func (h *ReviewHandler) reject(c *fiber.Ctx) error {
	groupID, messageID, err := queueParams(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.RejectRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&payload); err != nil {
			return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
		}
	}
	if err := h.validator.Struct(payload); err != nil {
		return handleError(c, h.logger, err)
	}

	status, err := h.service.Reject(c.UserContext(), messageID, groupID, userIDFromContext(c), payload.Comment)
	if err != nil {
		return handleError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "submission rejected", dto.NewBoardEntry(status))
}

func (h *ReviewHandler) verify(c *fiber.Ctx) error {
	return h.transition(c, "status verified", h.service.Verify)
}

func (h *ReviewHandler) unverify(c *fiber.Ctx) error {
	return h.transition(c, "status unverified", h.service.Unverify)
}

type reviewTransition func(ctx context.Context, key models.SubmissionKey, reviewerID uint) (models.TaskStatus, error)

func (h *ReviewHandler) transition(c *fiber.Ctx, message string, apply reviewTransition) error {
	key, err := submissionKeyFromParams(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	status, err := apply(c.UserContext(), key, userIDFromContext(c))
	if err != nil {
		return handleError(c, h.logger, err)
	}

	return utils.SendSuccess(c, message, dto.NewBoardEntry(status))
}

func queueParams(c *fiber.Ctx) (int, uint, error) {
	groupID, err := parsePositiveParam(c, "group_id")
	if err != nil {
		return 0, 0, err
	}
	messageID, err := parseUintParam(c, "message_id")
	if err != nil {
		return 0, 0, err
	}
	return groupID, messageID, nil
}
