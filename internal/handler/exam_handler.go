package handler

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-grader/internal/dto"
	"github.com/noah-isme/gema-grader/internal/service"
	"github.com/noah-isme/gema-grader/internal/utils"
)

// ExamHandler exposes the teacher's exam controls.
type ExamHandler struct {
	service service.ExamService
	logger  zerolog.Logger
}

// NewExamHandler constructs the handler.
func NewExamHandler(service service.ExamService, logger zerolog.Logger) *ExamHandler {
	return &ExamHandler{
		service: service,
		logger:  logger.With().Str("component", "exam_handler").Logger(),
	}
}

// Register wires the endpoints under /teacher/groups.
func (h *ExamHandler) Register(router fiber.Router) {
	router.Get("/:group_id/exam", h.action("exam state", h.service.Get))
	router.Post("/:group_id/exam/begin", h.action("exam started", h.service.Begin))
	router.Post("/:group_id/exam/end", h.action("exam ended", h.service.End))
	router.Post("/:group_id/exam/continue", h.action("exam continued", h.service.Continue))
	router.Post("/:group_id/exam/toggle", h.action("exam toggled", h.service.Toggle))
}

func (h *ExamHandler) action(message string, run func(ctx context.Context, groupID int) (dto.ExamResponse, error)) fiber.Handler {
	return func(c *fiber.Ctx) error {
		groupID, err := parsePositiveParam(c, "group_id")
		if err != nil {
			return utils.SendError(c, fiber.StatusBadRequest, err.Error())
		}

		response, err := run(c.UserContext(), groupID)
		if err != nil {
			return handleError(c, h.logger, err)
		}

		requestLogger(h.logger, c).Info().Int("group_id", groupID).Str("state", response.State).Msg(message)
		return utils.SendSuccess(c, message, response)
	}
}
