package handler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-grader/internal/events"
)

const streamPingInterval = 30 * time.Second

// StatusSubscriber hands out per-group event channels.
type StatusSubscriber interface {
	Subscribe(groupID int) (<-chan events.StatusEvent, func())
}

// StatusStreamHandler pushes status events of a group over a websocket.
type StatusStreamHandler struct {
	hub    StatusSubscriber
	logger zerolog.Logger
}

// NewStatusStreamHandler constructs the handler.
func NewStatusStreamHandler(hub StatusSubscriber, logger zerolog.Logger) *StatusStreamHandler {
	return &StatusStreamHandler{
		hub:    hub,
		logger: logger.With().Str("component", "status_stream_handler").Logger(),
	}
}

// Register wires the websocket endpoint under /groups.
func (h *StatusStreamHandler) Register(router fiber.Router) {
	router.Get("/:group_id/statuses/ws", h.upgrade, websocket.New(h.handleConnection))
}

func (h *StatusStreamHandler) upgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	groupID, err := parsePositiveParam(c, "group_id")
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if !canAccessGroup(c, groupID) {
		return fiber.ErrForbidden
	}
	c.Locals("stream_group_id", groupID)
	return c.Next()
}

func (h *StatusStreamHandler) handleConnection(conn *websocket.Conn) {
	groupID, _ := conn.Locals("stream_group_id").(int)
	correlation, _ := conn.Locals("correlation_id").(string)
	logger := h.logger.With().Int("group_id", groupID).Str("correlation_id", correlation).Logger()

	updates, unsubscribe := h.hub.Subscribe(groupID)
	defer unsubscribe()

	logger.Info().Msg("status stream connected")
	defer logger.Info().Msg("status stream disconnected")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Reads surface the close frame; client payloads are ignored.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(streamPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-updates:
			if !ok {
				return
			}
			if err := conn.WriteJSON(event); err != nil {
				logger.Debug().Err(err).Msg("failed to push status event")
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		}
	}
}
