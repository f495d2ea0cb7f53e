package handler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gema-grader/internal/config"
	"github.com/noah-isme/gema-grader/internal/utils"
)

// HealthResponse represents the payload returned by the health endpoint.
type HealthResponse struct {
	Status      string    `json:"status"`
	Timestamp   time.Time `json:"timestamp"`
	Service     string    `json:"service"`
	Environment string    `json:"environment"`
	ReadOnly    bool      `json:"read_only"`
	Worker      string    `json:"worker"`
	Database    string    `json:"database"`
}

// Pinger reports whether a backing store is reachable.
type Pinger func(ctx context.Context) error

// HealthCheck returns a handler that reports application health information.
// A failing pinger turns the response into 503.
func HealthCheck(cfg config.Config, ping Pinger) fiber.Handler {
	worker := "running"
	if cfg.WorkerDisabled {
		worker = "disabled"
	}

	return func(c *fiber.Ctx) error {
		payload := HealthResponse{
			Status:      "ok",
			Timestamp:   time.Now().UTC(),
			Service:     cfg.AppName,
			Environment: cfg.AppEnv,
			ReadOnly:    cfg.ReadOnly,
			Worker:      worker,
			Database:    "ok",
		}

		if ping != nil {
			ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
			defer cancel()
			if err := ping(ctx); err != nil {
				payload.Status = "degraded"
				payload.Database = "unreachable"
				return utils.SendSuccessWithStatus(c, fiber.StatusServiceUnavailable, "service degraded", payload)
			}
		}

		return utils.SendSuccess(c, "service healthy", payload)
	}
}
