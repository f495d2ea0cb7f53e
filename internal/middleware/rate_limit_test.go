package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
)

func TestRateLimitIsPerUser(t *testing.T) {
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("user_id", c.Get("X-User"))
		return c.Next()
	})
	app.Post("/", RateLimit("test", 2, time.Minute), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusAccepted)
	})

	send := func(user string) int {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.Header.Set("X-User", user)
		resp, err := app.Test(req)
		require.NoError(t, err)
		return resp.StatusCode
	}

	require.Equal(t, fiber.StatusAccepted, send("1"))
	require.Equal(t, fiber.StatusAccepted, send("1"))
	require.Equal(t, fiber.StatusTooManyRequests, send("1"))
	require.Equal(t, fiber.StatusAccepted, send("2"))
}
