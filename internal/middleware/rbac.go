package middleware

import (
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gema-grader/internal/utils"
)

// RequireRole ensures that the authenticated user possesses one of the allowed roles.
// Admins pass every teacher check.
func RequireRole(roles ...string) fiber.Handler {
	allowed := make([]string, 0, len(roles))
	for _, role := range roles {
		if normalized := strings.ToLower(strings.TrimSpace(role)); normalized != "" {
			allowed = append(allowed, normalized)
		}
	}

	return func(c *fiber.Ctx) error {
		current := normalizeRoleValue(c.Locals("user_role"))
		for _, role := range allowed {
			if roleSatisfies(current, role) {
				return c.Next()
			}
		}
		return utils.SendError(c, fiber.StatusForbidden, "insufficient permissions")
	}
}

func roleSatisfies(current, required string) bool {
	if current == "" {
		return false
	}
	if required == AuthRoleTeacher {
		return current == AuthRoleTeacher || current == "admin"
	}
	return current == required
}

func normalizeRoleValue(value interface{}) string {
	switch v := value.(type) {
	case string:
		return strings.ToLower(strings.TrimSpace(v))
	case fmt.Stringer:
		return strings.ToLower(strings.TrimSpace(v.String()))
	default:
		if value == nil {
			return ""
		}
		return strings.ToLower(strings.TrimSpace(fmt.Sprintf("%v", value)))
	}
}
