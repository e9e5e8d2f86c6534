package middleware

import (
	"strconv"
	"strings"

	"github.com/fluxbase-eu/assetbundle/internal/bundle"
	"github.com/gofiber/fiber/v2"
)

// DebugMode reads a per-request debug flag from the query parameter param
// and records it on the request's user context. The parameter name is
// matched case-insensitively; values that do not parse as a boolean are
// ignored so the environment default applies.
func DebugMode(param string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw, found := "", false
		c.Context().QueryArgs().VisitAll(func(key, value []byte) {
			if !found && strings.EqualFold(string(key), param) {
				raw, found = string(value), true
			}
		})

		if found {
			if debug, err := strconv.ParseBool(raw); err == nil {
				c.SetUserContext(bundle.WithDebugRequest(c.UserContext(), debug))
			}
		}
		return c.Next()
	}
}
