package middleware

import (
	"net"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

// RequireInternal restricts access to requests from the local host. The
// cache administration endpoints sit behind it unless remote admin is
// enabled.
//
// Only the connection address is checked; X-Forwarded-For and X-Real-IP
// are ignored.
func RequireInternal() fiber.Handler {
	return func(c *fiber.Ctx) error {
		clientIP := getDirectIP(c)

		if !isLoopback(clientIP) {
			log.Warn().
				Str("ip", clientIP.String()).
				Str("path", c.Path()).
				Msg("Admin endpoint access denied - not from localhost")

			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "Access denied - internal endpoint",
			})
		}

		return c.Next()
	}
}

// getDirectIP returns the connection IP, ignoring proxy headers.
func getDirectIP(c *fiber.Ctx) net.IP {
	ipStr := c.Context().RemoteIP().String()

	// IPv6 zone suffix, e.g. "::1%lo0"
	if idx := strings.Index(ipStr, "%"); idx != -1 {
		ipStr = ipStr[:idx]
	}

	ip := net.ParseIP(ipStr)
	if ip == nil {
		ip = net.ParseIP(c.IP())
	}
	return ip
}

func isLoopback(ip net.IP) bool {
	if ip == nil {
		return false
	}
	if ip.IsLoopback() {
		return true
	}
	if ip4 := ip.To4(); ip4 != nil {
		return ip4[0] == 127
	}
	return false
}
