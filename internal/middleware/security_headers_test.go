package middleware

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultSecurityHeadersConfig(t *testing.T) {
	cfg := DefaultSecurityHeadersConfig()

	assert.Contains(t, cfg.ContentSecurityPolicy, "default-src 'none'")
	assert.Equal(t, "DENY", cfg.XFrameOptions)
	assert.Equal(t, "nosniff", cfg.XContentTypeOptions)
	assert.Contains(t, cfg.StrictTransportSecurity, "max-age=31536000")
	assert.Equal(t, "same-origin", cfg.CrossOriginResourcePolicy)
}

func TestSecurityHeaders(t *testing.T) {
	t.Run("applies default headers", func(t *testing.T) {
		app := fiber.New()
		app.Use(SecurityHeaders())
		app.Get("/api/v1/bundles", func(c *fiber.Ctx) error {
			return c.JSON(fiber.Map{"bundles": []string{}})
		})

		resp, err := app.Test(httptest.NewRequest("GET", "/api/v1/bundles", nil))
		require.NoError(t, err)

		assert.Equal(t, 200, resp.StatusCode)
		assert.Contains(t, resp.Header.Get("Content-Security-Policy"), "default-src 'none'")
		assert.Equal(t, "DENY", resp.Header.Get("X-Frame-Options"))
		assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
		assert.Equal(t, "strict-origin-when-cross-origin", resp.Header.Get("Referrer-Policy"))
		assert.Equal(t, "same-origin", resp.Header.Get("Cross-Origin-Resource-Policy"))
		// Plain HTTP never gets HSTS
		assert.Empty(t, resp.Header.Get("Strict-Transport-Security"))
	})

	t.Run("asset headers allow cross origin loading", func(t *testing.T) {
		app := fiber.New()
		app.Use(AssetSecurityHeaders())
		app.Get("/bundle/script/site.js", func(c *fiber.Ctx) error {
			return c.SendString("var a;")
		})

		resp, err := app.Test(httptest.NewRequest("GET", "/bundle/script/site.js", nil))
		require.NoError(t, err)

		assert.Empty(t, resp.Header.Get("Content-Security-Policy"))
		assert.Empty(t, resp.Header.Get("X-Frame-Options"))
		assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
		assert.Equal(t, "cross-origin", resp.Header.Get("Cross-Origin-Resource-Policy"))
	})

	t.Run("skips empty headers", func(t *testing.T) {
		app := fiber.New()
		app.Use(SecurityHeaders(SecurityHeadersConfig{XContentTypeOptions: "nosniff"}))
		app.Get("/test", func(c *fiber.Ctx) error {
			return c.SendString("OK")
		})

		resp, err := app.Test(httptest.NewRequest("GET", "/test", nil))
		require.NoError(t, err)

		assert.Empty(t, resp.Header.Get("Content-Security-Policy"))
		assert.Empty(t, resp.Header.Get("X-Frame-Options"))
		assert.Empty(t, resp.Header.Get("Cross-Origin-Resource-Policy"))
		assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
	})
}
