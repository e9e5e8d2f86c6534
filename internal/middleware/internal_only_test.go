package middleware

import (
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsLoopback(t *testing.T) {
	tests := []struct {
		name     string
		ip       string
		expected bool
	}{
		{"IPv4 localhost", "127.0.0.1", true},
		{"IPv4 loopback range", "127.0.0.2", true},
		{"IPv4 loopback range end", "127.255.255.255", true},
		{"IPv6 localhost", "::1", true},
		{"IPv4 external", "192.168.1.1", false},
		{"IPv4 public", "8.8.8.8", false},
		{"IPv4 unspecified", "0.0.0.0", false},
		{"IPv6 external", "2001:db8::1", false},
		{"nil IP", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ip net.IP
			if tt.ip != "" {
				ip = net.ParseIP(tt.ip)
			}
			assert.Equal(t, tt.expected, isLoopback(ip), "IP: %s", tt.ip)
		})
	}
}

func newInternalApp() *fiber.App {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Use(RequireInternal())
	app.Post("/api/v1/admin/cache/clear", func(c *fiber.Ctx) error {
		return c.SendString("OK")
	})
	return app
}

func TestRequireInternal_AllowsLoopback(t *testing.T) {
	app := newInternalApp()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = app.Listener(ln) }()
	t.Cleanup(func() { _ = app.Shutdown() })

	resp, err := http.Post("http://"+ln.Addr().String()+"/api/v1/admin/cache/clear", "", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestRequireInternal_IgnoresProxyHeaders(t *testing.T) {
	app := newInternalApp()

	// app.Test connects from an unspecified, non-loopback address
	req := httptest.NewRequest("POST", "/api/v1/admin/cache/clear", nil)
	req.Header.Set("X-Forwarded-For", "127.0.0.1")
	req.Header.Set("X-Real-IP", "127.0.0.1")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
}
