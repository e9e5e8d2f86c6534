package middleware

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultStructuredLoggerConfig(t *testing.T) {
	cfg := DefaultStructuredLoggerConfig()

	assert.ElementsMatch(t, []string{"/health", "/metrics"}, cfg.SkipPaths)
	assert.False(t, cfg.SkipSuccessfulRequests)
	assert.Nil(t, cfg.Logger)
	assert.Equal(t, 1*time.Second, cfg.SlowRequestThreshold)
}

func TestRedactQueryString(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		contains []string
		excludes []string
	}{
		{name: "empty", input: ""},
		{name: "debug flag kept", input: "debugMode=true", contains: []string{"debugMode=true"}},
		{
			name:     "token redacted",
			input:    "token=abc&debugMode=false",
			contains: []string{"token=%5Bredacted%5D", "debugMode=false"},
			excludes: []string{"abc"},
		},
		{
			name:     "case insensitive",
			input:    "API_KEY=secret1",
			contains: []string{"API_KEY=%5Bredacted%5D"},
			excludes: []string{"secret1"},
		},
		{name: "unparseable", input: "%zz", contains: []string{"[redacted]"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := redactQueryString(tt.input)
			if tt.input == "" {
				assert.Empty(t, out)
			}
			for _, s := range tt.contains {
				assert.Contains(t, out, s)
			}
			for _, s := range tt.excludes {
				assert.NotContains(t, out, s)
			}
		})
	}
}

func newLoggedApp(buf *bytes.Buffer, cfg StructuredLoggerConfig) *fiber.App {
	logger := zerolog.New(buf)
	cfg.Logger = &logger

	app := fiber.New()
	app.Use(DebugMode("debugMode"))
	app.Use(StructuredLogger(cfg))
	app.Get("/api/v1/bundles", func(c *fiber.Ctx) error {
		return c.SendString("[]")
	})
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})
	app.Get("/missing", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNotFound)
	})
	return app
}

func TestStructuredLogger(t *testing.T) {
	t.Run("logs request fields", func(t *testing.T) {
		var buf bytes.Buffer
		app := newLoggedApp(&buf, DefaultStructuredLoggerConfig())

		_, err := app.Test(httptest.NewRequest("GET", "/api/v1/bundles?debugMode=true", nil))
		require.NoError(t, err)

		var entry map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "info", entry["level"])
		assert.Equal(t, "GET", entry["method"])
		assert.Equal(t, "/api/v1/bundles", entry["path"])
		assert.Equal(t, float64(200), entry["status"])
		assert.Equal(t, true, entry["debug_mode"])
		assert.Equal(t, "HTTP request", entry["message"])
	})

	t.Run("skips configured paths", func(t *testing.T) {
		var buf bytes.Buffer
		app := newLoggedApp(&buf, DefaultStructuredLoggerConfig())

		_, err := app.Test(httptest.NewRequest("GET", "/health", nil))
		require.NoError(t, err)
		assert.Empty(t, buf.String())
	})

	t.Run("client errors are warnings", func(t *testing.T) {
		var buf bytes.Buffer
		app := newLoggedApp(&buf, DefaultStructuredLoggerConfig())

		_, err := app.Test(httptest.NewRequest("GET", "/missing", nil))
		require.NoError(t, err)
		assert.True(t, strings.Contains(buf.String(), `"level":"warn"`))
	})

	t.Run("skip successful requests", func(t *testing.T) {
		var buf bytes.Buffer
		cfg := DefaultStructuredLoggerConfig()
		cfg.SkipSuccessfulRequests = true
		app := newLoggedApp(&buf, cfg)

		_, err := app.Test(httptest.NewRequest("GET", "/api/v1/bundles", nil))
		require.NoError(t, err)
		assert.Empty(t, buf.String())
	})
}
