package middleware

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// BundleHashLocal is the fiber local a handler sets to the content hash of
// the bundle it serves. When present it is used as the ETag directly.
const BundleHashLocal = "bundle_hash"

// ETagConfig defines the configuration for ETag middleware
type ETagConfig struct {
	// Weak determines if the ETag should be a weak validator (W/"...")
	Weak bool

	// SkipPaths are path prefixes that should not have ETags
	SkipPaths []string

	// EnableConditional enables checking If-None-Match header
	// and returning 304 Not Modified when ETag matches
	EnableConditional bool
}

// DefaultETagConfig returns the default configuration
func DefaultETagConfig() ETagConfig {
	return ETagConfig{
		Weak:              false,
		SkipPaths:         []string{"/health", "/metrics"},
		EnableConditional: true,
	}
}

// ETag creates a middleware that adds ETag headers to responses
// and handles conditional requests (If-None-Match)
func ETag() fiber.Handler {
	return ETagWithConfig(DefaultETagConfig())
}

// ETagWithConfig creates an ETag middleware with custom configuration
func ETagWithConfig(config ETagConfig) fiber.Handler {
	return func(c *fiber.Ctx) error {
		// Check if method should have ETag
		if c.Method() != fiber.MethodGet && c.Method() != fiber.MethodHead {
			return c.Next()
		}

		// Check if path should be skipped
		path := c.Path()
		for _, skipPath := range config.SkipPaths {
			if strings.HasPrefix(path, skipPath) {
				return c.Next()
			}
		}

		// Process the request first
		if err := c.Next(); err != nil {
			return err
		}

		// Only add ETag for successful responses
		status := c.Response().StatusCode()
		if status < 200 || status >= 300 {
			return nil
		}

		// Get response body
		body := c.Response().Body()
		if len(body) == 0 {
			return nil
		}

		// Prefer the bundle hash, otherwise generate ETag from body hash
		var etag string
		if hash, ok := c.Locals(BundleHashLocal).(string); ok && hash != "" {
			etag = formatETag(hash, config.Weak)
		} else {
			etag = generateETag(body, config.Weak)
		}
		c.Set(fiber.HeaderETag, etag)

		// Handle conditional request if enabled
		if config.EnableConditional {
			ifNoneMatch := c.Get(fiber.HeaderIfNoneMatch)
			if ifNoneMatch != "" && etagMatches(etag, ifNoneMatch) {
				// Return 304 Not Modified
				c.Status(fiber.StatusNotModified)
				c.Response().ResetBody()
				return nil
			}
		}

		return nil
	}
}

// generateETag creates an ETag from response body
func generateETag(body []byte, weak bool) string {
	hash := sha256.Sum256(body)
	// Use first 16 bytes of hash (32 hex chars)
	return formatETag(hex.EncodeToString(hash[:16]), weak)
}

func formatETag(value string, weak bool) string {
	if weak {
		return `W/"` + value + `"`
	}
	return `"` + value + `"`
}

// etagMatches checks if the current ETag matches any in the If-None-Match header
// Handles multiple ETags separated by commas and the * wildcard
func etagMatches(etag, ifNoneMatch string) bool {
	ifNoneMatch = strings.TrimSpace(ifNoneMatch)

	// Handle * wildcard
	if ifNoneMatch == "*" {
		return true
	}

	// Parse multiple ETags
	for _, candidate := range strings.Split(ifNoneMatch, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "" {
			continue
		}
		// Normalize for comparison (weak vs strong comparison)
		if normalizeETag(candidate) == normalizeETag(etag) {
			return true
		}
	}
	return false
}

// normalizeETag removes weak indicator for comparison
// RFC 7232: For weak comparison, ETags are equivalent if their opaque-tags match
func normalizeETag(etag string) string {
	return strings.TrimPrefix(strings.TrimSpace(etag), "W/")
}

// CacheControlConfig configures the Cache-Control header of served bundles
type CacheControlConfig struct {
	// MaxAge in seconds for public caching
	MaxAge int

	// Immutable marks responses that never change under the same URL,
	// which holds for hash-stamped bundle names
	Immutable bool

	// NoCache requires revalidation before using cached response
	NoCache bool
}

// Value renders the header value
func (cfg CacheControlConfig) Value() string {
	var directives []string
	if cfg.MaxAge > 0 {
		directives = append(directives, "public", "max-age="+strconv.Itoa(cfg.MaxAge))
	}
	if cfg.NoCache {
		directives = append(directives, "no-cache")
	}
	if cfg.Immutable {
		directives = append(directives, "immutable")
	}
	return strings.Join(directives, ", ")
}

// CacheControl creates a middleware that sets Cache-Control headers
func CacheControl(config CacheControlConfig) fiber.Handler {
	cacheControl := config.Value()

	return func(c *fiber.Ctx) error {
		// Only set for GET and HEAD requests
		if c.Method() != fiber.MethodGet && c.Method() != fiber.MethodHead {
			return c.Next()
		}

		// Process the request
		if err := c.Next(); err != nil {
			return err
		}

		// Only set for successful responses, keeping a handler's own header
		status := c.Response().StatusCode()
		if status >= 200 && status < 300 && cacheControl != "" && c.GetRespHeader(fiber.HeaderCacheControl) == "" {
			c.Set(fiber.HeaderCacheControl, cacheControl)
		}
		return nil
	}
}
