package api

import (
	"context"
	"runtime"
	"time"

	"github.com/fluxbase-eu/assetbundle/internal/bundle"
	"github.com/fluxbase-eu/assetbundle/internal/storage"
	"github.com/gofiber/fiber/v2"
)

// MonitoringHandler handles system monitoring and health check endpoints
type MonitoringHandler struct {
	env             *bundle.Environment
	storageProvider storage.Provider
	startTime       time.Time
}

// NewMonitoringHandler creates a new monitoring handler. storageProvider
// may be nil.
func NewMonitoringHandler(env *bundle.Environment, storageProvider storage.Provider) *MonitoringHandler {
	return &MonitoringHandler{
		env:             env,
		storageProvider: storageProvider,
		startTime:       time.Now(),
	}
}

// RegisterRoutes registers monitoring routes
func (h *MonitoringHandler) RegisterRoutes(router fiber.Router) {
	monitoring := router.Group("/monitoring")
	monitoring.Get("/metrics", h.GetMetrics)
	monitoring.Get("/health", h.GetHealth)
}

// SystemMetrics represents system-wide metrics
type SystemMetrics struct {
	Uptime       int64  `json:"uptime_seconds"`
	GoVersion    string `json:"go_version"`
	NumGoroutine int    `json:"num_goroutines"`

	MemoryAllocMB      uint64  `json:"memory_alloc_mb"`
	MemoryTotalAllocMB uint64  `json:"memory_total_alloc_mb"`
	MemorySysMB        uint64  `json:"memory_sys_mb"`
	NumGC              uint32  `json:"num_gc"`
	GCPauseMS          float64 `json:"gc_pause_ms"`

	BundleStats BundleStats `json:"bundles"`
}

// BundleStats summarizes the bundle cache
type BundleStats struct {
	NamedBundles int    `json:"named_bundles"`
	CacheEntries int    `json:"cache_entries"`
	HashAlgo     string `json:"hash_algorithm"`
}

// HealthStatus represents the health status of a component
type HealthStatus struct {
	Status  string `json:"status"` // "healthy", "degraded", "unhealthy"
	Message string `json:"message,omitempty"`
	Latency int64  `json:"latency_ms"`
}

// SystemHealth represents the health of all system components
type SystemHealth struct {
	Status   string                  `json:"status"` // "healthy", "degraded", "unhealthy"
	Services map[string]HealthStatus `json:"services"`
}

// GetMetrics returns system metrics
func (h *MonitoringHandler) GetMetrics(c *fiber.Ctx) error {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	stats := BundleStats{
		NamedBundles: len(h.env.Registrations()),
		CacheEntries: -1,
		HashAlgo:     h.env.Hasher().Name(),
	}
	if keys, err := h.env.Cache().Keys(c.UserContext()); err == nil {
		stats.CacheEntries = len(keys)
	}

	return c.JSON(SystemMetrics{
		Uptime:       int64(time.Since(h.startTime).Seconds()),
		GoVersion:    runtime.Version(),
		NumGoroutine: runtime.NumGoroutine(),

		MemoryAllocMB:      m.Alloc / 1024 / 1024,
		MemoryTotalAllocMB: m.TotalAlloc / 1024 / 1024,
		MemorySysMB:        m.Sys / 1024 / 1024,
		NumGC:              m.NumGC,
		GCPauseMS:          float64(m.PauseNs[(m.NumGC+255)%256]) / 1000000,

		BundleStats: stats,
	})
}

// GetHealth returns the health status of all system components. A failing
// cache makes the service unhealthy; failing storage only degrades it,
// since cached bundles are still served.
func (h *MonitoringHandler) GetHealth(c *fiber.Ctx) error {
	health := SystemHealth{
		Status:   "healthy",
		Services: make(map[string]HealthStatus),
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	cacheStart := time.Now()
	_, err := h.env.Cache().Contains(ctx, "health")
	cacheLatency := time.Since(cacheStart).Milliseconds()
	if err != nil {
		health.Services["cache"] = HealthStatus{Status: "unhealthy", Message: err.Error(), Latency: cacheLatency}
		health.Status = "unhealthy"
	} else {
		health.Services["cache"] = HealthStatus{Status: "healthy", Latency: cacheLatency}
	}

	if h.storageProvider != nil {
		storageStart := time.Now()
		err := h.storageProvider.Health(ctx)
		storageLatency := time.Since(storageStart).Milliseconds()

		if err != nil {
			health.Services["storage"] = HealthStatus{Status: "degraded", Message: err.Error(), Latency: storageLatency}
			if health.Status == "healthy" {
				health.Status = "degraded"
			}
		} else {
			health.Services["storage"] = HealthStatus{Status: "healthy", Latency: storageLatency}
		}
	}

	if health.Status == "unhealthy" {
		c.Status(fiber.StatusServiceUnavailable)
	}

	return c.JSON(health)
}
