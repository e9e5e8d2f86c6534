package api

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/fluxbase-eu/assetbundle/internal/bundle"
	"github.com/fluxbase-eu/assetbundle/internal/config"
	"github.com/fluxbase-eu/assetbundle/internal/manifest"
	"github.com/fluxbase-eu/assetbundle/internal/middleware"
	"github.com/fluxbase-eu/assetbundle/internal/observability"
	"github.com/fluxbase-eu/assetbundle/internal/storage"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/rs/zerolog/log"
)

// assetMaxAge is how long browsers keep a served bundle, in seconds. Every
// rebuild changes the URL, so the response never needs revalidation.
const assetMaxAge = 365 * 24 * 60 * 60

// Services are the components a Server exposes. Only Env is required.
type Services struct {
	// Env should use bundle.ContextSignal so the debug query parameter
	// reaches named bundle rendering.
	Env      *bundle.Environment
	Manifest *manifest.Manifest
	Storage  storage.Provider
	Metrics  *observability.Metrics
	Tracer   *observability.Tracer
}

// Server represents the HTTP server
type Server struct {
	app       *fiber.App
	config    *config.Config
	env       *bundle.Environment
	metrics   *observability.Metrics
	tracer    *observability.Tracer
	startTime time.Time

	bundleHandler     *BundleHandler
	monitoringHandler *MonitoringHandler
}

// NewServer creates a new HTTP server
func NewServer(cfg *config.Config, svc Services) *Server {
	app := fiber.New(fiber.Config{
		ServerHeader:          "assetbundle",
		AppName:               "assetbundle " + observability.Version,
		BodyLimit:             cfg.Server.BodyLimit,
		ReadTimeout:           cfg.Server.ReadTimeout,
		WriteTimeout:          cfg.Server.WriteTimeout,
		IdleTimeout:           cfg.Server.IdleTimeout,
		DisableStartupMessage: !cfg.Debug,
		ErrorHandler:          customErrorHandler,
	})

	server := &Server{
		app:       app,
		config:    cfg,
		env:       svc.Env,
		metrics:   svc.Metrics,
		tracer:    svc.Tracer,
		startTime: time.Now(),

		bundleHandler:     NewBundleHandler(svc.Env, svc.Manifest, cfg.Bundle.Manifest, svc.Metrics),
		monitoringHandler: NewMonitoringHandler(svc.Env, svc.Storage),
	}

	server.setupMiddlewares()
	server.setupRoutes(svc.Manifest)

	return server
}

// setupMiddlewares sets up global middlewares
func (s *Server) setupMiddlewares() {
	// Request ID middleware - must be first for tracing
	s.app.Use(requestid.New())

	if s.config.Tracing.Enabled && s.tracer != nil && s.tracer.IsEnabled() {
		log.Debug().Msg("Adding OpenTelemetry tracing middleware")
		s.app.Use(middleware.TracingMiddleware(middleware.DefaultTracingConfig()))
	}

	s.app.Use(middleware.StructuredLogger(middleware.StructuredLoggerConfig{
		SkipPaths:              []string{"/health", s.config.Metrics.Path},
		SkipSuccessfulRequests: !s.config.Debug,
		SlowRequestThreshold:   time.Second,
	}))

	s.app.Use(recover.New(recover.Config{
		EnableStackTrace: s.config.Debug,
	}))

	if s.config.Metrics.Enabled && s.metrics != nil {
		s.app.Use(s.metrics.MetricsMiddleware())
	}

	s.app.Use(middleware.DebugMode(s.config.Bundle.DebugParam))

	s.app.Use(compress.New(compress.Config{
		Level: compress.LevelDefault,
	}))
}

// setupRoutes sets up all routes
func (s *Server) setupRoutes(m *manifest.Manifest) {
	s.app.Get("/health", s.monitoringHandler.GetHealth)

	if s.config.Metrics.Enabled && s.metrics != nil {
		s.app.Get(s.config.Metrics.Path, func(c *fiber.Ctx) error {
			s.metrics.UpdateUptime(s.startTime)
			return c.Next()
		}, s.metrics.Handler())
	}

	for _, route := range s.assetRoutes(m) {
		log.Debug().Str("route", route.path).Int("kinds", len(route.kinds)).Msg("Serving bundles")
		s.app.Get(route.path+"*",
			middleware.AssetSecurityHeaders(),
			middleware.ETag(),
			middleware.CacheControl(middleware.CacheControlConfig{MaxAge: assetMaxAge, Immutable: true}),
			s.bundleHandler.ServeAsset(route.kinds...),
		)
	}

	v1 := s.app.Group("/api/v1", middleware.SecurityHeaders())
	v1.Get("/bundles", s.bundleHandler.ListBundles)
	v1.Get("/bundles/:kind/:name/tag", s.bundleHandler.GetTag)
	v1.Get("/bundles/:kind/:name/content", s.bundleHandler.GetContent)
	s.monitoringHandler.RegisterRoutes(v1)

	s.setupAdminRoutes(v1.Group("/admin"))

	s.app.Use(func(c *fiber.Ctx) error {
		return SendError(c, fiber.StatusNotFound, "Not found")
	})
}

// setupAdminRoutes sets up the cache administration routes
func (s *Server) setupAdminRoutes(router fiber.Router) {
	if !s.config.Server.RemoteAdmin {
		router.Use(middleware.RequireInternal())
	}
	router.Use(middleware.AdminLimiter(s.config.Server.AdminRateLimit))

	router.Post("/cache/clear", s.bundleHandler.ClearCache)
	router.Post("/bundles/reload", s.bundleHandler.Reload)
}

type assetRoute struct {
	path  string
	kinds []bundle.Kind
}

// assetRoutes lists the URL prefixes cached bundles are served under: the
// default route of each kind plus any route a manifest bundle overrides.
// Longer prefixes come first so they are matched before shorter ones.
func (s *Server) assetRoutes(m *manifest.Manifest) []assetRoute {
	byPath := make(map[string][]bundle.Kind)
	add := func(route string, kind bundle.Kind) {
		p := "/" + strings.TrimLeft(bundle.ExpandAppRelative(s.config.Bundle.AppPath, route), "/")
		if !strings.HasSuffix(p, "/") {
			p += "/"
		}
		for _, k := range byPath[p] {
			if k == kind {
				return
			}
		}
		byPath[p] = append(byPath[p], kind)
	}

	add(s.env.Route(bundle.Script), bundle.Script)
	add(s.env.Route(bundle.Style), bundle.Style)
	if m != nil {
		for _, b := range m.Bundles {
			if b.CacheRoute == "" || b.Target == manifest.TargetFile {
				continue
			}
			if kind, err := bundle.KindByName(b.Kind); err == nil {
				add(b.CacheRoute, kind)
			}
		}
	}

	routes := make([]assetRoute, 0, len(byPath))
	for p, kinds := range byPath {
		routes = append(routes, assetRoute{path: p, kinds: kinds})
	}
	sort.Slice(routes, func(i, j int) bool {
		if len(routes[i].path) != len(routes[j].path) {
			return len(routes[i].path) > len(routes[j].path)
		}
		return routes[i].path < routes[j].path
	})
	return routes
}

// ApplyManifest registers the manifest bundles with the environment.
func (s *Server) ApplyManifest(ctx context.Context) ([]manifest.Result, error) {
	return s.bundleHandler.Apply(ctx)
}

// Start starts the HTTP server
func (s *Server) Start() error {
	return s.app.Listen(s.config.Server.Address)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	// Flush remaining spans
	if s.tracer != nil {
		if err := s.tracer.Shutdown(ctx); err != nil {
			log.Warn().Err(err).Msg("Failed to shutdown OpenTelemetry tracer")
		}
	}

	log.Info().Msg("Shutting down HTTP server")
	return s.app.ShutdownWithContext(ctx)
}

// App returns the underlying Fiber app instance for testing
func (s *Server) App() *fiber.App {
	return s.app
}

// customErrorHandler handles errors globally
func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	if code >= 500 {
		log.Error().Err(err).Str("path", c.Path()).Msg("Server error")
	}

	return c.Status(code).JSON(fiber.Map{
		"error": message,
		"code":  code,
	})
}
