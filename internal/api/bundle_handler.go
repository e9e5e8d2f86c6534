package api

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/fluxbase-eu/assetbundle/internal/bundle"
	"github.com/fluxbase-eu/assetbundle/internal/manifest"
	"github.com/fluxbase-eu/assetbundle/internal/middleware"
	"github.com/fluxbase-eu/assetbundle/internal/observability"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
)

// BundleHandler serves built bundles and the named bundle registry.
type BundleHandler struct {
	env          *bundle.Environment
	metrics      *observability.Metrics
	manifestPath string

	mu       sync.Mutex
	manifest *manifest.Manifest
}

// NewBundleHandler creates a handler. m is the manifest already applied
// to env; it is re-applied whenever the cache is cleared.
func NewBundleHandler(env *bundle.Environment, m *manifest.Manifest, manifestPath string, metrics *observability.Metrics) *BundleHandler {
	if m == nil {
		m = &manifest.Manifest{}
	}
	return &BundleHandler{
		env:          env,
		metrics:      metrics,
		manifestPath: manifestPath,
		manifest:     m,
	}
}

// BundleInfo describes a named bundle
type BundleInfo struct {
	Name      string `json:"name"`
	Kind      string `json:"kind"`
	OutputKey string `json:"output_key"`
	// Mode is the forced mode, empty when the bundle follows the request
	Mode string `json:"mode,omitempty"`
}

// ServeAsset returns the bytes stored under a cache route. Several kinds
// may share a route; the first one holding the name wins.
func (h *BundleHandler) ServeAsset(kinds ...bundle.Kind) fiber.Handler {
	return func(c *fiber.Ctx) error {
		name := c.Params("*")
		if name == "" {
			return SendError(c, fiber.StatusNotFound, "Bundle not found")
		}

		for _, kind := range kinds {
			content, err := h.env.CachedAsset(c.UserContext(), kind, name)
			if err != nil {
				if errors.Is(err, bundle.ErrNotCached) {
					continue
				}
				return handleBundleError(c, err, "serve asset")
			}

			c.Locals(middleware.BundleHashLocal, h.env.Hasher().Sum([]byte(content)))
			c.Set(fiber.HeaderContentType, kind.ContentType)
			return c.SendString(content)
		}

		return handleBundleError(c, bundle.ErrNotCached, "serve asset")
	}
}

// ListBundles lists named bundles ordered by kind and name.
func (h *BundleHandler) ListBundles(c *fiber.Ctx) error {
	regs := h.env.Registrations()
	bundles := make([]BundleInfo, 0, len(regs))
	for _, r := range regs {
		info := BundleInfo{Name: r.Name, Kind: r.Kind.Name, OutputKey: r.OutputKey}
		if r.Forced != nil {
			info.Mode = r.Forced.String()
		}
		bundles = append(bundles, info)
	}

	sort.Slice(bundles, func(i, j int) bool {
		if bundles[i].Kind != bundles[j].Kind {
			return bundles[i].Kind < bundles[j].Kind
		}
		return bundles[i].Name < bundles[j].Name
	})

	return c.JSON(fiber.Map{
		"bundles": bundles,
		"count":   len(bundles),
	})
}

// GetTag renders the tag of a named bundle for this request. The debug
// query parameter and the server default decide the mode unless the
// bundle was registered with a forced one.
func (h *BundleHandler) GetTag(c *fiber.Ctx) error {
	kind, err := bundle.KindByName(c.Params("kind"))
	if err != nil {
		return SendErrorWithCode(c, fiber.StatusBadRequest, "Invalid bundle kind", "INVALID_KIND", err.Error())
	}
	name := c.Params("name")

	middleware.SetSpanAttributes(c,
		attribute.String("bundle.kind", kind.Name),
		attribute.String("bundle.name", name),
	)

	tag, err := h.env.RenderNamedWithSignal(c.UserContext(), kind, name)
	if err != nil {
		return handleBundleError(c, err, "render tag")
	}

	if c.Query("format") == "html" {
		c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
		return c.SendString(tag)
	}
	return c.JSON(fiber.Map{
		"name": name,
		"kind": kind.Name,
		"tag":  tag,
	})
}

// GetContent returns the built content of a named bundle.
func (h *BundleHandler) GetContent(c *fiber.Ctx) error {
	kind, err := bundle.KindByName(c.Params("kind"))
	if err != nil {
		return SendErrorWithCode(c, fiber.StatusBadRequest, "Invalid bundle kind", "INVALID_KIND", err.Error())
	}

	reg, ok := h.env.Registration(kind, c.Params("name"))
	if !ok {
		return handleBundleError(c, bundle.ErrUnknownBundleName, "get content")
	}

	content, err := h.env.GetCachedContent(c.UserContext(), kind, reg.OutputKey)
	if err != nil {
		return handleBundleError(c, err, "get content")
	}

	c.Set(fiber.HeaderContentType, kind.ContentType)
	return c.SendString(content)
}

// ClearCache wipes every built bundle and registers the current manifest
// again.
func (h *BundleHandler) ClearCache(c *fiber.Ctx) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	results, err := h.rebuild(c.UserContext(), h.manifest)
	if err != nil {
		return handleBundleError(c, err, "clear cache")
	}
	return c.JSON(fiber.Map{"bundles": results})
}

// Reload reads the manifest file again and rebuilds from it.
func (h *BundleHandler) Reload(c *fiber.Ctx) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	m, err := manifest.LoadIfExists(h.manifestPath)
	if err != nil {
		return SendErrorWithCode(c, fiber.StatusUnprocessableEntity, "Invalid manifest", "INVALID_MANIFEST", err.Error())
	}

	results, err := h.rebuild(c.UserContext(), m)
	if err != nil {
		return handleBundleError(c, err, "reload manifest")
	}
	h.manifest = m
	return c.JSON(fiber.Map{"bundles": results})
}

// Apply registers the current manifest, typically at startup.
func (h *BundleHandler) Apply(ctx context.Context) ([]manifest.Result, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.apply(ctx, h.manifest)
}

func (h *BundleHandler) rebuild(ctx context.Context, m *manifest.Manifest) ([]manifest.Result, error) {
	if err := h.env.Clear(ctx); err != nil {
		return nil, err
	}
	return h.apply(ctx, m)
}

func (h *BundleHandler) apply(ctx context.Context, m *manifest.Manifest) ([]manifest.Result, error) {
	results, err := m.Apply(ctx, h.env)
	if h.metrics != nil {
		h.metrics.SetNamedBundles(len(h.env.Registrations()))
	}
	if err != nil {
		return nil, err
	}
	log.Info().Int("bundles", len(results)).Msg("Bundle manifest applied")
	return results, nil
}
