// Package bundle combines script and stylesheet sources into cached,
// hash-stamped bundles and renders the tags that reference them.
package bundle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fluxbase-eu/assetbundle/internal/cache"
	"github.com/fluxbase-eu/assetbundle/internal/transform"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// Recorder receives build and cache events, typically for metrics.
type Recorder interface {
	RecordBuild(kind string, duration time.Duration, bytes int, err error)
	RecordCacheLookup(kind string, hit bool)
	RecordRender(kind, mode string)
}

type nopRecorder struct{}

func (nopRecorder) RecordBuild(string, time.Duration, int, error) {}
func (nopRecorder) RecordCacheLookup(string, bool)                {}
func (nopRecorder) RecordRender(string, string)                   {}

// Options configures an Environment. Zero values select defaults.
type Options struct {
	// Cache holds built bundles. Defaults to an in-memory store.
	Cache cache.Store
	// Sources resolves local paths.
	Sources SourceStore
	// Embedded resolves embedded resource ids.
	Embedded SourceStore
	// Files is the durable sink used by RenderFile, AsNamedFile and for
	// preprocessed debug output.
	Files Sink
	// Hasher defaults to MD5.
	Hasher Hasher
	// Signal reports the ambient debug state. Defaults to never debug.
	Signal DebugSignal
	// AppPath is what "~/" expands to in rendered paths.
	AppPath string
	// ScriptRoute and StyleRoute are the default cache routes.
	ScriptRoute string
	StyleRoute  string
	// ScriptTransforms and StyleTransforms default to the built-in registries.
	ScriptTransforms *transform.Registry
	StyleTransforms  *transform.Registry
	Preprocessors    *transform.Preprocessors
	Recorder         Recorder
}

type namedKey struct {
	kind string
	name string
}

// Registration records a bundle registered with AsNamed.
type Registration struct {
	Name      string
	Kind      Kind
	OutputKey string
	// Forced is nil when the bundle was registered without a forced mode.
	Forced *Mode
	// Debug is the debug tag primed at registration.
	Debug string

	recipe *recipe
	sink   Sink
}

// Environment owns the state shared by every builder: the content cache,
// the named bundle registry and the per-key build guard. Create one per
// process (or per test) and obtain builders from it.
type Environment struct {
	opts  Options
	cache cache.Store
	group singleflight.Group

	// mu guards named and orders Clear against cache writes of builds
	mu    sync.RWMutex
	named map[namedKey]*Registration
	gen   atomic.Uint64
}

// NewEnvironment creates an environment, filling defaults.
func NewEnvironment(opts Options) *Environment {
	if opts.Cache == nil {
		opts.Cache = cache.NewMemoryStore()
	}
	if opts.Hasher == nil {
		opts.Hasher = MD5()
	}
	if opts.Signal == nil {
		opts.Signal = StaticSignal(false)
	}
	if opts.ScriptRoute == "" {
		opts.ScriptRoute = "/bundle/script/"
	}
	if opts.StyleRoute == "" {
		opts.StyleRoute = "/bundle/style/"
	}
	if opts.ScriptTransforms == nil {
		opts.ScriptTransforms = transform.Scripts()
	}
	if opts.StyleTransforms == nil {
		opts.StyleTransforms = transform.Styles()
	}
	if opts.Recorder == nil {
		opts.Recorder = nopRecorder{}
	}

	return &Environment{
		opts:  opts,
		cache: opts.Cache,
		named: make(map[namedKey]*Registration),
	}
}

// Script returns a new JavaScript bundle builder.
func (e *Environment) Script() *Builder {
	return newBuilder(e, Script)
}

// Style returns a new stylesheet bundle builder.
func (e *Environment) Style() *Builder {
	return newBuilder(e, Style)
}

// Builder returns a new builder for kind.
func (e *Environment) Builder(kind Kind) *Builder {
	return newBuilder(e, kind)
}

// Cache returns the content cache.
func (e *Environment) Cache() cache.Store {
	return e.cache
}

// Hasher returns the hasher used for new builds.
func (e *Environment) Hasher() Hasher {
	return e.opts.Hasher
}

// Route returns the default cache route of kind.
func (e *Environment) Route(kind Kind) string {
	if kind.CachePrefix == Style.CachePrefix {
		return e.opts.StyleRoute
	}
	return e.opts.ScriptRoute
}

// CacheSink returns a sink writing kind bundles into the content cache,
// served under route.
func (e *Environment) CacheSink(kind Kind, route string) *CacheSink {
	if route == "" {
		route = e.Route(kind)
	}
	return NewCacheSink(e.cache, kind, route, e.opts.AppPath)
}

// FileSink returns the configured durable sink, or nil.
func (e *Environment) FileSink() Sink {
	return e.opts.Files
}

func (e *Environment) transforms(kind Kind) *transform.Registry {
	if kind.CachePrefix == Style.CachePrefix {
		return e.opts.StyleTransforms
	}
	return e.opts.ScriptTransforms
}

// CachedAsset returns the bytes served for name under kind's cache route.
func (e *Environment) CachedAsset(ctx context.Context, kind Kind, name string) (string, error) {
	entry, err := e.cache.Get(ctx, ContentKey(kind, name))
	if errors.Is(err, cache.ErrNotFound) {
		return "", ErrNotCached
	}
	if err != nil {
		return "", err
	}
	return entry.Content, nil
}

// GetCachedContent returns the built content for outputKey. Both the key
// used to render and the hash-substituted cache sink location are accepted.
func (e *Environment) GetCachedContent(ctx context.Context, kind Kind, outputKey string) (string, error) {
	entry, err := e.cache.Get(ctx, kind.entryKey(outputKey))
	if err == nil {
		return entry.Content, nil
	}
	if !errors.Is(err, cache.ErrNotFound) {
		return "", err
	}
	content, err := e.CachedAsset(ctx, kind, outputKey)
	if errors.Is(err, ErrNotCached) {
		return "", ErrNotCached
	}
	return content, err
}

// Registrations lists named bundles.
func (e *Environment) Registrations() []Registration {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]Registration, 0, len(e.named))
	for _, r := range e.named {
		out = append(out, *r)
	}
	return out
}

// Registration looks up a named bundle of kind.
func (e *Environment) Registration(kind Kind, name string) (Registration, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	r, ok := e.named[namedKey{kind: kind.CachePrefix, name: name}]
	if !ok {
		return Registration{}, false
	}
	return *r, true
}

func (e *Environment) register(r *Registration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.named[namedKey{kind: r.Kind.CachePrefix, name: r.Name}] = r
}

// Clear wipes the content cache and the named registry. Builds in flight
// when Clear runs still return their tag but do not store their entry.
func (e *Environment) Clear(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.gen.Add(1)
	e.named = make(map[namedKey]*Registration)
	if err := e.cache.Clear(ctx); err != nil {
		return err
	}
	log.Info().Msg("Bundle cache cleared")
	return nil
}

func (e *Environment) generation() uint64 {
	return e.gen.Load()
}

// putIfCurrent stores entry unless Clear ran since gen was read. stored is
// false when the entry was dropped for that reason.
func (e *Environment) putIfCurrent(ctx context.Context, gen uint64, key string, entry *cache.Entry) (written, stored bool, err error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.gen.Load() != gen {
		return false, false, nil
	}
	written, err = e.cache.Put(ctx, key, entry)
	return written, true, err
}

// Stale reports whether any dependency of entry changed since it was
// built. It is meant for cache.Sweeper.
func (e *Environment) Stale(ctx context.Context, entry *cache.Entry) bool {
	for _, dep := range entry.Dependencies {
		data, err := e.readPath(ctx, dep.Path, dep.Embedded)
		if err != nil {
			log.Debug().Err(err).Str("path", dep.Path).Msg("Bundle dependency unreadable")
			return true
		}
		if e.opts.Hasher.Sum(data) != dep.Fingerprint {
			return true
		}
	}
	return false
}

// readPath reads a local path, or an embedded resource id when embedded
// is set.
func (e *Environment) readPath(ctx context.Context, ref string, embedded bool) ([]byte, error) {
	store, name := e.opts.Sources, "local"
	if embedded {
		store, name = e.opts.Embedded, "embedded"
	}
	if store == nil {
		return nil, fmt.Errorf("%w: %s: no %s source store", ErrSourceNotFound, ref, name)
	}
	data, err := store.ReadAll(ctx, ref)
	if err != nil && !errors.Is(err, ErrSourceNotFound) {
		return nil, fmt.Errorf("%w: %w", ErrSourceNotFound, err)
	}
	return data, err
}
