package bundle

import (
	"context"

	"github.com/fluxbase-eu/assetbundle/internal/transform"
)

// Bundle is the rendering surface shared by script and style builders.
type Bundle interface {
	Render(ctx context.Context, outputKey string, sink Sink) (string, error)
	AsNamed(ctx context.Context, name, outputKey string, sink Sink) error
	RenderNamed(ctx context.Context, name string) (string, error)
	GetCachedContent(ctx context.Context, outputKey string) (string, error)
	ClearTestingCache(ctx context.Context) error
}

var _ Bundle = (*Builder)(nil)

// Builder collects the sources and options of one bundle. A builder is
// owned by a single caller and is not safe for concurrent mutation; the
// Environment it came from is.
type Builder struct {
	env            *Environment
	kind           Kind
	sources        []Source
	attrs          Attributes
	transform      transform.Transform
	transformName  string
	onlyIfMissing  bool
	processImports bool
	cacheRoute     string
	mode           ModeResolver
}

func newBuilder(env *Environment, kind Kind) *Builder {
	return &Builder{
		env:  env,
		kind: kind,
		mode: NewModeResolver(env.opts.Signal),
	}
}

// Kind returns the builder's bundle kind.
func (b *Builder) Kind() Kind { return b.kind }

// Sources returns a copy of the source list.
func (b *Builder) Sources() []Source {
	return append([]Source(nil), b.sources...)
}

// AddLocal appends a local source. Existence is checked at build time.
func (b *Builder) AddLocal(path string) *Builder {
	b.sources = append(b.sources, Source{Kind: LocalSource, Path: path})
	return b
}

// AddRemote appends a source served from remoteURL in release mode and
// from localPath in debug mode.
func (b *Builder) AddRemote(localPath, remoteURL string) *Builder {
	b.sources = append(b.sources, Source{Kind: RemoteSource, Path: localPath, Remote: remoteURL})
	return b
}

// AddEmbedded appends a source read from an embedded resource in release
// mode and referenced by localPath in debug mode.
func (b *Builder) AddEmbedded(localPath, resourceID string) *Builder {
	b.sources = append(b.sources, Source{Kind: EmbeddedSource, Path: localPath, Resource: resourceID})
	return b
}

// WithAttribute sets an attribute rendered into every tag.
func (b *Builder) WithAttribute(name, value string) *Builder {
	b.attrs.Set(name, value)
	return b
}

// WithMedia sets the media attribute of a stylesheet tag.
func (b *Builder) WithMedia(media string) *Builder {
	return b.WithAttribute("media", media)
}

// WithTransform selects an explicit transform instance.
func (b *Builder) WithTransform(t transform.Transform) *Builder {
	b.transform = t
	b.transformName = ""
	return b
}

// WithTransformName selects a registered transform by name. Unknown names
// fail the next release build.
func (b *Builder) WithTransformName(name string) *Builder {
	b.transform = nil
	b.transformName = name
	return b
}

// RenderOnlyIfOutputFileMissing reuses output already present in the sink
// instead of rebuilding it.
func (b *Builder) RenderOnlyIfOutputFileMissing() *Builder {
	b.onlyIfMissing = true
	return b
}

// ProcessImports inlines relative @import statements of stylesheets.
func (b *Builder) ProcessImports() *Builder {
	b.processImports = true
	return b
}

// WithCacheRoute overrides the route used by RenderCache and AsNamedCache.
func (b *Builder) WithCacheRoute(route string) *Builder {
	b.cacheRoute = route
	return b
}

// ForceDebug renders this builder in debug mode regardless of the ambient signal.
func (b *Builder) ForceDebug() *Builder {
	b.mode.Force(Debug)
	return b
}

// ForceRelease renders this builder in release mode regardless of the ambient signal.
func (b *Builder) ForceRelease() *Builder {
	b.mode.Force(Release)
	return b
}

// Mode returns the mode a render would use for ctx.
func (b *Builder) Mode(ctx context.Context) Mode {
	return b.mode.Resolve(ctx)
}

// Render renders the tag for outputKey. In debug mode each source is
// referenced directly; in release mode the bundle is built once per key
// and persisted through sink.
func (b *Builder) Render(ctx context.Context, outputKey string, sink Sink) (string, error) {
	mode := b.mode.Resolve(ctx)
	b.env.opts.Recorder.RecordRender(b.kind.Name, mode.String())

	r := b.snapshot()
	if mode == Debug {
		return r.renderDebug(ctx)
	}
	return r.renderRelease(ctx, outputKey, sink)
}

// RenderFile renders into the environment's durable sink.
func (b *Builder) RenderFile(ctx context.Context, outputKey string) (string, error) {
	sink, err := b.fileSink()
	if err != nil {
		return "", err
	}
	return b.Render(ctx, outputKey, sink)
}

// RenderCache renders into the content cache, served under the cache route.
func (b *Builder) RenderCache(ctx context.Context, outputKey string) (string, error) {
	return b.Render(ctx, outputKey, b.env.CacheSink(b.kind, b.cacheRoute))
}

// AsNamed registers this bundle as name and primes both its debug and
// release renders, so RenderNamed can serve either without rebuilding.
func (b *Builder) AsNamed(ctx context.Context, name, outputKey string, sink Sink) error {
	r := b.snapshot()

	debugTag, err := r.renderDebug(ctx)
	if err != nil {
		return err
	}
	if _, err := r.renderRelease(ctx, outputKey, sink); err != nil {
		return err
	}

	reg := &Registration{
		Name:      name,
		Kind:      b.kind,
		OutputKey: outputKey,
		Debug:     debugTag,
		recipe:    r,
		sink:      sink,
	}
	if m, ok := b.mode.Forced(); ok {
		reg.Forced = &m
	}
	b.env.register(reg)
	return nil
}

// AsNamedFile registers name rendered into the durable sink.
func (b *Builder) AsNamedFile(ctx context.Context, name, outputKey string) error {
	sink, err := b.fileSink()
	if err != nil {
		return err
	}
	return b.AsNamed(ctx, name, outputKey, sink)
}

// AsNamedCache registers name rendered into the content cache.
func (b *Builder) AsNamedCache(ctx context.Context, name, outputKey string) error {
	return b.AsNamed(ctx, name, outputKey, b.env.CacheSink(b.kind, b.cacheRoute))
}

// RenderNamed returns the tag of a bundle registered with AsNamed. A mode
// forced at registration wins over this builder's mode resolver.
func (b *Builder) RenderNamed(ctx context.Context, name string) (string, error) {
	return b.env.RenderNamed(ctx, b.kind, name, b.mode)
}

// GetCachedContent returns the built content for outputKey.
func (b *Builder) GetCachedContent(ctx context.Context, outputKey string) (string, error) {
	return b.env.GetCachedContent(ctx, b.kind, outputKey)
}

// ClearTestingCache wipes the shared cache and named registry.
func (b *Builder) ClearTestingCache(ctx context.Context) error {
	return b.env.Clear(ctx)
}

func (b *Builder) fileSink() (Sink, error) {
	if b.env.opts.Files == nil {
		return nil, errNoFileSink
	}
	return b.env.opts.Files, nil
}

// snapshot freezes the builder state consumed by one render.
func (b *Builder) snapshot() *recipe {
	return &recipe{
		env:            b.env,
		kind:           b.kind,
		sources:        append([]Source(nil), b.sources...),
		attrs:          b.attrs.clone(),
		transform:      b.transform,
		transformName:  b.transformName,
		onlyIfMissing:  b.onlyIfMissing,
		processImports: b.processImports,
	}
}
