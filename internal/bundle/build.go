package bundle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fluxbase-eu/assetbundle/internal/cache"
	"github.com/fluxbase-eu/assetbundle/internal/css"
	"github.com/fluxbase-eu/assetbundle/internal/transform"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/fluxbase-eu/assetbundle/internal/bundle")

// recipe is the frozen builder state consumed by one render.
type recipe struct {
	env            *Environment
	kind           Kind
	sources        []Source
	attrs          Attributes
	transform      transform.Transform
	transformName  string
	onlyIfMissing  bool
	processImports bool
}

// renderRelease returns the cached tag for outputKey, building it first if
// needed. Concurrent callers for the same key share a single build.
func (r *recipe) renderRelease(ctx context.Context, outputKey string, sink Sink) (string, error) {
	key := r.kind.entryKey(outputKey)
	store := r.env.cache

	entry, err := store.Get(ctx, key)
	if err == nil {
		r.env.opts.Recorder.RecordCacheLookup(r.kind.Name, true)
		return entry.Tag, nil
	}
	if !errors.Is(err, cache.ErrNotFound) {
		return "", fmt.Errorf("cache lookup %s: %w", key, err)
	}
	r.env.opts.Recorder.RecordCacheLookup(r.kind.Name, false)

	if sink == nil {
		return "", errNoFileSink
	}

	// Builds started before a Clear never join or feed later callers
	gen := r.env.generation()
	flight := fmt.Sprintf("%d:%s", gen, key)

	v, err, shared := r.env.group.Do(flight, func() (any, error) {
		if entry, err := store.Get(ctx, key); err == nil {
			return entry, nil
		}

		entry, err := r.build(ctx, outputKey, sink)
		if err != nil {
			return nil, err
		}

		written, stored, err := r.env.putIfCurrent(ctx, gen, key, entry)
		if err != nil {
			return nil, fmt.Errorf("store %s: %w", key, err)
		}
		if !stored {
			log.Debug().Str("key", key).Msg("Bundle cache cleared during build, entry not stored")
			return entry, nil
		}
		if !written {
			// Another instance sharing the store finished first
			if winner, err := store.Get(ctx, key); err == nil {
				return winner, nil
			}
		}
		return entry, nil
	})
	if err != nil {
		return "", err
	}

	if shared {
		log.Debug().Str("key", key).Msg("Joined in-flight bundle build")
	}
	return v.(*cache.Entry).Tag, nil
}

func (r *recipe) build(ctx context.Context, outputKey string, sink Sink) (*cache.Entry, error) {
	buildID := uuid.NewString()
	start := time.Now()

	ctx, span := tracer.Start(ctx, "bundle.build", trace.WithAttributes(
		attribute.String("bundle.kind", r.kind.Name),
		attribute.String("bundle.key", outputKey),
		attribute.String("bundle.build_id", buildID),
		attribute.Int("bundle.sources", len(r.sources)),
	))
	defer span.End()

	log.Debug().
		Str("build_id", buildID).
		Str("kind", r.kind.Name).
		Str("key", outputKey).
		Int("sources", len(r.sources)).
		Msg("Building bundle")

	entry, err := r.assemble(ctx, outputKey, sink)
	duration := time.Since(start)

	size := 0
	if entry != nil {
		size = len(entry.Content)
	}
	r.env.opts.Recorder.RecordBuild(r.kind.Name, duration, size, err)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Error().
			Err(err).
			Str("build_id", buildID).
			Str("kind", r.kind.Name).
			Str("key", outputKey).
			Msg("Bundle build failed")
		return nil, err
	}

	entry.BuildID = buildID
	entry.CreatedAt = time.Now()
	span.SetAttributes(attribute.String("bundle.hash", entry.Hash), attribute.Int("bundle.bytes", size))

	log.Debug().
		Str("build_id", buildID).
		Str("kind", r.kind.Name).
		Str("key", outputKey).
		Str("hash", entry.Hash).
		Int("bytes", size).
		Dur("duration", duration).
		Msg("Bundle built")

	return entry, nil
}

// assemble produces content, hash, location and tag for outputKey. The
// returned hash always matches the content that ends up persisted.
func (r *recipe) assemble(ctx context.Context, outputKey string, sink Sink) (*cache.Entry, error) {
	hashInPath := strings.Contains(outputKey, HashToken)

	var (
		content string
		deps    []cache.Dependency
		reused  bool
	)

	// Without a hash token the target is known up front, so existing
	// output can be reused before doing any transform work
	if r.onlyIfMissing && !hashInPath {
		existing, ok, err := r.readExisting(ctx, sink, outputKey)
		if err != nil {
			return nil, err
		}
		if ok {
			// Reused output still needs readable sources to be swept correctly
			if deps, err = r.declaredDependencies(ctx); err == nil {
				content, reused = existing, true
			} else {
				log.Debug().Err(err).Str("key", outputKey).Msg("Sources unreadable, rebuilding existing bundle output")
			}
		}
	}

	if !reused {
		var err error
		content, deps, err = r.compose(ctx, outputKey)
		if err != nil {
			return nil, err
		}
	}

	hash := r.env.opts.Hasher.Sum([]byte(content))
	location := outputKey
	if hashInPath {
		location = strings.ReplaceAll(outputKey, HashToken, hash)
	}

	if !reused {
		persist := true
		if r.onlyIfMissing && hashInPath {
			existing, ok, err := r.readExisting(ctx, sink, location)
			if err != nil {
				return nil, err
			}
			switch {
			case !ok:
			case r.env.opts.Hasher.Sum([]byte(existing)) == hash:
				content, persist = existing, false
			default:
				log.Warn().Str("location", location).Msg("Existing bundle does not match its hashed name, rewriting")
			}
		}

		if persist {
			if err := sink.Persist(ctx, location, content); err != nil {
				return nil, r.fail(outputKey, StagePersist, location, err)
			}
		}
	}

	path := sink.URL(location)
	if !hashInPath {
		path = appendHash(path, hash)
	}

	entry := &cache.Entry{
		Tag:          r.remoteTags() + r.kind.Tag(r.attrs, path),
		Content:      content,
		Hash:         hash,
		Location:     location,
		Dependencies: deps,
	}
	if cs, ok := sink.(*CacheSink); ok {
		entry.Artifacts = []string{cs.Key(location)}
	}
	return entry, nil
}

func (r *recipe) readExisting(ctx context.Context, sink Sink, location string) (string, bool, error) {
	exists, err := sink.Exists(ctx, location)
	if err != nil {
		return "", false, fmt.Errorf("check %s: %w", location, err)
	}
	if !exists {
		return "", false, nil
	}
	content, err := sink.Read(ctx, location)
	if err != nil {
		return "", false, fmt.Errorf("read back %s: %w", location, err)
	}
	log.Debug().Str("location", location).Msg("Reusing existing bundle output")
	return content, true, nil
}

// compose reads, preprocesses and transforms every release source.
func (r *recipe) compose(ctx context.Context, outputKey string) (string, []cache.Dependency, error) {
	t, err := r.activeTransform()
	if err != nil {
		return "", nil, r.fail(outputKey, StageTransform, "", fmt.Errorf("%w: %w", ErrTransform, err))
	}

	var deps []cache.Dependency
	read := func(ref string, embedded bool) (string, error) {
		data, err := r.env.readPath(ctx, ref, embedded)
		if err != nil {
			return "", err
		}
		deps = append(deps, cache.Dependency{Path: ref, Fingerprint: r.env.opts.Hasher.Sum(data), Embedded: embedded})
		return string(data), nil
	}

	if r.kind.CachePrefix == Style.CachePrefix {
		content, err := r.composeStyles(outputKey, t, read)
		return content, deps, err
	}

	var combined strings.Builder
	for _, src := range r.releaseSources() {
		text, err := read(src.ref(), src.embedded())
		if err != nil {
			return "", nil, r.fail(outputKey, StageRead, src.ref(), err)
		}
		combined.WriteString(text)
	}

	out, err := t.Apply(combined.String())
	if err != nil {
		return "", nil, r.fail(outputKey, StageTransform, t.Name(), fmt.Errorf("%w: %w", ErrTransform, err))
	}
	return out, deps, nil
}

// composeStyles processes each stylesheet on its own: preprocess, inline
// imports, rewrite url() references for the output location, transform.
func (r *recipe) composeStyles(outputKey string, t transform.Transform, read func(string, bool) (string, error)) (string, error) {
	outputPath := StorageKey(outputKey)

	var combined strings.Builder
	for _, src := range r.releaseSources() {
		ref := src.ref()
		text, err := read(ref, src.embedded())
		if err != nil {
			return "", r.fail(outputKey, StageRead, ref, err)
		}

		sourcePath := StorageKey(src.Path)
		pp, err := r.env.opts.Preprocessors.Lookup(src.Path)
		if err != nil {
			return "", r.fail(outputKey, StagePreprocess, src.Path, fmt.Errorf("%w: %w", ErrTransform, err))
		}
		if pp != nil {
			if text, err = pp.Compile(sourcePath, text); err != nil {
				return "", r.fail(outputKey, StagePreprocess, src.Path, fmt.Errorf("%w: %w", ErrTransform, err))
			}
		}

		if r.processImports {
			text, _, err = css.InlineImports(sourcePath, text, func(p string) (string, error) {
				return read(p, false)
			})
			if err != nil {
				return "", r.fail(outputKey, StageImport, src.Path, err)
			}
		}

		text = css.Rewrite(outputPath, sourcePath, text)

		out, err := t.Apply(text)
		if err != nil {
			return "", r.fail(outputKey, StageTransform, src.Path, fmt.Errorf("%w: %w", ErrTransform, err))
		}
		combined.WriteString(out)
	}
	return combined.String(), nil
}

func (r *recipe) activeTransform() (transform.Transform, error) {
	if r.transform != nil {
		return r.transform, nil
	}
	registry := r.env.transforms(r.kind)
	if r.transformName != "" {
		return registry.Get(r.transformName)
	}
	return registry.Default(), nil
}

// releaseSources are the sources whose content goes into the bundle.
func (r *recipe) releaseSources() []Source {
	out := make([]Source, 0, len(r.sources))
	for _, s := range r.sources {
		if s.Kind != RemoteSource {
			out = append(out, s)
		}
	}
	return out
}

// declaredDependencies fingerprints the release sources of output reused
// from the sink. Sources are read but not transformed.
func (r *recipe) declaredDependencies(ctx context.Context) ([]cache.Dependency, error) {
	var deps []cache.Dependency
	for _, s := range r.releaseSources() {
		data, err := r.env.readPath(ctx, s.ref(), s.embedded())
		if err != nil {
			return nil, err
		}
		deps = append(deps, cache.Dependency{
			Path:        s.ref(),
			Fingerprint: r.env.opts.Hasher.Sum(data),
			Embedded:    s.embedded(),
		})
	}
	return deps, nil
}

func (r *recipe) remoteTags() string {
	var b strings.Builder
	for _, s := range r.sources {
		if s.Kind == RemoteSource {
			b.WriteString(r.kind.Tag(r.attrs, s.Remote))
		}
	}
	return b.String()
}

func (r *recipe) fail(outputKey, stage, path string, err error) error {
	return &BuildError{Kind: r.kind.Name, Key: outputKey, Stage: stage, Path: path, Err: err}
}

// ref is what the source stores are asked for in release mode.
func (s Source) ref() string {
	if s.Kind == EmbeddedSource {
		return s.Resource
	}
	return s.Path
}

func (s Source) embedded() bool {
	return s.Kind == EmbeddedSource
}
