package bundle

import (
	"context"
	"fmt"
	"strings"

	"github.com/fluxbase-eu/assetbundle/internal/transform"
	"github.com/rs/zerolog/log"
)

// debugSuffix is appended to preprocessed stylesheets written for debug mode.
const debugSuffix = ".debug.css"

// renderDebug references every source by its local path. Nothing is
// cached: each call reflects the current source list.
func (r *recipe) renderDebug(ctx context.Context) (string, error) {
	var b strings.Builder
	for _, s := range r.sources {
		p := s.Path
		if r.kind.CachePrefix == Style.CachePrefix {
			pp, err := r.env.opts.Preprocessors.Lookup(p)
			if err != nil {
				return "", &BuildError{Kind: r.kind.Name, Stage: StagePreprocess, Path: p, Err: fmt.Errorf("%w: %w", ErrTransform, err)}
			}
			if pp != nil {
				if p, err = r.writeDebugStyle(ctx, s.Path, pp); err != nil {
					return "", err
				}
			}
		}
		b.WriteString(r.kind.Tag(r.attrs, ExpandAppRelative(r.env.opts.AppPath, p)))
	}
	return b.String(), nil
}

// writeDebugStyle compiles a stylesheet dialect and writes the result next
// to the source so the browser can load it individually.
func (r *recipe) writeDebugStyle(ctx context.Context, path string, pp transform.Preprocessor) (string, error) {
	fail := func(stage string, err error) error {
		return &BuildError{Kind: r.kind.Name, Stage: stage, Path: path, Err: err}
	}

	if r.env.opts.Files == nil {
		return "", fail(StagePersist, errNoFileSink)
	}

	data, err := r.env.readPath(ctx, path, false)
	if err != nil {
		return "", fail(StageRead, err)
	}

	out, err := pp.Compile(StorageKey(path), string(data))
	if err != nil {
		return "", fail(StagePreprocess, fmt.Errorf("%w: %w", ErrTransform, err))
	}

	target := stripQuery(path) + debugSuffix
	if err := r.env.opts.Files.Persist(ctx, target, out); err != nil {
		return "", fail(StagePersist, err)
	}

	log.Debug().Str("source", path).Str("target", target).Msg("Wrote preprocessed debug stylesheet")
	return target, nil
}
