package bundle

import (
	"context"
	"errors"
	"fmt"

	"github.com/fluxbase-eu/assetbundle/internal/cache"
)

var errNoFileSink = errors.New("no durable sink configured")

// RenderNamed returns the tag of the kind bundle registered as name. The
// forced mode captured at registration wins; otherwise resolver decides.
func (e *Environment) RenderNamed(ctx context.Context, kind Kind, name string, resolver ModeResolver) (string, error) {
	reg, ok := e.Registration(kind, name)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownBundleName, name)
	}

	mode := resolver.Resolve(ctx)
	if reg.Forced != nil {
		mode = *reg.Forced
	}
	e.opts.Recorder.RecordRender(kind.Name, mode.String())

	if mode == Debug {
		return reg.Debug, nil
	}

	entry, err := e.cache.Get(ctx, kind.entryKey(reg.OutputKey))
	if err == nil {
		return entry.Tag, nil
	}
	if !errors.Is(err, cache.ErrNotFound) {
		return "", err
	}
	// Evicted since registration; rebuild from the registered recipe
	if reg.recipe == nil {
		return "", fmt.Errorf("%w: %s (%s)", ErrNotCached, name, reg.OutputKey)
	}
	return reg.recipe.renderRelease(ctx, reg.OutputKey, reg.sink)
}

// RenderNamedWithSignal renders name with the environment's ambient signal.
func (e *Environment) RenderNamedWithSignal(ctx context.Context, kind Kind, name string) (string, error) {
	return e.RenderNamed(ctx, kind, name, NewModeResolver(e.opts.Signal))
}
