package bundle

import (
	"fmt"

	"github.com/fluxbase-eu/assetbundle/internal/cache"
	"github.com/fluxbase-eu/assetbundle/internal/config"
	"github.com/fluxbase-eu/assetbundle/internal/storage"
	"github.com/fluxbase-eu/assetbundle/internal/transform"
)

// NewEnvironmentFromConfig wires an environment over provider and store
// the way cfg describes. rec may be nil.
func NewEnvironmentFromConfig(cfg *config.Config, provider storage.Provider, store cache.Store, rec Recorder) (*Environment, error) {
	hasher, err := NewHasher(cfg.Bundle.HashAlgorithm)
	if err != nil {
		return nil, err
	}

	scripts := transform.Scripts()
	if err := scripts.SetDefault(cfg.Bundle.ScriptTransform); err != nil {
		return nil, fmt.Errorf("script_transform: %w", err)
	}
	styles := transform.Styles()
	if err := styles.SetDefault(cfg.Bundle.StyleTransform); err != nil {
		return nil, fmt.Errorf("style_transform: %w", err)
	}

	return NewEnvironment(Options{
		Cache:            store,
		Sources:          NewProviderSourceStore(provider, cfg.Bundle.SourceBucket),
		Files:            NewFileSink(provider, cfg.Bundle.OutputBucket, cfg.Bundle.AppPath).WithGzip(cfg.Bundle.Gzip),
		Hasher:           hasher,
		Signal:           ContextSignal{Default: cfg.Debug},
		AppPath:          cfg.Bundle.AppPath,
		ScriptRoute:      cfg.Bundle.ScriptRoute,
		StyleRoute:       cfg.Bundle.StyleRoute,
		ScriptTransforms: scripts,
		StyleTransforms:  styles,
		Preprocessors:    transform.NewPreprocessors(transform.NewLess()),
		Recorder:         rec,
	}), nil
}
