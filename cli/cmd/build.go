package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fluxbase-eu/assetbundle/cli/output"
	"github.com/fluxbase-eu/assetbundle/cli/util"
	"github.com/fluxbase-eu/assetbundle/internal/bundle"
	"github.com/fluxbase-eu/assetbundle/internal/cache"
	"github.com/fluxbase-eu/assetbundle/internal/config"
	"github.com/fluxbase-eu/assetbundle/internal/manifest"
	"github.com/fluxbase-eu/assetbundle/internal/storage"
)

var (
	buildManifest string
	buildClear    bool
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build every bundle in the manifest",
	Long: `Build every bundle declared in the manifest against the configured storage
and cache, then print the release tag of each one.

File bundles are written to the output bucket. Cache bundles go to the
configured cache backend; with a shared backend (redis or postgres) this
primes the cache for every server instance.

Examples:
  bundlectl build
  bundlectl build --manifest deploy/bundles.yaml --clear
  bundlectl build -o json`,
	Args: cobra.NoArgs,
	RunE: runBuild,
}

func init() {
	buildCmd.Flags().StringVarP(&buildManifest, "manifest", "m", "", "manifest file (default is bundle.manifest from the configuration)")
	buildCmd.Flags().BoolVar(&buildClear, "clear", false, "clear the bundle cache before building")
}

func runBuild(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if buildManifest != "" {
		cfg.Bundle.Manifest = buildManifest
	}

	ctx := cmd.Context()
	env, closeEnv, err := openEnvironment(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeEnv()

	if buildClear {
		if err := env.Clear(ctx); err != nil {
			return fmt.Errorf("failed to clear bundle cache: %w", err)
		}
	}

	results, err := buildBundles(ctx, env, cfg.Bundle.Manifest)
	if err != nil {
		return err
	}
	return printResults(ctx, env, results)
}

// openEnvironment wires a bundle environment to the configured storage
// and cache. The returned func releases the cache connection.
func openEnvironment(ctx context.Context, cfg *config.Config) (*bundle.Environment, func(), error) {
	provider, err := storage.NewProvider(&cfg.Storage)
	if err != nil {
		return nil, nil, err
	}
	if err := storage.EnsureBuckets(ctx, provider, cfg.Bundle.SourceBucket, cfg.Bundle.OutputBucket); err != nil {
		return nil, nil, fmt.Errorf("failed to ensure buckets: %w", err)
	}

	store, err := cache.NewStore(ctx, &cfg.Cache)
	if err != nil {
		return nil, nil, err
	}

	env, err := bundle.NewEnvironmentFromConfig(cfg, provider, store, nil)
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}
	return env, func() { _ = store.Close() }, nil
}

// buildBundles loads the manifest at path and registers every bundle in it.
func buildBundles(ctx context.Context, env *bundle.Environment, path string) ([]manifest.Result, error) {
	m, err := manifest.Load(path)
	if err != nil {
		return nil, err
	}
	if len(m.Bundles) == 0 {
		formatter.PrintWarning(path + " declares no bundles")
	}
	return m.Apply(ctx, env)
}

func printResults(ctx context.Context, env *bundle.Environment, results []manifest.Result) error {
	if formatter.Format != output.FormatTable {
		return formatter.Print(results)
	}

	data := output.TableData{
		Headers: []string{"NAME", "KIND", "OUTPUT", "SIZE", "TAG"},
	}
	for _, r := range results {
		size := "-"
		if kind, err := bundle.KindByName(r.Kind); err == nil {
			if content, err := env.GetCachedContent(ctx, kind, r.Output); err == nil {
				size = util.FormatBytes(int64(len(content)))
			}
		}
		data.Rows = append(data.Rows, []string{r.Name, r.Kind, r.Output, size, r.Tag})
	}
	return formatter.PrintTable(data)
}
