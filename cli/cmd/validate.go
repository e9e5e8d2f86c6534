package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fluxbase-eu/assetbundle/cli/output"
	"github.com/fluxbase-eu/assetbundle/cli/util"
	"github.com/fluxbase-eu/assetbundle/internal/manifest"
)

var validateCmd = &cobra.Command{
	Use:   "validate [manifest]",
	Short: "Check a bundle manifest for errors",
	Long: `Parse a bundle manifest and report every problem found in it. Without an
argument the manifest named by the configuration (bundle.manifest) is used.

Sources are not read; use build to check that every source exists.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	path, err := manifestPath(args)
	if err != nil {
		return err
	}

	m, err := manifest.Load(path)
	if err != nil {
		return err
	}

	if err := printManifest(m); err != nil {
		return err
	}
	formatter.PrintSuccess(fmt.Sprintf("%s is valid: %d bundle(s)", path, len(m.Bundles)))
	return nil
}

// manifestPath returns the manifest named on the command line, falling
// back to the configured one.
func manifestPath(args []string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	cfg, err := loadConfig()
	if err != nil {
		return "", err
	}
	return cfg.Bundle.Manifest, nil
}

func printManifest(m *manifest.Manifest) error {
	data := output.TableData{
		Headers: []string{"NAME", "KIND", "OUTPUT", "TARGET", "MODE", "SOURCES"},
	}
	for _, b := range m.Bundles {
		target := b.Target
		if target == "" {
			target = manifest.TargetCache
		}
		mode := b.Mode
		if mode == "" {
			mode = "auto"
		}
		paths := make([]string, len(b.Sources))
		for i, s := range b.Sources {
			paths[i] = s.Path
		}
		sources := strings.Join(paths, ",")
		if formatter.Format == output.FormatTable {
			sources = util.TruncateString(sources, 60)
		}
		data.Rows = append(data.Rows, []string{b.Name, b.Kind, b.Output, target, mode, sources})
	}
	return formatter.PrintTable(data)
}
