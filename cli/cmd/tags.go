package cmd

import (
	"context"
	"sort"

	"github.com/spf13/cobra"

	"github.com/fluxbase-eu/assetbundle/cli/output"
	"github.com/fluxbase-eu/assetbundle/internal/bundle"
)

var (
	tagsManifest string
	tagsDebug    bool
)

// TagInfo is the tag a named bundle renders in one mode
type TagInfo struct {
	Name string `json:"name" yaml:"name"`
	Kind string `json:"kind" yaml:"kind"`
	Mode string `json:"mode" yaml:"mode"`
	Tag  string `json:"tag" yaml:"tag"`
}

var tagsCmd = &cobra.Command{
	Use:   "tags [name...]",
	Short: "Print the tags of named bundles",
	Long: `Build the manifest and print the tag each named bundle renders. Release
tags are printed unless --debug is given. Bundles registered with a forced
mode always render in that mode.

Examples:
  bundlectl tags
  bundlectl tags site --debug`,
	RunE: runTags,
}

func init() {
	tagsCmd.Flags().StringVarP(&tagsManifest, "manifest", "m", "", "manifest file (default is bundle.manifest from the configuration)")
	tagsCmd.Flags().BoolVar(&tagsDebug, "debug", false, "render the tags a debug request would get")
}

func runTags(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if tagsManifest != "" {
		cfg.Bundle.Manifest = tagsManifest
	}

	ctx := cmd.Context()
	env, closeEnv, err := openEnvironment(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeEnv()

	if _, err := buildBundles(ctx, env, cfg.Bundle.Manifest); err != nil {
		return err
	}

	tags, err := renderTags(ctx, env, args, tagsDebug)
	if err != nil {
		return err
	}
	return printTags(tags)
}

// renderTags renders the named bundles in names, or all of them when names
// is empty. debug is the ambient request; forced modes still win.
func renderTags(ctx context.Context, env *bundle.Environment, names []string, debug bool) ([]TagInfo, error) {
	wanted := make(map[string]bool, len(names))
	for _, n := range names {
		wanted[n] = true
	}

	regs := env.Registrations()
	sort.Slice(regs, func(i, j int) bool {
		if regs[i].Kind.Name != regs[j].Kind.Name {
			return regs[i].Kind.Name < regs[j].Kind.Name
		}
		return regs[i].Name < regs[j].Name
	})

	found := make(map[string]bool, len(names))
	resolver := bundle.NewModeResolver(bundle.StaticSignal(debug))
	tags := make([]TagInfo, 0, len(regs))
	for _, r := range regs {
		if len(wanted) > 0 && !wanted[r.Name] {
			continue
		}
		tag, err := env.RenderNamed(ctx, r.Kind, r.Name, resolver)
		if err != nil {
			return nil, err
		}
		mode := resolver.Resolve(ctx)
		if r.Forced != nil {
			mode = *r.Forced
		}
		tags = append(tags, TagInfo{Name: r.Name, Kind: r.Kind.Name, Mode: mode.String(), Tag: tag})
		found[r.Name] = true
	}

	for _, n := range names {
		if !found[n] {
			formatter.PrintWarning("no bundle named " + n)
		}
	}
	return tags, nil
}

func printTags(tags []TagInfo) error {
	if formatter.Format != output.FormatTable {
		return formatter.Print(tags)
	}

	data := output.TableData{Headers: []string{"NAME", "KIND", "MODE", "TAG"}}
	for _, t := range tags {
		data.Rows = append(data.Rows, []string{t.Name, t.Kind, t.Mode, t.Tag})
	}
	return formatter.PrintTable(data)
}
