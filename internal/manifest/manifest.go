// Package manifest loads the YAML list of named bundles registered when the
// server starts.
//
// Example:
//
//	bundles:
//	  - name: site
//	    kind: script
//	    output: site_#.js
//	    target: cache
//	    attributes:
//	      - {name: defer, value: defer}
//	    sources:
//	      - path: ~/js/jquery.js
//	        remote: https://code.jquery.com/jquery-3.7.1.min.js
//	      - path: ~/js/app.js
package manifest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fluxbase-eu/assetbundle/internal/bundle"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Targets
const (
	TargetCache = "cache"
	TargetFile  = "file"
)

// Manifest is the root document.
type Manifest struct {
	Bundles []Bundle `yaml:"bundles" json:"bundles"`
}

// Bundle declares one named bundle.
type Bundle struct {
	Name   string `yaml:"name" json:"name"`
	Kind   string `yaml:"kind" json:"kind"`
	Output string `yaml:"output" json:"output"`
	// Target is "cache" (default) or "file".
	Target string `yaml:"target,omitempty" json:"target,omitempty"`
	// Transform names a registered transform; empty uses the default.
	Transform string `yaml:"transform,omitempty" json:"transform,omitempty"`
	// Mode forces "debug" or "release"; empty follows the request.
	Mode                string      `yaml:"mode,omitempty" json:"mode,omitempty"`
	Attributes          []Attribute `yaml:"attributes,omitempty" json:"attributes,omitempty"`
	Media               string      `yaml:"media,omitempty" json:"media,omitempty"`
	ProcessImports      bool        `yaml:"process_imports,omitempty" json:"process_imports,omitempty"`
	RenderOnlyIfMissing bool        `yaml:"render_only_if_missing,omitempty" json:"render_only_if_missing,omitempty"`
	CacheRoute          string      `yaml:"cache_route,omitempty" json:"cache_route,omitempty"`
	Sources             []Source    `yaml:"sources" json:"sources"`
}

// Attribute is a tag attribute. A list keeps declaration order.
type Attribute struct {
	Name  string `yaml:"name" json:"name"`
	Value string `yaml:"value" json:"value"`
}

// Source is a bundle entry. Path is always the local path; Remote or
// Embedded select the release-mode origin.
type Source struct {
	Path     string `yaml:"path" json:"path"`
	Remote   string `yaml:"remote,omitempty" json:"remote,omitempty"`
	Embedded string `yaml:"embedded,omitempty" json:"embedded,omitempty"`
}

// Result is the outcome of registering one bundle.
type Result struct {
	Name   string `json:"name" yaml:"name"`
	Kind   string `json:"kind" yaml:"kind"`
	Output string `json:"output" yaml:"output"`
	Tag    string `json:"tag" yaml:"tag"`
	Debug  string `json:"debug" yaml:"debug"`
}

// Load reads and validates the manifest at path.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	return Parse(data)
}

// LoadIfExists is Load, except that a missing file yields an empty manifest.
func LoadIfExists(path string) (*Manifest, error) {
	if path == "" {
		return &Manifest{}, nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		log.Info().Str("file", path).Msg("No bundle manifest found")
		return &Manifest{}, nil
	}
	return Load(path)
}

// Parse decodes and validates a manifest document.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil {
		if errors.Is(err, io.EOF) {
			return &m, nil
		}
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate reports every problem found in the manifest.
func (m *Manifest) Validate() error {
	var errs []error
	seen := make(map[string]bool)

	for i, b := range m.Bundles {
		where := fmt.Sprintf("bundles[%d]", i)
		if b.Name != "" {
			where = fmt.Sprintf("bundle %q", b.Name)
		}

		kind, err := bundle.KindByName(b.Kind)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", where, err))
		}
		if b.Name == "" {
			errs = append(errs, fmt.Errorf("%s: name is required", where))
		} else if err == nil {
			key := kind.CachePrefix + "/" + b.Name
			if seen[key] {
				errs = append(errs, fmt.Errorf("%s: duplicate %s bundle name", where, kind.Name))
			}
			seen[key] = true
		}
		if b.Output == "" {
			errs = append(errs, fmt.Errorf("%s: output is required", where))
		}
		switch b.Target {
		case "", TargetCache, TargetFile:
		default:
			errs = append(errs, fmt.Errorf("%s: target must be %q or %q, got %q", where, TargetCache, TargetFile, b.Target))
		}
		switch strings.ToLower(b.Mode) {
		case "", "debug", "release":
		default:
			errs = append(errs, fmt.Errorf("%s: mode must be debug or release, got %q", where, b.Mode))
		}
		if b.Media != "" && err == nil && kind != bundle.Style {
			errs = append(errs, fmt.Errorf("%s: media only applies to style bundles", where))
		}
		if len(b.Sources) == 0 {
			errs = append(errs, fmt.Errorf("%s: at least one source is required", where))
		}
		for j, s := range b.Sources {
			if s.Path == "" {
				errs = append(errs, fmt.Errorf("%s: sources[%d]: path is required", where, j))
			}
			if s.Remote != "" && s.Embedded != "" {
				errs = append(errs, fmt.Errorf("%s: sources[%d]: remote and embedded are exclusive", where, j))
			}
		}
	}

	return errors.Join(errs...)
}

// Builder creates the builder described by b.
func (b Bundle) Builder(env *bundle.Environment) (*bundle.Builder, error) {
	kind, err := bundle.KindByName(b.Kind)
	if err != nil {
		return nil, err
	}

	builder := env.Builder(kind)
	for _, s := range b.Sources {
		switch {
		case s.Remote != "":
			builder.AddRemote(s.Path, s.Remote)
		case s.Embedded != "":
			builder.AddEmbedded(s.Path, s.Embedded)
		default:
			builder.AddLocal(s.Path)
		}
	}
	for _, a := range b.Attributes {
		builder.WithAttribute(a.Name, a.Value)
	}
	if b.Media != "" {
		builder.WithMedia(b.Media)
	}
	if b.Transform != "" {
		builder.WithTransformName(b.Transform)
	}
	if b.ProcessImports {
		builder.ProcessImports()
	}
	if b.RenderOnlyIfMissing {
		builder.RenderOnlyIfOutputFileMissing()
	}
	if b.CacheRoute != "" {
		builder.WithCacheRoute(b.CacheRoute)
	}
	switch strings.ToLower(b.Mode) {
	case "debug":
		builder.ForceDebug()
	case "release":
		builder.ForceRelease()
	}
	return builder, nil
}

// Apply registers every bundle of m with env and returns the tags each one
// renders without a per-request debug flag.
func (m *Manifest) Apply(ctx context.Context, env *bundle.Environment) ([]Result, error) {
	results := make([]Result, 0, len(m.Bundles))

	for _, b := range m.Bundles {
		builder, err := b.Builder(env)
		if err != nil {
			return results, fmt.Errorf("bundle %q: %w", b.Name, err)
		}

		if b.Target == TargetFile {
			err = builder.AsNamedFile(ctx, b.Name, b.Output)
		} else {
			err = builder.AsNamedCache(ctx, b.Name, b.Output)
		}
		if err != nil {
			return results, fmt.Errorf("bundle %q: %w", b.Name, err)
		}

		tag, err := env.RenderNamed(ctx, builder.Kind(), b.Name, bundle.NewModeResolver(nil))
		if err != nil {
			return results, fmt.Errorf("bundle %q: %w", b.Name, err)
		}
		reg, _ := env.Registration(builder.Kind(), b.Name)

		results = append(results, Result{
			Name:   b.Name,
			Kind:   builder.Kind().Name,
			Output: b.Output,
			Tag:    tag,
			Debug:  reg.Debug,
		})

		log.Info().
			Str("name", b.Name).
			Str("kind", builder.Kind().Name).
			Str("output", b.Output).
			Int("sources", len(b.Sources)).
			Msg("Registered named bundle")
	}

	return results, nil
}
