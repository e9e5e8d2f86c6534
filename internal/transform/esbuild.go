package transform

import (
	"fmt"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
)

// Loader selects how esbuild parses content.
type Loader int

const (
	LoaderJS Loader = iota
	LoaderCSS
)

// Level selects how aggressively esbuild minifies.
type Level int

const (
	// MinifyAll removes whitespace, renames local identifiers and rewrites syntax.
	MinifyAll Level = iota
	// MinifyWhitespace only removes whitespace.
	MinifyWhitespace
)

// ESBuild minifies JavaScript or CSS with the esbuild transform API.
type ESBuild struct {
	loader Loader
	level  Level
}

// NewESBuild creates an esbuild transform.
func NewESBuild(loader Loader, level Level) *ESBuild {
	return &ESBuild{loader: loader, level: level}
}

// Name returns "esbuild" for full minification and "esbuild-whitespace"
// for whitespace-only minification.
func (e *ESBuild) Name() string {
	if e.level == MinifyWhitespace {
		return "esbuild-whitespace"
	}
	return "esbuild"
}

// Apply minifies content. Parse errors are reported with their location.
func (e *ESBuild) Apply(content string) (string, error) {
	opts := api.TransformOptions{
		Loader:           api.LoaderJS,
		Target:           api.ES2015,
		MinifyWhitespace: true,
		LogLevel:         api.LogLevelSilent,
	}
	if e.loader == LoaderCSS {
		opts.Loader = api.LoaderCSS
	}
	if e.level == MinifyAll {
		opts.MinifyIdentifiers = true
		opts.MinifySyntax = true
	}

	result := api.Transform(content, opts)
	if len(result.Errors) > 0 {
		return "", fmt.Errorf("%w: esbuild: %s", ErrRejected, formatMessages(result.Errors))
	}
	return string(result.Code), nil
}

func formatMessages(msgs []api.Message) string {
	parts := make([]string, 0, len(msgs))
	for _, m := range msgs {
		if m.Location != nil {
			parts = append(parts, fmt.Sprintf("%d:%d: %s", m.Location.Line, m.Location.Column, m.Text))
			continue
		}
		parts = append(parts, m.Text)
	}
	return strings.Join(parts, "; ")
}
