// Package transform provides the content transforms applied to bundles
// before they are hashed, such as minification.
package transform

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Transform rewrites bundle content. Implementations must be safe for
// concurrent use.
type Transform interface {
	Name() string
	Apply(content string) (string, error)
}

// Null is the name of the identity transform.
const Null = "null"

type identity struct{}

// Identity returns the transform that leaves content unchanged.
func Identity() Transform { return identity{} }

func (identity) Name() string                         { return Null }
func (identity) Apply(content string) (string, error) { return content, nil }

// Func adapts a function to the Transform interface.
type Func struct {
	ID string
	Fn func(string) (string, error)
}

func (f Func) Name() string { return f.ID }

func (f Func) Apply(content string) (string, error) { return f.Fn(content) }

// Registry maps transform names to instances and carries a default.
type Registry struct {
	mu         sync.RWMutex
	transforms map[string]Transform
	fallback   string
}

// NewRegistry creates a registry holding the given transforms. The first
// transform becomes the default.
func NewRegistry(transforms ...Transform) *Registry {
	r := &Registry{transforms: make(map[string]Transform)}
	for _, t := range transforms {
		r.Register(t)
	}
	return r
}

// Register adds or replaces a transform under its name.
func (r *Registry) Register(t Transform) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := strings.ToLower(t.Name())
	r.transforms[name] = t
	if r.fallback == "" {
		r.fallback = name
	}
}

// SetDefault selects the transform returned by Default.
func (r *Registry) SetDefault(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	name = strings.ToLower(name)
	if _, ok := r.transforms[name]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknown, name)
	}
	r.fallback = name
	return nil
}

// Get looks up a transform by name, case-insensitively.
func (r *Registry) Get(name string) (Transform, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.transforms[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknown, name)
	}
	return t, nil
}

// Default returns the registry's default transform, or the identity
// transform when the registry is empty.
func (r *Registry) Default() Transform {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if t, ok := r.transforms[r.fallback]; ok {
		return t
	}
	return Identity()
}

// Names lists registered transform names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.transforms))
	for name := range r.transforms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Scripts returns a registry with the built-in JavaScript transforms.
// The default is full esbuild minification.
func Scripts() *Registry {
	return NewRegistry(
		NewESBuild(LoaderJS, MinifyAll),
		NewESBuild(LoaderJS, MinifyWhitespace),
		Identity(),
	)
}

// Styles returns a registry with the built-in stylesheet transforms.
func Styles() *Registry {
	return NewRegistry(
		NewESBuild(LoaderCSS, MinifyAll),
		NewESBuild(LoaderCSS, MinifyWhitespace),
		Identity(),
	)
}
