package bundle

import (
	"errors"
	"fmt"

	"github.com/fluxbase-eu/assetbundle/internal/transform"
)

var (
	// ErrSourceNotFound is returned when a local or embedded source cannot be read.
	ErrSourceNotFound = errors.New("source not found")

	// ErrTransform is returned when a transform or preprocessor rejects its input.
	ErrTransform = errors.New("transform failed")

	// ErrUnknownBundleName is returned by RenderNamed for names never registered.
	ErrUnknownBundleName = errors.New("unknown bundle name")

	// ErrNotCached is returned by GetCachedContent for keys never built.
	ErrNotCached = errors.New("bundle not cached")

	// ErrUnknownTransform is returned when a transform name is not registered.
	ErrUnknownTransform = transform.ErrUnknown
)

// Build stages reported by BuildError.
const (
	StageRead       = "read"
	StagePreprocess = "preprocess"
	StageImport     = "import"
	StageTransform  = "transform"
	StagePersist    = "persist"
)

// BuildError describes a failed release build. Err wraps one of the
// package sentinels where one applies.
type BuildError struct {
	Kind  string
	Key   string
	Stage string
	Path  string
	Err   error
}

func (e *BuildError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s bundle %s: %s: %v", e.Kind, e.Key, e.Stage, e.Err)
	}
	return fmt.Sprintf("%s bundle %s: %s: processing %s: %v", e.Kind, e.Key, e.Stage, e.Path, e.Err)
}

func (e *BuildError) Unwrap() error { return e.Err }
