package bundle

import "context"

// Mode is the rendering mode of a bundle.
type Mode int

const (
	// Release builds, hashes and caches the combined bundle.
	Release Mode = iota
	// Debug references every source individually and caches nothing.
	Debug
)

func (m Mode) String() string {
	if m == Debug {
		return "debug"
	}
	return "release"
}

// DebugSignal is the ambient source consulted when no mode is forced.
type DebugSignal interface {
	IsDebugRequested(ctx context.Context) bool
}

// StaticSignal always reports the same value.
type StaticSignal bool

func (s StaticSignal) IsDebugRequested(context.Context) bool { return bool(s) }

type debugRequestKey struct{}

// WithDebugRequest records a per-request debug flag on ctx.
func WithDebugRequest(ctx context.Context, debug bool) context.Context {
	return context.WithValue(ctx, debugRequestKey{}, debug)
}

// DebugRequestFrom returns the flag stored by WithDebugRequest, if any.
func DebugRequestFrom(ctx context.Context) (debug, ok bool) {
	debug, ok = ctx.Value(debugRequestKey{}).(bool)
	return debug, ok
}

// ContextSignal prefers a per-request flag on the context and falls back
// to the environment debug setting.
type ContextSignal struct {
	Default bool
}

func (s ContextSignal) IsDebugRequested(ctx context.Context) bool {
	if debug, ok := DebugRequestFrom(ctx); ok {
		return debug
	}
	return s.Default
}

// ModeResolver decides the mode of one builder. A forced mode wins over the
// ambient signal; without either the mode is Release.
type ModeResolver struct {
	forced *Mode
	signal DebugSignal
}

// NewModeResolver creates a resolver over signal. A nil signal never
// requests debug.
func NewModeResolver(signal DebugSignal) ModeResolver {
	return ModeResolver{signal: signal}
}

// Resolve returns the mode in effect for ctx.
func (r ModeResolver) Resolve(ctx context.Context) Mode {
	if r.forced != nil {
		return *r.forced
	}
	if r.signal != nil && r.signal.IsDebugRequested(ctx) {
		return Debug
	}
	return Release
}

// IsForced reports whether a mode was forced.
func (r ModeResolver) IsForced() bool {
	return r.forced != nil
}

// Forced returns the forced mode, if any.
func (r ModeResolver) Forced() (Mode, bool) {
	if r.forced == nil {
		return Release, false
	}
	return *r.forced, true
}

// Force overrides the ambient signal.
func (r *ModeResolver) Force(m Mode) {
	r.forced = &m
}
