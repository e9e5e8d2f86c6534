// Package cache holds built bundles: one immutable entry per key, written
// by the first successful build and removed only by Clear or a sweep.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when a key has no entry.
var ErrNotFound = errors.New("cache entry not found")

// Dependency is a file a bundle was built from, with the fingerprint of
// its content at build time. Embedded marks Path as an embedded resource id
// rather than a local path.
type Dependency struct {
	Path        string `json:"path"`
	Fingerprint string `json:"fingerprint"`
	Embedded    bool   `json:"embedded,omitempty"`
}

// Entry is a built bundle.
type Entry struct {
	Key          string       `json:"key"`
	Tag          string       `json:"tag,omitempty"`
	Content      string       `json:"content"`
	Hash         string       `json:"hash,omitempty"`
	Location     string       `json:"location,omitempty"`
	BuildID      string       `json:"build_id,omitempty"`
	Dependencies []Dependency `json:"dependencies,omitempty"`
	// Artifacts are keys of other entries written by the same build. They
	// are evicted together with this entry.
	Artifacts []string  `json:"artifacts,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Store is the content cache. Implementations must be safe for concurrent use.
type Store interface {
	// Contains reports whether key has an entry.
	Contains(ctx context.Context, key string) (bool, error)

	// Get returns the entry for key or ErrNotFound.
	Get(ctx context.Context, key string) (*Entry, error)

	// Put stores entry under key unless key is already present. It
	// reports whether the entry was written.
	Put(ctx context.Context, key string, entry *Entry) (bool, error)

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Keys lists every key in the store.
	Keys(ctx context.Context) ([]string, error)

	// Clear removes every entry.
	Clear(ctx context.Context) error

	// Close releases resources held by the store.
	Close() error
}

func cloneEntry(e *Entry) *Entry {
	c := *e
	if e.Dependencies != nil {
		c.Dependencies = append([]Dependency(nil), e.Dependencies...)
	}
	if e.Artifacts != nil {
		c.Artifacts = append([]string(nil), e.Artifacts...)
	}
	return &c
}
