package bundle

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"sync"

	"github.com/fluxbase-eu/assetbundle/internal/storage"
)

// SourceKind classifies a source reference.
type SourceKind int

const (
	LocalSource SourceKind = iota
	RemoteSource
	EmbeddedSource
)

func (k SourceKind) String() string {
	switch k {
	case RemoteSource:
		return "remote"
	case EmbeddedSource:
		return "embedded"
	default:
		return "local"
	}
}

// Source is one entry of a bundle. Path is the local path, which is also
// the fallback used in debug mode for remote and embedded entries.
type Source struct {
	Kind     SourceKind
	Path     string
	Remote   string
	Resource string
}

// SourceStore resolves source references to bytes.
type SourceStore interface {
	ReadAll(ctx context.Context, ref string) ([]byte, error)
	Exists(ctx context.Context, ref string) (bool, error)
}

// ProviderSourceStore reads local sources from a storage bucket. References
// are application paths such as "~/js/app.js".
type ProviderSourceStore struct {
	provider storage.Provider
	bucket   string
}

// NewProviderSourceStore creates a source store over bucket.
func NewProviderSourceStore(provider storage.Provider, bucket string) *ProviderSourceStore {
	return &ProviderSourceStore{provider: provider, bucket: bucket}
}

func (s *ProviderSourceStore) ReadAll(ctx context.Context, ref string) ([]byte, error) {
	data, err := storage.ReadAll(ctx, s.provider, s.bucket, StorageKey(ref))
	if errors.Is(err, storage.ErrObjectNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, ref)
	}
	return data, err
}

func (s *ProviderSourceStore) Exists(ctx context.Context, ref string) (bool, error) {
	return s.provider.Exists(ctx, s.bucket, StorageKey(ref))
}

// EmbeddedSourceStore reads resources compiled into the binary. Resource
// ids have the form "namespace://path/in/fs"; ids without a namespace use
// the empty namespace.
type EmbeddedSourceStore struct {
	mu  sync.RWMutex
	fss map[string]fs.FS
}

// NewEmbeddedSourceStore creates an empty embedded store.
func NewEmbeddedSourceStore() *EmbeddedSourceStore {
	return &EmbeddedSourceStore{fss: make(map[string]fs.FS)}
}

// Register exposes fsys under namespace.
func (s *EmbeddedSourceStore) Register(namespace string, fsys fs.FS) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fss[namespace] = fsys
}

func (s *EmbeddedSourceStore) resolve(ref string) (fs.FS, string, bool) {
	namespace, name := "", ref
	if i := strings.Index(ref, "://"); i >= 0 {
		namespace, name = ref[:i], ref[i+3:]
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	fsys, ok := s.fss[namespace]
	return fsys, strings.TrimPrefix(name, "/"), ok
}

func (s *EmbeddedSourceStore) ReadAll(ctx context.Context, ref string) ([]byte, error) {
	fsys, name, ok := s.resolve(ref)
	if !ok {
		return nil, fmt.Errorf("%w: %s: no embedded namespace", ErrSourceNotFound, ref)
	}
	data, err := fs.ReadFile(fsys, name)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, ref)
	}
	return data, err
}

func (s *EmbeddedSourceStore) Exists(ctx context.Context, ref string) (bool, error) {
	fsys, name, ok := s.resolve(ref)
	if !ok {
		return false, nil
	}
	_, err := fs.Stat(fsys, name)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return err == nil, err
}
