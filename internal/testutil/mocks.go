// Package testutil provides shared test utilities and mocks for unit testing.
package testutil

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/fluxbase-eu/assetbundle/internal/storage"
)

// MockStorageProvider implements storage.Provider in memory.
type MockStorageProvider struct {
	mu      sync.RWMutex
	objects map[string]map[string][]byte // bucket -> key -> data
	uploads int

	// Callbacks for custom behavior
	OnUpload   func(ctx context.Context, bucket, key string, data []byte) error
	OnDownload func(ctx context.Context, bucket, key string) error
}

// NewMockStorageProvider creates a new mock storage provider
func NewMockStorageProvider() *MockStorageProvider {
	return &MockStorageProvider{
		objects: make(map[string]map[string][]byte),
	}
}

func (m *MockStorageProvider) Name() string {
	return "mock"
}

func (m *MockStorageProvider) Health(ctx context.Context) error {
	return nil
}

// Put seeds an object without counting it as an upload.
func (m *MockStorageProvider) Put(bucket, key, content string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.objects[bucket]; !exists {
		m.objects[bucket] = make(map[string][]byte)
	}
	m.objects[bucket][key] = []byte(content)
}

// Object returns the stored content of bucket/key.
func (m *MockStorageProvider) Object(bucket, key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.objects[bucket][key]
	return string(data), ok
}

// Uploads returns the number of Upload calls that succeeded.
func (m *MockStorageProvider) Uploads() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.uploads
}

func (m *MockStorageProvider) Upload(ctx context.Context, bucket, key string, data io.Reader, size int64, opts *storage.UploadOptions) (*storage.Object, error) {
	content, err := io.ReadAll(data)
	if err != nil {
		return nil, err
	}

	if m.OnUpload != nil {
		if err := m.OnUpload(ctx, bucket, key, content); err != nil {
			return nil, err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.objects[bucket]; !exists {
		m.objects[bucket] = make(map[string][]byte)
	}
	m.objects[bucket][key] = content
	m.uploads++

	obj := &storage.Object{
		Key:          key,
		Bucket:       bucket,
		Size:         int64(len(content)),
		LastModified: time.Now(),
	}
	if opts != nil {
		obj.ContentType = opts.ContentType
	}
	return obj, nil
}

func (m *MockStorageProvider) Download(ctx context.Context, bucket, key string) (io.ReadCloser, *storage.Object, error) {
	if m.OnDownload != nil {
		if err := m.OnDownload(ctx, bucket, key); err != nil {
			return nil, nil, err
		}
	}

	obj, err := m.GetObject(ctx, bucket, key)
	if err != nil {
		return nil, nil, err
	}

	m.mu.RLock()
	data := m.objects[bucket][key]
	m.mu.RUnlock()

	return io.NopCloser(bytes.NewReader(data)), obj, nil
}

func (m *MockStorageProvider) Delete(ctx context.Context, bucket, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.objects[bucket][key]; !exists {
		return fmt.Errorf("%w: %s/%s", storage.ErrObjectNotFound, bucket, key)
	}
	delete(m.objects[bucket], key)
	return nil
}

func (m *MockStorageProvider) Exists(ctx context.Context, bucket, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, exists := m.objects[bucket][key]
	return exists, nil
}

func (m *MockStorageProvider) GetObject(ctx context.Context, bucket, key string) (*storage.Object, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, exists := m.objects[bucket][key]
	if !exists {
		return nil, fmt.Errorf("%w: %s/%s", storage.ErrObjectNotFound, bucket, key)
	}
	return &storage.Object{Key: key, Bucket: bucket, Size: int64(len(data))}, nil
}

// Persisted is one call to RecordingSink.Persist.
type Persisted struct {
	Location string
	Content  string
}

// RecordingSink is an in-memory bundle sink that records every write.
type RecordingSink struct {
	mu         sync.Mutex
	files      map[string]string
	calls      []Persisted
	Prefix     string
	Delay      time.Duration
	PersistErr error
	// BeforePersist, if set, runs at the start of every Persist call.
	BeforePersist func(location string)
}

// NewRecordingSink creates a sink whose URLs are Prefix + location.
func NewRecordingSink() *RecordingSink {
	return &RecordingSink{files: make(map[string]string)}
}

func (s *RecordingSink) Persist(ctx context.Context, location, content string) error {
	if s.BeforePersist != nil {
		s.BeforePersist(location)
	}
	if s.Delay > 0 {
		time.Sleep(s.Delay)
	}
	if s.PersistErr != nil {
		return s.PersistErr
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[location] = content
	s.calls = append(s.calls, Persisted{Location: location, Content: content})
	return nil
}

func (s *RecordingSink) Exists(ctx context.Context, location string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.files[location]
	return ok, nil
}

func (s *RecordingSink) Read(ctx context.Context, location string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	content, ok := s.files[location]
	if !ok {
		return "", fmt.Errorf("%s: %w", location, storage.ErrObjectNotFound)
	}
	return content, nil
}

func (s *RecordingSink) URL(location string) string {
	return s.Prefix + strings.TrimPrefix(location, "~/")
}

// Seed stores content without recording a Persist call.
func (s *RecordingSink) Seed(location, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[location] = content
}

// Calls returns every Persist call in order.
func (s *RecordingSink) Calls() []Persisted {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Persisted(nil), s.calls...)
}

// MemorySourceStore serves sources from a map keyed by path.
type MemorySourceStore struct {
	mu    sync.RWMutex
	files map[string]string
	reads map[string]int
}

// NewMemorySourceStore creates a source store holding files.
func NewMemorySourceStore(files map[string]string) *MemorySourceStore {
	s := &MemorySourceStore{files: make(map[string]string), reads: make(map[string]int)}
	for k, v := range files {
		s.files[k] = v
	}
	return s
}

// Set adds or replaces a file.
func (s *MemorySourceStore) Set(path, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[path] = content
}

// Reads returns how many times path was read.
func (s *MemorySourceStore) Reads(path string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reads[path]
}

func (s *MemorySourceStore) ReadAll(ctx context.Context, ref string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	content, ok := s.files[ref]
	if !ok {
		return nil, fmt.Errorf("%s: %w", ref, storage.ErrObjectNotFound)
	}
	s.reads[ref]++
	return []byte(content), nil
}

func (s *MemorySourceStore) Exists(ctx context.Context, ref string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.files[ref]
	return ok, nil
}

// FlagSignal is a debug signal that can be flipped during a test.
type FlagSignal struct {
	mu    sync.RWMutex
	debug bool
}

// SetDebug changes the reported value.
func (f *FlagSignal) SetDebug(debug bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.debug = debug
}

func (f *FlagSignal) IsDebugRequested(ctx context.Context) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.debug
}
