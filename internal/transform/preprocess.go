package transform

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Preprocessor compiles a stylesheet dialect to plain CSS.
type Preprocessor interface {
	// Extensions lists the file extensions handled, including the leading dot.
	Extensions() []string
	Compile(path, content string) (string, error)
}

// dialects are extensions that always need a preprocessor, registered or not.
var dialects = []string{".less.css", ".less"}

// Preprocessors resolves a preprocessor from a file extension.
type Preprocessors struct {
	mu     sync.RWMutex
	byExt  map[string]Preprocessor
	sorted []string
}

// NewPreprocessors creates an empty preprocessor set.
func NewPreprocessors(pp ...Preprocessor) *Preprocessors {
	p := &Preprocessors{byExt: make(map[string]Preprocessor)}
	for _, x := range pp {
		p.Register(x)
	}
	return p
}

// Register adds pp for each of its extensions.
func (p *Preprocessors) Register(pp Preprocessor) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, ext := range pp.Extensions() {
		p.byExt[strings.ToLower(ext)] = pp
	}
	p.sorted = p.sorted[:0]
	for ext := range p.byExt {
		p.sorted = append(p.sorted, ext)
	}
	// longest extension first so ".less.css" wins over ".css"
	sort.Slice(p.sorted, func(i, j int) bool { return len(p.sorted[i]) > len(p.sorted[j]) })
}

// Lookup returns the preprocessor for path. It reports an error when path
// has a known dialect extension but nothing is registered for it, and
// (nil, nil) when path is plain CSS.
func (p *Preprocessors) Lookup(path string) (Preprocessor, error) {
	lower := strings.ToLower(path)
	if p != nil {
		p.mu.RLock()
		for _, ext := range p.sorted {
			if strings.HasSuffix(lower, ext) {
				pp := p.byExt[ext]
				p.mu.RUnlock()
				return pp, nil
			}
		}
		p.mu.RUnlock()
	}

	for _, ext := range dialects {
		if strings.HasSuffix(lower, ext) {
			return nil, fmt.Errorf("%w: no preprocessor registered for %s", ErrUnknown, ext)
		}
	}
	return nil, nil
}
