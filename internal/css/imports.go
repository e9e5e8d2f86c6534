package css

import (
	"errors"
	"fmt"
	"path"
	"strings"
)

// ErrImportCycle is returned when stylesheets import each other.
var ErrImportCycle = errors.New("css: import cycle")

// Loader returns the text of the stylesheet at path.
type Loader func(path string) (string, error)

// Import is a single @import statement.
type Import struct {
	Start int
	End   int
	Path  string
}

// FindImports returns the @import statements of css whose target is a
// plain url or string followed by a semicolon. Statements carrying a media
// list are not returned.
func FindImports(css string) []Import {
	var imports []Import
	pos := 0
	for pos < len(css) {
		i := indexFold(css[pos:], "@import")
		if i < 0 {
			break
		}
		start := pos + i
		pos = start + len("@import")

		j := skipSpace(css, pos)
		var target string
		var after int
		switch {
		case j < len(css) && (css[j] == '\'' || css[j] == '"'):
			k := strings.IndexByte(css[j+1:], css[j])
			if k < 0 {
				continue
			}
			target = css[j+1 : j+1+k]
			after = j + 1 + k + 1
		case j+4 <= len(css) && strings.EqualFold(css[j:j+4], "url("):
			ref, end, ok := scanArgument(css, j+4)
			if !ok {
				continue
			}
			target = ref.Path
			after = end
		default:
			continue
		}

		after = skipSpace(css, after)
		if after >= len(css) || css[after] != ';' {
			continue
		}
		imports = append(imports, Import{Start: start, End: after + 1, Path: target})
		pos = after + 1
	}
	return imports
}

// InlineImports replaces the relative @import statements of css, a
// stylesheet located at sourcePath, with the content of the imported
// files. Nested imports are followed and every inlined stylesheet has its
// url() references rewritten relative to sourcePath. The returned slice
// lists the path of every file that was inlined.
func InlineImports(sourcePath, css string, load Loader) (string, []string, error) {
	return inline(sourcePath, css, load, map[string]bool{path.Clean(toSlash(sourcePath)): true})
}

func inline(sourcePath, css string, load Loader, stack map[string]bool) (string, []string, error) {
	imports := FindImports(css)
	if len(imports) == 0 {
		return css, nil, nil
	}

	var (
		b     strings.Builder
		files []string
		last  int
	)
	for _, imp := range imports {
		if IsAbsolute(imp.Path) {
			continue
		}

		p := path.Join(dir(sourcePath), toSlash(imp.Path))
		if stack[p] {
			return "", nil, fmt.Errorf("%w: %s imports %s", ErrImportCycle, sourcePath, p)
		}

		text, err := load(p)
		if err != nil {
			return "", nil, fmt.Errorf("import %s: %w", p, err)
		}

		stack[p] = true
		text, nested, err := inline(p, text, load, stack)
		delete(stack, p)
		if err != nil {
			return "", nil, err
		}

		b.WriteString(css[last:imp.Start])
		b.WriteString(Rewrite(sourcePath, p, text))
		last = imp.End

		files = append(files, p)
		files = append(files, nested...)
	}
	b.WriteString(css[last:])
	return b.String(), files, nil
}
