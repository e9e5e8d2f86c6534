// Package css adjusts stylesheet text when it is moved from its source
// location into a combined bundle.
package css

import (
	"path"
	"strings"
)

// Rewrite rewrites every relative url() reference in css so that it
// resolves to the same resource once the stylesheet is served from
// outputPath instead of sourcePath. Absolute references are left alone.
// Both paths may use either slash or backslash separators.
func Rewrite(outputPath, sourcePath, css string) string {
	outDir := dir(outputPath)
	srcDir := dir(sourcePath)
	if outDir == srcDir {
		return css
	}

	var b strings.Builder
	b.Grow(len(css))

	last := 0
	s := NewScanner(css)
	for {
		ref, ok := s.Next()
		if !ok {
			break
		}
		if IsAbsolute(ref.Path) {
			continue
		}
		b.WriteString(css[last:ref.Start])
		b.WriteString(Relocate(outDir, srcDir, ref.Path))
		last = ref.End
	}

	if last == 0 {
		return css
	}
	b.WriteString(css[last:])
	return b.String()
}

// IsAbsolute reports whether a url() path must be left untouched: root
// relative paths, paths with a scheme (http:, data:, ...), fragment-only
// references and empty paths.
func IsAbsolute(p string) bool {
	if p == "" || p[0] == '/' || p[0] == '\\' || p[0] == '#' {
		return true
	}
	return hasScheme(p)
}

func hasScheme(p string) bool {
	for i := 0; i < len(p); i++ {
		c := p[i]
		switch {
		case c == ':':
			return i > 0
		case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z':
		case i > 0 && ('0' <= c && c <= '9' || c == '+' || c == '-' || c == '.'):
		default:
			return false
		}
	}
	return false
}

// Relocate returns the path, relative to outDir, of the resource that ref
// names relative to srcDir. Query strings and fragments on ref are kept.
func Relocate(outDir, srcDir, ref string) string {
	suffix := ""
	if i := strings.IndexAny(ref, "?#"); i >= 0 {
		ref, suffix = ref[:i], ref[i:]
	}
	trailing := strings.HasSuffix(ref, "/")

	target := path.Join(srcDir, toSlash(ref))
	rel := relative(outDir, target)
	if trailing && rel != "" && !strings.HasSuffix(rel, "/") {
		rel += "/"
	}
	return rel + suffix
}

// relative computes the slash separated path from dir "from" to "to".
// Both arguments must already be cleaned.
func relative(from, to string) string {
	fromSegs := segments(from)
	toSegs := segments(to)

	common := 0
	for common < len(fromSegs) && common < len(toSegs) && fromSegs[common] == toSegs[common] {
		common++
	}

	var b strings.Builder
	for range fromSegs[common:] {
		b.WriteString("../")
	}
	b.WriteString(strings.Join(toSegs[common:], "/"))
	return b.String()
}

func segments(p string) []string {
	if p == "." || p == "" {
		return nil
	}
	return strings.Split(strings.TrimPrefix(p, "/"), "/")
}

func dir(p string) string {
	return path.Dir(toSlash(p))
}

func toSlash(p string) string {
	return strings.ReplaceAll(p, `\`, "/")
}
