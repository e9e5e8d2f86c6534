package css

import "strings"

// Reference is one url(...) argument found in a stylesheet.
type Reference struct {
	// Start and End are byte offsets of the path inside the scanned text,
	// excluding any surrounding quotes.
	Start int
	End   int
	Path  string
	// Quote is the quote character around the path, or 0 when unquoted.
	Quote byte
}

// Scanner walks the url(...) occurrences of a stylesheet in order.
// The url( token is matched case-insensitively.
type Scanner struct {
	src string
	pos int
}

// NewScanner returns a Scanner positioned at the start of src.
func NewScanner(src string) *Scanner {
	return &Scanner{src: src}
}

// Next returns the next well-formed url(...) reference. Malformed
// occurrences, such as an unterminated quote, are skipped.
func (s *Scanner) Next() (Reference, bool) {
	for s.pos < len(s.src) {
		i := indexFold(s.src[s.pos:], "url(")
		if i < 0 {
			s.pos = len(s.src)
			return Reference{}, false
		}

		start := s.pos + i + len("url(")
		s.pos = start

		ref, end, ok := scanArgument(s.src, start)
		if !ok {
			continue
		}
		s.pos = end
		return ref, true
	}
	return Reference{}, false
}

// scanArgument parses the argument of a url( token that starts at offset at.
// It returns the reference and the offset just past the closing parenthesis.
func scanArgument(src string, at int) (Reference, int, bool) {
	j := skipSpace(src, at)
	if j >= len(src) {
		return Reference{}, 0, false
	}

	if q := src[j]; q == '\'' || q == '"' {
		k := strings.IndexByte(src[j+1:], q)
		if k < 0 {
			return Reference{}, 0, false
		}
		ref := Reference{Start: j + 1, End: j + 1 + k, Path: src[j+1 : j+1+k], Quote: q}
		after := skipSpace(src, ref.End+1)
		if after >= len(src) || src[after] != ')' {
			return Reference{}, 0, false
		}
		return ref, after + 1, true
	}

	k := strings.IndexByte(src[j:], ')')
	if k < 0 {
		return Reference{}, 0, false
	}
	raw := strings.TrimRight(src[j:j+k], " \t\r\n\f")
	if strings.ContainsAny(raw, "'\"(") {
		return Reference{}, 0, false
	}
	return Reference{Start: j, End: j + len(raw), Path: raw}, j + k + 1, true
}

func skipSpace(src string, i int) int {
	for i < len(src) {
		switch src[i] {
		case ' ', '\t', '\r', '\n', '\f':
			i++
		default:
			return i
		}
	}
	return i
}

// indexFold is strings.Index with ASCII case folding on the pattern.
func indexFold(s, pattern string) int {
	n := len(pattern)
	for i := 0; i+n <= len(s); i++ {
		if strings.EqualFold(s[i:i+n], pattern) {
			return i
		}
	}
	return -1
}
