package transform

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
)

// maxMixinDepth bounds mixin expansion so self-referencing mixins fail
// instead of recursing forever.
const maxMixinDepth = 16

var mixinCall = regexp.MustCompile(`^([.#][A-Za-z0-9_-]+)\s*(\(\s*\))?$`)

// Less compiles the commonly used subset of LESS to CSS:
//   - // and /* */ comments
//   - block scoped, lazily evaluated variables, including @{name}
//     interpolation and ~"escaped" values
//   - nested rules with the & parent selector (including &-suffix
//     concatenation), and nested @media that bubbles up
//   - parameterless mixins (.name; or .name();), where a definition
//     declared as .name() is not emitted itself
//
// Guards, operations and color functions are passed through untouched.
type Less struct{}

// NewLess creates the LESS preprocessor.
func NewLess() *Less {
	return &Less{}
}

func (*Less) Extensions() []string {
	return []string{".less", ".less.css"}
}

// Compile turns the LESS source at path into plain CSS.
func (*Less) Compile(path, content string) (string, error) {
	root, err := parseLess(stripComments(content))
	if err != nil {
		return "", fmt.Errorf("%w: less: %s: %w", ErrRejected, path, err)
	}

	var flat strings.Builder
	if err := root.emit(&flat, root, nil, 0); err != nil {
		return "", fmt.Errorf("%w: less: %s: %w", ErrRejected, path, err)
	}

	// esbuild validates the generated CSS and prints it consistently
	result := api.Transform(flat.String(), api.TransformOptions{
		Loader:     api.LoaderCSS,
		Sourcefile: path,
		LogLevel:   api.LogLevelSilent,
	})
	if len(result.Errors) > 0 {
		return "", fmt.Errorf("%w: less: %s: %s", ErrRejected, path, formatMessages(result.Errors))
	}
	return string(result.Code), nil
}

type lessItem struct {
	stmt  string
	block *lessBlock
}

// lessBlock is a rule, an at-rule or the stylesheet root.
type lessBlock struct {
	prelude string
	items   []lessItem
	vars    map[string]string
	parent  *lessBlock
}

func newLessBlock(prelude string, parent *lessBlock) *lessBlock {
	return &lessBlock{prelude: prelude, parent: parent, vars: make(map[string]string)}
}

func (b *lessBlock) add(stmt string) {
	if stmt == "" {
		return
	}
	if name, value, ok := variableDecl(stmt); ok {
		// Last definition in a scope wins, wherever it appears
		b.vars[name] = value
		return
	}
	b.items = append(b.items, lessItem{stmt: stmt})
}

func (b *lessBlock) isMixinDefinition() bool {
	return strings.HasSuffix(strings.ReplaceAll(b.prelude, " ", ""), "()")
}

// parseLess splits the source into a tree of blocks and statements.
func parseLess(src string) (*lessBlock, error) {
	root := newLessBlock("", nil)
	cur := root

	var (
		buf         strings.Builder
		quote       byte
		parens      int
		interpolate bool
	)
	flush := func() string {
		s := strings.TrimSpace(buf.String())
		buf.Reset()
		return s
	}

	for i := 0; i < len(src); i++ {
		c := src[i]
		if quote != 0 {
			buf.WriteByte(c)
			if c == '\\' && i+1 < len(src) {
				i++
				buf.WriteByte(src[i])
			} else if c == quote {
				quote = 0
			}
			continue
		}

		switch c {
		case '"', '\'':
			quote = c
			buf.WriteByte(c)
		case '(':
			parens++
			buf.WriteByte(c)
		case ')':
			if parens > 0 {
				parens--
			}
			buf.WriteByte(c)
		case ';':
			if parens > 0 {
				buf.WriteByte(c)
				continue
			}
			cur.add(flush())
		case '{':
			if i > 0 && src[i-1] == '@' {
				interpolate = true
				buf.WriteByte(c)
				continue
			}
			child := newLessBlock(flush(), cur)
			cur.items = append(cur.items, lessItem{block: child})
			cur = child
		case '}':
			if interpolate {
				interpolate = false
				buf.WriteByte(c)
				continue
			}
			if cur.parent == nil {
				return nil, errors.New("unexpected }")
			}
			cur.add(flush())
			cur = cur.parent
		default:
			buf.WriteByte(c)
		}
	}

	if quote != 0 {
		return nil, errors.New("unterminated string")
	}
	if cur != root {
		return nil, fmt.Errorf("missing } for %q", cur.prelude)
	}
	root.add(flush())
	return root, nil
}

// emit writes the rule for selectors followed by every rule nested in b.
// Without selectors, statements are written as they are (@import,
// @font-face descriptors).
func (b *lessBlock) emit(w *strings.Builder, scope *lessBlock, selectors []string, depth int) error {
	var (
		decls  []string
		nested strings.Builder
	)
	if err := b.collect(&decls, &nested, scope, selectors, depth); err != nil {
		return err
	}

	if len(decls) > 0 {
		indent := ""
		if len(selectors) > 0 {
			w.WriteString(strings.Join(selectors, ", "))
			w.WriteString(" {\n")
			indent = "  "
		}
		for _, d := range decls {
			w.WriteString(indent + d + ";\n")
		}
		if len(selectors) > 0 {
			w.WriteString("}\n")
		}
	}
	w.WriteString(nested.String())
	return nil
}

// collect gathers the declarations of b into decls and writes nested
// rules, flattened against selectors, into nested.
func (b *lessBlock) collect(decls *[]string, nested *strings.Builder, scope *lessBlock, selectors []string, depth int) error {
	for _, item := range b.items {
		if item.block == nil {
			if m := mixinCall.FindStringSubmatch(item.stmt); m != nil {
				mixin := scope.findMixin(m[1])
				if mixin == nil {
					return fmt.Errorf("mixin %s is undefined", m[1])
				}
				if depth >= maxMixinDepth {
					return fmt.Errorf("mixin %s nests too deeply", m[1])
				}
				if err := mixin.collect(decls, nested, mixin, selectors, depth+1); err != nil {
					return err
				}
				continue
			}

			resolved, err := scope.resolve(item.stmt, true, map[string]bool{})
			if err != nil {
				return err
			}
			*decls = append(*decls, resolved)
			continue
		}

		child := item.block
		if child.isMixinDefinition() {
			continue
		}
		prelude, err := child.resolve(child.prelude, true, map[string]bool{})
		if err != nil {
			return err
		}

		if !strings.HasPrefix(prelude, "@") {
			if err := child.emit(nested, child, combineSelectors(selectors, splitTopLevel(prelude, ',')), depth); err != nil {
				return err
			}
			continue
		}

		// Conditional rules bubble up and keep applying to the enclosing
		// selectors; other at-rules (@keyframes, @font-face) start fresh
		inner := selectors
		if !isConditionalRule(prelude) {
			inner = nil
		}
		nested.WriteString(prelude + " {\n")
		if err := child.emit(nested, child, inner, depth); err != nil {
			return err
		}
		nested.WriteString("}\n")
	}
	return nil
}

func isConditionalRule(prelude string) bool {
	name := strings.ToLower(prelude)
	for _, rule := range []string{"@media", "@supports", "@container", "@document", "@layer"} {
		if strings.HasPrefix(name, rule) {
			return true
		}
	}
	return false
}

// combineSelectors resolves child selectors against their parents: & is
// replaced by the parent, otherwise the child becomes a descendant.
func combineSelectors(parents, children []string) []string {
	out := make([]string, 0, len(children)*max(len(parents), 1))
	if len(parents) == 0 {
		for _, c := range children {
			out = append(out, strings.TrimSpace(c))
		}
		return out
	}
	for _, p := range parents {
		for _, c := range children {
			c = strings.TrimSpace(c)
			if strings.Contains(c, "&") {
				out = append(out, strings.ReplaceAll(c, "&", p))
			} else {
				out = append(out, p+" "+c)
			}
		}
	}
	return out
}

func (b *lessBlock) findMixin(name string) *lessBlock {
	for s := b; s != nil; s = s.parent {
		for _, item := range s.items {
			if item.block == nil {
				continue
			}
			prelude := strings.ReplaceAll(item.block.prelude, " ", "")
			if prelude == name || prelude == name+"()" {
				return item.block
			}
		}
	}
	return nil
}

// value resolves variable name as seen from b.
func (b *lessBlock) value(name string, seen map[string]bool) (string, error) {
	for s := b; s != nil; s = s.parent {
		raw, ok := s.vars[name]
		if !ok {
			continue
		}
		if seen[name] {
			return "", fmt.Errorf("recursive variable definition for @%s", name)
		}
		seen[name] = true
		defer delete(seen, name)
		return s.resolve(raw, false, seen)
	}
	return "", fmt.Errorf("variable @%s is undefined", name)
}

// resolve substitutes variables in text. With keepLeading an at-keyword
// starting text (@media, @import, ...) is kept as written.
func (b *lessBlock) resolve(text string, keepLeading bool, seen map[string]bool) (string, error) {
	var out strings.Builder
	var quote byte

	for i := 0; i < len(text); i++ {
		c := text[i]
		switch {
		case c == '@' && i+1 < len(text) && text[i+1] == '{':
			end := strings.IndexByte(text[i+2:], '}')
			if end < 0 {
				return "", fmt.Errorf("unterminated interpolation in %q", text)
			}
			v, err := b.value(text[i+2:i+2+end], seen)
			if err != nil {
				return "", err
			}
			out.WriteString(unquote(v))
			i += 2 + end
		case quote != 0:
			out.WriteByte(c)
			if c == '\\' && i+1 < len(text) {
				i++
				out.WriteByte(text[i])
			} else if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
			out.WriteByte(c)
		case c == '~' && i+1 < len(text) && (text[i+1] == '"' || text[i+1] == '\''):
			q := text[i+1]
			end := strings.IndexByte(text[i+2:], q)
			if end < 0 {
				return "", fmt.Errorf("unterminated escape in %q", text)
			}
			// Escaped strings only interpolate @{name}
			inner, err := b.resolve(text[i+1:i+3+end], false, seen)
			if err != nil {
				return "", err
			}
			out.WriteString(unquote(inner))
			i += 2 + end
		case c == '@' && i+1 < len(text) && isIdentByte(text[i+1]):
			j := i + 1
			for j < len(text) && isIdentByte(text[j]) {
				j++
			}
			if i == 0 && keepLeading {
				out.WriteString(text[:j])
			} else {
				v, err := b.value(text[i+1:j], seen)
				if err != nil {
					return "", err
				}
				out.WriteString(v)
			}
			i = j - 1
		default:
			out.WriteByte(c)
		}
	}
	return out.String(), nil
}

// variableDecl matches "@name: value".
func variableDecl(stmt string) (name, value string, ok bool) {
	if len(stmt) < 2 || stmt[0] != '@' {
		return "", "", false
	}
	j := 1
	for j < len(stmt) && isIdentByte(stmt[j]) {
		j++
	}
	if j == 1 {
		return "", "", false
	}
	rest := strings.TrimLeft(stmt[j:], " \t\r\n")
	if !strings.HasPrefix(rest, ":") {
		return "", "", false
	}
	return stmt[1:j], strings.TrimSpace(rest[1:]), true
}

func splitTopLevel(s string, sep byte) []string {
	var (
		parts  []string
		start  int
		parens int
		quote  byte
	)
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == '(' || c == '[':
			parens++
		case c == ')' || c == ']':
			parens--
		case c == sep && parens == 0:
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	return append(parts, s[start:])
}

// stripComments removes // and /* */ comments outside strings. A // inside
// parentheses is kept so url(http://...) survives.
func stripComments(src string) string {
	var (
		out    strings.Builder
		quote  byte
		parens int
	)
	for i := 0; i < len(src); i++ {
		c := src[i]
		if quote != 0 {
			out.WriteByte(c)
			if c == '\\' && i+1 < len(src) {
				i++
				out.WriteByte(src[i])
			} else if c == quote {
				quote = 0
			}
			continue
		}

		switch {
		case c == '"' || c == '\'':
			quote = c
			out.WriteByte(c)
		case c == '(':
			parens++
			out.WriteByte(c)
		case c == ')':
			if parens > 0 {
				parens--
			}
			out.WriteByte(c)
		case c == '/' && i+1 < len(src) && src[i+1] == '*':
			end := strings.Index(src[i+2:], "*/")
			if end < 0 {
				return out.String()
			}
			i += 3 + end
		case c == '/' && i+1 < len(src) && src[i+1] == '/' && parens == 0:
			end := strings.IndexByte(src[i:], '\n')
			if end < 0 {
				return out.String()
			}
			i += end - 1
		default:
			out.WriteByte(c)
		}
	}
	return out.String()
}

func unquote(s string) string {
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}
	return s
}

func isIdentByte(c byte) bool {
	return c == '-' || c == '_' ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}
