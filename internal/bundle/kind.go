package bundle

import (
	"fmt"
	"strings"
)

// Kind describes a bundle flavor: its cache prefix, tag template and
// served content type.
type Kind struct {
	Name        string
	CachePrefix string
	ContentType string
	tagFormat   string
}

var (
	// Script bundles JavaScript.
	Script = Kind{
		Name:        "script",
		CachePrefix: "js",
		ContentType: "application/javascript; charset=utf-8",
		tagFormat:   `<script type="text/javascript" %ssrc="%s"></script>`,
	}

	// Style bundles stylesheets.
	Style = Kind{
		Name:        "style",
		CachePrefix: "css",
		ContentType: "text/css; charset=utf-8",
		tagFormat:   `<link rel="stylesheet" type="text/css" %shref="%s" />`,
	}
)

// KindByName accepts "script", "js", "style" or "css".
func KindByName(name string) (Kind, error) {
	switch strings.ToLower(name) {
	case "script", "js", "javascript":
		return Script, nil
	case "style", "css", "stylesheet":
		return Style, nil
	default:
		return Kind{}, fmt.Errorf("unknown bundle kind %q", name)
	}
}

// Tag renders the reference tag for path.
func (k Kind) Tag(attrs Attributes, path string) string {
	return fmt.Sprintf(k.tagFormat, attrs.String(), path)
}

func (k Kind) entryKey(outputKey string) string {
	return k.CachePrefix + "_" + outputKey
}

// Attributes is an ordered name/value mapping. Setting an existing name
// replaces its value in place.
type Attributes struct {
	names  []string
	values map[string]string
}

// Set upserts name.
func (a *Attributes) Set(name, value string) {
	if a.values == nil {
		a.values = make(map[string]string)
	}
	if _, ok := a.values[name]; !ok {
		a.names = append(a.names, name)
	}
	a.values[name] = value
}

// Get returns the value of name.
func (a Attributes) Get(name string) (string, bool) {
	v, ok := a.values[name]
	return v, ok
}

// Len returns the number of attributes.
func (a Attributes) Len() int { return len(a.names) }

// String renders `name="value" ` pairs, each followed by a space.
func (a Attributes) String() string {
	var b strings.Builder
	for _, n := range a.names {
		fmt.Fprintf(&b, `%s="%s" `, n, a.values[n])
	}
	return b.String()
}

func (a Attributes) clone() Attributes {
	c := Attributes{names: append([]string(nil), a.names...)}
	if a.values != nil {
		c.values = make(map[string]string, len(a.values))
		for k, v := range a.values {
			c.values[k] = v
		}
	}
	return c
}
