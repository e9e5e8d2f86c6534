package transform

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentity(t *testing.T) {
	out, err := Identity().Apply("function a() {}\n")
	require.NoError(t, err)
	assert.Equal(t, "function a() {}\n", out)
	assert.Equal(t, "null", Identity().Name())
}

func TestRegistry(t *testing.T) {
	upper := Func{ID: "Upper", Fn: func(s string) (string, error) { return strings.ToUpper(s), nil }}
	r := NewRegistry(Identity(), upper)

	t.Run("first registered is default", func(t *testing.T) {
		assert.Equal(t, Null, r.Default().Name())
	})

	t.Run("lookup is case-insensitive", func(t *testing.T) {
		got, err := r.Get("UPPER")
		require.NoError(t, err)
		out, err := got.Apply("abc")
		require.NoError(t, err)
		assert.Equal(t, "ABC", out)
	})

	t.Run("unknown name", func(t *testing.T) {
		_, err := r.Get("yui")
		assert.ErrorIs(t, err, ErrUnknown)
		assert.ErrorIs(t, r.SetDefault("yui"), ErrUnknown)
	})

	t.Run("set default", func(t *testing.T) {
		require.NoError(t, r.SetDefault("upper"))
		assert.Equal(t, "Upper", r.Default().Name())
	})

	t.Run("names sorted", func(t *testing.T) {
		assert.Equal(t, []string{"null", "upper"}, r.Names())
	})

	t.Run("empty registry falls back to identity", func(t *testing.T) {
		assert.Equal(t, Null, NewRegistry().Default().Name())
	})
}

func TestBuiltinRegistries(t *testing.T) {
	for name, r := range map[string]*Registry{"scripts": Scripts(), "styles": Styles()} {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, "esbuild", r.Default().Name())
			assert.Equal(t, []string{"esbuild", "esbuild-whitespace", "null"}, r.Names())
		})
	}
}

func TestESBuild(t *testing.T) {
	t.Run("minifies javascript", func(t *testing.T) {
		src := "function product(a, b)\n{\n    return a * b;\n}\n\nfunction sum(a, b){\n    return a + b;\n}"
		out, err := NewESBuild(LoaderJS, MinifyAll).Apply(src)
		require.NoError(t, err)
		assert.Less(t, len(out), len(src))
		assert.Contains(t, out, "function product(")
	})

	t.Run("whitespace only keeps identifiers", func(t *testing.T) {
		out, err := NewESBuild(LoaderJS, MinifyWhitespace).Apply("(function () {\n  var longName = 1;\n  console.log(longName);\n})();")
		require.NoError(t, err)
		assert.Contains(t, out, "longName")
		assert.NotContains(t, out, "\n  ")
	})

	t.Run("minifies css", func(t *testing.T) {
		out, err := NewESBuild(LoaderCSS, MinifyAll).Apply("li {\n    margin-bottom: 0.1em;\n    margin-left: 0.4em;\n}\n")
		require.NoError(t, err)
		assert.NotContains(t, out, "\n    ")
		assert.Contains(t, out, "li{")
	})

	t.Run("syntax error", func(t *testing.T) {
		_, err := NewESBuild(LoaderJS, MinifyAll).Apply("function (")
		assert.ErrorIs(t, err, ErrRejected)
	})
}

type fakeLess struct{}

func (fakeLess) Extensions() []string { return []string{".less", ".less.css"} }
func (fakeLess) Compile(path, content string) (string, error) {
	if content == "" {
		return "", errors.New("empty")
	}
	return strings.ReplaceAll(content, "@color", "red"), nil
}

func TestPreprocessors(t *testing.T) {
	t.Run("plain css needs nothing", func(t *testing.T) {
		pp, err := NewPreprocessors().Lookup("css/site.css")
		require.NoError(t, err)
		assert.Nil(t, pp)
	})

	t.Run("less without preprocessor fails", func(t *testing.T) {
		_, err := NewPreprocessors().Lookup("css/site.LESS")
		assert.ErrorIs(t, err, ErrUnknown)

		var nilSet *Preprocessors
		_, err = nilSet.Lookup("css/site.less.css")
		assert.ErrorIs(t, err, ErrUnknown)
	})

	t.Run("registered preprocessor matched case-insensitively", func(t *testing.T) {
		p := NewPreprocessors(fakeLess{})
		pp, err := p.Lookup("css/Site.Less.Css")
		require.NoError(t, err)
		require.NotNil(t, pp)
		out, err := pp.Compile("css/Site.Less.Css", "a { color: @color; }")
		require.NoError(t, err)
		assert.Equal(t, "a { color: red; }", out)
	})
}
