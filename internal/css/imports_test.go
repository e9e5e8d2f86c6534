package css

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mapLoader(files map[string]string) Loader {
	return func(p string) (string, error) {
		text, ok := files[p]
		if !ok {
			return "", errors.New("not found")
		}
		return text, nil
	}
}

func TestFindImports(t *testing.T) {
	css := `@import url(reset.css);
@IMPORT "base.css" ;
@import url('print.css') print;
body { color: red; }`

	imports := FindImports(css)
	require.Len(t, imports, 2)
	assert.Equal(t, "reset.css", imports[0].Path)
	assert.Equal(t, "@import url(reset.css);", css[imports[0].Start:imports[0].End])
	assert.Equal(t, "base.css", imports[1].Path)
}

func TestInlineImports(t *testing.T) {
	files := map[string]string{
		"css/partials/reset.css": `@import url(fonts.css);
html { background: url(img/bg.png); }`,
		"css/partials/fonts.css": `@font-face { src: url(../fonts/a.woff); }`,
	}

	css := `@import url(partials/reset.css);
@import url(http://cdn.example.com/x.css);
body { color: red; }`

	out, deps, err := InlineImports("css/site.css", css, mapLoader(files))
	require.NoError(t, err)

	assert.Equal(t, `@font-face { src: url(fonts/a.woff); }
html { background: url(partials/img/bg.png); }
@import url(http://cdn.example.com/x.css);
body { color: red; }`, out)
	assert.Equal(t, []string{"css/partials/reset.css", "css/partials/fonts.css"}, deps)
}

func TestInlineImports_Cycle(t *testing.T) {
	files := map[string]string{
		"a.css": `@import "b.css";`,
		"b.css": `@import "a.css";`,
	}
	_, _, err := InlineImports("a.css", `@import "b.css";`, mapLoader(files))
	assert.ErrorIs(t, err, ErrImportCycle)
}

func TestInlineImports_MissingFile(t *testing.T) {
	_, _, err := InlineImports("a.css", `@import "missing.css";`, mapLoader(nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing.css")
}
