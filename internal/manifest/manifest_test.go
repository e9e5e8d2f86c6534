package manifest

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/fluxbase-eu/assetbundle/internal/bundle"
	"github.com/fluxbase-eu/assetbundle/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
bundles:
  - name: site
    kind: script
    output: site_#.js
    transform: "null"
    attributes:
      - {name: defer, value: defer}
    sources:
      - path: ~/js/jquery.js
        remote: https://cdn.example.com/jquery.min.js
      - path: ~/js/app.js
  - name: site
    kind: style
    output: ~/css/site.css
    target: file
    transform: "null"
    media: screen
    sources:
      - path: ~/css/site.css
  - name: admin
    kind: js
    output: admin.js
    mode: debug
    sources:
      - path: ~/js/admin.js
`

func TestParse(t *testing.T) {
	m, err := Parse([]byte(sample))
	require.NoError(t, err)
	require.Len(t, m.Bundles, 3)

	site := m.Bundles[0]
	assert.Equal(t, "site", site.Name)
	assert.Equal(t, "script", site.Kind)
	assert.Equal(t, "null", site.Transform)
	assert.Equal(t, []Attribute{{Name: "defer", Value: "defer"}}, site.Attributes)
	require.Len(t, site.Sources, 2)
	assert.Equal(t, "https://cdn.example.com/jquery.min.js", site.Sources[0].Remote)

	assert.Equal(t, TargetFile, m.Bundles[1].Target)
	assert.Equal(t, "debug", m.Bundles[2].Mode)
}

func TestParse_Empty(t *testing.T) {
	m, err := Parse(nil)
	require.NoError(t, err)
	assert.Empty(t, m.Bundles)
}

func TestParse_UnknownField(t *testing.T) {
	_, err := Parse([]byte("bundles:\n  - name: a\n    colour: red\n"))
	assert.ErrorContains(t, err, "failed to parse manifest")
}

func TestValidate(t *testing.T) {
	valid := func() Bundle {
		return Bundle{Name: "a", Kind: "script", Output: "a.js", Sources: []Source{{Path: "~/a.js"}}}
	}

	tests := []struct {
		name    string
		mutate  func(b *Bundle)
		extra   []Bundle
		wantErr string
	}{
		{name: "valid", mutate: func(b *Bundle) {}},
		{name: "missing name", mutate: func(b *Bundle) { b.Name = "" }, wantErr: "name is required"},
		{name: "bad kind", mutate: func(b *Bundle) { b.Kind = "image" }, wantErr: `unknown bundle kind "image"`},
		{name: "missing output", mutate: func(b *Bundle) { b.Output = "" }, wantErr: "output is required"},
		{name: "bad target", mutate: func(b *Bundle) { b.Target = "s3" }, wantErr: "target must be"},
		{name: "bad mode", mutate: func(b *Bundle) { b.Mode = "verbose" }, wantErr: "mode must be debug or release"},
		{name: "media on script", mutate: func(b *Bundle) { b.Media = "print" }, wantErr: "media only applies to style bundles"},
		{name: "no sources", mutate: func(b *Bundle) { b.Sources = nil }, wantErr: "at least one source"},
		{name: "source without path", mutate: func(b *Bundle) { b.Sources = []Source{{Remote: "http://x"}} }, wantErr: "path is required"},
		{
			name:    "remote and embedded",
			mutate:  func(b *Bundle) { b.Sources = []Source{{Path: "~/a.js", Remote: "http://x", Embedded: "ns://a.js"}} },
			wantErr: "exclusive",
		},
		{
			name:    "duplicate name of same kind",
			mutate:  func(b *Bundle) {},
			extra:   []Bundle{{Name: "a", Kind: "js", Output: "b.js", Sources: []Source{{Path: "~/b.js"}}}},
			wantErr: "duplicate script bundle name",
		},
		{
			name:   "same name different kind",
			mutate: func(b *Bundle) {},
			extra:  []Bundle{{Name: "a", Kind: "style", Output: "a.css", Sources: []Source{{Path: "~/a.css"}}}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := valid()
			tt.mutate(&b)
			m := &Manifest{Bundles: append([]Bundle{b}, tt.extra...)}

			err := m.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bundles.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))

	m, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, m.Bundles, 3)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read manifest")
}

func TestLoadIfExists(t *testing.T) {
	dir := t.TempDir()

	m, err := LoadIfExists(filepath.Join(dir, "missing.yaml"))
	require.NoError(t, err)
	assert.Empty(t, m.Bundles)

	m, err = LoadIfExists("")
	require.NoError(t, err)
	assert.Empty(t, m.Bundles)

	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("bundles:\n  - name: a\n"), 0o644))
	_, err = LoadIfExists(path)
	assert.ErrorContains(t, err, "output is required")
}

func TestApply(t *testing.T) {
	ctx := context.Background()
	sink := testutil.NewRecordingSink()
	env := bundle.NewEnvironment(bundle.Options{
		Sources: testutil.NewMemorySourceStore(map[string]string{
			"~/js/app.js":    "var app;",
			"~/js/admin.js":  "var admin;",
			"~/css/site.css": "body{}",
		}),
		Files: sink,
	})

	m, err := Parse([]byte(sample))
	require.NoError(t, err)

	results, err := m.Apply(ctx, env)
	require.NoError(t, err)
	require.Len(t, results, 3)

	hash := env.Hasher().Sum([]byte("var app;"))
	assert.Equal(t,
		`<script type="text/javascript" defer="defer" src="https://cdn.example.com/jquery.min.js"></script>`+
			`<script type="text/javascript" defer="defer" src="/bundle/script/site_`+hash+`.js"></script>`,
		results[0].Tag)
	assert.Equal(t,
		`<script type="text/javascript" defer="defer" src="js/jquery.js"></script>`+
			`<script type="text/javascript" defer="defer" src="js/app.js"></script>`,
		results[0].Debug)

	assert.Equal(t, "style", results[1].Kind)
	assert.Contains(t, results[1].Tag, `media="screen" href="css/site.css?r=`)
	calls := sink.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "~/css/site.css", calls[0].Location)

	// Forced debug registration renders its debug tag by default
	assert.Equal(t, `<script type="text/javascript" src="js/admin.js"></script>`, results[2].Tag)

	tag, err := env.RenderNamedWithSignal(ctx, bundle.Script, "site")
	require.NoError(t, err)
	assert.Equal(t, results[0].Tag, tag)
	assert.Len(t, env.Registrations(), 3)
}

func TestApply_StopsOnBuildError(t *testing.T) {
	env := bundle.NewEnvironment(bundle.Options{
		Sources: testutil.NewMemorySourceStore(nil),
	})

	m := &Manifest{Bundles: []Bundle{
		{Name: "broken", Kind: "script", Output: "b.js", Sources: []Source{{Path: "~/js/missing.js"}}},
	}}

	results, err := m.Apply(context.Background(), env)
	assert.ErrorIs(t, err, bundle.ErrSourceNotFound)
	assert.ErrorContains(t, err, `bundle "broken"`)
	assert.Empty(t, results)
}
