package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxbase-eu/assetbundle/cli/output"
	"github.com/fluxbase-eu/assetbundle/cli/util"
	"github.com/fluxbase-eu/assetbundle/internal/bundle"
	"github.com/fluxbase-eu/assetbundle/internal/manifest"
	"github.com/fluxbase-eu/assetbundle/internal/testutil"
)

const testManifest = `
bundles:
  - name: site
    kind: script
    output: "~/js/site_#.js"
    target: file
    sources:
      - path: ~/js/a.js
      - path: ~/js/b.js
  - name: site
    kind: style
    output: "~/css/site.css"
    sources:
      - path: ~/css/site.css
  - name: admin
    kind: script
    output: "~/js/admin.js"
    mode: debug
    sources:
      - path: ~/js/a.js
`

// resetFlags restores every flag to its default so executions do not
// leak into each other.
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	resetFlags(rootCmd)
	viper.Reset()

	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(args)
	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	_, err := rootCmd.ExecuteC()
	return stdout.String(), stderr.String(), err
}

// writeProject lays out a storage root with sources, a manifest and a
// config file pointing at both. It returns the config path and the
// storage root.
func writeProject(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	root := filepath.Join(dir, "storage")

	files := map[string]string{
		"src/js/a.js":      "var a;",
		"src/js/b.js":      "var b;",
		"src/css/site.css": "body { color: red; }",
	}
	for name, content := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}

	manifestPath := filepath.Join(dir, "bundles.yaml")
	require.NoError(t, os.WriteFile(manifestPath, []byte(testManifest), 0o644))

	cfg := "storage:\n" +
		"  provider: local\n" +
		"  local_path: " + root + "\n" +
		"bundle:\n" +
		"  source_bucket: src\n" +
		"  output_bucket: out\n" +
		"  script_transform: \"null\"\n" +
		"  style_transform: \"null\"\n" +
		"  manifest: " + manifestPath + "\n"
	cfgPath := filepath.Join(dir, "assetbundle.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o644))

	return cfgPath, root
}

func TestVersion(t *testing.T) {
	stdout, _, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, stdout, "bundlectl dev")
	assert.Contains(t, stdout, "Commit: unknown")
}

func TestInvalidOutputFormat(t *testing.T) {
	_, _, err := execute(t, "version", "-o", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid output format")
}

func TestValidate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bundles.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testManifest), 0o644))

	stdout, _, err := execute(t, "validate", path)
	require.NoError(t, err)
	assert.Contains(t, stdout, "~/js/site_#.js")
	assert.Contains(t, stdout, "~/js/a.js,~/js/b.js")
	assert.Contains(t, stdout, "is valid: 3 bundle(s)")
}

func TestValidate_ManifestFromConfig(t *testing.T) {
	cfgPath, _ := writeProject(t)
	// Nothing named assetbundle.yaml or bundles.yaml in the working directory
	t.Chdir(t.TempDir())

	stdout, _, err := execute(t, "validate", "--config", cfgPath)
	require.NoError(t, err)
	assert.Equal(t, cfgPath, viper.ConfigFileUsed())
	assert.Contains(t, stdout, "is valid: 3 bundle(s)")
}

func TestValidate_MissingConfigFile(t *testing.T) {
	_, _, err := execute(t, "validate", "--config", filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load configuration")
}

func TestValidate_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bundles.yaml")
	require.NoError(t, os.WriteFile(path, []byte("bundles:\n  - name: site\n    kind: html\n    output: x\n"), 0o644))

	_, _, err := execute(t, "validate", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one source is required")
}

func TestBuild(t *testing.T) {
	cfgPath, root := writeProject(t)

	stdout, _, err := execute(t, "build", "--config", cfgPath, "-o", "json")
	require.NoError(t, err)

	var results []manifest.Result
	require.NoError(t, json.Unmarshal([]byte(stdout), &results))
	require.Len(t, results, 3)

	assert.Equal(t, "site", results[0].Name)
	assert.Equal(t, "script", results[0].Kind)
	assert.True(t, strings.HasPrefix(results[0].Tag, `<script type="text/javascript" src="js/site_`))

	// The file bundle lands in the output bucket under its hashed name
	written, err := filepath.Glob(filepath.Join(root, "out", "js", "site_*.js"))
	require.NoError(t, err)
	require.Len(t, written, 1)
	content, err := os.ReadFile(written[0])
	require.NoError(t, err)
	assert.Contains(t, string(content), "var a;")
	assert.Contains(t, string(content), "var b;")

	assert.Contains(t, results[1].Tag, `href="/bundle/style/`)
	assert.Contains(t, results[2].Debug, `src="js/a.js"`)
}

func TestBuild_Table(t *testing.T) {
	cfgPath, _ := writeProject(t)

	stdout, _, err := execute(t, "build", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, stdout, "NAME")
	assert.Contains(t, stdout, "SIZE")
	assert.Contains(t, stdout, "~/css/site.css")
	assert.Contains(t, stdout, `<link rel="stylesheet"`)
}

func TestBuild_MissingSource(t *testing.T) {
	cfgPath, root := writeProject(t)
	require.NoError(t, os.Remove(filepath.Join(root, "src", "js", "b.js")))

	_, _, err := execute(t, "build", "--config", cfgPath)
	require.Error(t, err)
	assert.ErrorIs(t, err, bundle.ErrSourceNotFound)
}

func TestTags(t *testing.T) {
	cfgPath, _ := writeProject(t)

	tests := []struct {
		name      string
		args      []string
		wantModes map[string]string
		wantTag   string
	}{
		{
			name:      "release",
			args:      nil,
			wantModes: map[string]string{"script/site": "release", "style/site": "release", "script/admin": "debug"},
			wantTag:   `src="js/site_`,
		},
		{
			name:      "debug",
			args:      []string{"--debug"},
			wantModes: map[string]string{"script/site": "debug", "style/site": "debug", "script/admin": "debug"},
			wantTag:   `src="js/b.js"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"tags", "--config", cfgPath, "-o", "json"}, tt.args...)
			stdout, _, err := execute(t, args...)
			require.NoError(t, err)

			var tags []TagInfo
			require.NoError(t, json.Unmarshal([]byte(stdout), &tags))
			require.Len(t, tags, 3)

			modes := make(map[string]string)
			var all strings.Builder
			for _, tag := range tags {
				modes[tag.Kind+"/"+tag.Name] = tag.Mode
				all.WriteString(tag.Tag)
			}
			assert.Equal(t, tt.wantModes, modes)
			assert.Contains(t, all.String(), tt.wantTag)
		})
	}
}

func TestRenderTags_Filter(t *testing.T) {
	ctx := context.Background()
	env := bundle.NewEnvironment(bundle.Options{
		Sources: testutil.NewMemorySourceStore(map[string]string{"~/js/a.js": "var a;", "~/css/a.css": "a{}"}),
		Files:   testutil.NewRecordingSink(),
	})
	require.NoError(t, env.Script().AddLocal("~/js/a.js").WithTransformName("null").AsNamedCache(ctx, "site", "~/js/site.js"))
	require.NoError(t, env.Style().AddLocal("~/css/a.css").WithTransformName("null").AsNamedCache(ctx, "site", "~/css/site.css"))
	require.NoError(t, env.Script().AddLocal("~/js/a.js").WithTransformName("null").AsNamedCache(ctx, "other", "~/js/other.js"))

	var errOut bytes.Buffer
	formatter = output.NewFormatter(output.FormatTable, false, false)
	formatter.ErrWriter = &errOut

	tags, err := renderTags(ctx, env, []string{"site", "missing"}, false)
	require.NoError(t, err)
	require.Len(t, tags, 2)
	assert.Equal(t, "script", tags[0].Kind)
	assert.Equal(t, "style", tags[1].Kind)
	assert.Equal(t, "Warning: no bundle named missing\n", errOut.String())
}

func TestHash(t *testing.T) {
	path := filepath.Join(t.TempDir(), "site.js")
	require.NoError(t, os.WriteFile(path, []byte("var a;"), 0o644))

	tests := []struct {
		algorithm string
		hasher    bundle.Hasher
	}{
		{"md5", bundle.MD5()},
		{"sha256", bundle.SHA256()},
		{"blake3", bundle.BLAKE3()},
	}

	for _, tt := range tests {
		t.Run(tt.algorithm, func(t *testing.T) {
			stdout, _, err := execute(t, "hash", "-a", tt.algorithm, "-o", "json", path)
			require.NoError(t, err)

			var hashes []FileHash
			require.NoError(t, json.Unmarshal([]byte(stdout), &hashes))
			require.Len(t, hashes, 1)
			assert.Equal(t, tt.algorithm, hashes[0].Algorithm)
			assert.Equal(t, tt.hasher.Sum([]byte("var a;")), hashes[0].Hash)
		})
	}
}

func TestHash_Stdin(t *testing.T) {
	rootCmd.SetIn(strings.NewReader("var a;"))
	t.Cleanup(func() { rootCmd.SetIn(nil) })

	stdout, _, err := execute(t, "hash", "-")
	require.NoError(t, err)
	assert.Contains(t, stdout, bundle.MD5().Sum([]byte("var a;")))
}

func TestHash_Errors(t *testing.T) {
	_, _, err := execute(t, "hash", "-a", "crc32", "x.js")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown hash algorithm")

	_, _, err = execute(t, "hash", filepath.Join(t.TempDir(), "missing.js"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read")
}

func newFakeServer(t *testing.T) (*httptest.Server, *[]string) {
	t.Helper()
	var calls []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.Method+" "+r.URL.RequestURI())
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/v1/bundles":
			_, _ = w.Write([]byte(`{"bundles":[{"name":"site","kind":"style","output_key":"~/css/site.css"},{"name":"site","kind":"script","output_key":"~/js/site.js","mode":"debug"}],"count":2}`))
		case "/api/v1/bundles/script/site/tag":
			_, _ = w.Write([]byte(`{"name":"site","kind":"script","tag":"<script src=\"js/site.js\"></script>"}`))
		case "/api/v1/admin/cache/clear", "/api/v1/admin/bundles/reload":
			_, _ = w.Write([]byte(`{"bundles":[{"name":"site","kind":"script","output":"~/js/site.js","tag":"<script></script>"}]}`))
		case "/health":
			_, _ = w.Write([]byte(`{"status":"healthy","services":{"cache":{"status":"healthy","latency_ms":1}}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"Not found"}`))
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestRemote(t *testing.T) {
	srv, calls := newFakeServer(t)

	stdout, _, err := execute(t, "remote", "list", "--server", srv.URL, "-o", "json")
	require.NoError(t, err)
	var bundles []map[string]string
	require.NoError(t, json.Unmarshal([]byte(stdout), &bundles))
	require.Len(t, bundles, 2)
	assert.Equal(t, "script", bundles[0]["kind"])

	stdout, _, err = execute(t, "remote", "tag", "script", "site", "--debug", "--server", srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "<script src=\"js/site.js\"></script>\n", stdout)

	stdout, _, err = execute(t, "remote", "clear", "--yes", "--server", srv.URL)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Rebuilt 1 bundle(s)")

	_, _, err = execute(t, "remote", "reload", "-y", "--server", srv.URL)
	require.NoError(t, err)

	stdout, _, err = execute(t, "remote", "health", "--server", srv.URL)
	require.NoError(t, err)
	assert.Contains(t, stdout, "cache")

	assert.Equal(t, []string{
		"GET /api/v1/bundles",
		"GET /api/v1/bundles/script/site/tag?debugMode=true",
		"POST /api/v1/admin/cache/clear",
		"POST /api/v1/admin/bundles/reload",
		"GET /health",
	}, *calls)
}

func TestRemote_RequiresConfirmation(t *testing.T) {
	srv, calls := newFakeServer(t)
	isInteractive = func() bool { return false }
	t.Cleanup(func() { isInteractive = util.IsInteractive })

	_, _, err := execute(t, "remote", "clear", "--server", srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--yes")
	assert.Empty(t, *calls)
}

func TestRemote_Confirm(t *testing.T) {
	srv, calls := newFakeServer(t)
	isInteractive = func() bool { return true }
	t.Cleanup(func() { isInteractive = util.IsInteractive })

	rootCmd.SetIn(strings.NewReader("n\n"))
	t.Cleanup(func() { rootCmd.SetIn(nil) })
	stdout, stderr, err := execute(t, "remote", "clear", "--server", srv.URL)
	require.NoError(t, err)
	assert.Contains(t, stderr, "Clear the bundle cache of "+srv.URL+"? [y/N]: ")
	assert.Contains(t, stdout, "Aborted")
	assert.Empty(t, *calls)

	rootCmd.SetIn(strings.NewReader("yes\n"))
	_, _, err = execute(t, "remote", "reload", "--server", srv.URL)
	require.NoError(t, err)
	assert.Equal(t, []string{"POST /api/v1/admin/bundles/reload"}, *calls)
}

func TestRemote_NoServer(t *testing.T) {
	t.Setenv("BUNDLECTL_SERVER", "")

	_, _, err := execute(t, "remote", "list")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no server given")
}

func TestRemote_ServerError(t *testing.T) {
	srv, _ := newFakeServer(t)

	_, _, err := execute(t, "remote", "tag", "script", "missing", "--server", srv.URL)
	require.Error(t, err)
	assert.Equal(t, "Not found", err.Error())
}
