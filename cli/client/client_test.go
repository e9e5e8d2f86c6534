package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestListBundles(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/v1/bundles", r.URL.Path)
		assert.Equal(t, "bundlectl/1.0", r.Header.Get("User-Agent"))
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"bundles": []Bundle{
				{Name: "site", Kind: "script", OutputKey: "~/js/site_#.js"},
				{Name: "admin", Kind: "style", OutputKey: "~/css/admin.css", Mode: "debug"},
			},
			"count": 2,
		})
	})

	bundles, err := c.ListBundles(context.Background())
	require.NoError(t, err)
	require.Len(t, bundles, 2)
	assert.Equal(t, "site", bundles[0].Name)
	assert.Equal(t, "debug", bundles[1].Mode)
}

func TestTag(t *testing.T) {
	yes := true

	tests := []struct {
		name      string
		debug     *bool
		wantQuery string
	}{
		{"server default", nil, ""},
		{"debug requested", &yes, "debugMode=true"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/api/v1/bundles/script/site/tag", r.URL.Path)
				assert.Equal(t, tt.wantQuery, r.URL.RawQuery)
				writeJSON(w, http.StatusOK, map[string]string{
					"name": "site",
					"kind": "script",
					"tag":  `<script src="site.js"></script>`,
				})
			})

			tag, err := c.Tag(context.Background(), "script", "site", tt.debug)
			require.NoError(t, err)
			assert.Equal(t, `<script src="site.js"></script>`, tag)
		})
	}
}

func TestTag_CustomDebugParam(t *testing.T) {
	no := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "debug=false", r.URL.RawQuery)
		writeJSON(w, http.StatusOK, map[string]string{"tag": "x"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, WithDebugParam("debug"))
	_, err := c.Tag(context.Background(), "style", "site", &no)
	require.NoError(t, err)
}

func TestTag_UnknownBundle(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error":   "Bundle not found",
			"code":    "UNKNOWN_BUNDLE",
			"message": "unknown bundle name: missing",
		})
	})

	_, err := c.Tag(context.Background(), "script", "missing", nil)
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "UNKNOWN_BUNDLE", apiErr.Code)
	assert.Equal(t, "unknown bundle name: missing", apiErr.Error())
}

func TestClearCacheAndReload(t *testing.T) {
	var paths []string
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		paths = append(paths, r.URL.Path)
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"bundles": []Result{{Name: "site", Kind: "script", Output: "~/js/site.js", Tag: "<script></script>"}},
		})
	})

	results, err := c.ClearCache(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "site", results[0].Name)

	_, err = c.Reload(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"/api/v1/admin/cache/clear", "/api/v1/admin/bundles/reload"}, paths)
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       interface{}
		wantStatus string
		wantErr    bool
	}{
		{
			name:       "healthy",
			status:     http.StatusOK,
			body:       Health{Status: "healthy", Services: map[string]ServiceState{"cache": {Status: "healthy"}}},
			wantStatus: "healthy",
		},
		{
			name:       "unhealthy report",
			status:     http.StatusServiceUnavailable,
			body:       Health{Status: "unhealthy", Services: map[string]ServiceState{"cache": {Status: "unhealthy", Message: "connection refused"}}},
			wantStatus: "unhealthy",
		},
		{
			name:    "unavailable without report",
			status:  http.StatusServiceUnavailable,
			body:    map[string]string{},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/health", r.URL.Path)
				writeJSON(w, tt.status, tt.body)
			})

			health, err := c.Health(context.Background())
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, health.Status)
		})
	}
}

func TestParseErrorBody_PlainText(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream down"))
	})

	_, err := c.ListBundles(context.Background())
	require.Error(t, err)
	assert.Equal(t, "upstream down", err.Error())
}

func TestDebugLogging(t *testing.T) {
	var buf bytes.Buffer
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{"bundles": []Bundle{}})
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", WithDebug(true))
	c.DebugWriter = &buf

	_, err := c.ListBundles(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "DEBUG: GET "+srv.URL+"/api/v1/bundles\n", buf.String())
}
