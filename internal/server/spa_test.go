package server

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsAPIPath(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"/v1/run", true},
		{"/v1/run/events", true},
		{"/v1/unknown", true},
		{"/v1/", true},

		{"/", false},
		{"/results", false},
		{"/assets/app.js", false},
		{"/health", false},
		{"", false},
		{"/v1", false},
		{"/v2/run", false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, isAPIPath(tt.path))
		})
	}
}

func TestSetCacheHeaders(t *testing.T) {
	tests := []struct {
		urlPath string
		wantCC  string
	}{
		{"/assets/app.js", "public, max-age=31536000, immutable"},
		{"/assets/style.css", "public, max-age=31536000, immutable"},
		{"/favicon.ico", "public, max-age=3600"},
		{"/images/logo.png", "public, max-age=3600"},
	}
	for _, tt := range tests {
		t.Run(tt.urlPath, func(t *testing.T) {
			w := httptest.NewRecorder()
			setCacheHeaders(w, tt.urlPath)
			assert.Equal(t, tt.wantCC, w.Header().Get("Cache-Control"))
		})
	}
}

func TestSPAHandler(t *testing.T) {
	fsys := fstest.MapFS{
		"index.html":    {Data: []byte("<html>shell</html>")},
		"assets/app.js": {Data: []byte("console.log('app')")},
	}
	h := newSPAHandler(fsys)

	get := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec
	}

	t.Run("asset", func(t *testing.T) {
		rec := get("/assets/app.js")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "console.log")
		assert.Contains(t, rec.Header().Get("Cache-Control"), "immutable")
	})

	t.Run("client route falls back to shell", func(t *testing.T) {
		rec := get("/results/latest")
		require.Equal(t, http.StatusOK, rec.Code)
		body, _ := io.ReadAll(rec.Body)
		assert.Equal(t, "<html>shell</html>", string(body))
		assert.Equal(t, "no-cache, no-store, must-revalidate", rec.Header().Get("Cache-Control"))
	})

	t.Run("unknown api path is a json 404", func(t *testing.T) {
		rec := get("/v1/nope")
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	})
}
