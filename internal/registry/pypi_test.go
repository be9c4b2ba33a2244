// internal/registry/pypi_test.go
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	client := NewClient(logger)
	client.pypiBase = server.URL + "/pypi"
	client.statsBase = server.URL + "/api/packages"
	return client, server
}

func TestPackageName(t *testing.T) {
	tests := []struct {
		in     string
		want   string
		wantOK bool
	}{
		{"pytorch/pytorch", "torch", true},
		{"yaml/pyyaml", "PyYAML", true},
		{"psf/requests", "requests", true},
		{"PSF/Requests", "requests", true}, // mapping lookup is case-insensitive
		{"someuser/pillow", "Pillow", true},
		{"python/cpython", "", false},               // explicit not-a-package marker
		{"donnemartin/system-design-primer", "", false},
		{"someone/their-lib", "their-lib", true},    // default: bare repo name
	}
	for _, tt := range tests {
		got, ok := PackageName(tt.in)
		assert.Equal(t, tt.wantOK, ok, tt.in)
		if tt.wantOK {
			assert.Equal(t, tt.want, got, tt.in)
		}
	}
}

func TestLookup(t *testing.T) {
	t.Run("known non-packages skip the network entirely", func(t *testing.T) {
		var requests atomic.Int32
		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requests.Add(1)
		}))

		info, err := client.Lookup(context.Background(), "python/cpython")
		require.NoError(t, err)
		assert.False(t, info.Exists)
		assert.Equal(t, "not_a_package", info.Reason)
		assert.Zero(t, requests.Load(), "no registry query for known non-packages")
	})

	t.Run("existing package with downloads", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch {
			case strings.HasPrefix(r.URL.Path, "/pypi/"):
				w.WriteHeader(http.StatusOK)
				fmt.Fprintln(w, `{"info": {"name": "requests"}}`)
			case strings.HasPrefix(r.URL.Path, "/api/packages/"):
				fmt.Fprintln(w, `{"data": {"last_day": 1000, "last_week": 7000, "last_month": 31000}}`)
			default:
				w.WriteHeader(http.StatusNotFound)
			}
		})
		client, _ := newTestClient(t, handler)

		info, err := client.Lookup(context.Background(), "psf/requests")
		require.NoError(t, err)
		assert.True(t, info.Exists)
		assert.Equal(t, "requests", info.PackageName)
		assert.Equal(t, 31000, info.DownloadsMonth)
		assert.Equal(t, "success", info.Reason)
	})

	t.Run("missing package reports not_found", func(t *testing.T) {
		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))

		info, err := client.Lookup(context.Background(), "someone/no-such-package")
		require.NoError(t, err)
		assert.False(t, info.Exists)
		assert.Equal(t, "not_found", info.Reason)
		assert.Zero(t, info.DownloadsMonth)
	})

	t.Run("stats failure degrades to zero downloads", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.HasPrefix(r.URL.Path, "/pypi/") {
				w.WriteHeader(http.StatusOK)
				fmt.Fprintln(w, `{}`)
				return
			}
			w.WriteHeader(http.StatusInternalServerError)
		})
		client, _ := newTestClient(t, handler)

		info, err := client.Lookup(context.Background(), "someone/exists-no-stats")
		require.NoError(t, err)
		assert.True(t, info.Exists)
		assert.Zero(t, info.DownloadsMonth)
	})
}
