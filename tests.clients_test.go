package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestCatalogClient_FindByISBN(t *testing.T) {
	testCases := []struct {
		name     string
		status   int
		body     string
		expected Book
		err      error
	}{
		{
			"single book envelope",
			http.StatusOK,
			`{"requestid":"r:1","status":200,"message":"Book fetched successfully.","total":1,"data":{"id":"4","title":"Dune","ISBN":"9780441172719"}}`,
			Book{ID: "4", Title: "Dune", ISBN: "9780441172719"},
			nil,
		},
		{
			"list envelope",
			http.StatusOK,
			`{"status":200,"total":2,"data":[{"id":"4","title":"Dune"},{"id":"5","title":"Dune"}]}`,
			Book{ID: "4", Title: "Dune"},
			nil,
		},
		{
			"empty list",
			http.StatusOK,
			`{"status":200,"total":0,"data":[]}`,
			Book{},
			ErrBookNotInLibrary,
		},
		{
			"non ok answer",
			http.StatusNotFound,
			`{"status":404}`,
			Book{},
			ErrBookNotInLibrary,
		},
		{
			"unreadable answer",
			http.StatusOK,
			`<html>`,
			Book{},
			ErrUpstreamUnavailable,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/books", r.URL.Path)
				assert.Equal(t, "9780441172719", r.URL.Query().Get("ISBN"))
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer server.Close()

			cc := NewCatalogClient(zap.NewNop(), &CatalogConfig{URL: server.URL + "/", Timeout: time.Second}, NewMetrics())
			book, err := cc.FindByISBN(context.Background(), "9780441172719")
			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, book)
		})
	}

	t.Run("unreachable service", func(t *testing.T) {
		server := httptest.NewServer(http.NotFoundHandler())
		url := server.URL
		server.Close()
		cc := NewCatalogClient(zap.NewNop(), &CatalogConfig{URL: url, Timeout: time.Second}, nil)
		_, err := cc.FindByISBN(context.Background(), "9780441172719")
		assert.ErrorIs(t, err, ErrUpstreamUnavailable)
	})
}

// newUpstreamsServer fakes the three enrichment providers.
func newUpstreamsServer(t *testing.T, calls *int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.URL.Path == "/google":
			if r.URL.Query().Get("q") != "isbn:9780441172719" {
				_, _ = w.Write([]byte(`{"totalItems":0}`))
				return
			}
			_, _ = w.Write([]byte(`{"totalItems":1,"items":[{"volumeInfo":{"authors":["Frank Herbert","Someone Else"],"publisher":"","publishedDate":"1965-08"}}]}`))
		case r.URL.Path == "/openlibrary":
			if r.URL.Query().Get("q") != "9780441172719" {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			_, _ = w.Write([]byte(`{"docs":[{"language":["eng","spa"]}]}`))
		case strings.HasPrefix(r.URL.Path, "/gemini/gemini-pro:generateContent"):
			assert.Equal(t, "secret", r.URL.Query().Get("key"))
			var req geminiRequest
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"Spice "},{"text":"must flow."}]}}]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func newTestEnrichmentConfig(serverURL string) *EnrichmentConfig {
	return &EnrichmentConfig{
		GoogleBooksURL:    serverURL + "/google",
		OpenLibraryURL:    serverURL + "/openlibrary",
		GeminiURL:         serverURL + "/gemini",
		GeminiModel:       "gemini-pro",
		GeminiAPIKey:      "secret",
		Timeout:           time.Second,
		RequestsPerSecond: 100,
	}
}

func TestEnrichmentGateway(t *testing.T) {
	var calls int32
	server := newUpstreamsServer(t, &calls)
	defer server.Close()
	ctx := context.Background()
	eg := NewEnrichmentGateway(zap.NewNop(), newTestEnrichmentConfig(server.URL), nil, NewMetrics())

	t.Run("details", func(t *testing.T) {
		details, err := eg.Details(ctx, "9780441172719")
		require.NoError(t, err)
		assert.Equal(t, BookDetails{Authors: "Frank Herbert and Someone Else", Publisher: MissingValue, PublishedDate: MissingValue}, details)
	})

	t.Run("details of unknown isbn", func(t *testing.T) {
		_, err := eg.Details(ctx, "0000000000000")
		assert.ErrorIs(t, err, ErrUpstreamUnavailable)
	})

	t.Run("languages", func(t *testing.T) {
		assert.Equal(t, []string{"eng", "spa"}, eg.Languages(ctx, "9780441172719"))
		assert.Equal(t, []string{MissingValue}, eg.Languages(ctx, "0000000000000"))
	})

	t.Run("summary", func(t *testing.T) {
		summary, err := eg.Summary(ctx, "Dune", "Frank Herbert")
		require.NoError(t, err)
		assert.Equal(t, "Spice must flow.", summary)
	})

	t.Run("summary without api key", func(t *testing.T) {
		config := newTestEnrichmentConfig(server.URL)
		config.GeminiAPIKey = ""
		before := atomic.LoadInt32(&calls)
		summary, err := NewEnrichmentGateway(zap.NewNop(), config, nil, nil).Summary(ctx, "Dune", "Frank Herbert")
		require.NoError(t, err)
		assert.Equal(t, MissingValue, summary)
		assert.Equal(t, before, atomic.LoadInt32(&calls))
	})
}

func TestEnrichmentGateway_UsesCache(t *testing.T) {
	var calls int32
	server := newUpstreamsServer(t, &calls)
	defer server.Close()
	cache, err := NewSQLiteCache(filepath.Join(t.TempDir(), "cache.db"), time.Hour, NewMockClocker())
	require.NoError(t, err)
	defer cache.Close()

	eg := NewEnrichmentGateway(zap.NewNop(), newTestEnrichmentConfig(server.URL), cache, nil)
	first, err := eg.Details(context.Background(), "9780441172719")
	require.NoError(t, err)
	second, err := eg.Details(context.Background(), "9780441172719")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestSQLiteCache(t *testing.T) {
	ctx := context.Background()
	clock := NewMockClocker()
	cache, err := NewSQLiteCache(filepath.Join(t.TempDir(), "cache.db"), time.Hour, clock)
	require.NoError(t, err)
	defer cache.Close()

	var langs []string
	found, err := cache.Get(ctx, OpenLibraryUpstream, "isbn", &langs)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, cache.Put(ctx, OpenLibraryUpstream, "isbn", []string{"eng"}))
	found, err = cache.Get(ctx, OpenLibraryUpstream, "isbn", &langs)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []string{"eng"}, langs)

	// another source does not see the entry.
	found, err = cache.Get(ctx, GoogleBooksUpstream, "isbn", &langs)
	require.NoError(t, err)
	assert.False(t, found)

	clock.MockNow = clock.MockNow.Add(2 * time.Hour)
	found, err = cache.Get(ctx, OpenLibraryUpstream, "isbn", &langs)
	require.NoError(t, err)
	assert.False(t, found, "entry older than ttl must be ignored")
}
