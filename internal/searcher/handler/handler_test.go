package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/filesearch/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/filesearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/filesearch/internal/indexer/store"
	"github.com/Adithya-Monish-Kumar-K/filesearch/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/filesearch/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/filesearch/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/filesearch/pkg/logger"
)

var errMissing = errors.New("missing")

type mapStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (s *mapStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.data[key]; ok {
		return v, nil
	}
	return nil, errMissing
}

func (s *mapStore) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return nil
}

func (s *mapStore) FlushByPattern(context.Context, string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := int64(len(s.data))
	s.data = map[string][]byte{}
	return n, nil
}

func addDocs(t *testing.T, dir store.Directory, docs map[string]string) {
	t.Helper()
	w, err := indexer.OpenWriter(dir, tokenizer.Default(), indexer.WriterOptions{Logger: logger.Discard()})
	require.NoError(t, err)
	for name, content := range docs {
		_, err := w.AddDocument(index.NewDocument(
			index.TextField(index.FieldFileName, name),
			index.TextField(index.FieldFilePath, "/docs/"+name),
			index.TextField(index.FieldContent, content),
		))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
}

type fixture struct {
	dir    store.Directory
	server *httptest.Server
	cache  *cache.QueryCache
}

func newFixture(t *testing.T, withCache bool) *fixture {
	t.Helper()
	dir := store.NewMemDirectory(logger.Discard())
	addDocs(t, dir, map[string]string{"a.txt": "读取 文件 内容", "b.txt": "导出 数据"})

	exec, err := executor.New(dir, tokenizer.Default(), executor.Options{Logger: logger.Discard()})
	require.NoError(t, err)
	t.Cleanup(func() { exec.Close() })

	f := &fixture{dir: dir}
	if withCache {
		f.cache = cache.New(&mapStore{data: map[string][]byte{}}, cache.Options{
			TTL:    time.Minute,
			Logger: logger.Discard(),
			IsMiss: func(err error) bool { return errors.Is(err, errMissing) },
		})
	}
	mux := http.NewServeMux()
	New(exec, f.cache, Options{Logger: logger.Discard()}).Register(mux)
	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fixture) search(t *testing.T, params url.Values) (int, map[string]any) {
	t.Helper()
	resp, err := http.Get(f.server.URL + "/api/v1/search?" + params.Encode())
	require.NoError(t, err)
	defer resp.Body.Close()
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp.StatusCode, body
}

func (f *fixture) post(t *testing.T, path string) (int, map[string]any) {
	t.Helper()
	resp, err := http.Post(f.server.URL+path, "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp.StatusCode, body
}

func TestSearch(t *testing.T) {
	f := newFixture(t, false)

	status, body := f.search(t, url.Values{"q": {"读取 导出"}})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(2), body["total_hits"])
	hits := body["hits"].([]any)
	require.Len(t, hits, 2)
	for _, h := range hits {
		hit := h.(map[string]any)
		assert.Greater(t, hit["score"].(float64), 0.0)
		assert.Contains(t, hit["snippet"], `<span style="background:red">`)
		assert.Equal(t, "/docs/"+hit["display_name"].(string), hit["path"])
	}

	status, body = f.search(t, url.Values{"q": {"读取"}, "fields": {"content"}, "occurs": {"must"}, "limit": {"1"}})
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["hits"], 1)
}

func TestSearchBadRequests(t *testing.T) {
	f := newFixture(t, false)

	tests := []struct {
		name   string
		params url.Values
	}{
		{"missing query", url.Values{}},
		{"blank query", url.Values{"q": {"   "}}},
		{"unbalanced group", url.Values{"q": {"(读取"}}},
		{"bad limit", url.Values{"q": {"读取"}, "limit": {"zero"}}},
		{"negative limit", url.Values{"q": {"读取"}, "limit": {"-1"}}},
		{"unknown occur", url.Values{"q": {"读取"}, "fields": {"content"}, "occurs": {"sometimes"}}},
		{"occurs without fields", url.Values{"q": {"读取"}, "occurs": {"must"}}},
		{"length mismatch", url.Values{"q": {"读取"}, "fields": {"content"}, "occurs": {"must,should"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := f.search(t, tt.params)
			assert.Equal(t, http.StatusBadRequest, status)
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestSearchUsesCache(t *testing.T) {
	f := newFixture(t, true)
	params := url.Values{"q": {"读取"}}

	_, first := f.search(t, params)
	_, second := f.search(t, params)
	assert.Equal(t, first, second)

	hits, misses := f.cache.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)

	resp, err := http.Get(f.server.URL + "/api/v1/cache/stats")
	require.NoError(t, err)
	defer resp.Body.Close()
	var stats map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	assert.Equal(t, "50.0%", stats["hit_rate"])

	status, body := f.post(t, "/api/v1/cache/invalidate")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "invalidated", body["status"])
}

func TestReloadServesNewGeneration(t *testing.T) {
	f := newFixture(t, true)

	_, body := f.search(t, url.Values{"q": {"备份"}})
	assert.Empty(t, body["hits"])

	status, body := f.post(t, "/api/v1/reload")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, false, body["changed"])
	assert.Equal(t, float64(1), body["generation"])

	addDocs(t, f.dir, map[string]string{"c.txt": "数据 备份"})
	status, body = f.post(t, "/api/v1/reload")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["changed"])
	assert.Equal(t, float64(2), body["generation"])

	_, body = f.search(t, url.Values{"q": {"备份"}})
	assert.Len(t, body["hits"], 1)
}

func TestCacheEndpointsWhenDisabled(t *testing.T) {
	f := newFixture(t, false)

	resp, err := http.Get(f.server.URL + "/api/v1/cache/stats")
	require.NoError(t, err)
	defer resp.Body.Close()
	var stats map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	assert.Equal(t, "disabled", stats["status"])

	status, _ := f.post(t, "/api/v1/cache/invalidate")
	assert.Equal(t, http.StatusServiceUnavailable, status)
}
