// Package handler exposes the search executor over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/filesearch/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/filesearch/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/filesearch/internal/searcher/query"
	apperrors "github.com/Adithya-Monish-Kumar-K/filesearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/filesearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/filesearch/pkg/metrics"
)

// Searcher is the part of *executor.Executor the handler drives.
type Searcher interface {
	Execute(ctx context.Context, req executor.Request) (*executor.SearchResult, error)
	Normalize(req executor.Request) executor.Request
	Generation() uint64
	Reload() (bool, error)
}

type Options struct {
	Logger  *slog.Logger
	Metrics metrics.Recorder
}

type Handler struct {
	searcher Searcher
	cache    *cache.QueryCache
	metrics  metrics.Recorder
	logger   *slog.Logger
}

// New builds a Handler. queryCache may be nil to disable caching.
func New(s Searcher, queryCache *cache.QueryCache, opts Options) *Handler {
	if opts.Metrics == nil {
		opts.Metrics = metrics.Nop
	}
	return &Handler{
		searcher: s,
		cache:    queryCache,
		metrics:  opts.Metrics,
		logger:   logger.OrDefault(opts.Logger, "search-handler"),
	}
}

// Register mounts the search API on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/search", h.Search)
	mux.HandleFunc("POST /api/v1/reload", h.Reload)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
}

// Search answers GET /api/v1/search?q=&limit=&fields=&occurs=. fields and
// occurs are comma separated lists of equal length.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	log := logger.FromContext(ctx)

	req, err := parseRequest(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	req = h.searcher.Normalize(req)

	var (
		result   *executor.SearchResult
		cacheHit bool
	)
	cacheStatus := "disabled"
	if h.cache != nil {
		key := cache.Key(h.searcher.Generation(), req)
		result, cacheHit, err = h.cache.GetOrCompute(ctx, key, func() (*executor.SearchResult, error) {
			return h.searcher.Execute(ctx, req)
		})
		cacheStatus = "miss"
		if cacheHit {
			cacheStatus = "hit"
		}
	} else {
		result, err = h.searcher.Execute(ctx, req)
	}
	if err != nil {
		log.Warn("search failed", "query", req.Query, "error", err)
		h.writeError(w, err)
		return
	}

	elapsed := time.Since(start)
	h.metrics.SearchCompleted(cacheStatus, len(result.Hits), elapsed)
	log.Info("search completed",
		"query", req.Query,
		"generation", result.Generation,
		"total_hits", result.TotalHits,
		"returned", len(result.Hits),
		"cache", cacheStatus,
		"latency_ms", elapsed.Milliseconds(),
	)
	h.writeJSON(w, http.StatusOK, result)
}

func parseRequest(r *http.Request) (executor.Request, error) {
	params := r.URL.Query()
	req := executor.Request{Query: params.Get("q")}
	if v := params.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return req, apperrors.Newf(apperrors.ErrParse, http.StatusBadRequest, "limit must be a positive integer, got %q", v)
		}
		req.Limit = n
	}
	if v := params.Get("fields"); v != "" {
		req.Fields = splitList(v)
	}
	if v := params.Get("occurs"); v != "" {
		for _, s := range splitList(v) {
			o, err := query.ParseOccur(s)
			if err != nil {
				return req, err
			}
			req.Occurs = append(req.Occurs, o)
		}
		if len(req.Fields) == 0 {
			return req, apperrors.Configf("occurs requires fields")
		}
	}
	return req, nil
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Refresh reloads the executor and drops cached results when the served
// generation changed.
func (h *Handler) Refresh(ctx context.Context) (bool, error) {
	changed, err := h.searcher.Reload()
	if err != nil {
		return false, err
	}
	if changed && h.cache != nil {
		if err := h.cache.Invalidate(ctx); err != nil {
			h.logger.Warn("cache invalidation after reload failed", "error", err)
		}
	}
	return changed, nil
}

func (h *Handler) Reload(w http.ResponseWriter, r *http.Request) {
	changed, err := h.Refresh(r.Context())
	if err != nil {
		logger.FromContext(r.Context()).Error("reload failed", "error", err)
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"changed":    changed,
		"generation": h.searcher.Generation(),
	})
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}

	hits, misses := h.cache.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
	})
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "caching is disabled"})
		return
	}

	if err := h.cache.Invalidate(r.Context()); err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "cache invalidation failed"})
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

// writeError maps err to its HTTP status. Server-side failures are reported
// without their internal detail.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := apperrors.HTTPStatusCode(err)
	message := err.Error()
	if status >= http.StatusInternalServerError {
		message = http.StatusText(status)
	}
	h.writeJSON(w, status, map[string]string{"error": message})
}
