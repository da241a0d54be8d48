package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	studioerrors "github.com/arkilian/studio/internal/errors"
	"github.com/arkilian/studio/internal/explorer"
	"github.com/arkilian/studio/internal/fetch"
	"github.com/arkilian/studio/internal/observability"
	"github.com/arkilian/studio/internal/views"
)

// Loader loads and invalidates view batches. *fetch.Orchestrator satisfies it.
type Loader interface {
	Load(ctx context.Context, batch fetch.Batch, forceRefresh bool) (*fetch.Payload, error)
	Invalidate(batch fetch.Batch)
	TTL() time.Duration
	Stats() *observability.CacheStats
}

// ViewSummary describes one view and its collections.
type ViewSummary struct {
	Name        string              `json:"name"`
	PageSize    int                 `json:"page_size"`
	Collections []CollectionSummary `json:"collections"`
}

// CollectionSummary describes the columns and filters of one collection.
type CollectionSummary struct {
	Name        string            `json:"name"`
	SearchField string            `json:"search_field"`
	Columns     []explorer.Column `json:"columns"`
	Filters     []explorer.Filter `json:"filters"`
}

// CacheInfo reports how fresh the rows behind a response are.
type CacheInfo struct {
	Cached    bool    `json:"cached"`
	FetchedAt string  `json:"fetched_at,omitempty"`
	AgeSecs   float64 `json:"age_seconds"`
	TTLSecs   float64 `json:"ttl_seconds"`
}

// ViewResponse is the body of GET /v1/views/{view}/{collection}.
type ViewResponse struct {
	View          string             `json:"view"`
	Collection    string             `json:"collection"`
	Model         explorer.ViewModel `json:"model"`
	Columns       []explorer.Column  `json:"columns"`
	Cells         [][]string         `json:"cells"`
	Cache         CacheInfo          `json:"cache"`
	Error         string             `json:"error,omitempty"`
	PartialErrors map[string]string  `json:"partial_errors,omitempty"`
	RequestID     string             `json:"request_id"`
}

// StatsResponse is the body of GET /v1/stats.
type StatsResponse struct {
	Cache      observability.CacheSnapshot `json:"cache"`
	TopFilters []observability.FieldStats  `json:"top_filters"`
	TopSorts   []observability.FieldStats  `json:"top_sorts"`
	TopSearch  []observability.FieldStats  `json:"top_searches"`
	RequestID  string                      `json:"request_id"`
}

// topUsage bounds the usage lists returned by /v1/stats.
const topUsage = 10

// ViewsHandler serves the explorer views over HTTP.
type ViewsHandler struct {
	registry *views.Registry
	loader   Loader
	usage    *observability.UsageStats
	logger   *zap.Logger
	now      func() time.Time
	mux      *http.ServeMux
}

// NewViewsHandler creates a handler. usage may be nil.
func NewViewsHandler(registry *views.Registry, loader Loader, usage *observability.UsageStats, logger *zap.Logger) *ViewsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &ViewsHandler{
		registry: registry,
		loader:   loader,
		usage:    usage,
		logger:   logger,
		now:      time.Now,
		mux:      http.NewServeMux(),
	}
	h.mux.HandleFunc("GET /v1/views", h.listViews)
	h.mux.HandleFunc("GET /v1/views/{view}/{collection}", h.getView)
	h.mux.HandleFunc("POST /v1/views/{view}/invalidate", h.invalidate)
	h.mux.HandleFunc("GET /v1/stats", h.stats)
	h.mux.HandleFunc("GET /health", h.health)
	return h
}

// ServeHTTP dispatches to the registered routes.
func (h *ViewsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *ViewsHandler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *ViewsHandler) listViews(w http.ResponseWriter, r *http.Request) {
	names := h.registry.Names()
	out := make([]ViewSummary, 0, len(names))
	for _, name := range names {
		v, err := h.registry.Get(name)
		if err != nil {
			continue
		}
		summary := ViewSummary{Name: v.Name, PageSize: v.PageSize}
		for _, c := range v.Collections() {
			schema, _ := v.Schema(c)
			summary.Collections = append(summary.Collections, CollectionSummary{
				Name:        c,
				SearchField: schema.SearchField(),
				Columns:     schema.Columns(),
				Filters:     schema.Filters(),
			})
		}
		out = append(out, summary)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"views":      out,
		"request_id": GetRequestID(r.Context()),
	})
}

// parseViewQuery reads the explorer state from the query string:
// q, sort, dir (asc|desc), repeated filter=key:value, page and refresh.
// Schema checks are left to views.View.Validate.
func parseViewQuery(r *http.Request) (views.Query, bool, error) {
	q := r.URL.Query()
	vq := views.Query{Search: q.Get("q"), Sort: q.Get("sort"), Page: 1}

	switch dir := q.Get("dir"); dir {
	case "", string(explorer.Ascending):
	case string(explorer.Descending):
		vq.Descending = true
	default:
		return vq, false, fmt.Errorf("invalid dir %q (must be asc or desc)", dir)
	}

	if raw := q["filter"]; len(raw) > 0 {
		vq.Filters = make(map[string]string, len(raw))
		for _, f := range raw {
			key, value, ok := strings.Cut(f, ":")
			if !ok || key == "" {
				return vq, false, fmt.Errorf("invalid filter %q (want key:value)", f)
			}
			if _, dup := vq.Filters[key]; dup {
				return vq, false, fmt.Errorf("filter %q given more than once", key)
			}
			vq.Filters[key] = value
		}
	}

	if p := q.Get("page"); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil {
			return vq, false, fmt.Errorf("invalid page %q", p)
		}
		vq.Page = n
	}

	refresh := false
	if rf := q.Get("refresh"); rf != "" {
		b, err := strconv.ParseBool(rf)
		if err != nil {
			return vq, false, fmt.Errorf("invalid refresh %q", rf)
		}
		refresh = b
	}
	return vq, refresh, nil
}

func (h *ViewsHandler) getView(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())
	viewName, collection := r.PathValue("view"), r.PathValue("collection")

	v, err := h.registry.Get(viewName)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error(), requestID)
		return
	}
	schema, ok := v.Schema(collection)
	if !ok {
		writeError(w, http.StatusNotFound,
			fmt.Sprintf("view %q has no collection %q", viewName, collection), requestID)
		return
	}
	vq, refresh, err := parseViewQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), requestID)
		return
	}
	if err := v.Validate(collection, vq); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), requestID)
		return
	}

	payload, loadErr := h.loader.Load(r.Context(), v.Batch, refresh)
	engine, err := v.Explore(collection, payload.Rows(collection), vq)
	if err != nil {
		writeError(w, statusForError(err), err.Error(), requestID)
		return
	}
	h.recordUsage(viewName, schema.SearchField(), vq)

	model := engine.ViewModel()
	resp := ViewResponse{
		View:       viewName,
		Collection: collection,
		Model:      model,
		Columns:    schema.Columns(),
		Cells:      make([][]string, len(model.VisibleRows)),
		Cache:      h.cacheInfo(payload),
		RequestID:  requestID,
	}
	for i, row := range model.VisibleRows {
		cells := make([]string, len(resp.Columns))
		for j, col := range resp.Columns {
			cells[j] = schema.FormatCell(row, col)
		}
		resp.Cells[i] = cells
	}
	if len(payload.PartialErrors) > 0 {
		resp.PartialErrors = make(map[string]string, len(payload.PartialErrors))
		for c, e := range payload.PartialErrors {
			resp.PartialErrors[c] = e.Error()
		}
	}

	status := http.StatusOK
	if loadErr != nil {
		resp.Error = loadErr.Error()
		status = statusForError(loadErr)
		h.logger.Warn("view load failed",
			zap.String("view", viewName),
			zap.String("request_id", requestID),
			zap.Error(loadErr))
	}
	writeJSON(w, status, resp)
}

func (h *ViewsHandler) cacheInfo(p *fetch.Payload) CacheInfo {
	info := CacheInfo{Cached: p.Cached, TTLSecs: h.loader.TTL().Seconds()}
	if !p.FetchedAt.IsZero() {
		info.FetchedAt = p.FetchedAt.UTC().Format(time.RFC3339Nano)
		info.AgeSecs = h.now().Sub(p.FetchedAt).Seconds()
	}
	return info
}

func (h *ViewsHandler) invalidate(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())
	v, err := h.registry.Get(r.PathValue("view"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error(), requestID)
		return
	}
	h.loader.Invalidate(v.Batch)
	h.logger.Info("view invalidated", zap.String("view", v.Name), zap.String("request_id", requestID))
	writeJSON(w, http.StatusOK, map[string]string{
		"view":       v.Name,
		"status":     "invalidated",
		"request_id": requestID,
	})
}

func (h *ViewsHandler) stats(w http.ResponseWriter, r *http.Request) {
	resp := StatsResponse{
		Cache:      h.loader.Stats().Snapshot(),
		TopFilters: []observability.FieldStats{},
		TopSorts:   []observability.FieldStats{},
		TopSearch:  []observability.FieldStats{},
		RequestID:  GetRequestID(r.Context()),
	}
	if h.usage != nil {
		resp.TopFilters = h.usage.Top(observability.UsageFilter, topUsage)
		resp.TopSorts = h.usage.Top(observability.UsageSort, topUsage)
		resp.TopSearch = h.usage.Top(observability.UsageSearch, topUsage)
	}
	writeJSON(w, http.StatusOK, resp)
}

// recordUsage counts the non-default parts of a view request.
func (h *ViewsHandler) recordUsage(view, searchField string, q views.Query) {
	if h.usage == nil {
		return
	}
	if q.Search != "" {
		h.usage.RecordSearch(view, searchField)
	}
	if q.Sort != "" {
		dir := explorer.Ascending
		if q.Descending {
			dir = explorer.Descending
		}
		h.usage.RecordSort(view, q.Sort, string(dir))
	}
	for key, value := range q.Filters {
		if value != "" {
			h.usage.RecordFilter(view, key, value)
		}
	}
}

// statusForError maps a load error to an HTTP status.
func statusForError(err error) int {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	case errors.Is(err, studioerrors.ErrBatchFailed):
		return http.StatusBadGateway
	case errors.Is(err, studioerrors.ErrUnknownView):
		return http.StatusNotFound
	}
	switch studioerrors.GetCategory(err) {
	case studioerrors.ErrCategoryValidation, studioerrors.ErrCategoryConfig:
		return http.StatusBadRequest
	case studioerrors.ErrCategorySource, studioerrors.ErrCategoryFetch:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
